/*
Package jsonapi
Interface for interacting with {json:api} APIs.

Resource types are declared once and the attributes of every resource are
tracked, so that updates only send what was changed locally.

Usage:

    import "github.com/transifex/jsonapi-client/pkg/jsonapi"

    articles := jsonapi.DefineType("articles").
        Attributes("title", "body").
        ToOne("author", "people").
        ToMany("comments", "").
        Build()
    people := jsonapi.DefineType("people").Attributes("name").Build()
    comments := jsonapi.DefineType("comments").Attributes("body").Build()
    registry, err := jsonapi.NewRegistry(articles, people, comments)

    api := &jsonapi.Connection{
        APIBase:   "https://foo.com/api",
        Transport: &jsonapi.HTTPTransport{Token: "XXX"},
        Registry:  registry,
        Logger:    logger,
    }

    // Lets get a list of things
    page, err := api.From(articles).
        Fields("title").
        Include("comments").
        SortBy("-title").
        Limit(10).
        Execute(ctx, "")
    for {
        for _, article := range page.Data {
            title, _ := article.Get("title")
            fmt.Println(title, len(article.Related("comments")))
        }
        if page.Next == "" {
            break
        }
        page, err = page.GetNext(ctx)
    }

    // Lets get and manipulate a single thing
    article, err := api.Get(ctx, articles, "1")
    article.Set("title", "New title")
    err = article.Save(ctx)  // PATCH with {"title": "New title"} only

    // Lets create something new
    comment := api.New(comments)
    comment.Set("body", "First!")
    article.AddRelated("comments", comment)
    err = article.Save(ctx)  // POSTs the comment first, then links it

    // Lets save many things at once
    plan := jsonapi.Partition(page.Data, nil)
    result, err := api.SaveAll(ctx, plan, jsonapi.BatchOptions{Workers: 4})
*/
package jsonapi
