package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transifex/jsonapi-client/pkg/jsonapi"
)

func getTestArticle(t *testing.T) *jsonapi.Resource {
	t.Helper()
	people := jsonapi.DefineType("people").Attributes("name").Build()
	articles := jsonapi.DefineType("articles").
		Attributes("title", "body").
		ToOne("author", "people").
		Build()
	registry, err := jsonapi.NewRegistry(articles, people)
	require.NoError(t, err)
	api := &jsonapi.Connection{Registry: registry}

	author, err := api.NewWith(people, jsonapi.PayloadResource{
		Id: "7", Attributes: map[string]interface{}{"name": "Jane"},
	})
	require.NoError(t, err)
	article, err := api.NewWith(articles, jsonapi.PayloadResource{
		Id:         "1",
		Attributes: map[string]interface{}{"title": "Hello"},
		Links:      &jsonapi.Links{Self: "/articles/1"},
	})
	require.NoError(t, err)
	article.SetRelated("author", author)
	return article
}

func TestPrintResourceJSON(t *testing.T) {
	var out bytes.Buffer
	err := printResource(&out, FormatJSON, getTestArticle(t))
	require.NoError(t, err)
	assert.JSONEq(t, `{
        "type": "articles",
        "id": "1",
        "attributes": {"title": "Hello", "body": null},
        "relationships": {"author": [{"id": "7", "attributes": {"name": "Jane"}}]},
        "links": {"self": "/articles/1"}
    }`, out.String())
}

func TestPrintResourceYAML(t *testing.T) {
	var out bytes.Buffer
	err := printResource(&out, FormatYAML, getTestArticle(t))
	require.NoError(t, err)
	assert.YAMLEq(t, `
type: articles
id: "1"
attributes:
  title: Hello
  body: null
relationships:
  author:
    - id: "7"
      attributes:
        name: Jane
links:
  self: /articles/1
`, out.String())
}

func TestPrintCollection(t *testing.T) {
	var out bytes.Buffer
	err := printCollection(&out, FormatJSON, jsonapi.Collection{
		Data: []*jsonapi.Resource{getTestArticle(t)},
		Meta: map[string]interface{}{"total": 10},
		Next: "/articles?page[number]=2",
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"next": "/articles?page[number]=2"`)
	assert.Contains(t, out.String(), `"total": 10`)
}

func TestEncodeUnknownFormat(t *testing.T) {
	var out bytes.Buffer
	err := encode(&out, "xml", map[string]string{})
	assert.EqualError(t, err, "unknown output format 'xml'")
	assert.Empty(t, out.String())
}
