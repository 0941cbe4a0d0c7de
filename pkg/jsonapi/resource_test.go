package jsonapi

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/transifex/jsonapi-client/pkg/assert"
)

func getTestArticle(t *testing.T, api *Connection, articles *ResourceType) *Resource {
	t.Helper()
	article := newResource(api, articles)
	err := article.initializeFromWire(PayloadResource{
		Type: "articles",
		Id:   "1",
		Attributes: map[string]interface{}{
			"title":  "Old",
			"body":   "Text",
			"rating": float64(3),
		},
	}, true)
	assert.NoError(t, err)
	return article
}

func freezeTime(t *testing.T) time.Time {
	t.Helper()
	frozen := time.Date(2021, 5, 4, 3, 2, 1, 0, time.UTC)
	nowFunc = func() time.Time { return frozen }
	t.Cleanup(func() { nowFunc = time.Now })
	return frozen
}

func TestInitializeFromWireTrustedIsClean(t *testing.T) {
	articles, comments, people := getTestTypes()
	api := GetTestConnection(MockData{}, articles, comments, people)
	article := getTestArticle(t, api, articles)

	testCases := []struct {
		name     string
		getter   func() interface{}
		expected interface{}
	}{
		{"id", func() interface{} { return article.Id }, "1"},
		{"is new", func() interface{} { return article.IsNew() }, false},
		{"is dirty", func() interface{} { return article.IsDirty() }, false},
		{"title", func() interface{} {
			value, _ := article.Get("title")
			return value
		}, "Old"},
		{"rating", func() interface{} {
			value, _ := article.Get("rating")
			return value
		}, float64(3)},
	}
	for _, testCase := range testCases {
		value := testCase.getter()
		if value != testCase.expected {
			t.Errorf("Article's %s was '%v', expected '%v'",
				testCase.name, value, testCase.expected)
		}
	}
}

func TestNewWithIsDirty(t *testing.T) {
	articles, comments, people := getTestTypes()
	api := GetTestConnection(MockData{}, articles, comments, people)

	article, err := api.NewWith(articles, PayloadResource{
		Attributes: map[string]interface{}{"title": "Hello"},
	})
	assert.NoError(t, err)
	assert.True(t, article.IsNew())
	assert.True(t, article.IsDirty())
	assert.DeepEqual(t, article.DirtyAttributes(), []string{"title"})
}

func TestNewWithWrongType(t *testing.T) {
	articles, comments, people := getTestTypes()
	api := GetTestConnection(MockData{}, articles, comments, people)

	_, err := api.NewWith(articles, PayloadResource{Type: "comments"})
	var e *MappingError
	assert.True(t, errors.As(err, &e), "expected a mapping error, got %v", err)
}

func TestSetUndeclaredAttribute(t *testing.T) {
	articles, comments, people := getTestTypes()
	api, logs := getObservedConnection(MockData{}, articles, comments, people)
	article := getTestArticle(t, api, articles)

	article.Set("unknown", 1)

	assert.False(t, article.IsDirty())
	_, exists := article.Get("unknown")
	assert.False(t, exists)
	assert.Equal(t, logs.Len(), 1)
	assert.Equal(t, logs.All()[0].Message, "ignoring write to undeclared attribute")
}

func TestSetRelated(t *testing.T) {
	articles, comments, people := getTestTypes()
	api, logs := getObservedConnection(MockData{}, articles, comments, people)
	article := getTestArticle(t, api, articles)

	first := api.New(people)
	second := api.New(people)
	article.SetRelated("author", first, second)
	assert.Equal(t, len(article.Related("author")), 1)
	assert.Equal(t, article.Related("author")[0], second)

	comment := api.New(comments)
	article.AddRelated("comments", comment, comment)
	assert.Equal(t, len(article.Related("comments")), 1)

	article.SetRelated("unknown", first)
	assert.Equal(t, logs.Len(), 1)
	assert.True(t, article.relationshipsChanged())
}

func TestSaveNew(t *testing.T) {
	articles, comments, people := getTestTypes()
	mockData := MockData{
		"/articles": &MockEndpoint{
			Requests: []MockRequest{{
				Response: MockResponse{
					Text: `{"data": {"type": "articles",
                                     "id": "1",
                                     "attributes": {"title": "Hello",
                                                    "body": null,
                                                    "rating": null}}}`,
				},
			}},
		},
	}
	api := GetTestConnection(mockData, articles, comments, people)

	article := api.New(articles)
	article.Set("title", "Hello")
	err := article.Save(context.Background())
	assert.NoError(t, err)

	captured := mockData["/articles"].Requests[0].Request
	assert.Equal(t, captured.Method, "POST")
	assert.Equal(t, captured.Headers.Get("Content-Type"), "application/vnd.api+json")
	assert.Equal(t, captured.Headers.Get("Accept"), "application/vnd.api+json")
	assert.JSONEqual(t, captured.Payload, `{"data": {
        "type": "articles",
        "attributes": {"title": "Hello", "body": null, "rating": null}
    }}`)

	assert.Equal(t, article.Id, "1")
	assert.False(t, article.IsNew())
	assert.False(t, article.IsDirty())
}

func TestSaveExisting(t *testing.T) {
	articles, comments, people := getTestTypes()
	mockData := MockData{
		"/articles/1": &MockEndpoint{
			Requests: []MockRequest{{
				Response: MockResponse{
					Text: `{"data": {"type": "articles",
                                     "id": "1",
                                     "attributes": {"title": "New",
                                                    "body": "Text",
                                                    "rating": 3}}}`,
				},
			}},
		},
	}
	api := GetTestConnection(mockData, articles, comments, people)
	article := getTestArticle(t, api, articles)

	article.Set("title", "New")
	article.Set("rating", 3)
	err := article.Save(context.Background())
	assert.NoError(t, err)

	captured := mockData["/articles/1"].Requests[0].Request
	assert.Equal(t, captured.Method, "PATCH")
	assert.JSONEqual(t, captured.Payload, `{"data": {
        "type": "articles",
        "id": "1",
        "attributes": {"title": "New"}
    }}`)

	title, _ := article.Get("title")
	assert.Equal(t, title, "New")
	assert.False(t, article.IsDirty())
}

func TestSaveExistingWithoutChangesSkipsRequest(t *testing.T) {
	articles, comments, people := getTestTypes()
	// Any request would fail with "not found"
	api := GetTestConnection(MockData{}, articles, comments, people)
	article := getTestArticle(t, api, articles)

	article.Set("title", "Old")
	err := article.Save(context.Background())
	assert.NoError(t, err)
}

func TestSaveFlushesNewRelated(t *testing.T) {
	articles, comments, people := getTestTypes()
	mockData := MockData{
		"/comments": &MockEndpoint{
			Requests: []MockRequest{{
				Response: MockResponse{
					Text: `{"data": {"type": "comments",
                                     "id": "5",
                                     "attributes": {"body": "First!"}}}`,
				},
			}},
		},
		"/articles/1": &MockEndpoint{
			Requests: []MockRequest{{Response: MockResponse{Text: ""}}},
		},
	}
	api := GetTestConnection(mockData, articles, comments, people)
	article := getTestArticle(t, api, articles)

	comment := api.New(comments)
	comment.Set("body", "First!")
	article.AddRelated("comments", comment)
	err := article.Save(context.Background())
	assert.NoError(t, err)

	assert.JSONEqual(t, mockData["/comments"].Requests[0].Request.Payload,
		`{"data": {"type": "comments", "attributes": {"body": "First!"}}}`)
	assert.JSONEqual(t, mockData["/articles/1"].Requests[0].Request.Payload,
		`{"data": {
            "type": "articles",
            "id": "1",
            "attributes": {},
            "relationships": {
                "comments": {"data": [{"type": "comments", "id": "5"}]}
            }
        }}`)
	assert.Equal(t, comment.Id, "5")
	assert.False(t, article.relationshipsChanged())
}

func TestSaveCyclicRelationships(t *testing.T) {
	articles, comments, people := getTestTypes()
	mockData := MockData{
		"/comments": &MockEndpoint{
			Requests: []MockRequest{{
				Response: MockResponse{
					Text: `{"data": {"type": "comments", "id": "5",
                                     "attributes": {"body": "Hi"}}}`,
				},
			}},
		},
		"/articles/1": &MockEndpoint{
			Requests: []MockRequest{{Response: MockResponse{Text: ""}}},
		},
	}
	api := GetTestConnection(mockData, articles, comments, people)
	article := getTestArticle(t, api, articles)
	article.Set("title", "Changed")

	comment := api.New(comments)
	comment.Set("body", "Hi")
	comment.SetRelated("article", article)
	article.AddRelated("comments", comment)

	err := article.Save(context.Background())
	assert.NoError(t, err)

	// The comment links back to the article, which is not saved twice
	assert.Equal(t, mockData["/articles/1"].Count, 1)
	assert.JSONEqual(t, mockData["/comments"].Requests[0].Request.Payload,
		`{"data": {
            "type": "comments",
            "attributes": {"body": "Hi"},
            "relationships": {
                "article": {"data": {"type": "articles", "id": "1"}}
            }
        }}`)
}

func TestSaveNewWithRelationshipLinkage(t *testing.T) {
	articles, comments, people := getTestTypes()
	mockData := MockData{
		"/comments": &MockEndpoint{
			Requests: []MockRequest{{
				Response: MockResponse{
					Text: `{"data": {
                        "type": "comments",
                        "id": "9",
                        "attributes": {"body": "x"},
                        "relationships": {
                            "article": {"data": {"type": "articles", "id": "1"}}
                        }
                    }}`,
				},
			}},
		},
	}
	api := GetTestConnection(mockData, articles, comments, people)

	comment, err := api.NewWith(comments, PayloadResource{
		Attributes: map[string]interface{}{"body": "x"},
		Relationships: map[string]PayloadRelationship{
			"article": {Data: json.RawMessage(`{"type": "articles", "id": "1"}`)},
		},
	})
	assert.NoError(t, err)
	article := comment.Related("article")[0]
	assert.Equal(t, article.Id, "1")

	err = comment.Save(context.Background())
	assert.NoError(t, err)

	assert.JSONEqual(t, mockData["/comments"].Requests[0].Request.Payload,
		`{"data": {
            "type": "comments",
            "attributes": {"body": "x"},
            "relationships": {
                "article": {"data": {"type": "articles", "id": "1"}}
            }
        }}`)
	assert.Equal(t, comment.Id, "9")
	// The related resource is reused, not replaced
	assert.Equal(t, comment.Related("article")[0], article)
}

func TestSaveIdMismatch(t *testing.T) {
	articles, comments, people := getTestTypes()
	mockData := MockData{
		"/articles/1": &MockEndpoint{
			Requests: []MockRequest{{
				Response: MockResponse{
					Text: `{"data": {"type": "articles", "id": "2",
                                     "attributes": {"title": "New"}}}`,
				},
			}},
		},
	}
	api := GetTestConnection(mockData, articles, comments, people)
	article := getTestArticle(t, api, articles)
	article.Set("title", "New")

	err := article.Save(context.Background())
	var e *MappingError
	assert.True(t, errors.As(err, &e), "expected a mapping error, got %v", err)
	assert.Equal(t, article.Id, "1")
}

func TestSaveTransportError(t *testing.T) {
	articles, comments, people := getTestTypes()
	failure := errors.New("connection reset")
	mockData := MockData{
		"/articles/1": &MockEndpoint{
			Requests: []MockRequest{{Response: MockResponse{Err: failure}}},
		},
	}
	api := GetTestConnection(mockData, articles, comments, people)
	article := getTestArticle(t, api, articles)
	article.Set("title", "New")

	err := article.Save(context.Background())
	assert.True(t, errors.Is(err, failure))
	assert.True(t, article.IsDirty())
}

func TestDelete(t *testing.T) {
	frozen := freezeTime(t)
	articles, comments, people := getTestTypes()
	mockData := MockData{
		"/articles/1": &MockEndpoint{
			Requests: []MockRequest{{Response: MockResponse{Text: ""}}},
		},
	}
	api := GetTestConnection(mockData, articles, comments, people)
	article := getTestArticle(t, api, articles)

	err := article.Delete(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, mockData["/articles/1"].Requests[0].Request.Method, "DELETE")
	assert.True(t, article.DeletedAt != nil && article.DeletedAt.Equal(frozen))
}

func TestDeleteNew(t *testing.T) {
	articles, comments, people := getTestTypes()
	api := GetTestConnection(MockData{}, articles, comments, people)
	err := api.New(articles).Delete(context.Background())
	if err == nil {
		t.Error("Expected error deleting a resource without id")
	}
}

func TestReload(t *testing.T) {
	articles, comments, people := getTestTypes()
	mockData := MockData{
		"/articles/1": &MockEndpoint{
			Requests: []MockRequest{
				{Response: MockResponse{
					Text: `{"data": {"type": "articles", "id": "1",
                                     "attributes": {"title": "Server"}}}`,
				}},
				{Response: MockResponse{Redirect: "https://foo.com/elsewhere"}},
			},
		},
	}
	api := GetTestConnection(mockData, articles, comments, people)
	article := getTestArticle(t, api, articles)
	article.Set("title", "Local")
	article.Set("body", "Local")

	err := article.Reload(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, mockData["/articles/1"].Requests[0].Request.Method, "GET")
	title, _ := article.Get("title")
	assert.Equal(t, title, "Server")
	body, _ := article.Get("body")
	assert.Equal(t, body, nil)
	assert.False(t, article.IsDirty())

	err = article.Reload(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, article.Redirect, "https://foo.com/elsewhere")
}

func TestReloadMappingErrorKeepsState(t *testing.T) {
	articles, comments, people := getTestTypes()
	bodies := []string{
		`{"data": {"type": "people", "id": "1", "attributes": {"name": "Zeus"}}}`,
		`{"data": {"type": "articles", "id": "1", "attributes": {"title": "Server"},
                   "relationships": {"author": {"data": 5}}}}`,
		`{"data": {"type": "articles", "id": "1", "attributes": {"title": "Server"}},
          "included": [{"type": "people", "attributes": {"name": "Zeus"}}]}`,
		`not json`,
	}
	for _, body := range bodies {
		mockData := MockData{
			"/articles/1": &MockEndpoint{
				Requests: []MockRequest{{Response: MockResponse{Text: body}}},
			},
		}
		api := GetTestConnection(mockData, articles, comments, people)
		article := getTestArticle(t, api, articles)
		author := getTestPeople(t, api, people)[0]
		article.SetRelated("author", author)
		article.Set("body", "Local")

		err := article.Reload(context.Background())
		var e *MappingError
		if !errors.As(err, &e) {
			t.Errorf("Reloading from %s returned %v, expected a mapping error",
				body, err)
		}
		title, _ := article.Get("title")
		assert.Equal(t, title, "Old")
		text, _ := article.Get("body")
		assert.Equal(t, text, "Local")
		assert.True(t, article.IsAttributeDirty("body"))
		assert.DeepEqual(t, article.Related("author"), []*Resource{author})
		assert.True(t, article.relationshipsChanged())
	}
}

func getTestArticleWithLinks(t *testing.T, api *Connection, articles *ResourceType) *Resource {
	t.Helper()
	result, err := FromDocument(api, []byte(`{"data": {
        "type": "articles",
        "id": "1",
        "attributes": {"title": "Old"},
        "relationships": {
            "comments": {
                "data": [{"type": "comments", "id": "5"}],
                "links": {
                    "self": "/articles/1/relationships/comments",
                    "related": "/articles/1/comments"
                }
            }
        }
    }}`), articles)
	assert.NoError(t, err)
	return result.Data[0]
}

func TestFetch(t *testing.T) {
	articles, comments, people := getTestTypes()
	mockData := MockData{
		"/articles/1/comments": &MockEndpoint{
			Requests: []MockRequest{{Response: MockResponse{Text: `{
                "data": [
                    {"type": "comments", "id": "5", "attributes": {"body": "First!"}},
                    {"type": "comments", "id": "6", "attributes": {"body": "Second"}}
                ],
                "links": {"next": "/articles/1/comments?page=2"}
            }`}}},
		},
		"/articles/1/author": &MockEndpoint{
			Requests: []MockRequest{{Response: MockResponse{Text: `{
                "data": {"type": "people", "id": "9", "attributes": {"name": "Zeus"}}
            }`}}},
		},
	}
	api := GetTestConnection(mockData, articles, comments, people)
	article := getTestArticleWithLinks(t, api, articles)

	page, err := article.Fetch(context.Background(), "comments")
	assert.NoError(t, err)
	assert.Equal(t, page.Next, "/articles/1/comments?page=2")
	related := article.Related("comments")
	assert.Equal(t, len(related), 2)
	text, _ := related[1].Get("body")
	assert.Equal(t, text, "Second")

	// Without a 'related' link the conventional URI is used
	_, err = article.Fetch(context.Background(), "author")
	assert.NoError(t, err)
	author := article.Related("author")
	assert.Equal(t, len(author), 1)
	name, _ := author[0].Get("name")
	assert.Equal(t, name, "Zeus")
	assert.False(t, article.relationshipsChanged())

	_, err = article.Fetch(context.Background(), "missing")
	assert.True(t, err != nil, "expected an error for an undeclared relationship")
	_, err = api.New(articles).Fetch(context.Background(), "author")
	assert.True(t, err != nil, "expected an error for a new resource")
}

func TestModifyPluralRelationship(t *testing.T) {
	articles, comments, people := getTestTypes()
	mockData := MockData{
		"/articles/1/relationships/comments": &MockEndpoint{
			Requests: []MockRequest{
				{Response: MockResponse{}},
				{Response: MockResponse{}},
				{Response: MockResponse{}},
			},
		},
	}
	api := GetTestConnection(mockData, articles, comments, people)
	article := getTestArticleWithLinks(t, api, articles)
	first := article.Related("comments")[0]
	second := newResource(api, comments)
	second.Id = "7"

	err := article.Add(context.Background(), "comments", second, first)
	assert.NoError(t, err)
	requests := mockData["/articles/1/relationships/comments"].Requests
	assert.Equal(t, requests[0].Request.Method, "POST")
	assert.JSONEqual(t, requests[0].Request.Payload,
		`{"data": [{"type": "comments", "id": "7"},
                   {"type": "comments", "id": "5"}]}`)
	assert.DeepEqual(t, article.Related("comments"), []*Resource{first, second})

	err = article.Remove(context.Background(), "comments", first)
	assert.NoError(t, err)
	assert.Equal(t, requests[1].Request.Method, "DELETE")
	assert.JSONEqual(t, requests[1].Request.Payload,
		`{"data": [{"type": "comments", "id": "5"}]}`)
	assert.DeepEqual(t, article.Related("comments"), []*Resource{second})

	err = article.Reset(context.Background(), "comments")
	assert.NoError(t, err)
	assert.Equal(t, requests[2].Request.Method, "PATCH")
	assert.JSONEqual(t, requests[2].Request.Payload, `{"data": []}`)
	assert.Equal(t, len(article.Related("comments")), 0)
	assert.False(t, article.relationshipsChanged())
}

func TestModifyPluralRelationshipErrors(t *testing.T) {
	articles, comments, people := getTestTypes()
	mockData := MockData{
		"/articles/1/relationships/comments": &MockEndpoint{
			Requests: []MockRequest{
				{Response: MockResponse{Err: &Error{StatusCode: 403}}},
			},
		},
	}
	api := GetTestConnection(mockData, articles, comments, people)
	article := getTestArticleWithLinks(t, api, articles)
	author := getTestPeople(t, api, people)[0]

	err := article.Add(context.Background(), "author", author)
	assert.True(t, err != nil, "expected an error for a singular relationship")
	err = article.Add(context.Background(), "comments", api.New(comments))
	assert.True(t, err != nil, "expected an error for a member without an id")
	err = api.New(articles).Add(context.Background(), "comments")
	assert.True(t, err != nil, "expected an error for a new resource")
	assert.Equal(t, mockData["/articles/1/relationships/comments"].Count, 0)

	// A rejected change leaves the slot as it was
	before := article.Related("comments")
	err = article.Remove(context.Background(), "comments", before[0])
	var e *Error
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, e.StatusCode, 403)
	assert.DeepEqual(t, article.Related("comments"), before)
}

func TestTimestamps(t *testing.T) {
	frozen := freezeTime(t)
	articles, comments, people := getTestTypes()
	api := GetTestConnection(MockData{}, articles, comments, people)
	serverTime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)

	fromServer := newResource(api, articles)
	err := fromServer.initializeFromWire(PayloadResource{
		Type: "articles",
		Id:   "1",
		Attributes: map[string]interface{}{
			"createdAt": "2020-01-02T03:04:05Z",
			"updatedAt": "2020-01-02T03:04:05Z",
		},
	}, true)
	assert.NoError(t, err)
	assert.True(t, fromServer.CreatedAt.Equal(serverTime))
	assert.True(t, fromServer.UpdatedAt.Equal(serverTime))

	withoutId := newResource(api, articles)
	err = withoutId.initializeFromWire(PayloadResource{
		Type:       "articles",
		Attributes: map[string]interface{}{"createdAt": "2020-01-02T03:04:05Z"},
	}, true)
	assert.NoError(t, err)
	assert.True(t, withoutId.CreatedAt.Equal(frozen))

	withoutCreatedAt := newResource(api, articles)
	err = withoutCreatedAt.initializeFromWire(PayloadResource{
		Type: "articles",
		Id:   "2",
	}, true)
	assert.NoError(t, err)
	assert.True(t, withoutCreatedAt.CreatedAt.Equal(frozen))

	local, err := api.NewWith(articles, PayloadResource{
		Id:         "3",
		Attributes: map[string]interface{}{"createdAt": "2020-01-02T03:04:05Z"},
	})
	assert.NoError(t, err)
	assert.True(t, local.CreatedAt.Equal(frozen))
}

func TestMapAttributes(t *testing.T) {
	type ArticleAttributes struct {
		Title  string `json:"title"`
		Body   string `json:"body"`
		Rating int    `json:"rating"`
	}

	articles, comments, people := getTestTypes()
	api := GetTestConnection(MockData{}, articles, comments, people)
	article := getTestArticle(t, api, articles)

	var attributes ArticleAttributes
	err := article.MapAttributes(&attributes)
	assert.NoError(t, err)
	assert.Equal(t, attributes.Title, "Old")
	assert.Equal(t, attributes.Rating, 3)

	attributes.Title = "New"
	err = article.UnmapAttributes(attributes)
	assert.NoError(t, err)
	assert.DeepEqual(t, article.DirtyAttributes(), []string{"title"})
}
