package jsonapi

import (
	"encoding/json"
	"testing"

	"github.com/transifex/jsonapi-client/pkg/assert"
)

func TestJsonEqual(t *testing.T) {
	left := `{
        "aaa": "bbb",
        "ccc": "ddd"
    }`
	// Change formatting and order
	right := `{"ccc": "ddd", "aaa": "bbb"}`

	equal, err := jsonEqual([]byte(left), []byte(right))
	if err != nil {
		t.Error(err)
	}
	if !equal {
		t.Error("JSON appears not equal")
	}
}

func TestPaginationLinks(t *testing.T) {
	testCases := []struct {
		body     string
		previous string
		next     string
	}{
		{`{"prev": "/a?page=1", "next": "/a?page=3"}`, "/a?page=1", "/a?page=3"},
		{`{"previous": "/a?page=1"}`, "/a?page=1", ""},
		{`{"prev": {"href": "/a?page=1"}, "next": {"href": "/a?page=3"}}`,
			"/a?page=1", "/a?page=3"},
		{`{"self": "/a", "next": null}`, "", ""},
	}
	for _, testCase := range testCases {
		var links PaginationLinks
		assert.NoError(t, json.Unmarshal([]byte(testCase.body), &links))
		assert.Equal(t, links.Previous, testCase.previous)
		assert.Equal(t, links.Next, testCase.next)
	}
}

func TestRelationshipLinkage(t *testing.T) {
	testCases := []struct {
		data     string
		expected []ResourceIdentifier
		present  bool
	}{
		{``, nil, false},
		{`null`, nil, true},
		{`{"type": "people", "id": "1"}`,
			[]ResourceIdentifier{{"people", "1"}}, true},
		{`[{"type": "tags", "id": "1"}, {"type": "tags", "id": "2"}]`,
			[]ResourceIdentifier{{"tags", "1"}, {"tags", "2"}}, true},
	}
	for _, testCase := range testCases {
		relationship := PayloadRelationship{Data: json.RawMessage(testCase.data)}
		identifiers, present, err := relationship.linkage()
		assert.NoError(t, err)
		assert.Equal(t, present, testCase.present)
		if len(identifiers) != len(testCase.expected) {
			t.Errorf("Linkage %s gave %v", testCase.data, identifiers)
			continue
		}
		for i := range identifiers {
			assert.Equal(t, identifiers[i], testCase.expected[i])
		}
	}

	_, _, err := PayloadRelationship{Data: json.RawMessage(`"1"`)}.linkage()
	assert.True(t, err != nil, "expected an error for a string linkage")
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, valuesEqual(3, float64(3)))
	assert.True(t, valuesEqual(
		map[string]interface{}{"a": []string{"x"}},
		map[string]interface{}{"a": []interface{}{"x"}},
	))
	assert.False(t, valuesEqual("3", 3))
	assert.False(t, valuesEqual(nil, ""))
}
