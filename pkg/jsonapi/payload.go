package jsonapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

type Links struct {
	Self    string `json:"self,omitempty"`
	Related string `json:"related,omitempty"`
}

// Used to parse JSON

// Document is a {json:api} top-level document as received from the server.
// 'data' is kept raw until we know whether it is an object or an array.
type Document struct {
	Data     json.RawMessage        `json:"data"`
	Included []PayloadResource      `json:"included,omitempty"`
	Meta     map[string]interface{} `json:"meta,omitempty"`
	Links    PaginationLinks        `json:"links,omitempty"`
}

type PayloadSingular struct {
	Data     PayloadResource   `json:"data"`
	Included []PayloadResource `json:"included,omitempty"`
}

type PayloadPluralWrite struct {
	Data []PayloadResource `json:"data"`
}

type PaginationLinks struct {
	Previous string `json:"prev,omitempty"`
	Next     string `json:"next,omitempty"`
}

// UnmarshalJSON accepts both 'prev' (the {json:api} name) and 'previous',
// as plain strings or as link objects with an 'href'
func (l *PaginationLinks) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}
	l.Next = linkHref(raw["next"])
	l.Previous = linkHref(raw["prev"])
	if l.Previous == "" {
		l.Previous = linkHref(raw["previous"])
	}
	return nil
}

func linkHref(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var href string
	if json.Unmarshal(raw, &href) == nil {
		return href
	}
	var object struct {
		Href string `json:"href"`
	}
	_ = json.Unmarshal(raw, &object)
	return object.Href
}

type PayloadResource struct {
	Type          string                         `json:"type"`
	Id            string                         `json:"id,omitempty"`
	Attributes    map[string]interface{}         `json:"attributes"`
	Relationships map[string]PayloadRelationship `json:"relationships,omitempty"`
	Links         *Links                         `json:"links,omitempty"`
	Meta          map[string]interface{}         `json:"meta,omitempty"`
}

// PayloadRelationship holds the linkage of a relationship. 'data' may be
// null, an identifier or a list of identifiers.
type PayloadRelationship struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Links *Links          `json:"links,omitempty"`
}

type ResourceIdentifier struct {
	Type string `json:"type"`
	Id   string `json:"id"`
}

func (i ResourceIdentifier) key() string {
	return fmt.Sprintf("%s:%s", i.Type, i.Id)
}

/*
linkage decodes the 'data' member of a relationship. 'present' is false when
the server sent no linkage at all (only links, for example), which is
different from an empty one.
*/
func (p PayloadRelationship) linkage() (
	identifiers []ResourceIdentifier, present bool, err error,
) {
	data := bytes.TrimSpace(p.Data)
	if len(data) == 0 {
		return nil, false, nil
	}
	switch data[0] {
	case 'n':
		return nil, true, nil
	case '[':
		err = json.Unmarshal(data, &identifiers)
		if err != nil {
			return nil, true, err
		}
		return identifiers, true, nil
	case '{':
		var identifier ResourceIdentifier
		err = json.Unmarshal(data, &identifier)
		if err != nil {
			return nil, true, err
		}
		return []ResourceIdentifier{identifier}, true, nil
	}
	return nil, true, fmt.Errorf("invalid relationship data %s", string(data))
}

func singularLinkage(identifier *ResourceIdentifier) PayloadRelationship {
	if identifier == nil {
		return PayloadRelationship{Data: json.RawMessage("null")}
	}
	data, _ := json.Marshal(identifier)
	return PayloadRelationship{Data: data}
}

func pluralLinkage(identifiers []ResourceIdentifier) PayloadRelationship {
	if identifiers == nil {
		identifiers = []ResourceIdentifier{}
	}
	data, _ := json.Marshal(identifiers)
	return PayloadRelationship{Data: data}
}

func jsonEqual(leftBytes, rightBytes []byte) (bool, error) {
	var left interface{}
	err := json.Unmarshal(leftBytes, &left)
	if err != nil {
		return false, err
	}

	var right interface{}
	err = json.Unmarshal(rightBytes, &right)
	if err != nil {
		return false, err
	}

	return reflect.DeepEqual(left, right), nil
}

/*
valuesEqual compares two attribute values the way the server would see them:
by their JSON form. This way an int written locally equals the float64 that
came from the wire, and maps or slices compare by content.
*/
func valuesEqual(left, right interface{}) bool {
	leftBytes, err := json.Marshal(left)
	if err != nil {
		return reflect.DeepEqual(left, right)
	}
	rightBytes, err := json.Marshal(right)
	if err != nil {
		return reflect.DeepEqual(left, right)
	}
	equal, err := jsonEqual(leftBytes, rightBytes)
	if err != nil {
		return reflect.DeepEqual(left, right)
	}
	return equal
}
