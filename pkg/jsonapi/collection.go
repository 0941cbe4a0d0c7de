package jsonapi

import (
	"context"
	"errors"
)

type Collection struct {
	API      *Connection
	Type     *ResourceType
	Data     []*Resource
	Next     string
	Previous string
	Meta     map[string]interface{}
}

/*
GetNext
Return the next page of the paginated collection as pointed to by the
`.links.next` field in the {json:api} response
*/
func (c *Collection) GetNext(ctx context.Context) (Collection, error) {
	if c.Next == "" {
		return Collection{}, errors.New("no next page")
	}
	return c.API.listFromPath(ctx, c.Type, c.Next)
}

/*
GetPrevious
Return the previous page of the paginated collection as pointed to by the
`.links.prev` field in the {json:api} response
*/
func (c *Collection) GetPrevious(ctx context.Context) (Collection, error) {
	if c.Previous == "" {
		return Collection{}, errors.New("no previous page")
	}
	return c.API.listFromPath(ctx, c.Type, c.Previous)
}

/*
IsDirtyCollection reports whether any of the resources is new or dirty, in
which case they have to be saved before a parent can link to them.
*/
func IsDirtyCollection(resources []*Resource) bool {
	for _, resource := range resources {
		if resource == nil {
			continue
		}
		if resource.IsNew() || resource.IsDirty() {
			return true
		}
	}
	return false
}
