package jsonapi

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"
)

/*
Connection ties together everything a resource needs to talk to a server: the
base URL of the API, the Transport that issues requests, the Registry used to
resolve related types and a Logger for non-fatal warnings.

There is no package-level default; build one Connection per API and hand it
around.
*/
type Connection struct {
	APIBase   string
	Transport Transport
	Registry  *Registry
	Logger    *zap.Logger
}

func (c *Connection) logger() *zap.Logger {
	if c == nil || c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *Connection) headers() http.Header {
	headers := make(http.Header)
	headers.Set("Content-Type", mediaType)
	headers.Set("Accept", mediaType)
	return headers
}

/*
BuildURI returns the collection endpoint of a resource type, or the item
endpoint when 'id' is not empty:

    {APIBase}/{uri}
    {APIBase}/{uri}/{id}
*/
func (c *Connection) BuildURI(resourceType *ResourceType, id string) string {
	base := strings.TrimRight(c.APIBase, "/")
	result := base + "/" + strings.Trim(resourceType.URI(), "/")
	if id != "" {
		result = result + "/" + url.PathEscape(id)
	}
	return result
}

// resolve turns a link sent by the server (absolute, or relative to the
// API's host) into a URI the transport can use
func (c *Connection) resolve(link string) string {
	base, err := url.Parse(c.APIBase)
	if err != nil || base.Host == "" {
		return link
	}
	reference, err := url.Parse(link)
	if err != nil {
		return link
	}
	return base.ResolveReference(reference).String()
}

/*
New returns a resource that has never been saved. Saving it sends a POST
request with all of its attributes.
*/
func (c *Connection) New(resourceType *ResourceType) *Resource {
	result := newResource(c, resourceType)
	now := nowFunc()
	result.CreatedAt = &now
	return result
}

/*
NewWith is like New but fills in attributes (and relationship linkage) from
user supplied data. The values count as local edits.

    article, err := api.NewWith(articles, jsonapi.PayloadResource{
        Attributes: map[string]interface{}{"title": "Hello"},
    })
*/
func (c *Connection) NewWith(
	resourceType *ResourceType, data PayloadResource,
) (*Resource, error) {
	result := newResource(c, resourceType)
	if data.Type == "" {
		data.Type = resourceType.Name()
	}
	err := result.initializeFromWire(data, false)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// From starts a query on a resource type
func (c *Connection) From(resourceType *ResourceType) *QueryBuilder {
	return &QueryBuilder{api: c, resourceType: resourceType}
}

/*
Get
Returns a Resource instance from the server based on its type and id
*/
func (c *Connection) Get(
	ctx context.Context, resourceType *ResourceType, id string,
) (*Resource, error) {
	return c.From(resourceType).First(ctx, id)
}

/*
List
Returns a Collection instance from the server. Query is a URL encoded set of GET
variables that can be easily generated with QueryBuilder.Render.
*/
func (c *Connection) List(
	ctx context.Context, resourceType *ResourceType, query string,
) (Collection, error) {
	body, err := c.Transport.Get(ctx, c.BuildURI(resourceType, ""), query,
		c.headers())
	if err != nil {
		return Collection{}, err
	}
	return FromDocument(c, body, resourceType)
}

func (c *Connection) listFromPath(
	ctx context.Context, resourceType *ResourceType, path string,
) (Collection, error) {
	body, err := c.Transport.Get(ctx, c.resolve(path), "", c.headers())
	if err != nil {
		return Collection{}, err
	}
	return FromDocument(c, body, resourceType)
}

// typeFor finds the registered type for 'name'. Unknown types get a bare
// descriptor so that their identifiers survive.
func (c *Connection) typeFor(name string) *ResourceType {
	var registry *Registry
	if c != nil {
		registry = c.Registry
	}
	resourceType, exists := registry.Lookup(name)
	if exists {
		return resourceType
	}
	return DefineType(name).Build()
}

// typeForPayload is like typeFor, but an unregistered type declares every
// attribute present in the payload
func (c *Connection) typeForPayload(payload PayloadResource) *ResourceType {
	var registry *Registry
	if c != nil {
		registry = c.Registry
	}
	resourceType, exists := registry.Lookup(payload.Type)
	if exists {
		return resourceType
	}
	c.logger().Debug("type is not registered, declaring attributes from payload",
		zap.String("type", payload.Type))
	names := make([]string, 0, len(payload.Attributes))
	for name := range payload.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return DefineType(payload.Type).Attributes(names...).Build()
}
