package jsonapi

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

type queryParameter struct {
	key   string
	value string
}

/*
QueryBuilder collects the parameters of a read request for one resource type.
Each setter replaces what a previous call of the same setter set.

    page, err := api.From(articles).
        Fields("title", "body").
        Include("comments").
        SortBy("-createdAt").
        Limit(10).
        Page(2).
        Execute(ctx, "")
*/
type QueryBuilder struct {
	api          *Connection
	resourceType *ResourceType

	fields     []string
	sorts      []string
	filters    []string
	includes   []string
	pageSize   int
	pageNumber int

	keyedFilters []queryParameter
	extras       []queryParameter
}

func (q *QueryBuilder) Fields(names ...string) *QueryBuilder {
	q.fields = append([]string(nil), names...)
	return q
}

// SortBy sets the sort fields; a leading '-' means descending
func (q *QueryBuilder) SortBy(names ...string) *QueryBuilder {
	q.sorts = append([]string(nil), names...)
	return q
}

func (q *QueryBuilder) Filters(names ...string) *QueryBuilder {
	q.filters = append([]string(nil), names...)
	return q
}

func (q *QueryBuilder) Include(names ...string) *QueryBuilder {
	q.includes = append([]string(nil), names...)
	return q
}

func (q *QueryBuilder) Limit(size int) *QueryBuilder {
	q.pageSize = size
	return q
}

func (q *QueryBuilder) Page(number int) *QueryBuilder {
	q.pageNumber = number
	return q
}

/*
FilterBy adds a keyed filter. Double underscores in the key nest it, so

    FilterBy("age__gt", "15")

renders as 'filter[age][gt]=15'. Setting the same key again replaces its
value.
*/
func (q *QueryBuilder) FilterBy(key, value string) *QueryBuilder {
	q.keyedFilters = setParameter(q.keyedFilters, key, value)
	return q
}

// Extra adds a raw parameter, rendered after everything else
func (q *QueryBuilder) Extra(key, value string) *QueryBuilder {
	q.extras = setParameter(q.extras, key, value)
	return q
}

func setParameter(
	parameters []queryParameter, key, value string,
) []queryParameter {
	for i := range parameters {
		if parameters[i].key == key {
			parameters[i].value = value
			return parameters
		}
	}
	return append(parameters, queryParameter{key, value})
}

/*
Validate checks the requested names against the resource type: fields,
filters and sort fields must be attributes, includes must be relationships.
Problems are logged as warnings and returned; they never stop the query.
*/
func (q *QueryBuilder) Validate() []string {
	var warnings []string
	attributes := make([]string, 0,
		len(q.fields)+len(q.filters)+len(q.sorts))
	attributes = append(attributes, q.fields...)
	attributes = append(attributes, q.filters...)
	for _, sort := range q.sorts {
		attributes = append(attributes, strings.TrimPrefix(sort, "-"))
	}
	for _, name := range attributes {
		if !q.resourceType.HasAttribute(name) {
			warnings = append(warnings, fmt.Sprintf(
				"the attribute '%s' is not part of resource '%s'",
				name, q.resourceType.Name()))
		}
	}
	for _, filter := range q.keyedFilters {
		name := strings.Split(filter.key, "__")[0]
		if !q.resourceType.HasAttribute(name) &&
			!q.resourceType.HasRelationship(name) {
			warnings = append(warnings, fmt.Sprintf(
				"the filter '%s' is not part of resource '%s'",
				name, q.resourceType.Name()))
		}
	}
	for _, include := range q.includes {
		name := strings.Split(include, ".")[0]
		if !q.resourceType.HasRelationship(name) {
			warnings = append(warnings, fmt.Sprintf(
				"the relationship '%s' is not part of resource '%s'",
				name, q.resourceType.Name()))
		}
	}

	logger := q.api.logger()
	for _, warning := range warnings {
		logger.Warn(warning, zap.String("type", q.resourceType.Name()))
	}
	return warnings
}

/*
Render returns the query string. Clauses appear in a fixed order (page size,
page number, fields, include, filter, sort) and empty ones are left out:

    page[size]=10&page[number]=2&fields=name,age&sort=-age

Keyed filters follow the plain filter clause and extras come last.
*/
func (q *QueryBuilder) Render() string {
	q.Validate()

	var params []string
	if q.pageSize > 0 {
		params = append(params, fmt.Sprintf("page[size]=%d", q.pageSize))
	}
	if q.pageNumber > 0 {
		params = append(params, fmt.Sprintf("page[number]=%d", q.pageNumber))
	}
	if len(q.fields) > 0 {
		params = append(params, "fields="+strings.Join(q.fields, ","))
	}
	if len(q.includes) > 0 {
		params = append(params, "include="+strings.Join(q.includes, ","))
	}
	if len(q.filters) > 0 {
		params = append(params, "filter="+strings.Join(q.filters, ","))
	}
	for _, filter := range q.keyedFilters {
		key := "filter"
		for _, part := range strings.Split(filter.key, "__") {
			key = key + fmt.Sprintf("[%s]", part)
		}
		params = append(params, key+"="+url.QueryEscape(filter.value))
	}
	if len(q.sorts) > 0 {
		params = append(params, "sort="+strings.Join(q.sorts, ","))
	}
	for _, extra := range q.extras {
		params = append(params,
			url.QueryEscape(extra.key)+"="+url.QueryEscape(extra.value))
	}
	return strings.Join(params, "&")
}

/*
Execute fetches the collection endpoint of the resource type, or the item
endpoint if 'id' is not empty, with the rendered query.
*/
func (q *QueryBuilder) Execute(ctx context.Context, id string) (Collection, error) {
	api := q.api
	body, err := api.Transport.Get(ctx, api.BuildURI(q.resourceType, id),
		q.Render(), api.headers())
	if err != nil {
		return Collection{}, err
	}
	return FromDocument(api, body, q.resourceType)
}

// First is like Execute but returns only the first resource, or nil if the
// response had none
func (q *QueryBuilder) First(ctx context.Context, id string) (*Resource, error) {
	result, err := q.Execute(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(result.Data) == 0 {
		return nil, nil
	}
	return result.Data[0], nil
}
