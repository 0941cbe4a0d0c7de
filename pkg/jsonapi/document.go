package jsonapi

import (
	"bytes"
	"encoding/json"

	"go.uber.org/zap"
)

/*
ToDocument serializes a resource into a {json:api} document:

    {"data": {"type": ..., "id": ..., "attributes": {...}, "relationships": {...}}}

'id' is only present if the resource has one. With 'dirtyOnly' the
attributes are limited to the dirty ones (for updates), otherwise every
declared attribute is sent (for creation). Only relationships named in
'relationships' and declared on the type are included, as {type, id}
identifiers; names that are not declared are logged and skipped.
*/
func ToDocument(r *Resource, relationships []string, dirtyOnly bool) PayloadSingular {
	data := PayloadResource{
		Type:       r.Type.Name(),
		Id:         r.Id,
		Attributes: make(map[string]interface{}),
	}

	for _, name := range r.attributes.names {
		if dirtyOnly && !r.attributes.isDirty(name) {
			continue
		}
		value, _ := r.attributes.get(name)
		data.Attributes[name] = value
	}

	seen := make(map[string]bool)
	for _, name := range relationships {
		if seen[name] {
			continue
		}
		seen[name] = true
		relationship, exists := r.Type.Relationship(name)
		if !exists {
			r.warnRelationship(name)
			continue
		}
		identifiers := make([]ResourceIdentifier, 0,
			len(r.relationships[name]))
		for _, member := range r.relationships[name] {
			if member.IsNew() {
				r.API.logger().Warn("cannot link a resource without an id",
					zap.String("type", r.Type.Name()),
					zap.String("relationship", name))
				continue
			}
			identifiers = append(identifiers, member.identifier())
		}
		if data.Relationships == nil {
			data.Relationships = make(map[string]PayloadRelationship)
		}
		if relationship.Multiplicity == SINGULAR {
			var identifier *ResourceIdentifier
			if len(identifiers) > 0 {
				identifier = &identifiers[0]
			}
			data.Relationships[name] = singularLinkage(identifier)
		} else {
			data.Relationships[name] = pluralLinkage(identifiers)
		}
	}

	return PayloadSingular{Data: data}
}

/*
FromDocument parses a response body into resources of 'resourceType'. An
array in 'data' yields one resource per element and a single object yields
one resource. Every attribute is clean afterwards. Resources in 'included'
are attached to the relationships that refer to them.
*/
func FromDocument(
	api *Connection, body []byte, resourceType *ResourceType,
) (Collection, error) {
	result := Collection{API: api, Type: resourceType}

	var document Document
	err := json.Unmarshal(body, &document)
	if err != nil {
		return result, &MappingError{Type: resourceType.Name(), Err: err}
	}
	result.Meta = document.Meta
	result.Next = document.Links.Next
	result.Previous = document.Links.Previous

	var payloads []PayloadResource
	data := bytes.TrimSpace(document.Data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		payloads = nil
	case data[0] == '[':
		err = json.Unmarshal(data, &payloads)
	default:
		var payload PayloadResource
		err = json.Unmarshal(data, &payload)
		payloads = []PayloadResource{payload}
	}
	if err != nil {
		return result, &MappingError{Type: resourceType.Name(), Err: err}
	}

	result.Data = make([]*Resource, 0, len(payloads))
	for _, payload := range payloads {
		resource := newResource(api, resourceType)
		err := resource.initializeFromWire(payload, true)
		if err != nil {
			return result, err
		}
		result.Data = append(result.Data, resource)
	}

	if len(document.Included) > 0 {
		index := newIncludedIndex()
		for _, resource := range result.Data {
			index.add(resource)
		}
		err = index.load(api, document.Included)
		if err != nil {
			return result, err
		}
		// Without linkage, matching by type only makes sense for a single
		// primary resource
		fallback := len(result.Data) == 1
		for _, resource := range result.Data {
			index.link(resource, fallback)
		}
		index.linkIncluded()
	}

	return result, nil
}

/*
LinkIncluded builds resources out of a response's 'included' array and
attaches them to the resource's relationships.

When the resource's last payload carried linkage for a relationship, only the
included resources named by it are attached. Otherwise an included resource
is attached to every relationship whose type matches its own. Included
resources are linked to each other through their linkage only.
*/
func LinkIncluded(r *Resource, included []PayloadResource) error {
	index := newIncludedIndex()
	index.add(r)
	err := index.load(r.API, included)
	if err != nil {
		return err
	}
	index.link(r, true)
	index.linkIncluded()
	return nil
}

// includedIndex is the identity map of a single document: one resource per
// type and id
type includedIndex struct {
	byKey    map[string]*Resource
	included []*Resource
}

func newIncludedIndex() *includedIndex {
	return &includedIndex{byKey: make(map[string]*Resource)}
}

func (index *includedIndex) add(r *Resource) {
	if r.Id == "" {
		return
	}
	index.byKey[r.identifier().key()] = r
}

func (index *includedIndex) load(api *Connection, included []PayloadResource) error {
	for _, payload := range included {
		if payload.Type == "" {
			return &MappingError{
				Id:     payload.Id,
				Reason: "included resource object has no type",
			}
		}
		if payload.Id == "" {
			return &MappingError{
				Type:   payload.Type,
				Reason: "included resource object has no id",
			}
		}
		key := ResourceIdentifier{Type: payload.Type, Id: payload.Id}.key()
		resource, exists := index.byKey[key]
		if !exists {
			resource = newResource(api, api.typeForPayload(payload))
		}
		err := resource.initializeFromWire(payload, true)
		if err != nil {
			return err
		}
		index.byKey[key] = resource
		index.included = append(index.included, resource)
	}
	return nil
}

func (index *includedIndex) link(r *Resource, matchByType bool) {
	for _, relationship := range r.Type.relationships {
		identifiers, hasLinkage := r.linkage[relationship.Name]
		if hasLinkage {
			for _, identifier := range identifiers {
				member, exists := index.byKey[identifier.key()]
				if exists {
					r.attach(relationship, member)
				}
			}
			continue
		}
		if !matchByType {
			continue
		}
		for _, member := range index.included {
			if member != r && member.Type.Name() == relationship.Type {
				r.attach(relationship, member)
			}
		}
	}
}

func (index *includedIndex) linkIncluded() {
	for _, resource := range index.included {
		index.link(resource, false)
	}
}
