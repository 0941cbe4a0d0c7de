package jsonapi

import (
	"fmt"
	"sort"
	"sync"
)

// Relationship multiplicities. NULL is the multiplicity of the zero
// RelationshipDescriptor that ResourceType.Relationship returns for names
// that are not declared.
const (
	NULL     = iota
	SINGULAR = iota
	PLURAL   = iota
)

// RelationshipDescriptor describes one declared relationship of a resource
// type. Type is the {json:api} 'type' of the related resources.
type RelationshipDescriptor struct {
	Name         string
	Type         string
	Multiplicity int
}

/*
ResourceType is the static description of a kind of resource: its {json:api}
type, the path segment it lives under and the names of its attributes and
relationships. It is built once with DefineType and never changes afterwards.

    articles := jsonapi.DefineType("articles").
        URI("posts").
        Attributes("title", "body").
        ToOne("author", "people").
        ToMany("comments", "").
        Build()
*/
type ResourceType struct {
	name          string
	uri           string
	attributes    []string
	attributeSet  map[string]struct{}
	relationships []RelationshipDescriptor
	relationMap   map[string]int
	timestamps    timestampKeys
}

type timestampKeys struct {
	created string
	updated string
	deleted string
}

func (t *ResourceType) Name() string {
	return t.name
}

// URI returns the path segment of the type's endpoints
func (t *ResourceType) URI() string {
	if t.uri == "" {
		return t.name
	}
	return t.uri
}

func (t *ResourceType) AttributeNames() []string {
	result := make([]string, len(t.attributes))
	copy(result, t.attributes)
	return result
}

func (t *ResourceType) HasAttribute(name string) bool {
	_, exists := t.attributeSet[name]
	return exists
}

func (t *ResourceType) Relationship(name string) (RelationshipDescriptor, bool) {
	i, exists := t.relationMap[name]
	if !exists {
		return RelationshipDescriptor{}, false
	}
	return t.relationships[i], true
}

func (t *ResourceType) HasRelationship(name string) bool {
	_, exists := t.relationMap[name]
	return exists
}

// Relationships returns the declared relationships in declaration order
func (t *ResourceType) Relationships() []RelationshipDescriptor {
	result := make([]RelationshipDescriptor, len(t.relationships))
	copy(result, t.relationships)
	return result
}

type ResourceTypeBuilder struct {
	result ResourceType
	err    error
}

// DefineType starts the declaration of a resource type. Timestamps are read
// from the "createdAt", "updatedAt" and "deletedAt" keys unless overridden.
func DefineType(name string) *ResourceTypeBuilder {
	builder := &ResourceTypeBuilder{}
	builder.result.name = name
	builder.result.timestamps = timestampKeys{
		created: "createdAt",
		updated: "updatedAt",
		deleted: "deletedAt",
	}
	if name == "" {
		builder.err = fmt.Errorf("resource type needs a name")
	}
	return builder
}

func (b *ResourceTypeBuilder) URI(uri string) *ResourceTypeBuilder {
	b.result.uri = uri
	return b
}

func (b *ResourceTypeBuilder) Attributes(names ...string) *ResourceTypeBuilder {
	for _, name := range names {
		if b.declared(name) {
			b.fail(fmt.Errorf("field '%s' is declared twice on '%s'",
				name, b.result.name))
			continue
		}
		b.result.attributes = append(b.result.attributes, name)
	}
	return b
}

// ToOne declares a singular relationship. An empty relatedType means the
// related resources carry the relationship's name as their type.
func (b *ResourceTypeBuilder) ToOne(name, relatedType string) *ResourceTypeBuilder {
	return b.relationship(name, relatedType, SINGULAR)
}

func (b *ResourceTypeBuilder) ToMany(name, relatedType string) *ResourceTypeBuilder {
	return b.relationship(name, relatedType, PLURAL)
}

// Timestamps overrides the wire keys the resource's timestamps are read
// from. An empty key disables that timestamp.
func (b *ResourceTypeBuilder) Timestamps(created, updated, deleted string) *ResourceTypeBuilder {
	b.result.timestamps = timestampKeys{created, updated, deleted}
	return b
}

func (b *ResourceTypeBuilder) relationship(
	name, relatedType string, multiplicity int,
) *ResourceTypeBuilder {
	if b.declared(name) {
		b.fail(fmt.Errorf("field '%s' is declared twice on '%s'",
			name, b.result.name))
		return b
	}
	if relatedType == "" {
		relatedType = name
	}
	b.result.relationships = append(b.result.relationships,
		RelationshipDescriptor{
			Name:         name,
			Type:         relatedType,
			Multiplicity: multiplicity,
		})
	return b
}

func (b *ResourceTypeBuilder) declared(name string) bool {
	for _, attribute := range b.result.attributes {
		if attribute == name {
			return true
		}
	}
	for _, relationship := range b.result.relationships {
		if relationship.Name == name {
			return true
		}
	}
	return false
}

func (b *ResourceTypeBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

/*
Build returns the finished resource type. Declaration mistakes (an empty name
or a field declared twice) make Build panic, since types are meant to be
defined at startup. Use BuildE to get an error instead.
*/
func (b *ResourceTypeBuilder) Build() *ResourceType {
	result, err := b.BuildE()
	if err != nil {
		panic(err)
	}
	return result
}

func (b *ResourceTypeBuilder) BuildE() (*ResourceType, error) {
	if b.err != nil {
		return nil, b.err
	}
	result := b.result
	result.attributes = append([]string(nil), b.result.attributes...)
	result.relationships = append([]RelationshipDescriptor(nil),
		b.result.relationships...)
	result.attributeSet = make(map[string]struct{}, len(result.attributes))
	for _, name := range result.attributes {
		result.attributeSet[name] = struct{}{}
	}
	result.relationMap = make(map[string]int, len(result.relationships))
	for i, relationship := range result.relationships {
		result.relationMap[relationship.Name] = i
	}
	return &result, nil
}

// Registry resolves {json:api} type names to resource types. Relationship
// targets are looked up lazily, so types may refer to each other in cycles.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*ResourceType
}

func NewRegistry(types ...*ResourceType) (*Registry, error) {
	registry := &Registry{types: make(map[string]*ResourceType)}
	for _, resourceType := range types {
		err := registry.Register(resourceType)
		if err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (r *Registry) Register(resourceType *ResourceType) error {
	if resourceType == nil {
		return fmt.Errorf("cannot register a nil resource type")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.types == nil {
		r.types = make(map[string]*ResourceType)
	}
	if _, exists := r.types[resourceType.name]; exists {
		return fmt.Errorf("resource type '%s' is already registered",
			resourceType.name)
	}
	r.types[resourceType.name] = resourceType
	return nil
}

func (r *Registry) Lookup(name string) (*ResourceType, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	resourceType, exists := r.types[name]
	return resourceType, exists
}

// Names returns the registered type names, sorted
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]string, 0, len(r.types))
	for name := range r.types {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}
