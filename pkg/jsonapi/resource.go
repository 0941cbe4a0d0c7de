package jsonapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Overridden in tests
var nowFunc = time.Now

/*
Resource is one {json:api} resource object. Attributes are read with Get and
written with Set; every write is compared against the last value the server
confirmed so that Save only sends what actually changed.

Relationship slots hold references to other resources. The same resource may
appear in several slots and graphs may be cyclic; relationships are only ever
serialized as {type, id} identifiers.

A resource must not be modified while one of its Save calls is in flight.
*/
type Resource struct {
	API       *Connection
	Type      *ResourceType
	Id        string
	CreatedAt *time.Time
	UpdatedAt *time.Time
	DeletedAt *time.Time
	Links     Links
	Meta      map[string]interface{}
	Redirect  string

	attributes    *attributeTracker
	relationships map[string][]*Resource
	// Relationships modified locally since the last sync
	changed map[string]bool
	// Linkage of the last payload, used to match included resources
	linkage map[string][]ResourceIdentifier
	// 'links' of the relationship objects, for Fetch and the relationship
	// endpoints
	relationshipLinks map[string]Links
}

func newResource(api *Connection, resourceType *ResourceType) *Resource {
	return &Resource{
		API:           api,
		Type:          resourceType,
		attributes:    newAttributeTracker(resourceType.attributes),
		relationships: make(map[string][]*Resource),
		changed:       make(map[string]bool),
		linkage:       make(map[string][]ResourceIdentifier),

		relationshipLinks: make(map[string]Links),
	}
}

func (r *Resource) IsNew() bool {
	return r.Id == ""
}

// IsDirty reports whether any attribute differs from its server value
func (r *Resource) IsDirty() bool {
	return r.attributes.isAnyDirty()
}

func (r *Resource) IsAttributeDirty(name string) bool {
	return r.attributes.isDirty(name)
}

// DirtyAttributes returns the names of the dirty attributes in declaration
// order
func (r *Resource) DirtyAttributes() []string {
	return r.attributes.dirtyNames()
}

func (r *Resource) relationshipsChanged() bool {
	return len(r.changed) > 0
}

func (r *Resource) Get(name string) (interface{}, bool) {
	return r.attributes.get(name)
}

/*
Set writes an attribute. Writing to a name that is not declared on the
resource's type is ignored and logged as a warning.
*/
func (r *Resource) Set(name string, value interface{}) {
	if !r.attributes.write(name, value) {
		r.API.logger().Warn("ignoring write to undeclared attribute",
			zap.String("type", r.Type.Name()),
			zap.String("attribute", name))
	}
}

// Attributes returns a snapshot of the current attribute values
func (r *Resource) Attributes() map[string]interface{} {
	result := make(map[string]interface{}, len(r.attributes.names))
	for _, name := range r.attributes.names {
		value, _ := r.attributes.get(name)
		result[name] = value
	}
	return result
}

/*
MarkClean marks the resource as persisted: every attribute's current value
becomes its server value and pending relationship changes are forgotten.
*/
func (r *Resource) MarkClean() {
	r.attributes.markAllClean()
	r.changed = make(map[string]bool)
}

func (r *Resource) Related(name string) []*Resource {
	members := r.relationships[name]
	result := make([]*Resource, len(members))
	copy(result, members)
	return result
}

/*
SetRelated replaces the members of a relationship. Singular relationships keep
only the last item. The relationship will be sent on the next Save.

    comment.SetRelated("article", article)
    err := comment.Save(ctx)
*/
func (r *Resource) SetRelated(name string, items ...*Resource) {
	relationship, exists := r.Type.Relationship(name)
	if !exists {
		r.warnRelationship(name)
		return
	}
	members := make([]*Resource, 0, len(items))
	for _, item := range items {
		if item != nil {
			members = append(members, item)
		}
	}
	if relationship.Multiplicity == SINGULAR && len(members) > 1 {
		members = members[len(members)-1:]
	}
	r.relationships[name] = members
	r.changed[name] = true
}

// AddRelated appends to a plural relationship, skipping items already in it
func (r *Resource) AddRelated(name string, items ...*Resource) {
	relationship, exists := r.Type.Relationship(name)
	if !exists {
		r.warnRelationship(name)
		return
	}
	if relationship.Multiplicity == SINGULAR {
		r.SetRelated(name, items...)
		return
	}
	for _, item := range items {
		if item == nil || r.contains(name, item) {
			continue
		}
		r.relationships[name] = append(r.relationships[name], item)
	}
	r.changed[name] = true
}

func (r *Resource) contains(name string, item *Resource) bool {
	for _, member := range r.relationships[name] {
		if member == item {
			return true
		}
	}
	return false
}

// attach puts a resource received from the server into a relationship slot,
// replacing the member with the same identity if there is one
func (r *Resource) attach(relationship RelationshipDescriptor, item *Resource) {
	if relationship.Multiplicity == SINGULAR {
		r.relationships[relationship.Name] = []*Resource{item}
		return
	}
	members := r.relationships[relationship.Name]
	for i, member := range members {
		if member == item {
			return
		}
		if member.Id != "" && member.Id == item.Id &&
			member.Type.Name() == item.Type.Name() {
			members[i] = item
			return
		}
	}
	r.relationships[relationship.Name] = append(members, item)
}

func (r *Resource) warnRelationship(name string) {
	r.API.logger().Warn("ignoring undeclared relationship",
		zap.String("type", r.Type.Name()),
		zap.String("relationship", name))
}

func (r *Resource) identifier() ResourceIdentifier {
	return ResourceIdentifier{Type: r.Type.Name(), Id: r.Id}
}

/*
initializeFromWire copies a resource object into the resource. When 'trusted'
is true the payload is a server response and every attribute it carries is
marked clean; otherwise the values count as local edits.
*/
func (r *Resource) initializeFromWire(payload PayloadResource, trusted bool) error {
	if payload.Type == "" {
		return &MappingError{Id: payload.Id, Reason: "resource object has no type"}
	}
	if payload.Type != r.Type.Name() {
		return &MappingError{
			Type: payload.Type,
			Id:   payload.Id,
			Reason: fmt.Sprintf("expected a resource of type '%s'",
				r.Type.Name()),
		}
	}
	if r.Id != "" && payload.Id != "" && payload.Id != r.Id {
		return &MappingError{
			Type:   payload.Type,
			Id:     payload.Id,
			Reason: fmt.Sprintf("resource already has id '%s'", r.Id),
		}
	}

	linkage := make(map[string][]ResourceIdentifier)
	relationshipLinks := make(map[string]Links)
	for name, relationshipPayload := range payload.Relationships {
		if !r.Type.HasRelationship(name) {
			continue
		}
		if relationshipPayload.Links != nil {
			relationshipLinks[name] = *relationshipPayload.Links
		}
		identifiers, present, err := relationshipPayload.linkage()
		if err != nil {
			return &MappingError{Type: payload.Type, Id: payload.Id, Err: err}
		}
		for _, identifier := range identifiers {
			if identifier.Type == "" || identifier.Id == "" {
				return &MappingError{
					Type: payload.Type,
					Id:   payload.Id,
					Reason: fmt.Sprintf(
						"relationship '%s' has an incomplete identifier", name,
					),
				}
			}
		}
		if present {
			linkage[name] = identifiers
		}
	}

	if r.Id == "" {
		r.Id = payload.Id
	}

	for name, value := range payload.Attributes {
		if trusted {
			r.attributes.markClean(name, value)
		} else {
			r.attributes.write(name, value)
		}
	}

	r.setTimestamps(payload, trusted)

	if payload.Links != nil {
		r.Links = *payload.Links
	}
	if payload.Meta != nil {
		r.Meta = payload.Meta
	}

	for name, links := range relationshipLinks {
		r.relationshipLinks[name] = links
	}
	for name, identifiers := range linkage {
		r.linkage[name] = identifiers
		r.relationships[name] = r.stubs(name, identifiers)
		if trusted {
			delete(r.changed, name)
		} else {
			r.changed[name] = true
		}
	}

	return nil
}

// stubs returns identifier-only resources for a relationship's linkage,
// reusing members the slot already holds
func (r *Resource) stubs(name string, identifiers []ResourceIdentifier) []*Resource {
	existing := make(map[string]*Resource)
	for _, member := range r.relationships[name] {
		if member.Id != "" {
			existing[member.identifier().key()] = member
		}
	}
	result := make([]*Resource, 0, len(identifiers))
	for _, identifier := range identifiers {
		member, exists := existing[identifier.key()]
		if !exists {
			member = newResource(r.API, r.API.typeFor(identifier.Type))
			member.Id = identifier.Id
		}
		result = append(result, member)
	}
	return result
}

/*
setTimestamps applies the resource's timestamps. A creation time is only
accepted when the server sends it together with an id; any other resource
gets a local creation time instead.
*/
func (r *Resource) setTimestamps(payload PayloadResource, trusted bool) {
	keys := r.Type.timestamps
	created, hasCreated := r.parseTimestamp(payload, keys.created)
	if trusted && hasCreated && payload.Id != "" {
		r.CreatedAt = created
	} else if r.CreatedAt == nil {
		now := nowFunc()
		r.CreatedAt = &now
	}
	if updated, exists := r.parseTimestamp(payload, keys.updated); exists {
		r.UpdatedAt = updated
	}
	if deleted, exists := r.parseTimestamp(payload, keys.deleted); exists {
		r.DeletedAt = deleted
	}
}

func (r *Resource) parseTimestamp(
	payload PayloadResource, key string,
) (*time.Time, bool) {
	if key == "" {
		return nil, false
	}
	value, exists := payload.Attributes[key]
	if !exists || value == nil {
		return nil, false
	}
	text, ok := value.(string)
	if !ok {
		r.API.logger().Warn("timestamp is not a string",
			zap.String("type", r.Type.Name()),
			zap.String("attribute", key))
		return nil, false
	}
	parsed, err := time.Parse(time.RFC3339Nano, text)
	if err != nil {
		r.API.logger().Warn("could not parse timestamp",
			zap.String("type", r.Type.Name()),
			zap.String("attribute", key),
			zap.Error(err))
		return nil, false
	}
	return &parsed, true
}

// ToDocument serializes the resource, see the package level ToDocument
func (r *Resource) ToDocument(relationships []string, dirtyOnly bool) PayloadSingular {
	return ToDocument(r, relationships, dirtyOnly)
}

/*
Save the resource on the server. If there is no Id, a POST request with every
attribute is sent; otherwise a PATCH request with the dirty attributes only.
An existing resource with nothing to send is not saved at all.

The relationships sent are the ones named in 'relationships', the ones
modified with SetRelated/AddRelated since the last sync and, for new
resources, every non-empty one. Related resources that are new or dirty are
saved first so that they can be linked.

On success the resource is synchronized with the server's response and is
clean. Saving a resource after it was deleted is not supported.
*/
func (r *Resource) Save(ctx context.Context, relationships ...string) error {
	return r.save(ctx, relationships, map[*Resource]bool{})
}

// save with a nil 'visited' does not save related resources
func (r *Resource) save(
	ctx context.Context, relationships []string, visited map[*Resource]bool,
) error {
	names := r.relationshipsToSend(relationships)

	if visited != nil {
		visited[r] = true
		for _, name := range names {
			members := r.relationships[name]
			if !IsDirtyCollection(members) {
				continue
			}
			for _, member := range members {
				if visited[member] || !(member.IsNew() || member.IsDirty()) {
					continue
				}
				err := member.save(ctx, nil, visited)
				if err != nil {
					return fmt.Errorf("could not save related '%s': %w",
						name, err)
				}
			}
		}
	}

	if !r.IsNew() && !r.IsDirty() && len(names) == 0 {
		r.API.logger().Debug("nothing to save",
			zap.String("type", r.Type.Name()), zap.String("id", r.Id))
		return nil
	}

	isNew := r.IsNew()
	payload := ToDocument(r, names, !isNew)
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	api := r.API
	var response []byte
	if isNew {
		response, err = api.Transport.Post(ctx, api.BuildURI(r.Type, ""),
			body, api.headers())
	} else {
		response, err = api.Transport.Patch(ctx, api.BuildURI(r.Type, r.Id),
			body, api.headers())
	}
	if err != nil {
		return err
	}

	err = r.overwrite(response)
	if err != nil {
		return err
	}
	if isNew && r.IsNew() {
		return &MappingError{
			Type:   r.Type.Name(),
			Reason: "server did not assign an id to the new resource",
		}
	}
	r.MarkClean()
	return nil
}

func (r *Resource) relationshipsToSend(requested []string) []string {
	wanted := make(map[string]bool)
	for _, name := range requested {
		wanted[name] = true
	}
	for name := range r.changed {
		wanted[name] = true
	}
	var result []string
	for _, relationship := range r.Type.relationships {
		name := relationship.Name
		if wanted[name] || (r.IsNew() && len(r.relationships[name]) > 0) {
			result = append(result, name)
			delete(wanted, name)
		}
	}
	// Let ToDocument warn about the rest
	for _, name := range requested {
		if wanted[name] {
			result = append(result, name)
			delete(wanted, name)
		}
	}
	return result
}

/*
Delete a resource from the server. On success DeletedAt is set; the resource
should not be saved again.
*/
func (r *Resource) Delete(ctx context.Context) error {
	if r.IsNew() {
		return errors.New("cannot delete a resource that has no id")
	}
	url := r.Links.Self
	if url == "" {
		url = r.API.BuildURI(r.Type, r.Id)
	} else {
		url = r.API.resolve(url)
	}
	_, err := r.API.Transport.Delete(ctx, url, nil, r.API.headers())
	if err != nil {
		return err
	}
	now := nowFunc()
	r.DeletedAt = &now
	return nil
}

/*
Reload replaces the resource's state with the server's, discarding local
edits. The response is applied to a copy first, so a response that cannot be
mapped leaves the resource untouched.
*/
func (r *Resource) Reload(ctx context.Context) error {
	if r.IsNew() {
		return errors.New("cannot reload a resource that has no id")
	}
	url := r.Links.Self
	if url == "" {
		url = r.API.BuildURI(r.Type, r.Id)
	} else {
		url = r.API.resolve(url)
	}
	body, err := r.API.Transport.Get(ctx, url, "", r.API.headers())
	if err != nil {
		var e *RedirectError
		if errors.As(err, &e) {
			r.Redirect = e.Location
			return nil
		}
		return err
	}

	fresh := r.emptyCopy()
	err = fresh.overwrite(body)
	if err != nil {
		return err
	}
	r.attributes = fresh.attributes
	r.relationships = fresh.relationships
	r.linkage = fresh.linkage
	r.relationshipLinks = fresh.relationshipLinks
	r.CreatedAt = fresh.CreatedAt
	r.UpdatedAt = fresh.UpdatedAt
	r.DeletedAt = fresh.DeletedAt
	r.Links = fresh.Links
	r.Meta = fresh.Meta
	r.MarkClean()
	return nil
}

// emptyCopy returns a resource with the same identity, timestamps and
// relationships as r but no attribute values. Slots are copied so that
// syncing the copy never modifies r.
func (r *Resource) emptyCopy() *Resource {
	result := newResource(r.API, r.Type)
	result.Id = r.Id
	result.CreatedAt = r.CreatedAt
	result.UpdatedAt = r.UpdatedAt
	result.DeletedAt = r.DeletedAt
	result.Links = r.Links
	result.Meta = r.Meta
	for name, members := range r.relationships {
		result.relationships[name] = append([]*Resource(nil), members...)
	}
	for name, identifiers := range r.linkage {
		result.linkage[name] = identifiers
	}
	for name, links := range r.relationshipLinks {
		result.relationshipLinks[name] = links
	}
	return result
}

/*
Fetch loads the members of a relationship from the server, following the
relationship's 'related' link or, without one, {item URI}/{name}. The
relationship's slot is replaced by what the server returned and the page is
returned, so that plural relationships can be paginated with GetNext.
*/
func (r *Resource) Fetch(ctx context.Context, name string) (Collection, error) {
	relationship, exists := r.Type.Relationship(name)
	if !exists {
		return Collection{}, fmt.Errorf("relationship '%s' does not exist on '%s'",
			name, r.Type.Name())
	}
	url := r.relationshipLinks[name].Related
	if url == "" {
		if r.IsNew() {
			return Collection{}, errors.New(
				"cannot fetch a relationship of a resource that has no id",
			)
		}
		url = r.API.BuildURI(r.Type, r.Id) + "/" + name
	}
	page, err := r.API.listFromPath(ctx, r.API.typeFor(relationship.Type), url)
	if err != nil {
		return page, err
	}

	members := page.Data
	if relationship.Multiplicity == SINGULAR && len(members) > 1 {
		members = members[len(members)-1:]
	}
	r.relationships[name] = append([]*Resource(nil), members...)
	r.syncLinkage(name)
	return page, nil
}

/*
Add appends members to a plural relationship through the relationship
endpoint (POST {item URI}/relationships/{name} unless the server sent a
'self' link for it). Remove and Reset do the same with DELETE and PATCH. The
local slot is updated once the server accepts the change.

    err := article.Add(ctx, "tags", fiction, fantasy)
*/
func (r *Resource) Add(ctx context.Context, name string, items ...*Resource) error {
	return r.modifyRelationship(ctx, http.MethodPost, name, items)
}

func (r *Resource) Remove(ctx context.Context, name string, items ...*Resource) error {
	return r.modifyRelationship(ctx, http.MethodDelete, name, items)
}

func (r *Resource) Reset(ctx context.Context, name string, items ...*Resource) error {
	return r.modifyRelationship(ctx, http.MethodPatch, name, items)
}

func (r *Resource) modifyRelationship(
	ctx context.Context, method, name string, items []*Resource,
) error {
	relationship, exists := r.Type.Relationship(name)
	if !exists {
		return fmt.Errorf("relationship '%s' does not exist on '%s'",
			name, r.Type.Name())
	}
	if relationship.Multiplicity != PLURAL {
		return fmt.Errorf("cannot modify the singular relationship '%s'", name)
	}
	if r.IsNew() {
		return errors.New("cannot modify a relationship of a resource that has no id")
	}

	identifiers := make([]ResourceIdentifier, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		if item.IsNew() {
			return fmt.Errorf("cannot link a resource without an id to '%s'", name)
		}
		identifiers = append(identifiers, item.identifier())
	}
	body, err := json.Marshal(pluralLinkage(identifiers))
	if err != nil {
		return err
	}

	url := r.relationshipLinks[name].Self
	if url == "" {
		url = r.API.BuildURI(r.Type, r.Id) + "/relationships/" + name
	} else {
		url = r.API.resolve(url)
	}
	api := r.API
	switch method {
	case http.MethodPost:
		_, err = api.Transport.Post(ctx, url, body, api.headers())
	case http.MethodDelete:
		_, err = api.Transport.Delete(ctx, url, body, api.headers())
	default:
		_, err = api.Transport.Patch(ctx, url, body, api.headers())
	}
	if err != nil {
		return err
	}

	switch method {
	case http.MethodPost:
		for _, item := range items {
			if item != nil && !r.containsIdentity(name, item) {
				r.relationships[name] = append(r.relationships[name], item)
			}
		}
	case http.MethodDelete:
		kept := make([]*Resource, 0, len(r.relationships[name]))
		removed := make(map[string]bool, len(identifiers))
		for _, identifier := range identifiers {
			removed[identifier.key()] = true
		}
		for _, member := range r.relationships[name] {
			if member.IsNew() || !removed[member.identifier().key()] {
				kept = append(kept, member)
			}
		}
		r.relationships[name] = kept
	default:
		members := make([]*Resource, 0, len(items))
		for _, item := range items {
			if item != nil {
				members = append(members, item)
			}
		}
		r.relationships[name] = members
	}
	r.syncLinkage(name)
	return nil
}

func (r *Resource) containsIdentity(name string, item *Resource) bool {
	for _, member := range r.relationships[name] {
		if member == item || (!member.IsNew() &&
			member.identifier().key() == item.identifier().key()) {
			return true
		}
	}
	return false
}

// syncLinkage records a relationship's slot as what the server holds
func (r *Resource) syncLinkage(name string) {
	identifiers := make([]ResourceIdentifier, 0, len(r.relationships[name]))
	for _, member := range r.relationships[name] {
		if !member.IsNew() {
			identifiers = append(identifiers, member.identifier())
		}
	}
	r.linkage[name] = identifiers
	delete(r.changed, name)
}

// overwrite synchronizes the resource with a single-resource response body.
// An empty body (204 No Content) leaves it as is.
func (r *Resource) overwrite(body []byte) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var response Document
	err := json.Unmarshal(body, &response)
	if err != nil {
		return &MappingError{Type: r.Type.Name(), Id: r.Id, Err: err}
	}
	data := bytes.TrimSpace(response.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] != '{' {
		return &MappingError{
			Type:   r.Type.Name(),
			Id:     r.Id,
			Reason: "expected a single resource object",
		}
	}
	var payload PayloadResource
	err = json.Unmarshal(data, &payload)
	if err != nil {
		return &MappingError{Type: r.Type.Name(), Id: r.Id, Err: err}
	}
	err = r.initializeFromWire(payload, true)
	if err != nil {
		return err
	}
	if len(response.Included) > 0 {
		return LinkIncluded(r, response.Included)
	}
	return nil
}

/*
MapAttributes Map a resource's attributes to a struct. Usage:

    type ArticleAttributes struct {
        Title string `json:"title"`
        ...
    }

    article, _ := api.Get(ctx, articles, "1")
    var attributes ArticleAttributes
    article.MapAttributes(&attributes)

    fmt.Println(attributes.Title)
*/
func (r *Resource) MapAttributes(result interface{}) error {
	data, err := json.Marshal(r.Attributes())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, result)
}

/*
UnmapAttributes Unmap a struct to a resource's attributes (possibly before
calling 'Save'). Only fields whose JSON names are declared attributes are
copied; each one goes through Set, so only real changes become dirty.
*/
func (r *Resource) UnmapAttributes(source interface{}) error {
	data, err := json.Marshal(source)
	if err != nil {
		return err
	}
	var values map[string]interface{}
	err = json.Unmarshal(data, &values)
	if err != nil {
		return err
	}
	for _, name := range r.attributes.names {
		value, exists := values[name]
		if exists {
			r.attributes.write(name, value)
		}
	}
	return nil
}
