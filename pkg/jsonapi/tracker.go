package jsonapi

type attributeState struct {
	current  interface{}
	original interface{}
	dirty    bool
}

/*
attributeTracker keeps, for every declared attribute of a resource, the value
last confirmed by the server next to the current one. An attribute is dirty
exactly when the two differ structurally.
*/
type attributeTracker struct {
	names  []string
	states map[string]*attributeState
}

func newAttributeTracker(names []string) *attributeTracker {
	tracker := &attributeTracker{
		names:  names,
		states: make(map[string]*attributeState, len(names)),
	}
	for _, name := range names {
		tracker.states[name] = &attributeState{}
	}
	return tracker
}

// write returns false if 'name' is not a tracked attribute
func (t *attributeTracker) write(name string, value interface{}) bool {
	state, exists := t.states[name]
	if !exists {
		return false
	}
	state.current = value
	state.dirty = !valuesEqual(state.current, state.original)
	return true
}

func (t *attributeTracker) markClean(name string, value interface{}) bool {
	state, exists := t.states[name]
	if !exists {
		return false
	}
	state.current = value
	state.original = value
	state.dirty = false
	return true
}

func (t *attributeTracker) markAllClean() {
	for _, state := range t.states {
		state.original = state.current
		state.dirty = false
	}
}

func (t *attributeTracker) get(name string) (interface{}, bool) {
	state, exists := t.states[name]
	if !exists {
		return nil, false
	}
	return state.current, true
}

func (t *attributeTracker) isDirty(name string) bool {
	state, exists := t.states[name]
	return exists && state.dirty
}

func (t *attributeTracker) isAnyDirty() bool {
	for _, state := range t.states {
		if state.dirty {
			return true
		}
	}
	return false
}

func (t *attributeTracker) dirtyNames() []string {
	var result []string
	for _, name := range t.names {
		if t.states[name].dirty {
			result = append(result, name)
		}
	}
	return result
}
