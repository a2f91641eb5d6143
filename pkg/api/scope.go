package api

import (
	"encoding/gob"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

func init() {
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register(CapturedError{})
}

// ScopeType selects one of the four attribute scopes of an executing flow.
type ScopeType int

const (
	// ScopeRequest lives for exactly one engine call.
	ScopeRequest ScopeType = iota
	// ScopeFlash survives until the next event is signaled.
	ScopeFlash
	// ScopeFlow lives as long as the owning flow session.
	ScopeFlow
	// ScopeConversation lives as long as the whole flow execution.
	ScopeConversation
)

func (s ScopeType) String() string {
	switch s {
	case ScopeRequest:
		return "request"
	case ScopeFlash:
		return "flash"
	case ScopeFlow:
		return "flow"
	case ScopeConversation:
		return "conversation"
	default:
		return "scope(" + strconv.Itoa(int(s)) + ")"
	}
}

// AttributeMap is a mutable string-keyed attribute store. The zero value
// is ready to use. It is not safe for concurrent use; the engine only
// mutates it from the goroutine driving the request.
type AttributeMap struct {
	values map[string]any
}

// NewAttributeMap returns a map holding a copy of values.
func NewAttributeMap(values map[string]any) *AttributeMap {
	m := &AttributeMap{}
	for k, v := range values {
		m.Put(k, v)
	}
	return m
}

// Get returns the value stored under key, or nil.
func (m *AttributeMap) Get(key string) any {
	if m == nil {
		return nil
	}
	return m.values[key]
}

// Lookup returns the value stored under key and whether it was present.
func (m *AttributeMap) Lookup(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Contains reports whether key is present.
func (m *AttributeMap) Contains(key string) bool {
	_, ok := m.Lookup(key)
	return ok
}

// GetRequired returns the value under key or an error if it is absent.
func (m *AttributeMap) GetRequired(key string) (any, error) {
	v, ok := m.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAttributeNotFound, key)
	}
	return v, nil
}

// GetString returns the string under key, or "" if absent or not a string.
func (m *AttributeMap) GetString(key string) string {
	s, _ := AttributeAs[string](m, key)
	return s
}

// GetBool returns the bool under key. String values "true"/"false" are
// converted.
func (m *AttributeMap) GetBool(key string) bool {
	switch v := m.Get(key).(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

// GetInt returns the integer under key, converting from other integer
// kinds and decimal strings. The second result is false if no integer
// could be produced.
func (m *AttributeMap) GetInt(key string) (int, bool) {
	switch v := m.Get(key).(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	default:
		return 0, false
	}
}

// Put stores value under key and returns the previous value.
func (m *AttributeMap) Put(key string, value any) any {
	if m.values == nil {
		m.values = make(map[string]any)
	}
	prev := m.values[key]
	m.values[key] = value
	return prev
}

// PutAll copies every attribute of other into m.
func (m *AttributeMap) PutAll(other *AttributeMap) {
	if other == nil {
		return
	}
	for k, v := range other.values {
		m.Put(k, v)
	}
}

// Remove deletes key and returns the removed value.
func (m *AttributeMap) Remove(key string) any {
	if m == nil || m.values == nil {
		return nil
	}
	prev := m.values[key]
	delete(m.values, key)
	return prev
}

// Clear removes every attribute.
func (m *AttributeMap) Clear() {
	if m == nil {
		return
	}
	m.values = nil
}

// Len returns the number of attributes.
func (m *AttributeMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.values)
}

// Keys returns the attribute names in sorted order.
func (m *AttributeMap) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AsMap returns a shallow copy of the attributes.
func (m *AttributeMap) AsMap() map[string]any {
	out := make(map[string]any, m.Len())
	if m == nil {
		return out
	}
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

func (m *AttributeMap) String() string {
	return fmt.Sprintf("%v", m.AsMap())
}

// AttributeAs returns the value under key converted to T.
func AttributeAs[T any](m *AttributeMap, key string) (T, bool) {
	v, ok := m.Get(key).(T)
	return v, ok
}

// Union composes maps into a new map. Earlier maps take precedence over
// later ones, so Union(request, flash, flow, conversation) yields the
// model view of a request.
func Union(maps ...*AttributeMap) *AttributeMap {
	out := &AttributeMap{}
	for i := len(maps) - 1; i >= 0; i-- {
		out.PutAll(maps[i])
	}
	return out
}

// SharedAttributeMap is an AttributeMap that may be reached by several
// requests at once, such as a user session map. Callers serialize access
// with the map's mutex.
type SharedAttributeMap struct {
	AttributeMap
	mu sync.Mutex
}

// NewSharedAttributeMap returns an empty shared map.
func NewSharedAttributeMap() *SharedAttributeMap {
	return &SharedAttributeMap{}
}

// Mutex returns the mutex guarding compound operations on the map.
func (m *SharedAttributeMap) Mutex() *sync.Mutex {
	return &m.mu
}
