package api

import (
	"errors"
	"testing"
)

func TestAttributeMap_ZeroValueIsUsable(t *testing.T) {
	var m AttributeMap
	if m.Len() != 0 || m.Get("x") != nil || m.Contains("x") {
		t.Fatalf("zero map should be empty")
	}
	if prev := m.Put("x", 1); prev != nil {
		t.Fatalf("Put returned previous %v", prev)
	}
	if prev := m.Put("x", 2); prev != 1 {
		t.Fatalf("Put returned previous %v, want 1", prev)
	}
	if removed := m.Remove("x"); removed != 2 {
		t.Fatalf("Remove returned %v, want 2", removed)
	}
	if m.Len() != 0 {
		t.Fatalf("Len after remove = %d", m.Len())
	}
}

func TestAttributeMap_TypedAccessors(t *testing.T) {
	m := NewAttributeMap(map[string]any{
		"name":  "ada",
		"flag":  "true",
		"real":  true,
		"count": int64(7),
		"str":   "42",
		"bad":   "x",
	})

	if got := m.GetString("name"); got != "ada" {
		t.Fatalf("GetString = %q", got)
	}
	if m.GetString("count") != "" {
		t.Fatalf("GetString on non-string should be empty")
	}
	if !m.GetBool("flag") || !m.GetBool("real") || m.GetBool("missing") {
		t.Fatalf("GetBool conversions wrong")
	}
	if n, ok := m.GetInt("count"); !ok || n != 7 {
		t.Fatalf("GetInt(count) = %d, %v", n, ok)
	}
	if n, ok := m.GetInt("str"); !ok || n != 42 {
		t.Fatalf("GetInt(str) = %d, %v", n, ok)
	}
	if _, ok := m.GetInt("bad"); ok {
		t.Fatalf("GetInt(bad) should fail")
	}
	if _, err := m.GetRequired("missing"); !errors.Is(err, ErrAttributeNotFound) {
		t.Fatalf("GetRequired err = %v", err)
	}
	if v, ok := AttributeAs[int64](m, "count"); !ok || v != 7 {
		t.Fatalf("AttributeAs = %v, %v", v, ok)
	}
}

func TestAttributeMap_KeysSortedAndAsMapCopies(t *testing.T) {
	m := NewAttributeMap(map[string]any{"b": 1, "a": 2, "c": 3})
	keys := m.Keys()
	if len(keys) != 3 || keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Fatalf("Keys = %v", keys)
	}
	cp := m.AsMap()
	cp["a"] = 99
	if m.Get("a") != 2 {
		t.Fatalf("AsMap must return a copy")
	}
	m.Clear()
	if m.Len() != 0 {
		t.Fatalf("Clear left %d attributes", m.Len())
	}
}

func TestUnion_EarlierMapsTakePrecedence(t *testing.T) {
	request := NewAttributeMap(map[string]any{"x": "request"})
	flash := NewAttributeMap(map[string]any{"x": "flash", "y": "flash"})
	flow := NewAttributeMap(map[string]any{"y": "flow", "z": "flow"})
	conversation := NewAttributeMap(map[string]any{"z": "conversation", "w": "conversation"})

	model := Union(request, flash, flow, conversation)

	want := map[string]string{"x": "request", "y": "flash", "z": "flow", "w": "conversation"}
	for k, v := range want {
		if got := model.GetString(k); got != v {
			t.Fatalf("model[%s] = %q, want %q", k, got, v)
		}
	}
	if request.Len() != 1 {
		t.Fatalf("Union must not modify its inputs")
	}
}

func TestScopeType_String(t *testing.T) {
	if ScopeConversation.String() != "conversation" || ScopeType(9).String() != "scope(9)" {
		t.Fatalf("unexpected ScopeType strings")
	}
}
