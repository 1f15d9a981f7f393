// Package docpath implements the field path semantics shared by the
// DocumentStore implementations.
package docpath

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Collection returns the first segment of a document path.
func Collection(path string) string {
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}

// Valid reports whether path has the form "collection/id".
func Valid(path string) bool {
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}

// Normalize round trips v through encoding/json so that stored values have
// the same shape whatever backend holds them (times become strings, structs
// become maps, ints become float64).
func Normalize(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}

// Apply writes every field path of partial into doc.
func Apply(doc, partial map[string]any) {
	for field, v := range partial {
		set(doc, strings.Split(field, "."), v)
	}
}

func set(doc map[string]any, segs []string, v any) {
	if len(segs) == 1 {
		doc[segs[0]] = v
		return
	}
	child, ok := doc[segs[0]].(map[string]any)
	if !ok {
		child = map[string]any{}
		doc[segs[0]] = child
	}
	set(child, segs[1:], v)
}

// Lookup returns the value at a dotted field path.
func Lookup(doc map[string]any, field string) (any, bool) {
	var cur any = doc
	for _, seg := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Equal compares a stored value with an expected Go value after both went
// through JSON.
func Equal(stored, expected any) bool {
	a, errA := roundTrip(stored)
	b, errB := roundTrip(expected)
	if errA != nil || errB != nil {
		return false
	}
	return reflect.DeepEqual(a, b)
}

func roundTrip(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	err = json.Unmarshal(b, &out)
	return out, err
}
