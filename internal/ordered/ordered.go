// Package ordered decodes JSON and YAML documents into mappings that keep their keys in document order.
package ordered

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxDepth bounds nesting while decoding. Callers that follow references through a document use it too, so alias cycles and
// self-referencing documents terminate.
const MaxDepth = 64

// Object is a decoded JSON or YAML mapping that keeps its keys in document order. Values are *Object, []any, string, bool,
// nil, or a number (json.Number for JSON input, int or float64 for YAML input).
type Object struct {
	keys []string
	vals map[string]any
}

// New returns an empty Object.
func New() *Object {
	return &Object{vals: map[string]any{}}
}

// Set stores v under key. A repeated key keeps its first position and takes the last value.
func (o *Object) Set(key string, v any) {
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
}

// Keys returns the keys in document order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return o.keys
}

// Len is the number of keys.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Lookup returns the value at key and whether key is present.
func (o *Object) Lookup(key string) (any, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.vals[key]
	return v, ok
}

// Get returns the value at key, or nil.
func (o *Object) Get(key string) any {
	v, _ := o.Lookup(key)
	return v
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.Lookup(key)
	return ok
}

// Obj returns the object at key, or nil when key is absent or not an object.
func (o *Object) Obj(key string) *Object {
	obj, _ := o.Get(key).(*Object)
	return obj
}

// ObjOrEmpty returns the object at key. An absent key yields an empty object; ok is false only when key holds something
// other than an object.
func (o *Object) ObjOrEmpty(key string) (obj *Object, ok bool) {
	v, present := o.Lookup(key)
	if !present {
		return New(), true
	}
	obj, ok = v.(*Object)
	return obj, ok
}

// Str returns the string at key, or "".
func (o *Object) Str(key string) string {
	s, _ := o.Get(key).(string)
	return s
}

// List returns the list at key, or nil.
func (o *Object) List(key string) []any {
	l, _ := o.Get(key).([]any)
	return l
}

// Truthy is false for nil, false, zero, the empty string, and empty lists or objects.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case *Object:
		return x.Len() > 0
	case []any:
		return len(x) > 0
	case string:
		return x != ""
	case bool:
		return x
	case int:
		return x != 0
	case float64:
		return x != 0
	case json.Number:
		f, err := x.Float64()
		return err == nil && f != 0
	}
	return true
}

// ParseJSON decodes text as a single JSON value with object key order preserved. Trailing non-space text is an error.
func ParseJSON(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	v, err := decodeJSON(dec, 0)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("extra data after JSON value")
	}
	return v, nil
}

func decodeJSON(dec *json.Decoder, depth int) (any, error) {
	if depth > MaxDepth {
		return nil, fmt.Errorf("JSON nested deeper than %d", MaxDepth)
	}
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch delim {
	case '{':
		obj := New()
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, _ := kt.(string)
			v, err := decodeJSON(dec, depth+1)
			if err != nil {
				return nil, err
			}
			obj.Set(key, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		list := []any{}
		for dec.More() {
			v, err := decodeJSON(dec, depth+1)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return list, nil
	}
	return nil, fmt.Errorf("unexpected delimiter %q", delim)
}

// ParseYAML decodes the first YAML document in text with mapping key order preserved.
func ParseYAML(text string) (any, error) {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(text), &root); err != nil {
		return nil, err
	}
	return fromNode(&root, 0)
}

func fromNode(n *yaml.Node, depth int) (any, error) {
	if depth > MaxDepth {
		return nil, fmt.Errorf("YAML nested deeper than %d", MaxDepth)
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return fromNode(n.Content[0], depth+1)
	case yaml.AliasNode:
		return fromNode(n.Alias, depth+1)
	case yaml.SequenceNode:
		list := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := fromNode(c, depth+1)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	case yaml.MappingNode:
		obj := New()
		var merges []*Object
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, vn := n.Content[i], n.Content[i+1]
			v, err := fromNode(vn, depth+1)
			if err != nil {
				return nil, err
			}
			if k.ShortTag() == "!!merge" {
				merges = append(merges, mergeSources(v)...)
				continue
			}
			obj.Set(k.Value, v)
		}
		for _, m := range merges {
			for _, key := range m.keys {
				if !obj.Has(key) {
					obj.Set(key, m.vals[key])
				}
			}
		}
		return obj, nil
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, fmt.Errorf("unsupported YAML node kind %d", n.Kind)
}

func mergeSources(v any) []*Object {
	switch x := v.(type) {
	case *Object:
		return []*Object{x}
	case []any:
		var out []*Object
		for _, item := range x {
			if obj, ok := item.(*Object); ok {
				out = append(out, obj)
			}
		}
		return out
	}
	return nil
}
