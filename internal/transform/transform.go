// Package transform normalizes JSON value trees against placeholder
// tokens before snapshot comparison. A token is a typed substitution
// marker, <name> or <name:index>, standing in for a value that is
// intentionally excluded from exact comparison (random IDs, timestamps,
// request IDs) while its repetition pattern must still match: within one
// snapshot the same underlying value always yields the same token.
package transform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
)

// tokenPattern recognizes an already-substituted placeholder, so running
// a chain over normalized content is a no-op.
var tokenPattern = regexp.MustCompile(`^<[A-Za-z0-9._-]+(:[0-9]+)?>$`)

// IsToken reports whether s is a placeholder token.
func IsToken(s string) bool {
	return tokenPattern.MatchString(s)
}

// Registry assigns stable indices to reference replacements. Indices are
// 1-based, handed out in first-encounter order over the deterministic
// (sorted-key) document walk, which makes them reproducible across
// re-recordings absent real changes.
type Registry struct {
	counts  map[string]int
	indices map[string]map[string]int
}

// NewRegistry returns an empty registry. One registry spans all match
// keys of a single snapshot record.
func NewRegistry() *Registry {
	return &Registry{
		counts:  make(map[string]int),
		indices: make(map[string]map[string]int),
	}
}

// TokenFor returns the token for a source value under the given name,
// allocating the next index on first sight. Values that already are
// tokens pass through untouched.
func (r *Registry) TokenFor(name, value string) string {
	if IsToken(value) {
		return value
	}
	byValue, ok := r.indices[name]
	if !ok {
		byValue = make(map[string]int)
		r.indices[name] = byValue
	}
	idx, ok := byValue[value]
	if !ok {
		r.counts[name]++
		idx = r.counts[name]
		byValue[value] = idx
	}
	return fmt.Sprintf("<%s:%d>", name, idx)
}

// Transformer rewrites a decoded JSON value tree.
type Transformer interface {
	Transform(doc any, reg *Registry) any
}

// RawTransformer rewrites the serialized document. Raw transformers run
// after all tree transformers, over canonical JSON bytes.
type RawTransformer interface {
	TransformRaw(data []byte, reg *Registry) []byte
}

// KeyValue replaces the value of every object member named Key. With
// Reference set the replacement is an indexed token <name:N>; otherwise
// the bare marker <name>. Name defaults to Key.
type KeyValue struct {
	Key       string
	Name      string
	Reference bool
}

func (t KeyValue) tokenName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Key
}

// Transform walks the tree and substitutes matching scalar members.
// Container values under a matching key are left alone; the original
// harness only ever tokenizes leaves this way.
func (t KeyValue) Transform(doc any, reg *Registry) any {
	return mapTree(doc, func(key string, val any) any {
		if key != t.Key {
			return val
		}
		s, ok := scalarString(val)
		if !ok {
			return val
		}
		if t.Reference {
			return reg.TokenFor(t.tokenName(), s)
		}
		return "<" + t.tokenName() + ">"
	})
}

// Regex rewrites the serialized document. With Reference set, each
// distinct match becomes an indexed token under Name; otherwise every
// match is replaced by Replacement verbatim.
type Regex struct {
	Pattern     *regexp.Regexp
	Replacement string
	Name        string
	Reference   bool
}

func (t Regex) TransformRaw(data []byte, reg *Registry) []byte {
	if t.Reference {
		return t.Pattern.ReplaceAllFunc(data, func(m []byte) []byte {
			return []byte(reg.TokenFor(t.Name, string(m)))
		})
	}
	return t.Pattern.ReplaceAll(data, []byte(t.Replacement))
}

// Chain is an ordered set of transformers sharing one token registry.
type Chain struct {
	reg  *Registry
	tree []Transformer
	raw  []RawTransformer
}

// NewChain returns an empty chain with a fresh registry.
func NewChain() *Chain {
	return &Chain{reg: NewRegistry()}
}

// Add appends tree transformers; they apply in registration order.
func (c *Chain) Add(ts ...Transformer) *Chain {
	c.tree = append(c.tree, ts...)
	return c
}

// AddRaw appends raw transformers.
func (c *Chain) AddRaw(ts ...RawTransformer) *Chain {
	c.raw = append(c.raw, ts...)
	return c
}

// Use appends a preset.
func (c *Chain) Use(s Set) *Chain {
	c.Add(s.Tree...)
	c.AddRaw(s.Raw...)
	return c
}

// Apply normalizes a value tree. The input is never mutated. Applying a
// chain to already normalized content returns it unchanged.
func (c *Chain) Apply(v any) (any, error) {
	out := v
	for _, t := range c.tree {
		out = t.Transform(out, c.reg)
	}
	if len(c.raw) == 0 {
		return out, nil
	}

	data, err := marshalSorted(out)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize for raw transformers: %w", err)
	}
	for _, t := range c.raw {
		data = t.TransformRaw(data, c.reg)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var parsed any
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("raw transformer produced invalid JSON: %w", err)
	}
	return parsed, nil
}

// marshalSorted produces compact JSON with sorted object keys and HTML
// escaping off, the deterministic byte form raw transformers see.
// encoding/json already sorts map keys; only the escaping needs care so
// tokens like <uuid:1> stay verbatim.
func marshalSorted(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// mapTree rebuilds a value tree, visiting object keys in sorted order
// and applying fn to every object member. Arrays recurse element-wise.
// fn receives the member key and value; returning a different value
// substitutes it. Scalars outside objects pass through.
func mapTree(v any, fn func(key string, val any) any) any {
	switch node := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(node))
		for _, k := range keys {
			replaced := fn(k, node[k])
			if sameValue(replaced, node[k]) {
				out[k] = mapTree(node[k], fn)
			} else {
				out[k] = replaced
			}
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, elem := range node {
			out[i] = mapTree(elem, fn)
		}
		return out
	default:
		return v
	}
}

// sameValue reports whether fn left a member untouched. Containers are
// compared by identity semantics (a transformer either replaces a node
// with a scalar token or leaves it), so scalar comparison suffices.
func sameValue(a, b any) bool {
	switch b.(type) {
	case map[string]any, []any:
		_, aIsMap := a.(map[string]any)
		_, aIsSlice := a.([]any)
		return aIsMap || aIsSlice
	default:
		return a == b
	}
}

// scalarString renders a scalar JSON value for token registration.
// Containers return false.
func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	case float64:
		data, _ := json.Marshal(s)
		return string(data), true
	case bool:
		if s {
			return "true", true
		}
		return "false", true
	case nil:
		return "", false
	default:
		return "", false
	}
}
