package transform

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// JSONPath replaces the node selected by a jsonpath expression.
// Supported subset: $ root, dotted child steps, ..name recursive
// descent, [N] index steps, and * / [*] wildcards. Selected scalars
// become tokens (indexed under Name when Reference is set, the bare
// <name> marker otherwise); selected containers are replaced wholesale
// by the bare marker, mirroring how skip-style path transformers behave
// in the recorded fixtures.
type JSONPath struct {
	Path      string
	Name      string
	Reference bool
}

func (t JSONPath) Transform(doc any, reg *Registry) any {
	steps, err := parsePath(t.Path)
	if err != nil {
		// An unparseable path transforms nothing; suite loading
		// validates paths up front so this stays unreachable there.
		return doc
	}
	out := deepCopy(doc)
	for _, loc := range resolve(out, steps) {
		loc.set(func(old any) any {
			if s, ok := scalarString(old); ok {
				if t.Reference {
					return reg.TokenFor(t.Name, s)
				}
				return "<" + t.Name + ">"
			}
			return "<" + t.Name + ">"
		})
	}
	return out
}

// PrunePaths removes the nodes selected by each jsonpath from a deep
// copy of doc. Verification uses this to drop skip-verify paths from
// both the recorded and the actual side symmetrically.
func PrunePaths(doc any, paths []string) (any, error) {
	out := deepCopy(doc)
	for _, p := range paths {
		steps, err := parsePath(p)
		if err != nil {
			return nil, fmt.Errorf("invalid skip path %q: %w", p, err)
		}
		locs := resolve(out, steps)
		// Delete highest array indices first so earlier deletions do
		// not shift later ones.
		sort.SliceStable(locs, func(i, j int) bool { return locs[i].idx > locs[j].idx })
		for _, loc := range locs {
			loc.remove()
		}
	}
	return out, nil
}

// ValidatePath reports whether a jsonpath expression parses.
func ValidatePath(p string) error {
	_, err := parsePath(p)
	return err
}

type stepKind int

const (
	stepChild stepKind = iota
	stepRecursive
	stepIndex
	stepWildcard
)

type step struct {
	kind stepKind
	name string
	idx  int
}

// parsePath tokenizes the supported jsonpath subset.
func parsePath(p string) ([]step, error) {
	orig := p
	p = strings.TrimSpace(p)
	if p == "" || !strings.HasPrefix(p, "$") {
		return nil, fmt.Errorf("path must start with $: %q", orig)
	}
	p = p[1:]

	var steps []step
	for len(p) > 0 {
		switch {
		case strings.HasPrefix(p, ".."):
			p = p[2:]
			name, rest := readName(p)
			if name == "" {
				return nil, fmt.Errorf("recursive descent needs a name: %q", orig)
			}
			steps = append(steps, step{kind: stepRecursive, name: name})
			p = rest
		case strings.HasPrefix(p, "."):
			p = p[1:]
			name, rest := readName(p)
			if name == "" {
				return nil, fmt.Errorf("empty child step in %q", orig)
			}
			if name == "*" {
				steps = append(steps, step{kind: stepWildcard})
			} else {
				steps = append(steps, step{kind: stepChild, name: name})
			}
			p = rest
		case strings.HasPrefix(p, "["):
			end := strings.IndexByte(p, ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated bracket in %q", orig)
			}
			inner := strings.TrimSpace(p[1:end])
			p = p[end+1:]
			if inner == "*" {
				steps = append(steps, step{kind: stepWildcard})
				continue
			}
			if unquoted := strings.Trim(inner, `'"`); unquoted != inner {
				steps = append(steps, step{kind: stepChild, name: unquoted})
				continue
			}
			n, err := strconv.Atoi(inner)
			if err != nil {
				return nil, fmt.Errorf("bad index %q in %q", inner, orig)
			}
			steps = append(steps, step{kind: stepIndex, idx: n})
		default:
			return nil, fmt.Errorf("unexpected character %q in %q", p[0], orig)
		}
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("path selects the root: %q", orig)
	}
	return steps, nil
}

// readName consumes a member name up to the next '.', '[' or end.
func readName(p string) (string, string) {
	i := strings.IndexAny(p, ".[")
	if i < 0 {
		return p, ""
	}
	return p[:i], p[i:]
}

// location is a settable/removable position inside a document.
type location struct {
	parentMap   map[string]any
	parentSlice []any
	key         string
	idx         int
}

func (l location) set(fn func(old any) any) {
	if l.parentMap != nil {
		l.parentMap[l.key] = fn(l.parentMap[l.key])
		return
	}
	l.parentSlice[l.idx] = fn(l.parentSlice[l.idx])
}

func (l location) remove() {
	if l.parentMap != nil {
		delete(l.parentMap, l.key)
		return
	}
	// Array elements are nulled rather than spliced: splicing would
	// shift sibling indices and change the recorded shape.
	l.parentSlice[l.idx] = nil
}

// pathNode pairs a visited node with its settable position.
type pathNode struct {
	node any
	loc  *location
}

// resolve walks the document collecting matching locations. Objects are
// visited with sorted keys so reference token allocation stays stable.
func resolve(doc any, steps []step) []location {
	current := []pathNode{{node: doc}}

	for _, st := range steps {
		var next []pathNode
		for _, fr := range current {
			switch st.kind {
			case stepChild:
				m, ok := fr.node.(map[string]any)
				if !ok {
					continue
				}
				if child, ok := m[st.name]; ok {
					next = append(next, pathNode{node: child, loc: &location{parentMap: m, key: st.name}})
				}
			case stepIndex:
				arr, ok := fr.node.([]any)
				if !ok || st.idx < 0 || st.idx >= len(arr) {
					continue
				}
				next = append(next, pathNode{node: arr[st.idx], loc: &location{parentSlice: arr, idx: st.idx}})
			case stepWildcard:
				switch n := fr.node.(type) {
				case map[string]any:
					for _, k := range sortedKeys(n) {
						next = append(next, pathNode{node: n[k], loc: &location{parentMap: n, key: k}})
					}
				case []any:
					for i := range n {
						next = append(next, pathNode{node: n[i], loc: &location{parentSlice: n, idx: i}})
					}
				}
			case stepRecursive:
				next = append(next, descend(fr.node, st.name)...)
			}
		}
		current = next
	}

	locs := make([]location, 0, len(current))
	for _, fr := range current {
		if fr.loc != nil {
			locs = append(locs, *fr.loc)
		}
	}
	return locs
}

// descend collects every member named name at any depth under node.
func descend(node any, name string) []pathNode {
	var out []pathNode
	switch n := node.(type) {
	case map[string]any:
		for _, k := range sortedKeys(n) {
			if k == name {
				out = append(out, pathNode{node: n[k], loc: &location{parentMap: n, key: k}})
			}
			out = append(out, descend(n[k], name)...)
		}
	case []any:
		for i := range n {
			out = append(out, descend(n[i], name)...)
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// deepCopy clones a decoded JSON tree.
func deepCopy(v any) any {
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, val := range node {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, val := range node {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}
