// Package docpath implements the addressing model of the document tree: slash separated
// paths, ancestry tests, and the conversion between nested JSON values and the flat leaf
// rows the repositories persist.
//
// Objects are interior nodes. Scalars and arrays are leaves, so an array is always replaced
// as a whole. Null and empty objects hold no leaves and therefore read back as absent,
// which matches the behaviour of hosted realtime databases.
package docpath

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// ErrInvalidPath reports a malformed path or object key.
var ErrInvalidPath = errors.New("docpath: invalid path")

const forbiddenChars = ".#$[]"

// Leaf is a single stored value at an absolute path.
type Leaf struct {
	Path  string
	Value any
}

// Clean trims surrounding slashes and validates every segment. The root is "".
func Clean(p string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(p), "/")
	if trimmed == "" {
		return "", nil
	}
	segments := strings.Split(trimmed, "/")
	for _, seg := range segments {
		if err := validSegment(seg); err != nil {
			return "", err
		}
	}
	return strings.Join(segments, "/"), nil
}

func validSegment(seg string) error {
	if seg == "" {
		return fmt.Errorf("%w: empty segment", ErrInvalidPath)
	}
	if strings.ContainsAny(seg, forbiddenChars) {
		return fmt.Errorf("%w: segment %q contains one of %q", ErrInvalidPath, seg, forbiddenChars)
	}
	for _, r := range seg {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: segment %q contains control characters", ErrInvalidPath, seg)
		}
	}
	return nil
}

// Split returns the segments of a clean path.
func Split(p string) []string {
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// Join concatenates clean paths, skipping empty parts.
func Join(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, "/")
}

// Parent returns the parent path; the parent of a top-level key is the root.
func Parent(p string) string {
	idx := strings.LastIndexByte(p, '/')
	if idx < 0 {
		return ""
	}
	return p[:idx]
}

// Ancestors lists the proper, non-root ancestors of p from shallowest to deepest.
func Ancestors(p string) []string {
	segments := Split(p)
	if len(segments) < 2 {
		return nil
	}
	out := make([]string, 0, len(segments)-1)
	for i := 1; i < len(segments); i++ {
		out = append(out, strings.Join(segments[:i], "/"))
	}
	return out
}

// Contains reports whether p equals ancestor or lies below it.
func Contains(ancestor, p string) bool {
	if ancestor == "" || ancestor == p {
		return true
	}
	return strings.HasPrefix(p, ancestor+"/")
}

// Overlaps reports whether a write at one path can change the value observed at the other.
func Overlaps(a, b string) bool {
	return Contains(a, b) || Contains(b, a)
}

// Rel returns p relative to base. p must be contained in base.
func Rel(base, p string) string {
	if base == "" {
		return p
	}
	if p == base {
		return ""
	}
	return strings.TrimPrefix(p, base+"/")
}

// Flatten converts value into the leaves stored at and below base. Map keys are validated
// as path segments. A scalar cannot be stored at the root.
func Flatten(base string, value any) ([]Leaf, error) {
	var leaves []Leaf
	if err := flatten(base, value, &leaves); err != nil {
		return nil, err
	}
	return leaves, nil
}

func flatten(p string, value any, out *[]Leaf) error {
	switch v := value.(type) {
	case nil:
		return nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := validSegment(k); err != nil {
				return err
			}
			if err := flatten(Join(p, k), v[k], out); err != nil {
				return err
			}
		}
		return nil
	default:
		if p == "" {
			return fmt.Errorf("%w: the root can only hold an object", ErrInvalidPath)
		}
		*out = append(*out, Leaf{Path: p, Value: Clone(value)})
		return nil
	}
}

// Assemble rebuilds the value at base from leaves at or below it. It returns nil when no
// leaf is present.
func Assemble(base string, leaves []Leaf) any {
	if len(leaves) == 0 {
		return nil
	}
	root := map[string]any{}
	for _, leaf := range leaves {
		if leaf.Path == base {
			return Clone(leaf.Value)
		}
		segments := Split(Rel(base, leaf.Path))
		node := root
		for i, seg := range segments {
			if i == len(segments)-1 {
				node[seg] = Clone(leaf.Value)
				break
			}
			child, ok := node[seg].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[seg] = child
			}
			node = child
		}
	}
	return root
}

// PatchTargets resolves a multi-location update into absolute (path, value) pairs. Keys may
// span several segments; keys that overlap each other are rejected.
func PatchTargets(base string, patch map[string]any) ([]Leaf, error) {
	if len(patch) == 0 {
		return nil, fmt.Errorf("%w: empty update", ErrInvalidPath)
	}
	targets := make([]Leaf, 0, len(patch))
	for key, value := range patch {
		rel, err := Clean(key)
		if err != nil {
			return nil, err
		}
		if rel == "" {
			return nil, fmt.Errorf("%w: empty update key", ErrInvalidPath)
		}
		targets = append(targets, Leaf{Path: Join(base, rel), Value: value})
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].Path < targets[j].Path })
	for i := 1; i < len(targets); i++ {
		for j := 0; j < i; j++ {
			if Overlaps(targets[j].Path, targets[i].Path) {
				return nil, fmt.Errorf("%w: update keys %q and %q overlap", ErrInvalidPath, targets[j].Path, targets[i].Path)
			}
		}
	}
	return targets, nil
}

// Clone deep-copies maps and slices produced by JSON decoding.
func Clone(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = Clone(child)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = Clone(child)
		}
		return out
	default:
		return v
	}
}
