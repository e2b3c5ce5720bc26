// Package args models the argument map submitted with a command call.
//
// Each field is a tagged union: a scalar string, an ordered multi-value
// (checkbox groups) or an upload payload. Encoding flattens the union to the
// wire shape the dashboard server expects.
package args

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindScalar Kind = iota
	KindMulti
	KindUpload
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindMulti:
		return "multi"
	case KindUpload:
		return "upload"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Upload holds index-aligned file names and data-URL encoded contents.
type Upload struct {
	Names []string `json:"names"`
	Bytes []string `json:"bytes"`
}

// Value is one argument. The zero Value is an empty scalar.
type Value struct {
	kind   Kind
	scalar string
	multi  []string
	upload Upload
}

// Scalar returns a single-string value.
func Scalar(s string) Value {
	return Value{kind: KindScalar, scalar: s}
}

// Multi returns an ordered multi-value. It is never encoded as null.
func Multi(values ...string) Value {
	return Value{kind: KindMulti, multi: append([]string{}, values...)}
}

// UploadOf returns an upload value. names and bytes must be index-aligned.
func UploadOf(names, bytes []string) Value {
	return Value{kind: KindUpload, upload: Upload{
		Names: append([]string{}, names...),
		Bytes: append([]string{}, bytes...),
	}}
}

func (v Value) Kind() Kind { return v.kind }

// Str returns the scalar content; empty for other kinds.
func (v Value) Str() string { return v.scalar }

// Values returns a copy of the multi-value content; nil for other kinds.
func (v Value) Values() []string {
	if v.kind != KindMulti {
		return nil
	}
	return slices.Clone(v.multi)
}

// Upload returns the upload content; zero for other kinds.
func (v Value) Upload() Upload {
	if v.kind != KindUpload {
		return Upload{}
	}
	return Upload{Names: slices.Clone(v.upload.Names), Bytes: slices.Clone(v.upload.Bytes)}
}

// Append returns v with value added. Only multi-values accept appends.
func (v Value) Append(value string) Value {
	if v.kind != KindMulti {
		return v
	}
	next := make([]string, len(v.multi), len(v.multi)+1)
	copy(next, v.multi)
	return Value{kind: KindMulti, multi: append(next, value)}
}

// Equal reports whether both values hold the same variant and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindMulti:
		return slices.Equal(v.multi, o.multi)
	case KindUpload:
		return slices.Equal(v.upload.Names, o.upload.Names) && slices.Equal(v.upload.Bytes, o.upload.Bytes)
	default:
		return v.scalar == o.scalar
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindMulti:
		if v.multi == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.multi)
	case KindUpload:
		up := v.upload
		if up.Names == nil {
			up.Names = []string{}
		}
		if up.Bytes == nil {
			up.Bytes = []string{}
		}
		return json.Marshal(up)
	default:
		return json.Marshal(v.scalar)
	}
}

// UnmarshalJSON accepts the three wire shapes. Other JSON scalars (numbers,
// booleans) are kept as their literal text, which is how the bootstrap query
// and fixture files carry them.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case string:
		*v = Scalar(t)
	case []any:
		vals := make([]string, 0, len(t))
		for i, item := range t {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("multi value element %d is %T, want string", i, item)
			}
			vals = append(vals, s)
		}
		*v = Multi(vals...)
	case map[string]any:
		var up Upload
		if err := json.Unmarshal(data, &up); err != nil {
			return fmt.Errorf("decode upload value: %w", err)
		}
		if len(up.Names) != len(up.Bytes) {
			return fmt.Errorf("upload value has %d names but %d payloads", len(up.Names), len(up.Bytes))
		}
		*v = UploadOf(up.Names, up.Bytes)
	case nil:
		*v = Scalar("")
	default:
		*v = Scalar(string(data))
	}
	return nil
}

// Map is the argument map of one pipeline run. Field names are unique.
type Map map[string]Value

// FromStrings builds a scalar-only map.
func FromStrings(m map[string]string) Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = Scalar(v)
	}
	return out
}

// Merge copies src into m, overwriting same-named fields.
func (m Map) Merge(src Map) {
	maps.Copy(m, src)
}

// Keys returns the field names in sorted order.
func (m Map) Keys() []string {
	return slices.Sorted(maps.Keys(m))
}

// Encode serializes the map as the JSON request body. Keys are sorted by
// encoding/json, so the body is deterministic.
func (m Map) Encode() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(map[string]Value(m))
	if err != nil {
		return nil, fmt.Errorf("encode arguments: %w", err)
	}
	return b, nil
}

// Decode parses a JSON request body into a Map.
func Decode(data []byte) (Map, error) {
	m := Map{}
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, (*map[string]Value)(&m)); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	if m == nil {
		m = Map{}
	}
	return m, nil
}

// Strings flattens the map for template rendering: scalars stay strings,
// multi-values stay slices and uploads expose their file names.
func (m Map) Strings() map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch v.kind {
		case KindMulti:
			out[k] = v.Values()
		case KindUpload:
			out[k] = v.Upload().Names
		default:
			out[k] = v.scalar
		}
	}
	return out
}
