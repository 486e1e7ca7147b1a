// Package refs defines the reference-store data model: a virtual index
// mapping chunks of named multidimensional arrays to byte ranges inside
// physical source files, or to small inline payloads.
package refs

import "encoding/json"

// LocatorKind discriminates the two locator variants.
type LocatorKind uint8

const (
	// KindInline embeds the chunk bytes directly in the store.
	KindInline LocatorKind = iota + 1
	// KindRemote points at a byte range inside a physical source file.
	KindRemote
)

// Locator says where one chunk's bytes live. Kind selects the variant;
// the fields of the other variant are zero.
type Locator struct {
	Kind   LocatorKind
	Inline []byte
	Source int
	Offset uint64
	Length uint64
}

// InlineLocator embeds chunk data directly.
func InlineLocator(data []byte) Locator {
	return Locator{Kind: KindInline, Inline: data}
}

// RemoteLocator points at length bytes starting at offset inside the
// source at the given index of the store's Sources list.
func RemoteLocator(source int, offset, length uint64) Locator {
	return Locator{Kind: KindRemote, Source: source, Offset: offset, Length: length}
}

// ArrayMeta describes one named array: its extent, chunking, element
// type, dimension names, and userland attributes. ChunkShape is a hint;
// per-chunk sizes are recoverable from the chunk map, which is the
// authority.
type ArrayMeta struct {
	Name       string
	Shape      []int
	ChunkShape []int
	Dtype      string
	Dimensions []string
	Attrs      map[string]any
	FillValue  any
}

// Clone returns a deep copy of the metadata.
func (m *ArrayMeta) Clone() *ArrayMeta {
	if m == nil {
		return nil
	}
	out := &ArrayMeta{
		Name:       m.Name,
		Shape:      append([]int(nil), m.Shape...),
		ChunkShape: append([]int(nil), m.ChunkShape...),
		Dtype:      m.Dtype,
		Dimensions: append([]string(nil), m.Dimensions...),
		FillValue:  m.FillValue,
	}
	if m.Attrs != nil {
		out.Attrs = make(map[string]any, len(m.Attrs))
		for k, v := range m.Attrs {
			out.Attrs[k] = v
		}
	}
	return out
}

// Store is one reference store: array metadata, the chunk map, and the
// ordered list of physical source locators that remote chunk locators
// index into. A single-file store has exactly one source; a merged
// store has one per input file. Stores are built once and read-only
// thereafter, so concurrent lookups need no synchronization.
type Store struct {
	Arrays  map[string]*ArrayMeta
	Chunks  map[string]Locator
	Sources []string
}

// NewStore returns an empty store with allocated maps.
func NewStore() *Store {
	return &Store{
		Arrays: map[string]*ArrayMeta{},
		Chunks: map[string]Locator{},
	}
}

// Lookup returns the locator for a chunk key. A missing chunk is not an
// error: it means the chunk is implicitly filled with the array's
// declared fill value.
func (s *Store) Lookup(k Key) (Locator, bool) {
	loc, ok := s.Chunks[k.String()]
	return loc, ok
}

// Equal reports whether two stores are equal under the data model:
// same arrays, same chunk map, same source list in the same order.
func Equal(a, b *Store) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.Sources) != len(b.Sources) {
		return false
	}
	for i := range a.Sources {
		if a.Sources[i] != b.Sources[i] {
			return false
		}
	}
	if len(a.Arrays) != len(b.Arrays) {
		return false
	}
	for name, am := range a.Arrays {
		bm, ok := b.Arrays[name]
		if !ok || !metaEqual(am, bm) {
			return false
		}
	}
	if len(a.Chunks) != len(b.Chunks) {
		return false
	}
	for key, al := range a.Chunks {
		bl, ok := b.Chunks[key]
		if !ok || !locatorEqual(al, bl) {
			return false
		}
	}
	return true
}

func locatorEqual(a, b Locator) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindInline:
		if len(a.Inline) != len(b.Inline) {
			return false
		}
		for i := range a.Inline {
			if a.Inline[i] != b.Inline[i] {
				return false
			}
		}
		return true
	case KindRemote:
		return a.Source == b.Source && a.Offset == b.Offset && a.Length == b.Length
	}
	return false
}

func metaEqual(a, b *ArrayMeta) bool {
	if a.Name != b.Name || a.Dtype != b.Dtype {
		return false
	}
	if !intsEqual(a.Shape, b.Shape) || !intsEqual(a.ChunkShape, b.ChunkShape) {
		return false
	}
	if len(a.Dimensions) != len(b.Dimensions) {
		return false
	}
	for i := range a.Dimensions {
		if a.Dimensions[i] != b.Dimensions[i] {
			return false
		}
	}
	return jsonEqual(a.Attrs, b.Attrs) && jsonEqual(a.FillValue, b.FillValue)
}

func intsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// jsonEqual compares attribute values by their canonical JSON encoding,
// so that 3 and 3.0 compare equal across a serialization round trip.
func jsonEqual(a, b any) bool {
	if isEmptyValue(a) && isEmptyValue(b) {
		return true
	}
	aj, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(aj) == string(bj)
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	if m, ok := v.(map[string]any); ok {
		return len(m) == 0
	}
	return false
}
