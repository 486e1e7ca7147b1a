// Package refdoc serializes reference stores to and from a single
// self-describing document. The JSON form keeps array metadata under
// zarr v2 reserved keys and records remote chunks as
// [source, offset, length] triples; a compact CBOR form with a
// checksum trailer is provided for large stores.
package refdoc

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kk-code-lab/virtref/internal/refs"
)

// Version is the reference-document format version.
const Version = 1

// dimensionsAttr carries dimension names inside .zattrs, following the
// xarray convention.
const dimensionsAttr = "_ARRAY_DIMENSIONS"

const inlinePrefix = "base64:"

type document struct {
	Version   int                        `json:"version"`
	Templates map[string]string          `json:"templates,omitempty"`
	Refs      map[string]json.RawMessage `json:"refs"`
}

type zarray struct {
	ZarrFormat int    `json:"zarr_format"`
	Shape      []int  `json:"shape"`
	Chunks     []int  `json:"chunks"`
	Dtype      string `json:"dtype"`
	Compressor any    `json:"compressor"`
	FillValue  any    `json:"fill_value"`
	Order      string `json:"order"`
	Filters    any    `json:"filters"`
}

// Encode renders the store as a JSON reference document. Sources are
// written as templates s0..sN in store order, so the source list and
// its order survive a round trip.
func Encode(store *refs.Store) ([]byte, error) {
	doc := document{
		Version: Version,
		Refs:    map[string]json.RawMessage{},
	}
	if len(store.Sources) > 0 {
		doc.Templates = make(map[string]string, len(store.Sources))
		for i, src := range store.Sources {
			doc.Templates["s"+strconv.Itoa(i)] = src
		}
	}

	if err := putString(doc.Refs, ".zgroup", `{"zarr_format":2}`); err != nil {
		return nil, err
	}
	for name, m := range store.Arrays {
		za, err := json.Marshal(zarray{
			ZarrFormat: 2,
			Shape:      m.Shape,
			Chunks:     m.ChunkShape,
			Dtype:      m.Dtype,
			FillValue:  m.FillValue,
			Order:      "C",
		})
		if err != nil {
			return nil, fmt.Errorf("refdoc: array %q: %w", name, err)
		}
		if err := putString(doc.Refs, name+"/.zarray", string(za)); err != nil {
			return nil, err
		}
		attrs := make(map[string]any, len(m.Attrs)+1)
		for k, v := range m.Attrs {
			attrs[k] = v
		}
		dims := m.Dimensions
		if dims == nil {
			dims = []string{} // scalar arrays still declare dimension names
		}
		attrs[dimensionsAttr] = dims
		zat, err := json.Marshal(attrs)
		if err != nil {
			return nil, fmt.Errorf("refdoc: array %q attributes: %w", name, err)
		}
		if err := putString(doc.Refs, name+"/.zattrs", string(zat)); err != nil {
			return nil, err
		}
	}

	for ks, loc := range store.Chunks {
		var val any
		switch loc.Kind {
		case refs.KindInline:
			val = encodeInline(loc.Inline)
		case refs.KindRemote:
			if loc.Source < 0 || loc.Source >= len(store.Sources) {
				return nil, fmt.Errorf("refdoc: chunk %s: source index %d out of range", ks, loc.Source)
			}
			val = []any{"{{s" + strconv.Itoa(loc.Source) + "}}", loc.Offset, loc.Length}
		default:
			return nil, fmt.Errorf("refdoc: chunk %s: unknown locator kind %d", ks, loc.Kind)
		}
		raw, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("refdoc: chunk %s: %w", ks, err)
		}
		doc.Refs[ks] = raw
	}

	return json.Marshal(doc)
}

// Decode parses a JSON reference document back into a store. Remote
// triples may reference templates or carry raw locator strings; raw
// locators not present in the templates are appended to the source
// list in sorted-key order.
func Decode(data []byte) (*refs.Store, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("refdoc: %w", err)
	}
	if doc.Version != Version {
		return nil, fmt.Errorf("refdoc: unsupported document version %d", doc.Version)
	}

	store := refs.NewStore()
	sourceIndex := map[string]int{}
	templates := map[string]int{}
	for _, name := range templateOrder(doc.Templates) {
		src := doc.Templates[name]
		idx, ok := sourceIndex[src]
		if !ok {
			idx = len(store.Sources)
			sourceIndex[src] = idx
			store.Sources = append(store.Sources, src)
		}
		templates[name] = idx
	}

	keys := make([]string, 0, len(doc.Refs))
	for k := range doc.Refs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrsByArray := map[string]map[string]any{}
	for _, key := range keys {
		raw := doc.Refs[key]
		base := key
		if i := strings.LastIndexByte(key, '/'); i >= 0 {
			base = key[i+1:]
		}
		switch {
		case base == ".zarray":
			name := strings.TrimSuffix(key, "/.zarray")
			if name == key || name == "" {
				return nil, fmt.Errorf("refdoc: bad metadata key %q", key)
			}
			meta, err := decodeZarray(name, raw)
			if err != nil {
				return nil, err
			}
			store.Arrays[name] = meta
		case base == ".zattrs":
			name := strings.TrimSuffix(key, "/.zattrs")
			if name == key || name == "" {
				continue // root attributes are not modeled
			}
			attrs, err := decodeAttrs(key, raw)
			if err != nil {
				return nil, err
			}
			attrsByArray[name] = attrs
		case strings.HasPrefix(base, "."):
			// other reserved keys (.zgroup, .zmetadata) carry nothing
			// the data model keeps
		default:
			if _, err := refs.ParseKey(key); err != nil {
				return nil, fmt.Errorf("refdoc: bad ref key %q", key)
			}
			loc, err := decodeLocator(key, raw, templates, sourceIndex, store)
			if err != nil {
				return nil, err
			}
			store.Chunks[key] = loc
		}
	}

	for name, meta := range store.Arrays {
		attrs := attrsByArray[name]
		dims, err := dimensionNames(name, attrs, len(meta.Shape))
		if err != nil {
			return nil, err
		}
		meta.Dimensions = dims
		delete(attrs, dimensionsAttr)
		if len(attrs) > 0 {
			meta.Attrs = attrs
		}
	}
	return store, nil
}

func putString(m map[string]json.RawMessage, key, val string) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("refdoc: %s: %w", key, err)
	}
	m[key] = raw
	return nil
}

// encodeInline stores printable payloads as raw strings and everything
// else base64-prefixed, so the document stays readable where it can be.
func encodeInline(data []byte) string {
	if isPrintable(data) && !strings.HasPrefix(string(data), inlinePrefix) {
		return string(data)
	}
	return inlinePrefix + base64.StdEncoding.EncodeToString(data)
}

func isPrintable(data []byte) bool {
	for _, b := range data {
		if b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		if b < 0x20 || b > 0x7e {
			return false
		}
	}
	return true
}

func decodeZarray(name string, raw json.RawMessage) (*refs.ArrayMeta, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("refdoc: array %q metadata: %w", name, err)
	}
	var za zarray
	if err := json.Unmarshal([]byte(s), &za); err != nil {
		return nil, fmt.Errorf("refdoc: array %q metadata: %w", name, err)
	}
	if za.ZarrFormat != 2 {
		return nil, fmt.Errorf("refdoc: array %q: unsupported zarr format %d", name, za.ZarrFormat)
	}
	return &refs.ArrayMeta{
		Name:       name,
		Shape:      za.Shape,
		ChunkShape: za.Chunks,
		Dtype:      za.Dtype,
		FillValue:  za.FillValue,
	}, nil
}

func decodeAttrs(key string, raw json.RawMessage) (map[string]any, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("refdoc: %s: %w", key, err)
	}
	attrs := map[string]any{}
	if err := json.Unmarshal([]byte(s), &attrs); err != nil {
		return nil, fmt.Errorf("refdoc: %s: %w", key, err)
	}
	return attrs, nil
}

func dimensionNames(name string, attrs map[string]any, rank int) ([]string, error) {
	v, ok := attrs[dimensionsAttr]
	if !ok {
		return nil, fmt.Errorf("refdoc: array %q: missing %s attribute", name, dimensionsAttr)
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("refdoc: array %q: malformed %s attribute", name, dimensionsAttr)
	}
	dims := make([]string, len(list))
	for i, d := range list {
		s, ok := d.(string)
		if !ok {
			return nil, fmt.Errorf("refdoc: array %q: malformed %s attribute", name, dimensionsAttr)
		}
		dims[i] = s
	}
	if len(dims) != rank {
		return nil, fmt.Errorf("refdoc: array %q: %d dimension names for rank %d", name, len(dims), rank)
	}
	return dims, nil
}

func decodeLocator(key string, raw json.RawMessage, templates map[string]int, sourceIndex map[string]int, store *refs.Store) (refs.Locator, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.HasPrefix(s, inlinePrefix) {
			data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, inlinePrefix))
			if err != nil {
				return refs.Locator{}, fmt.Errorf("refdoc: chunk %s: %w", key, err)
			}
			return refs.InlineLocator(data), nil
		}
		return refs.InlineLocator([]byte(s)), nil
	}

	var triple []json.RawMessage
	if err := json.Unmarshal(raw, &triple); err != nil {
		return refs.Locator{}, fmt.Errorf("refdoc: chunk %s: %w", key, err)
	}
	if len(triple) != 3 {
		return refs.Locator{}, fmt.Errorf("refdoc: chunk %s: reference triple has %d elements, want 3", key, len(triple))
	}
	var locator string
	if err := json.Unmarshal(triple[0], &locator); err != nil {
		return refs.Locator{}, fmt.Errorf("refdoc: chunk %s: %w", key, err)
	}
	offset, err := tripleUint(triple[1])
	if err != nil {
		return refs.Locator{}, fmt.Errorf("refdoc: chunk %s offset: %w", key, err)
	}
	length, err := tripleUint(triple[2])
	if err != nil {
		return refs.Locator{}, fmt.Errorf("refdoc: chunk %s length: %w", key, err)
	}

	var idx int
	if name, ok := templateRef(locator); ok {
		idx, ok = templates[name]
		if !ok {
			return refs.Locator{}, fmt.Errorf("refdoc: chunk %s: unknown template %q", key, name)
		}
	} else {
		var known bool
		idx, known = sourceIndex[locator]
		if !known {
			idx = len(store.Sources)
			sourceIndex[locator] = idx
			store.Sources = append(store.Sources, locator)
		}
	}
	return refs.RemoteLocator(idx, offset, length), nil
}

func templateRef(s string) (string, bool) {
	if strings.HasPrefix(s, "{{") && strings.HasSuffix(s, "}}") {
		return strings.TrimSpace(s[2 : len(s)-2]), true
	}
	return "", false
}

func tripleUint(raw json.RawMessage) (uint64, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	return strconv.ParseUint(n.String(), 10, 64)
}

// templateOrder sorts template names numerically when they follow the
// sN convention this package emits, lexically otherwise.
func templateOrder(templates map[string]string) []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ni, iok := templateIndex(names[i])
		nj, jok := templateIndex(names[j])
		if iok && jok {
			return ni < nj
		}
		if iok != jok {
			return iok
		}
		return names[i] < names[j]
	})
	return names
}

func templateIndex(name string) (int, bool) {
	if len(name) < 2 || name[0] != 's' {
		return 0, false
	}
	n, err := strconv.Atoi(name[1:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
