// Package combine merges many single-file reference stores into one
// multi-file store, stacking arrays end-to-end along declared
// concatenation dimensions. The merge is a pure transformation over
// in-memory stores: no I/O, no shared state between calls.
package combine

import (
	"fmt"
	"sort"

	"github.com/kk-code-lab/virtref/internal/refs"
)

// Spec controls how input stores merge. ConcatDims names dimensions
// along which inputs are stacked in input order. Identical names
// arrays (or dimensions whose arrays) that are asserted constant
// across inputs: their data is taken from the first declaring store
// and only shape/dtype compatibility is checked elsewhere.
type Spec struct {
	ConcatDims []string
	Identical  []string
}

// Combine merges the stores in input order. The caller is responsible
// for pre-sorting stores along the intended concatenation order; no
// reordering happens here. Combining a single store is the identity.
// On any error no partial store is returned.
func Combine(stores []*refs.Store, spec Spec) (*refs.Store, error) {
	if len(stores) == 0 {
		return nil, ErrEmptyInput
	}
	for i, st := range stores {
		if err := st.Validate(); err != nil {
			return nil, fmt.Errorf("combine: store %d: %w", i, err)
		}
	}
	if len(stores) == 1 {
		return stores[0], nil
	}

	concat := toSet(spec.ConcatDims)
	identical := toSet(spec.Identical)

	merged := refs.NewStore()
	srcMaps := mergeSources(stores, merged)
	buckets := chunkBuckets(stores)

	for _, name := range arrayOrder(stores) {
		decls := declsFor(stores, name)
		if err := checkAgreement(name, decls); err != nil {
			return nil, err
		}
		first := decls[0]
		axes := concatAxes(first.meta, concat)

		switch {
		case isIdentical(first.meta, identical):
			if err := mergeIdentical(merged, stores, decls, buckets, srcMaps); err != nil {
				return nil, err
			}
		case len(axes) > 1:
			return nil, fmt.Errorf("combine: array %q has %d concatenation dimensions, want at most one", name, len(axes))
		case len(axes) == 1:
			if err := mergeConcat(merged, stores, decls, axes[0], buckets, srcMaps); err != nil {
				return nil, err
			}
		default:
			if err := mergePassthrough(merged, stores, decls, buckets, srcMaps); err != nil {
				return nil, err
			}
		}
	}
	return merged, nil
}

type decl struct {
	pos  int
	meta *refs.ArrayMeta
}

// checkAgreement enforces the invariants that hold whatever an
// array's role: same dtype and same dimension names everywhere.
func checkAgreement(name string, decls []decl) error {
	first := decls[0]
	for _, d := range decls[1:] {
		if d.meta.Dtype != first.meta.Dtype {
			return &IdentityMismatchError{Array: name, Field: "dtype", First: first.pos, Conflict: d.pos}
		}
		if !stringsEqual(d.meta.Dimensions, first.meta.Dimensions) {
			return &IdentityMismatchError{Array: name, Field: "dimensions", First: first.pos, Conflict: d.pos}
		}
	}
	return nil
}

// mergeConcat stacks an array along one axis. Each store's chunk grid
// along the axis is kept verbatim; chunk coordinates are remapped by a
// running chunk-count offset, all other coordinates unchanged.
func mergeConcat(merged *refs.Store, stores []*refs.Store, decls []decl, axis int, buckets []map[string][]string, srcMaps [][]int) error {
	first := decls[0]
	name := first.meta.Name
	for _, d := range decls[1:] {
		for ax := range d.meta.Shape {
			if ax != axis && d.meta.Shape[ax] != first.meta.Shape[ax] {
				return &IdentityMismatchError{Array: name, Field: "shape", First: first.pos, Conflict: d.pos}
			}
		}
	}

	total := 0
	cum := 0
	for _, d := range decls {
		for _, ks := range buckets[d.pos][name] {
			k, err := refs.ParseKey(ks)
			if err != nil {
				return fmt.Errorf("combine: store %d: %w", d.pos, err)
			}
			nk := k.WithCoord(axis, k.Coords[axis]+cum)
			merged.Chunks[nk.String()] = remapLocator(stores[d.pos].Chunks[ks], srcMaps[d.pos])
		}
		total += d.meta.Shape[axis]
		cum += refs.GridShape(d.meta.Shape, d.meta.ChunkShape)[axis]
	}

	meta := first.meta.Clone()
	meta.Shape[axis] = total
	merged.Arrays[name] = meta
	return nil
}

// mergeIdentical takes metadata and chunks verbatim from the first
// declaring store; other stores are only asserted shape-compatible.
func mergeIdentical(merged *refs.Store, stores []*refs.Store, decls []decl, buckets []map[string][]string, srcMaps [][]int) error {
	first := decls[0]
	for _, d := range decls[1:] {
		if !intsEqual(d.meta.Shape, first.meta.Shape) {
			return &IdentityMismatchError{Array: first.meta.Name, Field: "shape", First: first.pos, Conflict: d.pos}
		}
	}
	copyArray(merged, stores[first.pos], first.meta, buckets[first.pos], srcMaps[first.pos])
	return nil
}

// mergePassthrough handles arrays with no concat dimension and no
// identical marking: they must agree byte-for-byte in shape, and the
// first store's copy wins.
func mergePassthrough(merged *refs.Store, stores []*refs.Store, decls []decl, buckets []map[string][]string, srcMaps [][]int) error {
	first := decls[0]
	for _, d := range decls[1:] {
		if !intsEqual(d.meta.Shape, first.meta.Shape) {
			return &AmbiguousVariableError{Array: first.meta.Name, First: first.pos, Conflict: d.pos}
		}
	}
	copyArray(merged, stores[first.pos], first.meta, buckets[first.pos], srcMaps[first.pos])
	return nil
}

func copyArray(merged, src *refs.Store, meta *refs.ArrayMeta, bucket map[string][]string, srcMap []int) {
	merged.Arrays[meta.Name] = meta.Clone()
	for _, ks := range bucket[meta.Name] {
		merged.Chunks[ks] = remapLocator(src.Chunks[ks], srcMap)
	}
}

// remapLocator rewrites a remote locator's source index into the
// merged sources list. Inline locators pass through untouched.
func remapLocator(loc refs.Locator, srcMap []int) refs.Locator {
	if loc.Kind == refs.KindRemote {
		loc.Source = srcMap[loc.Source]
	}
	return loc
}

// mergeSources concatenates the input stores' source lists in input
// order, deduplicating exact locator strings, and returns for each
// store the mapping from its local source indices to merged indices.
func mergeSources(stores []*refs.Store, merged *refs.Store) [][]int {
	index := map[string]int{}
	maps := make([][]int, len(stores))
	for i, st := range stores {
		m := make([]int, len(st.Sources))
		for j, src := range st.Sources {
			g, ok := index[src]
			if !ok {
				g = len(merged.Sources)
				index[src] = g
				merged.Sources = append(merged.Sources, src)
			}
			m[j] = g
		}
		maps[i] = m
	}
	return maps
}

// chunkBuckets groups each store's chunk keys by array name, sorted
// for deterministic iteration.
func chunkBuckets(stores []*refs.Store) []map[string][]string {
	out := make([]map[string][]string, len(stores))
	for i, st := range stores {
		bucket := map[string][]string{}
		for ks := range st.Chunks {
			k, err := refs.ParseKey(ks)
			if err != nil {
				continue // Validate already rejected these
			}
			bucket[k.Array] = append(bucket[k.Array], ks)
		}
		for name := range bucket {
			sort.Strings(bucket[name])
		}
		out[i] = bucket
	}
	return out
}

// arrayOrder returns every array name across the inputs, in
// first-appearance store order and sorted within one store.
func arrayOrder(stores []*refs.Store) []string {
	seen := map[string]struct{}{}
	var names []string
	for _, st := range stores {
		local := make([]string, 0, len(st.Arrays))
		for name := range st.Arrays {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			local = append(local, name)
		}
		sort.Strings(local)
		names = append(names, local...)
	}
	return names
}

func declsFor(stores []*refs.Store, name string) []decl {
	var out []decl
	for i, st := range stores {
		if m, ok := st.Arrays[name]; ok {
			out = append(out, decl{pos: i, meta: m})
		}
	}
	return out
}

// isIdentical reports whether the array is pinned to its first
// declaration: either its own name or one of its dimension names is in
// the identical set. Explicit marking wins over concat-dimension
// membership.
func isIdentical(m *refs.ArrayMeta, identical map[string]struct{}) bool {
	if _, ok := identical[m.Name]; ok {
		return true
	}
	for _, d := range m.Dimensions {
		if _, ok := identical[d]; ok {
			return true
		}
	}
	return false
}

func concatAxes(m *refs.ArrayMeta, concat map[string]struct{}) []int {
	var axes []int
	for i, d := range m.Dimensions {
		if _, ok := concat[d]; ok {
			axes = append(axes, i)
		}
	}
	return axes
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
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

func stringsEqual(a, b []string) bool {
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
