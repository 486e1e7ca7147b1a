package refs

import "fmt"

// SchemaError reports a malformed reference store.
type SchemaError struct {
	Key string
	Msg string
}

func (e *SchemaError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("refs: %s: %s", e.Key, e.Msg)
	}
	return "refs: " + e.Msg
}

// Validate checks the store's internal consistency: array metadata
// arity, chunk keys naming declared arrays with coordinates matching
// the array's rank and grid, and remote locators indexing valid
// sources with non-zero length. Duplicate locators for one chunk key
// cannot be represented (the chunk map is keyed by the canonical key
// string), so they are not re-checked here. Whether offset+length fits
// the physical file is the resolver's concern, not validated here.
func (s *Store) Validate() error {
	for name, m := range s.Arrays {
		if m == nil {
			return &SchemaError{Key: name, Msg: "nil array metadata"}
		}
		if m.Name != name {
			return &SchemaError{Key: name, Msg: fmt.Sprintf("metadata name %q does not match map key", m.Name)}
		}
		if len(m.Shape) != len(m.ChunkShape) || len(m.Shape) != len(m.Dimensions) {
			return &SchemaError{Key: name, Msg: fmt.Sprintf("shape/chunk_shape/dimensions arity mismatch: %d/%d/%d",
				len(m.Shape), len(m.ChunkShape), len(m.Dimensions))}
		}
		for i, n := range m.Shape {
			if n < 0 {
				return &SchemaError{Key: name, Msg: fmt.Sprintf("negative extent %d along dimension %d", n, i)}
			}
			if m.ChunkShape[i] <= 0 {
				return &SchemaError{Key: name, Msg: fmt.Sprintf("non-positive chunk extent %d along dimension %d", m.ChunkShape[i], i)}
			}
		}
	}
	for ks, loc := range s.Chunks {
		k, err := ParseKey(ks)
		if err != nil {
			return &SchemaError{Key: ks, Msg: "unparseable chunk key"}
		}
		m, ok := s.Arrays[k.Array]
		if !ok {
			return &SchemaError{Key: ks, Msg: fmt.Sprintf("chunk for undeclared array %q", k.Array)}
		}
		if len(m.Shape) == 0 {
			// a scalar array has the single chunk key "name/0"
			if len(k.Coords) != 1 || k.Coords[0] != 0 {
				return &SchemaError{Key: ks, Msg: "scalar array chunk key must be \"0\""}
			}
		} else {
			if len(k.Coords) != len(m.Shape) {
				return &SchemaError{Key: ks, Msg: fmt.Sprintf("chunk key rank %d, array rank %d", len(k.Coords), len(m.Shape))}
			}
			grid := GridShape(m.Shape, m.ChunkShape)
			for i, c := range k.Coords {
				if c >= grid[i] {
					return &SchemaError{Key: ks, Msg: fmt.Sprintf("coordinate %d out of grid bounds %d along dimension %d", c, grid[i], i)}
				}
			}
		}
		switch loc.Kind {
		case KindInline:
		case KindRemote:
			if loc.Source < 0 || loc.Source >= len(s.Sources) {
				return &SchemaError{Key: ks, Msg: fmt.Sprintf("source index %d outside sources list of length %d", loc.Source, len(s.Sources))}
			}
			if loc.Length == 0 {
				return &SchemaError{Key: ks, Msg: "remote locator with zero length"}
			}
		default:
			return &SchemaError{Key: ks, Msg: fmt.Sprintf("unknown locator kind %d", loc.Kind)}
		}
	}
	return nil
}
