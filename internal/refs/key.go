package refs

import (
	"fmt"
	"strconv"
	"strings"
)

// Key identifies one chunk of one array by its coordinates on the
// array's chunk grid.
type Key struct {
	Array  string
	Coords []int
}

// String renders the canonical key form "array/0.1.2": the array name,
// a slash, then dot-separated grid coordinates.
func (k Key) String() string {
	var sb strings.Builder
	sb.WriteString(k.Array)
	sb.WriteByte('/')
	if len(k.Coords) == 0 {
		sb.WriteByte('0')
		return sb.String()
	}
	for i, c := range k.Coords {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(strconv.Itoa(c))
	}
	return sb.String()
}

// ParseKey parses the canonical form produced by String. Array names
// may contain slashes (group hierarchies); the coordinate part is
// everything after the last slash.
func ParseKey(s string) (Key, error) {
	i := strings.LastIndexByte(s, '/')
	if i <= 0 || i == len(s)-1 {
		return Key{}, fmt.Errorf("refs: malformed chunk key %q", s)
	}
	name := s[:i]
	parts := strings.Split(s[i+1:], ".")
	coords := make([]int, len(parts))
	for j, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Key{}, fmt.Errorf("refs: malformed chunk key %q", s)
		}
		coords[j] = n
	}
	return Key{Array: name, Coords: coords}, nil
}

// WithCoord returns a copy of the key with the coordinate at the given
// axis replaced.
func (k Key) WithCoord(axis, value int) Key {
	coords := append([]int(nil), k.Coords...)
	coords[axis] = value
	return Key{Array: k.Array, Coords: coords}
}

// GridShape returns the number of chunks along each dimension:
// ceil(shape[i] / chunkShape[i]) per dimension. A zero extent yields
// zero chunks along that dimension.
func GridShape(shape, chunkShape []int) []int {
	grid := make([]int, len(shape))
	for i := range shape {
		if chunkShape[i] <= 0 {
			grid[i] = 0
			continue
		}
		grid[i] = (shape[i] + chunkShape[i] - 1) / chunkShape[i]
	}
	return grid
}
