package refs

import "testing"

func TestKeyStringParseRoundTrip(t *testing.T) {
	keys := []Key{
		{Array: "T", Coords: []int{0}},
		{Array: "T", Coords: []int{2, 0, 0}},
		{Array: "group/var", Coords: []int{10, 4}},
	}
	for _, k := range keys {
		got, err := ParseKey(k.String())
		if err != nil {
			t.Fatalf("ParseKey(%q): %v", k.String(), err)
		}
		if got.Array != k.Array || !intsEqual(got.Coords, k.Coords) {
			t.Fatalf("round trip of %q gave %+v", k.String(), got)
		}
	}
}

func TestParseKeyRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "T", "/0", "T/", "T/1.x", "T/-1", "T/1..2"} {
		if _, err := ParseKey(s); err == nil {
			t.Fatalf("ParseKey(%q): expected error", s)
		}
	}
}

func TestWithCoordCopies(t *testing.T) {
	k := Key{Array: "T", Coords: []int{1, 2}}
	k2 := k.WithCoord(0, 9)
	if k.Coords[0] != 1 {
		t.Fatalf("WithCoord mutated the receiver: %v", k.Coords)
	}
	if k2.Coords[0] != 9 || k2.Coords[1] != 2 {
		t.Fatalf("WithCoord result: %v", k2.Coords)
	}
}

func TestGridShape(t *testing.T) {
	got := GridShape([]int{10, 10, 7}, []int{1, 10, 3})
	want := []int{10, 1, 3}
	if !intsEqual(got, want) {
		t.Fatalf("GridShape = %v, want %v", got, want)
	}
	if g := GridShape([]int{0}, []int{4}); g[0] != 0 {
		t.Fatalf("zero extent should yield zero chunks, got %v", g)
	}
}
