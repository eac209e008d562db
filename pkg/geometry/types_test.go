package geometry

import "testing"

func TestRectIntOverlaps(t *testing.T) {
	a := RectInt{X: 0, Y: 0, Width: 10, Height: 10}

	tests := []struct {
		name string
		b    RectInt
		want bool
	}{
		{"shared pixel", RectInt{X: 9, Y: 9, Width: 5, Height: 5}, true},
		{"touching edge", RectInt{X: 10, Y: 0, Width: 5, Height: 5}, false},
		{"contained", RectInt{X: 2, Y: 2, Width: 2, Height: 2}, true},
		{"disjoint", RectInt{X: 20, Y: 20, Width: 5, Height: 5}, false},
		{"empty", RectInt{X: 2, Y: 2}, false},
	}
	for _, tt := range tests {
		if got := a.Overlaps(tt.b); got != tt.want {
			t.Errorf("%s: Overlaps = %v, want %v", tt.name, got, tt.want)
		}
		if got := tt.b.Overlaps(a); got != tt.want {
			t.Errorf("%s: reversed Overlaps = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRectIntUnionIntersect(t *testing.T) {
	a := RectInt{X: 0, Y: 0, Width: 10, Height: 10}
	b := RectInt{X: 5, Y: 5, Width: 10, Height: 10}

	if got, want := a.Union(b), (RectInt{X: 0, Y: 0, Width: 15, Height: 15}); got != want {
		t.Errorf("Union = %+v, want %+v", got, want)
	}
	if got, want := a.Intersect(b), (RectInt{X: 5, Y: 5, Width: 5, Height: 5}); got != want {
		t.Errorf("Intersect = %+v, want %+v", got, want)
	}
	if got := a.Union(RectInt{}); got != a {
		t.Errorf("Union with empty = %+v, want %+v", got, a)
	}
}

func TestRectIntClip(t *testing.T) {
	r := RectInt{X: -5, Y: 90, Width: 20, Height: 20}
	got := r.Clip(100, 100)
	want := RectInt{X: 0, Y: 90, Width: 15, Height: 10}
	if got != want {
		t.Errorf("Clip = %+v, want %+v", got, want)
	}
	if !(RectInt{X: 200, Y: 0, Width: 5, Height: 5}).Clip(100, 100).Empty() {
		t.Error("rectangle outside the raster should clip to empty")
	}
}

func TestAffineCompose(t *testing.T) {
	tr := Translation(10, 20).Compose(Scale(2, 3))
	p := tr.Apply(Point2D{X: 1, Y: 1})
	if p.X != 12 || p.Y != 23 {
		t.Errorf("Apply = %+v, want {12 23}", p)
	}
}
