package math

import (
	m "math"
	"testing"
)

func TestHalfRoundTrip(t *testing.T) {
	tests := []struct {
		in   float32
		want uint16
	}{
		{0, 0x0000},
		{1, 0x3c00},
		{-2, 0xc000},
		{0.5, 0x3800},
		{65504, 0x7bff},
		{1e6, 0x7c00},
		{5.9604645e-08, 0x0001},
	}
	for _, tt := range tests {
		if got := Float32ToHalf(tt.in); got != tt.want {
			t.Errorf("Float32ToHalf(%g) = %#04x, want %#04x", tt.in, got, tt.want)
		}
		if tt.want == 0x7c00 {
			continue
		}
		if back := HalfToFloat32(tt.want); back != tt.in {
			t.Errorf("HalfToFloat32(%#04x) = %g, want %g", tt.want, back, tt.in)
		}
	}

	if !m.IsNaN(float64(HalfToFloat32(Float32ToHalf(float32(m.NaN()))))) {
		t.Errorf("NaN did not survive the round trip")
	}
}

func TestClamp(t *testing.T) {
	if Clamp(5, 0, 3) != 3 || Clamp(-1, 0, 3) != 0 || Clamp(float32(0.5), 0, 1) != 0.5 {
		t.Errorf("Clamp returned an out of range value")
	}
}

func TestCrossAndSwap(t *testing.T) {
	x := NewVec3(1, 0, 0)
	y := NewVec3(0, 1, 0)
	if got := x.Cross(y); !got.Compare(NewVec3(0, 0, 1), K_FLOAT_EPSILON) {
		t.Errorf("x cross y = %+v", got)
	}
	if got := NewVec3(1, 2, 3).SwapYZ(); got != NewVec3(1, 3, 2) {
		t.Errorf("SwapYZ = %+v", got)
	}
	if got := NewVec3Zero().Normalize(); !got.IsZero() {
		t.Errorf("normalizing zero produced %+v", got)
	}
}

func TestGeometryNormalsAndBounds(t *testing.T) {
	verts := []Vertex{
		{Position: Vec4{0, 0, 0, 1}},
		{Position: Vec4{1, 0, 0, 1}},
		{Position: Vec4{0, 1, 0, 1}},
	}
	GeometryGenerateNormals(verts, []uint32{0, 1, 2})
	for i, v := range verts {
		if !v.Normal.Compare(NewVec3(0, 0, 1), K_FLOAT_EPSILON) {
			t.Errorf("vertex %d normal = %+v", i, v.Normal)
		}
	}
	b := GeometryBounds(verts)
	if b.Min != NewVec3Zero() || b.Max != NewVec3(1, 1, 0) {
		t.Errorf("bounds = %+v", b)
	}
}

func TestLookAtMapsTargetToForward(t *testing.T) {
	view := NewMat4LookAt(NewVec3(0, 0, 0), NewVec3(0, 0, -1), NewVec3(0, 1, 0))
	p := NewVec3(0, 0, -5).Transform(view)
	if !p.Compare(NewVec3(0, 0, -5), 1e-5) {
		t.Errorf("point in front of the camera moved to %+v", p)
	}
}
