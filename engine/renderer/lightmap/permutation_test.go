package lightmap

import (
	"testing"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/math"
)

func TestPermutationIndexBits(t *testing.T) {
	tests := []struct {
		soft, ao, sun, bounce bool
		want                  int
	}{
		{false, false, false, false, 0},
		{true, false, false, false, 1},
		{true, false, true, false, 5},
		{false, true, false, true, 10},
		{true, true, true, true, 15},
	}
	for _, tt := range tests {
		if got := PermutationIndex(tt.soft, tt.ao, tt.sun, tt.bounce); got != tt.want {
			t.Errorf("PermutationIndex(%v,%v,%v,%v) = %d, want %d", tt.soft, tt.ao, tt.sun, tt.bounce, got, tt.want)
		}
	}
}

func TestSelectPermutation(t *testing.T) {
	mesh := newFakeMesh(t, nil)
	mesh.ao = true
	mesh.bounce = true

	all := core.LightmapConfig{SoftShadows: true, AO: true, Sunlight: true, Bounce: true}
	if got := SelectPermutation(all, true, mesh); got != 15 {
		t.Errorf("everything on = %d, want 15", got)
	}
	// soft shadows and AO need ray queries
	if got := SelectPermutation(all, false, mesh); got != PermutationIndex(false, false, true, true) {
		t.Errorf("without ray query = %d", got)
	}

	mesh.sunColor = math.Vec3{}
	if got := SelectPermutation(all, true, mesh); got != PermutationIndex(true, true, false, true) {
		t.Errorf("black sun = %d", got)
	}

	off := core.LightmapConfig{ToolMode: true}
	mesh.sunColor = math.NewVec3(1, 1, 1)
	mesh.ao = false
	if got := SelectPermutation(off, false, mesh); got != PermutationIndex(true, false, true, true) {
		t.Errorf("tool mode = %d", got)
	}
}
