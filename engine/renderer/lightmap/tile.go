package lightmap

import (
	"github.com/spaghettifunk/prism/engine/math"
)

// AtlasLocation is where a tile lives in the lightmap atlas.
type AtlasLocation struct {
	ArrayIndex int
	X, Y       int
	Width      int
	Height     int
}

func (a AtlasLocation) Area() uint32 {
	return uint32(a.Width * a.Height)
}

// TileTransform projects world positions onto the tile plane.
type TileTransform struct {
	TranslateWorldToLocal math.Vec3
	ProjLocalToU          math.Vec3
	ProjLocalToV          math.Vec3
}

// TileInverseTransform maps texel coordinates back into the world.
type TileInverseTransform struct {
	WorldOrigin math.Vec3
	WorldU      math.Vec3
	WorldV      math.Vec3
}

// Tile is a rectangle of the atlas that belongs to one lightmapped surface.
type Tile struct {
	AtlasLocation    AtlasLocation
	Transform        TileTransform
	InverseTransform TileInverseTransform

	// ReceivedNewLight marks the tile dirty. The bake clears it once the tile was selected.
	ReceivedNewLight bool
	NeedsInitialBake bool
	GeometryUpdate   bool
}

// MarkDirty queues the tile for another bake.
func (t *Tile) MarkDirty() {
	t.ReceivedNewLight = true
}

// SelectedTile is a tile placed in the bake image for a single iteration.
type SelectedTile struct {
	Tile     *Tile
	X, Y     int
	Rendered bool
}

// CountDirty returns how many tiles still wait for a bake.
func CountDirty(tiles []*Tile) int {
	n := 0
	for _, t := range tiles {
		if t.ReceivedNewLight {
			n++
		}
	}
	return n
}
