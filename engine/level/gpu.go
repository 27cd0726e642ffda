package level

import (
	"unsafe"

	"github.com/spaghettifunk/prism/engine/math"
)

// Layouts match the std430 blocks of shaders/lightmap/binding_raytrace.glsl.

type CollisionNodeHeader struct {
	Root     int32
	Padding1 int32
	Padding2 int32
	Padding3 int32
}

// CollisionNode is a bounding box. Leaves have a triangle in ElementIndex, inner
// nodes have -1 there and their children in Left and Right.
type CollisionNode struct {
	Center       math.Vec3
	Padding1     float32
	Extents      math.Vec3
	Padding2     float32
	Left         int32
	Right        int32
	ElementIndex int32
	Padding3     int32
}

type SurfaceInfo struct {
	Normal           math.Vec3
	Sky              float32
	SamplingDistance float32
	PortalIndex      int32
	LightStart       int32
	LightEnd         int32
}

type LightInfo struct {
	Origin           math.Vec3
	Padding0         float32
	RelativeOrigin   math.Vec3
	Padding1         float32
	Radius           float32
	Intensity        float32
	InnerAngleCos    float32
	OuterAngleCos    float32
	SpotDir          math.Vec3
	SoftShadowRadius float32
	Color            math.Vec3
	Padding2         float32
}

type PortalInfo struct {
	Transformation math.Mat4
}

// sliceBytes views a slice of plain values as bytes for BufferTransfer.
func sliceBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(zero)))
}

func valueBytes[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v))
}
