package lightmap

import (
	"unsafe"

	"github.com/spaghettifunk/prism/engine/math"
)

// The structs below are laid out like the std430 blocks in shaders/lightmap.

// RaytracePC is the per draw data of the raytrace pass, indexed by gl_InstanceIndex.
type RaytracePC struct {
	SurfaceIndex int32
	Padding0     int32
	Padding1     int32
	Padding2     int32
	WorldToLocal math.Vec3
	TextureSize  float32
	ProjLocalToU math.Vec3
	Padding3     float32
	ProjLocalToV math.Vec3
	Padding4     float32
	TileX        float32
	TileY        float32
	TileWidth    float32
	TileHeight   float32
}

// CopyTileInfo tells the copy vertex shader where a tile comes from and goes to.
type CopyTileInfo struct {
	SrcPosX     int32
	SrcPosY     int32
	DestPosX    int32
	DestPosY    int32
	TileWidth   int32
	TileHeight  int32
	Padding0    int32
	Padding1    int32
	WorldOrigin math.Vec3
	Padding2    float32
	WorldU      math.Vec3
	Padding3    float32
	WorldV      math.Vec3
	Padding4    float32
}

type Uniforms struct {
	SunDir       math.Vec3
	Padding1     float32
	SunColor     math.Vec3
	SunIntensity float32
}

type CopyPC struct {
	SrcTexSize  int32
	DestTexSize int32
	Padding1    int32
	Padding2    int32
}

// DrawIndexedCommand mirrors VkDrawIndexedIndirectCommand.
type DrawIndexedCommand struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	VertexOffset  int32
	FirstInstance uint32
}

var (
	raytracePCSize   = uint64(unsafe.Sizeof(RaytracePC{}))
	copyTileInfoSize = uint64(unsafe.Sizeof(CopyTileInfo{}))
	uniformsSize     = uint64(unsafe.Sizeof(Uniforms{}))
	copyPCSize       = uint32(unsafe.Sizeof(CopyPC{}))
	drawCommandSize  = uint64(unsafe.Sizeof(DrawIndexedCommand{}))
	vertexSize       = uint32(unsafe.Sizeof(math.Vertex{}))
)

// asBytes views a plain value as bytes for push constants and uploads.
func asBytes[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v))
}
