package level

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/lightmap"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
)

const (
	lightFormat = vk.FormatR16g16b16a16Sfloat
	probeFormat = vk.FormatR16Uint
	wallCount   = 6
	// bytes reserved for the top level acceleration structure on ray query devices
	accelStructSize = 64 * 1024
)

// Options describes the procedural room.
type Options struct {
	// Size is the edge length of the room in world units.
	Size float32
	// TileSize is the edge of a wall tile in lightmap texels.
	TileSize  int
	AtlasSize int

	SunDirection math.Vec3
	SunColor     math.Vec3
	SunIntensity float32

	LightColor     math.Vec3
	LightIntensity float32

	AmbientOcclusion bool
	LightBounce      bool
	// Probes are the positions light probes are captured at.
	Probes []math.Vec3
}

func DefaultOptions() Options {
	return Options{
		Size:             8,
		TileSize:         128,
		AtlasSize:        1024,
		SunDirection:     math.NewVec3(0.3, 0.4, -1).Normalize(),
		SunColor:         math.NewVec3(1, 0.95, 0.9),
		SunIntensity:     1,
		LightColor:       math.NewVec3(1, 1, 1),
		LightIntensity:   1,
		AmbientOcclusion: true,
		LightBounce:      true,
		Probes:           []math.Vec3{math.NewVec3Zero()},
	}
}

type wall struct {
	origin math.Vec3
	u, v   math.Vec3
}

// StaticLevel is a closed box room with one lightmapped surface per wall and a
// point light below the ceiling.
type StaticLevel struct {
	dev  vulkan.Device
	opts Options

	vertices []math.Vertex
	indices  []uint32
	tiles    []*lightmap.Tile
	pages    []*lightmap.LightmapPage

	irradianceMaps []*vulkan.Image
	prefilterMaps  []*vulkan.Image

	vertexBuffer       *vulkan.Buffer
	indexBuffer        *vulkan.Buffer
	nodeBuffer         *vulkan.Buffer
	surfaceIndexBuffer *vulkan.Buffer
	surfaceBuffer      *vulkan.Buffer
	lightBuffer        *vulkan.Buffer
	lightIndexBuffer   *vulkan.Buffer
	portalBuffer       *vulkan.Buffer
	accelBuffer        *vulkan.Buffer
	accelStruct        *vulkan.AccelerationStructure
}

var (
	_ lightmap.LevelMesh      = (*StaticLevel)(nil)
	_ lightmap.TextureManager = (*StaticLevel)(nil)
)

// NewStaticLevel builds the room and records its uploads on the transfer commands of ctx.
// The level is usable once those commands were submitted.
func NewStaticLevel(ctx *renderer.Context, opts Options) (*StaticLevel, error) {
	if opts.Size <= 0 || opts.TileSize <= 0 || opts.TileSize+2*lightmap.TilePadding > opts.AtlasSize {
		return nil, fmt.Errorf("%w: room size %g with %d texel tiles in a %d atlas",
			core.ErrInvalidDescriptor, opts.Size, opts.TileSize, opts.AtlasSize)
	}
	l := &StaticLevel{dev: ctx.Device, opts: opts}
	l.buildGeometry()

	if err := l.createPages(); err != nil {
		l.Release()
		return nil, err
	}
	if err := l.upload(ctx.Queue); err != nil {
		l.Release()
		return nil, err
	}
	core.LogInfo("static level: %d walls, %d lightmap pages, %d probes", wallCount, len(l.pages), len(opts.Probes))
	return l, nil
}

func (l *StaticLevel) walls() [wallCount]wall {
	s := l.opts.Size
	h := s / 2
	x, y, z := math.NewVec3(s, 0, 0), math.NewVec3(0, s, 0), math.NewVec3(0, 0, s)
	// u x v points into the room
	return [wallCount]wall{
		{math.NewVec3(-h, -h, -h), x, y},
		{math.NewVec3(-h, -h, h), y, x},
		{math.NewVec3(-h, -h, -h), y, z},
		{math.NewVec3(h, -h, -h), z, y},
		{math.NewVec3(-h, -h, -h), z, x},
		{math.NewVec3(-h, h, -h), x, z},
	}
}

func (l *StaticLevel) buildGeometry() {
	texels := float32(l.opts.TileSize)
	atlas := float32(l.opts.AtlasSize)
	packer := lightmap.NewRectPacker(l.opts.AtlasSize, l.opts.AtlasSize, lightmap.TilePadding)

	for _, w := range l.walls() {
		item := packer.Alloc(l.opts.TileSize, l.opts.TileSize)
		tile := &lightmap.Tile{
			AtlasLocation: lightmap.AtlasLocation{
				ArrayIndex: item.PageIndex,
				X:          item.X,
				Y:          item.Y,
				Width:      item.Width,
				Height:     item.Height,
			},
			Transform: lightmap.TileTransform{
				TranslateWorldToLocal: w.origin.Negate(),
				ProjLocalToU:          w.u.Normalize().MulScalar(texels / l.opts.Size),
				ProjLocalToV:          w.v.Normalize().MulScalar(texels / l.opts.Size),
			},
			InverseTransform: lightmap.TileInverseTransform{
				WorldOrigin: w.origin,
				WorldU:      w.u.MulScalar(1 / texels),
				WorldV:      w.v.MulScalar(1 / texels),
			},
			ReceivedNewLight: true,
			NeedsInitialBake: true,
		}
		l.tiles = append(l.tiles, tile)

		base := uint32(len(l.vertices))
		for _, corner := range [4][2]float32{{0, 0}, {1, 0}, {1, 1}, {0, 1}} {
			pos := w.origin.Add(w.u.MulScalar(corner[0])).Add(w.v.MulScalar(corner[1]))
			l.vertices = append(l.vertices, math.Vertex{
				Position: pos.ToVec4(1),
				LightmapUV: math.NewVec2(
					(float32(item.X)+corner[0]*texels)/atlas,
					(float32(item.Y)+corner[1]*texels)/atlas,
				),
			})
		}
		l.indices = append(l.indices, base, base+1, base+2, base, base+2, base+3)
	}
	math.GeometryGenerateNormals(l.vertices, l.indices)
}

func (l *StaticLevel) pageCount() int {
	count := 0
	for _, t := range l.tiles {
		count = max(count, t.AtlasLocation.ArrayIndex+1)
	}
	return count
}

func (l *StaticLevel) createPages() error {
	size := uint32(l.opts.AtlasSize)
	for i := 0; i < l.pageCount(); i++ {
		page := &lightmap.LightmapPage{}
		l.pages = append(l.pages, page)

		light, err := vulkan.NewImageBuilder().
			Size(size, size).
			Format(lightFormat).
			Usage(vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageSampledBit | vk.ImageUsageTransferSrcBit)).
			DebugName(fmt.Sprintf("StaticLevel.lightmap%d", i)).
			Create(l.dev)
		if err != nil {
			return err
		}
		page.Light.Image = light

		probe, err := vulkan.NewImageBuilder().
			Size(size, size).
			Format(probeFormat).
			Usage(vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageSampledBit)).
			DebugName(fmt.Sprintf("StaticLevel.probemap%d", i)).
			Create(l.dev)
		if err != nil {
			return err
		}
		page.Probe.Image = probe
	}
	return nil
}

func (l *StaticLevel) storageBuffer(name string, size int, usage vk.BufferUsageFlagBits) (*vulkan.Buffer, error) {
	return vulkan.NewBufferBuilder().
		Size(uint64(max(size, 16))).
		Usage(vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit|vk.BufferUsageTransferDstBit|usage), vulkan.MemoryGPUOnly).
		DebugName("StaticLevel." + name).
		Create(l.dev)
}

func (l *StaticLevel) upload(queue vulkan.CommandQueue) error {
	header, nodes := BuildCollisionTree(l.vertices, l.indices)

	surfaceIndices := make([]int32, len(l.indices)/3)
	for i := range surfaceIndices {
		surfaceIndices[i] = int32(i / 2)
	}

	walls := l.walls()
	surfaces := make([]SurfaceInfo, wallCount)
	for i, w := range walls {
		surfaces[i] = SurfaceInfo{
			Normal:           w.u.Cross(w.v).Normalize(),
			SamplingDistance: l.opts.Size / float32(l.opts.TileSize),
			LightStart:       0,
			LightEnd:         1,
		}
	}

	h := l.opts.Size / 2
	lights := []LightInfo{{
		Origin:         math.NewVec3(0, 0, h*0.8),
		RelativeOrigin: math.NewVec3(0, 0, h*0.8),
		Radius:         l.opts.Size * 1.5,
		Intensity:      l.opts.LightIntensity,
		InnerAngleCos:  -1,
		OuterAngleCos:  -1,
		Color:          l.opts.LightColor,
	}}
	lightIndices := []int32{0}
	portals := []PortalInfo{{Transformation: math.NewMat4Identity()}}

	type upload struct {
		name  string
		out   **vulkan.Buffer
		usage vk.BufferUsageFlagBits
		spans [][]byte
	}
	nodeHeader := valueBytes(&header)
	uploads := []upload{
		{"vertices", &l.vertexBuffer, vk.BufferUsageVertexBufferBit, [][]byte{sliceBytes(l.vertices)}},
		{"indices", &l.indexBuffer, vk.BufferUsageIndexBufferBit, [][]byte{sliceBytes(l.indices)}},
		{"nodes", &l.nodeBuffer, 0, [][]byte{nodeHeader, sliceBytes(nodes)}},
		{"surfaceIndices", &l.surfaceIndexBuffer, 0, [][]byte{sliceBytes(surfaceIndices)}},
		{"surfaces", &l.surfaceBuffer, 0, [][]byte{sliceBytes(surfaces)}},
		{"lights", &l.lightBuffer, 0, [][]byte{sliceBytes(lights)}},
		{"lightIndices", &l.lightIndexBuffer, 0, [][]byte{sliceBytes(lightIndices)}},
		{"portals", &l.portalBuffer, 0, [][]byte{sliceBytes(portals)}},
	}

	transfer := vulkan.NewBufferTransfer()
	for _, s := range uploads {
		size := 0
		for _, span := range s.spans {
			size += len(span)
		}
		buf, err := l.storageBuffer(s.name, size, s.usage)
		if err != nil {
			return err
		}
		*s.out = buf
		transfer.AddBuffer(buf, 0, s.spans...)
	}

	if l.dev.Capabilities().RayQuery {
		if err := l.createAccelStruct(); err != nil {
			return err
		}
	}

	cb, err := queue.TransferCommands()
	if err != nil {
		return err
	}
	staging, err := transfer.Execute(l.dev, cb)
	if err != nil {
		return err
	}
	if staging != nil {
		queue.KeepAlive(staging)
	}

	barrier := vulkan.NewPipelineBarrier()
	for _, page := range l.pages {
		for _, img := range []*vulkan.Image{page.Light.Image, page.Probe.Image} {
			barrier.AddImage(img, vk.ImageLayoutUndefined, vk.ImageLayoutShaderReadOnlyOptimal, 0, vk.AccessFlags(vk.AccessShaderReadBit))
		}
	}
	barrier.AddMemory(vk.AccessFlags(vk.AccessTransferWriteBit), vk.AccessFlags(vk.AccessShaderReadBit|vk.AccessVertexAttributeReadBit|vk.AccessIndexReadBit))
	barrier.Execute(cb, vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit))
	return nil
}

// createAccelStruct reserves the top level structure. Building it needs
// vkCmdBuildAccelerationStructuresKHR, which the bindings do not expose.
func (l *StaticLevel) createAccelStruct() error {
	buf, err := vulkan.NewBufferBuilder().
		Size(accelStructSize).
		Usage(vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit), vulkan.MemoryGPUOnly).
		DebugName("StaticLevel.accelStructBuffer").
		Create(l.dev)
	if err != nil {
		return err
	}
	l.accelBuffer = buf
	accel, err := vulkan.NewAccelerationStructureBuilder().
		Type(vulkan.AccelerationStructureTopLevel).
		Buffer(buf, accelStructSize).
		DebugName("StaticLevel.accelStruct").
		Create(l.dev)
	if err != nil {
		return err
	}
	l.accelStruct = accel
	return nil
}

// Release destroys the GPU resources of the level. Probe maps belong to the prober.
func (l *StaticLevel) Release() {
	l.accelStruct.Release()
	l.accelStruct = nil
	for _, buf := range []**vulkan.Buffer{
		&l.accelBuffer, &l.portalBuffer, &l.lightIndexBuffer, &l.lightBuffer, &l.surfaceBuffer,
		&l.surfaceIndexBuffer, &l.nodeBuffer, &l.indexBuffer, &l.vertexBuffer,
	} {
		if *buf != nil {
			(*buf).Release()
			*buf = nil
		}
	}
	for _, page := range l.pages {
		page.Release()
	}
	l.pages = nil
	l.irradianceMaps, l.prefilterMaps = nil, nil
}

// Tiles are the lightmap tiles, one per wall in wall order.
func (l *StaticLevel) Tiles() []*lightmap.Tile {
	return l.tiles
}

func (l *StaticLevel) ProbePositions() []math.Vec3 {
	return l.opts.Probes
}

func (l *StaticLevel) VisibleSurfaces(tile *lightmap.Tile, out []int) []int {
	for i := 0; i < wallCount; i++ {
		out = append(out, i)
	}
	return out
}

func (l *StaticLevel) Surface(index int) lightmap.Surface {
	return lightmap.Surface{StartElementIndex: uint32(index * 6), NumElements: 6}
}

func (l *StaticLevel) VertexBuffer() *vulkan.Buffer                { return l.vertexBuffer }
func (l *StaticLevel) IndexBuffer() *vulkan.Buffer                 { return l.indexBuffer }
func (l *StaticLevel) NodeBuffer() *vulkan.Buffer                  { return l.nodeBuffer }
func (l *StaticLevel) SurfaceIndexBuffer() *vulkan.Buffer          { return l.surfaceIndexBuffer }
func (l *StaticLevel) SurfaceBuffer() *vulkan.Buffer               { return l.surfaceBuffer }
func (l *StaticLevel) LightBuffer() *vulkan.Buffer                 { return l.lightBuffer }
func (l *StaticLevel) LightIndexBuffer() *vulkan.Buffer            { return l.lightIndexBuffer }
func (l *StaticLevel) PortalBuffer() *vulkan.Buffer                { return l.portalBuffer }
func (l *StaticLevel) AccelStruct() *vulkan.AccelerationStructure { return l.accelStruct }
func (l *StaticLevel) SunDirection() math.Vec3                     { return l.opts.SunDirection }
func (l *StaticLevel) SunColor() math.Vec3                         { return l.opts.SunColor }
func (l *StaticLevel) SunIntensity() float32                       { return l.opts.SunIntensity }
func (l *StaticLevel) AmbientOcclusion() bool                      { return l.opts.AmbientOcclusion }
func (l *StaticLevel) LightBounce() bool                           { return l.opts.LightBounce }

func (l *StaticLevel) Lightmaps() []*lightmap.LightmapPage {
	return l.pages
}

func (l *StaticLevel) CopyIrradianceMaps(maps []*vulkan.Image) {
	l.irradianceMaps = maps
}

func (l *StaticLevel) CopyPrefilterMaps(maps []*vulkan.Image) {
	l.prefilterMaps = maps
}

func (l *StaticLevel) IrradianceMaps() []*vulkan.Image { return l.irradianceMaps }
func (l *StaticLevel) PrefilterMaps() []*vulkan.Image  { return l.prefilterMaps }
