package lightmap

import (
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
)

// Surface is the index range of one lightmapped surface in the level index buffer.
type Surface struct {
	StartElementIndex uint32
	NumElements       uint32
}

// LevelMesh is the geometry the lightmapper traces against.
type LevelMesh interface {
	// VisibleSurfaces appends the surfaces seen from tile to out and returns it.
	VisibleSurfaces(tile *Tile, out []int) []int
	Surface(index int) Surface

	VertexBuffer() *vulkan.Buffer
	IndexBuffer() *vulkan.Buffer
	NodeBuffer() *vulkan.Buffer
	SurfaceIndexBuffer() *vulkan.Buffer
	SurfaceBuffer() *vulkan.Buffer
	LightBuffer() *vulkan.Buffer
	LightIndexBuffer() *vulkan.Buffer
	PortalBuffer() *vulkan.Buffer
	// AccelStruct is nil when the device has no ray query support.
	AccelStruct() *vulkan.AccelerationStructure

	SunDirection() math.Vec3
	SunColor() math.Vec3
	SunIntensity() float32
	AmbientOcclusion() bool
	LightBounce() bool
}

// LightmapTarget is one image of an atlas page plus the view and framebuffer the
// copy pass renders into. The view and framebuffer are created on first use.
type LightmapTarget struct {
	Image         *vulkan.Image
	LMView        *vulkan.ImageView
	LMFramebuffer *vulkan.Framebuffer
}

// Release destroys the framebuffer, the view and the image in that order.
func (t *LightmapTarget) Release() {
	t.LMFramebuffer.Release()
	t.LMView.Release()
	t.Image.Release()
	t.LMFramebuffer, t.LMView, t.Image = nil, nil, nil
}

// LightmapPage is one atlas page: the lighting image and the probe index image.
type LightmapPage struct {
	Light LightmapTarget
	// Probe only carries a framebuffer through Light.LMFramebuffer, which binds both views.
	Probe LightmapTarget
}

func (p *LightmapPage) Release() {
	p.Light.Release()
	p.Probe.Release()
}

// TextureManager owns the atlas pages the copy pass writes into.
type TextureManager interface {
	Lightmaps() []*LightmapPage
}
