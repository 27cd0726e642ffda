package lightmap

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/shader"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan/vktest"
)

type mapLibrary map[string]string

func (m mapLibrary) PrivateText(name string) (string, error) {
	text, ok := m[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", core.ErrMissingShader, name)
	}
	return text, nil
}

func (m mapLibrary) PublicText(name string) (string, error) {
	return m.PrivateText(name)
}

func lightmapShaders() mapLibrary {
	lib := mapLibrary{}
	for _, name := range []string{
		"vert_raytrace", "vert_screenquad", "vert_copy",
		"frag_raytrace", "frag_resolve", "frag_blur", "frag_copy",
	} {
		lib["lightmap/"+name+".glsl"] = "void main() {}\n"
	}
	return lib
}

// sourceBackend returns the preprocessed source, so every permutation gets distinct code.
type sourceBackend struct{}

func (sourceBackend) Compile(stage shader.Stage, name, source string) ([]byte, error) {
	return []byte(source), nil
}

type fakeMesh struct {
	buffer   *vulkan.Buffer
	accel    *vulkan.AccelerationStructure
	sunColor math.Vec3
	ao       bool
	bounce   bool
	// surfaces seen by every tile unless overridden in visible
	surfaces int
	visible  map[*Tile][]int
}

func newFakeMesh(t *testing.T, dev vulkan.Device) *fakeMesh {
	m := &fakeMesh{sunColor: math.NewVec3(1, 0.9, 0.8), surfaces: 1, visible: map[*Tile][]int{}}
	if dev != nil {
		buf, err := vulkan.NewBufferBuilder().
			Usage(vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit|vk.BufferUsageVertexBufferBit|vk.BufferUsageIndexBufferBit)).
			Size(1024).
			DebugName("fakeMesh").
			Create(dev)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(buf.Release)
		m.buffer = buf
	}
	return m
}

func (m *fakeMesh) VisibleSurfaces(tile *Tile, out []int) []int {
	if list, ok := m.visible[tile]; ok {
		return append(out, list...)
	}
	for i := 0; i < m.surfaces; i++ {
		out = append(out, i)
	}
	return out
}

func (m *fakeMesh) Surface(index int) Surface {
	return Surface{StartElementIndex: uint32(index * 6), NumElements: 6}
}

func (m *fakeMesh) VertexBuffer() *vulkan.Buffer                { return m.buffer }
func (m *fakeMesh) IndexBuffer() *vulkan.Buffer                 { return m.buffer }
func (m *fakeMesh) NodeBuffer() *vulkan.Buffer                  { return m.buffer }
func (m *fakeMesh) SurfaceIndexBuffer() *vulkan.Buffer          { return m.buffer }
func (m *fakeMesh) SurfaceBuffer() *vulkan.Buffer               { return m.buffer }
func (m *fakeMesh) LightBuffer() *vulkan.Buffer                 { return m.buffer }
func (m *fakeMesh) LightIndexBuffer() *vulkan.Buffer            { return m.buffer }
func (m *fakeMesh) PortalBuffer() *vulkan.Buffer                { return m.buffer }
func (m *fakeMesh) AccelStruct() *vulkan.AccelerationStructure { return m.accel }
func (m *fakeMesh) SunDirection() math.Vec3                     { return math.NewVec3(0, 0, -1) }
func (m *fakeMesh) SunColor() math.Vec3                         { return m.sunColor }
func (m *fakeMesh) SunIntensity() float32                       { return 1 }
func (m *fakeMesh) AmbientOcclusion() bool                      { return m.ao }
func (m *fakeMesh) LightBounce() bool                           { return m.bounce }

type fakeTextures struct {
	pages []*LightmapPage
}

func (f *fakeTextures) Lightmaps() []*LightmapPage {
	return f.pages
}

func newFakeTextures(t *testing.T, dev vulkan.Device, count int, size uint32) *fakeTextures {
	f := &fakeTextures{}
	for i := 0; i < count; i++ {
		light, err := vulkan.NewImageBuilder().
			Format(vk.FormatR16g16b16a16Sfloat).
			Size(size, size).
			Usage(vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageSampledBit | vk.ImageUsageTransferSrcBit)).
			Create(dev)
		if err != nil {
			t.Fatal(err)
		}
		probe, err := vulkan.NewImageBuilder().
			Format(vk.FormatR16Uint).
			Size(size, size).
			Usage(vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageSampledBit)).
			Create(dev)
		if err != nil {
			t.Fatal(err)
		}
		f.pages = append(f.pages, &LightmapPage{Light: LightmapTarget{Image: light}, Probe: LightmapTarget{Image: probe}})
	}
	return f
}

func testConfig() core.LightmapConfig {
	return core.LightmapConfig{
		MaxUpdates:        64,
		BackgroundUpdates: 16,
		Scale:             1,
		Sunlight:          true,
		Blur:              true,
		BakeImageSize:     256,
		DrawBufferSize:    64,
		CopyBufferSize:    64,
	}
}

type harness struct {
	dev      *vktest.Device
	commands *vulkan.Commands
	ctx      *renderer.Context
	textures *fakeTextures
	mesh     *fakeMesh
}

func newHarness(t *testing.T) *harness {
	dev := vktest.NewDevice()
	commands, err := vulkan.NewCommands(dev)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(commands.Release)
	h := &harness{
		dev:      dev,
		commands: commands,
		ctx: &renderer.Context{
			Device:  dev,
			Queue:   commands,
			Shaders: shader.Set{Library: lightmapShaders(), Backend: sourceBackend{}, Workers: 4},
		},
		textures: newFakeTextures(t, dev, 2, 128),
		mesh:     newFakeMesh(t, dev),
	}
	return h
}

func (h *harness) lightmapper(t *testing.T, cfg core.LightmapConfig) *Lightmapper {
	lm, err := New(h.ctx, h.textures, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(lm.Release)
	lm.SetLevelMesh(h.mesh)
	if err := lm.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	return lm
}

// drawBuffer is the recording behind Commands.DrawCommands.
func (h *harness) drawBuffer(t *testing.T) *vktest.CommandBuffer {
	for _, cb := range h.dev.Buffers {
		if cb.Count("push_group lightmap.total") > 0 {
			return cb
		}
	}
	t.Fatal("nothing was recorded")
	return nil
}

func tiles(n, page int) []*Tile {
	out := make([]*Tile, n)
	for i := range out {
		out[i] = &Tile{
			AtlasLocation:    AtlasLocation{ArrayIndex: page, X: (i % 8) * 16, Y: (i / 8) * 16, Width: 10, Height: 10},
			ReceivedNewLight: true,
			NeedsInitialBake: true,
		}
	}
	return out
}

func TestNewCreatesEveryPipeline(t *testing.T) {
	h := newHarness(t)
	h.lightmapper(t, testConfig())

	// 16 raytrace permutations, resolve, two blur directions and copy
	if got := len(h.dev.GraphicsInfos); got != shader.PermutationCount+4 {
		t.Errorf("created %d graphics pipelines", got)
	}
	if got := len(h.dev.RenderPasses); got != 4 {
		t.Errorf("created %d render passes", got)
	}
	rt := h.dev.RenderPasses[0]
	if rt.PAttachments[0].Samples != vk.SampleCount4Bit || rt.PAttachments[0].LoadOp != vk.AttachmentLoadOpClear {
		t.Errorf("raytrace attachment = %+v", rt.PAttachments[0])
	}
	if copyPass := h.dev.RenderPasses[3]; copyPass.AttachmentCount != 2 {
		t.Errorf("copy pass has %d attachments", copyPass.AttachmentCount)
	}
}

func TestNewFailureReleasesEverything(t *testing.T) {
	for _, call := range []string{"CreateShaderModule", "CreateFramebuffer", "AllocateDescriptorSet", "CreateSampler"} {
		t.Run(call, func(t *testing.T) {
			h := newHarness(t)
			before := h.dev.Live()
			h.dev.FailOn[call] = true

			lm, err := New(h.ctx, h.textures, testConfig())
			if err == nil {
				lm.Release()
				t.Fatal("New succeeded")
			}
			if !errors.Is(err, vktest.ErrInjected) {
				t.Errorf("err = %v", err)
			}
			if after := h.dev.Live(); !slices.Equal(before, after) {
				t.Errorf("leaked objects: %v", after[len(before):])
			}
		})
	}
}

func TestNewMissingShader(t *testing.T) {
	h := newHarness(t)
	lib := lightmapShaders()
	delete(lib, "lightmap/frag_blur.glsl")
	h.ctx.Shaders.Library = lib
	before := h.dev.Live()

	if _, err := New(h.ctx, h.textures, testConfig()); !errors.Is(err, core.ErrMissingShader) {
		t.Fatalf("err = %v, want ErrMissingShader", err)
	}
	if after := h.dev.Live(); !slices.Equal(before, after) {
		t.Errorf("leaked objects: %v", after[len(before):])
	}
}

func TestReleaseDestroysEverything(t *testing.T) {
	h := newHarness(t)
	before := h.dev.Live()
	lm, err := New(h.ctx, h.textures, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	lm.Release()
	lm.Release()
	if after := h.dev.Live(); !slices.Equal(before, after) {
		t.Errorf("leaked objects: %v", after[len(before):])
	}
}

func TestBeginFrameWritesMeshDescriptors(t *testing.T) {
	h := newHarness(t)
	h.lightmapper(t, testConfig())

	last := h.dev.Writes[len(h.dev.Writes)-1]
	if len(last) != 10 {
		t.Fatalf("BeginFrame wrote %d descriptors, want 10", len(last))
	}
	for _, w := range last {
		if w.DescriptorType == vulkan.DescriptorTypeAccelerationStructure {
			t.Errorf("acceleration structure written without ray query support")
		}
	}
}

func TestBeginFrameNeedsAccelStructWithRayQuery(t *testing.T) {
	h := newHarness(t)
	h.dev.Caps.RayQuery = true
	lm, err := New(h.ctx, h.textures, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer lm.Release()
	lm.SetLevelMesh(h.mesh)
	if err := lm.BeginFrame(); !errors.Is(err, core.ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestRaytraceWithoutDirtyTilesRecordsNothing(t *testing.T) {
	h := newHarness(t)
	lm := h.lightmapper(t, testConfig())

	clean := tiles(4, 0)
	for _, tile := range clean {
		tile.ReceivedNewLight = false
	}
	if err := lm.Raytrace(clean); err != nil {
		t.Fatal(err)
	}
	if err := lm.Raytrace(nil); err != nil {
		t.Fatal(err)
	}
	for _, cb := range h.dev.Buffers {
		if cb.Begun != 0 {
			t.Errorf("%s was begun for an empty bake", cb.Name)
		}
	}
}

func TestRaytraceBakesDirtyTiles(t *testing.T) {
	h := newHarness(t)
	h.mesh.surfaces = 2
	lm := h.lightmapper(t, testConfig())

	work := tiles(3, 0)
	if err := lm.Raytrace(work); err != nil {
		t.Fatal(err)
	}
	if n := CountDirty(work); n != 0 {
		t.Fatalf("%d tiles still dirty", n)
	}
	for _, tile := range work {
		if tile.NeedsInitialBake {
			t.Errorf("initial bake flag not cleared")
		}
	}

	cb := h.drawBuffer(t)
	if len(cb.IndirectDraws) != 1 || cb.IndirectDraws[0].Count != 6 {
		t.Fatalf("indirect draws = %+v", cb.IndirectDraws)
	}
	if lm.drawCommands.Pos != 6 || lm.copyTiles.Pos != 3 {
		t.Errorf("draw cursor %d copy cursor %d", lm.drawCommands.Pos, lm.copyTiles.Pos)
	}
	for i := 0; i < 6; i++ {
		cmd := lm.drawCommands.Data[i]
		if cmd.FirstInstance != uint32(i) || cmd.InstanceCount != 1 || cmd.IndexCount != 6 {
			t.Errorf("draw %d = %+v", i, cmd)
		}
		if pc := lm.drawConstants[i]; pc.SurfaceIndex != int32(i%2) || pc.TileWidth != 10 || pc.TextureSize != 256 {
			t.Errorf("constants %d = %+v", i, pc)
		}
	}

	// resolve plus two blur passes, then one copy instance per tile
	var copies []vktest.Draw
	for _, d := range cb.Draws {
		if d.VertexCount == 4 {
			copies = append(copies, d)
		}
	}
	if len(copies) != 1 || copies[0].InstanceCount != 3 || copies[0].FirstInstance != 0 {
		t.Errorf("copy draws = %+v", copies)
	}
	if got := len(cb.Draws) - len(copies); got != 3 {
		t.Errorf("%d screen quad draws, want 3", got)
	}
	for _, group := range []string{"lightmap.raytrace", "lightmap.resolve", "lightmap.blur", "lightmap.copy"} {
		if !slices.Contains(cb.Groups, group) {
			t.Errorf("group %s not recorded", group)
		}
	}

	info := lm.copyTiles.Data[1]
	if info.DestPosX != 16 || info.TileWidth != 10 || info.SrcPosX == 0 {
		t.Errorf("copy tile info = %+v", info)
	}
	if page := h.textures.pages[0]; page.Light.LMFramebuffer == nil || page.Probe.LMView == nil {
		t.Errorf("copy target of page 0 was not created")
	}
	if page := h.textures.pages[1]; page.Light.LMFramebuffer != nil {
		t.Errorf("untouched page 1 got a framebuffer")
	}
	if len(h.dev.Submits) != 0 {
		t.Errorf("a bake that fits submitted %d times", len(h.dev.Submits))
	}
}

func TestRaytraceWithoutBlur(t *testing.T) {
	h := newHarness(t)
	cfg := testConfig()
	cfg.Blur = false
	lm := h.lightmapper(t, cfg)

	if err := lm.Raytrace(tiles(2, 1)); err != nil {
		t.Fatal(err)
	}
	cb := h.drawBuffer(t)
	if slices.Contains(cb.Groups, "lightmap.blur") {
		t.Errorf("blur recorded with blur disabled")
	}
	if h.textures.pages[1].Light.LMFramebuffer == nil {
		t.Errorf("page 1 not written")
	}
}

func TestRaytraceDrawBufferBackpressure(t *testing.T) {
	h := newHarness(t)
	h.mesh.surfaces = 2
	cfg := testConfig()
	cfg.DrawBufferSize = 4
	lm := h.lightmapper(t, cfg)

	work := tiles(3, 0)
	if err := lm.Raytrace(work); err != nil {
		t.Fatal(err)
	}
	if n := CountDirty(work); n != 0 {
		t.Fatalf("%d tiles still dirty", n)
	}
	if len(h.dev.Submits) != 1 {
		t.Fatalf("submitted %d times, want 1", len(h.dev.Submits))
	}

	cb := h.drawBuffer(t)
	if len(cb.IndirectDraws) != 2 {
		t.Fatalf("indirect draws = %+v", cb.IndirectDraws)
	}
	if cb.IndirectDraws[0].Count != 4 || cb.IndirectDraws[1].Count != 2 || cb.IndirectDraws[1].Offset != 0 {
		t.Errorf("indirect draws = %+v", cb.IndirectDraws)
	}
	if cb.Begun != 2 || cb.Ended != 1 {
		t.Errorf("begun %d ended %d", cb.Begun, cb.Ended)
	}
}

func TestRaytraceCopyBufferBackpressure(t *testing.T) {
	h := newHarness(t)
	cfg := testConfig()
	cfg.CopyBufferSize = 2
	lm := h.lightmapper(t, cfg)

	work := tiles(3, 0)
	if err := lm.Raytrace(work); err != nil {
		t.Fatal(err)
	}
	if n := CountDirty(work); n != 0 {
		t.Fatalf("%d tiles still dirty", n)
	}
	if len(h.dev.Submits) != 1 {
		t.Fatalf("submitted %d times, want 1", len(h.dev.Submits))
	}
	// both rings restart together after the wait
	if lm.copyTiles.Pos != 1 || lm.drawCommands.Pos != 1 {
		t.Errorf("copy cursor %d draw cursor %d", lm.copyTiles.Pos, lm.drawCommands.Pos)
	}
}

func TestRaytraceCopyOverflowRendersEachTileOnce(t *testing.T) {
	h := newHarness(t)
	cfg := testConfig()
	cfg.CopyBufferSize = 2
	lm := h.lightmapper(t, cfg)

	work := tiles(3, 0)
	if err := lm.Raytrace(work); err != nil {
		t.Fatal(err)
	}
	if !lm.copyTiles.Invariant() || lm.copyTiles.IsFull {
		t.Errorf("copy ring left at pos %d full %v", lm.copyTiles.Pos, lm.copyTiles.IsFull)
	}
	// an overflowing copy has to flush right away instead of tracing the leftover tile twice
	var draws uint32
	for _, cb := range h.dev.Buffers {
		for _, d := range cb.IndirectDraws {
			draws += d.Count
		}
	}
	if draws != 3 {
		t.Errorf("indirect draws = %d, want one per tile", draws)
	}
}

func TestRaytraceSyncsWhenCopyCursorReachesDrawCapacity(t *testing.T) {
	h := newHarness(t)
	cfg := testConfig()
	cfg.DrawBufferSize = 2
	lm := h.lightmapper(t, cfg)

	if err := lm.Raytrace(tiles(2, 0)); err != nil {
		t.Fatal(err)
	}
	if len(h.dev.Submits) != 1 {
		t.Errorf("submitted %d times, want 1", len(h.dev.Submits))
	}
	if lm.copyTiles.Pos != 0 || lm.drawCommands.Pos != 0 {
		t.Errorf("rings not reset: copy %d draw %d", lm.copyTiles.Pos, lm.drawCommands.Pos)
	}
}

func TestRaytraceDropsTileWithTooManySurfaces(t *testing.T) {
	h := newHarness(t)
	cfg := testConfig()
	cfg.DrawBufferSize = 4
	lm := h.lightmapper(t, cfg)

	work := tiles(2, 0)
	h.mesh.visible[work[0]] = []int{0, 1, 2, 3, 4}
	if err := lm.Raytrace(work); err != nil {
		t.Fatal(err)
	}
	if n := CountDirty(work); n != 0 {
		t.Errorf("%d tiles still dirty", n)
	}
	cb := h.drawBuffer(t)
	if len(cb.IndirectDraws) != 1 || cb.IndirectDraws[0].Count != 1 {
		t.Errorf("indirect draws = %+v", cb.IndirectDraws)
	}
}

func TestRaytraceRejectsUnknownPage(t *testing.T) {
	h := newHarness(t)
	lm := h.lightmapper(t, testConfig())

	err := lm.Raytrace(tiles(1, 5))
	if !errors.Is(err, core.ErrInvalidDescriptor) {
		t.Errorf("err = %v, want ErrInvalidDescriptor", err)
	}
}

func TestSelectUpdateTiles(t *testing.T) {
	h := newHarness(t)
	cfg := testConfig()
	cfg.MaxUpdates = 4
	cfg.BackgroundUpdates = 1
	cfg.Dynamic = true
	lm := h.lightmapper(t, cfg)

	work := tiles(8, 0)
	visible := func(tile *Tile) bool { return tile.AtlasLocation.X >= 80 }

	got := lm.SelectUpdateTiles(work, visible)
	if len(got) != 4 {
		t.Fatalf("selected %d tiles", len(got))
	}
	for i := 0; i < 3; i++ {
		if !visible(got[i]) {
			t.Errorf("tile %d is not visible", i)
		}
	}
	if visible(got[3]) {
		t.Errorf("background slot went to a visible tile")
	}

	lm.cfg.Dynamic = false
	for _, tile := range work[:6] {
		tile.NeedsInitialBake = false
	}
	got = lm.SelectUpdateTiles(work, nil)
	if len(got) != 2 || got[0] != work[6] || got[1] != work[7] {
		t.Errorf("static lighting picked %v", got)
	}

	lm.cfg.Scale = 0
	if got := lm.SelectUpdateTiles(work, nil); len(got) != 1 {
		t.Errorf("zero scale picked %d tiles, want 1", len(got))
	}
}

func TestDownloadLightmap(t *testing.T) {
	h := newHarness(t)
	lm := h.lightmapper(t, testConfig())

	img, err := lm.DownloadLightmap(1)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 128 || b.Dy() != 128 {
		t.Errorf("bounds = %v", b)
	}
	if _, _, _, a := img.At(3, 3).RGBA(); a != 0xffff {
		t.Errorf("alpha = %x", a)
	}
	if len(h.dev.Submits) != 1 {
		t.Errorf("download submitted %d times", len(h.dev.Submits))
	}
	if _, err := lm.DownloadLightmap(2); !errors.Is(err, core.ErrInvalidDescriptor) {
		t.Errorf("err = %v, want ErrInvalidDescriptor", err)
	}
}

func TestUnorm16(t *testing.T) {
	for _, tt := range []struct {
		in   float32
		want uint16
	}{{0, 0}, {1, 0xffff}, {2, 0xffff}, {-1, 0}} {
		if got := unorm16(math.Float32ToHalf(tt.in)); got != tt.want {
			t.Errorf("unorm16(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
