package lightprobe

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	stdmath "math"
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

type sourceBackend struct{}

func (sourceBackend) Compile(stage shader.Stage, name, source string) ([]byte, error) {
	return []byte(source), nil
}

type fakeProbeTextures struct {
	irradiance []*vulkan.Image
	prefilter  []*vulkan.Image
}

func (f *fakeProbeTextures) CopyIrradianceMaps(maps []*vulkan.Image) { f.irradiance = maps }
func (f *fakeProbeTextures) CopyPrefilterMaps(maps []*vulkan.Image)  { f.prefilter = maps }

func testConfig() core.LightprobeConfig {
	return core.LightprobeConfig{EnvironmentSize: 64, PrefilterLevels: 5}
}

type harness struct {
	dev      *vktest.Device
	ctx      *renderer.Context
	textures *fakeProbeTextures
}

func newHarness(t *testing.T) *harness {
	dev := vktest.NewDevice()
	commands, err := vulkan.NewCommands(dev)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(commands.Release)
	lib := mapLibrary{
		"lightprobe/comp_irradiance_convolute.glsl": "void main() {}\n",
		"lightprobe/comp_prefilter_convolute.glsl":  "void main() {}\n",
	}
	return &harness{
		dev: dev,
		ctx: &renderer.Context{
			Device:  dev,
			Queue:   commands,
			Shaders: shader.Set{Library: lib, Backend: sourceBackend{}, Workers: 2},
		},
		textures: &fakeProbeTextures{},
	}
}

func (h *harness) prober(t *testing.T) *Prober {
	p, err := New(h.ctx, h.textures, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(p.Release)
	return p
}

func (h *harness) recording(t *testing.T, group string) *vktest.CommandBuffer {
	for _, cb := range h.dev.Buffers {
		if cb.Count("push_group "+group) > 0 {
			return cb
		}
	}
	t.Fatalf("no recording with group %s", group)
	return nil
}

func TestNewCreatesProbeResources(t *testing.T) {
	h := newHarness(t)
	h.prober(t)

	if got := len(h.dev.ComputeInfos); got != 2 {
		t.Errorf("compute pipelines = %d, want 2", got)
	}
	if got := len(h.dev.RenderPasses); got != 1 {
		t.Fatalf("render passes = %d, want 1", got)
	}
	if got := h.dev.RenderPasses[0].AttachmentCount; got != 2 {
		t.Errorf("environment pass attachments = %d, want color and depth", got)
	}
	if got := len(h.dev.Framebuffers); got != faceCount {
		t.Errorf("framebuffers = %d, want %d", got, faceCount)
	}
	// 6 irradiance, 6*5 prefilter, cube and depth
	if got, want := len(h.dev.ImageInfos), 6+30+2; got != want {
		t.Fatalf("images = %d, want %d", got, want)
	}
	var cube *vk.ImageCreateInfo
	for i := range h.dev.ImageInfos {
		if h.dev.ImageInfos[i].Flags&vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit) != 0 {
			cube = &h.dev.ImageInfos[i]
		}
	}
	if cube == nil {
		t.Fatal("no cube compatible image")
	}
	if cube.ArrayLayers != 6 || cube.Extent.Width != 64 {
		t.Errorf("cube = %d layers of %d, want 6 of 64", cube.ArrayLayers, cube.Extent.Width)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	for _, cfg := range []core.LightprobeConfig{
		{EnvironmentSize: 0, PrefilterLevels: 5},
		{EnvironmentSize: 64, PrefilterLevels: 1},
		{EnvironmentSize: 64, PrefilterLevels: 9},
	} {
		h := newHarness(t)
		if _, err := New(h.ctx, h.textures, cfg); !errors.Is(err, core.ErrInvalidDescriptor) {
			t.Errorf("New(%+v) err = %v, want ErrInvalidDescriptor", cfg, err)
		}
	}
}

func TestNewFailureReleasesEverything(t *testing.T) {
	for _, call := range []string{"CreateComputePipeline", "CreateImage", "AllocateDescriptorSet", "CreateFramebuffer"} {
		t.Run(call, func(t *testing.T) {
			h := newHarness(t)
			before := h.dev.Live()
			h.dev.FailOn[call] = true
			_, err := New(h.ctx, h.textures, testConfig())
			if !errors.Is(err, vktest.ErrInjected) {
				t.Fatalf("err = %v, want injected failure", err)
			}
			if after := h.dev.Live(); !slices.Equal(before, after) {
				t.Errorf("leaked objects: before %v, after %v", before, after)
			}
		})
	}
}

func TestCubeFaceBasis(t *testing.T) {
	tests := []struct {
		face          int
		dir, up, side math.Vec3
	}{
		{0, math.NewVec3(1, 0, 0), math.NewVec3(0, 1, 0), math.NewVec3(0, 0, -1)},
		{1, math.NewVec3(-1, 0, 0), math.NewVec3(0, 1, 0), math.NewVec3(0, 0, 1)},
		{2, math.NewVec3(0, -1, 0), math.NewVec3(0, 0, 1), math.NewVec3(1, 0, 0)},
		{4, math.NewVec3(0, 0, 1), math.NewVec3(0, 1, 0), math.NewVec3(1, 0, 0)},
	}
	for _, tt := range tests {
		face := CubeFace(tt.face, 128)
		if face.Dir != tt.dir || face.Up != tt.up {
			t.Errorf("face %d dir/up = %v %v", tt.face, face.Dir, face.Up)
		}
		if face.Side != tt.side {
			t.Errorf("face %d side = %v, want %v", tt.face, face.Side, tt.side)
		}
		if face.Bounds.Dx() != 128 || face.Bounds.Dy() != 128 {
			t.Errorf("face %d bounds = %v", tt.face, face.Bounds)
		}
	}
}

func TestFaceViewProjectionLooksAlongDir(t *testing.T) {
	origin := math.NewVec3(1, 2, 3)
	for i := 0; i < faceCount; i++ {
		face := CubeFace(i, 64)
		clip := origin.Add(face.Dir.MulScalar(10)).Transform(face.ViewProjection(origin, 0.1, 100))
		// w is the view distance for a point straight ahead
		if clip.X > 1e-4 || clip.X < -1e-4 || clip.Y > 1e-4 || clip.Y < -1e-4 {
			t.Errorf("face %d: forward point off center at %v", i, clip)
		}
		if depth := clip.Z / 10; depth <= -1 || depth >= 1 {
			t.Errorf("face %d: depth %v outside the clip range", i, depth)
		}
	}
}

func TestRenderEnvironmentMap(t *testing.T) {
	h := newHarness(t)
	p := h.prober(t)

	var seen []int
	err := p.RenderEnvironmentMap(func(cb vulkan.CommandBuffer, face Face) error {
		seen = append(seen, face.Index)
		if face.Bounds.Dx() != 64 {
			t.Errorf("face %d bounds = %v", face.Index, face.Bounds)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(seen, []int{0, 1, 2, 3, 4, 5}) {
		t.Errorf("faces rendered = %v", seen)
	}
	cb := h.recording(t, "lightprobe.environment")
	if got := cb.Count("begin_render_pass"); got != faceCount {
		t.Errorf("render passes = %d, want %d", got, faceCount)
	}
	last := cb.Barriers[len(cb.Barriers)-1]
	if len(last.Images) != 1 || last.Images[0].NewLayout != vk.ImageLayoutShaderReadOnlyOptimal {
		t.Errorf("cube does not end in SHADER_READ_ONLY: %+v", last.Images)
	}
	if got := last.Images[0].SubresourceRange.LayerCount; got != faceCount {
		t.Errorf("final barrier covers %d layers", got)
	}
}

func TestRenderEnvironmentMapCallbackError(t *testing.T) {
	h := newHarness(t)
	p := h.prober(t)

	boom := errors.New("boom")
	err := p.RenderEnvironmentMap(func(cb vulkan.CommandBuffer, face Face) error {
		if face.Index == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want callback error", err)
	}
	cb := h.recording(t, "lightprobe.environment")
	if begins, ends := cb.Count("begin_render_pass"), cb.Count("end_render_pass"); begins != 3 || ends != 3 {
		t.Errorf("render passes begun %d ended %d, want 3 and 3", begins, ends)
	}
	if cb.Count("push_group") != cb.Count("pop_group") {
		t.Errorf("unbalanced groups: %v", cb.Ops)
	}
}

func TestGenerateIrradianceMap(t *testing.T) {
	h := newHarness(t)
	p := h.prober(t)

	if err := p.GenerateIrradianceMap(0); err != nil {
		t.Fatal(err)
	}
	if got := len(h.dev.Writes[len(h.dev.Writes)-1]); got != 12 {
		t.Errorf("descriptor writes = %d, want 12", got)
	}
	cb := h.recording(t, "lightprobe.irradiance")
	if len(cb.Dispatches) != faceCount {
		t.Fatalf("dispatches = %d, want %d", len(cb.Dispatches), faceCount)
	}
	for i, d := range cb.Dispatches {
		if d.X != 32 || d.Y != 32 || d.Z != 1 {
			t.Errorf("dispatch %d = %dx%dx%d", i, d.X, d.Y, d.Z)
		}
	}

	probe := p.IrradianceMap(0)
	var layers []uint32
	for _, c := range cb.Copies {
		if c.Kind != "image" || c.Dst != probe {
			continue
		}
		for _, region := range c.Layers {
			layers = append(layers, region.DstSubresource.BaseArrayLayer)
		}
	}
	if !slices.Equal(layers, []uint32{0, 1, 2, 3, 4, 5}) {
		t.Errorf("copied layers = %v", layers)
	}
	if probe.Width != 32 || probe.ArrayLayers != 6 || probe.MipLevels != 1 {
		t.Errorf("probe image = %dx%d layers %d mips", probe.Width, probe.ArrayLayers, probe.MipLevels)
	}
}

func TestProbeGrowthKeepsExistingEntries(t *testing.T) {
	h := newHarness(t)
	p := h.prober(t)

	if err := p.GenerateIrradianceMap(1); err != nil {
		t.Fatal(err)
	}
	if p.ProbeCount() != 2 {
		t.Fatalf("ProbeCount = %d, want 2", p.ProbeCount())
	}
	if p.IrradianceMap(0) != nil {
		t.Error("probe 0 was created without being generated")
	}
	first := p.IrradianceMap(1)

	if err := p.GenerateIrradianceMap(4); err != nil {
		t.Fatal(err)
	}
	if p.ProbeCount() != 5 {
		t.Errorf("ProbeCount = %d, want 5", p.ProbeCount())
	}
	if p.IrradianceMap(1) != first {
		t.Error("growing the probe list replaced probe 1")
	}

	// regenerating an existing probe reuses its image
	if err := p.GenerateIrradianceMap(1); err != nil {
		t.Fatal(err)
	}
	if p.ProbeCount() != 5 || p.IrradianceMap(1) != first {
		t.Error("regenerating probe 1 changed the probe list")
	}

	if err := p.GenerateIrradianceMap(-1); !errors.Is(err, core.ErrInvalidDescriptor) {
		t.Errorf("negative probe err = %v", err)
	}
}

func TestConvolveImageFailureRecordsNothing(t *testing.T) {
	h := newHarness(t)
	p := h.prober(t)
	writes := len(h.dev.Writes)

	h.dev.FailOn["CreateImage"] = true
	if err := p.GenerateIrradianceMap(2); !errors.Is(err, vktest.ErrInjected) {
		t.Fatalf("err = %v, want ErrInjected", err)
	}
	if err := p.GeneratePrefilterMap(2); !errors.Is(err, vktest.ErrInjected) {
		t.Fatalf("err = %v, want ErrInjected", err)
	}
	if p.ProbeCount() != 0 {
		t.Errorf("ProbeCount = %d after failed creation", p.ProbeCount())
	}
	if len(h.dev.Writes) != writes {
		t.Error("descriptors written for a probe without an image")
	}
	for _, cb := range h.dev.Buffers {
		if len(cb.Dispatches) != 0 || cb.Count("push_group lightprobe.irradiance") > 0 ||
			cb.Count("push_group lightprobe.prefilter") > 0 {
			t.Error("convolution recorded for a probe without an image")
		}
	}

	h.dev.FailOn["CreateImage"] = false
	if err := p.GenerateIrradianceMap(2); err != nil {
		t.Fatal(err)
	}
	if p.ProbeCount() != 3 || p.IrradianceMap(2) == nil {
		t.Errorf("retry left ProbeCount = %d", p.ProbeCount())
	}
}

func TestGeneratePrefilterMap(t *testing.T) {
	h := newHarness(t)
	p := h.prober(t)

	if err := p.GeneratePrefilterMap(0); err != nil {
		t.Fatal(err)
	}
	cb := h.recording(t, "lightprobe.prefilter")
	levels := testConfig().PrefilterLevels
	if got := len(cb.Dispatches); got != faceCount*levels {
		t.Fatalf("dispatches = %d, want %d", got, faceCount*levels)
	}
	for i, d := range cb.Dispatches {
		level := i % levels
		if want := uint32(prefilterSize >> level); d.X != want || d.Y != want {
			t.Errorf("dispatch %d = %dx%d, want %d", i, d.X, d.Y, want)
		}
		roughness := stdmath.Float32frombits(binary.LittleEndian.Uint32(d.Push[44:]))
		if want := float32(level) / float32(levels-1); roughness != want {
			t.Errorf("dispatch %d roughness = %v, want %v", i, roughness, want)
		}
	}

	probe := p.PrefilterMap(0)
	if probe.Width != prefilterSize || probe.MipLevels != uint32(levels) || probe.ArrayLayers != 6 {
		t.Errorf("probe = %d wide, %d mips, %d layers", probe.Width, probe.MipLevels, probe.ArrayLayers)
	}
	i := 0
	for _, c := range cb.Copies {
		if c.Kind != "image" || c.Dst != probe {
			continue
		}
		region := c.Layers[0]
		if region.DstSubresource.BaseArrayLayer != uint32(i/levels) || region.DstSubresource.MipLevel != uint32(i%levels) {
			t.Errorf("copy %d goes to layer %d mip %d", i, region.DstSubresource.BaseArrayLayer, region.DstSubresource.MipLevel)
		}
		if region.Extent.Width != uint32(prefilterSize>>(i%levels)) {
			t.Errorf("copy %d extent = %d", i, region.Extent.Width)
		}
		i++
	}
	if i != faceCount*levels {
		t.Errorf("copies = %d, want %d", i, faceCount*levels)
	}
}

func TestEndLightProbePass(t *testing.T) {
	h := newHarness(t)
	p := h.prober(t)

	for probe := 0; probe < 2; probe++ {
		if err := p.GenerateIrradianceMap(probe); err != nil {
			t.Fatal(err)
		}
		if err := p.GeneratePrefilterMap(probe); err != nil {
			t.Fatal(err)
		}
	}
	p.EndLightProbePass()
	if len(h.textures.irradiance) != 2 || len(h.textures.prefilter) != 2 {
		t.Fatalf("handed %d irradiance and %d prefilter maps", len(h.textures.irradiance), len(h.textures.prefilter))
	}
	if h.textures.irradiance[1] != p.IrradianceMap(1) || h.textures.prefilter[0] != p.PrefilterMap(0) {
		t.Error("texture manager got different images")
	}
}

func TestGenerateBrdfLut(t *testing.T) {
	h := newHarness(t)
	p := h.prober(t)
	if p.BrdfLut() != nil {
		t.Fatal("lut exists before generation")
	}

	var out bytes.Buffer
	if err := p.GenerateBrdfLut(&out); err != nil {
		t.Fatal(err)
	}
	if got, want := out.Len(), brdfLutSize*brdfLutSize*4; got != want {
		t.Errorf("wrote %d bytes, want %d", got, want)
	}
	if p.BrdfLut() == nil || p.BrdfLut().Format != brdfLutFormat {
		t.Fatalf("lut image = %+v", p.BrdfLut())
	}

	cb := h.recording(t, "lightprobe.brdf")
	if len(cb.Dispatches) != 1 || cb.Dispatches[0].X != 64 || cb.Dispatches[0].Y != 64 {
		t.Errorf("dispatches = %+v, want one 64x64", cb.Dispatches)
	}
	if cb.Count("copy_buffer_to_image") != 1 || cb.Count("copy_buffer") != 2 {
		t.Errorf("copies = %v", cb.Ops)
	}

	pipelines := len(h.dev.ComputeInfos)
	out.Reset()
	if err := p.GenerateBrdfLut(&out); err != nil {
		t.Fatal(err)
	}
	if len(h.dev.ComputeInfos) != pipelines {
		t.Error("second generation rebuilt the pipeline")
	}
}

func TestReleaseDestroysEverything(t *testing.T) {
	h := newHarness(t)
	before := h.dev.Live()

	p, err := New(h.ctx, h.textures, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := p.GenerateIrradianceMap(2); err != nil {
		t.Fatal(err)
	}
	if err := p.GeneratePrefilterMap(0); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := p.GenerateBrdfLut(&out); err != nil {
		t.Fatal(err)
	}
	if err := h.ctx.Queue.WaitForCommands(true); err != nil {
		t.Fatal(err)
	}
	p.Release()
	if after := h.dev.Live(); !slices.Equal(before, after) {
		t.Errorf("leaked objects: before %v, after %v", before, after)
	}
}
