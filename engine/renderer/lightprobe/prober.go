package lightprobe

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/shader"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
)

const (
	probeFormat    = vk.FormatR16g16b16a16Sfloat
	irradianceSize = 32
	prefilterSize  = 128
	faceCount      = 6
)

// ProbeTextures receives the convolved probes at the end of a probe pass.
type ProbeTextures interface {
	CopyIrradianceMaps(maps []*vulkan.Image)
	CopyPrefilterMaps(maps []*vulkan.Image)
}

type IrradiancePC struct {
	Dir      math.Vec3
	Padding0 float32
	Side     math.Vec3
	Padding1 float32
	Up       math.Vec3
	Padding2 float32
}

type PrefilterPC struct {
	Dir       math.Vec3
	Padding0  float32
	Side      math.Vec3
	Padding1  float32
	Up        math.Vec3
	Roughness float32
}

type releaser interface {
	Release()
}

type convolution struct {
	setLayout      *vulkan.DescriptorSetLayout
	pipelineLayout *vulkan.PipelineLayout
	pipeline       *vulkan.Pipeline
	sampler        *vulkan.Sampler
	pool           *vulkan.DescriptorPool
	images         []*vulkan.Image
	views          []*vulkan.ImageView
	sets           []*vulkan.DescriptorSet
	// probes[i] is the 6 layer image of probe i, nil until that probe was generated
	probes []*vulkan.Image
}

type environment struct {
	size         uint32
	cube         *vulkan.Image
	cubeView     *vulkan.ImageView
	depth        *vulkan.Image
	depthView    *vulkan.ImageView
	depthAspect  vk.ImageAspectFlags
	faceViews    [faceCount]*vulkan.ImageView
	renderPass   *vulkan.RenderPass
	framebuffers [faceCount]*vulkan.Framebuffer
}

// Prober renders a cube map around a probe position and convolves it into the
// irradiance and prefiltered specular maps of that probe.
type Prober struct {
	ctx      *renderer.Context
	dev      vulkan.Device
	cfg      core.LightprobeConfig
	textures ProbeTextures
	levels   int

	owned []releaser

	env        environment
	irradiance convolution
	prefilter  convolution
	brdf       *brdfLut
}

func New(ctx *renderer.Context, textures ProbeTextures, cfg core.LightprobeConfig) (*Prober, error) {
	p := &Prober{
		ctx:      ctx,
		dev:      ctx.Device,
		cfg:      cfg,
		textures: textures,
		levels:   cfg.PrefilterLevels,
	}
	if cfg.EnvironmentSize <= 0 || p.levels < 2 || prefilterSize>>(p.levels-1) == 0 {
		return nil, fmt.Errorf("%w: environment size %d with %d prefilter levels",
			core.ErrInvalidDescriptor, cfg.EnvironmentSize, cfg.PrefilterLevels)
	}

	code, err := p.compileShaders()
	if err != nil {
		return nil, err
	}
	steps := []func() error{
		func() error {
			return p.createConvolution(&p.irradiance, "irradianceMap", code[0], uint32(unsafe.Sizeof(IrradiancePC{})), faceCount)
		},
		func() error {
			return p.createConvolution(&p.prefilter, "prefilterMap", code[1], uint32(unsafe.Sizeof(PrefilterPC{})), faceCount*p.levels)
		},
		p.createEnvironmentMap,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			p.Release()
			return nil, err
		}
	}
	return p, nil
}

// Release destroys the prober and every probe image it generated.
func (p *Prober) Release() {
	for _, probes := range [][]*vulkan.Image{p.irradiance.probes, p.prefilter.probes} {
		for _, img := range probes {
			if img != nil {
				img.Release()
			}
		}
	}
	p.irradiance.probes, p.prefilter.probes = nil, nil
	if p.brdf != nil {
		p.brdf.release()
		p.brdf = nil
	}
	for i := len(p.owned) - 1; i >= 0; i-- {
		p.owned[i].Release()
	}
	p.owned = nil
}

// ProbeCount is the number of probe slots, generated or not.
func (p *Prober) ProbeCount() int {
	return max(len(p.irradiance.probes), len(p.prefilter.probes))
}

func (p *Prober) IrradianceMap(probe int) *vulkan.Image {
	if probe < 0 || probe >= len(p.irradiance.probes) {
		return nil
	}
	return p.irradiance.probes[probe]
}

func (p *Prober) PrefilterMap(probe int) *vulkan.Image {
	if probe < 0 || probe >= len(p.prefilter.probes) {
		return nil
	}
	return p.prefilter.probes[probe]
}

func (p *Prober) own(r releaser) {
	p.owned = append(p.owned, r)
}

func (p *Prober) compileShaders() ([][]byte, error) {
	names := []string{
		"lightprobe/comp_irradiance_convolute.glsl",
		"lightprobe/comp_prefilter_convolute.glsl",
	}
	compilers := make([]*shader.GLSLCompiler, len(names))
	for i, name := range names {
		c, err := p.ctx.Shaders.Private(shader.StageCompute, shader.ProbePrefix(), name)
		if err != nil {
			return nil, err
		}
		compilers[i] = c
	}
	return p.ctx.Shaders.CompileAll(compilers)
}

func (p *Prober) createConvolution(c *convolution, name string, code []byte, pushSize uint32, count int) error {
	compute := vk.ShaderStageFlags(vk.ShaderStageComputeBit)

	layout, err := vulkan.NewDescriptorSetLayoutBuilder().
		AddBinding(0, vk.DescriptorTypeStorageImage, 1, compute).
		AddBinding(1, vk.DescriptorTypeCombinedImageSampler, 1, compute).
		DebugName(name + ".descriptorSetLayout").
		Create(p.dev)
	if err != nil {
		return err
	}
	p.own(layout)
	c.setLayout = layout

	pipelineLayout, err := vulkan.NewPipelineLayoutBuilder().
		AddSetLayout(layout).
		AddPushConstantRange(compute, 0, pushSize).
		DebugName(name + ".pipelineLayout").
		Create(p.dev)
	if err != nil {
		return err
	}
	p.own(pipelineLayout)
	c.pipelineLayout = pipelineLayout

	pipeline, err := vulkan.NewComputePipelineBuilder().
		Cache(p.ctx.Cache).
		Layout(pipelineLayout).
		ComputeShader(code).
		DebugName(name + ".pipeline").
		Create(p.dev)
	if err != nil {
		return err
	}
	p.own(pipeline)
	c.pipeline = pipeline

	sampler, err := vulkan.NewSamplerBuilder().DebugName(name + ".sampler").Create(p.dev)
	if err != nil {
		return err
	}
	p.own(sampler)
	c.sampler = sampler

	pool, err := vulkan.NewDescriptorPoolBuilder().
		AddPoolSize(vk.DescriptorTypeStorageImage, uint32(count)).
		AddPoolSize(vk.DescriptorTypeCombinedImageSampler, uint32(count)).
		MaxSets(uint32(count)).
		DebugName(name + ".descriptorPool").
		Create(p.dev)
	if err != nil {
		return err
	}
	p.own(pool)
	c.pool = pool

	perFace := count / faceCount
	for i := 0; i < count; i++ {
		size := uint32(irradianceSize)
		if perFace > 1 {
			size = uint32(prefilterSize >> (i % perFace))
		}
		img, err := vulkan.NewImageBuilder().
			Size(size, size).
			Format(probeFormat).
			Usage(vk.ImageUsageFlags(vk.ImageUsageStorageBit | vk.ImageUsageTransferSrcBit)).
			DebugName(fmt.Sprintf("%s.images[%d]", name, i)).
			Create(p.dev)
		if err != nil {
			return err
		}
		p.own(img)

		view, err := vulkan.NewImageViewBuilder().
			Image(img, probeFormat).
			DebugName(fmt.Sprintf("%s.views[%d]", name, i)).
			Create(p.dev)
		if err != nil {
			return err
		}
		p.own(view)

		set, err := pool.Allocate(layout)
		if err != nil {
			return err
		}
		c.images = append(c.images, img)
		c.views = append(c.views, view)
		c.sets = append(c.sets, set)
	}
	return nil
}

func depthAspect(format vk.Format) vk.ImageAspectFlags {
	switch format {
	case vk.FormatD16UnormS8Uint, vk.FormatD24UnormS8Uint, vk.FormatD32SfloatS8Uint:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	case vk.FormatS8Uint:
		return vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
}

func (p *Prober) createEnvironmentMap() error {
	env := &p.env
	env.size = uint32(p.cfg.EnvironmentSize)
	depthFormat := p.dev.Capabilities().DepthStencilFormat
	env.depthAspect = depthAspect(depthFormat)

	cube, err := vulkan.NewImageBuilder().
		Size(env.size, env.size, 1, faceCount).
		Format(probeFormat).
		Usage(vk.ImageUsageFlags(vk.ImageUsageSampledBit | vk.ImageUsageColorAttachmentBit)).
		Flags(vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)).
		DebugName("Prober.environmentMap.cubeimage").
		Create(p.dev)
	if err != nil {
		return err
	}
	p.own(cube)
	env.cube = cube

	cubeView, err := vulkan.NewImageViewBuilder().
		Type(vk.ImageViewTypeCube).
		Image(cube, probeFormat).
		DebugName("Prober.environmentMap.cubeview").
		Create(p.dev)
	if err != nil {
		return err
	}
	p.own(cubeView)
	env.cubeView = cubeView

	depth, err := vulkan.NewImageBuilder().
		Size(env.size, env.size).
		Samples(vk.SampleCount1Bit).
		Format(depthFormat).
		Usage(vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)).
		DebugName("Prober.environmentMap.zbuffer").
		Create(p.dev)
	if err != nil {
		return err
	}
	p.own(depth)
	env.depth = depth

	depthView, err := vulkan.NewImageViewBuilder().
		Image(depth, depthFormat).
		Subresource(env.depthAspect, 0, 0, 1, 1).
		DebugName("Prober.environmentMap.zbufferview").
		Create(p.dev)
	if err != nil {
		return err
	}
	p.own(depthView)
	env.depthView = depthView

	colorOutput := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	renderPass, err := vulkan.NewRenderPassBuilder().
		AddAttachment(probeFormat, vk.SampleCount1Bit, vk.AttachmentLoadOpClear, vk.AttachmentStoreOpStore,
			vk.ImageLayoutColorAttachmentOptimal, vk.ImageLayoutColorAttachmentOptimal).
		AddDepthStencilAttachment(depthFormat, vk.SampleCount1Bit,
			vk.AttachmentLoadOpClear, vk.AttachmentStoreOpDontCare,
			vk.AttachmentLoadOpClear, vk.AttachmentStoreOpDontCare,
			vk.ImageLayoutDepthStencilAttachmentOptimal, vk.ImageLayoutDepthStencilAttachmentOptimal).
		AddSubpass().
		AddSubpassColorAttachmentRef(0, vk.ImageLayoutColorAttachmentOptimal).
		AddSubpassDepthStencilAttachmentRef(1, vk.ImageLayoutDepthStencilAttachmentOptimal).
		AddExternalSubpassDependency(colorOutput, colorOutput,
			vk.AccessFlags(vk.AccessColorAttachmentWriteBit), vk.AccessFlags(vk.AccessColorAttachmentReadBit)).
		DebugName("Prober.environmentMap.renderPass").
		Create(p.dev)
	if err != nil {
		return err
	}
	p.own(renderPass)
	env.renderPass = renderPass

	for i := 0; i < faceCount; i++ {
		view, err := vulkan.NewImageViewBuilder().
			Image(cube, probeFormat).
			Subresource(vk.ImageAspectFlags(vk.ImageAspectColorBit), 0, uint32(i), 1, 1).
			DebugName(fmt.Sprintf("Prober.environmentMap.faceViews[%d]", i)).
			Create(p.dev)
		if err != nil {
			return err
		}
		p.own(view)
		env.faceViews[i] = view

		fb, err := vulkan.NewFramebufferBuilder().
			RenderPass(renderPass).
			AddAttachment(view).
			AddAttachment(depthView).
			Size(env.size, env.size).
			DebugName(fmt.Sprintf("Prober.environmentMap.framebuffers[%d]", i)).
			Create(p.dev)
		if err != nil {
			return err
		}
		p.own(fb)
		env.framebuffers[i] = fb
	}
	return nil
}

func asBytes[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v))
}
