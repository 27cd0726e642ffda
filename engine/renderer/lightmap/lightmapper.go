package lightmap

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/containers"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/shader"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
)

const (
	bakeFormat  = vk.FormatR16g16b16a16Sfloat
	probeFormat = vk.FormatR16Uint
	bakeSamples = vk.SampleCount4Bit
	// Texels kept free around every tile so the blur never reads a neighbour.
	TilePadding = 3
	maxScissor  = 4096
)

type releaser interface {
	Release()
}

type bakeTarget struct {
	image       *vulkan.Image
	view        *vulkan.ImageView
	framebuffer *vulkan.Framebuffer
}

type raytracePass struct {
	setLayout0     *vulkan.DescriptorSetLayout
	setLayout1     *vulkan.DescriptorSetLayout
	pipelineLayout *vulkan.PipelineLayout
	renderPass     *vulkan.RenderPass
	pipelines      [shader.PermutationCount]*vulkan.Pipeline
	pool0          *vulkan.DescriptorPool
	pool1          *vulkan.DescriptorPool
	set0           *vulkan.DescriptorSet
	set1           *vulkan.DescriptorSet
}

type screenPass struct {
	setLayout      *vulkan.DescriptorSetLayout
	pipelineLayout *vulkan.PipelineLayout
	renderPass     *vulkan.RenderPass
	pipelines      []*vulkan.Pipeline
	pool           *vulkan.DescriptorPool
	sampler        *vulkan.Sampler
}

type shaderCode struct {
	vertRaytrace   []byte
	vertScreenquad []byte
	vertCopy       []byte
	fragRaytrace   [shader.PermutationCount][]byte
	fragResolve    []byte
	fragBlur       [2][]byte
	fragCopy       []byte
}

// Lightmapper bakes dirty lightmap tiles: raytrace into a scratch image, resolve,
// blur, then copy every tile into its atlas page.
type Lightmapper struct {
	ctx         *renderer.Context
	dev         vulkan.Device
	cfg         core.LightmapConfig
	textures    TextureManager
	useRayQuery bool
	bakeSize    int

	mesh  LevelMesh
	clock *core.Clock

	owned []releaser

	uniformBuffer   *vulkan.Buffer
	uniformTransfer *vulkan.Buffer
	uniformStride   uint64

	copyTilesBuffer *vulkan.Buffer
	copyTiles       *containers.RingBuffer[CopyTileInfo]

	drawCommandsBuffer  *vulkan.Buffer
	drawConstantsBuffer *vulkan.Buffer
	drawCommands        *containers.RingBuffer[DrawIndexedCommand]
	drawConstants       []RaytracePC

	shaders  shaderCode
	raytrace raytracePass
	resolve  screenPass
	blur     screenPass
	copy     screenPass

	bake struct {
		raytrace    bakeTarget
		resolve     bakeTarget
		blur        bakeTarget
		resolveSet  *vulkan.DescriptorSet
		blurSets    [2]*vulkan.DescriptorSet
		copySet     *vulkan.DescriptorSet
		maxX, maxY  int
	}

	packer    *RectPacker
	selected  []SelectedTile
	visible   []int
	copylists [][]*SelectedTile
}

// New creates every resource of the bake. Nothing is left behind when it fails.
func New(ctx *renderer.Context, textures TextureManager, cfg core.LightmapConfig) (*Lightmapper, error) {
	lm := &Lightmapper{
		ctx:         ctx,
		dev:         ctx.Device,
		cfg:         cfg,
		textures:    textures,
		useRayQuery: ctx.Device.Capabilities().RayQuery,
		bakeSize:    cfg.BakeImageSize,
		clock:       core.NewClock(),
	}

	steps := []func() error{
		lm.createUniformBuffer,
		lm.createTileBuffer,
		lm.createDrawIndexedBuffer,
		lm.createShaders,
		lm.createRaytracePipeline,
		lm.createResolvePipeline,
		lm.createBlurPipeline,
		lm.createCopyPipeline,
		lm.createBakeImage,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			lm.Release()
			return nil, err
		}
	}
	core.LogDebug("lightmapper ready (bake image %d, ray query %v)", lm.bakeSize, lm.useRayQuery)
	return lm, nil
}

// Release destroys everything New created, newest first.
func (lm *Lightmapper) Release() {
	for i := len(lm.owned) - 1; i >= 0; i-- {
		lm.owned[i].Release()
	}
	lm.owned = nil
	lm.copyTiles = nil
	lm.drawCommands = nil
	lm.drawConstants = nil
}

func (lm *Lightmapper) own(r releaser) {
	lm.owned = append(lm.owned, r)
}

func (lm *Lightmapper) SetLevelMesh(mesh LevelMesh) {
	lm.mesh = mesh
	lm.clock.Reset()
	core.StatsReset()
}

// BeginFrame rewinds the ring buffers and points the raytrace descriptors at the current mesh.
func (lm *Lightmapper) BeginFrame() error {
	lm.drawCommands.Reset()
	lm.copyTiles.Reset()
	if lm.mesh == nil {
		return nil
	}
	return lm.updateAccelStructDescriptors()
}

func (lm *Lightmapper) Stats() string {
	return core.StatsString()
}

func (lm *Lightmapper) createUniformBuffer() error {
	align := lm.dev.Capabilities().MinUniformBufferOffsetAlignment
	if align == 0 {
		align = 1
	}
	lm.uniformStride = (uniformsSize + align - 1) / align * align

	buf, err := vulkan.NewBufferBuilder().
		Usage(vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit|vk.BufferUsageTransferDstBit), vulkan.MemoryGPUOnly).
		Size(lm.uniformStride).
		DebugName("LightmapUniformBuffer").
		Create(lm.dev)
	if err != nil {
		return err
	}
	lm.own(buf)
	lm.uniformBuffer = buf

	transfer, err := vulkan.NewBufferBuilder().
		Usage(vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), vulkan.MemoryCPUToGPU).
		Size(lm.uniformStride).
		Mapped().
		DebugName("LightmapUniformTransferBuffer").
		Create(lm.dev)
	if err != nil {
		return err
	}
	lm.own(transfer)
	lm.uniformTransfer = transfer
	return nil
}

// hostBuffer creates a persistently mapped buffer the CPU writes and the GPU reads in place.
func (lm *Lightmapper) hostBuffer(usage vk.BufferUsageFlagBits, size uint64, name string) (*vulkan.Buffer, error) {
	hostVisible := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	buf, err := vulkan.NewBufferBuilder().
		Usage(vk.BufferUsageFlags(usage), vulkan.MemoryUnknown).
		MemoryType(hostVisible, hostVisible|vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)).
		Size(size).
		Mapped().
		DebugName(name).
		Create(lm.dev)
	if err != nil {
		return nil, err
	}
	lm.own(buf)
	if buf.Mapped() == nil {
		return nil, fmt.Errorf("%w: %s is not host visible", core.ErrCreateFailed, name)
	}
	return buf, nil
}

func (lm *Lightmapper) createTileBuffer() error {
	if lm.cfg.CopyBufferSize <= 0 {
		return fmt.Errorf("%w: copy buffer size %d", core.ErrInvalidDescriptor, lm.cfg.CopyBufferSize)
	}
	buf, err := lm.hostBuffer(vk.BufferUsageStorageBufferBit, copyTileInfoSize*uint64(lm.cfg.CopyBufferSize), "CopyTileBuffer")
	if err != nil {
		return err
	}
	lm.copyTilesBuffer = buf
	lm.copyTiles = containers.NewRingBufferFromBytes[CopyTileInfo](buf.Mapped())
	return nil
}

func (lm *Lightmapper) createDrawIndexedBuffer() error {
	if lm.cfg.DrawBufferSize <= 0 {
		return fmt.Errorf("%w: draw buffer size %d", core.ErrInvalidDescriptor, lm.cfg.DrawBufferSize)
	}
	count := uint64(lm.cfg.DrawBufferSize)

	commands, err := lm.hostBuffer(vk.BufferUsageIndirectBufferBit, drawCommandSize*count, "DrawIndexed.CommandsBuffer")
	if err != nil {
		return err
	}
	constants, err := lm.hostBuffer(vk.BufferUsageStorageBufferBit, raytracePCSize*count, "DrawIndexed.ConstantsBuffer")
	if err != nil {
		return err
	}
	lm.drawCommandsBuffer = commands
	lm.drawConstantsBuffer = constants
	lm.drawCommands = containers.NewRingBufferFromBytes[DrawIndexedCommand](commands.Mapped())
	lm.drawConstants = containers.NewRingBufferFromBytes[RaytracePC](constants.Mapped()).Data
	return nil
}

func (lm *Lightmapper) createShaders() error {
	base := shader.BasePrefix()
	trace := shader.TracePrefix(lm.useRayQuery)

	type job struct {
		stage  shader.Stage
		prefix string
		name   string
		out    *[]byte
	}
	jobs := []job{
		{shader.StageVertex, base, "lightmap/vert_raytrace.glsl", &lm.shaders.vertRaytrace},
		{shader.StageVertex, base, "lightmap/vert_screenquad.glsl", &lm.shaders.vertScreenquad},
		{shader.StageVertex, base, "lightmap/vert_copy.glsl", &lm.shaders.vertCopy},
	}
	for i := range lm.shaders.fragRaytrace {
		prefix := trace + shader.PermutationDefines(uint32(i))
		jobs = append(jobs, job{shader.StageFragment, prefix, "lightmap/frag_raytrace.glsl", &lm.shaders.fragRaytrace[i]})
	}
	jobs = append(jobs,
		job{shader.StageFragment, base, "lightmap/frag_resolve.glsl", &lm.shaders.fragResolve},
		job{shader.StageFragment, shader.BlurPrefix(true), "lightmap/frag_blur.glsl", &lm.shaders.fragBlur[0]},
		job{shader.StageFragment, shader.BlurPrefix(false), "lightmap/frag_blur.glsl", &lm.shaders.fragBlur[1]},
		job{shader.StageFragment, base, "lightmap/frag_copy.glsl", &lm.shaders.fragCopy},
	)

	compilers := make([]*shader.GLSLCompiler, len(jobs))
	for i, j := range jobs {
		c, err := lm.ctx.Shaders.Private(j.stage, j.prefix, j.name)
		if err != nil {
			return err
		}
		compilers[i] = c
	}
	codes, err := lm.ctx.Shaders.CompileAll(compilers)
	if err != nil {
		return err
	}
	for i, j := range jobs {
		*j.out = codes[i]
	}
	return nil
}

func colorPass(samples vk.SampleCountFlagBits, load vk.AttachmentLoadOp) *vulkan.RenderPassBuilder {
	colorOutput := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	return vulkan.NewRenderPassBuilder().
		AddAttachment(bakeFormat, samples, load, vk.AttachmentStoreOpStore,
			vk.ImageLayoutUndefined, vk.ImageLayoutColorAttachmentOptimal).
		AddSubpass().
		AddSubpassColorAttachmentRef(0, vk.ImageLayoutColorAttachmentOptimal).
		AddExternalSubpassDependency(colorOutput, colorOutput,
			vk.AccessFlags(vk.AccessColorAttachmentWriteBit), vk.AccessFlags(vk.AccessColorAttachmentReadBit))
}

func (lm *Lightmapper) createRaytracePipeline() error {
	rt := &lm.raytrace
	fragment := vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	vertexFragment := vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit)

	layout0, err := vulkan.NewDescriptorSetLayoutBuilder().
		AddBinding(0, vk.DescriptorTypeUniformBuffer, 1, vertexFragment).
		AddBinding(1, vk.DescriptorTypeStorageBuffer, 1, fragment).
		AddBinding(2, vk.DescriptorTypeStorageBuffer, 1, fragment).
		AddBinding(3, vk.DescriptorTypeStorageBuffer, 1, fragment).
		AddBinding(4, vk.DescriptorTypeStorageBuffer, 1, fragment).
		AddBinding(5, vk.DescriptorTypeStorageBuffer, 1, fragment).
		AddBinding(6, vk.DescriptorTypeStorageBuffer, 1, vertexFragment).
		DebugName("raytrace.descriptorSetLayout0").
		Create(lm.dev)
	if err != nil {
		return err
	}
	lm.own(layout0)
	rt.setLayout0 = layout0

	first := vk.DescriptorTypeStorageBuffer
	if lm.useRayQuery {
		first = vulkan.DescriptorTypeAccelerationStructure
	}
	layout1, err := vulkan.NewDescriptorSetLayoutBuilder().
		AddBinding(0, first, 1, fragment).
		AddBinding(1, vk.DescriptorTypeStorageBuffer, 1, fragment).
		AddBinding(2, vk.DescriptorTypeStorageBuffer, 1, fragment).
		DebugName("raytrace.descriptorSetLayout1").
		Create(lm.dev)
	if err != nil {
		return err
	}
	lm.own(layout1)
	rt.setLayout1 = layout1

	pipelineLayout, err := vulkan.NewPipelineLayoutBuilder().
		AddSetLayout(layout0).
		AddSetLayout(layout1).
		DebugName("raytrace.pipelineLayout").
		Create(lm.dev)
	if err != nil {
		return err
	}
	lm.own(pipelineLayout)
	rt.pipelineLayout = pipelineLayout

	renderPass, err := colorPass(bakeSamples, vk.AttachmentLoadOpClear).
		DebugName("raytrace.renderPass").
		Create(lm.dev)
	if err != nil {
		return err
	}
	lm.own(renderPass)
	rt.renderPass = renderPass

	for i := range rt.pipelines {
		pipeline, err := vulkan.NewGraphicsPipelineBuilder().
			Cache(lm.ctx.Cache).
			Layout(pipelineLayout).
			RenderPass(renderPass).
			AddVertexShader(lm.shaders.vertRaytrace).
			AddFragmentShader(lm.shaders.fragRaytrace[i]).
			AddVertexBufferBinding(0, vertexSize).
			AddVertexAttribute(0, 0, vk.FormatR32g32b32a32Sfloat, 0).
			Topology(vk.PrimitiveTopologyTriangleList).
			AddDynamicState(vk.DynamicStateViewport).
			RasterizationSamples(bakeSamples).
			Viewport(0, 0, 0, 0).
			Scissor(0, 0, maxScissor, maxScissor).
			DebugName(fmt.Sprintf("raytrace.pipeline%d", i)).
			Create(lm.dev)
		if err != nil {
			return err
		}
		lm.own(pipeline)
		rt.pipelines[i] = pipeline
	}

	pool0, err := vulkan.NewDescriptorPoolBuilder().
		AddPoolSize(vk.DescriptorTypeUniformBuffer, 1).
		AddPoolSize(vk.DescriptorTypeStorageBuffer, 6).
		MaxSets(1).
		DebugName("raytrace.descriptorPool0").
		Create(lm.dev)
	if err != nil {
		return err
	}
	lm.own(pool0)
	rt.pool0 = pool0

	pool1Builder := vulkan.NewDescriptorPoolBuilder().MaxSets(1).DebugName("raytrace.descriptorPool1")
	if lm.useRayQuery {
		pool1Builder.
			AddPoolSize(vulkan.DescriptorTypeAccelerationStructure, 1).
			AddPoolSize(vk.DescriptorTypeStorageBuffer, 2)
	} else {
		pool1Builder.AddPoolSize(vk.DescriptorTypeStorageBuffer, 3)
	}
	pool1, err := pool1Builder.Create(lm.dev)
	if err != nil {
		return err
	}
	lm.own(pool1)
	rt.pool1 = pool1

	if rt.set0, err = pool0.Allocate(layout0); err != nil {
		return err
	}
	lm.dev.SetDebugName(rt.set0.Handle, "raytrace.descriptorSet0")
	if rt.set1, err = pool1.Allocate(layout1); err != nil {
		return err
	}
	lm.dev.SetDebugName(rt.set1.Handle, "raytrace.descriptorSet1")
	return nil
}

// createScreenPass builds the shared parts of the full screen passes that sample one image.
func (lm *Lightmapper) createScreenPass(p *screenPass, name string, sets uint32, nearest bool) error {
	layout, err := vulkan.NewDescriptorSetLayoutBuilder().
		AddBinding(0, vk.DescriptorTypeCombinedImageSampler, 1, vk.ShaderStageFlags(vk.ShaderStageFragmentBit)).
		DebugName(name + ".descriptorSetLayout").
		Create(lm.dev)
	if err != nil {
		return err
	}
	lm.own(layout)
	p.setLayout = layout

	pipelineLayout, err := vulkan.NewPipelineLayoutBuilder().
		AddSetLayout(layout).
		DebugName(name + ".pipelineLayout").
		Create(lm.dev)
	if err != nil {
		return err
	}
	lm.own(pipelineLayout)
	p.pipelineLayout = pipelineLayout

	renderPass, err := colorPass(vk.SampleCount1Bit, vk.AttachmentLoadOpDontCare).
		DebugName(name + ".renderpass").
		Create(lm.dev)
	if err != nil {
		return err
	}
	lm.own(renderPass)
	p.renderPass = renderPass

	pool, err := vulkan.NewDescriptorPoolBuilder().
		AddPoolSize(vk.DescriptorTypeCombinedImageSampler, sets).
		MaxSets(sets).
		DebugName(name + ".descriptorPool").
		Create(lm.dev)
	if err != nil {
		return err
	}
	lm.own(pool)
	p.pool = pool

	samplerBuilder := vulkan.NewSamplerBuilder().DebugName(name + ".sampler")
	if nearest {
		samplerBuilder.
			MinFilter(vk.FilterNearest).
			MagFilter(vk.FilterNearest).
			MipmapMode(vk.SamplerMipmapModeNearest)
	}
	sampler, err := samplerBuilder.Create(lm.dev)
	if err != nil {
		return err
	}
	lm.own(sampler)
	p.sampler = sampler
	return nil
}

func (lm *Lightmapper) screenPipeline(p *screenPass, fragment []byte, name string) error {
	pipeline, err := vulkan.NewGraphicsPipelineBuilder().
		Cache(lm.ctx.Cache).
		Layout(p.pipelineLayout).
		RenderPass(p.renderPass).
		AddVertexShader(lm.shaders.vertScreenquad).
		AddFragmentShader(fragment).
		Topology(vk.PrimitiveTopologyTriangleList).
		AddDynamicState(vk.DynamicStateViewport).
		Viewport(0, 0, 0, 0).
		Scissor(0, 0, maxScissor, maxScissor).
		DebugName(name).
		Create(lm.dev)
	if err != nil {
		return err
	}
	lm.own(pipeline)
	p.pipelines = append(p.pipelines, pipeline)
	return nil
}

func (lm *Lightmapper) createResolvePipeline() error {
	if err := lm.createScreenPass(&lm.resolve, "resolve", 1, false); err != nil {
		return err
	}
	return lm.screenPipeline(&lm.resolve, lm.shaders.fragResolve, "resolve.pipeline")
}

func (lm *Lightmapper) createBlurPipeline() error {
	if err := lm.createScreenPass(&lm.blur, "blur", 2, true); err != nil {
		return err
	}
	for i, code := range lm.shaders.fragBlur {
		if err := lm.screenPipeline(&lm.blur, code, fmt.Sprintf("blur.pipeline%d", i)); err != nil {
			return err
		}
	}
	return nil
}

func (lm *Lightmapper) createCopyPipeline() error {
	p := &lm.copy
	layout, err := vulkan.NewDescriptorSetLayoutBuilder().
		AddBinding(0, vk.DescriptorTypeCombinedImageSampler, 1, vk.ShaderStageFlags(vk.ShaderStageFragmentBit)).
		AddBinding(1, vk.DescriptorTypeStorageBuffer, 1, vk.ShaderStageFlags(vk.ShaderStageVertexBit)).
		DebugName("copy.descriptorSetLayout").
		Create(lm.dev)
	if err != nil {
		return err
	}
	lm.own(layout)
	p.setLayout = layout

	pipelineLayout, err := vulkan.NewPipelineLayoutBuilder().
		AddSetLayout(layout).
		AddPushConstantRange(vk.ShaderStageFlags(vk.ShaderStageVertexBit), 0, copyPCSize).
		DebugName("copy.pipelineLayout").
		Create(lm.dev)
	if err != nil {
		return err
	}
	lm.own(pipelineLayout)
	p.pipelineLayout = pipelineLayout

	colorOutput := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	renderPass, err := vulkan.NewRenderPassBuilder().
		AddAttachment(bakeFormat, vk.SampleCount1Bit, vk.AttachmentLoadOpLoad, vk.AttachmentStoreOpStore,
			vk.ImageLayoutColorAttachmentOptimal, vk.ImageLayoutColorAttachmentOptimal).
		AddAttachment(probeFormat, vk.SampleCount1Bit, vk.AttachmentLoadOpLoad, vk.AttachmentStoreOpStore,
			vk.ImageLayoutColorAttachmentOptimal, vk.ImageLayoutColorAttachmentOptimal).
		AddSubpass().
		AddSubpassColorAttachmentRef(0, vk.ImageLayoutColorAttachmentOptimal).
		AddSubpassColorAttachmentRef(1, vk.ImageLayoutColorAttachmentOptimal).
		AddExternalSubpassDependency(colorOutput, colorOutput,
			vk.AccessFlags(vk.AccessColorAttachmentWriteBit), vk.AccessFlags(vk.AccessColorAttachmentReadBit)).
		DebugName("copy.renderpass").
		Create(lm.dev)
	if err != nil {
		return err
	}
	lm.own(renderPass)
	p.renderPass = renderPass

	pipeline, err := vulkan.NewGraphicsPipelineBuilder().
		Cache(lm.ctx.Cache).
		Layout(pipelineLayout).
		RenderPass(renderPass).
		AddVertexShader(lm.shaders.vertCopy).
		AddFragmentShader(lm.shaders.fragCopy).
		Topology(vk.PrimitiveTopologyTriangleStrip).
		AddDynamicState(vk.DynamicStateViewport).
		AddColorBlendAttachment(vulkan.NewColorBlendAttachmentBuilder().Create()).
		AddColorBlendAttachment(vulkan.NewColorBlendAttachmentBuilder().Create()).
		Viewport(0, 0, 0, 0).
		Scissor(0, 0, maxScissor, maxScissor).
		DebugName("copy.pipeline").
		Create(lm.dev)
	if err != nil {
		return err
	}
	lm.own(pipeline)
	p.pipelines = append(p.pipelines, pipeline)

	pool, err := vulkan.NewDescriptorPoolBuilder().
		AddPoolSize(vk.DescriptorTypeCombinedImageSampler, 1).
		AddPoolSize(vk.DescriptorTypeStorageBuffer, 1).
		MaxSets(1).
		DebugName("copy.descriptorPool").
		Create(lm.dev)
	if err != nil {
		return err
	}
	lm.own(pool)
	p.pool = pool

	sampler, err := vulkan.NewSamplerBuilder().
		MinFilter(vk.FilterNearest).
		MagFilter(vk.FilterNearest).
		MipmapMode(vk.SamplerMipmapModeNearest).
		DebugName("copy.sampler").
		Create(lm.dev)
	if err != nil {
		return err
	}
	lm.own(sampler)
	p.sampler = sampler
	return nil
}

func (lm *Lightmapper) createBakeTarget(t *bakeTarget, name string, samples vk.SampleCountFlagBits, usage vk.ImageUsageFlags, rp *vulkan.RenderPass) error {
	size := uint32(lm.bakeSize)
	img, err := vulkan.NewImageBuilder().
		Usage(usage).
		Format(bakeFormat).
		Size(size, size).
		Samples(samples).
		DebugName(name + ".Image").
		Create(lm.dev)
	if err != nil {
		return err
	}
	lm.own(img)
	t.image = img

	view, err := vulkan.NewImageViewBuilder().
		Image(img, bakeFormat).
		DebugName(name + ".View").
		Create(lm.dev)
	if err != nil {
		return err
	}
	lm.own(view)
	t.view = view

	fb, err := vulkan.NewFramebufferBuilder().
		RenderPass(rp).
		Size(size, size).
		AddAttachment(view).
		DebugName(name + ".Framebuffer").
		Create(lm.dev)
	if err != nil {
		return err
	}
	lm.own(fb)
	t.framebuffer = fb
	return nil
}

func (lm *Lightmapper) createBakeImage() error {
	colorSampled := vk.ImageUsageColorAttachmentBit | vk.ImageUsageSampledBit
	b := &lm.bake

	if err := lm.createBakeTarget(&b.raytrace, "LightmapImage.raytrace", bakeSamples,
		vk.ImageUsageFlags(colorSampled), lm.raytrace.renderPass); err != nil {
		return err
	}
	if err := lm.createBakeTarget(&b.resolve, "LightmapImage.resolve", vk.SampleCount1Bit,
		vk.ImageUsageFlags(colorSampled|vk.ImageUsageTransferSrcBit), lm.resolve.renderPass); err != nil {
		return err
	}
	if err := lm.createBakeTarget(&b.blur, "LightmapImage.blur", vk.SampleCount1Bit,
		vk.ImageUsageFlags(colorSampled), lm.blur.renderPass); err != nil {
		return err
	}

	var err error
	if b.resolveSet, err = lm.resolve.pool.Allocate(lm.resolve.setLayout); err != nil {
		return err
	}
	for i := range b.blurSets {
		if b.blurSets[i], err = lm.blur.pool.Allocate(lm.blur.setLayout); err != nil {
			return err
		}
	}
	if b.copySet, err = lm.copy.pool.Allocate(lm.copy.setLayout); err != nil {
		return err
	}

	return vulkan.NewWriteDescriptors().
		AddCombinedImageSampler(b.resolveSet, 0, b.raytrace.view, lm.resolve.sampler, vk.ImageLayoutShaderReadOnlyOptimal).
		AddCombinedImageSampler(b.blurSets[0], 0, b.resolve.view, lm.blur.sampler, vk.ImageLayoutShaderReadOnlyOptimal).
		AddCombinedImageSampler(b.blurSets[1], 0, b.blur.view, lm.blur.sampler, vk.ImageLayoutShaderReadOnlyOptimal).
		AddCombinedImageSampler(b.copySet, 0, b.resolve.view, lm.copy.sampler, vk.ImageLayoutShaderReadOnlyOptimal).
		AddBuffer(b.copySet, 1, vk.DescriptorTypeStorageBuffer, lm.copyTilesBuffer).
		Execute(lm.dev)
}

func (lm *Lightmapper) updateAccelStructDescriptors() error {
	mesh := lm.mesh
	rt := &lm.raytrace
	storage := vk.DescriptorTypeStorageBuffer

	writes := vulkan.NewWriteDescriptors()
	if lm.useRayQuery {
		accel := mesh.AccelStruct()
		if accel == nil {
			return fmt.Errorf("%w: level mesh has no acceleration structure", core.ErrUnsupported)
		}
		writes.AddAccelerationStructure(rt.set1, 0, accel)
	} else {
		writes.AddBuffer(rt.set1, 0, storage, mesh.NodeBuffer())
	}
	writes.
		AddBuffer(rt.set1, 1, storage, mesh.VertexBuffer()).
		AddBuffer(rt.set1, 2, storage, mesh.IndexBuffer())

	writes.
		AddBufferRange(rt.set0, 0, vk.DescriptorTypeUniformBuffer, lm.uniformBuffer, 0, uniformsSize).
		AddBuffer(rt.set0, 1, storage, mesh.SurfaceIndexBuffer()).
		AddBuffer(rt.set0, 2, storage, mesh.SurfaceBuffer()).
		AddBuffer(rt.set0, 3, storage, mesh.LightBuffer()).
		AddBuffer(rt.set0, 4, storage, mesh.LightIndexBuffer()).
		AddBuffer(rt.set0, 5, storage, mesh.PortalBuffer()).
		AddBufferRange(rt.set0, 6, storage, lm.drawConstantsBuffer, 0, uint64(lm.drawCommands.BufferSize)*raytracePCSize)
	return writes.Execute(lm.dev)
}
