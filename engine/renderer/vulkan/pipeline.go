package vulkan

import (
	"encoding/binary"
	"math"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

const shaderEntryPoint = "main\x00"

// PipelineLibraryFlags selects the parts of the graphics state a library pipeline carries.
type PipelineLibraryFlags uint32

const (
	LibraryVertexInput PipelineLibraryFlags = 1 << iota
	LibraryPreRasterization
	LibraryFragmentShader
	LibraryFragmentOutput

	LibraryAll = LibraryVertexInput | LibraryPreRasterization | LibraryFragmentShader | LibraryFragmentOutput
)

// Pipeline is a compiled pipeline, or a library holding part of the graphics state when Library is set.
type Pipeline struct {
	Handle    vk.Pipeline
	Layout    *PipelineLayout
	BindPoint vk.PipelineBindPoint
	Library   PipelineLibraryFlags
	state     *graphicsState
	dev       Device
}

func (p *Pipeline) IsLibrary() bool {
	return p != nil && p.Library != 0
}

func (p *Pipeline) Release() {
	if p == nil {
		return
	}
	if p.dev != nil {
		p.dev.Destroy(p.Handle)
	}
	p.Handle = nil
	p.state = nil
	p.dev = nil
}

// specConstants packs specialization constants into a single blob shared by every stage.
type specConstants struct {
	entries []vk.SpecializationMapEntry
	data    []byte
}

func (s *specConstants) add(id uint32, value []byte) {
	s.entries = append(s.entries, vk.SpecializationMapEntry{
		ConstantID: id,
		Offset:     uint32(len(s.data)),
		Size:       uint64(len(value)),
	})
	s.data = append(s.data, value...)
}

func (s *specConstants) has(id uint32) bool {
	for _, e := range s.entries {
		if e.ConstantID == id {
			return true
		}
	}
	return false
}

func (s *specConstants) validate() error {
	seen := make(map[uint32]bool, len(s.entries))
	for _, e := range s.entries {
		switch e.Size {
		case 1, 2, 4, 8:
		default:
			return invalidDescriptor("specialization constant %d has size %d", e.ConstantID, e.Size)
		}
		if seen[e.ConstantID] {
			return invalidDescriptor("specialization constant %d is set twice", e.ConstantID)
		}
		seen[e.ConstantID] = true
		if uint64(e.Offset)+e.Size > uint64(len(s.data)) {
			return invalidDescriptor("specialization constant %d lies outside of the constant data", e.ConstantID)
		}
	}
	return nil
}

func (s *specConstants) info() []vk.SpecializationInfo {
	if len(s.entries) == 0 {
		return nil
	}
	return []vk.SpecializationInfo{{
		MapEntryCount: uint32(len(s.entries)),
		PMapEntries:   s.entries,
		DataSize:      uint64(len(s.data)),
		PData:         unsafe.Pointer(&s.data[0]),
	}}
}

func uint32Bytes(value uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, value)
}

type PipelineLayoutBuilder struct {
	setLayouts    []*DescriptorSetLayout
	pushConstants []vk.PushConstantRange
	debugName     string
}

func NewPipelineLayoutBuilder() *PipelineLayoutBuilder {
	return &PipelineLayoutBuilder{}
}

func (b *PipelineLayoutBuilder) AddSetLayout(layout *DescriptorSetLayout) *PipelineLayoutBuilder {
	b.setLayouts = append(b.setLayouts, layout)
	return b
}

func (b *PipelineLayoutBuilder) AddPushConstantRange(stages vk.ShaderStageFlags, offset, size uint32) *PipelineLayoutBuilder {
	b.pushConstants = append(b.pushConstants, vk.PushConstantRange{
		StageFlags: stages,
		Offset:     offset,
		Size:       size,
	})
	return b
}

func (b *PipelineLayoutBuilder) DebugName(name string) *PipelineLayoutBuilder {
	b.debugName = name
	return b
}

func (b *PipelineLayoutBuilder) Create(dev Device) (*PipelineLayout, error) {
	setLayouts, ranges, name := b.setLayouts, b.pushConstants, b.debugName
	b.setLayouts, b.pushConstants, b.debugName = nil, nil, ""

	// NOTE: 32 ranges of 4 bytes fill the 128 bytes every device guarantees.
	if len(ranges) > 32 {
		return nil, invalidDescriptor("pipeline layout %q has %d push constant ranges, at most 32 are allowed", name, len(ranges))
	}
	for _, r := range ranges {
		if r.Size == 0 || r.Size%4 != 0 || r.Offset%4 != 0 {
			return nil, invalidDescriptor("pipeline layout %q push constant range %d+%d is not 4 byte aligned", name, r.Offset, r.Size)
		}
	}

	handles := make([]vk.DescriptorSetLayout, len(setLayouts))
	for i, l := range setLayouts {
		if l == nil || l.Handle == nil {
			return nil, invalidDescriptor("pipeline layout %q set %d has no layout", name, i)
		}
		handles[i] = l.Handle
	}

	info := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(handles)),
		PSetLayouts:            handles,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}
	handle, err := dev.CreatePipelineLayout(&info)
	if err != nil {
		return nil, createError("pipeline layout", name, err)
	}
	setDebugName(dev, handle, name)
	return &PipelineLayout{Handle: handle, SetLayouts: setLayouts, PushConstants: ranges, dev: dev}, nil
}

type PipelineCacheBuilder struct {
	initialData []byte
	flags       vk.PipelineCacheCreateFlags
	debugName   string
}

func NewPipelineCacheBuilder() *PipelineCacheBuilder {
	return &PipelineCacheBuilder{}
}

// InitialData seeds the cache with the output of a previous PipelineCache.Data call.
func (b *PipelineCacheBuilder) InitialData(data []byte) *PipelineCacheBuilder {
	b.initialData = append([]byte(nil), data...)
	return b
}

func (b *PipelineCacheBuilder) Flags(flags vk.PipelineCacheCreateFlags) *PipelineCacheBuilder {
	b.flags = flags
	return b
}

func (b *PipelineCacheBuilder) DebugName(name string) *PipelineCacheBuilder {
	b.debugName = name
	return b
}

func (b *PipelineCacheBuilder) Create(dev Device) (*PipelineCache, error) {
	data, flags, name := b.initialData, b.flags, b.debugName
	b.initialData, b.flags, b.debugName = nil, 0, ""

	info := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
		Flags: flags,
	}
	if len(data) > 0 {
		info.InitialDataSize = uint64(len(data))
		info.PInitialData = unsafe.Pointer(&data[0])
	}
	handle, err := dev.CreatePipelineCache(&info)
	if err != nil {
		return nil, createError("pipeline cache", name, err)
	}
	setDebugName(dev, handle, name)
	return &PipelineCache{Handle: handle, dev: dev}, nil
}

type ColorBlendAttachmentBuilder struct {
	state vk.PipelineColorBlendAttachmentState
}

func NewColorBlendAttachmentBuilder() *ColorBlendAttachmentBuilder {
	return &ColorBlendAttachmentBuilder{state: defaultBlendAttachment()}
}

func defaultBlendAttachment() vk.PipelineColorBlendAttachmentState {
	return vk.PipelineColorBlendAttachmentState{
		BlendEnable: vk.False,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
		SrcColorBlendFactor: vk.BlendFactorOne,
		DstColorBlendFactor: vk.BlendFactorZero,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorOne,
		DstAlphaBlendFactor: vk.BlendFactorZero,
		AlphaBlendOp:        vk.BlendOpAdd,
	}
}

func (b *ColorBlendAttachmentBuilder) ColorWriteMask(mask vk.ColorComponentFlags) *ColorBlendAttachmentBuilder {
	b.state.ColorWriteMask = mask
	return b
}

func (b *ColorBlendAttachmentBuilder) AdditiveBlendMode() *ColorBlendAttachmentBuilder {
	b.state.BlendEnable = vk.True
	b.state.SrcColorBlendFactor = vk.BlendFactorOne
	b.state.DstColorBlendFactor = vk.BlendFactorOne
	b.state.ColorBlendOp = vk.BlendOpAdd
	b.state.SrcAlphaBlendFactor = vk.BlendFactorSrcAlpha
	b.state.DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
	b.state.AlphaBlendOp = vk.BlendOpAdd
	return b
}

func (b *ColorBlendAttachmentBuilder) AlphaBlendMode() *ColorBlendAttachmentBuilder {
	b.state.BlendEnable = vk.True
	b.state.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
	b.state.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
	b.state.ColorBlendOp = vk.BlendOpAdd
	b.state.SrcAlphaBlendFactor = vk.BlendFactorSrcAlpha
	b.state.DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
	b.state.AlphaBlendOp = vk.BlendOpAdd
	return b
}

// BlendMode uses the same operation and factors for color and alpha.
func (b *ColorBlendAttachmentBuilder) BlendMode(op vk.BlendOp, src, dst vk.BlendFactor) *ColorBlendAttachmentBuilder {
	b.state.BlendEnable = vk.True
	b.state.SrcColorBlendFactor = src
	b.state.DstColorBlendFactor = dst
	b.state.ColorBlendOp = op
	b.state.SrcAlphaBlendFactor = src
	b.state.DstAlphaBlendFactor = dst
	b.state.AlphaBlendOp = op
	return b
}

func (b *ColorBlendAttachmentBuilder) Create() vk.PipelineColorBlendAttachmentState {
	state := b.state
	b.state = defaultBlendAttachment()
	return state
}

// graphicsState is everything a graphics pipeline is made of, grouped by library part.
type graphicsState struct {
	// vertex input
	bindings   []vk.VertexInputBindingDescription
	attributes []vk.VertexInputAttributeDescription
	topology   vk.PrimitiveTopology

	// pre-rasterization
	vertexShader []byte
	viewport     vk.Viewport
	scissor      vk.Rect2D
	raster       vk.PipelineRasterizationStateCreateInfo

	// fragment shader
	fragmentShader []byte
	depthStencil   vk.PipelineDepthStencilStateCreateInfo

	// fragment output
	blendAttachments []vk.PipelineColorBlendAttachmentState
	samples          vk.SampleCountFlagBits

	layout        *PipelineLayout
	renderPass    *RenderPass
	subpass       uint32
	dynamicStates []vk.DynamicState
	constants     specConstants
}

func defaultGraphicsState() graphicsState {
	return graphicsState{
		topology: vk.PrimitiveTopologyTriangleList,
		viewport: vk.Viewport{MaxDepth: 1.0},
		raster: vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vk.PolygonModeFill,
			CullMode:    vk.CullModeFlags(vk.CullModeNone),
			FrontFace:   vk.FrontFaceClockwise,
			LineWidth:   1.0,
		},
		depthStencil: vk.PipelineDepthStencilStateCreateInfo{
			SType:          vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthCompareOp: vk.CompareOpLess,
			MaxDepthBounds: 1.0,
		},
		samples: vk.SampleCount1Bit,
	}
}

// merge copies the parts selected by flags out of a library.
func (s *graphicsState) merge(lib *graphicsState, flags PipelineLibraryFlags) {
	if flags&LibraryVertexInput != 0 {
		s.bindings = append([]vk.VertexInputBindingDescription(nil), lib.bindings...)
		s.attributes = append([]vk.VertexInputAttributeDescription(nil), lib.attributes...)
		s.topology = lib.topology
	}
	if flags&LibraryPreRasterization != 0 {
		s.vertexShader = lib.vertexShader
		s.viewport = lib.viewport
		s.scissor = lib.scissor
		s.raster = lib.raster
	}
	if flags&LibraryFragmentShader != 0 {
		s.fragmentShader = lib.fragmentShader
		s.depthStencil = lib.depthStencil
	}
	if flags&LibraryFragmentOutput != 0 {
		s.blendAttachments = append([]vk.PipelineColorBlendAttachmentState(nil), lib.blendAttachments...)
		s.samples = lib.samples
	}
	if flags&(LibraryPreRasterization|LibraryFragmentShader) != 0 && lib.layout != nil {
		s.layout = lib.layout
	}
	if flags&^LibraryVertexInput != 0 && lib.renderPass != nil {
		s.renderPass = lib.renderPass
		s.subpass = lib.subpass
	}
	for _, d := range lib.dynamicStates {
		if !containsDynamicState(s.dynamicStates, d) {
			s.dynamicStates = append(s.dynamicStates, d)
		}
	}
	for _, e := range lib.constants.entries {
		if !s.constants.has(e.ConstantID) {
			s.constants.add(e.ConstantID, lib.constants.data[e.Offset:uint64(e.Offset)+e.Size])
		}
	}
}

func containsDynamicState(list []vk.DynamicState, state vk.DynamicState) bool {
	for _, d := range list {
		if d == state {
			return true
		}
	}
	return false
}

func (s *graphicsState) validate(parts PipelineLibraryFlags, name string) error {
	if parts&(LibraryPreRasterization|LibraryFragmentShader) != 0 && (s.layout == nil || s.layout.Handle == nil) {
		return invalidDescriptor("graphics pipeline %q has no layout", name)
	}
	if parts&^LibraryVertexInput != 0 && (s.renderPass == nil || s.renderPass.Handle == nil) {
		return invalidDescriptor("graphics pipeline %q has no render pass", name)
	}
	if parts&LibraryPreRasterization != 0 && len(s.vertexShader) == 0 {
		return invalidDescriptor("graphics pipeline %q has no vertex shader", name)
	}
	return s.constants.validate()
}

type GraphicsPipelineBuilder struct {
	state        graphicsState
	cache        *PipelineCache
	flags        vk.PipelineCreateFlags
	libraryFlags PipelineLibraryFlags
	linked       PipelineLibraryFlags
	debugName    string
}

func NewGraphicsPipelineBuilder() *GraphicsPipelineBuilder {
	b := &GraphicsPipelineBuilder{}
	b.reset()
	return b
}

func (b *GraphicsPipelineBuilder) reset() {
	*b = GraphicsPipelineBuilder{state: defaultGraphicsState()}
}

func (b *GraphicsPipelineBuilder) Cache(cache *PipelineCache) *GraphicsPipelineBuilder {
	b.cache = cache
	return b
}

func (b *GraphicsPipelineBuilder) Subpass(subpass uint32) *GraphicsPipelineBuilder {
	b.state.subpass = subpass
	return b
}

func (b *GraphicsPipelineBuilder) Layout(layout *PipelineLayout) *GraphicsPipelineBuilder {
	b.state.layout = layout
	return b
}

func (b *GraphicsPipelineBuilder) RenderPass(rp *RenderPass) *GraphicsPipelineBuilder {
	b.state.renderPass = rp
	return b
}

func (b *GraphicsPipelineBuilder) Topology(topology vk.PrimitiveTopology) *GraphicsPipelineBuilder {
	b.state.topology = topology
	return b
}

func (b *GraphicsPipelineBuilder) Viewport(x, y, width, height float32, depthRange ...float32) *GraphicsPipelineBuilder {
	b.state.viewport = vk.Viewport{X: x, Y: y, Width: width, Height: height, MinDepth: 0.0, MaxDepth: 1.0}
	if len(depthRange) == 2 {
		b.state.viewport.MinDepth = depthRange[0]
		b.state.viewport.MaxDepth = depthRange[1]
	}
	return b
}

func (b *GraphicsPipelineBuilder) Scissor(x, y int32, width, height uint32) *GraphicsPipelineBuilder {
	b.state.scissor = vk.Rect2D{
		Offset: vk.Offset2D{X: x, Y: y},
		Extent: vk.Extent2D{Width: width, Height: height},
	}
	return b
}

func (b *GraphicsPipelineBuilder) RasterizationSamples(samples vk.SampleCountFlagBits) *GraphicsPipelineBuilder {
	b.state.samples = samples
	return b
}

func (b *GraphicsPipelineBuilder) Cull(mode vk.CullModeFlags, frontFace vk.FrontFace) *GraphicsPipelineBuilder {
	b.state.raster.CullMode = mode
	b.state.raster.FrontFace = frontFace
	return b
}

func (b *GraphicsPipelineBuilder) DepthStencilEnable(test, write, stencil bool) *GraphicsPipelineBuilder {
	b.state.depthStencil.DepthTestEnable = vkBool(test)
	b.state.depthStencil.DepthWriteEnable = vkBool(write)
	b.state.depthStencil.StencilTestEnable = vkBool(stencil)
	return b
}

func (b *GraphicsPipelineBuilder) DepthFunc(op vk.CompareOp) *GraphicsPipelineBuilder {
	b.state.depthStencil.DepthCompareOp = op
	return b
}

func (b *GraphicsPipelineBuilder) DepthClampEnable(enable bool) *GraphicsPipelineBuilder {
	b.state.raster.DepthClampEnable = vkBool(enable)
	return b
}

func (b *GraphicsPipelineBuilder) DepthBias(enable bool, constantFactor, clamp, slopeFactor float32) *GraphicsPipelineBuilder {
	b.state.raster.DepthBiasEnable = vkBool(enable)
	b.state.raster.DepthBiasConstantFactor = constantFactor
	b.state.raster.DepthBiasClamp = clamp
	b.state.raster.DepthBiasSlopeFactor = slopeFactor
	return b
}

// Stencil applies the same stencil state to front and back faces.
func (b *GraphicsPipelineBuilder) Stencil(failOp, passOp, depthFailOp vk.StencilOp, compareOp vk.CompareOp,
	compareMask, writeMask, reference uint32) *GraphicsPipelineBuilder {
	op := vk.StencilOpState{
		FailOp:      failOp,
		PassOp:      passOp,
		DepthFailOp: depthFailOp,
		CompareOp:   compareOp,
		CompareMask: compareMask,
		WriteMask:   writeMask,
		Reference:   reference,
	}
	b.state.depthStencil.Front = op
	b.state.depthStencil.Back = op
	return b
}

func (b *GraphicsPipelineBuilder) PolygonMode(mode vk.PolygonMode) *GraphicsPipelineBuilder {
	b.state.raster.PolygonMode = mode
	return b
}

func (b *GraphicsPipelineBuilder) AddColorBlendAttachment(state vk.PipelineColorBlendAttachmentState) *GraphicsPipelineBuilder {
	b.state.blendAttachments = append(b.state.blendAttachments, state)
	return b
}

func (b *GraphicsPipelineBuilder) AddVertexShader(spirv []byte) *GraphicsPipelineBuilder {
	b.state.vertexShader = spirv
	return b
}

func (b *GraphicsPipelineBuilder) AddFragmentShader(spirv []byte) *GraphicsPipelineBuilder {
	b.state.fragmentShader = spirv
	return b
}

// AddConstant appends a specialization constant. It is checked by Create.
func (b *GraphicsPipelineBuilder) AddConstant(id uint32, value []byte) *GraphicsPipelineBuilder {
	b.state.constants.add(id, value)
	return b
}

func (b *GraphicsPipelineBuilder) AddConstantUint32(id uint32, value uint32) *GraphicsPipelineBuilder {
	return b.AddConstant(id, uint32Bytes(value))
}

func (b *GraphicsPipelineBuilder) AddConstantInt32(id uint32, value int32) *GraphicsPipelineBuilder {
	return b.AddConstant(id, uint32Bytes(uint32(value)))
}

func (b *GraphicsPipelineBuilder) AddConstantFloat32(id uint32, value float32) *GraphicsPipelineBuilder {
	return b.AddConstant(id, uint32Bytes(math.Float32bits(value)))
}

func (b *GraphicsPipelineBuilder) AddVertexBufferBinding(index, stride uint32) *GraphicsPipelineBuilder {
	b.state.bindings = append(b.state.bindings, vk.VertexInputBindingDescription{
		Binding:   index,
		Stride:    stride,
		InputRate: vk.VertexInputRateVertex,
	})
	return b
}

func (b *GraphicsPipelineBuilder) AddVertexAttribute(location, binding uint32, format vk.Format, offset uint32) *GraphicsPipelineBuilder {
	b.state.attributes = append(b.state.attributes, vk.VertexInputAttributeDescription{
		Location: location,
		Binding:  binding,
		Format:   format,
		Offset:   offset,
	})
	return b
}

func (b *GraphicsPipelineBuilder) AddDynamicState(state vk.DynamicState) *GraphicsPipelineBuilder {
	if !containsDynamicState(b.state.dynamicStates, state) {
		b.state.dynamicStates = append(b.state.dynamicStates, state)
	}
	return b
}

func (b *GraphicsPipelineBuilder) Flags(flags vk.PipelineCreateFlags) *GraphicsPipelineBuilder {
	b.flags = flags
	return b
}

// LibraryFlags turns Create into building a library holding only the selected parts.
func (b *GraphicsPipelineBuilder) LibraryFlags(flags PipelineLibraryFlags) *GraphicsPipelineBuilder {
	b.libraryFlags = flags
	return b
}

func (b *GraphicsPipelineBuilder) AddLibrary(lib *Pipeline) *GraphicsPipelineBuilder {
	if lib == nil || lib.state == nil {
		return b
	}
	b.state.merge(lib.state, lib.Library)
	b.linked |= lib.Library
	return b
}

func (b *GraphicsPipelineBuilder) DebugName(name string) *GraphicsPipelineBuilder {
	b.debugName = name
	return b
}

func (b *GraphicsPipelineBuilder) Create(dev Device) (*Pipeline, error) {
	defer b.reset()

	name := b.debugName
	st := b.state

	if b.libraryFlags != 0 {
		if b.libraryFlags&^LibraryAll != 0 {
			return nil, invalidDescriptor("graphics pipeline library %q has unknown parts %#x", name, uint32(b.libraryFlags))
		}
		if err := st.validate(b.libraryFlags, name); err != nil {
			return nil, err
		}
		core.LogDebug("graphics pipeline library %q created with parts %#x", name, uint32(b.libraryFlags))
		return &Pipeline{
			Layout:    st.layout,
			BindPoint: vk.PipelineBindPointGraphics,
			Library:   b.libraryFlags,
			state:     &st,
		}, nil
	}

	if b.linked != 0 && b.linked != LibraryAll {
		return nil, invalidDescriptor("graphics pipeline %q links libraries covering only parts %#x", name, uint32(b.linked))
	}
	if err := st.validate(LibraryAll, name); err != nil {
		return nil, err
	}

	blendAttachments := st.blendAttachments
	if len(blendAttachments) == 0 {
		blendAttachments = []vk.PipelineColorBlendAttachmentState{defaultBlendAttachment()}
	}

	spec := st.constants.info()
	var stages []vk.PipelineShaderStageCreateInfo
	var modules []vk.ShaderModule
	defer func() {
		for _, m := range modules {
			dev.Destroy(m)
		}
	}()

	addStage := func(stage vk.ShaderStageFlagBits, code []byte) error {
		module, err := dev.CreateShaderModule(code)
		if err != nil {
			return err
		}
		modules = append(modules, module)
		stages = append(stages, vk.PipelineShaderStageCreateInfo{
			SType:               vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:               stage,
			Module:              module,
			PName:               shaderEntryPoint,
			PSpecializationInfo: spec,
		})
		return nil
	}
	if err := addStage(vk.ShaderStageVertexBit, st.vertexShader); err != nil {
		return nil, createError("graphics pipeline", name, err)
	}
	if len(st.fragmentShader) > 0 {
		if err := addStage(vk.ShaderStageFragmentBit, st.fragmentShader); err != nil {
			return nil, createError("graphics pipeline", name, err)
		}
	}

	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(st.bindings)),
		PVertexBindingDescriptions:      st.bindings,
		VertexAttributeDescriptionCount: uint32(len(st.attributes)),
		PVertexAttributeDescriptions:    st.attributes,
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               st.topology,
		PrimitiveRestartEnable: vk.False,
	}
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports:    []vk.Viewport{st.viewport},
		ScissorCount:  1,
		PScissors:     []vk.Rect2D{st.scissor},
	}
	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: st.samples,
		SampleShadingEnable:  vk.False,
		MinSampleShading:     1.0,
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	info := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		Flags:               b.flags,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &st.raster,
		PMultisampleState:   &multisample,
		PDepthStencilState:  &st.depthStencil,
		PColorBlendState:    &colorBlend,
		Layout:              st.layout.Handle,
		RenderPass:          st.renderPass.Handle,
		Subpass:             st.subpass,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}
	if len(st.dynamicStates) > 0 {
		info.PDynamicState = &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: uint32(len(st.dynamicStates)),
			PDynamicStates:    st.dynamicStates,
		}
	}

	handle, err := dev.CreateGraphicsPipeline(cacheHandle(b.cache), &info)
	if err != nil {
		return nil, createError("graphics pipeline", name, err)
	}
	setDebugName(dev, handle, name)

	return &Pipeline{
		Handle:    handle,
		Layout:    st.layout,
		BindPoint: vk.PipelineBindPointGraphics,
		dev:       dev,
	}, nil
}

type ComputePipelineBuilder struct {
	cache     *PipelineCache
	layout    *PipelineLayout
	shader    []byte
	constants specConstants
	debugName string
}

func NewComputePipelineBuilder() *ComputePipelineBuilder {
	return &ComputePipelineBuilder{}
}

func (b *ComputePipelineBuilder) Cache(cache *PipelineCache) *ComputePipelineBuilder {
	b.cache = cache
	return b
}

func (b *ComputePipelineBuilder) Layout(layout *PipelineLayout) *ComputePipelineBuilder {
	b.layout = layout
	return b
}

func (b *ComputePipelineBuilder) ComputeShader(spirv []byte) *ComputePipelineBuilder {
	b.shader = spirv
	return b
}

func (b *ComputePipelineBuilder) AddConstant(id uint32, value []byte) *ComputePipelineBuilder {
	b.constants.add(id, value)
	return b
}

func (b *ComputePipelineBuilder) AddConstantUint32(id uint32, value uint32) *ComputePipelineBuilder {
	return b.AddConstant(id, uint32Bytes(value))
}

func (b *ComputePipelineBuilder) AddConstantInt32(id uint32, value int32) *ComputePipelineBuilder {
	return b.AddConstant(id, uint32Bytes(uint32(value)))
}

func (b *ComputePipelineBuilder) AddConstantFloat32(id uint32, value float32) *ComputePipelineBuilder {
	return b.AddConstant(id, uint32Bytes(math.Float32bits(value)))
}

func (b *ComputePipelineBuilder) DebugName(name string) *ComputePipelineBuilder {
	b.debugName = name
	return b
}

func (b *ComputePipelineBuilder) Create(dev Device) (*Pipeline, error) {
	cache, layout, shader, constants, name := b.cache, b.layout, b.shader, b.constants, b.debugName
	*b = ComputePipelineBuilder{}

	if layout == nil || layout.Handle == nil {
		return nil, invalidDescriptor("compute pipeline %q has no layout", name)
	}
	if len(shader) == 0 {
		return nil, invalidDescriptor("compute pipeline %q has no compute shader", name)
	}
	if err := constants.validate(); err != nil {
		return nil, err
	}

	module, err := dev.CreateShaderModule(shader)
	if err != nil {
		return nil, createError("compute pipeline", name, err)
	}
	defer dev.Destroy(module)

	info := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:               vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:               vk.ShaderStageComputeBit,
			Module:              module,
			PName:               shaderEntryPoint,
			PSpecializationInfo: constants.info(),
		},
		Layout:             layout.Handle,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}
	handle, err := dev.CreateComputePipeline(cacheHandle(cache), &info)
	if err != nil {
		return nil, createError("compute pipeline", name, err)
	}
	setDebugName(dev, handle, name)

	return &Pipeline{
		Handle:    handle,
		Layout:    layout,
		BindPoint: vk.PipelineBindPointCompute,
		dev:       dev,
	}, nil
}

func cacheHandle(cache *PipelineCache) vk.PipelineCache {
	if cache == nil || cache.Handle == nil {
		return vk.NullPipelineCache
	}
	return cache.Handle
}

func vkBool(value bool) vk.Bool32 {
	if value {
		return vk.True
	}
	return vk.False
}
