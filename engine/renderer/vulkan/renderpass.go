package vulkan

import (
	vk "github.com/goki/vulkan"
)

type subpassState struct {
	colorRefs []vk.AttachmentReference
	depthRef  *vk.AttachmentReference
}

type RenderPassBuilder struct {
	attachments  []vk.AttachmentDescription
	dependencies []vk.SubpassDependency
	subpasses    []subpassState
	debugName    string
}

func NewRenderPassBuilder() *RenderPassBuilder {
	return &RenderPassBuilder{}
}

func (b *RenderPassBuilder) AddAttachment(format vk.Format, samples vk.SampleCountFlagBits, load vk.AttachmentLoadOp, store vk.AttachmentStoreOp,
	initialLayout, finalLayout vk.ImageLayout) *RenderPassBuilder {
	b.attachments = append(b.attachments, vk.AttachmentDescription{
		Format:         format,
		Samples:        samples,
		LoadOp:         load,
		StoreOp:        store,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  initialLayout,
		FinalLayout:    finalLayout,
	})
	return b
}

func (b *RenderPassBuilder) AddDepthStencilAttachment(format vk.Format, samples vk.SampleCountFlagBits, load vk.AttachmentLoadOp, store vk.AttachmentStoreOp,
	stencilLoad vk.AttachmentLoadOp, stencilStore vk.AttachmentStoreOp, initialLayout, finalLayout vk.ImageLayout) *RenderPassBuilder {
	b.attachments = append(b.attachments, vk.AttachmentDescription{
		Format:         format,
		Samples:        samples,
		LoadOp:         load,
		StoreOp:        store,
		StencilLoadOp:  stencilLoad,
		StencilStoreOp: stencilStore,
		InitialLayout:  initialLayout,
		FinalLayout:    finalLayout,
	})
	return b
}

// AddExternalSubpassDependency orders the first subpass after everything submitted before the pass.
func (b *RenderPassBuilder) AddExternalSubpassDependency(srcStages, dstStages vk.PipelineStageFlags, srcAccess, dstAccess vk.AccessFlags) *RenderPassBuilder {
	b.dependencies = append(b.dependencies, vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  srcStages,
		DstStageMask:  dstStages,
		SrcAccessMask: srcAccess,
		DstAccessMask: dstAccess,
	})
	return b
}

func (b *RenderPassBuilder) AddSubpass() *RenderPassBuilder {
	b.subpasses = append(b.subpasses, subpassState{})
	return b
}

// AddSubpassColorAttachmentRef adds a color reference to the last subpass added.
func (b *RenderPassBuilder) AddSubpassColorAttachmentRef(index uint32, layout vk.ImageLayout) *RenderPassBuilder {
	if len(b.subpasses) == 0 {
		b.AddSubpass()
	}
	last := &b.subpasses[len(b.subpasses)-1]
	last.colorRefs = append(last.colorRefs, vk.AttachmentReference{Attachment: index, Layout: layout})
	return b
}

func (b *RenderPassBuilder) AddSubpassDepthStencilAttachmentRef(index uint32, layout vk.ImageLayout) *RenderPassBuilder {
	if len(b.subpasses) == 0 {
		b.AddSubpass()
	}
	b.subpasses[len(b.subpasses)-1].depthRef = &vk.AttachmentReference{Attachment: index, Layout: layout}
	return b
}

func (b *RenderPassBuilder) DebugName(name string) *RenderPassBuilder {
	b.debugName = name
	return b
}

func (b *RenderPassBuilder) Create(dev Device) (*RenderPass, error) {
	attachments, dependencies, subpasses, name := b.attachments, b.dependencies, b.subpasses, b.debugName
	b.attachments, b.dependencies, b.subpasses, b.debugName = nil, nil, nil, ""

	if len(attachments) == 0 {
		return nil, invalidDescriptor("render pass %q has no attachments", name)
	}
	if len(subpasses) == 0 {
		return nil, invalidDescriptor("render pass %q has no subpasses", name)
	}

	descs := make([]vk.SubpassDescription, len(subpasses))
	for i, sp := range subpasses {
		for _, ref := range sp.colorRefs {
			if int(ref.Attachment) >= len(attachments) {
				return nil, invalidDescriptor("render pass %q subpass %d references attachment %d", name, i, ref.Attachment)
			}
		}
		if sp.depthRef != nil && int(sp.depthRef.Attachment) >= len(attachments) {
			return nil, invalidDescriptor("render pass %q subpass %d references depth attachment %d", name, i, sp.depthRef.Attachment)
		}
		descs[i] = vk.SubpassDescription{
			PipelineBindPoint:       vk.PipelineBindPointGraphics,
			ColorAttachmentCount:    uint32(len(sp.colorRefs)),
			PColorAttachments:       sp.colorRefs,
			PDepthStencilAttachment: sp.depthRef,
		}
	}

	info := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    uint32(len(descs)),
		PSubpasses:      descs,
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}
	handle, err := dev.CreateRenderPass(&info)
	if err != nil {
		return nil, createError("render pass", name, err)
	}
	setDebugName(dev, handle, name)
	return &RenderPass{Handle: handle, Attachments: attachments, dev: dev}, nil
}

// RenderPassBegin collects the begin info of a render pass instance.
type RenderPassBegin struct {
	renderPass  *RenderPass
	framebuffer *Framebuffer
	area        vk.Rect2D
	clears      []vk.ClearValue
}

func NewRenderPassBegin() *RenderPassBegin {
	return &RenderPassBegin{}
}

func (r *RenderPassBegin) RenderPass(rp *RenderPass) *RenderPassBegin {
	r.renderPass = rp
	return r
}

func (r *RenderPassBegin) RenderArea(x, y int32, width, height uint32) *RenderPassBegin {
	r.area = vk.Rect2D{
		Offset: vk.Offset2D{X: x, Y: y},
		Extent: vk.Extent2D{Width: width, Height: height},
	}
	return r
}

func (r *RenderPassBegin) Framebuffer(fb *Framebuffer) *RenderPassBegin {
	r.framebuffer = fb
	return r
}

func (r *RenderPassBegin) AddClearColor(red, green, blue, alpha float32) *RenderPassBegin {
	var value vk.ClearValue
	value.SetColor([]float32{red, green, blue, alpha})
	r.clears = append(r.clears, value)
	return r
}

func (r *RenderPassBegin) AddClearDepthStencil(depth float32, stencil uint32) *RenderPassBegin {
	var value vk.ClearValue
	value.SetDepthStencil(depth, stencil)
	r.clears = append(r.clears, value)
	return r
}

// Execute begins the render pass on cb. Missing pass or framebuffer is a programming error.
func (r *RenderPassBegin) Execute(cb CommandBuffer) error {
	if r.renderPass == nil || r.framebuffer == nil {
		return invalidDescriptor("render pass begin needs a render pass and a framebuffer")
	}
	info := vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      r.renderPass.Handle,
		Framebuffer:     r.framebuffer.Handle,
		RenderArea:      r.area,
		ClearValueCount: uint32(len(r.clears)),
		PClearValues:    r.clears,
	}
	cb.BeginRenderPass(&info)
	return nil
}
