package vulkan

import (
	vk "github.com/goki/vulkan"
)

type FramebufferBuilder struct {
	renderPass  *RenderPass
	attachments []vk.ImageView
	width       uint32
	height      uint32
	layers      uint32
	debugName   string
}

func NewFramebufferBuilder() *FramebufferBuilder {
	return &FramebufferBuilder{layers: 1}
}

func (b *FramebufferBuilder) RenderPass(rp *RenderPass) *FramebufferBuilder {
	b.renderPass = rp
	return b
}

func (b *FramebufferBuilder) AddAttachment(view *ImageView) *FramebufferBuilder {
	var handle vk.ImageView
	if view != nil {
		handle = view.Handle
	}
	b.attachments = append(b.attachments, handle)
	return b
}

func (b *FramebufferBuilder) Size(width, height uint32, layers ...uint32) *FramebufferBuilder {
	b.width = width
	b.height = height
	if len(layers) > 0 {
		b.layers = layers[0]
	}
	return b
}

func (b *FramebufferBuilder) DebugName(name string) *FramebufferBuilder {
	b.debugName = name
	return b
}

func (b *FramebufferBuilder) Create(dev Device) (*Framebuffer, error) {
	rp, attachments, name := b.renderPass, b.attachments, b.debugName
	width, height, layers := b.width, b.height, b.layers
	*b = FramebufferBuilder{layers: 1}

	if rp == nil || rp.Handle == nil {
		return nil, invalidDescriptor("framebuffer %q has no render pass", name)
	}
	if len(attachments) == 0 {
		return nil, invalidDescriptor("framebuffer %q has no attachments", name)
	}
	for i, a := range attachments {
		if a == nil {
			return nil, invalidDescriptor("framebuffer %q attachment %d is not a valid view", name, i)
		}
	}
	if width == 0 || height == 0 || layers == 0 {
		return nil, invalidDescriptor("framebuffer %q has zero size", name)
	}

	info := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp.Handle,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           width,
		Height:          height,
		Layers:          layers,
	}
	handle, err := dev.CreateFramebuffer(&info)
	if err != nil {
		return nil, createError("framebuffer", name, err)
	}
	setDebugName(dev, handle, name)
	return &Framebuffer{Handle: handle, Width: width, Height: height, Layers: layers, dev: dev}, nil
}
