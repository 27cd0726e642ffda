package vulkan

import (
	vk "github.com/goki/vulkan"
)

// Image owns a VkImage and the memory bound to it.
type Image struct {
	Handle      vk.Image
	Memory      *Allocation
	Width       uint32
	Height      uint32
	MipLevels   uint32
	ArrayLayers uint32
	Format      vk.Format
	Samples     vk.SampleCountFlagBits
	Usage       vk.ImageUsageFlags
	dev         Device
}

// AllocatedBytes is the size of the memory block backing the image.
func (img *Image) AllocatedBytes() uint64 {
	if img == nil || img.Memory == nil {
		return 0
	}
	return img.Memory.Size
}

func (img *Image) Release() {
	if img == nil || img.dev == nil {
		return
	}
	img.dev.Destroy(img.Handle)
	img.dev.Destroy(img.Memory)
	img.Handle = nil
	img.Memory = nil
	img.dev = nil
}

type ImageView struct {
	Handle     vk.ImageView
	Image      *Image
	Format     vk.Format
	Aspect     vk.ImageAspectFlags
	BaseMip    uint32
	LevelCount uint32
	BaseLayer  uint32
	LayerCount uint32
	dev        Device
}

func (v *ImageView) Release() {
	if v == nil || v.dev == nil {
		return
	}
	v.dev.Destroy(v.Handle)
	v.Handle = nil
	v.dev = nil
}

type Sampler struct {
	Handle vk.Sampler
	dev    Device
}

func (s *Sampler) Release() {
	if s == nil || s.dev == nil {
		return
	}
	s.dev.Destroy(s.Handle)
	s.Handle = nil
	s.dev = nil
}

// Buffer owns a VkBuffer and its memory.
type Buffer struct {
	Handle vk.Buffer
	Memory *Allocation
	Size   uint64
	Usage  vk.BufferUsageFlags
	dev    Device
}

// Map returns the buffer memory. Persistently mapped buffers return their existing mapping.
func (b *Buffer) Map() ([]byte, error) {
	if b.Memory != nil && b.Memory.Mapped != nil {
		return b.Memory.Mapped[:b.Size], nil
	}
	data, err := b.dev.MapMemory(b.Memory)
	if err != nil {
		return nil, err
	}
	return data[:b.Size], nil
}

func (b *Buffer) Unmap() {
	if b.dev != nil && b.Memory != nil && !b.Memory.Persistent {
		b.dev.UnmapMemory(b.Memory)
	}
}

// Mapped is the persistent mapping of a buffer created with Mapped, nil otherwise.
func (b *Buffer) Mapped() []byte {
	if b == nil || b.Memory == nil || b.Memory.Mapped == nil {
		return nil
	}
	return b.Memory.Mapped[:b.Size]
}

func (b *Buffer) Release() {
	if b == nil || b.dev == nil {
		return
	}
	b.dev.Destroy(b.Handle)
	b.dev.Destroy(b.Memory)
	b.Handle = nil
	b.Memory = nil
	b.dev = nil
}

type DescriptorSetLayout struct {
	Handle   vk.DescriptorSetLayout
	Bindings []vk.DescriptorSetLayoutBinding
	dev      Device
}

func (l *DescriptorSetLayout) Release() {
	if l == nil || l.dev == nil {
		return
	}
	l.dev.Destroy(l.Handle)
	l.Handle = nil
	l.dev = nil
}

type DescriptorPool struct {
	Handle  vk.DescriptorPool
	MaxSets uint32
	dev     Device
}

// Allocate takes one set with the given layout out of the pool.
func (p *DescriptorPool) Allocate(layout *DescriptorSetLayout) (*DescriptorSet, error) {
	if layout == nil {
		return nil, invalidDescriptor("descriptor set needs a layout")
	}
	set, err := p.dev.AllocateDescriptorSet(p.Handle, layout.Handle)
	if err != nil {
		return nil, createError("descriptor set", "", err)
	}
	return &DescriptorSet{Handle: set, Layout: layout, Pool: p}, nil
}

func (p *DescriptorPool) Release() {
	if p == nil || p.dev == nil {
		return
	}
	p.dev.Destroy(p.Handle)
	p.Handle = nil
	p.dev = nil
}

// DescriptorSet memory belongs to its pool and is reclaimed when the pool is released.
type DescriptorSet struct {
	Handle vk.DescriptorSet
	Layout *DescriptorSetLayout
	Pool   *DescriptorPool
}

func (s *DescriptorSet) Release() {
	if s != nil {
		s.Handle = nil
	}
}

type PipelineLayout struct {
	Handle        vk.PipelineLayout
	SetLayouts    []*DescriptorSetLayout
	PushConstants []vk.PushConstantRange
	dev           Device
}

func (l *PipelineLayout) Release() {
	if l == nil || l.dev == nil {
		return
	}
	l.dev.Destroy(l.Handle)
	l.Handle = nil
	l.dev = nil
}

type PipelineCache struct {
	Handle vk.PipelineCache
	dev    Device
}

// Data serializes the cache so it can be handed to InitialData on the next run.
func (c *PipelineCache) Data() ([]byte, error) {
	return c.dev.PipelineCacheData(c.Handle)
}

func (c *PipelineCache) Release() {
	if c == nil || c.dev == nil {
		return
	}
	c.dev.Destroy(c.Handle)
	c.Handle = nil
	c.dev = nil
}

type RenderPass struct {
	Handle      vk.RenderPass
	Attachments []vk.AttachmentDescription
	dev         Device
}

func (rp *RenderPass) Release() {
	if rp == nil || rp.dev == nil {
		return
	}
	rp.dev.Destroy(rp.Handle)
	rp.Handle = nil
	rp.dev = nil
}

type Framebuffer struct {
	Handle vk.Framebuffer
	Width  uint32
	Height uint32
	Layers uint32
	dev    Device
}

func (fb *Framebuffer) Release() {
	if fb == nil || fb.dev == nil {
		return
	}
	fb.dev.Destroy(fb.Handle)
	fb.Handle = nil
	fb.dev = nil
}

type Semaphore struct {
	Handle vk.Semaphore
	dev    Device
}

func (s *Semaphore) Release() {
	if s == nil || s.dev == nil {
		return
	}
	s.dev.Destroy(s.Handle)
	s.Handle = nil
	s.dev = nil
}

type QueryPool struct {
	Handle vk.QueryPool
	Type   vk.QueryType
	Count  uint32
	dev    Device
}

// Results blocks until the queries in [first, first+count) are available.
func (q *QueryPool) Results(first, count uint32) ([]uint64, error) {
	return q.dev.QueryResults(q.Handle, first, count)
}

func (q *QueryPool) Release() {
	if q == nil || q.dev == nil {
		return
	}
	q.dev.Destroy(q.Handle)
	q.Handle = nil
	q.dev = nil
}

type CommandPool struct {
	Handle vk.CommandPool
	dev    Device
}

func (p *CommandPool) Allocate() (CommandBuffer, error) {
	cb, err := p.dev.AllocateCommandBuffer(p.Handle)
	if err != nil {
		return nil, createError("command buffer", "", err)
	}
	return cb, nil
}

func (p *CommandPool) Release() {
	if p == nil || p.dev == nil {
		return
	}
	p.dev.Destroy(p.Handle)
	p.Handle = nil
	p.dev = nil
}
