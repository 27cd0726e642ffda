package vulkan

import (
	vk "github.com/goki/vulkan"
)

type BufferBuilder struct {
	info      vk.BufferCreateInfo
	mem       MemoryRequest
	debugName string
}

func NewBufferBuilder() *BufferBuilder {
	b := &BufferBuilder{}
	b.reset()
	return b
}

func (b *BufferBuilder) reset() {
	b.info = vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		SharingMode: vk.SharingModeExclusive,
	}
	b.mem = MemoryRequest{Usage: MemoryGPUOnly}
	b.debugName = ""
}

func (b *BufferBuilder) Size(size uint64) *BufferBuilder {
	b.info.Size = vk.DeviceSize(size)
	return b
}

func (b *BufferBuilder) Usage(usage vk.BufferUsageFlags, memoryUsage ...MemoryUsage) *BufferBuilder {
	b.info.Usage = usage
	if len(memoryUsage) > 0 {
		b.mem.Usage = memoryUsage[0]
	}
	return b
}

func (b *BufferBuilder) MemoryType(required, preferred vk.MemoryPropertyFlags, typeBits ...uint32) *BufferBuilder {
	b.mem.Required = required
	b.mem.Preferred = preferred
	if len(typeBits) > 0 {
		b.mem.TypeBits = typeBits[0]
	}
	return b
}

func (b *BufferBuilder) MinAlignment(alignment uint64) *BufferBuilder {
	b.mem.MinAlignment = alignment
	return b
}

// Mapped keeps the buffer memory mapped for its whole lifetime.
func (b *BufferBuilder) Mapped() *BufferBuilder {
	b.mem.Mapped = true
	return b
}

func (b *BufferBuilder) DebugName(name string) *BufferBuilder {
	b.debugName = name
	return b
}

func (b *BufferBuilder) Create(dev Device) (*Buffer, error) {
	defer b.reset()

	if b.info.Size == 0 {
		return nil, invalidDescriptor("buffer %q has zero size", b.debugName)
	}
	if b.info.Usage == 0 {
		return nil, invalidDescriptor("buffer %q has no usage", b.debugName)
	}
	if b.mem.Mapped && b.mem.Usage == MemoryGPUOnly {
		return nil, invalidDescriptor("buffer %q is mapped but lives in gpu only memory", b.debugName)
	}

	info := b.info
	handle, mem, err := dev.CreateBuffer(&info, b.mem)
	if err != nil {
		return nil, createError("buffer", b.debugName, err)
	}
	setDebugName(dev, handle, b.debugName)

	return &Buffer{
		Handle: handle,
		Memory: mem,
		Size:   uint64(info.Size),
		Usage:  info.Usage,
		dev:    dev,
	}, nil
}
