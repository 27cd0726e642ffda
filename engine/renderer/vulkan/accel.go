package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

// The acceleration structure extension is not part of the generated bindings,
// the values below come from the registry.
const (
	DescriptorTypeAccelerationStructure vk.DescriptorType = 1000150000

	structureTypeWriteDescriptorSetAccelerationStructure vk.StructureType = 1000150007
	structureTypeAccelerationStructureCreateInfo         vk.StructureType = 1000150017
)

type AccelerationStructureType uint32

const (
	AccelerationStructureTopLevel AccelerationStructureType = iota
	AccelerationStructureBottomLevel
)

// AccelerationStructureHandle is a VkAccelerationStructureKHR, a non dispatchable handle.
type AccelerationStructureHandle uint64

type AccelerationStructureCreateInfo struct {
	SType  vk.StructureType
	PNext  unsafe.Pointer
	Flags  uint32
	Buffer vk.Buffer
	Offset uint64
	Size   uint64
	Type   AccelerationStructureType
}

// writeDescriptorSetAccelerationStructure is chained into a descriptor write through PNext.
type writeDescriptorSetAccelerationStructure struct {
	SType                      vk.StructureType
	PNext                      unsafe.Pointer
	AccelerationStructureCount uint32
	PAccelerationStructures    *AccelerationStructureHandle
}

type AccelerationStructure struct {
	Handle AccelerationStructureHandle
	Buffer *Buffer
	Type   AccelerationStructureType
	dev    Device
}

func (a *AccelerationStructure) Release() {
	if a == nil || a.dev == nil {
		return
	}
	a.dev.Destroy(a.Handle)
	a.Handle = 0
	a.dev = nil
}

type AccelerationStructureBuilder struct {
	info      AccelerationStructureCreateInfo
	buffer    *Buffer
	debugName string
}

func NewAccelerationStructureBuilder() *AccelerationStructureBuilder {
	b := &AccelerationStructureBuilder{}
	b.reset()
	return b
}

func (b *AccelerationStructureBuilder) reset() {
	*b = AccelerationStructureBuilder{
		info: AccelerationStructureCreateInfo{
			SType: structureTypeAccelerationStructureCreateInfo,
		},
	}
}

func (b *AccelerationStructureBuilder) Type(t AccelerationStructureType) *AccelerationStructureBuilder {
	b.info.Type = t
	return b
}

// Buffer places the structure in buf. With one value it is the size, with two the offset and the size.
func (b *AccelerationStructureBuilder) Buffer(buf *Buffer, offsetAndSize ...uint64) *AccelerationStructureBuilder {
	b.buffer = buf
	switch len(offsetAndSize) {
	case 1:
		b.info.Offset, b.info.Size = 0, offsetAndSize[0]
	case 2:
		b.info.Offset, b.info.Size = offsetAndSize[0], offsetAndSize[1]
	}
	return b
}

func (b *AccelerationStructureBuilder) DebugName(name string) *AccelerationStructureBuilder {
	b.debugName = name
	return b
}

func (b *AccelerationStructureBuilder) Create(dev Device) (*AccelerationStructure, error) {
	defer b.reset()

	name := b.debugName
	if !dev.Capabilities().RayQuery {
		err := fmt.Errorf("%w: acceleration structure %q needs ray query support", core.ErrUnsupported, name)
		core.LogWarn(err.Error())
		return nil, err
	}
	if b.buffer == nil || b.buffer.Handle == nil {
		return nil, invalidDescriptor("acceleration structure %q has no buffer", name)
	}
	if b.info.Size == 0 || b.info.Offset+b.info.Size > b.buffer.Size {
		return nil, invalidDescriptor("acceleration structure %q does not fit its buffer", name)
	}

	info := b.info
	info.Buffer = b.buffer.Handle
	handle, err := dev.CreateAccelerationStructure(&info)
	if err != nil {
		return nil, createError("acceleration structure", name, err)
	}
	setDebugName(dev, handle, name)
	return &AccelerationStructure{Handle: handle, Buffer: b.buffer, Type: info.Type, dev: dev}, nil
}
