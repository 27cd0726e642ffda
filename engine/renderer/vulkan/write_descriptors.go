package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
)

// WriteDescriptors batches descriptor writes into one vkUpdateDescriptorSets, keeping insertion order.
type WriteDescriptors struct {
	writes []vk.WriteDescriptorSet
	// the acceleration structure writes point into these until Execute
	accel []*writeDescriptorSetAccelerationStructure
	err   error
}

func NewWriteDescriptors() *WriteDescriptors {
	return &WriteDescriptors{}
}

func (w *WriteDescriptors) add(set *DescriptorSet, write vk.WriteDescriptorSet) *WriteDescriptors {
	if set == nil || set.Handle == nil {
		if w.err == nil {
			w.err = invalidDescriptor("descriptor write to binding %d has no set", write.DstBinding)
		}
		return w
	}
	write.SType = vk.StructureTypeWriteDescriptorSet
	write.DstSet = set.Handle
	write.DescriptorCount = 1
	w.writes = append(w.writes, write)
	return w
}

func (w *WriteDescriptors) AddBuffer(set *DescriptorSet, binding uint32, descriptorType vk.DescriptorType, buf *Buffer) *WriteDescriptors {
	return w.AddBufferRange(set, binding, descriptorType, buf, 0, buf.Size)
}

func (w *WriteDescriptors) AddBufferRange(set *DescriptorSet, binding uint32, descriptorType vk.DescriptorType, buf *Buffer, offset, size uint64) *WriteDescriptors {
	return w.add(set, vk.WriteDescriptorSet{
		DstBinding:     binding,
		DescriptorType: descriptorType,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: buf.Handle,
			Offset: vk.DeviceSize(offset),
			Range:  vk.DeviceSize(size),
		}},
	})
}

func (w *WriteDescriptors) AddStorageImage(set *DescriptorSet, binding uint32, view *ImageView, layout vk.ImageLayout) *WriteDescriptors {
	return w.add(set, vk.WriteDescriptorSet{
		DstBinding:     binding,
		DescriptorType: vk.DescriptorTypeStorageImage,
		PImageInfo: []vk.DescriptorImageInfo{{
			ImageView:   view.Handle,
			ImageLayout: layout,
		}},
	})
}

func (w *WriteDescriptors) AddCombinedImageSampler(set *DescriptorSet, binding uint32, view *ImageView, sampler *Sampler, layout vk.ImageLayout) *WriteDescriptors {
	return w.AddCombinedImageSamplerAt(set, binding, 0, view, sampler, layout)
}

func (w *WriteDescriptors) AddCombinedImageSamplerAt(set *DescriptorSet, binding, arrayIndex uint32, view *ImageView, sampler *Sampler, layout vk.ImageLayout) *WriteDescriptors {
	return w.add(set, vk.WriteDescriptorSet{
		DstBinding:      binding,
		DstArrayElement: arrayIndex,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		PImageInfo: []vk.DescriptorImageInfo{{
			Sampler:     sampler.Handle,
			ImageView:   view.Handle,
			ImageLayout: layout,
		}},
	})
}

func (w *WriteDescriptors) AddAccelerationStructure(set *DescriptorSet, binding uint32, as *AccelerationStructure) *WriteDescriptors {
	handle := new(AccelerationStructureHandle)
	*handle = as.Handle
	ext := &writeDescriptorSetAccelerationStructure{
		SType:                      structureTypeWriteDescriptorSetAccelerationStructure,
		AccelerationStructureCount: 1,
		PAccelerationStructures:    handle,
	}
	w.accel = append(w.accel, ext)
	return w.add(set, vk.WriteDescriptorSet{
		PNext:          unsafe.Pointer(ext),
		DstBinding:     binding,
		DescriptorType: DescriptorTypeAccelerationStructure,
	})
}

// Len is the number of writes collected so far.
func (w *WriteDescriptors) Len() int {
	return len(w.writes)
}

func (w *WriteDescriptors) Execute(dev Device) error {
	writes, err := w.writes, w.err
	*w = WriteDescriptors{}
	if err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}
	dev.UpdateDescriptorSets(writes)
	return nil
}
