package vulkan

import (
	vk "github.com/goki/vulkan"
)

const (
	wholeSize            = vk.DeviceSize(^uint64(0))
	RemainingMipLevels   = ^uint32(0)
	RemainingArrayLayers = ^uint32(0)
)

// PipelineBarrier gathers barriers and records them with a single vkCmdPipelineBarrier.
type PipelineBarrier struct {
	memory  []vk.MemoryBarrier
	buffers []vk.BufferMemoryBarrier
	images  []vk.ImageMemoryBarrier
}

func NewPipelineBarrier() *PipelineBarrier {
	return &PipelineBarrier{}
}

func (p *PipelineBarrier) AddMemory(srcAccess, dstAccess vk.AccessFlags) *PipelineBarrier {
	p.memory = append(p.memory, vk.MemoryBarrier{
		SType:         vk.StructureTypeMemoryBarrier,
		SrcAccessMask: srcAccess,
		DstAccessMask: dstAccess,
	})
	return p
}

func (p *PipelineBarrier) AddBuffer(buf *Buffer, srcAccess, dstAccess vk.AccessFlags) *PipelineBarrier {
	return p.addBuffer(buf, 0, wholeSize, srcAccess, dstAccess, vk.QueueFamilyIgnored, vk.QueueFamilyIgnored)
}

func (p *PipelineBarrier) AddBufferRange(buf *Buffer, offset, size uint64, srcAccess, dstAccess vk.AccessFlags) *PipelineBarrier {
	return p.addBuffer(buf, vk.DeviceSize(offset), vk.DeviceSize(size), srcAccess, dstAccess, vk.QueueFamilyIgnored, vk.QueueFamilyIgnored)
}

func (p *PipelineBarrier) AddBufferQueueTransfer(srcFamily, dstFamily uint32, buf *Buffer, srcAccess, dstAccess vk.AccessFlags) *PipelineBarrier {
	return p.addBuffer(buf, 0, wholeSize, srcAccess, dstAccess, srcFamily, dstFamily)
}

func (p *PipelineBarrier) addBuffer(buf *Buffer, offset, size vk.DeviceSize, srcAccess, dstAccess vk.AccessFlags, srcFamily, dstFamily uint32) *PipelineBarrier {
	p.buffers = append(p.buffers, vk.BufferMemoryBarrier{
		SType:               vk.StructureTypeBufferMemoryBarrier,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		SrcQueueFamilyIndex: srcFamily,
		DstQueueFamilyIndex: dstFamily,
		Buffer:              buf.Handle,
		Offset:              offset,
		Size:                size,
	})
	return p
}

// AddImage transitions every mip level and array layer of the color aspect.
func (p *PipelineBarrier) AddImage(img *Image, oldLayout, newLayout vk.ImageLayout, srcAccess, dstAccess vk.AccessFlags) *PipelineBarrier {
	return p.AddImageRange(img, oldLayout, newLayout, srcAccess, dstAccess,
		vk.ImageAspectFlags(vk.ImageAspectColorBit), 0, RemainingMipLevels, 0, RemainingArrayLayers)
}

// AddImageRange transitions a subresource range. RemainingMipLevels and RemainingArrayLayers
// cover the rest of the image.
func (p *PipelineBarrier) AddImageRange(img *Image, oldLayout, newLayout vk.ImageLayout, srcAccess, dstAccess vk.AccessFlags,
	aspect vk.ImageAspectFlags, baseMip, levelCount, baseLayer, layerCount uint32) *PipelineBarrier {
	return p.addImage(img, oldLayout, newLayout, srcAccess, dstAccess, vk.QueueFamilyIgnored, vk.QueueFamilyIgnored,
		aspect, baseMip, levelCount, baseLayer, layerCount)
}

// AddImageQueueTransfer moves ownership of an image between queue families without changing its layout.
func (p *PipelineBarrier) AddImageQueueTransfer(srcFamily, dstFamily uint32, img *Image, layout vk.ImageLayout,
	aspect vk.ImageAspectFlags, baseMip, levelCount uint32) *PipelineBarrier {
	return p.addImage(img, layout, layout, 0, 0, srcFamily, dstFamily, aspect, baseMip, levelCount, 0, RemainingArrayLayers)
}

func (p *PipelineBarrier) addImage(img *Image, oldLayout, newLayout vk.ImageLayout, srcAccess, dstAccess vk.AccessFlags,
	srcFamily, dstFamily uint32, aspect vk.ImageAspectFlags, baseMip, levelCount, baseLayer, layerCount uint32) *PipelineBarrier {
	if levelCount == RemainingMipLevels {
		levelCount = img.MipLevels - baseMip
	}
	if layerCount == RemainingArrayLayers {
		layerCount = img.ArrayLayers - baseLayer
	}
	p.images = append(p.images, vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: srcFamily,
		DstQueueFamilyIndex: dstFamily,
		Image:               img.Handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   baseMip,
			LevelCount:     levelCount,
			BaseArrayLayer: baseLayer,
			LayerCount:     layerCount,
		},
	})
	return p
}

func (p *PipelineBarrier) Empty() bool {
	return len(p.memory) == 0 && len(p.buffers) == 0 && len(p.images) == 0
}

// Execute records the collected barriers and clears them. Nothing is recorded when no barrier was added.
func (p *PipelineBarrier) Execute(cb CommandBuffer, srcStages, dstStages vk.PipelineStageFlags, deps ...vk.DependencyFlags) {
	if p.Empty() {
		return
	}
	var flags vk.DependencyFlags
	if len(deps) > 0 {
		flags = deps[0]
	}
	cb.PipelineBarrier(srcStages, dstStages, flags, p.memory, p.buffers, p.images)
	p.memory, p.buffers, p.images = nil, nil, nil
}
