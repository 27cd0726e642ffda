package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

// MemoryUsage is the coarse memory class a buffer or image is allocated from.
type MemoryUsage int

const (
	MemoryUnknown MemoryUsage = iota
	MemoryGPUOnly
	MemoryCPUToGPU
	MemoryGPUToCPU
)

func (m MemoryUsage) String() string {
	switch m {
	case MemoryGPUOnly:
		return "gpu_only"
	case MemoryCPUToGPU:
		return "cpu_to_gpu"
	case MemoryGPUToCPU:
		return "gpu_to_cpu"
	}
	return "unknown"
}

// MemoryRequest describes the memory a new image or buffer is bound to.
type MemoryRequest struct {
	Usage     MemoryUsage
	Required  vk.MemoryPropertyFlags
	Preferred vk.MemoryPropertyFlags
	// TypeBits restricts the memory types that may be picked. Zero allows all of them.
	TypeBits uint32
	// MinAlignment raises the alignment of the allocation above the driver requirement.
	MinAlignment uint64
	// Mapped keeps the allocation persistently mapped.
	Mapped bool
}

// Allocation is a block of device memory owned by a single image or buffer.
type Allocation struct {
	Memory    vk.DeviceMemory
	Size      uint64
	TypeIndex uint32
	// Mapped is non nil while the memory is mapped into the address space.
	Mapped []byte
	// Persistent allocations stay mapped until they are destroyed.
	Persistent bool
}

// Capabilities are the device properties the builders and the bake passes depend on.
type Capabilities struct {
	RayQuery                        bool
	DebugNames                      bool
	MinUniformBufferOffsetAlignment uint64
	DepthStencilFormat              vk.Format
	GraphicsFamily                  uint32
	GraphicsQueue                   vk.Queue
	// Nanoseconds per timestamp tick.
	TimestampPeriod float32
}

// Device is the logical device every builder creates its object on.
type Device interface {
	Capabilities() Capabilities
	FormatProperties(format vk.Format) vk.FormatProperties

	CreateImage(info *vk.ImageCreateInfo, mem MemoryRequest) (vk.Image, *Allocation, error)
	CreateBuffer(info *vk.BufferCreateInfo, mem MemoryRequest) (vk.Buffer, *Allocation, error)
	MapMemory(alloc *Allocation) ([]byte, error)
	UnmapMemory(alloc *Allocation)

	CreateImageView(info *vk.ImageViewCreateInfo) (vk.ImageView, error)
	CreateSampler(info *vk.SamplerCreateInfo) (vk.Sampler, error)
	CreateDescriptorSetLayout(info *vk.DescriptorSetLayoutCreateInfo) (vk.DescriptorSetLayout, error)
	CreateDescriptorPool(info *vk.DescriptorPoolCreateInfo) (vk.DescriptorPool, error)
	AllocateDescriptorSet(pool vk.DescriptorPool, layout vk.DescriptorSetLayout) (vk.DescriptorSet, error)
	UpdateDescriptorSets(writes []vk.WriteDescriptorSet)
	CreatePipelineLayout(info *vk.PipelineLayoutCreateInfo) (vk.PipelineLayout, error)
	CreatePipelineCache(info *vk.PipelineCacheCreateInfo) (vk.PipelineCache, error)
	PipelineCacheData(cache vk.PipelineCache) ([]byte, error)
	CreateRenderPass(info *vk.RenderPassCreateInfo) (vk.RenderPass, error)
	CreateFramebuffer(info *vk.FramebufferCreateInfo) (vk.Framebuffer, error)
	CreateShaderModule(code []byte) (vk.ShaderModule, error)
	CreateGraphicsPipeline(cache vk.PipelineCache, info *vk.GraphicsPipelineCreateInfo) (vk.Pipeline, error)
	CreateComputePipeline(cache vk.PipelineCache, info *vk.ComputePipelineCreateInfo) (vk.Pipeline, error)
	CreateAccelerationStructure(info *AccelerationStructureCreateInfo) (AccelerationStructureHandle, error)
	CreateQueryPool(info *vk.QueryPoolCreateInfo) (vk.QueryPool, error)
	QueryResults(pool vk.QueryPool, first, count uint32) ([]uint64, error)
	CreateCommandPool(info *vk.CommandPoolCreateInfo) (vk.CommandPool, error)
	AllocateCommandBuffer(pool vk.CommandPool) (CommandBuffer, error)
	CreateSemaphore(info *vk.SemaphoreCreateInfo) (vk.Semaphore, error)
	CreateFence(info *vk.FenceCreateInfo) (vk.Fence, error)
	WaitForFence(fence vk.Fence, timeoutNs uint64) error
	ResetFence(fence vk.Fence) error
	QueueSubmit(queue vk.Queue, submits []vk.SubmitInfo, fence vk.Fence) error
	WaitIdle() error

	// SetDebugName attaches a name to any handle created by the device.
	SetDebugName(object interface{}, name string)
	// Destroy releases any handle or *Allocation created by the device. Nil handles are ignored.
	Destroy(object interface{})
}

// CommandBuffer records commands. The buffer is begun and ended by its CommandQueue.
type CommandBuffer interface {
	Handle() vk.CommandBuffer
	// Begin starts a one time submit recording, discarding anything recorded before.
	Begin() error
	End() error

	PipelineBarrier(srcStages, dstStages vk.PipelineStageFlags, deps vk.DependencyFlags,
		memory []vk.MemoryBarrier, buffers []vk.BufferMemoryBarrier, images []vk.ImageMemoryBarrier)
	CopyBuffer(src, dst *Buffer, regions []vk.BufferCopy)
	CopyImage(src *Image, srcLayout vk.ImageLayout, dst *Image, dstLayout vk.ImageLayout, regions []vk.ImageCopy)
	CopyImageToBuffer(src *Image, layout vk.ImageLayout, dst *Buffer, regions []vk.BufferImageCopy)
	CopyBufferToImage(src *Buffer, dst *Image, layout vk.ImageLayout, regions []vk.BufferImageCopy)

	BeginRenderPass(info *vk.RenderPassBeginInfo)
	EndRenderPass()

	BindPipeline(pipeline *Pipeline)
	BindDescriptorSets(bindPoint vk.PipelineBindPoint, layout *PipelineLayout, firstSet uint32, sets ...*DescriptorSet)
	PushConstants(layout *PipelineLayout, stages vk.ShaderStageFlags, offset uint32, data []byte)
	SetViewport(x, y, width, height float32)
	SetScissor(x, y int32, width, height uint32)
	BindVertexBuffer(buffer *Buffer, offset uint64)
	BindIndexBuffer(buffer *Buffer, offset uint64, indexType vk.IndexType)

	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexedIndirect(buffer *Buffer, offset uint64, drawCount, stride uint32)
	Dispatch(x, y, z uint32)

	ResetQueryPool(pool *QueryPool, first, count uint32)
	WriteTimestamp(stage vk.PipelineStageFlagBits, pool *QueryPool, query uint32)

	// PushGroup opens a named section used for debugging and GPU timings.
	PushGroup(name string)
	PopGroup()
}

// CommandQueue hands out lazily begun command buffers and submits them together.
type CommandQueue interface {
	TransferCommands() (CommandBuffer, error)
	DrawCommands() (CommandBuffer, error)
	// WaitForCommands submits the transfer then the draw commands and blocks until
	// they completed. finish additionally waits for the whole device to go idle.
	WaitForCommands(finish bool) error
	// KeepAlive releases buf once the commands recorded so far have completed.
	KeepAlive(buf *Buffer)
}

func resultError(call string, res vk.Result) error {
	err := fmt.Errorf("%w: %s failed with %s", core.ErrCreateFailed, call, VulkanResultString(res, true))
	core.LogError(err.Error())
	return err
}

func invalidDescriptor(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", core.ErrInvalidDescriptor, fmt.Sprintf(format, args...))
}

func createError(kind, name string, err error) error {
	if name == "" {
		return fmt.Errorf("failed to create %s: %w", kind, err)
	}
	return fmt.Errorf("failed to create %s %q: %w", kind, name, err)
}

func setDebugName(dev Device, object interface{}, name string) {
	if name != "" && dev.Capabilities().DebugNames {
		dev.SetDebugName(object, name)
	}
}
