package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
)

// VulkanCommandBuffer is a primary command buffer allocated from a VulkanDevice.
type VulkanCommandBuffer struct {
	handle vk.CommandBuffer
	State  VulkanCommandBufferState
	groups []string
}

func (v *VulkanCommandBuffer) Handle() vk.CommandBuffer {
	return v.handle
}

func (v *VulkanCommandBuffer) Begin() error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(v.handle, &beginInfo); res != vk.Success {
		err := fmt.Errorf("failed to begin command buffer: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	v.groups = v.groups[:0]
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if len(v.groups) > 0 {
		core.LogWarn("command buffer ended with open groups: %v", v.groups)
	}
	if res := vk.EndCommandBuffer(v.handle); res != vk.Success {
		err := fmt.Errorf("failed to end command buffer: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) PipelineBarrier(srcStages, dstStages vk.PipelineStageFlags, deps vk.DependencyFlags,
	memory []vk.MemoryBarrier, buffers []vk.BufferMemoryBarrier, images []vk.ImageMemoryBarrier) {
	vk.CmdPipelineBarrier(v.handle, srcStages, dstStages, deps,
		uint32(len(memory)), memory,
		uint32(len(buffers)), buffers,
		uint32(len(images)), images)
}

func (v *VulkanCommandBuffer) CopyBuffer(src, dst *Buffer, regions []vk.BufferCopy) {
	vk.CmdCopyBuffer(v.handle, src.Handle, dst.Handle, uint32(len(regions)), regions)
}

func (v *VulkanCommandBuffer) CopyImage(src *Image, srcLayout vk.ImageLayout, dst *Image, dstLayout vk.ImageLayout, regions []vk.ImageCopy) {
	vk.CmdCopyImage(v.handle, src.Handle, srcLayout, dst.Handle, dstLayout, uint32(len(regions)), regions)
}

func (v *VulkanCommandBuffer) CopyImageToBuffer(src *Image, layout vk.ImageLayout, dst *Buffer, regions []vk.BufferImageCopy) {
	vk.CmdCopyImageToBuffer(v.handle, src.Handle, layout, dst.Handle, uint32(len(regions)), regions)
}

func (v *VulkanCommandBuffer) CopyBufferToImage(src *Buffer, dst *Image, layout vk.ImageLayout, regions []vk.BufferImageCopy) {
	vk.CmdCopyBufferToImage(v.handle, src.Handle, dst.Handle, layout, uint32(len(regions)), regions)
}

func (v *VulkanCommandBuffer) BeginRenderPass(info *vk.RenderPassBeginInfo) {
	vk.CmdBeginRenderPass(v.handle, info, vk.SubpassContentsInline)
	v.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (v *VulkanCommandBuffer) EndRenderPass() {
	vk.CmdEndRenderPass(v.handle)
	v.State = COMMAND_BUFFER_STATE_RECORDING
}

func (v *VulkanCommandBuffer) BindPipeline(pipeline *Pipeline) {
	vk.CmdBindPipeline(v.handle, pipeline.BindPoint, pipeline.Handle)
}

func (v *VulkanCommandBuffer) BindDescriptorSets(bindPoint vk.PipelineBindPoint, layout *PipelineLayout, firstSet uint32, sets ...*DescriptorSet) {
	handles := make([]vk.DescriptorSet, len(sets))
	for i, s := range sets {
		handles[i] = s.Handle
	}
	vk.CmdBindDescriptorSets(v.handle, bindPoint, layout.Handle, firstSet, uint32(len(handles)), handles, 0, nil)
}

func (v *VulkanCommandBuffer) PushConstants(layout *PipelineLayout, stages vk.ShaderStageFlags, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(v.handle, layout.Handle, stages, offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (v *VulkanCommandBuffer) SetViewport(x, y, width, height float32) {
	vk.CmdSetViewport(v.handle, 0, 1, []vk.Viewport{{
		X:        x,
		Y:        y,
		Width:    width,
		Height:   height,
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}})
}

func (v *VulkanCommandBuffer) SetScissor(x, y int32, width, height uint32) {
	vk.CmdSetScissor(v.handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: x, Y: y},
		Extent: vk.Extent2D{Width: width, Height: height},
	}})
}

func (v *VulkanCommandBuffer) BindVertexBuffer(buffer *Buffer, offset uint64) {
	vk.CmdBindVertexBuffers(v.handle, 0, 1, []vk.Buffer{buffer.Handle}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

func (v *VulkanCommandBuffer) BindIndexBuffer(buffer *Buffer, offset uint64, indexType vk.IndexType) {
	vk.CmdBindIndexBuffer(v.handle, buffer.Handle, vk.DeviceSize(offset), indexType)
}

func (v *VulkanCommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(v.handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (v *VulkanCommandBuffer) DrawIndexedIndirect(buffer *Buffer, offset uint64, drawCount, stride uint32) {
	vk.CmdDrawIndexedIndirect(v.handle, buffer.Handle, vk.DeviceSize(offset), drawCount, stride)
}

func (v *VulkanCommandBuffer) Dispatch(x, y, z uint32) {
	vk.CmdDispatch(v.handle, x, y, z)
}

func (v *VulkanCommandBuffer) ResetQueryPool(pool *QueryPool, first, count uint32) {
	vk.CmdResetQueryPool(v.handle, pool.Handle, first, count)
}

func (v *VulkanCommandBuffer) WriteTimestamp(stage vk.PipelineStageFlagBits, pool *QueryPool, query uint32) {
	vk.CmdWriteTimestamp(v.handle, stage, pool.Handle, query)
}

// PushGroup only tracks the group names, timings are added by Commands.
func (v *VulkanCommandBuffer) PushGroup(name string) {
	v.groups = append(v.groups, name)
}

func (v *VulkanCommandBuffer) PopGroup() {
	if len(v.groups) == 0 {
		core.LogWarn("PopGroup without a matching PushGroup")
		return
	}
	v.groups = v.groups[:len(v.groups)-1]
}
