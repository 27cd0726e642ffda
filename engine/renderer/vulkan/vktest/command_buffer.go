package vktest

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
)

type Barrier struct {
	Src, Dst vk.PipelineStageFlags
	Deps     vk.DependencyFlags
	Memory   []vk.MemoryBarrier
	Buffers  []vk.BufferMemoryBarrier
	Images   []vk.ImageMemoryBarrier
}

type Copy struct {
	Kind     string
	Src, Dst interface{}
	Regions  int
	Buffers  []vk.BufferCopy
	Images   []vk.BufferImageCopy
	Layers   []vk.ImageCopy
}

type Draw struct {
	Pipeline      *vulkan.Pipeline
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
	// Push is the last push constant block recorded before the draw.
	Push []byte
}

type IndirectDraw struct {
	Pipeline *vulkan.Pipeline
	Buffer   *vulkan.Buffer
	Offset   uint64
	Count    uint32
	Stride   uint32
}

type Dispatch struct {
	Pipeline *vulkan.Pipeline
	X, Y, Z  uint32
	Push     []byte
}

// CommandBuffer records every command into slices, plus a flat Ops log in call order.
type CommandBuffer struct {
	handle vk.CommandBuffer
	Name   string

	Begun, Ended int
	Recording    bool

	Ops           []string
	Barriers      []Barrier
	Copies        []Copy
	RenderPasses  []vk.RenderPassBeginInfo
	Draws         []Draw
	IndirectDraws []IndirectDraw
	Dispatches    []Dispatch
	Pushes        [][]byte
	Viewports     [][4]float32
	Groups        []string
	Timestamps    []uint32

	pipeline *vulkan.Pipeline
	push     []byte
	open     int
}

func (c *CommandBuffer) op(format string, args ...interface{}) {
	c.Ops = append(c.Ops, fmt.Sprintf(format, args...))
}

func (c *CommandBuffer) Handle() vk.CommandBuffer {
	return c.handle
}

func (c *CommandBuffer) Begin() error {
	c.Begun++
	c.Recording = true
	c.op("begin")
	return nil
}

func (c *CommandBuffer) End() error {
	if !c.Recording {
		return fmt.Errorf("vktest: %s ended without begin", c.Name)
	}
	if c.open != 0 {
		return fmt.Errorf("vktest: %s ended with %d open groups", c.Name, c.open)
	}
	c.Ended++
	c.Recording = false
	c.op("end")
	return nil
}

func (c *CommandBuffer) PipelineBarrier(src, dst vk.PipelineStageFlags, deps vk.DependencyFlags,
	memory []vk.MemoryBarrier, buffers []vk.BufferMemoryBarrier, images []vk.ImageMemoryBarrier) {
	c.Barriers = append(c.Barriers, Barrier{
		Src: src, Dst: dst, Deps: deps,
		Memory:  append([]vk.MemoryBarrier(nil), memory...),
		Buffers: append([]vk.BufferMemoryBarrier(nil), buffers...),
		Images:  append([]vk.ImageMemoryBarrier(nil), images...),
	})
	c.op("barrier")
}

func (c *CommandBuffer) CopyBuffer(src, dst *vulkan.Buffer, regions []vk.BufferCopy) {
	c.Copies = append(c.Copies, Copy{Kind: "buffer", Src: src, Dst: dst, Regions: len(regions),
		Buffers: append([]vk.BufferCopy(nil), regions...)})
	c.op("copy_buffer")
}

func (c *CommandBuffer) CopyImage(src *vulkan.Image, srcLayout vk.ImageLayout, dst *vulkan.Image, dstLayout vk.ImageLayout, regions []vk.ImageCopy) {
	c.Copies = append(c.Copies, Copy{Kind: "image", Src: src, Dst: dst, Regions: len(regions),
		Layers: append([]vk.ImageCopy(nil), regions...)})
	c.op("copy_image")
}

func (c *CommandBuffer) CopyImageToBuffer(src *vulkan.Image, layout vk.ImageLayout, dst *vulkan.Buffer, regions []vk.BufferImageCopy) {
	c.Copies = append(c.Copies, Copy{Kind: "image_to_buffer", Src: src, Dst: dst, Regions: len(regions),
		Images: append([]vk.BufferImageCopy(nil), regions...)})
	c.op("copy_image_to_buffer")
}

func (c *CommandBuffer) CopyBufferToImage(src *vulkan.Buffer, dst *vulkan.Image, layout vk.ImageLayout, regions []vk.BufferImageCopy) {
	c.Copies = append(c.Copies, Copy{Kind: "buffer_to_image", Src: src, Dst: dst, Regions: len(regions),
		Images: append([]vk.BufferImageCopy(nil), regions...)})
	c.op("copy_buffer_to_image")
}

func (c *CommandBuffer) BeginRenderPass(info *vk.RenderPassBeginInfo) {
	c.RenderPasses = append(c.RenderPasses, *info)
	c.op("begin_render_pass")
}

func (c *CommandBuffer) EndRenderPass() {
	c.op("end_render_pass")
}

func (c *CommandBuffer) BindPipeline(pipeline *vulkan.Pipeline) {
	c.pipeline = pipeline
	c.op("bind_pipeline")
}

func (c *CommandBuffer) BindDescriptorSets(bindPoint vk.PipelineBindPoint, layout *vulkan.PipelineLayout, firstSet uint32, sets ...*vulkan.DescriptorSet) {
	c.op("bind_descriptor_sets %d+%d", firstSet, len(sets))
}

func (c *CommandBuffer) PushConstants(layout *vulkan.PipelineLayout, stages vk.ShaderStageFlags, offset uint32, data []byte) {
	c.push = append([]byte(nil), data...)
	c.Pushes = append(c.Pushes, c.push)
	c.op("push_constants %d", len(data))
}

func (c *CommandBuffer) SetViewport(x, y, width, height float32) {
	c.Viewports = append(c.Viewports, [4]float32{x, y, width, height})
	c.op("set_viewport")
}

func (c *CommandBuffer) SetScissor(x, y int32, width, height uint32) {
	c.op("set_scissor")
}

func (c *CommandBuffer) BindVertexBuffer(buffer *vulkan.Buffer, offset uint64) {
	c.op("bind_vertex_buffer")
}

func (c *CommandBuffer) BindIndexBuffer(buffer *vulkan.Buffer, offset uint64, indexType vk.IndexType) {
	c.op("bind_index_buffer")
}

func (c *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	c.Draws = append(c.Draws, Draw{
		Pipeline: c.pipeline, VertexCount: vertexCount, InstanceCount: instanceCount,
		FirstVertex: firstVertex, FirstInstance: firstInstance, Push: c.push,
	})
	c.op("draw %d", vertexCount)
}

func (c *CommandBuffer) DrawIndexedIndirect(buffer *vulkan.Buffer, offset uint64, drawCount, stride uint32) {
	c.IndirectDraws = append(c.IndirectDraws, IndirectDraw{
		Pipeline: c.pipeline, Buffer: buffer, Offset: offset, Count: drawCount, Stride: stride,
	})
	c.op("draw_indexed_indirect %d", drawCount)
}

func (c *CommandBuffer) Dispatch(x, y, z uint32) {
	c.Dispatches = append(c.Dispatches, Dispatch{Pipeline: c.pipeline, X: x, Y: y, Z: z, Push: c.push})
	c.op("dispatch %d %d %d", x, y, z)
}

func (c *CommandBuffer) ResetQueryPool(pool *vulkan.QueryPool, first, count uint32) {
	c.op("reset_query_pool %d %d", first, count)
}

func (c *CommandBuffer) WriteTimestamp(stage vk.PipelineStageFlagBits, pool *vulkan.QueryPool, query uint32) {
	c.Timestamps = append(c.Timestamps, query)
	c.op("timestamp %d", query)
}

func (c *CommandBuffer) PushGroup(name string) {
	c.Groups = append(c.Groups, name)
	c.open++
	c.op("push_group %s", name)
}

func (c *CommandBuffer) PopGroup() {
	c.open--
	c.op("pop_group")
}

// Count returns how many recorded ops start with prefix.
func (c *CommandBuffer) Count(prefix string) int {
	n := 0
	for _, op := range c.Ops {
		if len(op) >= len(prefix) && op[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

var _ vulkan.CommandBuffer = (*CommandBuffer)(nil)
