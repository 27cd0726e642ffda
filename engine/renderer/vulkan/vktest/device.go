// Package vktest provides an in-memory vulkan.Device that records what the builders create.
package vktest

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
)

// ErrInjected is returned by every call listed in Device.FailOn.
var ErrInjected = errors.New("vktest: injected failure")

// Device creates fake handles and keeps a log of every object it created and destroyed.
type Device struct {
	mu sync.Mutex

	Caps    vulkan.Capabilities
	Formats map[vk.Format]vk.FormatProperties
	// FailOn makes the named call ("CreateImage", "CreateGraphicsPipeline", ...) fail.
	FailOn map[string]bool

	Created    []string
	Destroyed  []string
	DebugNames map[string]string

	ImageInfos    []vk.ImageCreateInfo
	BufferInfos   []vk.BufferCreateInfo
	MemoryReqs    []vulkan.MemoryRequest
	ViewInfos     []vk.ImageViewCreateInfo
	SamplerInfos  []vk.SamplerCreateInfo
	GraphicsInfos []vk.GraphicsPipelineCreateInfo
	ComputeInfos  []vk.ComputePipelineCreateInfo
	RenderPasses  []vk.RenderPassCreateInfo
	Framebuffers  []vk.FramebufferCreateInfo
	LayoutInfos   []vk.PipelineLayoutCreateInfo
	ShaderCode    [][]byte
	Writes        [][]vk.WriteDescriptorSet
	Submits       [][]vk.SubmitInfo
	Buffers       []*CommandBuffer
	CacheData     []byte
	// Timestamps is returned by QueryResults, zero filled when short.
	Timestamps []uint64
	WaitIdles  int

	ids   map[uintptr]string
	alive []*uint64
	next  int
}

func NewDevice() *Device {
	return &Device{
		Caps: vulkan.Capabilities{
			DebugNames:                      true,
			MinUniformBufferOffsetAlignment: 256,
			DepthStencilFormat:              vk.FormatD32Sfloat,
			TimestampPeriod:                 1,
		},
		Formats:    make(map[vk.Format]vk.FormatProperties),
		FailOn:     make(map[string]bool),
		DebugNames: make(map[string]string),
		ids:        make(map[uintptr]string),
	}
}

// newHandle returns a unique non nil pointer and records kind#n as created.
func (d *Device) newHandle(kind string) unsafe.Pointer {
	p := new(uint64)
	d.alive = append(d.alive, p)
	d.next++
	id := fmt.Sprintf("%s#%d", kind, d.next)
	d.ids[uintptr(unsafe.Pointer(p))] = id
	d.Created = append(d.Created, id)
	return unsafe.Pointer(p)
}

func (d *Device) fail(call string) error {
	if d.FailOn[call] {
		return fmt.Errorf("%s: %w", call, ErrInjected)
	}
	return nil
}

// ID returns the kind#n name of a handle created by the device.
func (d *Device) ID(handle interface{}) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.idLocked(handle)
}

func (d *Device) idLocked(handle interface{}) string {
	p := pointerOf(handle)
	if p == 0 {
		return ""
	}
	return d.ids[p]
}

// Live returns the created objects that were not destroyed yet.
func (d *Device) Live() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	gone := make(map[string]bool, len(d.Destroyed))
	for _, id := range d.Destroyed {
		gone[id] = true
	}
	var live []string
	for _, id := range d.Created {
		if !gone[id] {
			live = append(live, id)
		}
	}
	return live
}

func pointerOf(handle interface{}) uintptr {
	switch h := handle.(type) {
	case vk.Image:
		return uintptr(unsafe.Pointer(h))
	case vk.ImageView:
		return uintptr(unsafe.Pointer(h))
	case vk.Sampler:
		return uintptr(unsafe.Pointer(h))
	case vk.Buffer:
		return uintptr(unsafe.Pointer(h))
	case vk.DeviceMemory:
		return uintptr(unsafe.Pointer(h))
	case vk.DescriptorSetLayout:
		return uintptr(unsafe.Pointer(h))
	case vk.DescriptorPool:
		return uintptr(unsafe.Pointer(h))
	case vk.DescriptorSet:
		return uintptr(unsafe.Pointer(h))
	case vk.PipelineLayout:
		return uintptr(unsafe.Pointer(h))
	case vk.PipelineCache:
		return uintptr(unsafe.Pointer(h))
	case vk.RenderPass:
		return uintptr(unsafe.Pointer(h))
	case vk.Framebuffer:
		return uintptr(unsafe.Pointer(h))
	case vk.ShaderModule:
		return uintptr(unsafe.Pointer(h))
	case vk.Pipeline:
		return uintptr(unsafe.Pointer(h))
	case vk.QueryPool:
		return uintptr(unsafe.Pointer(h))
	case vk.CommandPool:
		return uintptr(unsafe.Pointer(h))
	case vk.CommandBuffer:
		return uintptr(unsafe.Pointer(h))
	case vk.Semaphore:
		return uintptr(unsafe.Pointer(h))
	case vk.Fence:
		return uintptr(unsafe.Pointer(h))
	case *vulkan.Allocation:
		if h == nil {
			return 0
		}
		return uintptr(unsafe.Pointer(h.Memory))
	case vulkan.AccelerationStructureHandle:
		return uintptr(h)
	}
	return 0
}

func (d *Device) Capabilities() vulkan.Capabilities {
	return d.Caps
}

// FormatProperties reports every feature for formats that were not configured.
func (d *Device) FormatProperties(format vk.Format) vk.FormatProperties {
	d.mu.Lock()
	defer d.mu.Unlock()
	if props, ok := d.Formats[format]; ok {
		return props
	}
	all := vk.FormatFeatureFlags(^uint32(0))
	return vk.FormatProperties{LinearTilingFeatures: all, OptimalTilingFeatures: all, BufferFeatures: all}
}

func (d *Device) allocation(size uint64, mem vulkan.MemoryRequest) *vulkan.Allocation {
	alloc := &vulkan.Allocation{
		Memory: vk.DeviceMemory(d.newHandle("memory")),
		Size:   size,
	}
	if mem.Mapped {
		alloc.Mapped = make([]byte, size)
		alloc.Persistent = true
	}
	return alloc
}

func (d *Device) CreateImage(info *vk.ImageCreateInfo, mem vulkan.MemoryRequest) (vk.Image, *vulkan.Allocation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateImage"); err != nil {
		return nil, nil, err
	}
	d.ImageInfos = append(d.ImageInfos, *info)
	d.MemoryReqs = append(d.MemoryReqs, mem)
	size := uint64(info.Extent.Width) * uint64(info.Extent.Height) * uint64(info.Extent.Depth) * uint64(info.ArrayLayers) * 4
	image := vk.Image(d.newHandle("image"))
	return image, d.allocation(size, mem), nil
}

func (d *Device) CreateBuffer(info *vk.BufferCreateInfo, mem vulkan.MemoryRequest) (vk.Buffer, *vulkan.Allocation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateBuffer"); err != nil {
		return nil, nil, err
	}
	d.BufferInfos = append(d.BufferInfos, *info)
	d.MemoryReqs = append(d.MemoryReqs, mem)
	size := uint64(info.Size)
	if mem.MinAlignment > 1 {
		size = (size + mem.MinAlignment - 1) / mem.MinAlignment * mem.MinAlignment
	}
	buffer := vk.Buffer(d.newHandle("buffer"))
	return buffer, d.allocation(size, mem), nil
}

func (d *Device) MapMemory(alloc *vulkan.Allocation) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("MapMemory"); err != nil {
		return nil, err
	}
	if alloc.Mapped == nil {
		alloc.Mapped = make([]byte, alloc.Size)
	}
	return alloc.Mapped, nil
}

// UnmapMemory keeps the bytes so tests can inspect what was written.
func (d *Device) UnmapMemory(alloc *vulkan.Allocation) {}

func (d *Device) CreateImageView(info *vk.ImageViewCreateInfo) (vk.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateImageView"); err != nil {
		return nil, err
	}
	d.ViewInfos = append(d.ViewInfos, *info)
	return vk.ImageView(d.newHandle("image_view")), nil
}

func (d *Device) CreateSampler(info *vk.SamplerCreateInfo) (vk.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateSampler"); err != nil {
		return nil, err
	}
	d.SamplerInfos = append(d.SamplerInfos, *info)
	return vk.Sampler(d.newHandle("sampler")), nil
}

func (d *Device) CreateDescriptorSetLayout(info *vk.DescriptorSetLayoutCreateInfo) (vk.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateDescriptorSetLayout"); err != nil {
		return nil, err
	}
	return vk.DescriptorSetLayout(d.newHandle("descriptor_set_layout")), nil
}

func (d *Device) CreateDescriptorPool(info *vk.DescriptorPoolCreateInfo) (vk.DescriptorPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateDescriptorPool"); err != nil {
		return nil, err
	}
	return vk.DescriptorPool(d.newHandle("descriptor_pool")), nil
}

func (d *Device) AllocateDescriptorSet(pool vk.DescriptorPool, layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("AllocateDescriptorSet"); err != nil {
		return nil, err
	}
	set := vk.DescriptorSet(d.newHandle("descriptor_set"))
	// sets are owned by their pool
	d.Destroyed = append(d.Destroyed, d.idLocked(set))
	return set, nil
}

func (d *Device) UpdateDescriptorSets(writes []vk.WriteDescriptorSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Writes = append(d.Writes, append([]vk.WriteDescriptorSet(nil), writes...))
}

func (d *Device) CreatePipelineLayout(info *vk.PipelineLayoutCreateInfo) (vk.PipelineLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreatePipelineLayout"); err != nil {
		return nil, err
	}
	d.LayoutInfos = append(d.LayoutInfos, *info)
	return vk.PipelineLayout(d.newHandle("pipeline_layout")), nil
}

func (d *Device) CreatePipelineCache(info *vk.PipelineCacheCreateInfo) (vk.PipelineCache, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreatePipelineCache"); err != nil {
		return nil, err
	}
	return vk.PipelineCache(d.newHandle("pipeline_cache")), nil
}

func (d *Device) PipelineCacheData(cache vk.PipelineCache) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.CacheData...), nil
}

func (d *Device) CreateRenderPass(info *vk.RenderPassCreateInfo) (vk.RenderPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateRenderPass"); err != nil {
		return nil, err
	}
	d.RenderPasses = append(d.RenderPasses, *info)
	return vk.RenderPass(d.newHandle("render_pass")), nil
}

func (d *Device) CreateFramebuffer(info *vk.FramebufferCreateInfo) (vk.Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateFramebuffer"); err != nil {
		return nil, err
	}
	d.Framebuffers = append(d.Framebuffers, *info)
	return vk.Framebuffer(d.newHandle("framebuffer")), nil
}

func (d *Device) CreateShaderModule(code []byte) (vk.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateShaderModule"); err != nil {
		return nil, err
	}
	d.ShaderCode = append(d.ShaderCode, append([]byte(nil), code...))
	return vk.ShaderModule(d.newHandle("shader_module")), nil
}

func (d *Device) CreateGraphicsPipeline(cache vk.PipelineCache, info *vk.GraphicsPipelineCreateInfo) (vk.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateGraphicsPipeline"); err != nil {
		return nil, err
	}
	d.GraphicsInfos = append(d.GraphicsInfos, *info)
	return vk.Pipeline(d.newHandle("graphics_pipeline")), nil
}

func (d *Device) CreateComputePipeline(cache vk.PipelineCache, info *vk.ComputePipelineCreateInfo) (vk.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateComputePipeline"); err != nil {
		return nil, err
	}
	d.ComputeInfos = append(d.ComputeInfos, *info)
	return vk.Pipeline(d.newHandle("compute_pipeline")), nil
}

func (d *Device) CreateAccelerationStructure(info *vulkan.AccelerationStructureCreateInfo) (vulkan.AccelerationStructureHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateAccelerationStructure"); err != nil {
		return 0, err
	}
	return vulkan.AccelerationStructureHandle(uintptr(d.newHandle("acceleration_structure"))), nil
}

func (d *Device) CreateQueryPool(info *vk.QueryPoolCreateInfo) (vk.QueryPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateQueryPool"); err != nil {
		return nil, err
	}
	return vk.QueryPool(d.newHandle("query_pool")), nil
}

func (d *Device) QueryResults(pool vk.QueryPool, first, count uint32) ([]uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	results := make([]uint64, count)
	for i := range results {
		if j := int(first) + i; j < len(d.Timestamps) {
			results[i] = d.Timestamps[j]
		}
	}
	return results, nil
}

func (d *Device) CreateCommandPool(info *vk.CommandPoolCreateInfo) (vk.CommandPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateCommandPool"); err != nil {
		return nil, err
	}
	return vk.CommandPool(d.newHandle("command_pool")), nil
}

func (d *Device) AllocateCommandBuffer(pool vk.CommandPool) (vulkan.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("AllocateCommandBuffer"); err != nil {
		return nil, err
	}
	handle := vk.CommandBuffer(d.newHandle("command_buffer"))
	// command buffers are owned by their pool
	d.Destroyed = append(d.Destroyed, d.idLocked(handle))
	cb := &CommandBuffer{handle: handle, Name: d.idLocked(handle)}
	d.Buffers = append(d.Buffers, cb)
	return cb, nil
}

func (d *Device) CreateSemaphore(info *vk.SemaphoreCreateInfo) (vk.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateSemaphore"); err != nil {
		return nil, err
	}
	return vk.Semaphore(d.newHandle("semaphore")), nil
}

func (d *Device) CreateFence(info *vk.FenceCreateInfo) (vk.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateFence"); err != nil {
		return nil, err
	}
	return vk.Fence(d.newHandle("fence")), nil
}

func (d *Device) WaitForFence(fence vk.Fence, timeoutNs uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fail("WaitForFence")
}

func (d *Device) ResetFence(fence vk.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fail("ResetFence")
}

func (d *Device) QueueSubmit(queue vk.Queue, submits []vk.SubmitInfo, fence vk.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("QueueSubmit"); err != nil {
		return err
	}
	d.Submits = append(d.Submits, append([]vk.SubmitInfo(nil), submits...))
	return nil
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.WaitIdles++
	return nil
}

func (d *Device) SetDebugName(object interface{}, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id := d.idLocked(object); id != "" {
		d.DebugNames[id] = name
	}
}

// NameOf returns the debug name given to a handle.
func (d *Device) NameOf(object interface{}) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.DebugNames[d.idLocked(object)]
}

func (d *Device) Destroy(object interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id := d.idLocked(object); id != "" {
		d.Destroyed = append(d.Destroyed, id)
	}
}

// SubmittedBuffers returns the command buffers of every submit, in submission order.
func (d *Device) SubmittedBuffers() []*CommandBuffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*CommandBuffer
	for _, batch := range d.Submits {
		for _, submit := range batch {
			for _, handle := range submit.PCommandBuffers {
				for _, cb := range d.Buffers {
					if cb.handle == handle {
						out = append(out, cb)
					}
				}
			}
		}
	}
	return out
}

var _ vulkan.Device = (*Device)(nil)
