package vulkan

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

const validationLayerName = "VK_LAYER_KHRONOS_validation"

// VulkanDevice is a headless logical device with a single graphics and compute queue.
type VulkanDevice struct {
	instance       vk.Instance
	debugCallback  vk.DebugReportCallback
	physicalDevice vk.PhysicalDevice
	logical        vk.Device
	memory         vk.PhysicalDeviceMemoryProperties
	caps           Capabilities
	usesGLFW       bool

	namesMu sync.Mutex
	names   map[interface{}]string
}

func NewVulkanDevice(appName string, cfg core.VulkanConfig) (*VulkanDevice, error) {
	d := &VulkanDevice{names: make(map[interface{}]string)}

	if err := d.loadVulkan(cfg.Loader); err != nil {
		return nil, err
	}
	if err := d.createInstance(appName, cfg.Validation); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.selectPhysicalDevice(); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.createLogicalDevice(); err != nil {
		d.Close()
		return nil, err
	}
	d.caps.DebugNames = cfg.DebugNames

	core.LogInfo("Vulkan device ready (queue family %d, depth format %d, ray query %v)",
		d.caps.GraphicsFamily, d.caps.DepthStencilFormat, d.caps.RayQuery)
	return d, nil
}

func (d *VulkanDevice) loadVulkan(loader string) error {
	if loader == "glfw" {
		if err := glfw.Init(); err != nil {
			return fmt.Errorf("failed to initialize glfw: %w", err)
		}
		d.usesGLFW = true
		if !glfw.VulkanSupported() {
			return fmt.Errorf("%w: glfw found no Vulkan loader", core.ErrUnsupported)
		}
		procAddr := glfw.GetVulkanGetInstanceProcAddress()
		if procAddr == nil {
			return fmt.Errorf("GetInstanceProcAddress is nil")
		}
		vk.SetGetInstanceProcAddr(procAddr)
	} else if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		core.LogError("failed to load the Vulkan library: %s", err)
		return err
	}

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return err
	}
	return nil
}

func (d *VulkanDevice) createInstance(appName string, validation bool) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Prism"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := []string{}
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1
	}

	layers := []string{}
	if validation {
		found, err := validationLayerAvailable()
		if err != nil {
			return err
		}
		if found {
			layers = append(layers, validationLayerName)
			extensions = append(extensions, vk.ExtDebugReportExtensionName)
		} else {
			core.LogWarn("Validation layer %s is missing, continuing without it", validationLayerName)
			validation = false
		}
	}

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if res := vk.CreateInstance(&createInfo, nil, &d.instance); res != vk.Success {
		return resultError("vkCreateInstance", res)
	}
	if err := vk.InitInstance(d.instance); err != nil {
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	if validation {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(d.instance, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			return err
		}
		d.debugCallback = dbg
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func validationLayerAvailable() (bool, error) {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return false, resultError("vkEnumerateInstanceLayerProperties", res)
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return false, resultError("vkEnumerateInstanceLayerProperties", res)
	}
	for i := range available {
		available[i].Deref()
		end := FindFirstZeroInByteArray(available[i].LayerName[:])
		if string(available[i].LayerName[:end]) == validationLayerName {
			return true, nil
		}
	}
	return false, nil
}

// selectPhysicalDevice picks the first device with a graphics and compute queue, preferring discrete GPUs.
func (d *VulkanDevice) selectPhysicalDevice() error {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(d.instance, &count, nil); res != vk.Success {
		return resultError("vkEnumeratePhysicalDevices", res)
	}
	if count == 0 {
		return fmt.Errorf("%w: no devices which support Vulkan were found", core.ErrUnsupported)
	}
	devices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(d.instance, &count, devices); res != vk.Success {
		return resultError("vkEnumeratePhysicalDevices", res)
	}

	bestScore := -1
	for _, pd := range devices {
		family, ok := graphicsComputeFamily(pd)
		if !ok {
			continue
		}
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &props)
		props.Deref()

		score := 0
		if props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			score = 2
		} else if props.DeviceType == vk.PhysicalDeviceTypeIntegratedGpu {
			score = 1
		}
		if score <= bestScore {
			continue
		}
		bestScore = score

		props.Limits.Deref()
		d.physicalDevice = pd
		d.caps.GraphicsFamily = family
		d.caps.MinUniformBufferOffsetAlignment = uint64(props.Limits.MinUniformBufferOffsetAlignment)
		d.caps.TimestampPeriod = props.Limits.TimestampPeriod
		end := FindFirstZeroInByteArray(props.DeviceName[:])
		core.LogInfo("Selected physical device %s", string(props.DeviceName[:end]))
	}
	if d.physicalDevice == nil {
		return fmt.Errorf("%w: no device with a graphics and compute queue", core.ErrUnsupported)
	}

	vk.GetPhysicalDeviceMemoryProperties(d.physicalDevice, &d.memory)
	d.memory.Deref()

	if !d.detectDepthFormat() {
		return fmt.Errorf("%w: no depth stencil format", core.ErrUnsupported)
	}
	return nil
}

func graphicsComputeFamily(pd vk.PhysicalDevice) (uint32, bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, families)

	want := vk.QueueFlags(vk.QueueGraphicsBit) | vk.QueueFlags(vk.QueueComputeBit)
	for i := range families {
		families[i].Deref()
		if families[i].QueueFlags&want == want {
			return uint32(i), true
		}
	}
	return 0, false
}

func (d *VulkanDevice) detectDepthFormat() bool {
	candidates := []vk.Format{
		vk.FormatD24UnormS8Uint,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD32Sfloat,
	}
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, format := range candidates {
		props := d.FormatProperties(format)
		if props.OptimalTilingFeatures&flags == flags {
			d.caps.DepthStencilFormat = format
			return true
		}
	}
	return false
}

func (d *VulkanDevice) createLogicalDevice() error {
	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(d.physicalDevice, &features)
	features.Deref()

	enabled := vk.PhysicalDeviceFeatures{
		SamplerAnisotropy: features.SamplerAnisotropy,
	}

	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: d.caps.GraphicsFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	extensions := []string{}
	if runtime.GOOS == "darwin" {
		extensions = append(extensions, "VK_KHR_portability_subset")
	}

	info := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{enabled},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensions),
	}
	if res := vk.CreateDevice(d.physicalDevice, &info, nil, &d.logical); res != vk.Success {
		return resultError("vkCreateDevice", res)
	}
	core.LogInfo("Logical device created.")

	var queue vk.Queue
	vk.GetDeviceQueue(d.logical, d.caps.GraphicsFamily, 0, &queue)
	d.caps.GraphicsQueue = queue
	lockPool.SetQueueFamily(d.caps.GraphicsFamily)

	// The generated bindings do not expose the ray query extension.
	d.caps.RayQuery = false
	return nil
}

// Close destroys the device and the instance. Every object created on the device must be released before.
func (d *VulkanDevice) Close() {
	if d.logical != nil {
		vk.DeviceWaitIdle(d.logical)
		vk.DestroyDevice(d.logical, nil)
		d.logical = nil
	}
	if d.debugCallback != nil {
		vk.DestroyDebugReportCallback(d.instance, d.debugCallback, nil)
		d.debugCallback = nil
	}
	if d.instance != nil {
		vk.DestroyInstance(d.instance, nil)
		d.instance = nil
	}
	if d.usesGLFW {
		glfw.Terminate()
		d.usesGLFW = false
	}
}

func (d *VulkanDevice) Capabilities() Capabilities {
	return d.caps
}

func (d *VulkanDevice) FormatProperties(format vk.Format) vk.FormatProperties {
	var props vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(d.physicalDevice, format, &props)
	props.Deref()
	return props
}

// FindMemoryIndex returns the first memory type allowed by typeFilter that has all of propertyFlags, or -1.
func (d *VulkanDevice) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) int32 {
	for i := uint32(0); i < d.memory.MemoryTypeCount; i++ {
		d.memory.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && d.memory.MemoryTypes[i].PropertyFlags&propertyFlags == propertyFlags {
			return int32(i)
		}
	}
	return -1
}

func memoryFlags(mem MemoryRequest) (required, preferred vk.MemoryPropertyFlags) {
	hostVisible := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) | vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)
	switch mem.Usage {
	case MemoryGPUOnly:
		required = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	case MemoryCPUToGPU:
		required = hostVisible
		preferred = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	case MemoryGPUToCPU:
		required = hostVisible
		preferred = vk.MemoryPropertyFlags(vk.MemoryPropertyHostCachedBit)
	}
	return required | mem.Required, preferred | mem.Preferred
}

func (d *VulkanDevice) allocate(req vk.MemoryRequirements, mem MemoryRequest) (*Allocation, error) {
	typeBits := req.MemoryTypeBits
	if mem.TypeBits != 0 {
		typeBits &= mem.TypeBits
	}
	required, preferred := memoryFlags(mem)

	index := d.FindMemoryIndex(typeBits, required|preferred)
	if index < 0 {
		index = d.FindMemoryIndex(typeBits, required)
	}
	if index < 0 {
		core.LogWarn("Unable to find suitable memory type!")
		return nil, fmt.Errorf("%w: no memory type for %s", core.ErrCreateFailed, mem.Usage)
	}

	alignment := uint64(req.Alignment)
	if mem.MinAlignment > alignment {
		alignment = mem.MinAlignment
	}
	size := uint64(req.Size)
	if alignment > 1 {
		size = (size + alignment - 1) / alignment * alignment
	}

	alloc := &Allocation{Size: size, TypeIndex: uint32(index)}
	if err := lockPool.SafeCall(MemoryManagement, func() error {
		info := vk.MemoryAllocateInfo{
			SType:           vk.StructureTypeMemoryAllocateInfo,
			AllocationSize:  vk.DeviceSize(size),
			MemoryTypeIndex: uint32(index),
		}
		if res := vk.AllocateMemory(d.logical, &info, nil, &alloc.Memory); res != vk.Success {
			return resultError("vkAllocateMemory", res)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if mem.Mapped {
		if _, err := d.MapMemory(alloc); err != nil {
			d.Destroy(alloc)
			return nil, err
		}
		alloc.Persistent = true
	}
	return alloc, nil
}

func (d *VulkanDevice) CreateImage(info *vk.ImageCreateInfo, mem MemoryRequest) (vk.Image, *Allocation, error) {
	var image vk.Image
	if res := vk.CreateImage(d.logical, info, nil, &image); res != vk.Success {
		return nil, nil, resultError("vkCreateImage", res)
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.logical, image, &req)
	req.Deref()

	alloc, err := d.allocate(req, mem)
	if err != nil {
		vk.DestroyImage(d.logical, image, nil)
		return nil, nil, err
	}
	if res := vk.BindImageMemory(d.logical, image, alloc.Memory, 0); res != vk.Success {
		d.Destroy(alloc)
		vk.DestroyImage(d.logical, image, nil)
		return nil, nil, resultError("vkBindImageMemory", res)
	}
	return image, alloc, nil
}

func (d *VulkanDevice) CreateBuffer(info *vk.BufferCreateInfo, mem MemoryRequest) (vk.Buffer, *Allocation, error) {
	var buffer vk.Buffer
	if res := vk.CreateBuffer(d.logical, info, nil, &buffer); res != vk.Success {
		return nil, nil, resultError("vkCreateBuffer", res)
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.logical, buffer, &req)
	req.Deref()

	alloc, err := d.allocate(req, mem)
	if err != nil {
		vk.DestroyBuffer(d.logical, buffer, nil)
		return nil, nil, err
	}
	if res := vk.BindBufferMemory(d.logical, buffer, alloc.Memory, 0); res != vk.Success {
		d.Destroy(alloc)
		vk.DestroyBuffer(d.logical, buffer, nil)
		return nil, nil, resultError("vkBindBufferMemory", res)
	}
	return buffer, alloc, nil
}

func (d *VulkanDevice) MapMemory(alloc *Allocation) ([]byte, error) {
	if alloc.Mapped != nil {
		return alloc.Mapped, nil
	}
	var ptr unsafe.Pointer
	if res := vk.MapMemory(d.logical, alloc.Memory, 0, vk.DeviceSize(alloc.Size), 0, &ptr); res != vk.Success {
		err := fmt.Errorf("vkMapMemory failed with %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	alloc.Mapped = unsafe.Slice((*byte)(ptr), alloc.Size)
	return alloc.Mapped, nil
}

func (d *VulkanDevice) UnmapMemory(alloc *Allocation) {
	if alloc == nil || alloc.Mapped == nil {
		return
	}
	vk.UnmapMemory(d.logical, alloc.Memory)
	alloc.Mapped = nil
}

func (d *VulkanDevice) CreateImageView(info *vk.ImageViewCreateInfo) (vk.ImageView, error) {
	var view vk.ImageView
	if res := vk.CreateImageView(d.logical, info, nil, &view); res != vk.Success {
		return nil, resultError("vkCreateImageView", res)
	}
	return view, nil
}

func (d *VulkanDevice) CreateSampler(info *vk.SamplerCreateInfo) (vk.Sampler, error) {
	var sampler vk.Sampler
	if res := vk.CreateSampler(d.logical, info, nil, &sampler); res != vk.Success {
		return nil, resultError("vkCreateSampler", res)
	}
	return sampler, nil
}

func (d *VulkanDevice) CreateDescriptorSetLayout(info *vk.DescriptorSetLayoutCreateInfo) (vk.DescriptorSetLayout, error) {
	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(d.logical, info, nil, &layout); res != vk.Success {
		return nil, resultError("vkCreateDescriptorSetLayout", res)
	}
	return layout, nil
}

func (d *VulkanDevice) CreateDescriptorPool(info *vk.DescriptorPoolCreateInfo) (vk.DescriptorPool, error) {
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(d.logical, info, nil, &pool); res != vk.Success {
		return nil, resultError("vkCreateDescriptorPool", res)
	}
	return pool, nil
}

func (d *VulkanDevice) AllocateDescriptorSet(pool vk.DescriptorPool, layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	sets := make([]vk.DescriptorSet, 1)
	err := lockPool.SafeCall(DescriptorManagement, func() error {
		info := vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     pool,
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{layout},
		}
		if res := vk.AllocateDescriptorSets(d.logical, &info, &sets[0]); res != vk.Success {
			return resultError("vkAllocateDescriptorSets", res)
		}
		return nil
	})
	return sets[0], err
}

func (d *VulkanDevice) UpdateDescriptorSets(writes []vk.WriteDescriptorSet) {
	_ = lockPool.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(d.logical, uint32(len(writes)), writes, 0, nil)
		return nil
	})
}

func (d *VulkanDevice) CreatePipelineLayout(info *vk.PipelineLayoutCreateInfo) (vk.PipelineLayout, error) {
	var layout vk.PipelineLayout
	err := lockPool.SafeCall(PipelineManagement, func() error {
		if res := vk.CreatePipelineLayout(d.logical, info, nil, &layout); !VulkanResultIsSuccess(res) {
			return resultError("vkCreatePipelineLayout", res)
		}
		return nil
	})
	return layout, err
}

func (d *VulkanDevice) CreatePipelineCache(info *vk.PipelineCacheCreateInfo) (vk.PipelineCache, error) {
	var cache vk.PipelineCache
	if res := vk.CreatePipelineCache(d.logical, info, nil, &cache); res != vk.Success {
		return nil, resultError("vkCreatePipelineCache", res)
	}
	return cache, nil
}

func (d *VulkanDevice) PipelineCacheData(cache vk.PipelineCache) ([]byte, error) {
	var size uint64
	if err := vk.Error(vk.GetPipelineCacheData(d.logical, cache, &size, nil)); err != nil {
		return nil, fmt.Errorf("vk.GetPipelineCacheData failed with %s", err)
	}
	if size == 0 {
		return nil, nil
	}
	data := make([]byte, size)
	if err := vk.Error(vk.GetPipelineCacheData(d.logical, cache, &size, unsafe.Pointer(&data[0]))); err != nil {
		return nil, fmt.Errorf("vk.GetPipelineCacheData failed with %s", err)
	}
	return data[:size], nil
}

func (d *VulkanDevice) CreateRenderPass(info *vk.RenderPassCreateInfo) (vk.RenderPass, error) {
	var rp vk.RenderPass
	if res := vk.CreateRenderPass(d.logical, info, nil, &rp); res != vk.Success {
		return nil, resultError("vkCreateRenderPass", res)
	}
	return rp, nil
}

func (d *VulkanDevice) CreateFramebuffer(info *vk.FramebufferCreateInfo) (vk.Framebuffer, error) {
	var fb vk.Framebuffer
	if res := vk.CreateFramebuffer(d.logical, info, nil, &fb); res != vk.Success {
		return nil, resultError("vkCreateFramebuffer", res)
	}
	return fb, nil
}

func (d *VulkanDevice) CreateShaderModule(code []byte) (vk.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, invalidDescriptor("SPIR-V code size %d is not a multiple of 4", len(code))
	}
	// copy into a uint32 slice so the words are aligned
	words := make([]uint32, len(code)/4)
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(code)), code)

	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    words,
	}
	var module vk.ShaderModule
	if res := vk.CreateShaderModule(d.logical, &info, nil, &module); res != vk.Success {
		return nil, resultError("vkCreateShaderModule", res)
	}
	return module, nil
}

func (d *VulkanDevice) CreateGraphicsPipeline(cache vk.PipelineCache, info *vk.GraphicsPipelineCreateInfo) (vk.Pipeline, error) {
	pipelines := make([]vk.Pipeline, 1)
	err := lockPool.SafeCall(PipelineManagement, func() error {
		res := vk.CreateGraphicsPipelines(d.logical, cache, 1, []vk.GraphicsPipelineCreateInfo{*info}, nil, pipelines)
		if !VulkanResultIsSuccess(res) {
			return resultError("vkCreateGraphicsPipelines", res)
		}
		return nil
	})
	return pipelines[0], err
}

func (d *VulkanDevice) CreateComputePipeline(cache vk.PipelineCache, info *vk.ComputePipelineCreateInfo) (vk.Pipeline, error) {
	pipelines := make([]vk.Pipeline, 1)
	err := lockPool.SafeCall(PipelineManagement, func() error {
		res := vk.CreateComputePipelines(d.logical, cache, 1, []vk.ComputePipelineCreateInfo{*info}, nil, pipelines)
		if !VulkanResultIsSuccess(res) {
			return resultError("vkCreateComputePipelines", res)
		}
		return nil
	})
	return pipelines[0], err
}

func (d *VulkanDevice) CreateAccelerationStructure(info *AccelerationStructureCreateInfo) (AccelerationStructureHandle, error) {
	return 0, fmt.Errorf("%w: acceleration structures", core.ErrUnsupported)
}

func (d *VulkanDevice) CreateQueryPool(info *vk.QueryPoolCreateInfo) (vk.QueryPool, error) {
	var pool vk.QueryPool
	if res := vk.CreateQueryPool(d.logical, info, nil, &pool); res != vk.Success {
		return nil, resultError("vkCreateQueryPool", res)
	}
	return pool, nil
}

func (d *VulkanDevice) QueryResults(pool vk.QueryPool, first, count uint32) ([]uint64, error) {
	if count == 0 {
		return nil, nil
	}
	results := make([]uint64, count)
	flags := vk.QueryResultFlags(vk.QueryResult64Bit) | vk.QueryResultFlags(vk.QueryResultWaitBit)
	res := vk.GetQueryPoolResults(d.logical, pool, first, count, uint64(count)*8, unsafe.Pointer(&results[0]), 8, flags)
	if res != vk.Success {
		return nil, fmt.Errorf("vkGetQueryPoolResults failed with %s", VulkanResultString(res, true))
	}
	return results, nil
}

func (d *VulkanDevice) CreateCommandPool(info *vk.CommandPoolCreateInfo) (vk.CommandPool, error) {
	var pool vk.CommandPool
	err := lockPool.SafeCall(CommandPoolManagement, func() error {
		if res := vk.CreateCommandPool(d.logical, info, nil, &pool); res != vk.Success {
			return resultError("vkCreateCommandPool", res)
		}
		return nil
	})
	return pool, err
}

func (d *VulkanDevice) AllocateCommandBuffer(pool vk.CommandPool) (CommandBuffer, error) {
	buffers := make([]vk.CommandBuffer, 1)
	err := lockPool.SafeCall(CommandPoolManagement, func() error {
		info := vk.CommandBufferAllocateInfo{
			SType:              vk.StructureTypeCommandBufferAllocateInfo,
			CommandPool:        pool,
			Level:              vk.CommandBufferLevelPrimary,
			CommandBufferCount: 1,
		}
		if res := vk.AllocateCommandBuffers(d.logical, &info, buffers); res != vk.Success {
			return resultError("vkAllocateCommandBuffers", res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &VulkanCommandBuffer{handle: buffers[0]}, nil
}

func (d *VulkanDevice) CreateSemaphore(info *vk.SemaphoreCreateInfo) (vk.Semaphore, error) {
	var sem vk.Semaphore
	if res := vk.CreateSemaphore(d.logical, info, nil, &sem); res != vk.Success {
		return nil, resultError("vkCreateSemaphore", res)
	}
	return sem, nil
}

func (d *VulkanDevice) CreateFence(info *vk.FenceCreateInfo) (vk.Fence, error) {
	var fence vk.Fence
	if res := vk.CreateFence(d.logical, info, nil, &fence); res != vk.Success {
		return nil, resultError("vkCreateFence", res)
	}
	return fence, nil
}

func (d *VulkanDevice) WaitForFence(fence vk.Fence, timeoutNs uint64) error {
	res := vk.WaitForFences(d.logical, 1, []vk.Fence{fence}, vk.True, timeoutNs)
	switch res {
	case vk.Success:
		return nil
	case vk.Timeout:
		return fmt.Errorf("vk_fence_wait - timed out after %dns", timeoutNs)
	default:
		return fmt.Errorf("vk_fence_wait - %s", VulkanResultString(res, true))
	}
}

func (d *VulkanDevice) ResetFence(fence vk.Fence) error {
	if res := vk.ResetFences(d.logical, 1, []vk.Fence{fence}); res != vk.Success {
		return fmt.Errorf("vkResetFences failed with %s", VulkanResultString(res, true))
	}
	return nil
}

func (d *VulkanDevice) QueueSubmit(queue vk.Queue, submits []vk.SubmitInfo, fence vk.Fence) error {
	return lockPool.SafeQueueCall(d.caps.GraphicsFamily, func() error {
		if res := vk.QueueSubmit(queue, uint32(len(submits)), submits, fence); res != vk.Success {
			err := fmt.Errorf("vkQueueSubmit failed with %s", VulkanResultString(res, true))
			core.LogError(err.Error())
			return err
		}
		return nil
	})
}

func (d *VulkanDevice) WaitIdle() error {
	if res := vk.DeviceWaitIdle(d.logical); res != vk.Success {
		return fmt.Errorf("vkDeviceWaitIdle failed with %s", VulkanResultString(res, true))
	}
	return nil
}

// SetDebugName remembers the name so later diagnostics can refer to the object.
func (d *VulkanDevice) SetDebugName(object interface{}, name string) {
	d.namesMu.Lock()
	d.names[object] = name
	d.namesMu.Unlock()
	core.LogDebug("created %T %q", object, name)
}

func (d *VulkanDevice) DebugName(object interface{}) string {
	d.namesMu.Lock()
	defer d.namesMu.Unlock()
	return d.names[object]
}

func (d *VulkanDevice) forget(object interface{}) {
	d.namesMu.Lock()
	delete(d.names, object)
	d.namesMu.Unlock()
}

func (d *VulkanDevice) Destroy(object interface{}) {
	_ = lockPool.SafeCall(ResourceManagement, func() error {
		switch o := object.(type) {
		case vk.Image:
			if o != nil {
				vk.DestroyImage(d.logical, o, nil)
			}
		case *Allocation:
			if o != nil && o.Memory != nil {
				if o.Mapped != nil {
					vk.UnmapMemory(d.logical, o.Memory)
					o.Mapped = nil
				}
				vk.FreeMemory(d.logical, o.Memory, nil)
				o.Memory = nil
			}
		case vk.ImageView:
			if o != nil {
				vk.DestroyImageView(d.logical, o, nil)
			}
		case vk.Sampler:
			if o != nil {
				vk.DestroySampler(d.logical, o, nil)
			}
		case vk.Buffer:
			if o != nil {
				vk.DestroyBuffer(d.logical, o, nil)
			}
		case vk.DescriptorSetLayout:
			if o != nil {
				vk.DestroyDescriptorSetLayout(d.logical, o, nil)
			}
		case vk.DescriptorPool:
			if o != nil {
				vk.DestroyDescriptorPool(d.logical, o, nil)
			}
		case vk.PipelineLayout:
			if o != nil {
				vk.DestroyPipelineLayout(d.logical, o, nil)
			}
		case vk.PipelineCache:
			if o != nil {
				vk.DestroyPipelineCache(d.logical, o, nil)
			}
		case vk.RenderPass:
			if o != nil {
				vk.DestroyRenderPass(d.logical, o, nil)
			}
		case vk.Framebuffer:
			if o != nil {
				vk.DestroyFramebuffer(d.logical, o, nil)
			}
		case vk.ShaderModule:
			if o != nil {
				vk.DestroyShaderModule(d.logical, o, nil)
			}
		case vk.Pipeline:
			if o != nil {
				vk.DestroyPipeline(d.logical, o, nil)
			}
		case vk.QueryPool:
			if o != nil {
				vk.DestroyQueryPool(d.logical, o, nil)
			}
		case vk.CommandPool:
			if o != nil {
				vk.DestroyCommandPool(d.logical, o, nil)
			}
		case vk.Semaphore:
			if o != nil {
				vk.DestroySemaphore(d.logical, o, nil)
			}
		case vk.Fence:
			if o != nil {
				vk.DestroyFence(d.logical, o, nil)
			}
		case AccelerationStructureHandle:
			// never created on this device
		default:
			core.LogWarn("Destroy called with unsupported object %T", object)
		}
		return nil
	})
	d.forget(object)
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
