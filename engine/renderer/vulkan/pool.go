package vulkan

import (
	"sync"

	vk "github.com/goki/vulkan"
)

type LockGroup string

const (
	ResourceManagement        LockGroup = "resource_management"
	DescriptorManagement      LockGroup = "descriptor_management"
	PipelineManagement        LockGroup = "pipeline_management"
	MemoryManagement          LockGroup = "memory_management"
	CommandPoolManagement     LockGroup = "command_pool_management"
	SynchronizationManagement LockGroup = "synchronization_management"
	DebugManagement           LockGroup = "debug_management"
)

// VulkanLockPool serializes calls that Vulkan requires to be externally synchronized.
type VulkanLockPool struct {
	locks map[LockGroup]*sync.Mutex
	mu    sync.Mutex // protects both maps

	queueMutexes map[uint32]*sync.Mutex // queue family index as key
}

var lockPool = NewVulkanLockPool()

func NewVulkanLockPool() *VulkanLockPool {
	return &VulkanLockPool{
		locks:        make(map[LockGroup]*sync.Mutex),
		queueMutexes: make(map[uint32]*sync.Mutex),
	}
}

func (vs *VulkanLockPool) lock(group LockGroup) *sync.Mutex {
	vs.mu.Lock()
	l, exists := vs.locks[group]
	if !exists {
		l = &sync.Mutex{}
		vs.locks[group] = l
	}
	vs.mu.Unlock()

	l.Lock()
	return l
}

func (vs *VulkanLockPool) SafeCall(group LockGroup, fn func() error) error {
	l := vs.lock(group)
	defer l.Unlock()

	return fn()
}

func (vs *VulkanLockPool) SetQueueFamily(index uint32) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if _, exists := vs.queueMutexes[index]; !exists {
		vs.queueMutexes[index] = &sync.Mutex{}
	}
}

// SafeQueueCall runs fn while holding the lock of a queue family registered with SetQueueFamily.
func (vs *VulkanLockPool) SafeQueueCall(queueFamilyIndex uint32, fn func() error) error {
	vs.mu.Lock()
	l, exists := vs.queueMutexes[queueFamilyIndex]
	if !exists {
		l = &sync.Mutex{}
		vs.queueMutexes[queueFamilyIndex] = l
	}
	vs.mu.Unlock()

	l.Lock()
	defer l.Unlock()

	return fn()
}

type CommandPoolBuilder struct {
	info      vk.CommandPoolCreateInfo
	debugName string
}

func NewCommandPoolBuilder() *CommandPoolBuilder {
	b := &CommandPoolBuilder{}
	b.reset()
	return b
}

func (b *CommandPoolBuilder) reset() {
	b.info = vk.CommandPoolCreateInfo{
		SType: vk.StructureTypeCommandPoolCreateInfo,
		Flags: vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	b.debugName = ""
}

func (b *CommandPoolBuilder) QueueFamily(index uint32) *CommandPoolBuilder {
	b.info.QueueFamilyIndex = index
	return b
}

func (b *CommandPoolBuilder) Transient() *CommandPoolBuilder {
	b.info.Flags |= vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit)
	return b
}

func (b *CommandPoolBuilder) DebugName(name string) *CommandPoolBuilder {
	b.debugName = name
	return b
}

func (b *CommandPoolBuilder) Create(dev Device) (*CommandPool, error) {
	defer b.reset()

	info := b.info
	handle, err := dev.CreateCommandPool(&info)
	if err != nil {
		return nil, createError("command pool", b.debugName, err)
	}
	setDebugName(dev, handle, b.debugName)
	return &CommandPool{Handle: handle, dev: dev}, nil
}

type QueryPoolBuilder struct {
	info      vk.QueryPoolCreateInfo
	debugName string
}

func NewQueryPoolBuilder() *QueryPoolBuilder {
	b := &QueryPoolBuilder{}
	b.reset()
	return b
}

func (b *QueryPoolBuilder) reset() {
	b.info = vk.QueryPoolCreateInfo{
		SType:     vk.StructureTypeQueryPoolCreateInfo,
		QueryType: vk.QueryTypeTimestamp,
	}
	b.debugName = ""
}

func (b *QueryPoolBuilder) QueryType(queryType vk.QueryType, count uint32) *QueryPoolBuilder {
	b.info.QueryType = queryType
	b.info.QueryCount = count
	return b
}

func (b *QueryPoolBuilder) DebugName(name string) *QueryPoolBuilder {
	b.debugName = name
	return b
}

func (b *QueryPoolBuilder) Create(dev Device) (*QueryPool, error) {
	defer b.reset()

	if b.info.QueryCount == 0 {
		return nil, invalidDescriptor("query pool %q has no queries", b.debugName)
	}
	info := b.info
	handle, err := dev.CreateQueryPool(&info)
	if err != nil {
		return nil, createError("query pool", b.debugName, err)
	}
	setDebugName(dev, handle, b.debugName)
	return &QueryPool{Handle: handle, Type: info.QueryType, Count: info.QueryCount, dev: dev}, nil
}
