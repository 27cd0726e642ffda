package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

type Fence struct {
	Handle     vk.Fence
	IsSignaled bool
	dev        Device
}

// Wait blocks until the fence is signaled or timeoutNs elapsed.
func (f *Fence) Wait(timeoutNs uint64) error {
	if f.IsSignaled {
		return nil
	}
	if err := f.dev.WaitForFence(f.Handle, timeoutNs); err != nil {
		core.LogWarn("fence wait failed: %s", err)
		return err
	}
	f.IsSignaled = true
	return nil
}

func (f *Fence) Reset() error {
	if !f.IsSignaled {
		return nil
	}
	if err := f.dev.ResetFence(f.Handle); err != nil {
		return fmt.Errorf("failed to reset fence: %w", err)
	}
	f.IsSignaled = false
	return nil
}

func (f *Fence) Release() {
	if f == nil || f.dev == nil {
		return
	}
	f.dev.Destroy(f.Handle)
	f.Handle = nil
	f.IsSignaled = false
	f.dev = nil
}

type FenceBuilder struct {
	signaled  bool
	debugName string
}

func NewFenceBuilder() *FenceBuilder {
	return &FenceBuilder{}
}

func (b *FenceBuilder) Signaled() *FenceBuilder {
	b.signaled = true
	return b
}

func (b *FenceBuilder) DebugName(name string) *FenceBuilder {
	b.debugName = name
	return b
}

func (b *FenceBuilder) Create(dev Device) (*Fence, error) {
	signaled, name := b.signaled, b.debugName
	b.signaled, b.debugName = false, ""

	info := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	handle, err := dev.CreateFence(&info)
	if err != nil {
		return nil, createError("fence", name, err)
	}
	setDebugName(dev, handle, name)
	return &Fence{Handle: handle, IsSignaled: signaled, dev: dev}, nil
}

type SemaphoreBuilder struct {
	debugName string
}

func NewSemaphoreBuilder() *SemaphoreBuilder {
	return &SemaphoreBuilder{}
}

func (b *SemaphoreBuilder) DebugName(name string) *SemaphoreBuilder {
	b.debugName = name
	return b
}

func (b *SemaphoreBuilder) Create(dev Device) (*Semaphore, error) {
	name := b.debugName
	b.debugName = ""

	info := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	handle, err := dev.CreateSemaphore(&info)
	if err != nil {
		return nil, createError("semaphore", name, err)
	}
	setDebugName(dev, handle, name)
	return &Semaphore{Handle: handle, dev: dev}, nil
}
