package vulkan_test

import (
	"errors"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan/vktest"
)

func newStorageBuffer(t *testing.T, dev *vktest.Device, size uint64) *vulkan.Buffer {
	t.Helper()
	buf, err := vulkan.NewBufferBuilder().
		Size(size).
		Usage(vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit | vk.BufferUsageTransferDstBit)).
		Create(dev)
	if err != nil {
		t.Fatal(err)
	}
	return buf
}

func newColorImage(t *testing.T, dev *vktest.Device, mips, layers uint32) *vulkan.Image {
	t.Helper()
	img, err := vulkan.NewImageBuilder().
		Format(vk.FormatR16g16b16a16Sfloat).
		Size(64, 64, mips, layers).
		Usage(vk.ImageUsageFlags(vk.ImageUsageSampledBit | vk.ImageUsageTransferDstBit)).
		Create(dev)
	if err != nil {
		t.Fatal(err)
	}
	return img
}

func TestPipelineBarrierSingleCall(t *testing.T) {
	dev := vktest.NewDevice()
	cb := &vktest.CommandBuffer{}
	buf := newStorageBuffer(t, dev, 256)
	img := newColorImage(t, dev, 4, 6)

	barrier := vulkan.NewPipelineBarrier()
	barrier.Execute(cb, vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit))
	if len(cb.Barriers) != 0 {
		t.Fatalf("an empty barrier recorded a command")
	}

	barrier.
		AddMemory(vk.AccessFlags(vk.AccessShaderWriteBit), vk.AccessFlags(vk.AccessShaderReadBit)).
		AddBuffer(buf, vk.AccessFlags(vk.AccessTransferWriteBit), vk.AccessFlags(vk.AccessShaderReadBit)).
		AddImage(img, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal, 0, vk.AccessFlags(vk.AccessTransferWriteBit)).
		AddImageRange(img, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
			vk.AccessFlags(vk.AccessTransferWriteBit), vk.AccessFlags(vk.AccessShaderReadBit),
			vk.ImageAspectFlags(vk.ImageAspectColorBit), 1, 2, 0, 6).
		Execute(cb, vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit))

	if len(cb.Barriers) != 1 {
		t.Fatalf("recorded %d barrier commands, want 1", len(cb.Barriers))
	}
	rec := cb.Barriers[0]
	if len(rec.Memory) != 1 || len(rec.Buffers) != 1 || len(rec.Images) != 2 {
		t.Fatalf("barrier = %d memory %d buffer %d image", len(rec.Memory), len(rec.Buffers), len(rec.Images))
	}
	if b := rec.Buffers[0]; b.Offset != 0 || b.Size != vk.DeviceSize(^uint64(0)) || b.SrcQueueFamilyIndex != vk.QueueFamilyIgnored {
		t.Errorf("whole buffer barrier = %+v", b)
	}
	full := rec.Images[0].SubresourceRange
	if full.LevelCount != vulkan.RemainingMipLevels || full.LayerCount != vulkan.RemainingArrayLayers ||
		full.AspectMask != vk.ImageAspectFlags(vk.ImageAspectColorBit) {
		t.Errorf("full image range = %+v", full)
	}
	if r := rec.Images[1].SubresourceRange; r.BaseMipLevel != 1 || r.LevelCount != 2 || r.LayerCount != 6 {
		t.Errorf("sub range = %+v", r)
	}

	if !barrier.Empty() {
		t.Errorf("Execute should clear the barrier")
	}
}

func TestPipelineBarrierQueueTransfer(t *testing.T) {
	dev := vktest.NewDevice()
	cb := &vktest.CommandBuffer{}
	buf := newStorageBuffer(t, dev, 64)

	vulkan.NewPipelineBarrier().
		AddBufferQueueTransfer(0, 2, buf, vk.AccessFlags(vk.AccessTransferWriteBit), 0).
		Execute(cb, vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
			vk.DependencyFlags(vk.DependencyByRegionBit))

	b := cb.Barriers[0]
	if b.Buffers[0].SrcQueueFamilyIndex != 0 || b.Buffers[0].DstQueueFamilyIndex != 2 {
		t.Errorf("queue families = %d -> %d", b.Buffers[0].SrcQueueFamilyIndex, b.Buffers[0].DstQueueFamilyIndex)
	}
	if b.Deps != vk.DependencyFlags(vk.DependencyByRegionBit) {
		t.Errorf("dependency flags = %d", b.Deps)
	}
}

func TestWriteDescriptorsInsertionOrder(t *testing.T) {
	dev := vktest.NewDevice()
	layout, err := vulkan.NewDescriptorSetLayoutBuilder().
		AddBinding(0, vk.DescriptorTypeUniformBuffer, 1, vk.ShaderStageFlags(vk.ShaderStageFragmentBit)).
		AddBinding(1, vk.DescriptorTypeCombinedImageSampler, 2, vk.ShaderStageFlags(vk.ShaderStageFragmentBit)).
		AddBinding(2, vk.DescriptorTypeStorageImage, 1, vk.ShaderStageFlags(vk.ShaderStageFragmentBit)).
		Create(dev)
	if err != nil {
		t.Fatal(err)
	}
	pool, err := vulkan.NewDescriptorPoolBuilder().
		MaxSets(1).
		AddPoolSize(vk.DescriptorTypeUniformBuffer, 1).
		AddPoolSize(vk.DescriptorTypeCombinedImageSampler, 2).
		AddPoolSize(vk.DescriptorTypeStorageImage, 1).
		Create(dev)
	if err != nil {
		t.Fatal(err)
	}
	set, err := pool.Allocate(layout)
	if err != nil {
		t.Fatal(err)
	}

	buf := newStorageBuffer(t, dev, 512)
	img := newColorImage(t, dev, 1, 1)
	view, err := vulkan.NewImageViewBuilder().Image(img, img.Format).Create(dev)
	if err != nil {
		t.Fatal(err)
	}
	sampler, err := vulkan.NewSamplerBuilder().Create(dev)
	if err != nil {
		t.Fatal(err)
	}

	writes := vulkan.NewWriteDescriptors().
		AddStorageImage(set, 2, view, vk.ImageLayoutGeneral).
		AddBufferRange(set, 0, vk.DescriptorTypeUniformBuffer, buf, 256, 128).
		AddCombinedImageSamplerAt(set, 1, 1, view, sampler, vk.ImageLayoutShaderReadOnlyOptimal)
	if writes.Len() != 3 {
		t.Fatalf("Len = %d", writes.Len())
	}
	if err := writes.Execute(dev); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(dev.Writes) != 1 {
		t.Fatalf("UpdateDescriptorSets called %d times, want 1", len(dev.Writes))
	}
	got := dev.Writes[0]
	if got[0].DstBinding != 2 || got[1].DstBinding != 0 || got[2].DstBinding != 1 {
		t.Errorf("writes reordered: %d %d %d", got[0].DstBinding, got[1].DstBinding, got[2].DstBinding)
	}
	if r := got[1].PBufferInfo[0]; r.Offset != 256 || r.Range != 128 {
		t.Errorf("buffer range = %+v", r)
	}
	if got[2].DstArrayElement != 1 {
		t.Errorf("array element = %d", got[2].DstArrayElement)
	}
	if writes.Len() != 0 {
		t.Errorf("Execute should clear the batch")
	}

	// nothing left to write
	if err := writes.Execute(dev); err != nil || len(dev.Writes) != 1 {
		t.Errorf("empty Execute = %v with %d calls", err, len(dev.Writes))
	}
}

func TestWriteDescriptorsWithoutSet(t *testing.T) {
	dev := vktest.NewDevice()
	buf := newStorageBuffer(t, dev, 64)

	err := vulkan.NewWriteDescriptors().
		AddBuffer(nil, 0, vk.DescriptorTypeStorageBuffer, buf).
		Execute(dev)
	if !errors.Is(err, core.ErrInvalidDescriptor) {
		t.Errorf("Execute = %v, want ErrInvalidDescriptor", err)
	}
	if len(dev.Writes) != 0 {
		t.Errorf("invalid writes reached the device")
	}
}

func TestBufferTransfer(t *testing.T) {
	dev := vktest.NewDevice()
	cb := &vktest.CommandBuffer{}
	a := newStorageBuffer(t, dev, 64)
	b := newStorageBuffer(t, dev, 64)

	staging, err := vulkan.NewBufferTransfer().
		AddBuffer(a, 8, []byte{1, 2, 3, 4}, []byte{5, 6}).
		AddBuffer(b, 0, []byte{9, 9, 9, 9}).
		Execute(dev, cb)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if staging == nil || staging.Size != 10 {
		t.Fatalf("staging = %+v", staging)
	}
	if got := dev.NameOf(staging.Handle); got != "BufferTransfer.staging" {
		t.Errorf("staging name = %q", got)
	}
	if mem := dev.MemoryReqs[len(dev.MemoryReqs)-1]; mem.Usage != vulkan.MemoryCPUToGPU {
		t.Errorf("staging memory = %s", mem.Usage)
	}
	want := []byte{1, 2, 3, 4, 5, 6, 9, 9, 9, 9}
	if got := staging.Memory.Mapped[:10]; string(got) != string(want) {
		t.Errorf("staging contents = %v, want %v", got, want)
	}

	if len(cb.Copies) != 2 {
		t.Fatalf("recorded %d copies, want 2", len(cb.Copies))
	}
	first := cb.Copies[0].Buffers[0]
	if cb.Copies[0].Dst != a || first.SrcOffset != 0 || first.DstOffset != 8 || first.Size != 6 {
		t.Errorf("first copy = %+v", first)
	}
	second := cb.Copies[1].Buffers[0]
	if cb.Copies[1].Dst != b || second.SrcOffset != 6 || second.Size != 4 {
		t.Errorf("second copy = %+v", second)
	}
}

func TestBufferTransferLimits(t *testing.T) {
	dev := vktest.NewDevice()
	cb := &vktest.CommandBuffer{}
	buf := newStorageBuffer(t, dev, 8)

	_, err := vulkan.NewBufferTransfer().
		AddBuffer(buf, 0, []byte{1}, []byte{2}, []byte{3}).
		Execute(dev, cb)
	if !errors.Is(err, core.ErrInvalidDescriptor) {
		t.Errorf("three spans = %v, want ErrInvalidDescriptor", err)
	}

	_, err = vulkan.NewBufferTransfer().
		AddBuffer(buf, 4, make([]byte, 8)).
		Execute(dev, cb)
	if !errors.Is(err, core.ErrInvalidDescriptor) {
		t.Errorf("overflowing write = %v, want ErrInvalidDescriptor", err)
	}

	staging, err := vulkan.NewBufferTransfer().Execute(dev, cb)
	if staging != nil || err != nil {
		t.Errorf("empty transfer = %v, %v", staging, err)
	}
	if len(cb.Copies) != 0 {
		t.Errorf("failed transfers recorded copies")
	}
}

func TestQueueSubmit(t *testing.T) {
	dev := vktest.NewDevice()
	wait, err := vulkan.NewSemaphoreBuilder().Create(dev)
	if err != nil {
		t.Fatal(err)
	}
	signal, err := vulkan.NewSemaphoreBuilder().Create(dev)
	if err != nil {
		t.Fatal(err)
	}
	fence, err := vulkan.NewFenceBuilder().Signaled().Create(dev)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := dev.AllocateCommandBuffer(nil)
	b, _ := dev.AllocateCommandBuffer(nil)

	submit := vulkan.NewQueueSubmit().
		AddWait(vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit), wait).
		AddCommandBuffer(a).
		AddCommandBuffer(b).
		AddSignal(signal)
	if err := submit.Execute(dev, nil, fence); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if fence.IsSignaled {
		t.Errorf("submit should mark the fence unsignaled")
	}
	info := dev.Submits[0][0]
	if info.CommandBufferCount != 2 || info.PCommandBuffers[0] != a.Handle() || info.PCommandBuffers[1] != b.Handle() {
		t.Errorf("command buffers out of order")
	}
	if info.WaitSemaphoreCount != 1 || info.SignalSemaphoreCount != 1 || len(info.PWaitDstStageMask) != 1 {
		t.Errorf("semaphores = %+v", info)
	}

	dev.FailOn["QueueSubmit"] = true
	if err := vulkan.NewQueueSubmit().AddCommandBuffer(a).Execute(dev, nil, nil); !errors.Is(err, vktest.ErrInjected) {
		t.Errorf("failed submit = %v", err)
	}
}
