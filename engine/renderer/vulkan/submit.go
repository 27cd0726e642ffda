package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

// QueueSubmit batches command buffers and semaphores into one vkQueueSubmit.
type QueueSubmit struct {
	commandBuffers []vk.CommandBuffer
	waitSemaphores []vk.Semaphore
	waitStages     []vk.PipelineStageFlags
	signals        []vk.Semaphore
}

func NewQueueSubmit() *QueueSubmit {
	return &QueueSubmit{}
}

func (q *QueueSubmit) AddCommandBuffer(cb CommandBuffer) *QueueSubmit {
	q.commandBuffers = append(q.commandBuffers, cb.Handle())
	return q
}

func (q *QueueSubmit) AddWait(stages vk.PipelineStageFlags, sem *Semaphore) *QueueSubmit {
	q.waitStages = append(q.waitStages, stages)
	q.waitSemaphores = append(q.waitSemaphores, sem.Handle)
	return q
}

func (q *QueueSubmit) AddSignal(sem *Semaphore) *QueueSubmit {
	q.signals = append(q.signals, sem.Handle)
	return q
}

// Execute submits to queue. fence may be nil, otherwise it is signaled once the work completed.
func (q *QueueSubmit) Execute(dev Device, queue vk.Queue, fence *Fence) error {
	info := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(q.waitSemaphores)),
		PWaitSemaphores:      q.waitSemaphores,
		PWaitDstStageMask:    q.waitStages,
		CommandBufferCount:   uint32(len(q.commandBuffers)),
		PCommandBuffers:      q.commandBuffers,
		SignalSemaphoreCount: uint32(len(q.signals)),
		PSignalSemaphores:    q.signals,
	}

	var fenceHandle vk.Fence
	if fence != nil {
		fenceHandle = fence.Handle
	}
	if err := dev.QueueSubmit(queue, []vk.SubmitInfo{info}, fenceHandle); err != nil {
		return fmt.Errorf("failed to submit %d command buffers: %w", len(q.commandBuffers), err)
	}
	if fence != nil {
		fence.IsSignaled = false
	}
	*q = QueueSubmit{}
	return nil
}
