package vulkan

import (
	vk "github.com/goki/vulkan"
)

type transferItem struct {
	buffer *Buffer
	offset uint64
	spans  [][]byte
}

// BufferTransfer uploads data into device local buffers through one staging buffer.
type BufferTransfer struct {
	items []transferItem
}

func NewBufferTransfer() *BufferTransfer {
	return &BufferTransfer{}
}

// AddBuffer schedules the spans to be written back to back at offset in buf.
// At most two spans (a header and a payload) are supported per buffer.
func (t *BufferTransfer) AddBuffer(buf *Buffer, offset uint64, spans ...[]byte) *BufferTransfer {
	t.items = append(t.items, transferItem{buffer: buf, offset: offset, spans: spans})
	return t
}

// Execute fills a staging buffer and records the copies into cb. The returned staging
// buffer must stay alive until cb completed. Nothing is returned when nothing was added.
func (t *BufferTransfer) Execute(dev Device, cb CommandBuffer) (*Buffer, error) {
	items := t.items
	t.items = nil

	var total uint64
	for i, item := range items {
		if len(item.spans) > 2 {
			return nil, invalidDescriptor("buffer transfer %d has %d spans, at most 2 are allowed", i, len(item.spans))
		}
		if item.buffer == nil || item.buffer.Handle == nil {
			return nil, invalidDescriptor("buffer transfer %d has no destination", i)
		}
		size := item.size()
		if item.offset+size > item.buffer.Size {
			return nil, invalidDescriptor("buffer transfer %d writes past the end of its destination", i)
		}
		total += size
	}
	if total == 0 {
		return nil, nil
	}

	staging, err := NewBufferBuilder().
		Size(total).
		Usage(vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), MemoryCPUToGPU).
		DebugName("BufferTransfer.staging").
		Create(dev)
	if err != nil {
		return nil, err
	}

	data, err := staging.Map()
	if err != nil {
		staging.Release()
		return nil, err
	}
	var pos uint64
	type copyCmd struct {
		dst    *Buffer
		region vk.BufferCopy
	}
	var copies []copyCmd
	for _, item := range items {
		size := item.size()
		if size == 0 {
			continue
		}
		start := pos
		for _, span := range item.spans {
			pos += uint64(copy(data[pos:], span))
		}
		copies = append(copies, copyCmd{dst: item.buffer, region: vk.BufferCopy{
			SrcOffset: vk.DeviceSize(start),
			DstOffset: vk.DeviceSize(item.offset),
			Size:      vk.DeviceSize(size),
		}})
	}
	staging.Unmap()

	for _, c := range copies {
		cb.CopyBuffer(staging, c.dst, []vk.BufferCopy{c.region})
	}
	return staging, nil
}

func (item transferItem) size() uint64 {
	var size uint64
	for _, span := range item.spans {
		size += uint64(len(span))
	}
	return size
}
