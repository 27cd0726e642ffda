package vulkan

import (
	"fmt"
	"sync"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

const timestampQueryCount = 64

// Commands is the CommandQueue of the graphics queue. It keeps one transfer and one
// draw command buffer, both begun on first use and submitted together.
type Commands struct {
	mu sync.Mutex

	dev   Device
	queue vk.Queue

	pool  *CommandPool
	fence *Fence
	timer *gpuTimer

	transfer      CommandBuffer
	draw          CommandBuffer
	transferBegun bool
	drawBegun     bool

	keepAlive []*Buffer
}

func NewCommands(dev Device) (*Commands, error) {
	caps := dev.Capabilities()
	c := &Commands{dev: dev, queue: caps.GraphicsQueue}

	pool, err := NewCommandPoolBuilder().
		QueueFamily(caps.GraphicsFamily).
		DebugName("Commands.pool").
		Create(dev)
	if err != nil {
		return nil, err
	}
	c.pool = pool

	fence, err := NewFenceBuilder().DebugName("Commands.fence").Create(dev)
	if err != nil {
		c.Release()
		return nil, err
	}
	c.fence = fence

	queries, err := NewQueryPoolBuilder().
		QueryType(vk.QueryTypeTimestamp, timestampQueryCount).
		DebugName("Commands.timestamps").
		Create(dev)
	if err != nil {
		core.LogWarn("GPU timings disabled: %s", err)
	} else {
		c.timer = &gpuTimer{pool: queries, period: caps.TimestampPeriod}
	}
	return c, nil
}

func (c *Commands) TransferCommands() (CommandBuffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transfer == nil {
		cb, err := c.pool.Allocate()
		if err != nil {
			return nil, err
		}
		c.transfer = cb
	}
	if !c.transferBegun {
		if err := c.transfer.Begin(); err != nil {
			return nil, err
		}
		c.transferBegun = true
	}
	return c.transfer, nil
}

func (c *Commands) DrawCommands() (CommandBuffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.draw == nil {
		cb, err := c.pool.Allocate()
		if err != nil {
			return nil, err
		}
		if c.timer != nil {
			cb = &timedCommandBuffer{CommandBuffer: cb, timer: c.timer}
		}
		c.draw = cb
	}
	if !c.drawBegun {
		if err := c.draw.Begin(); err != nil {
			return nil, err
		}
		if c.timer != nil {
			c.timer.begin(c.draw)
		}
		c.drawBegun = true
	}
	return c.draw, nil
}

func (c *Commands) KeepAlive(buf *Buffer) {
	if buf == nil {
		return
	}
	c.mu.Lock()
	c.keepAlive = append(c.keepAlive, buf)
	c.mu.Unlock()
}

func (c *Commands) WaitForCommands(finish bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	submit := NewQueueSubmit()
	count := 0
	if c.transferBegun {
		if err := c.transfer.End(); err != nil {
			return err
		}
		submit.AddCommandBuffer(c.transfer)
		count++
	}
	if c.drawBegun {
		if err := c.draw.End(); err != nil {
			return err
		}
		submit.AddCommandBuffer(c.draw)
		count++
	}
	c.transferBegun = false
	c.drawBegun = false

	if count > 0 {
		if err := submit.Execute(c.dev, c.queue, c.fence); err != nil {
			return err
		}
		if err := c.fence.Wait(^uint64(0)); err != nil {
			return fmt.Errorf("failed waiting for commands: %w", err)
		}
		if err := c.fence.Reset(); err != nil {
			return err
		}
		if c.timer != nil {
			c.timer.collect()
		}
	}

	if finish {
		if err := c.dev.WaitIdle(); err != nil {
			return err
		}
	}

	for _, buf := range c.keepAlive {
		buf.Release()
	}
	c.keepAlive = c.keepAlive[:0]
	return nil
}

// Release frees the pool, fence and pending staging buffers. Pending commands are not submitted.
func (c *Commands) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, buf := range c.keepAlive {
		buf.Release()
	}
	c.keepAlive = nil
	if c.timer != nil {
		c.timer.pool.Release()
		c.timer = nil
	}
	c.fence.Release()
	c.pool.Release()
	c.transfer, c.draw = nil, nil
}

type timerSpan struct {
	name       string
	begin, end uint32
	depth      int
}

// gpuTimer brackets command groups with timestamp queries.
type gpuTimer struct {
	pool   *QueryPool
	period float32
	next   uint32
	open   []int
	spans  []timerSpan
}

func (t *gpuTimer) begin(cb CommandBuffer) {
	t.next = 0
	t.open = t.open[:0]
	t.spans = t.spans[:0]
	cb.ResetQueryPool(t.pool, 0, t.pool.Count)
}

func (t *gpuTimer) push(cb CommandBuffer, name string) {
	if t.next+2 > t.pool.Count {
		t.open = append(t.open, -1)
		return
	}
	cb.WriteTimestamp(vk.PipelineStageTopOfPipeBit, t.pool, t.next)
	t.spans = append(t.spans, timerSpan{name: name, begin: t.next, depth: len(t.open)})
	t.open = append(t.open, len(t.spans)-1)
	// reserve the end query so nested groups cannot starve it
	t.next += 2
}

func (t *gpuTimer) pop(cb CommandBuffer) {
	if len(t.open) == 0 {
		return
	}
	index := t.open[len(t.open)-1]
	t.open = t.open[:len(t.open)-1]
	if index < 0 {
		return
	}
	span := &t.spans[index]
	span.end = span.begin + 1
	cb.WriteTimestamp(vk.PipelineStageBottomOfPipeBit, t.pool, span.end)
}

func (t *gpuTimer) collect() {
	if t.next == 0 {
		return
	}
	results, err := t.pool.Results(0, t.next)
	if err != nil {
		core.LogWarn("failed to read GPU timings: %s", err)
		return
	}
	for _, span := range t.spans {
		if span.end == 0 || int(span.end) >= len(results) {
			continue
		}
		ticks := results[span.end] - results[span.begin]
		elapsed := time.Duration(float64(ticks) * float64(t.period))
		core.LogDebug("gpu %*s%s: %s", span.depth*2, "", span.name, elapsed)
	}
}

// timedCommandBuffer adds timestamp queries around PushGroup and PopGroup.
type timedCommandBuffer struct {
	CommandBuffer
	timer *gpuTimer
}

func (t *timedCommandBuffer) PushGroup(name string) {
	t.CommandBuffer.PushGroup(name)
	t.timer.push(t.CommandBuffer, name)
}

func (t *timedCommandBuffer) PopGroup() {
	t.timer.pop(t.CommandBuffer)
	t.CommandBuffer.PopGroup()
}
