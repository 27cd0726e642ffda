package vulkan_test

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan/vktest"
)

func TestCommandsSubmitTransferBeforeDraw(t *testing.T) {
	dev := vktest.NewDevice()
	cmds, err := vulkan.NewCommands(dev)
	if err != nil {
		t.Fatalf("NewCommands: %v", err)
	}
	defer cmds.Release()

	// draw is requested first on purpose
	draw, err := cmds.DrawCommands()
	if err != nil {
		t.Fatal(err)
	}
	transfer, err := cmds.TransferCommands()
	if err != nil {
		t.Fatal(err)
	}
	again, _ := cmds.TransferCommands()
	if again != transfer {
		t.Errorf("TransferCommands should hand out the same buffer until submitted")
	}

	if err := cmds.WaitForCommands(false); err != nil {
		t.Fatalf("WaitForCommands: %v", err)
	}
	submitted := dev.SubmittedBuffers()
	if len(submitted) != 2 {
		t.Fatalf("submitted %d buffers, want 2", len(submitted))
	}
	if submitted[0].Handle() != transfer.Handle() || submitted[1].Handle() != draw.Handle() {
		t.Errorf("transfer commands must be submitted before draw commands")
	}
	for _, cb := range submitted {
		if cb.Begun != 1 || cb.Ended != 1 {
			t.Errorf("%s begun %d ended %d", cb.Name, cb.Begun, cb.Ended)
		}
	}
	if dev.WaitIdles != 0 {
		t.Errorf("WaitForCommands(false) waited for the device")
	}

	// the next round begins the same buffers again
	if _, err := cmds.TransferCommands(); err != nil {
		t.Fatal(err)
	}
	if err := cmds.WaitForCommands(true); err != nil {
		t.Fatal(err)
	}
	if len(dev.Submits) != 2 || dev.WaitIdles != 1 {
		t.Errorf("submits %d wait idles %d", len(dev.Submits), dev.WaitIdles)
	}
	if n := len(dev.Submits[1][0].PCommandBuffers); n != 1 {
		t.Errorf("second submit has %d buffers, want only the transfer buffer", n)
	}
}

func TestCommandsNothingToSubmit(t *testing.T) {
	dev := vktest.NewDevice()
	cmds, err := vulkan.NewCommands(dev)
	if err != nil {
		t.Fatal(err)
	}
	defer cmds.Release()

	if err := cmds.WaitForCommands(false); err != nil {
		t.Fatal(err)
	}
	if len(dev.Submits) != 0 {
		t.Errorf("an empty queue should not submit")
	}
}

func TestCommandsKeepAlive(t *testing.T) {
	dev := vktest.NewDevice()
	cmds, err := vulkan.NewCommands(dev)
	if err != nil {
		t.Fatal(err)
	}
	defer cmds.Release()

	cb, err := cmds.TransferCommands()
	if err != nil {
		t.Fatal(err)
	}
	dst := newStorageBuffer(t, dev, 16)
	staging, err := vulkan.NewBufferTransfer().AddBuffer(dst, 0, []byte{1, 2, 3, 4}).Execute(dev, cb)
	if err != nil {
		t.Fatal(err)
	}
	cmds.KeepAlive(staging)
	stagingID := dev.ID(staging.Handle)

	isLive := func(id string) bool {
		for _, live := range dev.Live() {
			if live == id {
				return true
			}
		}
		return false
	}
	if !isLive(stagingID) {
		t.Fatalf("staging buffer released before submit")
	}
	if err := cmds.WaitForCommands(false); err != nil {
		t.Fatal(err)
	}
	if isLive(stagingID) {
		t.Errorf("staging buffer still alive after the commands completed")
	}
	if !isLive(dev.ID(dst.Handle)) {
		t.Errorf("destination buffer should not be released")
	}
}

func TestCommandsSubmitFailure(t *testing.T) {
	dev := vktest.NewDevice()
	cmds, err := vulkan.NewCommands(dev)
	if err != nil {
		t.Fatal(err)
	}
	defer cmds.Release()

	if _, err := cmds.DrawCommands(); err != nil {
		t.Fatal(err)
	}
	dev.FailOn["QueueSubmit"] = true
	if err := cmds.WaitForCommands(false); !errors.Is(err, vktest.ErrInjected) {
		t.Errorf("WaitForCommands = %v, want the submit error", err)
	}
}

func TestCommandsGPUTimings(t *testing.T) {
	dev := vktest.NewDevice()
	dev.Timestamps = []uint64{100, 350, 120, 200}
	cmds, err := vulkan.NewCommands(dev)
	if err != nil {
		t.Fatal(err)
	}
	defer cmds.Release()

	cb, err := cmds.DrawCommands()
	if err != nil {
		t.Fatal(err)
	}
	cb.PushGroup("bake")
	cb.PushGroup("raytrace")
	cb.PopGroup()
	cb.PopGroup()
	if err := cmds.WaitForCommands(false); err != nil {
		t.Fatal(err)
	}

	raw := dev.Buffers[len(dev.Buffers)-1]
	if len(raw.Timestamps) != 4 {
		t.Fatalf("wrote %d timestamps, want 4", len(raw.Timestamps))
	}
	// outer group takes queries 0 and 1, the nested one 2 and 3
	want := []uint32{0, 2, 3, 1}
	for i, q := range want {
		if raw.Timestamps[i] != q {
			t.Errorf("timestamp %d wrote query %d, want %d", i, raw.Timestamps[i], q)
		}
	}
	if raw.Count("reset_query_pool") != 1 {
		t.Errorf("query pool should be reset once per recording")
	}
}

func TestCommandsWithoutTimestampQueries(t *testing.T) {
	dev := vktest.NewDevice()
	dev.FailOn["CreateQueryPool"] = true
	cmds, err := vulkan.NewCommands(dev)
	if err != nil {
		t.Fatalf("query pool failures must not be fatal: %v", err)
	}
	defer cmds.Release()

	cb, err := cmds.DrawCommands()
	if err != nil {
		t.Fatal(err)
	}
	cb.PushGroup("bake")
	cb.PopGroup()
	if err := cmds.WaitForCommands(false); err != nil {
		t.Fatal(err)
	}
	if raw := dev.Buffers[0]; len(raw.Timestamps) != 0 {
		t.Errorf("timestamps written without a query pool")
	}
}

func TestCommandsRelease(t *testing.T) {
	dev := vktest.NewDevice()
	cmds, err := vulkan.NewCommands(dev)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cmds.TransferCommands(); err != nil {
		t.Fatal(err)
	}
	cmds.Release()
	if live := dev.Live(); len(live) != 0 {
		t.Errorf("Release left %v", live)
	}
}
