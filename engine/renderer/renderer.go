package renderer

import (
	"errors"
	"os"

	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/shader"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
)

// Context is what the bake passes need from the renderer: a device, the queue they
// record into, the shader sources with a compiler, and an optional pipeline cache.
type Context struct {
	Device  vulkan.Device
	Queue   vulkan.CommandQueue
	Shaders shader.Set
	Cache   *vulkan.PipelineCache

	library       *assets.ShaderLibrary
	commands      *vulkan.Commands
	device        *vulkan.VulkanDevice
	pipelineCache string
}

// Initialize creates the headless device and everything a bake needs on top of it.
func Initialize(appName string, cfg *core.Config) (*Context, error) {
	device, err := vulkan.NewVulkanDevice(appName, cfg.Vulkan)
	if err != nil {
		return nil, err
	}
	ctx := &Context{Device: device, device: device, pipelineCache: cfg.Vulkan.PipelineCache}

	commands, err := vulkan.NewCommands(device)
	if err != nil {
		ctx.Shutdown()
		return nil, err
	}
	ctx.commands = commands
	ctx.Queue = commands

	var initial []byte
	if ctx.pipelineCache != "" {
		initial, err = os.ReadFile(ctx.pipelineCache)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			core.LogWarn("ignoring pipeline cache %s: %s", ctx.pipelineCache, err)
		}
	}
	cache, err := vulkan.NewPipelineCacheBuilder().
		InitialData(initial).
		DebugName("Renderer.pipelineCache").
		Create(device)
	if err != nil {
		ctx.Shutdown()
		return nil, err
	}
	ctx.Cache = cache

	ctx.library = assets.NewShaderLibrary(cfg.Shaders)
	if cfg.Shaders.Watch {
		if err := ctx.library.Watch(); err != nil {
			core.LogWarn("shader hot reload disabled: %s", err)
		}
	}
	ctx.Shaders = shader.Set{
		Library: ctx.library,
		Backend: shader.NewBackend(cfg.Shaders),
		Workers: cfg.Shaders.Workers,
	}
	return ctx, nil
}

// ShaderChanges reports edited shader files while hot reload is on.
func (c *Context) ShaderChanges() <-chan string {
	if c.library == nil {
		return nil
	}
	return c.library.Changes()
}

// SavePipelineCache writes the pipeline cache back to the configured path.
func (c *Context) SavePipelineCache() error {
	if c.Cache == nil || c.pipelineCache == "" {
		return nil
	}
	data, err := c.Cache.Data()
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.pipelineCache, data, 0o644); err != nil {
		return err
	}
	core.LogDebug("saved %d bytes of pipeline cache to %s", len(data), c.pipelineCache)
	return nil
}

// Shutdown waits for the device and releases everything Initialize created.
func (c *Context) Shutdown() {
	if c.device != nil {
		if err := c.device.WaitIdle(); err != nil {
			core.LogError("wait idle on shutdown: %s", err)
		}
	}
	if c.library != nil {
		c.library.Close()
	}
	c.Cache.Release()
	if c.commands != nil {
		c.commands.Release()
	}
	if c.device != nil {
		c.device.Close()
	}
	c.Cache, c.commands, c.device, c.library = nil, nil, nil, nil
	c.Device, c.Queue = nil, nil
}
