/*
lightbake bakes the lightmaps and light probes of the procedural test room
and writes the results to disk.

	lightbake [-config file] [-out dir] [-probes n] [-session id]
*/
package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/image/tiff"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/level"
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/lightmap"
	"github.com/spaghettifunk/prism/engine/renderer/lightprobe"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
)

type options struct {
	configPath string
	outDir     string
	probes     int
	session    uuid.UUID
}

func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("lightbake", flag.ContinueOnError)
	opts := &options{}
	var session string
	fs.StringVar(&opts.configPath, "config", "", "TOML configuration file, defaults apply when empty")
	fs.StringVar(&opts.outDir, "out", "bake", "output directory")
	fs.IntVar(&opts.probes, "probes", 1, "number of light probes to capture")
	fs.StringVar(&session, "session", "", "session id, a new one is generated when empty")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.probes < 0 {
		return nil, fmt.Errorf("-probes must not be negative, got %d", opts.probes)
	}
	if session == "" {
		opts.session = uuid.New()
	} else {
		id, err := uuid.Parse(session)
		if err != nil {
			return nil, fmt.Errorf("invalid -session: %w", err)
		}
		opts.session = id
	}
	return opts, nil
}

func loadConfig(path string) (*core.Config, error) {
	if path == "" {
		return core.DefaultConfig(), nil
	}
	return core.LoadConfig(path)
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		core.LogFatal("%s", err)
	}
	if err := core.SetLogLevel(cfg.Log.Level); err != nil {
		core.LogFatal("%s", err)
	}
	core.StatsInitialize()
	core.LogInfo("bake session %s", opts.session)

	ctx, err := renderer.Initialize("lightbake", cfg)
	if err != nil {
		core.LogFatal("renderer: %s", err)
	}
	err = bake(ctx, cfg, opts)
	if err == nil {
		err = ctx.SavePipelineCache()
	}
	ctx.Shutdown()
	if err != nil {
		core.LogFatal("session %s: %s", opts.session, err)
	}
	core.LogInfo("session %s done, results in %s", opts.session, opts.outDir)
}

// probePositions spreads n probes along the diagonal of a room of the given size.
func probePositions(n int, size float32) []math.Vec3 {
	out := make([]math.Vec3, n)
	for i := range out {
		t := (float32(i)+1)/float32(n+1) - 0.5
		out[i] = math.NewVec3(t*size, t*size, 0)
	}
	return out
}

func bake(ctx *renderer.Context, cfg *core.Config, opts *options) error {
	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return err
	}

	levelOpts := level.DefaultOptions()
	levelOpts.Probes = probePositions(opts.probes, levelOpts.Size)
	room, err := level.NewStaticLevel(ctx, levelOpts)
	if err != nil {
		return err
	}
	defer room.Release()

	if changes := ctx.ShaderChanges(); changes != nil {
		stop := make(chan struct{})
		edited := make(chan []string, 1)
		go func() { edited <- watchShaderEdits(changes, stop) }()
		defer func() {
			close(stop)
			if names := <-edited; len(names) > 0 {
				core.LogWarn("%d shader files changed during the bake, rerun to pick them up", len(names))
			}
		}()
	}

	if err := bakeLightmaps(ctx, cfg, room, opts); err != nil {
		return err
	}
	return bakeProbes(ctx, cfg, room, opts)
}

// watchShaderEdits logs every shader file edited while a bake runs. It returns the
// distinct names, in the order first seen, once stop or changes is closed.
func watchShaderEdits(changes <-chan string, stop <-chan struct{}) []string {
	var names []string
	seen := map[string]bool{}
	for {
		select {
		case name, ok := <-changes:
			if !ok {
				return names
			}
			core.LogWarn("shader %s changed while baking, the running bake keeps the old source", name)
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		case <-stop:
			return names
		}
	}
}

func bakeLightmaps(ctx *renderer.Context, cfg *core.Config, room *level.StaticLevel, opts *options) error {
	lm, err := lightmap.New(ctx, room, cfg.Lightmap)
	if err != nil {
		return err
	}
	defer lm.Release()
	lm.SetLevelMesh(room)

	tiles := room.Tiles()
	for pass := 1; ; pass++ {
		dirty := lightmap.CountDirty(tiles)
		if dirty == 0 {
			break
		}
		if err := lm.BeginFrame(); err != nil {
			return err
		}
		if err := lm.Raytrace(lm.SelectUpdateTiles(tiles, nil)); err != nil {
			return err
		}
		left := lightmap.CountDirty(tiles)
		core.LogDebug("pass %d: %d tiles left", pass, left)
		if left == dirty {
			core.LogWarn("%d tiles cannot be baked, giving up", left)
			break
		}
	}
	if err := ctx.Queue.WaitForCommands(true); err != nil {
		return err
	}
	core.LogInfo("lightmaps: %s", core.StatsString())

	for page := range room.Lightmaps() {
		img, err := lm.DownloadLightmap(page)
		if err != nil {
			return err
		}
		path := filepath.Join(opts.outDir, fmt.Sprintf("lightmap-%s-%d.tif", opts.session, page))
		if err := writeTIFF(path, img); err != nil {
			return err
		}
		core.LogInfo("wrote %s", path)
	}
	return nil
}

func writeTIFF(path string, img *image.RGBA64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return f.Close()
}

func bakeProbes(ctx *renderer.Context, cfg *core.Config, room *level.StaticLevel, opts *options) error {
	positions := room.ProbePositions()
	if len(positions) == 0 && cfg.Lightprobe.BrdfLut == "" {
		return nil
	}
	prober, err := lightprobe.New(ctx, room, cfg.Lightprobe)
	if err != nil {
		return err
	}
	defer prober.Release()

	for i, pos := range positions {
		core.LogDebug("capturing probe %d at %v", i, pos)
		err := prober.RenderEnvironmentMap(func(cb vulkan.CommandBuffer, face lightprobe.Face) error {
			size := face.Bounds.Size()
			cb.SetViewport(0, 0, float32(size.X), float32(size.Y))
			cb.SetScissor(0, 0, uint32(size.X), uint32(size.Y))
			return nil
		})
		if err != nil {
			return err
		}
		if err := prober.GenerateIrradianceMap(i); err != nil {
			return err
		}
		if err := prober.GeneratePrefilterMap(i); err != nil {
			return err
		}
		if err := ctx.Queue.WaitForCommands(false); err != nil {
			return err
		}
	}
	prober.EndLightProbePass()
	core.LogInfo("convolved %d light probes", prober.ProbeCount())

	if cfg.Lightprobe.BrdfLut == "" {
		return nil
	}
	path := cfg.Lightprobe.BrdfLut
	if !filepath.IsAbs(path) {
		path = filepath.Join(opts.outDir, path)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := prober.GenerateBrdfLut(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	core.LogInfo("wrote %s", path)
	return ctx.Queue.WaitForCommands(true)
}
