package shader

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gogpu/naga"
	"github.com/spaghettifunk/prism/engine/core"
)

// Backend turns preprocessed source into SPIR-V.
type Backend interface {
	Compile(stage Stage, name, source string) ([]byte, error)
}

// NewBackend builds the backend described by cfg: WGSL always goes through naga,
// GLSL through the configured compiler, everything behind a cache.
func NewBackend(cfg core.ShaderConfig) Backend {
	var glsl Backend = &GLSLC{Path: cfg.GlslcPath}
	if cfg.Compiler == "naga" {
		glsl = Naga{}
	}
	return NewCached(&Mux{GLSL: glsl, WGSL: Naga{}}, cfg.CacheDir)
}

// GLSLC runs the glslc executable from the shaderc project.
type GLSLC struct {
	Path      string
	TargetEnv string
}

func (g *GLSLC) Compile(stage Stage, name, source string) ([]byte, error) {
	if !stage.IsGLSL() {
		return nil, fmt.Errorf("%w: glslc cannot compile %s sources", core.ErrUnsupported, stage)
	}
	path := g.Path
	if path == "" {
		path = "glslc"
	}
	env := g.TargetEnv
	if env == "" {
		env = "vulkan1.2"
	}

	cmd := exec.Command(path, "-fshader-stage="+stage.String(), "--target-env="+env, "-o", "-", "-")
	cmd.Stdin = strings.NewReader(source)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s not found: %w", core.ErrUnsupported, path, err)
		}
		log := strings.TrimSpace(stderr.String())
		if log == "" {
			log = err.Error()
		}
		return nil, &CompileError{Name: name, Log: log, err: err}
	}
	return stdout.Bytes(), nil
}

// Naga compiles WGSL with the pure Go naga port.
type Naga struct{}

func (Naga) Compile(stage Stage, name, source string) ([]byte, error) {
	if stage != StageWGSL {
		return nil, fmt.Errorf("%w: naga compiles WGSL only, got %s stage for %s", core.ErrUnsupported, stage, name)
	}
	code, err := naga.Compile(source)
	if err != nil {
		return nil, &CompileError{Name: name, Log: err.Error(), err: err}
	}
	return code, nil
}

// Mux routes GLSL stages and WGSL modules to different backends.
type Mux struct {
	GLSL Backend
	WGSL Backend
}

func (m *Mux) Compile(stage Stage, name, source string) ([]byte, error) {
	backend := m.GLSL
	if stage == StageWGSL {
		backend = m.WGSL
	}
	if backend == nil {
		return nil, fmt.Errorf("%w: no backend for %s stage", core.ErrUnsupported, stage)
	}
	return backend.Compile(stage, name, source)
}

// Cached remembers compiled code by a hash of stage and source, in memory and
// optionally in a directory shared between runs.
type Cached struct {
	backend Backend
	dir     string

	mu     sync.Mutex
	memory map[string][]byte

	hits, misses int
}

func NewCached(backend Backend, dir string) *Cached {
	return &Cached{backend: backend, dir: dir, memory: make(map[string][]byte)}
}

func cacheKey(stage Stage, source string) string {
	h := sha256.New()
	h.Write([]byte{byte(stage)})
	h.Write([]byte(source))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cached) Compile(stage Stage, name, source string) ([]byte, error) {
	key := cacheKey(stage, source)

	c.mu.Lock()
	if code, ok := c.memory[key]; ok {
		c.hits++
		c.mu.Unlock()
		return code, nil
	}
	c.mu.Unlock()

	if c.dir != "" {
		if code, err := os.ReadFile(filepath.Join(c.dir, key+".spv")); err == nil {
			c.store(key, code, true)
			return code, nil
		}
	}

	code, err := c.backend.Compile(stage, name, source)
	if err != nil {
		return nil, err
	}
	c.store(key, code, false)

	if c.dir != "" {
		if err := os.MkdirAll(c.dir, 0o755); err != nil {
			core.LogWarn("shader cache %s unavailable: %s", c.dir, err)
		} else if err := os.WriteFile(filepath.Join(c.dir, key+".spv"), code, 0o644); err != nil {
			core.LogWarn("failed to write shader cache entry for %s: %s", name, err)
		}
	}
	return code, nil
}

func (c *Cached) store(key string, code []byte, hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memory[key] = code
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

// Stats returns cache hits and misses so far.
func (c *Cached) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
