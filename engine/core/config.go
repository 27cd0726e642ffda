package core

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type LogConfig struct {
	Level string `toml:"level"`
}

type LightmapConfig struct {
	// Tiles refreshed per frame while nothing is visible and changing.
	BackgroundUpdates int `toml:"background_updates"`
	// Upper bound of tiles refreshed in a single frame.
	MaxUpdates  int     `toml:"max_updates"`
	Scale       float32 `toml:"scale"`
	Sunlight    bool    `toml:"sunlight"`
	Blur        bool    `toml:"blur"`
	AO          bool    `toml:"ao"`
	SoftShadows bool    `toml:"softshadows"`
	Bounce      bool    `toml:"bounce"`
	Dynamic     bool    `toml:"dynamic"`
	// Edge of the square scratch image tiles are raytraced into.
	BakeImageSize  int `toml:"bake_image_size"`
	DrawBufferSize int `toml:"draw_buffer_size"`
	CopyBufferSize int `toml:"copy_buffer_size"`
	// ToolMode ignores the user toggles and bakes what the level asks for.
	ToolMode bool `toml:"tool_mode"`
}

type LightprobeConfig struct {
	EnvironmentSize int    `toml:"environment_size"`
	PrefilterLevels int    `toml:"prefilter_levels"`
	BrdfLut         string `toml:"brdf_lut"`
}

type ShaderConfig struct {
	EngineRoot   string   `toml:"engine_root"`
	ContentRoots []string `toml:"content_roots"`
	Compiler     string   `toml:"compiler"`
	GlslcPath    string   `toml:"glslc_path"`
	CacheDir     string   `toml:"cache_dir"`
	Watch        bool     `toml:"watch"`
	Workers      int      `toml:"workers"`
}

type VulkanConfig struct {
	Validation    bool   `toml:"validation"`
	DebugNames    bool   `toml:"debug_names"`
	PipelineCache string `toml:"pipeline_cache"`
	Loader        string `toml:"loader"`
}

type Config struct {
	Log        LogConfig        `toml:"log"`
	Lightmap   LightmapConfig   `toml:"lightmap"`
	Lightprobe LightprobeConfig `toml:"lightprobe"`
	Shaders    ShaderConfig     `toml:"shaders"`
	Vulkan     VulkanConfig     `toml:"vulkan"`
}

func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Lightmap: LightmapConfig{
			BackgroundUpdates: 8,
			MaxUpdates:        128,
			Scale:             1.0,
			Sunlight:          true,
			Blur:              true,
			AO:                true,
			SoftShadows:       true,
			Bounce:            true,
			Dynamic:           true,
			BakeImageSize:     2048,
			DrawBufferSize:    100000,
			CopyBufferSize:    100000,
		},
		Lightprobe: LightprobeConfig{
			EnvironmentSize: 256,
			PrefilterLevels: 5,
		},
		Shaders: ShaderConfig{
			EngineRoot: "shaders",
			Compiler:   "glslc",
			GlslcPath:  "glslc",
			Workers:    4,
		},
		Vulkan: VulkanConfig{
			Loader: "default",
		},
	}
}

// ParseConfig decodes TOML on top of the defaults so omitted keys keep their default value.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

func (c *Config) Validate() error {
	switch {
	case c.Lightmap.BakeImageSize <= 0:
		return fmt.Errorf("lightmap.bake_image_size must be positive, got %d", c.Lightmap.BakeImageSize)
	case c.Lightmap.DrawBufferSize <= 0:
		return fmt.Errorf("lightmap.draw_buffer_size must be positive, got %d", c.Lightmap.DrawBufferSize)
	case c.Lightmap.CopyBufferSize <= 0:
		return fmt.Errorf("lightmap.copy_buffer_size must be positive, got %d", c.Lightmap.CopyBufferSize)
	case c.Lightmap.Scale <= 0:
		return fmt.Errorf("lightmap.scale must be positive, got %f", c.Lightmap.Scale)
	case c.Lightprobe.EnvironmentSize <= 0:
		return fmt.Errorf("lightprobe.environment_size must be positive, got %d", c.Lightprobe.EnvironmentSize)
	case c.Lightprobe.PrefilterLevels < 2 || c.Lightprobe.PrefilterLevels > 8:
		return fmt.Errorf("lightprobe.prefilter_levels must be within [2, 8], got %d", c.Lightprobe.PrefilterLevels)
	case c.Shaders.Compiler != "glslc" && c.Shaders.Compiler != "naga":
		return fmt.Errorf("shaders.compiler must be glslc or naga, got %q", c.Shaders.Compiler)
	case c.Shaders.Workers <= 0:
		return fmt.Errorf("shaders.workers must be positive, got %d", c.Shaders.Workers)
	case c.Vulkan.Loader != "default" && c.Vulkan.Loader != "glfw":
		return fmt.Errorf("vulkan.loader must be default or glfw, got %q", c.Vulkan.Loader)
	}
	return nil
}
