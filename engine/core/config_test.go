package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseConfigKeepsDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
[lightmap]
blur = false
bake_image_size = 1024

[shaders]
content_roots = ["mods/a", "mods/b"]
`))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	if cfg.Lightmap.Blur {
		t.Errorf("blur should be overridden to false")
	}
	if cfg.Lightmap.BakeImageSize != 1024 {
		t.Errorf("bake_image_size = %d, want 1024", cfg.Lightmap.BakeImageSize)
	}
	if !cfg.Lightmap.SoftShadows || !cfg.Lightmap.AO || !cfg.Lightmap.Sunlight || !cfg.Lightmap.Bounce {
		t.Errorf("untouched toggles lost their default: %+v", cfg.Lightmap)
	}
	if cfg.Lightmap.BackgroundUpdates != 8 || cfg.Lightmap.MaxUpdates != 128 {
		t.Errorf("update budget = %d/%d, want 8/128", cfg.Lightmap.BackgroundUpdates, cfg.Lightmap.MaxUpdates)
	}
	if cfg.Lightprobe.PrefilterLevels != 5 {
		t.Errorf("prefilter_levels = %d, want 5", cfg.Lightprobe.PrefilterLevels)
	}
	if len(cfg.Shaders.ContentRoots) != 2 || cfg.Shaders.ContentRoots[1] != "mods/b" {
		t.Errorf("content_roots = %v", cfg.Shaders.ContentRoots)
	}
}

func TestParseConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		toml string
		want string
	}{
		{"zero bake size", "[lightmap]\nbake_image_size = 0", "bake_image_size"},
		{"negative draw buffer", "[lightmap]\ndraw_buffer_size = -1", "draw_buffer_size"},
		{"prefilter too small", "[lightprobe]\nprefilter_levels = 1", "prefilter_levels"},
		{"unknown compiler", "[shaders]\ncompiler = \"fxc\"", "shaders.compiler"},
		{"unknown loader", "[vulkan]\nloader = \"sdl\"", "vulkan.loader"},
		{"malformed", "[lightmap\nblur = true", "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.toml))
			if err == nil {
				t.Fatalf("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prism.toml")
	if err := os.WriteFile(path, []byte("[log]\nlevel = \"debug\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("level = %q", cfg.Log.Level)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Errorf("expected an error for a missing file")
	}
}

func TestSetLogLevel(t *testing.T) {
	if err := SetLogLevel("warn"); err != nil {
		t.Fatalf("SetLogLevel(warn): %v", err)
	}
	if err := SetLogLevel("loud"); err == nil {
		t.Errorf("expected an error for an unknown level")
	}
	_ = SetLogLevel("info")
}
