package assets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/prism/engine/core"
)

func writeFile(t *testing.T, path, text string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newLibrary(t *testing.T) (*ShaderLibrary, string, string) {
	t.Helper()
	engine, content := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(engine, "lightmap", "binding.glsl"), "engine binding")
	writeFile(t, filepath.Join(engine, "shared.glsl"), "engine shared")
	writeFile(t, filepath.Join(content, "shared.glsl"), "content shared")
	writeFile(t, filepath.Join(content, "material.glsl"), "\xEF\xBB\xBFcontent material")
	return NewShaderLibrary(core.ShaderConfig{EngineRoot: engine, ContentRoots: []string{content}}), engine, content
}

func TestShaderLibraryScopes(t *testing.T) {
	lib, _, _ := newLibrary(t)
	defer lib.Close()

	tests := []struct {
		name    string
		private bool
		want    string
		missing bool
	}{
		{"lightmap/binding.glsl", true, "engine binding", false},
		{"lightmap/binding.glsl", false, "engine binding", false},
		{"shared.glsl", false, "engine shared", false},
		{"material.glsl", false, "content material", false},
		{"material.glsl", true, "", true},
		{"nope.glsl", false, "", true},
		{"../escape.glsl", false, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var text string
			var err error
			if tt.private {
				text, err = lib.PrivateText(tt.name)
			} else {
				text, err = lib.PublicText(tt.name)
			}
			if tt.missing {
				if !errors.Is(err, core.ErrMissingShader) {
					t.Errorf("err = %v, want ErrMissingShader", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if text != tt.want {
				t.Errorf("text = %q, want %q", text, tt.want)
			}
		})
	}
}

func TestShaderLibraryCachesText(t *testing.T) {
	lib, engine, _ := newLibrary(t)
	defer lib.Close()

	if _, err := lib.PrivateText("shared.glsl"); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(engine, "shared.glsl"), "edited")
	text, err := lib.PrivateText("shared.glsl")
	if err != nil {
		t.Fatal(err)
	}
	if text != "engine shared" {
		t.Errorf("unwatched library reloaded the file: %q", text)
	}
}

func TestShaderLibraryWatch(t *testing.T) {
	lib, engine, _ := newLibrary(t)
	if err := lib.Watch(); err != nil {
		t.Fatal(err)
	}

	if _, err := lib.PublicText("lightmap/binding.glsl"); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(engine, "lightmap", "binding.glsl"), "edited binding")

	timeout := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case name := <-lib.Changes():
			done = name == "lightmap/binding.glsl"
		case <-timeout:
			t.Fatal("no change notification")
		}
	}

	text, err := lib.PublicText("lightmap/binding.glsl")
	if err != nil {
		t.Fatal(err)
	}
	if text != "edited binding" {
		t.Errorf("cache not dropped, got %q", text)
	}

	if err := lib.Close(); err != nil {
		t.Fatal(err)
	}
	for range lib.Changes() {
	}
	if err := lib.Watch(); err == nil {
		t.Errorf("Watch after Close should fail")
	}
}

func TestShaderLibraryCloseWithoutWatch(t *testing.T) {
	lib, _, _ := newLibrary(t)
	if err := lib.Close(); err != nil {
		t.Fatal(err)
	}
	if lib.Changes() != nil {
		t.Errorf("Changes should be nil when never watched")
	}
}
