//go:build mage

package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

// Compiles every package and the lightbake binary.
func Build() error {
	mg.Deps(Shaders)
	if _, err := executeCmd("go", withArgs("build", "./..."), withStream()); err != nil {
		return err
	}
	_, err := executeCmd("go", withArgs("build", "-o", "bin/lightbake", "."), withStream())
	return err
}

// Runs the unit tests.
func Test() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}

func Vet() error {
	_, err := executeCmd("go", withArgs("vet", "./..."), withStream())
	return err
}

// Validates the engine shaders with glslc. Headers are checked through the files including them.
func Shaders() error {
	stages := map[string]string{"vert_": "vert", "frag_": "frag", "comp_": "comp"}
	var failed []string
	err := filepath.WalkDir("shaders", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(path) != ".glsl" {
			return err
		}
		name := filepath.Base(path)
		for prefix, stage := range stages {
			if !strings.HasPrefix(name, prefix) {
				continue
			}
			args := withArgs("-std=460", "-fshader-stage="+stage, "--target-env=vulkan1.2",
				"-I", "shaders", "-c", path, "-o", os.DevNull)
			if _, err := executeCmd("glslc", args); err != nil {
				failed = append(failed, path)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d shaders failed to compile: %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}
