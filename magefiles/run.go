//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

// Bakes the test room with the default configuration into bake/.
func Bake() error {
	mg.Deps(Shaders)
	fmt.Println("Baking...")
	_, err := executeCmd("go", withArgs("run", ".", "-out", "bake"), withStream())
	return err
}
