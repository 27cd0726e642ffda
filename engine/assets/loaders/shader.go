package loaders

import (
	"bytes"
	"os"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type ShaderLoader struct{}

// Load reads a GLSL or WGSL file and strips the byte order mark editors like to add.
func (sl *ShaderLoader) Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimPrefix(data, utf8BOM)), nil
}
