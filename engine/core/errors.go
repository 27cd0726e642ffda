package core

import (
	"errors"
)

var (
	ErrInvalidDescriptor = errors.New("invalid creation descriptor")
	ErrCreateFailed      = errors.New("device object creation failed")
	ErrUnsupported       = errors.New("not supported by device")
	ErrShaderCompile     = errors.New("shader compilation failed")
	ErrIncludeRecursion  = errors.New("too much include recursion")
	ErrMissingShader     = errors.New("shader source not found")
	ErrUnknown           = errors.New("unknown")
)
