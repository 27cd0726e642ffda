package shader

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/spaghettifunk/prism/engine/core"
)

// MaxIncludeDepth is the deepest #include nesting a compile accepts.
const MaxIncludeDepth = 8

type Stage int

const (
	StageNone Stage = iota
	StageVertex
	StageFragment
	StageCompute
	// StageWGSL is a WGSL module. Entry points pick their own stage.
	StageWGSL
)

func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vert"
	case StageFragment:
		return "frag"
	case StageCompute:
		return "comp"
	case StageWGSL:
		return "wgsl"
	default:
		return "none"
	}
}

// IsGLSL reports whether the stage is compiled from GLSL source.
func (s Stage) IsGLSL() bool {
	return s == StageVertex || s == StageFragment || s == StageCompute
}

// IncludeResult is what an include callback hands back. An empty Name means
// Text is an error message.
type IncludeResult struct {
	Name string
	Text string
}

// IncludeFunc resolves header as included from includer at the given nesting depth.
type IncludeFunc func(header, includer string, depth int) IncludeResult

// IncludeError carries an include callback failure. Its message is the callback text unchanged.
type IncludeError struct {
	Header  string
	Message string
}

func (e *IncludeError) Error() string {
	return e.Message
}

func (e *IncludeError) Is(target error) bool {
	return target == core.ErrShaderCompile
}

type source struct {
	name string
	text string
}

// GLSLCompiler gathers the sources of one shader stage and expands their includes
// before handing the result to a Backend.
type GLSLCompiler struct {
	stage         Stage
	sources       []source
	includeLocal  IncludeFunc
	includeSystem IncludeFunc
}

func NewGLSLCompiler() *GLSLCompiler {
	return &GLSLCompiler{}
}

func (c *GLSLCompiler) Type(stage Stage) *GLSLCompiler {
	c.stage = stage
	return c
}

func (c *GLSLCompiler) AddSource(name, text string) *GLSLCompiler {
	c.sources = append(c.sources, source{name: name, text: text})
	return c
}

// OnIncludeLocal handles #include "header".
func (c *GLSLCompiler) OnIncludeLocal(fn IncludeFunc) *GLSLCompiler {
	c.includeLocal = fn
	return c
}

// OnIncludeSystem handles #include <header>.
func (c *GLSLCompiler) OnIncludeSystem(fn IncludeFunc) *GLSLCompiler {
	c.includeSystem = fn
	return c
}

// Name is the name of the last source added, which is the main file by convention.
func (c *GLSLCompiler) Name() string {
	if len(c.sources) == 0 {
		return ""
	}
	return c.sources[len(c.sources)-1].name
}

// Preprocess returns the concatenated sources with every include expanded.
func (c *GLSLCompiler) Preprocess() (string, error) {
	if c.stage == StageNone {
		return "", fmt.Errorf("%w: shader stage not set", core.ErrInvalidDescriptor)
	}
	if len(c.sources) == 0 {
		return "", fmt.Errorf("%w: shader has no sources", core.ErrInvalidDescriptor)
	}

	var sb strings.Builder
	for i, src := range c.sources {
		// #version has to stay the first statement
		if i > 0 && c.stage.IsGLSL() {
			fmt.Fprintf(&sb, "#line 1 %q\n", src.name)
		}
		if err := c.expand(&sb, src.name, src.text, 1); err != nil {
			return "", err
		}
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// Compile preprocesses the sources and hands them to backend.
func (c *GLSLCompiler) Compile(backend Backend) ([]byte, error) {
	text, err := c.Preprocess()
	if err != nil {
		return nil, err
	}
	name := c.Name()
	core.LogDebug("compiling %s shader %s (%d bytes)", c.stage, name, len(text))
	code, err := backend.Compile(c.stage, name, text)
	if err != nil {
		var compileErr *CompileError
		if errors.As(err, &compileErr) || errors.Is(err, core.ErrUnsupported) {
			return nil, err
		}
		return nil, &CompileError{Name: name, Log: err.Error(), err: err}
	}
	return code, nil
}

var includeLine = regexp.MustCompile(`^\s*#\s*include\s*(?:"([^"]+)"|<([^>]+)>)\s*$`)

func (c *GLSLCompiler) expand(sb *strings.Builder, name, text string, depth int) error {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		m := includeLine.FindStringSubmatch(line)
		if m == nil {
			sb.WriteString(line)
			if i < len(lines)-1 {
				sb.WriteByte('\n')
			}
			continue
		}

		if depth > MaxIncludeDepth {
			return fmt.Errorf("%w: %s included from %s", core.ErrIncludeRecursion, m[1]+m[2], name)
		}

		header, fn := m[1], c.includeLocal
		if header == "" {
			header, fn = m[2], c.includeSystem
		}
		if fn == nil {
			return fmt.Errorf("%w: %s:%d: no handler for #include %s", core.ErrShaderCompile, name, i+1, header)
		}

		result := fn(header, name, depth)
		if result.Name == "" {
			return &IncludeError{Header: header, Message: result.Text}
		}

		if c.stage.IsGLSL() {
			fmt.Fprintf(sb, "#line 1 %q\n", result.Name)
		}
		if err := c.expand(sb, result.Name, result.Text, depth+1); err != nil {
			return err
		}
		sb.WriteByte('\n')
		if c.stage.IsGLSL() {
			fmt.Fprintf(sb, "#line %d %q\n", i+2, name)
		}
	}
	return nil
}

// CompileError holds the diagnostics of a failed compile.
type CompileError struct {
	Name string
	Log  string
	err  error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s: %s:\n%s", core.ErrShaderCompile, e.Name, e.Log)
}

func (e *CompileError) Is(target error) bool {
	return target == core.ErrShaderCompile
}

func (e *CompileError) Unwrap() error {
	return e.err
}
