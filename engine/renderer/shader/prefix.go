package shader

import (
	"strings"
)

// Permutation bits of the lightmap raytrace shader.
const (
	PermutationSoftShadows uint32 = 1 << iota
	PermutationAO
	PermutationSunlight
	PermutationBounce

	PermutationCount = 16
)

func BasePrefix() string {
	return "#version 460\n" +
		"#extension GL_GOOGLE_include_directive : enable\n"
}

// TracePrefix is the preamble of shaders that walk the level acceleration structure.
func TracePrefix(rayQuery bool) string {
	prefix := BasePrefix() + "#extension GL_EXT_nonuniform_qualifier : enable\n"
	if rayQuery {
		prefix += "#extension GL_EXT_ray_query : require\n"
		prefix += "#define USE_RAYQUERY\n"
	}
	return prefix
}

func PermutationDefines(mask uint32) string {
	var sb strings.Builder
	if mask&PermutationSoftShadows != 0 {
		sb.WriteString("#define USE_SOFTSHADOWS\n")
	}
	if mask&PermutationAO != 0 {
		sb.WriteString("#define USE_AO\n")
	}
	if mask&PermutationSunlight != 0 {
		sb.WriteString("#define USE_SUNLIGHT\n")
	}
	if mask&PermutationBounce != 0 {
		sb.WriteString("#define USE_BOUNCE\n")
	}
	return sb.String()
}

func BlurPrefix(horizontal bool) string {
	if horizontal {
		return BasePrefix() + "#define BLUR_HORIZONTAL\n"
	}
	return BasePrefix() + "#define BLUR_VERTICAL\n"
}

func ProbePrefix() string {
	return BasePrefix() + "#extension GL_ARB_separate_shader_objects : enable\n"
}

// Library is where include callbacks load headers from. Private text comes from
// the engine shaders only, public text may also come from content.
type Library interface {
	PrivateText(name string) (string, error)
	PublicText(name string) (string, error)
}

var guardReplacer = strings.NewReplacer("/", "_", "\\", "_", ".", "_")

// HeaderGuardName is the macro guarding header against double inclusion.
func HeaderGuardName(header string) string {
	return "_HEADERGUARD_" + guardReplacer.Replace(header)
}

// HeaderGuardIncluder returns include callbacks that load from library and wrap
// every header in an include guard.
func HeaderGuardIncluder(library Library) (local, system IncludeFunc) {
	include := func(load func(string) (string, error)) IncludeFunc {
		return func(header, includer string, depth int) IncludeResult {
			text, err := load(header)
			if err != nil {
				return IncludeResult{Text: err.Error()}
			}
			guard := HeaderGuardName(header)

			var sb strings.Builder
			sb.WriteString("#ifndef " + guard + "\n")
			sb.WriteString("#define " + guard + "\n")
			sb.WriteString("#line 1\n")
			sb.WriteString(text)
			sb.WriteString("\n#endif\n")
			return IncludeResult{Name: header, Text: sb.String()}
		}
	}
	return include(library.PublicText), include(library.PrivateText)
}
