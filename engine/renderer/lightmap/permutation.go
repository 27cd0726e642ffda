package lightmap

import (
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/shader"
)

// PermutationIndex packs the raytrace features into the index of the fragment shader
// permutation: soft shadows bit 0, ambient occlusion bit 1, sunlight bit 2, bounce bit 3.
func PermutationIndex(softShadows, ao, sunlight, bounce bool) int {
	index := uint32(0)
	if softShadows {
		index |= shader.PermutationSoftShadows
	}
	if ao {
		index |= shader.PermutationAO
	}
	if sunlight {
		index |= shader.PermutationSunlight
	}
	if bounce {
		index |= shader.PermutationBounce
	}
	return int(index)
}

// SelectPermutation combines the user toggles with what the level asks for.
// In tool mode the toggles are ignored and the level settings win.
func SelectPermutation(cfg core.LightmapConfig, rayQuery bool, mesh LevelMesh) int {
	tool := cfg.ToolMode
	userSoftShadows := tool || (cfg.SoftShadows && rayQuery)
	userAO := tool || (cfg.AO && rayQuery)
	userSunlight := tool || cfg.Sunlight
	userBounce := tool || cfg.Bounce

	return PermutationIndex(
		userSoftShadows,
		userAO && mesh.AmbientOcclusion(),
		userSunlight && mesh.SunColor() != math.Vec3{},
		userBounce && mesh.LightBounce(),
	)
}
