package glsllib

import (
	_ "embed"

	"github.com/soypat/glshade/glbuild"
)

//go:embed temporal.glsl
var temporalSrc []byte

// Temporal blends the current color with the reprojected color of the history texture.
//
//	vec4 glshadeTemporal(vec4 color, int enable, float frameNum, vec4 screenPos, vec4 prevScreenPos, sampler2D history)
func Temporal() glbuild.Function {
	fn, _ := glbuild.MakeFunction(temporalSrc)
	return fn
}
