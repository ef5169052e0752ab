package glsllib

import (
	_ "embed"

	"github.com/soypat/glshade/glbuild"
)

//go:embed decodedepth.glsl
var decodeDepthSrc []byte

// DecodeDepth reads depth from a shadow map texel. Byte textures store depth packed in RGBA,
// float textures (_FLOATTEX defined) in the red channel.
//
//	float glshadeDecodeDepth(vec4 rgba)
func DecodeDepth() glbuild.Function {
	fn, _ := glbuild.MakeFunction(decodeDepthSrc)
	return fn
}

//go:embed shadow.glsl
var shadowSrc []byte

// Shadow returns the lit fraction in [0,1] of a fragment projected in shadow map space.
// The algorithm is selected by the _NONE, _ESM, _PCF, _VSM and _EVSM defines. Requires [DecodeDepth].
//
//	float glshadeShadow(sampler2D shadowTexture, vec4 shadowPos, float mapSize, float bias, float exponent0, float exponent1, float vsmEpsilon)
func Shadow() glbuild.Function {
	fn, _ := glbuild.MakeFunction(shadowSrc)
	return fn
}
