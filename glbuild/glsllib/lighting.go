package glsllib

import (
	_ "embed"

	"github.com/soypat/glshade/glbuild"
)

//go:embed blinnphong.glsl
var blinnPhongSrc []byte

// BlinnPhong is the diffuse and specular term of a single light:
//
//	vec3 glshadeBlinnPhong(vec3 normal, vec3 eyeDir, vec3 lightDir, vec3 materialDiffuse, vec3 materialSpecular, float shininess, vec3 lightDiffuse, vec3 lightSpecular)
func BlinnPhong() glbuild.Function {
	fn, _ := glbuild.MakeFunction(blinnPhongSrc)
	return fn
}

//go:embed sunlight.glsl
var sunLightSrc []byte

// SunLight is a directional light contribution. Requires [BlinnPhong].
//
//	vec3 glshadeSunLight(vec3 normal, vec3 eyeVector, vec3 materialAmbient, vec3 materialDiffuse, vec3 materialSpecular, float shininess, vec3 lightAmbient, vec3 lightDiffuse, vec3 lightSpecular, vec3 lightDirection)
func SunLight() glbuild.Function {
	fn, _ := glbuild.MakeFunction(sunLightSrc)
	return fn
}

//go:embed pointlight.glsl
var pointLightSrc []byte

// PointLight is an attenuated positional light contribution. Requires [BlinnPhong].
//
//	vec3 glshadePointLight(vec3 normal, vec3 eyeVector, vec3 materialAmbient, vec3 materialDiffuse, vec3 materialSpecular, float shininess, vec3 lightAmbient, vec3 lightDiffuse, vec3 lightSpecular, vec4 lightPosition, vec3 lightAttenuation)
func PointLight() glbuild.Function {
	fn, _ := glbuild.MakeFunction(pointLightSrc)
	return fn
}

//go:embed spotlight.glsl
var spotLightSrc []byte

// SpotLight is a positional light contribution restricted to a cone. spotCutOff is the cosine of the cone half angle.
// Requires [BlinnPhong].
//
//	vec3 glshadeSpotLight(vec3 normal, vec3 eyeVector, vec3 materialAmbient, vec3 materialDiffuse, vec3 materialSpecular, float shininess, vec3 lightAmbient, vec3 lightDiffuse, vec3 lightSpecular, vec4 lightPosition, vec3 lightDirection, vec3 lightAttenuation, float spotCutOff, float spotBlend)
func SpotLight() glbuild.Function {
	fn, _ := glbuild.MakeFunction(spotLightSrc)
	return fn
}
