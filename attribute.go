package glshade

import (
	"image/color"
	"strconv"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glshade/glbuild"
)

// Attribute is a hashable render state descriptor taking part in shader generation.
type Attribute interface {
	// AttributeType is the attribute type tag, i.e: "ShadowAttribute".
	AttributeType() string
	// TypeMember is the type tag qualified by the owning light number for
	// light scoped attributes, i.e: "ShadowAttribute0". Global attributes
	// return their type tag.
	TypeMember() string
	// Hash identifies the shader variant the attribute requires.
	Hash() string
}

// DefineProvider is implemented by attributes selecting shader variants
// through preprocessor definitions.
type DefineProvider interface {
	Attribute
	// Defines returns the full preprocessor lines, i.e: "#define _PCF".
	Defines() []string
}

// UniformProvider is implemented by attributes owning uniforms.
type UniformProvider interface {
	Attribute
	// GetOrCreateUniforms returns the uniform set shared by all attributes of the same type member.
	GetOrCreateUniforms() *UniformSet
	// Apply pushes the attribute parameters into its uniform set.
	Apply()
}

// GlobalDeclarer is implemented by attributes adding stage globals when
// present in the compiled state.
type GlobalDeclarer interface {
	Attribute
	DeclareGlobals(c *Compiler, stage glbuild.Stage)
}

// VertexContributor is implemented by attributes adding nodes to the vertex
// graph of the default vertex policy.
type VertexContributor interface {
	Attribute
	CreateVertexGraph(c *Compiler)
}

// LightContributor is implemented by light scoped attributes post-processing
// the contribution of their light, i.e: shadowing.
type LightContributor interface {
	Attribute
	LightNumber() int
	// CreateLightGraph returns the variable holding the processed vec3 contribution.
	CreateLightGraph(c *Compiler, contribution *glbuild.Variable) *glbuild.Variable
}

// Material describes surface colors. Material uniforms are global and shared
// by all materials created from the same registry.
type Material struct {
	Ambient   [4]float32
	Diffuse   [4]float32
	Specular  [4]float32
	Emission  [4]float32
	Shininess float32
	uniforms  *UniformSet
}

var _ UniformProvider = (*Material)(nil) // Interface implementation compile-time check.

// NewMaterial returns a material with the default fixed function colors.
func NewMaterial(reg *UniformRegistry) *Material {
	m := &Material{
		Ambient:   [4]float32{0.2, 0.2, 0.2, 1},
		Diffuse:   [4]float32{0.8, 0.8, 0.8, 1},
		Specular:  [4]float32{0, 0, 0, 1},
		Emission:  [4]float32{0, 0, 0, 1},
		Shininess: 12.5,
	}
	m.uniforms = reg.GetOrCreate("Material", func() *UniformSet {
		set := NewUniformSet()
		set.Add("ambient", NewUniform(glbuild.TypeVec4, "MaterialAmbient"))
		set.Add("diffuse", NewUniform(glbuild.TypeVec4, "MaterialDiffuse"))
		set.Add("specular", NewUniform(glbuild.TypeVec4, "MaterialSpecular"))
		set.Add("emission", NewUniform(glbuild.TypeVec4, "MaterialEmission"))
		set.Add("shininess", NewUniform(glbuild.TypeFloat, "MaterialShininess"))
		return set
	})
	return m
}

func (m *Material) AttributeType() string            { return "Material" }
func (m *Material) TypeMember() string               { return "Material" }
func (m *Material) Hash() string                     { return "Material" }
func (m *Material) GetOrCreateUniforms() *UniformSet { return m.uniforms }

func (m *Material) Apply() {
	u := m.uniforms
	u.Get("ambient").SetVec4(m.Ambient)
	u.Get("diffuse").SetVec4(m.Diffuse)
	u.Get("specular").SetVec4(m.Specular)
	u.Get("emission").SetVec4(m.Emission)
	u.Get("shininess").SetFloat(m.Shininess)
}

// ColorRGBA converts c to normalized RGBA components as used by material and light colors.
// Components are premultiplied by alpha as returned by [color.Color].
func ColorRGBA(c color.Color) [4]float32 {
	r, g, b, a := c.RGBA()
	const full = 0xffff
	return [4]float32{float32(r) / full, float32(g) / full, float32(b) / full, float32(a) / full}
}

// LightType selects the lighting model of a [Light].
type LightType uint8

const (
	LightPoint LightType = iota
	LightSun
	LightSpot
)

func (lt LightType) String() string {
	switch lt {
	case LightPoint:
		return "POINT"
	case LightSun:
		return "SUN"
	case LightSpot:
		return "SPOT"
	}
	return "LightType(" + strconv.Itoa(int(lt)) + ")"
}

// Light describes a light source in eye space. Its uniforms are shared by all
// lights of the same number created from the same registry.
type Light struct {
	Type     LightType
	Ambient  [4]float32
	Diffuse  [4]float32
	Specular [4]float32
	// Position is homogeneous, W=0 positions are directions.
	Position  [4]float32
	Direction ms3.Vec
	// Attenuation holds the constant, linear and quadratic attenuation factors.
	Attenuation ms3.Vec
	// SpotCutoff is the cone half angle in degrees.
	SpotCutoff float32
	// SpotBlend in [0,1] is the fraction of the cone edge smoothed.
	SpotBlend float32
	number    int
	uniforms  *UniformSet
}

var _ UniformProvider = (*Light)(nil) // Interface implementation compile-time check.

// NewLight returns a point light with the default fixed function parameters.
func NewLight(reg *UniformRegistry, number int) *Light {
	if number < 0 {
		panic("negative light number")
	}
	l := &Light{
		Type:        LightPoint,
		Ambient:     [4]float32{0.2, 0.2, 0.2, 1},
		Diffuse:     [4]float32{0.8, 0.8, 0.8, 1},
		Specular:    [4]float32{0.2, 0.2, 0.2, 1},
		Position:    [4]float32{0, 0, 1, 0},
		Direction:   ms3.Vec{Z: -1},
		Attenuation: ms3.Vec{X: 1},
		SpotCutoff:  180,
		SpotBlend:   0.01,
		number:      number,
	}
	prefix := l.TypeMember() + "_uniform_"
	l.uniforms = reg.GetOrCreate(l.TypeMember(), func() *UniformSet {
		set := NewUniformSet()
		set.Add("ambient", NewUniform(glbuild.TypeVec4, prefix+"ambient"))
		set.Add("diffuse", NewUniform(glbuild.TypeVec4, prefix+"diffuse"))
		set.Add("specular", NewUniform(glbuild.TypeVec4, prefix+"specular"))
		set.Add("position", NewUniform(glbuild.TypeVec4, prefix+"position"))
		set.Add("direction", NewUniform(glbuild.TypeVec3, prefix+"direction"))
		set.Add("attenuation", NewUniform(glbuild.TypeVec3, prefix+"attenuation"))
		set.Add("spotCutOff", NewUniform(glbuild.TypeFloat, prefix+"spotCutOff"))
		set.Add("spotBlend", NewUniform(glbuild.TypeFloat, prefix+"spotBlend"))
		return set
	})
	return l
}

// Number returns the light number.
func (l *Light) Number() int { return l.number }

func (l *Light) AttributeType() string            { return "Light" }
func (l *Light) TypeMember() string               { return "Light" + strconv.Itoa(l.number) }
func (l *Light) Hash() string                     { return l.TypeMember() + l.Type.String() }
func (l *Light) GetOrCreateUniforms() *UniformSet { return l.uniforms }

func (l *Light) Apply() {
	u := l.uniforms
	u.Get("ambient").SetVec4(l.Ambient)
	u.Get("diffuse").SetVec4(l.Diffuse)
	u.Get("specular").SetVec4(l.Specular)
	u.Get("position").SetVec4(l.Position)
	u.Get("direction").SetVec3(l.Direction)
	u.Get("attenuation").SetVec3(l.Attenuation)
	u.Get("spotCutOff").SetFloat(SpotCutoffCosine(l.SpotCutoff))
	u.Get("spotBlend").SetFloat(l.SpotBlend)
}

// SpotCutoffCosine returns the cosine of a cone half angle given in degrees.
// Angles of 90 degrees and above light the whole hemisphere and map to -1.
func SpotCutoffCosine(degrees float32) float32 {
	if degrees >= 90 {
		return -1
	}
	return math32.Cos(degrees * math32.Pi / 180)
}

// Texture is a texture bound to a material. Sampling happens through the
// sampler uniform Name at texture coordinates of TexCoordUnit.
type Texture struct {
	// Name is the sampler uniform name. Empty names default to "Texture<Unit>".
	Name         string
	Unit         int
	TexCoordUnit int
}

// SamplerName returns the sampler uniform name of the texture.
func (t Texture) SamplerName() string {
	if t.Name != "" {
		return t.Name
	}
	return "Texture" + strconv.Itoa(t.Unit)
}

// State is a snapshot of the render state contributing to generated shaders.
type State struct {
	// Material is nil when no material is bound.
	Material   *Material
	Lights     []*Light
	Textures   []Texture
	// Attributes contribute in the order of their hashes, so states listing
	// the same attributes in a different order generate the same program.
	Attributes []Attribute
}
