// Package shadow implements the shadow receiving state attribute of a light.
package shadow

import (
	"fmt"
	"strconv"

	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glshade"
	"github.com/soypat/glshade/glbuild"
	"github.com/soypat/glshade/glbuild/glsllib"
)

// AttributeType is the type tag of shadow attributes.
const AttributeType = "ShadowAttribute"

// NodeShadowReceive is the type of the node sampling the shadow map.
const NodeShadowReceive = "ShadowReceive"

// Algorithm is a shadow map filtering algorithm.
type Algorithm uint8

const (
	AlgorithmNone Algorithm = iota
	AlgorithmESM
	AlgorithmPCF
	AlgorithmVSM
	AlgorithmEVSM
	numAlgorithms
)

var algorithmNames = [numAlgorithms]string{"NONE", "ESM", "PCF", "VSM", "EVSM"}

func (a Algorithm) String() string {
	if a >= numAlgorithms {
		return "Algorithm(" + strconv.Itoa(int(a)) + ")"
	}
	return algorithmNames[a]
}

func (a Algorithm) MarshalText() ([]byte, error) {
	if a >= numAlgorithms {
		return nil, fmt.Errorf("invalid shadow algorithm %d", a)
	}
	return []byte(a.String()), nil
}

func (a *Algorithm) UnmarshalText(text []byte) error {
	for i, name := range algorithmNames {
		if string(text) == name {
			*a = Algorithm(i)
			return nil
		}
	}
	return fmt.Errorf("unknown shadow algorithm %q", text)
}

// Kernel is the sampling pattern of the PCF algorithm.
type Kernel uint8

const (
	Kernel4Tap Kernel = iota
	Kernel9Tap
	Kernel16Tap
	Kernel16Band
	numKernels
)

var kernelNames = [numKernels]string{"4Tap", "9Tap", "16Tap", "16Band"}

func (k Kernel) String() string {
	if k >= numKernels {
		return "Kernel(" + strconv.Itoa(int(k)) + ")"
	}
	return kernelNames[k]
}

func (k Kernel) MarshalText() ([]byte, error) {
	if k >= numKernels {
		return nil, fmt.Errorf("invalid PCF kernel %d", k)
	}
	return []byte(k.String()), nil
}

func (k *Kernel) UnmarshalText(text []byte) error {
	for i, name := range kernelNames {
		if string(text) == name {
			*k = Kernel(i)
			return nil
		}
	}
	return fmt.Errorf("unknown PCF kernel %q", text)
}

// Precision is the texel type of the shadow map texture.
type Precision uint8

const (
	PrecisionByte Precision = iota
	PrecisionHalfFloat
	PrecisionFloat
	PrecisionHalfFloatLinear
	PrecisionFloatLinear
	numPrecisions
)

var precisionNames = [numPrecisions]string{"BYTE", "HALF_FLOAT", "FLOAT", "HALF_FLOAT_LINEAR", "FLOAT_LINEAR"}

func (p Precision) String() string {
	if p >= numPrecisions {
		return "Precision(" + strconv.Itoa(int(p)) + ")"
	}
	return precisionNames[p]
}

// IsFloat reports whether texels are floating point.
func (p Precision) IsFloat() bool { return p != PrecisionByte }

// IsLinear reports whether float texels are linearly filtered.
func (p Precision) IsLinear() bool {
	return p == PrecisionHalfFloatLinear || p == PrecisionFloatLinear
}

func (p Precision) MarshalText() ([]byte, error) {
	if p >= numPrecisions {
		return nil, fmt.Errorf("invalid shadow precision %d", p)
	}
	return []byte(p.String()), nil
}

func (p *Precision) UnmarshalText(text []byte) error {
	for i, name := range precisionNames {
		if string(text) == name {
			*p = Precision(i)
			return nil
		}
	}
	return fmt.Errorf("unknown shadow precision %q", text)
}

// Config holds the parameters of a shadow attribute.
type Config struct {
	Algorithm Algorithm
	Kernel    Kernel
	Precision Precision
	// Bias offsets depth comparisons to avoid self shadowing.
	Bias float32
	// Exponent0 and Exponent1 are the warp exponents of ESM and EVSM.
	Exponent0  float32
	Exponent1  float32
	VSMEpsilon float32
	// MapSize is the shadow map width in texels.
	MapSize float32
	// TextureUnit is the unit the shadow map is bound to.
	TextureUnit int
}

// DefaultConfig returns the configuration of an unfiltered byte precision shadow map.
func DefaultConfig() Config {
	return Config{
		Algorithm:   AlgorithmNone,
		Kernel:      Kernel4Tap,
		Precision:   PrecisionByte,
		Bias:        0.001,
		Exponent0:   0.001,
		Exponent1:   0.001,
		VSMEpsilon:  0.001,
		MapSize:     1024,
		TextureUnit: 1,
	}
}

// Attribute makes the light it is attached to cast shadows on rendered
// geometry. Uniforms are shared by all attributes of the same light number
// created from the same uniform registry.
type Attribute struct {
	light      *glshade.Light
	cfg        Config
	view       ms3.Mat4
	projection ms3.Mat4
	dirty      bool
	uniforms   *glshade.UniformSet
}

var (
	_ glshade.DefineProvider    = (*Attribute)(nil)
	_ glshade.UniformProvider   = (*Attribute)(nil)
	_ glshade.VertexContributor = (*Attribute)(nil)
	_ glshade.LightContributor  = (*Attribute)(nil)
)

// NewAttribute returns a shadow attribute for light.
func NewAttribute(reg *glshade.UniformRegistry, light *glshade.Light, cfg Config) *Attribute {
	if light == nil {
		panic("nil light")
	}
	identity := ms3.ScalingMat4(ms3.Vec{X: 1, Y: 1, Z: 1})
	a := &Attribute{
		light:      light,
		cfg:        cfg,
		view:       identity,
		projection: identity,
		dirty:      true,
	}
	a.uniforms = reg.GetOrCreate(a.TypeMember(), a.newUniformSet)
	return a
}

func (a *Attribute) newUniformSet() *glshade.UniformSet {
	set := glshade.NewUniformSet()
	set.Add("bias", glshade.NewUniform(glbuild.TypeFloat, a.UniformName("bias")))
	set.Add("exponent0", glshade.NewUniform(glbuild.TypeFloat, a.UniformName("exponent0")))
	set.Add("exponent1", glshade.NewUniform(glbuild.TypeFloat, a.UniformName("exponent1")))
	set.Add("vsmEpsilon", glshade.NewUniform(glbuild.TypeFloat, a.UniformName("vsmEpsilon")))
	set.Add("mapSize", glshade.NewUniform(glbuild.TypeFloat, a.UniformName("mapSize")))
	set.Add("view", glshade.NewUniform(glbuild.TypeMat4, a.UniformName("view")))
	set.Add("projection", glshade.NewUniform(glbuild.TypeMat4, a.UniformName("projection")))
	set.Add("texture", glshade.NewUniform(glbuild.TypeSampler2D, a.TextureName()))
	return set
}

func (a *Attribute) AttributeType() string { return AttributeType }

func (a *Attribute) TypeMember() string { return AttributeType + strconv.Itoa(a.LightNumber()) }

// LightNumber returns the number of the shadowed light.
func (a *Attribute) LightNumber() int { return a.light.Number() }

// Light returns the shadowed light.
func (a *Attribute) Light() *glshade.Light { return a.light }

// UniformName returns the shader name of a uniform field, i.e: ShadowAttribute0_uniform_bias.
func (a *Attribute) UniformName(field string) string {
	return a.TypeMember() + "_uniform_" + field
}

// TextureName returns the name of the shadow map sampler, i.e: ShadowTexture0.
func (a *Attribute) TextureName() string { return "ShadowTexture" + strconv.Itoa(a.LightNumber()) }

// Hash combines type member, algorithm and kernel.
func (a *Attribute) Hash() string {
	return a.TypeMember() + a.cfg.Algorithm.String() + a.cfg.Kernel.String()
}

// Config returns the current parameters.
func (a *Attribute) Config() Config { return a.cfg }

// Dirty reports whether parameters changed since the last Apply.
func (a *Attribute) Dirty() bool { return a.dirty }

func (a *Attribute) SetAlgorithm(algo Algorithm) {
	a.cfg.Algorithm = algo
	a.dirty = true
}

func (a *Attribute) SetKernel(k Kernel) {
	a.cfg.Kernel = k
	a.dirty = true
}

func (a *Attribute) SetPrecision(p Precision) {
	a.cfg.Precision = p
	a.dirty = true
}

func (a *Attribute) SetBias(bias float32) {
	a.cfg.Bias = bias
	a.dirty = true
}

func (a *Attribute) SetExponent0(exp float32) {
	a.cfg.Exponent0 = exp
	a.dirty = true
}

func (a *Attribute) SetExponent1(exp float32) {
	a.cfg.Exponent1 = exp
	a.dirty = true
}

func (a *Attribute) SetVSMEpsilon(eps float32) {
	a.cfg.VSMEpsilon = eps
	a.dirty = true
}

func (a *Attribute) SetMapSize(size float32) {
	a.cfg.MapSize = size
	a.dirty = true
}

func (a *Attribute) SetTextureUnit(unit int) {
	a.cfg.TextureUnit = unit
	a.dirty = true
}

// SetShadowMatrices sets the view and projection of the shadow casting camera.
func (a *Attribute) SetShadowMatrices(view, projection ms3.Mat4) {
	a.view = view
	a.projection = projection
	a.dirty = true
}

// Defines returns the preprocessor lines selecting the shadow algorithm variant.
//
// Defines are program wide: the defines of all attributes of a state are
// merged into one list, so shadowed lights of one program share a single
// algorithm and texture precision. When lights are configured with distinct
// algorithms the first present of ESM, VSM, EVSM and PCF is used by all of
// them, and the widest PCF kernel wins. Configure all lights of a program alike.
func (a *Attribute) Defines() []string {
	var defines []string
	switch a.cfg.Algorithm {
	case AlgorithmESM:
		defines = append(defines, "#define _ESM")
	case AlgorithmNone:
		defines = append(defines, "#define _NONE")
	case AlgorithmPCF:
		defines = append(defines, "#define _PCF")
		switch a.cfg.Kernel {
		case Kernel16Band:
			defines = append(defines, "#define _PCF_BAND", "#define _PCFx16")
		case Kernel9Tap:
			defines = append(defines, "#define _PCF_TAP", "#define _PCFx9")
		case Kernel16Tap:
			defines = append(defines, "#define _PCF_TAP", "#define _PCFx25")
		default:
			defines = append(defines, "#define _PCF_TAP", "#define _PCFx4")
		}
	case AlgorithmVSM:
		defines = append(defines, "#define _VSM")
	case AlgorithmEVSM:
		defines = append(defines, "#define _EVSM")
	}
	if a.cfg.Precision.IsFloat() {
		defines = append(defines, "#define _FLOATTEX")
	}
	if a.cfg.Precision.IsLinear() {
		defines = append(defines, "#define _FLOATLINEAR")
	}
	return defines
}

func (a *Attribute) GetOrCreateUniforms() *glshade.UniformSet { return a.uniforms }

// Apply pushes the parameters into the shared uniforms and clears the dirty flag.
func (a *Attribute) Apply() {
	u := a.uniforms
	u.Get("bias").SetFloat(a.cfg.Bias)
	u.Get("exponent0").SetFloat(a.cfg.Exponent0)
	u.Get("exponent1").SetFloat(a.cfg.Exponent1)
	u.Get("vsmEpsilon").SetFloat(a.cfg.VSMEpsilon)
	u.Get("mapSize").SetFloat(a.cfg.MapSize)
	u.Get("view").SetMat4(a.view)
	u.Get("projection").SetMat4(a.projection)
	u.Get("texture").SetInt(int32(a.cfg.TextureUnit))
	a.dirty = false
}

func (a *Attribute) shadowPosName() string { return "FragShadowPos" + strconv.Itoa(a.LightNumber()) }

// CreateVertexGraph projects the vertex into shadow map space.
func (a *Attribute) CreateVertexGraph(c *glshade.Compiler) {
	u := a.uniforms
	c.InlineCode("%shadowPos = %projection * %view * %modelWorld * vec4(%vertex, 1.0);", glshade.Slots{
		"projection": c.GetOrCreateUniformFrom(u.Get("projection")),
		"view":       c.GetOrCreateUniformFrom(u.Get("view")),
		"modelWorld": c.GetOrCreateUniform(glbuild.TypeMat4, "ModelWorldMatrix"),
		"vertex":     c.GetOrCreateAttribute(glbuild.TypeVec3, "Vertex"),
	}, glshade.Slots{"shadowPos": c.GetOrCreateVarying(glbuild.TypeVec4, a.shadowPosName())})
}

// CreateLightGraph attenuates the light contribution by the lit fraction read from the shadow map.
func (a *Attribute) CreateLightGraph(c *glshade.Compiler, contribution *glbuild.Variable) *glbuild.Variable {
	u := c.GetOrCreateStateAttributeUniforms(a)
	lit := c.CreateVariable(glbuild.TypeFloat)
	c.AddNode(NewShadowReceive(), glshade.Slots{
		"shadowTexture": u["texture"],
		"shadowPos":     c.GetOrCreateVarying(glbuild.TypeVec4, a.shadowPosName()),
		"mapSize":       u["mapSize"],
		"bias":          u["bias"],
		"exponent0":     u["exponent0"],
		"exponent1":     u["exponent1"],
		"vsmEpsilon":    u["vsmEpsilon"],
	}, glshade.Slots{"color": lit})
	shadowed := c.CreateVariable(glbuild.TypeVec3)
	c.InlineCode("%color = %contribution * %lit;",
		glshade.Slots{"contribution": contribution, "lit": lit},
		glshade.Slots{"color": shadowed})
	return shadowed
}

// NewShadowReceive returns a node writing the lit fraction of a fragment to its float "color" output.
func NewShadowReceive() glbuild.Node {
	return glshade.NewCallNode(NodeShadowReceive, "glshadeShadow", []glshade.Param{
		{Slot: "shadowTexture", Type: glbuild.TypeSampler2D},
		{Slot: "shadowPos", Type: glbuild.TypeVec4},
		{Slot: "mapSize", Type: glbuild.TypeFloat},
		{Slot: "bias", Type: glbuild.TypeFloat},
		{Slot: "exponent0", Type: glbuild.TypeFloat},
		{Slot: "exponent1", Type: glbuild.TypeFloat},
		{Slot: "vsmEpsilon", Type: glbuild.TypeFloat},
	}, glsllib.DecodeDepth(), glsllib.Shadow())
}

// RegisterNodes registers the shadow node types in f.
func RegisterNodes(f *glbuild.Factory) {
	f.Register(NodeShadowReceive, NewShadowReceive)
}
