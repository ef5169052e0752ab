package glshade

import (
	"errors"
	"fmt"

	"github.com/soypat/glshade/glbuild"
	"github.com/soypat/glshade/glbuild/glsllib"
)

// Builtin node type names registered by [NewDefaultFactory].
const (
	NodeFragColor  = "FragColor"
	NodeLighting   = "Lighting"
	NodeSunLight   = "SunLight"
	NodePointLight = "PointLight"
	NodeSpotLight  = "SpotLight"
	NodeTextureRGB = "TextureRGB"
)

// NewDefaultFactory returns a node factory with the template node and all builtin nodes registered.
func NewDefaultFactory() *glbuild.Factory {
	f := glbuild.NewFactory()
	f.Register(NodeFragColor, NewFragColor)
	f.Register(NodeLighting, NewLighting)
	f.Register(NodeSunLight, NewSunLight)
	f.Register(NodePointLight, NewPointLight)
	f.Register(NodeSpotLight, NewSpotLight)
	f.Register(NodeTextureRGB, NewTextureRGB)
	return f
}

// Param is a typed argument of a [CallNode] read from the input slot of the same name.
type Param struct {
	Slot string
	Type glbuild.Type
}

// CallNode is a builtin node assigning the result of a GLSL function call to its "color" output.
// Inputs are converted to the parameter type when GLSL allows it without loss of meaning,
// i.e: a vec4 bound to a vec3 parameter is passed as v.rgb.
type CallNode struct {
	glbuild.NodeBase
	call   string
	params []Param
}

var _ glbuild.Node = (*CallNode)(nil)

// NewCallNode returns a node calling the function named call with its params. funcs are
// the helper functions the call requires, dependencies first.
func NewCallNode(nodeType, call string, params []Param, funcs ...glbuild.Function) *CallNode {
	required := make([]string, len(params))
	for i, p := range params {
		required[i] = p.Slot
	}
	return &CallNode{
		NodeBase: glbuild.MakeNodeBase(nodeType, required, []string{"color"}, funcs...),
		call:     call,
		params:   params,
	}
}

func (cn *CallNode) AppendStatements(dst []byte) ([]byte, error) {
	start := len(dst)
	dst = append(dst, cn.Output("color").Name()...)
	dst = append(dst, " = "...)
	dst = append(dst, cn.call...)
	dst = append(dst, '(')
	var err error
	for i, p := range cn.params {
		if i > 0 {
			dst = append(dst, ", "...)
		}
		dst, err = appendConverted(dst, cn.Input(p.Slot), p.Type)
		if err != nil {
			return dst[:start], fmt.Errorf("%s input %q: %w", cn.NodeType(), p.Slot, err)
		}
	}
	dst = append(dst, ");\n"...)
	return dst, nil
}

func appendConverted(dst []byte, v *glbuild.Variable, want glbuild.Type) ([]byte, error) {
	got := v.Type()
	switch {
	case got == want:
		dst = append(dst, v.Name()...)
	case got == glbuild.TypeVec4 && want == glbuild.TypeVec3:
		dst = append(dst, v.Name()...)
		dst = append(dst, ".rgb"...)
	case got == glbuild.TypeVec3 && want == glbuild.TypeVec4:
		dst = append(dst, "vec4("...)
		dst = append(dst, v.Name()...)
		dst = append(dst, ", 1.0)"...)
	case got == glbuild.TypeInt && want == glbuild.TypeFloat:
		dst = append(dst, "float("...)
		dst = append(dst, v.Name()...)
		dst = append(dst, ')')
	case got == glbuild.TypeFloat && want == glbuild.TypeInt:
		dst = append(dst, "int("...)
		dst = append(dst, v.Name()...)
		dst = append(dst, ')')
	default:
		return dst, fmt.Errorf("cannot pass %s %s as %s", got, v.Name(), want)
	}
	return dst, nil
}

var lightParams = []Param{
	{"normal", glbuild.TypeVec3},
	{"eyeVector", glbuild.TypeVec3},
	{"materialAmbient", glbuild.TypeVec3},
	{"materialDiffuse", glbuild.TypeVec3},
	{"materialSpecular", glbuild.TypeVec3},
	{"materialShininess", glbuild.TypeFloat},
	{"lightAmbient", glbuild.TypeVec3},
	{"lightDiffuse", glbuild.TypeVec3},
	{"lightSpecular", glbuild.TypeVec3},
}

// NewSunLight returns a directional light node. Output "color" is a vec3 contribution.
func NewSunLight() glbuild.Node {
	params := append(lightParams[:len(lightParams):len(lightParams)],
		Param{"lightDirection", glbuild.TypeVec3},
	)
	return NewCallNode(NodeSunLight, "glshadeSunLight", params, glsllib.BlinnPhong(), glsllib.SunLight())
}

// NewPointLight returns an attenuated positional light node.
func NewPointLight() glbuild.Node {
	params := append(lightParams[:len(lightParams):len(lightParams)],
		Param{"lightPosition", glbuild.TypeVec4},
		Param{"lightAttenuation", glbuild.TypeVec3},
	)
	return NewCallNode(NodePointLight, "glshadePointLight", params, glsllib.BlinnPhong(), glsllib.PointLight())
}

// NewSpotLight returns a positional light node restricted to a cone.
func NewSpotLight() glbuild.Node {
	params := append(lightParams[:len(lightParams):len(lightParams)],
		Param{"lightPosition", glbuild.TypeVec4},
		Param{"lightDirection", glbuild.TypeVec3},
		Param{"lightAttenuation", glbuild.TypeVec3},
		Param{"lightSpotCutOff", glbuild.TypeFloat},
		Param{"lightSpotBlend", glbuild.TypeFloat},
	)
	return NewCallNode(NodeSpotLight, "glshadeSpotLight", params, glsllib.BlinnPhong(), glsllib.SpotLight())
}

// FragColor writes its "color" input to the "fragColor" output, usually gl_FragColor.
type FragColor struct {
	glbuild.NodeBase
}

// NewFragColor returns a FragColor node. Implements [glbuild.NodeConstructor].
func NewFragColor() glbuild.Node {
	return &FragColor{NodeBase: glbuild.MakeNodeBase(NodeFragColor, []string{"color"}, []string{"fragColor"})}
}

func (fc *FragColor) AppendStatements(dst []byte) ([]byte, error) {
	out := fc.Output("fragColor")
	if out.Type() != glbuild.TypeVec4 {
		return dst, fmt.Errorf("FragColor output %s must be vec4", out.Name())
	}
	dst = append(dst, out.Name()...)
	dst = append(dst, " = "...)
	dst, err := appendConverted(dst, fc.Input("color"), glbuild.TypeVec4)
	if err != nil {
		return dst, err
	}
	dst = append(dst, ";\n"...)
	return dst, nil
}

// Lighting sums the vec3 contributions bound to its inputs into its "color" output.
// Inputs are summed in binding order. With no inputs the result is black.
type Lighting struct {
	glbuild.NodeBase
}

// NewLighting returns a Lighting node.
func NewLighting() glbuild.Node {
	return &Lighting{NodeBase: glbuild.MakeNodeBase(NodeLighting, nil, []string{"color"})}
}

func (l *Lighting) AppendStatements(dst []byte) ([]byte, error) {
	out := l.Output("color")
	dst = append(dst, out.Name()...)
	dst = append(dst, " = "...)
	inputs := l.Inputs()
	if len(inputs) == 0 {
		dst = append(dst, "vec3(0.0);\n"...)
		return dst, nil
	}
	for i, s := range inputs {
		if s.Var.Type() != out.Type() {
			return dst, fmt.Errorf("Lighting input %q is %s, output is %s", s.Name, s.Var.Type(), out.Type())
		}
		if i > 0 {
			dst = append(dst, " + "...)
		}
		dst = append(dst, s.Var.Name()...)
	}
	dst = append(dst, ";\n"...)
	return dst, nil
}

// TextureRGB samples the "texture" sampler input at "texCoord" into its vec3 "color" output.
type TextureRGB struct {
	glbuild.NodeBase
}

// NewTextureRGB returns a TextureRGB node.
func NewTextureRGB() glbuild.Node {
	return &TextureRGB{NodeBase: glbuild.MakeNodeBase(NodeTextureRGB, []string{"texture", "texCoord"}, []string{"color"})}
}

func (t *TextureRGB) AppendStatements(dst []byte) ([]byte, error) {
	tex := t.Input("texture")
	uv := t.Input("texCoord")
	if tex.Type() != glbuild.TypeSampler2D || uv.Type() != glbuild.TypeVec2 {
		return dst, errors.New("TextureRGB requires sampler2D texture and vec2 texCoord")
	}
	dst = append(dst, t.Output("color").Name()...)
	dst = append(dst, " = texture2D("...)
	dst = append(dst, tex.Name()...)
	dst = append(dst, ", "...)
	dst = append(dst, uv.Name()...)
	dst = append(dst, ").rgb;\n"...)
	return dst, nil
}
