package glshade

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/soypat/glshade/glbuild"
)

// GraphBuilder builds the node graphs of a compilation pass. Implementations
// customize shader generation while reusing the [Compiler] declaration and
// linearization machinery. The Compiler helpers are used to create nodes and
// variables; errors recorded by helpers abort the pass after the builder returns.
type GraphBuilder interface {
	CreateVertexShaderGraph(c *Compiler) error
	CreateFragmentShaderGraph(c *Compiler) error
}

// Slots binds slot names to variables when creating nodes through a [Compiler].
type Slots map[string]*glbuild.Variable

func (s Slots) list() []glbuild.Slot {
	if len(s) == 0 {
		return nil
	}
	slots := make([]glbuild.Slot, 0, len(s))
	for name, v := range s {
		slots = append(slots, glbuild.Bind(name, v))
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Name < slots[j].Name })
	return slots
}

type passState uint8

const (
	passInit passState = iota
	passDeclareGlobals
	passBuildGraph
	passLinearize
	passDone
)

func (ps passState) String() string {
	switch ps {
	case passInit:
		return "Init"
	case passDeclareGlobals:
		return "DeclareGlobals"
	case passBuildGraph:
		return "BuildGraph"
	case passLinearize:
		return "Linearize"
	case passDone:
		return "Done"
	}
	return "passState(" + strconv.Itoa(int(ps)) + ")"
}

// Compiler is a single compilation pass generating the vertex and fragment
// sources of a [State]. A Compiler is used once, see [Compiler.Compile].
type Compiler struct {
	factory       *glbuild.Factory
	uniforms      *UniformRegistry
	reg           *glbuild.Registry
	prog          *glbuild.Programmer
	state         passState
	graphs        [2]glbuild.Graph
	st            State
	texCoordUnits []int
	defines       []string
	accumErrs     []error
}

// NewCompiler returns a compilation pass over st. All attributes of st take
// part in the compilation, contributing in the order of their hashes.
func NewCompiler(factory *glbuild.Factory, uniforms *UniformRegistry, st State) *Compiler {
	if factory == nil || uniforms == nil {
		panic("nil factory or uniform registry")
	}
	c := &Compiler{
		factory:  factory,
		uniforms: uniforms,
		reg:      glbuild.NewRegistry(),
		prog:     glbuild.NewDefaultProgrammer(),
		st:       st,
	}
	c.st.Attributes = slices.Clone(st.Attributes)
	slices.SortStableFunc(c.st.Attributes, func(a, b Attribute) int {
		return strings.Compare(a.Hash(), b.Hash())
	})
	for _, tex := range st.Textures {
		if !slices.Contains(c.texCoordUnits, tex.TexCoordUnit) {
			c.texCoordUnits = append(c.texCoordUnits, tex.TexCoordUnit)
		}
	}
	for _, attr := range st.Attributes {
		if dp, ok := attr.(DefineProvider); ok {
			c.defines = append(c.defines, dp.Defines()...)
		}
	}
	slices.Sort(c.defines)
	c.defines = slices.Compact(c.defines)
	return c
}

// Compile runs the pass: stage globals are declared, b builds the stage graphs
// which are then linearized into GLSL. No source is returned on error.
func (c *Compiler) Compile(b GraphBuilder) (vertex, fragment string, err error) {
	if c.state != passInit {
		return "", "", fmt.Errorf("compile called in state %s", c.state)
	}
	c.state = passDeclareGlobals
	c.declareGlobals()
	if err = c.Err(); err != nil {
		return "", "", fmt.Errorf("declaring globals: %w", err)
	}

	c.state = passBuildGraph
	c.reg.SetStage(glbuild.StageVertex)
	err = b.CreateVertexShaderGraph(c)
	if err == nil {
		err = c.Err()
	}
	if err != nil {
		return "", "", fmt.Errorf("vertex graph: %w", err)
	}
	c.reg.SetStage(glbuild.StageFragment)
	err = b.CreateFragmentShaderGraph(c)
	if err == nil {
		err = c.Err()
	}
	if err != nil {
		return "", "", fmt.Errorf("fragment graph: %w", err)
	}

	c.state = passLinearize
	var vs, fs bytes.Buffer
	_, err = c.prog.WriteStage(&vs, glbuild.StageVertex, c.reg, &c.graphs[glbuild.StageVertex], c.defines)
	if err != nil {
		return "", "", err
	}
	_, err = c.prog.WriteStage(&fs, glbuild.StageFragment, c.reg, &c.graphs[glbuild.StageFragment], c.defines)
	if err != nil {
		return "", "", err
	}
	c.state = passDone
	return vs.String(), fs.String(), nil
}

func (c *Compiler) declareGlobals() {
	c.reg.SetStage(glbuild.StageVertex)
	c.GetOrCreateAttribute(glbuild.TypeVec3, "Vertex")
	c.GetOrCreateAttribute(glbuild.TypeVec4, "Color")
	c.GetOrCreateAttribute(glbuild.TypeVec3, "Normal")
	c.GetOrCreateUniform(glbuild.TypeFloat, "ArrayColorEnabled")
	c.GetOrCreateUniform(glbuild.TypeMat4, "ModelViewMatrix")
	c.GetOrCreateUniform(glbuild.TypeMat4, "ProjectionMatrix")
	c.GetOrCreateUniform(glbuild.TypeMat4, "NormalMatrix")
	c.GetOrCreateVarying(glbuild.TypeVec4, "VertexColor")
	c.GetOrCreateVarying(glbuild.TypeVec3, "FragNormal")
	c.GetOrCreateVarying(glbuild.TypeVec3, "FragEyeVector")
	for _, unit := range c.texCoordUnits {
		u := strconv.Itoa(unit)
		c.GetOrCreateAttribute(glbuild.TypeVec2, "TexCoord"+u)
		c.GetOrCreateVarying(glbuild.TypeVec2, "FragTexCoord"+u)
	}
	for _, stage := range []glbuild.Stage{glbuild.StageVertex, glbuild.StageFragment} {
		c.reg.SetStage(stage)
		for _, attr := range c.st.Attributes {
			if gd, ok := attr.(GlobalDeclarer); ok {
				gd.DeclareGlobals(c, stage)
			}
		}
	}
}

// Err returns the errors recorded by helpers and by variable lookups.
func (c *Compiler) Err() error {
	return errors.Join(errors.Join(c.accumErrs...), c.reg.Err())
}

func (c *Compiler) addErr(err error) {
	c.accumErrs = append(c.accumErrs, err)
}

func (c *Compiler) checkDeclare(op string) {
	if c.state != passDeclareGlobals && c.state != passBuildGraph {
		c.addErr(fmt.Errorf("%s called in state %s", op, c.state))
	}
}

// Stage returns the stage being declared or built.
func (c *Compiler) Stage() glbuild.Stage { return c.reg.Stage() }

// Registry returns the variable registry of the pass.
func (c *Compiler) Registry() *glbuild.Registry { return c.reg }

// Uniforms returns the uniform registry shared by attribute uniform sets.
func (c *Compiler) Uniforms() *UniformRegistry { return c.uniforms }

// Material returns the compiled material, nil when absent.
func (c *Compiler) Material() *Material { return c.st.Material }

// Lights returns the compiled lights.
func (c *Compiler) Lights() []*Light { return c.st.Lights }

// Light returns the light with the given number or nil.
func (c *Compiler) Light(number int) *Light {
	for _, l := range c.st.Lights {
		if l.Number() == number {
			return l
		}
	}
	return nil
}

// Textures returns the compiled textures.
func (c *Compiler) Textures() []Texture { return c.st.Textures }

// TexCoordUnits returns the distinct texture coordinate units of the textures in first use order.
func (c *Compiler) TexCoordUnits() []int { return c.texCoordUnits }

// Attributes returns the compiled attributes.
func (c *Compiler) Attributes() []Attribute { return c.st.Attributes }

// Defines returns the sorted preprocessor lines of the compiled attributes.
func (c *Compiler) Defines() []string { return c.defines }

// GetAttributeType returns the first attribute of the given type or nil when absent.
func (c *Compiler) GetAttributeType(attrType string) Attribute {
	for _, attr := range c.st.Attributes {
		if attr.AttributeType() == attrType {
			return attr
		}
	}
	return nil
}

// GetAttributeTypeMember returns the attribute of the given type member or nil when absent.
func (c *Compiler) GetAttributeTypeMember(typeMember string) Attribute {
	for _, attr := range c.st.Attributes {
		if attr.TypeMember() == typeMember {
			return attr
		}
	}
	return nil
}

// CreateVariable returns a new temporary of the current stage.
func (c *Compiler) CreateVariable(typ glbuild.Type) *glbuild.Variable {
	return c.reg.CreateVariable(typ)
}

func (c *Compiler) GetOrCreateUniform(typ glbuild.Type, name string) *glbuild.Variable {
	c.checkDeclare("GetOrCreateUniform")
	return c.reg.GetOrCreateUniform(typ, name)
}

// GetOrCreateUniformFrom declares the shader variable of a CPU side uniform.
func (c *Compiler) GetOrCreateUniformFrom(u *Uniform) *glbuild.Variable {
	if u.Type() == glbuild.TypeSampler2D {
		return c.GetOrCreateSampler(u.Type(), u.Name())
	}
	return c.GetOrCreateUniform(u.Type(), u.Name())
}

func (c *Compiler) GetOrCreateVarying(typ glbuild.Type, name string) *glbuild.Variable {
	c.checkDeclare("GetOrCreateVarying")
	return c.reg.GetOrCreateVarying(typ, name)
}

func (c *Compiler) GetOrCreateSampler(typ glbuild.Type, name string) *glbuild.Variable {
	c.checkDeclare("GetOrCreateSampler")
	return c.reg.GetOrCreateSampler(typ, name)
}

func (c *Compiler) GetOrCreateAttribute(typ glbuild.Type, name string) *glbuild.Variable {
	c.checkDeclare("GetOrCreateAttribute")
	if c.reg.Stage() != glbuild.StageVertex {
		c.addErr(fmt.Errorf("vertex attribute %q requested in %s stage", name, c.reg.Stage()))
	}
	return c.reg.GetOrCreateAttribute(typ, name)
}

// Builtin references a GLSL builtin such as gl_Position.
func (c *Compiler) Builtin(typ glbuild.Type, name string) *glbuild.Variable {
	return c.reg.Builtin(typ, name)
}

// GetOrCreateStateAttributeUniforms declares the uniforms of an attribute in
// the current stage and returns their variables keyed by uniform set key.
func (c *Compiler) GetOrCreateStateAttributeUniforms(attr UniformProvider) Slots {
	set := attr.GetOrCreateUniforms()
	vars := make(Slots, set.Len())
	for _, key := range set.Keys() {
		vars[key] = c.GetOrCreateUniformFrom(set.Get(key))
	}
	return vars
}

// Node creates a node of a registered type in the current stage graph and binds its slots.
// On failure the error is recorded and nil is returned.
func (c *Compiler) Node(nodeType string, inputs, outputs Slots) glbuild.Node {
	if c.state != passBuildGraph {
		c.addErr(fmt.Errorf("node %s created in state %s", nodeType, c.state))
		return nil
	}
	n, err := c.factory.NewNode(nodeType)
	if err != nil {
		c.addErr(err)
		return nil
	}
	return c.AddNode(n, inputs, outputs)
}

// AddNode adds a node constructed outside the factory to the current stage graph and binds its slots.
func (c *Compiler) AddNode(n glbuild.Node, inputs, outputs Slots) glbuild.Node {
	if c.state != passBuildGraph {
		c.addErr(fmt.Errorf("node %s added in state %s", n.NodeType(), c.state))
		return nil
	}
	n.SetInputs(inputs.list()...)
	n.SetOutputs(outputs.list()...)
	c.graphs[c.reg.Stage()].Add(n)
	return n
}

// InlineCode creates a template node. See [glbuild.InlineCode].
func (c *Compiler) InlineCode(code string, inputs, outputs Slots) glbuild.Node {
	n := c.Node(glbuild.NodeInlineCode, inputs, outputs)
	if n == nil {
		return nil
	}
	coder, ok := n.(interface{ SetCode(string) })
	if !ok {
		c.addErr(fmt.Errorf("node %s registered as %s does not accept code", n.NodeType(), glbuild.NodeInlineCode))
		return n
	}
	coder.SetCode(code)
	return n
}

// GetDiffuseColorFromTextures returns the vec3 product of all textures
// sampled at their texture coordinates, or nil when there are no textures.
func (c *Compiler) GetDiffuseColorFromTextures() *glbuild.Variable {
	var result *glbuild.Variable
	for _, tex := range c.st.Textures {
		color := c.CreateVariable(glbuild.TypeVec3)
		c.Node(NodeTextureRGB, Slots{
			"texture":  c.GetOrCreateSampler(glbuild.TypeSampler2D, tex.SamplerName()),
			"texCoord": c.GetOrCreateVarying(glbuild.TypeVec2, "FragTexCoord"+strconv.Itoa(tex.TexCoordUnit)),
		}, Slots{"color": color})
		if result == nil {
			result = color
			continue
		}
		product := c.CreateVariable(glbuild.TypeVec3)
		c.InlineCode("%color = %a * %b;", Slots{"a": result, "b": color}, Slots{"color": product})
		result = product
	}
	return result
}

// CreateDiffuseColor returns the vec3 diffuse color: textures modulated by
// the material diffuse, or the material diffuse alone.
func (c *Compiler) CreateDiffuseColor() *glbuild.Variable {
	if c.st.Material == nil {
		c.addErr(errors.New("diffuse color requires a material"))
		return c.CreateVariable(glbuild.TypeVec3)
	}
	mat := c.GetOrCreateStateAttributeUniforms(c.st.Material)
	diffuse := c.CreateVariable(glbuild.TypeVec3)
	texColor := c.GetDiffuseColorFromTextures()
	if texColor == nil {
		c.InlineCode("%color = %diffuse.rgb;", Slots{"diffuse": mat["diffuse"]}, Slots{"color": diffuse})
	} else {
		c.InlineCode("%color = %texColor * %diffuse.rgb;", Slots{"texColor": texColor, "diffuse": mat["diffuse"]}, Slots{"color": diffuse})
	}
	return diffuse
}

// CreateLighting creates one light node per light, post-processed by the
// [LightContributor] attributes of its light number, and returns the vec3 sum
// of all contributions.
func (c *Compiler) CreateLighting(materialDiffuse *glbuild.Variable) *glbuild.Variable {
	if c.st.Material == nil {
		c.addErr(errors.New("lighting requires a material"))
		return c.CreateVariable(glbuild.TypeVec3)
	}
	mat := c.GetOrCreateStateAttributeUniforms(c.st.Material)
	normal := c.GetOrCreateVarying(glbuild.TypeVec3, "FragNormal")
	eye := c.GetOrCreateVarying(glbuild.TypeVec3, "FragEyeVector")
	contributions := make([]glbuild.Slot, 0, len(c.st.Lights))
	for i, light := range c.st.Lights {
		lu := c.GetOrCreateStateAttributeUniforms(light)
		inputs := Slots{
			"normal":            normal,
			"eyeVector":         eye,
			"materialAmbient":   mat["ambient"],
			"materialDiffuse":   materialDiffuse,
			"materialSpecular":  mat["specular"],
			"materialShininess": mat["shininess"],
			"lightAmbient":      lu["ambient"],
			"lightDiffuse":      lu["diffuse"],
			"lightSpecular":     lu["specular"],
		}
		var nodeType string
		switch light.Type {
		case LightSun:
			nodeType = NodeSunLight
			inputs["lightDirection"] = lu["direction"]
		case LightPoint:
			nodeType = NodePointLight
			inputs["lightPosition"] = lu["position"]
			inputs["lightAttenuation"] = lu["attenuation"]
		case LightSpot:
			nodeType = NodeSpotLight
			inputs["lightPosition"] = lu["position"]
			inputs["lightDirection"] = lu["direction"]
			inputs["lightAttenuation"] = lu["attenuation"]
			inputs["lightSpotCutOff"] = lu["spotCutOff"]
			inputs["lightSpotBlend"] = lu["spotBlend"]
		default:
			c.addErr(fmt.Errorf("light %d: unsupported type %s", light.Number(), light.Type))
			continue
		}
		contribution := c.CreateVariable(glbuild.TypeVec3)
		c.Node(nodeType, inputs, Slots{"color": contribution})
		for _, attr := range c.st.Attributes {
			lc, ok := attr.(LightContributor)
			if !ok || lc.LightNumber() != light.Number() {
				continue
			}
			contribution = lc.CreateLightGraph(c, contribution)
			if contribution == nil {
				c.addErr(fmt.Errorf("%s returned no light contribution", lc.TypeMember()))
				return c.CreateVariable(glbuild.TypeVec3)
			}
		}
		contributions = append(contributions, glbuild.Bind("light"+strconv.Itoa(i), contribution))
	}
	lighted := c.CreateVariable(glbuild.TypeVec3)
	n := c.Node(NodeLighting, nil, Slots{"color": lighted})
	if n != nil {
		n.SetInputs(contributions...)
	}
	return lighted
}

// CreateShadedColor returns the vec4 color of a fragment with the given vec3
// diffuse color. With lights and a material the result is the emission plus
// the lighting, else the diffuse color is passed through unlit.
func (c *Compiler) CreateShadedColor(diffuse *glbuild.Variable) *glbuild.Variable {
	color := c.CreateVariable(glbuild.TypeVec4)
	if len(c.st.Lights) > 0 && c.st.Material != nil {
		lighted := c.CreateLighting(diffuse)
		mat := c.GetOrCreateStateAttributeUniforms(c.st.Material)
		c.InlineCode("%color = vec4(%emit.rgb + %lighted, 1.0);",
			Slots{"emit": mat["emission"], "lighted": lighted},
			Slots{"color": color})
	} else {
		c.InlineCode("%color = vec4(%diffuse, 1.0);", Slots{"diffuse": diffuse}, Slots{"color": color})
	}
	return color
}

// FragColor writes color to gl_FragColor.
func (c *Compiler) FragColor(color *glbuild.Variable) glbuild.Node {
	return c.Node(NodeFragColor, Slots{"color": color}, Slots{"fragColor": c.Builtin(glbuild.TypeVec4, "gl_FragColor")})
}

// CreateDefaultFragmentShaderGraph writes a constant magenta color, used when no material is bound.
func (c *Compiler) CreateDefaultFragmentShaderGraph() {
	color := c.CreateVariable(glbuild.TypeVec4)
	c.InlineCode("%color = "+string(glbuild.AppendVecLiteral(nil, 1, 0, 1, 0.7))+";", nil, Slots{"color": color})
	c.FragColor(color)
}

// CreateDefaultTransform writes the model view projection transform of the vertex to gl_Position.
func (c *Compiler) CreateDefaultTransform() {
	c.InlineCode("%position = %projection * %modelView * vec4(%vertex, 1.0);", Slots{
		"projection": c.GetOrCreateUniform(glbuild.TypeMat4, "ProjectionMatrix"),
		"modelView":  c.GetOrCreateUniform(glbuild.TypeMat4, "ModelViewMatrix"),
		"vertex":     c.GetOrCreateAttribute(glbuild.TypeVec3, "Vertex"),
	}, Slots{"position": c.Builtin(glbuild.TypeVec4, "gl_Position")})
}

// CreateVertexPassthrough writes the normal, eye vector, vertex color, point
// size and texture coordinates consumed by the fragment stage.
func (c *Compiler) CreateVertexPassthrough() {
	modelView := c.GetOrCreateUniform(glbuild.TypeMat4, "ModelViewMatrix")
	vertex := c.GetOrCreateAttribute(glbuild.TypeVec3, "Vertex")
	c.InlineCode("%normal = vec3(%normalMatrix * vec4(%vertexNormal, 0.0));", Slots{
		"normalMatrix": c.GetOrCreateUniform(glbuild.TypeMat4, "NormalMatrix"),
		"vertexNormal": c.GetOrCreateAttribute(glbuild.TypeVec3, "Normal"),
	}, Slots{"normal": c.GetOrCreateVarying(glbuild.TypeVec3, "FragNormal")})
	c.InlineCode("%eye = vec3(%modelView * vec4(%vertex, 1.0));",
		Slots{"modelView": modelView, "vertex": vertex},
		Slots{"eye": c.GetOrCreateVarying(glbuild.TypeVec3, "FragEyeVector")})
	c.InlineCode("%vertexColor = %enabled == 1.0 ? %color : vec4(1.0);", Slots{
		"enabled": c.GetOrCreateUniform(glbuild.TypeFloat, "ArrayColorEnabled"),
		"color":   c.GetOrCreateAttribute(glbuild.TypeVec4, "Color"),
	}, Slots{"vertexColor": c.GetOrCreateVarying(glbuild.TypeVec4, "VertexColor")})
	c.InlineCode("%pointSize = 1.0;", nil, Slots{"pointSize": c.Builtin(glbuild.TypeFloat, "gl_PointSize")})
	for _, unit := range c.texCoordUnits {
		u := strconv.Itoa(unit)
		c.InlineCode("%out = %in;",
			Slots{"in": c.GetOrCreateAttribute(glbuild.TypeVec2, "TexCoord"+u)},
			Slots{"out": c.GetOrCreateVarying(glbuild.TypeVec2, "FragTexCoord"+u)})
	}
}

// CreateAttributeVertexGraphs lets every [VertexContributor] attribute add its vertex nodes.
func (c *Compiler) CreateAttributeVertexGraphs() {
	for _, attr := range c.st.Attributes {
		if vc, ok := attr.(VertexContributor); ok {
			vc.CreateVertexGraph(c)
		}
	}
}

// DefaultCompiler is the default [GraphBuilder]: a transformed and lit surface
// colored by its material and textures.
type DefaultCompiler struct{}

var _ GraphBuilder = DefaultCompiler{}

func (DefaultCompiler) CreateVertexShaderGraph(c *Compiler) error {
	c.CreateDefaultTransform()
	c.CreateVertexPassthrough()
	c.CreateAttributeVertexGraphs()
	return nil
}

func (DefaultCompiler) CreateFragmentShaderGraph(c *Compiler) error {
	if c.Material() == nil {
		c.CreateDefaultFragmentShaderGraph()
		return nil
	}
	diffuse := c.CreateDiffuseColor()
	color := c.CreateShadedColor(diffuse)
	c.FragColor(color)
	return nil
}
