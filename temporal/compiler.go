package temporal

import (
	"github.com/soypat/glshade"
	"github.com/soypat/glshade/glbuild"
)

// Compiler is a [glshade.GraphBuilder] routing the shaded color through a
// Temporal node when a temporal attribute is present. Its factory must have
// the Temporal node registered, see [RegisterNodes].
type Compiler struct{}

var _ glshade.GraphBuilder = Compiler{}

func (Compiler) CreateVertexShaderGraph(c *glshade.Compiler) error {
	if c.GetAttributeType(AttributeType) == nil {
		c.CreateDefaultTransform()
	} else {
		createJitteredTransform(c)
	}
	c.CreateVertexPassthrough()
	c.CreateAttributeVertexGraphs()
	return nil
}

func createJitteredTransform(c *glshade.Compiler) {
	vertex := c.GetOrCreateAttribute(glbuild.TypeVec3, "Vertex")
	projMat := c.CreateVariable(glbuild.TypeMat4)
	position := c.CreateVariable(glbuild.TypeVec4)
	// Jitter stays within half a pixel so neighbouring pixels are not overwritten.
	c.InlineCode(`%projMat = %projection;
if (%enable == 1 && %frameNum > 100.0) {
	%projMat[2][0] += (%sampleX - 0.5) / %renderSize.x;
	%projMat[2][1] += (%sampleY - 0.5) / %renderSize.y;
}
%position = %projMat * %modelView * vec4(%vertex, 1.0);`, glshade.Slots{
		"projection": c.GetOrCreateUniform(glbuild.TypeMat4, "ProjectionMatrix"),
		"modelView":  c.GetOrCreateUniform(glbuild.TypeMat4, "ModelViewMatrix"),
		"enable":     c.GetOrCreateUniform(glbuild.TypeInt, "temporalEnable"),
		"frameNum":   c.GetOrCreateUniform(glbuild.TypeFloat, "FrameNum"),
		"sampleX":    c.GetOrCreateUniform(glbuild.TypeFloat, "SampleX"),
		"sampleY":    c.GetOrCreateUniform(glbuild.TypeFloat, "SampleY"),
		"renderSize": c.GetOrCreateUniform(glbuild.TypeVec2, "RenderSize"),
		"vertex":     vertex,
	}, glshade.Slots{"projMat": projMat, "position": position})

	c.InlineCode("%glPosition = %position;\n%screenPos = %position;",
		glshade.Slots{"position": position},
		glshade.Slots{
			"glPosition": c.Builtin(glbuild.TypeVec4, "gl_Position"),
			"screenPos":  c.GetOrCreateVarying(glbuild.TypeVec4, "FragScreenPos"),
		})
	c.InlineCode("%prevScreenPos = %prevProjection * %prevModelView * vec4(%vertex, 1.0);", glshade.Slots{
		"prevProjection": c.GetOrCreateUniform(glbuild.TypeMat4, "PrevProjectionMatrix"),
		"prevModelView":  c.GetOrCreateUniform(glbuild.TypeMat4, "PrevModelViewMatrix"),
		"vertex":         vertex,
	}, glshade.Slots{"prevScreenPos": c.GetOrCreateVarying(glbuild.TypeVec4, "FragPrevScreenPos")})
}

func (Compiler) CreateFragmentShaderGraph(c *glshade.Compiler) error {
	if c.Material() == nil {
		c.CreateDefaultFragmentShaderGraph()
		return nil
	}
	diffuse := c.CreateDiffuseColor()
	color := c.CreateShadedColor(diffuse)

	attr := c.GetAttributeType(AttributeType)
	if attr != nil {
		var enable *glbuild.Variable
		if up, ok := attr.(glshade.UniformProvider); ok && up.GetOrCreateUniforms().Get("enable") != nil {
			enable = c.GetOrCreateUniformFrom(up.GetOrCreateUniforms().Get("enable"))
		} else {
			enable = c.GetOrCreateUniform(glbuild.TypeInt, "temporalEnable")
		}
		result := c.CreateVariable(glbuild.TypeVec4)
		c.Node(NodeTemporal, glshade.Slots{
			"color":             color,
			"enable":            enable,
			"frameNum":          c.GetOrCreateUniform(glbuild.TypeFloat, "FrameNum"),
			"fragScreenPos":     c.GetOrCreateVarying(glbuild.TypeVec4, "FragScreenPos"),
			"prevFragScreenPos": c.GetOrCreateVarying(glbuild.TypeVec4, "FragPrevScreenPos"),
			"texture2":          c.GetOrCreateSampler(glbuild.TypeSampler2D, HistorySampler),
		}, glshade.Slots{"color": result})
		color = result
	}
	c.FragColor(color)
	return nil
}
