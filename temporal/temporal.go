// Package temporal implements temporal supersampling: a state attribute
// jittering the projection of static scenes, a node blending the shaded color
// with a history texture, and the graph builder wiring both into programs.
package temporal

import (
	"strconv"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glshade"
	"github.com/soypat/glshade/glbuild"
	"github.com/soypat/glshade/glbuild/glsllib"
)

const (
	// AttributeType is the type tag of the temporal attribute. Generators must
	// accept it for the attribute to take part in generation.
	AttributeType = "Temporal"
	// NodeTemporal is the node type registered by [RegisterNodes].
	NodeTemporal = "Temporal"
	// JitterStartFrame is the first frame of a static scene accumulating jittered samples.
	JitterStartFrame = 100
	// HistorySampler is the sampler holding the previous frame.
	HistorySampler = "Texture2"
)

// Halton returns the index-th element of the Halton low discrepancy sequence of base.
func Halton(index, base int) float32 {
	if base < 2 {
		panic("halton base must be at least 2")
	}
	var result float32
	b := float32(base)
	f := 1 / b
	i := float32(index)
	for i > 0 {
		result += f * math32.Mod(i, b)
		i = math32.Floor(i / b)
		f /= b
	}
	return result
}

// Attribute enables temporal supersampling on the rendered subgraph.
// Its uniforms are shared by all temporal attributes created from the same registry.
type Attribute struct {
	enabled        bool
	frameNum       float32
	sampleX        float32
	sampleY        float32
	renderSize     ms2.Vec
	prevModelView  ms3.Mat4
	prevProjection ms3.Mat4
	dirty          bool
	uniforms       *glshade.UniformSet
}

var (
	_ glshade.UniformProvider = (*Attribute)(nil)
	_ glshade.GlobalDeclarer  = (*Attribute)(nil)
)

// NewAttribute returns an enabled temporal attribute.
func NewAttribute(reg *glshade.UniformRegistry) *Attribute {
	identity := ms3.ScalingMat4(ms3.Vec{X: 1, Y: 1, Z: 1})
	a := &Attribute{
		enabled:        true,
		renderSize:     ms2.Vec{X: 1, Y: 1},
		prevModelView:  identity,
		prevProjection: identity,
		dirty:          true,
	}
	a.uniforms = reg.GetOrCreate(AttributeType, func() *glshade.UniformSet {
		set := glshade.NewUniformSet()
		set.Add("enable", glshade.NewUniform(glbuild.TypeInt, "temporalEnable"))
		set.Add("frameNum", glshade.NewUniform(glbuild.TypeFloat, "FrameNum"))
		set.Add("sampleX", glshade.NewUniform(glbuild.TypeFloat, "SampleX"))
		set.Add("sampleY", glshade.NewUniform(glbuild.TypeFloat, "SampleY"))
		set.Add("renderSize", glshade.NewUniform(glbuild.TypeVec2, "RenderSize"))
		set.Add("prevModelView", glshade.NewUniform(glbuild.TypeMat4, "PrevModelViewMatrix"))
		set.Add("prevProjection", glshade.NewUniform(glbuild.TypeMat4, "PrevProjectionMatrix"))
		return set
	})
	return a
}

func (a *Attribute) AttributeType() string { return AttributeType }
func (a *Attribute) TypeMember() string    { return AttributeType }
func (a *Attribute) Hash() string          { return AttributeType + strconv.FormatBool(a.enabled) }

// Dirty reports whether parameters changed since the last Apply.
func (a *Attribute) Dirty() bool { return a.dirty }

// SetAttributeEnable toggles the temporal blend at runtime through the temporalEnable uniform.
func (a *Attribute) SetAttributeEnable(enable bool) {
	a.enabled = enable
	a.dirty = true
}

// AttributeEnable reports whether the temporal blend is enabled.
func (a *Attribute) AttributeEnable() bool { return a.enabled }

// SetRenderSize sets the render target size in pixels. Jitter offsets are sub-pixel.
func (a *Attribute) SetRenderSize(size ms2.Vec) {
	a.renderSize = size
	a.dirty = true
}

// SetPrevMatrices stores the model view and projection of the previous frame for reprojection.
func (a *Attribute) SetPrevMatrices(modelView, projection ms3.Mat4) {
	a.prevModelView = modelView
	a.prevProjection = projection
	a.dirty = true
}

// Advance sets the number of frames the scene has been static for. From
// [JitterStartFrame] on, the sample offset follows the Halton(2,3) sequence.
func (a *Attribute) Advance(frame int) {
	a.frameNum = float32(frame)
	if frame >= JitterStartFrame {
		a.sampleX = Halton(frame-JitterStartFrame, 2)
		a.sampleY = Halton(frame-JitterStartFrame, 3)
	}
	a.dirty = true
}

// Sample returns the current sub-pixel sample offset in [0,1).
func (a *Attribute) Sample() (x, y float32) { return a.sampleX, a.sampleY }

// FrameNum returns the frame set by Advance.
func (a *Attribute) FrameNum() float32 { return a.frameNum }

func (a *Attribute) GetOrCreateUniforms() *glshade.UniformSet { return a.uniforms }

// Apply pushes the parameters into the shared uniforms and clears the dirty flag.
func (a *Attribute) Apply() {
	u := a.uniforms
	var enable int32
	if a.enabled {
		enable = 1
	}
	u.Get("enable").SetInt(enable)
	u.Get("frameNum").SetFloat(a.frameNum)
	u.Get("sampleX").SetFloat(a.sampleX)
	u.Get("sampleY").SetFloat(a.sampleY)
	u.Get("renderSize").SetVec2(a.renderSize)
	u.Get("prevModelView").SetMat4(a.prevModelView)
	u.Get("prevProjection").SetMat4(a.prevProjection)
	a.dirty = false
}

// DeclareGlobals declares the jitter and reprojection uniforms and the screen position varyings in the vertex stage.
func (a *Attribute) DeclareGlobals(c *glshade.Compiler, stage glbuild.Stage) {
	if stage != glbuild.StageVertex {
		return
	}
	u := a.uniforms
	for _, key := range []string{"prevModelView", "prevProjection", "renderSize", "sampleX", "sampleY", "frameNum", "enable"} {
		c.GetOrCreateUniformFrom(u.Get(key))
	}
	c.GetOrCreateVarying(glbuild.TypeVec4, "FragScreenPos")
	c.GetOrCreateVarying(glbuild.TypeVec4, "FragPrevScreenPos")
}

// NewNode returns a Temporal node blending its "color" input with the
// reprojected color of the "texture2" history sampler.
func NewNode() glbuild.Node {
	return glshade.NewCallNode(NodeTemporal, "glshadeTemporal", []glshade.Param{
		{Slot: "color", Type: glbuild.TypeVec4},
		{Slot: "enable", Type: glbuild.TypeInt},
		{Slot: "frameNum", Type: glbuild.TypeFloat},
		{Slot: "fragScreenPos", Type: glbuild.TypeVec4},
		{Slot: "prevFragScreenPos", Type: glbuild.TypeVec4},
		{Slot: "texture2", Type: glbuild.TypeSampler2D},
	}, glsllib.Temporal())
}

// RegisterNodes registers the Temporal node type in f.
func RegisterNodes(f *glbuild.Factory) {
	f.Register(NodeTemporal, NewNode)
}
