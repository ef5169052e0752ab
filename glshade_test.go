package glshade_test

import (
	"errors"
	"image/color"
	"slices"
	"strings"
	"testing"

	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glshade"
	"github.com/soypat/glshade/glbuild"
)

type defineAttr struct {
	typ     string
	hash    string
	defines []string
}

func (a *defineAttr) AttributeType() string { return a.typ }
func (a *defineAttr) TypeMember() string    { return a.typ }
func (a *defineAttr) Hash() string          { return a.typ + a.hash }
func (a *defineAttr) Defines() []string     { return a.defines }

type linkCounter struct {
	links int
	fail  bool
}

type nopProgram struct{}

func (nopProgram) Bind()   {}
func (nopProgram) Unbind() {}
func (nopProgram) Delete() {}

func (lc *linkCounter) LinkProgram(vertex, fragment string) (glshade.LinkedProgram, error) {
	if lc.fail {
		return nil, errors.New("link failed")
	}
	lc.links++
	return nopProgram{}, nil
}

func TestUniformRegistryShared(t *testing.T) {
	reg := glshade.NewUniformRegistry()
	l0a := glshade.NewLight(reg, 0)
	l0b := glshade.NewLight(reg, 0)
	l1 := glshade.NewLight(reg, 1)
	if l0a.GetOrCreateUniforms() != l0b.GetOrCreateUniforms() {
		t.Fatal("lights of same number do not share uniform set")
	}
	if l0a.GetOrCreateUniforms() == l1.GetOrCreateUniforms() {
		t.Fatal("lights of distinct number share uniform set")
	}
	m1 := glshade.NewMaterial(reg)
	m2 := glshade.NewMaterial(reg)
	if m1.GetOrCreateUniforms() != m2.GetOrCreateUniforms() {
		t.Fatal("materials do not share uniform set")
	}
	if reg.Len() != 3 {
		t.Errorf("want 3 uniform sets, got %d", reg.Len())
	}
	got := l1.GetOrCreateUniforms().Get("spotCutOff").Name()
	if got != "Light1_uniform_spotCutOff" {
		t.Errorf("unexpected uniform name %q", got)
	}
	reg.Clear()
	if reg.Lookup("Light0") != nil {
		t.Error("cleared registry still holds sets")
	}
}

func TestUniformDirtyVersion(t *testing.T) {
	u := glshade.NewUniform(glbuild.TypeVec3, "Direction")
	if !u.Dirty() {
		t.Fatal("new uniform should be dirty")
	}
	u.ClearDirty()
	v := u.Version()
	u.SetVec3(ms3.Vec{})
	if u.Dirty() || u.Version() != v {
		t.Error("setting identical value marked uniform dirty")
	}
	u.SetVec3(ms3.Vec{X: 1, Y: 2, Z: 3})
	if !u.Dirty() || u.Version() == v {
		t.Error("value change did not mark uniform dirty")
	}
	if !slices.Equal(u.Float32s(), []float32{1, 2, 3}) {
		t.Errorf("unexpected components %v", u.Float32s())
	}

	sampler := glshade.NewUniform(glbuild.TypeSampler2D, "Texture0")
	sampler.SetInt(2)
	if sampler.Int() != 2 || sampler.Float32s() != nil || !sampler.IsInteger() {
		t.Error("sampler uniform should hold integer texture unit")
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic on type mismatch")
		}
	}()
	u.SetFloat(1)
}

func TestSpotCutoffCosine(t *testing.T) {
	if got := glshade.SpotCutoffCosine(180); got != -1 {
		t.Errorf("want -1 for 180 degrees, got %v", got)
	}
	if got := glshade.SpotCutoffCosine(60); got < 0.4999 || got > 0.5001 {
		t.Errorf("want cos(60deg)=0.5, got %v", got)
	}
	if got := glshade.SpotCutoffCosine(0); got != 1 {
		t.Errorf("want 1 for 0 degrees, got %v", got)
	}
}

func TestColorRGBA(t *testing.T) {
	got := glshade.ColorRGBA(color.RGBA{R: 255, G: 0, B: 255, A: 255})
	if got != [4]float32{1, 0, 1, 1} {
		t.Errorf("unexpected components %v", got)
	}
	got = glshade.ColorRGBA(color.Gray16{Y: 0x8000})
	if got[0] < 0.5 || got[0] > 0.5001 || got[3] != 1 {
		t.Errorf("unexpected gray components %v", got)
	}
}

func TestDefaultCompilerNoLights(t *testing.T) {
	reg := glshade.NewUniformRegistry()
	st := glshade.State{Material: glshade.NewMaterial(reg)}
	c := glshade.NewCompiler(glshade.NewDefaultFactory(), reg, st)
	vs, fs, err := c.Compile(glshade.DefaultCompiler{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(fs, "MaterialDiffuse.rgb") {
		t.Errorf("fragment does not use material diffuse:\n%s", fs)
	}
	if strings.Contains(fs, "Light") || strings.Contains(fs, "glshadeBlinnPhong") {
		t.Errorf("unlit fragment contains lighting:\n%s", fs)
	}
	if !strings.Contains(fs, "gl_FragColor = ") {
		t.Errorf("fragment does not write gl_FragColor:\n%s", fs)
	}
	for _, want := range []string{"attribute vec3 Vertex;", "gl_Position = ProjectionMatrix * ModelViewMatrix", "varying vec3 FragNormal;"} {
		if !strings.Contains(vs, want) {
			t.Errorf("vertex missing %q:\n%s", want, vs)
		}
	}
	if strings.Contains(fs, "attribute ") {
		t.Errorf("fragment declares vertex attributes:\n%s", fs)
	}
	_, _, err = c.Compile(glshade.DefaultCompiler{})
	if err == nil {
		t.Error("second Compile call should fail")
	}
}

func TestDefaultCompilerNoMaterial(t *testing.T) {
	reg := glshade.NewUniformRegistry()
	st := glshade.State{Lights: []*glshade.Light{glshade.NewLight(reg, 0)}}
	c := glshade.NewCompiler(glshade.NewDefaultFactory(), reg, st)
	_, fs, err := c.Compile(glshade.DefaultCompiler{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(fs, "vec4(1.0,0.0,1.0,0.7)") {
		t.Errorf("want magenta fragment:\n%s", fs)
	}
	if strings.Contains(fs, "Light0") {
		t.Errorf("lights used without material:\n%s", fs)
	}
}

func TestDefaultCompilerLighting(t *testing.T) {
	reg := glshade.NewUniformRegistry()
	sun := glshade.NewLight(reg, 0)
	sun.Type = glshade.LightSun
	spot := glshade.NewLight(reg, 1)
	spot.Type = glshade.LightSpot
	st := glshade.State{
		Material: glshade.NewMaterial(reg),
		Lights:   []*glshade.Light{sun, spot},
		Textures: []glshade.Texture{{Unit: 0, TexCoordUnit: 0}, {Unit: 1, TexCoordUnit: 0}},
	}
	c := glshade.NewCompiler(glshade.NewDefaultFactory(), reg, st)
	vs, fs, err := c.Compile(glshade.DefaultCompiler{})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"= glshadeSunLight(",
		"= glshadeSpotLight(",
		"Light0_uniform_direction",
		"Light1_uniform_spotCutOff",
		"MaterialEmission.rgb + ",
		"texture2D(Texture0, FragTexCoord0).rgb",
		"texture2D(Texture1, FragTexCoord0).rgb",
	} {
		if !strings.Contains(fs, want) {
			t.Errorf("fragment missing %q:\n%s", want, fs)
		}
	}
	if n := strings.Count(fs, "vec3 glshadeBlinnPhong("); n != 1 {
		t.Errorf("want one BlinnPhong definition, got %d:\n%s", n, fs)
	}
	// Both textures share a coordinate unit.
	if n := strings.Count(vs, "attribute vec2 TexCoord"); n != 1 {
		t.Errorf("want one texture coordinate attribute, got %d:\n%s", n, vs)
	}
	if !slices.Equal(c.TexCoordUnits(), []int{0}) {
		t.Errorf("unexpected texture coordinate units %v", c.TexCoordUnits())
	}
	if c.Light(1) != spot || c.Light(2) != nil {
		t.Error("light lookup by number failed")
	}
}

func TestCompilerDefines(t *testing.T) {
	reg := glshade.NewUniformRegistry()
	st := glshade.State{
		Material: glshade.NewMaterial(reg),
		Attributes: []glshade.Attribute{
			&defineAttr{typ: "B", defines: []string{"#define _B", "#define _SHARED"}},
			&defineAttr{typ: "A", defines: []string{"#define _SHARED", "#define _A"}},
		},
	}
	c := glshade.NewCompiler(glshade.NewDefaultFactory(), reg, st)
	want := []string{"#define _A", "#define _B", "#define _SHARED"}
	if !slices.Equal(c.Defines(), want) {
		t.Fatalf("want defines %v, got %v", want, c.Defines())
	}
	vs, fs, err := c.Compile(glshade.DefaultCompiler{})
	if err != nil {
		t.Fatal(err)
	}
	for _, src := range []string{vs, fs} {
		if !strings.HasPrefix(src, "#version 100\nprecision highp float;\nprecision highp int;\n#define _A\n#define _B\n#define _SHARED\n") {
			t.Errorf("unexpected header:\n%s", src)
		}
	}
	if c.GetAttributeType("A") == nil || c.GetAttributeTypeMember("C") != nil {
		t.Error("attribute lookup failed")
	}
}

type failingBuilder struct{}

func (failingBuilder) CreateVertexShaderGraph(c *glshade.Compiler) error {
	c.CreateDefaultTransform()
	return nil
}

func (failingBuilder) CreateFragmentShaderGraph(c *glshade.Compiler) error {
	c.Node("NoSuchNode", nil, nil)
	return nil
}

func TestCompilerRecordsErrors(t *testing.T) {
	reg := glshade.NewUniformRegistry()
	c := glshade.NewCompiler(glshade.NewDefaultFactory(), reg, glshade.State{})
	vs, fs, err := c.Compile(failingBuilder{})
	if !errors.Is(err, glbuild.ErrUnknownNodeType) {
		t.Fatalf("want ErrUnknownNodeType, got %v", err)
	}
	if vs != "" || fs != "" {
		t.Error("source returned on error")
	}
	if !strings.Contains(err.Error(), "fragment graph") {
		t.Errorf("error does not name stage: %v", err)
	}
}

func TestGeneratorCache(t *testing.T) {
	reg := glshade.NewUniformRegistry()
	linker := &linkCounter{}
	gen := glshade.NewGenerator(glshade.GeneratorConfig{Uniforms: reg, Linker: linker})
	gen.AcceptAttributeTypes().Add("Blend")
	light := glshade.NewLight(reg, 0)
	blend := &defineAttr{typ: "Blend", hash: "add", defines: []string{"#define _ADD"}}
	st := glshade.State{
		Material:   glshade.NewMaterial(reg),
		Lights:     []*glshade.Light{light},
		Attributes: []glshade.Attribute{blend},
	}
	p1, err := gen.GetOrCreateProgram(st)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := gen.GetOrCreateProgram(st)
	if err != nil {
		t.Fatal(err)
	}
	if p1 != p2 || linker.links != 1 || gen.Len() != 1 {
		t.Fatalf("equivalent state generated new program: links=%d cached=%d", linker.links, gen.Len())
	}
	if p1.Linked == nil || !slices.Equal(p1.Defines, []string{"#define _ADD"}) {
		t.Errorf("unexpected program %+v", p1)
	}
	var foundDiffuse bool
	for _, u := range p1.Uniforms {
		foundDiffuse = foundDiffuse || (u.Name == "MaterialDiffuse" && u.Type == glbuild.TypeVec4)
	}
	if !foundDiffuse {
		t.Errorf("program uniforms missing MaterialDiffuse: %v", p1.Uniforms)
	}

	blend.hash = "multiply"
	blend.defines = []string{"#define _MULTIPLY"}
	p3, err := gen.GetOrCreateProgram(st)
	if err != nil {
		t.Fatal(err)
	}
	if p3 == p1 || p3.ID == p1.ID {
		t.Fatal("changed attribute returned cached program")
	}
	if !strings.Contains(p3.Fragment, "#define _MULTIPLY") {
		t.Errorf("new program missing define:\n%s", p3.Fragment)
	}

	light.Type = glshade.LightSpot
	p4, err := gen.GetOrCreateProgram(st)
	if err != nil {
		t.Fatal(err)
	}
	if p4 == p3 || gen.Len() != 3 {
		t.Fatal("changed light type returned cached program")
	}
	gen.Clear()
	if gen.Len() != 0 {
		t.Fatal("cache not cleared")
	}
}

func TestGeneratorAcceptList(t *testing.T) {
	reg := glshade.NewUniformRegistry()
	gen := glshade.NewGenerator(glshade.GeneratorConfig{Uniforms: reg})
	st := glshade.State{Material: glshade.NewMaterial(reg)}
	base, err := gen.GetOrCreateProgram(st)
	if err != nil {
		t.Fatal(err)
	}
	st.Attributes = []glshade.Attribute{&defineAttr{typ: "Ignored", defines: []string{"#define _IGNORED"}}}
	ignored, err := gen.GetOrCreateProgram(st)
	if err != nil {
		t.Fatal(err)
	}
	if ignored != base {
		t.Fatal("attribute outside accept list changed program")
	}
	gen.AcceptAttributeTypes().Add("Ignored")
	accepted, err := gen.GetOrCreateProgram(st)
	if err != nil {
		t.Fatal(err)
	}
	if accepted == base || !strings.Contains(accepted.Vertex, "#define _IGNORED") {
		t.Fatalf("accepted attribute not compiled:\n%s", accepted.Vertex)
	}
	if !gen.AcceptAttributeTypes().Has("ShadowAttribute") {
		t.Error("shadow attributes not accepted by default")
	}
}

func TestGeneratorLinkFailureNotCached(t *testing.T) {
	reg := glshade.NewUniformRegistry()
	linker := &linkCounter{fail: true}
	gen := glshade.NewGenerator(glshade.GeneratorConfig{Uniforms: reg, Linker: linker})
	st := glshade.State{Material: glshade.NewMaterial(reg)}
	_, err := gen.GetOrCreateProgram(st)
	if err == nil {
		t.Fatal("expected link error")
	}
	if gen.Len() != 0 {
		t.Error("failed program cached")
	}
	linker.fail = false
	prog, err := gen.GetOrCreateProgram(st)
	if err != nil || prog.Linked == nil {
		t.Fatalf("retry failed: %v", err)
	}
}

type passthroughBuilder struct{ glshade.DefaultCompiler }

func TestGeneratorProxy(t *testing.T) {
	reg := glshade.NewUniformRegistry()
	def := glshade.NewGenerator(glshade.GeneratorConfig{Uniforms: reg})
	custom := glshade.NewGenerator(glshade.GeneratorConfig{Uniforms: reg, Compiler: passthroughBuilder{}})
	proxy := glshade.NewGeneratorProxy(def)
	proxy.AddShaderGenerator("custom", custom)

	if g, ok := proxy.Generator(""); !ok || g != def {
		t.Error("empty name should return default generator")
	}
	if g, ok := proxy.Generator("custom"); !ok || g != custom {
		t.Error("custom generator not registered")
	}
	if _, ok := proxy.Generator("missing"); ok {
		t.Error("missing generator found")
	}
	if !slices.Equal(proxy.Names(), []string{"custom", "default"}) {
		t.Errorf("unexpected names %v", proxy.Names())
	}

	st := glshade.State{Material: glshade.NewMaterial(reg)}
	p1, err := def.GetOrCreateProgram(st)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := custom.GetOrCreateProgram(st)
	if err != nil {
		t.Fatal(err)
	}
	if p1.Key == p2.Key {
		t.Error("generators with distinct compilers share cache key")
	}
	if p1.Fragment != p2.Fragment {
		t.Error("embedded default compiler generated distinct source")
	}

	replacement := glshade.NewGenerator(glshade.GeneratorConfig{Uniforms: reg})
	proxy.AddShaderGenerator(glshade.DefaultGeneratorName, replacement)
	if proxy.Default() != replacement {
		t.Error("default generator not replaced")
	}
	proxy.Clear()
	if custom.Len() != 0 {
		t.Error("proxy clear did not clear generators")
	}
}

type tintBuilder struct{ tint [4]float32 }

func (b tintBuilder) CreateVertexShaderGraph(c *glshade.Compiler) error {
	c.CreateDefaultTransform()
	return nil
}

func (b tintBuilder) CreateFragmentShaderGraph(c *glshade.Compiler) error {
	color := c.CreateVariable(glbuild.TypeVec4)
	c.InlineCode("%color = "+string(glbuild.AppendVecLiteral(nil, b.tint[:]...))+";", nil, glshade.Slots{"color": color})
	c.FragColor(color)
	return nil
}

type hashedTint struct{ tintBuilder }

func (h hashedTint) Hash() string { return string(glbuild.AppendVecLiteral(nil, h.tint[:]...)) }

func TestGeneratorSetShaderCompiler(t *testing.T) {
	const redLiteral, blueLiteral = "vec4(1.0,0.0,0.0,1.0)", "vec4(0.0,0.0,1.0,1.0)"
	reg := glshade.NewUniformRegistry()
	red := tintBuilder{tint: [4]float32{1, 0, 0, 1}}
	blue := tintBuilder{tint: [4]float32{0, 0, 1, 1}}
	gen := glshade.NewGenerator(glshade.GeneratorConfig{Uniforms: reg, Compiler: red})
	st := glshade.State{Material: glshade.NewMaterial(reg)}
	get := func(want string) *glshade.Program {
		t.Helper()
		prog, err := gen.GetOrCreateProgram(st)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(prog.Fragment, want) {
			t.Fatalf("fragment missing %q:\n%s", want, prog.Fragment)
		}
		return prog
	}
	pRed := get(redLiteral)
	gen.SetShaderCompiler(blue)
	pBlue := get(blueLiteral)
	if pBlue == pRed || pBlue.Key == pRed.Key {
		t.Fatal("builder of same type with distinct fields returned cached program")
	}
	gen.SetShaderCompiler(red)
	if get(redLiteral) == pBlue {
		t.Fatal("reinstalled builder returned program of previous builder")
	}
	if gen.ShaderCompiler() != glshade.GraphBuilder(red) {
		t.Error("builder not installed")
	}

	gen.SetShaderCompiler(hashedTint{red})
	hRed := get(redLiteral)
	gen.SetShaderCompiler(hashedTint{blue})
	if get(blueLiteral) == hRed {
		t.Fatal("hashed builders with distinct hashes share program")
	}
	n := gen.Len()
	gen.SetShaderCompiler(hashedTint{red})
	if get(redLiteral) != hRed || gen.Len() != n {
		t.Error("hashed builder with equal hash did not reuse program")
	}
}

type scaleAttr struct {
	hash   string
	factor string
}

func (a *scaleAttr) AttributeType() string { return "Scale" }
func (a *scaleAttr) TypeMember() string    { return "Scale0" }
func (a *scaleAttr) Hash() string          { return "Scale" + a.hash }
func (a *scaleAttr) LightNumber() int      { return 0 }

func (a *scaleAttr) CreateLightGraph(c *glshade.Compiler, contribution *glbuild.Variable) *glbuild.Variable {
	out := c.CreateVariable(glbuild.TypeVec3)
	c.InlineCode("%out = %in * "+a.factor+";", glshade.Slots{"in": contribution}, glshade.Slots{"out": out})
	return out
}

func TestAttributeOrderIndependent(t *testing.T) {
	reg := glshade.NewUniformRegistry()
	half := &scaleAttr{hash: "a", factor: "0.5"}
	double := &scaleAttr{hash: "b", factor: "2.0"}
	st := glshade.State{
		Material: glshade.NewMaterial(reg),
		Lights:   []*glshade.Light{glshade.NewLight(reg, 0)},
	}
	var fragments []string
	for _, attrs := range [][]glshade.Attribute{{half, double}, {double, half}} {
		st.Attributes = attrs
		_, fs, err := glshade.NewCompiler(glshade.NewDefaultFactory(), reg, st).Compile(glshade.DefaultCompiler{})
		if err != nil {
			t.Fatal(err)
		}
		fragments = append(fragments, fs)
	}
	if fragments[0] != fragments[1] {
		t.Fatalf("attribute order changed source:\n%s\n%s", fragments[0], fragments[1])
	}
	if strings.Index(fragments[0], "* 0.5;") > strings.Index(fragments[0], "* 2.0;") {
		t.Errorf("contributions not applied in hash order:\n%s", fragments[0])
	}

	gen := glshade.NewGenerator(glshade.GeneratorConfig{Uniforms: reg})
	gen.AcceptAttributeTypes().Add("Scale")
	st.Attributes = []glshade.Attribute{double, half}
	p1, err := gen.GetOrCreateProgram(st)
	if err != nil {
		t.Fatal(err)
	}
	st.Attributes = []glshade.Attribute{half, double}
	p2, err := gen.GetOrCreateProgram(st)
	if err != nil {
		t.Fatal(err)
	}
	if p1 != p2 || p1.Fragment != fragments[0] {
		t.Error("reordered attributes generated distinct program")
	}
	if !slices.Equal(gen.AcceptAttributeTypes().Types(), []string{"Scale", "ShadowAttribute"}) {
		t.Errorf("unexpected accepted types %v", gen.AcceptAttributeTypes().Types())
	}
}
