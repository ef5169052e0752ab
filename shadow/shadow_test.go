package shadow_test

import (
	"bytes"
	"slices"
	"strings"
	"testing"

	"github.com/soypat/glshade"
	"github.com/soypat/glshade/shadow"
)

func TestDefines(t *testing.T) {
	reg := glshade.NewUniformRegistry()
	light := glshade.NewLight(reg, 0)
	for _, test := range []struct {
		cfg  shadow.Config
		want []string
	}{
		{
			cfg:  shadow.DefaultConfig(),
			want: []string{"#define _NONE"},
		},
		{
			cfg:  shadow.Config{Algorithm: shadow.AlgorithmPCF, Kernel: shadow.Kernel9Tap},
			want: []string{"#define _PCF", "#define _PCF_TAP", "#define _PCFx9"},
		},
		{
			cfg:  shadow.Config{Algorithm: shadow.AlgorithmPCF, Kernel: shadow.Kernel16Band},
			want: []string{"#define _PCF", "#define _PCF_BAND", "#define _PCFx16"},
		},
		{
			cfg:  shadow.Config{Algorithm: shadow.AlgorithmPCF},
			want: []string{"#define _PCF", "#define _PCF_TAP", "#define _PCFx4"},
		},
		{
			cfg:  shadow.Config{Algorithm: shadow.AlgorithmESM, Precision: shadow.PrecisionFloat},
			want: []string{"#define _ESM", "#define _FLOATTEX"},
		},
		{
			cfg:  shadow.Config{Algorithm: shadow.AlgorithmEVSM, Precision: shadow.PrecisionHalfFloatLinear},
			want: []string{"#define _EVSM", "#define _FLOATTEX", "#define _FLOATLINEAR"},
		},
	} {
		attr := shadow.NewAttribute(reg, light, test.cfg)
		got := attr.Defines()
		if !slices.Equal(got, test.want) {
			t.Errorf("%s %s %s: want %v, got %v", test.cfg.Algorithm, test.cfg.Kernel, test.cfg.Precision, test.want, got)
		}
	}
}

func TestSharedUniforms(t *testing.T) {
	reg := glshade.NewUniformRegistry()
	light0 := glshade.NewLight(reg, 0)
	light1 := glshade.NewLight(reg, 1)
	a := shadow.NewAttribute(reg, light0, shadow.DefaultConfig())
	b := shadow.NewAttribute(reg, light0, shadow.DefaultConfig())
	c := shadow.NewAttribute(reg, light1, shadow.DefaultConfig())
	if a.GetOrCreateUniforms() != b.GetOrCreateUniforms() {
		t.Fatal("attributes of same light do not share uniforms")
	}
	if a.GetOrCreateUniforms() == c.GetOrCreateUniforms() {
		t.Fatal("attributes of distinct lights share uniforms")
	}
	if name := a.UniformName("bias"); name != "ShadowAttribute0_uniform_bias" {
		t.Errorf("unexpected uniform name %q", name)
	}
	if name := c.TextureName(); name != "ShadowTexture1" {
		t.Errorf("unexpected texture name %q", name)
	}

	b.SetBias(0.25)
	b.SetTextureUnit(3)
	b.Apply()
	u := a.GetOrCreateUniforms()
	if u.Get("bias").Float() != 0.25 || u.Get("texture").Int() != 3 {
		t.Error("applied values not visible through shared set")
	}
	if b.Dirty() {
		t.Error("Apply did not clear dirty flag")
	}
	if !a.Dirty() {
		t.Error("new attribute should be dirty")
	}
	a.Apply()
	a.SetAlgorithm(shadow.AlgorithmVSM)
	if !a.Dirty() {
		t.Error("setter did not mark attribute dirty")
	}
}

func TestHash(t *testing.T) {
	reg := glshade.NewUniformRegistry()
	attr := shadow.NewAttribute(reg, glshade.NewLight(reg, 2), shadow.Config{Algorithm: shadow.AlgorithmPCF, Kernel: shadow.Kernel9Tap})
	if h := attr.Hash(); h != "ShadowAttribute2PCF9Tap" {
		t.Errorf("unexpected hash %q", h)
	}
	before := attr.Hash()
	attr.SetBias(1)
	if attr.Hash() != before {
		t.Error("uniform parameter changed hash")
	}
	attr.SetKernel(shadow.Kernel16Tap)
	if attr.Hash() == before {
		t.Error("kernel change did not change hash")
	}
}

func TestShadowedProgram(t *testing.T) {
	reg := glshade.NewUniformRegistry()
	light := glshade.NewLight(reg, 0)
	light.Type = glshade.LightSun
	attr := shadow.NewAttribute(reg, light, shadow.Config{Algorithm: shadow.AlgorithmPCF, Kernel: shadow.Kernel9Tap})
	gen := glshade.NewGenerator(glshade.GeneratorConfig{Uniforms: reg})
	st := glshade.State{
		Material:   glshade.NewMaterial(reg),
		Lights:     []*glshade.Light{light},
		Attributes: []glshade.Attribute{attr},
	}
	prog, err := gen.GetOrCreateProgram(st)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"#define _PCFx9",
		"uniform sampler2D ShadowTexture0;",
		"varying vec4 FragShadowPos0;",
		"= glshadeShadow(ShadowTexture0, FragShadowPos0, ShadowAttribute0_uniform_mapSize, ",
		"float glshadeDecodeDepth(",
	} {
		if !strings.Contains(prog.Fragment, want) {
			t.Errorf("fragment missing %q:\n%s", want, prog.Fragment)
		}
	}
	const wantVS = "FragShadowPos0 = ShadowAttribute0_uniform_projection * ShadowAttribute0_uniform_view * ModelWorldMatrix * vec4(Vertex, 1.0);"
	if !strings.Contains(prog.Vertex, wantVS) {
		t.Errorf("vertex missing shadow projection:\n%s", prog.Vertex)
	}
	sun := strings.Index(prog.Fragment, "= glshadeSunLight(")
	shadowed := strings.Index(prog.Fragment, "= glshadeShadow(")
	if sun < 0 || shadowed < 0 {
		t.Fatal("missing light or shadow statement")
	} else if sun > shadowed {
		t.Errorf("shadow sampled before light contribution:\n%s", prog.Fragment)
	}

	attr.SetAlgorithm(shadow.AlgorithmESM)
	esm, err := gen.GetOrCreateProgram(st)
	if err != nil {
		t.Fatal(err)
	}
	if esm == prog || !strings.Contains(esm.Fragment, "#define _ESM") {
		t.Error("algorithm change did not generate a new program")
	}

	// Attribute of an absent light only contributes defines and vertex projection.
	st.Lights = nil
	unlit, err := gen.GetOrCreateProgram(st)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(unlit.Fragment, "glshadeShadow(") {
		t.Errorf("shadow sampled without light:\n%s", unlit.Fragment)
	}
}

func TestDefinesProgramWide(t *testing.T) {
	reg := glshade.NewUniformRegistry()
	light0 := glshade.NewLight(reg, 0)
	light1 := glshade.NewLight(reg, 1)
	gen := glshade.NewGenerator(glshade.GeneratorConfig{Uniforms: reg})
	prog, err := gen.GetOrCreateProgram(glshade.State{
		Material: glshade.NewMaterial(reg),
		Lights:   []*glshade.Light{light0, light1},
		Attributes: []glshade.Attribute{
			shadow.NewAttribute(reg, light0, shadow.Config{Algorithm: shadow.AlgorithmPCF, Kernel: shadow.Kernel9Tap}),
			shadow.NewAttribute(reg, light1, shadow.Config{Algorithm: shadow.AlgorithmESM}),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	// Both lights sample through the same glshadeShadow definition.
	if n := strings.Count(prog.Fragment, "float glshadeShadow("); n != 1 {
		t.Errorf("want one shadow function definition, got %d", n)
	}
	for _, want := range []string{"#define _ESM", "#define _PCF", "#define _PCFx9"} {
		if !slices.Contains(prog.Defines, want) {
			t.Errorf("program defines %v missing %q", prog.Defines, want)
		}
	}
}

func TestRegisterNodes(t *testing.T) {
	f := glshade.NewDefaultFactory()
	shadow.RegisterNodes(f)
	n, err := f.NewNode(shadow.NodeShadowReceive)
	if err != nil {
		t.Fatal(err)
	}
	if len(n.Functions()) != 2 {
		t.Errorf("want depth decoding and shadow functions, got %d", len(n.Functions()))
	}
}

func TestLoadSettings(t *testing.T) {
	const input = `
texture_size = 2048
algorithm = "PCF"
kernel = "9Tap"
texture_type = "HALF_FLOAT"
base_texture_unit = 4
`
	s, err := shadow.LoadSettings(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if s.TextureSize != 2048 || s.Algorithm != shadow.AlgorithmPCF || s.Kernel != shadow.Kernel9Tap || s.TextureType != shadow.PrecisionHalfFloat {
		t.Errorf("unexpected settings %+v", s)
	}
	def := shadow.DefaultSettings()
	if s.Bias != def.Bias || s.Exponent0 != def.Exponent0 || s.NumShadowMapsPerLight != def.NumShadowMapsPerLight {
		t.Error("absent keys did not keep defaults")
	}
	cfg := s.Config(1)
	if cfg.TextureUnit != 5 || cfg.MapSize != 2048 || cfg.Precision != shadow.PrecisionHalfFloat {
		t.Errorf("unexpected config %+v", cfg)
	}

	_, err = shadow.LoadSettings(strings.NewReader("texture_sizes = 10\n"))
	if err == nil {
		t.Error("expected error on unknown key")
	}
	_, err = shadow.LoadSettings(strings.NewReader(`algorithm = "SSAO"`))
	if err == nil {
		t.Error("expected error on unknown algorithm")
	}
}

func TestEncodeSettings(t *testing.T) {
	s := shadow.DefaultSettings()
	s.Algorithm = shadow.AlgorithmVSM
	s.TextureType = shadow.PrecisionFloatLinear
	var buf bytes.Buffer
	err := s.Encode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"algorithm = ", "VSM", "texture_type = ", "FLOAT_LINEAR", "kernel = ", "4Tap"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("encoded settings missing %q:\n%s", want, buf.String())
		}
	}
}
