package glshade

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/soypat/glshade/glbuild"
)

// LinkedProgram is a GPU program linked from generated sources.
type LinkedProgram interface {
	Bind()
	Unbind()
	Delete()
}

// ProgramLinker compiles and links generated vertex and fragment sources.
type ProgramLinker interface {
	LinkProgram(vertex, fragment string) (LinkedProgram, error)
}

// UniformBinding describes a uniform or sampler a generated program expects to be set.
type UniformBinding struct {
	Name string
	Type glbuild.Type
	Role glbuild.Role
}

// Program is a generated shader program.
type Program struct {
	// Key identifies the state the program was generated from.
	Key string
	// ID is the hash of Key.
	ID       uint64
	Vertex   string
	Fragment string
	Defines  []string
	Uniforms []UniformBinding
	// Linked is nil when the generator has no linker configured.
	Linked LinkedProgram
}

// TypeSet is a set of attribute type tags.
type TypeSet struct {
	m map[string]struct{}
}

// Add adds the type tags to the set.
func (ts *TypeSet) Add(attrTypes ...string) {
	if ts.m == nil {
		ts.m = make(map[string]struct{})
	}
	for _, t := range attrTypes {
		ts.m[t] = struct{}{}
	}
}

func (ts *TypeSet) Has(attrType string) bool {
	_, ok := ts.m[attrType]
	return ok
}

// Types returns the type tags in lexical order.
func (ts *TypeSet) Types() []string {
	types := make([]string, 0, len(ts.m))
	for t := range ts.m {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// GeneratorConfig configures a [Generator]. Zero fields take their defaults.
type GeneratorConfig struct {
	// Factory instantiates graph nodes. Defaults to [NewDefaultFactory].
	Factory *glbuild.Factory
	// Compiler builds the stage graphs. Defaults to [DefaultCompiler].
	Compiler GraphBuilder
	// Uniforms shares attribute uniform sets. Defaults to a new registry.
	Uniforms *UniformRegistry
	// Linker links generated sources. Programs are not linked if nil.
	Linker ProgramLinker
	// Logger logs program generation. Defaults to discarding logs.
	Logger *slog.Logger
}

// Generator returns programs for render states, generating and caching them
// on first use. Programs are never evicted; call Clear on graphics context loss.
// A Generator is not safe for concurrent use.
type Generator struct {
	factory  *glbuild.Factory
	builder  GraphBuilder
	uniforms *UniformRegistry
	linker   ProgramLinker
	log      *slog.Logger
	accept   TypeSet
	cache    map[string]*Program
	keybuf   strings.Builder

	// builderKey identifies builder in cache keys.
	builderKey string
	installed  int
}

// BuilderHasher is implemented by graph builders whose generated source
// depends on their field values. Builders returning equal hashes must
// generate equal sources for equal states.
type BuilderHasher interface {
	Hash() string
}

// NewGenerator returns a generator accepting the "ShadowAttribute" attribute type.
func NewGenerator(cfg GeneratorConfig) *Generator {
	g := &Generator{
		factory:  cfg.Factory,
		builder:  cfg.Compiler,
		uniforms: cfg.Uniforms,
		linker:   cfg.Linker,
		log:      cfg.Logger,
		cache:    make(map[string]*Program),
	}
	if g.factory == nil {
		g.factory = NewDefaultFactory()
	}
	if g.builder == nil {
		g.builder = DefaultCompiler{}
	}
	if g.uniforms == nil {
		g.uniforms = NewUniformRegistry()
	}
	if g.log == nil {
		g.log = slog.New(slog.DiscardHandler)
	}
	g.accept.Add("ShadowAttribute")
	g.builderKey = g.keyOf(g.builder)
	return g
}

// SetShaderCompiler sets the graph builder of programs generated from now on.
// Cached programs of other builders remain cached under their own keys.
// Builders implementing [BuilderHasher] are keyed by type and hash so
// reinstalling an equal builder reuses its programs. Other builders are
// keyed per installation and never share programs with a previous builder.
func (g *Generator) SetShaderCompiler(b GraphBuilder) {
	if b == nil {
		panic("nil GraphBuilder")
	}
	g.installed++
	g.builder = b
	g.builderKey = g.keyOf(b)
}

func (g *Generator) keyOf(b GraphBuilder) string {
	key := fmt.Sprintf("%T", b)
	if h, ok := b.(BuilderHasher); ok {
		return key + ":" + h.Hash()
	}
	if g.installed > 0 {
		key += "#" + strconv.Itoa(g.installed)
	}
	return key
}

// ShaderCompiler returns the graph builder in use.
func (g *Generator) ShaderCompiler() GraphBuilder { return g.builder }

// AcceptAttributeTypes returns the attribute types taking part in generation.
// Attributes of other types are ignored by GetOrCreateProgram.
func (g *Generator) AcceptAttributeTypes() *TypeSet { return &g.accept }

// Factory returns the node factory of the generator.
func (g *Generator) Factory() *glbuild.Factory { return g.factory }

// Uniforms returns the uniform registry of the generator.
func (g *Generator) Uniforms() *UniformRegistry { return g.uniforms }

// Len returns the amount of cached programs.
func (g *Generator) Len() int { return len(g.cache) }

// Clear drops all cached programs without deleting linked programs.
func (g *Generator) Clear() {
	clear(g.cache)
	g.log.Info("program cache cleared")
}

// GetOrCreateProgram returns the program for st, generating it if no program
// was generated for an equivalent state. Failed generations are not cached.
func (g *Generator) GetOrCreateProgram(st State) (*Program, error) {
	st.Attributes = g.filterAttributes(st.Attributes)
	key := g.cacheKey(st)
	if prog, ok := g.cache[key]; ok {
		return prog, nil
	}
	c := NewCompiler(g.factory, g.uniforms, st)
	vs, fs, err := c.Compile(g.builder)
	if err != nil {
		g.log.Error("shader generation failed", slog.String("key", key), slog.String("err", err.Error()))
		return nil, fmt.Errorf("generating program: %w", err)
	}
	prog := &Program{
		Key:      key,
		ID:       glbuild.Hash([]byte(key), 0),
		Vertex:   vs,
		Fragment: fs,
		Defines:  slices.Clone(c.Defines()),
	}
	for _, v := range c.Registry().Uniforms() {
		prog.Uniforms = append(prog.Uniforms, UniformBinding{Name: v.Name(), Type: v.Type(), Role: v.Role()})
	}
	if g.linker != nil {
		prog.Linked, err = g.linker.LinkProgram(vs, fs)
		if err != nil {
			g.log.Error("program link failed", slog.String("key", key), slog.String("err", err.Error()))
			return nil, fmt.Errorf("linking program: %w", err)
		}
	}
	g.cache[key] = prog
	g.log.Debug("program generated", slog.Uint64("id", prog.ID), slog.Int("uniforms", len(prog.Uniforms)), slog.Int("cached", len(g.cache)))
	return prog, nil
}

func (g *Generator) filterAttributes(attrs []Attribute) []Attribute {
	var accepted []Attribute
	for _, attr := range attrs {
		if attr != nil && g.accept.Has(attr.AttributeType()) {
			accepted = append(accepted, attr)
		}
	}
	return accepted
}

// cacheKey returns the description of everything in st affecting generated source.
func (g *Generator) cacheKey(st State) string {
	b := &g.keybuf
	b.Reset()
	b.WriteString("compiler=")
	b.WriteString(g.builderKey)
	b.WriteString(";material=")
	b.WriteString(strconv.FormatBool(st.Material != nil))
	b.WriteString(";lights=")
	for i, l := range st.Lights {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(l.Hash())
	}
	b.WriteString(";textures=")
	for i, tex := range st.Textures {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(tex.SamplerName())
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(tex.TexCoordUnit))
	}
	hashes := make([]string, len(st.Attributes))
	var defines []string
	for i, attr := range st.Attributes {
		hashes[i] = attr.Hash()
		if dp, ok := attr.(DefineProvider); ok {
			defines = append(defines, dp.Defines()...)
		}
	}
	slices.Sort(hashes)
	slices.Sort(defines)
	b.WriteString(";attributes=")
	b.WriteString(strings.Join(hashes, ","))
	b.WriteString(";defines=")
	b.WriteString(strings.Join(slices.Compact(defines), ","))
	return b.String()
}

// GeneratorProxy holds named generators. Applications register generators
// with alternate compilers and select them per rendered subgraph.
type GeneratorProxy struct {
	generators map[string]*Generator
	defaultGen *Generator
}

// DefaultGeneratorName is the name the default generator is registered under.
const DefaultGeneratorName = "default"

// NewGeneratorProxy returns a proxy with def registered as the default generator.
func NewGeneratorProxy(def *Generator) *GeneratorProxy {
	if def == nil {
		panic("nil default generator")
	}
	return &GeneratorProxy{
		generators: map[string]*Generator{DefaultGeneratorName: def},
		defaultGen: def,
	}
}

// AddShaderGenerator registers g under name, replacing a generator of the same name.
// Registering under [DefaultGeneratorName] replaces the default generator.
func (p *GeneratorProxy) AddShaderGenerator(name string, g *Generator) {
	if name == "" || g == nil {
		panic("empty generator name or nil generator")
	}
	p.generators[name] = g
	if name == DefaultGeneratorName {
		p.defaultGen = g
	}
}

// Generator returns the generator registered under name. An empty name returns the default generator.
func (p *GeneratorProxy) Generator(name string) (*Generator, bool) {
	if name == "" {
		return p.defaultGen, true
	}
	g, ok := p.generators[name]
	return g, ok
}

// Default returns the default generator.
func (p *GeneratorProxy) Default() *Generator { return p.defaultGen }

// Names returns the registered generator names in lexical order.
func (p *GeneratorProxy) Names() []string {
	names := make([]string, 0, len(p.generators))
	for name := range p.generators {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Clear clears the program caches of all registered generators.
func (p *GeneratorProxy) Clear() {
	for _, g := range p.generators {
		g.Clear()
	}
}
