package glshade

import (
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glshade/glbuild"
)

// Uniform is the CPU side value of a named shader uniform. Values are uploaded
// to linked programs by the program linking collaborator, see package glprog.
type Uniform struct {
	name  string
	typ   glbuild.Type
	data  [16]float32
	ival  int32
	dirty bool
	// version increments on every value change.
	version uint64
}

// NewUniform returns a zero valued uniform. Supported types are float, int,
// vec2, vec3, vec4, mat4 and sampler2D (holding a texture unit).
func NewUniform(typ glbuild.Type, name string) *Uniform {
	if uniformComponents(typ) == 0 {
		panic("unsupported uniform type " + string(typ))
	} else if name == "" {
		panic("empty uniform name")
	}
	return &Uniform{name: name, typ: typ, dirty: true}
}

// NewFloatUniform returns a float uniform set to v.
func NewFloatUniform(name string, v float32) *Uniform {
	u := NewUniform(glbuild.TypeFloat, name)
	u.SetFloat(v)
	return u
}

// NewIntUniform returns an int uniform set to v.
func NewIntUniform(name string, v int32) *Uniform {
	u := NewUniform(glbuild.TypeInt, name)
	u.SetInt(v)
	return u
}

func uniformComponents(typ glbuild.Type) int {
	switch typ {
	case glbuild.TypeFloat, glbuild.TypeInt, glbuild.TypeSampler2D:
		return 1
	case glbuild.TypeVec2:
		return 2
	case glbuild.TypeVec3:
		return 3
	case glbuild.TypeVec4:
		return 4
	case glbuild.TypeMat4:
		return 16
	}
	return 0
}

func (u *Uniform) Name() string       { return u.name }
func (u *Uniform) Type() glbuild.Type { return u.typ }

// Dirty reports whether the value changed since the last call to ClearDirty.
func (u *Uniform) Dirty() bool { return u.dirty }

// ClearDirty marks the value as uploaded.
func (u *Uniform) ClearDirty() { u.dirty = false }

// Version returns a counter incremented on every value change. Consumers
// uploading one uniform to several programs track it per program.
func (u *Uniform) Version() uint64 { return u.version }

// IsInteger reports whether the uniform is uploaded as an integer (int and sampler uniforms).
func (u *Uniform) IsInteger() bool {
	return u.typ == glbuild.TypeInt || u.typ == glbuild.TypeSampler2D
}

func (u *Uniform) mustBe(typ glbuild.Type) {
	if u.typ != typ {
		panic("uniform " + u.name + " is " + string(u.typ) + ", not " + string(typ))
	}
}

func (u *Uniform) set(v ...float32) {
	for i := range v {
		if u.data[i] != v[i] {
			u.data[i] = v[i]
			u.dirty = true
			u.version++
		}
	}
}

func (u *Uniform) SetFloat(v float32) {
	u.mustBe(glbuild.TypeFloat)
	u.set(v)
}

// SetInt sets an int uniform or the texture unit of a sampler uniform.
func (u *Uniform) SetInt(v int32) {
	if !u.IsInteger() {
		panic("uniform " + u.name + " is " + string(u.typ) + ", not integer")
	}
	if u.ival != v {
		u.ival = v
		u.dirty = true
		u.version++
	}
}

func (u *Uniform) SetVec2(v ms2.Vec) {
	u.mustBe(glbuild.TypeVec2)
	u.set(v.X, v.Y)
}

func (u *Uniform) SetVec3(v ms3.Vec) {
	u.mustBe(glbuild.TypeVec3)
	u.set(v.X, v.Y, v.Z)
}

func (u *Uniform) SetVec4(v [4]float32) {
	u.mustBe(glbuild.TypeVec4)
	u.set(v[:]...)
}

// SetMat4 sets a mat4 uniform. Values are stored in the row major order of [ms3.Mat4.Array].
func (u *Uniform) SetMat4(m ms3.Mat4) {
	u.mustBe(glbuild.TypeMat4)
	arr := m.Array()
	u.set(arr[:]...)
}

// Float returns the value of a float uniform.
func (u *Uniform) Float() float32 { return u.data[0] }

// Int returns the value of an int or sampler uniform.
func (u *Uniform) Int() int32 { return u.ival }

// Float32s returns the float components of the uniform. Matrices are row major.
func (u *Uniform) Float32s() []float32 {
	if u.IsInteger() {
		return nil
	}
	return u.data[:uniformComponents(u.typ)]
}

// UniformSet is an ordered set of uniforms keyed by field name.
type UniformSet struct {
	keys []string
	m    map[string]*Uniform
}

// NewUniformSet returns an empty set.
func NewUniformSet() *UniformSet {
	return &UniformSet{m: make(map[string]*Uniform)}
}

// Add adds u under key. Adding an existing key replaces the uniform.
func (s *UniformSet) Add(key string, u *Uniform) {
	if _, ok := s.m[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.m[key] = u
}

// Get returns the uniform under key or nil.
func (s *UniformSet) Get(key string) *Uniform { return s.m[key] }

// Keys returns the keys in insertion order.
func (s *UniformSet) Keys() []string { return s.keys }

func (s *UniformSet) Len() int { return len(s.keys) }

// Uniforms returns the uniforms in insertion order.
func (s *UniformSet) Uniforms() []*Uniform {
	us := make([]*Uniform, len(s.keys))
	for i, k := range s.keys {
		us[i] = s.m[k]
	}
	return us
}

// UniformRegistry shares uniform sets between attribute instances describing
// the same logical slot, i.e: two shadow attributes of light 0. Sets are keyed
// by attribute type member. A registry is not safe for concurrent use.
type UniformRegistry struct {
	sets map[string]*UniformSet
}

func NewUniformRegistry() *UniformRegistry {
	return &UniformRegistry{sets: make(map[string]*UniformSet)}
}

// GetOrCreate returns the set of typeMember. The first call allocates it with create.
func (r *UniformRegistry) GetOrCreate(typeMember string, create func() *UniformSet) *UniformSet {
	set, ok := r.sets[typeMember]
	if ok {
		return set
	}
	set = create()
	r.sets[typeMember] = set
	return set
}

// Lookup returns the set of typeMember or nil if not yet created.
func (r *UniformRegistry) Lookup(typeMember string) *UniformSet { return r.sets[typeMember] }

func (r *UniformRegistry) Len() int { return len(r.sets) }

// Clear drops all sets. Call on graphics context loss.
func (r *UniformRegistry) Clear() { clear(r.sets) }
