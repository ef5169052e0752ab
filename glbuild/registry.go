package glbuild

import (
	"errors"
	"fmt"
	"strconv"
)

// Type is a GLSL type name such as float, vec4 or sampler2D.
type Type string

const (
	TypeFloat     Type = "float"
	TypeInt       Type = "int"
	TypeBool      Type = "bool"
	TypeVec2      Type = "vec2"
	TypeVec3      Type = "vec3"
	TypeVec4      Type = "vec4"
	TypeMat3      Type = "mat3"
	TypeMat4      Type = "mat4"
	TypeSampler2D Type = "sampler2D"
)

// Role is the storage qualifier of a [Variable].
type Role uint8

const (
	RoleLocal Role = iota
	RoleAttribute
	RoleUniform
	RoleVarying
	RoleSampler
	RoleBuiltin
)

func (r Role) String() string {
	switch r {
	case RoleLocal:
		return "local"
	case RoleAttribute:
		return "attribute"
	case RoleUniform:
		return "uniform"
	case RoleVarying:
		return "varying"
	case RoleSampler:
		return "sampler"
	case RoleBuiltin:
		return "builtin"
	}
	return "Role(" + strconv.Itoa(int(r)) + ")"
}

// Stage is a programmable pipeline stage.
type Stage uint8

const (
	StageVertex Stage = iota
	StageFragment
	numStages
)

func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	}
	return "Stage(" + strconv.Itoa(int(s)) + ")"
}

// Variable is a named and typed storage slot referenced by graph nodes.
// Variables are only created by a [Registry].
type Variable struct {
	name  string
	typ   Type
	role  Role
	stage Stage // Stage a local was created in.
}

func (v *Variable) Name() string { return v.name }
func (v *Variable) Type() Type   { return v.typ }
func (v *Variable) Role() Role   { return v.role }

func (v *Variable) String() string {
	if v == nil {
		return "<nil>"
	}
	return v.role.String() + " " + string(v.typ) + " " + v.name
}

// AppendDecl appends the GLSL declaration of the variable to b.
//
//	uniform mat4 ModelViewMatrix;
func (v *Variable) AppendDecl(b []byte) []byte {
	switch v.role {
	case RoleAttribute:
		b = append(b, "attribute "...)
	case RoleUniform, RoleSampler:
		b = append(b, "uniform "...)
	case RoleVarying:
		b = append(b, "varying "...)
	case RoleBuiltin:
		return b
	}
	b = append(b, v.typ...)
	b = append(b, ' ')
	b = append(b, v.name...)
	b = append(b, ";\n"...)
	return b
}

// Registry tracks the variables of a single compilation across both stages.
// Named variables are unique within the compilation; uniforms and varyings
// shared by both stages resolve to the same [Variable].
type Registry struct {
	stage     Stage
	named     map[string]*Variable
	all       map[*Variable]struct{}
	decls     [numStages][]*Variable
	declared  [numStages]map[*Variable]struct{}
	locals    [numStages][]*Variable
	uniforms  []*Variable
	ntmp      int
	accumErrs []error
}

// NewRegistry returns an empty registry set to the vertex stage.
func NewRegistry() *Registry {
	r := &Registry{
		named: make(map[string]*Variable),
		all:   make(map[*Variable]struct{}),
	}
	for i := range r.declared {
		r.declared[i] = make(map[*Variable]struct{})
	}
	return r
}

// SetStage sets the stage subsequent declarations and temporaries belong to.
func (r *Registry) SetStage(s Stage) {
	if s >= numStages {
		panic("invalid stage")
	}
	r.stage = s
}

func (r *Registry) Stage() Stage { return r.stage }

// Err returns all errors accumulated during variable lookups.
func (r *Registry) Err() error {
	if len(r.accumErrs) == 0 {
		return nil
	}
	return errors.Join(r.accumErrs...)
}

// Contains reports whether v was created by r.
func (r *Registry) Contains(v *Variable) bool {
	_, ok := r.all[v]
	return ok
}

// Lookup returns the named variable, or nil if it does not exist.
func (r *Registry) Lookup(name string) *Variable {
	return r.named[name]
}

// CreateVariable returns a new uniquely named temporary of the current stage.
func (r *Registry) CreateVariable(typ Type) *Variable {
	var name string
	for {
		name = "tmp_" + strconv.Itoa(r.ntmp)
		r.ntmp++
		if _, taken := r.named[name]; !taken {
			break
		}
	}
	v := &Variable{name: name, typ: typ, role: RoleLocal, stage: r.stage}
	r.named[name] = v
	r.all[v] = struct{}{}
	r.locals[r.stage] = append(r.locals[r.stage], v)
	return v
}

// GetOrCreateUniform returns the uniform with the given name, creating it on first use.
// The uniform is declared in the current stage.
func (r *Registry) GetOrCreateUniform(typ Type, name string) *Variable {
	v := r.getOrCreate(typ, name, RoleUniform)
	r.declare(r.stage, v)
	return v
}

// GetOrCreateSampler returns the sampler uniform with the given name, creating it on first use.
func (r *Registry) GetOrCreateSampler(typ Type, name string) *Variable {
	v := r.getOrCreate(typ, name, RoleSampler)
	r.declare(r.stage, v)
	return v
}

// GetOrCreateVarying returns the varying with the given name. Varyings are
// always declared identically in both vertex and fragment stages.
func (r *Registry) GetOrCreateVarying(typ Type, name string) *Variable {
	v := r.getOrCreate(typ, name, RoleVarying)
	r.declare(StageVertex, v)
	r.declare(StageFragment, v)
	return v
}

// GetOrCreateAttribute returns the per-vertex attribute with the given name.
// Attributes are only declared in the vertex stage.
func (r *Registry) GetOrCreateAttribute(typ Type, name string) *Variable {
	v := r.getOrCreate(typ, name, RoleAttribute)
	r.declare(StageVertex, v)
	return v
}

// Builtin returns a reference to a GLSL builtin variable such as gl_Position. Builtins are never declared.
func (r *Registry) Builtin(typ Type, name string) *Variable {
	return r.getOrCreate(typ, name, RoleBuiltin)
}

// Declarations returns the declared variables of a stage in declaration order.
func (r *Registry) Declarations(s Stage) []*Variable { return r.decls[s] }

// Locals returns the temporaries created in a stage in creation order.
func (r *Registry) Locals(s Stage) []*Variable { return r.locals[s] }

// Uniforms returns all uniforms and samplers in creation order.
func (r *Registry) Uniforms() []*Variable { return r.uniforms }

func (r *Registry) getOrCreate(typ Type, name string, role Role) *Variable {
	if name == "" {
		r.accumErrs = append(r.accumErrs, fmt.Errorf("empty %s name", role))
	}
	v, ok := r.named[name]
	if ok {
		if v.typ != typ || v.role != role {
			r.accumErrs = append(r.accumErrs, fmt.Errorf("%w: %q requested as %s %s, previously %s %s",
				ErrUniformTypeConflict, name, role, typ, v.role, v.typ))
		}
		return v
	}
	v = &Variable{name: name, typ: typ, role: role, stage: r.stage}
	r.named[name] = v
	r.all[v] = struct{}{}
	if role == RoleUniform || role == RoleSampler {
		r.uniforms = append(r.uniforms, v)
	}
	return v
}

func (r *Registry) declare(s Stage, v *Variable) {
	if _, ok := r.declared[s][v]; ok {
		return
	}
	r.declared[s][v] = struct{}{}
	r.decls[s] = append(r.decls[s], v)
}
