//go:build !tinygo && cgo

package glprog

import (
	"errors"
	"fmt"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/soypat/glgl/v4.6-core/glgl"
	"github.com/soypat/glshade"
	"github.com/soypat/glshade/glbuild"
)

// StartWindow creates a window with a current OpenGL 4.6 core context and
// initializes OpenGL. terminate must be called once done rendering.
func StartWindow(title string, width, height int) (window *glfw.Window, terminate func(), err error) {
	if err = glfw.Init(); err != nil {
		return nil, nil, fmt.Errorf("initializing GLFW: %w", err)
	}
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 6)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.Resizable, glfw.False)
	window, err = glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, nil, fmt.Errorf("creating window: %w", err)
	}
	window.MakeContextCurrent()
	if err = gl.Init(); err != nil {
		glfw.Terminate()
		return nil, nil, fmt.Errorf("initializing OpenGL: %w", err)
	}
	return window, glfw.Terminate, nil
}

// Init1x1 starts a hidden 1x1 window so programs can be linked without rendering.
func Init1x1() (terminate func(), err error) {
	_, terminate, err = glgl.InitWithCurrentWindow33(glgl.WindowConfig{
		Title:   "glshade",
		Version: [2]int{4, 6},
		Width:   1,
		Height:  1,
	})
	return terminate, err
}

// Linker links generated programs on the current OpenGL context.
type Linker struct{}

var _ glshade.ProgramLinker = Linker{}

// LinkProgram compiles and links the vertex and fragment sources. The returned program is a [*Program].
func (Linker) LinkProgram(vertex, fragment string) (glshade.LinkedProgram, error) {
	prog, err := glgl.CompileProgram(glgl.ShaderSource{
		Vertex:   vertex + "\x00",
		Fragment: fragment + "\x00",
	})
	if err != nil {
		return nil, err
	}
	return &Program{prog: prog, uploaded: make(map[*glshade.Uniform]uploadState)}, nil
}

type uploadState struct {
	loc     int32
	version uint64
}

// Program is a linked program uploading uniform values to its locations.
type Program struct {
	prog     glgl.Program
	uploaded map[*glshade.Uniform]uploadState
}

func (p *Program) Bind()      { p.prog.Bind() }
func (p *Program) Unbind()    { p.prog.Unbind() }
func (p *Program) Delete()    { p.prog.Delete() }
func (p *Program) ID() uint32 { return p.prog.ID() }

// SetUniforms uploads the uniforms of the sets changed since their last upload
// to this program. Uniforms the program does not use are skipped. The program must be bound.
func (p *Program) SetUniforms(sets ...*glshade.UniformSet) error {
	for _, set := range sets {
		for _, u := range set.Uniforms() {
			st, seen := p.uploaded[u]
			if !seen {
				loc, err := p.prog.UniformLocation(u.Name() + "\x00")
				if err != nil {
					loc = -1 // Optimized out or never declared.
				}
				st.loc = loc
			} else if st.version == u.Version() {
				continue
			}
			if st.loc >= 0 {
				upload(st.loc, u)
			}
			st.version = u.Version()
			p.uploaded[u] = st
		}
	}
	return glgl.Err()
}

func upload(loc int32, u *glshade.Uniform) {
	v := u.Float32s()
	switch u.Type() {
	case glbuild.TypeFloat:
		gl.Uniform1f(loc, v[0])
	case glbuild.TypeVec2:
		gl.Uniform2f(loc, v[0], v[1])
	case glbuild.TypeVec3:
		gl.Uniform3f(loc, v[0], v[1], v[2])
	case glbuild.TypeVec4:
		gl.Uniform4f(loc, v[0], v[1], v[2], v[3])
	case glbuild.TypeMat4:
		// Values are row major.
		gl.UniformMatrix4fv(loc, 1, true, &v[0])
	case glbuild.TypeInt, glbuild.TypeSampler2D:
		gl.Uniform1i(loc, u.Int())
	}
}

var errNotLinked = errors.New("program was not linked by glprog")

// Use binds the linked program of prog and uploads the uniform sets.
func Use(prog *glshade.Program, sets ...*glshade.UniformSet) error {
	p, ok := prog.Linked.(*Program)
	if !ok {
		return errNotLinked
	}
	p.Bind()
	return p.SetUniforms(sets...)
}
