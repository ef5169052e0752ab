//go:build tinygo || !cgo

package glprog

import (
	"errors"

	"github.com/soypat/glshade"
)

var errNoCGO = errors.New("linking programs requires CGo and is not supported on TinyGo")

// Init1x1 starts a hidden 1x1 window so programs can be linked without rendering.
func Init1x1() (terminate func(), err error) {
	return nil, errNoCGO
}

// Linker links generated programs on the current OpenGL context.
type Linker struct{}

var _ glshade.ProgramLinker = Linker{}

func (Linker) LinkProgram(vertex, fragment string) (glshade.LinkedProgram, error) {
	return nil, errNoCGO
}

// Program is a linked program uploading uniform values to its locations.
type Program struct{}

func (p *Program) Bind()      {}
func (p *Program) Unbind()    {}
func (p *Program) Delete()    {}
func (p *Program) ID() uint32 { return 0 }

func (p *Program) SetUniforms(sets ...*glshade.UniformSet) error { return errNoCGO }

// Use binds the linked program of prog and uploads the uniform sets.
func Use(prog *glshade.Program, sets ...*glshade.UniformSet) error {
	return errNoCGO
}
