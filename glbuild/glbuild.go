package glbuild

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// VersionStr is the default version header of generated stages. GLSL ES 1.00
// is accepted by WebGL and by desktop GL contexts with ES2 compatibility.
const VersionStr = "#version 100\n"

// Integers default to highp in the vertex stage and mediump in the fragment stage.
// Uniforms shared by both stages must match in precision so both are set explicitly.
const defaultPrecision = "precision highp float;\nprecision highp int;\n"

// Function is a GLSL helper function declared before a stage's main function.
type Function struct {
	// Name is the function name parsed from the source. Functions with equal
	// names must have identical source to be emitted in the same stage.
	Name   []byte
	Source []byte
}

// MakeFunction parses the function name of a GLSL function definition.
func MakeFunction(def []byte) (fn Function, err error) {
	def = bytes.TrimSpace(def)
	fnNameEnd := bytes.IndexByte(def, '(')
	fnNameStart := bytes.IndexByte(def, ' ')
	if fnNameEnd < 0 || fnNameStart < 0 || fnNameStart > fnNameEnd {
		return Function{}, errors.New("unable to parse function name")
	}
	name := bytes.TrimSpace(def[fnNameStart:fnNameEnd])
	if len(name) == 0 {
		return Function{}, errors.New("empty function name")
	}
	return Function{Name: name, Source: def}, nil
}

// Programmer linearizes stage graphs into GLSL source.
type Programmer struct {
	scratch   []byte
	stmts     []byte
	header    []byte
	precision []byte
	// names maps function name hashes to body hashes for checking duplicates.
	names map[uint64]uint64
}

// NewDefaultProgrammer returns a Programmer emitting GLSL ES 1.00 with high float precision.
func NewDefaultProgrammer() *Programmer {
	return &Programmer{
		scratch:   make([]byte, 0, 4096),
		header:    []byte(VersionStr),
		precision: []byte(defaultPrecision),
		names:     make(map[uint64]uint64),
	}
}

// SetHeader sets the version line and precision statement written at the top of every stage.
// Empty strings omit the line.
func (p *Programmer) SetHeader(version, precision string) {
	p.header = appendLine(p.header[:0], version)
	p.precision = appendLine(p.precision[:0], precision)
}

func appendLine(b []byte, s string) []byte {
	if s == "" {
		return b
	}
	b = append(b, s...)
	if s[len(s)-1] != '\n' {
		b = append(b, '\n')
	}
	return b
}

// WriteStage writes the full GLSL source of a stage to w: header, defines,
// declarations, helper functions and the main function with the graph
// statements in execution order. Nothing is written if the graph fails to
// linearize.
func (p *Programmer) WriteStage(w io.Writer, stage Stage, reg *Registry, g *Graph, defines []string) (int, error) {
	if stage >= numStages {
		return 0, errors.New("invalid stage")
	}
	nodes, err := g.Sort(reg)
	if err != nil {
		return 0, fmt.Errorf("%s stage: %w", stage, err)
	}
	clear(p.names)
	b := p.scratch[:0]
	b = append(b, p.header...)
	b = append(b, p.precision...)
	for _, def := range defines {
		b = appendLine(b, def)
	}
	b = append(b, '\n')
	for _, v := range reg.Declarations(stage) {
		b = v.AppendDecl(b)
	}

	for i, node := range nodes {
	FUNCWRITE:
		for _, fn := range node.Functions() {
			nameHash := hash(fn.Name, 0)
			bodyHash := hash(fn.Source, nameHash) // Body hash mixes name as well.
			gotBodyHash, nameConflict := p.names[nameHash]
			if nameConflict {
				if gotBodyHash == bodyHash {
					continue FUNCWRITE // Already written and identical, skip.
				}
				return 0, fmt.Errorf("%s stage: node %s: duplicate function name %q with distinct body:\n%s", stage, nodeLabel(node, i), fn.Name, fn.Source)
			}
			p.names[nameHash] = bodyHash
			b = append(b, '\n')
			b = append(b, fn.Source...)
			b = append(b, '\n')
		}
	}

	b = append(b, "\nvoid main() {\n"...)
	for _, v := range reg.Locals(stage) {
		b = append(b, '\t')
		b = v.AppendDecl(b)
	}
	for i, node := range nodes {
		p.stmts, err = node.AppendStatements(p.stmts[:0])
		if err != nil {
			p.scratch = b
			return 0, fmt.Errorf("%s stage: node %s: %w", stage, nodeLabel(node, i), err)
		}
		b = appendIndented(b, p.stmts)
	}
	b = append(b, "}\n"...)
	p.scratch = b
	return w.Write(b)
}

func appendIndented(dst, src []byte) []byte {
	for len(src) > 0 {
		line := src
		idx := bytes.IndexByte(src, '\n')
		if idx >= 0 {
			line = src[:idx]
			src = src[idx+1:]
		} else {
			src = src[len(src):]
		}
		if len(bytes.TrimSpace(line)) > 0 {
			dst = append(dst, '\t')
			dst = append(dst, line...)
		}
		dst = append(dst, '\n')
	}
	return dst
}

// AppendFloat appends the shortest GLSL float literal representing v. The result always contains a decimal point.
func AppendFloat(b []byte, neg, decimal byte, v float32) []byte {
	start := len(b)
	b = strconv.AppendFloat(b, float64(v), 'f', -1, 32)
	idx := bytes.IndexByte(b[start:], '.')
	if idx < 0 {
		b = append(b, '.', '0')
		idx = len(b) - start - 2
	}
	if decimal != '.' {
		b[start+idx] = decimal
	}
	if b[start] == '-' {
		b[start] = neg
	}
	return b
}

// AppendFloats appends float literals separated by sep.
func AppendFloats(b []byte, sep, neg, decimal byte, s ...float32) []byte {
	for i, v := range s {
		b = AppendFloat(b, neg, decimal, v)
		if sep != 0 && i != len(s)-1 {
			b = append(b, sep)
		}
	}
	return b
}

// AppendVecLiteral appends a GLSL vector constructor, i.e: vec4(1.0,0.0,1.0,1.0).
func AppendVecLiteral(b []byte, v ...float32) []byte {
	if len(v) < 2 || len(v) > 4 {
		panic("vector literal requires 2 to 4 components")
	}
	b = append(b, "vec"...)
	b = strconv.AppendInt(b, int64(len(v)), 10)
	b = append(b, '(')
	b = AppendFloats(b, ',', '-', '.', v...)
	b = append(b, ')')
	return b
}

// Hash returns a 64 bit hash of b mixed with in.
func Hash(b []byte, in uint64) uint64 { return hash(b, in) }

func hash(b []byte, in uint64) uint64 {
	x := in
	for len(b) >= 8 {
		x ^= binary.LittleEndian.Uint64(b)
		x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
		x = (x ^ (x >> 27)) * 0x94d049bb133111eb
		x ^= x >> 31
		b = b[8:]
	}
	if len(b) > 0 {
		var buf [8]byte
		copy(buf[:], b)
		x ^= binary.LittleEndian.Uint64(buf[:])
		x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
		x = (x ^ (x >> 27)) * 0x94d049bb133111eb
		x ^= x >> 31
	}
	return x
}
