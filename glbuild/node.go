package glbuild

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrUnknownNodeType     = errors.New("unknown node type")
	ErrUnboundPlaceholder  = errors.New("unbound template placeholder")
	ErrUnresolvedInput     = errors.New("unresolved node input")
	ErrUniformTypeConflict = errors.New("variable type conflict")
	ErrCycle               = errors.New("node graph cycle")
)

// Slot binds a named node input or output to a [Variable].
type Slot struct {
	Name string
	Var  *Variable
}

// Bind is shorthand for creating a [Slot].
func Bind(name string, v *Variable) Slot { return Slot{Name: name, Var: v} }

// Node is a unit of shader logic. Nodes read their input variables and write
// their output variables when their statements are executed.
type Node interface {
	// NodeType returns the name the node is registered under in a [Factory].
	NodeType() string
	Inputs() []Slot
	Outputs() []Slot
	// SetInputs binds input slots. Slots with an existing name are rebound.
	SetInputs(slots ...Slot)
	// SetOutputs binds output slots. Slots with an existing name are rebound.
	SetOutputs(slots ...Slot)
	// Functions returns the GLSL helper functions the statements call.
	Functions() []Function
	// Validate checks all slots required for emission are bound.
	Validate() error
	// AppendStatements appends the GLSL statements of the node to dst.
	AppendStatements(dst []byte) ([]byte, error)
}

// NodeBase implements slot bookkeeping of a [Node]. Builtin nodes embed it
// and implement AppendStatements.
type NodeBase struct {
	typ             string
	inputs          []Slot
	outputs         []Slot
	requiredInputs  []string
	requiredOutputs []string
	funcs           []Function
}

// MakeNodeBase returns a NodeBase for the node type with the slots required before emission.
func MakeNodeBase(nodeType string, requiredInputs, requiredOutputs []string, funcs ...Function) NodeBase {
	return NodeBase{
		typ:             nodeType,
		requiredInputs:  requiredInputs,
		requiredOutputs: requiredOutputs,
		funcs:           funcs,
	}
}

func (nb *NodeBase) NodeType() string { return nb.typ }
func (nb *NodeBase) Inputs() []Slot { return nb.inputs }
func (nb *NodeBase) Outputs() []Slot { return nb.outputs }
func (nb *NodeBase) Functions() []Function { return nb.funcs }
func (nb *NodeBase) SetInputs(slots ...Slot) { nb.inputs = setSlots(nb.inputs, slots) }
func (nb *NodeBase) SetOutputs(slots ...Slot) { nb.outputs = setSlots(nb.outputs, slots) }

// AddFunctions adds GLSL helper functions required by the node.
func (nb *NodeBase) AddFunctions(fns ...Function) { nb.funcs = append(nb.funcs, fns...) }

// Input returns the variable bound to the named input slot or nil.
func (nb *NodeBase) Input(name string) *Variable { return findSlot(nb.inputs, name) }

// Output returns the variable bound to the named output slot or nil.
func (nb *NodeBase) Output(name string) *Variable { return findSlot(nb.outputs, name) }

func (nb *NodeBase) Validate() error {
	for _, name := range nb.requiredInputs {
		if nb.Input(name) == nil {
			return fmt.Errorf("%w: %s input %q not bound", ErrUnresolvedInput, nb.typ, name)
		}
	}
	for _, name := range nb.requiredOutputs {
		if nb.Output(name) == nil {
			return fmt.Errorf("%w: %s output %q not bound", ErrUnresolvedInput, nb.typ, name)
		}
	}
	for _, s := range nb.inputs {
		if s.Var == nil {
			return fmt.Errorf("%w: %s input %q bound to nil variable", ErrUnresolvedInput, nb.typ, s.Name)
		}
	}
	for _, s := range nb.outputs {
		if s.Var == nil {
			return fmt.Errorf("%w: %s output %q bound to nil variable", ErrUnresolvedInput, nb.typ, s.Name)
		}
	}
	return nil
}

func setSlots(dst, slots []Slot) []Slot {
SLOTS:
	for _, s := range slots {
		for i := range dst {
			if dst[i].Name == s.Name {
				dst[i].Var = s.Var
				continue SLOTS
			}
		}
		dst = append(dst, s)
	}
	return dst
}

func findSlot(slots []Slot, name string) *Variable {
	for _, s := range slots {
		if s.Name == name {
			return s.Var
		}
	}
	return nil
}

// NodeInlineCode is the type name of the template node returned by [NewInlineCode].
const NodeInlineCode = "InlineCode"

// InlineCode is a template node. Its code contains %name placeholders which are
// replaced by the names of the variables bound to the slot of the same name.
//
//	%color = vec4(%diffuse, 1.0);
type InlineCode struct {
	NodeBase
	code string
}

var _ Node = (*InlineCode)(nil) // Interface implementation compile-time check.

// NewInlineCode returns an InlineCode node with no code. Implements [NodeConstructor].
func NewInlineCode() Node {
	return &InlineCode{NodeBase: NodeBase{typ: NodeInlineCode}}
}

// SetCode sets the template code.
func (ic *InlineCode) SetCode(code string) { ic.code = code }

// Code returns the template code.
func (ic *InlineCode) Code() string { return ic.code }

func (ic *InlineCode) AppendStatements(dst []byte) ([]byte, error) {
	toks := ParseTemplate(ic.code)
	start := len(dst)
	for _, tok := range toks {
		if !tok.Placeholder {
			dst = append(dst, tok.Text...)
			continue
		}
		v := ic.Output(tok.Text)
		if v == nil {
			v = ic.Input(tok.Text)
		}
		if v == nil {
			return dst[:start], fmt.Errorf("%w: %%%s in %q", ErrUnboundPlaceholder, tok.Text, ic.code)
		}
		dst = append(dst, v.name...)
	}
	if len(dst) > start && dst[len(dst)-1] != '\n' {
		dst = append(dst, '\n')
	}
	return dst, nil
}

// TemplateToken is a piece of a parsed template. Placeholder tokens hold the
// slot name without the leading '%'.
type TemplateToken struct {
	Text        string
	Placeholder bool
}

// ParseTemplate tokenizes a template on %[A-Za-z0-9_]+ placeholders.
// A '%' not followed by an identifier character is kept as literal text.
func ParseTemplate(code string) []TemplateToken {
	var toks []TemplateToken
	litStart := 0
	for i := 0; i < len(code); i++ {
		if code[i] != '%' {
			continue
		}
		end := i + 1
		for end < len(code) && isIdentChar(code[end]) {
			end++
		}
		if end == i+1 {
			continue // Literal %, i.e: modulo operator.
		}
		if litStart < i {
			toks = append(toks, TemplateToken{Text: code[litStart:i]})
		}
		toks = append(toks, TemplateToken{Text: code[i+1 : end], Placeholder: true})
		litStart = end
		i = end - 1
	}
	if litStart < len(code) {
		toks = append(toks, TemplateToken{Text: code[litStart:]})
	}
	return toks
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// NodeConstructor returns a fresh node with no bindings.
type NodeConstructor func() Node

// Factory maps node type names to node constructors.
type Factory struct {
	ctors map[string]NodeConstructor
}

// NewFactory returns a factory with the [InlineCode] node registered.
func NewFactory() *Factory {
	f := &Factory{ctors: make(map[string]NodeConstructor)}
	f.Register(NodeInlineCode, NewInlineCode)
	return f
}

// Register adds a node type to the factory, replacing any existing constructor of the same name.
func (f *Factory) Register(name string, ctor NodeConstructor) {
	if name == "" || ctor == nil {
		panic("empty node type name or nil constructor")
	}
	f.ctors[name] = ctor
}

// Has reports whether a node type is registered.
func (f *Factory) Has(name string) bool {
	_, ok := f.ctors[name]
	return ok
}

// Names returns the registered node type names in lexical order.
func (f *Factory) Names() []string {
	names := make([]string, 0, len(f.ctors))
	for name := range f.ctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewNode returns a fresh node of the registered type.
func (f *Factory) NewNode(name string) (Node, error) {
	ctor, ok := f.ctors[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownNodeType, name)
	}
	n := ctor()
	if n == nil {
		return nil, fmt.Errorf("constructor for node type %q returned nil", name)
	}
	return n, nil
}
