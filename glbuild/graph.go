package glbuild

import (
	"fmt"
)

// Graph is the ordered set of nodes of a single shader stage.
type Graph struct {
	nodes []Node
}

// Add appends a node to the graph. Construction order is the preferred
// execution order of nodes.
func (g *Graph) Add(n Node) {
	if n == nil {
		panic("nil node")
	}
	g.nodes = append(g.nodes, n)
}

// Nodes returns the nodes in construction order.
func (g *Graph) Nodes() []Node { return g.nodes }

// Len returns the amount of nodes in the graph.
func (g *Graph) Len() int { return len(g.nodes) }

// Sort validates all nodes against reg and returns them in execution order.
// Each node executes after the nodes writing the variables it reads. Ties are
// broken by construction order so an already well ordered graph is returned unchanged.
func (g *Graph) Sort(reg *Registry) ([]Node, error) {
	n := len(g.nodes)
	writers := make(map[*Variable][]int)
	readers := make(map[*Variable][]int)
	for i, node := range g.nodes {
		err := node.Validate()
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", nodeLabel(node, i), err)
		}
		for _, s := range node.Outputs() {
			if !reg.Contains(s.Var) {
				return nil, fmt.Errorf("%w: node %s output %q variable %q not in registry", ErrUnresolvedInput, nodeLabel(node, i), s.Name, s.Var.name)
			}
			writers[s.Var] = append(writers[s.Var], i)
		}
		for _, s := range node.Inputs() {
			if !reg.Contains(s.Var) {
				return nil, fmt.Errorf("%w: node %s input %q variable %q not in registry", ErrUnresolvedInput, nodeLabel(node, i), s.Name, s.Var.name)
			}
			readers[s.Var] = append(readers[s.Var], i)
		}
	}

	deps := make([]map[int]struct{}, n)
	addDep := func(node, dependsOn int) {
		if node == dependsOn {
			return
		}
		if deps[node] == nil {
			deps[node] = make(map[int]struct{})
		}
		deps[node][dependsOn] = struct{}{}
	}
	for i, node := range g.nodes {
		for _, s := range node.Inputs() {
			w := writers[s.Var]
			if len(w) == 0 {
				if s.Var.role == RoleLocal {
					return nil, fmt.Errorf("%w: node %s input %q reads %q which no node writes", ErrUnresolvedInput, nodeLabel(node, i), s.Name, s.Var.name)
				}
				continue
			}
			addDep(i, closestPreceding(w, i))
		}
		for _, s := range node.Outputs() {
			if prev := lastBefore(writers[s.Var], i); prev >= 0 {
				addDep(i, prev)
			}
			// Readers of a value written before this node must run before it overwrites the value.
			for _, r := range readers[s.Var] {
				if r != i && closestPreceding(writers[s.Var], r) < i {
					addDep(i, r)
				}
			}
		}
	}

	// Kahn's algorithm always picking the earliest constructed ready node.
	indeg := make([]int, n)
	dependents := make([][]int, n)
	for i := range deps {
		indeg[i] = len(deps[i])
		for d := range deps[i] {
			dependents[d] = append(dependents[d], i)
		}
	}
	done := make([]bool, n)
	sorted := make([]Node, 0, n)
	for len(sorted) < n {
		next := -1
		for i := 0; i < n; i++ {
			if !done[i] && indeg[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			for i := 0; i < n; i++ {
				if !done[i] {
					return nil, fmt.Errorf("%w: involving node %s", ErrCycle, nodeLabel(g.nodes[i], i))
				}
			}
		}
		done[next] = true
		sorted = append(sorted, g.nodes[next])
		for _, d := range dependents[next] {
			indeg[d]--
		}
	}
	return sorted, nil
}

// closestPreceding returns the last writer before node i or the first writer
// when all writers are constructed after i.
func closestPreceding(writers []int, i int) int {
	if prev := lastBefore(writers, i); prev >= 0 {
		return prev
	}
	for _, w := range writers {
		if w != i {
			return w
		}
	}
	return i
}

func lastBefore(indices []int, i int) int {
	last := -1
	for _, idx := range indices {
		if idx < i {
			last = idx
		}
	}
	return last
}

func nodeLabel(n Node, idx int) string {
	return fmt.Sprintf("%s#%d", n.NodeType(), idx)
}
