package graph

import (
	"sort"

	"github.com/diversitus/infra/resource"
	"github.com/diversitus/infra/suggest"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/graph/simple"
)

// A Resource is a resource declaration: a resource spec and the expressions
// for its inputs.
type Resource struct {
	resource.Spec
	Inputs Inputs
}

// Declare creates a resource declaration.
func Declare(kind resource.Kind, name string, inputs Inputs) Resource {
	return Resource{
		Spec:   resource.Spec{Kind: kind, Name: name},
		Inputs: inputs,
	}
}

// A Graph is an immutable directed acyclic graph of resources. An edge from A
// to B means B has an input that refers to an output of A.
//
// A Graph must be created with Build.
type Graph struct {
	resources []*Resource
	nodes     map[string]*node
	g         *simple.DirectedGraph
	order     []string
}

type node struct {
	id  int64
	res *Resource
}

func (n *node) ID() int64 { return n.id }

// Build constructs a graph from resource declarations.
//
// Every reference in the inputs is resolved into a dependency edge pointing
// at the referenced resource. Build fails with
//
//   - *DuplicateNameError if two resources share a name,
//   - *UnknownReferenceError if a reference names a resource that was not
//     declared,
//   - *CycleError if the dependencies contain a cycle.
//
// No external calls are made. The input slice is not modified.
func Build(decls []Resource) (*Graph, error) {
	g := &Graph{
		resources: make([]*Resource, len(decls)),
		nodes:     make(map[string]*node, len(decls)),
		g:         simple.NewDirectedGraph(),
	}

	names := make([]string, 0, len(decls))
	for i, d := range decls {
		if d.Name == "" {
			return nil, errors.Errorf("resource %d (%s) has no name", i, d.Kind)
		}
		if _, ok := g.nodes[d.Name]; ok {
			return nil, &DuplicateNameError{Name: d.Name}
		}
		res := &Resource{
			Spec:   resource.Spec{Kind: d.Kind, Name: d.Name},
			Inputs: make(Inputs, len(d.Inputs)),
		}
		for k, v := range d.Inputs {
			res.Inputs[k] = v
		}
		n := &node{id: int64(i), res: res}
		g.resources[i] = res
		g.nodes[d.Name] = n
		names = append(names, d.Name)
	}

	for _, res := range g.resources {
		seen := make(map[string]bool)
		for _, input := range res.Inputs.Names() {
			for _, ref := range res.Inputs[input].References() {
				if _, ok := g.nodes[ref.Resource]; !ok {
					return nil, &UnknownReferenceError{
						Resource:   res.Name,
						Input:      input,
						Reference:  ref,
						Suggestion: suggest.String(ref.Resource, names),
					}
				}
				if seen[ref.Resource] {
					continue
				}
				seen[ref.Resource] = true
				res.DependsOn = append(res.DependsOn, ref.Resource)
			}
		}
		// Declaration order.
		sort.Slice(res.DependsOn, func(i, j int) bool {
			return g.nodes[res.DependsOn[i]].id < g.nodes[res.DependsOn[j]].id
		})
	}

	if err := g.detectCycles(); err != nil {
		return nil, err
	}

	for _, res := range g.resources {
		g.g.AddNode(g.nodes[res.Name])
	}
	for _, res := range g.resources {
		to := g.nodes[res.Name]
		for _, dep := range res.DependsOn {
			g.g.SetEdge(g.g.NewEdge(g.nodes[dep], to))
		}
	}

	g.order = g.sort()

	return g, nil
}

// sort returns the resource names in topological order. Among the resources
// whose dependencies are all satisfied, the one declared first is picked.
func (g *Graph) sort() []string {
	indegree := make([]int, len(g.resources))
	for i, res := range g.resources {
		indegree[i] = len(res.DependsOn)
	}
	done := make([]bool, len(g.resources))
	order := make([]string, 0, len(g.resources))
	for len(order) < len(g.resources) {
		next := -1
		for i := range g.resources {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			// Cycles are rejected before sorting.
			panic("graph: no resource ready")
		}
		done[next] = true
		order = append(order, g.resources[next].Name)
		it := g.g.From(int64(next))
		for it.Next() {
			indegree[it.Node().ID()]--
		}
	}
	return order
}

// detectCycles checks for circular dependencies using a depth-first traversal
// with a recursion stack.
func (g *Graph) detectCycles() error {
	visiting := make(map[string]bool)
	visited := make(map[string]bool)
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		visiting[name] = true
		stack = append(stack, name)
		for _, dep := range g.nodes[name].res.DependsOn {
			if visiting[dep] {
				start := 0
				for i, s := range stack {
					if s == dep {
						start = i
						break
					}
				}
				path := append([]string{}, stack[start:]...)
				return &CycleError{Path: append(path, dep)}
			}
			if !visited[dep] {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		delete(visiting, name)
		visited[name] = true
		return nil
	}

	for _, res := range g.resources {
		if !visited[res.Name] {
			if err := visit(res.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

// Len returns the number of resources in the graph.
func (g *Graph) Len() int { return len(g.resources) }

// Resources returns all resources in declaration order. The returned
// resources must not be modified.
func (g *Graph) Resources() []*Resource {
	out := make([]*Resource, len(g.resources))
	copy(out, g.resources)
	return out
}

// Resource returns a resource by name. The returned resource must not be
// modified.
func (g *Graph) Resource(name string) (*Resource, bool) {
	n, ok := g.nodes[name]
	if !ok {
		return nil, false
	}
	return n.res, true
}

// Order returns the resource names in topological order: every resource
// appears after all resources it depends on. Ties are broken by declaration
// order, so the order is deterministic.
func (g *Graph) Order() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Dependencies returns the names of the resources the given resource depends
// on, in declaration order. Returns nil if the resource does not exist.
func (g *Graph) Dependencies(name string) []string {
	n, ok := g.nodes[name]
	if !ok {
		return nil
	}
	return append([]string(nil), n.res.DependsOn...)
}

// Dependents returns the names of the resources that depend on the given
// resource, in declaration order. Returns nil if the resource does not exist.
func (g *Graph) Dependents(name string) []string {
	n, ok := g.nodes[name]
	if !ok {
		return nil
	}
	var ids []int64
	it := g.g.From(n.ID())
	for it.Next() {
		ids = append(ids, it.Node().ID())
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = g.resources[id].Name
	}
	return out
}
