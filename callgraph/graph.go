// Package callgraph defines the call graph of an analysed program and the
// class hierarchy (CHA) and rapid type (RTA) algorithms used to seed the
// points-to analysis.
package callgraph

import (
	"fmt"
	"strings"

	"github.com/BarrensZeppelin/jvmpointer/ir"
	ybgraph "github.com/yourbasic/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Edge is a call from a call site in Caller to Callee. Site is nil for the
// synthetic edges from the root to the entry points.
type Edge struct {
	Caller *Node
	Site   ir.Stmt
	Callee *Node
}

func (e Edge) String() string {
	return fmt.Sprintf("%v --%v--> %v", e.Caller, e.Site, e.Callee)
}

type Node struct {
	Method *ir.Method
	// Dense identifier of the node in the graph (0 is the root).
	ID  int
	In  []*Edge
	Out []*Edge
}

func (n *Node) String() string {
	if n.Method == nil {
		return "<root>"
	}
	return n.Method.String()
}

type edgeKey struct {
	caller *ir.Method
	site   ir.Stmt
	callee *ir.Method
}

// Graph is a call graph. Nodes and edges are only ever added; adding an
// existing edge is a no-op.
type Graph struct {
	// Root is a synthetic node calling every entry point.
	Root  *Node
	Nodes map[*ir.Method]*Node

	order   []*Node
	edges   map[edgeKey]*Edge
	targets map[ir.Stmt][]*ir.Method
}

func New() *Graph {
	g := &Graph{
		Nodes:   make(map[*ir.Method]*Node),
		edges:   make(map[edgeKey]*Edge),
		targets: make(map[ir.Stmt][]*ir.Method),
	}
	g.Root = &Node{ID: 0}
	g.order = append(g.order, g.Root)
	return g
}

// CreateNode returns the node for a method, creating it if necessary.
func (g *Graph) CreateNode(m *ir.Method) *Node {
	if n, found := g.Nodes[m]; found {
		return n
	}
	n := &Node{Method: m, ID: len(g.order)}
	g.Nodes[m] = n
	g.order = append(g.order, n)
	return n
}

// AddRoot marks a method as an entry point.
func (g *Graph) AddRoot(m *ir.Method) bool {
	callee := g.CreateNode(m)
	key := edgeKey{nil, nil, m}
	if _, found := g.edges[key]; found {
		return false
	}
	e := &Edge{g.Root, nil, callee}
	g.edges[key] = e
	g.Root.Out = append(g.Root.Out, e)
	callee.In = append(callee.In, e)
	return true
}

// AddEdge adds a call edge and reports whether it is new.
func (g *Graph) AddEdge(caller *ir.Method, site ir.Stmt, callee *ir.Method) bool {
	key := edgeKey{caller, site, callee}
	if _, found := g.edges[key]; found {
		return false
	}

	cn, ce := g.CreateNode(caller), g.CreateNode(callee)
	e := &Edge{cn, site, ce}
	g.edges[key] = e
	cn.Out = append(cn.Out, e)
	ce.In = append(ce.In, e)
	g.targets[site] = append(g.targets[site], callee)
	return true
}

// Roots returns the entry points of the graph.
func (g *Graph) Roots() []*ir.Method {
	res := make([]*ir.Method, len(g.Root.Out))
	for i, e := range g.Root.Out {
		res[i] = e.Callee.Method
	}
	return res
}

func (g *Graph) ContainsMethod(m *ir.Method) bool {
	_, found := g.Nodes[m]
	return found
}

// ContainsCall reports whether some call site in caller calls callee.
func (g *Graph) ContainsCall(caller, callee *ir.Method) bool {
	n := g.Nodes[caller]
	if n == nil {
		return false
	}
	for _, e := range n.Out {
		if e.Callee.Method == callee {
			return true
		}
	}
	return false
}

// CallsFrom returns the distinct methods called from m.
func (g *Graph) CallsFrom(m *ir.Method) []*ir.Method {
	n := g.Nodes[m]
	if n == nil {
		return nil
	}
	return distinct(n.Out, func(e *Edge) *Node { return e.Callee })
}

// CallsTo returns the distinct methods calling m. The root is not included.
func (g *Graph) CallsTo(m *ir.Method) []*ir.Method {
	n := g.Nodes[m]
	if n == nil {
		return nil
	}
	return distinct(n.In, func(e *Edge) *Node { return e.Caller })
}

func distinct(edges []*Edge, end func(*Edge) *Node) []*ir.Method {
	seen := make(map[*ir.Method]bool, len(edges))
	var res []*ir.Method
	for _, e := range edges {
		if m := end(e).Method; m != nil && !seen[m] {
			seen[m] = true
			res = append(res, m)
		}
	}
	return res
}

// Targets returns the methods invoked by a call site.
func (g *Graph) Targets(site ir.Stmt) []*ir.Method { return g.targets[site] }

// Methods returns every method in the graph in insertion order.
func (g *Graph) Methods() []*ir.Method {
	res := make([]*ir.Method, 0, len(g.Nodes))
	for _, n := range g.order[1:] {
		res = append(res, n.Method)
	}
	return res
}

// Edges returns every edge in the graph, including root edges, grouped by
// caller in insertion order.
func (g *Graph) Edges() []*Edge {
	res := make([]*Edge, 0, len(g.edges))
	for _, n := range g.order {
		res = append(res, n.Out...)
	}
	return res
}

func (g *Graph) NumEdges() int { return len(g.edges) }

// Directed exports the graph, without the root, as a gonum directed graph
// whose node IDs are the IDs of the call graph nodes.
func (g *Graph) Directed() *simple.DirectedGraph {
	dg := simple.NewDirectedGraph()
	for _, n := range g.order[1:] {
		dg.AddNode(simple.Node(n.ID))
	}
	for _, n := range g.order[1:] {
		for _, e := range n.Out {
			if e.Caller.ID != e.Callee.ID && !dg.HasEdgeFromTo(int64(e.Caller.ID), int64(e.Callee.ID)) {
				dg.SetEdge(simple.Edge{F: simple.Node(e.Caller.ID), T: simple.Node(e.Callee.ID)})
			}
		}
	}
	return dg
}

// Reachable reports whether there is a (possibly empty) call path from one
// method to another.
func (g *Graph) Reachable(from, to *ir.Method) bool {
	fn, tn := g.Nodes[from], g.Nodes[to]
	if fn == nil || tn == nil {
		return false
	}
	dg := g.Directed()
	return topo.PathExistsIn(dg, dg.Node(int64(fn.ID)), dg.Node(int64(tn.ID)))
}

// BottomUp returns the methods of the graph grouped into strongly connected
// components, callees before their callers.
func (g *Graph) BottomUp() [][]*ir.Method {
	var res [][]*ir.Method
	for _, comp := range topo.TarjanSCC(g.Directed()) {
		ms := make([]*ir.Method, len(comp))
		for i, n := range comp {
			ms[i] = g.order[n.ID()].Method
		}
		res = append(res, ms)
	}
	return res
}

// RecursiveComponents returns the strongly connected components of the
// graph that contain a cycle, i.e. groups of mutually recursive methods.
func (g *Graph) RecursiveComponents() [][]*ir.Method {
	yg := ybgraph.New(len(g.order))
	selfLoop := make(map[int]bool)
	for _, n := range g.order[1:] {
		for _, e := range n.Out {
			yg.Add(n.ID, e.Callee.ID)
			if e.Callee == n {
				selfLoop[n.ID] = true
			}
		}
	}

	var res [][]*ir.Method
	for _, comp := range ybgraph.StrongComponents(yg) {
		if len(comp) == 1 && !selfLoop[comp[0]] {
			continue
		}
		ms := make([]*ir.Method, len(comp))
		for i, id := range comp {
			ms[i] = g.order[id].Method
		}
		res = append(res, ms)
	}
	return res
}

// String renders the edges of the graph, one per line.
func (g *Graph) String() string {
	var sb strings.Builder
	for _, e := range g.Edges() {
		fmt.Fprintln(&sb, e)
	}
	return sb.String()
}
