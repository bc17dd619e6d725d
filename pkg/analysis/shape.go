// Package analysis classifies the shape of a collector's heap.
//
// A structure is a TREE when nothing in it is shared, a DAG when some node
// is reachable along two paths but no path leads back, and CYCLIC when it
// contains a cycle. Trees and DAGs are reclaimed as soon as their roots go
// away; cyclic structures always need a trial-deletion pass.
package analysis

import (
	"fmt"
	"strings"

	"cyclegc/pkg/memory"
)

// Shape represents the shape classification of a structure
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeTree          // No sharing, no cycles
	ShapeDAG           // Sharing but acyclic
	ShapeCyclic        // Contains at least one cycle
)

// ShapeJoin computes the join (least upper bound) of two shapes
// Shape lattice: TREE < DAG < CYCLIC
func ShapeJoin(a, b Shape) Shape {
	if a == ShapeCyclic || b == ShapeCyclic {
		return ShapeCyclic
	}
	if a == ShapeDAG || b == ShapeDAG {
		return ShapeDAG
	}
	if a == ShapeTree || b == ShapeTree {
		return ShapeTree
	}
	return ShapeUnknown
}

func (s Shape) String() string {
	switch s {
	case ShapeTree:
		return "TREE"
	case ShapeDAG:
		return "DAG"
	case ShapeCyclic:
		return "CYCLIC"
	default:
		return "UNKNOWN"
	}
}

// ParseShape accepts the names printed by String, in any case.
func ParseShape(name string) (Shape, error) {
	switch strings.ToUpper(name) {
	case "TREE":
		return ShapeTree, nil
	case "DAG":
		return ShapeDAG, nil
	case "CYCLIC":
		return ShapeCyclic, nil
	case "UNKNOWN":
		return ShapeUnknown, nil
	}
	return ShapeUnknown, fmt.Errorf("unknown shape %q", name)
}

// Strategy names how the collector reclaims a structure of this shape.
func (s Shape) Strategy() string {
	switch s {
	case ShapeTree, ShapeDAG:
		return "root release"
	case ShapeCyclic:
		return "trial deletion"
	default:
		return "none"
	}
}

// ShapeInfo holds the shape of the structure reachable from one node
type ShapeInfo struct {
	Root  memory.NodeID
	Shape Shape
	Nodes int // reachable nodes, Root included
}

// ShapeContext holds shape analysis state for one snapshot
type ShapeContext struct {
	edges  map[memory.NodeID][]memory.NodeID
	rooted []memory.NodeID
	shapes map[memory.NodeID]*ShapeInfo
}

// NewShapeContext creates a shape analysis context over a topology
// returned by Collector.Snapshot.
func NewShapeContext(snapshot []memory.NodeInfo) *ShapeContext {
	ctx := &ShapeContext{
		edges:  make(map[memory.NodeID][]memory.NodeID, len(snapshot)),
		shapes: make(map[memory.NodeID]*ShapeInfo),
	}
	for _, info := range snapshot {
		ctx.edges[info.ID] = info.Edges
		if info.RootCount > 0 {
			ctx.rooted = append(ctx.rooted, info.ID)
		}
	}
	return ctx
}

const (
	white = iota // not visited
	grey         // on the DFS path
	black        // finished
)

type shapeFrame struct {
	id  memory.NodeID
	pos int
}

// Analyze classifies the structure reachable from id. Results are cached.
func (ctx *ShapeContext) Analyze(id memory.NodeID) *ShapeInfo {
	if info, ok := ctx.shapes[id]; ok {
		return info
	}
	info := &ShapeInfo{Root: id}
	ctx.shapes[id] = info
	if _, ok := ctx.edges[id]; !ok {
		return info
	}

	info.Shape = ShapeTree
	color := map[memory.NodeID]int{id: grey}
	stack := []shapeFrame{{id: id}}
	info.Nodes = 1
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		targets := ctx.edges[top.id]
		if top.pos == len(targets) {
			color[top.id] = black
			stack = stack[:len(stack)-1]
			continue
		}
		next := targets[top.pos]
		top.pos++

		switch color[next] {
		case grey:
			info.Shape = ShapeCyclic
		case black:
			info.Shape = ShapeJoin(info.Shape, ShapeDAG)
		default:
			color[next] = grey
			info.Nodes++
			stack = append(stack, shapeFrame{id: next})
		}
	}
	return info
}

// Roots returns the shape of every rooted node's structure, in ID order.
func (ctx *ShapeContext) Roots() []*ShapeInfo {
	out := make([]*ShapeInfo, 0, len(ctx.rooted))
	for _, id := range ctx.rooted {
		out = append(out, ctx.Analyze(id))
	}
	return out
}

// HeapShape joins the shapes of all rooted structures. Two roots reaching
// the same node make the heap a DAG even when each structure is a tree.
func (ctx *ShapeContext) HeapShape() Shape {
	result := ShapeUnknown
	seen := make(map[memory.NodeID]memory.NodeID)
	for _, info := range ctx.Roots() {
		result = ShapeJoin(result, info.Shape)
		for id := range ctx.reachable(info.Root) {
			if owner, ok := seen[id]; ok && owner != info.Root {
				result = ShapeJoin(result, ShapeDAG)
			}
			seen[id] = info.Root
		}
	}
	return result
}

func (ctx *ShapeContext) reachable(id memory.NodeID) map[memory.NodeID]bool {
	out := map[memory.NodeID]bool{id: true}
	work := []memory.NodeID{id}
	for len(work) > 0 {
		n := work[len(work)-1]
		work = work[:len(work)-1]
		for _, t := range ctx.edges[n] {
			if !out[t] {
				out[t] = true
				work = append(work, t)
			}
		}
	}
	return out
}
