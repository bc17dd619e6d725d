package memory

import (
	"reflect"
	"sync/atomic"
)

// Collectable Nodes
//
// A host type takes part in the managed graph by embedding Node:
//
//	type Buffer struct {
//	    memory.Node
//	    next *memory.Edge[*Buffer]
//	}
//
// All bookkeeping lives in Node and is only ever mutated by the Collector
// while it applies events. Host code never writes these fields.

// NodeID identifies a node within one collector. IDs are assigned in
// tracking order and never reused.
type NodeID uint64

// Collectable is implemented by every type that embeds Node.
type Collectable interface {
	gcNode() *Node
}

// Finalizer is an optional interface. Finalize runs exactly once, after the
// collector decided the object is garbage and detached it from the graph.
type Finalizer interface {
	Finalize()
}

// Node is the bookkeeping embedded in every collectable object.
// A Node must not be copied after it has been tracked.
type Node struct {
	id        atomic.Uint64 // NodeID, published before collector
	collector atomic.Pointer[Collector]
	self      Collectable

	edges     map[*Node]struct{} // outgoing edges owned by this node
	referrers map[*Node]struct{} // owners holding an edge to this node
	rootCount int
	sequence  uint64 // pass that last marked this node

	generation atomic.Uint64
	reclaimed  atomic.Bool
}

func (n *Node) gcNode() *Node { return n }

// ID returns the node's identifier, or 0 if it was never tracked.
func (n *Node) ID() NodeID { return NodeID(n.id.Load()) }

// Reclaimed reports whether the collector has reclaimed this node.
func (n *Node) Reclaimed() bool { return n.reclaimed.Load() }

// Collector returns the collector the node is bound to, or nil.
func (n *Node) Collector() *Collector { return n.collector.Load() }

func collectorOf(n *Node) *Collector {
	if n == nil {
		return nil
	}
	return n.collector.Load()
}

// nodeOf returns the Node embedded in obj, or nil when obj is nil or a
// typed nil pointer.
func nodeOf(obj Collectable) *Node {
	if obj == nil {
		return nil
	}
	v := reflect.ValueOf(obj)
	if v.Kind() == reflect.Pointer && v.IsNil() {
		return nil
	}
	return obj.gcNode()
}

func (n *Node) addEdge(target *Node) bool {
	if _, ok := n.edges[target]; ok {
		return false
	}
	if n.edges == nil {
		n.edges = make(map[*Node]struct{})
	}
	n.edges[target] = struct{}{}
	if target.referrers == nil {
		target.referrers = make(map[*Node]struct{})
	}
	target.referrers[n] = struct{}{}
	return true
}

func (n *Node) removeEdge(target *Node) bool {
	if _, ok := n.edges[target]; !ok {
		return false
	}
	delete(n.edges, target)
	delete(target.referrers, n)
	return true
}

// clearEdges drops every outgoing edge, keeping the referrer sets of the
// targets consistent.
func (n *Node) clearEdges() int {
	count := len(n.edges)
	for target := range n.edges {
		delete(target.referrers, n)
	}
	n.edges = nil
	return count
}
