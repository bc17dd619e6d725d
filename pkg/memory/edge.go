package memory

import "cmp"

// Edge is an internal edge pointer: a reference held by a collectable owner
// to another collectable. Edges never touch root counts; creating,
// retargeting or releasing one queues Connect/Disconnect events for
// owner -> target. The owner is fixed at construction.
//
// Once the owner has been reclaimed an Edge still updates its local target
// but queues nothing: the collector already dropped the owner's edges.
type Edge[T Collectable] struct {
	c        *Collector
	owner    *Node
	ownerObj Collectable
	target   T
	node     *Node
	gen      Generation
}

// NewEdge returns an edge from owner to target, queueing Connect when target
// is non-nil. An owner that is not yet tracked is bound to the target's
// collector, or to Default when neither is tracked; use NewEdgeIn to wire a
// fresh subgraph into a specific collector.
func NewEdge[T Collectable](owner Collectable, target T) *Edge[T] {
	return NewEdgeIn(nil, owner, target)
}

// NewEdgeIn is NewEdge with an explicit collector. A nil c falls back to the
// owner's collector, then the target's, then Default.
func NewEdgeIn[T Collectable](c *Collector, owner Collectable, target T) *Edge[T] {
	e := NewNullEdgeIn[T](c, owner)
	e.bind(target)
	return e
}

// NewNullEdge returns a null edge owned by owner.
func NewNullEdge[T Collectable](owner Collectable) *Edge[T] {
	return NewNullEdgeIn[T](nil, owner)
}

// NewNullEdgeIn returns a null edge owned by owner that will bind to c.
func NewNullEdgeIn[T Collectable](c *Collector, owner Collectable) *Edge[T] {
	on := nodeOf(owner)
	if on == nil {
		panic("memory: edge owner must not be nil")
	}
	return &Edge[T]{c: c, owner: on, ownerObj: owner}
}

func (e *Edge[T]) collector(target *Node) *Collector {
	if e.c != nil {
		return e.c
	}
	if c := collectorOf(e.owner); c != nil {
		return c
	}
	if c := collectorOf(target); c != nil {
		return c
	}
	return Default()
}

func (e *Edge[T]) bind(target T) {
	n := nodeOf(target)
	if n == nil {
		return
	}
	e.collector(n).addEdge(e.owner, e.ownerObj, n, target)
	e.target = target
	e.node = n
	e.gen = n.Generation()
}

func (e *Edge[T]) unbind() {
	if e.node == nil {
		return
	}
	e.collector(e.node).removeEdge(e.owner, e.node)
	var zero T
	e.target = zero
	e.node = nil
	e.gen = 0
}

func (e *Edge[T]) retarget(target T) {
	if nodeOf(target) == e.node {
		return
	}
	e.unbind()
	e.bind(target)
}

// Assign copies other's target; e keeps its own owner.
func (e *Edge[T]) Assign(other *Edge[T]) {
	var target T
	if other != nil {
		target = other.target
	}
	e.retarget(target)
}

// Set points the edge at target.
func (e *Edge[T]) Set(target T) {
	e.retarget(target)
}

// Get dereferences the edge.
func (e *Edge[T]) Get() (T, error) {
	var zero T
	if e == nil || e.node == nil {
		return zero, ErrNullDereference
	}
	if err := checkGeneration(e.node, e.gen); err != nil {
		return zero, err
	}
	return e.target, nil
}

// MustGet dereferences or panics
func (e *Edge[T]) MustGet() T {
	v, err := e.Get()
	if err != nil {
		panic(err)
	}
	return v
}

// Pointer returns the raw target without any checks.
func (e *Edge[T]) Pointer() T {
	return e.target
}

// IsNil reports whether the edge is null. Safe on a nil *Edge.
func (e *Edge[T]) IsNil() bool {
	return e == nil || e.node == nil
}

// ID returns the target's NodeID, 0 when null.
func (e *Edge[T]) ID() NodeID {
	if e == nil {
		return 0
	}
	return idOf(e.node)
}

// OwnerID returns the owner's NodeID, 0 while the owner is untracked.
func (e *Edge[T]) OwnerID() NodeID {
	return e.owner.ID()
}

// Equal compares targets only.
func (e *Edge[T]) Equal(other *Edge[T]) bool {
	return e.targetNode() == other.targetNode()
}

func (e *Edge[T]) targetNode() *Node {
	if e == nil {
		return nil
	}
	return e.node
}

// Compare orders edges by target ID, null first. The owner is ignored, so
// edges can be sorted or keyed by the node they reference.
func (e *Edge[T]) Compare(other *Edge[T]) int {
	return cmp.Compare(e.ID(), other.ID())
}

// Root manufactures a rooted pointer to the edge's target, for handing the
// object to code outside the graph. A null edge yields a null root.
func (e *Edge[T]) Root() (*Root[T], error) {
	if e.IsNil() {
		return NewNullRoot[T](e.collector(nil)), nil
	}
	if err := checkGeneration(e.node, e.gen); err != nil {
		return nil, err
	}
	return NewRoot(collectorOf(e.node), e.target), nil
}

// Detach drops the edge but keeps the handle usable.
func (e *Edge[T]) Detach() {
	e.unbind()
}

// Release destroys the edge. It is idempotent.
func (e *Edge[T]) Release() {
	if e == nil {
		return
	}
	e.unbind()
}
