package memory

// Root is a rooted pointer: an ownership handle held by code outside the
// managed graph. Every non-null Root contributes exactly one unit to its
// target's root count. All changes are expressed as AddRoot/RemoveRoot
// events; nothing is applied until the collector processes its queue.
//
// A Root is not safe for concurrent mutation. The zero value is a null
// handle bound to the target's collector on first Set.
type Root[T Collectable] struct {
	c      *Collector
	target T
	node   *Node
	gen    Generation
}

// NewRoot returns a handle to target, queueing AddRoot when target is
// non-nil. A nil c uses the target's collector, or Default.
func NewRoot[T Collectable](c *Collector, target T) *Root[T] {
	r := &Root[T]{c: c}
	r.bind(target)
	return r
}

// NewNullRoot returns a null handle that will bind to c.
func NewNullRoot[T Collectable](c *Collector) *Root[T] {
	return &Root[T]{c: c}
}

func (r *Root[T]) collector(n *Node) *Collector {
	if r.c == nil {
		if c := collectorOf(n); c != nil {
			r.c = c
		} else {
			r.c = Default()
		}
	}
	return r.c
}

// bind assumes r is null.
func (r *Root[T]) bind(target T) {
	n := nodeOf(target)
	if n == nil {
		return
	}
	r.collector(n).addRoot(n, target)
	r.target = target
	r.node = n
	r.gen = n.Generation()
}

func (r *Root[T]) unbind() {
	if r.node == nil {
		return
	}
	r.collector(r.node).removeRoot(r.node)
	var zero T
	r.target = zero
	r.node = nil
	r.gen = 0
}

// retarget is the copy-assign discipline: nothing happens when the node does
// not change, otherwise RemoveRoot(old) is queued before AddRoot(new).
func (r *Root[T]) retarget(target T) {
	if nodeOf(target) == r.node {
		return
	}
	r.unbind()
	r.bind(target)
}

// Clone returns a new handle to the same target.
func (r *Root[T]) Clone() *Root[T] {
	return NewRoot(r.c, r.target)
}

// Assign makes r point where other points. A nil other is a null handle.
func (r *Root[T]) Assign(other *Root[T]) {
	var target T
	if other != nil {
		target = other.target
	}
	r.retarget(target)
}

// Set points r at target.
func (r *Root[T]) Set(target T) {
	r.retarget(target)
}

// Get dereferences the handle.
func (r *Root[T]) Get() (T, error) {
	var zero T
	if r == nil || r.node == nil {
		return zero, ErrNullDereference
	}
	if err := checkGeneration(r.node, r.gen); err != nil {
		return zero, err
	}
	return r.target, nil
}

// MustGet dereferences or panics
func (r *Root[T]) MustGet() T {
	v, err := r.Get()
	if err != nil {
		panic(err)
	}
	return v
}

// Pointer returns the raw target without any checks.
func (r *Root[T]) Pointer() T {
	return r.target
}

// IsNil reports whether the handle is null. Safe on a nil *Root.
func (r *Root[T]) IsNil() bool {
	return r == nil || r.node == nil
}

// ID returns the target's NodeID, 0 when null.
func (r *Root[T]) ID() NodeID {
	if r == nil {
		return 0
	}
	return idOf(r.node)
}

// ReferenceCount returns the target's root count as of the last
// ProcessEvents, 0 when null.
func (r *Root[T]) ReferenceCount() int {
	if r.IsNil() {
		return 0
	}
	return r.collector(r.node).rootCount(r.node)
}

// Equal reports whether both handles reference the same node.
func (r *Root[T]) Equal(other *Root[T]) bool {
	var a, b *Node
	if r != nil {
		a = r.node
	}
	if other != nil {
		b = other.node
	}
	return a == b
}

// Detach releases the root support but keeps the handle usable. Calling it
// on a null handle does nothing.
func (r *Root[T]) Detach() {
	r.unbind()
}

// Release destroys the handle. It is idempotent, so it can be deferred and
// still called early.
func (r *Root[T]) Release() {
	if r == nil {
		return
	}
	r.unbind()
}
