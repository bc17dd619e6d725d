package memory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// testObj is the host type used across the package tests.
type testObj struct {
	Node
	name      string
	next      *Edge[*testObj]
	finalized int
	onFinal   func()
}

func (o *testObj) Finalize() {
	o.finalized++
	if o.onFinal != nil {
		o.onFinal()
	}
}

// testNode returns an unbound node carrying id, for graphs built without
// a collector.
func testNode(id NodeID) *Node {
	n := &Node{}
	n.id.Store(uint64(id))
	return n
}

func newObjs(names ...string) []*testObj {
	objs := make([]*testObj, len(names))
	for i, name := range names {
		objs[i] = &testObj{name: name}
	}
	return objs
}

// link sets o.next, creating the edge on first use.
func link(o, target *testObj) {
	if o.next == nil {
		o.next = NewEdge(o, target)
		return
	}
	o.next.Set(target)
}

func mustProcess(t *testing.T, c *Collector) int {
	t.Helper()
	n, err := c.ProcessEvents()
	require.NoError(t, err)
	return n
}

func mustCollect(t *testing.T, c *Collector) *Result {
	t.Helper()
	res, err := c.Collect()
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func ids(objs ...*testObj) []NodeID {
	out := make([]NodeID, len(objs))
	for i, o := range objs {
		out[i] = o.ID()
	}
	return out
}

func eventKinds(c *Collector) []EventKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	kinds := make([]EventKind, len(c.events))
	for i, ev := range c.events {
		kinds[i] = ev.Kind
	}
	return kinds
}
