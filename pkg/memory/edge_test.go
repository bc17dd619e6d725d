package memory

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEdge_ConnectAndDisconnect(t *testing.T) {
	c := New()
	objs := newObjs("owner", "a", "b")
	c.Track(objs[0])

	e := NewEdge(objs[0], objs[1])
	assert.Equal(t, []EventKind{EventConnect}, eventKinds(c))
	mustProcess(t, c)
	assert.Equal(t, ids(objs[1]), c.Edges(objs[0]))
	assert.Zero(t, c.RootCount(objs[1]), "edges never touch root counts")

	e.Set(objs[2])
	assert.Equal(t, []EventKind{EventDisconnect, EventConnect}, eventKinds(c))
	mustProcess(t, c)
	assert.Equal(t, ids(objs[2]), c.Edges(objs[0]))

	e.Release()
	e.Release()
	assert.Equal(t, []EventKind{EventDisconnect}, eventKinds(c))
	mustProcess(t, c)
	assert.Empty(t, c.Edges(objs[0]))
}

func TestEdge_OwnerIsFixed(t *testing.T) {
	c := New()
	objs := newObjs("p", "q", "x")
	c.Track(objs[0])
	c.Track(objs[1])

	ep := NewEdge(objs[0], objs[2])
	eq := NewNullEdge[*testObj](objs[1])
	eq.Assign(ep)
	mustProcess(t, c)

	assert.Equal(t, objs[0].ID(), ep.OwnerID())
	assert.Equal(t, objs[1].ID(), eq.OwnerID())
	assert.Equal(t, ids(objs[2]), c.Edges(objs[0]))
	assert.Equal(t, ids(objs[2]), c.Edges(objs[1]))
}

func TestEdge_EqualIgnoresOwner(t *testing.T) {
	c := New()
	objs := newObjs("p", "q", "x", "y")
	c.Track(objs[0])
	c.Track(objs[1])

	ep := NewEdge(objs[0], objs[2])
	eq := NewEdge(objs[1], objs[2])
	other := NewEdge(objs[1], objs[3])

	assert.True(t, ep.Equal(eq))
	assert.False(t, ep.Equal(other))
	assert.True(t, NewNullEdge[*testObj](objs[0]).Equal(nil))
}

func TestEdge_CompareSortsByTarget(t *testing.T) {
	c := New()
	objs := newObjs("owner", "a", "b", "c")
	for _, o := range objs {
		c.Track(o)
	}
	edges := []*Edge[*testObj]{
		NewEdge(objs[0], objs[3]),
		NewNullEdge[*testObj](objs[0]),
		NewEdge(objs[0], objs[1]),
		NewEdge(objs[0], objs[2]),
	}
	slices.SortFunc(edges, func(a, b *Edge[*testObj]) int { return a.Compare(b) })

	got := make([]NodeID, len(edges))
	for i, e := range edges {
		got[i] = e.ID()
	}
	assert.Equal(t, []NodeID{0, objs[1].ID(), objs[2].ID(), objs[3].ID()}, got)
}

func TestEdge_NilOwnerPanics(t *testing.T) {
	assert.Panics(t, func() { NewNullEdge[*testObj](nil) })
	var owner *testObj
	assert.Panics(t, func() { NewEdge(owner, &testObj{}) })
}

func TestEdge_RootPromotion(t *testing.T) {
	c := New()
	objs := newObjs("owner", "a")
	r := NewRoot(c, objs[0])
	link(objs[0], objs[1])
	mustProcess(t, c)

	promoted, err := objs[0].next.Root()
	require.NoError(t, err)
	mustProcess(t, c)
	assert.Equal(t, 1, promoted.ReferenceCount())

	// a outlives its owner through the promoted root.
	r.Release()
	mustCollect(t, c)
	assert.True(t, objs[0].Reclaimed())
	assert.False(t, objs[1].Reclaimed())
	assert.Same(t, objs[1], promoted.MustGet())

	null, err := NewNullEdge[*testObj](objs[1]).Root()
	require.NoError(t, err)
	assert.True(t, null.IsNil())
}

func TestEdge_DereferenceAfterReclaim(t *testing.T) {
	c := New()
	objs := newObjs("a", "b")
	ra := NewRoot(c, objs[0])
	link(objs[0], objs[1])
	link(objs[1], objs[0])
	stale := objs[0].next
	mustProcess(t, c)

	ra.Release()
	res := mustCollect(t, c)
	require.Equal(t, ids(objs[0], objs[1]), res.Reclaimed)

	_, err := stale.Get()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReclaimed))
	assert.Contains(t, err.Error(), "use-after-reclaim")

	_, err = stale.Root()
	assert.True(t, errors.Is(err, ErrReclaimed))

	// The owner is gone; releasing its edge queues nothing.
	stale.Release()
	assert.Zero(t, c.Pending())
}

func TestEdge_CycleWiredBeforeRooting(t *testing.T) {
	c := New()
	objs := newObjs("a", "b")
	ab := NewEdgeIn(c, objs[0], objs[1])
	ba := NewEdgeIn(c, objs[1], objs[0])

	assert.Same(t, c, objs[0].Collector())
	assert.Same(t, c, objs[1].Collector())

	r := NewRoot(c, objs[0])
	mustProcess(t, c)
	assert.Equal(t, ids(objs[1]), c.Edges(objs[0]))
	assert.Equal(t, ids(objs[0]), c.Edges(objs[1]))

	r.Release()
	res := mustCollect(t, c)
	assert.Equal(t, ids(objs...), res.Reclaimed)
	_, err := ab.Get()
	assert.ErrorIs(t, err, ErrReclaimed)
	_, err = ba.Get()
	assert.ErrorIs(t, err, ErrReclaimed)
}

func TestEdge_NullEdgeInBindsLater(t *testing.T) {
	c := New()
	objs := newObjs("owner", "a")
	e := NewNullEdgeIn[*testObj](c, objs[0])
	assert.Nil(t, objs[0].Collector())

	e.Set(objs[1])
	assert.Same(t, c, objs[0].Collector())
	assert.Equal(t, []EventKind{EventConnect}, eventKinds(c))

	null, err := NewNullEdgeIn[*testObj](c, objs[1]).Root()
	require.NoError(t, err)
	other := NewNullEdge[*testObj](objs[0])
	assert.Same(t, c, other.collector(nil))
	null.Set(objs[1])
	mustProcess(t, c)
	assert.Equal(t, 1, c.RootCount(objs[1]))
}
