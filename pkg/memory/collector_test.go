package memory

import (
	"bytes"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RefcountAccuracy(t *testing.T) {
	c := New()
	a := &testObj{name: "a"}

	var roots []*Root[*testObj]
	for i := 0; i < 5; i++ {
		roots = append(roots, NewRoot(c, a))
		mustProcess(t, c)
		assert.Equal(t, len(roots), c.RootCount(a))
	}

	clone := roots[0].Clone()
	mustProcess(t, c)
	assert.Equal(t, 6, clone.ReferenceCount())

	for len(roots) > 0 {
		roots[0].Release()
		roots = roots[1:]
		mustProcess(t, c)
		assert.Equal(t, len(roots)+1, c.RootCount(a))
	}

	clone.Release()
	mustProcess(t, c)
	assert.Equal(t, 0, c.RootCount(a))
	assert.Equal(t, 0, clone.ReferenceCount())
}

func TestCollector_CountLagsUntilProcessed(t *testing.T) {
	c := New()
	a := &testObj{name: "a"}

	r := NewRoot(c, a)
	assert.Equal(t, 1, c.Pending())
	assert.Equal(t, 0, r.ReferenceCount(), "count must not change before ProcessEvents")

	assert.Equal(t, 1, mustProcess(t, c))
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, 1, r.ReferenceCount())
}

func TestCollector_CycleReclamation(t *testing.T) {
	c := New()
	objs := newObjs("a", "b")
	a, b := objs[0], objs[1]

	ra := NewRoot(c, a)
	link(a, b)
	link(b, a)
	ra.Release()

	res := mustCollect(t, c)
	assert.ElementsMatch(t, ids(a, b), res.Reclaimed)
	assert.Equal(t, [][]NodeID{ids(a, b)}, res.Cycles)
	assert.True(t, a.Reclaimed())
	assert.True(t, b.Reclaimed())
	assert.Equal(t, 1, a.finalized)
	assert.Equal(t, 1, b.finalized)
	assert.Equal(t, 0, c.Len())

	// A second pass must not finalize again.
	res = mustCollect(t, c)
	assert.Empty(t, res.Reclaimed)
	assert.Equal(t, 1, a.finalized)
}

func TestCollector_PartialCycleWithExternalSupport(t *testing.T) {
	c := New()
	objs := newObjs("a", "b")
	a, b := objs[0], objs[1]

	ra := NewRoot(c, a)
	link(a, b)
	link(b, a)

	res := mustCollect(t, c)
	assert.Empty(t, res.Reclaimed)
	assert.Equal(t, 1, res.Candidates, "only b has no root")
	assert.Equal(t, 1, res.Live)
	assert.False(t, a.Reclaimed())
	assert.False(t, b.Reclaimed())

	got, err := ra.Get()
	require.NoError(t, err)
	assert.Same(t, a, got)
	assert.Same(t, b, a.next.MustGet())
}

func TestCollector_NoPrematureCollection(t *testing.T) {
	c := New()
	objs := newObjs("r", "a", "b", "c", "d")
	r, a, b, cc, d := objs[0], objs[1], objs[2], objs[3], objs[4]

	root := NewRoot(c, r)
	link(r, a)
	link(a, b)
	link(b, cc)
	link(cc, a) // cycle a -> b -> c -> a hanging off r
	extra := NewEdge(b, d)

	res := mustCollect(t, c)
	assert.Empty(t, res.Reclaimed)
	assert.Equal(t, 4, res.Live)

	// Cut r -> a: the whole cycle and d become garbage, r stays.
	r.next.Detach()
	res = mustCollect(t, c)
	assert.ElementsMatch(t, ids(a, b, cc, d), res.Reclaimed)
	assert.Equal(t, [][]NodeID{ids(a, b, cc)}, res.Cycles)
	assert.False(t, r.Reclaimed())
	assert.False(t, extra.IsNil(), "handle keeps its local target")

	root.Release()
	res = mustCollect(t, c)
	assert.Equal(t, ids(r), res.Reclaimed)
	assert.Empty(t, res.Cycles)
}

func TestCollector_TransientZeroRootCount(t *testing.T) {
	c := New()
	objs := newObjs("a", "b")
	a, b := objs[0], objs[1]

	r := NewRoot(c, a)
	keep := NewRoot(c, b)
	mustProcess(t, c)

	// a drops to zero roots mid-batch and comes back before Collect.
	r.Set(b)
	r.Set(a)
	assert.Equal(t, []EventKind{EventRemoveRoot, EventAddRoot, EventRemoveRoot, EventAddRoot}, eventKinds(c))

	res := mustCollect(t, c)
	assert.Empty(t, res.Reclaimed)
	assert.Equal(t, 1, r.ReferenceCount())
	assert.Equal(t, 1, keep.ReferenceCount())
}

func TestCollector_BatchReclamationOrderIndependence(t *testing.T) {
	const size = 16

	orders := map[string]func([]int){
		"forward": func([]int) {},
		"reverse": func(p []int) {
			for i, j := 0, len(p)-1; i < j; i, j = i+1, j-1 {
				p[i], p[j] = p[j], p[i]
			}
		},
		"shuffled": func(p []int) {
			rng := rand.New(rand.NewSource(42))
			rng.Shuffle(len(p), func(i, j int) { p[i], p[j] = p[j], p[i] })
		},
	}

	for name, permute := range orders {
		t.Run(name, func(t *testing.T) {
			c := New()
			objs := make([]*testObj, size)
			roots := make([]*Root[*testObj], size)
			for i := range objs {
				objs[i] = &testObj{}
				roots[i] = NewRoot(c, objs[i])
			}

			order := make([]int, size)
			for i := range order {
				order[i] = i
			}
			permute(order)
			for _, i := range order {
				link(objs[i], objs[(i+1)%size]) // ring
			}
			for _, i := range order {
				roots[i].Release()
			}

			res := mustCollect(t, c)
			assert.Len(t, res.Reclaimed, size)
			require.Len(t, res.Cycles, 1)
			assert.Len(t, res.Cycles[0], size)
			assert.Equal(t, 0, c.Len())
			for _, o := range objs {
				assert.True(t, o.Reclaimed())
				assert.Equal(t, 1, o.finalized)
				assert.Empty(t, c.Edges(o), "no dangling edges")
				assert.Empty(t, o.referrers)
			}
		})
	}
}

func TestCollector_EndToEndScenario(t *testing.T) {
	c := New()
	objs := newObjs("a", "b", "c")
	a, b, cc := objs[0], objs[1], objs[2]

	r := NewRoot(c, a)
	link(a, b)
	link(b, cc)
	link(cc, a)

	res := mustCollect(t, c)
	assert.Empty(t, res.Reclaimed, "all reachable from r")

	r.Release()
	res = mustCollect(t, c)
	assert.ElementsMatch(t, ids(a, b, cc), res.Reclaimed)
	assert.Len(t, res.Cycles, 1)
}

func TestCollector_GarbageEdgeIntoLiveNode(t *testing.T) {
	c := New()
	objs := newObjs("g", "l")
	g, l := objs[0], objs[1]

	rl := NewRoot(c, l)
	c.Track(g)
	link(g, l)
	mustProcess(t, c)
	assert.Equal(t, []NodeID{l.ID()}, c.Edges(g))

	res := mustCollect(t, c)
	assert.Equal(t, ids(g), res.Reclaimed)
	assert.Empty(t, res.Cycles)
	assert.Empty(t, l.referrers, "live target must forget the reclaimed owner")

	rl.Release()
	res = mustCollect(t, c)
	assert.Equal(t, ids(l), res.Reclaimed)
}

func TestCollector_TrackedWithoutRootIsGarbage(t *testing.T) {
	c := New()
	a := &testObj{}
	id := c.Track(a)
	assert.Equal(t, id, c.Track(a), "tracking twice keeps the ID")

	res := mustCollect(t, c)
	assert.Equal(t, []NodeID{id}, res.Reclaimed)
}

func TestCollector_NegativeRootCountPoisons(t *testing.T) {
	c := New()
	a := &testObj{}
	c.Track(a)
	c.RemoveRoot(a)

	_, err := c.ProcessEvents()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNegativeRootCount)
	assert.True(t, IsViolation(err))
	assert.True(t, IsCode(err, CodeNegativeRootCount))

	// Poisoned: every later call reports the same violation.
	NewRoot(c, &testObj{})
	_, err2 := c.Collect()
	assert.Same(t, err, err2)
	assert.Same(t, err, c.Err())
}

func TestCollector_DuplicateEdge(t *testing.T) {
	c := New()
	objs := newObjs("a", "b")
	c.AddEdge(objs[0], objs[1])
	c.AddEdge(objs[0], objs[1])

	n, err := c.ProcessEvents()
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, ErrDuplicateEdge)
	assert.Contains(t, err.Error(), "Connect(1 -> 2)")
}

func TestCollector_MissingEdge(t *testing.T) {
	c := New()
	objs := newObjs("a", "b")
	c.Track(objs[0])
	c.Track(objs[1])
	c.RemoveEdge(objs[0], objs[1])

	_, err := c.ProcessEvents()
	assert.ErrorIs(t, err, ErrMissingEdge)
}

func TestCollector_RootOnReclaimedNode(t *testing.T) {
	c := New()
	a := &testObj{}
	c.Track(a)
	mustCollect(t, c)
	require.True(t, a.Reclaimed())

	c.AddRoot(a)
	_, err := c.ProcessEvents()
	assert.ErrorIs(t, err, ErrReclaimedNode)
}

func TestCollector_PanicOnViolation(t *testing.T) {
	c := New(WithPanicOnViolation())
	a := &testObj{}
	c.Track(a)
	c.RemoveRoot(a)

	assert.Panics(t, func() { _, _ = c.ProcessEvents() })
	// The lock must have been released by the panic.
	assert.Equal(t, 0, c.Pending())
}

func TestCollector_ReentrantCollect(t *testing.T) {
	c := New()
	a := &testObj{}
	var inner error
	a.onFinal = func() { _, inner = c.Collect() }
	c.Track(a)

	mustCollect(t, c)
	assert.ErrorIs(t, inner, ErrReentrantCollect)

	// The collector is usable again once the pass is over.
	mustCollect(t, c)
}

func TestCollector_FinalizerMayReleaseHandles(t *testing.T) {
	c := New()
	objs := newObjs("holder", "held")
	holder, held := objs[0], objs[1]

	// holder keeps held alive through a root, as code outside the graph would.
	hold := NewRoot(c, held)
	holder.onFinal = func() { hold.Release() }
	c.Track(holder)
	link(holder, holder) // self cycle

	res := mustCollect(t, c)
	assert.Equal(t, ids(holder), res.Reclaimed)
	assert.Equal(t, [][]NodeID{ids(holder)}, res.Cycles)
	assert.Equal(t, 1, c.Pending(), "RemoveRoot queued by finalizer")

	res = mustCollect(t, c)
	assert.Equal(t, ids(held), res.Reclaimed)
}

func TestCollector_EdgesOfReclaimedOwnerAreDropped(t *testing.T) {
	c := New()
	objs := newObjs("a", "b", "live")
	a, b, live := objs[0], objs[1], objs[2]
	rl := NewRoot(c, live)

	c.Track(a)
	link(a, b)
	link(b, a)
	a.onFinal = func() {
		a.next.Set(live)
		a.next.Release()
	}

	res := mustCollect(t, c)
	assert.Len(t, res.Reclaimed, 2)
	assert.Equal(t, 0, c.Pending(), "edges owned by reclaimed nodes queue nothing")
	assert.Nil(t, c.Err())
	assert.Equal(t, 1, rl.ReferenceCount())
}

func TestCollector_DefaultIsSingleton(t *testing.T) {
	assert.Same(t, Default(), Default())
	assert.Equal(t, "default", Default().Name())
}

func TestCollector_MixingCollectorsPanics(t *testing.T) {
	c1, c2 := New(), New()
	a := &testObj{}
	NewRoot(c1, a)
	assert.Panics(t, func() { NewRoot(c2, a) })
}

type recordingObserver struct {
	applied    int
	results    []*Result
	violations []error
}

func (o *recordingObserver) OnProcessEvents(n int, _ time.Duration) { o.applied += n }
func (o *recordingObserver) OnCollect(res *Result)                  { o.results = append(o.results, res) }
func (o *recordingObserver) OnViolation(err error)                  { o.violations = append(o.violations, err) }

func TestCollector_Observer(t *testing.T) {
	obs := &recordingObserver{}
	c := New(WithObserver(obs))
	a := &testObj{}
	r := NewRoot(c, a)
	r.Release()
	mustCollect(t, c)

	assert.Equal(t, 2, obs.applied)
	require.Len(t, obs.results, 1)
	assert.Equal(t, uint64(1), obs.results[0].Pass)
	assert.Equal(t, 1, obs.results[0].Finalized)

	c.RemoveRoot(&testObj{})
	_, err := c.ProcessEvents()
	require.Error(t, err)
	assert.Equal(t, []error{err}, obs.violations)
}

func TestCollector_LogsPassSummary(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})
	c := New(WithName("test"), WithLogger(logger))

	c.Track(&testObj{})
	mustCollect(t, c)

	out := buf.String()
	assert.Contains(t, out, "collect")
	assert.Contains(t, out, "collector=test")
	assert.Contains(t, out, "reclaimed=1")
}

func TestCollector_Stats(t *testing.T) {
	c := New()
	objs := newObjs("a", "b")
	a, b := objs[0], objs[1]
	r := NewRoot(c, a)
	link(a, b)
	link(b, a)
	r.Release()
	mustCollect(t, c)

	s := c.Stats()
	assert.Equal(t, 2, s.NodesTracked)
	assert.Equal(t, 0, s.NodesLive)
	assert.Equal(t, 4, s.EventsQueued)
	assert.Equal(t, 4, s.EventsApplied)
	assert.Equal(t, 1, s.RootsAdded)
	assert.Equal(t, 1, s.RootsRemoved)
	assert.Equal(t, 2, s.EdgesConnected)
	assert.Equal(t, 1, s.Passes)
	assert.Equal(t, 2, s.NodesReclaimed)
	assert.Equal(t, 1, s.CyclesReclaimed)
	assert.Equal(t, 2, s.Finalized)
	assert.Contains(t, s.String(), "2 tracked")
}

func TestCollector_Snapshot(t *testing.T) {
	c := New()
	objs := newObjs("a", "b")
	a, b := objs[0], objs[1]
	r := NewRoot(c, a)
	link(a, b)
	mustProcess(t, c)

	snap := c.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, a.ID(), snap[0].ID)
	assert.Equal(t, 1, snap[0].RootCount)
	assert.Equal(t, []NodeID{b.ID()}, snap[0].Edges)
	assert.Same(t, b, snap[1].Object)
	r.Release()
}

func TestCollector_ConcurrentBinding(t *testing.T) {
	const n = 16
	c := New()
	objs := make([]*testObj, n)
	for i := range objs {
		objs[i] = &testObj{}
	}

	var wg sync.WaitGroup
	seen := make([]NodeID, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			NewRoot(c, objs[i])
			next := objs[(i+1)%n]
			NewEdgeIn(c, objs[i], next)
			if next.Collector() != nil {
				seen[i] = next.ID()
				assert.NotZero(t, seen[i])
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2*n, mustProcess(t, c))
	unique := make(map[NodeID]bool)
	for _, o := range objs {
		assert.Same(t, c, o.Collector())
		assert.Equal(t, 1, c.RootCount(o))
		unique[o.ID()] = true
	}
	assert.Len(t, unique, n)
}
