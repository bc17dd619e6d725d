package memory

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Deferred Cycle Collector
//
// Handles never touch node bookkeeping. Every root or edge change is queued
// as an Event and folded into the topology by ProcessEvents, in emission
// order. Nothing is reclaimed while events are applied, so transient states
// (a root count dipping to 0 in the middle of a reassignment) are harmless.
//
// Collect runs trial deletion over the nodes whose root count is 0: a
// candidate is live iff it can be reached from a rooted node through edges
// between candidates. Everything else is garbage and is reclaimed as one
// batch after classification completes.

// Option configures a Collector.
type Option func(*Collector)

// WithName sets the collector name used in logs and metrics.
func WithName(name string) Option {
	return func(c *Collector) { c.name = name }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *log.Logger) Option {
	return func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver registers hooks notified about event processing and passes.
func WithObserver(o Observer) Option {
	return func(c *Collector) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithPanicOnViolation makes protocol violations panic instead of only
// poisoning the collector.
func WithPanicOnViolation() Option {
	return func(c *Collector) { c.panicOnViolation = true }
}

// Collector owns the root/edge topology of every node bound to it.
type Collector struct {
	name             string
	logger           *log.Logger
	observer         Observer
	panicOnViolation bool

	mu         sync.Mutex
	events     []Event
	nodes      map[*Node]struct{}
	candidates map[*Node]struct{} // tracked nodes with rootCount == 0
	nextID     NodeID
	pass       uint64
	finalizing bool
	poisoned   error
	stats      Stats
}

var (
	defaultOnce      sync.Once
	defaultCollector *Collector
)

// Default returns the process-wide collector, creating it on first use.
// It is never torn down; hosts should release their handles before exit.
func Default() *Collector {
	defaultOnce.Do(func() {
		defaultCollector = New(WithName("default"))
	})
	return defaultCollector
}

// New creates an independent collector.
func New(opts ...Option) *Collector {
	c := &Collector{
		name:       uuid.NewString(),
		logger:     log.New(io.Discard),
		observer:   NoopObserver{},
		nodes:      make(map[*Node]struct{}),
		candidates: make(map[*Node]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("collector", c.name)
	return c
}

// Name returns the collector name.
func (c *Collector) Name() string { return c.name }

// Track binds obj to the collector and returns its ID. A tracked node that
// never gains a root is garbage at the next Collect.
func (c *Collector) Track(obj Collectable) NodeID {
	n := nodeOf(obj)
	if n == nil {
		panic("memory: Track of nil object")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindLocked(n, obj)
	return n.ID()
}

// bindLocked publishes the node's ID before its collector, so a handle that
// observes the collector without holding c.mu also observes the ID.
func (c *Collector) bindLocked(n *Node, obj Collectable) {
	switch cur := n.collector.Load(); cur {
	case c:
		return
	case nil:
	default:
		panic(fmt.Sprintf("memory: node %d is bound to collector %s, not %s", n.ID(), cur.name, c.name))
	}
	c.nextID++
	n.id.Store(uint64(c.nextID))
	n.self = obj
	n.generation.Store(uint64(randomGeneration()))
	if !n.collector.CompareAndSwap(nil, c) {
		panic(fmt.Sprintf("memory: node %d was bound concurrently by another collector, not %s", n.ID(), c.name))
	}
	c.nodes[n] = struct{}{}
	c.candidates[n] = struct{}{}
	c.stats.NodesTracked++
}

func (c *Collector) checkBoundLocked(n *Node) {
	if cur := n.collector.Load(); cur != nil && cur != c {
		panic(fmt.Sprintf("memory: node %d is bound to collector %s, not %s", n.ID(), cur.name, c.name))
	}
}

func (c *Collector) pushLocked(ev Event) {
	c.events = append(c.events, ev)
	c.stats.EventsQueued++
}

// AddRoot queues a root increment for obj.
func (c *Collector) AddRoot(obj Collectable) {
	if n := nodeOf(obj); n != nil {
		c.addRoot(n, obj)
	}
}

// RemoveRoot queues a root decrement for obj.
func (c *Collector) RemoveRoot(obj Collectable) {
	if n := nodeOf(obj); n != nil {
		c.removeRoot(n)
	}
}

// AddEdge queues a Connect(owner, target) event.
func (c *Collector) AddEdge(owner, target Collectable) {
	on, tn := nodeOf(owner), nodeOf(target)
	if on == nil || tn == nil {
		return
	}
	c.addEdge(on, owner, tn, target)
}

// RemoveEdge queues a Disconnect(owner, target) event.
func (c *Collector) RemoveEdge(owner, target Collectable) {
	on, tn := nodeOf(owner), nodeOf(target)
	if on == nil || tn == nil {
		return
	}
	c.removeEdge(on, tn)
}

func (c *Collector) addRoot(n *Node, obj Collectable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindLocked(n, obj)
	c.pushLocked(Event{Kind: EventAddRoot, Target: n})
}

func (c *Collector) removeRoot(n *Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkBoundLocked(n)
	c.pushLocked(Event{Kind: EventRemoveRoot, Target: n})
}

// addEdge and removeEdge drop events whose owner was reclaimed: the owner's
// edges were cleared when it was reclaimed.
func (c *Collector) addEdge(owner *Node, ownerObj Collectable, target *Node, targetObj Collectable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if owner.reclaimed.Load() {
		return
	}
	c.bindLocked(owner, ownerObj)
	c.bindLocked(target, targetObj)
	c.pushLocked(Event{Kind: EventConnect, Owner: owner, Target: target})
}

func (c *Collector) removeEdge(owner, target *Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if owner.reclaimed.Load() {
		return
	}
	c.checkBoundLocked(owner)
	c.checkBoundLocked(target)
	c.pushLocked(Event{Kind: EventDisconnect, Owner: owner, Target: target})
}

// ProcessEvents applies every queued event in FIFO order and returns how
// many were applied. A protocol violation poisons the collector: the error
// is returned now and by every later ProcessEvents or Collect.
func (c *Collector) ProcessEvents() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processLocked()
}

func (c *Collector) processLocked() (int, error) {
	if c.poisoned != nil {
		return 0, c.poisoned
	}
	start := time.Now()
	applied := 0
	for _, ev := range c.events {
		if err := c.applyLocked(ev); err != nil {
			c.events = nil
			c.stats.EventsApplied += applied
			c.poisonLocked(err)
			return applied, err
		}
		applied++
	}
	c.events = c.events[:0]
	c.stats.EventsApplied += applied
	c.observer.OnProcessEvents(applied, time.Since(start))
	return applied, nil
}

func (c *Collector) applyLocked(ev Event) error {
	switch ev.Kind {
	case EventAddRoot:
		n := ev.Target
		if n.reclaimed.Load() {
			return violation(CodeReclaimedNode, ev, "root added to reclaimed node")
		}
		n.rootCount++
		if n.rootCount == 1 {
			delete(c.candidates, n)
		}
		c.stats.RootsAdded++
	case EventRemoveRoot:
		n := ev.Target
		if n.rootCount == 0 {
			return violation(CodeNegativeRootCount, ev, "root count of node %d would become negative", n.ID())
		}
		n.rootCount--
		if n.rootCount == 0 {
			c.candidates[n] = struct{}{}
		}
		c.stats.RootsRemoved++
	case EventConnect:
		if ev.Owner.reclaimed.Load() || ev.Target.reclaimed.Load() {
			return violation(CodeReclaimedNode, ev, "edge touches a reclaimed node")
		}
		if !ev.Owner.addEdge(ev.Target) {
			return violation(CodeDuplicateEdge, ev, "node %d already holds an edge to %d", ev.Owner.ID(), ev.Target.ID())
		}
		c.stats.EdgesConnected++
	case EventDisconnect:
		if !ev.Owner.removeEdge(ev.Target) {
			return violation(CodeMissingEdge, ev, "node %d holds no edge to %d", ev.Owner.ID(), ev.Target.ID())
		}
		c.stats.EdgesDisconnected++
	default:
		panic(fmt.Sprintf("memory: unknown event kind %d", ev.Kind))
	}
	return nil
}

func (c *Collector) poisonLocked(err error) {
	c.poisoned = err
	c.logger.Error("protocol violation, collector disabled", "err", err)
	c.observer.OnViolation(err)
	if c.panicOnViolation {
		panic(err)
	}
}

// Err returns the violation that poisoned the collector, if any.
func (c *Collector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.poisoned
}

// Result describes one collection pass.
type Result struct {
	Pass       uint64
	Candidates int        // nodes with root count 0 when the pass started
	Live       int        // candidates kept alive through edges from rooted nodes
	Reclaimed  []NodeID   // in ID order
	Cycles     [][]NodeID // garbage strongly connected components that form cycles
	Finalized  int
	Duration   time.Duration
}

// Collect processes pending events, then reclaims every node that is not
// reachable from a rooted node. Finalizers run after the lock is released;
// calling Collect from one of them returns ErrReentrantCollect.
func (c *Collector) Collect() (*Result, error) {
	start := time.Now()
	res, garbage, err := c.trialDelete()
	if err != nil {
		return nil, err
	}
	res.Finalized = c.finalize(garbage)
	res.Duration = time.Since(start)

	c.logger.Debug("collect",
		"pass", res.Pass,
		"candidates", res.Candidates,
		"live", res.Live,
		"reclaimed", len(res.Reclaimed),
		"cycles", len(res.Cycles),
		"duration", res.Duration,
	)
	c.observer.OnCollect(res)
	return res, nil
}

// trialDelete classifies the candidates and detaches the garbage from the
// topology. On success the collector is left in the finalizing state.
func (c *Collector) trialDelete() (*Result, []*Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalizing {
		return nil, nil, ErrReentrantCollect
	}
	if _, err := c.processLocked(); err != nil {
		return nil, nil, err
	}

	c.pass++
	res := &Result{Pass: c.pass}
	var garbage []*Node
	res.Candidates, garbage = classify(c.candidates, c.pass)
	res.Live = res.Candidates - len(garbage)
	res.Cycles = garbageCycles(garbage)

	// Edges first: garbage nodes may point at each other and at live nodes.
	for _, n := range garbage {
		n.clearEdges()
	}
	res.Reclaimed = make([]NodeID, 0, len(garbage))
	for _, n := range garbage {
		n.referrers = nil
		n.invalidate()
		delete(c.nodes, n)
		delete(c.candidates, n)
		res.Reclaimed = append(res.Reclaimed, n.ID())
	}
	c.stats.Passes++
	c.stats.NodesReclaimed += len(garbage)
	c.stats.CyclesReclaimed += len(res.Cycles)
	c.finalizing = true
	return res, garbage, nil
}

func (c *Collector) finalize(garbage []*Node) (finalized int) {
	defer func() {
		c.mu.Lock()
		c.finalizing = false
		c.stats.Finalized += finalized
		c.mu.Unlock()
	}()
	for _, n := range garbage {
		obj := n.self
		n.self = nil
		if f, ok := obj.(Finalizer); ok {
			finalized++
			f.Finalize()
		}
	}
	return finalized
}

// RootCount returns obj's root count as of the last ProcessEvents.
func (c *Collector) RootCount(obj Collectable) int {
	n := nodeOf(obj)
	if n == nil {
		return 0
	}
	return c.rootCount(n)
}

func (c *Collector) rootCount(n *Node) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return n.rootCount
}

// Edges returns the IDs of obj's edge targets as of the last ProcessEvents.
func (c *Collector) Edges(obj Collectable) []NodeID {
	n := nodeOf(obj)
	if n == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedIDs(n.edges)
}

// Pending returns the number of queued events.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// Len returns the number of tracked, unreclaimed nodes.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.nodes)
}

// NodeInfo is a point-in-time view of one node.
type NodeInfo struct {
	ID        NodeID
	RootCount int
	Edges     []NodeID
	Object    Collectable
}

// Snapshot returns the authoritative topology in ID order. Pending events
// are not applied.
func (c *Collector) Snapshot() []NodeInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]NodeInfo, 0, len(c.nodes))
	for n := range c.nodes {
		out = append(out, NodeInfo{
			ID:        n.ID(),
			RootCount: n.rootCount,
			Edges:     sortedIDs(n.edges),
			Object:    n.self,
		})
	}
	slices.SortFunc(out, func(a, b NodeInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func sortedIDs(set map[*Node]struct{}) []NodeID {
	ids := make([]NodeID, 0, len(set))
	for n := range set {
		ids = append(ids, n.ID())
	}
	slices.Sort(ids)
	return ids
}
