package memory

import (
	"fmt"
	"strings"
)

// Stats tracks cumulative collector activity.
type Stats struct {
	NodesTracked int // nodes ever bound to the collector
	NodesLive    int // tracked and not yet reclaimed
	Pending      int // queued events not yet applied

	EventsQueued      int
	EventsApplied     int
	RootsAdded        int
	RootsRemoved      int
	EdgesConnected    int
	EdgesDisconnected int

	Passes          int
	NodesReclaimed  int
	CyclesReclaimed int
	Finalized       int
}

// Stats returns a copy of the current statistics.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.NodesLive = len(c.nodes)
	s.Pending = len(c.events)
	return s
}

// String returns a formatted statistics report
func (s Stats) String() string {
	var sb strings.Builder
	sb.WriteString("Collector Statistics:\n")
	fmt.Fprintf(&sb, "  Nodes:  %d tracked, %d live, %d reclaimed (%d finalized)\n",
		s.NodesTracked, s.NodesLive, s.NodesReclaimed, s.Finalized)
	fmt.Fprintf(&sb, "  Events: %d queued, %d applied, %d pending\n",
		s.EventsQueued, s.EventsApplied, s.Pending)
	fmt.Fprintf(&sb, "  Roots:  +%d -%d\n", s.RootsAdded, s.RootsRemoved)
	fmt.Fprintf(&sb, "  Edges:  +%d -%d\n", s.EdgesConnected, s.EdgesDisconnected)
	fmt.Fprintf(&sb, "  Passes: %d (%d cycles reclaimed)\n", s.Passes, s.CyclesReclaimed)
	return sb.String()
}
