package memory

import (
	"cmp"
	"slices"
)

// SCC Grouping (Tarjan's Algorithm)
//
// Reclaimed nodes are reported per strongly connected component so a pass
// can say how many distinct cycles it freed. Only edges between garbage
// nodes are followed. The walk is iterative so long chains cannot overflow
// the goroutine stack.

type tarjanState struct {
	member  map[*Node]bool
	index   map[*Node]int
	lowlink map[*Node]int
	onStack map[*Node]bool
	stack   []*Node
	next    int
	sccs    [][]*Node
}

type tarjanFrame struct {
	node    *Node
	targets []*Node
	pos     int
}

// stronglyConnected returns the SCCs of the subgraph induced by nodes.
func stronglyConnected(nodes []*Node) [][]*Node {
	s := &tarjanState{
		member:  make(map[*Node]bool, len(nodes)),
		index:   make(map[*Node]int, len(nodes)),
		lowlink: make(map[*Node]int, len(nodes)),
		onStack: make(map[*Node]bool, len(nodes)),
	}
	for _, n := range nodes {
		s.member[n] = true
	}
	for _, n := range nodes {
		if _, seen := s.index[n]; !seen {
			s.strongConnect(n)
		}
	}
	return s.sccs
}

func (s *tarjanState) visit(n *Node) *tarjanFrame {
	s.index[n] = s.next
	s.lowlink[n] = s.next
	s.next++
	s.stack = append(s.stack, n)
	s.onStack[n] = true

	var targets []*Node
	for t := range n.edges {
		if s.member[t] {
			targets = append(targets, t)
		}
	}
	// Deterministic visiting order
	slices.SortFunc(targets, func(a, b *Node) int { return cmp.Compare(a.ID(), b.ID()) })
	return &tarjanFrame{node: n, targets: targets}
}

func (s *tarjanState) strongConnect(root *Node) {
	frames := []*tarjanFrame{s.visit(root)}
	for len(frames) > 0 {
		f := frames[len(frames)-1]
		if f.pos < len(f.targets) {
			w := f.targets[f.pos]
			f.pos++
			if _, seen := s.index[w]; !seen {
				frames = append(frames, s.visit(w))
			} else if s.onStack[w] && s.index[w] < s.lowlink[f.node] {
				s.lowlink[f.node] = s.index[w]
			}
			continue
		}

		// All children visited
		frames = frames[:len(frames)-1]
		v := f.node
		if len(frames) > 0 {
			parent := frames[len(frames)-1].node
			if s.lowlink[v] < s.lowlink[parent] {
				s.lowlink[parent] = s.lowlink[v]
			}
		}
		if s.lowlink[v] != s.index[v] {
			continue
		}

		// v is the root of an SCC: pop it
		var scc []*Node
		for {
			w := s.stack[len(s.stack)-1]
			s.stack = s.stack[:len(s.stack)-1]
			s.onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		s.sccs = append(s.sccs, scc)
	}
}

// garbageCycles returns the garbage SCCs that contain a cycle: more than one
// member, or a single node with an edge to itself. Members are in ID order
// and the components are ordered by their smallest ID.
func garbageCycles(garbage []*Node) [][]NodeID {
	var cycles [][]NodeID
	for _, scc := range stronglyConnected(garbage) {
		if len(scc) == 1 {
			if _, self := scc[0].edges[scc[0]]; !self {
				continue
			}
		}
		ids := make([]NodeID, len(scc))
		for i, n := range scc {
			ids[i] = n.ID()
		}
		slices.Sort(ids)
		cycles = append(cycles, ids)
	}
	slices.SortFunc(cycles, func(a, b []NodeID) int { return cmp.Compare(a[0], b[0]) })
	return cycles
}
