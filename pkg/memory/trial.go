package memory

import (
	"cmp"
	"slices"
)

// Trial Deletion
//
// Picture the candidates (root count 0) plus one virtual "external" node
// standing for every rooted node. The external node has an edge to each
// candidate that some rooted node points at. A candidate is live iff the
// external node reaches it; edges that start inside the candidate set never
// count as support on their own.
//
// The walk only touches candidates, their referrer sets and their edges, so
// a pass costs O(candidates + their edges) no matter how large the rooted
// part of the heap is. sequence == pass marks "reached in this pass".

// classify returns the number of candidates and the garbage among them in ID
// order. It reads the topology only; nothing is detached here.
func classify(candidates map[*Node]struct{}, pass uint64) (int, []*Node) {
	var stack []*Node

	// Seed: candidates referenced by a rooted node.
	for n := range candidates {
		if n.sequence == pass {
			continue
		}
		for ref := range n.referrers {
			if ref.rootCount > 0 {
				n.sequence = pass
				stack = append(stack, n)
				break
			}
		}
	}

	// Propagate along edges that stay inside the candidate set.
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for target := range n.edges {
			if target.rootCount > 0 || target.sequence == pass {
				continue
			}
			target.sequence = pass
			stack = append(stack, target)
		}
	}

	var garbage []*Node
	for n := range candidates {
		if n.sequence != pass {
			garbage = append(garbage, n)
		}
	}
	slices.SortFunc(garbage, func(a, b *Node) int { return cmp.Compare(a.ID(), b.ID()) })
	return len(candidates), garbage
}
