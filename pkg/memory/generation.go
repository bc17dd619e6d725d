package memory

import (
	"crypto/rand"
	"encoding/binary"
)

// Random Generations - use-after-reclaim detection
//
// Every tracked node gets a random 64-bit generation. Each handle remembers
// the generation it saw when it was bound to the node. Reclaiming a node sets
// its generation to 0, so every handle still pointing at it fails the check
// on dereference instead of silently reading a finalized object.
//
// Collision probability: 1/2^64 per check (negligible)

// Generation is a 64-bit random generation number. Zero means reclaimed.
type Generation uint64

// randomGeneration returns a non-zero random generation.
func randomGeneration() Generation {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			// Fallback to less random but still usable
			return Generation(0xDEADBEEF)
		}
		if g := Generation(binary.LittleEndian.Uint64(buf[:])); g != 0 {
			return g
		}
	}
}

// Generation returns the node's current generation (0 once reclaimed).
func (n *Node) Generation() Generation {
	return Generation(n.generation.Load())
}

func (n *Node) invalidate() {
	n.generation.Store(0)
	n.reclaimed.Store(true)
}

// checkGeneration validates a remembered generation against the node.
func checkGeneration(n *Node, remembered Generation) error {
	if n == nil {
		return ErrNullDereference
	}
	current := n.Generation()
	if current == 0 || current != remembered {
		return &Error{
			Code:    CodeReclaimed,
			Message: "use-after-reclaim: node was reclaimed by the collector",
			Node:    n.ID(),
		}
	}
	return nil
}
