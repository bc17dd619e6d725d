package memory

import "fmt"

// EventKind tags a topology change.
type EventKind uint8

const (
	EventAddRoot EventKind = iota
	EventRemoveRoot
	EventConnect
	EventDisconnect
)

func (k EventKind) String() string {
	switch k {
	case EventAddRoot:
		return "AddRoot"
	case EventRemoveRoot:
		return "RemoveRoot"
	case EventConnect:
		return "Connect"
	case EventDisconnect:
		return "Disconnect"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// Event is one queued topology change. Root events only use Target.
type Event struct {
	Kind   EventKind
	Owner  *Node
	Target *Node
}

func (e Event) String() string {
	switch e.Kind {
	case EventConnect, EventDisconnect:
		return fmt.Sprintf("%s(%d -> %d)", e.Kind, idOf(e.Owner), idOf(e.Target))
	default:
		return fmt.Sprintf("%s(%d)", e.Kind, idOf(e.Target))
	}
}

func idOf(n *Node) NodeID {
	if n == nil {
		return 0
	}
	return n.ID()
}
