package scenario

import (
	"maps"
	"slices"

	"cyclegc/pkg/memory"
)

// Object is the host type scenario scripts allocate. Each named slot is an
// internal edge owned by the object.
type Object struct {
	memory.Node
	Name string

	slots     map[string]*memory.Edge[*Object]
	finalized int
	onFinal   func(*Object)
}

func newObject(name string, onFinal func(*Object)) *Object {
	return &Object{
		Name:    name,
		slots:   make(map[string]*memory.Edge[*Object]),
		onFinal: onFinal,
	}
}

// Finalize implements memory.Finalizer.
func (o *Object) Finalize() {
	o.finalized++
	if o.onFinal != nil {
		o.onFinal(o)
	}
}

// Finalized returns how many times the collector finalized o.
func (o *Object) Finalized() int { return o.finalized }

// Slot returns the edge stored under name, or nil.
func (o *Object) Slot(name string) *memory.Edge[*Object] {
	return o.slots[name]
}

// Slots returns the slot names in sorted order.
func (o *Object) Slots() []string {
	return slices.Sorted(maps.Keys(o.slots))
}

// slotsTo returns the slots currently pointing at target, sorted.
func (o *Object) slotsTo(target *Object) []string {
	var names []string
	for _, name := range o.Slots() {
		if o.slots[name].Pointer() == target {
			names = append(names, name)
		}
	}
	return names
}
