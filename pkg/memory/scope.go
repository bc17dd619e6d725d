package memory

import "sync"

// Scopes
//
// A scope is an owner of rooted pointers for one unit of host work (a
// request, a frame, a batch). Closing the scope releases every root it
// holds, and closes its child scopes first. Objects only reachable from a
// closed scope become candidates for the next Collect, cycles included.

// Releaser is anything a scope can own.
type Releaser interface {
	Release()
}

// Scope owns a set of handles.
type Scope struct {
	c      *Collector
	parent *Scope

	mu       sync.Mutex
	held     []Releaser
	children []*Scope
	closed   bool
}

// NewScope creates a top-level scope whose roots bind to c.
func NewScope(c *Collector) *Scope {
	return &Scope{c: c}
}

// Enter creates a child scope. Closing s closes the child too.
func (s *Scope) Enter() *Scope {
	child := &Scope{c: s.c, parent: s}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		panic("memory: Enter on closed scope")
	}
	s.children = append(s.children, child)
	return child
}

// Parent returns the enclosing scope, nil for a top-level scope.
func (s *Scope) Parent() *Scope { return s.parent }

// Hold creates a root to target owned by s.
func Hold[T Collectable](s *Scope, target T) *Root[T] {
	r := NewRoot(s.c, target)
	s.Adopt(r)
	return r
}

// Adopt transfers ownership of h to s.
func (s *Scope) Adopt(h Releaser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		panic("memory: Adopt on closed scope")
	}
	s.held = append(s.held, h)
}

// Len returns the number of handles owned directly by s.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.held)
}

// Close releases every handle in s, children first and then in reverse
// acquisition order. Closing twice does nothing.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	children, held := s.children, s.held
	s.children, s.held = nil, nil
	s.mu.Unlock()

	for i := len(children) - 1; i >= 0; i-- {
		children[i].Close()
	}
	for i := len(held) - 1; i >= 0; i-- {
		held[i].Release()
	}
}
