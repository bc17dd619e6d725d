// Package scenario drives a collector from S-expression scripts. A script
// allocates named objects, wires them together with rooted pointers and
// internal edges, runs collections and asserts which objects survived.
//
//	(node a b c)
//	(root r a)
//	(edge a b) (edge b c) (edge c a)
//	(release r)
//	(collect)
//	(expect-reclaimed a b c)
package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"cyclegc/pkg/analysis"
	"cyclegc/pkg/ast"
	"cyclegc/pkg/memory"
	"cyclegc/pkg/parser"
)

// ErrExpectation is wrapped by every failed expect-* form.
var ErrExpectation = errors.New("expectation failed")

// ScriptError locates a failing form.
type ScriptError struct {
	Line int
	Form string
	Err  error
}

func (e *ScriptError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s: %v", e.Line, e.Form, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Form, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

// Option configures an Interp.
type Option func(*Interp)

// WithOutput sets where command reports are written. Default io.Discard.
func WithOutput(w io.Writer) Option {
	return func(in *Interp) { in.out = w }
}

// WithLogger sets the logger used for per-form debug output.
func WithLogger(l *log.Logger) Option {
	return func(in *Interp) { in.logger = l }
}

// Interp executes scenario scripts against one collector. It keeps the
// named objects and roots alive between Run calls, so a REPL can feed it
// one form at a time.
type Interp struct {
	c      *memory.Collector
	out    io.Writer
	logger *log.Logger

	objects   map[string]*Object
	byID      map[memory.NodeID]*Object
	roots     map[string]*memory.Root[*Object]
	results   []*memory.Result
	finalized []string
}

// New creates an interpreter bound to c.
func New(c *memory.Collector, opts ...Option) *Interp {
	in := &Interp{
		c:       c,
		out:     io.Discard,
		logger:  log.New(io.Discard),
		objects: make(map[string]*Object),
		byID:    make(map[memory.NodeID]*Object),
		roots:   make(map[string]*memory.Root[*Object]),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Collector returns the collector the script drives.
func (in *Interp) Collector() *memory.Collector { return in.c }

// Object returns the object allocated under name, or nil.
func (in *Interp) Object(name string) *Object { return in.objects[name] }

// Root returns the root handle stored under name, or nil.
func (in *Interp) Root(name string) *memory.Root[*Object] { return in.roots[name] }

// Names returns every object name in sorted order.
func (in *Interp) Names() []string { return slices.Sorted(maps.Keys(in.objects)) }

// RootNames returns every live root handle name in sorted order.
func (in *Interp) RootNames() []string { return slices.Sorted(maps.Keys(in.roots)) }

// Results returns the result of every collect form so far.
func (in *Interp) Results() []*memory.Result { return in.results }

// Finalized returns object names in the order their finalizers ran.
func (in *Interp) Finalized() []string { return in.finalized }

// Run parses src and executes each form in order, stopping at the first
// error or when ctx is cancelled.
func (in *Interp) Run(ctx context.Context, src string) error {
	exprs, err := parser.ParseAllString(src)
	if err != nil {
		return err
	}
	for _, expr := range exprs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := in.Exec(ctx, expr); err != nil {
			return err
		}
	}
	return nil
}

// Exec executes one form.
func (in *Interp) Exec(ctx context.Context, expr *ast.Value) error {
	in.logger.Debug("exec", "line", expr.Line, "form", expr.String())
	if err := in.exec(ctx, expr); err != nil {
		return &ScriptError{Line: expr.Line, Form: expr.String(), Err: err}
	}
	return nil
}

type command struct {
	min, max int // argument count; max < 0 means unbounded
	usage    string
	run      func(in *Interp, ctx context.Context, args []*ast.Value) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"node":             {1, -1, "(node name ...)", (*Interp).cmdNode},
		"root":             {1, 2, "(root r [target])", (*Interp).cmdRoot},
		"copy":             {2, 2, "(copy dst src)", (*Interp).cmdCopy},
		"assign":           {2, 2, "(assign dst src)", (*Interp).cmdAssign},
		"set":              {2, 2, "(set r target)", (*Interp).cmdSet},
		"detach":           {1, 1, "(detach r)", (*Interp).cmdDetach},
		"release":          {1, 1, "(release r)", (*Interp).cmdRelease},
		"edge":             {2, 3, "(edge owner target [slot])", (*Interp).cmdEdge},
		"unlink":           {2, 2, "(unlink owner slot)", (*Interp).cmdUnlink},
		"retarget":         {3, 3, "(retarget owner slot target)", (*Interp).cmdRetarget},
		"promote":          {3, 3, "(promote r owner slot)", (*Interp).cmdPromote},
		"deref":            {1, 2, "(deref r) or (deref owner slot)", (*Interp).cmdDeref},
		"process":          {0, 0, "(process)", (*Interp).cmdProcess},
		"collect":          {0, 0, "(collect)", (*Interp).cmdCollect},
		"stats":            {0, 0, "(stats)", (*Interp).cmdStats},
		"shape":            {0, -1, "(shape [name ...])", (*Interp).cmdShape},
		"expect-live":      {1, -1, "(expect-live name ...)", (*Interp).cmdExpectLive},
		"expect-reclaimed": {1, -1, "(expect-reclaimed name ...)", (*Interp).cmdExpectReclaimed},
		"expect-count":     {2, 2, "(expect-count name n)", (*Interp).cmdExpectCount},
		"expect-edges":     {1, -1, "(expect-edges owner target ...)", (*Interp).cmdExpectEdges},
		"expect-error":     {2, 2, "(expect-error CODE form)", (*Interp).cmdExpectError},
		"expect-shape":     {1, 2, "(expect-shape [name] SHAPE)", (*Interp).cmdExpectShape},
	}
}

// Commands returns the usage line of every command, sorted.
func Commands() []string {
	var out []string
	for _, name := range slices.Sorted(maps.Keys(commands)) {
		out = append(out, commands[name].usage)
	}
	return out
}

func (in *Interp) exec(ctx context.Context, expr *ast.Value) error {
	if !ast.IsCell(expr) || !ast.IsSym(expr.Car) {
		return fmt.Errorf("expected a command form")
	}
	cmd, ok := commands[expr.Car.Str]
	if !ok {
		return fmt.Errorf("unknown command %q", expr.Car.Str)
	}
	args := ast.ListToSlice(expr.Cdr)
	if len(args) < cmd.min || (cmd.max >= 0 && len(args) > cmd.max) {
		return fmt.Errorf("usage: %s", cmd.usage)
	}
	return cmd.run(in, ctx, args)
}

// Argument helpers

func symbol(v *ast.Value) (string, error) {
	if !ast.IsSym(v) {
		return "", fmt.Errorf("expected a name, got %s %s", ast.TagName(v.Tag), v)
	}
	return v.Str, nil
}

func (in *Interp) object(v *ast.Value) (*Object, error) {
	name, err := symbol(v)
	if err != nil {
		return nil, err
	}
	o, ok := in.objects[name]
	if !ok {
		return nil, fmt.Errorf("unknown object %q", name)
	}
	return o, nil
}

// target is object() that also accepts the symbol nil.
func (in *Interp) target(v *ast.Value) (*Object, error) {
	if ast.SymEqStr(v, "nil") {
		return nil, nil
	}
	return in.object(v)
}

func (in *Interp) root(v *ast.Value) (*memory.Root[*Object], error) {
	name, err := symbol(v)
	if err != nil {
		return nil, err
	}
	r, ok := in.roots[name]
	if !ok {
		return nil, fmt.Errorf("unknown root %q", name)
	}
	return r, nil
}

func (in *Interp) newRootName(v *ast.Value) (string, error) {
	name, err := symbol(v)
	if err != nil {
		return "", err
	}
	if _, ok := in.roots[name]; ok {
		return "", fmt.Errorf("root %q already exists", name)
	}
	return name, nil
}

func (in *Interp) slot(owner, slot *ast.Value) (*Object, string, *memory.Edge[*Object], error) {
	o, err := in.object(owner)
	if err != nil {
		return nil, "", nil, err
	}
	name, err := symbol(slot)
	if err != nil {
		return nil, "", nil, err
	}
	e := o.Slot(name)
	if e == nil {
		return nil, "", nil, fmt.Errorf("%s has no slot %q", o.Name, name)
	}
	return o, name, e, nil
}

func (in *Interp) nameOf(id memory.NodeID) string {
	if o, ok := in.byID[id]; ok {
		return o.Name
	}
	return fmt.Sprintf("#%d", id)
}

// NamesOf maps node IDs back to object names.
func (in *Interp) NamesOf(ids []memory.NodeID) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = in.nameOf(id)
	}
	return names
}

func (in *Interp) namesOf(ids []memory.NodeID) string {
	return "[" + strings.Join(in.NamesOf(ids), " ") + "]"
}

// Allocation and handles

func (in *Interp) cmdNode(_ context.Context, args []*ast.Value) error {
	for _, arg := range args {
		name, err := symbol(arg)
		if err != nil {
			return err
		}
		if name == "nil" {
			return fmt.Errorf("nil is reserved")
		}
		if _, ok := in.objects[name]; ok {
			return fmt.Errorf("object %q already exists", name)
		}
		o := newObject(name, in.onFinalize)
		in.c.Track(o)
		in.objects[name] = o
		in.byID[o.ID()] = o
	}
	return nil
}

func (in *Interp) onFinalize(o *Object) {
	in.finalized = append(in.finalized, o.Name)
}

func (in *Interp) cmdRoot(_ context.Context, args []*ast.Value) error {
	name, err := in.newRootName(args[0])
	if err != nil {
		return err
	}
	if len(args) == 1 {
		in.roots[name] = memory.NewNullRoot[*Object](in.c)
		return nil
	}
	o, err := in.target(args[1])
	if err != nil {
		return err
	}
	in.roots[name] = memory.NewRoot(in.c, o)
	return nil
}

func (in *Interp) cmdCopy(_ context.Context, args []*ast.Value) error {
	name, err := in.newRootName(args[0])
	if err != nil {
		return err
	}
	src, err := in.root(args[1])
	if err != nil {
		return err
	}
	in.roots[name] = src.Clone()
	return nil
}

func (in *Interp) cmdAssign(_ context.Context, args []*ast.Value) error {
	dst, err := in.root(args[0])
	if err != nil {
		return err
	}
	src, err := in.root(args[1])
	if err != nil {
		return err
	}
	dst.Assign(src)
	return nil
}

func (in *Interp) cmdSet(_ context.Context, args []*ast.Value) error {
	r, err := in.root(args[0])
	if err != nil {
		return err
	}
	o, err := in.target(args[1])
	if err != nil {
		return err
	}
	r.Set(o)
	return nil
}

func (in *Interp) cmdDetach(_ context.Context, args []*ast.Value) error {
	r, err := in.root(args[0])
	if err != nil {
		return err
	}
	r.Detach()
	return nil
}

func (in *Interp) cmdRelease(_ context.Context, args []*ast.Value) error {
	r, err := in.root(args[0])
	if err != nil {
		return err
	}
	r.Release()
	delete(in.roots, args[0].Str)
	return nil
}

// Edges

func (in *Interp) cmdEdge(_ context.Context, args []*ast.Value) error {
	owner, err := in.object(args[0])
	if err != nil {
		return err
	}
	target, err := in.target(args[1])
	if err != nil {
		return err
	}
	slot := args[1].Str
	if len(args) == 3 {
		if slot, err = symbol(args[2]); err != nil {
			return err
		}
	} else if target == nil {
		return fmt.Errorf("a null edge needs a slot name")
	}
	if owner.Slot(slot) != nil {
		return fmt.Errorf("%s already has slot %q, use retarget", owner.Name, slot)
	}
	owner.slots[slot] = memory.NewEdgeIn(in.c, owner, target)
	return nil
}

func (in *Interp) cmdUnlink(_ context.Context, args []*ast.Value) error {
	owner, name, e, err := in.slot(args[0], args[1])
	if err != nil {
		return err
	}
	e.Release()
	delete(owner.slots, name)
	return nil
}

func (in *Interp) cmdRetarget(_ context.Context, args []*ast.Value) error {
	_, _, e, err := in.slot(args[0], args[1])
	if err != nil {
		return err
	}
	target, err := in.target(args[2])
	if err != nil {
		return err
	}
	e.Set(target)
	return nil
}

func (in *Interp) cmdPromote(_ context.Context, args []*ast.Value) error {
	name, err := in.newRootName(args[0])
	if err != nil {
		return err
	}
	_, _, e, err := in.slot(args[1], args[2])
	if err != nil {
		return err
	}
	r, err := e.Root()
	if err != nil {
		return err
	}
	in.roots[name] = r
	return nil
}

func (in *Interp) cmdDeref(_ context.Context, args []*ast.Value) error {
	var (
		label string
		o     *Object
		err   error
	)
	if len(args) == 1 {
		var r *memory.Root[*Object]
		if r, err = in.root(args[0]); err != nil {
			return err
		}
		label = args[0].Str
		o, err = r.Get()
	} else {
		var e *memory.Edge[*Object]
		var owner *Object
		if owner, _, e, err = in.slot(args[0], args[1]); err != nil {
			return err
		}
		label = owner.Name + "." + args[1].Str
		o, err = e.Get()
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(in.out, "%s -> %s\n", label, o.Name)
	return nil
}

// Collector

func (in *Interp) cmdProcess(_ context.Context, _ []*ast.Value) error {
	n, err := in.c.ProcessEvents()
	if err != nil {
		return err
	}
	fmt.Fprintf(in.out, "processed %d events\n", n)
	return nil
}

func (in *Interp) cmdCollect(_ context.Context, _ []*ast.Value) error {
	res, err := in.c.Collect()
	if err != nil {
		return err
	}
	in.results = append(in.results, res)
	cycles := make([]string, len(res.Cycles))
	for i, cycle := range res.Cycles {
		cycles[i] = in.namesOf(cycle)
	}
	fmt.Fprintf(in.out, "pass %d: %d candidates, %d live, reclaimed %s, cycles [%s]\n",
		res.Pass, res.Candidates, res.Live, in.namesOf(res.Reclaimed), strings.Join(cycles, " "))
	return nil
}

func (in *Interp) cmdStats(_ context.Context, _ []*ast.Value) error {
	fmt.Fprint(in.out, in.c.Stats().String())
	return nil
}

// cmdShape prints the shape of the whole heap, or of the structure below
// each named object. Pending events are not applied.
func (in *Interp) cmdShape(_ context.Context, args []*ast.Value) error {
	shapes := analysis.NewShapeContext(in.c.Snapshot())
	if len(args) == 0 {
		shape := shapes.HeapShape()
		fmt.Fprintf(in.out, "heap: %s (%s)\n", shape, shape.Strategy())
		return nil
	}
	for _, arg := range args {
		o, err := in.object(arg)
		if err != nil {
			return err
		}
		info := shapes.Analyze(o.ID())
		fmt.Fprintf(in.out, "%s: %s, %d nodes (%s)\n", o.Name, info.Shape, info.Nodes, info.Shape.Strategy())
	}
	return nil
}

// Expectations

func (in *Interp) cmdExpectLive(_ context.Context, args []*ast.Value) error {
	for _, arg := range args {
		o, err := in.object(arg)
		if err != nil {
			return err
		}
		if o.Reclaimed() {
			return fmt.Errorf("%w: %s was reclaimed", ErrExpectation, o.Name)
		}
	}
	return nil
}

func (in *Interp) cmdExpectReclaimed(_ context.Context, args []*ast.Value) error {
	for _, arg := range args {
		o, err := in.object(arg)
		if err != nil {
			return err
		}
		if !o.Reclaimed() {
			return fmt.Errorf("%w: %s is still live", ErrExpectation, o.Name)
		}
	}
	return nil
}

// cmdExpectCount checks the root count as of the last processed event.
func (in *Interp) cmdExpectCount(_ context.Context, args []*ast.Value) error {
	o, err := in.object(args[0])
	if err != nil {
		return err
	}
	if !ast.IsInt(args[1]) {
		return fmt.Errorf("expected a count, got %s %s", ast.TagName(args[1].Tag), args[1])
	}
	want := int(args[1].Int)
	if got := in.c.RootCount(o); got != want {
		return fmt.Errorf("%w: %s has root count %d, want %d", ErrExpectation, o.Name, got, want)
	}
	return nil
}

func (in *Interp) cmdExpectEdges(_ context.Context, args []*ast.Value) error {
	owner, err := in.object(args[0])
	if err != nil {
		return err
	}
	var want []memory.NodeID
	for _, arg := range args[1:] {
		o, err := in.object(arg)
		if err != nil {
			return err
		}
		want = append(want, o.ID())
	}
	slices.Sort(want)
	got := in.c.Edges(owner)
	if !slices.Equal(got, want) {
		return fmt.Errorf("%w: %s has edges %s, want %s", ErrExpectation, owner.Name, in.namesOf(got), in.namesOf(want))
	}
	return nil
}

func (in *Interp) cmdExpectError(ctx context.Context, args []*ast.Value) error {
	code, err := symbol(args[0])
	if err != nil {
		return err
	}
	err = in.exec(ctx, args[1])
	if err == nil {
		return fmt.Errorf("%w: %s succeeded, want %s", ErrExpectation, args[1], code)
	}
	if !memory.IsCode(err, memory.Code(code)) {
		return fmt.Errorf("%w: want %s, got %v", ErrExpectation, code, err)
	}
	return nil
}

func (in *Interp) cmdExpectShape(_ context.Context, args []*ast.Value) error {
	name, err := symbol(args[len(args)-1])
	if err != nil {
		return err
	}
	want, err := analysis.ParseShape(name)
	if err != nil {
		return err
	}

	shapes := analysis.NewShapeContext(in.c.Snapshot())
	if len(args) == 1 {
		if got := shapes.HeapShape(); got != want {
			return fmt.Errorf("%w: heap is %s, want %s", ErrExpectation, got, want)
		}
		return nil
	}
	o, err := in.object(args[0])
	if err != nil {
		return err
	}
	if got := shapes.Analyze(o.ID()).Shape; got != want {
		return fmt.Errorf("%w: %s is %s, want %s", ErrExpectation, o.Name, got, want)
	}
	return nil
}
