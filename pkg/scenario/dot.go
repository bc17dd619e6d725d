package scenario

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"
)

// DOTOptions configures topology rendering.
type DOTOptions struct {
	// ShowReclaimed draws reclaimed objects greyed out and edge-less.
	ShowReclaimed bool
}

// ToDOT renders the collector's authoritative topology in Graphviz DOT
// format. Rooted objects are boxes labelled with their root count; edges are
// labelled with the owner's slot names. Pending events are not reflected.
func (in *Interp) ToDOT(opts DOTOptions) string {
	snapshot := in.c.Snapshot()

	var buf bytes.Buffer
	buf.WriteString("digraph heap {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=ellipse, style=filled, fillcolor=white, fontname=\"Helvetica\"];\n")
	buf.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n")
	buf.WriteString("\n")

	for _, info := range snapshot {
		o := in.byID[info.ID]
		if o == nil {
			continue
		}
		attrs := []string{fmt.Sprintf("label=%q", o.Name)}
		if info.RootCount > 0 {
			attrs = []string{
				fmt.Sprintf("label=%q", fmt.Sprintf("%s\nroots: %d", o.Name, info.RootCount)),
				"shape=box", "penwidth=2",
			}
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", o.Name, strings.Join(attrs, ", "))
	}
	if opts.ShowReclaimed {
		for _, name := range in.Names() {
			if o := in.objects[name]; o.Reclaimed() {
				fmt.Fprintf(&buf, "  %q [label=%q, style=\"filled,dashed\", fillcolor=lightgrey, fontcolor=grey40, color=grey60];\n",
					o.Name, o.Name)
			}
		}
	}

	buf.WriteString("\n")
	for _, info := range snapshot {
		owner := in.byID[info.ID]
		if owner == nil {
			continue
		}
		for _, id := range info.Edges {
			target := in.byID[id]
			if target == nil {
				continue
			}
			label := strings.Join(owner.slotsTo(target), ",")
			fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", owner.Name, target.Name, label)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}

