package dag

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/goccy/go-graphviz"
)

// DOTOptions configures DOT output.
type DOTOptions struct {
	// Detailed adds the stage and node metadata to labels.
	Detailed bool
	// StageNames names stages in detailed labels, e.g. {0: "read"}.
	StageNames map[int]string
}

var stageColors = []string{"#dbeafe", "#dcfce7", "#fef9c3", "#fce7f3"}

// ToDOT converts the graph to Graphviz DOT, one rank per stage.
func ToDOT(g *DAG, opts DOTOptions) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.15,0.08\"];\n")
	buf.WriteString("  ranksep=0.6;\n")
	buf.WriteString("  nodesep=0.2;\n")

	for _, stage := range g.Stages() {
		buf.WriteString("\n  { rank=same;")
		for _, n := range g.Stage(stage) {
			fmt.Fprintf(&buf, " %q;", n.ID)
		}
		buf.WriteString(" }\n")
		for _, n := range g.Stage(stage) {
			attrs := []string{fmt.Sprintf("label=%q", fmtLabel(*n, opts))}
			attrs = append(attrs, fmt.Sprintf("fillcolor=%q", stageColors[stage%len(stageColors)]))
			fmt.Fprintf(&buf, "  %q [%s];\n", n.ID, strings.Join(attrs, ", "))
		}
	}

	buf.WriteString("\n")
	for _, e := range g.Edges() {
		fmt.Fprintf(&buf, "  %q -> %q;\n", e.From, e.To)
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtLabel(n Node, opts DOTOptions) string {
	if !opts.Detailed {
		return n.ID
	}

	stage := fmt.Sprint(n.Stage)
	if name, ok := opts.StageNames[n.Stage]; ok {
		stage = name
	}
	parts := []string{"stage: " + stage}
	for _, k := range slices.Sorted(maps.Keys(n.Meta)) {
		parts = append(parts, fmt.Sprintf("%s: %v", k, n.Meta[k]))
	}
	return n.ID + "\n" + strings.Join(parts, "\n")
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
