package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/xforms/internal/bind"
	"github.com/roach88/xforms/internal/ir"
)

// GraphOptions holds flags for the graph command.
type GraphOptions struct {
	*RootOptions
	Dot     bool
	Mermaid bool
}

// GraphEntry is one bind entry in evaluation order.
type GraphEntry struct {
	Nodeset  ir.Reference `json:"nodeset"`
	Kind     ir.NodeKind  `json:"kind"`
	Type     string       `json:"type,omitempty"`
	Rank     int          `json:"rank"`
	Implicit bool         `json:"implicit,omitempty"`
}

// GraphResult holds the bind graph of a form.
type GraphResult struct {
	Form  string       `json:"form"`
	Order []GraphEntry `json:"order"`
	Edges []bind.Edge  `json:"edges"`
}

// NewGraphCommand creates the graph command.
func NewGraphCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GraphOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "graph <form.cue>",
		Short: "Show the bind dependency graph",
		Long: `Show the bind entries of a form in evaluation order, with the
dependency edges between them.

An edge A -> B (attr) means the attr expression of B reads A, so B is
evaluated after A. Edges without an attr link a parent to its child.

Examples:
  xforms graph form.cue
  xforms graph form.cue --dot | dot -Tsvg > graph.svg
  xforms graph form.cue --mermaid`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Dot, "dot", false, "print Graphviz dot")
	cmd.Flags().BoolVar(&opts.Mermaid, "mermaid", false, "print a Mermaid flowchart")
	cmd.MarkFlagsMutuallyExclusive("dot", "mermaid")

	return cmd
}

func runGraph(opts *GraphOptions, path string, cmd *cobra.Command) error {
	form, reg, err := loadCheckedForm(path)
	if err != nil {
		return err
	}

	result := GraphResult{Form: form.ID, Edges: reg.Edges()}
	for _, e := range reg.Order() {
		result.Order = append(result.Order, GraphEntry{
			Nodeset:  e.Nodeset,
			Kind:     e.Kind(),
			Type:     e.Type,
			Rank:     e.Rank(),
			Implicit: e.Implicit,
		})
	}

	w := cmd.OutOrStdout()
	switch {
	case opts.Dot:
		writeDot(w, result)
		return nil
	case opts.Mermaid:
		writeMermaid(w, result)
		return nil
	case opts.Format == "json":
		return newFormatter(opts.RootOptions, cmd).Success(result)
	}

	fmt.Fprintf(w, "Form %s: %d entries, %d edges\n\n", result.Form, len(result.Order), len(result.Edges))
	fmt.Fprintln(w, "Evaluation order:")
	for i, e := range result.Order {
		suffix := ""
		if e.Implicit {
			suffix = " (implicit)"
		}
		fmt.Fprintf(w, "  %3d  %-6s %s%s\n", i+1, e.Kind, e.Nodeset, suffix)
	}
	if len(result.Edges) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Edges:")
		for _, e := range result.Edges {
			if e.Attr == "" {
				fmt.Fprintf(w, "  %s → %s\n", e.From, e.To)
				continue
			}
			fmt.Fprintf(w, "  %s → %s (%s)\n", e.From, e.To, e.Attr)
		}
	}
	return nil
}

func writeDot(w io.Writer, g GraphResult) {
	fmt.Fprintf(w, "digraph %q {\n", g.Form)
	fmt.Fprintln(w, "  rankdir=LR;")
	for _, e := range g.Order {
		shape := "box"
		if e.Kind != ir.KindLeaf {
			shape = "folder"
		}
		fmt.Fprintf(w, "  %q [shape=%s];\n", e.Nodeset, shape)
	}
	for _, e := range g.Edges {
		if e.Attr == "" {
			fmt.Fprintf(w, "  %q -> %q [style=dashed];\n", e.From, e.To)
			continue
		}
		fmt.Fprintf(w, "  %q -> %q [label=%q];\n", e.From, e.To, e.Attr)
	}
	fmt.Fprintln(w, "}")
}

func writeMermaid(w io.Writer, g GraphResult) {
	ids := make(map[ir.Reference]string, len(g.Order))
	fmt.Fprintln(w, "flowchart LR")
	for i, e := range g.Order {
		id := fmt.Sprintf("n%d", i)
		ids[e.Nodeset] = id
		fmt.Fprintf(w, "  %s[\"%s\"]\n", id, strings.ReplaceAll(string(e.Nodeset), `"`, "#quot;"))
	}
	for _, e := range g.Edges {
		from, to := ids[e.From], ids[e.To]
		if from == "" || to == "" {
			continue
		}
		if e.Attr == "" {
			fmt.Fprintf(w, "  %s -.-> %s\n", from, to)
			continue
		}
		fmt.Fprintf(w, "  %s -->|%s| %s\n", from, e.Attr, to)
	}
}
