package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"cyclegc/pkg/scenario"
)

func newREPLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Drive a collector interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL(cmd, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func runREPL(cmd *cobra.Command, in io.Reader, out io.Writer) error {
	ctx := cmd.Context()
	s := newSession(ctx, out, nil, "")

	fmt.Fprintln(out, StyleTitle.Render("cyclegc REPL")+" "+StyleDim.Render("collector "+s.c.Name()))
	fmt.Fprintln(out, "Type 'help' for commands, 'quit' to exit")
	fmt.Fprintln(out)

	var pending strings.Builder
	depth := 0

	scanner := bufio.NewScanner(in)
	for {
		if depth > 0 {
			fmt.Fprint(out, "   ... ")
		} else {
			fmt.Fprint(out, "cyclegc> ")
		}

		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		// Handle commands first (before parsing)
		if depth == 0 {
			switch line {
			case "quit", "exit":
				fmt.Fprintln(out, "Goodbye!")
				return nil
			case "help":
				printREPLHelp(out)
				continue
			case "stats":
				printStats(out, s.c.Stats())
				continue
			case "objects":
				for _, name := range s.interp.Names() {
					o := s.interp.Object(name)
					state := "live"
					if o.Reclaimed() {
						state = "reclaimed"
					}
					printDetail(out, "%s #%d %s slots=%v", name, o.ID(), state, o.Slots())
				}
				continue
			case "roots":
				for _, name := range s.interp.RootNames() {
					r := s.interp.Root(name)
					target := "nil"
					if !r.IsNil() {
						target = r.Pointer().Name
					}
					printDetail(out, "%s -> %s", name, target)
				}
				continue
			case "dot":
				fmt.Fprint(out, s.interp.ToDOT(scenario.DOTOptions{ShowReclaimed: true}))
				continue
			}

			if !strings.HasPrefix(line, "(") {
				fmt.Fprintf(out, "Unknown command: %s (use 'help' for commands)\n", line)
				continue
			}
		}

		// Multi-line forms: read until the parentheses balance.
		pending.WriteString(line)
		pending.WriteByte('\n')
		depth += parenDepth(line)
		if depth > 0 {
			continue
		}
		src := pending.String()
		pending.Reset()
		depth = 0

		if err := s.interp.Run(ctx, src); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			printError(out, "%v", err)
		}
	}
	return scanner.Err()
}

// parenDepth returns the net parenthesis count of line, ignoring strings
// and comments.
func parenDepth(line string) int {
	depth := 0
	inString := false
	for i := 0; i < len(line); i++ {
		switch ch := line[i]; {
		case inString && ch == '\\':
			i++
		case ch == '"':
			inString = !inString
		case inString:
		case ch == ';':
			return depth
		case ch == '(':
			depth++
		case ch == ')':
			depth--
		}
	}
	return depth
}

func printREPLHelp(out io.Writer) {
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  quit     - exit the REPL")
	fmt.Fprintln(out, "  stats    - show collector statistics")
	fmt.Fprintln(out, "  objects  - list objects and their slots")
	fmt.Fprintln(out, "  roots    - list root handles")
	fmt.Fprintln(out, "  dot      - print the topology in DOT format")
	fmt.Fprintln(out, "  help     - show this help")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Forms:")
	for _, usage := range scenario.Commands() {
		fmt.Fprintf(out, "  %s\n", usage)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Example:")
	fmt.Fprintln(out, "  (node a b) (root r a) (edge a b) (edge b a)")
	fmt.Fprintln(out, "  (release r) (collect)   => reclaimed [a b]")
}
