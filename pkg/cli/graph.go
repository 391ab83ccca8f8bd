package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skooran/nitest/pkg/stage"
)

func NewGraphCommand(root *RootCommand) *cobra.Command {
	var (
		csvOut  string
		jsonOut string
	)

	cmd := &cobra.Command{
		Use:   "graph <suite>",
		Short: "Show a suite's stage dependency graph",
		Long: `Print the topological execution order of a suite and optionally export
its adjacency matrix as CSV or JSON.`,
		Example: `  nitest graph dwi-smoke
  nitest graph dwi-smoke --csv adjacency.csv --json adjacency.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := root.Loader().LoadSuite(args[0])
			if err != nil {
				return err
			}

			adj, err := stage.BuildAdjacency(s)
			if err != nil {
				return err
			}

			if csvOut != "" {
				if err := adj.WriteCSV(csvOut); err != nil {
					return err
				}
			}
			if jsonOut != "" {
				if err := adj.WriteJSON(jsonOut); err != nil {
					return err
				}
			}

			order, err := stage.TopologicalSort(s)
			if err != nil {
				return err
			}

			opts := root.OutputOptions()
			if opts.Format != OutputTable {
				return PrintOutput(adj, opts)
			}
			if opts.Quiet {
				return nil
			}

			ids := make([]string, len(order))
			for i, st := range order {
				ids[i] = st.ID
			}
			fmt.Fprintf(opts.Writer, "Suite %s: %d stages, %d edges\n", s.Name, adj.StageCount, adj.EdgeCount)
			fmt.Fprintf(opts.Writer, "Execution order: %s\n", strings.Join(ids, " -> "))

			for _, st := range order {
				if len(st.DependsOn) > 0 {
					fmt.Fprintf(opts.Writer, "  %s depends on %s\n", st.ID, strings.Join(st.DependsOn, ", "))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&csvOut, "csv", "", "Write the adjacency matrix as CSV to this path")
	cmd.Flags().StringVar(&jsonOut, "json", "", "Write the adjacency structure as JSON to this path")

	return cmd
}
