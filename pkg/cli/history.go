package cli

import (
	"github.com/spf13/cobra"

	"github.com/skooran/nitest/pkg/suite"
)

func NewHistoryCommand(root *RootCommand) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded suite runs",
		Long: `List recent suite runs from the history database, or show the per-stage
results of one run.`,
		Example: `  nitest history
  nitest history 7b0c9f4e-... -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := suite.NewStore(root.Config().History.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				results, err := store.StageResults(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return PrintOutput(results, root.OutputOptions())
			}

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return PrintOutput(runs, root.OutputOptions())
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")
	return cmd
}
