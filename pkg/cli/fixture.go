package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skooran/nitest/pkg/fixture"
)

func NewFixtureCommand(root *RootCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixture",
		Short: "Synthetic fixture management",
	}

	cmd.AddCommand(NewFixtureEnsureCommand(root))
	cmd.AddCommand(NewFixtureListCommand(root))
	return cmd
}

func NewFixtureListCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List materialized fixtures",
		RunE: func(cmd *cobra.Command, args []string) error {
			type row struct {
				Kind string `json:"kind"`
				Dir  string `json:"dir"`
			}

			derived := root.Config().General.DerivedDataDir()
			entries, err := os.ReadDir(derived)
			if err != nil {
				if os.IsNotExist(err) {
					return PrintOutput([]row{}, root.OutputOptions())
				}
				return err
			}

			var rows []row
			for _, e := range entries {
				if e.IsDir() {
					rows = append(rows, row{Kind: e.Name(), Dir: filepath.Join(derived, e.Name())})
				}
			}
			return PrintOutput(rows, root.OutputOptions())
		},
	}
}

func NewFixtureEnsureCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure <kind>",
		Short: "Materialize a fixture dataset if absent",
		Long: `Synthesize the named fixture under the derived data directory, or do
nothing if its files already exist. Prints the artifact paths.`,
		Example: `  nitest fixture ensure dwi-multishell`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFixtureEnsure(cmd.Context(), root, args[0])
		},
	}
}

func runFixtureEnsure(ctx context.Context, root *RootCommand, kind string) error {
	cfg := root.Config()
	gen := fixture.NewGenerator(cfg.General.DerivedDataDir(), cfg.Fixture)

	paths, err := gen.Ensure(ctx, kind)
	if err != nil {
		return err
	}

	return PrintOutput(struct {
		Kind string `json:"kind"`
		Dir  string `json:"dir"`
		DWI  string `json:"dwi"`
		Mask string `json:"mask"`
		BVal string `json:"bval"`
		BVec string `json:"bvec"`
	}{paths.Kind, paths.Dir, paths.DWI, paths.Mask, paths.BVal, paths.BVec}, root.OutputOptions())
}
