package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skooran/nitest/pkg/bids"
	"github.com/skooran/nitest/pkg/infra/logger"
)

func NewDatasetCommand(root *RootCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dataset",
		Aliases: []string{"bids"},
		Short:   "BIDS dataset operations",
	}

	cmd.AddCommand(NewDatasetResolveCommand(root))
	return cmd
}

func NewDatasetResolveCommand(root *RootCommand) *cobra.Command {
	var (
		datasetDir string
		queryPath  string
		outPath    string
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve selection queries against a BIDS dataset",
		Long: `Walk a BIDS dataset, match files against the selections in a query file,
and write the resulting job inputs as YAML. Sidecar parameters named in a
selection are lifted into the job inputs as snake_case keys.`,
		Example: `  nitest dataset resolve --dataset /data/bids --query query.json --out job.yml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDatasetResolve(root, datasetDir, queryPath, outPath)
		},
	}

	cmd.Flags().StringVar(&datasetDir, "dataset", "", "BIDS dataset root directory")
	cmd.Flags().StringVar(&queryPath, "query", "", "Selection query JSON file")
	cmd.Flags().StringVar(&outPath, "out", "job.yml", "Output job YAML path")
	cmd.MarkFlagRequired("dataset")
	cmd.MarkFlagRequired("query")

	return cmd
}

func runDatasetResolve(root *RootCommand, datasetDir, queryPath, outPath string) error {
	resolver := bids.NewResolver(datasetDir)

	warning, err := resolver.CheckDataset()
	if err != nil {
		return err
	}
	if warning != "" {
		logger.Warn(warning)
	}

	query, err := bids.ParseQueryFile(queryPath)
	if err != nil {
		return err
	}

	resolved, warnings, err := resolver.Resolve(query)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		logger.Warn(w)
	}

	if err := resolved.WriteJobYAML(outPath); err != nil {
		return err
	}

	PrintSuccess(fmt.Sprintf("resolved %d files into %s", resolved.FileCount(), outPath), root.OutputOptions())
	return nil
}
