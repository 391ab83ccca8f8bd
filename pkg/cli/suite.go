package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skooran/nitest/pkg/stage"
)

func NewSuiteCommand(root *RootCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suite",
		Short: "Test suite inspection",
	}

	cmd.AddCommand(NewSuiteListCommand(root))
	cmd.AddCommand(NewSuiteShowCommand(root))
	cmd.AddCommand(NewSuiteValidateCommand(root))
	return cmd
}

func NewSuiteListCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the embedded test suites",
		RunE: func(cmd *cobra.Command, args []string) error {
			type row struct {
				Name        string `json:"name"`
				Stages      int    `json:"stages"`
				Description string `json:"description"`
			}

			var rows []row
			for _, name := range root.Loader().Suites() {
				s, err := root.Loader().LoadSuite(name)
				if err != nil {
					return err
				}
				rows = append(rows, row{Name: name, Stages: len(s.Stages), Description: s.Description})
			}
			return PrintOutput(rows, root.OutputOptions())
		},
	}
}

func NewSuiteShowCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name|path>",
		Short: "Show a parsed suite definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := root.Loader().LoadSuite(args[0])
			if err != nil {
				return err
			}
			return PrintOutput(s, root.OutputOptions())
		},
	}
}

func NewSuiteValidateCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <name|path>",
		Short: "Check a suite's stage graph for defects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := root.Loader().LoadSuite(args[0])
			if err != nil {
				return err
			}

			result := stage.NewGraphValidator().Validate(s)
			if result.Valid {
				PrintSuccess(fmt.Sprintf("suite %s is valid", s.Name), root.OutputOptions())
				return nil
			}

			for _, e := range result.Errors {
				PrintError(e, root.OutputOptions())
			}
			return fmt.Errorf("suite %s: %d validation errors", s.Name, len(result.Errors))
		},
	}
}
