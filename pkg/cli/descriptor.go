package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skooran/nitest/pkg/descriptor"
)

func NewDescriptorCommand(root *RootCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "descriptor",
		Short: "Tool descriptor inspection",
	}

	cmd.AddCommand(NewDescriptorListCommand(root))
	cmd.AddCommand(NewDescriptorShowCommand(root))
	cmd.AddCommand(NewDescriptorValidateCommand(root))
	return cmd
}

func NewDescriptorListCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the embedded tool descriptors",
		RunE: func(cmd *cobra.Command, args []string) error {
			type row struct {
				Name        string `json:"name"`
				Tool        string `json:"tool_version"`
				Image       string `json:"image"`
				Description string `json:"description"`
			}

			var rows []row
			for _, name := range root.Loader().Descriptors() {
				d, err := root.Loader().Load(name)
				if err != nil {
					return err
				}
				r := row{Name: name, Tool: d.ToolVersion, Description: d.Description}
				if d.ContainerImg != nil {
					r.Image = d.ContainerImg.Image
				}
				rows = append(rows, r)
			}
			return PrintOutput(rows, root.OutputOptions())
		},
	}
}

func NewDescriptorShowCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name|path>",
		Short: "Show a parsed descriptor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := root.Loader().Load(args[0])
			if err != nil {
				return err
			}
			return PrintOutput(d, root.OutputOptions())
		},
	}
}

func NewDescriptorValidateCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <name|path>",
		Short: "Check a descriptor for structural defects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := root.Loader().Load(args[0])
			if err != nil {
				return err
			}

			result := descriptor.NewValidator().Validate(d)
			if result.Valid {
				PrintSuccess(fmt.Sprintf("descriptor %s is valid", d.Name), root.OutputOptions())
				return nil
			}

			for _, e := range result.Errors {
				PrintError(e, root.OutputOptions())
			}
			return fmt.Errorf("descriptor %s: %d validation errors", d.Name, len(result.Errors))
		},
	}
}
