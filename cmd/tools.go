package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newToolsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools exposed by the zotero-mcp service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, _, err := wireApp(*configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Start(cmd.Context()); err != nil {
				return err
			}
			tools, err := app.Tools(cmd.Context())
			if err != nil {
				return err
			}
			for _, tool := range tools {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", tool.Name, tool.Description)
			}
			return nil
		},
	}
}
