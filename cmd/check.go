package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the configured LLM backend is reachable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, cfg, err := wireApp(*configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			if !app.CheckLLM(cmd.Context()) {
				return fmt.Errorf("provider %s (model %s) did not answer", cfg.LLMProvider, app.Provider().ModelName())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s answered (model %s)\n", cfg.LLMProvider, app.Provider().ModelName())
			return nil
		},
	}
}
