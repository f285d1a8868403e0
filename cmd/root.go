// Package cmd implements the zoterochat command line interface.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/zoterochat"
	"github.com/hupe1980/zoterochat/config"
	"github.com/hupe1980/zoterochat/logging"
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "zoterochat",
		Short:         "Chat with your Zotero library through a local LLM",
		Long:          "zoterochat launches the zotero-mcp knowledge service, retrieves papers relevant to your question and answers with the configured LLM backend, citing the sources it used.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (default: ./zoterochat.yaml, then ~/.config/zoterochat)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newChatCmd(&configPath),
		newToolsCmd(&configPath),
		newCheckCmd(&configPath),
	)

	return rootCmd
}

// wireApp loads settings and builds an App. The subprocess is not started;
// commands that need it call Start themselves.
func wireApp(configPath string) (*zoterochat.App, config.Settings, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, config.Settings{}, err
	}
	app, err := zoterochat.New(cfg, func(o *zoterochat.Options) {
		o.Logger = logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, nil)
	})
	if err != nil {
		return nil, config.Settings{}, err
	}
	return app, cfg, nil
}
