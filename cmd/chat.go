package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/zoterochat/core"
	"github.com/hupe1980/zoterochat/orchestrator"
)

func newChatCmd(configPath *string) *cobra.Command {
	var notePath string

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session against your Zotero library",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, _, err := wireApp(*configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			var attachment *core.Attachment
			if notePath != "" {
				content, err := os.ReadFile(notePath)
				if err != nil {
					return fmt.Errorf("read note: %w", err)
				}
				attachment = &core.Attachment{
					Name:    filepath.Base(notePath),
					Content: string(content),
				}
			}

			styles := newChatStyles()

			if err := runWithSpinner(cmd.Context(), cmd.OutOrStdout(), "Starting zotero-mcp...", app.Start); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), styles.notice.Render(
				fmt.Sprintf("Ready (model: %s). Type a question, or /quit to exit.", app.Provider().ModelName())))
			fmt.Fprintln(cmd.OutOrStdout())

			var history []core.ChatMessage
			scanner := bufio.NewScanner(cmd.InOrStdin())
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for {
				fmt.Fprint(cmd.OutOrStdout(), styles.prompt.Render("> "))
				if !scanner.Scan() {
					break
				}
				question := strings.TrimSpace(scanner.Text())
				if question == "" {
					continue
				}
				if question == "/quit" || question == "/exit" {
					break
				}

				var result *orchestrator.Result
				err := runWithSpinner(cmd.Context(), cmd.OutOrStdout(), "Searching your library...", func(ctx context.Context) error {
					var qerr error
					result, qerr = app.Query(ctx, question, history, attachment)
					return qerr
				})
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
					continue
				}

				fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", styles.answer.Render(result.Content))
				if len(result.Sources) > 0 {
					fmt.Fprintln(cmd.OutOrStdout(), styles.sourcesHeader.Render("Sources:"))
					for i, s := range result.Sources {
						fmt.Fprintf(cmd.OutOrStdout(), "  [%d] %s %s\n", i+1,
							styles.sourceTitle.Render(s.Title),
							styles.sourceMeta.Render(fmt.Sprintf("(%s, %s)", s.Authors, s.Year)))
					}
				}
				fmt.Fprintln(cmd.OutOrStdout())

				history = append(history, core.NewChatMessage(core.RoleUser, question))
				answer := core.NewChatMessage(core.RoleAssistant, result.Content)
				answer.Sources = result.Sources
				history = append(history, answer)
			}
			return scanner.Err()
		},
	}
	chatCmd.Flags().StringVar(&notePath, "note", "", "path to a text file attached to every question")

	return chatCmd
}
