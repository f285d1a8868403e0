package orchestrator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hupe1980/zoterochat/config"
	"github.com/hupe1980/zoterochat/core"
	"github.com/hupe1980/zoterochat/llm"
)

// fullTextEntry is a fetched full text, possibly cut at the character cap.
type fullTextEntry struct {
	Text      string
	Truncated bool
}

// truncateFullText cuts text at maxChars runes. The truncated flag is set
// exactly when the fetched text reached the cap.
func truncateFullText(text string, maxChars int) fullTextEntry {
	if utf8.RuneCountInString(text) < maxChars {
		return fullTextEntry{Text: text}
	}
	runes := []rune(text)
	if len(runes) > maxChars {
		runes = runes[:maxChars]
	}
	return fullTextEntry{Text: string(runes), Truncated: true}
}

// buildContext renders the resolved sources as numbered blocks. With no
// sources at all it degrades to the raw search text verbatim, so the model
// still sees whatever the service said.
func buildContext(sources []core.Source, rawSearch string, fullTexts map[string]fullTextEntry) string {
	if len(sources) == 0 {
		return "Search results (no structured metadata available):\n" + rawSearch
	}

	var b strings.Builder
	b.WriteString("Papers from the user's Zotero library:\n\n")
	for i, s := range sources {
		if i > 0 {
			b.WriteString("\n\n")
		}
		authors := s.Authors
		if authors == "" {
			authors = "Unknown"
		}
		fmt.Fprintf(&b, "[%d] %s\n   Authors: %s\n   Year: %s\n   Type: %s",
			i+1, s.Title, authors, s.Year, s.ItemType)
		if s.Abstract != "" {
			fmt.Fprintf(&b, "\n   Abstract: %s", s.Abstract)
		}
		if ft, ok := fullTexts[s.Key]; ok && ft.Text != "" {
			label := "Full text"
			if ft.Truncated {
				label = "Full text (truncated)"
			}
			fmt.Fprintf(&b, "\n   %s: %s", label, ft.Text)
		}
	}
	return b.String()
}

// buildMessages assembles the final prompt: the system instruction, the most
// recent history turns verbatim, then one user message carrying context,
// attached note and the question, in that fixed order.
func buildMessages(cfg config.Settings, question, context string, history []core.ChatMessage, attachment *core.Attachment) []llm.Message {
	messages := []llm.Message{{Role: core.RoleSystem, Content: cfg.SystemPrompt}}

	recent := history
	if len(recent) > cfg.MaxConversationHistory {
		recent = recent[len(recent)-cfg.MaxConversationHistory:]
	}
	for _, msg := range recent {
		messages = append(messages, llm.Message{Role: msg.Role, Content: msg.Content})
	}

	var b strings.Builder
	b.WriteString("Context from Zotero library:\n\n")
	b.WriteString(context)
	if attachment != nil && strings.TrimSpace(attachment.Content) != "" {
		fmt.Fprintf(&b, "\n\nAttached note %q:\n%s", attachment.Name, attachment.Content)
	}
	fmt.Fprintf(&b, "\n\n---\n\nQuestion: %s", question)

	return append(messages, llm.Message{Role: core.RoleUser, Content: b.String()})
}
