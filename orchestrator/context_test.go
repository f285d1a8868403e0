package orchestrator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/zoterochat/config"
	"github.com/hupe1980/zoterochat/core"
)

func TestTruncateFullText(t *testing.T) {
	short := truncateFullText("abc", 10)
	assert.Equal(t, "abc", short.Text)
	assert.False(t, short.Truncated)

	// Exactly at the cap: nothing is cut, but the marker is set, because the
	// fetch may have been limited server-side.
	exact := truncateFullText("abcde", 5)
	assert.Equal(t, "abcde", exact.Text)
	assert.True(t, exact.Truncated)

	long := truncateFullText("abcdefgh", 5)
	assert.Equal(t, "abcde", long.Text)
	assert.True(t, long.Truncated)
}

func TestTruncateFullText_RuneSafe(t *testing.T) {
	got := truncateFullText("日本語のテキスト", 4)
	assert.Equal(t, "日本語の", got.Text)
	assert.True(t, got.Truncated)
}

func TestBuildContext_NoSourcesFallsBackToRawText(t *testing.T) {
	raw := "three loosely related notes were found"
	got := buildContext(nil, raw, nil)
	assert.Contains(t, got, "no structured metadata available")
	assert.Contains(t, got, raw)
}

func TestBuildContext_NumberedBlocks(t *testing.T) {
	sources := []core.Source{
		{Key: "AAAA1111", Title: "First Paper", Authors: "Smith, J", Year: "2020", ItemType: "journalArticle", Abstract: "About things."},
		{Key: "BBBB2222", Title: "Second Paper", Year: "n.d.", ItemType: "report"},
	}
	fullTexts := map[string]fullTextEntry{
		"AAAA1111": {Text: "body text", Truncated: true},
	}

	got := buildContext(sources, "raw", fullTexts)
	assert.Contains(t, got, "[1] First Paper")
	assert.Contains(t, got, "Authors: Smith, J")
	assert.Contains(t, got, "Abstract: About things.")
	assert.Contains(t, got, "Full text (truncated): body text")
	assert.Contains(t, got, "[2] Second Paper")
	assert.Contains(t, got, "Authors: Unknown")
	assert.NotContains(t, got, "no structured metadata")
}

func TestBuildContext_UntruncatedLabel(t *testing.T) {
	sources := []core.Source{{Key: "AAAA1111", Title: "Paper", Year: "2020", ItemType: "report"}}
	got := buildContext(sources, "raw", map[string]fullTextEntry{"AAAA1111": {Text: "whole body"}})
	assert.Contains(t, got, "Full text: whole body")
	assert.NotContains(t, got, "(truncated)")
}

func TestBuildMessages_Order(t *testing.T) {
	cfg := config.Default()
	cfg.SystemPrompt = "be helpful"
	cfg.MaxConversationHistory = 2

	history := []core.ChatMessage{
		{Role: core.RoleUser, Content: "dropped, history window is 2"},
		{Role: core.RoleUser, Content: "kept question"},
		{Role: core.RoleAssistant, Content: "kept answer"},
	}
	attachment := &core.Attachment{Name: "ideas.md", Content: "my draft notes"}

	messages := buildMessages(cfg, "what changed?", "CONTEXT", history, attachment)
	require.Len(t, messages, 4)

	assert.Equal(t, core.RoleSystem, messages[0].Role)
	assert.Equal(t, "be helpful", messages[0].Content)
	assert.Equal(t, "kept question", messages[1].Content)
	assert.Equal(t, "kept answer", messages[2].Content)

	final := messages[3]
	assert.Equal(t, core.RoleUser, final.Role)
	ctxIdx := strings.Index(final.Content, "CONTEXT")
	noteIdx := strings.Index(final.Content, "my draft notes")
	questionIdx := strings.Index(final.Content, "what changed?")
	require.True(t, ctxIdx >= 0 && noteIdx >= 0 && questionIdx >= 0)
	assert.Less(t, ctxIdx, noteIdx, "context precedes the attached note")
	assert.Less(t, noteIdx, questionIdx, "attached note precedes the question")
}

func TestBuildMessages_NoAttachment(t *testing.T) {
	messages := buildMessages(config.Default(), "q", "CTX", nil, nil)
	require.Len(t, messages, 2)
	assert.NotContains(t, messages[1].Content, "Attached note")

	// Blank attachments are dropped too.
	messages = buildMessages(config.Default(), "q", "CTX", nil, &core.Attachment{Name: "empty.md", Content: "  \n"})
	assert.NotContains(t, messages[1].Content, "Attached note")
}
