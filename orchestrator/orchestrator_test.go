package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/zoterochat/config"
	"github.com/hupe1980/zoterochat/core"
	"github.com/hupe1980/zoterochat/llm"
)

type toolCall struct {
	Name string
	Args map[string]any
}

// fakeTools scripts tool responses and records every call in order.
type fakeTools struct {
	calls       []toolCall
	search      string
	searchErr   error
	metadata    map[string]string
	metadataErr map[string]error
	fulltext    map[string]string
	fulltextErr map[string]error
}

func (f *fakeTools) CallTool(_ context.Context, name string, args map[string]any) (string, error) {
	f.calls = append(f.calls, toolCall{Name: name, Args: args})
	switch name {
	case toolSemanticSearch:
		return f.search, f.searchErr
	case toolItemMetadata:
		key := args["item_key"].(string)
		if err := f.metadataErr[key]; err != nil {
			return "", err
		}
		return f.metadata[key], nil
	case toolItemFulltext:
		key := args["item_key"].(string)
		if err := f.fulltextErr[key]; err != nil {
			return "", err
		}
		return f.fulltext[key], nil
	}
	return "", fmt.Errorf("unexpected tool %s", name)
}

func (f *fakeTools) callsTo(name string) []toolCall {
	var out []toolCall
	for _, c := range f.calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

type fakeProvider struct {
	reply    string
	err      error
	messages []llm.Message
}

func (p *fakeProvider) Chat(_ context.Context, messages []llm.Message) (*llm.Response, error) {
	p.messages = messages
	if p.err != nil {
		return nil, p.err
	}
	return &llm.Response{Content: p.reply}, nil
}

func (p *fakeProvider) TestConnection(context.Context) bool { return true }
func (p *fakeProvider) ModelName() string                   { return "fake-model" }

func metadataJSON(title string) string {
	return fmt.Sprintf(`{"title":%q,"creators":[{"lastName":"Smith","firstName":"J"}],`+
		`"date":"2021-05-01","itemType":"journalArticle"}`, title)
}

func TestQuery_EndToEnd(t *testing.T) {
	tools := &fakeTools{
		search:   `[{"key":"ABCD1234"}]`,
		metadata: map[string]string{"ABCD1234": metadataJSON("Foo")},
		fulltext: map[string]string{"ABCD1234": "full body of the paper"},
	}
	provider := &fakeProvider{reply: "Smith (2021) argues..."}

	o := New(tools, provider, config.Default())
	result, err := o.Query(context.Background(), "what does Smith argue?", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "Smith (2021) argues...", result.Content)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, core.Source{
		Key:      "ABCD1234",
		Title:    "Foo",
		Authors:  "Smith, J",
		Year:     "2021",
		ItemType: "journalArticle",
	}, result.Sources[0])

	require.NotEmpty(t, provider.messages)
	assert.Equal(t, core.RoleSystem, provider.messages[0].Role)
	final := provider.messages[len(provider.messages)-1].Content
	assert.Contains(t, final, "[1] Foo")
	assert.Contains(t, final, "full body of the paper")
	assert.Contains(t, final, "what does Smith argue?")
}

func TestQuery_ErrorTextAbortsBeforeEnrichment(t *testing.T) {
	tools := &fakeTools{search: "semantic search error: collection [papers] not found"}
	o := New(tools, &fakeProvider{}, config.Default())

	_, err := o.Query(context.Background(), "anything", nil, nil)
	var terr *ToolErrorText
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, toolSemanticSearch, terr.Tool)

	require.Len(t, tools.calls, 1, "no metadata or full-text calls after an error-shaped search result")
}

func TestQuery_SearchFailureIsFatal(t *testing.T) {
	tools := &fakeTools{searchErr: errors.New("connection refused")}
	o := New(tools, &fakeProvider{}, config.Default())
	_, err := o.Query(context.Background(), "q", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "semantic search")
}

func TestQuery_GenerationFailureIsFatal(t *testing.T) {
	tools := &fakeTools{search: "nothing relevant"}
	o := New(tools, &fakeProvider{err: errors.New("model overloaded")}, config.Default())
	_, err := o.Query(context.Background(), "q", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm generation")
}

func TestQuery_PartialMetadataFailureDegrades(t *testing.T) {
	tools := &fakeTools{
		search:      `[{"key":"AAAA1111"},{"key":"BBBB2222"}]`,
		metadata:    map[string]string{"BBBB2222": metadataJSON("Survivor")},
		metadataErr: map[string]error{"AAAA1111": errors.New("item gone")},
	}
	o := New(tools, &fakeProvider{reply: "ok"}, config.Default())

	result, err := o.Query(context.Background(), "q", nil, nil)
	require.NoError(t, err, "one bad item never fails the query")
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "BBBB2222", result.Sources[0].Key)
}

func TestQuery_CarryForwardAppendedAndFetchedOnce(t *testing.T) {
	history := []core.ChatMessage{
		{Role: core.RoleUser, Content: "earlier question"},
		{Role: core.RoleAssistant, Content: "earlier answer", Sources: []core.Source{
			{Key: "CARR1111", Title: "Carried"},
			{Key: "BOTH2222", Title: "Also In New Results"},
		}},
	}
	tools := &fakeTools{
		search: `[{"key":"NEWW3333"},{"key":"BOTH2222"}]`,
		metadata: map[string]string{
			"NEWW3333": metadataJSON("New Paper"),
			"BOTH2222": metadataJSON("Both Paper"),
			"CARR1111": metadataJSON("Carried Paper"),
		},
		fulltext: map[string]string{
			"NEWW3333": "new text", "BOTH2222": "both text", "CARR1111": "carried text",
		},
	}
	cfg := config.Default()
	cfg.FullTextTopN = 2
	o := New(tools, &fakeProvider{reply: "ok"}, cfg)

	result, err := o.Query(context.Background(), "follow-up", history, nil)
	require.NoError(t, err)

	// Fresh results first, then carried keys missing from them.
	keys := make([]string, 0, len(result.Sources))
	for _, s := range result.Sources {
		keys = append(keys, s.Key)
	}
	assert.Equal(t, []string{"NEWW3333", "BOTH2222", "CARR1111"}, keys)

	// Each key resolved exactly once even though BOTH2222 is carried and fresh.
	metaCalls := tools.callsTo(toolItemMetadata)
	require.Len(t, metaCalls, 3)

	// Full text prioritizes carry-forward sources, in source order.
	ftCalls := tools.callsTo(toolItemFulltext)
	require.Len(t, ftCalls, 2)
	assert.Equal(t, "BOTH2222", ftCalls[0].Args["item_key"])
	assert.Equal(t, "CARR1111", ftCalls[1].Args["item_key"])
}

func TestQuery_FullTextDisabled(t *testing.T) {
	tools := &fakeTools{
		search:   `[{"key":"AAAA1111"}]`,
		metadata: map[string]string{"AAAA1111": metadataJSON("Paper")},
		fulltext: map[string]string{"AAAA1111": "should never be fetched"},
	}
	cfg := config.Default()
	cfg.FullTextTopN = 0
	provider := &fakeProvider{reply: "ok"}
	o := New(tools, provider, cfg)

	_, err := o.Query(context.Background(), "q", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, tools.callsTo(toolItemFulltext))
	final := provider.messages[len(provider.messages)-1].Content
	assert.NotContains(t, final, "Full text")
}

func TestQuery_FullTextTruncationMarker(t *testing.T) {
	cfg := config.Default()
	cfg.FullTextMaxChars = 10
	tools := &fakeTools{
		search:   `[{"key":"AAAA1111"}]`,
		metadata: map[string]string{"AAAA1111": metadataJSON("Paper")},
		fulltext: map[string]string{"AAAA1111": strings.Repeat("x", 50)},
	}
	provider := &fakeProvider{reply: "ok"}
	o := New(tools, provider, cfg)

	_, err := o.Query(context.Background(), "q", nil, nil)
	require.NoError(t, err)
	final := provider.messages[len(provider.messages)-1].Content
	assert.Contains(t, final, "Full text (truncated): "+strings.Repeat("x", 10))
	assert.NotContains(t, final, strings.Repeat("x", 11))
}

func TestQuery_FullTextFailureSkipped(t *testing.T) {
	tools := &fakeTools{
		search:      `[{"key":"AAAA1111"},{"key":"BBBB2222"}]`,
		metadata:    map[string]string{"AAAA1111": metadataJSON("A"), "BBBB2222": metadataJSON("B")},
		fulltext:    map[string]string{"BBBB2222": "b body"},
		fulltextErr: map[string]error{"AAAA1111": errors.New("no attachment")},
	}
	provider := &fakeProvider{reply: "ok"}
	o := New(tools, provider, config.Default())

	result, err := o.Query(context.Background(), "q", nil, nil)
	require.NoError(t, err)
	assert.Len(t, result.Sources, 2, "full-text failures never drop a source")
	final := provider.messages[len(provider.messages)-1].Content
	assert.Contains(t, final, "b body")
}

func TestQuery_NoKeysUsesRawSearchText(t *testing.T) {
	tools := &fakeTools{search: "some prose without identifiers"}
	provider := &fakeProvider{reply: "ok"}
	o := New(tools, provider, config.Default())

	result, err := o.Query(context.Background(), "q", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Sources)
	final := provider.messages[len(provider.messages)-1].Content
	assert.Contains(t, final, "no structured metadata available")
	assert.Contains(t, final, "some prose without identifiers")
}
