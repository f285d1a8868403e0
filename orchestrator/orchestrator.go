// Package orchestrator drives the retrieval-then-generate pipeline: semantic
// search against the knowledge service, source resolution with carry-forward
// from earlier turns, bounded prompt assembly and delegation to the LLM
// backend. Per-source enrichment failures degrade the answer; search and
// generation failures abort it.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/hupe1980/zoterochat/config"
	"github.com/hupe1980/zoterochat/core"
	"github.com/hupe1980/zoterochat/llm"
	"github.com/hupe1980/zoterochat/logging"
)

// Names of the server-defined tools the pipeline invokes.
const (
	toolSemanticSearch = "zotero_semantic_search"
	toolItemMetadata   = "zotero_get_item_metadata"
	toolItemFulltext   = "zotero_get_item_fulltext"
)

// ToolCaller is the single channel to the knowledge service: a named tool,
// JSON-object arguments, concatenated text back. *transport.Client implements it.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// Result is a generated answer plus the sources that grounded it. Sources are
// informational; they are returned whether or not the model cited them.
type Result struct {
	Content string
	Sources []core.Source
}

// Options configures an Orchestrator.
type Options struct {
	Logger logging.Logger
}

// Orchestrator executes one query at a time against a fixed settings value.
// Settings changes produce a new Orchestrator rather than mutating this one.
type Orchestrator struct {
	tools    ToolCaller
	provider llm.Provider
	cfg      config.Settings
	logger   logging.Logger
}

// New constructs an Orchestrator.
func New(tools ToolCaller, provider llm.Provider, cfg config.Settings, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Orchestrator{tools: tools, provider: provider, cfg: cfg, logger: opts.Logger}
}

// Query answers one question grounded in the document library. History is
// read only; the most recent assistant turn with sources contributes
// carry-forward keys so follow-ups keep their grounding without a re-search.
func (o *Orchestrator) Query(ctx context.Context, question string, history []core.ChatMessage, attachment *core.Attachment) (*Result, error) {
	searchText, err := o.tools.CallTool(ctx, toolSemanticSearch, map[string]any{"query": question})
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	if looksLikeToolError(searchText) {
		return nil, &ToolErrorText{Tool: toolSemanticSearch, Text: searchText}
	}

	keys := extractItemKeys(searchText)

	carrySet := make(map[string]bool)
	var carryKeys []string
	for _, s := range core.LatestSourcedTurn(history) {
		if !carrySet[s.Key] {
			carrySet[s.Key] = true
			carryKeys = append(carryKeys, s.Key)
		}
	}

	// Metadata fetches run sequentially on purpose: one in-flight request
	// bounds the load on the knowledge service.
	sources := make([]core.Source, 0, len(keys)+len(carryKeys))
	have := make(map[string]bool)
	for _, key := range keys {
		src, ok := o.fetchSource(ctx, key)
		if ok {
			sources = append(sources, src)
			have[key] = true
		}
	}

	// Carry-forward keys missing from the fresh results are appended after
	// them, so previously discussed papers stay in context.
	for _, key := range carryKeys {
		if have[key] {
			continue
		}
		src, ok := o.fetchSource(ctx, key)
		if ok {
			sources = append(sources, src)
			have[key] = true
		}
	}

	fullTexts := o.fetchFullTexts(ctx, sources, carrySet)

	contextText := buildContext(sources, searchText, fullTexts)
	messages := buildMessages(o.cfg, question, contextText, history, attachment)

	resp, err := o.provider.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("llm generation: %w", err)
	}

	return &Result{Content: resp.Content, Sources: sources}, nil
}

// fetchSource resolves one key to a Source. Failures are logged and the key
// is dropped; a single bad item never fails the query.
func (o *Orchestrator) fetchSource(ctx context.Context, key string) (core.Source, bool) {
	payload, err := o.tools.CallTool(ctx, toolItemMetadata, map[string]any{"item_key": key})
	if err != nil {
		o.logger.Warn("metadata fetch failed", "item_key", key, "error", err)
		return core.Source{}, false
	}
	return parseMetadata(key, payload), true
}

// fetchFullTexts fetches full text for the configured top-N sources,
// carry-forward sources first, then the rest in resolution order. A top-N of
// zero disables full text entirely.
func (o *Orchestrator) fetchFullTexts(ctx context.Context, sources []core.Source, carrySet map[string]bool) map[string]fullTextEntry {
	if o.cfg.FullTextTopN <= 0 || len(sources) == 0 {
		return nil
	}

	candidates := make([]core.Source, 0, len(sources))
	for _, s := range sources {
		if carrySet[s.Key] {
			candidates = append(candidates, s)
		}
	}
	for _, s := range sources {
		if !carrySet[s.Key] {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) > o.cfg.FullTextTopN {
		candidates = candidates[:o.cfg.FullTextTopN]
	}

	fullTexts := make(map[string]fullTextEntry, len(candidates))
	for _, s := range candidates {
		text, err := o.tools.CallTool(ctx, toolItemFulltext, map[string]any{"item_key": s.Key})
		if err != nil {
			o.logger.Warn("full text fetch failed", "item_key", s.Key, "error", err)
			continue
		}
		if text == "" {
			continue
		}
		fullTexts[s.Key] = truncateFullText(text, o.cfg.FullTextMaxChars)
	}
	return fullTexts
}
