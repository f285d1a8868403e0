package orchestrator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/hupe1980/zoterochat/core"
)

// Safe defaults when the service omits a field in either branch.
const (
	defaultTitle    = "Untitled"
	defaultYear     = "n.d."
	defaultItemType = "unknown"
)

var yearPattern = regexp.MustCompile(`\b(\d{4})\b`)

type creator struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Name      string `json:"name"`
}

type itemMetadata struct {
	Title        string    `json:"title"`
	Creators     []creator `json:"creators"`
	Authors      []creator `json:"authors"`
	Date         any       `json:"date"`
	Year         any       `json:"year"`
	ItemType     string    `json:"itemType"`
	AbstractNote string    `json:"abstractNote"`
	Abstract     string    `json:"abstract"`
}

// parseMetadata turns a metadata tool payload into a Source. It is total: a
// JSON object with recognizable fields takes the structured branch, anything
// else the labeled-markdown branch, and missing fields fall back to safe
// defaults. The branch decision is explicit, not driven by error flow.
func parseMetadata(key, payload string) core.Source {
	trimmed := strings.TrimSpace(payload)
	if strings.HasPrefix(trimmed, "{") {
		var meta itemMetadata
		if err := json.Unmarshal([]byte(trimmed), &meta); err == nil {
			return sourceFromJSON(key, meta)
		}
	}
	return sourceFromMarkdown(key, payload)
}

func sourceFromJSON(key string, meta itemMetadata) core.Source {
	creators := meta.Creators
	if len(creators) == 0 {
		creators = meta.Authors
	}

	title := meta.Title
	if title == "" {
		title = defaultTitle
	}
	itemType := meta.ItemType
	if itemType == "" {
		itemType = defaultItemType
	}
	abstract := meta.AbstractNote
	if abstract == "" {
		abstract = meta.Abstract
	}

	return core.Source{
		Key:      key,
		Title:    title,
		Authors:  formatAuthors(creators),
		Year:     yearFromFields(meta.Date, meta.Year),
		ItemType: itemType,
		Abstract: abstract,
	}
}

// yearFromFields prefers the first four characters of a non-empty date field
// and falls back to a stringified year field, then the "n.d." sentinel.
func yearFromFields(date, year any) string {
	if s := stringify(date); s != "" {
		r := []rune(s)
		if len(r) > 4 {
			r = r[:4]
		}
		return string(r)
	}
	if s := stringify(year); s != "" {
		return s
	}
	return defaultYear
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		// JSON numbers decode as float64; years are integral.
		return fmt.Sprintf("%.0f", t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// formatAuthors renders creators as "Last, First" pairs joined by "; ",
// falling back to a bare name field when structured names are absent.
func formatAuthors(creators []creator) string {
	var parts []string
	for _, c := range creators {
		switch {
		case c.Name != "":
			parts = append(parts, c.Name)
		case c.LastName != "" && c.FirstName != "":
			parts = append(parts, c.LastName+", "+c.FirstName)
		case c.LastName != "":
			parts = append(parts, c.LastName)
		case c.FirstName != "":
			parts = append(parts, c.FirstName)
		}
	}
	return strings.Join(parts, "; ")
}

// sourceFromMarkdown parses the service's labeled markdown format: a leading
// "# Title" line, "**Type:**" / "**Authors:**" / "**Date:**" lines, and an
// "## Abstract" section whose body accumulates until the next heading.
func sourceFromMarkdown(key, payload string) core.Source {
	src := core.Source{
		Key:      key,
		Title:    defaultTitle,
		Year:     defaultYear,
		ItemType: defaultItemType,
	}

	var abstractLines []string
	inAbstract := false

	for _, line := range strings.Split(payload, "\n") {
		t := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(t, "# "):
			src.Title = strings.TrimSpace(t[2:])
			inAbstract = false
		case strings.HasPrefix(t, "**Type:**"):
			src.ItemType = strings.TrimSpace(strings.TrimPrefix(t, "**Type:**"))
			inAbstract = false
		case strings.HasPrefix(t, "**Authors:**"):
			src.Authors = strings.TrimSpace(strings.TrimPrefix(t, "**Authors:**"))
			inAbstract = false
		case strings.HasPrefix(t, "**Date:**"):
			dateStr := strings.TrimSpace(strings.TrimPrefix(t, "**Date:**"))
			if m := yearPattern.FindString(dateStr); m != "" {
				src.Year = m
			}
			inAbstract = false
		case t == "## Abstract":
			inAbstract = true
		case strings.HasPrefix(t, "## "):
			inAbstract = false
		case inAbstract && t != "":
			abstractLines = append(abstractLines, t)
		}
	}

	if src.ItemType == "" {
		src.ItemType = defaultItemType
	}
	src.Abstract = strings.Join(abstractLines, " ")
	return src
}
