// Package normalize maps raw Notion search results onto models.Document.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/starford/izy/internal/apperr"
	"github.com/starford/izy/internal/models"
)

type richText struct {
	PlainText string `json:"plain_text"`
}

type selectOption struct {
	Name string `json:"name"`
}

type rawIcon struct {
	Type  string `json:"type"`
	Emoji string `json:"emoji"`
}

type rawItem struct {
	ID             string          `json:"id"`
	Object         string          `json:"object"`
	URL            string          `json:"url"`
	LastEditedTime string          `json:"last_edited_time"`
	Icon           *rawIcon        `json:"icon"`
	Properties     json.RawMessage `json:"properties"`
	Title          json.RawMessage `json:"title"`
}

// rawProperty keeps every typed value raw: database objects carry schema
// objects where pages carry value arrays.
type rawProperty struct {
	Type        string          `json:"type"`
	Title       json.RawMessage `json:"title"`
	RichText    json.RawMessage `json:"rich_text"`
	Select      json.RawMessage `json:"select"`
	MultiSelect json.RawMessage `json:"multi_select"`
}

type property struct {
	name string
	raw  rawProperty
	ok   bool
}

// Normalize converts one raw result item. It returns apperr.ErrMalformedItem
// when the item lacks an id, url or last edited time.
func Normalize(raw []byte) (models.Document, error) {
	var item rawItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return models.Document{}, fmt.Errorf("%w: %v", apperr.ErrMalformedItem, err)
	}
	switch {
	case item.ID == "":
		return models.Document{}, fmt.Errorf("%w: missing id", apperr.ErrMalformedItem)
	case item.URL == "":
		return models.Document{}, fmt.Errorf("%w: missing url (id %s)", apperr.ErrMalformedItem, item.ID)
	case item.LastEditedTime == "":
		return models.Document{}, fmt.Errorf("%w: missing last_edited_time (id %s)", apperr.ErrMalformedItem, item.ID)
	}

	props := decodeProperties(item.Properties)

	kind := models.KindDocument
	icon := models.IconDocument
	if item.Object == "database" {
		kind = models.KindContainer
		icon = models.IconContainer
	}
	emoji := ""
	if item.Icon != nil {
		emoji = item.Icon.Emoji
	}
	if emoji != "" {
		icon = emoji
	}

	return models.Document{
		ID:         item.ID,
		Title:      resolveTitle(props, item.Title, emoji),
		Kind:       kind,
		LastEdited: item.LastEditedTime,
		URL:        item.URL,
		Summary:    summarize(props),
		Tags:       resolveTags(props),
		Icon:       icon,
	}, nil
}

// NormalizeAll normalizes every item, dropping and logging the malformed ones.
func NormalizeAll(items []json.RawMessage, logger *slog.Logger) []models.Document {
	out := make([]models.Document, 0, len(items))
	for i, raw := range items {
		doc, err := Normalize(raw)
		if err != nil {
			if logger != nil {
				logger.Warn("normalize: dropping item",
					slog.Int("index", i),
					slog.String("error", err.Error()))
			}
			continue
		}
		out = append(out, doc)
	}
	return out
}

// decodeProperties returns the property map in source order. A property
// whose value cannot be decoded is kept with ok=false so lookups by name
// still see it.
func decodeProperties(data json.RawMessage) []property {
	if isNull(data) {
		return nil
	}
	om := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(data, om); err != nil {
		return nil
	}
	out := make([]property, 0, om.Len())
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		p := property{name: pair.Key}
		if err := json.Unmarshal(pair.Value, &p.raw); err == nil {
			p.ok = true
		}
		out = append(out, p)
	}
	return out
}

func lookup(props []property, name string) (rawProperty, bool) {
	for _, p := range props {
		if p.name == name {
			return p.raw, p.ok
		}
	}
	return rawProperty{}, false
}

func resolveTitle(props []property, topLevel json.RawMessage, emoji string) string {
	for _, p := range props {
		if !p.ok || p.raw.Type != "title" {
			continue
		}
		if t := firstRun(p.raw.Title); t != "" {
			return t
		}
		break
	}
	if t := firstRun(topLevel); t != "" {
		return t
	}
	if emoji != "" {
		return emoji
	}
	return models.UntitledTitle
}

func resolveTags(props []property) []string {
	tags := []string{}
	if p, ok := lookup(props, "Tags"); ok {
		if names, isArray := optionNames(p.MultiSelect); isArray {
			return append(tags, names...)
		}
	}
	if p, ok := lookup(props, "Status"); ok {
		if name := selectName(p.Select); name != "" {
			tags = append(tags, name)
		}
	}
	return tags
}

func summarize(props []property) string {
	parts := make([]string, 0, len(props))
	for _, p := range props {
		if !p.ok {
			continue
		}
		if s := renderProperty(p.name, p.raw); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ". ")
}

func renderProperty(name string, p rawProperty) string {
	var value string
	switch p.Type {
	case "select":
		value = selectName(p.Select)
	case "multi_select":
		names, _ := optionNames(p.MultiSelect)
		value = strings.Join(names, ", ")
	case "rich_text":
		runs, _ := textRuns(p.RichText)
		value = strings.Join(runs, " ")
	default:
		return ""
	}
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return name + ": " + value
}

func firstRun(data json.RawMessage) string {
	runs, ok := textRuns(data)
	if !ok || len(runs) == 0 {
		return ""
	}
	return runs[0]
}

// textRuns decodes an array of rich text runs. ok is false when data is
// not an array.
func textRuns(data json.RawMessage) ([]string, bool) {
	if !isArray(data) {
		return nil, false
	}
	var runs []richText
	if err := json.Unmarshal(data, &runs); err != nil {
		return nil, false
	}
	out := make([]string, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.PlainText)
	}
	return out, true
}

func optionNames(data json.RawMessage) ([]string, bool) {
	if !isArray(data) {
		return nil, false
	}
	var opts []selectOption
	if err := json.Unmarshal(data, &opts); err != nil {
		return nil, false
	}
	names := make([]string, 0, len(opts))
	for _, o := range opts {
		names = append(names, o.Name)
	}
	return names, true
}

func selectName(data json.RawMessage) string {
	if isNull(data) {
		return ""
	}
	var opt selectOption
	if err := json.Unmarshal(data, &opt); err != nil {
		return ""
	}
	return opt.Name
}

func isNull(data json.RawMessage) bool {
	d := bytes.TrimSpace(data)
	return len(d) == 0 || bytes.Equal(d, []byte("null"))
}

func isArray(data json.RawMessage) bool {
	d := bytes.TrimSpace(data)
	return len(d) > 0 && d[0] == '['
}
