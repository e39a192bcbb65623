// Package parser reads the title, tags and body of Markdown drafts.
package parser

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// maxTitleRunes bounds titles taken from a plain first line.
const maxTitleRunes = 80

var tagRe = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)

// Result holds the output of parsing a draft.
type Result struct {
	Title string
	Tags  []string
	// Body is the content without frontmatter.
	Body string
}

type frontmatter struct {
	Title string `yaml:"title"`
	Tags  any    `yaml:"tags"`
}

// Parse extracts the title, tags and body of data. It never fails: content
// with invalid frontmatter is treated as body.
func Parse(data []byte) Result {
	fm, body := splitFrontmatter(data)
	body = strings.TrimSpace(body)
	return Result{
		Title: deriveTitle(fm, body),
		Tags:  extractTags(fm, body),
		Body:  body,
	}
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (frontmatter, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return frontmatter{}, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return frontmatter{}, string(data)
	}

	var fm frontmatter
	if err := yaml.Unmarshal(rest[:idx], &fm); err != nil {
		return frontmatter{}, string(data)
	}
	return fm, string(rest[idx+1+len(delim):])
}

// deriveTitle prefers the frontmatter title, then the first heading of any
// level, then the first non-empty line.
func deriveTitle(fm frontmatter, body string) string {
	if t := strings.TrimSpace(fm.Title); t != "" {
		return t
	}
	var first string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			if h := strings.TrimSpace(strings.TrimLeft(trimmed, "#")); h != "" {
				return h
			}
			continue
		}
		if first == "" {
			first = trimmed
		}
	}
	if utf8.RuneCountInString(first) > maxTitleRunes {
		first = string([]rune(first)[:maxTitleRunes]) + "…"
	}
	return first
}

// extractTags collects frontmatter tags (a list or a comma separated
// string) followed by inline #tags, without duplicates.
func extractTags(fm frontmatter, body string) []string {
	out := []string{}
	seen := make(map[string]struct{})
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	switch v := fm.Tags.(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			add(s)
		}
	}

	// "# Heading" never matches: a tag needs a letter right after '#'.
	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}
