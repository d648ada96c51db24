// Copyright 2024-2026 Aiku AI

// Package slackfmt converts Slack mrkdwn to Matrix HTML.
package slackfmt

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"maunium.net/go/mautrix/event"
)

// ParsedMessage holds the result of converting Slack mrkdwn to Matrix format.
type ParsedMessage struct {
	Body          string
	Format        event.Format
	FormattedBody string
	RelatesTo     *event.RelatesTo
}

var (
	boldRe       = regexp.MustCompile(`\*([^*\n]+)\*`)
	italicRe     = regexp.MustCompile(`\b_([^_\n]+)_\b`)
	strikeRe     = regexp.MustCompile(`~([^~\n]+)~`)
	codeRe       = regexp.MustCompile("`([^`]+)`")
	codeBlockRe  = regexp.MustCompile("(?s)```\\n?(.*?)```")
	linkRe       = regexp.MustCompile(`<(https?://[^|>]+)\|([^>]*)>`)
	bareLinkRe   = regexp.MustCompile(`<(https?://[^|>]+)>`)
	mailtoRe     = regexp.MustCompile(`<mailto:([^|>]+)\|([^>]*)>`)
	blockquoteRe = regexp.MustCompile(`(?m)^(?:&gt;|>)\s?(.+)$`)
	ulRe         = regexp.MustCompile(`(?m)^[-•]\s+(.+)$`)

	labeledURIRe = regexp.MustCompile(`<([^#@|>][^|>]*)\|([^|>]*)>`)
	plainURIRe   = regexp.MustCompile(`<(https?://[^>]+)>`)

	escLinkRe     = regexp.MustCompile(`&lt;(https?://[^|&]+)\|([^&]*)&gt;`)
	escBareLinkRe = regexp.MustCompile(`&lt;(https?://[^|&]+)&gt;`)
	escMailtoRe   = regexp.MustCompile(`&lt;mailto:([^|&]+)\|([^&]*)&gt;`)
)

// SanitizeURIs rewrites Slack's angle-bracket URI tokens to plain text:
// <http://example.org|example.org> and <mailto:a@b.org|a@b.org> become the
// label, <http://example.org> becomes the bare URI. Channel and user
// mention tokens are left untouched.
func SanitizeURIs(text string) string {
	text = labeledURIRe.ReplaceAllString(text, "$2")
	text = plainURIRe.ReplaceAllString(text, "$1")
	return text
}

// Parse converts a Slack mrkdwn message to Matrix event content. Mention
// tokens are expected to be rewritten before this runs.
func Parse(text string) *ParsedMessage {
	if text == "" {
		return &ParsedMessage{}
	}

	hasFormatting := boldRe.MatchString(text) ||
		italicRe.MatchString(text) ||
		strikeRe.MatchString(text) ||
		codeRe.MatchString(text) ||
		codeBlockRe.MatchString(text) ||
		linkRe.MatchString(text) ||
		bareLinkRe.MatchString(text) ||
		mailtoRe.MatchString(text) ||
		blockquoteRe.MatchString(text) ||
		ulRe.MatchString(text)

	if !hasFormatting {
		return &ParsedMessage{Body: SanitizeURIs(text)}
	}

	// Step 1: Extract code blocks into placeholders. Slack has no language
	// hints on fences.
	var codeBlocks []string
	processed := codeBlockRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := codeBlockRe.FindStringSubmatch(match)
		content := ""
		if len(parts) >= 2 {
			content = parts[1]
		}
		idx := len(codeBlocks)
		codeBlocks = append(codeBlocks, content)
		return "\x00CODEBLOCK" + strconv.Itoa(idx) + "\x00"
	})

	// Step 2: Process line-by-line for structural elements on raw text.
	lines := strings.Split(processed, "\n")
	var result []string
	var listItems []string

	flushList := func() {
		if len(listItems) == 0 {
			return
		}
		result = append(result, "<ul>"+strings.Join(listItems, "")+"</ul>")
		listItems = nil
	}

	for _, line := range lines {
		if m := blockquoteRe.FindStringSubmatch(line); len(m) >= 2 {
			flushList()
			result = append(result, "<blockquote>"+html.EscapeString(m[1])+"</blockquote>")
			continue
		}

		if m := ulRe.FindStringSubmatch(line); len(m) >= 2 {
			listItems = append(listItems, "<li>"+html.EscapeString(m[1])+"</li>")
			continue
		}

		flushList()
		result = append(result, html.EscapeString(line))
	}
	flushList()

	formatted := strings.Join(result, "\n")

	// Step 3: Inline formatting.
	formatted = codeRe.ReplaceAllString(formatted, "<code>$1</code>")
	formatted = boldRe.ReplaceAllString(formatted, "<strong>$1</strong>")
	formatted = italicRe.ReplaceAllString(formatted, "<em>$1</em>")
	formatted = strikeRe.ReplaceAllString(formatted, "<del>$1</del>")

	// Links. Escaping turned < and > into entities, so match those.
	formatted = escLinkRe.ReplaceAllString(formatted, `<a href="$1">$2</a>`)
	formatted = escBareLinkRe.ReplaceAllString(formatted, `<a href="$1">$1</a>`)
	formatted = escMailtoRe.ReplaceAllString(formatted, `<a href="mailto:$1">$2</a>`)

	// Step 4: Paragraphs (double newlines).
	formatted = strings.ReplaceAll(formatted, "\n\n", "</p><p>")

	// Step 5: Line breaks (remaining single newlines).
	formatted = strings.ReplaceAll(formatted, "\n", "<br/>")

	if strings.Contains(formatted, "</p><p>") {
		formatted = "<p>" + formatted + "</p>"
	}

	// Step 6: Restore code blocks. This runs after the newline passes so
	// the newlines inside a block stay literal.
	for i, content := range codeBlocks {
		placeholder := "\x00CODEBLOCK" + strconv.Itoa(i) + "\x00"
		replacement := `<pre><code>` + html.EscapeString(content) + `</code></pre>`
		formatted = strings.Replace(formatted, placeholder, replacement, 1)
	}

	return &ParsedMessage{
		Body:          SanitizeURIs(text),
		Format:        event.FormatHTML,
		FormattedBody: formatted,
	}
}
