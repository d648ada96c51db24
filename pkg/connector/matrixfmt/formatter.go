// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package matrixfmt converts Matrix HTML to Slack mrkdwn.
package matrixfmt

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"maunium.net/go/mautrix/event"
)

var (
	strongRe     = regexp.MustCompile(`<strong>(.*?)</strong>`)
	bRe          = regexp.MustCompile(`<b>(.*?)</b>`)
	emRe         = regexp.MustCompile(`<em>(.*?)</em>`)
	iRe          = regexp.MustCompile(`<i>(.*?)</i>`)
	delRe        = regexp.MustCompile(`<del>(.*?)</del>`)
	codeRe       = regexp.MustCompile(`<code>(.*?)</code>`)
	preRe        = regexp.MustCompile(`(?s)<pre><code(?: class="[^"]*")?>(.*?)</code></pre>`)
	linkRe       = regexp.MustCompile(`<a href="([^"]+)"[^>]*>(.*?)</a>`)
	imgRe        = regexp.MustCompile(`<img[^>]*src="([^"]+)"[^>]*/?>`)
	brRe         = regexp.MustCompile(`<br\s*/?>`)
	blockquoteRe = regexp.MustCompile(`(?s)<blockquote>(.*?)</blockquote>`)
	headingRe    = regexp.MustCompile(`<h([1-6])>(.*?)</h[1-6]>`)
	ulRe         = regexp.MustCompile(`(?s)<ul>(.*?)</ul>`)
	olRe         = regexp.MustCompile(`(?s)<ol>(.*?)</ol>`)
	liRe         = regexp.MustCompile(`<li>(.*?)</li>`)
	pRe          = regexp.MustCompile(`(?s)<p>(.*?)</p>`)
	tagRe        = regexp.MustCompile(`<[^>]+>`)

	mdBoldRe   = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	mdStrikeRe = regexp.MustCompile(`~~([^~]+)~~`)
	mdImageRe  = regexp.MustCompile(`!\[[^\]]*\]\(([^)]+)\)`)
	mdLinkRe   = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
)

// Parse converts Matrix message content to Slack mrkdwn. Slack has no
// headings, so those are rendered bold.
func Parse(content *event.MessageEventContent) string {
	if content == nil {
		return ""
	}

	// Without an HTML body the plain text is markdown as the user typed
	// it, which still needs the Slack dialect shifts.
	if content.Format != event.FormatHTML || content.FormattedBody == "" {
		return ParsePlain(content.Body)
	}

	text := content.FormattedBody

	// Code blocks and inline code first, stashed behind placeholders so
	// the later tag-stripping pass cannot touch their content.
	var stash []string
	save := func(s string) string {
		stash = append(stash, s)
		return "\x00STASH" + strconv.Itoa(len(stash)-1) + "\x00"
	}
	text = preRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := preRe.FindStringSubmatch(match)
		return save("```\n" + parts[1] + "\n```")
	})
	text = codeRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := codeRe.FindStringSubmatch(match)
		return save("`" + parts[1] + "`")
	})

	// Inline formatting. Slack uses single markers.
	text = strongRe.ReplaceAllString(text, "*$1*")
	text = bRe.ReplaceAllString(text, "*$1*")
	text = emRe.ReplaceAllString(text, "_${1}_")
	text = iRe.ReplaceAllString(text, "_${1}_")
	text = delRe.ReplaceAllString(text, "~$1~")

	// Images become bare URIs, links the <uri|label> form. Link tokens
	// go into the stash too, they look like HTML tags to the stripper.
	text = imgRe.ReplaceAllString(text, "$1")
	text = linkRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := linkRe.FindStringSubmatch(match)
		return save("<" + parts[1] + "|" + parts[2] + ">")
	})

	// Headings.
	text = headingRe.ReplaceAllString(text, "*$2*")

	// Blockquotes.
	text = blockquoteRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := blockquoteRe.FindStringSubmatch(match)
		lines := strings.Split(strings.TrimSpace(parts[1]), "\n")
		for i, line := range lines {
			lines[i] = "> " + strings.TrimSpace(line)
		}
		return strings.Join(lines, "\n")
	})

	// Lists.
	text = ulRe.ReplaceAllStringFunc(text, func(match string) string {
		items := liRe.FindAllStringSubmatch(match, -1)
		var result []string
		for _, item := range items {
			result = append(result, "• "+strings.TrimSpace(item[1]))
		}
		return strings.Join(result, "\n")
	})

	text = olRe.ReplaceAllStringFunc(text, func(match string) string {
		items := liRe.FindAllStringSubmatch(match, -1)
		var result []string
		for i, item := range items {
			result = append(result, string(rune('1'+i))+". "+strings.TrimSpace(item[1]))
		}
		return strings.Join(result, "\n")
	})

	// Paragraphs.
	text = pRe.ReplaceAllString(text, "$1\n\n")

	// Line breaks.
	text = brRe.ReplaceAllString(text, "\n")

	// Strip remaining HTML tags, then put the stashed pieces back.
	text = tagRe.ReplaceAllString(text, "")
	for i := len(stash) - 1; i >= 0; i-- {
		text = strings.Replace(text, "\x00STASH"+strconv.Itoa(i)+"\x00", stash[i], 1)
	}

	text = html.UnescapeString(text)
	text = strings.TrimSpace(text)

	return text
}

// ParsePlain shifts plain markdown text into the Slack dialect: double
// markers become single, markdown links become the Slack hyperlink form
// and image links become the bare URI. Brackets that are not part of a
// link are left alone.
func ParsePlain(text string) string {
	text = mdBoldRe.ReplaceAllString(text, "*$1*")
	text = mdStrikeRe.ReplaceAllString(text, "~$1~")
	text = mdImageRe.ReplaceAllString(text, "$1")
	text = mdLinkRe.ReplaceAllString(text, "<$2|$1>")
	return text
}
