// Copyright 2024-2026 Aiku AI

package connector

import (
	"maunium.net/go/mautrix/event"

	"github.com/aiku/mautrix-slack/pkg/connector/matrixfmt"
	"github.com/aiku/mautrix-slack/pkg/connector/slackfmt"
)

// slackfmtParse converts Slack mrkdwn to Matrix HTML message content.
func slackfmtParse(text string) *slackfmt.ParsedMessage {
	return slackfmt.Parse(text)
}

// matrixfmtParse converts Matrix message content to Slack mrkdwn.
func matrixfmtParse(content *event.MessageEventContent) string {
	return matrixfmt.Parse(content)
}
