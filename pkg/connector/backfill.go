// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"fmt"
	"sort"

	"github.com/slack-go/slack"
	"maunium.net/go/mautrix/bridgev2"
	"maunium.net/go/mautrix/bridgev2/networkid"
	"maunium.net/go/mautrix/event"
)

// FetchMessages implements bridgev2.BackfillingNetworkAPI using
// conversations.history.
func (s *SlackClient) FetchMessages(ctx context.Context, params bridgev2.FetchMessagesParams) (*bridgev2.FetchMessagesResponse, error) {
	channelID := ParsePortalID(params.Portal.ID)

	maxCount := s.connector.Config.BackfillMaxCount
	if maxCount <= 0 {
		maxCount = 100
	}
	if params.Count > 0 && params.Count < maxCount {
		maxCount = params.Count
	}

	histParams := &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     maxCount,
	}
	if params.AnchorMessage != nil {
		_, anchorTS := ParseMessageID(params.AnchorMessage.ID)
		if params.Forward {
			histParams.Oldest = anchorTS
		} else {
			histParams.Latest = anchorTS
		}
	}
	if params.Cursor != "" {
		histParams.Cursor = string(params.Cursor)
	}

	resp, err := s.client.GetConversationHistoryContext(ctx, histParams)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history for backfill: %w", err)
	}

	// History arrives newest first; the bridge wants oldest first.
	msgs := resp.Messages
	sort.Slice(msgs, func(i, j int) bool {
		return msgs[i].Timestamp < msgs[j].Timestamp
	})

	var messages []*bridgev2.BackfillMessage
	for i := range msgs {
		msg := &msgs[i]
		if droppedSubtypes[msg.SubType] || msg.SubType == "message_changed" {
			continue
		}
		sender := msg.User
		if sender == "" {
			sender = msg.BotID
		}
		if sender == "" {
			continue
		}

		backfillMsg := &bridgev2.BackfillMessage{
			ConvertedMessage: s.convertHistoryMessage(ctx, channelID, msg),
			Sender: bridgev2.EventSender{
				Sender:   MakeUserID(sender),
				IsFromMe: s.isOwnMessage(msg.User, msg.BotID),
			},
			ID:        MakeMessageID(channelID, msg.Timestamp),
			Timestamp: parseSlackTimestamp(msg.Timestamp),
		}
		if msg.ThreadTimestamp != "" && msg.ThreadTimestamp != msg.Timestamp {
			backfillMsg.ShouldBackfillThread = true
		}
		messages = append(messages, backfillMsg)
	}

	result := &bridgev2.FetchMessagesResponse{
		Messages: messages,
		HasMore:  resp.HasMore,
		Forward:  params.Forward,
	}
	if resp.ResponseMetaData.NextCursor != "" {
		result.Cursor = networkid.PaginationCursor(resp.ResponseMetaData.NextCursor)
	}

	return result, nil
}

// convertHistoryMessage converts one conversations.history entry to a
// Matrix message. Files are referenced, not re-downloaded, matching the
// live event path.
func (s *SlackClient) convertHistoryMessage(ctx context.Context, channelID string, msg *slack.Message) *bridgev2.ConvertedMessage {
	var parts []*bridgev2.ConvertedMessagePart

	if msg.Text != "" {
		text, _ := s.dir.ProcessMentions(ctx, msg.Text)
		parsed := slackfmtParse(text)
		parts = append(parts, &bridgev2.ConvertedMessagePart{
			ID:   MakeMessagePartID(0),
			Type: event.EventMessage,
			Content: &event.MessageEventContent{
				MsgType:       event.MsgText,
				Body:          parsed.Body,
				Format:        parsed.Format,
				FormattedBody: parsed.FormattedBody,
			},
		})
	}

	converted := &bridgev2.ConvertedMessage{Parts: parts}
	if msg.ThreadTimestamp != "" && msg.ThreadTimestamp != msg.Timestamp {
		converted.ReplyTo = &networkid.MessageOptionalPartID{
			MessageID: MakeMessageID(channelID, msg.ThreadTimestamp),
		}
	}
	return converted
}
