// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"maunium.net/go/mautrix/bridgev2"
	"maunium.net/go/mautrix/bridgev2/database"
	"maunium.net/go/mautrix/bridgev2/networkid"
	"maunium.net/go/mautrix/bridgev2/simplevent"
	"maunium.net/go/mautrix/event"
)

// handleEventsAPIEvent dispatches an Events API envelope to the appropriate
// handler. Both the Socket Mode loop and the webhook receiver feed into it.
func (s *SlackClient) handleEventsAPIEvent(envelope *slackevents.EventsAPIEvent) {
	if envelope.Type != slackevents.CallbackEvent {
		s.log.Trace().Str("envelope_type", envelope.Type).Msg("Ignoring non-callback envelope")
		return
	}
	switch ev := envelope.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		s.handleMessage(ev)
	case *slackevents.ReactionAddedEvent:
		s.handleReactionAdded(ev)
	case *slackevents.ReactionRemovedEvent:
		s.handleReactionRemoved(ev)
	case *slackevents.MemberJoinedChannelEvent:
		s.handleMemberJoined(ev)
	default:
		s.log.Trace().Str("event_type", envelope.InnerEvent.Type).Msg("Unhandled event type")
	}
}

// droppedSubtypes are message subtypes the bridge never relays: lifecycle
// noise that either duplicates another event or carries no user content.
var droppedSubtypes = map[string]bool{
	"message_deleted": true,
	"message_replied": true,
	"channel_topic":   true,
	"channel_purpose": true,
	"channel_join":    true,
	"channel_leave":   true,
	"channel_name":    true,
	"group_topic":     true,
	"group_join":      true,
	"group_leave":     true,
}

// isOwnMessage applies echo prevention: the bridge's own posts come back on
// the event stream under the bot user ID or the bot integration ID.
func (s *SlackClient) isOwnMessage(user, botID string) bool {
	if user != "" && user == s.userID {
		return true
	}
	return botID != "" && botID == s.botID
}

func (s *SlackClient) handleMessage(ev *slackevents.MessageEvent) {
	if droppedSubtypes[ev.SubType] {
		s.log.Debug().
			Str("subtype", ev.SubType).
			Str("channel_id", ev.Channel).
			Msg("Dropping message subtype")
		return
	}
	if ev.SubType == "message_changed" {
		s.handleMessageChanged(ev)
		return
	}
	if s.isOwnMessage(ev.User, ev.BotID) {
		return
	}

	sender := ev.User
	if sender == "" {
		sender = ev.BotID
	}
	if sender == "" {
		s.log.Warn().Str("channel_id", ev.Channel).Msg("Message with no sender, dropping")
		return
	}

	s.log.Debug().
		Str("channel_id", ev.Channel).
		Str("user_id", sender).
		Str("ts", ev.TimeStamp).
		Msg("Received new message")

	s.eventSender.QueueRemoteEvent(s.userLogin, &simplevent.Message[*slackevents.MessageEvent]{
		EventMeta: simplevent.EventMeta{
			Type: bridgev2.RemoteEventMessage,
			LogContext: func(c zerolog.Context) zerolog.Context {
				return c.Str("ts", ev.TimeStamp).Str("channel_id", ev.Channel)
			},
			PortalKey: makePortalKey(ev.Channel),
			Sender: bridgev2.EventSender{
				Sender: MakeUserID(sender),
			},
			Timestamp:    parseSlackTimestamp(ev.TimeStamp),
			CreatePortal: true,
		},
		ID:   MakeMessageID(ev.Channel, ev.TimeStamp),
		Data: ev,
		ConvertMessageFunc: func(ctx context.Context, portal *bridgev2.Portal, intent bridgev2.MatrixAPI, data *slackevents.MessageEvent) (*bridgev2.ConvertedMessage, error) {
			return s.convertMessageToMatrix(ctx, data), nil
		},
	})
}

// handleMessageChanged relays genuine edits. Slack also emits
// message_changed when it unfurls a link in a message the bridge itself
// just sent; those carry fresh attachments and are dropped to avoid an
// echo loop.
func (s *SlackClient) handleMessageChanged(ev *slackevents.MessageEvent) {
	inner := ev.Message
	if inner == nil {
		s.log.Debug().Str("channel_id", ev.Channel).Msg("message_changed without nested message, dropping")
		return
	}
	if len(inner.Attachments) > 0 {
		s.log.Debug().
			Str("channel_id", ev.Channel).
			Str("ts", inner.Timestamp).
			Msg("Dropping message_changed with attachments (link unfurl echo)")
		return
	}
	if s.isOwnMessage(inner.User, inner.BotID) {
		return
	}

	sender := inner.User
	if sender == "" {
		sender = inner.BotID
	}

	s.eventSender.QueueRemoteEvent(s.userLogin, &simplevent.Message[*slack.Msg]{
		EventMeta: simplevent.EventMeta{
			Type: bridgev2.RemoteEventEdit,
			LogContext: func(c zerolog.Context) zerolog.Context {
				return c.Str("ts", inner.Timestamp).Str("channel_id", ev.Channel)
			},
			PortalKey: makePortalKey(ev.Channel),
			Sender: bridgev2.EventSender{
				Sender: MakeUserID(sender),
			},
			Timestamp: parseSlackTimestamp(ev.TimeStamp),
		},
		TargetMessage: MakeMessageID(ev.Channel, inner.Timestamp),
		Data:          inner,
		ConvertEditFunc: func(ctx context.Context, portal *bridgev2.Portal, intent bridgev2.MatrixAPI, existing []*database.Message, data *slack.Msg) (*bridgev2.ConvertedEdit, error) {
			return s.convertEditToMatrix(ctx, data, existing), nil
		},
	})
}

func (s *SlackClient) handleReactionAdded(ev *slackevents.ReactionAddedEvent) {
	if ev.User == s.userID {
		return
	}
	if ev.Item.Type != "message" {
		s.log.Debug().Str("item_type", ev.Item.Type).Msg("Ignoring reaction to non-message item")
		return
	}

	s.eventSender.QueueRemoteEvent(s.userLogin, &simplevent.Reaction{
		EventMeta: simplevent.EventMeta{
			Type: bridgev2.RemoteEventReaction,
			LogContext: func(c zerolog.Context) zerolog.Context {
				return c.Str("ts", ev.Item.Timestamp).Str("emoji", ev.Reaction)
			},
			PortalKey: makePortalKey(ev.Item.Channel),
			Sender: bridgev2.EventSender{
				Sender: MakeUserID(ev.User),
			},
			Timestamp: parseSlackTimestamp(ev.EventTimestamp),
		},
		TargetMessage: MakeMessageID(ev.Item.Channel, ev.Item.Timestamp),
		EmojiID:       MakeEmojiID(ev.Reaction),
		Emoji:         reactionToEmoji(ev.Reaction),
	})
}

func (s *SlackClient) handleReactionRemoved(ev *slackevents.ReactionRemovedEvent) {
	if ev.User == s.userID {
		return
	}
	if ev.Item.Type != "message" {
		return
	}

	s.eventSender.QueueRemoteEvent(s.userLogin, &simplevent.Reaction{
		EventMeta: simplevent.EventMeta{
			Type: bridgev2.RemoteEventReactionRemove,
			LogContext: func(c zerolog.Context) zerolog.Context {
				return c.Str("ts", ev.Item.Timestamp).Str("emoji", ev.Reaction)
			},
			PortalKey: makePortalKey(ev.Item.Channel),
			Sender: bridgev2.EventSender{
				Sender: MakeUserID(ev.User),
			},
		},
		TargetMessage: MakeMessageID(ev.Item.Channel, ev.Item.Timestamp),
		EmojiID:       MakeEmojiID(ev.Reaction),
	})
}

// handleMemberJoined resyncs the channel when the bot itself is added, so
// the portal exists before the first message arrives.
func (s *SlackClient) handleMemberJoined(ev *slackevents.MemberJoinedChannelEvent) {
	if ev.User != s.userID {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	channel, err := s.client.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{
		ChannelID: ev.Channel,
	})
	if err != nil {
		s.log.Error().Err(err).Str("channel_id", ev.Channel).Msg("Failed to fetch joined channel")
		return
	}
	s.queueChatResync(channel)
}

// handlePresenceChange records the remote presence on the local cache.
// Matrix has no per-ghost presence surface in the bridge framework, so this
// is consumed by bot-side status queries only. Unknown presence values are
// treated as online and logged once per occurrence.
func (s *SlackClient) handlePresenceChange(userID, presence string) {
	switch presence {
	case "active":
		s.setPresence(userID, "online")
	case "away":
		s.setPresence(userID, "away")
	default:
		s.log.Warn().
			Str("user_id", userID).
			Str("presence", presence).
			Msg("Unknown presence value, defaulting to online")
		s.setPresence(userID, "online")
	}
}

// convertMessageToMatrix converts a Slack message event to a
// bridgev2.ConvertedMessage: mention tokens are canonicalized, URI tokens
// unwrapped and mrkdwn rendered to Matrix HTML.
func (s *SlackClient) convertMessageToMatrix(ctx context.Context, ev *slackevents.MessageEvent) *bridgev2.ConvertedMessage {
	var parts []*bridgev2.ConvertedMessagePart

	if ev.Text != "" {
		text, mentioned := s.dir.ProcessMentions(ctx, ev.Text)
		parsed := slackfmtParse(text)

		part := &bridgev2.ConvertedMessagePart{
			ID:   MakeMessagePartID(0),
			Type: event.EventMessage,
			Content: &event.MessageEventContent{
				MsgType:       event.MsgText,
				Body:          parsed.Body,
				Format:        parsed.Format,
				FormattedBody: parsed.FormattedBody,
			},
		}
		if len(mentioned) > 0 {
			ids := make([]string, len(mentioned))
			for i, m := range mentioned {
				ids[i] = m.SlackID()
			}
			part.Extra = map[string]any{
				"fi.mau.slack.mentions": ids,
			}
		}
		parts = append(parts, part)
	}

	// Attached files live on the normalized Msg, not the event itself.
	if ev.Message != nil {
		for i := range ev.Message.Files {
			filePart := s.convertFileToMatrix(ctx, &ev.Message.Files[i], i+1)
			if filePart != nil {
				parts = append(parts, filePart)
			}
		}
	}

	msg := &bridgev2.ConvertedMessage{
		Parts: parts,
	}

	if ev.ThreadTimeStamp != "" && ev.ThreadTimeStamp != ev.TimeStamp {
		msg.ThreadRoot = func() *networkid.MessageID {
			id := MakeMessageID(ev.Channel, ev.ThreadTimeStamp)
			return &id
		}()
		msg.ReplyTo = &networkid.MessageOptionalPartID{
			MessageID: MakeMessageID(ev.Channel, ev.ThreadTimeStamp),
		}
	}

	return msg
}

// convertEditToMatrix converts an edited Slack message to a bridgev2.ConvertedEdit.
func (s *SlackClient) convertEditToMatrix(ctx context.Context, msg *slack.Msg, existing []*database.Message) *bridgev2.ConvertedEdit {
	text, _ := s.dir.ProcessMentions(ctx, msg.Text)
	parsed := slackfmtParse(text)

	var targetPart *database.Message
	if len(existing) > 0 {
		targetPart = existing[0]
	}

	return &bridgev2.ConvertedEdit{
		ModifiedParts: []*bridgev2.ConvertedEditPart{{
			Part: targetPart,
			Type: event.EventMessage,
			Content: &event.MessageEventContent{
				MsgType:       event.MsgText,
				Body:          parsed.Body,
				Format:        parsed.Format,
				FormattedBody: parsed.FormattedBody,
			},
		}},
	}
}

// convertFileToMatrix wraps a Slack file attachment as a Matrix message
// part. The file bytes stay on Slack; URLPrivate requires the bot token,
// so the part carries the file ID for on-demand fetching.
func (s *SlackClient) convertFileToMatrix(_ context.Context, file *slack.File, partIndex int) *bridgev2.ConvertedMessagePart {
	msgType := event.MsgFile
	switch {
	case strings.HasPrefix(file.Mimetype, "image/"):
		msgType = event.MsgImage
	case strings.HasPrefix(file.Mimetype, "video/"):
		msgType = event.MsgVideo
	case strings.HasPrefix(file.Mimetype, "audio/"):
		msgType = event.MsgAudio
	}

	return &bridgev2.ConvertedMessagePart{
		ID:   MakeMessagePartID(partIndex),
		Type: event.EventMessage,
		Content: &event.MessageEventContent{
			MsgType: msgType,
			Body:    file.Name,
			Info: &event.FileInfo{
				MimeType: file.Mimetype,
				Size:     file.Size,
			},
		},
		Extra: map[string]any{
			"fi.mau.slack.file_id": file.ID,
		},
	}
}

// parseSlackTimestamp converts a Slack "seconds.fraction" timestamp to a
// time.Time. Invalid input falls back to now.
func parseSlackTimestamp(ts string) time.Time {
	secStr, fracStr, _ := strings.Cut(ts, ".")
	sec, err := strconv.ParseInt(secStr, 10, 64)
	if err != nil {
		return time.Now()
	}
	var micro int64
	if fracStr != "" {
		micro, _ = strconv.ParseInt(fracStr, 10, 64)
	}
	return time.Unix(sec, micro*int64(time.Microsecond))
}

// reactionToEmoji converts a Slack emoji shortcode to a Unicode emoji.
func reactionToEmoji(name string) string {
	emojiMap := map[string]string{
		"+1":               "\U0001f44d",
		"-1":               "\U0001f44e",
		"heart":            "❤️",
		"smile":            "\U0001f604",
		"laughing":         "\U0001f606",
		"thumbsup":         "\U0001f44d",
		"thumbsdown":       "\U0001f44e",
		"wave":             "\U0001f44b",
		"clap":             "\U0001f44f",
		"fire":             "\U0001f525",
		"100":              "\U0001f4af",
		"tada":             "\U0001f389",
		"eyes":             "\U0001f440",
		"thinking_face":    "\U0001f914",
		"white_check_mark": "✅",
		"x":                "❌",
		"warning":          "⚠️",
		"rocket":           "\U0001f680",
		"star":             "⭐",
		"pray":             "\U0001f64f",
	}

	if emoji, ok := emojiMap[name]; ok {
		return emoji
	}
	return fmt.Sprintf(":%s:", name)
}
