// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"bytes"
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"maunium.net/go/mautrix/bridgev2"
	"maunium.net/go/mautrix/bridgev2/database"
	"maunium.net/go/mautrix/event"

	"github.com/aiku/mautrix-slack/pkg/connector/slackid"
)

// sendOpts carries per-delivery options through the chunk engine.
type sendOpts struct {
	// threadTS threads every chunk under an existing message.
	threadTS string
	// ephemeralUser switches delivery to chat.postEphemeral targeted at
	// that user. Ephemeral messages cannot be edited or deleted later.
	ephemeralUser string
}

// ephemeralUserKey marks a Matrix event for ephemeral delivery. The value
// is the Slack user ID that should see the message.
const ephemeralUserKey = "fi.mau.slack.ephemeral_user"

// HandleMatrixMessage handles a message sent from Matrix to Slack.
func (s *SlackClient) HandleMatrixMessage(ctx context.Context, msg *bridgev2.MatrixMessage) (*bridgev2.MatrixMessageResponse, error) {
	if !s.IsLoggedIn() {
		return nil, bridgev2.ErrNotLoggedIn
	}

	channelID := ParsePortalID(msg.Portal.ID)
	content := msg.Content

	opts := sendOpts{
		threadTS:      s.replyThreadTS(msg),
		ephemeralUser: ephemeralTarget(msg.Event),
	}

	switch content.MsgType {
	case event.MsgText, event.MsgNotice, event.MsgEmote:
		text := matrixfmtParse(content)
		if content.MsgType == event.MsgEmote {
			text = "_" + text + "_"
		}

		chunks := splitMessage(text, s.connector.Config.MessageSizeLimit)
		timestamps, err := s.sendMessageParts(ctx, channelID, chunks, nil, opts)
		if err != nil {
			return nil, err
		}
		return &bridgev2.MatrixMessageResponse{
			DB: &database.Message{
				ID:       MakeMessageID(channelID, timestamps[0]),
				SenderID: MakeUserID(s.userID),
				Metadata: &MessageMetadata{
					ChunkTimestamps: timestamps,
					Ephemeral:       opts.ephemeralUser != "",
				},
			},
		}, nil

	case event.MsgImage, event.MsgVideo, event.MsgAudio, event.MsgFile:
		ts, err := s.uploadMatrixMedia(ctx, msg, opts.threadTS)
		if err != nil {
			return nil, fmt.Errorf("failed to upload media: %w", err)
		}
		return &bridgev2.MatrixMessageResponse{
			DB: &database.Message{
				ID:       MakeMessageID(channelID, ts),
				SenderID: MakeUserID(s.userID),
				Metadata: &MessageMetadata{
					ChunkTimestamps: []string{ts},
				},
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %s", content.MsgType)
	}
}

// replyThreadTS resolves the Slack thread timestamp for a reply. A reply
// target without a resolvable timestamp is logged and sent unthreaded
// rather than failing the whole message.
func (s *SlackClient) replyThreadTS(msg *bridgev2.MatrixMessage) string {
	if msg.ReplyTo == nil {
		return ""
	}
	_, ts := ParseMessageID(msg.ReplyTo.ID)
	if ts == "" {
		s.log.Warn().
			Str("reply_to", string(msg.ReplyTo.ID)).
			Msg("Reply target has no Slack timestamp, sending unthreaded")
		return ""
	}
	// Replies to a mid-thread message thread under the same root.
	if meta, ok := msg.ReplyTo.Metadata.(*MessageMetadata); ok && len(meta.ChunkTimestamps) > 0 {
		return meta.ChunkTimestamps[0]
	}
	return ts
}

// ephemeralTarget extracts the ephemeral delivery marker from raw Matrix
// event content. Bot integrations set it when a reply should be visible
// only to the triggering user.
func ephemeralTarget(evt *event.Event) string {
	if evt == nil {
		return ""
	}
	user, _ := evt.Content.Raw[ephemeralUserKey].(string)
	return user
}

// sendMessageParts delivers a chunked message to Slack and returns the
// timestamp of every chunk in order. When prior timestamps are given (an
// edit), existing chunks are updated in place, extra new chunks are posted
// after them and leftover prior chunks are deleted.
func (s *SlackClient) sendMessageParts(ctx context.Context, channelID string, chunks, prior []string, opts sendOpts) ([]string, error) {
	if opts.ephemeralUser != "" {
		return s.sendEphemeralParts(ctx, channelID, chunks, opts)
	}

	timestamps := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		msgOpts := []slack.MsgOption{
			slack.MsgOptionText(chunk, false),
			slack.MsgOptionDisableLinkUnfurl(),
		}
		if opts.threadTS != "" {
			msgOpts = append(msgOpts, slack.MsgOptionTS(opts.threadTS))
		}

		if i < len(prior) {
			_, ts, _, err := s.client.UpdateMessageContext(ctx, channelID, prior[i], msgOpts...)
			if err != nil {
				return timestamps, fmt.Errorf("failed to update chunk %d: %w", i, err)
			}
			timestamps = append(timestamps, ts)
			continue
		}

		ts, err := s.postChunk(ctx, channelID, msgOpts)
		if err != nil {
			return timestamps, fmt.Errorf("failed to post chunk %d: %w", i, err)
		}
		timestamps = append(timestamps, ts)
	}

	// An edit that shrank the message leaves orphaned trailing chunks.
	for _, ts := range prior[min(len(chunks), len(prior)):] {
		if _, _, err := s.client.DeleteMessageContext(ctx, channelID, ts); err != nil {
			if slackid.APICode(err) == "message_not_found" {
				continue
			}
			s.log.Warn().Err(err).Str("ts", ts).Msg("Failed to delete orphaned chunk")
		}
	}

	return timestamps, nil
}

// postChunk posts one chunk, joining the channel and retrying once if the
// bot is not a member yet.
func (s *SlackClient) postChunk(ctx context.Context, channelID string, msgOpts []slack.MsgOption) (string, error) {
	_, ts, err := s.client.PostMessageContext(ctx, channelID, msgOpts...)
	if err == nil {
		return ts, nil
	}
	if slackid.APICode(err) != "not_in_channel" {
		return "", err
	}

	s.log.Debug().Str("channel_id", channelID).Msg("Not in channel, joining and retrying")
	room, rerr := s.dir.RoomByID(channelID)
	if rerr != nil {
		return "", rerr
	}
	if jerr := room.Join(ctx); jerr != nil {
		return "", fmt.Errorf("failed to join channel before posting: %w", jerr)
	}
	_, ts, err = s.client.PostMessageContext(ctx, channelID, msgOpts...)
	return ts, err
}

// sendEphemeralParts delivers chunks via chat.postEphemeral. Ephemeral
// messages have synthetic timestamps and support no later updates, so
// prior state never applies.
func (s *SlackClient) sendEphemeralParts(ctx context.Context, channelID string, chunks []string, opts sendOpts) ([]string, error) {
	timestamps := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		msgOpts := []slack.MsgOption{
			slack.MsgOptionText(chunk, false),
			slack.MsgOptionDisableLinkUnfurl(),
		}
		if opts.threadTS != "" {
			msgOpts = append(msgOpts, slack.MsgOptionTS(opts.threadTS))
		}
		ts, err := s.client.PostEphemeralContext(ctx, channelID, opts.ephemeralUser, msgOpts...)
		if err != nil {
			return timestamps, fmt.Errorf("failed to post ephemeral chunk %d: %w", i, err)
		}
		timestamps = append(timestamps, ts)
	}
	return timestamps, nil
}

// HandleMatrixEdit handles an edit sent from Matrix. Chunks are updated in
// place; if the new text splits into fewer chunks than before, the
// leftover Slack messages are deleted.
func (s *SlackClient) HandleMatrixEdit(ctx context.Context, msg *bridgev2.MatrixEdit) error {
	if !s.IsLoggedIn() {
		return bridgev2.ErrNotLoggedIn
	}

	meta, _ := msg.EditTarget.Metadata.(*MessageMetadata)
	if meta != nil && meta.Ephemeral {
		return fmt.Errorf("ephemeral messages cannot be edited")
	}

	channelID, ts := ParseMessageID(msg.EditTarget.ID)
	prior := []string{ts}
	if meta != nil && len(meta.ChunkTimestamps) > 0 {
		prior = meta.ChunkTimestamps
	}

	text := matrixfmtParse(msg.Content)
	chunks := splitMessage(text, s.connector.Config.MessageSizeLimit)

	timestamps, err := s.sendMessageParts(ctx, channelID, chunks, prior, sendOpts{})
	if err != nil {
		return err
	}

	msg.EditTarget.Metadata = &MessageMetadata{ChunkTimestamps: timestamps}
	return nil
}

// HandleMatrixMessageRemove deletes every chunk of a message from Slack.
func (s *SlackClient) HandleMatrixMessageRemove(ctx context.Context, msg *bridgev2.MatrixMessageRemove) error {
	if !s.IsLoggedIn() {
		return bridgev2.ErrNotLoggedIn
	}

	channelID, ts := ParseMessageID(msg.TargetMessage.ID)
	timestamps := []string{ts}
	if meta, ok := msg.TargetMessage.Metadata.(*MessageMetadata); ok {
		if meta.Ephemeral {
			// Nothing to delete; ephemeral messages vanish on their own.
			return nil
		}
		if len(meta.ChunkTimestamps) > 0 {
			timestamps = meta.ChunkTimestamps
		}
	}

	for _, chunkTS := range timestamps {
		if _, _, err := s.client.DeleteMessageContext(ctx, channelID, chunkTS); err != nil {
			if slackid.APICode(err) == "message_not_found" {
				continue
			}
			return fmt.Errorf("failed to delete message: %w", err)
		}
	}
	return nil
}

// PreHandleMatrixReaction validates a reaction before sending.
func (s *SlackClient) PreHandleMatrixReaction(_ context.Context, msg *bridgev2.MatrixReaction) (bridgev2.MatrixReactionPreResponse, error) {
	emojiID := emojiToReaction(msg.Content.RelatesTo.Key)
	return bridgev2.MatrixReactionPreResponse{
		SenderID: MakeUserID(s.userID),
		EmojiID:  MakeEmojiID(emojiID),
		Emoji:    msg.Content.RelatesTo.Key,
	}, nil
}

// HandleMatrixReaction adds a reaction on Slack. Reacting twice with the
// same emoji is not an error.
func (s *SlackClient) HandleMatrixReaction(ctx context.Context, msg *bridgev2.MatrixReaction) (*database.Reaction, error) {
	if !s.IsLoggedIn() {
		return nil, bridgev2.ErrNotLoggedIn
	}

	channelID, ts := ParseMessageID(msg.TargetMessage.ID)
	emojiName := ParseEmojiID(msg.PreHandleResp.EmojiID)

	err := s.client.AddReactionContext(ctx, emojiName, slack.NewRefToMessage(channelID, ts))
	if err != nil {
		switch slackid.APICode(err) {
		case "already_reacted":
			// fine
		case "invalid_name":
			return nil, fmt.Errorf("invalid reaction name %q: %w", emojiName, err)
		default:
			return nil, fmt.Errorf("failed to add reaction: %w", err)
		}
	}

	return &database.Reaction{
		EmojiID: MakeEmojiID(emojiName),
	}, nil
}

// HandleMatrixReactionRemove removes a reaction on Slack. Removing a
// reaction that is already gone is not an error.
func (s *SlackClient) HandleMatrixReactionRemove(ctx context.Context, msg *bridgev2.MatrixReactionRemove) error {
	if !s.IsLoggedIn() {
		return bridgev2.ErrNotLoggedIn
	}

	channelID, ts := ParseMessageID(msg.TargetReaction.MessageID)
	emojiName := ParseEmojiID(msg.TargetReaction.EmojiID)

	err := s.client.RemoveReactionContext(ctx, emojiName, slack.NewRefToMessage(channelID, ts))
	if err != nil && slackid.APICode(err) != "no_reaction" {
		return fmt.Errorf("failed to remove reaction: %w", err)
	}
	return nil
}

// HandleMatrixTyping is a no-op: the Slack Web API offers no typing
// indicator for bot users.
func (s *SlackClient) HandleMatrixTyping(_ context.Context, _ *bridgev2.MatrixTyping) error {
	return nil
}

// uploadMatrixMedia downloads media from Matrix and uploads it to Slack.
// Uploads are bounded by the per-login worker semaphore because
// files.upload round-trips are slow and Matrix media events can arrive in
// bursts.
func (s *SlackClient) uploadMatrixMedia(ctx context.Context, msg *bridgev2.MatrixMessage, threadTS string) (string, error) {
	select {
	case s.uploadSem <- struct{}{}:
		defer func() { <-s.uploadSem }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	content := msg.Content

	data, err := msg.Portal.Bridge.Bot.DownloadMedia(ctx, content.URL, content.File)
	if err != nil {
		return "", fmt.Errorf("failed to download Matrix media: %w", err)
	}

	channelID := ParsePortalID(msg.Portal.ID)
	filename := content.GetFileName()
	if filename == "" {
		filename = "upload"
	}
	caption := ""
	if content.Body != "" && content.Body != filename {
		caption = content.Body
	}

	summary, err := s.client.UploadFileContext(ctx, slack.UploadFileParameters{
		Channel:         channelID,
		Reader:          bytes.NewReader(data),
		Filename:        filename,
		FileSize:        len(data),
		InitialComment:  caption,
		ThreadTimestamp: threadTS,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to Slack: %w", err)
	}

	// files.upload does not return the message timestamp directly; the
	// file ID stands in until the corresponding message event arrives.
	return summary.ID, nil
}

// emojiToReaction converts a Unicode emoji to a Slack emoji shortcode.
func emojiToReaction(emoji string) string {
	reverseMap := map[string]string{
		"\U0001f44d":   "+1",
		"\U0001f44e":   "-1",
		"❤️": "heart",
		"\U0001f604":   "smile",
		"\U0001f606":   "laughing",
		"\U0001f44b":   "wave",
		"\U0001f44f":   "clap",
		"\U0001f525":   "fire",
		"\U0001f4af":   "100",
		"\U0001f389":   "tada",
		"\U0001f440":   "eyes",
		"\U0001f914":   "thinking_face",
		"✅":       "white_check_mark",
		"❌":       "x",
		"⚠️": "warning",
		"\U0001f680":   "rocket",
		"⭐":       "star",
		"\U0001f64f":   "pray",
	}

	if name, ok := reverseMap[emoji]; ok {
		return name
	}

	// Strip colons for custom emoji names.
	if len(emoji) > 2 && emoji[0] == ':' && emoji[len(emoji)-1] == ':' {
		return emoji[1 : len(emoji)-1]
	}

	return emoji
}
