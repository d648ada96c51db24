// Copyright 2024-2026 Aiku AI

package connector

import (
	"strconv"
	"strings"

	"maunium.net/go/mautrix/bridgev2/networkid"
)

// MakePortalID creates a networkid.PortalID from a Slack channel ID.
func MakePortalID(channelID string) networkid.PortalID {
	return networkid.PortalID(channelID)
}

// ParsePortalID extracts the Slack channel ID from a PortalID.
func ParsePortalID(portalID networkid.PortalID) string {
	return string(portalID)
}

// MakeUserID creates a networkid.UserID from a Slack user or bot ID.
func MakeUserID(userID string) networkid.UserID {
	return networkid.UserID(userID)
}

// ParseUserID extracts the Slack user or bot ID from a networkid.UserID.
func ParseUserID(userID networkid.UserID) string {
	return string(userID)
}

// MakeMessageID creates a networkid.MessageID from a channel ID and a
// message timestamp. Slack timestamps are only unique per channel, so both
// halves are needed.
func MakeMessageID(channelID, ts string) networkid.MessageID {
	return networkid.MessageID(channelID + "-" + ts)
}

// ParseMessageID splits a MessageID back into channel ID and timestamp.
// Channel IDs never contain dashes, so the first dash is the separator.
func ParseMessageID(messageID networkid.MessageID) (channelID, ts string) {
	channelID, ts, _ = strings.Cut(string(messageID), "-")
	return
}

// MakeMessagePartID creates a networkid.PartID for message parts (e.g., file attachments).
func MakeMessagePartID(index int) networkid.PartID {
	if index == 0 {
		return ""
	}
	return networkid.PartID(strconv.Itoa(index))
}

// MakeEmojiID creates a networkid.EmojiID from a Slack emoji shortcode.
func MakeEmojiID(emojiName string) networkid.EmojiID {
	return networkid.EmojiID(emojiName)
}

// ParseEmojiID extracts the Slack emoji shortcode from an EmojiID.
func ParseEmojiID(emojiID networkid.EmojiID) string {
	return string(emojiID)
}

// makePortalKey creates a networkid.PortalKey from a Slack channel ID.
func makePortalKey(channelID string) networkid.PortalKey {
	return networkid.PortalKey{
		ID: MakePortalID(channelID),
	}
}
