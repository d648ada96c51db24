// Copyright 2024-2026 Aiku AI

package slackid

import (
	"context"
	"regexp"
	"strings"
)

// Parts is the raw outcome of parsing one compact identifier. At most one
// of Username/UserID and one of RoomName/RoomID is set.
type Parts struct {
	Username string
	UserID   string
	RoomName string
	RoomID   string
}

// Extract parses the compact identifier notation: <@U12345>, <@U12345|name>,
// <#C12345>, <#C12345|channel>, @user, #channel and #channel/user. Anything
// else returns a ParseError.
func Extract(text string) (Parts, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Parts{}, ParseError{Token: text}
	}
	var parts Parts
	switch {
	case strings.HasPrefix(text, "<") && strings.HasSuffix(text, ">"):
		// Only <@...> and <#...> are valid; any other bracketed sigil
		// (or a bare "<>") is a parse error.
		if len(text) < 4 || (text[1] != '@' && text[1] != '#') {
			return Parts{}, ParseError{Token: text}
		}
		inner := text[2 : len(text)-1]
		if inner == "" {
			return Parts{}, ParseError{Token: text}
		}
		id, label, _ := strings.Cut(inner, "|")
		switch {
		case validUserPrefix(id) || validBotPrefix(id):
			parts.UserID = id
			parts.Username = label
		case validChannelPrefix(id):
			parts.RoomID = id
			parts.RoomName = label
		default:
			return Parts{}, ParseError{Token: text}
		}
	case strings.HasPrefix(text, "@"):
		parts.Username = text[1:]
	case strings.HasPrefix(text, "#"):
		room, user, found := strings.Cut(text[1:], "/")
		parts.RoomName = room
		if found {
			parts.Username = user
		}
	default:
		return Parts{}, ParseError{Token: text}
	}
	return parts, nil
}

// Build parses the compact notation and resolves it to a typed identifier,
// hitting the web API where only a name is given. The bot's own name and ID
// resolve to the shared self reference.
func (d *Directory) Build(ctx context.Context, text string) (Identifier, error) {
	parts, err := Extract(text)
	if err != nil {
		return nil, err
	}
	if parts.UserID == "" && parts.Username != "" && parts.RoomName == "" {
		parts.UserID, err = d.UsernameToID(ctx, parts.Username)
		if err != nil {
			return nil, err
		}
	}
	switch {
	case parts.UserID != "" && parts.RoomID != "":
		return d.Occupant(parts.UserID, parts.RoomID)
	case parts.UserID != "" && parts.RoomName != "":
		roomID, err := d.ChannelNameToID(ctx, parts.RoomName)
		if err != nil {
			return nil, err
		}
		return d.Occupant(parts.UserID, roomID)
	case parts.Username != "" && parts.RoomName != "":
		userID, err := d.UsernameToID(ctx, parts.Username)
		if err != nil {
			return nil, err
		}
		roomID, err := d.ChannelNameToID(ctx, parts.RoomName)
		if err != nil {
			return nil, err
		}
		return d.Occupant(userID, roomID)
	case parts.UserID != "":
		if self := d.Self(); self != nil && self.ID() == parts.UserID {
			return self, nil
		}
		if validBotPrefix(parts.UserID) {
			return d.Bot(parts.UserID, parts.Username)
		}
		return d.User(parts.UserID)
	case parts.RoomID != "":
		room, err := d.RoomByID(parts.RoomID)
		if err != nil {
			return nil, err
		}
		room.name = parts.RoomName
		return room, nil
	case parts.RoomName != "":
		return d.RoomByName(parts.RoomName)
	}
	return nil, ErrUnresolvedIdentifier
}

var mentionTokens = regexp.MustCompile(`<[@#][^>]*>`)

// ProcessMentions finds all inline mention tokens in text, resolves each to
// an identifier and rewrites the token to its canonical string form.
// Tokens that fail to resolve are left as-is and logged at debug level.
// Mentions are returned in order of appearance, duplicates included.
func (d *Directory) ProcessMentions(ctx context.Context, text string) (string, []Identifier) {
	var mentioned []Identifier
	for _, token := range mentionTokens.FindAllString(text, -1) {
		identifier, err := d.Build(ctx, token)
		if err != nil {
			d.log.Debug().Err(err).Str("token", token).
				Msg("Skipping unresolvable mention token")
			continue
		}
		mentioned = append(mentioned, identifier)
		text = strings.Replace(text, token, identifier.String(), 1)
	}
	return text, mentioned
}
