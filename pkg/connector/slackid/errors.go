// Copyright 2024-2026 Aiku AI

package slackid

import (
	"errors"
	"fmt"
)

// UserIsBotHelp is shown to users when a channel management call fails
// because the bridge is connected with a bot token. Bot accounts cannot
// manage channels or invite people themselves.
const UserIsBotHelp = "Connected to Slack using a bot account, which cannot manage " +
	"channels itself (you must invite the bot to channels instead, " +
	"it will auto-accept) nor invite people. " +
	"If you need this functionality, connect with a user token instead."

// UserNotFoundError is returned when a user lookup reports that no such
// user exists. Exactly one of ID and Name is set, depending on which form
// the lookup used.
type UserNotFoundError struct {
	ID   string
	Name string
}

func (e UserNotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("no user named %q", e.Name)
	}
	return fmt.Sprintf("no user with ID %s", e.ID)
}

// RoomNotFoundError is returned when a channel lookup reports that no such
// channel exists.
type RoomNotFoundError struct {
	ID   string
	Name string
}

func (e RoomNotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("no channel named %q", e.Name)
	}
	return fmt.Sprintf("no channel with ID %s", e.ID)
}

// UserNotUniqueError is returned when a name-based user lookup matches more
// than one user ID.
type UserNotUniqueError struct {
	Name    string
	Matches int
}

func (e UserNotUniqueError) Error() string {
	return fmt.Sprintf("%q isn't unique: %d matches found", e.Name, e.Matches)
}

// APIError wraps a Slack API failure, preserving the platform error code so
// callers can branch on specific codes (user_is_bot, already_in_channel, ...)
// without string-matching the message.
type APIError struct {
	Method string
	Code   string
}

func (e APIError) Error() string {
	return fmt.Sprintf("slack API call to %s failed: %s", e.Method, e.Code)
}

// APICode extracts the Slack error code from an error. The slack-go client
// reports API errors with the code as the error message, so plain errors
// fall back to their message.
func APICode(err error) string {
	if err == nil {
		return ""
	}
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return err.Error()
}

// ParseError is returned for malformed compact identifier notation. The
// offending token is embedded for diagnosis.
type ParseError struct {
	Token string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("unparseable slack identifier, should be of the format "+
		"`<#C12345>`, `<@U12345>`, `#channel/user` or `#channel` (got `%s`)", e.Token)
}

// RoomError is a platform-agnostic channel management failure. When the
// failure is caused by a bot-account permission restriction, Help carries
// the fixed user-facing guidance text.
type RoomError struct {
	Op   string
	Help string
	Err  error
}

func (e RoomError) Error() string {
	if e.Help != "" {
		return fmt.Sprintf("unable to %s channel: %s", e.Op, e.Help)
	}
	return fmt.Sprintf("unable to %s channel: %v", e.Op, e.Err)
}

func (e RoomError) Unwrap() error {
	return e.Err
}

// ErrUnresolvedIdentifier indicates that Build resolved neither a user ID
// nor a channel ID even though extraction succeeded. This should be
// unreachable; it is a bug in the resolver, not bad user input.
var ErrUnresolvedIdentifier = errors.New("bug: expected at least one of userid or channelid to be resolved")
