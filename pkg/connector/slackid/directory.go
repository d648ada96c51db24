// Copyright 2024-2026 Aiku AI

package slackid

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

// lookupCacheSize bounds the name<->ID lookup caches. Stale entries are
// acceptable: names rarely change and a miss just triggers a fresh lookup.
const lookupCacheSize = 1024

// Directory resolves Slack identifiers and owns the process-wide lookup
// caches plus the bot's own identity singleton. It is safe for concurrent
// use; the caches are optimizations, so a racing duplicate fetch is benign.
type Directory struct {
	api API
	log zerolog.Logger

	userIDs      *lru.Cache[string, string] // username -> user ID
	channelIDs   *lru.Cache[string, string] // channel name -> channel ID
	channelNames *lru.Cache[string, string] // channel ID -> channel name
	dmChannels   *lru.Cache[string, string] // user ID -> DM channel ID

	// self is the bot's own identity, set once at connection establishment
	// and replaced wholesale when the transport reconnects with new session
	// data. Read-only everywhere else.
	self     atomic.Pointer[UserRef]
	selfName atomic.Pointer[string]
}

// NewDirectory creates a Directory backed by the given Slack API client.
func NewDirectory(api API, log zerolog.Logger) *Directory {
	userIDs, _ := lru.New[string, string](lookupCacheSize)
	channelIDs, _ := lru.New[string, string](lookupCacheSize)
	channelNames, _ := lru.New[string, string](lookupCacheSize)
	dmChannels, _ := lru.New[string, string](lookupCacheSize)
	return &Directory{
		api:          api,
		log:          log.With().Str("component", "slack_directory").Logger(),
		userIDs:      userIDs,
		channelIDs:   channelIDs,
		channelNames: channelNames,
		dmChannels:   dmChannels,
	}
}

// SetSelf replaces the bot identity singleton. Called at connect and again
// on reconnect.
func (d *Directory) SetSelf(userID, username string) error {
	self, err := d.User(userID)
	if err != nil {
		return fmt.Errorf("invalid bot user ID: %w", err)
	}
	d.self.Store(self)
	d.selfName.Store(&username)
	return nil
}

// Self returns the bot's own identity, or nil before the first connect.
func (d *Directory) Self() *UserRef {
	return d.self.Load()
}

// SelfName returns the bot's authenticated username.
func (d *Directory) SelfName() string {
	if name := d.selfName.Load(); name != nil {
		return *name
	}
	return ""
}

// UsernameToID resolves a Slack username to a user ID, paginating the full
// user list on a cache miss.
func (d *Directory) UsernameToID(ctx context.Context, name string) (string, error) {
	name = strings.TrimPrefix(name, "@")
	if self := d.Self(); self != nil && name == d.SelfName() {
		return self.ID(), nil
	}
	if id, ok := d.userIDs.Get(name); ok {
		return id, nil
	}

	users, err := d.api.GetUsersContext(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list users: %w", err)
	}
	var matches []string
	for _, user := range users {
		if user.Name == name {
			matches = append(matches, user.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", UserNotFoundError{Name: name}
	case 1:
		d.userIDs.Add(name, matches[0])
		return matches[0], nil
	default:
		return "", UserNotUniqueError{Name: name, Matches: len(matches)}
	}
}

// UserIDToName resolves a user ID to the display name via the user info
// bundle.
func (d *Directory) UserIDToName(ctx context.Context, userID string) (string, error) {
	user, err := d.User(userID)
	if err != nil {
		return "", err
	}
	if err := user.EnsureLoaded(ctx); err != nil {
		return "", err
	}
	return user.DisplayName(), nil
}

// ChannelNameToID resolves a channel name to its ID by paginating the
// conversation list until the cursor is exhausted.
func (d *Directory) ChannelNameToID(ctx context.Context, name string) (string, error) {
	name = strings.TrimPrefix(name, "#")
	if id, ok := d.channelIDs.Get(name); ok {
		return id, nil
	}

	cursor := ""
	for {
		channels, next, err := d.api.GetConversationsContext(ctx, &slack.GetConversationsParameters{
			Cursor: cursor,
			Limit:  1000,
			Types:  []string{"public_channel", "private_channel", "mpim", "im"},
		})
		if err != nil {
			return "", fmt.Errorf("failed to list conversations: %w", err)
		}
		for _, channel := range channels {
			if channel.Name == name {
				d.channelIDs.Add(name, channel.ID)
				d.channelNames.Add(channel.ID, name)
				return channel.ID, nil
			}
		}
		if next == "" {
			return "", RoomNotFoundError{Name: name}
		}
		cursor = next
	}
}

// ChannelIDToName resolves a channel ID to its name.
func (d *Directory) ChannelIDToName(ctx context.Context, channelID string) (string, error) {
	if name, ok := d.channelNames.Get(channelID); ok {
		return name, nil
	}
	room, err := d.RoomByID(channelID)
	if err != nil {
		return "", err
	}
	if err := room.EnsureLoaded(ctx); err != nil {
		return "", err
	}
	d.channelNames.Add(channelID, room.Name())
	return room.Name(), nil
}

// OpenDM opens (or returns the cached) direct-message channel with the
// given user. Used for diverting room-scoped messages to a private channel.
func (d *Directory) OpenDM(ctx context.Context, userID string) (string, error) {
	if channelID, ok := d.dmChannels.Get(userID); ok {
		return channelID, nil
	}
	channel, _, _, err := d.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: []string{userID},
	})
	if err != nil {
		if APICode(err) == "cannot_dm_bot" {
			d.log.Info().Str("user_id", userID).Msg("Tried to open a DM with a bot")
		}
		return "", fmt.Errorf("failed to open DM with %s: %w", userID, err)
	}
	d.dmChannels.Add(userID, channel.ID)
	return channel.ID, nil
}
