// Copyright 2024-2026 Aiku AI

package slackid

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/slack-go/slack"
)

// roomInfo is the cached attribute bundle for a channel.
type roomInfo struct {
	name      string
	topic     string
	purpose   string
	isPrivate bool
	isIM      bool
	isMpIM    bool
	imUser    string
}

// RoomRef identifies a Slack conversation: a public channel (C), private
// group (G) or direct-message channel (D). A RoomRef is constructed from
// exactly one of a name or an ID; the other side is resolved through the
// directory on demand.
type RoomRef struct {
	dir *Directory

	mu     sync.Mutex
	id     string
	name   string
	loaded bool
	info   roomInfo
}

// RoomByID constructs a RoomRef from a channel ID, validating the prefix.
func (d *Directory) RoomByID(channelID string) (*RoomRef, error) {
	if !validChannelPrefix(channelID) {
		return nil, fmt.Errorf("not a Slack channel ID: %q (should start with C, G or D)", channelID)
	}
	return &RoomRef{dir: d, id: channelID}, nil
}

// RoomByName constructs a RoomRef from a channel name. A leading # is
// stripped.
func (d *Directory) RoomByName(name string) (*RoomRef, error) {
	name = strings.TrimPrefix(name, "#")
	if name == "" {
		return nil, fmt.Errorf("a name or channel ID is required to reference a room")
	}
	return &RoomRef{dir: d, name: name}, nil
}

// Room constructs a RoomRef from exactly one of name and channelID.
// Supplying both or neither is an error.
func (d *Directory) Room(name, channelID string) (*RoomRef, error) {
	switch {
	case name != "" && channelID != "":
		return nil, fmt.Errorf("channel ID and name are mutually exclusive")
	case channelID != "":
		return d.RoomByID(channelID)
	default:
		return d.RoomByName(name)
	}
}

func (r *RoomRef) Kind() Kind { return KindRoom }

// SlackID returns the channel ID, resolving the name first if the room was
// constructed by name and already loaded. Before loading it may be empty.
func (r *RoomRef) SlackID() string { return r.ID() }

// ID returns the channel ID, or "" if the room was constructed by name and
// has not been loaded yet.
func (r *RoomRef) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

// Name returns the channel name, or "" if the room was constructed by ID
// and has not been loaded yet. For DMs it is the peer's user ID.
func (r *RoomRef) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.info.name != "" {
		return r.info.name
	}
	return r.name
}

// ensureID resolves the channel name to an ID if the room was constructed
// by name, without fetching the info bundle.
func (r *RoomRef) ensureID(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.id != "" {
		return nil
	}
	id, err := r.dir.ChannelNameToID(ctx, r.name)
	if err != nil {
		return err
	}
	r.id = id
	return nil
}

// EnsureLoaded resolves name<->ID and fetches the channel info bundle if it
// has not been fetched yet. One call populates the whole bundle.
func (r *RoomRef) EnsureLoaded(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return nil
	}
	if r.id == "" {
		id, err := r.dir.ChannelNameToID(ctx, r.name)
		if err != nil {
			return err
		}
		r.id = id
	}
	channel, err := r.dir.api.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{
		ChannelID: r.id,
	})
	if err != nil {
		if APICode(err) == "channel_not_found" {
			return RoomNotFoundError{ID: r.id}
		}
		return fmt.Errorf("failed to fetch channel info for %s: %w", r.id, err)
	}
	if channel.ID != r.id {
		return fmt.Errorf("inconsistent channel info: %s does not equal %s", channel.ID, r.id)
	}
	name := channel.Name
	if channel.IsIM {
		// DMs have no name; the peer user ID is the closest thing.
		name = channel.User
	}
	r.info = roomInfo{
		name:      name,
		topic:     channel.Topic.Value,
		purpose:   channel.Purpose.Value,
		isPrivate: channel.IsPrivate,
		isIM:      channel.IsIM,
		isMpIM:    channel.IsMpIM,
		imUser:    channel.User,
	}
	r.loaded = true
	return nil
}

// Topic returns the cached topic, or "" when unset or unloaded.
func (r *RoomRef) Topic() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info.topic
}

// Purpose returns the cached purpose.
func (r *RoomRef) Purpose() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info.purpose
}

// IsPrivate reports whether the room is a private group.
func (r *RoomRef) IsPrivate() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info.isPrivate
}

// IsDM reports whether the room is a one-to-one direct-message channel.
func (r *RoomRef) IsDM() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info.isIM
}

// IsGroupDM reports whether the room is a multi-party DM.
func (r *RoomRef) IsGroupDM() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info.isMpIM
}

// DMPeer returns the peer user ID for a DM channel.
func (r *RoomRef) DMPeer() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info.imUser
}

// Members returns the occupants of the room, following the continuation
// cursor until the member list is exhausted.
func (r *RoomRef) Members(ctx context.Context) ([]*Occupant, error) {
	if err := r.EnsureLoaded(ctx); err != nil {
		return nil, err
	}
	var occupants []*Occupant
	cursor := ""
	for {
		members, next, err := r.dir.api.GetUsersInConversationContext(ctx, &slack.GetUsersInConversationParameters{
			ChannelID: r.ID(),
			Cursor:    cursor,
			Limit:     1000,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch members of %s: %w", r.ID(), err)
		}
		for _, member := range members {
			occ, err := r.dir.Occupant(member, r.ID())
			if err != nil {
				r.dir.log.Debug().Err(err).Str("member", member).
					Msg("Skipping member with unexpected ID shape")
				continue
			}
			occupants = append(occupants, occ)
		}
		if next == "" {
			return occupants, nil
		}
		cursor = next
	}
}

// Join makes the bot join the channel. A bot-permission failure surfaces
// the fixed guidance text. Only the ID is resolved; joining does not need
// the info bundle.
func (r *RoomRef) Join(ctx context.Context) error {
	if err := r.ensureID(ctx); err != nil {
		return err
	}
	_, _, _, err := r.dir.api.JoinConversationContext(ctx, r.ID())
	if err != nil {
		switch APICode(err) {
		case "already_in_channel":
			return nil
		case "user_is_bot", "method_not_supported_for_channel_type":
			return RoomError{Op: "join", Help: UserIsBotHelp, Err: err}
		}
		return RoomError{Op: "join", Err: err}
	}
	return nil
}

// Leave makes the bot leave the channel.
func (r *RoomRef) Leave(ctx context.Context) error {
	if err := r.EnsureLoaded(ctx); err != nil {
		return err
	}
	_, err := r.dir.api.LeaveConversationContext(ctx, r.ID())
	if err != nil {
		if APICode(err) == "user_is_bot" {
			return RoomError{Op: "leave", Help: UserIsBotHelp, Err: err}
		}
		return RoomError{Op: "leave", Err: err}
	}
	return nil
}

// Create creates the channel under the room's name.
func (r *RoomRef) Create(ctx context.Context, private bool) error {
	r.mu.Lock()
	name := r.name
	r.mu.Unlock()
	if name == "" {
		return fmt.Errorf("cannot create a room referenced by ID only")
	}
	channel, err := r.dir.api.CreateConversationContext(ctx, slack.CreateConversationParams{
		ChannelName: name,
		IsPrivate:   private,
	})
	if err != nil {
		if APICode(err) == "user_is_bot" {
			return RoomError{Op: "create", Help: UserIsBotHelp, Err: err}
		}
		return RoomError{Op: "create", Err: err}
	}
	r.mu.Lock()
	r.id = channel.ID
	r.mu.Unlock()
	return nil
}

// Archive archives the channel. Slack has no hard channel deletion.
func (r *RoomRef) Archive(ctx context.Context) error {
	if err := r.EnsureLoaded(ctx); err != nil {
		return err
	}
	if err := r.dir.api.ArchiveConversationContext(ctx, r.ID()); err != nil {
		if APICode(err) == "user_is_bot" {
			return RoomError{Op: "archive", Help: UserIsBotHelp, Err: err}
		}
		return RoomError{Op: "archive", Err: err}
	}
	return nil
}

// Invite invites the given users (by ID) into the channel. Users already
// in the channel are not an error.
func (r *RoomRef) Invite(ctx context.Context, userIDs ...string) error {
	if err := r.EnsureLoaded(ctx); err != nil {
		return err
	}
	_, err := r.dir.api.InviteUsersToConversationContext(ctx, r.ID(), userIDs...)
	if err != nil {
		switch APICode(err) {
		case "already_in_channel":
			return nil
		case "user_is_bot":
			return RoomError{Op: "invite into", Help: UserIsBotHelp, Err: err}
		}
		return RoomError{Op: "invite into", Err: err}
	}
	return nil
}

// SetTopic updates the channel topic and the cached bundle.
func (r *RoomRef) SetTopic(ctx context.Context, topic string) error {
	if err := r.EnsureLoaded(ctx); err != nil {
		return err
	}
	if _, err := r.dir.api.SetTopicOfConversationContext(ctx, r.ID(), topic); err != nil {
		return fmt.Errorf("failed to set topic of %s: %w", r.ID(), err)
	}
	r.mu.Lock()
	r.info.topic = topic
	r.mu.Unlock()
	return nil
}

// SetPurpose updates the channel purpose and the cached bundle.
func (r *RoomRef) SetPurpose(ctx context.Context, purpose string) error {
	if err := r.EnsureLoaded(ctx); err != nil {
		return err
	}
	if _, err := r.dir.api.SetPurposeOfConversationContext(ctx, r.ID(), purpose); err != nil {
		return fmt.Errorf("failed to set purpose of %s: %w", r.ID(), err)
	}
	r.mu.Lock()
	r.info.purpose = purpose
	r.mu.Unlock()
	return nil
}

// String returns the client hyperlink form <#ID|name>.
func (r *RoomRef) String() string {
	return "<#" + r.ID() + "|" + r.Name() + ">"
}

func (r *RoomRef) Equal(other Identifier) bool {
	o, ok := other.(*RoomRef)
	if !ok {
		r.dir.log.Warn().
			Str("self", r.String()).Str("other", fmt.Sprintf("%T", other)).
			Msg("Compared a room against a different identifier kind")
		return false
	}
	return o.ID() == r.ID() && r.ID() != ""
}

// Occupant scopes a user or bot identity to a specific room membership.
// Exactly one of User and Bot is set.
type Occupant struct {
	User *UserRef
	Bot  *BotRef
	Room *RoomRef
}

// Occupant constructs an occupant from a user or bot ID plus a channel ID.
func (d *Directory) Occupant(memberID, channelID string) (*Occupant, error) {
	room, err := d.RoomByID(channelID)
	if err != nil {
		return nil, err
	}
	if validBotPrefix(memberID) {
		bot, err := d.Bot(memberID, "")
		if err != nil {
			return nil, err
		}
		return &Occupant{Bot: bot, Room: room}, nil
	}
	user, err := d.User(memberID)
	if err != nil {
		return nil, err
	}
	return &Occupant{User: user, Room: room}, nil
}

func (o *Occupant) Kind() Kind { return KindOccupant }

// SlackID returns the member's user or bot ID.
func (o *Occupant) SlackID() string {
	if o.Bot != nil {
		return o.Bot.ID()
	}
	return o.User.ID()
}

// DisplayName returns the member's cached display name.
func (o *Occupant) DisplayName() string {
	if o.Bot != nil {
		return o.Bot.DisplayName()
	}
	return o.User.DisplayName()
}

// EnsureLoaded loads both the member and room bundles.
func (o *Occupant) EnsureLoaded(ctx context.Context) error {
	if o.Bot != nil {
		if err := o.Bot.EnsureLoaded(ctx); err != nil {
			return err
		}
	} else if err := o.User.EnsureLoaded(ctx); err != nil {
		return err
	}
	return o.Room.EnsureLoaded(ctx)
}

// String returns the #room/user inline form.
func (o *Occupant) String() string {
	return "#" + o.Room.Name() + "/" + o.DisplayName()
}

// Equal requires both the member ID and the room ID to match.
func (o *Occupant) Equal(other Identifier) bool {
	oo, ok := other.(*Occupant)
	if !ok {
		o.Room.dir.log.Warn().
			Str("self", o.String()).Str("other", fmt.Sprintf("%T", other)).
			Msg("Compared an occupant against a different identifier kind")
		return false
	}
	return oo.SlackID() == o.SlackID() && oo.Room.ID() == o.Room.ID()
}
