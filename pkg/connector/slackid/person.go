// Copyright 2024-2026 Aiku AI

package slackid

import (
	"context"
	"fmt"
	"sync"

	"github.com/slack-go/slack"
)

// userProfile is the cached attribute bundle for a user. It is populated at
// most once per instance by EnsureLoaded.
type userProfile struct {
	displayName string
	realName    string
	email       string
	domain      string
}

// UserRef identifies a human user (ID prefix U or W). The profile bundle is
// fetched on the first EnsureLoaded call and cached for the lifetime of the
// instance; Refresh forces a refetch.
type UserRef struct {
	dir *Directory
	id  string

	mu      sync.Mutex
	loaded  bool
	profile userProfile
}

// User constructs a UserRef, validating the ID prefix.
func (d *Directory) User(userID string) (*UserRef, error) {
	if !validUserPrefix(userID) {
		return nil, fmt.Errorf("not a Slack user ID: %q (should start with U or W)", userID)
	}
	return &UserRef{dir: d, id: userID}, nil
}

func (u *UserRef) Kind() Kind      { return KindUser }
func (u *UserRef) SlackID() string { return u.id }

// ID returns the user ID. The ID is the only stable way to identify a user;
// display names are mutable and not unique.
func (u *UserRef) ID() string { return u.id }

// EnsureLoaded fetches the profile bundle if it has not been fetched yet.
// One call populates the whole bundle (user info plus team info for the
// archive domain); repeated calls are free.
func (u *UserRef) EnsureLoaded(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.loaded {
		return nil
	}
	user, err := u.dir.api.GetUserInfoContext(ctx, u.id)
	if err != nil {
		if APICode(err) == "user_not_found" {
			return UserNotFoundError{ID: u.id}
		}
		return fmt.Errorf("failed to fetch user info for %s: %w", u.id, err)
	}
	u.profile = userProfile{
		displayName: user.Profile.DisplayName,
		realName:    user.Profile.RealName,
		email:       user.Profile.Email,
	}
	if u.profile.displayName == "" {
		u.profile.displayName = user.Name
	}
	team, err := u.dir.api.GetTeamInfoContext(ctx)
	if err != nil {
		u.dir.log.Warn().Err(err).Str("user_id", u.id).
			Msg("Failed to fetch team info for user")
	} else {
		u.profile.domain = team.Domain
	}
	u.loaded = true
	return nil
}

// Refresh discards the cached bundle and fetches it again.
func (u *UserRef) Refresh(ctx context.Context) error {
	u.mu.Lock()
	u.loaded = false
	u.mu.Unlock()
	return u.EnsureLoaded(ctx)
}

// DisplayName returns the cached display name. Empty until EnsureLoaded.
func (u *UserRef) DisplayName() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.profile.displayName
}

// RealName returns the cached full name.
func (u *UserRef) RealName() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.profile.realName
}

// Email returns the cached email address.
func (u *UserRef) Email() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.profile.email
}

// Domain returns the cached workspace domain, used to build archive URLs.
func (u *UserRef) Domain() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.profile.domain
}

// ACLAttr is the value access control rules match against. Only the user ID
// is stable enough for that.
func (u *UserRef) ACLAttr() string { return u.id }

func (u *UserRef) String() string { return "<@" + u.id + ">" }

func (u *UserRef) Equal(other Identifier) bool {
	o, ok := other.(*UserRef)
	if !ok {
		u.dir.log.Warn().
			Str("self", u.String()).Str("other", fmt.Sprintf("%T", other)).
			Msg("Compared a user against a different identifier kind")
		return false
	}
	return o.id == u.id
}

// BotRef identifies an integration account (ID prefix B). The bundle has
// only a name; bots have no email or real name.
type BotRef struct {
	dir *Directory
	id  string

	mu       sync.Mutex
	loaded   bool
	username string
}

// Bot constructs a BotRef, validating the ID prefix. The username hint from
// the event payload, if any, avoids a bots.info call.
func (d *Directory) Bot(botID, username string) (*BotRef, error) {
	if !validBotPrefix(botID) {
		return nil, fmt.Errorf("not a Slack bot ID: %q (should start with B)", botID)
	}
	b := &BotRef{dir: d, id: botID}
	if username != "" {
		b.username = username
		b.loaded = true
	}
	return b, nil
}

func (b *BotRef) Kind() Kind      { return KindBot }
func (b *BotRef) SlackID() string { return b.id }
func (b *BotRef) ID() string      { return b.id }

// EnsureLoaded fetches the bot info bundle if it has not been fetched yet.
func (b *BotRef) EnsureLoaded(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loaded {
		return nil
	}
	bot, err := b.dir.api.GetBotInfoContext(ctx, slack.GetBotInfoParameters{Bot: b.id})
	if err != nil {
		if APICode(err) == "bot_not_found" {
			return UserNotFoundError{ID: b.id}
		}
		return fmt.Errorf("failed to fetch bot info for %s: %w", b.id, err)
	}
	b.username = bot.Name
	b.loaded = true
	return nil
}

// DisplayName returns the cached bot name.
func (b *BotRef) DisplayName() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.username
}

// ACLAttr wraps the bot ID in angle brackets so access rules match against
// the integration ID rather than a human-readable name a webhook could
// impersonate.
func (b *BotRef) ACLAttr() string { return "<" + b.id + ">" }

func (b *BotRef) String() string { return "<@" + b.id + ">" }

func (b *BotRef) Equal(other Identifier) bool {
	o, ok := other.(*BotRef)
	if !ok {
		b.dir.log.Warn().
			Str("self", b.String()).Str("other", fmt.Sprintf("%T", other)).
			Msg("Compared a bot against a different identifier kind")
		return false
	}
	return o.id == b.id
}
