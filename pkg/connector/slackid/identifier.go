// Copyright 2024-2026 Aiku AI

// Package slackid models Slack identities: users, bot accounts, channels
// and channel occupants. Identifier kinds are discriminated by the
// single-character prefix Slack assigns to IDs (U/W users, B bots, C/G/D
// channels); construction validates the prefix up front so a half-built
// identifier never escapes.
//
// Attribute bundles (profile, channel info) are fetched lazily via an
// explicit EnsureLoaded call and cached on the instance; accessors operate
// only on the loaded bundle and never hide a network call behind a field
// read.
package slackid

import "fmt"

// Kind discriminates identifier variants.
type Kind string

const (
	KindUser     Kind = "user"
	KindBot      Kind = "bot"
	KindRoom     Kind = "room"
	KindOccupant Kind = "occupant"
)

// Identifier is any resolvable Slack identity.
type Identifier interface {
	Kind() Kind
	// SlackID returns the primary network-assigned ID (user ID for users,
	// bots and occupants, channel ID for rooms).
	SlackID() string
	// String returns the canonical inline form (<@U...>, <#C...|name>,
	// #room/user).
	String() string
	// Equal reports identity equality: kind and primary ID must match, and
	// occupants additionally require a channel ID match. Comparing across
	// kinds returns false.
	Equal(other Identifier) bool
}

// Serialized is the persisted form of an identifier. Network handles are
// never serialized; reconstruction goes through Directory.FromSerialized.
type Serialized struct {
	Kind   Kind   `json:"kind"`
	ID     string `json:"id"`
	RoomID string `json:"room_id,omitempty"`
}

// Serialize converts an identifier to its persisted form.
func Serialize(ident Identifier) Serialized {
	s := Serialized{Kind: ident.Kind(), ID: ident.SlackID()}
	if occ, ok := ident.(*Occupant); ok {
		s.RoomID = occ.Room.ID()
	}
	return s
}

// FromSerialized reconstructs an identifier from its persisted form using
// this directory's session.
func (d *Directory) FromSerialized(s Serialized) (Identifier, error) {
	switch s.Kind {
	case KindUser:
		return d.User(s.ID)
	case KindBot:
		return d.Bot(s.ID, "")
	case KindRoom:
		return d.RoomByID(s.ID)
	case KindOccupant:
		return d.Occupant(s.ID, s.RoomID)
	default:
		return nil, fmt.Errorf("unknown identifier kind %q", s.Kind)
	}
}

func validUserPrefix(id string) bool {
	return len(id) > 0 && (id[0] == 'U' || id[0] == 'W')
}

func validBotPrefix(id string) bool {
	return len(id) > 0 && id[0] == 'B'
}

func validChannelPrefix(id string) bool {
	return len(id) > 0 && (id[0] == 'C' || id[0] == 'G' || id[0] == 'D')
}
