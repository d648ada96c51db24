// Copyright 2024-2026 Aiku AI

package slackid

import (
	"context"

	"github.com/slack-go/slack"
)

// API is the subset of the Slack Web API the identifier layer depends on.
// *slack.Client satisfies it; tests substitute a fake.
type API interface {
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
	GetBotInfoContext(ctx context.Context, parameters slack.GetBotInfoParameters) (*slack.Bot, error)
	GetTeamInfoContext(ctx context.Context) (*slack.TeamInfo, error)
	GetUsersContext(ctx context.Context, options ...slack.GetUsersOption) ([]slack.User, error)
	GetConversationInfoContext(ctx context.Context, input *slack.GetConversationInfoInput) (*slack.Channel, error)
	GetConversationsContext(ctx context.Context, params *slack.GetConversationsParameters) ([]slack.Channel, string, error)
	GetUsersInConversationContext(ctx context.Context, params *slack.GetUsersInConversationParameters) ([]string, string, error)
	OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error)
	JoinConversationContext(ctx context.Context, channelID string) (*slack.Channel, string, []string, error)
	LeaveConversationContext(ctx context.Context, channelID string) (bool, error)
	CreateConversationContext(ctx context.Context, params slack.CreateConversationParams) (*slack.Channel, error)
	ArchiveConversationContext(ctx context.Context, channelID string) error
	InviteUsersToConversationContext(ctx context.Context, channelID string, users ...string) (*slack.Channel, error)
	SetTopicOfConversationContext(ctx context.Context, channelID, topic string) (*slack.Channel, error)
	SetPurposeOfConversationContext(ctx context.Context, channelID, purpose string) (*slack.Channel, error)
}

var _ API = (*slack.Client)(nil)
