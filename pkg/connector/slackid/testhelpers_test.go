// Copyright 2024-2026 Aiku AI

package slackid

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

// fakeAPI implements API with per-method function hooks and call counting.
// Unhooked methods fail loudly so a test never silently hits a method it
// did not expect.
type fakeAPI struct {
	mu    sync.Mutex
	calls map[string]int

	userInfo      func(user string) (*slack.User, error)
	botInfo       func(bot string) (*slack.Bot, error)
	teamInfo      func() (*slack.TeamInfo, error)
	users         func() ([]slack.User, error)
	convInfo      func(channelID string) (*slack.Channel, error)
	convs         func(cursor string) ([]slack.Channel, string, error)
	convMembers   func(channelID, cursor string) ([]string, string, error)
	openConv      func(users []string) (*slack.Channel, error)
	joinConv      func(channelID string) error
	leaveConv     func(channelID string) error
	createConv    func(params slack.CreateConversationParams) (*slack.Channel, error)
	archiveConv   func(channelID string) error
	inviteToConv  func(channelID string, users []string) error
	setTopic      func(channelID, topic string) error
	setPurpose    func(channelID, purpose string) error
}

var _ API = (*fakeAPI)(nil)

func newFakeAPI() *fakeAPI {
	return &fakeAPI{calls: make(map[string]int)}
}

func (f *fakeAPI) record(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
}

func (f *fakeAPI) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

var errUnstubbed = errors.New("unexpected API call in test")

func (f *fakeAPI) GetUserInfoContext(_ context.Context, user string) (*slack.User, error) {
	f.record("users.info")
	if f.userInfo == nil {
		return nil, errUnstubbed
	}
	return f.userInfo(user)
}

func (f *fakeAPI) GetBotInfoContext(_ context.Context, parameters slack.GetBotInfoParameters) (*slack.Bot, error) {
	f.record("bots.info")
	if f.botInfo == nil {
		return nil, errUnstubbed
	}
	return f.botInfo(parameters.Bot)
}

func (f *fakeAPI) GetTeamInfoContext(_ context.Context) (*slack.TeamInfo, error) {
	f.record("team.info")
	if f.teamInfo == nil {
		return &slack.TeamInfo{ID: "T1", Domain: "testws"}, nil
	}
	return f.teamInfo()
}

func (f *fakeAPI) GetUsersContext(_ context.Context, _ ...slack.GetUsersOption) ([]slack.User, error) {
	f.record("users.list")
	if f.users == nil {
		return nil, errUnstubbed
	}
	return f.users()
}

func (f *fakeAPI) GetConversationInfoContext(_ context.Context, input *slack.GetConversationInfoInput) (*slack.Channel, error) {
	f.record("conversations.info")
	if f.convInfo == nil {
		return nil, errUnstubbed
	}
	return f.convInfo(input.ChannelID)
}

func (f *fakeAPI) GetConversationsContext(_ context.Context, params *slack.GetConversationsParameters) ([]slack.Channel, string, error) {
	f.record("conversations.list")
	if f.convs == nil {
		return nil, "", errUnstubbed
	}
	return f.convs(params.Cursor)
}

func (f *fakeAPI) GetUsersInConversationContext(_ context.Context, params *slack.GetUsersInConversationParameters) ([]string, string, error) {
	f.record("conversations.members")
	if f.convMembers == nil {
		return nil, "", errUnstubbed
	}
	return f.convMembers(params.ChannelID, params.Cursor)
}

func (f *fakeAPI) OpenConversationContext(_ context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error) {
	f.record("conversations.open")
	if f.openConv == nil {
		return nil, false, false, errUnstubbed
	}
	ch, err := f.openConv(params.Users)
	return ch, false, false, err
}

func (f *fakeAPI) JoinConversationContext(_ context.Context, channelID string) (*slack.Channel, string, []string, error) {
	f.record("conversations.join")
	if f.joinConv == nil {
		return nil, "", nil, errUnstubbed
	}
	return nil, "", nil, f.joinConv(channelID)
}

func (f *fakeAPI) LeaveConversationContext(_ context.Context, channelID string) (bool, error) {
	f.record("conversations.leave")
	if f.leaveConv == nil {
		return false, errUnstubbed
	}
	return false, f.leaveConv(channelID)
}

func (f *fakeAPI) CreateConversationContext(_ context.Context, params slack.CreateConversationParams) (*slack.Channel, error) {
	f.record("conversations.create")
	if f.createConv == nil {
		return nil, errUnstubbed
	}
	return f.createConv(params)
}

func (f *fakeAPI) ArchiveConversationContext(_ context.Context, channelID string) error {
	f.record("conversations.archive")
	if f.archiveConv == nil {
		return errUnstubbed
	}
	return f.archiveConv(channelID)
}

func (f *fakeAPI) InviteUsersToConversationContext(_ context.Context, channelID string, users ...string) (*slack.Channel, error) {
	f.record("conversations.invite")
	if f.inviteToConv == nil {
		return nil, errUnstubbed
	}
	return nil, f.inviteToConv(channelID, users)
}

func (f *fakeAPI) SetTopicOfConversationContext(_ context.Context, channelID, topic string) (*slack.Channel, error) {
	f.record("conversations.setTopic")
	if f.setTopic == nil {
		return nil, errUnstubbed
	}
	return nil, f.setTopic(channelID, topic)
}

func (f *fakeAPI) SetPurposeOfConversationContext(_ context.Context, channelID, purpose string) (*slack.Channel, error) {
	f.record("conversations.setPurpose")
	if f.setPurpose == nil {
		return nil, errUnstubbed
	}
	return nil, f.setPurpose(channelID, purpose)
}

func newTestDirectory(t *testing.T) (*Directory, *fakeAPI) {
	t.Helper()
	api := newFakeAPI()
	return NewDirectory(api, zerolog.Nop()), api
}

// testChannel builds a minimal channel info payload.
func testChannel(id, name string) *slack.Channel {
	ch := &slack.Channel{}
	ch.ID = id
	ch.Name = name
	return ch
}
