// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/slack-go/slack"
	"maunium.net/go/mautrix/bridgev2"
	"maunium.net/go/mautrix/bridgev2/database"
	"maunium.net/go/mautrix/bridgev2/networkid"
	"maunium.net/go/mautrix/event"
)

// channelToChatInfo converts a Slack conversation to a bridgev2.ChatInfo.
// Members are intentionally left lazy; channel rosters can be huge and the
// bridge fills ghosts in as messages arrive.
func (s *SlackClient) channelToChatInfo(channel *slack.Channel) *bridgev2.ChatInfo {
	chatInfo := &bridgev2.ChatInfo{}

	switch {
	case channel.IsIM:
		dmType := database.RoomTypeDM
		chatInfo.Type = &dmType
		chatInfo.Members = &bridgev2.ChatMemberList{
			IsFull:           true,
			TotalMemberCount: 2,
			OtherUserID:      MakeUserID(channel.User),
			MemberMap: map[networkid.UserID]bridgev2.ChatMember{
				MakeUserID(channel.User): {
					EventSender: bridgev2.EventSender{Sender: MakeUserID(channel.User)},
					Membership:  event.MembershipJoin,
				},
				MakeUserID(s.userID): {
					EventSender: bridgev2.EventSender{Sender: MakeUserID(s.userID), IsFromMe: true},
					Membership:  event.MembershipJoin,
				},
			},
		}
	case channel.IsMpIM:
		groupType := database.RoomTypeGroupDM
		chatInfo.Type = &groupType
		if channel.Name != "" {
			name := channel.Name
			chatInfo.Name = &name
		}
	default:
		roomType := database.RoomTypeDefault
		chatInfo.Type = &roomType
		name := channel.NameNormalized
		if name == "" {
			name = channel.Name
		}
		chatInfo.Name = &name
		if channel.Topic.Value != "" {
			topic := channel.Topic.Value
			chatInfo.Topic = &topic
		}
	}

	return chatInfo
}

// userToUserInfo converts a Slack user to a bridgev2.UserInfo.
func (s *SlackClient) userToUserInfo(user *slack.User) *bridgev2.UserInfo {
	displayName := user.Profile.DisplayName
	if displayName == "" {
		displayName = user.Name
	}
	name := s.connector.Config.FormatDisplayname(DisplaynameParams{
		Username:    user.Name,
		DisplayName: displayName,
		RealName:    user.Profile.RealName,
	})

	info := &bridgev2.UserInfo{
		Identifiers: []string{
			fmt.Sprintf("slack:%s", user.ID),
		},
		Name:  &name,
		IsBot: &user.IsBot,
	}

	if avatarURL := user.Profile.Image512; avatarURL != "" {
		info.Avatar = &bridgev2.Avatar{
			ID:  networkid.AvatarID(avatarURL),
			Get: s.fetchAvatar(avatarURL),
		}
	}

	return info
}

// botToUserInfo converts a Slack bot integration to a bridgev2.UserInfo.
// Bots have no profile; the integration name is all there is.
func (s *SlackClient) botToUserInfo(bot *slack.Bot) *bridgev2.UserInfo {
	name := s.connector.Config.FormatDisplayname(DisplaynameParams{
		Username:    bot.Name,
		DisplayName: bot.Name,
		RealName:    bot.Name,
	})
	isBot := true
	info := &bridgev2.UserInfo{
		Identifiers: []string{
			fmt.Sprintf("slack:%s", bot.ID),
		},
		Name:  &name,
		IsBot: &isBot,
	}
	if avatarURL := bot.Icons.Image72; avatarURL != "" {
		info.Avatar = &bridgev2.Avatar{
			ID:  networkid.AvatarID(avatarURL),
			Get: s.fetchAvatar(avatarURL),
		}
	}
	return info
}

// fetchAvatar returns a getter that downloads a Slack avatar image.
// Profile images are served from a public CDN and need no auth.
func (s *SlackClient) fetchAvatar(url string) func(ctx context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d fetching avatar", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
}
