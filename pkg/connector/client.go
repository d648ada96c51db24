// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"maunium.net/go/mautrix/bridgev2"
	"maunium.net/go/mautrix/bridgev2/networkid"
	"maunium.net/go/mautrix/bridgev2/simplevent"
	"maunium.net/go/mautrix/bridgev2/status"
	"maunium.net/go/mautrix/event"

	"github.com/aiku/mautrix-slack/pkg/connector/slackid"
)

// remoteEventSender is an interface for queuing remote events. This allows
// tests to inject a mock instead of requiring a full bridgev2.Bridge.
type remoteEventSender interface {
	QueueRemoteEvent(login *bridgev2.UserLogin, evt bridgev2.RemoteEvent)
}

// bridgeEventSender is the production implementation that delegates to the bridge.
type bridgeEventSender struct {
	bridge *bridgev2.Bridge
}

func (b *bridgeEventSender) QueueRemoteEvent(login *bridgev2.UserLogin, evt bridgev2.RemoteEvent) {
	b.bridge.QueueRemoteEvent(login, evt)
}

// SlackClient represents a single authenticated Slack workspace connection.
type SlackClient struct {
	connector   *SlackConnector
	userLogin   *bridgev2.UserLogin
	eventSender remoteEventSender

	client *slack.Client
	sm     *socketmode.Client
	dir    *slackid.Directory
	userID string
	botID  string
	teamID string

	// uploadSem bounds concurrent file uploads.
	uploadSem chan struct{}

	presenceMu sync.RWMutex
	presence   map[string]string

	stopOnce sync.Once
	stopChan chan struct{}
	log      zerolog.Logger
}

var (
	_ bridgev2.NetworkAPI                    = (*SlackClient)(nil)
	_ bridgev2.EditHandlingNetworkAPI        = (*SlackClient)(nil)
	_ bridgev2.ReactionHandlingNetworkAPI    = (*SlackClient)(nil)
	_ bridgev2.RedactionHandlingNetworkAPI   = (*SlackClient)(nil)
	_ bridgev2.TypingHandlingNetworkAPI      = (*SlackClient)(nil)
	_ bridgev2.IdentifierResolvingNetworkAPI = (*SlackClient)(nil)
	_ bridgev2.BackfillingNetworkAPI         = (*SlackClient)(nil)
)

// NewSlackClient creates a new client from an existing user login.
func NewSlackClient(login *bridgev2.UserLogin, connector *SlackConnector) *SlackClient {
	log := login.Log.With().Str("component", "slack_client").Logger()
	sc := &SlackClient{
		connector:   connector,
		userLogin:   login,
		eventSender: &bridgeEventSender{bridge: connector.Bridge},
		uploadSem:   make(chan struct{}, connector.Config.UploadWorkers),
		presence:    make(map[string]string),
		stopChan:    make(chan struct{}),
		log:         log,
	}
	meta := login.Metadata.(*UserLoginMetadata)
	if meta == nil {
		return sc
	}
	sc.userID = meta.UserID
	sc.botID = meta.BotID
	sc.teamID = meta.TeamID
	if meta.Token != "" {
		opts := []slack.Option{}
		if meta.AppToken != "" {
			opts = append(opts, slack.OptionAppLevelToken(meta.AppToken))
		}
		sc.client = slack.New(meta.Token, opts...)
		sc.dir = slackid.NewDirectory(sc.client, log)
	}
	return sc
}

// Connect implements bridgev2.NetworkAPI. It does not return an error;
// connection errors are reported via BridgeState.
func (s *SlackClient) Connect(ctx context.Context) {
	if s.client == nil {
		s.log.Warn().Msg("Client not initialized, login first")
		s.userLogin.BridgeState.Send(status.BridgeState{
			StateEvent: status.StateBadCredentials,
			Error:      "slack-not-logged-in",
			Message:    "Not logged in to Slack",
		})
		return
	}

	auth, err := s.client.AuthTestContext(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to verify Slack token")
		s.userLogin.BridgeState.Send(status.BridgeState{
			StateEvent: status.StateBadCredentials,
			Error:      "slack-token-invalid",
			Message:    "Slack authentication token is invalid",
		})
		return
	}
	s.userID = auth.UserID
	s.botID = auth.BotID
	s.teamID = auth.TeamID
	s.log.Info().
		Str("user_id", auth.UserID).
		Str("bot_id", auth.BotID).
		Str("team", auth.Team).
		Msg("Authenticated")

	// Replace the shared self reference; the previous one is stale after a
	// token rotation or reconnect.
	if err := s.dir.SetSelf(auth.UserID, auth.User); err != nil {
		s.log.Error().Err(err).Msg("Auth test returned an unusable user ID")
		s.userLogin.BridgeState.Send(status.BridgeState{
			StateEvent: status.StateUnknownError,
			Error:      "slack-bad-self",
			Message:    "Slack returned an unusable bot user ID",
		})
		return
	}

	s.connector.registerClient(s.teamID, s)

	meta := s.userLogin.Metadata.(*UserLoginMetadata)
	if meta.AppToken != "" {
		go s.runSocketMode()
	} else if s.connector.Config.EventsListenAddr == "" {
		s.log.Error().Msg("No app-level token and no webhook receiver configured")
		s.userLogin.BridgeState.Send(status.BridgeState{
			StateEvent: status.StateBadCredentials,
			Error:      "slack-no-event-source",
			Message:    "Configure an app-level token for Socket Mode or events_listen_addr for webhooks",
		})
		return
	} else {
		// Webhook mode: events arrive through the connector's receiver.
		s.userLogin.BridgeState.Send(status.BridgeState{
			StateEvent: status.StateConnected,
		})
	}

	// Sync existing channels to create portal rooms in Matrix.
	go s.syncChannels(ctx)
}

// runSocketMode runs the Socket Mode event loop and reconnects on failure
// until Disconnect is called.
func (s *SlackClient) runSocketMode() {
	backoff := time.Second
	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		s.sm = socketmode.New(s.client)
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			select {
			case <-s.stopChan:
				cancel()
			case <-ctx.Done():
			}
		}()
		go s.consumeSocketEvents(ctx)

		err := s.sm.RunContext(ctx)
		cancel()

		select {
		case <-s.stopChan:
			return
		default:
		}

		s.log.Error().Err(err).Dur("backoff", backoff).Msg("Socket Mode loop exited, reconnecting")
		s.userLogin.BridgeState.Send(status.BridgeState{
			StateEvent: status.StateTransientDisconnect,
			Error:      "slack-socket-disconnected",
			Message:    "Socket Mode connection lost, reconnecting",
		})
		time.Sleep(backoff)
		if backoff < time.Minute {
			backoff *= 2
		}
	}
}

func (s *SlackClient) consumeSocketEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-s.sm.Events:
			if !ok {
				return
			}
			switch evt.Type {
			case socketmode.EventTypeConnected:
				s.log.Info().Msg("Socket Mode connected")
				s.userLogin.BridgeState.Send(status.BridgeState{
					StateEvent: status.StateConnected,
				})
			case socketmode.EventTypeConnectionError:
				s.log.Warn().Msg("Socket Mode connection error")
			case socketmode.EventTypeEventsAPI:
				envelope, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					s.log.Warn().Str("event_type", string(evt.Type)).Msg("Unexpected Socket Mode payload type")
					continue
				}
				// Ack before processing; Slack redelivers unacked events.
				if evt.Request != nil {
					s.sm.Ack(*evt.Request)
				}
				s.handleEventsAPIEvent(&envelope)
			case socketmode.EventTypeIncomingError:
				s.log.Warn().Interface("data", evt.Data).Msg("Socket Mode incoming error")
			default:
				// hello, interactive, slash commands and other envelope
				// types the bridge does not consume.
				if evt.Request != nil {
					s.sm.Ack(*evt.Request)
				}
			}
		}
	}
}

// conversationTypes is what the bridge asks conversations.list for.
var conversationTypes = []string{"public_channel", "private_channel", "mpim", "im"}

// syncChannels fetches the conversations the bot is a member of and queues
// ChatResync events so the bridge creates portal rooms in Matrix.
func (s *SlackClient) syncChannels(ctx context.Context) {
	cursor := ""
	count := 0
	for {
		channels, next, err := s.client.GetConversationsContext(ctx, &slack.GetConversationsParameters{
			Cursor:          cursor,
			Limit:           200,
			Types:           conversationTypes,
			ExcludeArchived: true,
		})
		if err != nil {
			s.log.Error().Err(err).Msg("Failed to fetch conversations for sync")
			return
		}
		for i := range channels {
			ch := &channels[i]
			if !ch.IsMember && !ch.IsIM && !ch.IsMpIM {
				continue
			}
			count++
			s.queueChatResync(ch)
		}
		if next == "" {
			break
		}
		cursor = next
	}
	s.log.Info().Int("count", count).Msg("Channel sync complete")
}

func (s *SlackClient) queueChatResync(ch *slack.Channel) {
	s.eventSender.QueueRemoteEvent(s.userLogin, &simplevent.ChatResync{
		EventMeta: simplevent.EventMeta{
			Type:      bridgev2.RemoteEventChatResync,
			PortalKey: makePortalKey(ch.ID),
			LogContext: func(c zerolog.Context) zerolog.Context {
				return c.Str("channel_id", ch.ID).Str("channel_name", ch.Name)
			},
			CreatePortal: true,
		},
		ChatInfo: s.channelToChatInfo(ch),
	})
}

// Disconnect stops the event loops and removes the client from the
// webhook routing table.
func (s *SlackClient) Disconnect() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	if s.teamID != "" {
		s.connector.unregisterClient(s.teamID, s)
	}
}

// IsLoggedIn reports whether the client holds an authentication token.
func (s *SlackClient) IsLoggedIn() bool {
	return s.client != nil
}

func (s *SlackClient) LogoutRemote(_ context.Context) {
	// Slack bot tokens are revoked from the app management page, not the
	// API. Just drop the connection.
	s.Disconnect()
}

// IsThisUser reports whether the given network user ID matches this
// login's bot identity, either the user ID or the bot ID.
func (s *SlackClient) IsThisUser(_ context.Context, userID networkid.UserID) bool {
	id := ParseUserID(userID)
	return id != "" && (id == s.userID || id == s.botID)
}

func (s *SlackClient) GetChatInfo(ctx context.Context, portal *bridgev2.Portal) (*bridgev2.ChatInfo, error) {
	channelID := ParsePortalID(portal.ID)
	channel, err := s.client.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{
		ChannelID: channelID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get channel info: %w", err)
	}
	return s.channelToChatInfo(channel), nil
}

func (s *SlackClient) GetUserInfo(ctx context.Context, ghost *bridgev2.Ghost) (*bridgev2.UserInfo, error) {
	slackUserID := ParseUserID(ghost.ID)
	if strings.HasPrefix(slackUserID, "B") {
		bot, err := s.client.GetBotInfoContext(ctx, slack.GetBotInfoParameters{Bot: slackUserID})
		if err != nil {
			return nil, fmt.Errorf("failed to get bot info: %w", err)
		}
		return s.botToUserInfo(bot), nil
	}
	user, err := s.client.GetUserInfoContext(ctx, slackUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	return s.userToUserInfo(user), nil
}

// setPresence records the last seen presence for a user. Slack only pushes
// presence over the events stream, so this cache is the only view of it.
func (s *SlackClient) setPresence(userID, presence string) {
	s.presenceMu.Lock()
	defer s.presenceMu.Unlock()
	s.presence[userID] = presence
}

// Presence returns the cached presence for a user, or "" if never seen.
func (s *SlackClient) Presence(userID string) string {
	s.presenceMu.RLock()
	defer s.presenceMu.RUnlock()
	return s.presence[userID]
}

func (s *SlackClient) GetCapabilities(_ context.Context, _ *bridgev2.Portal) *event.RoomFeatures {
	return &event.RoomFeatures{
		Formatting: event.FormattingFeatureMap{
			event.FmtBold:          event.CapLevelFullySupported,
			event.FmtItalic:        event.CapLevelFullySupported,
			event.FmtStrikethrough: event.CapLevelFullySupported,
			event.FmtInlineCode:    event.CapLevelFullySupported,
			event.FmtCodeBlock:     event.CapLevelFullySupported,
			event.FmtBlockquote:    event.CapLevelFullySupported,
			event.FmtInlineLink:    event.CapLevelFullySupported,
			event.FmtUserLink:      event.CapLevelFullySupported,
			event.FmtUnorderedList: event.CapLevelFullySupported,
			event.FmtOrderedList:   event.CapLevelPartialSupport,
			event.FmtHeaders:       event.CapLevelPartialSupport,
		},
		File: event.FileFeatureMap{
			event.MsgImage: {
				MimeTypes: map[string]event.CapabilitySupportLevel{
					"image/*": event.CapLevelFullySupported,
				},
				MaxSize: 1024 * 1024 * 1024,
				Caption: event.CapLevelFullySupported,
			},
			event.MsgVideo: {
				MimeTypes: map[string]event.CapabilitySupportLevel{
					"video/*": event.CapLevelFullySupported,
				},
				MaxSize: 1024 * 1024 * 1024,
				Caption: event.CapLevelFullySupported,
			},
			event.MsgAudio: {
				MimeTypes: map[string]event.CapabilitySupportLevel{
					"audio/*": event.CapLevelFullySupported,
				},
				MaxSize: 1024 * 1024 * 1024,
			},
			event.MsgFile: {
				MimeTypes: map[string]event.CapabilitySupportLevel{
					"*/*": event.CapLevelFullySupported,
				},
				MaxSize: 1024 * 1024 * 1024,
			},
		},
		// Longer messages are chunked, so the Matrix side is not limited
		// to a single Slack message.
		MaxTextLength:       10 * hardMessageSizeLimit,
		Reply:               event.CapLevelFullySupported,
		Edit:                event.CapLevelFullySupported,
		Delete:              event.CapLevelFullySupported,
		Reaction:            event.CapLevelFullySupported,
		ReadReceipts:        false,
		TypingNotifications: false,
	}
}
