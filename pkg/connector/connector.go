// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"maunium.net/go/mautrix/bridgev2"
	"maunium.net/go/mautrix/bridgev2/database"
	"maunium.net/go/mautrix/bridgev2/networkid"
)

// SlackConnector implements bridgev2.NetworkConnector for Slack.
type SlackConnector struct {
	Bridge *bridgev2.Bridge
	Config Config

	// clients routes webhook events to the login that owns the workspace.
	clients  map[string]*SlackClient
	clientMu sync.RWMutex

	eventsServer *http.Server
}

var _ bridgev2.NetworkConnector = (*SlackConnector)(nil)

func (sc *SlackConnector) Init(bridge *bridgev2.Bridge) {
	sc.Bridge = bridge
	sc.clients = make(map[string]*SlackClient)
}

func (sc *SlackConnector) Start(ctx context.Context) error {
	if err := sc.Config.PostProcess(); err != nil {
		return fmt.Errorf("failed to post-process config: %w", err)
	}

	if sc.Config.EventsListenAddr != "" {
		if sc.Config.SigningSecret == "" {
			return fmt.Errorf("events_listen_addr is set but signing_secret is empty")
		}
		mux := http.NewServeMux()
		mux.HandleFunc(sc.Config.EventsPath, sc.handleEventsRequest)
		sc.eventsServer = &http.Server{
			Addr:         sc.Config.EventsListenAddr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			sc.Bridge.Log.Info().
				Str("addr", sc.Config.EventsListenAddr).
				Str("path", sc.Config.EventsPath).
				Msg("Starting Slack events webhook receiver")
			if err := sc.eventsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				sc.Bridge.Log.Error().Err(err).Msg("Slack events webhook receiver error")
			}
		}()
	}

	return nil
}

// registerClient makes a connected login reachable by the webhook receiver.
func (sc *SlackConnector) registerClient(teamID string, client *SlackClient) {
	sc.clientMu.Lock()
	defer sc.clientMu.Unlock()
	sc.clients[teamID] = client
}

func (sc *SlackConnector) unregisterClient(teamID string, client *SlackClient) {
	sc.clientMu.Lock()
	defer sc.clientMu.Unlock()
	if sc.clients[teamID] == client {
		delete(sc.clients, teamID)
	}
}

// clientForTeam returns the connected login for a workspace, or nil.
func (sc *SlackConnector) clientForTeam(teamID string) *SlackClient {
	sc.clientMu.RLock()
	defer sc.clientMu.RUnlock()
	return sc.clients[teamID]
}

func (sc *SlackConnector) LoadUserLogin(_ context.Context, login *bridgev2.UserLogin) error {
	login.Client = NewSlackClient(login, sc)
	return nil
}

func (sc *SlackConnector) GetName() bridgev2.BridgeName {
	return bridgev2.BridgeName{
		DisplayName:      "Slack",
		NetworkURL:       "https://slack.com",
		NetworkIcon:      "mxc://maunium.net/pVtzLmChZejGxLqmXtQjFxem",
		NetworkID:        "slack",
		BeeperBridgeType: "slack",
		DefaultPort:      29319,
	}
}

func (sc *SlackConnector) GetDBMetaTypes() database.MetaTypes {
	return database.MetaTypes{
		UserLogin: func() any {
			return &UserLoginMetadata{}
		},
		Message: func() any {
			return &MessageMetadata{}
		},
	}
}

func (sc *SlackConnector) GetCapabilities() *bridgev2.NetworkGeneralCapabilities {
	return &bridgev2.NetworkGeneralCapabilities{
		DisappearingMessages: false,
		AggressiveUpdateInfo: false,
	}
}

func (sc *SlackConnector) GetBridgeInfoVersion() (info, capabilities int) {
	return 1, 1
}

// UserLoginMetadata stores Slack-specific login data.
type UserLoginMetadata struct {
	// Token is the xoxb bot token.
	Token string `json:"token"`
	// AppToken is the xapp app-level token. When set, events arrive over
	// Socket Mode instead of the webhook receiver.
	AppToken string `json:"app_token,omitempty"`
	UserID   string `json:"user_id"`
	BotID    string `json:"bot_id"`
	TeamID   string `json:"team_id"`
}

// MessageMetadata records Slack-side delivery state for one logical
// message: the timestamp of every chunk it was split into, in order. The
// first chunk's timestamp is also the MessageID.
type MessageMetadata struct {
	ChunkTimestamps []string `json:"chunk_timestamps,omitempty"`
	// Ephemeral messages have no real timestamp and cannot be edited or
	// deleted later.
	Ephemeral bool `json:"ephemeral,omitempty"`
}

// MakeUserLoginID creates a UserLoginID from a Slack team and bot user ID.
// One Slack app may be installed in several workspaces.
func MakeUserLoginID(teamID, userID string) networkid.UserLoginID {
	return networkid.UserLoginID(teamID + "-" + userID)
}
