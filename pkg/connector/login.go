// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"maunium.net/go/mautrix/bridgev2"
	"maunium.net/go/mautrix/bridgev2/database"

	"github.com/aiku/mautrix-slack/pkg/connector/slackid"
)

// GetLoginFlows returns the available login methods for the bridge.
func (sc *SlackConnector) GetLoginFlows() []bridgev2.LoginFlow {
	return []bridgev2.LoginFlow{
		{
			Name:        "Bot Token",
			Description: "Log in with a Slack bot token (xoxb-...), optionally with an app-level token (xapp-...) for Socket Mode",
			ID:          "token",
		},
	}
}

// CreateLogin starts a new login process for the given flow.
func (sc *SlackConnector) CreateLogin(_ context.Context, user *bridgev2.User, flowID string) (bridgev2.LoginProcess, error) {
	if flowID != "token" {
		return nil, fmt.Errorf("unknown login flow: %s", flowID)
	}
	return &TokenLoginProcess{
		connector: sc,
		user:      user,
	}, nil
}

// TokenLoginProcess implements token-based login.
type TokenLoginProcess struct {
	connector *SlackConnector
	user      *bridgev2.User
}

var _ bridgev2.LoginProcessUserInput = (*TokenLoginProcess)(nil)

func (t *TokenLoginProcess) Start(_ context.Context) (*bridgev2.LoginStep, error) {
	return &bridgev2.LoginStep{
		Type:         bridgev2.LoginStepTypeUserInput,
		StepID:       "fi.mau.slack.login.token",
		Instructions: "Enter your Slack bot token. The app-level token may be left empty if the Events API webhook receiver is configured instead.",
		UserInputParams: &bridgev2.LoginUserInputParams{
			Fields: []bridgev2.LoginInputDataField{
				{
					Type: bridgev2.LoginInputFieldTypePassword,
					ID:   "token",
					Name: "Bot token (xoxb-...)",
				},
				{
					Type: bridgev2.LoginInputFieldTypePassword,
					ID:   "app_token",
					Name: "App-level token (xapp-..., optional)",
				},
			},
		},
	}, nil
}

func (t *TokenLoginProcess) SubmitUserInput(ctx context.Context, input map[string]string) (*bridgev2.LoginStep, error) {
	return t.finishLogin(ctx, input["token"], input["app_token"])
}

func (t *TokenLoginProcess) Cancel() {}

func (t *TokenLoginProcess) finishLogin(ctx context.Context, token, appToken string) (*bridgev2.LoginStep, error) {
	client := slack.New(token)
	auth, err := client.AuthTestContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	loginID := MakeUserLoginID(auth.TeamID, auth.UserID)

	ul, err := t.user.NewLogin(ctx, &database.UserLogin{
		ID:         loginID,
		RemoteName: fmt.Sprintf("%s @ %s", auth.User, auth.Team),
	}, &bridgev2.NewLoginParams{
		LoadUserLogin: t.connector.LoadUserLogin,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create login: %w", err)
	}

	meta := ul.Metadata.(*UserLoginMetadata)
	meta.Token = token
	meta.AppToken = appToken
	meta.UserID = auth.UserID
	meta.BotID = auth.BotID
	meta.TeamID = auth.TeamID
	if err = ul.Save(ctx); err != nil {
		return nil, fmt.Errorf("failed to save login: %w", err)
	}

	// The client was constructed before the metadata was filled in, so
	// hand it the authenticated API client directly, then connect.
	slackClient := ul.Client.(*SlackClient)
	if appToken != "" {
		client = slack.New(token, slack.OptionAppLevelToken(appToken))
	}
	slackClient.client = client
	slackClient.dir = slackid.NewDirectory(client, slackClient.log)
	slackClient.userID = auth.UserID
	slackClient.botID = auth.BotID
	slackClient.teamID = auth.TeamID
	slackClient.Connect(ctx)

	return &bridgev2.LoginStep{
		Type:         bridgev2.LoginStepTypeComplete,
		StepID:       "fi.mau.slack.login.complete",
		Instructions: fmt.Sprintf("Logged in as %s in %s", auth.User, auth.Team),
		CompleteParams: &bridgev2.LoginCompleteParams{
			UserLoginID: loginID,
			UserLogin:   ul,
		},
	}, nil
}

// ResolveIdentifier resolves compact Slack notation (<@U12345>, @user,
// #channel, #channel/user) to a ghost or portal. With createChat set, a
// person target is diverted to a direct-message channel, opening one if
// none exists yet.
func (s *SlackClient) ResolveIdentifier(ctx context.Context, identifier string, createChat bool) (*bridgev2.ResolveIdentifierResponse, error) {
	if !s.IsLoggedIn() {
		return nil, bridgev2.ErrNotLoggedIn
	}

	ident, err := s.dir.Build(ctx, identifier)
	if err != nil {
		return nil, err
	}

	var slackUserID string
	switch target := ident.(type) {
	case *slackid.RoomRef:
		if err = target.EnsureLoaded(ctx); err != nil {
			return nil, err
		}
		resp := &bridgev2.ResolveIdentifierResponse{}
		if createChat {
			resp.Chat = &bridgev2.CreateChatResponse{
				PortalKey: makePortalKey(target.ID()),
			}
		}
		return resp, nil
	case *slackid.UserRef:
		slackUserID = target.ID()
	case *slackid.BotRef:
		slackUserID = target.ID()
	case *slackid.Occupant:
		slackUserID = target.SlackID()
	default:
		return nil, slackid.ErrUnresolvedIdentifier
	}

	ghost, err := s.connector.Bridge.GetGhostByID(ctx, MakeUserID(slackUserID))
	if err != nil {
		return nil, fmt.Errorf("failed to get ghost: %w", err)
	}

	resp := &bridgev2.ResolveIdentifierResponse{
		Ghost:  ghost,
		UserID: MakeUserID(slackUserID),
	}

	if createChat {
		dmChannelID, err := s.dir.OpenDM(ctx, slackUserID)
		if err != nil {
			return nil, err
		}
		resp.Chat = &bridgev2.CreateChatResponse{
			PortalKey: makePortalKey(dmChannelID),
		}
	}

	return resp, nil
}
