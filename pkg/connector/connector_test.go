// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"testing"

	"maunium.net/go/mautrix/bridgev2"
)

func TestClientRegistry(t *testing.T) {
	t.Parallel()
	sc := &SlackConnector{clients: make(map[string]*SlackClient)}
	a := &SlackClient{}
	b := &SlackClient{}

	sc.registerClient("T1", a)
	if got := sc.clientForTeam("T1"); got != a {
		t.Error("clientForTeam did not return the registered client")
	}
	if got := sc.clientForTeam("T2"); got != nil {
		t.Errorf("unknown team: got %v, want nil", got)
	}

	// A relogin replaces the client; unregistering the stale one must not
	// remove the replacement.
	sc.registerClient("T1", b)
	sc.unregisterClient("T1", a)
	if got := sc.clientForTeam("T1"); got != b {
		t.Error("unregistering a stale client removed the active one")
	}
	sc.unregisterClient("T1", b)
	if got := sc.clientForTeam("T1"); got != nil {
		t.Errorf("after unregister: got %v, want nil", got)
	}
}

func TestStartRequiresSigningSecret(t *testing.T) {
	t.Parallel()
	sc := &SlackConnector{
		Config:  Config{EventsListenAddr: "127.0.0.1:0"},
		clients: make(map[string]*SlackClient),
	}
	if err := sc.Start(context.Background()); err == nil {
		t.Error("Start with a listen address but no signing secret should fail")
	}
}

func TestGetName(t *testing.T) {
	t.Parallel()
	sc := &SlackConnector{}
	name := sc.GetName()
	if name.NetworkID != "slack" {
		t.Errorf("NetworkID: got %q, want slack", name.NetworkID)
	}
	if name.DisplayName != "Slack" {
		t.Errorf("DisplayName: got %q, want Slack", name.DisplayName)
	}
}

func TestGetDBMetaTypes(t *testing.T) {
	t.Parallel()
	sc := &SlackConnector{}
	meta := sc.GetDBMetaTypes()
	if _, ok := meta.UserLogin().(*UserLoginMetadata); !ok {
		t.Errorf("UserLogin meta: got %T, want *UserLoginMetadata", meta.UserLogin())
	}
	if _, ok := meta.Message().(*MessageMetadata); !ok {
		t.Errorf("Message meta: got %T, want *MessageMetadata", meta.Message())
	}
}

func TestGetLoginFlows(t *testing.T) {
	t.Parallel()
	sc := &SlackConnector{}
	flows := sc.GetLoginFlows()
	if len(flows) != 1 {
		t.Fatalf("got %d login flows, want 1", len(flows))
	}
	if flows[0].ID != "token" {
		t.Errorf("flow ID: got %q, want token", flows[0].ID)
	}
}

func TestCreateLoginUnknownFlow(t *testing.T) {
	t.Parallel()
	sc := &SlackConnector{}
	if _, err := sc.CreateLogin(context.Background(), nil, "oauth"); err == nil {
		t.Error("unknown flow ID should fail")
	}
}

func TestCreateLoginTokenFlowStart(t *testing.T) {
	t.Parallel()
	sc := &SlackConnector{}
	process, err := sc.CreateLogin(context.Background(), nil, "token")
	if err != nil {
		t.Fatalf("CreateLogin: %v", err)
	}
	step, err := process.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if step.Type != bridgev2.LoginStepTypeUserInput {
		t.Errorf("step type: got %v, want user input", step.Type)
	}
	fields := step.UserInputParams.Fields
	if len(fields) != 2 || fields[0].ID != "token" || fields[1].ID != "app_token" {
		t.Errorf("input fields: got %v, want token and app_token", fields)
	}
}

func TestClientCapabilities(t *testing.T) {
	t.Parallel()
	client, _, _ := newTestClient(t)
	caps := client.GetCapabilities(context.Background(), nil)

	// Chunking lifts the Matrix-side limit above a single Slack message.
	if caps.MaxTextLength != 10*hardMessageSizeLimit {
		t.Errorf("MaxTextLength: got %d, want %d", caps.MaxTextLength, 10*hardMessageSizeLimit)
	}
	// The Slack Web API has no typing or read-receipt surface for bots.
	if caps.TypingNotifications || caps.ReadReceipts {
		t.Error("typing/read receipts should be off")
	}
}

func TestIsThisUser(t *testing.T) {
	t.Parallel()
	client, _, _ := newTestClient(t)

	if !client.IsThisUser(context.Background(), MakeUserID("U0SELF")) {
		t.Error("own user ID not recognized")
	}
	if !client.IsThisUser(context.Background(), MakeUserID("B0SELF")) {
		t.Error("own bot ID not recognized")
	}
	if client.IsThisUser(context.Background(), MakeUserID("U1")) {
		t.Error("other user recognized as self")
	}
	if client.IsThisUser(context.Background(), MakeUserID("")) {
		t.Error("empty ID recognized as self")
	}
}

func TestResolveIdentifierRoom(t *testing.T) {
	t.Parallel()
	client, fake, _ := newTestClient(t)
	_ = fake

	resp, err := client.ResolveIdentifier(context.Background(), "#general", true)
	if err != nil {
		t.Fatalf("ResolveIdentifier: %v", err)
	}
	if resp.Chat == nil || string(resp.Chat.PortalKey.ID) != "C1" {
		t.Errorf("portal key: got %v, want C1", resp.Chat)
	}
}

func TestResolveIdentifierRoomByID(t *testing.T) {
	t.Parallel()
	client, _, _ := newTestClient(t)

	resp, err := client.ResolveIdentifier(context.Background(), "<#C1|general>", false)
	if err != nil {
		t.Fatalf("ResolveIdentifier: %v", err)
	}
	// Without createChat the response carries neither chat nor ghost for a
	// room target.
	if resp.Chat != nil {
		t.Errorf("chat: got %v, want nil without createChat", resp.Chat)
	}
}

func TestResolveIdentifierMalformed(t *testing.T) {
	t.Parallel()
	client, _, _ := newTestClient(t)

	if _, err := client.ResolveIdentifier(context.Background(), "no-sigil", false); err == nil {
		t.Error("malformed identifier should fail")
	}
}

func TestResolveIdentifierNotLoggedIn(t *testing.T) {
	t.Parallel()
	client, _, _ := newTestClient(t)
	client.client = nil

	if _, err := client.ResolveIdentifier(context.Background(), "#general", false); err != bridgev2.ErrNotLoggedIn {
		t.Errorf("got %v, want ErrNotLoggedIn", err)
	}
}
