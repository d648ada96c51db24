// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"maunium.net/go/mautrix/bridgev2"
	"maunium.net/go/mautrix/bridgev2/database"

	"github.com/aiku/mautrix-slack/pkg/connector/slackid"
)

// mockEventSender records queued remote events instead of delivering them
// to a bridge.
type mockEventSender struct {
	mu     sync.Mutex
	events []bridgev2.RemoteEvent
}

func (m *mockEventSender) QueueRemoteEvent(_ *bridgev2.UserLogin, evt bridgev2.RemoteEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockEventSender) Events() []bridgev2.RemoteEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]bridgev2.RemoteEvent, len(m.events))
	copy(out, m.events)
	return out
}

func (m *mockEventSender) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

// WaitForEvents polls until at least n events have been queued. Needed for
// paths that dispatch asynchronously, like the webhook receiver.
func (m *mockEventSender) WaitForEvents(t *testing.T, n int) []bridgev2.RemoteEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if evts := m.Events(); len(evts) >= n {
			return evts
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d remote events, got %d", n, len(m.Events()))
	return nil
}

// fakeSlack simulates the parts of the Slack Web API the connector calls.
// Every request is recorded by method name; canned responses and one-shot
// error codes can be installed per method.
type fakeSlack struct {
	t   *testing.T
	srv *httptest.Server

	tsCounter atomic.Int64

	mu        sync.Mutex
	calls     map[string][]url.Values
	responses map[string]string
	failQueue map[string][]string
}

func newFakeSlack(t *testing.T) *fakeSlack {
	t.Helper()
	f := &fakeSlack{
		t:         t,
		calls:     make(map[string][]url.Values),
		responses: make(map[string]string),
		failQueue: make(map[string][]string),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeSlack) URL() string {
	return f.srv.URL
}

func (f *fakeSlack) handle(w http.ResponseWriter, r *http.Request) {
	method := strings.TrimPrefix(r.URL.Path, "/")
	_ = r.ParseForm()

	f.mu.Lock()
	form := make(url.Values, len(r.Form))
	for k, v := range r.Form {
		form[k] = v
	}
	f.calls[method] = append(f.calls[method], form)

	var body string
	if queue := f.failQueue[method]; len(queue) > 0 {
		code := queue[0]
		f.failQueue[method] = queue[1:]
		body = fmt.Sprintf(`{"ok":false,"error":%q}`, code)
	} else if resp, ok := f.responses[method]; ok {
		body = resp
	}
	f.mu.Unlock()

	if body == "" {
		body = f.defaultResponse(method, form)
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func (f *fakeSlack) nextTS() string {
	return fmt.Sprintf("1700000000.%06d", f.tsCounter.Add(1))
}

func (f *fakeSlack) defaultResponse(method string, form url.Values) string {
	switch method {
	case "auth.test":
		return `{"ok":true,"url":"https://testws.slack.com/","team":"Test Workspace","user":"bridgebot","team_id":"T1","user_id":"U0SELF","bot_id":"B0SELF"}`
	case "chat.postMessage":
		return fmt.Sprintf(`{"ok":true,"channel":%q,"ts":%q}`, form.Get("channel"), f.nextTS())
	case "chat.update":
		return fmt.Sprintf(`{"ok":true,"channel":%q,"ts":%q,"text":%q}`,
			form.Get("channel"), form.Get("ts"), form.Get("text"))
	case "chat.delete":
		return fmt.Sprintf(`{"ok":true,"channel":%q,"ts":%q}`, form.Get("channel"), form.Get("ts"))
	case "chat.postEphemeral":
		return fmt.Sprintf(`{"ok":true,"message_ts":%q}`, f.nextTS())
	case "reactions.add", "reactions.remove":
		return `{"ok":true}`
	case "conversations.join":
		return fmt.Sprintf(`{"ok":true,"channel":{"id":%q}}`, form.Get("channel"))
	case "conversations.info":
		return fmt.Sprintf(`{"ok":true,"channel":{"id":%q,"name":"general","is_channel":true,"is_member":true}}`, form.Get("channel"))
	case "conversations.list":
		return `{"ok":true,"channels":[{"id":"C1","name":"general","is_channel":true,"is_member":true}],"response_metadata":{"next_cursor":""}}`
	case "conversations.open":
		return `{"ok":true,"no_op":false,"already_open":false,"channel":{"id":"D42"}}`
	case "conversations.members":
		return `{"ok":true,"members":["U1","U2"],"response_metadata":{"next_cursor":""}}`
	case "conversations.history":
		return `{"ok":true,"messages":[],"has_more":false}`
	case "users.list":
		return `{"ok":true,"members":[]}`
	case "users.info":
		return fmt.Sprintf(`{"ok":true,"user":{"id":%q,"name":"someone","profile":{"display_name":"Someone"}}}`, form.Get("user"))
	case "team.info":
		return `{"ok":true,"team":{"id":"T1","name":"Test Workspace","domain":"testws"}}`
	case "bots.info":
		return fmt.Sprintf(`{"ok":true,"bot":{"id":%q,"name":"helper-bot"}}`, form.Get("bot"))
	default:
		f.t.Logf("fakeSlack: unexpected method %s", method)
		return `{"ok":false,"error":"unknown_method"}`
	}
}

// respond installs a canned JSON response for a method.
func (f *fakeSlack) respond(method, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method] = body
}

// failWith makes the next calls to a method fail with the given Slack
// error codes, one per call, before falling back to normal behavior.
func (f *fakeSlack) failWith(method string, codes ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failQueue[method] = append(f.failQueue[method], codes...)
}

// Calls returns the recorded requests for a method.
func (f *fakeSlack) Calls(method string) []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]url.Values, len(f.calls[method]))
	copy(out, f.calls[method])
	return out
}

func (f *fakeSlack) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls[method])
}

func testGhost(slackUserID string) *bridgev2.Ghost {
	return &bridgev2.Ghost{
		Ghost: &database.Ghost{ID: MakeUserID(slackUserID)},
	}
}

// newTestClient builds a SlackClient wired to a fake Slack server and a
// mock event sender, bypassing the login flow.
func newTestClient(t *testing.T) (*SlackClient, *fakeSlack, *mockEventSender) {
	t.Helper()
	fake := newFakeSlack(t)

	cfg := Config{DisplaynameTemplate: "{{.DisplayName}} (S)"}
	if err := cfg.PostProcess(); err != nil {
		t.Fatalf("config post-process failed: %v", err)
	}
	sc := &SlackConnector{
		Config:  cfg,
		clients: make(map[string]*SlackClient),
	}

	sender := &mockEventSender{}
	api := slack.New("xoxb-test", slack.OptionAPIURL(fake.URL()+"/"))
	client := &SlackClient{
		connector:   sc,
		userLogin:   &bridgev2.UserLogin{},
		eventSender: sender,
		client:      api,
		dir:         slackid.NewDirectory(api, zerolog.Nop()),
		userID:      "U0SELF",
		botID:       "B0SELF",
		teamID:      "T1",
		uploadSem:   make(chan struct{}, cfg.UploadWorkers),
		presence:    make(map[string]string),
		stopChan:    make(chan struct{}),
		log:         zerolog.Nop(),
	}
	return client, fake, sender
}
