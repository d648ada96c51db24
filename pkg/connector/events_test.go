// Copyright 2024-2026 Aiku AI

package connector

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/bridgev2"
)

const testSigningSecret = "8f742231b10e8888abcd99yyyzzz85a5"

// signRequest adds the Slack signature headers to a webhook request.
func signRequest(r *http.Request, body, secret string) {
	ts := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + ts + ":" + body))
	r.Header.Set("X-Slack-Request-Timestamp", ts)
	r.Header.Set("X-Slack-Signature", "v0="+hex.EncodeToString(mac.Sum(nil)))
	r.Header.Set("Content-Type", "application/json")
}

func newTestConnector(t *testing.T) (*SlackConnector, *SlackClient, *mockEventSender) {
	t.Helper()
	client, _, sender := newTestClient(t)
	sc := client.connector
	sc.Bridge = &bridgev2.Bridge{Log: zerolog.Nop()}
	sc.Config.SigningSecret = testSigningSecret
	sc.clients["T1"] = client
	return sc, client, sender
}

func postEvent(t *testing.T, sc *SlackConnector, body string, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(body))
	if sign {
		signRequest(req, body, testSigningSecret)
	}
	rec := httptest.NewRecorder()
	sc.handleEventsRequest(rec, req)
	return rec
}

func TestEventsRequestMissingSignature(t *testing.T) {
	t.Parallel()
	sc, _, _ := newTestConnector(t)

	rec := postEvent(t, sc, `{"type":"event_callback","team_id":"T1"}`, false)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestEventsRequestBadSignature(t *testing.T) {
	t.Parallel()
	sc, _, _ := newTestConnector(t)

	body := `{"type":"event_callback","team_id":"T1"}`
	req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(body))
	signRequest(req, body, "the-wrong-secret")
	rec := httptest.NewRecorder()
	sc.handleEventsRequest(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestEventsRequestMethodNotAllowed(t *testing.T) {
	t.Parallel()
	sc, _, _ := newTestConnector(t)

	req := httptest.NewRequest(http.MethodGet, "/slack/events", nil)
	rec := httptest.NewRecorder()
	sc.handleEventsRequest(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestEventsRequestURLVerification(t *testing.T) {
	t.Parallel()
	sc, _, _ := newTestConnector(t)

	rec := postEvent(t, sc, `{"type":"url_verification","challenge":"picard-facepalm"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	respBody, _ := io.ReadAll(rec.Body)
	if string(respBody) != "picard-facepalm" {
		t.Errorf("challenge echo: got %q, want %q", respBody, "picard-facepalm")
	}
	if got := rec.Header().Get("Content-Type"); got != "text/plain" {
		t.Errorf("content type: got %q, want text/plain", got)
	}
}

func TestEventsRequestUnknownWorkspace(t *testing.T) {
	t.Parallel()
	sc, _, sender := newTestConnector(t)

	// Slack retries non-2xx responses, so an event for a workspace without
	// a login still gets a 200.
	rec := postEvent(t, sc, `{"type":"event_callback","team_id":"T0UNKNOWN","event":{"type":"message"}}`, true)
	if rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rec.Code)
	}
	if evts := sender.Events(); len(evts) != 0 {
		t.Errorf("got %d events, want 0", len(evts))
	}
}

func TestEventsRequestRoutesMessage(t *testing.T) {
	t.Parallel()
	sc, _, sender := newTestConnector(t)

	body := `{
		"type": "event_callback",
		"team_id": "T1",
		"event": {
			"type": "message",
			"channel": "C1",
			"user": "U1",
			"text": "over the wire",
			"ts": "1700000000.000400"
		}
	}`
	rec := postEvent(t, sc, body, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}

	evts := sender.WaitForEvents(t, 1)
	if evts[0].GetType() != bridgev2.RemoteEventMessage {
		t.Errorf("event type: got %v, want %v", evts[0].GetType(), bridgev2.RemoteEventMessage)
	}
}

func TestEventsRequestPresenceChange(t *testing.T) {
	t.Parallel()
	sc, client, _ := newTestConnector(t)

	body := `{"type":"event_callback","team_id":"T1","event":{"type":"presence_change","user":"U1","presence":"away"}}`
	rec := postEvent(t, sc, body, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	if got := client.Presence("U1"); got != "away" {
		t.Errorf("presence after webhook: got %q, want away", got)
	}
}

func TestEventsRequestInvalidJSON(t *testing.T) {
	t.Parallel()
	sc, _, _ := newTestConnector(t)

	rec := postEvent(t, sc, `{not json`, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
