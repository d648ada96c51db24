// Copyright 2024-2026 Aiku AI

package connector

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

// maxEventBodySize is the maximum allowed webhook request body (1 MB).
const maxEventBodySize = 1 << 20

// rawEnvelope is the minimal shape of an Events API request, used to route
// payloads and to catch event types the typed parser does not know.
type rawEnvelope struct {
	Type   string `json:"type"`
	TeamID string `json:"team_id"`
	Event  struct {
		Type     string `json:"type"`
		User     string `json:"user"`
		Presence string `json:"presence"`
	} `json:"event"`
}

// handleEventsRequest is the HTTP handler for the Events API webhook. Each
// request is signature-verified, answered immediately and routed to the
// login that owns the workspace.
func (sc *SlackConnector) handleEventsRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxEventBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	sv, err := slack.NewSecretsVerifier(r.Header, sc.Config.SigningSecret)
	if err != nil {
		sc.Bridge.Log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).
			Msg("Webhook request missing signature headers")
		http.Error(w, "bad signature", http.StatusUnauthorized)
		return
	}
	if _, err = sv.Write(body); err != nil {
		http.Error(w, "failed to verify body", http.StatusInternalServerError)
		return
	}
	if err = sv.Ensure(); err != nil {
		sc.Bridge.Log.Warn().Str("remote_addr", r.RemoteAddr).
			Msg("Webhook request with invalid signature")
		http.Error(w, "bad signature", http.StatusUnauthorized)
		return
	}

	var raw rawEnvelope
	if err = json.Unmarshal(body, &raw); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	if raw.Type == string(slackevents.URLVerification) {
		var challenge slackevents.ChallengeResponse
		if err = json.Unmarshal(body, &challenge); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(challenge.Challenge))
		return
	}

	client := sc.clientForTeam(raw.TeamID)
	if client == nil {
		sc.Bridge.Log.Warn().Str("team_id", raw.TeamID).
			Msg("Webhook event for unknown workspace")
		// 200 anyway: Slack retries non-2xx responses and the workspace
		// is simply not logged in here.
		w.WriteHeader(http.StatusOK)
		return
	}

	// Presence pushes are not part of the typed Events API surface.
	if raw.Event.Type == "presence_change" {
		client.handlePresenceChange(raw.Event.User, raw.Event.Presence)
		w.WriteHeader(http.StatusOK)
		return
	}

	envelope, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		sc.Bridge.Log.Warn().Err(err).Str("team_id", raw.TeamID).
			Str("event_type", raw.Event.Type).
			Msg("Failed to parse webhook event")
		w.WriteHeader(http.StatusOK)
		return
	}

	// Respond before processing; Slack only waits three seconds.
	w.WriteHeader(http.StatusOK)
	go client.handleEventsAPIEvent(&envelope)
}
