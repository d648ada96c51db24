// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package connector implements a Matrix-Slack bridge using the mautrix
// bridgev2 framework.
//
// The bridge connects to Slack as a bot. Events arrive either over Socket
// Mode (when the login carries an app-level token) or through the Events
// API webhook receiver, which verifies request signatures and routes each
// payload to the login that owns the workspace.
//
// # Core Types
//
// [SlackConnector] implements [bridgev2.NetworkConnector] and manages the
// bridge lifecycle, the webhook receiver and the workspace routing table.
//
// [SlackClient] represents one authenticated workspace connection. It runs
// the Socket Mode loop, dispatches Events API payloads and performs Web API
// calls for channel sync, message delivery and backfill.
//
// # Message Chunking
//
// Outgoing messages longer than the configured size limit are split into
// multiple Slack messages at newline boundaries, repairing code fences so
// each chunk renders on its own. The timestamp of every chunk is recorded
// in the message metadata; edits rewrite chunks in place and delete
// leftovers, and deletions remove every chunk.
//
// # Sub-packages
//
//   - slackid models Slack identifiers (users, bots, rooms, occupants)
//     with cached name/ID resolution.
//   - matrixfmt converts Matrix HTML to Slack mrkdwn.
//   - slackfmt converts Slack mrkdwn to Matrix HTML.
package connector
