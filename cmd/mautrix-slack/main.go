// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command mautrix-slack is a Matrix-Slack bridge built on the mautrix
// bridgev2 framework. It connects to Slack as a bot over Socket Mode or the
// Events API, translating messages, edits, reactions and channel metadata
// between the two platforms.
package main

import (
	"maunium.net/go/mautrix/bridgev2/matrix/mxmain"

	"github.com/aiku/mautrix-slack/pkg/connector"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var m = mxmain.BridgeMain{
	Name:        "mautrix-slack",
	URL:         "https://github.com/aiku/mautrix-slack",
	Description: "A Matrix-Slack bridge",
	Version:     "0.1.0",

	Connector: &connector.SlackConnector{},
}

func main() {
	m.Run()
}
