// Copyright 2024-2026 Aiku AI

package connector

import (
	_ "embed"
	"text/template"

	up "go.mau.fi/util/configupgrade"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// Config holds the Slack connector configuration.
type Config struct {
	DisplaynameTemplate string `yaml:"displayname_template"`
	// MessageSizeLimit is the soft chunking threshold for outgoing message
	// text. Values above Slack's hard cap of 40000 are clamped; 0 selects
	// the default of 4000.
	MessageSizeLimit int `yaml:"message_size_limit"`
	// EventsListenAddr is the listen address for the Events API webhook
	// receiver. Leave empty to use Socket Mode only.
	EventsListenAddr string `yaml:"events_listen_addr"`
	// EventsPath is the HTTP path the webhook receiver is mounted on.
	// Defaults to "/slack/events".
	EventsPath string `yaml:"events_path"`
	// SigningSecret verifies webhook request signatures. Required when
	// EventsListenAddr is set.
	SigningSecret string `yaml:"signing_secret"`

	BackfillEnabled  bool `yaml:"backfill_enabled"`
	BackfillMaxCount int  `yaml:"backfill_max_count"`
	TypingTimeout    int  `yaml:"typing_timeout"`
	// UploadWorkers bounds how many file uploads run concurrently per
	// login. Defaults to 4.
	UploadWorkers int `yaml:"upload_workers"`

	displaynameTemplate *template.Template `yaml:"-"`
}

// DisplaynameParams holds the parameters for rendering the displayname template.
type DisplaynameParams struct {
	Username    string
	DisplayName string
	RealName    string
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

func (c *Config) PostProcess() error {
	if c.MessageSizeLimit <= 0 {
		c.MessageSizeLimit = 4000
	}
	if c.MessageSizeLimit > hardMessageSizeLimit {
		c.MessageSizeLimit = hardMessageSizeLimit
	}
	if c.EventsPath == "" {
		c.EventsPath = "/slack/events"
	}
	if c.UploadWorkers <= 0 {
		c.UploadWorkers = 4
	}
	var err error
	c.displaynameTemplate, err = template.New("displayname").Parse(c.DisplaynameTemplate)
	return err
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "displayname_template")
	helper.Copy(up.Int, "message_size_limit")
	helper.Copy(up.Str, "events_listen_addr")
	helper.Copy(up.Str, "events_path")
	helper.Copy(up.Str, "signing_secret")
	helper.Copy(up.Bool, "backfill_enabled")
	helper.Copy(up.Int, "backfill_max_count")
	helper.Copy(up.Int, "typing_timeout")
	helper.Copy(up.Int, "upload_workers")
}

func (sc *SlackConnector) GetConfig() (example string, data any, upgrader up.Upgrader) {
	return ExampleConfig, &sc.Config, &up.StructUpgrader{
		SimpleUpgrader: up.SimpleUpgrader(upgradeConfig),
		Blocks:         nil,
		Base:           ExampleConfig,
	}
}

// FormatDisplayname generates a display name from the template and params.
func (c *Config) FormatDisplayname(params DisplaynameParams) string {
	if c.displaynameTemplate == nil {
		return params.Username
	}
	var buf []byte
	err := c.displaynameTemplate.Execute(
		(*templateBuffer)(&buf),
		params,
	)
	if err != nil {
		return params.Username
	}
	return string(buf)
}

// templateBuffer is a simple io.Writer that appends to a byte slice.
type templateBuffer []byte

func (b *templateBuffer) Write(p []byte) (int, error) {
	*b = append(*b, p...)
	return len(p), nil
}
