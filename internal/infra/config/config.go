// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Discord  DiscordConfig  `yaml:"discord"`
	Audio    AudioConfig    `yaml:"audio"`
	Playback PlaybackConfig `yaml:"playback"`
	Messages MessagesConfig `yaml:"messages"`
}

// DiscordConfig represents gateway connection configuration.
type DiscordConfig struct {
	Token  string `yaml:"token" validate:"required"`
	Prefix string `yaml:"prefix" default:"!"`
}

// AudioConfig represents the audio node pool configuration.
type AudioConfig struct {
	Nodes []NodeConfig `yaml:"nodes" validate:"required,min=1"`
}

// NodeConfig represents a single audio node. Settings are node-type
// specific and decoded by the node client itself.
type NodeConfig struct {
	Name     string         `yaml:"name" validate:"required"`
	Settings map[string]any `yaml:"settings" validate:"required"`
}

// PlaybackConfig represents playback control configuration.
type PlaybackConfig struct {
	ResolveTimeoutMs int    `yaml:"resolve_timeout_ms" default:"10000" validate:"gte=0,lte=60000"`
	DecodeTimeoutMs  int    `yaml:"decode_timeout_ms" default:"5000" validate:"gte=0,lte=60000"`
	DefaultSource    string `yaml:"default_source" default:"ytsearch"`
}

// MessagesConfig represents user-facing messages. Empty fields fall back
// to the stock wording at the point of use.
type MessagesConfig struct {
	NotInGuild     string `yaml:"not_in_guild"`
	NoVoiceChannel string `yaml:"no_voice_channel"`
	SessionExists  string `yaml:"session_exists"`
	WrongChannel   string `yaml:"wrong_channel"`
	NothingFound   string `yaml:"nothing_found"`
	Queued         string `yaml:"queued"`
	QueuedPlaylist string `yaml:"queued_playlist"`
	NowPlaying     string `yaml:"now_playing"`
	Connected      string `yaml:"connected"`
	DefaultError   string `yaml:"default_error"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv("DISCORD_PREFIX"); v != "" {
		c.Discord.Prefix = v
	}
	if v := os.Getenv("AUDIO_NODE_PASSWORD"); v != "" {
		for i := range c.Audio.Nodes {
			if c.Audio.Nodes[i].Settings == nil {
				c.Audio.Nodes[i].Settings = map[string]any{}
			}
			c.Audio.Nodes[i].Settings["password"] = v
		}
	}
}

// ResolveTimeout returns the resolver timeout as a duration.
func (c *Config) ResolveTimeout() time.Duration {
	return time.Duration(c.Playback.ResolveTimeoutMs) * time.Millisecond
}

// DecodeTimeout returns the metadata decode timeout as a duration.
func (c *Config) DecodeTimeout() time.Duration {
	return time.Duration(c.Playback.DecodeTimeoutMs) * time.Millisecond
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}
