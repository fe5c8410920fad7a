package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Session  SessionConfig  `koanf:"session"`
	State    StateConfig    `koanf:"state"`
	Dedup    DedupConfig    `koanf:"dedup"`
	Channels ChannelsConfig `koanf:"channels"`
	Daemon   DaemonConfig   `koanf:"daemon"`
}

type ServerConfig struct {
	Port            int    `koanf:"port"`
	LogLevel        string `koanf:"log_level"`
	PublicURL       string `koanf:"public_url"`
	ReadTimeout     string `koanf:"read_timeout"`
	WriteTimeout    string `koanf:"write_timeout"`
	IdleTimeout     string `koanf:"idle_timeout"`
	ShutdownTimeout string `koanf:"shutdown_timeout"`
}

type SessionConfig struct {
	Timeout       string `koanf:"timeout"`
	SweepSchedule string `koanf:"sweep_schedule"`
}

type StateConfig struct {
	Path        string `koanf:"path"`
	LockTimeout string `koanf:"lock_timeout"`
}

type DedupConfig struct {
	EchoTTL       string `koanf:"echo_ttl"`
	PruneSchedule string `koanf:"prune_schedule"`
}

type ChannelsConfig struct {
	Default  string         `koanf:"default"`
	Twilio   TwilioConfig   `koanf:"twilio"`
	Telnyx   TelnyxConfig   `koanf:"telnyx"`
	Telegram TelegramConfig `koanf:"telegram"`
	Signal   SignalConfig   `koanf:"signal"`
	Email    EmailConfig    `koanf:"email"`
	Slack    SlackConfig    `koanf:"slack"`
}

type TwilioConfig struct {
	Enabled    bool   `koanf:"enabled"`
	AccountSID string `koanf:"account_sid"`
	AuthToken  string `koanf:"auth_token"`
	From       string `koanf:"from"`
	To         string `koanf:"to"`
}

type TelnyxConfig struct {
	Enabled   bool   `koanf:"enabled"`
	APIKey    string `koanf:"api_key"`
	PublicKey string `koanf:"public_key"`
	APIURL    string `koanf:"api_url"`
	From      string `koanf:"from"`
	To        string `koanf:"to"`
}

type TelegramConfig struct {
	Enabled      bool   `koanf:"enabled"`
	BotToken     string `koanf:"bot_token"`
	ChatID       int64  `koanf:"chat_id"`
	PollInterval string `koanf:"poll_interval"`
}

type SignalConfig struct {
	Enabled      bool   `koanf:"enabled"`
	APIURL       string `koanf:"api_url"`
	Number       string `koanf:"number"`
	Recipient    string `koanf:"recipient"`
	PollInterval string `koanf:"poll_interval"`
}

type EmailConfig struct {
	Enabled      bool   `koanf:"enabled"`
	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	IMAPAddr     string `koanf:"imap_addr"`
	Username     string `koanf:"username"`
	Password     string `koanf:"password"`
	From         string `koanf:"from"`
	To           string `koanf:"to"`
	PollInterval string `koanf:"poll_interval"`
}

type SlackConfig struct {
	Enabled       bool   `koanf:"enabled"`
	BotToken      string `koanf:"bot_token"`
	SigningSecret string `koanf:"signing_secret"`
	Channel       string `koanf:"channel"`
}

type DaemonConfig struct {
	ShutdownTimeout        string `koanf:"shutdown_timeout"`
	StartupShutdownTimeout string `koanf:"startup_shutdown_timeout"`
	HealthCheckInterval    string `koanf:"health_check_interval"`
}

const (
	DefaultServerPort            = 8765
	DefaultServerLogLevel        = "info"
	DefaultServerReadTimeout     = "10s"
	DefaultServerWriteTimeout    = "10s"
	DefaultServerIdleTimeout     = "60s"
	DefaultServerShutdownTimeout = "5s"

	DefaultSessionTimeout       = "30m"
	DefaultSessionSweepSchedule = "@every 1m"

	DefaultStateLockTimeout = "5s"

	DefaultDedupEchoTTL       = "60s"
	DefaultDedupPruneSchedule = "@every 5m"

	DefaultTelnyxAPIURL = "https://api.telnyx.com/v2/messages"

	DefaultTelegramPollInterval = "3s"
	DefaultSignalAPIURL         = "http://127.0.0.1:8080"
	DefaultSignalPollInterval   = "2s"
	DefaultEmailSMTPPort        = 587
	DefaultEmailPollInterval    = "5s"

	DefaultDaemonShutdownTimeout        = "30s"
	DefaultDaemonStartupShutdownTimeout = "10s"
	DefaultDaemonHealthCheckInterval    = "30s"
)

// envKey maps an environment variable name to its config key, so
// CCRELAY_SERVER_LOG_LEVEL reaches server.log_level. The underscore is both
// the section separator and part of snake_case field names; section and
// provider names contain no underscores, so only the first one (and, under
// channels, the provider boundary) becomes a dot.
func envKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, "CCRELAY_"))
	key = strings.Replace(key, "_", ".", 1)
	if rest, ok := strings.CutPrefix(key, "channels."); ok {
		key = "channels." + strings.Replace(rest, "_", ".", 1)
	}
	return key
}

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	// Hardcoded Defaults
	defaults := map[string]interface{}{
		"server.port":                     DefaultServerPort,
		"server.log_level":                DefaultServerLogLevel,
		"server.read_timeout":             DefaultServerReadTimeout,
		"server.write_timeout":            DefaultServerWriteTimeout,
		"server.idle_timeout":             DefaultServerIdleTimeout,
		"server.shutdown_timeout":         DefaultServerShutdownTimeout,
		"session.timeout":                 DefaultSessionTimeout,
		"session.sweep_schedule":          DefaultSessionSweepSchedule,
		"state.path":                      filepath.Join(os.Getenv("HOME"), ".ccrelay", "state.json"),
		"state.lock_timeout":              DefaultStateLockTimeout,
		"dedup.echo_ttl":                  DefaultDedupEchoTTL,
		"dedup.prune_schedule":            DefaultDedupPruneSchedule,
		"channels.telnyx.api_url":         DefaultTelnyxAPIURL,
		"channels.telegram.poll_interval": DefaultTelegramPollInterval,
		"channels.signal.api_url":         DefaultSignalAPIURL,
		"channels.signal.poll_interval":   DefaultSignalPollInterval,
		"channels.email.smtp_port":        DefaultEmailSMTPPort,
		"channels.email.poll_interval":    DefaultEmailPollInterval,
		"daemon.shutdown_timeout":         DefaultDaemonShutdownTimeout,
		"daemon.startup_shutdown_timeout": DefaultDaemonStartupShutdownTimeout,
		"daemon.health_check_interval":    DefaultDaemonHealthCheckInterval,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	// Config file loading
	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			globalPath := filepath.Join(home, ".ccrelay", "config.yaml")
			if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
				slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
			}
		}
	}

	// Environment Variables
	k.Load(env.Provider("CCRELAY_", ".", envKey), nil)

	// CLI Flags
	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Post-Process: Inject standard Env Vars if missing
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" && cfg.Channels.Telegram.BotToken == "" {
		cfg.Channels.Telegram.BotToken = token
	}
	if token := os.Getenv("TWILIO_AUTH_TOKEN"); token != "" && cfg.Channels.Twilio.AuthToken == "" {
		cfg.Channels.Twilio.AuthToken = token
	}
	if key := os.Getenv("TELNYX_API_KEY"); key != "" && cfg.Channels.Telnyx.APIKey == "" {
		cfg.Channels.Telnyx.APIKey = key
	}
	if token := os.Getenv("SLACK_BOT_TOKEN"); token != "" && cfg.Channels.Slack.BotToken == "" {
		cfg.Channels.Slack.BotToken = token
	}

	return &cfg, nil
}
