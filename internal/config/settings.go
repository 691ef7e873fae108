package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Settings are the environment-derived knobs consumed by the engine and
// its collaborators. Every value can be overridden with a HEIMDALL_*
// variable (HEIMDALL_POLL_INTERVAL, HEIMDALL_DB_PATH, ...).
type Settings struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`

	Address string `mapstructure:"address"`
	DBPath  string `mapstructure:"db_path"`

	LogDir   string `mapstructure:"log_dir"`
	LogLevel string `mapstructure:"log_level"`

	Webhook WebhookSettings `mapstructure:"webhook"`
	SMTP    SMTPSettings    `mapstructure:"smtp"`
}

// WebhookSettings configure the webhook alert subscriber; an empty URL
// disables it.
type WebhookSettings struct {
	URL      string        `mapstructure:"url"`
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// SMTPSettings configure the email alert subscriber; an empty server
// disables it.
type SMTPSettings struct {
	Server    string `mapstructure:"server"`
	Port      int    `mapstructure:"port"`
	From      string `mapstructure:"from"`
	Recipient string `mapstructure:"recipient"`
}

// LoadSettings reads settings from the environment with defaults
// matching a small self-hosted deployment.
func LoadSettings() (Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("heimdall")
	v.AutomaticEnv()

	v.SetDefault("poll_interval", "10m")
	v.SetDefault("poll_timeout", "10s")
	v.SetDefault("startup_delay", "5s")
	v.SetDefault("address", ":8000")
	v.SetDefault("db_path", "heimdall.db")
	v.SetDefault("log_dir", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("webhook_url", "")
	v.SetDefault("webhook_cooldown", "5m")
	v.SetDefault("smtp_server", "")
	v.SetDefault("smtp_port", 587)
	v.SetDefault("smtp_from", "")
	v.SetDefault("smtp_recipient", "")

	s := Settings{
		Address:  v.GetString("address"),
		DBPath:   v.GetString("db_path"),
		LogDir:   v.GetString("log_dir"),
		LogLevel: v.GetString("log_level"),
		Webhook: WebhookSettings{
			URL: v.GetString("webhook_url"),
		},
		SMTP: SMTPSettings{
			Server:    v.GetString("smtp_server"),
			Port:      v.GetInt("smtp_port"),
			From:      v.GetString("smtp_from"),
			Recipient: v.GetString("smtp_recipient"),
		},
	}

	var err error
	if s.Webhook.Cooldown, err = durationSetting(v, "webhook_cooldown"); err != nil {
		return s, err
	}
	if s.PollInterval, err = durationSetting(v, "poll_interval"); err != nil {
		return s, err
	}
	if s.PollTimeout, err = durationSetting(v, "poll_timeout"); err != nil {
		return s, err
	}
	if s.StartupDelay, err = durationSetting(v, "startup_delay"); err != nil {
		return s, err
	}

	if s.PollInterval <= 0 {
		return s, fmt.Errorf("poll interval must be positive, got %v", s.PollInterval)
	}
	if s.PollTimeout <= 0 {
		return s, fmt.Errorf("poll timeout must be positive, got %v", s.PollTimeout)
	}
	if s.PollTimeout >= s.PollInterval {
		return s, fmt.Errorf("poll timeout %v must be shorter than the poll interval %v", s.PollTimeout, s.PollInterval)
	}
	return s, nil
}

// durationSetting reads key as a Go duration string ("10m", "30s"). A
// bare number is taken as seconds, so plain-seconds values from older
// deployments keep their meaning instead of becoming nanoseconds.
func durationSetting(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.GetString(key)
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q for %s", raw, key)
	}
	return d, nil
}
