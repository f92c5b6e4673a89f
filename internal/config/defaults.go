package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // reminders.timezone must resolve on hosts without zoneinfo

	logx "remindbot/pkg/logx"
)

const (
	DefaultTimezone    = "Europe/Moscow"
	DefaultCadence     = time.Hour
	DefaultQueueSize   = 64
	DefaultWorkers     = 2
	DefaultRatePerSec  = 20
	DefaultSendTimeout = 15 * time.Second
	DefaultPollTimeout = 10 * time.Second
	DefaultStorePath   = "./reminders.json"
	DefaultHTTPAddr    = "127.0.0.1:8088"
)

var DefaultSnoozeOptions = []int{15, 30, 60}

// ApplyDefaults fills zero values in place.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Reminders.Timezone) == "" {
		c.Reminders.Timezone = DefaultTimezone
	}
	if strings.TrimSpace(c.Reminders.Cadence) == "" {
		c.Reminders.Cadence = DefaultCadence.String()
	}
	if len(c.Reminders.SnoozeOptions) == 0 {
		c.Reminders.SnoozeOptions = append([]int(nil), DefaultSnoozeOptions...)
	}
	if c.Reminders.QueueSize <= 0 {
		c.Reminders.QueueSize = DefaultQueueSize
	}
	if c.Delivery.Workers <= 0 {
		c.Delivery.Workers = DefaultWorkers
	}
	if c.Delivery.RatePerSec <= 0 {
		c.Delivery.RatePerSec = DefaultRatePerSec
	}
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = "file"
	}
	if strings.TrimSpace(c.Storage.Path) == "" && c.Storage.Driver != "memory" {
		c.Storage.Path = DefaultStorePath
	}
	if c.HTTP.Enabled && strings.TrimSpace(c.HTTP.Addr) == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token: required (or set BOT_TOKEN)"))
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}
	if !logx.ValidLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	if _, err := time.LoadLocation(c.Reminders.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("reminders.timezone: %w", err))
	}
	if _, err := parseDurationAtLeast("reminders.cadence", c.Reminders.Cadence, time.Minute); err != nil {
		errs = append(errs, err)
	}
	for _, m := range c.Reminders.SnoozeOptions {
		if m <= 0 {
			errs = append(errs, fmt.Errorf("reminders.snooze_options: %d is not a positive number of minutes", m))
		}
	}
	if _, err := ParseDurationField("delivery.send_timeout", c.Delivery.SendTimeout); err != nil {
		errs = append(errs, err)
	}
	switch c.Storage.Driver {
	case "file", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q (file|sqlite|memory)", c.Storage.Driver))
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location resolves reminders.timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Reminders.Timezone)
}

// CadenceDuration returns the repeat interval of primary reminder jobs.
func (c *Config) CadenceDuration() time.Duration {
	d, err := ParseDurationOrDefault("reminders.cadence", c.Reminders.Cadence, DefaultCadence)
	if err != nil {
		return DefaultCadence
	}
	return d
}

func (c *Config) SendTimeout() time.Duration {
	d, err := ParseDurationOrDefault("delivery.send_timeout", c.Delivery.SendTimeout, DefaultSendTimeout)
	if err != nil {
		return DefaultSendTimeout
	}
	return d
}

func (c *Config) PollTimeout() time.Duration {
	d, err := ParseDurationOrDefault("telegram.poll_timeout", c.Telegram.PollTimeout, DefaultPollTimeout)
	if err != nil {
		return DefaultPollTimeout
	}
	return d
}

// LogConfig maps the logging section onto logx.
func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File:    logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: c.Logging.File.Path},
		Chat: logx.ChatConfig{
			Enabled:    c.Logging.Telegram.Enabled,
			ChatID:     c.Telegram.LogChatID,
			MinLevel:   c.Logging.Telegram.MinLevel,
			RatePerSec: c.Logging.Telegram.RatePerSec,
		},
	}
}
