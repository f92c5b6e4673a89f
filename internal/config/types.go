package config

// Config is the on-disk configuration (JSON or YAML).
//
// Durations are Go duration strings ("10s", "1h").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Reminders RemindersConfig `json:"reminders"`
	Delivery  DeliveryConfig  `json:"delivery"`
	Storage   StorageConfig   `json:"storage"`
	HTTP      HTTPConfig      `json:"http"`
}

type TelegramConfig struct {
	// Token may be left empty and supplied via BOT_TOKEN (env or .env).
	Token       string `json:"token"`
	PollTimeout string `json:"poll_timeout"`
	// AllowedUserIDs restricts who may talk to the bot. Empty allows everyone.
	AllowedUserIDs []int64 `json:"allowed_user_ids,omitempty"`
	// LogChatID receives warnings when logging.telegram.enabled is set.
	LogChatID int64 `json:"log_chat_id,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// RemindersConfig controls the scheduling engine.
//
// Defaults:
//   - timezone: "Europe/Moscow"
//   - cadence: "1h"
//   - snooze_options: [15, 30, 60]
//   - queue_size: 64
type RemindersConfig struct {
	Timezone      string `json:"timezone"`
	Cadence       string `json:"cadence"`
	SnoozeOptions []int  `json:"snooze_options,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
}

// DeliveryConfig controls the notification dispatcher.
type DeliveryConfig struct {
	Workers     int    `json:"workers"`
	RatePerSec  int    `json:"rate_per_sec"`
	SendTimeout string `json:"send_timeout"`
}

// StorageConfig selects the snapshot backend.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./reminders.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// HTTPConfig controls the optional operator HTTP server.
//
// Prefer binding to localhost; the API has no authentication.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8088"
	Pprof   bool   `json:"pprof,omitempty"`
	MCP     bool   `json:"mcp,omitempty"`
}
