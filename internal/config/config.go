package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for dosetrack
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Reminders RemindersConfig `mapstructure:"reminders"`
	Supply    SupplyConfig    `mapstructure:"supply"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// RemindersConfig holds reminder slot settings. Slot hours are
// hours of day in the local zone, one trigger per hour.
type RemindersConfig struct {
	DailyHours       map[string][]int `mapstructure:"daily_hours"` // times per day -> hours
	DefaultHour      int              `mapstructure:"default_hour"`
	ReconcileOnStart bool             `mapstructure:"reconcile_on_start"`
}

// SupplyConfig holds supply tracking settings
type SupplyConfig struct {
	LowThreshold float64 `mapstructure:"low_threshold"`
}

// TelegramConfig holds the notification channel settings
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.Set("storage.data_dir", dataDir)
	v.SetDefault("storage.sqlite_path", filepath.Join(dataDir, "dosetrack.db"))

	if configPath == "" {
		configPath = filepath.Join(dataDir, "dosetrack.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Environment variables (DOSETRACK_SERVER_PORT, DOSETRACK_TELEGRAM_BOT_TOKEN, etc.)
	v.SetEnvPrefix("DOSETRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a config with defaults only, no file or env lookup.
// Used by tests and embedded callers.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	// Slot hours mirror the mobile app: 1x 08:00, 2x 08:00+20:00,
	// 3x 08:00+14:00+20:00.
	v.SetDefault("reminders.daily_hours", map[string][]int{
		"1": {8},
		"2": {8, 20},
		"3": {8, 14, 20},
	})
	v.SetDefault("reminders.default_hour", 8)
	v.SetDefault("reminders.reconcile_on_start", true)

	v.SetDefault("supply.low_threshold", 5.0)

	v.SetDefault("telegram.enabled", false)
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "dosetrack")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "dosetrack")
}

// loadEnvOverrides loads secrets that shouldn't live in the config file
func loadEnvOverrides(cfg *Config) {
	if token := os.Getenv("DOSETRACK_TELEGRAM_BOT_TOKEN"); token != "" {
		cfg.Telegram.BotToken = token
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Supply.LowThreshold < 0 {
		return fmt.Errorf("supply low threshold must not be negative")
	}
	if cfg.Telegram.Enabled && cfg.Telegram.BotToken == "" {
		return fmt.Errorf("telegram enabled but no bot token configured")
	}
	return nil
}

// SlotHours returns the reminder hours for a number of doses per day,
// falling back to a single default-hour slot.
func (c *RemindersConfig) SlotHours(timesPerDay int) []int {
	if hours, ok := c.DailyHours[strconv.Itoa(timesPerDay)]; ok && len(hours) > 0 {
		return hours
	}
	hour := c.DefaultHour
	if hour <= 0 || hour > 23 {
		hour = 8
	}
	return []int{hour}
}
