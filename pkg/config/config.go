package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"github.com/xaenox/relay-bot/internal/storage"
)

type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Reaper   ReaperConfig   `mapstructure:"reaper"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

type TelegramConfig struct {
	Token          string        `mapstructure:"token"`
	ForumChatID    int64         `mapstructure:"forum_chat_id"`
	WebhookSecret  string        `mapstructure:"webhook_secret"`
	WebhookURL     string        `mapstructure:"webhook_url"`
	ListenAddr     string        `mapstructure:"listen_addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
	Debug          bool          `mapstructure:"debug"`
}

// UseWebhook reports whether updates arrive by webhook instead of polling.
func (c TelegramConfig) UseWebhook() bool {
	return c.WebhookURL != ""
}

type RelayConfig struct {
	StaffIDs           []int64 `mapstructure:"staff_ids"`
	EagerThreads       bool    `mapstructure:"eager_threads"`
	AnnounceNewThreads bool    `mapstructure:"announce_new_threads"`
}

type ReaperConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Schedule      string        `mapstructure:"schedule"`
	InactiveAfter time.Duration `mapstructure:"inactive_after"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return DatabaseConfig{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		if _, err := fmt.Sscanf(u.Port(), "%d", &port); err != nil {
			return DatabaseConfig{}, fmt.Errorf("invalid port %q", u.Port())
		}
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.listen_addr", ":10000")
	v.SetDefault("telegram.request_timeout", 15*time.Second)
	v.SetDefault("telegram.poll_timeout", 30*time.Second)
	v.SetDefault("telegram.debug", false)
	v.SetDefault("relay.staff_ids", []int64{})
	v.SetDefault("relay.eager_threads", false)
	v.SetDefault("relay.announce_new_threads", true)
	v.SetDefault("reaper.enabled", true)
	v.SetDefault("reaper.schedule", "@daily")
	v.SetDefault("reaper.inactive_after", 7*24*time.Hour)
	v.SetDefault("storage.driver", storage.DriverFile)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// envAliases lists the environment names accepted for each key besides the
// automatic TELEGRAM_TOKEN style mapping.
var envAliases = map[string][]string{
	"telegram.token":          {"TOKEN", "TELEGRAM_TOKEN"},
	"telegram.forum_chat_id":  {"FORUM_CHAT_ID", "TELEGRAM_FORUM_CHAT_ID"},
	"telegram.webhook_secret": {"WEBHOOK_SECRET", "TELEGRAM_WEBHOOK_SECRET"},
	"telegram.webhook_url":    {"WEBHOOK_URL", "TELEGRAM_WEBHOOK_URL", "RENDER_EXTERNAL_URL"},
	"telegram.listen_addr":    {"LISTEN_ADDR", "TELEGRAM_LISTEN_ADDR"},
	"relay.staff_ids":         {"STAFF_IDS", "RELAY_STAFF_IDS"},
	"relay.eager_threads":     {"EAGER_THREADS", "RELAY_EAGER_THREADS"},
	"reaper.schedule":         {"REAPER_SCHEDULE"},
	"storage.driver":          {"STORAGE_DRIVER"},
	"storage.path":            {"STATE_FILE", "STORAGE_PATH"},
	"storage.dsn":             {"STORAGE_DSN"},
}

// LoadConfig reads the optional YAML file at path and overlays the
// environment. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// DATABASE_URL overrides the individual database settings.
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		config.Database = dbConfig
	}

	config.Storage.Driver = strings.ToLower(strings.TrimSpace(config.Storage.Driver))
	return &config, nil
}

// Validate reports the first setting that prevents startup.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return errors.New("telegram.token is required (TOKEN)")
	}
	if c.Telegram.ForumChatID == 0 {
		return errors.New("telegram.forum_chat_id is required (FORUM_CHAT_ID)")
	}
	if c.Telegram.UseWebhook() && c.Telegram.WebhookSecret == "" {
		return errors.New("telegram.webhook_secret is required when webhook_url is set")
	}
	if c.Telegram.RequestTimeout <= 0 {
		return fmt.Errorf("telegram.request_timeout must be positive, got %s", c.Telegram.RequestTimeout)
	}
	if c.Telegram.PollTimeout < 0 {
		return fmt.Errorf("telegram.poll_timeout must not be negative, got %s", c.Telegram.PollTimeout)
	}

	switch c.Storage.Driver {
	case storage.DriverFile, storage.DriverMemory, storage.DriverPostgres, storage.DriverSQLite:
	case storage.DriverMySQL:
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn is required for the mysql driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}

	if c.Reaper.Enabled {
		if _, err := cron.ParseStandard(c.Reaper.Schedule); err != nil {
			return fmt.Errorf("invalid reaper.schedule %q: %w", c.Reaper.Schedule, err)
		}
		if c.Reaper.InactiveAfter <= 0 {
			return fmt.Errorf("reaper.inactive_after must be positive, got %s", c.Reaper.InactiveAfter)
		}
	}
	return nil
}

// StorageOptions maps the storage and database sections onto storage.Open.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Driver: c.Storage.Driver,
		Path:   c.Storage.Path,
		DSN:    c.Storage.DSN,
		Postgres: storage.DatabaseConfig{
			Host:     c.Database.Host,
			Port:     c.Database.Port,
			User:     c.Database.User,
			Password: c.Database.Password,
			DBName:   c.Database.DBName,
			SSLMode:  c.Database.SSLMode,
		},
	}
}
