// Package config loads fireshot settings from config.yml, .env and FIRESHOT_
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Bot         BotConfig         `mapstructure:"bot"`
	Screenshots ScreenshotsConfig `mapstructure:"screenshots"`
	Firefly     FireflyConfig     `mapstructure:"firefly"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Inbox       InboxConfig       `mapstructure:"inbox"`
	Log         LogConfig         `mapstructure:"log"`
}

// BotConfig holds conversation settings.
type BotConfig struct {
	// Users allowed to talk to the bot. Empty allows everyone.
	Users       []int64       `mapstructure:"users"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
	AccountType string        `mapstructure:"account_type" validate:"required"`
	Balance     struct {
		Description string `mapstructure:"description"`
	} `mapstructure:"balance"`
}

// ScreenshotsConfig holds OCR and hashing settings.
type ScreenshotsConfig struct {
	Hash      string            `mapstructure:"hash" validate:"oneof=perception average difference"`
	Threshold int               `mapstructure:"threshold" validate:"gt=0,lte=64"`
	Scale     float64           `mapstructure:"scale" validate:"gt=0"`
	Languages []string          `mapstructure:"languages" validate:"min=1"`
	Workers   int               `mapstructure:"workers" validate:"gte=0"`
	Symbols   map[string]string `mapstructure:"symbols"`
}

// FireflyConfig holds the Firefly III connection.
type FireflyConfig struct {
	URL             string        `mapstructure:"url" validate:"omitempty,url"`
	AccessToken     string        `mapstructure:"access_token"`
	AccessTokenFile string        `mapstructure:"access_token_file"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// ServerConfig holds the HTTP transport settings.
type ServerConfig struct {
	Addr          string `mapstructure:"addr" validate:"required"`
	JWTSecret     string `mapstructure:"jwt_secret" validate:"required"`
	RatePerMinute int    `mapstructure:"rate_per_minute" validate:"gt=0"`
	RateBurst     int    `mapstructure:"rate_burst" validate:"gt=0"`
}

// DatabaseConfig selects the user record store.
type DatabaseConfig struct {
	Driver      string `mapstructure:"driver" validate:"oneof=memory file postgres"`
	DSN         string `mapstructure:"dsn" validate:"required_if=Driver postgres"`
	Dir         string `mapstructure:"dir" validate:"required_if=Driver file"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// InboxConfig holds the screenshot drop folder settings.
type InboxConfig struct {
	Dir          string `mapstructure:"dir"`
	ProcessedDir string `mapstructure:"processed_dir"`
	UserID       int64  `mapstructure:"user_id"`
	Workers      int    `mapstructure:"workers" validate:"gt=0"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// ErrFireflyNotConfigured is returned by Ready when the url or token is missing.
var ErrFireflyNotConfigured = errors.New("firefly url and access token are required")

// Ready reports whether a Firefly client can be built.
func (f FireflyConfig) Ready() error {
	if f.URL == "" || f.AccessToken == "" {
		return ErrFireflyNotConfigured
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.users", []int64{})
	v.SetDefault("bot.timeout", 120*time.Second)
	v.SetDefault("bot.account_type", "asset")
	v.SetDefault("bot.balance.description", "Balance update")

	v.SetDefault("screenshots.hash", "perception")
	v.SetDefault("screenshots.threshold", 10)
	v.SetDefault("screenshots.scale", 2.0)
	v.SetDefault("screenshots.languages", []string{"eng"})
	v.SetDefault("screenshots.workers", 0)
	v.SetDefault("screenshots.symbols", map[string]string{})

	v.SetDefault("firefly.url", "")
	v.SetDefault("firefly.access_token", "")
	v.SetDefault("firefly.access_token_file", "")
	v.SetDefault("firefly.timeout", 30*time.Second)

	v.SetDefault("server.addr", ":8081")
	v.SetDefault("server.jwt_secret", "dev-insecure-secret-change")
	v.SetDefault("server.rate_per_minute", 30)
	v.SetDefault("server.rate_burst", 5)

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.dir", "data/users")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("inbox.dir", "inbox")
	v.SetDefault("inbox.processed_dir", "processed")
	v.SetDefault("inbox.user_id", 0)
	v.SetDefault("inbox.workers", 2)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration. A missing .env or config file is not an error;
// path, when set, must exist. Env overrides use prefix FIRESHOT_, e.g.
// FIRESHOT_FIREFLY_URL.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("FIRESHOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if c.Firefly.AccessTokenFile != "" {
		b, err := os.ReadFile(c.Firefly.AccessTokenFile)
		if err != nil {
			return Config{}, fmt.Errorf("read access token file: %w", err)
		}
		c.Firefly.AccessToken = strings.TrimSpace(string(b))
	}

	if err := validator.New().Struct(c); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

// Allowed reports whether userID may use the bot.
func (b BotConfig) Allowed(userID int64) bool {
	if len(b.Users) == 0 {
		return true
	}
	for _, u := range b.Users {
		if u == userID {
			return true
		}
	}
	return false
}

// NewLogger builds the process logger.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
