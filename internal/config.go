package internal

import (
	"chat-room/errors"
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/language"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`

	AuthURL          string `env:"AUTH_URL" validate:"required_with=RealtimeURL,omitempty,url"`
	AuthAPIKey       string `env:"AUTH_API_KEY"`
	AuthJWTSecret    string `env:"AUTH_JWT_SECRET"`
	AuthProvider     string `env:"AUTH_PROVIDER,default=google" validate:"required"`
	AuthRedirectAddr string `env:"AUTH_REDIRECT_ADDR,default=127.0.0.1:54321" validate:"hostname_port"`

	// RealtimeURL empty runs the offline in-memory hub with a local session.
	RealtimeURL       string        `env:"REALTIME_URL" validate:"omitempty,url"`
	ChannelName       string        `env:"CHANNEL_NAME,default=room_one" validate:"required"`
	BroadcastSelf     bool          `env:"BROADCAST_SELF,default=false"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=25s" validate:"gt=0"`

	ExportDir      string `env:"EXPORT_DIR,default=." validate:"required"`
	ExportLocale   string `env:"EXPORT_LOCALE,default=en-US" validate:"required"`
	ExportTimezone string `env:"EXPORT_TIMEZONE,default=Local" validate:"required"`

	MetricsAddr string `env:"METRICS_ADDR" validate:"omitempty,hostname_port"`

	DisplayName        string        `env:"DISPLAY_NAME,default=Guest" validate:"required"`
	LocalTokenDuration time.Duration `env:"LOCAL_TOKEN_DURATION,default=24h" validate:"gt=0"`
}

var validate = validator.New()

// Load decodes the environment and validates the result.
func Load() (Config, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.Locale(); err != nil {
		return err
	}
	return nil
}

func (c Config) Offline() bool {
	return c.RealtimeURL == ""
}

func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ExportTimezone)
	if err != nil {
		return nil, fmt.Errorf("%w: EXPORT_TIMEZONE %q: %v", errors.ErrInvalidConfig, c.ExportTimezone, err)
	}
	return loc, nil
}

func (c Config) Locale() (language.Tag, error) {
	tag, err := language.Parse(c.ExportLocale)
	if err != nil {
		return language.Und, fmt.Errorf("%w: EXPORT_LOCALE %q: %v", errors.ErrInvalidConfig, c.ExportLocale, err)
	}
	return tag, nil
}
