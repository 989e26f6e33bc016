package approver

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"showroom-approver/internal/components/telemetry"
	"showroom-approver/internal/notify"
	"showroom-approver/internal/scrapers/showroom"
	"showroom-approver/pkg/configutil"
	"strings"
	"time"
)

// CredentialEnv is read by LoadConfig, it overrides the auth_cookie in the config file.
const CredentialEnv = "SHOWROOM_AUTH_COOKIE"

var ErrMissingCredential = errors.New("no showroom auth cookie was configured")

type Config struct {
	AuthCookie            string           `json:"auth_cookie"`
	BaseUrl               string           `json:"base_url"`
	IntervalSeconds       int              `json:"interval_seconds"`
	SubmitDelaySeconds    *int             `json:"submit_delay_seconds"`
	RequestTimeoutSeconds int              `json:"request_timeout_seconds"`
	RequestsPerSecond     float64          `json:"requests_per_second"`
	CloudflareBypass      *bool            `json:"cloudflare_bypass"`
	Listen                string           `json:"listen"`
	DumpHttpDir           string           `json:"dump_http_dir"`
	Notify                notify.Config    `json:"notify"`
	Telemetry             telemetry.Config `json:"telemetry"`
}

func DefaultConfig() Config {
	bypass := true
	delay := 3
	return Config{
		BaseUrl:               showroom.DefaultBaseUrl,
		IntervalSeconds:       30,
		SubmitDelaySeconds:    &delay,
		RequestTimeoutSeconds: int(showroom.MaxRequestTimeout / time.Second),
		RequestsPerSecond:     2,
		CloudflareBypass:      &bypass,
		Listen:                "127.0.0.1:8750",
	}
}

// withDefaults fills every unset field with the value from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BaseUrl == "" {
		c.BaseUrl = def.BaseUrl
	}
	if c.IntervalSeconds <= 0 {
		c.IntervalSeconds = def.IntervalSeconds
	}
	if c.SubmitDelaySeconds == nil || *c.SubmitDelaySeconds < 0 {
		c.SubmitDelaySeconds = def.SubmitDelaySeconds
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = def.RequestTimeoutSeconds
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = def.RequestsPerSecond
	}
	if c.CloudflareBypass == nil {
		c.CloudflareBypass = def.CloudflareBypass
	}
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	return c
}

func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// SubmitDelay is the pause between two submissions, an explicit 0 disables it.
func (c Config) SubmitDelay() time.Duration {
	if c.SubmitDelaySeconds == nil {
		return DefaultConfig().SubmitDelay()
	}
	return time.Duration(*c.SubmitDelaySeconds) * time.Second
}

// RequestTimeout never exceeds showroom.MaxRequestTimeout.
func (c Config) RequestTimeout() time.Duration {
	timeout := time.Duration(c.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 || timeout > showroom.MaxRequestTimeout {
		return showroom.MaxRequestTimeout
	}
	return timeout
}

func (c Config) ClientOptions() showroom.ClientOptions {
	return showroom.ClientOptions{
		BaseUrl:           c.BaseUrl,
		Timeout:           c.RequestTimeout(),
		RequestsPerSecond: c.RequestsPerSecond,
		CloudflareBypass:  c.CloudflareBypass != nil && *c.CloudflareBypass,
	}
}

// Validate checks the things that must be present before anything talks to the platform.
func (c Config) Validate() error {
	if strings.TrimSpace(c.AuthCookie) == "" {
		return ErrMissingCredential
	}
	return nil
}

// LoadConfig reads the config file (and its local override), applies the credential from
// the environment and fills in defaults. A missing config file is fine as long as the
// credential comes from the environment.
func LoadConfig(path string) (Config, error) {
	cfg, _, err := configutil.ReadConfig[Config](path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if env := strings.TrimSpace(os.Getenv(CredentialEnv)); env != "" {
		cfg.AuthCookie = env
	}
	cfg = cfg.withDefaults()

	err = cfg.Validate()
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var idPattern = regexp.MustCompile(`^\d+$`)

type InvalidRoomIdError struct {
	RoomId string
}

func (e *InvalidRoomIdError) Error() string {
	return fmt.Sprintf("room id must be digits only, got '%s'", e.RoomId)
}

// ValidateRoomId rejects anything other than a plain numeric room id.
func ValidateRoomId(roomId string) error {
	if !idPattern.MatchString(strings.TrimSpace(roomId)) {
		return &InvalidRoomIdError{RoomId: roomId}
	}
	return nil
}

type InvalidEventIdError struct {
	EventId string
}

func (e *InvalidEventIdError) Error() string {
	return fmt.Sprintf("event id must be digits only, got '%s'", e.EventId)
}

func ValidateEventId(eventId string) error {
	if !idPattern.MatchString(strings.TrimSpace(eventId)) {
		return &InvalidEventIdError{EventId: eventId}
	}
	return nil
}
