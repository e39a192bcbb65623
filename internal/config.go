package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/izy/internal/assistant"
	"github.com/starford/izy/internal/correlate"
	"github.com/starford/izy/internal/notion"
	"github.com/starford/izy/internal/orchestrator"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Transport modes. Auto picks the first available channel: bridge, then
// runtime, then direct network.
const (
	TransportAuto       = "auto"
	TransportDirect     = "direct"
	TransportBackground = "background"
	TransportSandbox    = "sandbox"
)

var wsURL = regexp.MustCompile(`^wss?://`)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Data      DataConfig        `yaml:"data"`
	Auth      AuthConfig        `yaml:"auth"`
	Notion    NotionConfig      `yaml:"notion"`
	Transport TransportConfig   `yaml:"transport"`
	Direct    DirectConfig      `yaml:"direct"`
	Assistant AssistantConfig   `yaml:"assistant"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		&c.App, &c.Data, &c.Auth, &c.Notion, &c.Transport, &c.Direct, &c.Assistant,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// DataConfig holds local state locations.
type DataConfig struct {
	Dir           string        `yaml:"dir"`
	SQLitePath    string        `yaml:"sqlite_path"`
	DraftThrottle time.Duration `yaml:"draft_throttle"`
}

// DraftsDir returns the directory holding Markdown drafts.
func (c *DataConfig) DraftsDir() string {
	return filepath.Join(c.Dir, "drafts")
}

// Validate validates the data configuration.
func (c *DataConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.SQLitePath, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NotionConfig describes the remote document API.
type NotionConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Version  string        `yaml:"version"`
	PageSize int           `yaml:"page_size"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Validate validates the Notion configuration.
func (c *NotionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Endpoint, validation.Required, is.URL),
		validation.Field(&c.Version, validation.Required),
		validation.Field(&c.PageSize, validation.Required, validation.Min(1), validation.Max(100)),
	)
}

// TransportConfig selects how requests reach the remote API.
//
// RuntimeURL points at another izy serving /runtime; without it an
// in-process executor is used. BridgeURL points at a /bridge endpoint when
// this process runs nested behind a relay. AuthToken is sent as a bearer
// token on both dials and must match the peer's auth.token when that peer
// runs with auth.mode token.
type TransportConfig struct {
	Mode           string        `yaml:"mode"`
	Timeout        time.Duration `yaml:"timeout"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	RuntimeURL     string        `yaml:"runtime_url"`
	BridgeURL      string        `yaml:"bridge_url"`
	FallbackDirect bool          `yaml:"fallback_direct"`
	AuthToken      string        `yaml:"auth_token"`
}

// Validate validates the transport configuration.
func (c *TransportConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = TransportAuto
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.In(TransportAuto, TransportDirect, TransportBackground, TransportSandbox)),
		validation.Field(&c.Timeout, validation.Required),
		validation.Field(&c.RuntimeURL, validation.Match(wsURL).Error("must be a ws:// or wss:// URL")),
		validation.Field(&c.BridgeURL, validation.Match(wsURL).Error("must be a ws:// or wss:// URL")),
	); err != nil {
		return err
	}
	if c.Mode == TransportSandbox && c.BridgeURL == "" {
		return fmt.Errorf("transport: mode is %q but bridge_url is empty", TransportSandbox)
	}
	return nil
}

// DirectConfig tunes direct network calls.
type DirectConfig struct {
	AllowPublicRelay bool   `yaml:"allow_public_relay"`
	PublicRelay      string `yaml:"public_relay"`
}

// Validate validates the direct network configuration.
func (c *DirectConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PublicRelay, validation.When(c.AllowPublicRelay, validation.Required, is.URL)),
	)
}

// AssistantConfig describes the model used to answer questions.
type AssistantConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Validate validates the assistant configuration.
func (c *AssistantConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Endpoint, validation.Required, is.URL),
		validation.Field(&c.Model, validation.Required),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Data: DataConfig{
			Dir:           "./data",
			SQLitePath:    "./data/izy.db",
			DraftThrottle: 2 * time.Second,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Notion: NotionConfig{
			Endpoint: notion.DefaultEndpoint,
			Version:  notion.DefaultVersion,
			PageSize: notion.DefaultPageSize,
			Timeout:  15 * time.Second,
		},
		Transport: TransportConfig{
			Mode:        TransportAuto,
			Timeout:     correlate.DefaultTimeout,
			DialTimeout: 30 * time.Second,
		},
		Direct: DirectConfig{
			PublicRelay: orchestrator.DefaultPublicRelay,
		},
		Assistant: AssistantConfig{
			Endpoint: assistant.DefaultEndpoint,
			Model:    assistant.DefaultModel,
			Timeout:  60 * time.Second,
		},
	}
}
