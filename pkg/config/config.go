package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type (
	// Config holds every setting of the yodo binary
	Config struct {
		App        AppConfig                 `json:"app" toml:"app"`
		Log        LogConfig                 `json:"log" toml:"log"`
		Providers  map[string]ProviderConfig `json:"providers" toml:"providers"`
		Gateways   map[string]GatewayConfig  `json:"gateways" toml:"gateways"`
		Store      StoreConfig               `json:"store" toml:"store"`
		Shell      ShellConfig               `json:"shell" toml:"shell"`
		Web        WebConfig                 `json:"web" toml:"web"`
		Lock       LockConfig                `json:"lock" toml:"lock"`
		Archive    ArchiveConfig             `json:"archive" toml:"archive"`
		Server     ServerConfig              `json:"server" toml:"server"`
		Governance GovernanceConfig          `json:"governance" toml:"governance"`
		Scheduler  SchedulerConfig           `json:"scheduler" toml:"scheduler"`
	}

	AppConfig struct {
		Name      string `json:"name" toml:"name"`
		Env       string `json:"env" toml:"env"`
		Workspace string `json:"workspace" toml:"workspace"`
		// Confine rejects filesystem paths that leave the workspace
		Confine bool   `json:"confine" toml:"confine"`
		Prompts string `json:"prompts,omitempty" toml:"prompts"`
	}

	LogConfig struct {
		Level    string `json:"level" toml:"level"`
		AuditDir string `json:"audit_dir,omitempty" toml:"audit_dir"`
	}

	ProviderConfig struct {
		APIKey  string `json:"api_key" toml:"api_key"`
		Model   string `json:"model" toml:"model"`
		BaseURL string `json:"base_url,omitempty" toml:"base_url"`
		Enabled bool   `json:"enabled" toml:"enabled"`
	}

	// GatewayConfig configures one chat gateway. Telegram uses ChatIDs for
	// both authorization and notifications; Discord posts to Channel.
	GatewayConfig struct {
		Token   string  `json:"token" toml:"token"`
		Enabled bool    `json:"enabled" toml:"enabled"`
		ChatIDs []int64 `json:"chat_ids,omitempty" toml:"chat_ids"`
		Channel string  `json:"channel,omitempty" toml:"channel"`
	}

	StoreConfig struct {
		Path string `json:"path" toml:"path"`
	}

	ShellConfig struct {
		Timeout   Duration `json:"timeout" toml:"timeout"`
		MaxOutput int      `json:"max_output" toml:"max_output"`
	}

	WebConfig struct {
		UserAgent     string   `json:"user_agent" toml:"user_agent"`
		Timeout       Duration `json:"timeout" toml:"timeout"`
		Headless      bool     `json:"headless" toml:"headless"`
		Render        bool     `json:"render" toml:"render"`
		Search        bool     `json:"search" toml:"search"`
		SearchResults int      `json:"search_results" toml:"search_results"`
	}

	LockConfig struct {
		Backend       string   `json:"backend" toml:"backend"`
		RedisAddr     string   `json:"redis_addr,omitempty" toml:"redis_addr"`
		RedisPassword string   `json:"redis_password,omitempty" toml:"redis_password"`
		RedisDB       int      `json:"redis_db,omitempty" toml:"redis_db"`
		Prefix        string   `json:"prefix" toml:"prefix"`
		TTL           Duration `json:"ttl" toml:"ttl"`
	}

	// ArchiveConfig names a gocloud bucket URL. An empty URL disables the
	// archive.
	ArchiveConfig struct {
		URL    string `json:"url,omitempty" toml:"url"`
		Prefix string `json:"prefix" toml:"prefix"`
	}

	ServerConfig struct {
		Host string `json:"host" toml:"host"`
		Port int    `json:"port" toml:"port"`
	}

	GovernanceConfig struct {
		DenyTools    []string `json:"deny_tools,omitempty" toml:"deny_tools"`
		DenyPatterns []string `json:"deny_patterns,omitempty" toml:"deny_patterns"`
	}

	SchedulerConfig struct {
		Enabled      bool     `json:"enabled" toml:"enabled"`
		PollInterval Duration `json:"poll_interval" toml:"poll_interval"`
	}

	// Duration reads "90s" style strings from JSON and TOML
	Duration time.Duration
)

const (
	DefaultName         = "yodo"
	DefaultStorePath    = ".yodo/yodo.db"
	DefaultShellTimeout = 30 * time.Second
	DefaultMaxOutput    = 10 << 20
	DefaultWebTimeout   = 30 * time.Second
	DefaultLockTTL      = 30 * time.Minute
	DefaultPollInterval = 30 * time.Second
	DefaultAPIHost      = "127.0.0.1"
	DefaultAPIPort      = 8080
	MaxTCPPort          = 65535

	LockMemory = "memory"
	LockRedis  = "redis"
)

var (
	ErrInvalidAPIPort      = errors.New("invalid API port")
	ErrInvalidLockBackend  = errors.New("invalid lock backend")
	ErrMissingRedisAddr    = errors.New("redis lock needs an address")
	ErrInvalidShellTimeout = errors.New("shell timeout must be positive")
	ErrInvalidMaxOutput    = errors.New("shell max output must be positive")
	ErrInvalidWebTimeout   = errors.New("web timeout must be positive")
	ErrInvalidPollInterval = errors.New("scheduler poll interval must be positive")
	ErrMissingStorePath    = errors.New("store path is required")
	ErrMissingToken        = errors.New("enabled gateway has no token")
	ErrMissingChannel      = errors.New("discord gateway needs a channel")
)

// defaultDenyPatterns block the destructive commands no recorded workflow
// should ever replay
var defaultDenyPatterns = []string{
	`rm\s+-rf\s+/(\s|$)`,
	`\bmkfs\b`,
	`\bshutdown\b`,
	`\breboot\b`,
}

// NewDefaultConfig creates a configuration that runs locally with no
// external services
func NewDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:      DefaultName,
			Env:       "dev",
			Workspace: ".",
		},
		Log:       LogConfig{Level: "info"},
		Providers: map[string]ProviderConfig{},
		Gateways:  map[string]GatewayConfig{},
		Store:     StoreConfig{Path: DefaultStorePath},
		Shell: ShellConfig{
			Timeout:   Duration(DefaultShellTimeout),
			MaxOutput: DefaultMaxOutput,
		},
		Web: WebConfig{
			Timeout:       Duration(DefaultWebTimeout),
			Headless:      true,
			Search:        true,
			SearchResults: 5,
		},
		Lock: LockConfig{
			Backend: LockMemory,
			Prefix:  DefaultName + ":lock:",
			TTL:     Duration(DefaultLockTTL),
		},
		Archive: ArchiveConfig{Prefix: "runs/"},
		Server: ServerConfig{
			Host: DefaultAPIHost,
			Port: DefaultAPIPort,
		},
		Governance: GovernanceConfig{
			DenyPatterns: append([]string(nil), defaultDenyPatterns...),
		},
		Scheduler: SchedulerConfig{
			PollInterval: Duration(DefaultPollInterval),
		},
	}
}

// LoadConfig reads a config file over the defaults. Files ending in .toml
// are TOML, everything else is JSON.
func LoadConfig(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.Server.Port)
	}
	if c.Store.Path == "" {
		return ErrMissingStorePath
	}
	if c.Shell.Timeout <= 0 {
		return ErrInvalidShellTimeout
	}
	if c.Shell.MaxOutput <= 0 {
		return ErrInvalidMaxOutput
	}
	if c.Web.Timeout <= 0 {
		return ErrInvalidWebTimeout
	}
	switch c.Lock.Backend {
	case LockMemory:
	case LockRedis:
		if c.Lock.RedisAddr == "" {
			return ErrMissingRedisAddr
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLockBackend, c.Lock.Backend)
	}
	if c.Scheduler.Enabled && c.Scheduler.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}
	for name, g := range c.Gateways {
		if !g.Enabled {
			continue
		}
		if g.Token == "" {
			return fmt.Errorf("%w: %s", ErrMissingToken, name)
		}
		if name == "discord" && g.Channel == "" {
			return ErrMissingChannel
		}
	}
	return nil
}

// DefaultProvider returns the enabled provider, preferring "openai" when
// several are enabled
func (c *Config) DefaultProvider() (string, ProviderConfig) {
	if p, ok := c.Providers["openai"]; ok && p.Enabled {
		return "openai", p
	}
	for name, p := range c.Providers {
		if p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// Gateway returns a gateway config if it is enabled
func (c *Config) Gateway(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled && g.Token != "" {
		return g, true
	}
	return GatewayConfig{}, false
}

// Addr is the API listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
