package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "YODO_"

// LoadFromEnv overrides configuration values from YODO_* environment
// variables. Returns an error if any variable cannot be parsed.
func (c *Config) LoadFromEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(envPrefix + name)
		return v, ok && v != ""
	}
	str := func(name string, dst *string) {
		if v, ok := get(name); ok {
			*dst = v
		}
	}
	var errs []error
	integer := func(name string, dst *int) {
		if v, ok := get(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := get(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	duration := func(name string, dst *Duration) {
		if v, ok := get(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = Duration(d)
		}
	}
	list := func(name, sep string, dst *[]string) {
		if v, ok := get(name); ok {
			*dst = splitList(v, sep)
		}
	}

	str("ENV", &c.App.Env)
	str("WORKSPACE", &c.App.Workspace)
	boolean("CONFINE", &c.App.Confine)
	str("PROMPTS", &c.App.Prompts)
	str("LOG_LEVEL", &c.Log.Level)
	str("AUDIT_DIR", &c.Log.AuditDir)
	str("DB_PATH", &c.Store.Path)
	duration("SHELL_TIMEOUT", &c.Shell.Timeout)
	integer("SHELL_MAX_OUTPUT", &c.Shell.MaxOutput)
	str("USER_AGENT", &c.Web.UserAgent)
	duration("WEB_TIMEOUT", &c.Web.Timeout)
	boolean("HEADLESS", &c.Web.Headless)
	boolean("RENDER", &c.Web.Render)
	boolean("SEARCH", &c.Web.Search)
	str("LOCK_BACKEND", &c.Lock.Backend)
	str("REDIS_ADDR", &c.Lock.RedisAddr)
	str("REDIS_PASSWORD", &c.Lock.RedisPassword)
	integer("REDIS_DB", &c.Lock.RedisDB)
	duration("LOCK_TTL", &c.Lock.TTL)
	str("ARCHIVE_URL", &c.Archive.URL)
	str("ARCHIVE_PREFIX", &c.Archive.Prefix)
	str("API_HOST", &c.Server.Host)
	integer("API_PORT", &c.Server.Port)
	list("DENY_TOOLS", ",", &c.Governance.DenyTools)
	// regexes may contain commas
	list("DENY_PATTERNS", ";", &c.Governance.DenyPatterns)
	boolean("SCHEDULER", &c.Scheduler.Enabled)
	duration("POLL_INTERVAL", &c.Scheduler.PollInterval)

	if key, ok := get("OPENAI_API_KEY"); ok {
		p := c.Providers["openai"]
		p.APIKey = key
		p.Enabled = true
		str("MODEL", &p.Model)
		str("BASE_URL", &p.BaseURL)
		c.setProvider("openai", p)
	}
	if token, ok := get("TELEGRAM_TOKEN"); ok {
		g := c.Gateways["telegram"]
		g.Token = token
		g.Enabled = true
		if v, ok := get("TELEGRAM_CHATS"); ok {
			ids, err := parseChatIDs(v)
			if err != nil {
				errs = append(errs, err)
			}
			g.ChatIDs = ids
		}
		c.setGateway("telegram", g)
	}
	if token, ok := get("DISCORD_TOKEN"); ok {
		g := c.Gateways["discord"]
		g.Token = token
		g.Enabled = true
		str("DISCORD_CHANNEL", &g.Channel)
		c.setGateway("discord", g)
	}

	return errors.Join(errs...)
}

func (c *Config) setProvider(name string, p ProviderConfig) {
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	c.Providers[name] = p
}

func (c *Config) setGateway(name string, g GatewayConfig) {
	if c.Gateways == nil {
		c.Gateways = map[string]GatewayConfig{}
	}
	c.Gateways[name] = g
}

func splitList(v, sep string) []string {
	var res []string
	for _, s := range strings.Split(v, sep) {
		if s = strings.TrimSpace(s); s != "" {
			res = append(res, s)
		}
	}
	return res
}

func parseChatIDs(v string) ([]int64, error) {
	var ids []int64
	for _, s := range splitList(v, ",") {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%sTELEGRAM_CHATS: %w", envPrefix, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
