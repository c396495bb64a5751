package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/gnan1985/You-Only-Do-Once/internal/analysis"
	"github.com/gnan1985/You-Only-Do-Once/internal/archive"
	"github.com/gnan1985/You-Only-Do-Once/internal/executor"
	"github.com/gnan1985/You-Only-Do-Once/internal/gateway"
	"github.com/gnan1985/You-Only-Do-Once/internal/governance"
	"github.com/gnan1985/You-Only-Do-Once/internal/lock"
	"github.com/gnan1985/You-Only-Do-Once/internal/observability"
	"github.com/gnan1985/You-Only-Do-Once/internal/orchestrator"
	"github.com/gnan1985/You-Only-Do-Once/internal/store"
	"github.com/gnan1985/You-Only-Do-Once/internal/tools"
	"github.com/gnan1985/You-Only-Do-Once/pkg/config"
)

// runtime holds everything a command may need. Commands that only read
// the store still build the whole graph; nothing here does I/O beyond
// opening the database, the archive bucket and the chat gateways.
type runtime struct {
	cfg      *config.Config
	log      *slog.Logger
	events   *observability.Logger
	registry *tools.Registry
	executor *executor.Executor
	store    *store.Store
	orch     *orchestrator.Orchestrator
	telegram *gateway.TelegramGateway
	commands *gateway.Commands

	closers []func() error
}

var ErrUnknownProvider = errors.New("provider not supported")

// loadConfig reads the config file (if any), then the environment, then
// the command-line overrides
func loadConfig(g *Globals) (*config.Config, error) {
	cfg := config.NewDefaultConfig()
	if g.Config != "" {
		var err error
		if cfg, err = config.LoadConfig(g.Config); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if g.Workspace != "" {
		cfg.App.Workspace = g.Workspace
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newRuntime(ctx context.Context, g *Globals) (*runtime, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}

	// stdout belongs to command output
	log := observability.NewLoggerTo(os.Stderr, cfg.App.Name, cfg.App.Env,
		version, observability.ParseLevel(cfg.Log.Level))
	rt := &runtime{
		cfg:    cfg,
		log:    log,
		events: observability.NewEventLogger(log, cfg.Log.AuditDir),
	}
	if err := rt.build(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) build(ctx context.Context) error {
	cfg := rt.cfg

	opts := tools.Options{
		Root:          cfg.App.Workspace,
		ConfineToRoot: cfg.App.Confine,
		ShellTimeout:  cfg.Shell.Timeout.Std(),
		ShellMaxBytes: cfg.Shell.MaxOutput,
		WebTimeout:    cfg.Web.Timeout.Std(),
		UserAgent:     cfg.Web.UserAgent,
	}
	if cfg.Web.Render {
		browser := tools.NewBrowser(cfg.Web.Headless)
		opts.Renderer = browser
		rt.onClose(func() error {
			browser.Close()
			return nil
		})
	}
	if cfg.Web.Search {
		if s, err := tools.NewSearcher(cfg.Web.SearchResults); err == nil {
			opts.Searcher = s
		} else {
			rt.log.Warn("web search unavailable", observability.Error(err))
		}
	}
	registry, err := tools.NewDefaultRegistry(opts)
	if err != nil {
		return err
	}
	rt.registry = registry

	guard, err := governance.FromConfig(cfg.Governance.DenyTools, cfg.Governance.DenyPatterns)
	if err != nil {
		return err
	}
	rt.executor = executor.New(registry,
		executor.WithGuard(guard),
		executor.WithLogger(rt.events),
	)

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	rt.store = st
	rt.onClose(st.Close)

	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(rt.log),
		orchestrator.WithLocker(rt.locker()),
	}

	if cfg.Archive.URL != "" {
		arc, err := archive.Open(ctx, cfg.Archive.URL, cfg.Archive.Prefix)
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		rt.onClose(arc.Close)
		orchOpts = append(orchOpts, orchestrator.WithArchive(arc))
	}

	model, err := newModel(cfg)
	if err != nil {
		return err
	}
	if model != nil {
		prompts := analysis.NewPromptManager(cfg.App.Prompts)
		orchOpts = append(orchOpts, orchestrator.WithAnalyzer(
			analysis.NewAnalyzer(model, registry, prompts, rt.events),
		))
	}

	rt.commands = &gateway.Commands{}
	if tg, ok := cfg.Gateway("telegram"); ok {
		bot, err := gateway.NewTelegramGateway(tg.Token, rt.commands, tg.ChatIDs, rt.log)
		if err != nil {
			return fmt.Errorf("failed to start telegram: %w", err)
		}
		rt.telegram = bot
		orchOpts = append(orchOpts, orchestrator.WithNotifier(bot))
	}
	if dc, ok := cfg.Gateway("discord"); ok {
		d, err := gateway.NewDiscordNotifier(dc.Token, dc.Channel)
		if err != nil {
			return fmt.Errorf("failed to start discord: %w", err)
		}
		orchOpts = append(orchOpts, orchestrator.WithNotifier(d))
	}

	rt.orch = orchestrator.New(st, rt.executor, orchOpts...)
	rt.commands.Controller = rt.orch
	return nil
}

func (rt *runtime) locker() lock.Locker {
	cfg := rt.cfg.Lock
	if cfg.Backend != config.LockRedis {
		return lock.NewMemory()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	rt.onClose(client.Close)
	return lock.NewRedis(client, cfg.Prefix, cfg.TTL.Std())
}

// newModel builds the language model of the enabled provider. No enabled
// provider is not an error: learning is just unavailable.
func newModel(cfg *config.Config) (llms.Model, error) {
	name, p := cfg.DefaultProvider()
	switch name {
	case "":
		return nil, nil
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(p.APIKey),
			openai.WithModel(p.Model),
		}
		if p.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(p.BaseURL))
		}
		return openai.New(opts...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
}

func (rt *runtime) onClose(fn func() error) {
	rt.closers = append(rt.closers, fn)
}

// Close releases resources in reverse order of acquisition
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.log.Warn("close failed", observability.Error(err))
		}
	}
	rt.closers = nil
}
