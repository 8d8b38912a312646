package main

import (
	"context"
	"fmt"
	"log"

	"github.com/zen-systems/finroute/pkg/adapter"
	"github.com/zen-systems/finroute/pkg/config"
	"github.com/zen-systems/finroute/pkg/fallback"
	"github.com/zen-systems/finroute/pkg/gate"
	"github.com/zen-systems/finroute/pkg/health"
	"github.com/zen-systems/finroute/pkg/orchestrator"
	"github.com/zen-systems/finroute/pkg/responder"
	"github.com/zen-systems/finroute/pkg/router"
	"github.com/zen-systems/finroute/pkg/store"
)

// replayLimit bounds how much invocation history seeds the health monitor at startup.
const replayLimit = 500

// app is the fully wired runtime shared by every command.
type app struct {
	cfg     *config.Config
	orch    *orchestrator.Orchestrator
	monitor *health.Monitor
	store   *store.Store
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Printf("[store] close: %v", err)
		}
	}
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadWithResponderFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	aliases, err = config.LoadAliasesFromDir(cfg.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load model aliases: %w", err)
	}
	return cfg, nil
}

func createAdapters(cfg *config.Config) (map[string]adapter.Adapter, error) {
	adapters := make(map[string]adapter.Adapter)

	if cfg.AnthropicAPIKey != "" {
		a, err := adapter.NewAnthropicAdapter(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create anthropic adapter: %w", err)
		}
		adapters["anthropic"] = a
	}

	if cfg.OpenAIAPIKey != "" {
		a, err := adapter.NewOpenAIAdapter(cfg.OpenAIAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai adapter: %w", err)
		}
		adapters["openai"] = a
	}

	if cfg.GoogleAPIKey != "" {
		a, err := adapter.NewGoogleAdapter(cfg.GoogleAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create google adapter: %w", err)
		}
		adapters["google"] = a
	}

	if cfg.DeepSeekAPIKey != "" {
		var opts []adapter.DeepSeekOption
		if cfg.DeepSeekBaseURL != "" {
			opts = append(opts, adapter.WithDeepSeekBaseURL(cfg.DeepSeekBaseURL))
		}
		a, err := adapter.NewDeepSeekAdapter(cfg.DeepSeekAPIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create deepseek adapter: %w", err)
		}
		adapters["deepseek"] = a
	}

	adapters["mock"] = adapter.NewMockAdapter()

	return adapters, nil
}

// openProvider returns the descriptor source. With a database configured the
// store is authoritative and is seeded from the config file when empty.
func openProvider(ctx context.Context, cfg *config.Config) (responder.Provider, *store.Store, error) {
	descs := cfg.Orchestration.Descriptors()
	if cfg.DBPath == "" {
		return responder.StaticProvider(descs), nil, nil
	}

	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	existing, err := st.ListResponders(ctx)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	if len(existing) == 0 {
		if err := st.ImportResponders(ctx, descs); err != nil {
			st.Close()
			return nil, nil, err
		}
		log.Printf("[store] seeded %d responders into %s", len(descs), cfg.DBPath)
	}
	return st, st, nil
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	orchCfg := cfg.Orchestration
	if errs := orchCfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid responders config: %v", errs[0])
	}

	adapters, err := createAdapters(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create adapters: %w", err)
	}

	provider, st, err := openProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open responder store: %w", err)
	}
	registry, err := responder.NewRegistryFromProvider(ctx, provider)
	if err != nil {
		if st != nil {
			st.Close()
		}
		return nil, err
	}

	monitor := health.NewMonitor()
	if st != nil {
		n, err := st.Replay(ctx, monitor, replayLimit)
		if err != nil {
			log.Printf("[store] replay failed: %v", err)
		} else if debugFlag {
			log.Printf("[store] replayed %d invocations", n)
		}
	}
	metrics := health.DefaultMetrics()

	gates := gate.NewRegistry(orchCfg.GateSettings(), gate.WithTransitionHook(metrics.ObserveTransition))
	dispatcher := responder.NewDispatcher(adapters,
		responder.WithDefaultAdapter(orchCfg.DefaultAdapter),
		responder.WithModelResolver(aliases.Resolver()),
	)

	canned := fallback.NewCannedRegistry(cfg.Language)
	canned.RegisterAll(orchCfg.Canned)

	opts := []orchestrator.Option{
		orchestrator.WithSynthesizer(dispatcher, orchCfg.Synthesizer),
		orchestrator.WithCanned(canned),
		orchestrator.WithMonitor(monitor),
		orchestrator.WithMetrics(metrics),
		orchestrator.WithLanguage(cfg.Language),
		orchestrator.WithMaxParallel(orchCfg.Collaboration.MaxParallel),
		orchestrator.WithCollaborationTimeout(orchCfg.Collaboration.Timeout),
	}
	if st != nil {
		opts = append(opts, orchestrator.WithObserver(st))
	}

	rt := router.NewRouter(orchCfg, registry, monitor, router.WithDebug(debugFlag))
	return &app{
		cfg:     cfg,
		orch:    orchestrator.New(rt, gates, dispatcher, opts...),
		monitor: monitor,
		store:   st,
	}, nil
}
