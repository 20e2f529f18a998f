// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/sigil-dev/aegis/internal/agent"
	"github.com/sigil-dev/aegis/internal/audit"
	"github.com/sigil-dev/aegis/internal/config"
	"github.com/sigil-dev/aegis/internal/provider"
	anthropicprov "github.com/sigil-dev/aegis/internal/provider/anthropic"
	googleprov "github.com/sigil-dev/aegis/internal/provider/google"
	openaiprov "github.com/sigil-dev/aegis/internal/provider/openai"
	"github.com/sigil-dev/aegis/internal/security/intercept"
	"github.com/sigil-dev/aegis/internal/security/scanner"
	"github.com/sigil-dev/aegis/internal/server"
	"github.com/sigil-dev/aegis/internal/store"
	"github.com/sigil-dev/aegis/internal/store/sqlite" // also registers the sqlite backend
	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
)

const (
	lanePruneInterval = time.Minute
	laneMaxIdle       = 30 * time.Minute
	auditDrainTimeout = 5 * time.Second
)

// Gateway holds all wired subsystems and manages their lifecycle.
type Gateway struct {
	Server    *server.Server
	Store     store.GatewayStore
	Emitter   *audit.Emitter
	Scanner   *intercept.Middleware
	Providers *provider.Registry
	Lanes     *agent.LanePool
	Runner    *agent.Runner

	logger *slog.Logger
}

// WireGateway creates all subsystems and wires them together.
func WireGateway(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// 1. Gateway store (audit log, feedback).
	gs, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	// 2. Audit fan-out: store, optional log mirror, optional webhook.
	emitter, err := newEmitter(cfg, gs, logger)
	if err != nil {
		_ = gs.Close()
		return nil, err
	}

	// 3. Scanner and the shared interception middleware.
	client, err := newScanClient(cfg, logger)
	if err != nil {
		emitter.Close(context.Background())
		_ = gs.Close()
		return nil, err
	}
	mw := intercept.New(client, cfg.FailSafe(),
		intercept.WithAudit(emitter),
		intercept.WithLogger(logger),
	)

	// 4. Model providers, routed per call so one outage fails over.
	reg := provider.NewRegistry()
	registerBuiltinProviders(cfg, reg, logger)
	if len(reg.Names()) == 0 {
		logger.Warn("no model provider configured; chat turns will fail until an API key is set")
	}
	llm := reg.Router(cfg.Agents.Provider)

	// 5. Agents. Every agent sits behind its own hook, so each delegation
	// hop is scanned on the way in and out.
	top, err := buildAgents(cfg, llm, gs, mw, logger)
	if err != nil {
		emitter.Close(context.Background())
		_ = gs.Close()
		return nil, aegiserr.Wrap(err, aegiserr.CodeCLISetupFailure, "building agents")
	}
	lanes := agent.NewLanePool(logger)
	runner := agent.NewRunner(top, lanes)

	// 6. HTTP server.
	srv, err := server.New(server.Config{
		ListenAddr:  cfg.Networking.Listen,
		CORSOrigins: cfg.Networking.CORSOrigins,
		Version:     version,
		Logger:      logger,
		Services: &server.Services{
			Chat:      runner,
			Scanner:   mw,
			Providers: reg,
			Audit:     gs.AuditLog(),
		},
	})
	if err != nil {
		lanes.Close()
		emitter.Close(context.Background())
		_ = gs.Close()
		return nil, aegiserr.Errorf(aegiserr.CodeCLISetupFailure, "creating server: %w", err)
	}

	return &Gateway{
		Server:    srv,
		Store:     gs,
		Emitter:   emitter,
		Scanner:   mw,
		Providers: reg,
		Lanes:     lanes,
		Runner:    runner,
		logger:    logger,
	}, nil
}

// Start runs the HTTP server and blocks until the context is cancelled.
func (gw *Gateway) Start(ctx context.Context) error {
	go gw.Runner.PruneEvery(ctx, lanePruneInterval, laneMaxIdle, gw.logger)
	return gw.Server.Start(ctx)
}

// Close releases all resources held by the gateway. Queued audit events are
// drained into the store before it closes.
func (gw *Gateway) Close() error {
	gw.Lanes.Close()

	ctx, cancel := context.WithTimeout(context.Background(), auditDrainTimeout)
	defer cancel()
	gw.Emitter.Close(ctx)

	var errs []error
	if err := gw.Providers.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := gw.Store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// dataDir returns the configured data directory or the default one.
func dataDir(cfg *config.Config) (string, error) {
	if cfg.DataDir != "" {
		return cfg.DataDir, nil
	}
	return config.DefaultDataDir()
}

func openStore(cfg *config.Config) (store.GatewayStore, error) {
	if cfg.Audit.Path != "" {
		gs, err := sqlite.NewGatewayStore(cfg.Audit.Path)
		if err != nil {
			return nil, aegiserr.Errorf(aegiserr.CodeCLISetupFailure, "opening audit database: %w", err)
		}
		return gs, nil
	}

	dir, err := dataDir(cfg)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, aegiserr.Errorf(aegiserr.CodeCLISetupFailure, "creating data directory: %w", err)
	}
	gs, err := store.NewGatewayStore(&store.StorageConfig{}, dir)
	if err != nil {
		return nil, aegiserr.Errorf(aegiserr.CodeCLISetupFailure, "creating gateway store: %w", err)
	}
	return gs, nil
}

func newEmitter(cfg *config.Config, gs store.GatewayStore, logger *slog.Logger) (*audit.Emitter, error) {
	sinks := []audit.Sink{audit.NewStoreSink(gs.AuditLog())}
	if cfg.Audit.Log {
		sinks = append(sinks, audit.NewLogSink(logger))
	}
	if cfg.Audit.WebhookURL != "" {
		wh, err := audit.NewWebhookSink(cfg.Audit.WebhookURL, nil, 0)
		if err != nil {
			return nil, aegiserr.Wrap(err, aegiserr.CodeCLISetupFailure, "creating audit webhook")
		}
		sinks = append(sinks, wh)
	}
	return audit.NewEmitter(audit.EmitterConfig{
		QueueSize: cfg.Audit.QueueSize,
		Workers:   cfg.Audit.Workers,
		Logger:    logger,
	}, sinks...), nil
}

// newScanClient builds the backend selected by scanner.backend.
func newScanClient(cfg *config.Config, logger *slog.Logger) (scanner.Client, error) {
	if cfg.Scanner.Backend == config.BackendLocal {
		rules, err := localRules(cfg.Scanner.RulesFile)
		if err != nil {
			return nil, err
		}
		logger.Info("using local scanner", "rules", len(rules))
		return scanner.NewLocalScanner(rules)
	}

	if cfg.Scanner.InsecureSkipVerify {
		logger.Warn("TLS verification disabled for the scan service")
	}
	c, err := scanner.NewHTTPClient(cfg.HTTPScanner("aegis/" + version))
	if err != nil {
		return nil, aegiserr.Wrap(err, aegiserr.CodeCLISetupFailure, "creating scan client")
	}
	return c, nil
}

func localRules(path string) ([]scanner.Rule, error) {
	if path == "" {
		return scanner.DefaultRules()
	}
	return scanner.LoadRulesFile(path)
}

// buildAgents assembles the hooked orchestrator and its hooked sub-agents.
func buildAgents(cfg *config.Config, llm provider.Provider, gs store.GatewayStore, mw *intercept.Middleware, logger *slog.Logger) (agent.Agent, error) {
	researchModel := cfg.Agents.ResearchModel
	if researchModel == "" {
		researchModel = cfg.Agents.Model
	}
	researcher, err := agent.NewResearcher(llm, researchModel)
	if err != nil {
		return nil, err
	}
	evaluation, err := agent.NewEvaluation(gs.Feedback())
	if err != nil {
		return nil, err
	}
	dashboard, err := agent.NewDashboard(gs.AuditLog(), cfg.Audit.HistorySize)
	if err != nil {
		return nil, err
	}

	orchestrator, err := agent.NewOrchestrator(agent.OrchestratorConfig{
		Provider:     llm,
		Model:        cfg.Agents.Model,
		RoutingModel: cfg.Agents.RoutingModel,
		SubAgents: []agent.Agent{
			agent.Wrap(researcher, mw),
			agent.Wrap(evaluation, mw),
			agent.Wrap(dashboard, mw),
		},
		Verbose: cfg.Agents.Verbose || cfg.Verbose,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	return agent.Wrap(orchestrator, mw), nil
}

// providerFactory builds a provider.Provider from a ProviderConfig.
type providerFactory func(config.ProviderConfig) (provider.Provider, error)

// builtinProviderFactories maps provider names to their constructors.
// Declared as a variable so tests can inject fakes.
var builtinProviderFactories = map[provider.Name]providerFactory{
	provider.NameAnthropic: func(pc config.ProviderConfig) (provider.Provider, error) {
		return anthropicprov.New(anthropicprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	provider.NameGoogle: func(pc config.ProviderConfig) (provider.Provider, error) {
		return googleprov.New(googleprov.Config{APIKey: pc.APIKey})
	},
	provider.NameOpenAI: func(pc config.ProviderConfig) (provider.Provider, error) {
		return openaiprov.New(openaiprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
}

// registerBuiltinProviders registers every configured provider with an API
// key. The preferred provider is registered first so it leads the failover
// order. Empty keys and constructor failures are logged and skipped.
func registerBuiltinProviders(cfg *config.Config, reg *provider.Registry, logger *slog.Logger) {
	order := []provider.Name{provider.Name(cfg.Agents.Provider)}
	for _, n := range []provider.Name{provider.NameGoogle, provider.NameAnthropic, provider.NameOpenAI} {
		if n != order[0] {
			order = append(order, n)
		}
	}

	for _, name := range order {
		pc, ok := cfg.Agents.Providers[string(name)]
		if !ok {
			continue
		}
		if pc.APIKey == "" {
			logger.Warn("skipping provider with empty API key", "provider", name)
			continue
		}
		factory, ok := builtinProviderFactories[name]
		if !ok {
			continue
		}
		p, err := factory(pc)
		if err != nil {
			logger.Warn("failed to create provider", "provider", name, "error", err)
			continue
		}
		reg.Register(p)
		logger.Info("registered provider", "provider", name)
	}
}
