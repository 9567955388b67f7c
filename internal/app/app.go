// Package app wires the core's pieces (bus, session store, tool
// registry, agent loop, scheduler) into one runnable process, the way
// cmd/nexus/main.go's command builders assemble a Runtime from a
// loaded Config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/pocketrb/core/internal/agent"
	"github.com/pocketrb/core/internal/audit"
	"github.com/pocketrb/core/internal/bus"
	"github.com/pocketrb/core/internal/config"
	"github.com/pocketrb/core/internal/cron"
	memorycore "github.com/pocketrb/core/internal/memory"
	"github.com/pocketrb/core/internal/observability"
	"github.com/pocketrb/core/internal/providers/anthropic"
	"github.com/pocketrb/core/internal/providers/bedrock"
	"github.com/pocketrb/core/internal/providers/openai"
	"github.com/pocketrb/core/internal/sessions"
	"github.com/pocketrb/core/internal/skills"
	cronTool "github.com/pocketrb/core/internal/tools/cron"
	"github.com/pocketrb/core/internal/tools/exec"
	"github.com/pocketrb/core/internal/tools/files"
	jobsTool "github.com/pocketrb/core/internal/tools/jobs"
	memorytool "github.com/pocketrb/core/internal/tools/memory"
	"github.com/pocketrb/core/internal/tools/message"
	"github.com/pocketrb/core/internal/tools/sendfile"
	"github.com/pocketrb/core/internal/tools/think"
	"github.com/pocketrb/core/internal/tools/web"
	"github.com/pocketrb/core/pkg/models"
)

// App holds every long-lived component one process needs. Built once by
// New, started by Run.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Bus       *bus.Bus
	Store     *sessions.JSONLStore
	Registry  *agent.Registry
	Executor  *agent.Executor
	Loop      *agent.Loop
	Scheduler *cron.Scheduler
	Metrics   *observability.Metrics
	Skills    *skills.Manager
	Audit     *audit.Logger
}

// New constructs an App from cfg. It does not start any background
// goroutines; call Run for that.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	b := bus.New(logger)

	store, err := sessions.NewJSONLStore(filepath.Join(cfg.WorkspaceRoot, ".pocketrb", "sessions"), logger)
	if err != nil {
		return nil, fmt.Errorf("app: session store: %w", err)
	}

	provider, err := buildProvider(cfg.Provider, cfg.DefaultModel)
	if err != nil {
		return nil, fmt.Errorf("app: provider: %w", err)
	}

	skillsMgr, err := skills.NewManager(nil, cfg.WorkspaceRoot, nil)
	if err != nil {
		return nil, fmt.Errorf("app: skills manager: %w", err)
	}
	if err := skillsMgr.Discover(context.Background()); err != nil {
		logger.Warn("app: skill discovery failed", "error", err)
	}

	collaborator := memorycore.NewCollaboratorAdapter(models.ScopeGlobal, "")

	registry := agent.NewRegistry(logger)
	execManager := exec.NewManager(cfg.WorkspaceRoot)
	filesCfg := files.Config{Workspace: cfg.WorkspaceRoot, MaxReadLines: 2000}

	cronStore, err := cron.NewStore(filepath.Join(cfg.WorkspaceRoot, ".pocketrb", "cron.json"))
	if err != nil {
		return nil, fmt.Errorf("app: cron store: %w", err)
	}
	scheduler := cron.NewScheduler(cronStore, b, cron.WithLogger(logger))
	if err := seedCronJobs(scheduler, cfg.CronJobs); err != nil {
		return nil, fmt.Errorf("app: seed cron jobs: %w", err)
	}

	defaultTools := []agent.Tool{
		files.NewReadTool(filesCfg),
		files.NewWriteTool(filesCfg),
		files.NewEditTool(filesCfg),
		files.NewListDirTool(filesCfg),
		exec.NewTool(execManager),
		jobsTool.NewTool(execManager),
		web.NewFetchTool(web.NewExtractor()),
		web.NewSearchTool(&web.SearchConfig{DefaultResultCount: 5, CacheTTLSeconds: 300}),
		think.NewTool(logger),
		message.NewTool(b, registry),
		sendfile.NewTool(b, registry, cfg.WorkspaceRoot),
		memorytool.NewTool(collaborator),
		cronTool.NewTool(scheduler),
	}
	for _, t := range defaultTools {
		if err := registry.Register(t); err != nil {
			return nil, fmt.Errorf("app: register tool %s: %w", t.Name(), err)
		}
	}

	metrics := observability.NewMetrics()
	attachMetrics(b, metrics)

	execCfg := agent.DefaultExecutorConfig()
	execCfg.Metrics = metrics
	executor := agent.NewExecutor(registry, execCfg, logger)

	loopCfg := agent.DefaultLoopConfig()
	loopCfg.MaxIterations = cfg.IterationCap
	loopCfg.DefaultModel = cfg.DefaultModel
	loopCfg.SystemPrompt = systemPromptFunc(skillsMgr)

	loop := agent.NewLoop(b, store, registry, executor, provider, loopCfg, logger)

	auditLogger, err := buildAuditLogger(cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("app: audit logger: %w", err)
	}
	attachAuditLogger(b, auditLogger)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Bus:       b,
		Store:     store,
		Registry:  registry,
		Executor:  executor,
		Loop:      loop,
		Scheduler: scheduler,
		Metrics:   metrics,
		Skills:    skillsMgr,
		Audit:     auditLogger,
	}, nil
}

// Run starts the agent loop and scheduler and blocks until ctx is
// cancelled, then drains the bus and returns.
func (a *App) Run(ctx context.Context) error {
	go a.Loop.Run(ctx)

	if err := a.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("app: start scheduler: %w", err)
	}

	<-ctx.Done()

	if err := a.Scheduler.Stop(); err != nil {
		a.Logger.Error("app: scheduler stop", "error", err)
	}
	a.Bus.Shutdown()
	if err := a.Audit.Close(); err != nil {
		a.Logger.Error("app: audit logger close", "error", err)
	}
	return nil
}

func buildProvider(cfg config.ProviderConfig, defaultModel string) (agent.LLMProvider, error) {
	switch cfg.Name {
	case "anthropic":
		return anthropic.New(anthropic.Config{APIKey: cfg.APIKey, DefaultModel: defaultModel})
	case "openai":
		return openai.New(openai.Config{APIKey: cfg.APIKey, DefaultModel: defaultModel})
	case "bedrock":
		discoveryTimeout := time.Duration(0)
		if cfg.DiscoverModels {
			discoveryTimeout = 5 * time.Second
		}
		return bedrock.New(context.Background(), bedrock.Config{
			Region:           cfg.Region,
			DefaultModel:     defaultModel,
			DiscoveryTimeout: discoveryTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
}

func seedCronJobs(scheduler *cron.Scheduler, seeds []config.CronJobSeed) error {
	for _, seed := range seeds {
		schedule, err := buildSchedule(seed.Schedule)
		if err != nil {
			return fmt.Errorf("job %q: %w", seed.Name, err)
		}
		payload := cron.Payload{
			Message: seed.Payload.Message,
			Deliver: seed.Payload.Deliver,
			Channel: seed.Payload.Channel,
			ChatID:  seed.Payload.ChatID,
		}
		enabled := seed.Enabled
		if _, err := scheduler.AddJob(schedule, payload, seed.Name, enabled, nil); err != nil {
			return fmt.Errorf("job %q: %w", seed.Name, err)
		}
	}
	return nil
}

func buildSchedule(seed config.CronScheduleSeed) (cron.Schedule, error) {
	switch strings.ToLower(seed.Kind) {
	case "at":
		at, err := time.Parse(time.RFC3339, seed.At)
		if err != nil {
			return cron.Schedule{}, fmt.Errorf("parse at: %w", err)
		}
		return cron.NewAtSchedule(at)
	case "every":
		return cron.NewEverySchedule(time.Duration(seed.EveryMs) * time.Millisecond)
	case "cron":
		return cron.NewCronSchedule(seed.Cron, seed.Timezone)
	default:
		return cron.Schedule{}, fmt.Errorf("unknown schedule kind %q", seed.Kind)
	}
}

func systemPromptFunc(mgr *skills.Manager) agent.SystemPromptFunc {
	return func(ctx agent.Context, _ string) string {
		var b strings.Builder
		b.WriteString("You are a helpful assistant.")
		if ctx.Workspace != "" {
			fmt.Fprintf(&b, " Workspace: %s", ctx.Workspace)
		}
		for _, entry := range mgr.ListEligible() {
			content, err := mgr.LoadContent(entry.Name)
			if err != nil {
				continue
			}
			fmt.Fprintf(&b, "\n\n## Skill: %s\n%s", entry.Name, content)
		}
		return b.String()
	}
}
