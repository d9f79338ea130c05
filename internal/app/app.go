// Package app assembles the runtime from configuration: storage, the tool
// catalog, the executor, the approval workflow, the audit ledger and the
// decision engines, plus the optional sweeper and metrics listener.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harun/tablekeeper/internal/config"
	"github.com/harun/tablekeeper/internal/observability"
	"github.com/harun/tablekeeper/internal/tracing"
	"github.com/harun/tablekeeper/pkg/approval"
	"github.com/harun/tablekeeper/pkg/audit"
	"github.com/harun/tablekeeper/pkg/catalog"
	"github.com/harun/tablekeeper/pkg/decision"
	"github.com/harun/tablekeeper/pkg/domain"
	"github.com/harun/tablekeeper/pkg/events"
	"github.com/harun/tablekeeper/pkg/events/hooks"
	redisevents "github.com/harun/tablekeeper/pkg/events/redis"
	"github.com/harun/tablekeeper/pkg/executor"
	"github.com/harun/tablekeeper/pkg/handlers"
	"github.com/harun/tablekeeper/pkg/storage/sqlite"
)

// App owns every long-lived component.
type App struct {
	config *config.Config
	logger zerolog.Logger

	store       *sqlite.Store
	registry    *catalog.Registry
	broadcaster *events.Broadcaster
	redis       *redisevents.Publisher
	publisher   *events.Async

	executor *executor.Executor
	workflow *approval.Workflow
	ledger   *audit.Ledger
	npc      *decision.Engine
	treasure *decision.Engine

	sweeper       *approval.Sweeper
	metricsServer *http.Server

	tracingEnabled bool
	running        bool
	mu             sync.Mutex
	wg             sync.WaitGroup
}

// New wires the components described by cfg. cfg must already have its
// paths resolved.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{config: cfg, logger: log}

	observability.EnsureRegistered()
	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			a.tracingEnabled = true
			log.Debug().Msg("Tracing initialized")
		}
	}

	if err := a.initialize(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) initialize(ctx context.Context) error {
	cfg := a.config

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	if cfg.Logging.TrailFile != "" {
		if err := observability.InitTrail(cfg.Logging.TrailFile); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to open trail file, using stderr")
		}
	}

	store, err := sqlite.Open(ctx, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	a.store = store
	a.logger.Debug().Str("path", cfg.Database.Path).Msg("Store opened")

	registry, err := handlers.NewRegistry(handlers.Options{Dice: handlers.NewDice(cfg.Decision.Seed)})
	if err != nil {
		return fmt.Errorf("failed to build tool registry: %w", err)
	}
	a.registry = registry

	var transport events.Publisher
	switch cfg.Events.Backend {
	case "redis":
		pub, err := redisevents.New(ctx, redisevents.Options{
			Addr:          cfg.Events.Redis.Addr,
			Password:      cfg.Events.Redis.Password,
			DB:            cfg.Events.Redis.DB,
			ChannelPrefix: cfg.Events.Redis.ChannelPrefix,
		})
		if err != nil {
			return fmt.Errorf("failed to connect events backend: %w", err)
		}
		a.redis = pub
		transport = pub
	default:
		a.broadcaster = events.NewBroadcaster()
		transport = a.broadcaster
	}
	if len(cfg.Events.Hooks) > 0 {
		hookList := make([]hooks.Hook, 0, len(cfg.Events.Hooks))
		for _, h := range cfg.Events.Hooks {
			hookList = append(hookList, hooks.Hook{
				ID:      h.ID,
				Event:   h.Event,
				Script:  h.Script,
				Timeout: time.Duration(h.TimeoutSeconds) * time.Second,
			})
		}
		hookPub, err := hooks.New(hookList, a.logger)
		if err != nil {
			return fmt.Errorf("failed to configure event hooks: %w", err)
		}
		transport = events.Multi{transport, hookPub}
		a.logger.Debug().Int("hooks", hookPub.Len()).Msg("Event hooks registered")
	}
	a.publisher = events.NewAsync(transport, cfg.Events.PublishTimeout())

	a.executor, err = executor.New(executor.Config{
		Registry:   registry,
		Store:      store,
		Publisher:  a.publisher,
		Suggester:  executor.CategorySuggester{},
		LockPolicy: executor.NewLockPolicy(cfg.Lock.AlwaysAllowed, cfg.Lock.ProtectedCategories),
	})
	if err != nil {
		return fmt.Errorf("failed to create executor: %w", err)
	}

	a.workflow, err = approval.New(approval.Config{
		Store:     store,
		Runner:    a.executor,
		Publisher: a.publisher,
		Expiry:    cfg.Approval.Expiry(),
	})
	if err != nil {
		return fmt.Errorf("failed to create approval workflow: %w", err)
	}
	a.executor.SetQueue(a.workflow)

	a.ledger, err = audit.New(audit.Config{Store: store, Publisher: a.publisher})
	if err != nil {
		return fmt.Errorf("failed to create audit ledger: %w", err)
	}

	engineCfg := decision.Config{
		History:           a.ledger,
		NPCs:              store.NPCs(),
		Rand:              decision.NewRand(cfg.Decision.Seed),
		RecentWindowTurns: cfg.Decision.RecentWindowTurns,
	}
	a.npc = decision.NewNPCEngine(engineCfg)
	a.treasure = decision.NewTreasureEngine(engineCfg)

	a.logger.Debug().
		Int("tools", registry.Len()).
		Str("events", cfg.Events.Backend).
		Msg("Components initialized")
	return nil
}

// Start launches the expiry sweeper and, when enabled, the metrics
// listener. It returns once both are running.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return errors.New("app is already running")
	}

	sweeper, err := approval.NewSweeper(a.workflow, a.config.Approval.SweepSchedule)
	if err != nil {
		return fmt.Errorf("failed to create sweeper: %w", err)
	}
	sweeper.Start()
	a.sweeper = sweeper
	a.logger.Info().Str("schedule", a.config.Approval.SweepSchedule).Msg("Expiry sweeper started")

	if a.config.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		a.metricsServer = &http.Server{
			Addr:              a.config.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		a.wg.Add(1)
		go func(srv *http.Server) {
			defer a.wg.Done()
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error().Err(err).Str("addr", srv.Addr).Msg("Metrics listener failed")
			}
		}(a.metricsServer)
		a.logger.Info().Str("addr", a.config.Metrics.Addr).Msg("Metrics listener started")
	}

	a.running = true
	return nil
}

// Stop halts what Start launched.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false

	var errs []error
	if a.sweeper != nil {
		a.sweeper.Stop()
		a.sweeper = nil
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics listener: %w", err))
		}
		a.metricsServer = nil
	}
	a.wg.Wait()
	a.logger.Info().Msg("Background services stopped")
	return errors.Join(errs...)
}

// Close stops background work, drains pending notifications and releases
// every resource.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errs := []error{a.Stop(ctx)}

	if a.publisher != nil {
		a.publisher.Wait()
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
		a.redis = nil
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	if a.tracingEnabled {
		errs = append(errs, tracing.ShutdownOpenTelemetry(ctx))
		a.tracingEnabled = false
	}
	errs = append(errs, observability.GetTrail().Close())
	return errors.Join(errs...)
}

// Reload applies the settings that can change without a restart: the
// approval window and the sweep schedule. Everything else in cfg is
// ignored until the next start.
func (a *App) Reload(cfg *config.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := config.NewValidator().ValidateSchedule(cfg.Approval.SweepSchedule); err != nil {
		return fmt.Errorf("approval.sweep_schedule: %w", err)
	}
	if cfg.Approval.ExpirySeconds <= 0 {
		return fmt.Errorf("approval.expiry_seconds must be > 0")
	}

	if a.sweeper != nil {
		if err := a.sweeper.Reschedule(cfg.Approval.SweepSchedule); err != nil {
			return err
		}
	}
	a.workflow.SetExpiry(cfg.Approval.Expiry())
	a.config.Approval = cfg.Approval

	a.logger.Info().
		Int("expiry_seconds", cfg.Approval.ExpirySeconds).
		Str("sweep_schedule", cfg.Approval.SweepSchedule).
		Msg("Approval settings reloaded")
	return nil
}

// Follow streams a session's events published by any process sharing the
// redis backend. The local backend only sees its own process, so it is
// refused.
func (a *App) Follow(ctx context.Context, sessionID string) (<-chan events.Event, func(), error) {
	if a.redis == nil {
		return nil, nil, fmt.Errorf("following events needs the redis backend, current backend is %q", a.config.Events.Backend)
	}
	return a.redis.Subscribe(ctx, sessionID)
}

// CharacterSpec describes a new character sheet.
type CharacterSpec struct {
	SessionID string
	Name      string
	MaxHP     int
	Level     int
	Gold      int
	Abilities domain.AbilityScores
}

// CreateCharacter stores a fresh character at full hit points.
func (a *App) CreateCharacter(ctx context.Context, spec CharacterSpec) (*domain.Character, error) {
	if spec.SessionID == "" || spec.Name == "" {
		return nil, fmt.Errorf("session and name are required: %w", domain.ErrInvalidParameters)
	}
	if spec.MaxHP <= 0 {
		return nil, fmt.Errorf("max hp must be positive: %w", domain.ErrInvalidParameters)
	}
	if spec.Level <= 0 {
		spec.Level = 1
	}
	if spec.Abilities == (domain.AbilityScores{}) {
		spec.Abilities = domain.AbilityScores{
			Strength: 10, Dexterity: 10, Constitution: 10,
			Intelligence: 10, Wisdom: 10, Charisma: 10,
		}
	}

	c := &domain.Character{
		ID:         uuid.NewString(),
		SessionID:  spec.SessionID,
		Name:       spec.Name,
		CurrentHP:  spec.MaxHP,
		MaxHP:      spec.MaxHP,
		Gold:       spec.Gold,
		Level:      spec.Level,
		Abilities:  spec.Abilities,
		Conditions: []string{},
		HitDice:    spec.Level,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := a.store.Characters().Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create character: %w", err)
	}
	a.logger.Info().Str("character_id", c.ID).Str("session_id", c.SessionID).Msg("Character created")
	return c, nil
}

func (a *App) Config() *config.Config           { return a.config }
func (a *App) Store() domain.Store              { return a.store }
func (a *App) Registry() *catalog.Registry      { return a.registry }
func (a *App) Executor() *executor.Executor     { return a.executor }
func (a *App) Workflow() *approval.Workflow     { return a.workflow }
func (a *App) Ledger() *audit.Ledger            { return a.ledger }
func (a *App) NPCEngine() *decision.Engine      { return a.npc }
func (a *App) TreasureEngine() *decision.Engine { return a.treasure }

// Broadcaster is nil when events go to redis.
func (a *App) Broadcaster() *events.Broadcaster { return a.broadcaster }

// Wait blocks until queued notifications have been handed to the transport.
func (a *App) Wait() {
	a.publisher.Wait()
}
