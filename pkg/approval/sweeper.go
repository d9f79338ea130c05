package approval

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultSweepSchedule runs the expiry sweep twice a minute.
const DefaultSweepSchedule = "@every 30s"

// Sweepable expires stale pending actions. *Workflow implements it.
type Sweepable interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Sweeper runs SweepExpired on a cron schedule.
type Sweeper struct {
	cron   *cron.Cron
	target Sweepable

	mu       sync.Mutex
	entry    cron.EntryID
	schedule string
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewSweeper validates schedule and prepares a stopped sweeper. Standard
// five-field expressions and descriptors such as "@every 1m" are accepted.
func NewSweeper(target Sweepable, schedule string) (*Sweeper, error) {
	if target == nil {
		return nil, fmt.Errorf("sweep target is required")
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Sweeper{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		target: target,
		ctx:    ctx,
		cancel: cancel,
	}
	entry, err := s.cron.AddFunc(schedule, s.run)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	s.entry = entry
	s.schedule = schedule
	return s, nil
}

// Schedule returns the active schedule expression.
func (s *Sweeper) Schedule() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule
}

// Reschedule swaps the schedule in place, running or not. An invalid
// expression leaves the current schedule untouched.
func (s *Sweeper) Reschedule(schedule string) error {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	parsed, err := cron.ParseStandard(schedule)
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if schedule == s.schedule {
		return nil
	}
	s.cron.Remove(s.entry)
	s.entry = s.cron.Schedule(parsed, cron.FuncJob(s.run))
	log.Info().Str("from", s.schedule).Str("to", schedule).Msg("Pending action sweep rescheduled")
	s.schedule = schedule
	return nil
}

// Start begins scheduling. It is a no-op if already running.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	log.Info().Msg("Pending action sweeper started")
}

// Stop halts scheduling and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.cancel()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()
	log.Info().Msg("Pending action sweeper stopped")
}

func (s *Sweeper) run() {
	n, err := s.target.SweepExpired(s.ctx)
	if err != nil {
		log.Error().Err(err).Msg("Pending action sweep failed")
		return
	}
	log.Debug().Int("expired", n).Msg("Pending action sweep finished")
}
