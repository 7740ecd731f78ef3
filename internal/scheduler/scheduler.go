package scheduler

import (
	"bond-alert-bot/internal/types"
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// DefaultSpec fires every five minutes during market hours on weekdays
const DefaultSpec = "*/5 7-18 * * 1-5"

type Runner interface {
	RunCycle(ctx context.Context) (types.CycleReport, error)
}

// SkipObserver is told about ticks dropped while a cycle was still running
type SkipObserver interface {
	CycleSkipped()
}

type Config struct {
	Spec     string
	Location *time.Location
	Runner   Runner
	Skips    SkipObserver
}

// Scheduler runs the alert cycle on a cron schedule, never two at a time
type Scheduler struct {
	cron   *cron.Cron
	job    cron.Job
	runner Runner
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func New(c Config) (*Scheduler, error) {
	if c.Spec == "" {
		c.Spec = DefaultSpec
	}
	if c.Location == nil {
		c.Location = time.UTC
	}

	logger := cronLogger{skips: c.Skips}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(c.Location), cron.WithLogger(logger)),
		runner: c.Runner,
		ctx:    ctx,
		cancel: cancel,
	}
	s.job = cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).Then(cron.FuncJob(s.run))

	if _, err := s.cron.AddFunc(c.Spec, s.Trigger); err != nil {
		cancel()
		return nil, errors.Wrapf(err, "invalid schedule %q", c.Spec)
	}

	return s, nil
}

func (s *Scheduler) Start() {
	log.Info("🕒 Alert scheduler started")
	s.cron.Start()
}

// Stop stops firing new ticks, cancels a running cycle and waits for it,
// including one started with Trigger.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	s.cancel()
	<-done.Done()
	s.wg.Wait()
	log.Info("Alert scheduler stopped")
}

// Next returns the time of the next scheduled tick
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Trigger runs one cycle now. It shares the guard of the scheduled ticks, so
// it returns at once when a cycle is already in progress.
func (s *Scheduler) Trigger() {
	s.wg.Add(1)
	defer s.wg.Done()
	s.job.Run()
}

func (s *Scheduler) run() {
	if _, err := s.runner.RunCycle(s.ctx); err != nil {
		log.Errorf("❌ Alert cycle failed: %v", err)
	}
}

// cronLogger routes cron messages to logrus and counts skipped ticks
type cronLogger struct {
	skips SkipObserver
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" {
		log.Warn("⏭️ Previous alert cycle still running, skipping this tick")
		if l.skips != nil {
			l.skips.CycleSkipped()
		}
		return
	}
	log.WithFields(fields(keysAndValues)).Debugf("cron: %s", msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.WithFields(fields(keysAndValues)).Errorf("🔥 Alert scheduler %s: %v", msg, err)
}

func fields(keysAndValues []interface{}) log.Fields {
	f := log.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if k, ok := keysAndValues[i].(string); ok {
			f[k] = keysAndValues[i+1]
		}
	}
	return f
}
