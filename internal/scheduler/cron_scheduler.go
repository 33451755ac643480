package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/t77yq/outbreak-sentinel/internal/model"
)

// Evaluator runs one evaluation pass
type Evaluator interface {
	RunEvaluation(ctx context.Context) ([]model.GeneratedAlert, error)
}

// Purger deletes records older than a cutoff
type Purger interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Config holds the schedules of the periodic jobs
type Config struct {
	Evaluation string
	Cleanup    string
	Retention  time.Duration
}

// JobStatus describes a registered cron job
type JobStatus struct {
	Name    string    `json:"name"`
	Spec    string    `json:"spec"`
	LastRun time.Time `json:"last_run,omitempty"`
	NextRun time.Time `json:"next_run"`
}

// RunResult is the reply to an evaluation.run request
type RunResult struct {
	OK     bool   `json:"ok"`
	Alerts int    `json:"alerts"`
	Error  string `json:"error,omitempty"`
}

// EvaluationScheduler runs evaluations and retention cleanup on cron schedules
type EvaluationScheduler struct {
	logger    *zap.Logger
	cron      *cron.Cron
	parser    cron.Parser
	config    Config
	evaluator Evaluator
	purgers   map[string]Purger
	now       func() time.Time

	mu      sync.Mutex
	ctx     context.Context
	started bool
	entries map[string]cron.EntryID
	specs   map[string]string
	sub     *nats.Subscription
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}

// NewEvaluationScheduler creates a new scheduler. Purgers are keyed by the
// record kind they clean up, e.g. "reports" or "alerts".
func NewEvaluationScheduler(evaluator Evaluator, purgers map[string]Purger, config Config, logger *zap.Logger) *EvaluationScheduler {
	logger = logger.Named("scheduler")
	cronLogger := &cronLogger{logger: logger.Named("cron")}
	cronOptions := []cron.Option{
		cron.WithSeconds(),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	}

	return &EvaluationScheduler{
		logger:    logger,
		cron:      cron.New(cronOptions...),
		parser:    cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		config:    config,
		evaluator: evaluator,
		purgers:   purgers,
		now:       time.Now,
		entries:   make(map[string]cron.EntryID),
		specs:     make(map[string]string),
	}
}

// Start registers the jobs and starts the cron loop. Jobs stop running once
// ctx is cancelled or Stop is called.
func (s *EvaluationScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	s.ctx = ctx

	if err := s.addJob(evaluationJobName, s.config.Evaluation, s.runEvaluation); err != nil {
		return err
	}

	if s.config.Cleanup != "" && len(s.purgers) > 0 {
		if s.config.Retention <= 0 {
			return ErrInvalidRetention
		}
		if err := s.addJob(cleanupJobName, s.config.Cleanup, s.runCleanup); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.started = true

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.entries)))
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *EvaluationScheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("Failed to unsubscribe from evaluation trigger", zap.Error(err))
		}
	}

	done := s.cron.Stop()
	<-done.Done()
	s.logger.Info("Scheduler stopped")
}

// addJob validates the expression and registers fn under name
func (s *EvaluationScheduler) addJob(name, spec string, fn func()) error {
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("%w: %s job %q: %v", ErrInvalidSchedule, name, spec, err)
	}

	id, err := s.cron.AddFunc(spec, fn)
	if err != nil {
		return fmt.Errorf("failed to add %s job: %w", name, err)
	}

	s.entries[name] = id
	s.specs[name] = spec

	s.logger.Info("Added job",
		zap.String("name", name),
		zap.String("expression", spec),
		zap.Time("next_run", s.cron.Entry(id).Schedule.Next(s.now())))
	return nil
}

// Jobs reports the registered jobs and their run times
func (s *EvaluationScheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]JobStatus, 0, len(s.entries))
	for _, name := range []string{evaluationJobName, cleanupJobName} {
		id, ok := s.entries[name]
		if !ok {
			continue
		}
		entry := s.cron.Entry(id)
		jobs = append(jobs, JobStatus{
			Name:    name,
			Spec:    s.specs[name],
			LastRun: entry.Prev,
			NextRun: entry.Next,
		})
	}
	return jobs
}

// ServeTrigger answers evaluation.run requests with an immediate evaluation
func (s *EvaluationScheduler) ServeTrigger(nc *nats.Conn) error {
	sub, err := nc.Subscribe(EvaluationRunSubject, func(msg *nats.Msg) {
		result := RunResult{OK: true}
		alerts, err := s.evaluate()
		if err != nil {
			result = RunResult{Error: err.Error()}
		}
		result.Alerts = len(alerts)

		data, err := json.Marshal(result)
		if err != nil {
			s.logger.Error("Failed to marshal run result", zap.Error(err))
			return
		}
		if err := msg.Respond(data); err != nil {
			s.logger.Error("Failed to respond to evaluation trigger", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", EvaluationRunSubject, err)
	}

	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	return nil
}

func (s *EvaluationScheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (s *EvaluationScheduler) evaluate() ([]model.GeneratedAlert, error) {
	return s.evaluator.RunEvaluation(s.runContext())
}

func (s *EvaluationScheduler) runEvaluation() {
	start := s.now()
	alerts, err := s.evaluate()
	if err != nil {
		s.logger.Error("Scheduled evaluation failed", zap.Error(err))
		return
	}

	s.logger.Info("Executed scheduled evaluation",
		zap.Int("alerts", len(alerts)),
		zap.Duration("duration", s.now().Sub(start)))
}

func (s *EvaluationScheduler) runCleanup() {
	ctx := s.runContext()
	cutoff := s.now().Add(-s.config.Retention)

	for kind, purger := range s.purgers {
		deleted, err := purger.DeleteBefore(ctx, cutoff)
		if err != nil {
			s.logger.Error("Failed to clean up old records",
				zap.String("kind", kind),
				zap.Error(err))
			continue
		}
		s.logger.Info("Cleaned up old records",
			zap.String("kind", kind),
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff))
	}
}
