package detection

import (
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/outbreak-sentinel/internal/model"
)

// Recorder receives statistics about evaluation runs
type Recorder interface {
	ObserveRun(duration time.Duration, reports, locations, alerts int)
	ObserveAlert(alert model.GeneratedAlert)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRun(time.Duration, int, int, int) {}
func (nopRecorder) ObserveAlert(model.GeneratedAlert)       {}

// Engine evaluates the rule catalog against batches of reports
type Engine struct {
	logger     *zap.Logger
	catalog    *Catalog
	evaluators map[model.ConditionKind]Evaluator
	assembler  *Assembler
	recorder   Recorder
	now        func() time.Time
	workers    int
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger.Named("engine")
	}
}

// WithClock sets the source of the evaluation instant
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithWorkers bounds the number of locations evaluated concurrently
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithTemplates replaces the alert message templates
func WithTemplates(templates MessageTemplates) Option {
	return func(e *Engine) {
		e.assembler.templates = templates
	}
}

// WithRecommendations replaces the recommendation table
func WithRecommendations(recommendations Recommendations) Option {
	return func(e *Engine) {
		e.assembler.recommendations = recommendations
	}
}

// WithEvaluator registers or replaces the evaluator for a condition kind
func WithEvaluator(condition model.ConditionKind, evaluator Evaluator) Option {
	return func(e *Engine) {
		e.evaluators[condition] = evaluator
	}
}

// WithRecorder sets the run statistics recorder
func WithRecorder(recorder Recorder) Option {
	return func(e *Engine) {
		if recorder != nil {
			e.recorder = recorder
		}
	}
}

// NewEngine creates an engine bound to a rule catalog. It panics if catalog is nil.
func NewEngine(catalog *Catalog, opts ...Option) *Engine {
	if catalog == nil {
		panic("detection: nil rule catalog")
	}

	e := &Engine{
		logger:     zap.NewNop(),
		catalog:    catalog,
		evaluators: DefaultEvaluators(),
		assembler:  NewAssembler(DefaultMessageTemplates(), DefaultRecommendations()),
		recorder:   nopRecorder{},
		now:        time.Now,
		workers:    runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog returns the rule catalog the engine evaluates
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// rankedAlert keeps the position needed to order results after fan-out
type rankedAlert struct {
	rule     int
	location int
	alert    model.GeneratedAlert
}

// GenerateAlerts runs one evaluation pass over a batch of reports and returns
// one alert per (rule, location) that fired. Alerts are ordered by catalog
// order, then by the order locations first appear in the batch.
func (e *Engine) GenerateAlerts(reports []model.Report) []model.GeneratedAlert {
	started := time.Now()
	now := e.now()
	rules := e.catalog.Snapshot()
	groups := GroupByLocation(reports)

	results := make([][]rankedAlert, len(groups))
	jobs := make(chan int)

	workers := e.workers
	if workers > len(groups) {
		workers = len(groups)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = e.evaluateGroup(rules, groups[i], i, now)
			}
		}()
	}
	for i := range groups {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var ranked []rankedAlert
	for _, r := range results {
		ranked = append(ranked, r...)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].rule != ranked[j].rule {
			return ranked[i].rule < ranked[j].rule
		}
		return ranked[i].location < ranked[j].location
	})

	alerts := make([]model.GeneratedAlert, 0, len(ranked))
	for _, r := range ranked {
		alerts = append(alerts, r.alert)
		e.recorder.ObserveAlert(r.alert)
	}

	elapsed := time.Since(started)
	e.recorder.ObserveRun(elapsed, len(reports), len(groups), len(alerts))
	e.logger.Info("Evaluation run completed",
		zap.Int("reports", len(reports)),
		zap.Int("locations", len(groups)),
		zap.Int("rules", len(rules)),
		zap.Int("alerts", len(alerts)),
		zap.Duration("duration", elapsed))

	return alerts
}

// evaluateGroup evaluates every rule against one location group
func (e *Engine) evaluateGroup(rules []model.Rule, group LocationGroup, location int, now time.Time) []rankedAlert {
	var out []rankedAlert
	for i, rule := range rules {
		if _, ok := e.evaluators[rule.Condition]; !ok {
			e.logger.Debug("Skipping rule with unknown condition",
				zap.String("rule_id", rule.ID),
				zap.String("condition", string(rule.Condition)))
			continue
		}

		window := WithinWindow(group.Reports, now, rule.Window())
		if len(window) == 0 {
			continue
		}

		candidate, ok := Evaluate(e.evaluators, rule, group.Location, window)
		if !ok {
			continue
		}

		alert := e.assembler.Assemble(candidate, now)
		e.logger.Debug("Rule fired",
			zap.String("rule_id", rule.ID),
			zap.String("location", group.Location),
			zap.Int("matches", alert.AffectedCount),
			zap.Float64("confidence", alert.Evidence.Confidence))

		out = append(out, rankedAlert{rule: i, location: location, alert: alert})
	}
	return out
}
