// Package refresh runs refresh cycles: it selects regions, plans and fetches
// their samples, aggregates the values and commits the results back to the
// registry before recoloring.
package refresh

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/regionstat/internal/aggregate"
	"github.com/sells-group/regionstat/internal/classify"
	"github.com/sells-group/regionstat/internal/fetch"
	"github.com/sells-group/regionstat/internal/region"
	"github.com/sells-group/regionstat/internal/sampling"
	"github.com/sells-group/regionstat/internal/store"
)

// defaultRegionConcurrency caps how many regions fetch at once. Each region
// already fans out to its own point batches.
const defaultRegionConcurrency = 4

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStore journals each cycle. Journal failures are logged, not returned.
func WithStore(s store.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithMode sets the aggregation mode.
func WithMode(m aggregate.Mode) Option {
	return func(o *Orchestrator) { o.mode = m }
}

// WithRules sets the initial threshold rules.
func WithRules(rules []classify.Rule) Option {
	return func(o *Orchestrator) { o.rules = slices.Clone(rules) }
}

// WithWindow sets the initial time window.
func WithWindow(w region.TimeWindow) Option {
	return func(o *Orchestrator) { o.window = w }
}

// WithClassifier overrides the classifier used for recoloring.
func WithClassifier(c *classify.Classifier) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.classifier = c
		}
	}
}

// WithRegionConcurrency caps the number of regions fetched in parallel.
func WithRegionConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.regionConcurrency = n
		}
	}
}

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator runs at most one refresh cycle at a time against a registry.
type Orchestrator struct {
	registry   *region.Registry
	planner    *sampling.Planner
	fetcher    *fetch.Fetcher
	store      store.Store
	classifier *classify.Classifier
	mode       aggregate.Mode
	now        func() time.Time

	regionConcurrency int

	mu     sync.RWMutex
	window region.TimeWindow
	rules  []classify.Rule

	busy       atomic.Bool
	generation atomic.Uint64
	state      atomic.Int32

	// pending is set when a request is dropped because a cycle is running.
	// pendingForce records whether any dropped request asked for force.
	pending      atomic.Bool
	pendingForce atomic.Bool
}

// New creates an Orchestrator with the default window and rules.
func New(reg *region.Registry, planner *sampling.Planner, fetcher *fetch.Fetcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:          reg,
		planner:           planner,
		fetcher:           fetcher,
		classifier:        classify.New(""),
		mode:              aggregate.Average,
		now:               time.Now,
		regionConcurrency: defaultRegionConcurrency,
		window:            region.DefaultTimeWindow(),
		rules:             classify.DefaultRules(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the phase of the running cycle.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Window returns the current time window.
func (o *Orchestrator) Window() region.TimeWindow {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.window
}

// Rules returns a copy of the current threshold rules.
func (o *Orchestrator) Rules() []classify.Rule {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Clone(o.rules)
}

// Handle applies cmd. Commands that start a cycle return ErrCycleInFlight
// with a skipped report when another cycle is running; the running cycle
// then follows up with one more cycle on their behalf.
func (o *Orchestrator) Handle(ctx context.Context, cmd Command) (*Report, error) {
	switch c := cmd.(type) {
	case RefreshCommand:
		return o.run(ctx, c.trigger(), c.Force)
	case SetTimeWindowCommand:
		o.mu.Lock()
		o.window = c.Window
		o.mu.Unlock()
		return o.run(ctx, c.trigger(), true)
	case SetRulesCommand:
		return o.setRules(c)
	case RegionChangedCommand:
		zap.L().Debug("refresh: region changed", zap.String("region_id", c.ID))
		return o.run(ctx, c.trigger(), false)
	default:
		return nil, eris.Errorf("refresh: unsupported command %T", cmd)
	}
}

func (o *Orchestrator) setRules(c SetRulesCommand) (*Report, error) {
	rules := classify.Normalize(c.Rules)
	if err := classify.Validate(rules); err != nil {
		return nil, eris.Wrap(err, "refresh: set rules")
	}

	o.mu.Lock()
	o.rules = rules
	window := o.window
	o.mu.Unlock()

	started := o.now()
	n := o.registry.Recolor(func(v float64) string { return o.classifier.Classify(v, rules) })
	zap.L().Info("refresh: rules updated", zap.Int("rules", len(rules)), zap.Int("recolored", n))

	return &Report{
		Trigger:    c.trigger(),
		Window:     window,
		Outcomes:   []Outcome{},
		Recolored:  n,
		StartedAt:  started,
		FinishedAt: o.now(),
	}, nil
}

// job carries one selected region through the cycle phases.
type job struct {
	region  region.Region
	plan    sampling.Plan
	samples []fetch.Sample
	result  region.Result
	outcome Outcome
	done    bool
}

func (j *job) fail(reason string) {
	j.outcome.OK = false
	j.outcome.Reason = reason
	j.done = true
}

// run starts a cycle unless one is in flight. A dropped request is
// remembered, and once the running cycle ends it starts one follow-up cycle
// if a request was dropped or a region still needing data was not attempted
// at its current version.
func (o *Orchestrator) run(ctx context.Context, trigger string, force bool) (*Report, error) {
	if !o.busy.CompareAndSwap(false, true) {
		o.markPending(force)
		zap.L().Info("refresh: cycle already in flight, deferring request", zap.String("trigger", trigger))
		return &Report{Trigger: trigger, Force: force, Skipped: true, Outcomes: []Outcome{}}, ErrCycleInFlight
	}

	report, attempted := o.cycle(ctx, trigger, force)
	if ctx.Err() != nil {
		return report, nil
	}

	pending, pendingForce := o.takePending()
	if !pending && !o.missed(attempted) {
		return report, nil
	}

	zap.L().Info("refresh: starting follow-up cycle",
		zap.Uint64("after_generation", report.Generation),
		zap.Bool("force", pendingForce),
	)
	follow, err := o.run(ctx, triggerFollowUp, pendingForce)
	if err == nil {
		report.FollowUp = follow
	}
	return report, nil
}

func (o *Orchestrator) markPending(force bool) {
	if force {
		o.pendingForce.Store(true)
	}
	o.pending.Store(true)
}

func (o *Orchestrator) takePending() (bool, bool) {
	if !o.pending.Swap(false) {
		return false, false
	}
	return true, o.pendingForce.Swap(false)
}

// missed reports whether a region with a data source lacks a value and was
// not attempted at its current version, such as one added or edited while
// the cycle ran.
func (o *Orchestrator) missed(attempted map[string]uint64) bool {
	for _, r := range o.registry.List() {
		if r.DataSource == "" || r.HasValue() {
			continue
		}
		if v, ok := attempted[r.ID]; !ok || v != r.Version {
			return true
		}
	}
	return false
}

// cycle runs one refresh cycle and releases the in-flight guard. It returns
// the report and the version of every region it attempted.
func (o *Orchestrator) cycle(ctx context.Context, trigger string, force bool) (*Report, map[string]uint64) {
	defer func() {
		o.state.Store(int32(StateIdle))
		o.busy.Store(false)
	}()

	window := o.Window()
	report := &Report{
		Generation: o.generation.Add(1),
		Trigger:    trigger,
		Force:      force,
		Window:     window,
		Outcomes:   []Outcome{},
		StartedAt:  o.now(),
	}
	log := zap.L().With(
		zap.Uint64("generation", report.Generation),
		zap.String("trigger", trigger),
		zap.Bool("force", force),
	)

	var jobs []*job
	attempted := make(map[string]uint64)
	for _, r := range o.registry.List() {
		switch {
		case r.DataSource == "":
			report.Outcomes = append(report.Outcomes, Outcome{RegionID: r.ID, Reason: ReasonNoDataSource})
			continue
		case r.HasValue() && !force:
			report.Outcomes = append(report.Outcomes, Outcome{RegionID: r.ID, Reason: ReasonHasData})
			continue
		}
		jobs = append(jobs, &job{region: r, outcome: Outcome{RegionID: r.ID}})
		attempted[r.ID] = r.Version
	}
	report.Selected = len(jobs)
	if len(jobs) == 0 {
		report.FinishedAt = o.now()
		log.Debug("refresh: nothing to refresh")
		return report, attempted
	}
	log.Info("refresh: cycle started", zap.Int("selected", len(jobs)))

	o.state.Store(int32(StatePlanning))
	for _, j := range jobs {
		j.plan = o.planner.Generate(j.region.Points)
		j.outcome.TotalRequested = len(j.plan.Points)
		if len(j.plan.Points) == 0 {
			j.fail(ReasonNoGridPoints)
		}
	}

	o.state.Store(int32(StateFetching))
	o.fetchAll(ctx, jobs, window)

	o.state.Store(int32(StateAggregating))
	for _, j := range jobs {
		if j.done {
			continue
		}
		if ctx.Err() != nil {
			j.fail(ReasonCycleCancelled)
			continue
		}
		o.aggregate(j, window)
	}

	o.state.Store(int32(StateCommitting))
	for _, j := range jobs {
		if j.done {
			continue
		}
		if err := o.registry.Commit(j.region.ID, j.region.Version, j.result); err != nil {
			log.Info("refresh: result discarded",
				zap.String("region_id", j.region.ID),
				zap.Error(err),
			)
			if errors.Is(err, region.ErrStale) || errors.Is(err, region.ErrNotFound) {
				j.fail(ReasonRegionChanged)
			} else {
				j.fail(ReasonLabel)
			}
			continue
		}
		v := j.result.Value
		j.outcome.OK = true
		j.outcome.Value = &v
		j.outcome.Label = j.result.Label
		j.done = true
	}

	for _, j := range jobs {
		report.Outcomes = append(report.Outcomes, j.outcome)
	}

	rules := o.Rules()
	if len(rules) > 0 && o.anyValue() {
		report.Recolored = o.registry.Recolor(func(v float64) string { return o.classifier.Classify(v, rules) })
	}

	report.FinishedAt = o.now()
	o.journal(ctx, report, log)

	log.Info("refresh: cycle finished",
		zap.Int("succeeded", report.Succeeded()),
		zap.Int("failed", report.Failed()),
		zap.Int("recolored", report.Recolored),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, attempted
}

// fetchAll fetches every pending job's samples with bounded region
// parallelism. A failing region never cancels the others.
func (o *Orchestrator) fetchAll(ctx context.Context, jobs []*job, window region.TimeWindow) {
	g := new(errgroup.Group)
	g.SetLimit(o.regionConcurrency)
	for _, j := range jobs {
		if j.done {
			continue
		}
		g.Go(func() error {
			j.samples = o.fetcher.FetchAll(ctx, j.plan.Points, j.region.DataSource, window)
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) aggregate(j *job, window region.TimeWindow) {
	values := fetch.Values(j.samples)
	if len(values) == 0 {
		j.fail(ReasonNoValidData)
		return
	}

	res, err := aggregate.Aggregate(values, o.mode)
	if err != nil {
		if errors.Is(err, aggregate.ErrNoData) {
			j.fail(ReasonNoValidData)
		} else {
			zap.L().Warn("refresh: aggregation failed", zap.String("region_id", j.region.ID), zap.Error(err))
			j.fail(ReasonAggregation)
		}
		return
	}

	label, ok := aggregate.BuildLabel(aggregate.LabelInput{
		DataSource:  j.region.DataSource,
		Value:       res.Value,
		SampleCount: res.ValidCount,
		Min:         res.Min,
		Max:         res.Max,
		AreaKm2:     j.plan.AreaKm2,
		WindowHours: window.SpanHours(),
	})
	if !ok {
		j.fail(ReasonLabel)
		return
	}

	j.outcome.SampleCount = res.ValidCount
	j.result = region.Result{
		Value: res.Value,
		Label: label,
		Metadata: region.Quality{
			SampleCount:    res.ValidCount,
			TotalRequested: len(j.plan.Points),
			QualityPercent: aggregate.QualityPercent(res.ValidCount, len(j.plan.Points)),
			MinValue:       res.Min,
			MaxValue:       res.Max,
			LastUpdated:    o.now().UTC(),
		},
	}
}

func (o *Orchestrator) anyValue() bool {
	for _, r := range o.registry.List() {
		if r.HasValue() {
			return true
		}
	}
	return false
}

func (o *Orchestrator) journal(ctx context.Context, report *Report, log *zap.Logger) {
	if o.store == nil {
		return
	}
	rec := report.record()
	if err := o.store.SaveCycle(context.WithoutCancel(ctx), rec); err != nil {
		log.Warn("refresh: journal cycle failed", zap.Error(err))
		return
	}
	report.CycleID = rec.ID
}
