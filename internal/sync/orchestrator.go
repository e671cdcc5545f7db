// Package sync sequences the source transformers. Every run holds a
// store-backed lease per source so at most one run per source is in
// progress, and advances the source watermark only on success.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/observability"
	"github.com/nhle/orgpulse/internal/source"
	"github.com/nhle/orgpulse/internal/store"
)

// ErrAlreadyRunning is carried in RunResult.Err when the lease is held.
var ErrAlreadyRunning = errors.New("transform already in progress")

const (
	defaultLeaseTimeout    = 30 * time.Minute
	defaultInitialLookback = 30 * 24 * time.Hour
)

// RunResult describes one orchestrated run. Failures are reported here
// rather than returned as errors.
type RunResult struct {
	Source         model.Source `json:"source"`
	Success        bool         `json:"success"`
	AlreadyRunning bool         `json:"alreadyRunning,omitempty"`
	Message        string       `json:"message,omitempty"`

	source.Result

	Since     *time.Time    `json:"since,omitempty"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"durationNs"`

	// Err is the underlying failure, if any.
	Err error `json:"-"`
}

// Options tunes the orchestrator. Zero values take the defaults.
type Options struct {
	LeaseTimeout    time.Duration
	InitialLookback time.Duration

	// Parallel runs different sources concurrently in RunAll.
	Parallel bool

	Now     func() time.Time
	Metrics *observability.Metrics
}

// Orchestrator runs transformers under the single-flight lease.
type Orchestrator struct {
	transformers source.Registry
	state        store.StateStore
	opts         Options
	log          zerolog.Logger
}

// New creates an Orchestrator over the given transformers.
func New(transformers source.Registry, state store.StateStore, opts Options, log zerolog.Logger) *Orchestrator {
	if opts.LeaseTimeout <= 0 {
		opts.LeaseTimeout = defaultLeaseTimeout
	}
	if opts.InitialLookback <= 0 {
		opts.InitialLookback = defaultInitialLookback
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		transformers: transformers,
		state:        state,
		opts:         opts,
		log:          log.With().Str("component", "orchestrator").Logger(),
	}
}

// Sources returns the registered sources in run order.
func (o *Orchestrator) Sources() []model.Source {
	var out []model.Source
	for _, src := range model.AllSources {
		if _, ok := o.transformers[src]; ok {
			out = append(out, src)
		}
	}
	return out
}

// RunTransformer runs the transformer of src from its watermark. A run
// already holding the lease makes it return immediately with
// AlreadyRunning set.
func (o *Orchestrator) RunTransformer(ctx context.Context, src model.Source) RunResult {
	return o.run(ctx, src, false)
}

// RunFull is RunTransformer ignoring the watermark: every raw record is
// reconsidered. Existing activities are still skipped.
func (o *Orchestrator) RunFull(ctx context.Context, src model.Source) RunResult {
	return o.run(ctx, src, true)
}

func (o *Orchestrator) run(ctx context.Context, src model.Source, full bool) RunResult {
	started := o.opts.Now()
	res := RunResult{Source: src, StartedAt: started}
	log := o.log.With().Str("source", string(src)).Logger()

	t, err := o.transformers.Get(src)
	if err != nil {
		res.Err = err
		res.Message = err.Error()
		return res
	}

	acquired, err := o.state.TryStartRun(ctx, src, started, started.Add(-o.opts.LeaseTimeout))
	if err != nil {
		res.Err = err
		res.Message = fmt.Sprintf("starting transform for %s: %v", src, err)
		log.Error().Err(err).Msg("could not acquire run lease")
		return res
	}
	if !acquired {
		res.AlreadyRunning = true
		res.Err = ErrAlreadyRunning
		res.Message = fmt.Sprintf("transform already in progress for %s", src)
		o.opts.Metrics.RunRejected(string(src))
		log.Info().Msg("run skipped, lease held")
		return res
	}
	o.opts.Metrics.RunStarted(string(src))

	if !full {
		res.Since, err = o.watermark(ctx, src, started)
		if err != nil {
			o.finish(ctx, &res, err)
			return res
		}
	}

	log.Info().Time("since", derefTime(res.Since)).Bool("full", full).Msg("transform started")
	counts, err := t.Transform(ctx, res.Since)
	res.Result = counts
	o.finish(ctx, &res, err)
	return res
}

// watermark is the last success time, or now minus the initial lookback
// for a source that never succeeded.
func (o *Orchestrator) watermark(ctx context.Context, src model.Source, now time.Time) (*time.Time, error) {
	st, err := o.state.GetTransformState(ctx, src)
	if err != nil {
		return nil, err
	}
	if st.LastSuccessAt != nil {
		since := *st.LastSuccessAt
		return &since, nil
	}
	since := now.Add(-o.opts.InitialLookback)
	return &since, nil
}

// finish releases the lease and records the outcome. It runs detached from
// ctx so a cancelled run still clears its running flag.
func (o *Orchestrator) finish(ctx context.Context, res *RunResult, runErr error) {
	res.Duration = o.opts.Now().Sub(res.StartedAt)
	res.Success = runErr == nil

	out := store.RunOutcome{
		StartedAt:  res.StartedAt,
		FinishedAt: o.opts.Now(),
		Success:    res.Success,
		SuccessAt:  res.StartedAt,
		Processed:  res.Processed,
		Created:    res.Created,
		Skipped:    res.Skipped,
		Errors:     res.Errors,
	}
	if runErr != nil {
		res.Err = runErr
		res.Message = runErr.Error()
		out.Error = runErr.Error()
	}

	err := o.state.FinishRun(context.WithoutCancel(ctx), res.Source, out)
	switch {
	case errors.Is(err, store.ErrLeaseLost):
		// A newer run owns the state row; its outcome is the one recorded.
		o.log.Warn().Str("source", string(res.Source)).Time("started", res.StartedAt).
			Msg("run lease was reclaimed before the run finished")
		res.Success = false
		if runErr != nil {
			err = errors.Join(runErr, err)
		}
		res.Err = err
		res.Message = fmt.Sprintf("lease lost: %v", err)
	case err != nil:
		o.log.Error().Err(err).Str("source", string(res.Source)).Msg("recording run outcome failed")
		if res.Success {
			res.Success = false
			res.Err = err
			res.Message = fmt.Sprintf("recording run outcome: %v", err)
		}
	}

	o.opts.Metrics.RunFinished(string(res.Source), res.Success, res.StartedAt, res.Duration,
		observability.RunCounts{
			Processed: res.Processed,
			Created:   res.Created,
			Skipped:   res.Skipped,
			Errors:    res.Errors,
		})

	ev := o.log.Info()
	if !res.Success {
		ev = o.log.Warn().Str("error", res.Message)
	}
	ev.Str("source", string(res.Source)).
		Int("processed", res.Processed).
		Int("created", res.Created).
		Int("skipped", res.Skipped).
		Int("errors", res.Errors).
		Dur("took", res.Duration).
		Msg("transform finished")
}

// RunAll runs every registered transformer and returns one result per
// source in run order. A failing source does not stop the others.
func (o *Orchestrator) RunAll(ctx context.Context) []RunResult {
	return o.runMany(ctx, o.Sources(), false)
}

// RunAllFull is RunAll ignoring watermarks.
func (o *Orchestrator) RunAllFull(ctx context.Context) []RunResult {
	return o.runMany(ctx, o.Sources(), true)
}

func (o *Orchestrator) runMany(ctx context.Context, sources []model.Source, full bool) []RunResult {
	results := make([]RunResult, len(sources))

	if !o.opts.Parallel {
		for i, src := range sources {
			results[i] = o.run(ctx, src, full)
		}
		return results
	}

	p := pool.New().WithMaxGoroutines(len(model.AllSources))
	for i, src := range sources {
		p.Go(func() {
			results[i] = o.run(ctx, src, full)
		})
	}
	p.Wait()
	return results
}

// Status returns the transform state of every registered source. Sources
// that never ran appear with a zero state.
func (o *Orchestrator) Status(ctx context.Context) ([]model.TransformState, error) {
	stored, err := o.state.ListTransformStates(ctx)
	if err != nil {
		return nil, err
	}
	bySource := make(map[model.Source]model.TransformState, len(stored))
	for _, st := range stored {
		bySource[st.Source] = st
	}

	out := make([]model.TransformState, 0, len(o.transformers))
	for _, src := range o.Sources() {
		st, ok := bySource[src]
		if !ok {
			st = model.TransformState{Source: src}
		}
		out = append(out, st)
	}
	return out, nil
}

// ResetRun clears a stuck running flag for src.
func (o *Orchestrator) ResetRun(ctx context.Context, src model.Source) error {
	if _, err := o.transformers.Get(src); err != nil {
		return err
	}
	if err := o.state.ClearRun(ctx, src); err != nil {
		return err
	}
	o.log.Warn().Str("source", string(src)).Msg("running flag cleared manually")
	return nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
