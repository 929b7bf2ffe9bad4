package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/kazmin/rubrica/internal/llm"
	"github.com/kazmin/rubrica/internal/scoring"
	"github.com/kazmin/rubrica/internal/standard"
)

// Scorer evaluates one standard against content. Satisfied by
// *scoring.Evaluator.
type Scorer interface {
	Evaluate(ctx context.Context, s standard.Standard, content string) (scoring.EvaluationResult, error)
}

// FailurePolicy decides whether the run continues after one item fails.
// ContinueOnFailure is the default; interactive callers can prompt instead.
type FailurePolicy interface {
	ShouldContinue(item Item, err error) bool
}

// FailurePolicyFunc adapts a function to a FailurePolicy.
type FailurePolicyFunc func(item Item, err error) bool

func (f FailurePolicyFunc) ShouldContinue(item Item, err error) bool { return f(item, err) }

// ContinueOnFailure keeps processing the remaining items after a failure.
var ContinueOnFailure = FailurePolicyFunc(func(Item, error) bool { return true })

// AbortOnFailure stops the run on the first failed item.
var AbortOnFailure = FailurePolicyFunc(func(Item, error) bool { return false })

// Observer receives synchronous notifications after each state transition.
// Progress is completed/total*100 and is non-decreasing within a run.
type Observer interface {
	ItemUpdated(item Item)
	ProgressChanged(pct int)
}

// Run is a handle to one evaluation pass. Cancel is cooperative: the flag is
// observed between items only, so an in-flight completion call is allowed to
// finish and the next item is the first one skipped.
type Run struct {
	queue     *Queue
	content   string
	cancelled atomic.Bool
	progress  atomic.Int64
}

// Cancel requests a cooperative stop.
func (r *Run) Cancel() { r.cancelled.Store(true) }

// Cancelled reports whether a stop has been requested.
func (r *Run) Cancelled() bool { return r.cancelled.Load() }

// Queue exposes the run's queue for inspection.
func (r *Run) Queue() *Queue { return r.queue }

// Progress returns the overall progress percentage.
func (r *Run) Progress() int { return int(r.progress.Load()) }

// Runner drives a queue sequentially through the scorer. One completion call
// is in flight at a time: progress and cancellation stay precise and the
// external service never sees parallel bursts from a single run.
type Runner struct {
	scorer   Scorer
	policy   FailurePolicy
	observer Observer
	logger   *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithFailurePolicy sets the continue-or-abort decision hook.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(r *Runner) { r.policy = p }
}

// WithObserver sets the state-transition observer.
func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observer = o }
}

// New creates a Runner. Without options, failures do not abort the run and
// transitions are unobserved.
func New(scorer Scorer, opts ...Option) *Runner {
	r := &Runner{
		scorer: scorer,
		policy: ContinueOnFailure,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRun seeds a queue for the given standards and content without starting
// it. Callers that need a cancel handle before execution begins (the HTTP
// run registry) create the run first, then pass it to Execute.
func (rn *Runner) NewRun(standards []standard.Standard, content string) *Run {
	return &Run{queue: NewQueue(standards), content: content}
}

// Run seeds a queue and executes it to completion, returning only the
// successfully completed results in submission order.
func (rn *Runner) Run(ctx context.Context, standards []standard.Standard, content string) ([]scoring.EvaluationResult, *Run) {
	run := rn.NewRun(standards, content)
	return rn.Execute(ctx, run), run
}

// Execute processes the run's queue item by item. The cancellation flag (and
// ctx) is consulted before each item; once set, the loop stops without
// marking the current or later items failed, and the reconciliation pass
// reclassifies everything unprocessed as partial.
func (rn *Runner) Execute(ctx context.Context, run *Run) []scoring.EvaluationResult {
	items := run.queue.Items()
	total := len(items)
	var results []scoring.EvaluationResult
	completed := 0
	aborted := false

	for _, it := range items {
		if run.cancelled.Load() || ctx.Err() != nil {
			break
		}

		run.queue.MarkEvaluating(it.ID)
		rn.notifyItem(run, it.ID)
		rn.logger.Info("evaluating standard",
			"item_id", it.ID, "standard_id", it.Standard.ID, "standard_name", it.Standard.Name)

		res, err := rn.scorer.Evaluate(ctx, it.Standard, run.content)
		if err != nil {
			msg := FailureMessage(err)
			run.queue.MarkFailed(it.ID, msg)
			rn.notifyItem(run, it.ID)
			rn.logger.Warn("evaluation failed",
				"item_id", it.ID, "standard_id", it.Standard.ID, "error", err)

			failedItem, _ := run.itemByID(it.ID)
			if !rn.policy.ShouldContinue(failedItem, err) {
				aborted = true
				break
			}
			continue
		}

		run.queue.MarkCompleted(it.ID, res)
		completed++
		rn.setProgress(run, completed, total)
		rn.notifyItem(run, it.ID)
		results = append(results, res)
	}

	if run.cancelled.Load() || ctx.Err() != nil || aborted {
		if n := run.queue.ReconcilePartial(); n > 0 {
			rn.logger.Info("run interrupted", "partial_items", n, "completed_items", completed)
		}
	}

	return results
}

func (r *Run) itemByID(id string) (Item, bool) {
	for _, it := range r.queue.Items() {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

func (rn *Runner) setProgress(run *Run, completed, total int) {
	pct := 0
	if total > 0 {
		pct = completed * 100 / total
	}
	run.progress.Store(int64(pct))
	if rn.observer != nil {
		rn.observer.ProgressChanged(pct)
	}
}

func (rn *Runner) notifyItem(run *Run, id string) {
	if rn.observer == nil {
		return
	}
	if it, ok := run.itemByID(id); ok {
		rn.observer.ItemUpdated(it)
	}
}

// FailureMessage renders an evaluation error as a short, human-meaningful
// cause: which stage failed and whether retrying or fixing settings is the
// likely remedy.
func FailureMessage(err error) string {
	var reqErr *llm.RequestError
	var malformed *scoring.MalformedResultError

	switch {
	case errors.Is(err, llm.ErrEmptyResponse):
		return "The scoring service returned an empty response. Retrying may help."
	case errors.As(err, &reqErr):
		if reqErr.Status == 0 {
			return fmt.Sprintf("Could not reach the scoring service: %v. Check the endpoint settings.", reqErr.Err)
		}
		return fmt.Sprintf("The scoring service returned HTTP %d. Check the API key and model settings.", reqErr.Status)
	case errors.As(err, &malformed):
		return fmt.Sprintf("The scoring response could not be parsed (%s). Retrying may help.", malformed.Reason)
	default:
		return err.Error()
	}
}
