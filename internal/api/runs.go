package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kazmin/rubrica/internal/runner"
	"github.com/kazmin/rubrica/internal/scoring"
	"github.com/kazmin/rubrica/internal/standard"
)

// RunState tracks one background evaluation run from submission to
// persistence. Done is closed after the results have been handed to the
// evaluation store.
type RunState struct {
	ID        string
	CreatedAt time.Time
	Done      chan struct{}

	run     *runner.Run
	weights map[string]float64
	title   string

	mu      sync.Mutex
	results []scoring.EvaluationResult
}

// Cancel requests a cooperative stop of the underlying run.
func (s *RunState) Cancel() { s.run.Cancel() }

// RunSnapshot is the wire representation of a run's current state.
type RunSnapshot struct {
	ID        string                     `json:"id"`
	Status    string                     `json:"status"`
	Progress  int                        `json:"progress"`
	CreatedAt time.Time                  `json:"created_at"`
	Items     []runner.Item              `json:"items"`
	Results   []scoring.EvaluationResult `json:"results,omitempty"`
}

// Snapshot derives the run's overall status from its items. The run counts
// as running until the background goroutine has finished persisting.
func (s *RunState) Snapshot() RunSnapshot {
	snap := RunSnapshot{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		Progress:  s.run.Progress(),
		Items:     s.run.Queue().Items(),
	}

	select {
	case <-s.Done:
	default:
		snap.Status = "running"
		return snap
	}

	s.mu.Lock()
	snap.Results = append([]scoring.EvaluationResult(nil), s.results...)
	s.mu.Unlock()

	snap.Status = overallStatus(snap.Items)
	return snap
}

func overallStatus(items []runner.Item) string {
	failed := 0
	for _, it := range items {
		switch it.Status {
		case runner.StatusPartial:
			return "partial"
		case runner.StatusFailed:
			failed++
		}
	}
	if failed == len(items) && failed > 0 {
		return "failed"
	}
	return "completed"
}

// EvaluationSink receives a finished run's results. Satisfied by
// *evalstore.Store.
type EvaluationSink interface {
	Add(results []scoring.EvaluationResult, weights map[string]float64) error
}

// RunRegistry starts evaluation runs in the background and keeps their
// handles for status polling and cancellation. Runs live in memory for the
// server's lifetime; their results outlive them through the sink.
type RunRegistry struct {
	scorer runner.Scorer
	sink   EvaluationSink
	logger *slog.Logger

	mu   sync.Mutex
	runs map[string]*RunState
}

func NewRunRegistry(scorer runner.Scorer, sink EvaluationSink, logger *slog.Logger) *RunRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunRegistry{
		scorer: scorer,
		sink:   sink,
		logger: logger,
		runs:   map[string]*RunState{},
	}
}

// StartOptions describes one run submission.
type StartOptions struct {
	Standards   []standard.Standard
	Content     string
	Title       string
	Weights     map[string]float64
	AbortOnFail bool
}

// Start queues a run and executes it on a background goroutine. The
// returned state is registered before execution begins, so a cancel request
// can land even before the first completion call goes out.
func (reg *RunRegistry) Start(opts StartOptions) *RunState {
	policy := runner.FailurePolicy(runner.ContinueOnFailure)
	if opts.AbortOnFail {
		policy = runner.AbortOnFailure
	}
	rn := runner.New(reg.scorer, runner.WithFailurePolicy(policy))

	state := &RunState{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		Done:      make(chan struct{}),
		run:       rn.NewRun(opts.Standards, opts.Content),
		weights:   opts.Weights,
		title:     opts.Title,
	}

	reg.mu.Lock()
	reg.runs[state.ID] = state
	reg.mu.Unlock()

	go reg.execute(rn, state)
	return state
}

func (reg *RunRegistry) execute(rn *runner.Runner, state *RunState) {
	defer close(state.Done)

	results := rn.Execute(context.Background(), state.run)

	// An explicit title overrides whatever the model put in article_title,
	// so re-evaluations of the same article dedupe correctly.
	if state.title != "" {
		for i := range results {
			results[i].ArticleTitle = state.title
		}
	}

	state.mu.Lock()
	state.results = results
	state.mu.Unlock()

	if len(results) > 0 {
		if err := reg.sink.Add(results, state.weights); err != nil {
			reg.logger.Error("storing run results failed", "run_id", state.ID, "error", err)
		}
	}
	reg.logger.Info("run finished", "run_id", state.ID, "results", len(results))
}

// Get returns a registered run by id.
func (reg *RunRegistry) Get(id string) (*RunState, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	state, ok := reg.runs[id]
	return state, ok
}
