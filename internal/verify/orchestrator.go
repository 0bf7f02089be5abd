// Package verify runs verification: it fans out to every source, absorbs
// per-source failures and commits the scored result.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ppiankov/schemetrust/internal/catalog"
	"github.com/ppiankov/schemetrust/internal/fetch"
	"github.com/ppiankov/schemetrust/internal/model"
	"github.com/ppiankov/schemetrust/internal/resilience"
	"github.com/ppiankov/schemetrust/internal/score"
	"github.com/ppiankov/schemetrust/internal/source"
	"github.com/ppiankov/schemetrust/internal/store"
	"github.com/ppiankov/schemetrust/internal/worker"
)

var (
	// ErrUnknownScheme is returned for a scheme missing from the catalogue
	ErrUnknownScheme = errors.New("unknown scheme")

	// ErrAllSourcesFailed is set on a run in which no source responded
	ErrAllSourcesFailed = errors.New("all sources failed")

	errCircuitOpen = errors.New("circuit open")
)

// Store is the persistence the orchestrator commits to
type Store interface {
	CommitRun(ctx context.Context, schemeID, runID string, observed []model.EvidenceRecord, project store.ProjectFunc) (*store.CommitResult, error)
	UpsertSourceHealth(ctx context.Context, h model.SourceHealth) error
	AllStatuses(ctx context.Context) ([]model.VerificationStatus, error)
}

// Hook is called after every completed run, including runs that reached no
// source or failed to commit. run.Status is nil unless the run committed.
type Hook func(ctx context.Context, run *model.RunResult)

// Orchestrator runs verifications
type Orchestrator struct {
	catalog   catalog.Catalog
	sources   *source.Registry
	store     Store
	projector *score.Projector
	breakers  *resilience.Breakers
	backoff   resilience.Backoff
	commit    resilience.Backoff
	timeouts  map[model.SourceID]time.Duration
	sem       *semaphore.Weighted
	workers   int
	now       func() time.Time
	logger    *slog.Logger

	mu    sync.RWMutex
	hooks []Hook
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithBreakers shares a breaker set, so health endpoints can report state
func WithBreakers(b *resilience.Breakers) Option {
	return func(o *Orchestrator) { o.breakers = b }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator
func New(cfg model.Config, cat catalog.Catalog, sources *source.Registry, st Store, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	timeouts := make(map[model.SourceID]time.Duration, len(model.AllSources))
	for _, id := range model.AllSources {
		d := cfg.Sources.ByID(id).Timeout
		if d <= 0 {
			d = 30 * time.Second
		}
		timeouts[id] = d
	}

	concurrent := cfg.Verify.MaxConcurrentSchemes
	if concurrent < 1 {
		concurrent = 1
	}
	commitAttempts := cfg.Store.CommitAttempts
	if commitAttempts < 1 {
		commitAttempts = 1
	}

	o := &Orchestrator{
		catalog:   cat,
		sources:   sources,
		store:     st,
		projector: score.NewProjector(cfg.Scoring),
		breakers:  resilience.NewBreakers(cfg.Breaker),
		backoff: resilience.Backoff{
			Attempts: cfg.Retry.MaxAttempts,
			Base:     cfg.Retry.BaseDelay,
			Max:      cfg.Retry.MaxDelay,
		},
		commit: resilience.Backoff{
			Attempts: commitAttempts,
			Base:     100 * time.Millisecond,
			Max:      2 * time.Second,
		},
		timeouts: timeouts,
		sem:      semaphore.NewWeighted(int64(concurrent)),
		workers:  cfg.Verify.BatchWorkers,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OnRunComplete registers a hook called after each completed run
func (o *Orchestrator) OnRunComplete(h Hook) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hooks = append(o.hooks, h)
}

// Breakers returns the per-source circuit breakers
func (o *Orchestrator) Breakers() *resilience.Breakers {
	return o.breakers
}

// Sources returns the source registry
func (o *Orchestrator) Sources() *source.Registry {
	return o.sources
}

// RunVerification verifies one scheme under a fresh run ID
func (o *Orchestrator) RunVerification(ctx context.Context, schemeID string) (*model.RunResult, error) {
	return o.Verify(ctx, schemeID, uuid.NewString())
}

// Verify verifies one scheme. Source failures are reported in the result;
// only an unknown scheme or a failed commit is returned as an error.
func (o *Orchestrator) Verify(ctx context.Context, schemeID, runID string) (*model.RunResult, error) {
	// 1. Resolve the scheme
	scheme, ok := o.catalog.Get(schemeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScheme, schemeID)
	}

	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer o.sem.Release(1)

	logger := o.logger.With("scheme_id", schemeID, "run_id", runID)
	run := &model.RunResult{
		RunID:     runID,
		SchemeID:  schemeID,
		StartedAt: o.now().UTC(),
	}

	// 2. Fan out to every source; one failure never cancels the others
	clients := o.sources.Clients()
	results := make([]model.SourceResult, len(clients))
	evidence := make([][]model.RawEvidence, len(clients))

	var g errgroup.Group
	for i, client := range clients {
		g.Go(func() error {
			results[i], evidence[i] = o.fetchSource(ctx, client, scheme)
			return nil
		})
	}
	g.Wait()
	run.Sources = results

	// 3. Normalize observations into records
	observed := o.normalize(schemeID, clients, results, evidence)
	responded := run.Responded()
	run.FinishedAt = o.now().UTC()

	if len(responded) == 0 {
		run.Err = ErrAllSourcesFailed
		run.Error = ErrAllSourcesFailed.Error()
		o.recordHealth(ctx, run)
		o.notify(ctx, run)
		logger.Warn("no source responded, status unchanged", "sources", len(clients))
		return run, nil
	}

	// 4. Commit evidence, status and changelog atomically
	project := func(prev model.VerificationStatus, chain []model.EvidenceRecord) model.VerificationStatus {
		return o.projector.Project(prev, chain, score.Run{Responded: responded, At: run.StartedAt})
	}

	var commit *store.CommitResult
	err := resilience.Retry(ctx, o.commit, isPersistence, func(ctx context.Context, attempt int) error {
		var err error
		commit, err = o.store.CommitRun(ctx, schemeID, runID, observed, project)
		if err != nil && attempt > 0 {
			logger.Warn("commit retry failed", "attempt", attempt+1, "error", err)
		}
		return err
	})
	if err != nil {
		logger.Error("commit failed", "error", err)
		o.recordHealth(ctx, run)
		o.notify(ctx, run)
		return run, fmt.Errorf("commit %s: %w", schemeID, err)
	}

	run.Committed = true
	run.Inserted = commit.Inserted
	run.Status = &commit.Status
	run.Changes = commit.Changes
	run.FinishedAt = o.now().UTC()

	// 5. Record source health and notify listeners
	o.recordHealth(ctx, run)
	o.notify(ctx, run)

	logger.Info("verification complete",
		"status", commit.Status.Status,
		"trust_score", commit.Status.TrustScore,
		"responded", len(responded),
		"evidence_inserted", commit.Inserted,
		"changes", len(commit.Changes),
	)
	return run, nil
}

// fetchSource queries one source with its own deadline, retrying transient failures
func (o *Orchestrator) fetchSource(ctx context.Context, client source.Client, scheme model.Scheme) (model.SourceResult, []model.RawEvidence) {
	id := client.ID()
	start := o.now()
	res := model.SourceResult{Source: id}
	breaker := o.breakers.For(id)

	ctx, cancel := context.WithTimeout(ctx, o.timeouts[id])
	defer cancel()

	var evidence []model.RawEvidence
	err := resilience.Retry(ctx, o.backoff, retryable, func(ctx context.Context, attempt int) error {
		if !breaker.Allow() {
			return errCircuitOpen
		}
		res.Attempts = attempt + 1

		ev, err := client.Fetch(ctx, scheme)
		switch {
		case err == nil, fetch.KindOf(err) == fetch.KindNotFound:
			breaker.Success()
		case fetch.KindOf(err) == fetch.KindPolicyViolation:
			breaker.Release()
		default:
			breaker.Failure()
		}
		if err == nil {
			evidence = ev
		}
		return err
	})
	res.Duration = o.now().Sub(start)

	switch {
	case err == nil && len(evidence) > 0:
		res.Outcome = model.OutcomeOK
		res.Records = len(evidence)
	case err == nil, fetch.KindOf(err) == fetch.KindNotFound:
		res.Outcome = model.OutcomeNotFound
	case errors.Is(err, errCircuitOpen):
		res.Outcome = model.OutcomeCircuitOpen
		res.Error = err.Error()
	case fetch.KindOf(err) == fetch.KindPolicyViolation:
		res.Outcome = model.OutcomePolicyViolation
		res.Error = err.Error()
	default:
		res.Outcome = model.OutcomeTransient
		res.Error = err.Error()
	}

	o.logger.Debug("source fetched",
		"source", id,
		"scheme_id", scheme.ID,
		"outcome", res.Outcome,
		"attempts", res.Attempts,
		"records", res.Records,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, evidence
}

// normalize converts raw observations into records ready for the store
func (o *Orchestrator) normalize(schemeID string, clients []source.Client, results []model.SourceResult, evidence [][]model.RawEvidence) []model.EvidenceRecord {
	var observed []model.EvidenceRecord
	for i, client := range clients {
		switch results[i].Outcome {
		case model.OutcomeOK:
			for _, ev := range evidence[i] {
				if ev.ContentHash == "" {
					ev.ContentHash = model.HashContent(ev)
				}
				observed = append(observed, model.EvidenceRecord{SchemeID: schemeID, Weight: client.Weight(), RawEvidence: ev})
			}
		case model.OutcomeNotFound:
			observed = append(observed, model.EvidenceRecord{
				SchemeID:    schemeID,
				Weight:      0,
				RawEvidence: model.NegativeObservation(client.ID(), schemeID),
			})
		}
	}
	return observed
}

func (o *Orchestrator) recordHealth(ctx context.Context, run *model.RunResult) {
	states := o.breakers.States()
	checked := run.FinishedAt

	for _, r := range run.Sources {
		h := model.SourceHealth{
			Source:      r.Source,
			Online:      r.Outcome.Responded(),
			LastOutcome: r.Outcome,
			LastError:   r.Error,
			Breaker:     states[r.Source].String(),
			LastChecked: checked,
		}
		if h.Online {
			h.LastSuccess = &checked
		}
		if err := o.store.UpsertSourceHealth(ctx, h); err != nil {
			o.logger.Warn("record source health failed", "source", r.Source, "error", err)
		}
	}
}

func (o *Orchestrator) notify(ctx context.Context, run *model.RunResult) {
	o.mu.RLock()
	hooks := append([]Hook(nil), o.hooks...)
	o.mu.RUnlock()

	for _, h := range hooks {
		h(ctx, run)
	}
}

// VerifyBatch verifies many schemes through the worker pool
func (o *Orchestrator) VerifyBatch(ctx context.Context, schemeIDs []string) []*worker.VerifyResult {
	return worker.NewBatchVerifier(o, o.workers).VerifyAll(ctx, schemeIDs)
}

// StaleSchemes returns catalogue schemes never verified or last verified before now-maxAge
func (o *Orchestrator) StaleSchemes(ctx context.Context, maxAge time.Duration) ([]string, error) {
	statuses, err := o.store.AllStatuses(ctx)
	if err != nil {
		return nil, err
	}
	last := make(map[string]*time.Time, len(statuses))
	for _, st := range statuses {
		last[st.SchemeID] = st.LastVerified
	}

	cutoff := o.now().Add(-maxAge)
	var stale []string
	for _, scheme := range o.catalog.List() {
		lv := last[scheme.ID]
		if lv == nil || lv.Before(cutoff) {
			stale = append(stale, scheme.ID)
		}
	}
	return stale, nil
}

// ReverifyStale verifies every stale scheme
func (o *Orchestrator) ReverifyStale(ctx context.Context, maxAge time.Duration) ([]*worker.VerifyResult, error) {
	ids, err := o.StaleSchemes(ctx, maxAge)
	if err != nil {
		return nil, fmt.Errorf("select stale schemes: %w", err)
	}
	o.logger.Info("reverifying stale schemes", "count", len(ids), "max_age", maxAge)
	return o.VerifyBatch(ctx, ids), nil
}

func retryable(err error) bool {
	return !errors.Is(err, errCircuitOpen) && fetch.IsRetryable(err)
}

func isPersistence(err error) bool {
	return errors.Is(err, store.ErrPersistence) && !errors.Is(err, store.ErrStaleWrite)
}
