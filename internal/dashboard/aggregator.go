// Package dashboard maintains the read model served to the public dashboard.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ppiankov/schemetrust/internal/cache"
	"github.com/ppiankov/schemetrust/internal/catalog"
	"github.com/ppiankov/schemetrust/internal/model"
)

// Reader is the store view the aggregator rebuilds from
type Reader interface {
	AllStatuses(ctx context.Context) ([]model.VerificationStatus, error)
	SourceHealth(ctx context.Context) (map[model.SourceID]model.SourceHealth, error)
}

// SchemeSummary is one row of a dashboard list
type SchemeSummary struct {
	SchemeID     string       `json:"scheme_id"`
	Name         string       `json:"name,omitempty"`
	Status       model.Status `json:"status"`
	TrustScore   float64      `json:"trust_score"`
	Band         model.Band   `json:"score_band"`
	LastVerified *time.Time   `json:"last_verified,omitempty"`
}

// Snapshot is an immutable dashboard read model
type Snapshot struct {
	Version           uint64                                `json:"version"`
	GeneratedAt       time.Time                             `json:"generated_at"`
	TotalSchemes      int                                   `json:"total_schemes"`
	CountsByStatus    map[model.Status]int                  `json:"counts_by_status"`
	AverageTrustScore float64                               `json:"average_trust_score"`
	MostTrusted       []SchemeSummary                       `json:"most_trusted"`
	RecentlyVerified  []SchemeSummary                       `json:"recently_verified"`
	SourceHealth      map[model.SourceID]model.SourceHealth `json:"source_health"`
	LastPipelineRun   *time.Time                            `json:"last_pipeline_run,omitempty"`
}

// CacheKey is where the serialized snapshot is mirrored
var CacheKey = cache.Key("dashboard", "snapshot")

// Aggregator rebuilds and publishes dashboard snapshots
type Aggregator struct {
	reader   Reader
	catalog  catalog.Catalog
	cache    cache.Cache
	topN     int
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	current atomic.Pointer[Snapshot]
	version atomic.Uint64
	lastRun atomic.Pointer[time.Time]
	mu      sync.Mutex // serializes rebuilds
}

// New creates an aggregator holding an empty snapshot
func New(reader Reader, cat catalog.Catalog, c cache.Cache, cfg model.DashboardConfig, logger *slog.Logger) *Aggregator {
	if c == nil {
		c = cache.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	topN := cfg.TopN
	if topN <= 0 {
		topN = 10
	}
	interval := cfg.RefreshInterval
	if interval <= 0 {
		interval = time.Minute
	}

	a := &Aggregator{
		reader:   reader,
		catalog:  cat,
		cache:    c,
		topN:     topN,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
	a.current.Store(&Snapshot{
		CountsByStatus:   map[model.Status]int{},
		MostTrusted:      []SchemeSummary{},
		RecentlyVerified: []SchemeSummary{},
		SourceHealth:     map[model.SourceID]model.SourceHealth{},
	})
	return a
}

// Snapshot returns the latest published snapshot. It never blocks.
func (a *Aggregator) Snapshot() *Snapshot {
	return a.current.Load()
}

// ETag returns an entity tag for the current snapshot
func (a *Aggregator) ETag() string {
	return ETag(a.Snapshot())
}

// ETag derives an entity tag from a snapshot version
func ETag(s *Snapshot) string {
	return fmt.Sprintf(`"dashboard-v%d"`, s.Version)
}

// Rebuild reads every status and source health and publishes a new snapshot
func (a *Aggregator) Rebuild(ctx context.Context) (*Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	statuses, err := a.reader.AllStatuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("read statuses: %w", err)
	}
	health, err := a.reader.SourceHealth(ctx)
	if err != nil {
		return nil, fmt.Errorf("read source health: %w", err)
	}

	snap := a.build(statuses, health)
	snap.Version = a.version.Add(1)
	a.current.Store(snap)
	a.mirror(snap)

	a.logger.Debug("dashboard rebuilt", "version", snap.Version, "schemes", snap.TotalSchemes)
	return snap, nil
}

func (a *Aggregator) build(statuses []model.VerificationStatus, health map[model.SourceID]model.SourceHealth) *Snapshot {
	snap := &Snapshot{
		GeneratedAt:    a.now().UTC(),
		CountsByStatus: make(map[model.Status]int, len(model.AllStatuses)),
		SourceHealth:   health,
	}
	for _, s := range model.AllStatuses {
		snap.CountsByStatus[s] = 0
	}
	if snap.SourceHealth == nil {
		snap.SourceHealth = map[model.SourceID]model.SourceHealth{}
	}

	known := make(map[string]bool, len(statuses))
	var sum float64
	rows := make([]SchemeSummary, 0, len(statuses))
	for _, st := range statuses {
		known[st.SchemeID] = true
		snap.CountsByStatus[st.Status]++
		sum += st.TrustScore
		rows = append(rows, a.summary(st))

		if st.LastVerified != nil && (snap.LastPipelineRun == nil || st.LastVerified.After(*snap.LastPipelineRun)) {
			t := *st.LastVerified
			snap.LastPipelineRun = &t
		}
	}
	snap.TotalSchemes = len(statuses)

	// Catalogue schemes never verified count as pending with score zero
	if a.catalog != nil {
		for _, scheme := range a.catalog.List() {
			if !known[scheme.ID] {
				snap.CountsByStatus[model.StatusPending]++
				snap.TotalSchemes++
			}
		}
	}
	if snap.TotalSchemes > 0 {
		snap.AverageTrustScore = sum / float64(snap.TotalSchemes)
	}

	if last := a.lastRun.Load(); last != nil && (snap.LastPipelineRun == nil || last.After(*snap.LastPipelineRun)) {
		t := *last
		snap.LastPipelineRun = &t
	}

	snap.MostTrusted = topBy(rows, a.topN, func(x, y SchemeSummary) bool {
		if x.TrustScore != y.TrustScore {
			return x.TrustScore > y.TrustScore
		}
		return x.SchemeID < y.SchemeID
	})

	verified := make([]SchemeSummary, 0, len(rows))
	for _, r := range rows {
		if r.LastVerified != nil {
			verified = append(verified, r)
		}
	}
	snap.RecentlyVerified = topBy(verified, a.topN, func(x, y SchemeSummary) bool {
		if !x.LastVerified.Equal(*y.LastVerified) {
			return x.LastVerified.After(*y.LastVerified)
		}
		return x.SchemeID < y.SchemeID
	})

	return snap
}

func (a *Aggregator) summary(st model.VerificationStatus) SchemeSummary {
	s := SchemeSummary{
		SchemeID:     st.SchemeID,
		Status:       st.Status,
		TrustScore:   st.TrustScore,
		Band:         st.Band,
		LastVerified: st.LastVerified,
	}
	if a.catalog != nil {
		if scheme, ok := a.catalog.Get(st.SchemeID); ok {
			s.Name = scheme.Name
		}
	}
	return s
}

func topBy(rows []SchemeSummary, n int, less func(x, y SchemeSummary) bool) []SchemeSummary {
	sorted := append([]SchemeSummary(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func (a *Aggregator) mirror(snap *Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		a.logger.Warn("encode dashboard snapshot", "error", err)
		return
	}
	if err := a.cache.Set(CacheKey, data, 2*a.interval); err != nil {
		a.logger.Warn("mirror dashboard snapshot", "error", err)
	}
}

// Warm publishes a snapshot mirrored by an earlier process, if one is cached
func (a *Aggregator) Warm() bool {
	data, ok := a.cache.Get(CacheKey)
	if !ok {
		return false
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		a.logger.Warn("discarding cached dashboard snapshot", "error", err)
		_ = a.cache.Delete(CacheKey)
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if snap.Version <= a.version.Load() {
		return false
	}
	a.version.Store(snap.Version)
	a.current.Store(&snap)
	return true
}

// OnRunComplete rebuilds after a verification run
func (a *Aggregator) OnRunComplete(ctx context.Context, run *model.RunResult) {
	finished := run.FinishedAt
	a.lastRun.Store(&finished)
	if _, err := a.Rebuild(ctx); err != nil {
		a.logger.Warn("dashboard rebuild after run failed", "run_id", run.RunID, "error", err)
	}
}

// Run rebuilds on every refresh interval until ctx is done
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Rebuild(ctx); err != nil {
				a.logger.Warn("periodic dashboard rebuild failed", "error", err)
			}
		}
	}
}
