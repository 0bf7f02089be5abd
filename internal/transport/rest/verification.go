package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ppiankov/schemetrust/internal/catalog"
	"github.com/ppiankov/schemetrust/internal/dashboard"
	"github.com/ppiankov/schemetrust/internal/model"
	"github.com/ppiankov/schemetrust/internal/store"
	"github.com/ppiankov/schemetrust/internal/worker"
)

const (
	defaultChangelogLimit = 50
	maxChangelogLimit     = 500
	maxOverrideBody       = 1 << 16
)

// StatusStore is the store view the API reads and overrides through
type StatusStore interface {
	Status(ctx context.Context, schemeID string) (model.VerificationStatus, error)
	AllStatuses(ctx context.Context) ([]model.VerificationStatus, error)
	ListStatuses(ctx context.Context, f store.Filter) (store.Page, error)
	Evidence(ctx context.Context, schemeID string) ([]model.EvidenceRecord, error)
	Changelog(ctx context.Context, schemeID string, limit int) ([]model.ChangelogEntry, error)
	Override(ctx context.Context, schemeID string, to model.Status, reason string) (*store.CommitResult, error)
}

// Enqueuer schedules asynchronous verification runs
type Enqueuer interface {
	Enqueue(schemeID string) (string, error)
}

// SnapshotSource publishes dashboard snapshots
type SnapshotSource interface {
	Snapshot() *dashboard.Snapshot
}

// VerificationHandler serves the /verification endpoints
type VerificationHandler struct {
	store     StatusStore
	catalog   catalog.Catalog
	queue     Enqueuer
	dashboard SnapshotSource
	sources   int // Enabled sources, for trigger estimates
	log       *slog.Logger
}

// NewVerificationHandler creates a VerificationHandler
func NewVerificationHandler(st StatusStore, cat catalog.Catalog, queue Enqueuer, dash SnapshotSource, sources int, logger *slog.Logger) *VerificationHandler {
	return &VerificationHandler{
		store:     st,
		catalog:   cat,
		queue:     queue,
		dashboard: dash,
		sources:   sources,
		log:       logger.With("handler", "verification"),
	}
}

// TriggerResponse is returned by POST /verification/trigger
type TriggerResponse struct {
	Message          string   `json:"message"`
	SchemesQueued    int      `json:"schemes_queued"`
	EstimatedSources int      `json:"estimated_sources"`
	RunIDs           []string `json:"run_ids"`
}

// Trigger queues verification runs.
// POST /verification/trigger?scheme_id=&force=
func (h *VerificationHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	force := false
	if v := q.Get("force"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "force must be a boolean")
			return
		}
		force = b
	}

	var ids []string
	if schemeID := q.Get("scheme_id"); schemeID != "" {
		known, err := h.known(ctx, schemeID)
		if err != nil {
			h.internalError(w, r, "lookup scheme", err)
			return
		}
		if !known {
			writeError(w, http.StatusNotFound, fmt.Sprintf("scheme %q not found", schemeID))
			return
		}
		ids = []string{schemeID}
	} else {
		var err error
		if ids, err = h.needingVerification(ctx, force); err != nil {
			h.internalError(w, r, "select schemes", err)
			return
		}
	}

	if len(ids) == 0 {
		writeJSON(w, http.StatusOK, TriggerResponse{
			Message: "No schemes require verification at this time.",
			RunIDs:  []string{},
		})
		return
	}

	runIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		runID, err := h.queue.Enqueue(id)
		if err != nil {
			if errors.Is(err, worker.ErrQueueFull) && len(runIDs) > 0 {
				h.log.WarnContext(ctx, "verification queue filled during trigger",
					slog.Int("queued", len(runIDs)), slog.Int("requested", len(ids)))
				break
			}
			if errors.Is(err, worker.ErrQueueFull) || errors.Is(err, worker.ErrQueueClosed) {
				writeError(w, http.StatusServiceUnavailable, err.Error())
				return
			}
			h.internalError(w, r, "enqueue", err)
			return
		}
		runIDs = append(runIDs, runID)
	}

	h.log.InfoContext(ctx, "verification triggered",
		slog.String("scheme_id", q.Get("scheme_id")),
		slog.Bool("force", force),
		slog.Int("schemes_queued", len(runIDs)),
	)
	writeJSON(w, http.StatusAccepted, TriggerResponse{
		Message:          fmt.Sprintf("Verification queued for %d scheme(s). Results will be available shortly.", len(runIDs)),
		SchemesQueued:    len(runIDs),
		EstimatedSources: len(runIDs) * h.sources,
		RunIDs:           runIDs,
	})
}

// needingVerification lists catalogue schemes to queue: all of them when
// forced, otherwise those still pending or unverified.
func (h *VerificationHandler) needingVerification(ctx context.Context, force bool) ([]string, error) {
	schemes := h.catalog.List()
	ids := make([]string, 0, len(schemes))
	if force {
		for _, s := range schemes {
			ids = append(ids, s.ID)
		}
		return ids, nil
	}

	statuses, err := h.store.AllStatuses(ctx)
	if err != nil {
		return nil, err
	}
	current := make(map[string]model.Status, len(statuses))
	for _, st := range statuses {
		current[st.SchemeID] = st.Status
	}
	for _, s := range schemes {
		st, ok := current[s.ID]
		if !ok || st == model.StatusPending || st == model.StatusUnverified {
			ids = append(ids, s.ID)
		}
	}
	return ids, nil
}

// StatusResponse is a scheme's derived status with its catalogue name
type StatusResponse struct {
	model.VerificationStatus
	Name string `json:"name,omitempty"`
}

// Status returns the derived status of one scheme.
// GET /verification/status/{schemeID}
func (h *VerificationHandler) Status(w http.ResponseWriter, r *http.Request) {
	schemeID := chi.URLParam(r, "schemeID")

	st, err := h.store.Status(r.Context(), schemeID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if _, ok := h.catalog.Get(schemeID); !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("scheme %q not found", schemeID))
			return
		}
		st = model.InitialStatus(schemeID)
	case err != nil:
		h.internalError(w, r, "get status", err)
		return
	}

	resp := StatusResponse{VerificationStatus: st}
	if scheme, ok := h.catalog.Get(schemeID); ok {
		resp.Name = scheme.Name
	}
	writeJSON(w, http.StatusOK, resp)
}

// EvidenceResponse is a scheme's evidence chain
type EvidenceResponse struct {
	SchemeID string                 `json:"scheme_id"`
	Count    int                    `json:"count"`
	Evidence []model.EvidenceRecord `json:"evidence"`
}

// Evidence returns the evidence chain of one scheme.
// GET /verification/evidence/{schemeID}
func (h *VerificationHandler) Evidence(w http.ResponseWriter, r *http.Request) {
	schemeID, ok := h.requireKnown(w, r)
	if !ok {
		return
	}

	records, err := h.store.Evidence(r.Context(), schemeID)
	if err != nil {
		h.internalError(w, r, "get evidence", err)
		return
	}
	if records == nil {
		records = []model.EvidenceRecord{}
	}
	writeJSON(w, http.StatusOK, EvidenceResponse{SchemeID: schemeID, Count: len(records), Evidence: records})
}

// ChangelogResponse is the most recent part of a scheme's changelog
type ChangelogResponse struct {
	SchemeID string                 `json:"scheme_id"`
	Count    int                    `json:"count"`
	Entries  []model.ChangelogEntry `json:"entries"`
}

// Changelog returns the last entries of one scheme's changelog, oldest first.
// GET /verification/changelog/{schemeID}?limit=
func (h *VerificationHandler) Changelog(w http.ResponseWriter, r *http.Request) {
	limit := defaultChangelogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxChangelogLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxChangelogLimit))
			return
		}
		limit = n
	}

	schemeID, ok := h.requireKnown(w, r)
	if !ok {
		return
	}

	entries, err := h.store.Changelog(r.Context(), schemeID, limit)
	if err != nil {
		h.internalError(w, r, "get changelog", err)
		return
	}
	if entries == nil {
		entries = []model.ChangelogEntry{}
	}
	writeJSON(w, http.StatusOK, ChangelogResponse{SchemeID: schemeID, Count: len(entries), Entries: entries})
}

// Dashboard returns the latest dashboard snapshot. A matching
// If-None-Match answers 304.
// GET /verification/dashboard
func (h *VerificationHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	snap := h.dashboard.Snapshot()
	etag := dashboard.ETag(snap)

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

// Search lists statuses by filter, highest score first.
// GET /verification/search?status=&min_trust_score=&source=&page=&page_size=
func (h *VerificationHandler) Search(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.store.ListStatuses(r.Context(), f)
	if err != nil {
		h.internalError(w, r, "search statuses", err)
		return
	}
	if page.Items == nil {
		page.Items = []model.VerificationStatus{}
	}
	writeJSON(w, http.StatusOK, page)
}

func parseFilter(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	var f store.Filter

	if v := q.Get("status"); v != "" {
		f.Status = model.Status(v)
		if !f.Status.Valid() {
			return f, fmt.Errorf("unknown status %q", v)
		}
	}
	if v := q.Get("min_trust_score"); v != "" {
		score, err := strconv.ParseFloat(v, 64)
		if err != nil || score < 0 || score > 1 {
			return f, errors.New("min_trust_score must be a number between 0 and 1")
		}
		f.MinScore = score
	}
	if v := q.Get("source"); v != "" {
		f.Source = model.SourceID(v)
		if !knownSource(f.Source) {
			return f, fmt.Errorf("unknown source %q", v)
		}
	}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, errors.New("page must be a positive integer")
		}
		f.Page = n
	}
	if v := q.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			return f, errors.New("page_size must be between 1 and 500")
		}
		f.PageSize = n
	}
	return f, nil
}

func knownSource(id model.SourceID) bool {
	for _, s := range model.AllSources {
		if s == id {
			return true
		}
	}
	return false
}

// OverrideRequest is the body of POST /verification/override/{schemeID}
type OverrideRequest struct {
	Status model.Status `json:"status"`
	Reason string       `json:"reason"`
}

// OverrideResponse reports the status after an override
type OverrideResponse struct {
	Status  model.VerificationStatus `json:"status"`
	Changes []model.ChangelogEntry   `json:"changes"`
}

// Override sets a scheme's status by hand.
// POST /verification/override/{schemeID}
func (h *VerificationHandler) Override(w http.ResponseWriter, r *http.Request) {
	var req OverrideRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxOverrideBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", req.Status))
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		writeError(w, http.StatusBadRequest, "reason is required")
		return
	}

	schemeID, ok := h.requireKnown(w, r)
	if !ok {
		return
	}

	result, err := h.store.Override(r.Context(), schemeID, req.Status, req.Reason)
	if err != nil {
		if errors.Is(err, store.ErrStaleWrite) || errors.Is(err, store.ErrLockTimeout) {
			writeError(w, http.StatusConflict, "scheme is being updated, retry the override")
			return
		}
		h.internalError(w, r, "override", err)
		return
	}

	h.log.InfoContext(r.Context(), "status overridden",
		slog.String("scheme_id", schemeID),
		slog.String("from", string(result.Previous.Status)),
		slog.String("to", string(result.Status.Status)),
	)
	changes := result.Changes
	if changes == nil {
		changes = []model.ChangelogEntry{}
	}
	writeJSON(w, http.StatusOK, OverrideResponse{Status: result.Status, Changes: changes})
}

// known reports whether the scheme is catalogued or has a stored status
func (h *VerificationHandler) known(ctx context.Context, schemeID string) (bool, error) {
	if _, ok := h.catalog.Get(schemeID); ok {
		return true, nil
	}
	_, err := h.store.Status(ctx, schemeID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (h *VerificationHandler) requireKnown(w http.ResponseWriter, r *http.Request) (string, bool) {
	schemeID := chi.URLParam(r, "schemeID")
	known, err := h.known(r.Context(), schemeID)
	if err != nil {
		h.internalError(w, r, "lookup scheme", err)
		return "", false
	}
	if !known {
		writeError(w, http.StatusNotFound, fmt.Sprintf("scheme %q not found", schemeID))
		return "", false
	}
	return schemeID, true
}

func (h *VerificationHandler) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.log.ErrorContext(r.Context(), op, slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, "internal server error")
}
