package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ppiankov/schemetrust/internal/cache"
	"github.com/ppiankov/schemetrust/internal/fetch"
	"github.com/ppiankov/schemetrust/internal/model"
)

// Client fetches evidence about a scheme from one provider
type Client interface {
	// ID returns the source identifier
	ID() model.SourceID

	// Weight returns the configured trust weight in [0,1]
	Weight() float64

	// Fetch returns the provider's records for the scheme.
	// Zero matches is reported as fetch.ErrNotFound.
	Fetch(ctx context.Context, scheme model.Scheme) ([]model.RawEvidence, error)
}

// Registry holds the enabled source clients in registration order
type Registry struct {
	clients []Client
}

// NewRegistry creates a registry with the given clients
func NewRegistry(clients ...Client) *Registry {
	r := &Registry{}
	for _, c := range clients {
		r.Register(c)
	}
	return r
}

// Register adds a client, replacing any existing client with the same ID
func (r *Registry) Register(c Client) {
	for i, existing := range r.clients {
		if existing.ID() == c.ID() {
			r.clients[i] = c
			return
		}
	}
	r.clients = append(r.clients, c)
}

// Get returns the client for a source
func (r *Registry) Get(id model.SourceID) (Client, bool) {
	for _, c := range r.clients {
		if c.ID() == id {
			return c, true
		}
	}
	return nil, false
}

// Clients returns all registered clients
func (r *Registry) Clients() []Client {
	return append([]Client(nil), r.clients...)
}

// IDs returns the registered source IDs
func (r *Registry) IDs() []model.SourceID {
	ids := make([]model.SourceID, 0, len(r.clients))
	for _, c := range r.clients {
		ids = append(ids, c.ID())
	}
	return ids
}

// Len returns the number of registered clients
func (r *Registry) Len() int {
	return len(r.clients)
}

// Weights returns each registered source's weight
func (r *Registry) Weights() map[model.SourceID]float64 {
	weights := make(map[model.SourceID]float64, len(r.clients))
	for _, c := range r.clients {
		weights[c.ID()] = c.Weight()
	}
	return weights
}

// NewDefaultRegistry builds clients for every enabled source in the configuration
func NewDefaultRegistry(cfg model.Config, fetcher *fetch.Fetcher, respCache cache.Cache, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := NewRegistry()

	newBase := func(id model.SourceID) base {
		return newBaseClient(id, cfg.Sources.ByID(id), fetcher, respCache, cfg.Cache.TTL, logger)
	}

	if cfg.Sources.Gazette.Enabled {
		r.Register(NewGazetteClient(newBase(model.SourceGazette)))
	}
	if cfg.Sources.IndiaCode.Enabled {
		r.Register(NewIndiaCodeClient(newBase(model.SourceIndiaCode)))
	}
	if cfg.Sources.Sansad.Enabled {
		r.Register(NewSansadClient(newBase(model.SourceSansad)))
	}
	if cfg.Sources.MyScheme.Enabled {
		r.Register(NewMySchemeClient(newBase(model.SourceMyScheme)))
	}
	if cfg.Sources.DataGovIn.Enabled {
		if cfg.Sources.DataGovIn.APIKey == "" {
			logger.Warn("data.gov.in source disabled: no API key configured")
		} else {
			r.Register(NewDataGovClient(newBase(model.SourceDataGovIn)))
		}
	}

	return r
}

// base carries what every provider client shares
type base struct {
	id             model.SourceID
	weight         float64
	baseURL        string
	apiKey         string
	matchThreshold float64
	fetcher        *fetch.Fetcher
	cache          cache.Cache
	cacheTTL       time.Duration
	logger         *slog.Logger
}

func newBaseClient(id model.SourceID, sc model.SourceConfig, fetcher *fetch.Fetcher, respCache cache.Cache, ttl time.Duration, logger *slog.Logger) base {
	if respCache == nil {
		respCache = cache.Noop{}
	}
	return base{
		id:             id,
		weight:         sc.Weight,
		baseURL:        strings.TrimRight(sc.BaseURL, "/"),
		apiKey:         sc.APIKey,
		matchThreshold: sc.MatchThreshold,
		fetcher:        fetcher,
		cache:          respCache,
		cacheTTL:       ttl,
		logger:         logger.With("source", string(id)),
	}
}

// ID returns the source identifier
func (b *base) ID() model.SourceID { return b.id }

// Weight returns the configured weight
func (b *base) Weight() float64 { return b.weight }

func (b *base) threshold(fallback float64) float64 {
	if b.matchThreshold > 0 {
		return b.matchThreshold
	}
	return fallback
}

// endpoint joins the base URL, a path and a query
func (b *base) endpoint(path string, query url.Values) string {
	u := b.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// resolve turns a provider link into an absolute URL on the provider's base
func (b *base) resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	baseURL, err := url.Parse(b.baseURL + "/")
	if err != nil {
		return ""
	}
	return baseURL.ResolveReference(ref).String()
}

// get fetches rawURL through the response cache. Only successful bodies are cached.
func (b *base) get(ctx context.Context, rawURL string) (*fetch.Response, error) {
	key := cache.Key(string(b.id), rawURL)
	if body, ok := b.cache.Get(key); ok {
		b.logger.Debug("cache hit", "url", rawURL)
		return &fetch.Response{URL: rawURL, StatusCode: 200, Body: body}, nil
	}

	resp, err := b.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if err := b.cache.Set(key, resp.Body, b.cacheTTL); err != nil {
		b.logger.Warn("cache write failed", "error", err)
	}
	return resp, nil
}

// getJSON fetches through the cache and decodes JSON
func (b *base) getJSON(ctx context.Context, rawURL string, v any) error {
	resp, err := b.get(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := fetch.DecodeJSON(resp, v); err != nil {
		_ = b.cache.Delete(cache.Key(string(b.id), rawURL))
		return err
	}
	return nil
}

func (b *base) notFound(what string, scheme model.Scheme) error {
	return fmt.Errorf("%s: %w: no %s matching %q", b.id, fetch.ErrNotFound, what, scheme.Name)
}
