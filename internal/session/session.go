// Package session keeps one catalog and one board engine per browser session.
//
// The scs session cookie carries a view id; the registry maps it to the
// engines, mounting each on first use and evicting views left idle.
package session

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/mathprepa/internal/engine"
	"github.com/seantiz/mathprepa/internal/model"
)

const viewKey = "view_id"

var viewsActive = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "mathprepa_session_views",
	Help: "Number of mounted per-session views.",
})

func init() {
	prometheus.MustRegister(viewsActive)
}

// CatalogMounter creates and loads a catalog engine.
type CatalogMounter func(ctx context.Context) *engine.CatalogEngine

// BoardMounter creates a board engine and fetches its posts.
type BoardMounter func(ctx context.Context) *engine.BoardEngine

// view is the state of one browser session.
type view struct {
	mu       sync.Mutex
	catalog  *engine.CatalogEngine
	board    *engine.BoardEngine
	lastUsed time.Time // guarded by Registry.mu
}

// Registry maps session view ids to their engines.
type Registry struct {
	sessions     *scs.SessionManager
	mountCatalog CatalogMounter
	mountBoard   BoardMounter
	idle         time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu    sync.Mutex
	views map[string]*view
}

// Options configures a Registry.
type Options struct {
	// Lifetime is the absolute lifetime of the session cookie.
	Lifetime time.Duration
	// IdleTimeout evicts views not used for this long.
	IdleTimeout time.Duration
	// Secure marks the cookie Secure.
	Secure bool
	// CrossSite sends the cookie on cross-site requests. Browsers only
	// accept that for Secure cookies, so it has no effect without Secure.
	CrossSite bool
}

// NewRegistry creates a registry backed by an in-memory scs store.
func NewRegistry(catalog CatalogMounter, board BoardMounter, opts Options, logger *slog.Logger) *Registry {
	sm := scs.New()
	sm.Lifetime = opts.Lifetime
	sm.IdleTimeout = opts.IdleTimeout
	sm.Cookie.Name = "mathprepa_session"
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = opts.Secure
	if opts.CrossSite && opts.Secure {
		sm.Cookie.SameSite = http.SameSiteNoneMode
	}

	return &Registry{
		sessions:     sm,
		mountCatalog: catalog,
		mountBoard:   board,
		idle:         opts.IdleTimeout,
		logger:       logger,
		now:          time.Now,
		views:        make(map[string]*view),
	}
}

// Middleware loads the session for each request and writes the cookie back.
func (r *Registry) Middleware(next http.Handler) http.Handler {
	return r.sessions.LoadAndSave(next)
}

// view returns the view of the request session, creating it if needed. ctx
// must come from a request that went through Middleware.
func (r *Registry) view(ctx context.Context) *view {
	id := r.sessions.GetString(ctx, viewKey)
	if id == "" {
		id = model.NewID()
		r.sessions.Put(ctx, viewKey, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.views[id]
	if !ok {
		v = &view{}
		r.views[id] = v
		viewsActive.Inc()
		r.logger.Debug("view created", "view_id", id)
	}
	v.lastUsed = r.now()
	return v
}

// Catalog returns the catalog engine of the session, mounting it on first use.
func (r *Registry) Catalog(ctx context.Context) *engine.CatalogEngine {
	v := r.view(ctx)
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.catalog == nil {
		v.catalog = r.mountCatalog(ctx)
	}
	return v.catalog
}

// RemountCatalog replaces the session catalog with a freshly loaded one.
// Filters and revealed solutions are reset.
func (r *Registry) RemountCatalog(ctx context.Context) *engine.CatalogEngine {
	v := r.view(ctx)
	v.mu.Lock()
	defer v.mu.Unlock()
	v.catalog = r.mountCatalog(ctx)
	return v.catalog
}

// Board returns the board engine of the session, mounting it on first use.
func (r *Registry) Board(ctx context.Context) *engine.BoardEngine {
	v := r.view(ctx)
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.board == nil {
		v.board = r.mountBoard(ctx)
	}
	return v.board
}

// Len returns the number of live views.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// Sweep evicts views idle for longer than the idle timeout and returns how
// many were removed.
func (r *Registry) Sweep() int {
	if r.idle <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idle)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, v := range r.views {
		if v.lastUsed.Before(cutoff) {
			delete(r.views, id)
			removed++
		}
	}
	if removed > 0 {
		viewsActive.Sub(float64(removed))
		r.logger.Info("evicted idle views", "count", removed, "remaining", len(r.views))
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
