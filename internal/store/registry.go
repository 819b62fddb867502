package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// defaultScheme is used for DSNs without a "scheme://" prefix, which are
// treated as SQLite file paths.
const defaultScheme = "sqlite"

// Opener opens a Store for a DSN whose scheme it was registered under.
type Opener func(ctx context.Context, dsn string) (Store, error)

// Registry maps DSN schemes to store openers.
type Registry struct {
	mu      sync.RWMutex
	openers map[string]Opener
}

// NewRegistry creates an empty driver registry.
func NewRegistry() *Registry {
	return &Registry{
		openers: make(map[string]Opener),
	}
}

// DefaultRegistry returns a registry with the SQLite and PostgreSQL drivers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("sqlite", openSQLite)
	r.Register("postgres", openPostgres)
	r.Register("postgresql", openPostgres)
	return r
}

// Register adds an opener under the given scheme.
func (r *Registry) Register(scheme string, o Opener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openers[scheme] = o
}

// Open resolves the DSN scheme and opens the matching store.
func (r *Registry) Open(ctx context.Context, dsn string) (Store, error) {
	scheme := defaultScheme
	if i := strings.Index(dsn, "://"); i > 0 {
		scheme = strings.ToLower(dsn[:i])
	}

	r.mu.RLock()
	o, ok := r.openers[scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("store driver %q is not registered (available: %s)",
			scheme, strings.Join(r.Schemes(), ", "))
	}
	return o(ctx, dsn)
}

// Schemes returns the registered schemes, sorted by name.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemes := make([]string, 0, len(r.openers))
	for s := range r.openers {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}

// Open opens a store using the default registry.
func Open(ctx context.Context, dsn string) (Store, error) {
	return DefaultRegistry().Open(ctx, dsn)
}

func openSQLite(_ context.Context, dsn string) (Store, error) {
	s, err := NewSQLiteStore(strings.TrimPrefix(dsn, "sqlite://"))
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openPostgres(ctx context.Context, dsn string) (Store, error) {
	s, err := NewPostgresStore(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return s, nil
}
