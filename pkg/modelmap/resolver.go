package modelmap

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gatehouse-hq/gatehouse/pkg/fallback"
)

const (
	// defaultCacheTTL is how long remote-lookup resolutions stay memoized.
	defaultCacheTTL = 5 * time.Minute

	// defaultCacheSize bounds the memoization cache.
	defaultCacheSize = 1024
)

// Resolution is the outcome of resolving one client-visible model name: an
// ordered chain of fallback targets. A single-element chain is a plain alias
// or literal; a longer chain is a combo.
type Resolution struct {
	// Name is the client-visible name that was resolved
	Name string

	// Targets is the ordered (provider, model) fallback chain
	Targets []fallback.Target

	// Aliased reports whether the name matched the alias table (false for
	// literal fallthrough and remote lookups)
	Aliased bool
}

// LookupFunc resolves a name against a remote source (for example a provider
// model listing). It is only consulted for names absent from the alias table.
// Returning an empty chain means the source does not know the name.
type LookupFunc func(ctx context.Context, name string) ([]fallback.Target, error)

// InvalidNameError reports a model name the resolver cannot accept.
type InvalidNameError struct {
	// Name is the offending model name
	Name string
}

// Error implements the error interface.
func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid model name %q", e.Name)
}

// Resolver maps client-visible model names onto fallback target chains.
// Safe for concurrent use; the alias table can be swapped at runtime.
type Resolver struct {
	mu              sync.RWMutex
	table           map[string][]fallback.Target
	defaultProvider string

	lookup LookupFunc
	cache  *resolutionCache
	flight *flightGroup
	logger *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLookup installs a remote lookup consulted for names missing from the
// alias table, before the literal fallthrough.
func WithLookup(fn LookupFunc) ResolverOption {
	return func(r *Resolver) { r.lookup = fn }
}

// WithCache overrides the memoization cache TTL and capacity.
func WithCache(ttl time.Duration, maxEntries int) ResolverOption {
	return func(r *Resolver) {
		r.cache.close()
		r.cache = newResolutionCache(ttl, maxEntries)
	}
}

// NewResolver creates a resolver with the given default provider and alias
// table. The table maps client-visible names to ordered target chains; it may
// be nil.
func NewResolver(defaultProvider string, table map[string][]fallback.Target, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		table:           cloneTable(table),
		defaultProvider: defaultProvider,
		cache:           newResolutionCache(defaultCacheTTL, defaultCacheSize),
		flight:          newFlightGroup(),
		logger:          slog.Default().With("component", "modelmap"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve maps a client-visible model name to its target chain.
//
// Precedence: alias table, then memoized remote lookups, then the literal
// fallthrough (defaultProvider, name). The alias table is authoritative and
// never cached, so a table reload takes effect on the next request.
func (r *Resolver) Resolve(ctx context.Context, name string) (Resolution, error) {
	if name == "" {
		return Resolution{}, &InvalidNameError{Name: name}
	}

	r.mu.RLock()
	targets, ok := r.table[name]
	defaultProvider := r.defaultProvider
	r.mu.RUnlock()
	if ok {
		return Resolution{Name: name, Targets: cloneTargets(targets), Aliased: true}, nil
	}

	if r.lookup != nil {
		if res, ok := r.cache.get(name); ok {
			return res, nil
		}
		res, attached, err := r.flight.do(name, func() (Resolution, error) {
			found, err := r.lookup(ctx, name)
			if err != nil {
				return Resolution{}, err
			}
			if len(found) == 0 {
				return Resolution{}, nil
			}
			return Resolution{Name: name, Targets: found}, nil
		})
		if err != nil {
			r.logger.Warn("remote model lookup failed, falling through",
				"model", name, "error", err)
		} else if len(res.Targets) > 0 {
			if !attached {
				r.cache.set(name, res)
			}
			return res, nil
		}
	}

	return Resolution{
		Name:    name,
		Targets: []fallback.Target{{Provider: defaultProvider, Model: name}},
	}, nil
}

// SetTable replaces the alias table and invalidates memoized lookups. Called
// by configuration hot-reload.
func (r *Resolver) SetTable(table map[string][]fallback.Target) {
	r.mu.Lock()
	r.table = cloneTable(table)
	r.mu.Unlock()
	r.cache.clear()
	r.logger.Info("alias table replaced", "entries", len(table))
}

// Names returns the configured alias names, for diagnostics.
func (r *Resolver) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.table))
	for name := range r.table {
		names = append(names, name)
	}
	return names
}

// Close releases the resolver's background resources.
func (r *Resolver) Close() {
	r.cache.close()
}

func cloneTable(table map[string][]fallback.Target) map[string][]fallback.Target {
	out := make(map[string][]fallback.Target, len(table))
	for name, targets := range table {
		out[name] = cloneTargets(targets)
	}
	return out
}

func cloneTargets(targets []fallback.Target) []fallback.Target {
	out := make([]fallback.Target, len(targets))
	copy(out, targets)
	return out
}
