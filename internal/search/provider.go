// Package search defines the suggestion source contract and its
// implementations.
package search

import (
	"context"

	"github.com/sst/mentions/internal/trigger"
)

// Candidate is a single suggestion. Providers return candidates already
// ordered; consumers never re-sort them.
type Candidate struct {
	ID        string       `json:"id"`
	Label     string       `json:"label"`
	Kind      trigger.Kind `json:"kind"`
	SourceRef string       `json:"sourceRef,omitempty"`
	Detail    string       `json:"detail,omitempty"`
}

// Provider returns ranked candidates for a query. Implementations must honour
// ctx cancellation.
type Provider interface {
	Search(ctx context.Context, kind trigger.Kind, query string) ([]Candidate, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, kind trigger.Kind, query string) ([]Candidate, error)

func (f ProviderFunc) Search(ctx context.Context, kind trigger.Kind, query string) ([]Candidate, error) {
	return f(ctx, kind, query)
}

// Router picks a provider per trigger kind. Kinds without a provider yield
// no candidates.
type Router struct {
	providers map[trigger.Kind]Provider
}

func NewRouter() *Router {
	return &Router{providers: make(map[trigger.Kind]Provider)}
}

// Handle binds p to kind, replacing any previous binding.
func (r *Router) Handle(kind trigger.Kind, p Provider) *Router {
	r.providers[kind] = p
	return r
}

// Provider returns the provider bound to kind.
func (r *Router) Provider(kind trigger.Kind) (Provider, bool) {
	p, ok := r.providers[kind]
	return p, ok
}

func (r *Router) Search(ctx context.Context, kind trigger.Kind, query string) ([]Candidate, error) {
	p, ok := r.providers[kind]
	if !ok {
		return nil, nil
	}
	return p.Search(ctx, kind, query)
}

// Limit truncates the results of p to at most n candidates.
func Limit(p Provider, n int) Provider {
	if n <= 0 {
		return p
	}
	return ProviderFunc(func(ctx context.Context, kind trigger.Kind, query string) ([]Candidate, error) {
		items, err := p.Search(ctx, kind, query)
		if len(items) > n {
			items = items[:n]
		}
		return items, err
	})
}
