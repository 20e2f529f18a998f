// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"slices"
	"sync"

	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
)

// Registry holds the configured providers and picks one per request,
// failing over to the next healthy provider in registration order.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds p under its Name. Re-registering a name replaces the
// provider but keeps its position.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.Name()
	if _, ok := r.providers[name]; !ok {
		r.order = append(r.order, name)
	}
	r.providers[name] = p
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, aegiserr.New(aegiserr.CodeProviderNotFound,
			"provider not found: "+name, aegiserr.FieldProvider(name))
	}
	return p, nil
}

// Names returns registered provider names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Route returns preferred when it is registered and available, otherwise
// the first available provider in registration order.
func (r *Registry) Route(ctx context.Context, preferred string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.providers[preferred]; ok && p.Available(ctx) {
		return p, nil
	}
	for _, name := range r.order {
		if name == preferred {
			continue
		}
		if p := r.providers[name]; p.Available(ctx) {
			return p, nil
		}
	}
	return nil, aegiserr.New(aegiserr.CodeProviderAllUnavailable,
		"all providers unavailable: no healthy provider found", aegiserr.FieldProvider(preferred))
}

// Status reports every registered provider in registration order.
func (r *Registry) Status(ctx context.Context) []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Status, 0, len(r.order))
	for _, name := range r.order {
		st, err := r.providers[name].Status(ctx)
		if err != nil {
			st = Status{Provider: name, Message: err.Error()}
		}
		out = append(out, st)
	}
	return out
}

// Close shuts down all registered providers.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, name := range r.order {
		if err := r.providers[name].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return aegiserr.Join(errs...)
	}
	return nil
}

// Router is a Provider that picks a registered provider on every call, so a
// provider that goes unhealthy mid-session is skipped on the next turn.
type Router struct {
	reg       *Registry
	preferred string
}

var _ Provider = (*Router)(nil)

// Router returns a Provider backed by r that prefers the named provider.
func (r *Registry) Router(preferred string) *Router {
	return &Router{reg: r, preferred: preferred}
}

func (rt *Router) Name() string { return rt.preferred }

func (rt *Router) Available(ctx context.Context) bool {
	_, err := rt.reg.Route(ctx, rt.preferred)
	return err == nil
}

// Chat routes req. Model names are provider specific, so a request that
// fails over to another provider uses that provider's default model.
func (rt *Router) Chat(ctx context.Context, req ChatRequest) (<-chan ChatEvent, error) {
	p, err := rt.reg.Route(ctx, rt.preferred)
	if err != nil {
		return nil, err
	}
	if p.Name() != rt.preferred {
		req.Model = ""
	}
	return p.Chat(ctx, req)
}

func (rt *Router) Status(ctx context.Context) (Status, error) {
	p, err := rt.reg.Route(ctx, rt.preferred)
	if err != nil {
		return Status{Provider: rt.preferred, Message: err.Error()}, nil
	}
	return p.Status(ctx)
}

// Close is a no-op; the Registry owns the providers.
func (rt *Router) Close() error { return nil }
