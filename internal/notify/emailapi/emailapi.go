// Package emailapi abstracts transactional email backends behind a
// common interface with primary/fallback selection.
package emailapi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Request is one email to be sent, backend-agnostic.
type Request struct {
	From    string
	To      []string
	Subject string
	Body    string // plain text
	HTML    string // optional HTML alternative
}

// Provider is implemented by each email backend.
type Provider interface {
	// Name returns the backend name, e.g. "resend" or "ses".
	Name() string

	// Send delivers the email through this backend.
	Send(ctx context.Context, req *Request) error

	// IsConfigured reports whether the backend has usable credentials.
	IsConfigured() bool
}

// Registry selects among registered backends: the primary first, then
// fallbacks in order when the primary is unconfigured or fails.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	primary   string
	fallback  []string
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{providers: map[string]Provider{}}
}

// Register adds a backend to the registry.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
	slog.Info("Registered email backend", "name", p.Name(), "configured", p.IsConfigured())
}

// SetPrimary selects the preferred backend by name.
func (r *Registry) SetPrimary(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("email backend %q not registered", name)
	}
	r.primary = name
	return nil
}

// SetFallback sets the fallback order used when the primary fails.
func (r *Registry) SetFallback(names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		if _, ok := r.providers[name]; !ok {
			return fmt.Errorf("email backend %q not registered", name)
		}
	}
	r.fallback = names
	return nil
}

// pick returns the first configured backend: primary, then fallbacks,
// then anything registered.
func (r *Registry) pick() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.providers[r.primary]; ok && p.IsConfigured() {
		return p, nil
	}
	for _, name := range r.fallback {
		if p, ok := r.providers[name]; ok && p.IsConfigured() {
			slog.Warn("Primary email backend unavailable, using fallback",
				"primary", r.primary,
				"fallback", name,
			)
			return p, nil
		}
	}
	for name, p := range r.providers {
		if p.IsConfigured() {
			slog.Warn("Using first available email backend", "name", name)
			return p, nil
		}
	}
	return nil, fmt.Errorf("no configured email backend available")
}

// Send delivers the email through the best available backend, trying
// fallbacks when the chosen backend fails.
func (r *Registry) Send(ctx context.Context, req *Request) error {
	p, err := r.pick()
	if err != nil {
		return err
	}

	sendErr := p.Send(ctx, req)
	if sendErr == nil {
		return nil
	}

	r.mu.RLock()
	fallbacks := r.fallback
	r.mu.RUnlock()

	for _, name := range fallbacks {
		r.mu.RLock()
		fb, ok := r.providers[name]
		r.mu.RUnlock()
		if !ok || !fb.IsConfigured() || fb.Name() == p.Name() {
			continue
		}
		slog.Warn("Email backend failed, trying fallback",
			"failed", p.Name(),
			"fallback", name,
			"error", sendErr,
		)
		if err := fb.Send(ctx, req); err == nil {
			return nil
		}
	}
	return sendErr
}

// List returns the names of every registered backend.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
