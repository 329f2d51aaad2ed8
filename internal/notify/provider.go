package notify

import (
	"context"
	"errors"
)

// ErrRateLimited marks a send rejected by rate limiting. Rate-limited
// sends fail immediately and never consume retry attempts.
var ErrRateLimited = errors.New("rate limit exceeded")

// Provider delivers notifications over one channel. Implementations
// select mock versus live transport at construction time, not per send.
type Provider interface {
	// Channel returns the delivery channel this provider handles.
	Channel() Channel

	// Send delivers the notification to the recipient.
	Send(ctx context.Context, n *Notification, r *Recipient) error

	// ValidateRecipient reports whether the recipient has the contact
	// fields this channel needs.
	ValidateRecipient(r *Recipient) bool
}

// ProviderRegistry maps delivery channels to their providers.
type ProviderRegistry struct {
	providers map[Channel]Provider
}

// NewProviderRegistry creates an empty registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: map[Channel]Provider{}}
}

// Register adds a provider, replacing any existing one for its channel.
func (r *ProviderRegistry) Register(p Provider) {
	r.providers[p.Channel()] = p
}

// Get retrieves the provider for a channel.
func (r *ProviderRegistry) Get(ch Channel) (Provider, bool) {
	p, ok := r.providers[ch]
	return p, ok
}

// List returns all registered channels.
func (r *ProviderRegistry) List() []Channel {
	channels := make([]Channel, 0, len(r.providers))
	for ch := range r.providers {
		channels = append(channels, ch)
	}
	return channels
}
