package providers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Provider is the uniform surface over one external email and calendar service.
type Provider interface {
	Key() string
	Name() string

	AuthorizationURL(userID int64) (string, error)
	HandleCallback(ctx context.Context, code, state string) string
	HasValidToken(ctx context.Context, userID int64) (bool, error)
	RevokeToken(ctx context.Context, userID int64) error

	Emails(ctx context.Context, userID int64, maxResults int) ([]Email, error)
	Email(ctx context.Context, userID int64, messageID string) (Email, error)
	MarkEmailRead(ctx context.Context, userID int64, messageID string, isRead bool) error

	CalendarEvents(ctx context.Context, userID int64, query EventQuery) ([]CalendarEvent, error)
	CalendarEvent(ctx context.Context, userID int64, eventID string) (CalendarEvent, error)
	CreateEvent(ctx context.Context, userID int64, input EventInput) (CalendarEvent, error)
	UpdateEvent(ctx context.Context, userID int64, eventID string, input EventInput) (CalendarEvent, error)
	DeleteEvent(ctx context.Context, userID int64, eventID string) error
}

// CredentialManager is the slice of the OAuth token manager a provider relies on.
type CredentialManager interface {
	AuthorizationURL(userID int64) (string, error)
	HandleCallback(ctx context.Context, code, state string) string
	HasValidToken(ctx context.Context, userID int64) (bool, error)
	RevokeToken(ctx context.Context, userID int64) error
	Client(ctx context.Context, userID int64) (*http.Client, error)
}

// Registry resolves providers by their route key.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry indexes providers by lower-cased key. Later duplicates replace earlier ones.
func NewRegistry(providers ...Provider) *Registry {
	registry := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, provider := range providers {
		if provider == nil {
			continue
		}
		registry.providers[strings.ToLower(provider.Key())] = provider
	}
	return registry
}

// Lookup returns the provider registered under key.
func (r *Registry) Lookup(key string) (Provider, error) {
	if r != nil {
		if provider, ok := r.providers[strings.ToLower(strings.TrimSpace(key))]; ok {
			return provider, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, key)
}

// Keys lists registered provider keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.providers))
	for key := range r.providers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
