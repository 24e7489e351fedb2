package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/openmind-crm/backend/internal/users"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	// GoogleKey is the route key of the Google provider.
	GoogleKey = "google"

	defaultFetchConcurrency = 4
	defaultRequestTimeout   = 30 * time.Second
	defaultEmailResults     = 10
	defaultEventResults     = 50
	defaultEventWindow      = 30 * 24 * time.Hour
)

// GoogleConfig configures the Google provider.
type GoogleConfig struct {
	Manager CredentialManager
	// GmailEndpoint and CalendarEndpoint override the API base URLs.
	GmailEndpoint    string
	CalendarEndpoint string
	// Strict surfaces upstream listing failures as ErrProviderUnavailable instead of empty results.
	Strict           bool
	FetchConcurrency int
	RequestTimeout   time.Duration
	Clock            func() time.Time
	Logger           *zap.Logger
}

// GoogleProvider serves Gmail and Google Calendar data using the user's stored credential.
type GoogleProvider struct {
	manager          CredentialManager
	gmailEndpoint    string
	calendarEndpoint string
	strict           bool
	concurrency      int
	timeout          time.Duration
	now              func() time.Time
	logger           *zap.Logger
}

// NewGoogleProvider constructs the Google provider.
func NewGoogleProvider(cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("%w: google credential manager required", ErrInvalidProviderConfig)
	}
	concurrency := cfg.FetchConcurrency
	if concurrency <= 0 {
		concurrency = defaultFetchConcurrency
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoogleProvider{
		manager:          cfg.Manager,
		gmailEndpoint:    cfg.GmailEndpoint,
		calendarEndpoint: cfg.CalendarEndpoint,
		strict:           cfg.Strict,
		concurrency:      concurrency,
		timeout:          timeout,
		now:              clock,
		logger:           logger.With(zap.String("provider", users.ProviderGoogle)),
	}, nil
}

func (p *GoogleProvider) Key() string  { return GoogleKey }
func (p *GoogleProvider) Name() string { return users.ProviderGoogle }

func (p *GoogleProvider) AuthorizationURL(userID int64) (string, error) {
	return p.manager.AuthorizationURL(userID)
}

func (p *GoogleProvider) HandleCallback(ctx context.Context, code, state string) string {
	return p.manager.HandleCallback(ctx, code, state)
}

func (p *GoogleProvider) HasValidToken(ctx context.Context, userID int64) (bool, error) {
	return p.manager.HasValidToken(ctx, userID)
}

func (p *GoogleProvider) RevokeToken(ctx context.Context, userID int64) error {
	return p.manager.RevokeToken(ctx, userID)
}

func (p *GoogleProvider) Email(context.Context, int64, string) (Email, error) {
	return Email{}, notImplemented(p.Name(), OperationGetEmail)
}

func (p *GoogleProvider) MarkEmailRead(context.Context, int64, string, bool) error {
	return notImplemented(p.Name(), OperationMarkEmailRead)
}

func (p *GoogleProvider) CalendarEvent(context.Context, int64, string) (CalendarEvent, error) {
	return CalendarEvent{}, notImplemented(p.Name(), OperationGetEvent)
}

func (p *GoogleProvider) CreateEvent(context.Context, int64, EventInput) (CalendarEvent, error) {
	return CalendarEvent{}, notImplemented(p.Name(), OperationCreateEvent)
}

func (p *GoogleProvider) UpdateEvent(context.Context, int64, string, EventInput) (CalendarEvent, error) {
	return CalendarEvent{}, notImplemented(p.Name(), OperationUpdateEvent)
}

func (p *GoogleProvider) DeleteEvent(context.Context, int64, string) error {
	return notImplemented(p.Name(), OperationDeleteEvent)
}

func (p *GoogleProvider) clientOptions(client *http.Client, endpoint string) []option.ClientOption {
	options := []option.ClientOption{option.WithHTTPClient(client)}
	if endpoint != "" {
		options = append(options, option.WithEndpoint(endpoint))
	}
	return options
}

// listingFailed applies the best-effort policy to a failed upstream listing.
func (p *GoogleProvider) listingFailed(operation string, userID int64, err error) error {
	p.logger.Warn("google listing failed",
		zap.String("operation", operation),
		zap.Int64("user_id", userID),
		zap.Bool("strict", p.strict),
		zap.Error(err))
	if p.strict {
		return &UnavailableError{Provider: p.Name(), Operation: operation, Err: err}
	}
	return nil
}
