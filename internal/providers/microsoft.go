package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/openmind-crm/backend/internal/users"
	"go.uber.org/zap"
)

// MicrosoftKey is the route key of the Microsoft provider.
const MicrosoftKey = "microsoft"

// MicrosoftConfig configures the Microsoft provider placeholder.
type MicrosoftConfig struct {
	ErrorRedirect string
	Logger        *zap.Logger
}

// MicrosoftProvider exposes the provider surface for Microsoft accounts without
// an upstream integration. Every operation reports NotImplementedError.
type MicrosoftProvider struct {
	errorRedirect string
	logger        *zap.Logger
}

// NewMicrosoftProvider constructs the Microsoft placeholder.
func NewMicrosoftProvider(cfg MicrosoftConfig) (*MicrosoftProvider, error) {
	redirect := strings.TrimSpace(cfg.ErrorRedirect)
	if redirect == "" {
		return nil, fmt.Errorf("%w: microsoft error redirect required", ErrInvalidProviderConfig)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MicrosoftProvider{errorRedirect: redirect, logger: logger}, nil
}

func (p *MicrosoftProvider) Key() string  { return MicrosoftKey }
func (p *MicrosoftProvider) Name() string { return users.ProviderMicrosoft }

func (p *MicrosoftProvider) AuthorizationURL(int64) (string, error) {
	return "", notImplemented(p.Name(), OperationAuthorize)
}

// HandleCallback always sends the user to the error redirect.
func (p *MicrosoftProvider) HandleCallback(context.Context, string, string) string {
	p.logger.Warn("microsoft oauth callback received but provider is not implemented")
	return p.errorRedirect
}

func (p *MicrosoftProvider) HasValidToken(context.Context, int64) (bool, error) {
	return false, notImplemented(p.Name(), OperationStatus)
}

func (p *MicrosoftProvider) RevokeToken(context.Context, int64) error {
	return notImplemented(p.Name(), OperationRevoke)
}

func (p *MicrosoftProvider) Emails(context.Context, int64, int) ([]Email, error) {
	return nil, notImplemented(p.Name(), OperationListEmails)
}

func (p *MicrosoftProvider) Email(context.Context, int64, string) (Email, error) {
	return Email{}, notImplemented(p.Name(), OperationGetEmail)
}

func (p *MicrosoftProvider) MarkEmailRead(context.Context, int64, string, bool) error {
	return notImplemented(p.Name(), OperationMarkEmailRead)
}

func (p *MicrosoftProvider) CalendarEvents(context.Context, int64, EventQuery) ([]CalendarEvent, error) {
	return nil, notImplemented(p.Name(), OperationListEvents)
}

func (p *MicrosoftProvider) CalendarEvent(context.Context, int64, string) (CalendarEvent, error) {
	return CalendarEvent{}, notImplemented(p.Name(), OperationGetEvent)
}

func (p *MicrosoftProvider) CreateEvent(context.Context, int64, EventInput) (CalendarEvent, error) {
	return CalendarEvent{}, notImplemented(p.Name(), OperationCreateEvent)
}

func (p *MicrosoftProvider) UpdateEvent(context.Context, int64, string, EventInput) (CalendarEvent, error) {
	return CalendarEvent{}, notImplemented(p.Name(), OperationUpdateEvent)
}

func (p *MicrosoftProvider) DeleteEvent(context.Context, int64, string) error {
	return notImplemented(p.Name(), OperationDeleteEvent)
}
