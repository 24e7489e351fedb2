package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openmind-crm/backend/internal/users"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTokenLifetime  = time.Hour
	defaultRefreshTimeout = 30 * time.Second
)

// TokenStore persists one credential per user and provider.
type TokenStore interface {
	OAuthToken(ctx context.Context, userID int64, provider string) (users.OAuthToken, error)
	UpsertOAuthToken(ctx context.Context, token *users.OAuthToken) error
	// UpdateRefreshedOAuthToken replaces the credential only while it still holds previousRefreshToken,
	// returning users.ErrTokenNotFound otherwise.
	UpdateRefreshedOAuthToken(ctx context.Context, token *users.OAuthToken, previousRefreshToken string) error
	DeleteOAuthToken(ctx context.Context, userID int64, provider string) error
}

// ManagerConfig describes one provider integration.
type ManagerConfig struct {
	Provider             string
	OAuth2               *oauth2.Config
	Store                TokenStore
	State                *StateCodec
	SuccessRedirect      string
	ErrorRedirect        string
	HTTPClient           *http.Client
	Clock                func() time.Time
	Logger               *zap.Logger
	DefaultTokenLifetime time.Duration
	// RefreshTimeout bounds a refresh, which outlives the request that started it.
	RefreshTimeout time.Duration
}

// Manager owns the credential lifecycle for a single provider: consent URL,
// code exchange, expiry checks, silent refresh and revocation.
type Manager struct {
	provider        string
	oauth           *oauth2.Config
	store           TokenStore
	state           *StateCodec
	successRedirect string
	errorRedirect   string
	httpClient      *http.Client
	now             func() time.Time
	logger          *zap.Logger
	defaultLifetime time.Duration
	refreshTimeout  time.Duration
	refreshGroup    singleflight.Group
}

// NewManager validates cfg and constructs a Manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	provider := strings.TrimSpace(cfg.Provider)
	switch {
	case provider == "":
		return nil, fmt.Errorf("%w: provider name required", ErrInvalidManagerConfig)
	case cfg.OAuth2 == nil || strings.TrimSpace(cfg.OAuth2.ClientID) == "":
		return nil, fmt.Errorf("%w: oauth2 client id required", ErrInvalidManagerConfig)
	case cfg.Store == nil:
		return nil, fmt.Errorf("%w: token store required", ErrInvalidManagerConfig)
	case cfg.State == nil:
		return nil, fmt.Errorf("%w: state codec required", ErrInvalidManagerConfig)
	case strings.TrimSpace(cfg.SuccessRedirect) == "" || strings.TrimSpace(cfg.ErrorRedirect) == "":
		return nil, fmt.Errorf("%w: success and error redirects required", ErrInvalidManagerConfig)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	lifetime := cfg.DefaultTokenLifetime
	if lifetime <= 0 {
		lifetime = defaultTokenLifetime
	}
	refreshTimeout := cfg.RefreshTimeout
	if refreshTimeout <= 0 {
		refreshTimeout = defaultRefreshTimeout
	}
	return &Manager{
		provider:        provider,
		oauth:           cfg.OAuth2,
		store:           cfg.Store,
		state:           cfg.State,
		successRedirect: cfg.SuccessRedirect,
		errorRedirect:   cfg.ErrorRedirect,
		httpClient:      cfg.HTTPClient,
		now:             clock,
		logger:          logger.With(zap.String("provider", provider)),
		defaultLifetime: lifetime,
		refreshTimeout:  refreshTimeout,
	}, nil
}

// AuthorizationURL returns the consent URL for userID. Offline access and a
// forced consent prompt are requested so the provider issues a refresh token.
func (m *Manager) AuthorizationURL(userID int64) (string, error) {
	state, err := m.state.Encode(userID, m.provider)
	if err != nil {
		return "", err
	}
	return m.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// HandleCallback completes the authorization flow and returns the redirect target.
// Every failure is logged and mapped to the error redirect; no record is written.
func (m *Manager) HandleCallback(ctx context.Context, code, state string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		m.logger.Warn("oauth callback missing code")
		return m.errorRedirect
	}
	userID, err := m.state.Decode(state, m.provider)
	if err != nil {
		m.logger.Warn("oauth callback state rejected", zap.Error(err))
		return m.errorRedirect
	}

	token, err := m.oauth.Exchange(m.clientContext(ctx), code)
	if err != nil {
		m.logger.Warn("oauth code exchange failed", zap.Int64("user_id", userID), zap.Error(err))
		return m.errorRedirect
	}

	refreshToken := token.RefreshToken
	if refreshToken == "" {
		existing, loadErr := m.store.OAuthToken(ctx, userID, m.provider)
		if loadErr != nil && !errors.Is(loadErr, users.ErrTokenNotFound) {
			m.logger.Error("oauth callback failed to load existing credential", zap.Int64("user_id", userID), zap.Error(loadErr))
			return m.errorRedirect
		}
		refreshToken = existing.RefreshToken
	}

	record := users.OAuthToken{
		UserID:       userID,
		Provider:     m.provider,
		AccessToken:  token.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    m.expiryOf(token),
		Scopes:       users.JoinScopes(m.oauth.Scopes),
	}
	if err := m.store.UpsertOAuthToken(ctx, &record); err != nil {
		m.logger.Error("oauth callback failed to store credential", zap.Int64("user_id", userID), zap.Error(err))
		return m.errorRedirect
	}

	m.logger.Info("oauth provider connected",
		zap.Int64("user_id", userID),
		zap.Bool("has_refresh_token", refreshToken != ""))
	return m.successRedirect
}

// HasValidToken reports whether a stored, unexpired access token exists. It never refreshes.
func (m *Manager) HasValidToken(ctx context.Context, userID int64) (bool, error) {
	record, err := m.store.OAuthToken(ctx, userID, m.provider)
	if errors.Is(err, users.ErrTokenNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return record.AccessToken != "" && !record.Expired(m.now()), nil
}

// RevokeToken deletes the stored credential. Revoking a missing credential succeeds.
func (m *Manager) RevokeToken(ctx context.Context, userID int64) error {
	if err := m.store.DeleteOAuthToken(ctx, userID, m.provider); err != nil {
		return err
	}
	m.logger.Info("oauth credential revoked", zap.Int64("user_id", userID))
	return nil
}

// Token returns a usable credential for userID, refreshing it when expired.
func (m *Manager) Token(ctx context.Context, userID int64) (*oauth2.Token, error) {
	record, err := m.store.OAuthToken(ctx, userID, m.provider)
	if errors.Is(err, users.ErrTokenNotFound) {
		return nil, reauthorizationRequired(m.provider, ReasonNotConnected, err)
	}
	if err != nil {
		return nil, err
	}
	if record.AccessToken != "" && !record.Expired(m.now()) {
		return toOAuth2Token(record), nil
	}
	if record.RefreshToken == "" {
		return nil, reauthorizationRequired(m.provider, ReasonTokenExpired, nil)
	}

	// The shared refresh runs detached from any single caller; each caller still stops waiting
	// when its own context ends.
	key := fmt.Sprintf("%d:%s", userID, m.provider)
	results := m.refreshGroup.DoChan(key, func() (interface{}, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
		defer cancel()
		return m.refresh(refreshCtx, record)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-results:
		if result.Err != nil {
			return nil, result.Err
		}
		refreshed := *result.Val.(*oauth2.Token)
		return &refreshed, nil
	}
}

// Client returns an HTTP client that authenticates requests with the user's credential.
func (m *Manager) Client(ctx context.Context, userID int64) (*http.Client, error) {
	token, err := m.Token(ctx, userID)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(m.clientContext(ctx), oauth2.StaticTokenSource(token)), nil
}

func (m *Manager) refresh(ctx context.Context, record users.OAuthToken) (*oauth2.Token, error) {
	source := m.oauth.TokenSource(m.clientContext(ctx), &oauth2.Token{RefreshToken: record.RefreshToken})
	refreshed, err := source.Token()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			m.logger.Warn("oauth refresh interrupted", zap.Int64("user_id", record.UserID), zap.Error(err))
			return nil, fmt.Errorf("oauth: refresh %s credential: %w", m.provider, err)
		}
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
			retrieveErr.Response.StatusCode >= http.StatusBadRequest &&
			retrieveErr.Response.StatusCode < http.StatusInternalServerError {
			m.logger.Warn("oauth refresh rejected, deleting credential",
				zap.Int64("user_id", record.UserID),
				zap.Int("status", retrieveErr.Response.StatusCode),
				zap.String("error_code", retrieveErr.ErrorCode))
			if deleteErr := m.store.DeleteOAuthToken(ctx, record.UserID, m.provider); deleteErr != nil {
				m.logger.Error("oauth failed to delete rejected credential", zap.Int64("user_id", record.UserID), zap.Error(deleteErr))
			}
			return nil, reauthorizationRequired(m.provider, ReasonRefreshRejected, err)
		}
		m.logger.Warn("oauth refresh failed", zap.Int64("user_id", record.UserID), zap.Error(err))
		return nil, reauthorizationRequired(m.provider, ReasonRefreshFailed, err)
	}

	updated := record
	updated.AccessToken = refreshed.AccessToken
	if refreshed.RefreshToken != "" {
		updated.RefreshToken = refreshed.RefreshToken
	}
	updated.ExpiresAt = m.expiryOf(refreshed)
	if err := m.store.UpdateRefreshedOAuthToken(ctx, &updated, record.RefreshToken); err != nil {
		if errors.Is(err, users.ErrTokenNotFound) {
			m.logger.Info("oauth credential revoked during refresh, discarding refreshed token", zap.Int64("user_id", record.UserID))
			return nil, reauthorizationRequired(m.provider, ReasonNotConnected, err)
		}
		return nil, err
	}
	m.logger.Debug("oauth credential refreshed",
		zap.Int64("user_id", record.UserID),
		zap.Time("expires_at", updated.ExpiresAt))
	return toOAuth2Token(updated), nil
}

func (m *Manager) expiryOf(token *oauth2.Token) time.Time {
	if token.Expiry.IsZero() {
		return m.now().UTC().Add(m.defaultLifetime)
	}
	return token.Expiry.UTC()
}

func (m *Manager) clientContext(ctx context.Context) context.Context {
	if m.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

func toOAuth2Token(record users.OAuthToken) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  record.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: record.RefreshToken,
		Expiry:       record.ExpiresAt,
	}
}
