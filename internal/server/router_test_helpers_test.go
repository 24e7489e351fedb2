package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/openmind-crm/backend/internal/providers"
	"github.com/openmind-crm/backend/internal/session"
	"github.com/openmind-crm/backend/internal/users"
	"go.uber.org/zap"
)

const (
	testBearerToken   = "Bearer valid-token"
	testSessionUserID = 7
)

type stubSessionService struct {
	session     session.Session
	profile     session.UserProfile
	loginErr    error
	registerErr error
	googleErr   error
	lookupErr   error
	validateErr error
	// validatedUserID overrides the user resolved from a bearer token.
	validatedUserID int64
	registered      []session.RegisterRequest
}

func (s *stubSessionService) Login(context.Context, string, string) (session.Session, error) {
	return s.session, s.loginErr
}

func (s *stubSessionService) Register(_ context.Context, request session.RegisterRequest) (session.UserProfile, error) {
	s.registered = append(s.registered, request)
	return s.profile, s.registerErr
}

func (s *stubSessionService) LoginWithGoogle(context.Context, string) (session.Session, error) {
	return s.session, s.googleErr
}

func (s *stubSessionService) UserByID(_ context.Context, userID int64) (session.UserProfile, error) {
	if s.lookupErr != nil {
		return session.UserProfile{}, s.lookupErr
	}
	profile := s.profile
	profile.ID = userID
	return profile, nil
}

func (s *stubSessionService) ValidateSession(context.Context, string) (session.UserProfile, error) {
	if s.validateErr != nil {
		return session.UserProfile{}, s.validateErr
	}
	userID := s.validatedUserID
	if userID == 0 {
		userID = testSessionUserID
	}
	return session.UserProfile{ID: userID, Email: "ada@example.com", IsActive: true}, nil
}

// stubProvider embeds a Microsoft placeholder for the operations a test does not override.
type stubProvider struct {
	providers.Provider
	key          string
	name         string
	authURL      string
	callbackTo   string
	connected    bool
	err          error
	emails       []providers.Email
	events       []providers.CalendarEvent
	lastQuery    providers.EventQuery
	lastMax      int
	lastCallback [2]string
}

func (p *stubProvider) Key() string  { return p.key }
func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) AuthorizationURL(int64) (string, error) {
	return p.authURL, p.err
}

func (p *stubProvider) HandleCallback(_ context.Context, code, state string) string {
	p.lastCallback = [2]string{code, state}
	return p.callbackTo
}

func (p *stubProvider) HasValidToken(context.Context, int64) (bool, error) {
	return p.connected, p.err
}

func (p *stubProvider) RevokeToken(context.Context, int64) error {
	return p.err
}

func (p *stubProvider) Emails(_ context.Context, _ int64, maxResults int) ([]providers.Email, error) {
	p.lastMax = maxResults
	return p.emails, p.err
}

func (p *stubProvider) CalendarEvents(_ context.Context, _ int64, query providers.EventQuery) ([]providers.CalendarEvent, error) {
	p.lastQuery = query
	return p.events, p.err
}

func newTestRouter(t *testing.T, sessions SessionService, registered ...providers.Provider) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	microsoft, err := providers.NewMicrosoftProvider(providers.MicrosoftConfig{ErrorRedirect: "http://localhost:4200/error"})
	if err != nil {
		t.Fatalf("failed to build microsoft provider: %v", err)
	}
	all := append([]providers.Provider{microsoft}, registered...)
	if sessions == nil {
		sessions = &stubSessionService{}
	}
	handler, err := NewHTTPHandler(Dependencies{
		Sessions:       sessions,
		Providers:      providers.NewRegistry(all...),
		AllowedOrigins: []string{"http://localhost:4200"},
		Logger:         zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return handler
}

func newGoogleStub() *stubProvider {
	fallback, _ := providers.NewMicrosoftProvider(providers.MicrosoftConfig{ErrorRedirect: "unused"})
	return &stubProvider{Provider: fallback, key: "google", name: users.ProviderGoogle}
}

func performRequest(handler http.Handler, method, path, body string, authorized bool) *httptest.ResponseRecorder {
	var request *http.Request
	if body == "" {
		request = httptest.NewRequest(method, path, http.NoBody)
	} else {
		request = httptest.NewRequest(method, path, strings.NewReader(body))
		request.Header.Set("Content-Type", "application/json")
	}
	if authorized {
		request.Header.Set("Authorization", testBearerToken)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}
