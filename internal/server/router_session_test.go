package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/openmind-crm/backend/internal/session"
	"github.com/openmind-crm/backend/internal/users"
)

func TestLoginReturnsSession(t *testing.T) {
	expiresAt := time.Date(2026, 1, 8, 12, 0, 0, 0, time.UTC)
	sessions := &stubSessionService{session: session.Session{
		Token:     "session-token",
		ExpiresAt: expiresAt,
		User:      session.UserProfile{ID: 7, Email: "ada@example.com", FirstName: "Ada", HasGoogleAccess: true},
	}}
	handler := newTestRouter(t, sessions)

	recorder := performRequest(handler, http.MethodPost, "/auth/login", `{"email":"ada@example.com","password":"secret"}`, false)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
	var result session.Session
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode session: %v", err)
	}
	if result.Token != "session-token" || !result.ExpiresAt.Equal(expiresAt) || !result.User.HasGoogleAccess {
		t.Fatalf("unexpected session %+v", result)
	}
}

func TestLoginRejectsBadInput(t *testing.T) {
	sessions := &stubSessionService{loginErr: fmt.Errorf("%w: wrong password", session.ErrAuthentication)}
	handler := newTestRouter(t, sessions)

	missing := performRequest(handler, http.MethodPost, "/auth/login", `{"email":"ada@example.com"}`, false)
	if missing.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing password, got %d", missing.Code)
	}

	wrong := performRequest(handler, http.MethodPost, "/auth/login", `{"email":"ada@example.com","password":"nope"}`, false)
	if wrong.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", wrong.Code)
	}
}

func TestRegisterSignsInNewUser(t *testing.T) {
	sessions := &stubSessionService{session: session.Session{Token: "fresh-token"}}
	handler := newTestRouter(t, sessions)

	recorder := performRequest(handler, http.MethodPost, "/auth/register",
		`{"email":"grace@example.com","password":"secret","firstName":"Grace","lastName":"Hopper"}`, false)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
	if len(sessions.registered) != 1 || sessions.registered[0].FirstName != "Grace" {
		t.Fatalf("unexpected registrations %+v", sessions.registered)
	}
	if decodeBody(t, recorder.Body.Bytes())["token"] != "fresh-token" {
		t.Fatalf("expected session token in body, got %s", recorder.Body.String())
	}
}

func TestRegisterMapsFailures(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "duplicate email", err: session.ErrEmailTaken, status: http.StatusConflict, code: "email_taken"},
		{name: "missing fields", err: session.ErrInvalidRegistration, status: http.StatusBadRequest, code: "invalid_request"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			handler := newTestRouter(t, &stubSessionService{registerErr: testCase.err})
			recorder := performRequest(handler, http.MethodPost, "/auth/register", `{"email":"grace@example.com"}`, false)
			if recorder.Code != testCase.status {
				t.Fatalf("expected %d, got %d", testCase.status, recorder.Code)
			}
			if decodeBody(t, recorder.Body.Bytes())["error"] != testCase.code {
				t.Fatalf("unexpected body %s", recorder.Body.String())
			}
		})
	}
}

func TestGoogleLoginRequiresIDToken(t *testing.T) {
	handler := newTestRouter(t, &stubSessionService{session: session.Session{Token: "google-session"}})

	missing := performRequest(handler, http.MethodPost, "/auth/google-login", `{}`, false)
	if missing.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", missing.Code)
	}

	recorder := performRequest(handler, http.MethodPost, "/auth/google-login", `{"idToken":"id-token"}`, false)
	if recorder.Code != http.StatusOK || decodeBody(t, recorder.Body.Bytes())["token"] != "google-session" {
		t.Fatalf("unexpected response %d %s", recorder.Code, recorder.Body.String())
	}
}

func TestMeReturnsCurrentProfile(t *testing.T) {
	sessions := &stubSessionService{profile: session.UserProfile{Email: "ada@example.com", HasGoogleAccess: true}}
	handler := newTestRouter(t, sessions)

	recorder := performRequest(handler, http.MethodGet, "/auth/me", "", true)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
	payload := decodeBody(t, recorder.Body.Bytes())
	if payload["id"] != float64(7) || payload["hasGoogleAccess"] != true {
		t.Fatalf("unexpected profile %v", payload)
	}

	gone := newTestRouter(t, &stubSessionService{lookupErr: users.ErrUserNotFound})
	if code := performRequest(gone, http.MethodGet, "/auth/me", "", true).Code; code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deleted user, got %d", code)
	}
}

func TestHealthz(t *testing.T) {
	handler := newTestRouter(t, nil)
	if code := performRequest(handler, http.MethodGet, "/healthz", "", false).Code; code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
}
