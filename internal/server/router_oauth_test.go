package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/openmind-crm/backend/internal/oauth"
	"github.com/openmind-crm/backend/internal/providers"
)

func decodeBody(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("failed to decode body %s: %v", body, err)
	}
	return payload
}

func TestAuthorizeReturnsURLAndState(t *testing.T) {
	google := newGoogleStub()
	google.authURL = "https://accounts.google.com/o/oauth2/auth?access_type=offline&state=abc.def.ghi"
	handler := newTestRouter(t, nil, google)

	recorder := performRequest(handler, http.MethodGet, "/oauth/google/authorize", "", true)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(t, recorder.Body.Bytes())
	if payload["authorizationUrl"] != google.authURL {
		t.Fatalf("unexpected authorization url %v", payload["authorizationUrl"])
	}
	if payload["state"] != "abc.def.ghi" || payload["provider"] != "Google" {
		t.Fatalf("unexpected payload %v", payload)
	}

	unauthorized := performRequest(handler, http.MethodGet, "/oauth/google/authorize", "", false)
	if unauthorized.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer token, got %d", unauthorized.Code)
	}
}

func TestCallbackRedirectsWithoutAuthentication(t *testing.T) {
	google := newGoogleStub()
	google.callbackTo = "http://localhost:4200/settings?connected=google"
	handler := newTestRouter(t, nil, google)

	recorder := performRequest(handler, http.MethodGet, "/oauth/google/callback?code=c1&state=s1", "", false)
	if recorder.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", recorder.Code)
	}
	if recorder.Header().Get("Location") != google.callbackTo {
		t.Fatalf("unexpected redirect target %q", recorder.Header().Get("Location"))
	}
	if google.lastCallback != [2]string{"c1", "s1"} {
		t.Fatalf("unexpected callback args %v", google.lastCallback)
	}

	performRequest(handler, http.MethodGet, "/oauth/google/callback?error=access_denied&code=c2&state=s2", "", false)
	if google.lastCallback[0] != "" {
		t.Fatalf("expected denied consent to drop the code, got %q", google.lastCallback[0])
	}
}

func TestUnknownProviderIsNotFound(t *testing.T) {
	handler := newTestRouter(t, nil)

	recorder := performRequest(handler, http.MethodGet, "/oauth/yahoo/status", "", true)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
	if decodeBody(t, recorder.Body.Bytes())["error"] != "unknown_provider" {
		t.Fatalf("unexpected body %s", recorder.Body.String())
	}
}

func TestStatusAndRevoke(t *testing.T) {
	google := newGoogleStub()
	google.connected = true
	handler := newTestRouter(t, nil, google)

	status := performRequest(handler, http.MethodGet, "/oauth/google/status", "", true)
	if status.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", status.Code)
	}
	if decodeBody(t, status.Body.Bytes())["isConnected"] != true {
		t.Fatalf("expected connected status, got %s", status.Body.String())
	}

	revoke := performRequest(handler, http.MethodDelete, "/oauth/google/revoke", "", true)
	if revoke.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", revoke.Code)
	}
	payload := decodeBody(t, revoke.Body.Bytes())
	if payload["revoked"] != true || payload["provider"] != "Google" {
		t.Fatalf("unexpected revoke payload %v", payload)
	}
}

func TestReauthorizationErrorsMapToForbidden(t *testing.T) {
	cases := map[string]string{
		oauth.ReasonTokenExpired:    "token_expired",
		oauth.ReasonRefreshRejected: "token_expired",
		oauth.ReasonNotConnected:    "not_connected",
	}
	for reason, code := range cases {
		t.Run(reason, func(t *testing.T) {
			google := newGoogleStub()
			google.err = &oauth.ReauthorizationRequiredError{Provider: "Google", Reason: reason}
			handler := newTestRouter(t, nil, google)

			recorder := performRequest(handler, http.MethodGet, "/oauth/google/emails", "", true)
			if recorder.Code != http.StatusForbidden {
				t.Fatalf("expected 403, got %d", recorder.Code)
			}
			payload := decodeBody(t, recorder.Body.Bytes())
			if payload["error"] != code {
				t.Fatalf("expected error %q, got %v", code, payload["error"])
			}
			if payload["requiresReauthorization"] != true || payload["provider"] != "Google" {
				t.Fatalf("unexpected payload %v", payload)
			}
			if payload["message"] == "" {
				t.Fatalf("expected message")
			}
		})
	}
}

func TestNotImplementedMapsTo501(t *testing.T) {
	handler := newTestRouter(t, nil)

	recorder := performRequest(handler, http.MethodGet, "/oauth/microsoft/status", "", true)
	if recorder.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", recorder.Code)
	}
	payload := decodeBody(t, recorder.Body.Bytes())
	if payload["error"] != "not_implemented" || payload["provider"] != "Microsoft" || payload["operation"] != providers.OperationStatus {
		t.Fatalf("unexpected payload %v", payload)
	}

	callback := performRequest(handler, http.MethodGet, "/oauth/microsoft/callback?code=x&state=y", "", false)
	if callback.Code != http.StatusFound || callback.Header().Get("Location") != "http://localhost:4200/error" {
		t.Fatalf("expected microsoft callback to redirect to error page, got %d %q", callback.Code, callback.Header().Get("Location"))
	}

	create := performRequest(handler, http.MethodPost, "/oauth/microsoft/calendar/events", `{"title":"x"}`, true)
	if create.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 for event creation, got %d", create.Code)
	}
}

func TestProviderUnavailableMapsTo502(t *testing.T) {
	google := newGoogleStub()
	google.err = &providers.UnavailableError{Provider: "Google", Operation: providers.OperationListEmails, Err: errors.New("503")}
	handler := newTestRouter(t, nil, google)

	recorder := performRequest(handler, http.MethodGet, "/oauth/google/emails", "", true)
	if recorder.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", recorder.Code)
	}
	if decodeBody(t, recorder.Body.Bytes())["error"] != "provider_unavailable" {
		t.Fatalf("unexpected body %s", recorder.Body.String())
	}
}

func TestListEmailsParsesMaxResults(t *testing.T) {
	google := newGoogleStub()
	google.emails = []providers.Email{{ID: "m1", Subject: "Hello", Provider: "Google"}}
	handler := newTestRouter(t, nil, google)

	recorder := performRequest(handler, http.MethodGet, "/oauth/google/emails", "", true)
	if recorder.Code != http.StatusOK || google.lastMax != defaultEmailPageSize {
		t.Fatalf("unexpected status %d or max %d", recorder.Code, google.lastMax)
	}
	var emails []providers.Email
	if err := json.Unmarshal(recorder.Body.Bytes(), &emails); err != nil || len(emails) != 1 || emails[0].ID != "m1" {
		t.Fatalf("unexpected emails %s", recorder.Body.String())
	}

	performRequest(handler, http.MethodGet, "/oauth/google/emails?maxResults=25", "", true)
	if google.lastMax != 25 {
		t.Fatalf("expected maxResults 25, got %d", google.lastMax)
	}

	bad := performRequest(handler, http.MethodGet, "/oauth/google/emails?maxResults=abc", "", true)
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed maxResults, got %d", bad.Code)
	}
}

func TestListEventsParsesWindow(t *testing.T) {
	google := newGoogleStub()
	handler := newTestRouter(t, nil, google)

	recorder := performRequest(handler, http.MethodGet, "/oauth/google/calendar/events?timeMin=2026-01-07T00:00:00Z&timeMax=2026-01-14T00:00:00Z&maxResults=20", "", true)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
	if !google.lastQuery.TimeMin.Equal(time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)) ||
		!google.lastQuery.TimeMax.Equal(time.Date(2026, 1, 14, 0, 0, 0, 0, time.UTC)) ||
		google.lastQuery.MaxResults != 20 {
		t.Fatalf("unexpected query %+v", google.lastQuery)
	}

	performRequest(handler, http.MethodGet, "/oauth/google/calendar/events", "", true)
	if !google.lastQuery.TimeMin.IsZero() || google.lastQuery.MaxResults != defaultEventPageSize {
		t.Fatalf("expected defaults to be left to the provider, got %+v", google.lastQuery)
	}

	bad := performRequest(handler, http.MethodGet, "/oauth/google/calendar/events?timeMin=yesterday", "", true)
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed timeMin, got %d", bad.Code)
	}
	inverted := performRequest(handler, http.MethodGet, "/oauth/google/calendar/events?timeMin=2026-01-14T00:00:00Z&timeMax=2026-01-07T00:00:00Z", "", true)
	if inverted.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted window, got %d", inverted.Code)
	}
}
