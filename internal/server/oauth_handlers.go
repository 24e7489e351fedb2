package server

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openmind-crm/backend/internal/providers"
)

const (
	defaultEmailPageSize = 10
	maxEmailPageSize     = 500
	defaultEventPageSize = 50
	maxEventPageSize     = 2500
)

type markReadRequestPayload struct {
	IsRead *bool `json:"isRead"`
}

func (h *httpHandler) handleAuthorize(c *gin.Context) {
	provider := currentProvider(c)
	authorizationURL, err := provider.AuthorizationURL(currentUserID(c))
	if err != nil {
		h.writeProviderError(c, provider, err)
		return
	}
	state := ""
	if parsed, parseErr := url.Parse(authorizationURL); parseErr == nil {
		state = parsed.Query().Get("state")
	}
	c.JSON(http.StatusOK, gin.H{
		"authorizationUrl": authorizationURL,
		"state":            state,
		"provider":         provider.Name(),
	})
}

// handleOAuthCallback is reached by the provider's redirect, so it always answers with a redirect.
func (h *httpHandler) handleOAuthCallback(c *gin.Context) {
	provider := currentProvider(c)
	code := c.Query("code")
	if c.Query("error") != "" {
		code = ""
	}
	target := provider.HandleCallback(c.Request.Context(), code, c.Query("state"))
	c.Redirect(http.StatusFound, target)
}

func (h *httpHandler) handleStatus(c *gin.Context) {
	provider := currentProvider(c)
	connected, err := provider.HasValidToken(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeProviderError(c, provider, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider": provider.Name(), "isConnected": connected})
}

func (h *httpHandler) handleRevoke(c *gin.Context) {
	provider := currentProvider(c)
	if err := provider.RevokeToken(c.Request.Context(), currentUserID(c)); err != nil {
		h.writeProviderError(c, provider, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider": provider.Name(), "revoked": true})
}

func (h *httpHandler) handleListEmails(c *gin.Context) {
	provider := currentProvider(c)
	maxResults, ok := queryLimit(c, "maxResults", defaultEmailPageSize, maxEmailPageSize)
	if !ok {
		return
	}
	emails, err := provider.Emails(c.Request.Context(), currentUserID(c), maxResults)
	if err != nil {
		h.writeProviderError(c, provider, err)
		return
	}
	c.JSON(http.StatusOK, emails)
}

func (h *httpHandler) handleGetEmail(c *gin.Context) {
	provider := currentProvider(c)
	email, err := provider.Email(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		h.writeProviderError(c, provider, err)
		return
	}
	c.JSON(http.StatusOK, email)
}

func (h *httpHandler) handleMarkEmailRead(c *gin.Context) {
	provider := currentProvider(c)
	var request markReadRequestPayload
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
	}
	isRead := true
	if request.IsRead != nil {
		isRead = *request.IsRead
	}
	if err := provider.MarkEmailRead(c.Request.Context(), currentUserID(c), c.Param("id"), isRead); err != nil {
		h.writeProviderError(c, provider, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "isRead": isRead})
}

func (h *httpHandler) handleListEvents(c *gin.Context) {
	provider := currentProvider(c)
	query := providers.EventQuery{}
	var ok bool
	if query.TimeMin, ok = queryTime(c, "timeMin"); !ok {
		return
	}
	if query.TimeMax, ok = queryTime(c, "timeMax"); !ok {
		return
	}
	if !query.TimeMin.IsZero() && !query.TimeMax.IsZero() && !query.TimeMax.After(query.TimeMin) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "timeMax must be after timeMin"})
		return
	}
	if query.MaxResults, ok = queryLimit(c, "maxResults", defaultEventPageSize, maxEventPageSize); !ok {
		return
	}
	events, err := provider.CalendarEvents(c.Request.Context(), currentUserID(c), query)
	if err != nil {
		h.writeProviderError(c, provider, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func (h *httpHandler) handleGetEvent(c *gin.Context) {
	provider := currentProvider(c)
	event, err := provider.CalendarEvent(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		h.writeProviderError(c, provider, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func (h *httpHandler) handleCreateEvent(c *gin.Context) {
	provider := currentProvider(c)
	var input providers.EventInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	event, err := provider.CreateEvent(c.Request.Context(), currentUserID(c), input)
	if err != nil {
		h.writeProviderError(c, provider, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

func (h *httpHandler) handleUpdateEvent(c *gin.Context) {
	provider := currentProvider(c)
	var input providers.EventInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	event, err := provider.UpdateEvent(c.Request.Context(), currentUserID(c), c.Param("id"), input)
	if err != nil {
		h.writeProviderError(c, provider, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func (h *httpHandler) handleDeleteEvent(c *gin.Context) {
	provider := currentProvider(c)
	if err := provider.DeleteEvent(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		h.writeProviderError(c, provider, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// queryLimit parses a positive integer query parameter, writing a 400 response when malformed.
func queryLimit(c *gin.Context, name string, fallback, limit int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 || value > limit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": name + " must be between 1 and " + strconv.Itoa(limit)})
		return 0, false
	}
	return value, true
}

// queryTime parses an optional RFC 3339 query parameter, writing a 400 response when malformed.
func queryTime(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, true
	}
	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": name + " must be an RFC 3339 timestamp"})
		return time.Time{}, false
	}
	return value, true
}
