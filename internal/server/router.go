package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/openmind-crm/backend/internal/auth"
	"github.com/openmind-crm/backend/internal/oauth"
	"github.com/openmind-crm/backend/internal/providers"
	"github.com/openmind-crm/backend/internal/session"
	"go.uber.org/zap"
)

const (
	userIDContextKey   = "openmind_user_id"
	providerContextKey = "openmind_provider"
)

var (
	errMissingSessionService = errors.New("session service dependency required")
	errMissingProviders      = errors.New("provider registry dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

// SessionService authenticates users and loads profiles.
type SessionService interface {
	Login(ctx context.Context, email, password string) (session.Session, error)
	Register(ctx context.Context, request session.RegisterRequest) (session.UserProfile, error)
	LoginWithGoogle(ctx context.Context, idToken string) (session.Session, error)
	UserByID(ctx context.Context, userID int64) (session.UserProfile, error)
	ValidateSession(ctx context.Context, token string) (session.UserProfile, error)
}

// ProviderRegistry resolves providers by route key.
type ProviderRegistry interface {
	Lookup(key string) (providers.Provider, error)
}

type Dependencies struct {
	Sessions       SessionService
	Providers      ProviderRegistry
	AllowedOrigins []string
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionService
	}
	if deps.Providers == nil {
		return nil, errMissingProviders
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:  deps.Sessions,
		providers: deps.Providers,
		logger:    logger,
	}

	router.GET("/healthz", handler.handleHealth)

	router.POST("/auth/login", handler.handleLogin)
	router.POST("/auth/register", handler.handleRegister)
	router.POST("/auth/google-login", handler.handleGoogleLogin)
	router.GET("/auth/me", handler.authorizeRequest, handler.handleMe)

	public := router.Group("/oauth/:provider", handler.resolveProvider)
	public.GET("/callback", handler.handleOAuthCallback)

	protected := router.Group("/oauth/:provider", handler.authorizeRequest, handler.resolveProvider)
	protected.GET("/authorize", handler.handleAuthorize)
	protected.GET("/status", handler.handleStatus)
	protected.DELETE("/revoke", handler.handleRevoke)
	protected.GET("/emails", handler.handleListEmails)
	protected.GET("/emails/:id", handler.handleGetEmail)
	protected.POST("/emails/:id/read", handler.handleMarkEmailRead)
	protected.GET("/calendar/events", handler.handleListEvents)
	protected.POST("/calendar/events", handler.handleCreateEvent)
	protected.GET("/calendar/events/:id", handler.handleGetEvent)
	protected.PUT("/calendar/events/:id", handler.handleUpdateEvent)
	protected.DELETE("/calendar/events/:id", handler.handleDeleteEvent)

	return router, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	origins := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			config.AllowAllOrigins = true
			config.AllowCredentials = false
			origins = nil
			break
		}
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	if !config.AllowAllOrigins {
		if len(origins) == 0 {
			origins = []string{"http://localhost:4200"}
		}
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

type httpHandler struct {
	sessions  SessionService
	providers ProviderRegistry
	logger    *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := auth.BearerToken(c.GetHeader("Authorization"))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": errInvalidAuthorization.Error()})
		return
	}
	profile, err := h.sessions.ValidateSession(c.Request.Context(), token)
	if err != nil {
		if !errors.Is(err, session.ErrAuthentication) {
			h.logger.Error("session lookup failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
			return
		}
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "session token is invalid or expired"})
		return
	}
	c.Set(userIDContextKey, profile.ID)
	c.Next()
}

func (h *httpHandler) resolveProvider(c *gin.Context) {
	provider, err := h.providers.Lookup(c.Param("provider"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown_provider", "message": err.Error()})
		return
	}
	c.Set(providerContextKey, provider)
	c.Next()
}

func currentUserID(c *gin.Context) int64 {
	return c.GetInt64(userIDContextKey)
}

func currentProvider(c *gin.Context) providers.Provider {
	value, _ := c.Get(providerContextKey)
	provider, _ := value.(providers.Provider)
	return provider
}

// writeProviderError maps gateway and token lifecycle errors to their HTTP representation.
func (h *httpHandler) writeProviderError(c *gin.Context, provider providers.Provider, err error) {
	var reauth *oauth.ReauthorizationRequiredError
	var notImplemented *providers.NotImplementedError
	switch {
	case errors.As(err, &reauth):
		c.JSON(http.StatusForbidden, gin.H{
			"error":                   reauth.Code(),
			"message":                 reauthorizationMessage(provider.Name(), reauth.Code()),
			"provider":                provider.Name(),
			"requiresReauthorization": true,
		})
	case errors.As(err, &notImplemented):
		c.JSON(http.StatusNotImplemented, gin.H{
			"error":     "not_implemented",
			"message":   fmt.Sprintf("%s integration does not support %s yet", provider.Name(), notImplemented.Operation),
			"provider":  provider.Name(),
			"operation": notImplemented.Operation,
		})
	case errors.Is(err, providers.ErrProviderUnavailable):
		h.logger.Warn("provider unavailable", zap.String("provider", provider.Name()), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "provider_unavailable", "provider": provider.Name()})
	default:
		h.logger.Error("provider request failed", zap.String("provider", provider.Name()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func reauthorizationMessage(provider, code string) string {
	if code == oauth.ReasonNotConnected {
		return fmt.Sprintf("%s account is not connected. Please connect it to continue.", provider)
	}
	return fmt.Sprintf("Your %s authorization has expired. Please reconnect your account.", provider)
}
