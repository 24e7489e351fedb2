package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/openmind-crm/backend/internal/session"
	"github.com/openmind-crm/backend/internal/users"
	"go.uber.org/zap"
)

type loginRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type googleLoginRequestPayload struct {
	IDToken string `json:"idToken"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Email) == "" || request.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "email and password are required"})
		return
	}

	result, err := h.sessions.Login(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		h.writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request session.RegisterRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.sessions.Register(ctx, request); err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidRegistration):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "email, password, first name and last name are required"})
		case errors.Is(err, session.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "email_taken", "message": "a user with this email already exists"})
		default:
			h.logger.Error("registration failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		}
		return
	}

	result, err := h.sessions.Login(ctx, request.Email, request.Password)
	if err != nil {
		h.writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *httpHandler) handleGoogleLogin(c *gin.Context) {
	var request googleLoginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.IDToken) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "idToken is required"})
		return
	}

	result, err := h.sessions.LoginWithGoogle(c.Request.Context(), request.IDToken)
	if err != nil {
		h.writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleMe(c *gin.Context) {
	profile, err := h.sessions.UserByID(c.Request.Context(), currentUserID(c))
	if errors.Is(err, users.ErrUserNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "user no longer exists"})
		return
	}
	if err != nil {
		h.logger.Error("failed to load current user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *httpHandler) writeAuthError(c *gin.Context, err error) {
	if errors.Is(err, session.ErrAuthentication) {
		h.logger.Info("authentication rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "invalid credentials"})
		return
	}
	h.logger.Error("authentication failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}
