package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chungtau/txn-webhook/internal/middleware"
)

const defaultTokenTTL = time.Hour

// AuthHandler issues status API tokens (dev mode only)
type AuthHandler struct {
	jwtSecret string
	devMode   bool
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(jwtSecret string, devMode bool) *AuthHandler {
	return &AuthHandler{
		jwtSecret: jwtSecret,
		devMode:   devMode,
	}
}

// DevTokenRequest is the optional body of a dev token request
type DevTokenRequest struct {
	Subject   string `json:"subject"`
	ExpiresIn int    `json:"expires_in"` // seconds
}

// DevTokenResponse carries a signed token with read scope
type DevTokenResponse struct {
	Token     string `json:"token"`
	Scope     string `json:"scope"`
	ExpiresAt string `json:"expires_at"`
	Subject   string `json:"subject"`
}

// GenerateDevToken handles POST /auth/dev/token
func (h *AuthHandler) GenerateDevToken(c *gin.Context) {
	if !h.devMode {
		writeError(c, &APIError{
			HTTPStatus: http.StatusNotFound,
			Code:       "NOT_FOUND",
			Message:    "Endpoint not available",
		})
		return
	}

	// An empty body falls back to defaults
	var req DevTokenRequest
	_ = c.ShouldBindJSON(&req)

	subject := req.Subject
	if subject == "" {
		subject = uuid.NewString()
	}
	ttl := time.Duration(req.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	token, expiresAt, err := middleware.IssueToken(h.jwtSecret, subject, middleware.ReadScope, ttl)
	if err != nil {
		writeError(c, &APIError{
			HTTPStatus: http.StatusInternalServerError,
			Code:       "INTERNAL_ERROR",
			Message:    "Failed to generate token",
		})
		return
	}

	c.JSON(http.StatusOK, DevTokenResponse{
		Token:     token,
		Scope:     middleware.ReadScope,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
		Subject:   subject,
	})
}
