package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Sung-star/storefront-checkout/internal/backend"
	"github.com/Sung-star/storefront-checkout/internal/logger"
	"github.com/Sung-star/storefront-checkout/internal/session"
	"github.com/Sung-star/storefront-checkout/internal/validation"
)

type loginRequest struct {
	Username string `json:"username" validate:"notblank"`
	Password string `json:"password" validate:"required"`
}

type sessionResponse struct {
	SessionID string           `json:"sessionId"`
	LoggedIn  bool             `json:"loggedIn"`
	User      *session.Profile `json:"user,omitempty"`
}

func newSessionResponse(s session.Session) sessionResponse {
	return sessionResponse{SessionID: s.ID, LoggedIn: s.LoggedIn(), User: s.Profile}
}

func (h *handler) getSession(c *gin.Context) {
	c.JSON(http.StatusOK, newSessionResponse(h.session(c)))
}

func (h *handler) login(c *gin.Context) {
	var req loginRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}

	s, err := h.sessions.Login(c.Request.Context(), sessionID(c), req.Username, req.Password)
	if err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials", "message": apiErr.Message})
			return
		}
		logger.FromGin(h.log, c).Warn("login failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "login_failed"})
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(s))
}

func (h *handler) logout(c *gin.Context) {
	if err := h.sessions.Logout(c.Request.Context(), sessionID(c)); err != nil {
		logger.FromGin(h.log, c).Error("logout failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
