package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/melodiary/backend/internal/auth"
	"go.uber.org/zap"
)

const (
	signupPath    = "/signup"
	dashboardPath = "/dashboard"
)

func (h *httpHandler) handleSpotifyLogin(c *gin.Context) {
	loginURL, err := h.spotifyAuth.LoginURL()
	if err != nil {
		h.logger.Error("login url generation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login unavailable"})
		return
	}
	c.Redirect(http.StatusFound, loginURL)
}

func (h *httpHandler) handleSpotifyCallback(c *gin.Context) {
	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing state or code"})
		return
	}

	user, err := h.spotifyAuth.Callback(c.Request.Context(), state, code)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidState) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state"})
			return
		}
		h.logger.Error("spotify callback failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	session, err := h.sessions.Issue(c.Request.Context(), user.ID, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		h.logger.Error("session issue failed", zap.Error(err), zap.String("user_id", user.ID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	c.SetCookie(h.sessions.CookieName(), session.Token, int(h.sessions.TTL().Seconds()), "/", "", false, true)

	// Signup completion gate: no username yet means the account is half made.
	target := dashboardPath
	if !user.HasUsername() {
		target = signupPath
	}
	c.Redirect(http.StatusFound, target)
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	session, ok := h.currentSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err := h.sessions.Revoke(c.Request.Context(), session.Token); err != nil {
		h.logger.Error("session revoke failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}
	c.SetCookie(h.sessions.CookieName(), "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
