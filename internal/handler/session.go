package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// sessionPart is the caller-facing view of a device session. Token
// material never appears here; the hash stays inside the store.
type sessionPart struct {
	ID         uint64    `json:"id"`
	DeviceInfo string    `json:"device_info"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Current    bool      `json:"current"`
}

// ListSessions: enumerate the caller's live sessions, most recent
// first. The session backing the presented access token is flagged
// Current via the token's sid claim rather than inferred from order.
func (h *AuthHandler) ListSessions(c echo.Context) error {
	uid, ok := c.Get("user_id").(uint64)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	sid, _ := c.Get("session_id").(uint64)

	ctx, cancel := reqCtx(c)
	defer cancel()

	sessions, err := h.Svc.ListSessions(ctx, uid)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]sessionPart, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionPart{
			ID:         s.ID,
			DeviceInfo: s.DeviceInfo,
			CreatedAt:  s.CreatedAt,
			ExpiresAt:  s.ExpiresAt,
			Current:    s.ID == sid,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// RevokeSession: revoke one of the caller's sessions by id. A foreign
// id fails 403 without touching anything.
func (h *AuthHandler) RevokeSession(c echo.Context) error {
	uid, ok := c.Get("user_id").(uint64)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Svc.RevokeSession(ctx, sessionID, uid); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// LogoutAll: revoke every session of the caller ("logout everywhere").
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	uid, ok := c.Get("user_id").(uint64)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Svc.LogoutAll(ctx, uid); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
