package httpapi

import (
	"errors"
	"net/http"
	"net/url"

	sessionapp "credpost/internal/core/session/service"
	contractPort "credpost/internal/ports/contract"
	providerPort "credpost/internal/ports/provider"

	"github.com/gin-gonic/gin"
)

// wantsHTML is true for browser form posts; API clients get JSON.
func wantsHTML(c *gin.Context) bool {
	return c.NegotiateFormat(gin.MIMEJSON, gin.MIMEHTML) == gin.MIMEHTML
}

// respond sends body as JSON, or for browsers redirects back to the page with
// notice shown in the alert banner.
func respond(c *gin.Context, status int, notice, level string, body gin.H) {
	if wantsHTML(c) {
		target := "/"
		if notice != "" {
			q := url.Values{"notice": {notice}, "level": {level}}
			target += "?" + q.Encode()
		}
		c.Redirect(http.StatusSeeOther, target)
		return
	}
	c.JSON(status, body)
}

func fail(c *gin.Context, notice string, err error) {
	status, code := classify(err)
	respond(c, status, notice, "error", gin.H{"error": notice, "code": code, "detail": err.Error()})
}

// classify maps domain errors to an HTTP status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, sessionapp.ErrInvalidPostID):
		return http.StatusBadRequest, "invalid_post_id"
	case errors.Is(err, sessionapp.ErrNotConnected):
		return http.StatusConflict, "not_connected"
	case errors.Is(err, sessionapp.ErrConnectInProgress):
		return http.StatusConflict, "connect_in_progress"
	case errors.Is(err, sessionapp.ErrSessionReset):
		return http.StatusConflict, "session_reset"
	case errors.Is(err, providerPort.ErrUserRejected):
		return http.StatusForbidden, "user_rejected"
	case errors.Is(err, providerPort.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, "provider_unavailable"
	case errors.Is(err, contractPort.ErrTransactionRejected):
		return http.StatusForbidden, "transaction_rejected"
	case errors.Is(err, contractPort.ErrTransactionReverted):
		return http.StatusUnprocessableEntity, "transaction_reverted"
	case errors.Is(err, contractPort.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, contractPort.ErrReadFailure):
		return http.StatusBadGateway, "read_failure"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
