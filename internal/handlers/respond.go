package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hipper-gif/meal-delivery/internal/service"
)

func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindValidation,
		service.KindAuthenticationFailed,
		service.KindAccountDisabled,
		service.KindOrganizationSuspended,
		service.KindConflict:
		return http.StatusBadRequest
	case service.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the error envelope. Internal causes are logged, never returned.
func (h HandlerSet) fail(c *gin.Context, err error, extra gin.H) {
	kind := service.KindOf(err)
	status := statusFor(kind)

	event := h.log.Debug()
	if status >= http.StatusInternalServerError {
		event = h.log.Error()
	}
	event.Err(err).
		Str("kind", kind.String()).
		Str("path", c.FullPath()).
		Msg("request failed")

	body := gin.H{
		"success": false,
		"error":   service.PublicMessage(err),
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

func MethodNotAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, gin.H{
		"success": false,
		"error":   "Method not allowed.",
	})
}

func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"error":   "Not found.",
	})
}
