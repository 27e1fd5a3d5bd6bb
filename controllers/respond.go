package controllers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/middleware"
	"storefront/models"
	"storefront/services"
)

var statusByKind = map[services.Kind]int{
	services.KindValidation:    http.StatusBadRequest,
	services.KindNotFound:      http.StatusNotFound,
	services.KindAuthorization: http.StatusUnauthorized,
	services.KindForbidden:     http.StatusForbidden,
	services.KindConflict:      http.StatusBadRequest,
	services.KindUpstream:      http.StatusBadGateway,
	services.KindInternal:      http.StatusInternalServerError,
}

// respondError writes {"error": code, "message": msg}. Causes are logged,
// never returned.
func respondError(c *gin.Context, err error) {
	var svcErr *services.Error
	if !errors.As(err, &svcErr) {
		svcErr = &services.Error{
			Kind:    services.KindInternal,
			Code:    services.CodeInternal,
			Message: "internal server error",
			Err:     err,
		}
	}

	status, ok := statusByKind[svcErr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	ctx := c.Request.Context()
	switch {
	case status >= 500:
		slog.ErrorContext(ctx, "request failed", "path", c.FullPath(), "code", svcErr.Code, "error", err)
	default:
		slog.DebugContext(ctx, "request rejected", "path", c.FullPath(), "code", svcErr.Code, "message", svcErr.Message)
	}

	c.AbortWithStatusJSON(status, gin.H{"error": svcErr.Code, "message": svcErr.Message})
}

func badRequest(code, message string) *services.Error {
	return &services.Error{Kind: services.KindValidation, Code: code, Message: message}
}

// identity reads what AuthMiddleware stored on the context.
func identity(c *gin.Context) (services.Identity, bool) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		return services.Identity{}, false
	}
	return services.Identity{
		UserID:  userID,
		IsAdmin: c.GetString(middleware.ContextRole) == models.RoleAdmin,
	}, true
}
