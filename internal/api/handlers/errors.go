package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"greendrake/rentals/internal/apperrors"
	"greendrake/rentals/internal/utils"
)

// respondError renders err with the status its Kind maps to. Errors without a
// Kind are logged and reported as a bare internal error.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Kind == apperrors.KindUnknown {
		log.Printf("Internal error on %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "code": "internal"})
		return
	}

	body := gin.H{"error": appErr.Message, "code": appErr.Code}
	if len(appErr.Details) > 0 {
		body["details"] = appErr.Details
	}
	if appErr.Kind == apperrors.KindTransientStore {
		body["retryable"] = true
	}
	c.AbortWithStatusJSON(apperrors.HTTPStatus(err), body)
}

// parseIDParam reads a SixID path parameter, answering 400 when it is malformed.
func parseIDParam(c *gin.Context, name, what string) (utils.SixID, bool) {
	id, err := utils.ParseSixID(c.Param(name))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid " + what + " ID format", "code": "invalid_id"})
		return utils.SixID{}, false
	}
	return id, true
}
