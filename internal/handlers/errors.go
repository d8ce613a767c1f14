package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/thereayou/taskrooms/internal/middleware"
	"github.com/thereayou/taskrooms/internal/services"
)

func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindConflict, services.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders a service error with its reason code. Anything that is
// not a service error is logged and hidden behind a generic 500.
func writeError(c *gin.Context, err error) {
	var svcErr *services.Error
	if !errors.As(err, &svcErr) {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": "INTERNAL"})
		return
	}
	if svcErr.Kind == services.KindTransaction {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}

	body := gin.H{"error": svcErr.Message, "code": svcErr.Code}
	if len(svcErr.Fields) > 0 {
		body["fields"] = svcErr.Fields
	}
	if len(svcErr.IDs) > 0 {
		body["invalid_ids"] = svcErr.IDs
	}
	c.JSON(statusFor(svcErr.Kind), body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": services.ErrValidation.Code})
}

// paramID parses a uuid path parameter, answering 400 when it is malformed.
func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "invalid " + name,
			"code":   services.ErrValidation.Code,
			"fields": gin.H{name: "must be a uuid"},
		})
		return uuid.Nil, false
	}
	return id, true
}

func currentUser(c *gin.Context) uuid.UUID {
	return c.MustGet(middleware.UserIDKey).(uuid.UUID)
}
