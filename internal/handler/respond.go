// Package handler holds the gin handlers of the /api/v1 surface.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sahasand/site-tracker/internal/service"
	"github.com/sahasand/site-tracker/pkg/logger"
)

// respondError maps a service error onto a status code. Validation errors
// are 400 with the message, not-found is 404, a partial batch is 500 with
// the applied and failed ids and the sites left with a stale status,
// anything else is a generic 500.
func respondError(c *gin.Context, log *zap.Logger, op string, err error) {
	log = logger.WithTrace(c.Request.Context(), log)

	var partial *service.PartialFailureError
	switch {
	case service.IsValidation(err):
		log.Warn(op+": rejected", zap.Error(err))
		body := gin.H{"error": err.Error()}
		var verr *service.ValidationError
		if errors.As(err, &verr) && verr.Field != "" {
			body["field"] = verr.Field
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, service.ErrNotFound):
		log.Info(op+": not found", zap.Error(err))
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &partial):
		log.Error(op+": partially applied", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":         "some changes could not be saved, please review and retry",
			"applied":       partial.Applied,
			"failed":        partial.Failed,
			"status_errors": partial.StatusErrors,
		})
	default:
		log.Error(op+": failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// queryInt reads a positive integer query parameter, falling back to def.
func queryInt(c *gin.Context, key string, def int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
