package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-outfit-pipeline/internal/cart"
	"github.com/imrishuroy/go-outfit-pipeline/internal/checkout"
	"github.com/imrishuroy/go-outfit-pipeline/internal/idempotency"
	"github.com/imrishuroy/go-outfit-pipeline/internal/logger"
	"github.com/imrishuroy/go-outfit-pipeline/internal/normalize"
	"github.com/imrishuroy/go-outfit-pipeline/internal/orders"
	"github.com/imrishuroy/go-outfit-pipeline/internal/pipeline"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerRequestID      = "X-Request-Id"
)

// HandlerConfig groups dependencies for the HTTP handlers.
type HandlerConfig struct {
	Pipeline    *pipeline.Pipeline
	Normalizer  *normalize.Normalizer
	Carts       *cart.Store
	Orders      *orders.Store
	Idempotency *idempotency.Store
	Checkout    *checkout.Service
	Log         *logger.Logger
}

// RegisterRoutes registers every API route.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	cfg.Log = logger.OrNop(cfg.Log).With("component", "http")
	RegisterPipelineRoutes(r, cfg)
	RegisterCartRoutes(r, cfg)
	RegisterOrdersRoutes(r, cfg)
}

func internalError(c *gin.Context, log *logger.Logger, code string, err error) {
	log.Error("request failed", "path", c.FullPath(), "error_code", code, "error", err, "correlation_id", c.GetHeader(headerRequestID))
	c.JSON(http.StatusInternalServerError, gin.H{"error": code, "detail": err.Error()})
}

// writeRecord answers a request whose idempotency key was already used.
// idField names the resource id in the 202/500 bodies.
func writeRecord(c *gin.Context, rec *idempotency.Record, idField string) {
	switch rec.Status {
	case idempotency.StatusDone:
		status := rec.ResponseStatus
		if status == 0 {
			status = http.StatusOK
		}
		if rec.ResponseBody != "" {
			c.Data(status, "application/json", []byte(rec.ResponseBody))
			return
		}
		c.JSON(status, gin.H{idField: rec.ResourceID})
	case idempotency.StatusInProgress:
		c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress", idField: rec.ResourceID})
	case idempotency.StatusFailed:
		// the key is burnt; a retry needs a new one
		c.JSON(http.StatusInternalServerError, gin.H{"error": "previous_attempt_failed", idField: rec.ResourceID})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unknown_idempotency_status"})
	}
}
