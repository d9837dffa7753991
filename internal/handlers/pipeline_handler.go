package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-outfit-pipeline/internal/normalize"
	"github.com/imrishuroy/go-outfit-pipeline/internal/validation"
)

// RegisterPipelineRoutes registers POST /pipeline and POST /normalize.
func RegisterPipelineRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	norm := cfg.Normalizer
	if norm == nil {
		norm = normalize.New()
	}

	r.POST("/pipeline", func(c *gin.Context) {
		var req validation.PipelineRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		// Unsatisfiable requests are still 200: the body carries infeasibleReason.
		if req.Weights != nil {
			c.JSON(http.StatusOK, cfg.Pipeline.RunWeighted(c.Request.Context(), req.Request, req.Prompt, *req.Weights))
			return
		}
		c.JSON(http.StatusOK, cfg.Pipeline.Run(c.Request.Context(), req.Request, req.Prompt))
	})

	r.POST("/normalize", func(c *gin.Context) {
		var req validation.NormalizeRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		out := norm.Normalize(normalize.Input{
			Message:  req.Message,
			History:  req.History,
			Previous: req.Previous,
		})
		c.JSON(http.StatusOK, out)
	})
}
