package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"data_pipeline/internal/rawstore"
)

// Reprocessor replays a stored raw envelope through the processing engine.
type Reprocessor interface {
	Reprocess(ctx context.Context, rawRef string) error
}

type reprocessRequest struct {
	RawRef string `json:"raw_ref" binding:"required"`
}

// NewProcessServer wires the processor's HTTP surface: health, metrics and
// the manual reprocess endpoint for items lost between raw store and queue.
func NewProcessServer(reprocessor Reprocessor, logger *slog.Logger) *gin.Engine {
	r := newRouter(logger)

	r.POST("/reprocess", func(c *gin.Context) {
		var req reprocessRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "raw_ref is required"})
			return
		}

		if err := reprocessor.Reprocess(c.Request.Context(), req.RawRef); err != nil {
			if errors.Is(err, rawstore.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "raw item not found"})
				return
			}
			logger.Error("reprocess failed", "raw_ref", req.RawRef, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "reprocess failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "reprocessed", "raw_ref": req.RawRef})
	})

	return r
}
