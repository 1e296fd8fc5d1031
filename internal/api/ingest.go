package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"data_pipeline/internal/domain"
	"data_pipeline/internal/ingest"
)

// IngestTrigger exposes manual ingest runs alongside the scheduler.
type IngestTrigger interface {
	IngestAll(ctx context.Context)
	IngestSource(ctx context.Context, sourceID string) (*domain.IngestStats, error)
}

// NewIngestServer wires the ingestor's HTTP surface: health, metrics and
// manual trigger endpoints.
func NewIngestServer(trigger IngestTrigger, logger *slog.Logger) *gin.Engine {
	r := newRouter(logger)

	r.POST("/ingest/trigger", func(c *gin.Context) {
		// Full runs can span many sources; detach from the request so a
		// client timeout does not abort the run halfway.
		go trigger.IngestAll(context.WithoutCancel(c.Request.Context()))

		c.JSON(http.StatusAccepted, gin.H{"status": "ingest started"})
	})

	r.POST("/ingest/trigger/:sourceId", func(c *gin.Context) {
		sourceID := c.Param("sourceId")

		stats, err := trigger.IngestSource(c.Request.Context(), sourceID)
		if err != nil {
			if errors.Is(err, ingest.ErrUnknownSource) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			logger.Error("manual ingest failed", "source_id", sourceID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ingest failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"source":    stats.SourceID,
			"fetched":   stats.Fetched,
			"stored":    stats.Stored,
			"published": stats.Published,
			"lost":      stats.Lost,
			"errors":    stats.Errors,
			"duration":  stats.Duration.String(),
		})
	})

	return r
}
