package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/postflow/engage/internal/entities"
	"github.com/postflow/engage/internal/ingest"
	"github.com/postflow/engage/internal/logger"
	"github.com/postflow/engage/internal/repository"
)

// initWebhookRoutes registers the inbound event endpoint.
func (c *Controller) initWebhookRoutes() {
	c.Group.POST("/webhooks/:platform", c.IngestEvent)
}

// IngestEvent accepts one platform notification. Duplicates answer 200 with
// the previously stored event so webhook redelivery is harmless; malformed
// payloads answer 400 and are dropped.
func (c *Controller) IngestEvent(ctx echo.Context) error {
	platform := entities.Platform(ctx.Param("platform"))

	var raw ingest.RawEvent
	if err := ctx.Bind(&raw); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	event, err := c.ingestor.Ingest(ctx.Request().Context(), platform, &raw)
	switch {
	case err == nil:
		return ctx.JSON(http.StatusAccepted, map[string]any{
			"event_id": event.ID,
			"status":   "accepted",
		})
	case errors.Is(err, repository.ErrDuplicateEvent):
		return ctx.JSON(http.StatusOK, map[string]any{
			"event_id": event.ID,
			"status":   "duplicate",
		})
	case errors.Is(err, ingest.ErrInvalidEvent):
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		c.log.Error("failed to ingest event",
			logger.String("platform", string(platform)),
			logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to ingest event"})
	}
}
