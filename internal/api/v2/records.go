package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/postflow/engage/internal/entities"
	"github.com/postflow/engage/internal/logger"
	"github.com/postflow/engage/internal/repository"
)

// initRecordRoutes registers the engagement record endpoints.
func (c *Controller) initRecordRoutes() {
	c.Group.GET("/records", c.ListRecords)
}

// ListRecords returns paginated engagement records, optionally filtered by
// rule and outcome.
func (c *Controller) ListRecords(ctx echo.Context) error {
	filter := repository.RecordFilter{
		Outcome: entities.Outcome(ctx.QueryParam("outcome")),
	}
	if ruleIDParam := ctx.QueryParam("rule_id"); ruleIDParam != "" {
		v, err := strconv.ParseUint(ruleIDParam, 10, 64)
		if err != nil {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule_id"})
		}
		filter.RuleID = uint(v)
	}
	filter.Limit, filter.Offset = parsePagination(ctx)

	records, total, err := c.records.ListRecords(ctx.Request().Context(), filter)
	if err != nil {
		c.log.Error("failed to list engagement records", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list records"})
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"records": records,
		"total":   total,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}
