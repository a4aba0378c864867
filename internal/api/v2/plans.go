package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/postflow/engage/internal/entities"
	"github.com/postflow/engage/internal/logger"
	"github.com/postflow/engage/internal/repository"
)

// initPlanRoutes registers the plan inspection endpoints.
func (c *Controller) initPlanRoutes() {
	plans := c.Group.Group("/plans")

	plans.GET("", c.ListPlans)
	plans.GET("/:id", c.GetPlan)
	plans.POST("/:id/cancel", c.CancelPlan)
}

// ListPlans returns paginated action plans, optionally filtered by rule,
// event or status.
func (c *Controller) ListPlans(ctx echo.Context) error {
	filter := repository.PlanFilter{
		EventID: ctx.QueryParam("event_id"),
		Status:  entities.PlanStatus(ctx.QueryParam("status")),
	}
	if ruleIDParam := ctx.QueryParam("rule_id"); ruleIDParam != "" {
		v, err := strconv.ParseUint(ruleIDParam, 10, 64)
		if err != nil {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule_id"})
		}
		filter.RuleID = uint(v)
	}
	filter.Limit, filter.Offset = parsePagination(ctx)

	plans, total, err := c.plans.ListPlans(ctx.Request().Context(), filter)
	if err != nil {
		c.log.Error("failed to list plans", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list plans"})
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"plans":  plans,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// GetPlan returns one plan with its steps.
func (c *Controller) GetPlan(ctx echo.Context) error {
	plan, err := c.plans.GetPlan(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Plan not found"})
		}
		c.log.Error("failed to get plan", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get plan"})
	}

	return ctx.JSON(http.StatusOK, plan)
}

// CancelPlan cancels a pending or in-progress plan. Already finished plans
// answer 409.
func (c *Controller) CancelPlan(ctx echo.Context) error {
	planID := ctx.Param("id")

	err := c.plans.CancelPlan(ctx.Request().Context(), planID)
	switch {
	case err == nil:
		return ctx.JSON(http.StatusOK, map[string]string{"id": planID, "status": "cancelled"})
	case errors.Is(err, repository.ErrPlanNotFound):
		return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Plan not found"})
	case errors.Is(err, repository.ErrPlanTerminal):
		return ctx.JSON(http.StatusConflict, map[string]string{"error": "Plan has already finished"})
	default:
		c.log.Error("failed to cancel plan", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to cancel plan"})
	}
}

// parsePagination reads limit/offset query params with defaults and a cap.
func parsePagination(ctx echo.Context) (limit, offset int) {
	limit = defaultListLimit
	if limitParam := ctx.QueryParam("limit"); limitParam != "" {
		if v, err := strconv.Atoi(limitParam); err == nil && v > 0 {
			if v > maxListLimit {
				v = maxListLimit
			}
			limit = v
		}
	}
	if offsetParam := ctx.QueryParam("offset"); offsetParam != "" {
		if v, err := strconv.Atoi(offsetParam); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}
