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

// initRuleRoutes registers the rule management endpoints.
func (c *Controller) initRuleRoutes() {
	rules := c.Group.Group("/rules")

	rules.GET("", c.ListRules)
	rules.GET("/:id", c.GetRule)
	rules.POST("", c.CreateRule)
	rules.PUT("/:id", c.UpdateRule)
	rules.PATCH("/:id/toggle", c.ToggleRule)
	rules.DELETE("/:id", c.DeleteRule)
	rules.GET("/:id/analytics", c.GetRuleAnalytics)
}

// ListRules returns rules, optionally filtered by workspace, platform, post
// and active state.
func (c *Controller) ListRules(ctx echo.Context) error {
	filter := repository.RuleFilter{
		WorkspaceID: ctx.QueryParam("workspace_id"),
		Platform:    entities.Platform(ctx.QueryParam("platform")),
		PostID:      ctx.QueryParam("post_id"),
	}
	if activeParam := ctx.QueryParam("active"); activeParam != "" {
		v := activeParam == "true"
		filter.Active = &v
	}

	rules, err := c.rules.ListRules(ctx.Request().Context(), filter)
	if err != nil {
		c.log.Error("failed to list rules", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list rules"})
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// GetRule returns a single rule by ID.
func (c *Controller) GetRule(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule ID"})
	}

	rule, err := c.rules.GetRule(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Rule not found"})
		}
		c.log.Error("failed to get rule", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get rule"})
	}

	return ctx.JSON(http.StatusOK, rule)
}

// CreateRule creates a new automation rule.
func (c *Controller) CreateRule(ctx echo.Context) error {
	var rule entities.AutomationRule
	if err := ctx.Bind(&rule); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if msg := validateRule(&rule); msg != "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": msg})
	}

	// New rules start with clean analytics regardless of payload.
	rule.ID = 0
	rule.TriggeredCount = 0
	rule.RespondedCount = 0
	rule.TotalResponseTimeSec = 0
	rule.AvgResponseTimeSec = 0

	if err := c.rules.CreateRule(ctx.Request().Context(), &rule); err != nil {
		c.log.Error("failed to create rule", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create rule"})
	}

	c.refreshEngine(ctx)

	c.log.Info("rule created",
		logger.String("name", rule.Name),
		logger.Uint64("id", uint64(rule.ID)))

	return ctx.JSON(http.StatusCreated, rule)
}

// UpdateRule replaces an existing rule's configuration. Analytics columns
// are preserved by the repository, never overwritten by an edit.
func (c *Controller) UpdateRule(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule ID"})
	}

	existing, err := c.rules.GetRule(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Rule not found"})
		}
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get rule"})
	}

	var rule entities.AutomationRule
	if err := ctx.Bind(&rule); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if msg := validateRule(&rule); msg != "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": msg})
	}

	rule.ID = existing.ID
	rule.CreatedAt = existing.CreatedAt

	if err := c.rules.UpdateRule(ctx.Request().Context(), &rule); err != nil {
		c.log.Error("failed to update rule", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to update rule"})
	}

	c.refreshEngine(ctx)

	return ctx.JSON(http.StatusOK, rule)
}

// ToggleRule activates or deactivates a rule.
func (c *Controller) ToggleRule(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule ID"})
	}

	var body struct {
		Active bool `json:"active"`
	}
	if err := ctx.Bind(&body); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	if err := c.rules.ToggleRule(ctx.Request().Context(), id, body.Active); err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Rule not found"})
		}
		c.log.Error("failed to toggle rule", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to toggle rule"})
	}

	c.refreshEngine(ctx)

	return ctx.JSON(http.StatusOK, map[string]any{"id": id, "active": body.Active})
}

// DeleteRule deletes a rule and its engagement records.
func (c *Controller) DeleteRule(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule ID"})
	}

	if err := c.rules.DeleteRule(ctx.Request().Context(), id); err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Rule not found"})
		}
		c.log.Error("failed to delete rule", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to delete rule"})
	}

	c.refreshEngine(ctx)

	return ctx.NoContent(http.StatusNoContent)
}

// GetRuleAnalytics returns the rule's engagement counters and derived rates.
func (c *Controller) GetRuleAnalytics(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule ID"})
	}

	rule, err := c.rules.GetRule(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Rule not found"})
		}
		c.log.Error("failed to get rule analytics", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get rule"})
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"rule_id":               rule.ID,
		"triggered_count":       rule.TriggeredCount,
		"responded_count":       rule.RespondedCount,
		"success_rate":          rule.SuccessRate(),
		"avg_response_time_sec": rule.AvgResponseTimeSec,
	})
}

// validateRule returns a human-readable error for invalid rule payloads, or
// an empty string when the rule is acceptable.
func validateRule(rule *entities.AutomationRule) string {
	switch {
	case rule.Name == "":
		return "Rule name is required"
	case rule.PostID == "":
		return "Post ID is required"
	case !rule.Platform.Valid():
		return "Unknown platform"
	case !rule.RuleType.Valid():
		return "Unknown rule type"
	case !rule.TriggerKind.Valid():
		return "Unknown trigger kind"
	case !rule.ResponseKind.Valid():
		return "Unknown response kind"
	case rule.MaxPerHour < 0 || rule.MaxPerDay < 0 || rule.CooldownMinutes < 0:
		return "Rate limits must not be negative"
	case rule.ResponseKind == entities.ResponseText && rule.ResponseContent == "":
		return "Text responses require response content"
	case rule.ResponseKind == entities.ResponseTemplate && rule.ResponseContent == "":
		return "Template responses require response content"
	case rule.ResponseKind == entities.ResponseAIGenerated && rule.ResponseContent == "":
		return "AI responses require static fallback content"
	}
	return ""
}

// parseUintParam parses a uint route parameter.
func parseUintParam(ctx echo.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(v), nil
}
