// Package api implements the v2 HTTP API: webhook ingestion, rule
// management, plan inspection and engagement record queries.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/postflow/engage/internal/engine"
	"github.com/postflow/engage/internal/ingest"
	"github.com/postflow/engage/internal/logger"
	"github.com/postflow/engage/internal/repository"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Controller handles the engagement API routes.
type Controller struct {
	Echo  *echo.Echo
	Group *echo.Group

	ingestor *ingest.Ingestor
	eng      *engine.Engine
	rules    repository.RuleRepository
	plans    repository.PlanRepository
	records  repository.RecordRepository
	log      logger.Logger
}

// New creates the API controller and registers all routes on e.
func New(
	e *echo.Echo,
	ingestor *ingest.Ingestor,
	eng *engine.Engine,
	rules repository.RuleRepository,
	plans repository.PlanRepository,
	records repository.RecordRepository,
	log logger.Logger,
) *Controller {
	c := &Controller{
		Echo:     e,
		Group:    e.Group("/api/v2"),
		ingestor: ingestor,
		eng:      eng,
		rules:    rules,
		plans:    plans,
		records:  records,
		log:      log,
	}

	e.Use(middleware.Recover())

	c.initWebhookRoutes()
	c.initRuleRoutes()
	c.initPlanRoutes()
	c.initRecordRoutes()

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", c.Health)

	return c
}

// Health is a liveness probe.
func (c *Controller) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// refreshEngine reloads the engine's rule cache after a rule mutation.
func (c *Controller) refreshEngine(ctx echo.Context) {
	if c.eng == nil {
		return
	}
	if err := c.eng.RefreshRules(ctx.Request().Context()); err != nil {
		c.log.Error("failed to refresh engine rules", logger.Error(err))
	}
}
