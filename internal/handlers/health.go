package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/studiofolio/internal/monitoring"
)

// HealthHandler exposes liveness and readiness probes.
type HealthHandler struct {
	health *monitoring.HealthManager
}

// NewHealthHandler constructs a health handler.
func NewHealthHandler(health *monitoring.HealthManager) *HealthHandler {
	return &HealthHandler{health: health}
}

// Live GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	writeReport(c, h.health.EvaluateLiveness(requestContext(c)))
}

// Ready GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	writeReport(c, h.health.EvaluateReadiness(requestContext(c)))
}

// Health GET /health combines both probes.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx := requestContext(c)
	writeReport(c, monitoring.MergeReports(h.health.EvaluateLiveness(ctx), h.health.EvaluateReadiness(ctx)))
}

func writeReport(c *gin.Context, report monitoring.HealthReport) {
	status := http.StatusOK
	if !report.Success {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
