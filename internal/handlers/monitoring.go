package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/studiofolio/internal/gallery"
	"github.com/charlesng35/studiofolio/internal/monitoring"
	"github.com/charlesng35/studiofolio/pkg/response"
)

// SubscriberCounter reports realtime subscribers; *realtime.Hub implements it.
type SubscriberCounter interface {
	Subscribers(stream string) int
}

// MonitoringHandler surfaces operational state to the administrator.
type MonitoringHandler struct {
	module   *monitoring.Module
	registry *gallery.Registry
	hub      SubscriberCounter
	streams  []string
}

// NewMonitoringHandler constructs a monitoring handler. registry and hub may be nil.
func NewMonitoringHandler(module *monitoring.Module, registry *gallery.Registry, hub SubscriberCounter, streams ...string) *MonitoringHandler {
	return &MonitoringHandler{module: module, registry: registry, hub: hub, streams: streams}
}

type collectionSummary struct {
	Items    int              `json:"items"`
	Capacity int              `json:"capacity"`
	Version  uint64           `json:"version"`
	Progress gallery.Progress `json:"progress"`
}

// Summary GET /api/monitoring/summary
func (h *MonitoringHandler) Summary(c *gin.Context) {
	ctx := requestContext(c)
	payload := gin.H{
		"uptime_seconds": int64(h.module.Uptime() / time.Second),
		"jobs":           h.module.Jobs().Snapshot(),
		"readiness":      h.module.Health().EvaluateReadiness(ctx),
	}

	if h.registry != nil {
		collections := make(map[gallery.Kind]collectionSummary, len(gallery.Kinds()))
		for _, kind := range gallery.Kinds() {
			m, err := h.registry.Manager(kind)
			if err != nil {
				continue
			}
			collections[kind] = collectionSummary{
				Items:    len(m.Items()),
				Capacity: m.Capacity(),
				Version:  m.Version(),
				Progress: m.Progress(),
			}
		}
		payload["collections"] = collections
	}

	if h.hub != nil {
		subscribers := make(map[string]int, len(h.streams))
		for _, stream := range h.streams {
			subscribers[stream] = h.hub.Subscribers(stream)
		}
		payload["subscribers"] = subscribers
	}

	response.Success(c, http.StatusOK, payload)
}
