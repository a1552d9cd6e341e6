// Package api provides HTTP handlers for the supervisor.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/taskfleet/supervisor/agentclient"
	"github.com/taskfleet/supervisor/config"
	"github.com/taskfleet/supervisor/policy"
	"github.com/taskfleet/supervisor/registry"
	"github.com/taskfleet/supervisor/store"
)

// Handler handles HTTP requests.
type Handler struct {
	registry    *registry.Store
	reconciler  *registry.Reconciler
	agentClient *agentclient.Client
	store       store.Store
	config      *config.Config
	policy      *policy.Engine
}

// NewHandler creates a new handler.
func NewHandler(reg *registry.Store, rec *registry.Reconciler, agentClient *agentclient.Client, st store.Store, cfg *config.Config, policyEngine *policy.Engine) *Handler {
	return &Handler{
		registry:    reg,
		reconciler:  rec,
		agentClient: agentClient,
		store:       st,
		config:      cfg,
		policy:      policyEngine,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Agent registry API
	e.GET("/v1/agents", h.ListAgents)
	e.GET("/v1/agents/:agent_id", h.GetAgent)
	e.GET("/v1/agents/:agent_id/live", h.CheckAgentLive)
	e.POST("/v1/agents/sweep", h.SweepAgents)

	// Dispatch API
	e.POST("/v1/dispatch", h.DispatchTask)
	e.GET("/v1/dispatches", h.ListDispatches)
	e.GET("/v1/dispatches/:message_id", h.GetDispatch)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
