package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/taskfleet/supervisor/domain"
)

// ListAgents lists all registered agents with their last-observed status.
// GET /v1/agents
func (h *Handler) ListAgents(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"agents": h.registry.List(),
	})
}

// GetAgent gets a specific agent by ID.
// GET /v1/agents/:agent_id
func (h *Handler) GetAgent(c echo.Context) error {
	agentID := c.Param("agent_id")

	agent, ok := h.registry.Get(agentID)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "agent not found"})
	}

	return c.JSON(http.StatusOK, agent)
}

// CheckAgentLive probes one agent synchronously and returns the fresh status.
// GET /v1/agents/:agent_id/live
func (h *Handler) CheckAgentLive(c echo.Context) error {
	ctx := c.Request().Context()
	agentID := c.Param("agent_id")

	status := h.reconciler.CheckLive(ctx, agentID)
	code := http.StatusOK
	if status == domain.StatusNotFound {
		code = http.StatusNotFound
	}

	return c.JSON(code, map[string]string{"status": string(status)})
}

// SweepAgents triggers one reconciliation sweep and reports the outcome.
// POST /v1/agents/sweep
func (h *Handler) SweepAgents(c echo.Context) error {
	ctx := c.Request().Context()

	res := h.reconciler.Sweep(ctx)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"checked":   res.Checked,
		"healthy":   res.Healthy,
		"offline":   res.Offline,
		"persisted": res.PersistErr == nil,
	})
}
