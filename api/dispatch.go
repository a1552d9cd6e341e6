package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/taskfleet/supervisor/agentclient"
	"github.com/taskfleet/supervisor/domain"
)

// DispatchRequest is the request to send a task to an agent.
type DispatchRequest struct {
	AgentID string          `json:"agent_id"`
	Sender  string          `json:"sender,omitempty"`
	Task    domain.TaskSpec `json:"task"`
}

// DispatchTask sends a task envelope to the chosen agent and returns its
// completion report. The agent's cached status gates dispatch; a non-healthy
// cache triggers one fresh live probe before the routing policy decides.
// POST /v1/dispatch
func (h *Handler) DispatchTask(c echo.Context) error {
	ctx := c.Request().Context()

	var req DispatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.AgentID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "agent_id is required"})
	}

	agent, ok := h.registry.Get(req.AgentID)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "agent not found"})
	}

	status := agent.Status
	if status != domain.StatusHealthy {
		status = h.reconciler.CheckLive(ctx, req.AgentID)
	}

	decision, reason, err := h.policy.Evaluate(ctx, map[string]interface{}{
		"agent_id":  req.AgentID,
		"status":    string(status),
		"task_name": req.Task.Name,
	})
	if err != nil {
		log.Printf("ERROR: failed to evaluate routing policy: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to evaluate routing policy"})
	}
	if decision != "allow" {
		if reason == "" {
			reason = "agent is " + string(status)
		}
		return c.JSON(http.StatusConflict, map[string]string{"error": "dispatch blocked: " + reason})
	}

	sender := req.Sender
	if sender == "" {
		sender = "supervisor"
	}
	env := agentclient.NewTaskEnvelope(sender, agent.ID, req.Task)

	report, err := h.agentClient.Process(ctx, agent.URL, env)
	if err != nil {
		log.Printf("ERROR: failed to dispatch task to %s: %v", agent.ID, err)
		h.recordDispatch(ctx, env, agent.ID, domain.DispatchFailure, nil, err.Error())
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "agent did not complete the task"})
	}

	h.recordDispatch(ctx, env, agent.ID, report.Status, report.Results, "")
	return c.JSON(http.StatusOK, report)
}

// recordDispatch writes the dispatch to history. Failures are logged, never
// surfaced to the dispatch caller.
func (h *Handler) recordDispatch(ctx context.Context, env *domain.TaskEnvelope, agentID string, status domain.DispatchStatus, results json.RawMessage, errMsg string) {
	task, _ := json.Marshal(env.Task)
	dispatch := &domain.Dispatch{
		MessageID: env.MessageID,
		AgentID:   agentID,
		Task:      task,
		Status:    status,
		Results:   results,
		Error:     errMsg,
		CreatedAt: time.Now(),
	}
	if err := h.store.CreateDispatch(ctx, dispatch); err != nil {
		log.Printf("ERROR: failed to record dispatch %s: %v", env.MessageID, err)
	}
}

// ListDispatches lists dispatch history, newest first.
// GET /v1/dispatches
func (h *Handler) ListDispatches(c echo.Context) error {
	ctx := c.Request().Context()

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = 50
	}
	agentID := c.QueryParam("agent_id")

	dispatches, err := h.store.ListDispatches(ctx, agentID, limit)
	if err != nil {
		log.Printf("ERROR: failed to list dispatches: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list dispatches"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"dispatches": dispatches,
	})
}

// GetDispatch gets one dispatch by message id.
// GET /v1/dispatches/:message_id
func (h *Handler) GetDispatch(c echo.Context) error {
	ctx := c.Request().Context()
	messageID := c.Param("message_id")

	dispatch, err := h.store.GetDispatch(ctx, messageID)
	if err != nil {
		log.Printf("ERROR: failed to get dispatch: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get dispatch"})
	}
	if dispatch == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "dispatch not found"})
	}

	return c.JSON(http.StatusOK, dispatch)
}
