package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yezhh-pz/MediaFlow-sub000/internal/apperrors"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/domain/task"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/logging"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/pipeline"
)

type handlers struct {
	deps   Deps
	logger logging.Logger
}

func (h *handlers) handleHealthz(c *gin.Context) {
	tasks, err := h.deps.Manager.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"tasks":     len(tasks),
		"observers": h.deps.Notifier.GetClientCount(),
	})
}

// handleSubmitPipeline implements "Submit pipeline" (§6.1): POST
// /pipeline/run with {steps:[{step_name,params}...], task_name?}.
func (h *handlers) handleSubmitPipeline(c *gin.Context) {
	var raw map[string]interface{}
	if err := c.ShouldBindJSON(&raw); err != nil {
		writeError(c, apperrors.NewValidationError(err, "invalid pipeline submission body"))
		return
	}

	stepRequests, err := parseStepRequests(raw["steps"])
	if err != nil {
		writeError(c, err)
		return
	}

	taskName, _ := raw["task_name"].(string)
	ctx := c.Request.Context()

	if existingID, active, err := h.findActiveDuplicate(ctx, "pipeline", raw); err != nil {
		writeError(c, err)
		return
	} else if active {
		c.JSON(http.StatusOK, gin.H{"task_id": existingID, "status": "pending", "message": "Task already active"})
		return
	}

	t, err := h.deps.Manager.Create(ctx, "pipeline", taskName, "Queued", raw)
	if err != nil {
		writeError(c, err)
		return
	}

	go h.runPipeline(t.ID, stepRequests)

	c.JSON(http.StatusOK, gin.H{"task_id": t.ID, "status": t.Status, "message": t.Message})
}

// handleSubmitTyped implements "Submit single-type" (§6.1): a typed POST
// is a one-step pipeline whose step name is the path's :type segment.
func (h *handlers) handleSubmitTyped(c *gin.Context) {
	taskType := c.Param("type")
	var params map[string]interface{}
	if err := c.ShouldBindJSON(&params); err != nil {
		writeError(c, apperrors.NewValidationError(err, "invalid request body"))
		return
	}
	ctx := c.Request.Context()

	if existingID, active, err := h.findActiveDuplicate(ctx, taskType, params); err != nil {
		writeError(c, err)
		return
	} else if active {
		c.JSON(http.StatusOK, gin.H{"task_id": existingID, "status": "pending"})
		return
	}

	t, err := h.deps.Manager.Create(ctx, taskType, "", "Queued", params)
	if err != nil {
		writeError(c, err)
		return
	}

	go h.runPipeline(t.ID, []pipeline.StepRequest{{StepName: taskType, Params: params}})

	c.JSON(http.StatusOK, gin.H{"task_id": t.ID, "status": t.Status})
}

func (h *handlers) runPipeline(taskID string, steps []pipeline.StepRequest) {
	if err := h.deps.Pipeline.Run(context.Background(), taskID, steps); err != nil {
		h.logger.Warn("httpapi: pipeline run for task %s ended with error: %v", taskID, err)
	}
}

func (h *handlers) handleListTasks(c *gin.Context) {
	tasks, err := h.deps.Manager.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (h *handlers) handleGetTask(c *gin.Context) {
	t, err := h.deps.Manager.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *handlers) handleCancelAll(c *gin.Context) {
	n, err := h.deps.Manager.CancelAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

// handleResume implements the §4.5 resume flow.
func (h *handlers) handleResume(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	t, err := h.deps.Manager.Get(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	if t.RequestParams == nil {
		writeError(c, apperrors.NewValidationError(nil, "task has no request_params to resume from"))
		return
	}
	if t.Status == task.StatusRunning {
		c.JSON(http.StatusOK, gin.H{"status": t.Status})
		return
	}
	if err := h.deps.Manager.Reset(ctx, id); err != nil {
		writeError(c, err)
		return
	}

	handler, err := h.deps.Handlers.Get(t.Type)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := handler.Resume(ctx, t); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": task.StatusPending})
}

func (h *handlers) handleDeleteTask(c *gin.Context) {
	ok, err := h.deps.Manager.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": ok})
}

func (h *handlers) handleDeleteAll(c *gin.Context) {
	n, err := h.deps.Manager.DeleteAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

// findActiveDuplicate implements §4.1's dedupe probe at the HTTP layer:
// a match only debounces the new submission while the existing task has
// not reached a terminal status.
func (h *handlers) findActiveDuplicate(ctx context.Context, taskType string, params map[string]interface{}) (string, bool, error) {
	id, found, err := h.deps.Manager.FindTaskByParams(ctx, taskType, params)
	if err != nil || !found {
		return "", false, err
	}
	existing, err := h.deps.Manager.Get(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	if existing.Status.IsTerminal() {
		return "", false, nil
	}
	return id, true, nil
}

func parseStepRequests(raw interface{}) ([]pipeline.StepRequest, error) {
	list, ok := raw.([]interface{})
	if !ok || len(list) == 0 {
		return nil, apperrors.NewValidationError(nil, "pipeline submission requires a non-empty \"steps\" array")
	}
	steps := make([]pipeline.StepRequest, 0, len(list))
	for _, entry := range list {
		m, ok := entry.(map[string]interface{})
		if !ok {
			return nil, apperrors.NewValidationError(nil, "each pipeline step must be an object")
		}
		name, ok := m["step_name"].(string)
		if !ok || name == "" {
			return nil, apperrors.NewValidationError(nil, "each pipeline step requires a \"step_name\"")
		}
		params, _ := m["params"].(map[string]interface{})
		steps = append(steps, pipeline.StepRequest{StepName: name, Params: params})
	}
	return steps, nil
}
