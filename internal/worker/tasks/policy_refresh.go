package tasks

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// PolicyRefresher reloads the policy set from its source and swaps it in
// atomically. Implemented by internal/policy.Manager; declared here as a
// narrow interface so this package never imports internal/policy.
type PolicyRefresher interface {
	Refresh(ctx context.Context) error
}

// NewPolicyRefreshTask builds the periodic policy-reload task.
func NewPolicyRefreshTask() *asynq.Task {
	return asynq.NewTask(TypePolicyRefresh, nil, asynq.MaxRetry(1), asynq.Queue("default"))
}

// PolicyRefreshHandler adapts a PolicyRefresher to an asynq task handler.
type PolicyRefreshHandler struct {
	refresher PolicyRefresher
	logger    *zap.Logger
}

// NewPolicyRefreshHandler creates a handler with injected dependencies.
func NewPolicyRefreshHandler(refresher PolicyRefresher, logger *zap.Logger) *PolicyRefreshHandler {
	return &PolicyRefreshHandler{refresher: refresher, logger: logger}
}

// Handle reloads the policy set. On failure the previous, already-swapped-in
// policy set keeps serving requests; the error is returned, so asynq retries
// the task once (MaxRetry(1)), and the next schedule tick reloads again.
func (h *PolicyRefreshHandler) Handle(ctx context.Context, t *asynq.Task) error {
	taskID, _ := asynq.GetTaskID(ctx)

	if err := h.refresher.Refresh(ctx); err != nil {
		h.logger.Error("policy refresh failed",
			zap.Error(err),
			zap.String("task_type", TypePolicyRefresh),
			zap.String("task_id", taskID),
		)
		return fmt.Errorf("policy refresh: %w", err)
	}

	h.logger.Info("policy set refreshed",
		zap.String("task_type", TypePolicyRefresh),
		zap.String("task_id", taskID),
	)
	return nil
}
