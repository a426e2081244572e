package tasks

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// CCUScanner performs a single scan of the online-presence key space and
// updates the ccu_total gauge. Implemented by internal/ccu.Scanner; declared
// here as a narrow interface so this package never imports internal/ccu.
type CCUScanner interface {
	Scan(ctx context.Context) error
}

// NewCCUScanTask builds the periodic CCU-scan task. It carries no payload:
// the scan always walks the full `online:*` keyspace.
func NewCCUScanTask() *asynq.Task {
	return asynq.NewTask(TypeCCUScan, nil, asynq.MaxRetry(1), asynq.Queue("default"))
}

// CCUScanHandler adapts a CCUScanner to an asynq task handler.
type CCUScanHandler struct {
	scanner CCUScanner
	logger  *zap.Logger
}

// NewCCUScanHandler creates a handler with injected dependencies.
func NewCCUScanHandler(scanner CCUScanner, logger *zap.Logger) *CCUScanHandler {
	return &CCUScanHandler{scanner: scanner, logger: logger}
}

// Handle runs one scan pass. A scan failure is logged and retried by asynq;
// it never blocks the request path because nothing here is on the hot path.
func (h *CCUScanHandler) Handle(ctx context.Context, t *asynq.Task) error {
	taskID, _ := asynq.GetTaskID(ctx)

	if err := h.scanner.Scan(ctx); err != nil {
		h.logger.Error("ccu scan failed",
			zap.Error(err),
			zap.String("task_type", TypeCCUScan),
			zap.String("task_id", taskID),
		)
		return fmt.Errorf("ccu scan: %w", err)
	}

	h.logger.Debug("ccu scan completed",
		zap.String("task_type", TypeCCUScan),
		zap.String("task_id", taskID),
	)
	return nil
}
