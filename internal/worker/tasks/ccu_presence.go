package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// PresenceWriter refreshes a single user's online presence key. Implemented
// by internal/ccu.Writer; declared here as a narrow interface so this
// package never imports internal/ccu.
type PresenceWriter interface {
	Touch(ctx context.Context, userID string, ttl time.Duration) error
}

// PresenceHandler adapts a PresenceWriter to an asynq task handler for
// TypeCCUPresence tasks.
type PresenceHandler struct {
	writer PresenceWriter
	ttl    time.Duration
	logger *zap.Logger
}

// NewPresenceHandler creates a handler with injected dependencies. ttl is
// the online:<user_id> key's lifetime.
func NewPresenceHandler(writer PresenceWriter, ttl time.Duration, logger *zap.Logger) *PresenceHandler {
	return &PresenceHandler{writer: writer, ttl: ttl, logger: logger}
}

// Handle writes the presence key. Failure is logged but never retried —
// the next authenticated request from this user will refresh it anyway.
func (h *PresenceHandler) Handle(ctx context.Context, t *asynq.Task) error {
	userID := string(t.Payload())
	if err := h.writer.Touch(ctx, userID, h.ttl); err != nil {
		h.logger.Warn("presence write failed", zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("presence touch: %w", err)
	}
	return nil
}
