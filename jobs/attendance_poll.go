package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/urbix-hr/urbix/internal/attendance"
)

// AttendancePollJob drains punch events from the configured terminals.
// Each device has its own service because each wraps its own gateway
// client and cursor.
type AttendancePollJob struct {
	Devices map[string]*attendance.Service
	Logger  *slog.Logger
}

// NewAttendancePollJob wires dependencies for the poll handler.
func NewAttendancePollJob(devices map[string]*attendance.Service, logger *slog.Logger) *AttendancePollJob {
	return &AttendancePollJob{Devices: devices, Logger: logger}
}

// Handle processes TaskAttendancePoll tasks.
func (j *AttendancePollJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("attendance poll: handler not configured")
	}
	var payload AttendancePollPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Device == "" {
		return asynq.SkipRetry
	}
	svc, ok := j.Devices[payload.Device]
	if !ok {
		j.Logger.Warn("attendance poll for unknown device",
			slog.String("device", payload.Device))
		return asynq.SkipRetry
	}
	count, err := svc.Poll(ctx, payload.Device)
	if err != nil {
		j.Logger.Error("attendance poll failed",
			slog.String("device", payload.Device), slog.Any("error", err))
		return err
	}
	if count > 0 {
		j.Logger.Info("attendance poll complete",
			slog.String("device", payload.Device), slog.Int("punches", count))
	}
	return nil
}
