package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/urbix-hr/urbix/internal/license"
)

// LicenseVerifyJob runs the periodic online license re-verification.
// Network unavailability is absorbed inside the service; only storage
// failures surface as retryable errors.
type LicenseVerifyJob struct {
	Licenses *license.Service
	Logger   *slog.Logger
}

// NewLicenseVerifyJob wires dependencies for the verification handler.
func NewLicenseVerifyJob(licenses *license.Service, logger *slog.Logger) *LicenseVerifyJob {
	return &LicenseVerifyJob{Licenses: licenses, Logger: logger}
}

// Handle processes TaskLicenseVerify tasks.
func (j *LicenseVerifyJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil {
		return errors.New("license verify: handler not configured")
	}
	if err := j.Licenses.VerifyOnline(ctx); err != nil {
		j.Logger.Error("license verification failed", slog.Any("error", err))
		return err
	}
	return nil
}
