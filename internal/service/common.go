package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/attendify-api/internal/models"
	appErrors "github.com/noah-isme/attendify-api/pkg/errors"
)

// txRunner executes a unit of work atomically.
type txRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// auditRecorder accepts audit events after a change has committed.
type auditRecorder interface {
	Record(ctx context.Context, event models.AuditEvent)
}

// storageFailure logs a persistence error with its context and returns the
// generic storage error shown to callers.
func storageFailure(logger *zap.Logger, msg string, err error, fields ...zap.Field) error {
	logger.Error(msg, append(fields, zap.Error(err))...)
	return appErrors.Storage(err)
}

// passThrough returns typed domain errors unchanged and treats everything
// else as a storage failure.
func passThrough(logger *zap.Logger, msg string, err error, fields ...zap.Field) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return storageFailure(logger, msg, err, fields...)
}

func record(audit auditRecorder, ctx context.Context, event models.AuditEvent) {
	if audit == nil {
		return
	}
	audit.Record(ctx, event)
}

// validID reports whether id is a well-formed record identity. Malformed ids
// can never match a stored row.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
