package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/attendify-api/internal/models"
	"github.com/noah-isme/attendify-api/pkg/jobs"
)

const auditJobType = "audit.event"

type auditRepository interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// AuditService delivers audit events to the audit log asynchronously.
// Delivery failures are logged and counted, never returned to callers.
type AuditService struct {
	repo    auditRepository
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
}

// NewAuditService constructs the audit sink and its delivery queue.
func NewAuditService(repo auditRepository, metrics *MetricsService, cfg jobs.QueueConfig) *AuditService {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	svc := &AuditService{repo: repo, metrics: metrics, logger: cfg.Logger}
	svc.queue = jobs.NewQueue("audit", svc.handle, cfg)
	return svc
}

// Start launches the delivery workers.
func (s *AuditService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *AuditService) Stop() {
	s.queue.Stop()
}

// Record enqueues an event for delivery.
func (s *AuditService) Record(_ context.Context, event models.AuditEvent) {
	if s == nil {
		return
	}
	job := jobs.Job{ID: uuid.NewString(), Type: auditJobType, Payload: event}
	if err := s.queue.Enqueue(job); err != nil {
		s.metrics.RecordAuditFailure()
		s.logger.Warn("audit event dropped",
			zap.String("action", string(event.Action)),
			zap.String("actor_id", event.ActorID),
			zap.Error(err))
	}
}

func (s *AuditService) handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.AuditEvent)
	if !ok {
		s.logger.Error("unexpected audit payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
	log, err := toAuditLog(event)
	if err != nil {
		s.metrics.RecordAuditFailure()
		s.logger.Error("encode audit event failed", zap.Error(err))
		return nil
	}
	if err := s.repo.Create(ctx, log); err != nil {
		s.metrics.RecordAuditFailure()
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

func toAuditLog(event models.AuditEvent) (*models.AuditLog, error) {
	log := &models.AuditLog{
		Action:      event.Action,
		Description: event.Description,
		CreatedAt:   event.OccurredAt,
	}
	if event.ActorID != "" {
		actor := event.ActorID
		log.ActorID = &actor
	}
	if len(event.Metadata) > 0 {
		raw, err := json.Marshal(event.Metadata)
		if err != nil {
			return nil, err
		}
		meta := string(raw)
		log.Metadata = &meta
	}
	return log, nil
}
