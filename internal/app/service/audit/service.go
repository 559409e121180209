// Package audit records security- and money-relevant decisions.
package audit

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/britonmearsty/secureuploadhub-sub006/internal/models"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/logctx"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/tool"
)

const (
	ActionAmountMismatch    = "payment_amount_mismatch"
	ActionAmountReview      = "payment_amount_review"
	ActionRefundIssued      = "payment_refunded"
	ActionCancelAfterRefund = "subscription_cancel_after_refund"
	ActionWebhookUnmatched  = "webhook_unmatched"
	ActionTransition        = "subscription_transition"
)

type Entry struct {
	Action     string
	EntityType string
	EntityID   string
	Severity   models.AuditSeverity
	Details    map[string]any
}

// Recorder is what other services depend on.
type Recorder interface {
	Record(ctx context.Context, e *Entry)
}

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Record persists e. Write errors are logged and swallowed.
func (s *Service) Record(ctx context.Context, e *Entry) {
	if e == nil {
		return
	}
	if err := s.save(ctx, e); err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("audit_write_failed", "action", e.Action, "entity_id", e.EntityID, "err", err)
	}
}

func (s *Service) save(ctx context.Context, e *Entry) error {
	sev := e.Severity
	if sev == "" {
		sev = models.AuditSeverityInfo
	}
	row := &models.AuditLog{
		ID:         tool.GenerateUUIDV7(),
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Severity:   sev,
		Details:    datatypes.JSONMap(e.Details),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

// List returns the newest entries for an entity.
func (s *Service) List(ctx context.Context, entityID string, limit int) ([]*models.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []*models.AuditLog
	err := s.db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("created_at desc").Order("id desc").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

var Module = fx.Options(
	fx.Provide(New),
	fx.Provide(func(s *Service) Recorder { return s }),
)
