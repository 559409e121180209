package webhook_log

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/britonmearsty/secureuploadhub-sub006/internal/models"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/logctx"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/tool"
)

type Service struct {
	db    *gorm.DB
	log   *zap.SugaredLogger
	async bool
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log, async: true} }

// NewSync returns a Service that writes inline, for tests.
func NewSync(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

// Save persists a webhook event log off the request path. Nil input is ignored.
func (s *Service) Save(ctx context.Context, entry *models.WebhookEventLog) {
	if entry == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = tool.GenerateUUIDV7()
	}
	if !s.async {
		s.save(ctx, entry)
		return
	}
	go s.save(context.WithoutCancel(ctx), entry)
}

func (s *Service) save(ctx context.Context, entry *models.WebhookEventLog) {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		logctx.FromCtx(ctx, s.log).Errorf("failed to save webhook event log: %v", err)
	}
}

func (s *Service) ListByReference(ctx context.Context, reference string) ([]*models.WebhookEventLog, error) {
	var rows []*models.WebhookEventLog
	err := s.db.WithContext(ctx).Where("reference = ?", reference).Order("created_at asc").Find(&rows).Error
	return rows, err
}

var Module = fx.Options(
	fx.Provide(New),
)
