package subscription

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/britonmearsty/secureuploadhub-sub006/internal/models"
)

var ErrNotFound = errors.New("subscription: not found")

// Get loads one subscription without locking.
func (e *Engine) Get(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := e.db.WithContext(ctx).Where("id = ?", subscriptionID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, subscriptionID)
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// History returns the change trail of a subscription, oldest first.
func (e *Engine) History(ctx context.Context, subscriptionID string, limit int) ([]*models.SubscriptionHistory, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []*models.SubscriptionHistory
	err := e.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at").Order("id").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list subscription history: %w", err)
	}
	return rows, nil
}

// Module exposes the transition engine via Fx.
var Module = fx.Options(
	fx.Provide(NewEngine),
)
