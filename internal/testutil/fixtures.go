package testutil

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/britonmearsty/secureuploadhub-sub006/internal/models"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/tool"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/types"
)

func CreateUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	u := &models.User{ID: tool.GenerateUUIDV7(), Email: email, Name: "Test User"}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreatePlan stores a plan priced in major units, e.g. "100.00".
func CreatePlan(t *testing.T, db *gorm.DB, name, price, currency string) *models.BillingPlan {
	t.Helper()
	p := &models.BillingPlan{
		ID:       tool.GenerateUUIDV7(),
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Currency: currency,
		IsActive: true,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func CreateSubscription(t *testing.T, db *gorm.DB, userID, planID string, status types.SubscriptionStatus, mutate ...func(*models.Subscription)) *models.Subscription {
	t.Helper()
	s := &models.Subscription{
		ID:     tool.GenerateUUIDV7(),
		UserID: userID,
		PlanID: planID,
		Status: status,
	}
	if status == types.SubscriptionStatusActive || status == types.SubscriptionStatusPastDue {
		now := time.Now()
		s.CurrentPeriodStart = lo.ToPtr(now.AddDate(0, -1, 0))
		s.CurrentPeriodEnd = lo.ToPtr(now)
		s.NextBillingDate = lo.ToPtr(now)
	}
	for _, m := range mutate {
		m(s)
	}
	require.NoError(t, db.Create(s).Error)
	return s
}

func CreatePayment(t *testing.T, db *gorm.DB, p *models.Payment) *models.Payment {
	t.Helper()
	if p.ID == "" {
		p.ID = tool.GenerateUUIDV7()
	}
	if p.Currency == "" {
		p.Currency = "NGN"
	}
	require.NoError(t, db.Create(p).Error)
	return p
}
