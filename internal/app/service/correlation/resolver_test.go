package correlation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/britonmearsty/secureuploadhub-sub006/internal/models"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/platform/cache"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/testutil"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/types"
)

type failingKV struct{}

func (failingKV) Get(context.Context, string) (string, error) { return "", errors.New("down") }
func (failingKV) SetWithTTL(context.Context, string, string, time.Duration) error {
	return errors.New("down")
}
func (failingKV) Delete(context.Context, string) error { return errors.New("down") }

func newResolver(t *testing.T, kv cache.KV) (*Resolver, *gorm.DB) {
	db := testutil.NewDB(t)
	if kv == nil {
		kv = cache.NewMemoryKV(time.Now)
	}
	return New(db, kv, zap.NewNop().Sugar(), nil), db
}

func createdAt(ts time.Time) func(*models.Subscription) {
	return func(s *models.Subscription) { s.CreatedAt = ts }
}

func TestResolve_ProviderSubscriptionIDWinsFirst(t *testing.T) {
	r, db := newResolver(t, nil)
	u := testutil.CreateUser(t, db, "a@example.com")
	p := testutil.CreatePlan(t, db, "pro", "100.00", "NGN")
	linked := testutil.CreateSubscription(t, db, u.ID, p.ID, types.SubscriptionStatusActive, func(s *models.Subscription) {
		s.ProviderSubscriptionID = lo.ToPtr("SUB_abc")
	})
	other := testutil.CreateSubscription(t, db, u.ID, p.ID, types.SubscriptionStatusIncomplete)

	m, err := r.Resolve(context.Background(), &Input{
		ProviderSubscriptionID: "SUB_abc",
		MetadataSubscriptionID: other.ID,
		Email:                  u.Email,
	})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, linked.ID, m.SubscriptionID)
	assert.Equal(t, StrategyProviderSubscriptionID, m.Strategy)
}

func TestResolve_ReferenceCache(t *testing.T) {
	r, db := newResolver(t, nil)
	u := testutil.CreateUser(t, db, "a@example.com")
	p := testutil.CreatePlan(t, db, "pro", "100.00", "NGN")
	sub := testutil.CreateSubscription(t, db, u.ID, p.ID, types.SubscriptionStatusIncomplete)
	ctx := context.Background()
	require.NoError(t, r.CacheReference(ctx, "ref_1", sub.ID, time.Hour))

	m, err := r.Resolve(ctx, &Input{Reference: "ref_1"})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, sub.ID, m.SubscriptionID)
	assert.Equal(t, StrategyReferenceCache, m.Strategy)
}

func TestResolve_CacheFailureFallsThroughToMetadata(t *testing.T) {
	r, db := newResolver(t, failingKV{})
	u := testutil.CreateUser(t, db, "a@example.com")
	p := testutil.CreatePlan(t, db, "pro", "100.00", "NGN")
	sub := testutil.CreateSubscription(t, db, u.ID, p.ID, types.SubscriptionStatusIncomplete)

	m, err := r.Resolve(context.Background(), &Input{Reference: "ref_1", MetadataSubscriptionID: sub.ID})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, sub.ID, m.SubscriptionID)
	assert.Equal(t, StrategyMetadataSubscriptionID, m.Strategy)
}

func TestResolve_MetadataIgnoresNonIncomplete(t *testing.T) {
	r, db := newResolver(t, nil)
	u := testutil.CreateUser(t, db, "a@example.com")
	p := testutil.CreatePlan(t, db, "pro", "100.00", "NGN")
	canceled := testutil.CreateSubscription(t, db, u.ID, p.ID, types.SubscriptionStatusCanceled)

	m, err := r.Resolve(context.Background(), &Input{MetadataSubscriptionID: canceled.ID})
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestResolve_EmailPicksMostRecent(t *testing.T) {
	r, db := newResolver(t, nil)
	u := testutil.CreateUser(t, db, "Buyer@Example.com")
	p := testutil.CreatePlan(t, db, "pro", "100.00", "NGN")
	now := time.Now()
	testutil.CreateSubscription(t, db, u.ID, p.ID, types.SubscriptionStatusActive, createdAt(now.Add(-48*time.Hour)))
	recent := testutil.CreateSubscription(t, db, u.ID, p.ID, types.SubscriptionStatusIncomplete, createdAt(now))

	m, err := r.Resolve(context.Background(), &Input{Email: "buyer@example.com"})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, recent.ID, m.SubscriptionID)
	assert.Equal(t, StrategyEmailRecentStatus, m.Strategy)
}

func TestResolve_SeveralIncompleteDisambiguatedByAmount(t *testing.T) {
	r, db := newResolver(t, nil)
	u := testutil.CreateUser(t, db, "a@example.com")
	basic := testutil.CreatePlan(t, db, "basic", "50.00", "NGN")
	pro := testutil.CreatePlan(t, db, "pro", "100.00", "NGN")
	now := time.Now()
	proSub := testutil.CreateSubscription(t, db, u.ID, pro.ID, types.SubscriptionStatusIncomplete, createdAt(now.Add(-time.Hour)))
	testutil.CreateSubscription(t, db, u.ID, basic.ID, types.SubscriptionStatusIncomplete, createdAt(now))

	m, err := r.Resolve(context.Background(), &Input{Email: u.Email, Amount: 10000, Currency: "NGN"})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, proSub.ID, m.SubscriptionID)
	assert.Equal(t, StrategyEmailPlanAmount, m.Strategy)
}

func TestResolve_PendingPaymentAmount(t *testing.T) {
	r, db := newResolver(t, nil)
	u := testutil.CreateUser(t, db, "a@example.com")
	basic := testutil.CreatePlan(t, db, "basic", "50.00", "NGN")
	now := time.Now()
	// both incomplete and neither plan matches 7500, so only the pending row can decide
	a := testutil.CreateSubscription(t, db, u.ID, basic.ID, types.SubscriptionStatusIncomplete, createdAt(now.Add(-time.Hour)))
	testutil.CreateSubscription(t, db, u.ID, basic.ID, types.SubscriptionStatusIncomplete, createdAt(now))
	testutil.CreatePayment(t, db, &models.Payment{
		SubscriptionID: lo.ToPtr(a.ID),
		UserID:         u.ID,
		Amount:         7500,
		Status:         types.PaymentStatusPending,
	})

	m, err := r.Resolve(context.Background(), &Input{Email: u.Email, Amount: 7500, Currency: "ngn"})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, a.ID, m.SubscriptionID)
	assert.Equal(t, StrategyPendingPaymentAmount, m.Strategy)
}

func TestResolve_SeveralIncompleteWithoutAmountMatchTakeNewest(t *testing.T) {
	r, db := newResolver(t, nil)
	u := testutil.CreateUser(t, db, "a@example.com")
	basic := testutil.CreatePlan(t, db, "basic", "50.00", "NGN")
	now := time.Now()
	testutil.CreateSubscription(t, db, u.ID, basic.ID, types.SubscriptionStatusIncomplete, createdAt(now.Add(-time.Hour)))
	newest := testutil.CreateSubscription(t, db, u.ID, basic.ID, types.SubscriptionStatusIncomplete, createdAt(now))

	m, err := r.Resolve(context.Background(), &Input{Email: u.Email, Amount: 12345, Currency: "NGN"})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, newest.ID, m.SubscriptionID)
	assert.Equal(t, StrategyEmailRecentFallback, m.Strategy)
}

func TestResolve_NoMatch(t *testing.T) {
	r, _ := newResolver(t, nil)
	m, err := r.Resolve(context.Background(), &Input{Reference: "nope", Email: "ghost@example.com", Amount: 100})
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestStrategies_Order(t *testing.T) {
	r, _ := newResolver(t, nil)
	names := lo.Map(r.Strategies(), func(s Strategy, _ int) string { return s.Name })
	assert.Equal(t, []string{
		StrategyProviderSubscriptionID,
		StrategyReferenceCache,
		StrategyMetadataSubscriptionID,
		StrategyEmailRecentStatus,
		StrategyEmailPlanAmount,
		StrategyPendingPaymentAmount,
		StrategyEmailRecentFallback,
	}, names)
}

func TestSortNewestFirst_TieBreaksOnID(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	subs := []*models.Subscription{
		{ID: "a", CreatedAt: ts},
		{ID: "c", CreatedAt: ts.Add(-time.Minute)},
		{ID: "b", CreatedAt: ts},
	}
	SortNewestFirst(subs)
	assert.Equal(t, []string{"b", "a", "c"}, lo.Map(subs, func(s *models.Subscription, _ int) string { return s.ID }))
}
