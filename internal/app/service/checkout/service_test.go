package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/correlation"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/models"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/platform/cache"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/platform/paystack"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/testutil"
	cfgpkg "github.com/britonmearsty/secureuploadhub-sub006/pkg/config"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/types"
)

type mockGateway struct{ mock.Mock }

func (m *mockGateway) InitializeTransaction(ctx context.Context, req *paystack.InitializeRequest) (*paystack.InitializeResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*paystack.InitializeResult)
	return res, args.Error(1)
}

func (m *mockGateway) CreateOrGetCustomer(ctx context.Context, email, name string) (*paystack.Customer, error) {
	args := m.Called(ctx, email, name)
	res, _ := args.Get(0).(*paystack.Customer)
	return res, args.Error(1)
}

func (m *mockGateway) CreateOrGetPlan(ctx context.Context, req *paystack.PlanRequest) (*paystack.Plan, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*paystack.Plan)
	return res, args.Error(1)
}

func (m *mockGateway) Refund(ctx context.Context, req *paystack.RefundRequest) (*paystack.Refund, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*paystack.Refund)
	return res, args.Error(1)
}

type fixture struct {
	db       *gorm.DB
	gw       *mockGateway
	resolver *correlation.Resolver
	svc      *Service
	user     *models.User
	plan     *models.BillingPlan
}

func newFixture(t *testing.T) *fixture {
	db := testutil.NewDB(t)
	log := zap.NewNop().Sugar()
	cfg := &cfgpkg.Config{
		Paystack: cfgpkg.PaystackConfig{CallbackURL: "https://app.example.com/billing/return"},
		Billing:  cfgpkg.BillingConfig{ReferenceCacheTTL: time.Hour},
	}
	f := &fixture{db: db, gw: &mockGateway{}}
	f.resolver = correlation.New(db, cache.NewMemoryKV(time.Now), log, nil)
	f.svc = New(db, f.gw, f.resolver, cfg, log)
	f.user = testutil.CreateUser(t, db, "buyer@example.com")
	f.plan = testutil.CreatePlan(t, db, "pro", "100.00", "ngn")
	return f
}

func (f *fixture) expectProvider() {
	f.gw.On("CreateOrGetCustomer", mock.Anything, "buyer@example.com", "Test User").
		Return(&paystack.Customer{CustomerCode: "CUS_1"}, nil).Once()
	f.gw.On("CreateOrGetPlan", mock.Anything, mock.MatchedBy(func(r *paystack.PlanRequest) bool {
		return r.Amount == 10000 && r.Currency == "NGN"
	})).Return(&paystack.Plan{PlanCode: "PLN_pro"}, nil)
}

func TestStart_CreatesPendingRecordsAndCachesReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.expectProvider()
	var sent *paystack.InitializeRequest
	f.gw.On("InitializeTransaction", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*paystack.InitializeRequest) }).
		Return(&paystack.InitializeResult{AuthorizationURL: "https://checkout.paystack.com/abc", AccessCode: "abc"}, nil)

	s, err := f.svc.Start(ctx, &Request{UserID: f.user.ID, PlanID: f.plan.ID})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.paystack.com/abc", s.AuthorizationURL)
	assert.EqualValues(t, 10000, s.Amount)
	assert.Equal(t, "NGN", s.Currency)

	require.NotNil(t, sent)
	assert.Equal(t, s.Reference, sent.Reference)
	assert.Equal(t, "PLN_pro", sent.Plan)
	assert.Equal(t, s.SubscriptionID, sent.Metadata["subscription_id"])
	assert.Equal(t, f.user.ID, sent.Metadata["user_id"])
	assert.Equal(t, f.plan.ID, sent.Metadata["plan_id"])

	var sub models.Subscription
	require.NoError(t, f.db.Where("id = ?", s.SubscriptionID).First(&sub).Error)
	assert.Equal(t, types.SubscriptionStatusIncomplete, sub.Status)
	assert.Equal(t, "CUS_1", lo.FromPtr(sub.ProviderCustomerID))

	var p models.Payment
	require.NoError(t, f.db.Where("provider_payment_ref = ?", s.Reference).First(&p).Error)
	assert.Equal(t, types.PaymentStatusPending, p.Status)
	assert.EqualValues(t, 10000, p.Amount)

	var plan models.BillingPlan
	require.NoError(t, f.db.Where("id = ?", f.plan.ID).First(&plan).Error)
	assert.Equal(t, "PLN_pro", lo.FromPtr(plan.ProviderPlanCode))

	m, err := f.resolver.Resolve(ctx, &correlation.Input{Reference: s.Reference})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, correlation.StrategyReferenceCache, m.Strategy)
	assert.Equal(t, s.SubscriptionID, m.SubscriptionID)
}

func TestStart_ReusesIncompleteSubscription(t *testing.T) {
	f := newFixture(t)
	f.expectProvider()
	f.gw.On("InitializeTransaction", mock.Anything, mock.Anything).Return(&paystack.InitializeResult{}, nil)

	first, err := f.svc.Start(context.Background(), &Request{UserID: f.user.ID, PlanID: f.plan.ID})
	require.NoError(t, err)
	second, err := f.svc.Start(context.Background(), &Request{UserID: f.user.ID, PlanID: f.plan.ID})
	require.NoError(t, err)

	assert.Equal(t, first.SubscriptionID, second.SubscriptionID)
	assert.NotEqual(t, first.Reference, second.Reference)
	// customer code is stored after the first call
	f.gw.AssertNumberOfCalls(t, "CreateOrGetCustomer", 1)
}

func TestStart_RejectsLiveSubscriptionAndUnknownInputs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, &Request{UserID: "nobody", PlanID: f.plan.ID})
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = f.svc.Start(ctx, &Request{UserID: f.user.ID, PlanID: "missing"})
	assert.ErrorIs(t, err, ErrPlanNotFound)

	testutil.CreateSubscription(t, f.db, f.user.ID, f.plan.ID, types.SubscriptionStatusActive)
	f.expectProvider()
	_, err = f.svc.Start(ctx, &Request{UserID: f.user.ID, PlanID: f.plan.ID})
	assert.ErrorIs(t, err, ErrAlreadySubscribed)
	f.gw.AssertNotCalled(t, "InitializeTransaction", mock.Anything, mock.Anything)
}

func TestStart_InitializeFailureMarksPaymentFailed(t *testing.T) {
	f := newFixture(t)
	f.expectProvider()
	f.gw.On("InitializeTransaction", mock.Anything, mock.Anything).Return(nil, paystack.ErrProvider)

	_, err := f.svc.Start(context.Background(), &Request{UserID: f.user.ID, PlanID: f.plan.ID})
	assert.ErrorIs(t, err, paystack.ErrProvider)

	var p models.Payment
	require.NoError(t, f.db.First(&p).Error)
	assert.Equal(t, types.PaymentStatusFailed, p.Status)
}
