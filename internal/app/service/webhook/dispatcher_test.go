package webhook

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/amount"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/audit"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/correlation"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/refund"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/subscription"
	webhooklog "github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/webhook_log"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/models"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/platform/cache"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/platform/mailer"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/testutil"
	cfgpkg "github.com/britonmearsty/secureuploadhub-sub006/pkg/config"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/types"
)

const testSecret = "sk_test_webhook"

type harness struct {
	db   *gorm.DB
	d    *Dispatcher
	user *models.User
	plan *models.BillingPlan
}

func testConfig() *cfgpkg.Config {
	return &cfgpkg.Config{
		Paystack: cfgpkg.PaystackConfig{WebhookSecret: testSecret},
		Billing: cfgpkg.BillingConfig{
			AmountTolerance:  cfgpkg.ToleranceConfig{Percentage: 0.02, AbsoluteCapMinor: 500, AllowOverpayment: true},
			RenewalTolerance: cfgpkg.ToleranceConfig{Percentage: 0.05, AbsoluteCapMinor: 1000, AllowOverpayment: true, AllowUnderpayment: true},
			LockTimeout:      time.Second,
			LockTTL:          5 * time.Second,
			LockRetryDelay:   10 * time.Millisecond,
		},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	log := zap.NewNop().Sugar()
	cfg := testConfig()
	auditor := audit.New(db, log)
	notifier := mailer.NewLogNotifier(log)
	locker := cache.NewMemoryLocker()
	engine := subscription.NewEngine(db, locker, amount.New(db, cfg, log, nil), auditor, notifier, nil, cfg, log)
	resolver := correlation.New(db, cache.NewMemoryKV(time.Now), log, nil)
	refunds := refund.New(db, nil, locker, auditor, notifier, nil, cfg, log)
	h := &harness{
		db: db,
		d:  NewDispatcher(db, resolver, engine, refunds, auditor, webhooklog.NewSync(db, log), nil, cfg, log),
	}
	h.user = testutil.CreateUser(t, db, "payer@example.com")
	h.plan = testutil.CreatePlan(t, db, "pro", "100.00", "NGN")
	return h
}

func (h *harness) receive(t *testing.T, body string) (*Outcome, error) {
	t.Helper()
	return h.d.Receive(context.Background(), []byte(body), Sign([]byte(body), testSecret))
}

func (h *harness) count(t *testing.T, model any) int64 {
	var n int64
	require.NoError(t, h.db.Model(model).Count(&n).Error)
	return n
}

func chargeBody(event, ref string, amt int64, email, metadata string) string {
	return fmt.Sprintf(`{"event":%q,"data":{"id":42,"reference":%q,"amount":%d,"currency":"NGN","status":"success","customer":{"email":%q},"metadata":%s}}`,
		event, ref, amt, email, metadata)
}

func TestReceive_SignatureMismatchMutatesNothing(t *testing.T) {
	h := newHarness(t)
	sub := testutil.CreateSubscription(t, h.db, h.user.ID, h.plan.ID, types.SubscriptionStatusIncomplete)
	body := chargeBody(EventChargeSuccess, "ref_1", 10000, h.user.Email, fmt.Sprintf(`{"subscription_id":%q}`, sub.ID))
	signedOver := body + " "

	_, err := h.d.Receive(context.Background(), []byte(body), Sign([]byte(signedOver), testSecret))
	assert.ErrorIs(t, err, ErrSignature)

	_, err = h.d.Receive(context.Background(), []byte(body), "")
	assert.ErrorIs(t, err, ErrSignature)

	assert.Zero(t, h.count(t, &models.Payment{}))
	assert.Zero(t, h.count(t, &models.AuditLog{}))
	assert.Zero(t, h.count(t, &models.WebhookEventLog{}))
	assert.Zero(t, h.count(t, &models.ProcessedWebhookEvent{}))
}

func TestReceive_InvalidPayload(t *testing.T) {
	h := newHarness(t)
	_, err := h.receive(t, `{"event":"charge.success","data":{"amount":100}}`)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestReceive_InvoiceWithoutReferenceIsRejected(t *testing.T) {
	h := newHarness(t)
	sub := testutil.CreateSubscription(t, h.db, h.user.ID, h.plan.ID, types.SubscriptionStatusActive, func(s *models.Subscription) {
		s.ProviderSubscriptionID = lo.ToPtr("SUB_noref")
	})
	body := `{"event":"invoice.payment_failed","data":{"id":5,"amount":10000,"status":"failed","subscription":{"subscription_code":"SUB_noref"}}}`

	for i := 0; i < 2; i++ {
		_, err := h.receive(t, body)
		assert.ErrorIs(t, err, ErrInvalidPayload)
	}

	var got models.Subscription
	require.NoError(t, h.db.Where("id = ?", sub.ID).First(&got).Error)
	assert.Equal(t, types.SubscriptionStatusActive, got.Status)
	assert.Zero(t, got.RetryCount)
	assert.Zero(t, h.count(t, &models.Payment{}))
}

func TestReceive_UnknownEventIsAcknowledged(t *testing.T) {
	h := newHarness(t)
	out, err := h.receive(t, `{"event":"transfer.success","data":{"reference":"tr_1"}}`)
	require.NoError(t, err)
	assert.True(t, out.Ignored)
	assert.Zero(t, h.count(t, &models.AuditLog{}))
	assert.Zero(t, h.count(t, &models.WebhookEventLog{}))
	assert.Zero(t, h.count(t, &models.ProcessedWebhookEvent{}))
}

func TestReceive_ChargeActivatesViaMetadataAndDedupes(t *testing.T) {
	h := newHarness(t)
	sub := testutil.CreateSubscription(t, h.db, h.user.ID, h.plan.ID, types.SubscriptionStatusIncomplete)
	// metadata delivered as a JSON string
	body := chargeBody(EventChargeSuccess, "ref_meta", 10000, "someone-else@example.com", fmt.Sprintf(`"{\"subscription_id\":\"%s\"}"`, sub.ID))

	out, err := h.receive(t, body)
	require.NoError(t, err)
	assert.True(t, out.Handled)
	assert.Equal(t, sub.ID, out.SubscriptionID)
	assert.Equal(t, correlation.StrategyMetadataSubscriptionID, out.Strategy)

	var got models.Subscription
	require.NoError(t, h.db.Where("id = ?", sub.ID).First(&got).Error)
	assert.Equal(t, types.SubscriptionStatusActive, got.Status)

	out, err = h.receive(t, body)
	require.NoError(t, err)
	assert.True(t, out.Duplicate)

	var payments int64
	require.NoError(t, h.db.Model(&models.Payment{}).Where("provider_payment_ref = ? AND status = ?", "ref_meta", types.PaymentStatusSucceeded).Count(&payments).Error)
	assert.EqualValues(t, 1, payments)

	var logs []*models.WebhookEventLog
	require.NoError(t, h.db.Where("reference = ?", "ref_meta").Find(&logs).Error)
	assert.Len(t, logs, 2)
}

func TestReceive_UnmatchedChargeIsDroppedWithAudit(t *testing.T) {
	h := newHarness(t)
	out, err := h.receive(t, chargeBody(EventChargeSuccess, "ref_orphan", 10000, "ghost@example.com", "{}"))
	require.NoError(t, err)
	assert.False(t, out.Handled)
	assert.Zero(t, h.count(t, &models.Payment{}))
	assert.Zero(t, h.count(t, &models.ProcessedWebhookEvent{}))

	var a models.AuditLog
	require.NoError(t, h.db.Where("action = ?", audit.ActionWebhookUnmatched).First(&a).Error)
	assert.Equal(t, "ref_orphan", a.EntityID)
}

func TestReceive_AmountRejectionStillAcknowledged(t *testing.T) {
	h := newHarness(t)
	sub := testutil.CreateSubscription(t, h.db, h.user.ID, h.plan.ID, types.SubscriptionStatusIncomplete)
	out, err := h.receive(t, chargeBody(EventChargeSuccess, "ref_low", 9000, h.user.Email, fmt.Sprintf(`{"subscription_id":%q}`, sub.ID)))
	require.NoError(t, err)
	assert.False(t, out.Handled)
	require.NotNil(t, out.Result)
	assert.Equal(t, subscription.ReasonAmountMismatchRejected, out.Result.Reason)
}

func TestReceive_InvoiceFailuresKeepGracePeriod(t *testing.T) {
	h := newHarness(t)
	sub := testutil.CreateSubscription(t, h.db, h.user.ID, h.plan.ID, types.SubscriptionStatusActive, func(s *models.Subscription) {
		s.ProviderSubscriptionID = lo.ToPtr("SUB_grace")
	})
	invoice := func(code string) string {
		return fmt.Sprintf(`{"event":"invoice.payment_failed","data":{"id":77,"invoice_code":%q,"amount":10000,"currency":"NGN","status":"failed","paid":false,"subscription":{"subscription_code":"SUB_grace"},"customer":{"email":%q}}}`, code, h.user.Email)
	}

	_, err := h.receive(t, invoice("INV_1"))
	require.NoError(t, err)
	var first models.Subscription
	require.NoError(t, h.db.Where("id = ?", sub.ID).First(&first).Error)
	require.NotNil(t, first.GracePeriodEnd)

	out, err := h.receive(t, invoice("INV_2"))
	require.NoError(t, err)
	assert.Equal(t, correlation.StrategyProviderSubscriptionID, out.Strategy)

	var second models.Subscription
	require.NoError(t, h.db.Where("id = ?", sub.ID).First(&second).Error)
	assert.Equal(t, types.SubscriptionStatusPastDue, second.Status)
	assert.Equal(t, 2, second.RetryCount)
	assert.WithinDuration(t, *first.GracePeriodEnd, *second.GracePeriodEnd, time.Millisecond)
}

func TestReceive_SubscriptionLifecycle(t *testing.T) {
	h := newHarness(t)
	sub := testutil.CreateSubscription(t, h.db, h.user.ID, h.plan.ID, types.SubscriptionStatusActive)
	subEvent := func(name string) string {
		return fmt.Sprintf(`{"event":%q,"data":{"subscription_code":"SUB_life","status":"active","customer":{"email":%q,"customer_code":"CUS_life"},"plan":"PLN_pro"}}`, name, h.user.Email)
	}

	out, err := h.receive(t, subEvent(EventSubscriptionCreate))
	require.NoError(t, err)
	assert.True(t, out.Handled)
	assert.Equal(t, correlation.StrategyEmailRecentStatus, out.Strategy)

	out, err = h.receive(t, subEvent(EventSubscriptionNotRenew))
	require.NoError(t, err)
	assert.Equal(t, correlation.StrategyProviderSubscriptionID, out.Strategy)

	out, err = h.receive(t, subEvent(EventSubscriptionDisable))
	require.NoError(t, err)
	assert.True(t, out.Handled)

	var got models.Subscription
	require.NoError(t, h.db.Where("id = ?", sub.ID).First(&got).Error)
	assert.Equal(t, "SUB_life", lo.FromPtr(got.ProviderSubscriptionID))
	assert.Equal(t, "CUS_life", lo.FromPtr(got.ProviderCustomerID))
	assert.Equal(t, types.SubscriptionStatusCanceled, got.Status)
	assert.True(t, got.CancelAtPeriodEnd)
}

func TestReceive_ProviderRefund(t *testing.T) {
	h := newHarness(t)
	sub := testutil.CreateSubscription(t, h.db, h.user.ID, h.plan.ID, types.SubscriptionStatusActive)
	testutil.CreatePayment(t, h.db, &models.Payment{
		SubscriptionID:     lo.ToPtr(sub.ID),
		UserID:             h.user.ID,
		Amount:             10000,
		Status:             types.PaymentStatusSucceeded,
		ProviderPaymentRef: lo.ToPtr("ref_paid"),
	})
	body := `{"event":"refund.processed","data":{"id":9,"transaction_reference":"ref_paid","amount":2500,"currency":"NGN","status":"processed"}}`

	out, err := h.receive(t, body)
	require.NoError(t, err)
	assert.True(t, out.Handled)
	assert.Equal(t, sub.ID, out.SubscriptionID)

	out, err = h.receive(t, body)
	require.NoError(t, err)
	assert.True(t, out.Duplicate)

	var refunds int64
	require.NoError(t, h.db.Model(&models.Payment{}).Where("amount < 0").Count(&refunds).Error)
	assert.EqualValues(t, 1, refunds)
}

type stubResolver struct{ id string }

func (s stubResolver) Resolve(context.Context, *correlation.Input) (*correlation.Match, error) {
	return &correlation.Match{SubscriptionID: s.id, Strategy: "stub"}, nil
}

type stubTransitions struct {
	Transitions
	apply func() (subscription.Result, error)
}

func (s stubTransitions) ApplyCharge(context.Context, string, *subscription.PaymentEvent) (subscription.Result, error) {
	return s.apply()
}

func newStubDispatcher(t *testing.T, tr Transitions) *Dispatcher {
	db := testutil.NewDB(t)
	return NewDispatcher(db, stubResolver{id: "sub_1"}, tr, nil, nil, nil, nil, testConfig(), zap.NewNop().Sugar())
}

func TestDispatch_LockTimeoutAsksForRedelivery(t *testing.T) {
	d := newStubDispatcher(t, stubTransitions{apply: func() (subscription.Result, error) {
		return subscription.Result{Reason: subscription.ReasonLockTimeout}, nil
	}})
	ev, err := ParseEvent([]byte(chargeBody(EventChargeSuccess, "ref_busy", 10000, "a@example.com", "{}")))
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), ev)
	assert.ErrorIs(t, err, ErrRetryLater)

	seen, err := d.processed(context.Background(), EventChargeSuccess, "ref_busy")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestDispatch_RecoversFromHandlerPanic(t *testing.T) {
	d := newStubDispatcher(t, stubTransitions{apply: func() (subscription.Result, error) {
		panic("boom")
	}})
	ev, err := ParseEvent([]byte(chargeBody(EventChargeSuccess, "ref_panic", 10000, "a@example.com", "{}")))
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		_, err = d.Dispatch(context.Background(), ev)
	})
	assert.ErrorContains(t, err, "panic: boom")
}
