package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/amount"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/audit"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/ledger"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/refund"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/statistics"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/subscription"
	webhooklog "github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/webhook_log"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/models"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/platform/cache"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/platform/mailer"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/testutil"
	cfgpkg "github.com/britonmearsty/secureuploadhub-sub006/pkg/config"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/response"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/types"
)

type adminFixture struct {
	db      *gorm.DB
	r       *gin.Engine
	sub     *models.Subscription
	payment *models.Payment
}

func newAdminFixture(t *testing.T) *adminFixture {
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	log := zap.NewNop().Sugar()
	cfg := &cfgpkg.Config{Billing: cfgpkg.BillingConfig{
		AmountTolerance:  cfgpkg.ToleranceConfig{Percentage: 0.02, AbsoluteCapMinor: 500, AllowOverpayment: true},
		RenewalTolerance: cfgpkg.ToleranceConfig{Percentage: 0.05, AbsoluteCapMinor: 1000, AllowOverpayment: true, AllowUnderpayment: true},
		LockTimeout:      time.Second,
		LockTTL:          5 * time.Second,
		LockRetryDelay:   10 * time.Millisecond,
	}}
	auditor := audit.New(db, log)
	notifier := mailer.NewLogNotifier(log)
	validator := amount.New(db, cfg, log, nil)
	engine := subscription.NewEngine(db, cache.NewMemoryLocker(), validator, auditor, notifier, nil, cfg, log)

	logs := webhooklog.NewSync(db, log)

	r := gin.New()
	RegisterAdminRoutes(r.Group("/api/v1/admin"), AdminServices{
		Refunds:   refund.New(db, nil, cache.NewMemoryLocker(), auditor, notifier, nil, cfg, log),
		Scanner:   ledger.New(db),
		History:   engine,
		Validator: validator,
		Stats:     statistics.New(db),
		Webhooks:  logs,
	})

	user := testutil.CreateUser(t, db, "admin-test@example.com")
	plan := testutil.CreatePlan(t, db, "pro", "100.00", "NGN")
	sub := testutil.CreateSubscription(t, db, user.ID, plan.ID, types.SubscriptionStatusActive)
	p := testutil.CreatePayment(t, db, &models.Payment{
		SubscriptionID:     lo.ToPtr(sub.ID),
		UserID:             user.ID,
		Amount:             10000,
		Status:             types.PaymentStatusSucceeded,
		ProviderPaymentRef: lo.ToPtr("ref_admin"),
	})
	logs.Save(context.Background(), &models.WebhookEventLog{
		ProviderID: "paystack",
		Event:      "charge.success",
		Reference:  "ref_admin",
		Data:       datatypes.JSON(`{"event":"charge.success"}`),
		Status:     models.WebhookEventLogStatusHandled,
	})
	return &adminFixture{db: db, r: r, sub: sub, payment: p}
}

func (f *adminFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)
	return w
}

func TestApiRefundPayment(t *testing.T) {
	f := newAdminFixture(t)

	w := f.do(http.MethodPost, "/api/v1/admin/refund_payment", `{"payment_id":"`+f.payment.ID+`","amount":4000,"reason":"goodwill","operator_id":"ops"}`)
	res := decode[refund.Result](t, w)
	require.Equal(t, response.APIResponseCodeOK, res.Code)
	assert.EqualValues(t, 6000, res.Data.Remaining)

	w = f.do(http.MethodPost, "/api/v1/admin/refund_payment", `{"payment_id":"`+f.payment.ID+`","amount":6001,"operator_id":"ops"}`)
	assert.Equal(t, response.APIResponseCodeConflict, decode[any](t, w).Code)

	w = f.do(http.MethodPost, "/api/v1/admin/refund_payment", `{"payment_id":"nope","amount":1,"operator_id":"ops"}`)
	assert.Equal(t, response.APIResponseCodeNotFound, decode[any](t, w).Code)

	w = f.do(http.MethodPost, "/api/v1/admin/refund_payment", `{"payment_id":"`+f.payment.ID+`"}`)
	assert.Equal(t, response.APIResponseCodeBadRequest, decode[any](t, w).Code)
}

func TestApiListPayments(t *testing.T) {
	f := newAdminFixture(t)
	w := f.do(http.MethodPost, "/api/v1/admin/list_payments", `{"filters":[{"field":"status","operator":"eq","values":["succeeded"]}],"size":10}`)
	res := decode[ledger.ScanPaymentsResponse](t, w)
	require.Equal(t, response.APIResponseCodeOK, res.Code)
	assert.EqualValues(t, 1, res.Data.Total)

	w = f.do(http.MethodPost, "/api/v1/admin/list_payments", `{"sort_by":"user_id"}`)
	assert.Equal(t, response.APIResponseCodeBadRequest, decode[any](t, w).Code)
}

func TestApiSubscriptionHistory(t *testing.T) {
	f := newAdminFixture(t)
	w := f.do(http.MethodGet, "/api/v1/admin/subscription/"+f.sub.ID+"/history", "")
	res := decode[SubscriptionHistoryResponse](t, w)
	require.Equal(t, response.APIResponseCodeOK, res.Code)
	assert.Equal(t, f.sub.ID, res.Data.Subscription.ID)
	assert.Empty(t, res.Data.History)

	w = f.do(http.MethodGet, "/api/v1/admin/subscription/missing/history", "")
	assert.Equal(t, response.APIResponseCodeNotFound, decode[any](t, w).Code)
}

func TestApiValidateAmount(t *testing.T) {
	f := newAdminFixture(t)
	w := f.do(http.MethodPost, "/api/v1/admin/validate_amount", `{"subscription_id":"`+f.sub.ID+`","amount":9000,"currency":"NGN"}`)
	res := decode[amount.Validation](t, w)
	require.Equal(t, response.APIResponseCodeOK, res.Code)
	assert.False(t, res.Data.IsValid)
	assert.Equal(t, amount.ActionReject, res.Data.SuggestedAction)

	w = f.do(http.MethodPost, "/api/v1/admin/validate_amount", `{"subscription_id":"`+f.sub.ID+`","amount":9500,"currency":"NGN","renewal":true}`)
	res = decode[amount.Validation](t, w)
	assert.Equal(t, amount.ActionAccept, res.Data.SuggestedAction)

	w = f.do(http.MethodPost, "/api/v1/admin/validate_amount", `{"subscription_id":"missing","amount":1,"currency":"NGN"}`)
	assert.Equal(t, response.APIResponseCodeNotFound, decode[any](t, w).Code)
}

func TestApiGetBillingStatistic(t *testing.T) {
	f := newAdminFixture(t)
	w := f.do(http.MethodPost, "/api/v1/admin/get_billing_statistic", `{"data_items":[{"id":"total_net_revenue"}]}`)
	res := decode[statistics.BillingStatisticResponse](t, w)
	require.Equal(t, response.APIResponseCodeOK, res.Code)
	assert.Equal(t, []statistics.BillingStatisticResponseDataItem{{Label: "NGN", Value: 10000}},
		res.Data.DataItems[statistics.StatisticTypeTotalNetRevenue])
}

func TestApiWebhookEvents(t *testing.T) {
	f := newAdminFixture(t)
	w := f.do(http.MethodGet, "/api/v1/admin/webhook_events?reference=ref_admin", "")
	res := decode[[]*models.WebhookEventLog](t, w)
	require.Equal(t, response.APIResponseCodeOK, res.Code)
	require.Len(t, res.Data, 1)
	assert.Equal(t, "charge.success", res.Data[0].Event)

	w = f.do(http.MethodGet, "/api/v1/admin/webhook_events?reference=other", "")
	assert.Empty(t, decode[[]*models.WebhookEventLog](t, w).Data)

	w = f.do(http.MethodGet, "/api/v1/admin/webhook_events", "")
	assert.Equal(t, response.APIResponseCodeBadRequest, decode[any](t, w).Code)
}
