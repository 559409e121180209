package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/checkout"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/ledger"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/response"
)

type stubCheckout struct {
	err error
}

func (s stubCheckout) Start(_ context.Context, req *checkout.Request) (*checkout.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &checkout.Session{SubscriptionID: "sub_1", Reference: "sub_ref", AuthorizationURL: "https://pay/" + req.PlanID}, nil
}

type stubScanner struct {
	got *ledger.ScanPaymentsRequest
}

func (s *stubScanner) ScanPayments(_ context.Context, req *ledger.ScanPaymentsRequest) (*ledger.ScanPaymentsResponse, error) {
	s.got = req
	return &ledger.ScanPaymentsResponse{Total: 0}, nil
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) *response.APIResponse[T] {
	t.Helper()
	var out response.APIResponse[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return &out
}

func newBillingRouter(co CheckoutStarter, scanner PaymentScanner) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterBillingRoutes(r.Group("/api/v1/billing"), co, scanner)
	return r
}

func TestApiStartCheckout(t *testing.T) {
	r := newBillingRouter(stubCheckout{}, &stubScanner{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", strings.NewReader(`{"user_id":"u1","plan_id":"pro"}`)))

	require.Equal(t, http.StatusOK, w.Code)
	res := decode[checkout.Session](t, w)
	assert.Equal(t, response.APIResponseCodeOK, res.Code)
	assert.Equal(t, "https://pay/pro", res.Data.AuthorizationURL)
}

func TestApiStartCheckout_ErrorCodes(t *testing.T) {
	cases := map[error]response.APIResponseCode{
		checkout.ErrPlanNotFound:      response.APIResponseCodeNotFound,
		checkout.ErrAlreadySubscribed: response.APIResponseCodeConflict,
	}
	for err, code := range cases {
		r := newBillingRouter(stubCheckout{err: err}, &stubScanner{})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", strings.NewReader(`{"user_id":"u1","plan_id":"pro"}`)))
		assert.Equal(t, code, decode[any](t, w).Code, err.Error())
	}

	r := newBillingRouter(stubCheckout{}, &stubScanner{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", strings.NewReader(`{"user_id":"u1"}`)))
	assert.Equal(t, response.APIResponseCodeBadRequest, decode[any](t, w).Code)
}

func TestApiUserPayments_ScopesToUser(t *testing.T) {
	scanner := &stubScanner{}
	r := newBillingRouter(stubCheckout{}, scanner)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/billing/payment/list?user_id=u1&size=5&from=10", nil))
	require.Equal(t, response.APIResponseCodeOK, decode[any](t, w).Code)
	require.NotNil(t, scanner.got)
	assert.Equal(t, 5, scanner.got.Size)
	assert.Equal(t, 10, scanner.got.From)
	assert.Equal(t, "desc", scanner.got.SortOrder)
	require.Len(t, scanner.got.Filters, 1)
	assert.Equal(t, "user_id", scanner.got.Filters[0].Field)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/billing/payment/list", nil))
	assert.Equal(t, response.APIResponseCodeBadRequest, decode[any](t, w).Code)
}
