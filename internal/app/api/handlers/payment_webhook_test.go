package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/webhook"
)

type stubReceiver struct {
	out       *webhook.Outcome
	err       error
	body      string
	signature string
}

func (s *stubReceiver) Receive(_ context.Context, body []byte, signature string) (*webhook.Outcome, error) {
	s.body, s.signature = string(body), signature
	return s.out, s.err
}

func serveWebhook(t *testing.T, recv WebhookReceiver) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterPaymentWebhookRoutes(r.Group("/api/v1/webhook"), recv, zap.NewNop().Sugar())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/paystack", strings.NewReader(`{"event":"charge.success"}`))
	req.Header.Set(webhook.SignatureHeader, "deadbeef")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestApiPaystackWebhook_StatusMapping(t *testing.T) {
	cases := []struct {
		name string
		out  *webhook.Outcome
		err  error
		code int
		body string
	}{
		{"handled", &webhook.Outcome{Event: webhook.EventChargeSuccess, Handled: true}, nil, http.StatusOK, `{"status":"success"}`},
		{"business rejection", &webhook.Outcome{Event: webhook.EventChargeSuccess, Detail: "amount_mismatch_rejected"}, nil, http.StatusOK, `{"status":"success"}`},
		{"ignored", &webhook.Outcome{Event: "transfer.success", Ignored: true}, nil, http.StatusOK, `{"status":"success"}`},
		{"bad signature", nil, fmt.Errorf("%w: mismatch", webhook.ErrSignature), http.StatusBadRequest, `{"error":"invalid signature"}`},
		{"bad payload", nil, fmt.Errorf("%w: missing event name", webhook.ErrInvalidPayload), http.StatusBadRequest, `"error"`},
		{"retry later", nil, webhook.ErrRetryLater, http.StatusInternalServerError, `{"error":"webhook processing failed"}`},
		{"unexpected", nil, fmt.Errorf("db down"), http.StatusInternalServerError, `"error"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recv := &stubReceiver{out: tc.out, err: tc.err}
			w := serveWebhook(t, recv)
			require.Equal(t, tc.code, w.Code)
			assert.Contains(t, w.Body.String(), tc.body)
			assert.Equal(t, `{"event":"charge.success"}`, recv.body)
			assert.Equal(t, "deadbeef", recv.signature)
		})
	}
}
