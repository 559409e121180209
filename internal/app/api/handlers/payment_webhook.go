package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/webhook"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/logctx"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/response"
)

// WebhookReceiver verifies and dispatches one provider delivery.
type WebhookReceiver interface {
	Receive(ctx context.Context, body []byte, signature string) (*webhook.Outcome, error)
}

// @Summary      Paystack Webhook
// @Description  Receives Paystack event notifications. The raw body must be signed with HMAC-SHA512 in the x-paystack-signature header.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        x-paystack-signature header string true "hex HMAC-SHA512 of the raw body"
// @Param        payload body object true "Paystack event"
// @Success      200  {object}  response.WebhookAck
// @Failure      400  {object}  response.WebhookError
// @Failure      500  {object}  response.WebhookError
// @Router       /api/v1/webhook/paystack [post]
func ApiPaystackWebhook(recv WebhookReceiver, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		l := logctx.FromGin(c, log)
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, response.WebhookError{Error: "unreadable body"})
			return
		}

		out, err := recv.Receive(c.Request.Context(), body, c.GetHeader(webhook.SignatureHeader))
		switch {
		case errors.Is(err, webhook.ErrSignature):
			c.JSON(http.StatusBadRequest, response.WebhookError{Error: "invalid signature"})
			return
		case errors.Is(err, webhook.ErrInvalidPayload):
			c.JSON(http.StatusBadRequest, response.WebhookError{Error: err.Error()})
			return
		case err != nil:
			l.Errorw("webhook_paystack_handle_error", "error", err.Error())
			c.JSON(http.StatusInternalServerError, response.WebhookError{Error: "webhook processing failed"})
			return
		}
		if out != nil {
			l.Infow("webhook_paystack_handled", "event", out.Event, "handled", out.Handled, "detail", out.Detail)
		}
		c.JSON(http.StatusOK, response.WebhookAck{Status: "success"})
	}
}

func RegisterPaymentWebhookRoutes(r gin.IRouter, recv WebhookReceiver, log *zap.SugaredLogger) {
	r.POST("/paystack", ApiPaystackWebhook(recv, log))
}
