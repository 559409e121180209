package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/amount"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/ledger"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/refund"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/statistics"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/subscription"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/models"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/response"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/types"
)

type Refunder interface {
	Refund(ctx context.Context, req *refund.Request) (*refund.Result, error)
}

type HistoryReader interface {
	Get(ctx context.Context, subscriptionID string) (*models.Subscription, error)
	History(ctx context.Context, subscriptionID string, limit int) ([]*models.SubscriptionHistory, error)
}

type WebhookLogReader interface {
	ListByReference(ctx context.Context, reference string) ([]*models.WebhookEventLog, error)
}

type ListPaymentsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type RefundPaymentRequest struct {
	PaymentID string `json:"payment_id" binding:"required"`
	// Amount in minor units; 0 refunds the whole remaining balance.
	Amount     int64  `json:"amount"`
	Reason     string `json:"reason"`
	OperatorID string `json:"operator_id" binding:"required"`
}

type ValidateAmountRequest struct {
	SubscriptionID string `json:"subscription_id" binding:"required"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency" binding:"required"`
	Renewal        bool   `json:"renewal"`
}

type SubscriptionHistoryResponse struct {
	Subscription *models.Subscription         `json:"subscription"`
	History      []*models.SubscriptionHistory `json:"history"`
}

// @Summary      Refund Payment (Admin)
// @Description  Refunds part or all of a succeeded payment. A full refund schedules the subscription to end.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body RefundPaymentRequest true "Refund request"
// @Success      200  {object}  handlers.RespRefund
// @Router       /api/v1/admin/refund_payment [post]
func ApiRefundPayment(r Refunder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RefundPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := r.Refund(c.Request.Context(), &refund.Request{
			PaymentID:  req.PaymentID,
			Amount:     req.Amount,
			Reason:     req.Reason,
			OperatorID: req.OperatorID,
		})
		switch {
		case errors.Is(err, refund.ErrPaymentNotFound):
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
			return
		case errors.Is(err, refund.ErrRefundExceedsBalance):
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeConflict, err.Error()))
			return
		case errors.Is(err, refund.ErrPaymentNotRefundable), errors.Is(err, refund.ErrInvalidAmount):
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		case err != nil:
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      List Payments (Admin)
// @Description  Retrieves a paginated and filterable list of payment ledger rows, refunds included.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body ListPaymentsRequest true "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespListPayments
// @Router       /api/v1/admin/list_payments [post]
func ApiListPayments(scanner PaymentScanner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ListPaymentsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := scanner.ScanPayments(c.Request.Context(), &ledger.ScanPaymentsRequest{
			Filters: req.Filters, From: req.From, Size: req.Size, SortBy: req.SortBy, SortOrder: req.SortOrder,
		})
		if errors.Is(err, ledger.ErrInvalidSort) {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Subscription History (Admin)
// @Description  Returns a subscription and its change trail, oldest first.
// @Tags         Admin
// @Produce      json
// @Param        id path string true "Subscription ID"
// @Param        limit query int false "Max rows (default 100)"
// @Success      200  {object}  handlers.RespSubscriptionHistory
// @Router       /api/v1/admin/subscription/{id}/history [get]
func ApiSubscriptionHistory(reader HistoryReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		limit, _ := strconv.Atoi(c.Query("limit"))
		sub, err := reader.Get(c.Request.Context(), id)
		if errors.Is(err, subscription.ErrNotFound) {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
			return
		}
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		rows, err := reader.History(c.Request.Context(), id, limit)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&SubscriptionHistoryResponse{Subscription: sub, History: rows}))
	}
}

// @Summary      Validate Amount (Admin)
// @Description  Dry-runs the amount validator for a subscription without changing state.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body ValidateAmountRequest true "Amount to check"
// @Success      200  {object}  handlers.RespValidation
// @Router       /api/v1/admin/validate_amount [post]
func ApiValidateAmount(v *amount.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ValidateAmountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		tol := v.DefaultTolerance()
		if req.Renewal {
			tol = v.DefaultRenewalTolerance()
		}
		res, err := v.Validate(c.Request.Context(), req.SubscriptionID, req.Amount, req.Currency, tol)
		switch {
		case errors.Is(err, amount.ErrSubscriptionNotFound), errors.Is(err, amount.ErrPlanNotFound):
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
			return
		case err != nil:
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Get Billing Statistics (Admin)
// @Description  Retrieves daily payment counts, net revenue per currency and subscription status counts.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body statistics.BillingStatisticRequest true "Statistic request parameters"
// @Success      200  {object}  handlers.RespBillingStatistic
// @Router       /api/v1/admin/get_billing_statistic [post]
func ApiGetBillingStatistic(svc *statistics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.BillingStatisticRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.GetBillingStatistic(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Webhook Deliveries (Admin)
// @Description  Lists the logged webhook deliveries for a payment reference, oldest first.
// @Tags         Admin
// @Produce      json
// @Param        reference query string true "Provider payment reference"
// @Success      200  {object}  handlers.RespWebhookEvents
// @Router       /api/v1/admin/webhook_events [get]
func ApiWebhookEvents(logs WebhookLogReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		ref := c.Query("reference")
		if ref == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "reference is required"))
			return
		}
		rows, err := logs.ListByReference(c.Request.Context(), ref)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(rows))
	}
}

type AdminServices struct {
	Refunds   Refunder
	Scanner   PaymentScanner
	History   HistoryReader
	Validator *amount.Validator
	Stats     *statistics.Service
	Webhooks  WebhookLogReader
}

func RegisterAdminRoutes(r gin.IRouter, svc AdminServices) {
	r.POST("/refund_payment", ApiRefundPayment(svc.Refunds))
	r.POST("/list_payments", ApiListPayments(svc.Scanner))
	r.GET("/subscription/:id/history", ApiSubscriptionHistory(svc.History))
	r.POST("/validate_amount", ApiValidateAmount(svc.Validator))
	r.POST("/get_billing_statistic", ApiGetBillingStatistic(svc.Stats))
	r.GET("/webhook_events", ApiWebhookEvents(svc.Webhooks))
}
