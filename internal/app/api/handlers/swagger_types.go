package handlers

import (
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/amount"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/checkout"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/ledger"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/refund"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/statistics"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/models"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/response"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// RespCheckout wraps checkout.Session in the standard envelope.
type RespCheckout struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    checkout.Session         `json:"data"`
}

// RespListPayments wraps ledger.ScanPaymentsResponse in the standard envelope.
type RespListPayments struct {
	Code    response.APIResponseCode    `json:"code"`
	Message string                      `json:"message"`
	Data    ledger.ScanPaymentsResponse `json:"data"`
}

type RespRefund struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    refund.Result            `json:"data"`
}

type RespSubscriptionHistory struct {
	Code    response.APIResponseCode    `json:"code"`
	Message string                      `json:"message"`
	Data    SubscriptionHistoryResponse `json:"data"`
}

type RespValidation struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    amount.Validation        `json:"data"`
}

// RespBillingStatistic wraps BillingStatisticResponse in the standard envelope.
type RespBillingStatistic struct {
	Code    response.APIResponseCode            `json:"code"`
	Message string                              `json:"message"`
	Data    statistics.BillingStatisticResponse `json:"data"`
}

type RespWebhookEvents struct {
	Code    response.APIResponseCode  `json:"code"`
	Message string                    `json:"message"`
	Data    []*models.WebhookEventLog `json:"data"`
}
