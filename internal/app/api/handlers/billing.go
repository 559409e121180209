package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/checkout"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/ledger"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/response"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/types"
)

type CheckoutStarter interface {
	Start(ctx context.Context, req *checkout.Request) (*checkout.Session, error)
}

type PaymentScanner interface {
	ScanPayments(ctx context.Context, req *ledger.ScanPaymentsRequest) (*ledger.ScanPaymentsResponse, error)
}

// @Summary      Start Checkout
// @Description  Creates a pending subscription payment and returns the provider authorization URL.
// @Tags         Billing
// @Accept       json
// @Produce      json
// @Param        request body checkout.Request true "User and plan to subscribe"
// @Success      200  {object}  handlers.RespCheckout
// @Router       /api/v1/billing/checkout [post]
func ApiStartCheckout(co CheckoutStarter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req checkout.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		s, err := co.Start(c.Request.Context(), &req)
		switch {
		case errors.Is(err, checkout.ErrUserNotFound), errors.Is(err, checkout.ErrPlanNotFound):
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
			return
		case errors.Is(err, checkout.ErrAlreadySubscribed):
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeConflict, err.Error()))
			return
		case err != nil:
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(s))
	}
}

// @Summary      List User Payments
// @Description  Lists a user's payment ledger rows, newest first by default.
// @Tags         Billing
// @Produce      json
// @Param        user_id query string true "User ID"
// @Param        from query int false "Offset"
// @Param        size query int false "Page size"
// @Param        sort_by query string false "created_at, paid_at or amount"
// @Param        sort_order query string false "asc or desc"
// @Success      200  {object}  handlers.RespListPayments
// @Router       /api/v1/billing/payment/list [get]
func ApiUserPayments(scanner PaymentScanner) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing user_id"))
			return
		}
		from := 0
		if v := c.Query("from"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				from = n
			}
		}
		size := 50
		if v := c.Query("size"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "invalid size"))
				return
			}
			size = n
		}
		sortOrder := c.Query("sort_order")
		if sortOrder != "asc" {
			sortOrder = "desc"
		}

		res, err := scanner.ScanPayments(c.Request.Context(), &ledger.ScanPaymentsRequest{
			Filters:   []*types.CommonFilter{{Field: "user_id", Operator: types.CommonFilterOperatorEq, Values: []any{userID}}},
			From:      from,
			Size:      size,
			SortBy:    c.Query("sort_by"),
			SortOrder: sortOrder,
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

func RegisterBillingRoutes(r gin.IRouter, co CheckoutStarter, scanner PaymentScanner) {
	r.POST("/checkout", ApiStartCheckout(co))
	r.GET("/payment/list", ApiUserPayments(scanner))
}
