// Package paystack talks to the payment provider's REST API.
package paystack

import (
	"context"
	"errors"
)

var ErrProvider = errors.New("paystack: request failed")

type InitializeRequest struct {
	Email       string         `json:"email"`
	Amount      int64          `json:"amount"`
	Currency    string         `json:"currency,omitempty"`
	Reference   string         `json:"reference"`
	CallbackURL string         `json:"callback_url,omitempty"`
	Plan        string         `json:"plan,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type Customer struct {
	ID           int64  `json:"id"`
	CustomerCode string `json:"customer_code"`
	Email        string `json:"email"`
}

type PlanRequest struct {
	Name     string `json:"name"`
	Amount   int64  `json:"amount"`
	Interval string `json:"interval"`
	Currency string `json:"currency,omitempty"`
	// Code reuses an existing plan when set.
	Code string `json:"-"`
}

type Plan struct {
	ID       int64  `json:"id"`
	PlanCode string `json:"plan_code"`
	Name     string `json:"name"`
	Amount   int64  `json:"amount"`
}

type RefundRequest struct {
	Transaction string `json:"transaction"`
	Amount      int64  `json:"amount,omitempty"`
	Reason      string `json:"merchant_note,omitempty"`
}

type Refund struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

// Gateway is the provider surface the billing services depend on.
type Gateway interface {
	InitializeTransaction(ctx context.Context, req *InitializeRequest) (*InitializeResult, error)
	CreateOrGetCustomer(ctx context.Context, email, name string) (*Customer, error)
	CreateOrGetPlan(ctx context.Context, req *PlanRequest) (*Plan, error)
	Refund(ctx context.Context, req *RefundRequest) (*Refund, error)
}
