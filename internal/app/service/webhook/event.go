package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	EventSubscriptionCreate    = "subscription.create"
	EventSubscriptionEnable    = "subscription.enable"
	EventSubscriptionDisable   = "subscription.disable"
	EventSubscriptionNotRenew  = "subscription.not_renew"
	EventInvoicePaymentFailed  = "invoice.payment_failed"
	EventInvoicePaymentSuccess = "invoice.payment_succeeded"
	EventChargeSuccess         = "charge.success"
	EventChargeFailed          = "charge.failed"
	EventRefundProcessed       = "refund.processed"
)

// ErrInvalidPayload means the body is not JSON or misses required fields.
var ErrInvalidPayload = errors.New("webhook: invalid payload")

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateInvoice, InvoiceData{})
	return v
}

// validateInvoice requires some idempotency key: the transaction reference or
// the invoice code.
func validateInvoice(sl validator.StructLevel) {
	inv := sl.Current().Interface().(InvoiceData)
	if inv.Transaction.Reference == "" && inv.InvoiceCode == "" {
		sl.ReportError(inv.InvoiceCode, "InvoiceCode", "invoice_code", "required_without_reference", "")
	}
}

type Customer struct {
	ID           int64  `json:"id"`
	Email        string `json:"email" validate:"omitempty,email"`
	CustomerCode string `json:"customer_code"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
}

type PlanRef struct {
	PlanCode string `json:"plan_code"`
	Name     string `json:"name"`
	Amount   int64  `json:"amount"`
	Interval string `json:"interval"`
}

// UnmarshalJSON accepts the plan object, a bare plan code string, or null.
func (p *PlanRef) UnmarshalJSON(b []byte) error {
	*p = PlanRef{}
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		return json.Unmarshal(b, &p.PlanCode)
	}
	type plain PlanRef
	return json.Unmarshal(b, (*plain)(p))
}

type ChargeData struct {
	ID        int64      `json:"id" validate:"required"`
	Reference string     `json:"reference" validate:"required"`
	Amount    *int64     `json:"amount" validate:"required,gte=0"`
	Currency  string     `json:"currency" validate:"required"`
	Status    string     `json:"status" validate:"required"`
	PaidAt    *time.Time `json:"paid_at"`
	Channel   string     `json:"channel"`
	Customer  Customer   `json:"customer"`
	Plan      PlanRef    `json:"plan"`
	Metadata  Metadata   `json:"metadata"`
	// GatewayResponse is the provider's human-readable outcome, e.g. "Insufficient Funds".
	GatewayResponse string `json:"gateway_response"`
}

type SubscriptionData struct {
	ID               int64      `json:"id"`
	SubscriptionCode string     `json:"subscription_code" validate:"required"`
	EmailToken       string     `json:"email_token"`
	Status           string     `json:"status"`
	Amount           int64      `json:"amount" validate:"gte=0"`
	NextPaymentDate  *time.Time `json:"next_payment_date"`
	Customer         Customer   `json:"customer"`
	Plan             PlanRef    `json:"plan"`
	Metadata         Metadata   `json:"metadata"`
}

type InvoiceTransaction struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

type InvoiceSubscription struct {
	SubscriptionCode string     `json:"subscription_code" validate:"required"`
	Status           string     `json:"status"`
	NextPaymentDate  *time.Time `json:"next_payment_date"`
}

type InvoiceData struct {
	ID           int64               `json:"id" validate:"required"`
	InvoiceCode  string              `json:"invoice_code"`
	Amount       *int64              `json:"amount" validate:"required,gte=0"`
	Currency     string              `json:"currency"`
	Status       string              `json:"status" validate:"required"`
	Paid         bool                `json:"paid"`
	Description  string              `json:"description"`
	Subscription InvoiceSubscription `json:"subscription"`
	Customer     Customer            `json:"customer"`
	Transaction  InvoiceTransaction  `json:"transaction"`
	Metadata     Metadata            `json:"metadata"`
}

type RefundData struct {
	ID                   int64    `json:"id"`
	TransactionReference string   `json:"transaction_reference" validate:"required"`
	RefundReference      string   `json:"refund_reference"`
	Amount               int64    `json:"amount" validate:"gt=0"`
	Currency             string   `json:"currency"`
	Status               string   `json:"status" validate:"required"`
	Customer             Customer `json:"customer"`
}

// Event is a verified provider notification with its data decoded per family.
// Exactly one of the typed fields is set for known event names.
type Event struct {
	Name string          `json:"event"`
	Raw  json.RawMessage `json:"data"`

	Charge       *ChargeData       `json:"-"`
	Subscription *SubscriptionData `json:"-"`
	Invoice      *InvoiceData      `json:"-"`
	Refund       *RefundData       `json:"-"`
}

// Known reports whether the dispatcher has a handler family for the event.
func (e *Event) Known() bool {
	return e.Charge != nil || e.Subscription != nil || e.Invoice != nil || e.Refund != nil
}

// Reference is the idempotency key of the event. Subscription events carry none.
func (e *Event) Reference() string {
	switch {
	case e.Charge != nil:
		return e.Charge.Reference
	case e.Invoice != nil:
		if e.Invoice.Transaction.Reference != "" {
			return e.Invoice.Transaction.Reference
		}
		return e.Invoice.InvoiceCode
	case e.Refund != nil:
		if e.Refund.RefundReference != "" {
			return e.Refund.RefundReference
		}
		if e.Refund.ID != 0 {
			return fmt.Sprintf("%s:%d", e.Refund.TransactionReference, e.Refund.ID)
		}
		return ""
	}
	return ""
}

// CustomerEmail returns the payer email carried by any event family.
func (e *Event) CustomerEmail() string {
	switch {
	case e.Charge != nil:
		return e.Charge.Customer.Email
	case e.Subscription != nil:
		return e.Subscription.Customer.Email
	case e.Invoice != nil:
		return e.Invoice.Customer.Email
	case e.Refund != nil:
		return e.Refund.Customer.Email
	}
	return ""
}

// ParseEvent decodes and validates a provider webhook body.
func ParseEvent(body []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	ev.Name = strings.TrimSpace(ev.Name)
	if ev.Name == "" {
		return nil, fmt.Errorf("%w: missing event name", ErrInvalidPayload)
	}

	var target any
	switch ev.Name {
	case EventChargeSuccess, EventChargeFailed:
		ev.Charge = &ChargeData{}
		target = ev.Charge
	case EventSubscriptionCreate, EventSubscriptionEnable, EventSubscriptionDisable, EventSubscriptionNotRenew:
		ev.Subscription = &SubscriptionData{}
		target = ev.Subscription
	case EventInvoicePaymentFailed, EventInvoicePaymentSuccess:
		ev.Invoice = &InvoiceData{}
		target = ev.Invoice
	case EventRefundProcessed:
		ev.Refund = &RefundData{}
		target = ev.Refund
	default:
		return &ev, nil
	}

	if len(ev.Raw) == 0 || string(ev.Raw) == "null" {
		return nil, fmt.Errorf("%w: %s: missing data", ErrInvalidPayload, ev.Name)
	}
	if err := json.Unmarshal(ev.Raw, target); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, ev.Name, err)
	}
	if err := validate.Struct(target); err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrInvalidPayload, ev.Name, describe(err))
	}
	return &ev, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
