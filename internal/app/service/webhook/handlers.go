package webhook

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/audit"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/correlation"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/refund"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/subscription"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/models"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/platform/cache"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/logctx"
)

// correlate resolves the subscription or returns an unmatched outcome.
func (d *Dispatcher) correlate(ctx context.Context, ev *Event, in *correlation.Input) (*correlation.Match, *Outcome, error) {
	m, err := d.resolver.Resolve(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	if m != nil {
		return m, nil, nil
	}
	if d.audit != nil {
		d.audit.Record(ctx, &audit.Entry{
			Action:     audit.ActionWebhookUnmatched,
			EntityType: "webhook",
			EntityID:   lo.CoalesceOrEmpty(ev.Reference(), ev.Name),
			Severity:   models.AuditSeverityWarning,
			Details: map[string]any{
				"event":                    ev.Name,
				"reference":                in.Reference,
				"email":                    in.Email,
				"amount":                   in.Amount,
				"provider_subscription_id": in.ProviderSubscriptionID,
			},
		})
	}
	return nil, &Outcome{Detail: "no matching subscription"}, nil
}

func fromResult(m *correlation.Match, res subscription.Result) *Outcome {
	return &Outcome{
		Handled:        res.Success,
		SubscriptionID: m.SubscriptionID,
		Strategy:       m.Strategy,
		Result:         &res,
		Detail:         res.Reason,
	}
}

func (d *Dispatcher) onChargeSuccess(ctx context.Context, ev *Event) (*Outcome, error) {
	c := ev.Charge
	m, miss, err := d.correlate(ctx, ev, chargeInput(c))
	if m == nil {
		return miss, err
	}
	res, err := d.transitions.ApplyCharge(ctx, m.SubscriptionID, chargeEvent(c))
	if err != nil {
		return nil, err
	}
	return fromResult(m, res), nil
}

func (d *Dispatcher) onChargeFailed(ctx context.Context, ev *Event) (*Outcome, error) {
	c := ev.Charge
	m, miss, err := d.correlate(ctx, ev, chargeInput(c))
	if m == nil {
		return miss, err
	}
	pe := chargeEvent(c)
	pe.Description = lo.CoalesceOrEmpty(c.GatewayResponse, "charge failed")
	res, err := d.transitions.RecordFailure(ctx, m.SubscriptionID, pe)
	if err != nil {
		return nil, err
	}
	return fromResult(m, res), nil
}

func (d *Dispatcher) onSubscriptionCreate(ctx context.Context, ev *Event) (*Outcome, error) {
	s := ev.Subscription
	m, miss, err := d.correlate(ctx, ev, subscriptionInput(s))
	if m == nil {
		return miss, err
	}
	res, err := d.transitions.LinkProvider(ctx, m.SubscriptionID, s.SubscriptionCode, s.Customer.CustomerCode)
	if err != nil {
		return nil, err
	}
	return fromResult(m, res), nil
}

func (d *Dispatcher) onSubscriptionEnable(ctx context.Context, ev *Event) (*Outcome, error) {
	s := ev.Subscription
	m, miss, err := d.correlate(ctx, ev, subscriptionInput(s))
	if m == nil {
		return miss, err
	}
	if err := d.linkIfNeeded(ctx, m, s); err != nil {
		return nil, err
	}
	res, err := d.transitions.Enable(ctx, m.SubscriptionID, s.NextPaymentDate)
	if err != nil {
		return nil, err
	}
	return fromResult(m, res), nil
}

func (d *Dispatcher) onSubscriptionDisable(ctx context.Context, ev *Event) (*Outcome, error) {
	s := ev.Subscription
	m, miss, err := d.correlate(ctx, ev, subscriptionInput(s))
	if m == nil {
		return miss, err
	}
	reason := "subscription.disable"
	if s.Status != "" {
		reason += " (" + s.Status + ")"
	}
	res, err := d.transitions.Disable(ctx, m.SubscriptionID, reason)
	if err != nil {
		return nil, err
	}
	return fromResult(m, res), nil
}

func (d *Dispatcher) onSubscriptionNotRenew(ctx context.Context, ev *Event) (*Outcome, error) {
	m, miss, err := d.correlate(ctx, ev, subscriptionInput(ev.Subscription))
	if m == nil {
		return miss, err
	}
	res, err := d.transitions.MarkNonRenewing(ctx, m.SubscriptionID)
	if err != nil {
		return nil, err
	}
	return fromResult(m, res), nil
}

func (d *Dispatcher) onInvoicePaymentSucceeded(ctx context.Context, ev *Event) (*Outcome, error) {
	inv := ev.Invoice
	m, miss, err := d.correlate(ctx, ev, invoiceInput(ev))
	if m == nil {
		return miss, err
	}
	res, err := d.transitions.ApplyCharge(ctx, m.SubscriptionID, invoiceEvent(ev))
	if err != nil {
		return nil, err
	}
	out := fromResult(m, res)
	if !inv.Paid {
		logctx.FromCtx(ctx, d.log).Warnw("invoice_success_not_marked_paid", "invoice_code", inv.InvoiceCode)
	}
	return out, nil
}

func (d *Dispatcher) onInvoicePaymentFailed(ctx context.Context, ev *Event) (*Outcome, error) {
	m, miss, err := d.correlate(ctx, ev, invoiceInput(ev))
	if m == nil {
		return miss, err
	}
	pe := invoiceEvent(ev)
	pe.Description = lo.CoalesceOrEmpty(ev.Invoice.Description, "invoice payment failed")
	res, err := d.transitions.RecordFailure(ctx, m.SubscriptionID, pe)
	if err != nil {
		return nil, err
	}
	return fromResult(m, res), nil
}

func (d *Dispatcher) onRefundProcessed(ctx context.Context, ev *Event) (*Outcome, error) {
	r := ev.Refund
	pr := &refund.ProviderRefund{
		TransactionReference: r.TransactionReference,
		Reference:            ev.Reference(),
		Amount:               r.Amount,
		Currency:             r.Currency,
	}
	if r.ID != 0 {
		pr.RefundID = strconv.FormatInt(r.ID, 10)
	}
	res, err := d.refunds.RecordProviderRefund(ctx, pr)
	switch {
	case errors.Is(err, refund.ErrPaymentNotFound),
		errors.Is(err, refund.ErrPaymentNotRefundable),
		errors.Is(err, refund.ErrRefundExceedsBalance):
		logctx.FromCtx(ctx, d.log).Warnw("provider_refund_rejected", "reference", pr.TransactionReference, "err", err)
		return &Outcome{Detail: err.Error()}, nil
	case errors.Is(err, cache.ErrLockTimeout):
		return nil, fmt.Errorf("%w: %v", ErrRetryLater, err)
	case err != nil:
		return nil, err
	}
	out := &Outcome{Handled: true}
	if res == nil {
		out.Detail = subscription.ReasonAlreadyProcessed
		return out, nil
	}
	if res.Refund.SubscriptionID != nil {
		out.SubscriptionID = *res.Refund.SubscriptionID
	}
	out.Detail = res.Message
	return out, nil
}

// linkIfNeeded stores the provider codes when the match came from a weaker
// strategy than the subscription code itself.
func (d *Dispatcher) linkIfNeeded(ctx context.Context, m *correlation.Match, s *SubscriptionData) error {
	if m.Strategy == correlation.StrategyProviderSubscriptionID || s.SubscriptionCode == "" {
		return nil
	}
	res, err := d.transitions.LinkProvider(ctx, m.SubscriptionID, s.SubscriptionCode, s.Customer.CustomerCode)
	if err != nil {
		return fmt.Errorf("link provider codes: %w", err)
	}
	if !res.Success {
		logctx.FromCtx(ctx, d.log).Warnw("link_provider_skipped", "subscription_id", m.SubscriptionID, "reason", res.Reason)
	}
	return nil
}

func chargeInput(c *ChargeData) *correlation.Input {
	return &correlation.Input{
		Reference:              c.Reference,
		MetadataSubscriptionID: c.Metadata.SubscriptionID,
		Email:                  c.Customer.Email,
		Amount:                 lo.FromPtr(c.Amount),
		Currency:               c.Currency,
	}
}

func chargeEvent(c *ChargeData) *subscription.PaymentEvent {
	pe := &subscription.PaymentEvent{
		Reference: c.Reference,
		Amount:    lo.FromPtr(c.Amount),
		Currency:  strings.ToUpper(c.Currency),
		PaidAt:    c.PaidAt,
		Email:     c.Customer.Email,
		Metadata:  map[string]any{},
	}
	if c.ID != 0 {
		pe.ProviderPaymentID = strconv.FormatInt(c.ID, 10)
	}
	if c.Channel != "" {
		pe.Metadata["channel"] = c.Channel
	}
	for k, v := range c.Metadata.Extra {
		pe.Metadata[k] = v
	}
	return pe
}

func subscriptionInput(s *SubscriptionData) *correlation.Input {
	return &correlation.Input{
		ProviderSubscriptionID: s.SubscriptionCode,
		MetadataSubscriptionID: s.Metadata.SubscriptionID,
		Email:                  s.Customer.Email,
		Amount:                 lo.CoalesceOrEmpty(s.Amount, s.Plan.Amount),
	}
}

func invoiceInput(ev *Event) *correlation.Input {
	inv := ev.Invoice
	return &correlation.Input{
		ProviderSubscriptionID: inv.Subscription.SubscriptionCode,
		Reference:              ev.Reference(),
		MetadataSubscriptionID: inv.Metadata.SubscriptionID,
		Email:                  inv.Customer.Email,
		Amount:                 lo.FromPtr(inv.Amount),
		Currency:               lo.CoalesceOrEmpty(inv.Currency, inv.Transaction.Currency),
	}
}

func invoiceEvent(ev *Event) *subscription.PaymentEvent {
	inv := ev.Invoice
	pe := &subscription.PaymentEvent{
		Reference:     ev.Reference(),
		Amount:        lo.FromPtr(inv.Amount),
		Currency:      strings.ToUpper(lo.CoalesceOrEmpty(inv.Currency, inv.Transaction.Currency)),
		NextPaymentAt: inv.Subscription.NextPaymentDate,
		Description:   inv.Description,
		Email:         inv.Customer.Email,
		Metadata:      map[string]any{"invoice_code": inv.InvoiceCode},
	}
	if inv.ID != 0 {
		pe.ProviderPaymentID = strconv.FormatInt(inv.ID, 10)
	}
	return pe
}
