package subscription

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/amount"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/audit"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/models"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/platform/mailer"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/types"
)

// Activate moves an incomplete subscription to active on its first charge.
func (e *Engine) Activate(ctx context.Context, subscriptionID string, ev *PaymentEvent) (Result, error) {
	return e.transition(ctx, OpActivate, subscriptionID, func(ctx context.Context, tx *gorm.DB, c *change) error {
		return e.activate(ctx, tx, c, ev)
	})
}

// Renew rolls an active or past_due subscription forward one period.
func (e *Engine) Renew(ctx context.Context, subscriptionID string, ev *PaymentEvent) (Result, error) {
	return e.transition(ctx, OpRenew, subscriptionID, func(ctx context.Context, tx *gorm.DB, c *change) error {
		return e.renew(ctx, tx, c, ev)
	})
}

// ApplyCharge routes a successful charge to Activate or Renew depending on
// the status seen under the lock.
func (e *Engine) ApplyCharge(ctx context.Context, subscriptionID string, ev *PaymentEvent) (Result, error) {
	return e.transition(ctx, OpApplyCharge, subscriptionID, func(ctx context.Context, tx *gorm.DB, c *change) error {
		switch c.sub.Status {
		case types.SubscriptionStatusIncomplete:
			return e.activate(ctx, tx, c, ev)
		case types.SubscriptionStatusActive, types.SubscriptionStatusPastDue:
			return e.renew(ctx, tx, c, ev)
		}
		dup, err := isDuplicate(ctx, tx, ev.Reference, types.PaymentStatusSucceeded)
		if err != nil {
			return err
		}
		if dup {
			c.Result = skipped(ReasonAlreadyProcessed)
			return nil
		}
		c.Result = fail(ReasonInvalidTransition)
		return nil
	})
}

// RecordFailure stores a failed charge. Active and past_due subscriptions
// become past_due; the grace period is set once and never extended.
func (e *Engine) RecordFailure(ctx context.Context, subscriptionID string, ev *PaymentEvent) (Result, error) {
	return e.transition(ctx, OpRecordFailure, subscriptionID, func(ctx context.Context, tx *gorm.DB, c *change) error {
		existing, err := findPaymentByRef(ctx, tx, ev.Reference)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status != types.PaymentStatusPending {
			c.Result = skipped(ReasonAlreadyProcessed)
			return nil
		}

		sub := c.sub
		switch sub.Status {
		case types.SubscriptionStatusIncomplete:
			// first charge declined: keep the checkout open for another attempt
			if _, err := e.upsertPayment(ctx, tx, existing, sub, ev, types.PaymentStatusFailed, nil); err != nil {
				return err
			}
			c.email = ev.Email
			c.notices = append(c.notices, mailer.KindPaymentFailed)
			return nil
		case types.SubscriptionStatusActive, types.SubscriptionStatusPastDue:
		default:
			c.Result = fail(ReasonInvalidTransition)
			return nil
		}

		before := *sub
		now := e.now()
		action := types.HistoryActionStatusChanged
		if sub.GracePeriodEnd == nil {
			grace := now.Add(GracePeriod)
			sub.GracePeriodEnd = &grace
			action = types.HistoryActionGracePeriodStarted
		}
		sub.Status = types.SubscriptionStatusPastDue
		sub.RetryCount++
		sub.LastPaymentAttempt = &now

		if _, err := e.upsertPayment(ctx, tx, existing, sub, ev, types.PaymentStatusFailed, nil); err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
			return fmt.Errorf("save subscription: %w", err)
		}
		if err := writeHistory(ctx, tx, &before, sub, action, fmt.Sprintf("payment failed (attempt %d)", sub.RetryCount)); err != nil {
			return err
		}
		c.auditf(audit.ActionTransition, models.AuditSeverityWarning, transitionDetails(OpRecordFailure, &before, sub, ev.Reference))
		c.email = ev.Email
		c.notices = append(c.notices, mailer.KindPaymentFailed)
		return nil
	})
}

// Disable cancels the subscription and keeps access until the period ends.
func (e *Engine) Disable(ctx context.Context, subscriptionID, reason string) (Result, error) {
	return e.transition(ctx, OpDisable, subscriptionID, func(ctx context.Context, tx *gorm.DB, c *change) error {
		sub := c.sub
		if sub.Status == types.SubscriptionStatusCanceled {
			c.Result = skipped(ReasonAlreadyProcessed)
			return nil
		}
		before := *sub
		sub.Status = types.SubscriptionStatusCanceled
		sub.CancelAtPeriodEnd = true
		sub.GracePeriodEnd = nil
		if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
			return fmt.Errorf("save subscription: %w", err)
		}
		if reason == "" {
			reason = "disabled by provider"
		}
		if err := writeHistory(ctx, tx, &before, sub, types.HistoryActionCancelled, reason); err != nil {
			return err
		}
		c.auditf(audit.ActionTransition, models.AuditSeverityInfo, transitionDetails(OpDisable, &before, sub, ""))
		c.notices = append(c.notices, mailer.KindSubscriptionEnd)
		return nil
	})
}

// MarkNonRenewing flags the subscription to end with its current period.
// The status is left as is.
func (e *Engine) MarkNonRenewing(ctx context.Context, subscriptionID string) (Result, error) {
	return e.transition(ctx, OpMarkNonRenewing, subscriptionID, func(ctx context.Context, tx *gorm.DB, c *change) error {
		if c.sub.CancelAtPeriodEnd {
			c.Result = skipped(ReasonAlreadyProcessed)
			return nil
		}
		c.sub.CancelAtPeriodEnd = true
		return tx.WithContext(ctx).Model(c.sub).Update("cancel_at_period_end", true).Error
	})
}

// Enable refreshes the billing dates of an active subscription. A nil
// nextPaymentAt keeps a future period end or starts a new month.
func (e *Engine) Enable(ctx context.Context, subscriptionID string, nextPaymentAt *time.Time) (Result, error) {
	return e.transition(ctx, OpEnable, subscriptionID, func(ctx context.Context, tx *gorm.DB, c *change) error {
		sub := c.sub
		if sub.Status != types.SubscriptionStatusActive {
			c.Result = fail(ReasonInvalidTransition)
			return nil
		}
		now := e.now()
		var end time.Time
		switch {
		case nextPaymentAt != nil && nextPaymentAt.After(now):
			end = *nextPaymentAt
		case sub.CurrentPeriodEnd != nil && sub.CurrentPeriodEnd.After(now):
			end = *sub.CurrentPeriodEnd
		default:
			end = now.AddDate(0, 1, 0)
		}
		next := end
		sub.CurrentPeriodEnd = &end
		sub.NextBillingDate = &next
		// re-enabling on the provider withdraws a scheduled cancel
		sub.CancelAtPeriodEnd = false
		if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
			return fmt.Errorf("save subscription: %w", err)
		}
		return nil
	})
}

// LinkProvider stores the provider's subscription and customer codes. Empty
// arguments leave the current value.
func (e *Engine) LinkProvider(ctx context.Context, subscriptionID, subscriptionCode, customerCode string) (Result, error) {
	return e.transition(ctx, OpLinkProvider, subscriptionID, func(ctx context.Context, tx *gorm.DB, c *change) error {
		sub := c.sub
		updates := map[string]any{}
		if subscriptionCode != "" && (sub.ProviderSubscriptionID == nil || *sub.ProviderSubscriptionID != subscriptionCode) {
			updates["provider_subscription_id"] = subscriptionCode
		}
		if customerCode != "" && (sub.ProviderCustomerID == nil || *sub.ProviderCustomerID != customerCode) {
			updates["provider_customer_id"] = customerCode
		}
		if len(updates) == 0 {
			c.Result = skipped(ReasonAlreadyProcessed)
			return nil
		}
		if err := tx.WithContext(ctx).Model(sub).Updates(updates).Error; err != nil {
			return fmt.Errorf("link provider codes: %w", err)
		}
		return nil
	})
}

func (e *Engine) activate(ctx context.Context, tx *gorm.DB, c *change, ev *PaymentEvent) error {
	existing, err := findPaymentByRef(ctx, tx, ev.Reference)
	if err != nil {
		return err
	}
	if existing != nil && existing.Status == types.PaymentStatusSucceeded {
		c.Result = skipped(ReasonAlreadyProcessed)
		return nil
	}
	sub := c.sub
	if sub.Status != types.SubscriptionStatusIncomplete {
		c.Result = fail(ReasonInvalidTransition)
		return nil
	}

	v, err := e.validator.WithTx(tx).Validate(ctx, sub.ID, ev.Amount, ev.Currency, e.validator.DefaultTolerance())
	if err != nil {
		return err
	}
	if reject(c, ev, v) {
		return nil
	}

	before := *sub
	now := e.now()
	end := now.AddDate(0, 1, 0)
	next := end
	sub.Status = types.SubscriptionStatusActive
	sub.CurrentPeriodStart = &now
	sub.CurrentPeriodEnd = &end
	sub.NextBillingDate = &next
	sub.CancelAtPeriodEnd = false
	sub.RetryCount = 0
	sub.GracePeriodEnd = nil
	sub.LastPaymentAttempt = &now

	if _, err := e.upsertPayment(ctx, tx, existing, sub, ev, types.PaymentStatusSucceeded, reviewFlag(v)); err != nil {
		return err
	}
	if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	if err := writeHistory(ctx, tx, &before, sub, types.HistoryActionActivated, "first payment "+ev.Reference); err != nil {
		return err
	}
	c.auditf(audit.ActionTransition, models.AuditSeverityInfo, transitionDetails(OpActivate, &before, sub, ev.Reference))
	c.email = ev.Email
	c.notices = append(c.notices, mailer.KindPaymentSucceeded)
	return nil
}

func (e *Engine) renew(ctx context.Context, tx *gorm.DB, c *change, ev *PaymentEvent) error {
	existing, err := findPaymentByRef(ctx, tx, ev.Reference)
	if err != nil {
		return err
	}
	if existing != nil && existing.Status == types.PaymentStatusSucceeded {
		c.Result = skipped(ReasonAlreadyProcessed)
		return nil
	}
	sub := c.sub
	if sub.Status != types.SubscriptionStatusActive && sub.Status != types.SubscriptionStatusPastDue {
		c.Result = fail(ReasonInvalidTransition)
		return nil
	}

	v, err := e.validator.WithTx(tx).ValidateRenewal(ctx, sub.ID, ev.Amount, ev.Currency)
	if err != nil {
		return err
	}
	if reject(c, ev, v) {
		return nil
	}

	before := *sub
	now := e.now()
	start := now
	if sub.CurrentPeriodEnd != nil && sub.CurrentPeriodEnd.After(now) {
		start = *sub.CurrentPeriodEnd
	}
	end := start.AddDate(0, 1, 0)
	if ev.NextPaymentAt != nil && ev.NextPaymentAt.After(start) {
		end = *ev.NextPaymentAt
	}
	next := end
	action := types.HistoryActionRenewed
	if before.Status == types.SubscriptionStatusPastDue {
		action = types.HistoryActionReactivated
	}
	sub.Status = types.SubscriptionStatusActive
	sub.CurrentPeriodStart = &start
	sub.CurrentPeriodEnd = &end
	sub.NextBillingDate = &next
	sub.RetryCount = 0
	sub.GracePeriodEnd = nil
	sub.LastPaymentAttempt = &now

	if _, err := e.upsertPayment(ctx, tx, existing, sub, ev, types.PaymentStatusSucceeded, reviewFlag(v)); err != nil {
		return err
	}
	if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	if err := writeHistory(ctx, tx, &before, sub, action, "renewal payment "+ev.Reference); err != nil {
		return err
	}
	c.auditf(audit.ActionTransition, models.AuditSeverityInfo, transitionDetails(OpRenew, &before, sub, ev.Reference))
	c.email = ev.Email
	c.notices = append(c.notices, mailer.KindPaymentSucceeded)
	return nil
}

// reject records the amount decision and reports whether it blocks the
// transition.
func reject(c *change, ev *PaymentEvent, v *amount.Validation) bool {
	details := map[string]any{
		"reference":              ev.Reference,
		"expected_amount":        v.ExpectedAmount,
		"expected_currency":      v.ExpectedCurrency,
		"paid_amount":            ev.Amount,
		"paid_currency":          ev.Currency,
		"discrepancy":            v.Discrepancy,
		"discrepancy_percentage": v.DiscrepancyPercentage,
		"reason":                 v.Reason,
	}
	switch v.SuggestedAction {
	case amount.ActionReject:
		c.auditf(audit.ActionAmountMismatch, models.AuditSeverityCritical, details)
		c.Result = fail(ReasonAmountMismatchRejected)
		return true
	case amount.ActionReview:
		c.auditf(audit.ActionAmountReview, models.AuditSeverityWarning, details)
	}
	return false
}

func reviewFlag(v *amount.Validation) map[string]any {
	if v.SuggestedAction != amount.ActionReview {
		return nil
	}
	return map[string]any{"amount_review": true, "amount_discrepancy": v.Discrepancy}
}

func isDuplicate(ctx context.Context, tx *gorm.DB, ref string, status types.PaymentStatus) (bool, error) {
	p, err := findPaymentByRef(ctx, tx, ref)
	if err != nil || p == nil {
		return false, err
	}
	return p.Status == status, nil
}

func transitionDetails(op string, before, after *models.Subscription, ref string) map[string]any {
	d := map[string]any{
		"op":          op,
		"from":        string(before.Status),
		"to":          string(after.Status),
		"retry_count": after.RetryCount,
	}
	if ref != "" {
		d["reference"] = ref
	}
	return d
}
