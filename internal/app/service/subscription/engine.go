// Package subscription owns every state change of a Subscription. Mutations
// run under a per-subscription lock inside one database transaction;
// notifications and audit entries are emitted only after commit.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/amount"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/audit"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/models"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/platform/cache"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/platform/mailer"
	cfgpkg "github.com/britonmearsty/secureuploadhub-sub006/pkg/config"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/logctx"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/metrics"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/tool"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/types"
)

// GracePeriod is how long a past_due subscription keeps access after its
// first failed charge.
const GracePeriod = 7 * 24 * time.Hour

const (
	ReasonLockTimeout            = "lock_timeout"
	ReasonSubscriptionNotFound   = "subscription_not_found"
	ReasonAlreadyProcessed       = "already_processed"
	ReasonAmountMismatchRejected = "amount_mismatch_rejected"
	ReasonInvalidTransition      = "invalid_transition"
)

const (
	OpActivate        = "activate"
	OpRenew           = "renew"
	OpRecordFailure   = "record_failure"
	OpDisable         = "disable"
	OpMarkNonRenewing = "mark_non_renewing"
	OpEnable          = "enable"
	OpLinkProvider    = "link_provider"
	OpApplyCharge     = "apply_charge"
)

// Result is the outcome of one transition. Success with a Reason means the
// call was a no-op, e.g. a duplicate delivery.
type Result struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

func ok() Result                   { return Result{Success: true} }
func fail(reason string) Result    { return Result{Reason: reason} }
func skipped(reason string) Result { return Result{Success: true, Reason: reason} }

// PaymentEvent is a provider charge as the engine needs it. Amount is in
// minor units.
type PaymentEvent struct {
	Reference         string
	ProviderPaymentID string
	Amount            int64
	Currency          string
	PaidAt            *time.Time
	NextPaymentAt     *time.Time
	Description       string
	Email             string
	Metadata          map[string]any
}

// LockKey names the distributed lock guarding one subscription.
func LockKey(subscriptionID string) string { return "lock:subscription:" + subscriptionID }

type Engine struct {
	db        *gorm.DB
	locker    cache.Locker
	validator *amount.Validator
	audit     audit.Recorder
	notifier  mailer.Notifier
	metrics   *metrics.Recorder
	cfg       cfgpkg.BillingConfig
	log       *zap.SugaredLogger
	now       func() time.Time
}

func NewEngine(
	db *gorm.DB,
	locker cache.Locker,
	validator *amount.Validator,
	auditor audit.Recorder,
	notifier mailer.Notifier,
	rec *metrics.Recorder,
	cfg *cfgpkg.Config,
	log *zap.SugaredLogger,
) *Engine {
	return &Engine{
		db:        db,
		locker:    locker,
		validator: validator,
		audit:     auditor,
		notifier:  notifier,
		metrics:   rec,
		cfg:       cfg.Billing,
		log:       log,
		now:       time.Now,
	}
}

// WithSubscriptionLock runs fn holding the subscription lock. A timed out
// acquisition is retried once after LockRetryDelay, then reported as
// lock_timeout instead of an error.
func (e *Engine) WithSubscriptionLock(ctx context.Context, subscriptionID string, fn func(ctx context.Context) (Result, error)) (Result, error) {
	var res Result
	run := func(ctx context.Context) error {
		var err error
		res, err = fn(ctx)
		return err
	}
	key := LockKey(subscriptionID)

	err := cache.WithLock(ctx, e.locker, key, e.cfg.LockTimeout, e.cfg.LockTTL, run)
	if errors.Is(err, cache.ErrLockTimeout) {
		logctx.FromCtx(ctx, e.log).Warnw("subscription_lock_timeout_retrying", "subscription_id", subscriptionID)
		t := time.NewTimer(e.cfg.LockRetryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return Result{}, ctx.Err()
		case <-t.C:
		}
		err = cache.WithLock(ctx, e.locker, key, e.cfg.LockTimeout, e.cfg.LockTTL, run)
	}
	if errors.Is(err, cache.ErrLockTimeout) {
		logctx.FromCtx(ctx, e.log).Errorw("subscription_lock_timeout", "subscription_id", subscriptionID)
		return fail(ReasonLockTimeout), nil
	}
	return res, err
}

// change collects what a transition wants to do once the transaction commits.
type change struct {
	Result
	sub     *models.Subscription
	audits  []*audit.Entry
	notices []mailer.Kind
	email   string
}

func (c *change) auditf(action string, sev models.AuditSeverity, details map[string]any) {
	c.audits = append(c.audits, &audit.Entry{
		Action:     action,
		EntityType: "subscription",
		EntityID:   c.sub.ID,
		Severity:   sev,
		Details:    details,
	})
}

type txFunc func(ctx context.Context, tx *gorm.DB, c *change) error

// transition loads the subscription inside a locked transaction and hands it
// to fn. fn reports business outcomes through c.Result; a returned error
// rolls back.
func (e *Engine) transition(ctx context.Context, op, subscriptionID string, fn txFunc) (Result, error) {
	start := e.now()
	res, err := e.WithSubscriptionLock(ctx, subscriptionID, func(ctx context.Context) (Result, error) {
		c := &change{Result: ok()}
		err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var sub models.Subscription
			if err := tx.Where("id = ?", subscriptionID).First(&sub).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					c.Result = fail(ReasonSubscriptionNotFound)
					return nil
				}
				return fmt.Errorf("load subscription %s: %w", subscriptionID, err)
			}
			c.sub = &sub
			return fn(ctx, tx, c)
		})
		if err != nil {
			return Result{}, err
		}
		e.afterCommit(ctx, op, c)
		return c.Result, nil
	})

	log := logctx.FromCtx(ctx, e.log)
	switch {
	case err != nil:
		log.Errorw("subscription_transition_failed", "op", op, "subscription_id", subscriptionID, "err", err)
		e.metrics.Transition(op, "error")
	case !res.Success:
		log.Warnw("subscription_transition_rejected", "op", op, "subscription_id", subscriptionID, "reason", res.Reason)
		e.metrics.Transition(op, res.Reason)
	default:
		log.Infow("subscription_transition", "op", op, "subscription_id", subscriptionID, "reason", res.Reason)
		e.metrics.Transition(op, res.Reason)
	}
	e.metrics.ObserveProcess("transition", op, start)
	return res, err
}

// afterCommit runs best-effort side effects. Failures are logged only.
func (e *Engine) afterCommit(ctx context.Context, op string, c *change) {
	if e.audit != nil {
		for _, a := range c.audits {
			e.audit.Record(ctx, a)
		}
	}
	if len(c.notices) == 0 || e.notifier == nil || c.sub == nil {
		return
	}
	email := c.email
	if email == "" {
		var u models.User
		if err := e.db.WithContext(ctx).Where("id = ?", c.sub.UserID).First(&u).Error; err != nil {
			logctx.FromCtx(ctx, e.log).Warnw("notification_recipient_missing", "op", op, "user_id", c.sub.UserID, "err", err)
			return
		}
		email = u.Email
	}
	for _, kind := range c.notices {
		msg := &mailer.Message{Kind: kind, To: email, Subject: subjectFor(kind), Body: bodyFor(kind, c.sub)}
		if err := e.notifier.Notify(ctx, msg); err != nil {
			logctx.FromCtx(ctx, e.log).Warnw("notification_failed", "op", op, "kind", kind, "subscription_id", c.sub.ID, "err", err)
		}
	}
}

func subjectFor(kind mailer.Kind) string {
	switch kind {
	case mailer.KindPaymentSucceeded:
		return "Payment received"
	case mailer.KindPaymentFailed:
		return "Your payment failed"
	case mailer.KindSubscriptionEnd:
		return "Your subscription has been cancelled"
	}
	return "Billing update"
}

func bodyFor(kind mailer.Kind, sub *models.Subscription) string {
	switch kind {
	case mailer.KindPaymentSucceeded:
		if sub.CurrentPeriodEnd != nil {
			return fmt.Sprintf("Thanks, your subscription is active until %s.", sub.CurrentPeriodEnd.Format(time.DateOnly))
		}
		return "Thanks, your subscription is active."
	case mailer.KindPaymentFailed:
		if sub.GracePeriodEnd != nil {
			return fmt.Sprintf("We could not charge your card. Access continues until %s while we retry.", sub.GracePeriodEnd.Format(time.DateOnly))
		}
		return "We could not charge your card."
	case mailer.KindSubscriptionEnd:
		return "Your subscription has been cancelled."
	}
	return ""
}

func snapshot(s *models.Subscription) datatypes.JSONType[*models.Subscription] {
	cp := *s
	return datatypes.NewJSONType(&cp)
}

func writeHistory(ctx context.Context, tx *gorm.DB, before, after *models.Subscription, action types.HistoryAction, reason string) error {
	row := &models.SubscriptionHistory{
		ID:             tool.GenerateUUIDV7(),
		SubscriptionID: after.ID,
		Action:         action,
		OldValue:       snapshot(before),
		NewValue:       snapshot(after),
		Reason:         reason,
	}
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("create subscription history: %w", err)
	}
	return nil
}

// findPaymentByRef returns nil when no row carries ref.
func findPaymentByRef(ctx context.Context, tx *gorm.DB, ref string) (*models.Payment, error) {
	if ref == "" {
		return nil, nil
	}
	var p models.Payment
	err := tx.WithContext(ctx).Where("provider_payment_ref = ?", ref).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load payment by ref %s: %w", ref, err)
	}
	return &p, nil
}

// upsertPayment writes ev as a payment in status. An existing row with the
// same reference is updated in place.
func (e *Engine) upsertPayment(ctx context.Context, tx *gorm.DB, existing *models.Payment, sub *models.Subscription, ev *PaymentEvent, status types.PaymentStatus, extra map[string]any) (*models.Payment, error) {
	p := existing
	if p == nil {
		p = &models.Payment{ID: tool.GenerateUUIDV7()}
	}
	p.SubscriptionID = &sub.ID
	p.UserID = sub.UserID
	p.Amount = ev.Amount
	if ev.Currency != "" {
		p.Currency = ev.Currency
	}
	p.Status = status
	if ev.Description != "" {
		p.Description = ev.Description
	}
	if ev.ProviderPaymentID != "" {
		p.ProviderPaymentID = &ev.ProviderPaymentID
	}
	if ev.Reference != "" {
		p.ProviderPaymentRef = &ev.Reference
	}
	if status == types.PaymentStatusSucceeded {
		paidAt := e.now()
		if ev.PaidAt != nil {
			paidAt = *ev.PaidAt
		}
		p.PaidAt = &paidAt
	}
	meta := datatypes.JSONMap{}
	for k, v := range p.Metadata {
		meta[k] = v
	}
	for k, v := range ev.Metadata {
		meta[k] = v
	}
	for k, v := range extra {
		meta[k] = v
	}
	if len(meta) > 0 {
		p.Metadata = meta
	}

	var err error
	if existing == nil {
		err = tx.WithContext(ctx).Create(p).Error
	} else {
		err = tx.WithContext(ctx).Save(p).Error
	}
	if err != nil {
		return nil, fmt.Errorf("save payment %s: %w", ev.Reference, err)
	}
	return p, nil
}
