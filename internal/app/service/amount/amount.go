// Package amount checks a paid amount against the subscribed plan price.
package amount

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/britonmearsty/secureuploadhub-sub006/internal/models"
	cfgpkg "github.com/britonmearsty/secureuploadhub-sub006/pkg/config"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/logctx"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/metrics"
)

type Action string

const (
	ActionAccept Action = "accept"
	ActionReview Action = "review"
	ActionReject Action = "reject"
)

// reviewOverpaymentPct is the overpayment ratio that is always flagged for review.
const reviewOverpaymentPct = 10.0

var (
	ErrSubscriptionNotFound = errors.New("amount: subscription not found")
	ErrPlanNotFound         = errors.New("amount: plan not found")
)

// Validation is the classification of one payment. Discrepancy is
// paid minus expected, so overpayments are positive.
type Validation struct {
	IsValid               bool    `json:"is_valid"`
	ExpectedAmount        int64   `json:"expected_amount"`
	ExpectedCurrency      string  `json:"expected_currency"`
	Discrepancy           int64   `json:"discrepancy"`
	DiscrepancyPercentage float64 `json:"discrepancy_percentage"`
	SuggestedAction       Action  `json:"suggested_action"`
	Reason                string  `json:"reason,omitempty"`
}

var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true, "KMF": true,
	"KRW": true, "MGA": true, "PYG": true, "RWF": true, "UGX": true, "VND": true,
	"VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

// MinorUnitExponent returns the number of minor-unit digits for an ISO currency.
func MinorUnitExponent(currency string) int32 {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}

// ToMinorUnits converts a major-unit price to minor units, rounding half away from zero.
func ToMinorUnits(price decimal.Decimal, currency string) int64 {
	return price.Shift(MinorUnitExponent(currency)).Round(0).IntPart()
}

// Tolerance is the permitted absolute drift: the percentage share of expected,
// capped by AbsoluteCapMinor when one is configured.
func Tolerance(expected int64, tol cfgpkg.ToleranceConfig) int64 {
	pct := int64(math.Round(math.Abs(float64(expected)) * tol.Percentage))
	if tol.AbsoluteCapMinor > 0 && tol.AbsoluteCapMinor < pct {
		return tol.AbsoluteCapMinor
	}
	return pct
}

// Classify is the pure decision used by Validate.
func Classify(expected int64, expectedCurrency string, paid int64, currency string, tol cfgpkg.ToleranceConfig) *Validation {
	v := &Validation{
		ExpectedAmount:   expected,
		ExpectedCurrency: strings.ToUpper(expectedCurrency),
		Discrepancy:      paid - expected,
	}
	if expected != 0 {
		v.DiscrepancyPercentage = math.Round(float64(v.Discrepancy)/float64(expected)*10000) / 100
	}

	if !strings.EqualFold(expectedCurrency, currency) {
		v.SuggestedAction = ActionReject
		v.Reason = fmt.Sprintf("currency mismatch: expected %s, got %s", v.ExpectedCurrency, strings.ToUpper(currency))
		return v
	}

	abs := v.Discrepancy
	if abs < 0 {
		abs = -abs
	}
	if abs <= Tolerance(expected, tol) {
		v.IsValid = true
		v.SuggestedAction = ActionAccept
		return v
	}

	if v.Discrepancy > 0 {
		if !tol.AllowOverpayment {
			v.SuggestedAction = ActionReject
			v.Reason = "overpayment not allowed"
			return v
		}
		v.IsValid = true
		v.SuggestedAction = ActionReview
		v.Reason = "overpayment outside tolerance"
		if v.DiscrepancyPercentage > reviewOverpaymentPct {
			v.Reason = fmt.Sprintf("overpayment above %.0f%%", reviewOverpaymentPct)
		}
		return v
	}

	if !tol.AllowUnderpayment {
		v.SuggestedAction = ActionReject
		v.Reason = "underpayment not allowed"
		return v
	}
	v.IsValid = true
	v.SuggestedAction = ActionReview
	v.Reason = "underpayment accepted for review"
	return v
}

// RenewalTolerance widens base for renewals, which may carry prorated plan
// changes; both directions are always allowed.
func RenewalTolerance(base, renewal cfgpkg.ToleranceConfig) cfgpkg.ToleranceConfig {
	out := renewal
	if out.Percentage < base.Percentage {
		out.Percentage = base.Percentage
	}
	if out.AbsoluteCapMinor < base.AbsoluteCapMinor {
		out.AbsoluteCapMinor = base.AbsoluteCapMinor
	}
	out.AllowOverpayment = true
	out.AllowUnderpayment = true
	return out
}

type Validator struct {
	db      *gorm.DB
	cfg     cfgpkg.BillingConfig
	log     *zap.SugaredLogger
	metrics *metrics.Recorder
}

func New(db *gorm.DB, cfg *cfgpkg.Config, log *zap.SugaredLogger, rec *metrics.Recorder) *Validator {
	return &Validator{db: db, cfg: cfg.Billing, log: log, metrics: rec}
}

// WithTx returns a copy that reads through tx.
func (v *Validator) WithTx(tx *gorm.DB) *Validator {
	cp := *v
	cp.db = tx
	return &cp
}

func (v *Validator) DefaultTolerance() cfgpkg.ToleranceConfig { return v.cfg.AmountTolerance }

func (v *Validator) DefaultRenewalTolerance() cfgpkg.ToleranceConfig {
	return RenewalTolerance(v.cfg.AmountTolerance, v.cfg.RenewalTolerance)
}

// Validate classifies a payment for subscriptionID against its plan price.
func (v *Validator) Validate(ctx context.Context, subscriptionID string, paid int64, currency string, tol cfgpkg.ToleranceConfig) (*Validation, error) {
	plan, err := v.planFor(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	res := Classify(ToMinorUnits(plan.Price, plan.Currency), plan.Currency, paid, currency, tol)
	v.metrics.AmountValidated(string(res.SuggestedAction))
	if res.SuggestedAction != ActionAccept {
		logctx.FromCtx(ctx, v.log).Infow("amount_validation",
			"subscription_id", subscriptionID,
			"action", res.SuggestedAction,
			"expected", res.ExpectedAmount,
			"paid", paid,
			"reason", res.Reason,
		)
	}
	return res, nil
}

// ValidateRenewal is Validate with the renewal tolerance.
func (v *Validator) ValidateRenewal(ctx context.Context, subscriptionID string, paid int64, currency string) (*Validation, error) {
	return v.Validate(ctx, subscriptionID, paid, currency, v.DefaultRenewalTolerance())
}

func (v *Validator) planFor(ctx context.Context, subscriptionID string) (*models.BillingPlan, error) {
	var sub models.Subscription
	if err := v.db.WithContext(ctx).Where("id = ?", subscriptionID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSubscriptionNotFound, subscriptionID)
		}
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	var plan models.BillingPlan
	if err := v.db.WithContext(ctx).Where("id = ?", sub.PlanID).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, sub.PlanID)
		}
		return nil, fmt.Errorf("load plan: %w", err)
	}
	return &plan, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
