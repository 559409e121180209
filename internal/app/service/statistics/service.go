package statistics

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/britonmearsty/secureuploadhub-sub006/internal/models"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/types"
)

type StatisticType string

const (
	// Payment ledger
	StatisticTypeDailyPaymentCount       StatisticType = "daily_payment_count"
	StatisticTypeDailyFailedPaymentCount StatisticType = "daily_failed_payment_count"
	StatisticTypeDailyNetRevenue         StatisticType = "daily_net_revenue"
	StatisticTypeTotalNetRevenue         StatisticType = "total_net_revenue"

	// Subscriptions
	StatisticTypeSubscriptionStatusCount   StatisticType = "subscription_status_count"
	StatisticTypeDailyNewSubscriptionCount StatisticType = "daily_new_subscription_count"
)

var subscriptionStatistics = []StatisticType{
	StatisticTypeSubscriptionStatusCount,
	StatisticTypeDailyNewSubscriptionCount,
}

// subscriptionFields are the filter fields that exist on the subscription table.
var subscriptionFields = []string{"status", "plan_id", "user_id", "created_at"}

type BillingStatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type BillingStatisticRequest struct {
	Filters   []*types.CommonFilter       `json:"filters"`
	DataItems []*BillingStatisticDataItem `json:"data_items"`
}

// FiltersFor drops filters on columns the statistic's table does not have.
func (r *BillingStatisticRequest) FiltersFor(st StatisticType) types.AllOf {
	if r == nil {
		return nil
	}
	if !lo.Contains(subscriptionStatistics, st) {
		return r.Filters
	}
	return lo.Filter(r.Filters, func(f *types.CommonFilter, _ int) bool {
		return lo.Contains(subscriptionFields, f.Field)
	})
}

type BillingStatisticResponseDataItem struct {
	Date  string `json:"date,omitempty"`
	Label string `json:"label,omitempty"`
	Value int64  `json:"value"`
}

type BillingStatisticResponse struct {
	DataItems map[StatisticType][]BillingStatisticResponseDataItem `json:"data_items"`
}

type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service { return &Service{db: db} }

// dayExpr buckets created_at by calendar day on the active dialect.
func (s *Service) dayExpr() string {
	if s.db.Dialector.Name() == "sqlite" {
		return "strftime('%Y-%m-%d', created_at)"
	}
	return "TO_CHAR(created_at, 'YYYY-MM-DD')"
}

func where(f types.AllOf) clause.Where {
	return clause.Where{Exprs: []clause.Expression{f}}
}

// getDailyPaymentCount counts charges only; refund rows are excluded by sign.
func (s *Service) getDailyPaymentCount(ctx context.Context, req *BillingStatisticRequest, status types.PaymentStatus, st StatisticType) ([]BillingStatisticResponseDataItem, error) {
	var results []BillingStatisticResponseDataItem
	day := s.dayExpr()
	q := s.db.WithContext(ctx).Table((models.Payment{}).TableName()).
		Select(day+" as date, count(*) as value").
		Where("status = ? AND amount > 0", status).
		Where(where(req.FiltersFor(st))).
		Group(day).
		Order("date")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// Refund rows are negative succeeded payments, so the sum is net of refunds.
func (s *Service) getDailyNetRevenue(ctx context.Context, req *BillingStatisticRequest) ([]BillingStatisticResponseDataItem, error) {
	var results []BillingStatisticResponseDataItem
	day := s.dayExpr()
	q := s.db.WithContext(ctx).Table((models.Payment{}).TableName()).
		Select(day+" as date, currency AS label, sum(amount) as value").
		Where("status = ?", types.PaymentStatusSucceeded).
		Where(where(req.FiltersFor(StatisticTypeDailyNetRevenue))).
		Group(day).
		Group("currency").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getTotalNetRevenue(ctx context.Context, req *BillingStatisticRequest) ([]BillingStatisticResponseDataItem, error) {
	var results []BillingStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.Payment{}).TableName()).
		Select("currency AS label, sum(amount) as value").
		Where("status = ?", types.PaymentStatusSucceeded).
		Where(where(req.FiltersFor(StatisticTypeTotalNetRevenue))).
		Group("currency").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getSubscriptionStatusCount(ctx context.Context, req *BillingStatisticRequest) ([]BillingStatisticResponseDataItem, error) {
	var results []BillingStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.Subscription{}).TableName()).
		Select("status AS label, count(*) as value").
		Where(where(req.FiltersFor(StatisticTypeSubscriptionStatusCount))).
		Group("status").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyNewSubscriptionCount(ctx context.Context, req *BillingStatisticRequest) ([]BillingStatisticResponseDataItem, error) {
	var results []BillingStatisticResponseDataItem
	day := s.dayExpr()
	q := s.db.WithContext(ctx).Table((models.Subscription{}).TableName()).
		Select(day+" as date, count(DISTINCT user_id) as value").
		Where(where(req.FiltersFor(StatisticTypeDailyNewSubscriptionCount))).
		Group(day).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getBillingStatistic(ctx context.Context, req *BillingStatisticRequest, item *BillingStatisticDataItem) ([]BillingStatisticResponseDataItem, error) {
	switch item.ID {
	case StatisticTypeDailyPaymentCount:
		return s.getDailyPaymentCount(ctx, req, types.PaymentStatusSucceeded, item.ID)
	case StatisticTypeDailyFailedPaymentCount:
		return s.getDailyPaymentCount(ctx, req, types.PaymentStatusFailed, item.ID)
	case StatisticTypeDailyNetRevenue:
		return s.getDailyNetRevenue(ctx, req)
	case StatisticTypeTotalNetRevenue:
		return s.getTotalNetRevenue(ctx, req)
	case StatisticTypeSubscriptionStatusCount:
		return s.getSubscriptionStatusCount(ctx, req)
	case StatisticTypeDailyNewSubscriptionCount:
		return s.getDailyNewSubscriptionCount(ctx, req)
	default:
		return nil, fmt.Errorf("invalid data item id: %s", item.ID)
	}
}

// GetBillingStatistic computes every requested data item concurrently.
func (s *Service) GetBillingStatistic(ctx context.Context, req *BillingStatisticRequest) (*BillingStatisticResponse, error) {
	var wg sync.WaitGroup
	errChan := make(chan error, len(req.DataItems))
	resChan := make(chan *lo.Entry[StatisticType, []BillingStatisticResponseDataItem], len(req.DataItems))

	for _, item := range req.DataItems {
		wg.Add(1)
		go func(di *BillingStatisticDataItem) {
			defer wg.Done()
			res, err := s.getBillingStatistic(ctx, req, di)
			if err != nil {
				errChan <- err
				return
			}
			resChan <- &lo.Entry[StatisticType, []BillingStatisticResponseDataItem]{Key: di.ID, Value: res}
		}(item)
	}

	// each goroutine sends exactly once, on one of the two channels
	defer wg.Wait()

	results := make(map[StatisticType][]BillingStatisticResponseDataItem)
	for i := 0; i < len(req.DataItems); i++ {
		select {
		case err := <-errChan:
			return nil, err
		case entry := <-resChan:
			results[entry.Key] = entry.Value
		}
	}
	return &BillingStatisticResponse{DataItems: results}, nil
}

var Module = fx.Options(fx.Provide(New))
