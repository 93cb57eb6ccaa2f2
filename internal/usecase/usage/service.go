// Package usage reports monthly token consumption and enforces the spend
// budget.
package usage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Bryant-Tello/Entel/internal/domain"
	"github.com/Bryant-Tello/Entel/internal/metrics"
)

// Budget actions. Empty means no enforcement.
const (
	ActionWarn   = "warn"
	ActionReject = "reject"
)

// Report is the monthly usage snapshot served by the usage endpoint.
type Report struct {
	Month        string
	Tokens       int64
	Requests     int64
	CostUSD      float64
	LimitUSD     float64
	RemainingUSD float64
	Exhausted    bool
}

// Service computes spend from the persisted counters. The counters reset
// monthly on the storage side, so the service only converts tokens to USD.
type Service struct {
	counters       Counters
	limitUSD       float64
	costPerMillion float64
	action         string
	logger         *zap.Logger
	now            func() time.Time
}

// New creates a usage service. limitUSD <= 0 disables budget enforcement.
func New(counters Counters, limitUSD, costPerMillion float64, action string, logger *zap.Logger) *Service {
	return &Service{
		counters:       counters,
		limitUSD:       limitUSD,
		costPerMillion: costPerMillion,
		action:         action,
		logger:         logger,
		now:            time.Now,
	}
}

// GetReport builds the current month's usage report.
func (s *Service) GetReport(ctx context.Context) (Report, error) {
	tokens, err := s.counters.Tokens(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("read token counter: %w", err)
	}
	requests, err := s.counters.Requests(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("read request counter: %w", err)
	}

	cost := s.cost(tokens)
	metrics.BudgetUSDSpent.Set(cost)

	report := Report{
		Month:    s.now().UTC().Format("2006-01"),
		Tokens:   tokens,
		Requests: requests,
		CostUSD:  cost,
		LimitUSD: s.limitUSD,
	}
	if s.limitUSD > 0 {
		report.RemainingUSD = s.limitUSD - cost
		if report.RemainingUSD < 0 {
			report.RemainingUSD = 0
		}
		report.Exhausted = cost >= s.limitUSD
	}
	return report, nil
}

// Authorize checks the budget before provider spend. With action reject an
// exhausted budget returns ErrBudgetExceeded; with warn it only logs. A
// counter read failure never blocks the caller.
func (s *Service) Authorize(ctx context.Context) error {
	if s.limitUSD <= 0 || s.action == "" {
		return nil
	}

	tokens, err := s.counters.Tokens(ctx)
	if err != nil {
		s.logger.Warn("Budget check skipped, counter unavailable", zap.Error(err))
		return nil
	}

	cost := s.cost(tokens)
	metrics.BudgetUSDSpent.Set(cost)
	if cost < s.limitUSD {
		return nil
	}

	if s.action == ActionReject {
		return fmt.Errorf("monthly budget %.2f USD spent (%.4f USD): %w",
			s.limitUSD, cost, domain.ErrBudgetExceeded)
	}
	s.logger.Warn("Monthly budget exhausted",
		zap.Float64("limit_usd", s.limitUSD),
		zap.Float64("spent_usd", cost))
	return nil
}

func (s *Service) cost(tokens int64) float64 {
	return float64(tokens) / 1_000_000 * s.costPerMillion
}
