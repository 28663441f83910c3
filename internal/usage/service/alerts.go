package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// evaluateAlerts checks the user's configured thresholds after a usage write.
// Evaluation is best-effort: failures are logged and never surface to the
// caller, and email delivery runs off the request path.
func (s *Service) evaluateAlerts(ctx context.Context, userID string, now time.Time) {
	alertConfig, err := s.repo.FindAlertConfig(ctx, s.db, userID)
	if err != nil {
		s.log.Warn("alert config lookup failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if alertConfig == nil {
		return
	}

	today := now.Format("2006-01-02")

	if alertConfig.DailyCostLimit != nil || alertConfig.DailyTokenLimit != nil {
		summary, err := s.repo.FindDailySummary(ctx, s.db, userID, today)
		if err != nil {
			s.log.Warn("daily summary lookup failed", zap.String("user_id", userID), zap.Error(err))
		} else if summary != nil {
			if alertConfig.DailyCostLimit != nil && summary.TotalCost > *alertConfig.DailyCostLimit {
				s.raiseAlert(alertConfig.AlertEmail, "daily_cost",
					fmt.Sprintf("Daily GPT spend $%.4f exceeded the configured limit of $%.2f.", summary.TotalCost, *alertConfig.DailyCostLimit),
					zap.String("user_id", userID),
					zap.Float64("daily_cost", summary.TotalCost),
					zap.Float64("limit", *alertConfig.DailyCostLimit),
				)
			}
			if alertConfig.DailyTokenLimit != nil && summary.TotalTokens > *alertConfig.DailyTokenLimit {
				s.raiseAlert(alertConfig.AlertEmail, "daily_tokens",
					fmt.Sprintf("Daily GPT token usage %d exceeded the configured limit of %d.", summary.TotalTokens, *alertConfig.DailyTokenLimit),
					zap.String("user_id", userID),
					zap.Int64("daily_tokens", summary.TotalTokens),
					zap.Int64("limit", *alertConfig.DailyTokenLimit),
				)
			}
		}
	}

	if alertConfig.MonthlyCostLimit != nil {
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		monthCost, err := s.repo.SumCostSince(ctx, s.db, userID, monthStart)
		if err != nil {
			s.log.Warn("monthly cost lookup failed", zap.String("user_id", userID), zap.Error(err))
		} else if monthCost > *alertConfig.MonthlyCostLimit {
			s.raiseAlert(alertConfig.AlertEmail, "monthly_cost",
				fmt.Sprintf("Monthly GPT spend $%.4f exceeded the configured limit of $%.2f.", monthCost, *alertConfig.MonthlyCostLimit),
				zap.String("user_id", userID),
				zap.Float64("monthly_cost", monthCost),
				zap.Float64("limit", *alertConfig.MonthlyCostLimit),
			)
		}
	}
}

func (s *Service) raiseAlert(alertEmail, kind, message string, fields ...zap.Field) {
	s.log.Warn("usage alert threshold reached", append(fields, zap.String("kind", kind))...)
	if s.metrics != nil {
		s.metrics.AlertWarnings.WithLabelValues(kind).Inc()
	}
	if alertEmail == "" || s.email == nil {
		return
	}
	go func() {
		if err := s.email.Send(context.Background(), []string{alertEmail},
			"GPT usage alert: "+kind,
			"<p>"+message+"</p>"); err != nil {
			s.log.Warn("alert email delivery failed", zap.String("kind", kind), zap.Error(err))
		}
	}()
}
