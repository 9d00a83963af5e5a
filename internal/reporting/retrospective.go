// Package reporting aggregates attempt records into operational summaries:
// which gateways carried the traffic, what failed with which codes, and how
// often the engine had to fall back.
package reporting

import (
	"time"

	"github.com/yourorg/gateway-fallback/internal/gateway"
)

// RetrospectiveReport summarizes a set of attempt records.
type RetrospectiveReport struct {
	TotalAttempts      int                           `json:"total_attempts"`
	SuccessfulAttempts int                           `json:"successful_attempts"`
	FailedAttempts     int                           `json:"failed_attempts"`
	FallbackAttempts   int                           `json:"fallback_attempts"`
	SettledAmountCents int64                         `json:"settled_amount_cents"`
	GatewayUsage       map[gateway.GatewayType]int   `json:"gateway_usage"`
	ErrorBreakdown     map[gateway.ErrorCode]int     `json:"error_breakdown"`
	MethodBreakdown    map[gateway.PaymentMethod]int `json:"method_breakdown"`
	DateFrom           time.Time                     `json:"date_from"`
	DateTo             time.Time                     `json:"date_to"`
}

// GenerateRetrospective folds attempt records into a report. Records are
// expected in persistence order but the aggregation does not rely on it.
func GenerateRetrospective(records []gateway.AttemptRecord) *RetrospectiveReport {
	report := &RetrospectiveReport{
		GatewayUsage:    make(map[gateway.GatewayType]int),
		ErrorBreakdown:  make(map[gateway.ErrorCode]int),
		MethodBreakdown: make(map[gateway.PaymentMethod]int),
	}

	for i, rec := range records {
		report.TotalAttempts++
		report.GatewayUsage[rec.Gateway]++
		report.MethodBreakdown[rec.Method]++

		if i == 0 || rec.CreatedAt.Before(report.DateFrom) {
			report.DateFrom = rec.CreatedAt
		}
		if rec.CreatedAt.After(report.DateTo) {
			report.DateTo = rec.CreatedAt
		}

		if rec.IsFallback {
			report.FallbackAttempts++
		}

		switch rec.Status {
		case gateway.AttemptSuccess:
			report.SuccessfulAttempts++
			report.SettledAmountCents += rec.AmountCents
		case gateway.AttemptFailed:
			report.FailedAttempts++
			if rec.ErrorCode != "" {
				report.ErrorBreakdown[rec.ErrorCode]++
			}
		}
	}
	return report
}
