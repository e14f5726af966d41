package usage

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/placedex/internal/metrics"
)

// Report describes provider quota consumption for the current UTC day.
type Report struct {
	CallsToday int64 `json:"calls_today"`
	Limit      int64 `json:"limit"`
	Remaining  int64 `json:"remaining"`
	Unlimited  bool  `json:"unlimited"`
	ResetsAt   int64 `json:"resets_at"`
}

// Service handles quota usage reporting.
type Service struct {
	quota QuotaReader
	limit int64
}

// New creates a Service. A limit of zero means unmetered.
func New(quota QuotaReader, dailyCallLimit int64) *Service {
	return &Service{quota: quota, limit: dailyCallLimit}
}

// GetReport builds a usage report for the current UTC day.
func (s *Service) GetReport(ctx context.Context) (Report, error) {
	used, err := s.quota.Consumed(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("reading quota usage: %w", err)
	}

	r := Report{
		CallsToday: used,
		Limit:      s.limit,
		Unlimited:  s.limit <= 0,
		ResetsAt:   s.quota.ResetsAt().Unix(),
	}
	if !r.Unlimited {
		r.Remaining = s.limit - used
		if r.Remaining < 0 {
			r.Remaining = 0
		}
		metrics.QuotaCallsRemaining.Set(float64(r.Remaining))
	}

	return r, nil
}
