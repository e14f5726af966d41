package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates the index is down but reads can still be served
	// from the durable store.
	Degraded Status = "degraded"
	// Unhealthy indicates the durable store is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	store StorePinger
	index IndexChecker
}

// New creates a Service. index can be nil.
func New(store StorePinger, index IndexChecker) *Service {
	return &Service{store: store, index: index}
}

// Check runs health checks against all components. A failing store makes the
// service unhealthy; a failing index only degrades it, since searches fall
// back to the store.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	status := Healthy

	if err := s.store.Ping(ctx); err != nil {
		checks["store"] = CheckError
		status = Unhealthy
	} else {
		checks["store"] = CheckOK
	}

	if s.index != nil {
		if s.index.Healthy(ctx) {
			checks["index"] = CheckOK
		} else {
			checks["index"] = CheckError
			if status == Healthy {
				status = Degraded
			}
		}
	}

	return Report{Status: status, Checks: checks}
}
