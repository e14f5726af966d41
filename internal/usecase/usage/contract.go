package usage

import (
	"context"
	"time"
)

// QuotaReader provides read-only access to the daily provider-call counter.
type QuotaReader interface {
	Consumed(ctx context.Context) (int64, error)
	ResetsAt() time.Time
}
