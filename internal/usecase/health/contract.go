package health

import "context"

// StorePinger checks durable store availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// IndexChecker checks search index availability.
type IndexChecker interface {
	Healthy(ctx context.Context) bool
}
