package ports

import (
	"context"

	"github.com/samirrijal/parksmart/internal/core/domain"
)

// PositionCallback receives either a fix or a failure, never both.
type PositionCallback func(pos domain.UserPosition, err error)

// PositionSource wraps the asynchronous device-location mechanism.
type PositionSource interface {
	// StartTracking begins continuous observation. Failures are delivered to cb
	// and do not terminate the stream.
	StartTracking(cb PositionCallback)
	// StopTracking is idempotent; no callback runs after it returns.
	StopTracking()
	// RequestSingleFix resolves or fails exactly once.
	RequestSingleFix(ctx context.Context) (domain.UserPosition, error)
}

// AvailabilityPublisher publishes live availability changes to a message broker.
type AvailabilityPublisher interface {
	PublishAvailability(ctx context.Context, update domain.AvailabilityUpdate) error
}

// AvailabilitySubscriber delivers live availability changes from a message broker.
type AvailabilitySubscriber interface {
	SubscribeAvailability(ctx context.Context, handler func(ctx context.Context, update domain.AvailabilityUpdate) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
