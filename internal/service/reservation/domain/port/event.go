package port

import (
	"context"

	"allocator/internal/service/reservation/domain"
)

// EventPublisher 发布预占结果信号。
type EventPublisher interface {
	PublishReservationMade(ctx context.Context, event *domain.ReservationMade) error
	PublishReservationFailed(ctx context.Context, event *domain.ReservationFailed) error
}
