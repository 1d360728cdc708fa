package memory

import (
	"context"
	"sync"

	"allocator/internal/service/reservation/domain"
	"allocator/internal/service/reservation/domain/port"
)

// EventRecorder 记录发布的预占结果信号，可选地转发给 OrderStateSink。
type EventRecorder struct {
	mu     sync.Mutex
	made   []*domain.ReservationMade
	failed []*domain.ReservationFailed
	sink   domain.OrderStateSink

	// Err 非空时发布返回该错误
	Err error
}

func NewEventRecorder(sink domain.OrderStateSink) *EventRecorder {
	return &EventRecorder{sink: sink}
}

var _ port.EventPublisher = (*EventRecorder)(nil)

func (r *EventRecorder) PublishReservationMade(ctx context.Context, event *domain.ReservationMade) error {
	r.mu.Lock()
	if r.Err != nil {
		r.mu.Unlock()
		return r.Err
	}
	r.made = append(r.made, event)
	r.mu.Unlock()
	if r.sink != nil {
		return r.sink.MarkReserved(ctx, event.OrderID)
	}
	return nil
}

func (r *EventRecorder) PublishReservationFailed(ctx context.Context, event *domain.ReservationFailed) error {
	r.mu.Lock()
	if r.Err != nil {
		r.mu.Unlock()
		return r.Err
	}
	r.failed = append(r.failed, event)
	r.mu.Unlock()
	if r.sink != nil {
		return r.sink.MarkFailed(ctx, event.OrderID, event.Reason)
	}
	return nil
}

func (r *EventRecorder) Made() []*domain.ReservationMade {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.ReservationMade(nil), r.made...)
}

func (r *EventRecorder) Failed() []*domain.ReservationFailed {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.ReservationFailed(nil), r.failed...)
}
