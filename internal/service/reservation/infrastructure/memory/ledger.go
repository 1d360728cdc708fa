package memory

import (
	"context"
	"sync"

	"allocator/internal/service/reservation/domain"
)

// Ledger 是内存中的预占账本。
type Ledger struct {
	mu           sync.Mutex
	reservations []*domain.Reservation

	// Err 非空时 Append 返回该错误
	Err error
}

func NewLedger() *Ledger {
	return &Ledger{}
}

func (l *Ledger) Append(_ context.Context, reservation *domain.Reservation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return l.Err
	}
	l.reservations = append(l.reservations, reservation)
	return nil
}

func (l *Ledger) Reservations() []*domain.Reservation {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*domain.Reservation, len(l.reservations))
	copy(out, l.reservations)
	return out
}

// ForOrder 返回某订单的预占记录。
func (l *Ledger) ForOrder(orderID int64) []*domain.Reservation {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*domain.Reservation
	for _, r := range l.reservations {
		if r.OrderID == orderID {
			out = append(out, r)
		}
	}
	return out
}
