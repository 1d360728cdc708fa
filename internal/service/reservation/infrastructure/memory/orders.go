package memory

import (
	"context"
	"sync"

	"allocator/internal/service/reservation/domain"
)

// OrderRepository 是内存中的订单选择器和订单状态接收者。
// 候选订单按加入顺序出队，出队即标记为 PROCESSING。
type OrderRepository struct {
	mu       sync.Mutex
	queue    []*domain.Order
	statuses map[int64]domain.OrderStatus
	reasons  map[int64]string
	selects  int
}

func NewOrderRepository(orders ...*domain.Order) *OrderRepository {
	r := &OrderRepository{
		statuses: make(map[int64]domain.OrderStatus),
		reasons:  make(map[int64]string),
	}
	for _, o := range orders {
		r.Add(o)
	}
	return r
}

var (
	_ domain.OrderSelector  = (*OrderRepository)(nil)
	_ domain.OrderStateSink = (*OrderRepository)(nil)
)

func (r *OrderRepository) Add(order *domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, order)
	r.statuses[order.ID] = domain.OrderStatusNew
}

func (r *OrderRepository) SelectCandidate(_ context.Context) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selects++
	if len(r.queue) == 0 {
		return nil, nil
	}
	order := r.queue[0]
	r.queue = r.queue[1:]
	r.statuses[order.ID] = domain.OrderStatusProcessing
	return order, nil
}

func (r *OrderRepository) MarkReserved(_ context.Context, orderID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[orderID] = domain.OrderStatusReserved
	return nil
}

func (r *OrderRepository) MarkFailed(_ context.Context, orderID int64, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[orderID] = domain.OrderStatusFailed
	r.reasons[orderID] = reason
	return nil
}

func (r *OrderRepository) Status(orderID int64) domain.OrderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[orderID]
}

func (r *OrderRepository) Selects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selects
}
