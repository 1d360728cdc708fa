// internal/service/reservation/domain/event.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderCreated 是触发一次预占流程的领域事件。
// 消息本身不携带订单，saga 会向 OrderSelector 请求下一个候选订单。
type OrderCreated struct {
	EventID    string    `json:"event_id"`
	TraceID    string    `json:"trace_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ReservationMade 在订单全部商品预占成功后发出，每个订单恰好一次。
type ReservationMade struct {
	EventID    string    `json:"event_id"`
	OrderID    int64     `json:"order_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ReservationFailed 在订单中止时发出。
type ReservationFailed struct {
	EventID    string    `json:"event_id"`
	OrderID    int64     `json:"order_id"`
	ItemID     int64     `json:"item_id"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewOrderCreated() *OrderCreated {
	return &OrderCreated{EventID: uuid.NewString(), OccurredAt: time.Now().UTC()}
}

func NewReservationMade(orderID int64) *ReservationMade {
	return &ReservationMade{EventID: uuid.NewString(), OrderID: orderID, OccurredAt: time.Now().UTC()}
}

func NewReservationFailed(orderID, itemID int64, reason string) *ReservationFailed {
	return &ReservationFailed{
		EventID:    uuid.NewString(),
		OrderID:    orderID,
		ItemID:     itemID,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}
