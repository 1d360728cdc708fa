package domain

import (
	"time"

	"github.com/google/uuid"
)

// Reservation 是某个商品全部划拨提交成功后写入账本的记录。
type Reservation struct {
	ID          string
	OrderID     int64
	ItemID      int64
	Allocations []WarehouseAllocation
	CreatedAt   time.Time
}

// NewReservation 为已全部提交的划拨创建预占记录。
func NewReservation(orderID int64, item Item, allocations []WarehouseAllocation) *Reservation {
	copied := make([]WarehouseAllocation, len(allocations))
	copy(copied, allocations)
	return &Reservation{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		ItemID:      item.ID,
		Allocations: copied,
		CreatedAt:   time.Now().UTC(),
	}
}

// Qty 返回预占的总数量。
func (r *Reservation) Qty() int {
	return TotalQty(r.Allocations)
}
