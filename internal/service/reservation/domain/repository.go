// internal/service/reservation/domain/repository.go
package domain

import "context"

// OrderSelector 返回下一个待预占的订单，没有候选时返回 (nil, nil)。
type OrderSelector interface {
	SelectCandidate(ctx context.Context) (*Order, error)
}

// InventoryStore 是仓库库存的出站端口。
// 查询结果按仓库优先级降序、可用量降序排列，每行可用量不超过 qty。
type InventoryStore interface {
	AvailableForItem(ctx context.Context, itemID int64, qty int) ([]StockLevel, error)
	AvailableForItemWithinWarehouses(ctx context.Context, itemID int64, qty int, warehouseIDs []int64) ([]StockLevel, error)
	// Commit 失败时返回 *ReservationCommitFailedError。
	Commit(ctx context.Context, orderID int64, allocation WarehouseAllocation) error
	// Reverse 只撤销该订单在该仓库的该商品预占，重复调用无副作用。
	Reverse(ctx context.Context, orderID, warehouseID, itemID int64) error
}

// ReservationLedger 持久化成功的预占记录。
type ReservationLedger interface {
	Append(ctx context.Context, reservation *Reservation) error
}

// OrderStateSink 由下游监听器在收到预占结果后调用，saga 本身不调用。
type OrderStateSink interface {
	MarkReserved(ctx context.Context, orderID int64) error
	MarkFailed(ctx context.Context, orderID int64, reason string) error
}
