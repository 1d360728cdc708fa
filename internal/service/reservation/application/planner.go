// internal/service/reservation/application/planner.go
package application

import (
	"context"
	"fmt"

	"allocator/internal/service/reservation/domain"
)

// WarehousePlanner 计算满足单个商品需求的仓库划拨方案，只读库存，不做任何写入。
type WarehousePlanner struct {
	store domain.InventoryStore
}

func NewWarehousePlanner(store domain.InventoryStore) *WarehousePlanner {
	return &WarehousePlanner{store: store}
}

// Plan 优先复用本订单已经用过的仓库，不足时再从全部仓库中补充，
// 最后截断到刚好等于需求数量。总量不足时返回 *domain.InsufficientInventoryError，不返回部分方案。
func (p *WarehousePlanner) Plan(ctx context.Context, item domain.Item, involved domain.WarehouseSet) ([]domain.WarehouseAllocation, error) {
	seen := make(map[int64]struct{})
	var candidates []domain.StockLevel
	total := 0

	collect := func(levels []domain.StockLevel) {
		for _, level := range levels {
			if level.Available <= 0 {
				continue
			}
			if _, ok := seen[level.WarehouseID]; ok {
				continue
			}
			seen[level.WarehouseID] = struct{}{}
			candidates = append(candidates, level)
			total += level.Available
		}
	}

	if len(involved) > 0 {
		restricted, err := p.store.AvailableForItemWithinWarehouses(ctx, item.ID, item.Qty, involved.IDs())
		if err != nil {
			return nil, fmt.Errorf("query involved warehouses for item %d: %w", item.ID, err)
		}
		collect(restricted)
	}

	if total < item.Qty {
		all, err := p.store.AvailableForItem(ctx, item.ID, item.Qty)
		if err != nil {
			return nil, fmt.Errorf("query warehouses for item %d: %w", item.ID, err)
		}
		collect(all)
	}

	if total < item.Qty {
		return nil, &domain.InsufficientInventoryError{ItemID: item.ID, Requested: item.Qty, Available: total}
	}

	return trim(item, candidates), nil
}

// trim 依次累加候选仓库，超出需求的那一项截断为剩余数量，其后的候选全部丢弃。
func trim(item domain.Item, candidates []domain.StockLevel) []domain.WarehouseAllocation {
	allocations := make([]domain.WarehouseAllocation, 0, len(candidates))
	remaining := item.Qty
	for _, c := range candidates {
		if remaining <= 0 {
			break
		}
		qty := c.Available
		if qty > remaining {
			qty = remaining
		}
		allocations = append(allocations, domain.WarehouseAllocation{
			WarehouseID: c.WarehouseID,
			ItemID:      item.ID,
			Qty:         qty,
		})
		remaining -= qty
	}
	return allocations
}
