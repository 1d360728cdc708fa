package domain

import (
	"fmt"
	"sort"
)

// WarehouseAllocation 表示从某个仓库为某个商品划拨的一份数量。
type WarehouseAllocation struct {
	WarehouseID int64
	ItemID      int64
	Qty         int
}

// LockKey 是 (仓库, 商品) 维度的锁名。
func (a WarehouseAllocation) LockKey() string {
	return LockKey(a.WarehouseID, a.ItemID)
}

// LockKey 生成 (仓库, 商品) 组合锁的 key。
func LockKey(warehouseID, itemID int64) string {
	return fmt.Sprintf("warehouse-%d-item-%d", warehouseID, itemID)
}

// TotalQty 汇总一组划拨的数量。
func TotalQty(allocations []WarehouseAllocation) int {
	total := 0
	for _, a := range allocations {
		total += a.Qty
	}
	return total
}

// StockLevel 是库存查询返回的一行：某仓库中某商品的可用数量。
type StockLevel struct {
	WarehouseID int64
	ItemID      int64
	Available   int
}

// WarehouseSet 记录同一订单中已经使用过的仓库。
type WarehouseSet map[int64]struct{}

func NewWarehouseSet(ids ...int64) WarehouseSet {
	s := make(WarehouseSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s WarehouseSet) Contains(id int64) bool {
	_, ok := s[id]
	return ok
}

// AddAllocations 把划拨涉及的仓库加入集合。
func (s WarehouseSet) AddAllocations(allocations []WarehouseAllocation) {
	for _, a := range allocations {
		s[a.WarehouseID] = struct{}{}
	}
}

// IDs 返回升序的仓库 ID，便于生成确定的查询条件。
func (s WarehouseSet) IDs() []int64 {
	ids := make([]int64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
