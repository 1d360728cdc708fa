// internal/service/reservation/domain/order.go
package domain

import (
	"errors"
	"sort"
)

// Item 是订单中的一个商品行，Qty 为需求数量。
type Item struct {
	ID  int64
	Qty int
}

// Order 是待预占的订单聚合。被选中处理后不可再变。
type Order struct {
	ID    int64
	Items []Item
}

// NewOrder 校验并创建订单。同一商品的多行合并为一行，位置取首次出现处，
// 这样每个 (订单, 仓库, 商品) 只对应一笔预占，补偿不会误删已记账的行。
func NewOrder(id int64, items []Item) (*Order, error) {
	merged := make([]Item, 0, len(items))
	index := make(map[int64]int, len(items))
	for _, item := range items {
		if item.Qty <= 0 {
			return nil, errors.New("order item quantity must be positive")
		}
		if i, ok := index[item.ID]; ok {
			merged[i].Qty += item.Qty
			continue
		}
		index[item.ID] = len(merged)
		merged = append(merged, item)
	}
	return &Order{ID: id, Items: merged}, nil
}

// ItemsByDemand 返回按需求数量升序排列的商品（数量相同保持原顺序）。
// 小需求先分配，给大需求留下更多可选仓库。
func (o *Order) ItemsByDemand() []Item {
	items := make([]Item, len(o.Items))
	copy(items, o.Items)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Qty < items[j].Qty
	})
	return items
}
