package infrastructure

import (
	"sort"

	"allocator/internal/service/reservation/domain"
)

// ToDomainOrder 将数据库模型转换为领域模型
func ToDomainOrder(model *OrderModel, items []OrderItemModel) (*domain.Order, error) {
	domainItems := make([]domain.Item, 0, len(items))
	for _, it := range items {
		domainItems = append(domainItems, domain.Item{ID: it.ItemID, Qty: it.Qty})
	}
	return domain.NewOrder(model.ID, domainItems)
}

// ToReservationModel 将领域模型转换为数据库模型，划拨保留原有顺序
func ToReservationModel(r *domain.Reservation) *ReservationModel {
	model := &ReservationModel{
		ID:        r.ID,
		OrderID:   r.OrderID,
		ItemID:    r.ItemID,
		Qty:       r.Qty(),
		CreatedAt: r.CreatedAt,
	}
	for i, a := range r.Allocations {
		model.Allocations = append(model.Allocations, ReservationAllocationModel{
			ReservationID: r.ID,
			Seq:           i,
			WarehouseID:   a.WarehouseID,
			ItemID:        a.ItemID,
			Qty:           a.Qty,
		})
	}
	return model
}

func ToDomainReservation(model *ReservationModel) *domain.Reservation {
	allocations := append([]ReservationAllocationModel(nil), model.Allocations...)
	sort.Slice(allocations, func(i, j int) bool { return allocations[i].Seq < allocations[j].Seq })

	r := &domain.Reservation{
		ID:        model.ID,
		OrderID:   model.OrderID,
		ItemID:    model.ItemID,
		CreatedAt: model.CreatedAt,
	}
	for _, a := range allocations {
		r.Allocations = append(r.Allocations, domain.WarehouseAllocation{
			WarehouseID: a.WarehouseID,
			ItemID:      a.ItemID,
			Qty:         a.Qty,
		})
	}
	return r
}

// clampLevels 把每行可用量截断到需求数量
func clampLevels(rows []stockRow, qty int) []domain.StockLevel {
	levels := make([]domain.StockLevel, 0, len(rows))
	for _, row := range rows {
		available := row.Available
		if available > qty {
			available = qty
		}
		levels = append(levels, domain.StockLevel{
			WarehouseID: row.WarehouseID,
			ItemID:      row.ItemID,
			Available:   available,
		})
	}
	return levels
}
