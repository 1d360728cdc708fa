package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"allocator/internal/service/reservation/domain"
)

type stockKey struct {
	warehouseID int64
	itemID      int64
}

type reservationKey struct {
	orderID     int64
	warehouseID int64
	itemID      int64
}

// InventoryStore 是内存中的仓库库存，可用量 = 库存 - 已预占。
type InventoryStore struct {
	mu         sync.Mutex
	priorities map[int64]int
	stock      map[stockKey]int
	reserved   map[reservationKey]int

	// CommitHook 在提交前调用，返回错误时该次提交失败
	CommitHook func(orderID int64, allocation domain.WarehouseAllocation) error

	queries int
	commits int
	reverts int
}

func NewInventoryStore() *InventoryStore {
	return &InventoryStore{
		priorities: make(map[int64]int),
		stock:      make(map[stockKey]int),
		reserved:   make(map[reservationKey]int),
	}
}

var _ domain.InventoryStore = (*InventoryStore)(nil)

func (s *InventoryStore) AddWarehouse(id int64, priority int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.priorities[id] = priority
}

func (s *InventoryStore) SetStock(warehouseID, itemID int64, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.priorities[warehouseID]; !ok {
		s.priorities[warehouseID] = 0
	}
	s.stock[stockKey{warehouseID, itemID}] = qty
}

func (s *InventoryStore) AvailableForItem(_ context.Context, itemID int64, qty int) ([]domain.StockLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	return s.levels(itemID, qty, nil), nil
}

func (s *InventoryStore) AvailableForItemWithinWarehouses(_ context.Context, itemID int64, qty int, warehouseIDs []int64) ([]domain.StockLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	return s.levels(itemID, qty, domain.NewWarehouseSet(warehouseIDs...)), nil
}

func (s *InventoryStore) levels(itemID int64, qty int, within domain.WarehouseSet) []domain.StockLevel {
	type row struct {
		level    domain.StockLevel
		priority int
		raw      int
	}
	var rows []row
	for key := range s.stock {
		if key.itemID != itemID {
			continue
		}
		if within != nil && !within.Contains(key.warehouseID) {
			continue
		}
		available := s.available(key.warehouseID, itemID)
		if available <= 0 {
			continue
		}
		clamped := available
		if clamped > qty {
			clamped = qty
		}
		rows = append(rows, row{
			level:    domain.StockLevel{WarehouseID: key.warehouseID, ItemID: itemID, Available: clamped},
			priority: s.priorities[key.warehouseID],
			raw:      available,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].priority != rows[j].priority {
			return rows[i].priority > rows[j].priority
		}
		if rows[i].raw != rows[j].raw {
			return rows[i].raw > rows[j].raw
		}
		return rows[i].level.WarehouseID < rows[j].level.WarehouseID
	})
	levels := make([]domain.StockLevel, len(rows))
	for i, r := range rows {
		levels[i] = r.level
	}
	return levels
}

func (s *InventoryStore) available(warehouseID, itemID int64) int {
	available := s.stock[stockKey{warehouseID, itemID}]
	for key, qty := range s.reserved {
		if key.warehouseID == warehouseID && key.itemID == itemID {
			available -= qty
		}
	}
	return available
}

func (s *InventoryStore) Commit(_ context.Context, orderID int64, allocation domain.WarehouseAllocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits++

	if s.CommitHook != nil {
		if err := s.CommitHook(orderID, allocation); err != nil {
			return &domain.ReservationCommitFailedError{OrderID: orderID, Allocation: allocation, Err: err}
		}
	}
	if s.available(allocation.WarehouseID, allocation.ItemID) < allocation.Qty {
		return &domain.ReservationCommitFailedError{OrderID: orderID, Allocation: allocation, Err: errors.New("stock changed since planning")}
	}
	s.reserved[reservationKey{orderID, allocation.WarehouseID, allocation.ItemID}] += allocation.Qty
	return nil
}

func (s *InventoryStore) Reverse(_ context.Context, orderID, warehouseID, itemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reverts++
	delete(s.reserved, reservationKey{orderID, warehouseID, itemID})
	return nil
}

// Available 返回某仓库某商品当前的可用量。
func (s *InventoryStore) Available(warehouseID, itemID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available(warehouseID, itemID)
}

// Reserved 返回某订单在某仓库为某商品预占的数量。
func (s *InventoryStore) Reserved(orderID, warehouseID, itemID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reserved[reservationKey{orderID, warehouseID, itemID}]
}

// Calls 返回查询、提交、撤销的调用次数。
func (s *InventoryStore) Calls() (queries, commits, reverts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries, s.commits, s.reverts
}
