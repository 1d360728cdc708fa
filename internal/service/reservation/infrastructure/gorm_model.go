package infrastructure

import "time"

// WarehouseModel 对应数据库中的 warehouses 表
type WarehouseModel struct {
	ID        int64 `gorm:"primaryKey"`
	Name      string
	Priority  int `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (WarehouseModel) TableName() string {
	return "warehouses"
}

// StockModel 是某仓库中某商品的库存总量
type StockModel struct {
	ID          int64 `gorm:"primaryKey"`
	WarehouseID int64 `gorm:"uniqueIndex:idx_warehouse_item"`
	ItemID      int64 `gorm:"uniqueIndex:idx_warehouse_item;index"`
	Qty         int
	UpdatedAt   time.Time
}

func (StockModel) TableName() string {
	return "warehouse_items"
}

// StockReservationModel 是一份已提交的仓库划拨，可用量 = 库存 - 划拨之和
type StockReservationModel struct {
	ID          int64 `gorm:"primaryKey"`
	OrderID     int64 `gorm:"index:idx_order_warehouse_item"`
	WarehouseID int64 `gorm:"index:idx_order_warehouse_item;index:idx_warehouse_item_res"`
	ItemID      int64 `gorm:"index:idx_order_warehouse_item;index:idx_warehouse_item_res"`
	Qty         int
	CreatedAt   time.Time
}

func (StockReservationModel) TableName() string {
	return "warehouse_item_reservations"
}

// OrderModel 对应数据库中的 orders 表
type OrderModel struct {
	ID            int64            `gorm:"primaryKey"`
	Status        string           `gorm:"type:varchar(16);index;default:NEW"`
	Profit        float64          `gorm:"type:decimal(12,2)"`
	FailureReason string           `gorm:"type:varchar(512)"`
	Items         []OrderItemModel `gorm:"foreignKey:OrderID"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (OrderModel) TableName() string {
	return "orders"
}

type OrderItemModel struct {
	ID      int64 `gorm:"primaryKey"`
	OrderID int64 `gorm:"index"`
	ItemID  int64
	Qty     int
}

func (OrderItemModel) TableName() string {
	return "order_items"
}

// ReservationModel 是账本中的一条预占记录
type ReservationModel struct {
	ID          string `gorm:"primaryKey;type:char(36)"`
	OrderID     int64  `gorm:"index"`
	ItemID      int64
	Qty         int
	Allocations []ReservationAllocationModel `gorm:"foreignKey:ReservationID"`
	CreatedAt   time.Time
}

func (ReservationModel) TableName() string {
	return "reservations"
}

type ReservationAllocationModel struct {
	ID            int64  `gorm:"primaryKey"`
	ReservationID string `gorm:"type:char(36);index"`
	Seq           int
	WarehouseID   int64
	ItemID        int64
	Qty           int
}

func (ReservationAllocationModel) TableName() string {
	return "reservation_allocations"
}

// AllModels 返回需要自动迁移的模型
func AllModels() []any {
	return []any{
		&WarehouseModel{},
		&StockModel{},
		&StockReservationModel{},
		&OrderModel{},
		&OrderItemModel{},
		&ReservationModel{},
		&ReservationAllocationModel{},
	}
}
