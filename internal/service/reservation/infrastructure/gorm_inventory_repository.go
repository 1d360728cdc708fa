package infrastructure

import (
	"context"
	stderrors "errors"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"allocator/internal/pkg/logger"
	"allocator/internal/service/reservation/domain"
)

// MySQL 行锁冲突错误码
const (
	mysqlErrDeadlock        = 1213
	mysqlErrLockWaitTimeout = 1205
)

var errStockChanged = stderrors.New("stock changed since planning")

type stockRow struct {
	WarehouseID int64
	ItemID      int64
	Available   int
}

// GormInventoryRepository 是 domain.InventoryStore 的 GORM 实现
type GormInventoryRepository struct {
	db *gorm.DB
}

func NewGormInventoryRepository(db *gorm.DB) *GormInventoryRepository {
	return &GormInventoryRepository{db: db}
}

var _ domain.InventoryStore = (*GormInventoryRepository)(nil)

func (r *GormInventoryRepository) AvailableForItem(ctx context.Context, itemID int64, qty int) ([]domain.StockLevel, error) {
	rows, err := r.queryAvailable(ctx, itemID, nil)
	if err != nil {
		return nil, err
	}
	return clampLevels(rows, qty), nil
}

func (r *GormInventoryRepository) AvailableForItemWithinWarehouses(ctx context.Context, itemID int64, qty int, warehouseIDs []int64) ([]domain.StockLevel, error) {
	if len(warehouseIDs) == 0 {
		return nil, nil
	}
	rows, err := r.queryAvailable(ctx, itemID, warehouseIDs)
	if err != nil {
		return nil, err
	}
	return clampLevels(rows, qty), nil
}

// queryAvailable 计算 库存 - 已预占 > 0 的仓库，按优先级、可用量降序
func (r *GormInventoryRepository) queryAvailable(ctx context.Context, itemID int64, warehouseIDs []int64) ([]stockRow, error) {
	reserved := r.db.Model(&StockReservationModel{}).
		Select("warehouse_id, item_id, SUM(qty) AS reserved").
		Where("item_id = ?", itemID).
		Group("warehouse_id, item_id")

	q := r.db.WithContext(ctx).
		Table("warehouse_items AS s").
		Select("s.warehouse_id, s.item_id, s.qty - COALESCE(r.reserved, 0) AS available").
		Joins("JOIN warehouses AS w ON w.id = s.warehouse_id").
		Joins("LEFT JOIN (?) AS r ON r.warehouse_id = s.warehouse_id AND r.item_id = s.item_id", reserved).
		Where("s.item_id = ?", itemID).
		Where("s.qty - COALESCE(r.reserved, 0) > 0")
	if warehouseIDs != nil {
		q = q.Where("s.warehouse_id IN ?", warehouseIDs)
	}

	var rows []stockRow
	err := q.Order("w.priority DESC").
		Order("available DESC").
		Order("s.warehouse_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrapf(err, "query available stock for item %d", itemID)
	}
	return rows, nil
}

// Commit 在事务中锁住库存行，确认可用量后写入划拨。
func (r *GormInventoryRepository) Commit(ctx context.Context, orderID int64, allocation domain.WarehouseAllocation) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stock StockModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("warehouse_id = ? AND item_id = ?", allocation.WarehouseID, allocation.ItemID).
			First(&stock).Error
		if err != nil {
			return errors.Wrap(err, "lock stock row")
		}

		var reserved int64
		err = tx.Model(&StockReservationModel{}).
			Select("COALESCE(SUM(qty), 0)").
			Where("warehouse_id = ? AND item_id = ?", allocation.WarehouseID, allocation.ItemID).
			Scan(&reserved).Error
		if err != nil {
			return errors.Wrap(err, "sum reservations")
		}
		if stock.Qty-int(reserved) < allocation.Qty {
			return errStockChanged
		}

		return errors.Wrap(tx.Create(&StockReservationModel{
			OrderID:     orderID,
			WarehouseID: allocation.WarehouseID,
			ItemID:      allocation.ItemID,
			Qty:         allocation.Qty,
		}).Error, "insert reservation")
	})
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).
			Str("reason", commitFailureReason(err)).
			Int64("order_id", orderID).
			Int64("warehouse_id", allocation.WarehouseID).
			Msg("inventory commit rejected")
		return &domain.ReservationCommitFailedError{OrderID: orderID, Allocation: allocation, Err: err}
	}
	return nil
}

// Reverse 删除该订单在该仓库为该商品写入的划拨，不存在时视为成功。
func (r *GormInventoryRepository) Reverse(ctx context.Context, orderID, warehouseID, itemID int64) error {
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND warehouse_id = ? AND item_id = ?", orderID, warehouseID, itemID).
		Delete(&StockReservationModel{}).Error
	return errors.Wrapf(err, "reverse reservation of order %d in warehouse %d item %d", orderID, warehouseID, itemID)
}

// commitFailureReason 把驱动错误归类，便于告警区分行锁冲突与库存变化。
func commitFailureReason(err error) string {
	var mysqlErr *mysqldriver.MySQLError
	switch {
	case stderrors.Is(err, errStockChanged):
		return "stock_changed"
	case stderrors.Is(err, gorm.ErrRecordNotFound):
		return "stock_row_missing"
	case stderrors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDeadlock:
		return "deadlock"
	case stderrors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrLockWaitTimeout:
		return "lock_wait_timeout"
	default:
		return "database_error"
	}
}
