package infrastructure

import (
	"context"
	"unicode/utf8"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"allocator/internal/service/reservation/domain"
)

// GormOrderRepository 同时实现订单选择器与订单状态接收者
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

var (
	_ domain.OrderSelector  = (*GormOrderRepository)(nil)
	_ domain.OrderStateSink = (*GormOrderRepository)(nil)
)

// SelectCandidate 选出利润最高的 NEW 订单并标记为 PROCESSING。
// SKIP LOCKED 让并发的 saga 各自拿到不同的订单。
func (r *GormOrderRepository) SelectCandidate(ctx context.Context) (*domain.Order, error) {
	var order *domain.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model OrderModel
		res := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", string(domain.OrderStatusNew)).
			Order("profit DESC").
			Order("id ASC").
			Limit(1).
			Find(&model)
		if res.Error != nil {
			return errors.Wrap(res.Error, "select most profitable order")
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var items []OrderItemModel
		if err := tx.Where("order_id = ?", model.ID).Order("id").Find(&items).Error; err != nil {
			return errors.Wrapf(err, "load items of order %d", model.ID)
		}

		err := tx.Model(&OrderModel{}).
			Where("id = ?", model.ID).
			Update("status", string(domain.OrderStatusProcessing)).Error
		if err != nil {
			return errors.Wrapf(err, "claim order %d", model.ID)
		}

		order, err = ToDomainOrder(&model, items)
		return errors.Wrapf(err, "map order %d", model.ID)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *GormOrderRepository) MarkReserved(ctx context.Context, orderID int64) error {
	return r.updateStatus(ctx, orderID, map[string]any{
		"status": string(domain.OrderStatusReserved),
	})
}

func (r *GormOrderRepository) MarkFailed(ctx context.Context, orderID int64, reason string) error {
	return r.updateStatus(ctx, orderID, map[string]any{
		"status":         string(domain.OrderStatusFailed),
		"failure_reason": truncateReason(reason),
	})
}

// failure_reason 是 varchar(512)，按字符而不是字节计长
const maxFailureReason = 512

func truncateReason(reason string) string {
	if utf8.RuneCountInString(reason) <= maxFailureReason {
		return reason
	}
	return string([]rune(reason)[:maxFailureReason])
}

func (r *GormOrderRepository) updateStatus(ctx context.Context, orderID int64, updates map[string]any) error {
	err := r.db.WithContext(ctx).Model(&OrderModel{}).Where("id = ?", orderID).Updates(updates).Error
	return errors.Wrapf(err, "update status of order %d", orderID)
}
