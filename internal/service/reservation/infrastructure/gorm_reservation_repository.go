package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"allocator/internal/service/reservation/domain"
)

// GormReservationRepository 是 domain.ReservationLedger 的 GORM 实现
type GormReservationRepository struct {
	db *gorm.DB
}

func NewGormReservationRepository(db *gorm.DB) *GormReservationRepository {
	return &GormReservationRepository{db: db}
}

var _ domain.ReservationLedger = (*GormReservationRepository)(nil)

// Append 一并写入预占及其划拨
func (r *GormReservationRepository) Append(ctx context.Context, reservation *domain.Reservation) error {
	model := ToReservationModel(reservation)
	return errors.Wrapf(r.db.WithContext(ctx).Create(model).Error, "append reservation %s", reservation.ID)
}

// FindByOrder 返回订单的全部预占记录
func (r *GormReservationRepository) FindByOrder(ctx context.Context, orderID int64) ([]*domain.Reservation, error) {
	var models []*ReservationModel
	err := r.db.WithContext(ctx).
		Preload("Allocations").
		Where("order_id = ?", orderID).
		Order("created_at").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrapf(err, "find reservations of order %d", orderID)
	}

	reservations := make([]*domain.Reservation, len(models))
	for i, m := range models {
		reservations[i] = ToDomainReservation(m)
	}
	return reservations, nil
}
