package application

import (
	"time"

	"allocator/internal/service/reservation/domain"
)

// Outcome 是一次预占流程的结果。
type Outcome struct {
	OrderID      int64
	State        domain.SagaState
	Reservations []*domain.Reservation
	FailedItemID int64
	Err          error
}

// Options 是预占流程的可调参数。
type Options struct {
	LockTTL           time.Duration
	SortLockKeys      bool
	ProcessingTimeout time.Duration
}

// DefaultLockTTL 是 (仓库, 商品) 锁的默认有效期。
const DefaultLockTTL = 300 * time.Second
