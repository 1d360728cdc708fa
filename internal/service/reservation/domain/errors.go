// internal/service/reservation/domain/errors.go
package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInsufficientInventory   = errors.New("insufficient inventory")
	ErrRequiredQtyNotReserved  = errors.New("required quantity has not been reserved")
	ErrLockNotAcquired         = errors.New("lock not acquired")
	ErrReservationCommitFailed = errors.New("reservation commit failed")
	ErrRouting                 = errors.New("routing error")
)

// InsufficientInventoryError 表示所有仓库可用总量不足以满足商品需求。
type InsufficientInventoryError struct {
	ItemID    int64
	Requested int
	Available int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory for item %d: requested %d, available %d", e.ItemID, e.Requested, e.Available)
}

func (e *InsufficientInventoryError) Is(target error) bool {
	return target == ErrInsufficientInventory
}

// ReservationCommitFailedError 表示单个仓库划拨提交失败，在 saga 中计入缺口而不中断。
type ReservationCommitFailedError struct {
	OrderID    int64
	Allocation WarehouseAllocation
	Err        error
}

func (e *ReservationCommitFailedError) Error() string {
	msg := fmt.Sprintf("commit of %d x item %d in warehouse %d for order %d failed",
		e.Allocation.Qty, e.Allocation.ItemID, e.Allocation.WarehouseID, e.OrderID)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ReservationCommitFailedError) Is(target error) bool {
	return target == ErrReservationCommitFailed
}

func (e *ReservationCommitFailedError) Unwrap() error { return e.Err }

// RequiredQtyNotReservedError 表示提交后数量仍有缺口，已经触发补偿。
type RequiredQtyNotReservedError struct {
	OrderID   int64
	ItemID    int64
	Requested int
	Reserved  int
}

func (e *RequiredQtyNotReservedError) Error() string {
	return fmt.Sprintf("required qty has not been reserved for order %d item %d: requested %d, reserved %d",
		e.OrderID, e.ItemID, e.Requested, e.Reserved)
}

func (e *RequiredQtyNotReservedError) Is(target error) bool {
	return target == ErrRequiredQtyNotReserved
}

// LockAcquisitionError 表示在等待时间内未能拿到 (仓库, 商品) 锁。
type LockAcquisitionError struct {
	Key string
	Err error
}

func (e *LockAcquisitionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("lock %q not acquired", e.Key)
	}
	return fmt.Sprintf("lock %q not acquired: %v", e.Key, e.Err)
}

func (e *LockAcquisitionError) Is(target error) bool {
	return target == ErrLockNotAcquired
}

func (e *LockAcquisitionError) Unwrap() error { return e.Err }

// RoutingError 表示某个协作者解析到了零个或多个处理者，例如构造时缺少依赖、配置了未知的后端。
type RoutingError struct {
	Request  string
	Handlers []string
}

func (e *RoutingError) Error() string {
	if len(e.Handlers) == 0 {
		return fmt.Sprintf("no handler for %s", e.Request)
	}
	return fmt.Sprintf("expected exactly one handler for %s, got %d: %s", e.Request, len(e.Handlers), strings.Join(e.Handlers, ", "))
}

func (e *RoutingError) Is(target error) bool {
	return target == ErrRouting
}
