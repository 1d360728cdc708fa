package saga

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"allocator/internal/pkg/logger"
	"allocator/internal/service/reservation/domain"
)

// LockHandler 在任何提交之前获取方案中每个 (仓库, 商品) 的锁。
type LockHandler struct {
	NextHandler
}

func (h *LockHandler) Handle(itemCtx *ItemContext) error {
	ctx, span := itemCtx.Tracer.Start(itemCtx.Ctx, "saga.Lock")
	defer span.End()

	itemCtx.State = domain.StateLocking
	keys := lockKeys(itemCtx.Plan, itemCtx.SortLockKeys)
	span.SetAttributes(attribute.StringSlice("lock.keys", keys))

	// 锁最后释放：补偿按 LIFO 执行，先撤销提交再放锁。
	itemCtx.AddCompensation(func(compCtx context.Context) {
		compCtx, compSpan := itemCtx.Tracer.Start(compCtx, "saga.compensation.ReleaseLocks")
		defer compSpan.End()
		itemCtx.ReleaseLocks(compCtx)
	})

	for _, key := range keys {
		started := time.Now()
		handle, err := itemCtx.LockService.Acquire(ctx, key, itemCtx.LockTTL, true)
		if itemCtx.Recorder != nil {
			itemCtx.Recorder.LockWaited(time.Since(started))
		}
		if err != nil {
			var lockErr *domain.LockAcquisitionError
			if !errors.As(err, &lockErr) {
				err = &domain.LockAcquisitionError{Key: key, Err: err}
			}
			logger.Ctx(ctx).Error().Err(err).
				Int64("order_id", itemCtx.Order.ID).
				Int64("item_id", itemCtx.Item.ID).
				Msg("failed to acquire warehouse lock")
			span.RecordError(err)
			span.SetStatus(codes.Error, "Lock acquisition failed")
			return err
		}
		itemCtx.holdLock(handle)
	}
	span.AddEvent("All warehouse locks acquired")

	return h.executeNext(itemCtx)
}

// lockKeys 按方案顺序（或排序后）生成待获取的锁 key 列表。
func lockKeys(plan []domain.WarehouseAllocation, sorted bool) []string {
	keys := make([]string, 0, len(plan))
	seen := make(map[string]struct{}, len(plan))
	for _, a := range plan {
		key := a.LockKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	if sorted {
		sort.Strings(keys)
	}
	return keys
}
