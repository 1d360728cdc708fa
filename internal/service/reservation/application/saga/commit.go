package saga

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"allocator/internal/pkg/logger"
	"allocator/internal/service/reservation/domain"
)

// CommitHandler 按方案顺序提交每一份划拨。
// 单份提交失败不重试，只计入缺口；提交完仍有缺口则返回错误交由调用方补偿。
type CommitHandler struct {
	NextHandler
}

func (h *CommitHandler) Handle(itemCtx *ItemContext) error {
	ctx, span := itemCtx.Tracer.Start(itemCtx.Ctx, "saga.Commit")
	defer span.End()

	itemCtx.State = domain.StateCommitting

	for _, allocation := range itemCtx.Plan {
		allocation := allocation
		if err := itemCtx.Inventory.Commit(ctx, itemCtx.Order.ID, allocation); err != nil {
			// 告警级别：库存与方案出现了偏差
			logger.Ctx(ctx).Error().Err(err).
				Int64("order_id", itemCtx.Order.ID).
				Int64("warehouse_id", allocation.WarehouseID).
				Int64("item_id", allocation.ItemID).
				Int("qty", allocation.Qty).
				Msg("reservation commit failed")
			span.RecordError(err, trace.WithAttributes(attribute.Int64("warehouse.id", allocation.WarehouseID)))
			if itemCtx.Recorder != nil {
				itemCtx.Recorder.CommitFailed()
			}
			continue
		}

		itemCtx.Committed = append(itemCtx.Committed, allocation)
		itemCtx.CommittedQty += allocation.Qty
		itemCtx.AddCompensation(func(compCtx context.Context) {
			compCtx, compSpan := itemCtx.Tracer.Start(compCtx, "saga.compensation.ReverseReservation")
			defer compSpan.End()
			compSpan.SetAttributes(
				attribute.Int64("warehouse.id", allocation.WarehouseID),
				attribute.Int64("item.id", allocation.ItemID),
			)
			if err := itemCtx.Inventory.Reverse(compCtx, itemCtx.Order.ID, allocation.WarehouseID, allocation.ItemID); err != nil {
				// 撤销失败需要人工介入
				logger.Ctx(compCtx).Error().Err(err).
					Int64("order_id", itemCtx.Order.ID).
					Int64("warehouse_id", allocation.WarehouseID).
					Int64("item_id", allocation.ItemID).
					Msg("CRITICAL: failed to reverse reservation")
				compSpan.RecordError(err)
			}
		})
	}

	span.SetAttributes(
		attribute.Int("qty.requested", itemCtx.Item.Qty),
		attribute.Int("qty.committed", itemCtx.CommittedQty),
	)

	if itemCtx.CommittedQty < itemCtx.Item.Qty {
		err := &domain.RequiredQtyNotReservedError{
			OrderID:   itemCtx.Order.ID,
			ItemID:    itemCtx.Item.ID,
			Requested: itemCtx.Item.Qty,
			Reserved:  itemCtx.CommittedQty,
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "Required quantity not reserved")
		return err
	}
	span.AddEvent("All allocations committed")

	return h.executeNext(itemCtx)
}
