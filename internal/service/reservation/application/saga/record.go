package saga

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"allocator/internal/service/reservation/domain"
)

// RecordHandler 把预占写入账本并释放当前商品的锁，是链的末端。
type RecordHandler struct {
	NextHandler
}

func (h *RecordHandler) Handle(itemCtx *ItemContext) error {
	ctx, span := itemCtx.Tracer.Start(itemCtx.Ctx, "saga.Record")
	defer span.End()

	reservation := domain.NewReservation(itemCtx.Order.ID, itemCtx.Item, itemCtx.Committed)
	span.SetAttributes(attribute.String("reservation.id", reservation.ID))

	if err := itemCtx.Ledger.Append(ctx, reservation); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to append reservation")
		return fmt.Errorf("append reservation for order %d item %d: %w", itemCtx.Order.ID, itemCtx.Item.ID, err)
	}
	itemCtx.Reservation = reservation
	itemCtx.State = domain.StateRecorded

	itemCtx.ReleaseLocks(ctx)
	span.AddEvent("Reservation recorded and locks released")

	return h.executeNext(itemCtx)
}

func traceAllocations(allocations []domain.WarehouseAllocation) trace.EventOption {
	warehouses := make([]int64, 0, len(allocations))
	qtys := make([]int64, 0, len(allocations))
	for _, a := range allocations {
		warehouses = append(warehouses, a.WarehouseID)
		qtys = append(qtys, int64(a.Qty))
	}
	return trace.WithAttributes(
		attribute.Int64Slice("allocation.warehouses", warehouses),
		attribute.Int64Slice("allocation.qtys", qtys),
	)
}
