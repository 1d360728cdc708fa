package saga

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"allocator/internal/service/reservation/domain"
)

// PlanHandler 为当前商品计算仓库划拨方案。
type PlanHandler struct {
	NextHandler
}

func (h *PlanHandler) Handle(itemCtx *ItemContext) error {
	ctx, span := itemCtx.Tracer.Start(itemCtx.Ctx, "saga.Plan")
	defer span.End()

	itemCtx.State = domain.StatePlanning
	span.SetAttributes(
		attribute.Int64("order.id", itemCtx.Order.ID),
		attribute.Int64("item.id", itemCtx.Item.ID),
		attribute.Int("item.qty", itemCtx.Item.Qty),
		attribute.Int64Slice("warehouses.involved", itemCtx.Involved.IDs()),
	)

	plan, err := itemCtx.Planner.Plan(ctx, itemCtx.Item, itemCtx.Involved)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Allocation planning failed")
		return err
	}
	itemCtx.Plan = plan
	span.AddEvent("Allocation plan computed", traceAllocations(plan))

	return h.executeNext(itemCtx)
}
