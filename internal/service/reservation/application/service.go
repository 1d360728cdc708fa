// internal/service/reservation/application/service.go
package application

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"allocator/internal/pkg/logger"
	"allocator/internal/service/reservation/application/saga"
	"allocator/internal/service/reservation/domain"
	"allocator/internal/service/reservation/domain/port"
)

const tracerName = "reservation-service"

// Dependencies 是预占服务的出站端口，除 Tracer 和 Metrics 外都必须提供。
type Dependencies struct {
	Selector  domain.OrderSelector
	Inventory domain.InventoryStore
	Locks     port.LockService
	Ledger    domain.ReservationLedger
	Publisher port.EventPublisher
	Tracer    trace.Tracer
	Metrics   *Metrics
}

// ReservationService 把一个订单编排成一组按仓库拆分的预占命令。
type ReservationService struct {
	selector  domain.OrderSelector
	inventory domain.InventoryStore
	locks     port.LockService
	ledger    domain.ReservationLedger
	publisher port.EventPublisher
	tracer    trace.Tracer
	metrics   *Metrics

	planner *WarehousePlanner
	chain   saga.Handler
	opts    Options
}

func NewReservationService(deps Dependencies, opts Options) (*ReservationService, error) {
	required := []struct {
		name    string
		missing bool
	}{
		{"order selector", deps.Selector == nil},
		{"inventory store", deps.Inventory == nil},
		{"lock service", deps.Locks == nil},
		{"reservation ledger", deps.Ledger == nil},
		{"event publisher", deps.Publisher == nil},
	}
	for _, r := range required {
		if r.missing {
			return nil, &domain.RoutingError{Request: r.name}
		}
	}

	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}

	return &ReservationService{
		selector:  deps.Selector,
		inventory: deps.Inventory,
		locks:     deps.Locks,
		ledger:    deps.Ledger,
		publisher: deps.Publisher,
		tracer:    deps.Tracer,
		metrics:   deps.Metrics,
		planner:   NewWarehousePlanner(deps.Inventory),
		chain:     saga.NewChain(),
		opts:      opts,
	}, nil
}

// HandleOrderCreated 是预占流程的入口，由驱动适配器（Kafka 消费者）调用。
// 订单中止时返回的 Outcome 状态为 ABORTED，同时返回导致中止的错误；
// 选单本身失败时状态停留在 SELECTING，错误交给消费者重试。
func (s *ReservationService) HandleOrderCreated(ctx context.Context, event *domain.OrderCreated) (*Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "app.HandleOrderCreated", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	if event != nil {
		span.SetAttributes(attribute.String("event.id", event.EventID))
	}

	if s.opts.ProcessingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ProcessingTimeout)
		defer cancel()
	}

	outcome := &Outcome{State: domain.StateSelecting}
	order, err := s.selector.SelectCandidate(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to select candidate order")
		outcome.Err = err
		return outcome, fmt.Errorf("select candidate order: %w", err)
	}
	if order == nil {
		logger.Ctx(ctx).Warn().Msg("no order to process")
		span.AddEvent("No candidate order")
		s.metrics.order(domain.StateNoOrder)
		outcome.State = domain.StateNoOrder
		return outcome, nil
	}

	span.SetAttributes(attribute.Int64("order.id", order.ID), attribute.Int("order.items", len(order.Items)))
	logger.Ctx(ctx).Info().Int64("order_id", order.ID).Int("items", len(order.Items)).Msg("start reserving order")

	outcome.OrderID = order.ID
	involved := domain.NewWarehouseSet()

	for _, item := range order.ItemsByDemand() {
		itemCtx := &saga.ItemContext{
			Ctx:          ctx,
			Order:        order,
			Item:         item,
			Involved:     involved,
			Tracer:       s.tracer,
			Planner:      s.planner,
			Inventory:    s.inventory,
			LockService:  s.locks,
			Ledger:       s.ledger,
			Recorder:     s.metrics,
			LockTTL:      s.opts.LockTTL,
			SortLockKeys: s.opts.SortLockKeys,
		}

		if err := s.chain.Handle(itemCtx); err != nil {
			// 补偿不受请求超时影响
			itemCtx.TriggerCompensation(context.WithoutCancel(ctx))
			s.metrics.item(domain.StateAborted)
			return s.abort(ctx, span, outcome, item, err)
		}

		s.metrics.item(domain.StateRecorded)
		involved.AddAllocations(itemCtx.Plan)
		outcome.Reservations = append(outcome.Reservations, itemCtx.Reservation)
	}

	outcome.State = domain.StateCompleted
	s.metrics.order(domain.StateCompleted)
	if err := s.publisher.PublishReservationMade(ctx, domain.NewReservationMade(order.ID)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to publish reservation made")
		logger.Ctx(ctx).Error().Err(err).Int64("order_id", order.ID).Msg("CRITICAL: order reserved but signal not published")
		return outcome, fmt.Errorf("publish reservation made for order %d: %w", order.ID, err)
	}

	logger.Ctx(ctx).Info().Int64("order_id", order.ID).Int("reservations", len(outcome.Reservations)).Msg("order reserved")
	span.AddEvent("Order fully reserved")
	return outcome, nil
}

func (s *ReservationService) abort(ctx context.Context, span trace.Span, outcome *Outcome, item domain.Item, cause error) (*Outcome, error) {
	outcome.State = domain.StateAborted
	outcome.FailedItemID = item.ID
	outcome.Err = cause
	s.metrics.order(domain.StateAborted)

	span.RecordError(cause)
	span.SetStatus(codes.Error, "Order reservation aborted")
	logger.Ctx(ctx).Error().Err(cause).
		Int64("order_id", outcome.OrderID).
		Int64("item_id", item.ID).
		Msg("order reservation aborted")

	failed := domain.NewReservationFailed(outcome.OrderID, item.ID, cause.Error())
	if err := s.publisher.PublishReservationFailed(ctx, failed); err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Int64("order_id", outcome.OrderID).Msg("failed to publish reservation failed signal")
		return outcome, errors.Join(cause, err)
	}
	return outcome, cause
}
