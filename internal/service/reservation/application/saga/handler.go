package saga

import (
	"context"
	"sync"
	"time"

	"allocator/internal/pkg/logger"
	"allocator/internal/service/reservation/domain"
	"allocator/internal/service/reservation/domain/port"

	"go.opentelemetry.io/otel/trace"
)

// Planner 为单个商品计算仓库划拨方案。
type Planner interface {
	Plan(ctx context.Context, item domain.Item, involved domain.WarehouseSet) ([]domain.WarehouseAllocation, error)
}

// Recorder 接收 saga 运行中的指标事件。
type Recorder interface {
	LockWaited(d time.Duration)
	CommitFailed()
	Compensated()
}

// ItemContext 在单个商品的 Saga 流程中传递上下文数据。
// 每个商品一个实例，补偿只覆盖当前商品。
type ItemContext struct {
	Ctx      context.Context
	Order    *domain.Order
	Item     domain.Item
	Involved domain.WarehouseSet
	Tracer   trace.Tracer

	// 出站端口
	Planner     Planner
	Inventory   domain.InventoryStore
	LockService port.LockService
	Ledger      domain.ReservationLedger
	Recorder    Recorder

	LockTTL      time.Duration
	SortLockKeys bool

	// 各步骤产出
	State        domain.SagaState
	Plan         []domain.WarehouseAllocation
	Held         []port.LockHandle
	Committed    []domain.WarehouseAllocation
	CommittedQty int
	Reservation  *domain.Reservation

	compensations []func(ctx context.Context)
	compLock      sync.Mutex
	heldLock      sync.Mutex
}

// AddCompensation 注册补偿函数，后注册的先执行。
func (c *ItemContext) AddCompensation(comp func(ctx context.Context)) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	c.compensations = append([]func(context.Context){comp}, c.compensations...)
}

// TriggerCompensation 按 LIFO 顺序执行并清空已注册的补偿。
func (c *ItemContext) TriggerCompensation(ctx context.Context) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	if len(c.compensations) == 0 {
		return
	}
	c.State = domain.StateCompensating
	logger.Ctx(ctx).Error().
		Int64("order_id", c.Order.ID).
		Int64("item_id", c.Item.ID).
		Int("compensations", len(c.compensations)).
		Msg("reverting reservation of item")
	for _, comp := range c.compensations {
		comp(ctx)
	}
	c.compensations = nil
	if c.Recorder != nil {
		c.Recorder.Compensated()
	}
}

func (c *ItemContext) holdLock(handle port.LockHandle) {
	c.heldLock.Lock()
	defer c.heldLock.Unlock()
	c.Held = append(c.Held, handle)
}

// ReleaseLocks 按获取的逆序释放当前商品持有的锁，可重复调用。
// 释放失败只记录日志，锁会在 TTL 到期后自动失效。
func (c *ItemContext) ReleaseLocks(ctx context.Context) {
	c.heldLock.Lock()
	held := c.Held
	c.Held = nil
	c.heldLock.Unlock()

	for i := len(held) - 1; i >= 0; i-- {
		if err := c.LockService.Release(ctx, held[i]); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("lock", held[i].Key).Msg("failed to release lock")
		}
	}
}

type Handler interface {
	SetNext(handler Handler) Handler
	Handle(itemCtx *ItemContext) error
}

type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(itemCtx *ItemContext) error {
	if h.next != nil {
		return h.next.Handle(itemCtx)
	}
	return nil
}

// NewChain 组装单个商品的处理链：规划 -> 加锁 -> 提交 -> 记账。
// 链上的处理器不持有请求状态，可以被并发的 saga 共用。
func NewChain() Handler {
	chain := new(PlanHandler)
	chain.
		SetNext(new(LockHandler)).
		SetNext(new(CommitHandler)).
		SetNext(new(RecordHandler))
	return chain
}
