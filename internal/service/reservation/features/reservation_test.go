package features

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/prometheus/client_golang/prometheus"

	"allocator/internal/service/reservation/application"
	"allocator/internal/service/reservation/domain"
	"allocator/internal/service/reservation/infrastructure/memory"
)

var errorsByName = map[string]error{
	"insufficient inventory":         domain.ErrInsufficientInventory,
	"required quantity not reserved": domain.ErrRequiredQtyNotReserved,
	"lock not acquired":              domain.ErrLockNotAcquired,
	"reservation commit failed":      domain.ErrReservationCommitFailed,
}

type reservationTestContext struct {
	inventory *memory.InventoryStore
	locks     *memory.LockService
	ledger    *memory.Ledger
	orders    *memory.OrderRepository
	events    *memory.EventRecorder

	pending    map[int64][]domain.Item
	orderOrder []int64
	failingWh  map[int64]bool

	outcome *application.Outcome
	err     error
}

func (c *reservationTestContext) reset() {
	c.inventory = memory.NewInventoryStore()
	c.locks = memory.NewLockService(20 * time.Millisecond)
	c.ledger = memory.NewLedger()
	c.orders = memory.NewOrderRepository()
	c.events = memory.NewEventRecorder(c.orders)
	c.pending = make(map[int64][]domain.Item)
	c.orderOrder = nil
	c.failingWh = make(map[int64]bool)
	c.outcome = nil
	c.err = nil

	c.inventory.CommitHook = func(_ int64, a domain.WarehouseAllocation) error {
		if c.failingWh[a.WarehouseID] {
			return fmt.Errorf("warehouse %d rejected the commit", a.WarehouseID)
		}
		return nil
	}
}

func (c *reservationTestContext) warehouseHasPriority(wh int64, priority int) error {
	c.inventory.AddWarehouse(wh, priority)
	return nil
}

func (c *reservationTestContext) warehouseStocks(wh int64, qty int, item int64) error {
	c.inventory.SetStock(wh, item, qty)
	return nil
}

func (c *reservationTestContext) orderRequests(orderID int64, qty int, item int64) error {
	if _, ok := c.pending[orderID]; !ok {
		c.orderOrder = append(c.orderOrder, orderID)
	}
	c.pending[orderID] = append(c.pending[orderID], domain.Item{ID: item, Qty: qty})
	return nil
}

func (c *reservationTestContext) commitsToWarehouseFail(wh int64) error {
	c.failingWh[wh] = true
	return nil
}

func (c *reservationTestContext) lockIsHeldElsewhere(key string) error {
	_, err := c.locks.Acquire(context.Background(), key, time.Minute, false)
	return err
}

func (c *reservationTestContext) anOrderCreatedEventIsHandled() error {
	for _, id := range c.orderOrder {
		order, err := domain.NewOrder(id, c.pending[id])
		if err != nil {
			return err
		}
		c.orders.Add(order)
	}

	svc, err := application.NewReservationService(application.Dependencies{
		Selector:  c.orders,
		Inventory: c.inventory,
		Locks:     c.locks,
		Ledger:    c.ledger,
		Publisher: c.events,
		Metrics:   application.NewMetrics(prometheus.NewRegistry()),
	}, application.Options{})
	if err != nil {
		return err
	}
	c.outcome, c.err = svc.HandleOrderCreated(context.Background(), domain.NewOrderCreated())
	return nil
}

func (c *reservationTestContext) theSagaEndsInState(state string) error {
	if c.outcome == nil {
		return fmt.Errorf("no outcome, error: %v", c.err)
	}
	if string(c.outcome.State) != state {
		return fmt.Errorf("expected state %s, got %s (error: %v)", state, c.outcome.State, c.err)
	}
	if state == string(domain.StateCompleted) && c.err != nil {
		return fmt.Errorf("expected no error, got %v", c.err)
	}
	return nil
}

func (c *reservationTestContext) theErrorIs(name string) error {
	target, ok := errorsByName[name]
	if !ok {
		return fmt.Errorf("unknown error %q", name)
	}
	if !errors.Is(c.err, target) {
		return fmt.Errorf("expected %q, got %v", name, c.err)
	}
	return nil
}

// itemIsReservedAs 比较 "仓库:数量,..." 形式的划拨列表，顺序敏感。
func (c *reservationTestContext) itemIsReservedAs(item int64, expected string) error {
	want, err := parseAllocations(item, expected)
	if err != nil {
		return err
	}
	for _, r := range c.ledger.Reservations() {
		if r.ItemID != item {
			continue
		}
		if !sameAllocations(r.Allocations, want) {
			return fmt.Errorf("item %d: expected %v, got %v", item, want, r.Allocations)
		}
		return nil
	}
	return fmt.Errorf("no reservation recorded for item %d", item)
}

func (c *reservationTestContext) noReservationIsRecorded() error {
	if n := len(c.ledger.Reservations()); n != 0 {
		return fmt.Errorf("expected no reservation, got %d", n)
	}
	return nil
}

func (c *reservationTestContext) warehouseHasAvailable(wh int64, qty int, item int64) error {
	if got := c.inventory.Available(wh, item); got != qty {
		return fmt.Errorf("warehouse %d item %d: expected %d available, got %d", wh, item, qty, got)
	}
	return nil
}

func (c *reservationTestContext) reservationMadeIsPublished(orderID int64) error {
	for _, e := range c.events.Made() {
		if e.OrderID == orderID {
			return nil
		}
	}
	return fmt.Errorf("no ReservationMade for order %d", orderID)
}

func (c *reservationTestContext) noReservationMadeIsPublished() error {
	if n := len(c.events.Made()); n != 0 {
		return fmt.Errorf("expected no ReservationMade, got %d", n)
	}
	return nil
}

func (c *reservationTestContext) reservationFailedIsPublished(item int64) error {
	for _, e := range c.events.Failed() {
		if e.ItemID == item {
			return nil
		}
	}
	return fmt.Errorf("no ReservationFailed for item %d", item)
}

func (c *reservationTestContext) orderIsMarked(orderID int64, status string) error {
	if got := c.orders.Status(orderID); string(got) != status {
		return fmt.Errorf("order %d: expected %s, got %s", orderID, status, got)
	}
	return nil
}

func (c *reservationTestContext) noLocksAreHeld() error {
	if n := c.locks.Held(); n != 0 {
		return fmt.Errorf("expected no locks held, got %d", n)
	}
	return nil
}

func parseAllocations(item int64, s string) ([]domain.WarehouseAllocation, error) {
	var out []domain.WarehouseAllocation
	for _, part := range strings.Split(s, ",") {
		whStr, qtyStr, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("bad allocation %q", part)
		}
		wh, err := strconv.ParseInt(whStr, 10, 64)
		if err != nil {
			return nil, err
		}
		qty, err := strconv.Atoi(qtyStr)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.WarehouseAllocation{WarehouseID: wh, ItemID: item, Qty: qty})
	}
	return out, nil
}

func sameAllocations(got, want []domain.WarehouseAllocation) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &reservationTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^warehouse (\d+) has priority (\d+)$`, tc.warehouseHasPriority)
	ctx.Step(`^warehouse (\d+) stocks (\d+) of item (\d+)$`, tc.warehouseStocks)
	ctx.Step(`^order (\d+) requests (\d+) of item (\d+)$`, tc.orderRequests)
	ctx.Step(`^commits to warehouse (\d+) fail$`, tc.commitsToWarehouseFail)
	ctx.Step(`^the lock "([^"]*)" is held by another process$`, tc.lockIsHeldElsewhere)

	// When steps
	ctx.Step(`^an OrderCreated event is handled$`, tc.anOrderCreatedEventIsHandled)

	// Then steps
	ctx.Step(`^the saga ends in state "([^"]*)"$`, tc.theSagaEndsInState)
	ctx.Step(`^the error is "([^"]*)"$`, tc.theErrorIs)
	ctx.Step(`^item (\d+) is reserved as "([^"]*)"$`, tc.itemIsReservedAs)
	ctx.Step(`^no reservation is recorded$`, tc.noReservationIsRecorded)
	ctx.Step(`^warehouse (\d+) has (\d+) of item (\d+) available$`, tc.warehouseHasAvailable)
	ctx.Step(`^a ReservationMade event is published for order (\d+)$`, tc.reservationMadeIsPublished)
	ctx.Step(`^no ReservationMade event is published$`, tc.noReservationMadeIsPublished)
	ctx.Step(`^a ReservationFailed event is published for item (\d+)$`, tc.reservationFailedIsPublished)
	ctx.Step(`^order (\d+) is marked "([^"]*)"$`, tc.orderIsMarked)
	ctx.Step(`^no locks are held$`, tc.noLocksAreHeld)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"reservation.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
