package application

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"allocator/internal/service/reservation/domain"
)

// Metrics 汇总预占流程的 Prometheus 指标。
type Metrics struct {
	Orders         *prometheus.CounterVec
	Items          *prometheus.CounterVec
	Compensations  prometheus.Counter
	CommitFailures prometheus.Counter
	LockWait       prometheus.Histogram
}

// NewMetrics 在 reg 上注册指标。reg 为 nil 时使用独立的 Registry。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		Orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reservation",
			Name:      "orders_total",
			Help:      "Reservation sagas by final outcome.",
		}, []string{"outcome"}),
		Items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reservation",
			Name:      "items_total",
			Help:      "Order items by reservation outcome.",
		}, []string{"outcome"}),
		Compensations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reservation",
			Name:      "compensations_total",
			Help:      "Items whose committed allocations were reversed.",
		}),
		CommitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reservation",
			Name:      "commit_failures_total",
			Help:      "Warehouse allocation commits rejected by the inventory store.",
		}),
		LockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reservation",
			Name:      "lock_wait_seconds",
			Help:      "Time spent acquiring a warehouse/item lock.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30},
		}),
	}
	reg.MustRegister(m.Orders, m.Items, m.Compensations, m.CommitFailures, m.LockWait)
	return m
}

func (m *Metrics) LockWaited(d time.Duration) { m.LockWait.Observe(d.Seconds()) }

func (m *Metrics) CommitFailed() { m.CommitFailures.Inc() }

func (m *Metrics) Compensated() { m.Compensations.Inc() }

func (m *Metrics) order(state domain.SagaState) { m.Orders.WithLabelValues(string(state)).Inc() }

func (m *Metrics) item(state domain.SagaState) { m.Items.WithLabelValues(string(state)).Inc() }
