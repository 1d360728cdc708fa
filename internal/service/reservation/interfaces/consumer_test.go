package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"allocator/internal/service/reservation/application"
	"allocator/internal/service/reservation/domain"
	"allocator/internal/service/reservation/infrastructure/memory"
)

// fakeReader 从 channel 读取消息，channel 读空后阻塞直到 ctx 结束。
type fakeReader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []int64
	closed    bool
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.msgs <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) committedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type recordingFailures struct {
	mu     sync.Mutex
	causes []error
}

func (f *recordingFailures) Handle(_ context.Context, _ kafka.Message, cause error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.causes = append(f.causes, cause)
}

func (f *recordingFailures) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.causes)
}

type stubRunner struct {
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	calls       atomic.Int32
	delay       time.Duration
	result      func(n int32) (*application.Outcome, error)
}

func (s *stubRunner) HandleOrderCreated(context.Context, *domain.OrderCreated) (*application.Outcome, error) {
	n := s.calls.Add(1)
	cur := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		peak := s.maxInFlight.Load()
		if cur <= peak || s.maxInFlight.CompareAndSwap(peak, cur) {
			break
		}
	}
	time.Sleep(s.delay)
	if s.result != nil {
		return s.result(n)
	}
	return &application.Outcome{State: domain.StateCompleted}, nil
}

func orderCreatedMessage(t *testing.T, offset int64) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(domain.NewOrderCreated())
	require.NoError(t, err)
	return kafka.Message{Topic: "order-created", Offset: offset, Value: payload}
}

// runUntil 启动 run，等到 done 返回 true 后取消并等待退出。
func runUntil(t *testing.T, run func(ctx context.Context) error, done func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx) }()

	require.Eventually(t, done, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestOrderCreatedConsumerBoundsConcurrency(t *testing.T) {
	var msgs []kafka.Message
	for i := int64(0); i < 8; i++ {
		msgs = append(msgs, orderCreatedMessage(t, i))
	}
	reader := newFakeReader(msgs...)
	runner := &stubRunner{delay: 20 * time.Millisecond}
	failures := &recordingFailures{}
	consumer := NewOrderCreatedConsumerAdapter(reader, "order-created", runner, failures, 2)

	runUntil(t, consumer.Run, func() bool { return reader.committedCount() == 8 })

	assert.Equal(t, int32(8), runner.calls.Load())
	assert.LessOrEqual(t, runner.maxInFlight.Load(), int32(2))
	assert.Zero(t, failures.count())
	assert.True(t, reader.closed)
}

func TestOrderCreatedConsumerFailureRouting(t *testing.T) {
	reader := newFakeReader(
		orderCreatedMessage(t, 0),
		orderCreatedMessage(t, 1),
		kafka.Message{Topic: "order-created", Offset: 2, Value: []byte("{not json")},
	)
	runner := &stubRunner{result: func(n int32) (*application.Outcome, error) {
		if n == 1 {
			// 业务中止：失败信号已经发出
			return &application.Outcome{State: domain.StateAborted, OrderID: 9}, &domain.InsufficientInventoryError{ItemID: 1}
		}
		return nil, errors.New("database unavailable")
	}}
	failures := &recordingFailures{}
	consumer := NewOrderCreatedConsumerAdapter(reader, "order-created", runner, failures, 1)

	runUntil(t, consumer.Run, func() bool { return reader.committedCount() == 3 })

	// 基础设施错误和坏消息进入死信，业务中止不进入
	assert.Equal(t, 2, failures.count())
}

type stubDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *stubDedup) Key(topic string, partition int, offset int64) string {
	return fmt.Sprintf("%s:%d:%d", topic, partition, offset)
}

func (d *stubDedup) Seen(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[key] {
		return true, nil
	}
	d.seen[key] = true
	return false, nil
}

func TestOrderCreatedConsumerSkipsDuplicates(t *testing.T) {
	msg := orderCreatedMessage(t, 5)
	reader := newFakeReader(msg, msg)
	runner := &stubRunner{}
	consumer := NewOrderCreatedConsumerAdapter(reader, "order-created", runner, &recordingFailures{}, 1).
		WithDeduplicator(&stubDedup{seen: map[string]bool{}})

	runUntil(t, consumer.Run, func() bool { return reader.committedCount() == 2 })

	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestReservationOutcomeConsumerUpdatesOrders(t *testing.T) {
	orders := memory.NewOrderRepository(&domain.Order{ID: 1}, &domain.Order{ID: 2})

	made, _ := json.Marshal(domain.NewReservationMade(1))
	madeReader := newFakeReader(kafka.Message{Offset: 0, Value: made}, kafka.Message{Offset: 1, Value: []byte("garbage")})
	failures := &recordingFailures{}
	runUntil(t, NewReservationOutcomeConsumerAdapter(madeReader, "reservation-made", OutcomeReservationMade, orders, failures).Run,
		func() bool { return madeReader.committedCount() == 2 })

	failed, _ := json.Marshal(domain.NewReservationFailed(2, 7, "insufficient inventory"))
	failedReader := newFakeReader(kafka.Message{Offset: 0, Value: failed})
	runUntil(t, NewReservationOutcomeConsumerAdapter(failedReader, "reservation-failed", OutcomeReservationFailed, orders, failures).Run,
		func() bool { return failedReader.committedCount() == 1 })

	assert.Equal(t, domain.OrderStatusReserved, orders.Status(1))
	assert.Equal(t, domain.OrderStatusFailed, orders.Status(2))
	assert.Equal(t, 1, failures.count())
}

func TestDltConsumerCommitsEverything(t *testing.T) {
	reader := newFakeReader(kafka.Message{Offset: 0, Value: []byte("x")}, kafka.Message{Offset: 1, Value: []byte("y")})
	runUntil(t, NewDltConsumerAdapter(reader, "reservation-dlt").Run, func() bool { return reader.committedCount() == 2 })
}

type recordingWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestHttpHandler(t *testing.T) {
	writer := &recordingWriter{}
	mux := http.NewServeMux()
	NewHttpHandler(prometheus.NewRegistry(), writer, "order-created").RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reservations/trigger", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reservations/trigger", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, writer.msgs, 1)

	var event domain.OrderCreated
	require.NoError(t, json.Unmarshal(writer.msgs[0].Value, &event))
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, event.EventID, string(writer.msgs[0].Key))
}
