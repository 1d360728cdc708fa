package adapter

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"allocator/internal/service/reservation/domain"
)

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

func TestEventKafkaAdapterRoutesByOutcome(t *testing.T) {
	made, failed := &recordingWriter{}, &recordingWriter{}
	a := NewEventKafkaAdapter(made, failed)
	ctx := context.Background()

	require.NoError(t, a.PublishReservationMade(ctx, domain.NewReservationMade(42)))
	require.NoError(t, a.PublishReservationFailed(ctx, domain.NewReservationFailed(43, 7, "insufficient inventory")))

	require.Len(t, made.msgs, 1)
	require.Len(t, failed.msgs, 1)
	assert.Equal(t, []byte("42"), made.msgs[0].Key)

	var got domain.ReservationFailed
	require.NoError(t, json.Unmarshal(failed.msgs[0].Value, &got))
	assert.Equal(t, int64(43), got.OrderID)
	assert.Equal(t, int64(7), got.ItemID)
	assert.Equal(t, "insufficient inventory", got.Reason)

	assert.NoError(t, a.Close())
}
