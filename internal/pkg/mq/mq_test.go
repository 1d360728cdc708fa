package mq

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type recordingWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func sampledContext(t *testing.T) (context.Context, trace.SpanContext) {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled, Remote: true})
	return trace.ContextWithSpanContext(context.Background(), sc), sc
}

func TestCarrierSetOverwrites(t *testing.T) {
	carrier := KafkaHeaderCarrier{}
	carrier.Set("traceparent", "a")
	carrier.Set("traceparent", "b")

	assert.Equal(t, "b", carrier.Get("traceparent"))
	assert.Equal(t, []string{"traceparent"}, carrier.Keys())
	assert.Empty(t, carrier.Get("missing"))
}

func TestProduceMessagePropagatesTrace(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	ctx, sc := sampledContext(t)
	w := &recordingWriter{}
	require.NoError(t, ProduceMessage(ctx, w, []byte("42"), []byte(`{"order_id":42}`)))
	require.Len(t, w.msgs, 1)

	extracted := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), w.msgs[0]))
	assert.Equal(t, sc.TraceID(), extracted.TraceID())
	assert.Equal(t, sc.SpanID(), extracted.SpanID())
}

func TestFailureHandlerAddsDeadLetterHeaders(t *testing.T) {
	w := &recordingWriter{}
	h := NewFailureHandler(w)

	msg := kafka.Message{Topic: "order-created", Partition: 3, Offset: 17, Key: []byte("k"), Value: []byte("v")}
	h.Handle(context.Background(), msg, errors.New("boom"))

	require.Len(t, w.msgs, 1)
	headers := map[string]string{}
	for _, hd := range w.msgs[0].Headers {
		headers[hd.Key] = string(hd.Value)
	}
	assert.Equal(t, "order-created", headers[HeaderOriginalTopic])
	assert.Equal(t, "3", headers[HeaderOriginalPartition])
	assert.Equal(t, "17", headers[HeaderOriginalOffset])
	assert.Equal(t, "boom", headers[HeaderExceptionMessage])
	assert.Equal(t, []byte("v"), w.msgs[0].Value)
}

func TestFailureHandlerSwallowsWriteError(t *testing.T) {
	h := NewFailureHandler(&recordingWriter{err: errors.New("broker down")})
	assert.NotPanics(t, func() {
		h.Handle(context.Background(), kafka.Message{Topic: "t"}, errors.New("boom"))
	})
}
