package interfaces

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"allocator/internal/pkg/logger"
	"allocator/internal/pkg/mq"
	"allocator/internal/service/reservation/domain"
)

const serviceName = "reservation-service"

// HttpHandler 提供健康检查、指标和手动触发预占的入口
type HttpHandler struct {
	gatherer prometheus.Gatherer
	trigger  mq.MessageWriter
	topic    string
}

// NewHttpHandler 创建 HTTP 处理器。trigger 为 nil 时不注册 /reservations/trigger。
func NewHttpHandler(gatherer prometheus.Gatherer, trigger mq.MessageWriter, topic string) *HttpHandler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &HttpHandler{gatherer: gatherer, trigger: trigger, topic: topic}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *HttpHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	if h.trigger != nil {
		mux.HandleFunc("/reservations/trigger", h.triggerHandler)
	}
}

// triggerHandler 投递一条 OrderCreated 消息，由消费者异步处理
func (h *HttpHandler) triggerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, "http.TriggerReservation")
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", h.topic),
	)

	event := domain.NewOrderCreated()
	event.TraceID = span.SpanContext().TraceID().String()
	payload, err := json.Marshal(event)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := mq.ProduceMessage(ctx, h.trigger, []byte(event.EventID), payload); err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Msg("failed to enqueue order-created")
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"event_id": event.EventID,
		"status":   "pending",
	})
}
