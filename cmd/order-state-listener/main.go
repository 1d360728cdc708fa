// cmd/order-state-listener/main.go
package main

import (
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"allocator/internal/pkg/bootstrap"
	"allocator/internal/pkg/config"
	"allocator/internal/pkg/mq"
	"allocator/internal/service/reservation/infrastructure"
	"allocator/internal/service/reservation/interfaces"
)

const serviceName = "order-state-listener"

// order-state-listener 把预占结果回写到订单表：成功 -> RESERVED，失败 -> FAILED。
func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	cfg.App.Name = serviceName

	db, err := infrastructure.NewMySQL(cfg.Infra.Mysql)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect mysql")
	}
	orders := infrastructure.NewGormOrderRepository(db)

	topics := cfg.Infra.Kafka.Topics
	brokers := cfg.Infra.Kafka.Brokers
	groupID := cfg.Infra.Kafka.GroupID
	dltWriter := mq.NewKafkaWriter(brokers, topics.DeadLetter)
	failureHandler := mq.NewFailureHandler(dltWriter)

	made := interfaces.NewReservationOutcomeConsumerAdapter(
		mq.NewKafkaReader(brokers, topics.ReservationMade, groupID),
		topics.ReservationMade, interfaces.OutcomeReservationMade, orders, failureHandler,
	)
	failed := interfaces.NewReservationOutcomeConsumerAdapter(
		mq.NewKafkaReader(brokers, topics.ReservationFailed, groupID),
		topics.ReservationFailed, interfaces.OutcomeReservationFailed, orders, failureHandler,
	)

	err = bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Config:      cfg,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			interfaces.NewHttpHandler(prometheus.DefaultGatherer, nil, "").RegisterRoutes(appCtx.Mux)
		},
		Workers: []bootstrap.Worker{made.Run, failed.Run},
		Closers: []io.Closer{dltWriter},
	})
	if err != nil {
		log.Error().Err(err).Msg("order state listener exited")
		os.Exit(1)
	}
}
