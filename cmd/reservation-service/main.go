// cmd/reservation-service/main.go
package main

import (
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"allocator/internal/pkg/bootstrap"
	"allocator/internal/pkg/config"
	"allocator/internal/pkg/idempotency"
	"allocator/internal/pkg/mq"
	"allocator/internal/pkg/redis"
	"allocator/internal/service/reservation/application"
	"allocator/internal/service/reservation/domain"
	"allocator/internal/service/reservation/domain/port"
	"allocator/internal/service/reservation/infrastructure"
	"allocator/internal/service/reservation/infrastructure/adapter"
	"allocator/internal/service/reservation/infrastructure/memory"
	"allocator/internal/service/reservation/interfaces"
	"allocator/internal/zookeeper"
)

const serviceName = "reservation-service"

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// main 函数是应用的"组装根"：创建并组装所有依赖项，然后启动应用。
func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// 1. 基础设施
	db, err := infrastructure.NewMySQL(cfg.Infra.Mysql)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect mysql")
	}
	redisClient, err := redis.NewClient(cfg.Infra.Redis.Addr, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	closers := []io.Closer{redisClient}

	locks, lockCloser, err := newLockService(cfg, redisClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init lock service")
	}
	if lockCloser != nil {
		closers = append(closers, lockCloser)
	}

	topics := cfg.Infra.Kafka.Topics
	brokers := cfg.Infra.Kafka.Brokers
	madeWriter := mq.NewKafkaWriter(brokers, topics.ReservationMade)
	failedWriter := mq.NewKafkaWriter(brokers, topics.ReservationFailed)
	dltWriter := mq.NewKafkaWriter(brokers, topics.DeadLetter)
	triggerWriter := mq.NewKafkaWriter(brokers, topics.OrderCreated)
	publisher := adapter.NewEventKafkaAdapter(madeWriter, failedWriter)
	closers = append(closers, publisher, dltWriter, triggerWriter)

	// 2. 应用服务
	orders := infrastructure.NewGormOrderRepository(db)
	appSvc, err := application.NewReservationService(application.Dependencies{
		Selector:  orders,
		Inventory: infrastructure.NewGormInventoryRepository(db),
		Locks:     locks,
		Ledger:    infrastructure.NewGormReservationRepository(db),
		Publisher: publisher,
		Metrics:   application.NewMetrics(prometheus.DefaultRegisterer),
	}, application.Options{
		LockTTL:           cfg.Reservation.LockTTL.Std(),
		SortLockKeys:      cfg.Reservation.SortLockKeys,
		ProcessingTimeout: cfg.Reservation.ProcessingTimeout.Std(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build reservation service")
	}

	// 3. 驱动适配器
	failureHandler := mq.NewFailureHandler(dltWriter)
	orderCreated := interfaces.NewOrderCreatedConsumerAdapter(
		mq.NewKafkaReader(brokers, topics.OrderCreated, cfg.Infra.Kafka.GroupID),
		topics.OrderCreated, appSvc, failureHandler, cfg.App.Workers,
	).WithDeduplicator(idempotency.NewStore(redisClient.GetClient(), cfg.Infra.Redis.IdempotencyTTL.Std()))
	dlt := interfaces.NewDltConsumerAdapter(
		mq.NewKafkaReader(brokers, topics.DeadLetter, cfg.Infra.Kafka.GroupID+"-dlt"),
		topics.DeadLetter,
	)
	httpHandler := interfaces.NewHttpHandler(prometheus.DefaultGatherer, triggerWriter, topics.OrderCreated)

	err = bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Config:      cfg,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			httpHandler.RegisterRoutes(appCtx.Mux)
		},
		Workers: []bootstrap.Worker{orderCreated.Run, dlt.Run},
		Closers: closers,
	})
	if err != nil {
		log.Error().Err(err).Msg("reservation service exited")
		os.Exit(1)
	}
}

// newLockService 根据配置选择 (仓库, 商品) 锁的实现。
func newLockService(cfg *config.Config, redisClient *redis.Client) (port.LockService, io.Closer, error) {
	wait := cfg.Reservation.LockWait.Std()
	switch cfg.Reservation.LockBackend {
	case "zookeeper":
		conn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, cfg.Infra.Zookeeper.SessionTimeout.Std())
		if err != nil {
			return nil, nil, err
		}
		closer := closerFunc(func() error {
			conn.Close()
			return nil
		})
		return adapter.NewZookeeperLockService(conn, zookeeper.DefaultLockRoot, wait), closer, nil
	case "redis":
		locks, err := adapter.NewRedisLockService(redisClient, wait)
		return locks, nil, err
	case "memory":
		log.Warn().Msg("memory lock backend only protects a single process")
		return memory.NewLockService(wait), nil, nil
	default:
		return nil, nil, &domain.RoutingError{Request: "lock backend " + cfg.Reservation.LockBackend}
	}
}
