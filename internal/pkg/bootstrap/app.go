// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"allocator/internal/pkg/config"
	"allocator/internal/pkg/logger"
	"allocator/internal/pkg/nacos"
	"allocator/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

type AppCtx struct {
	Mux    *http.ServeMux
	Nacos  *nacos.Client
	Config *config.Config
}

// Worker 是随服务一起启动的后台循环，ctx 取消后应尽快返回。
type Worker func(ctx context.Context) error

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Config           *config.Config
	RegisterHandlers func(appCtx AppCtx) // 每个服务注册自己独特的 HTTP 路由
	Workers          []Worker
	// Closers 在关停时按后进先出顺序关闭
	Closers []io.Closer
}

// StartService 封装了所有微服务的通用启动和优雅关停逻辑。
// 收到 SIGINT/SIGTERM 或任意 worker 返回错误时退出。
func StartService(info AppInfo) error {
	cfg := info.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger.Init(cfg.App.LogLevel, info.ServiceName)
	startCtx := context.Background()

	// 1. Tracer
	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint, 1)
	if err != nil {
		return err
	}

	// 2. 服务注册 (可选)
	var (
		namingClient *nacos.Client
		ip           string
	)
	if cfg.Infra.Nacos.Enabled {
		namingClient, err = nacos.NewNacosClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			return err
		}
		if ip, err = GetOutboundIP(); err != nil {
			return err
		}
		if err = namingClient.RegisterServiceInstance(info.ServiceName, ip, cfg.App.Port); err != nil {
			return err
		}
	}

	// 3. HTTP Server
	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux, Nacos: namingClient, Config: cfg})
	}
	server := &http.Server{Addr: ":" + strconv.Itoa(cfg.App.Port), Handler: mux}

	ctx, stop := signal.NotifyContext(startCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Ctx(gctx).Info().Str("addr", server.Addr).Msgf("%s listening", info.ServiceName)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	for _, worker := range info.Workers {
		worker := worker
		g.Go(func() error { return worker(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Ctx(startCtx).Info().Msgf("Shutting down service %s...", info.ServiceName)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()
	if runErr != nil {
		logger.Ctx(startCtx).Error().Err(runErr).Msg("service stopped with error")
	}

	// 4. 按后进先出顺序清理
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if namingClient != nil {
		if err := namingClient.DeregisterServiceInstance(info.ServiceName, ip, cfg.App.Port); err != nil {
			logger.Ctx(startCtx).Error().Err(err).Msg("Error deregistering from Nacos")
		} else {
			logger.Ctx(startCtx).Info().Msgf("Service %s deregistered from Nacos.", info.ServiceName)
		}
		namingClient.Close()
	}

	for i := len(info.Closers) - 1; i >= 0; i-- {
		if err := info.Closers[i].Close(); err != nil {
			logger.Ctx(startCtx).Warn().Err(err).Msg("close resource failed")
		}
	}

	// 确保所有缓冲的 trace 都被发送出去
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Ctx(startCtx).Error().Err(err).Msg("Error shutting down tracer provider")
	}

	logger.Ctx(startCtx).Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
	return runErr
}

// GetOutboundIP 返回访问外网时使用的本机地址，不会真正发包。
func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
