// Package app 按配置装配存储、网关、消息总线与 HTTP 路由
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	mqcontracts "careerhub/contracts/mq"
	"careerhub/internal/config"
	"careerhub/internal/email"
	"careerhub/internal/gateway"
	"careerhub/internal/gateway/gatewaytest"
	"careerhub/internal/handler"
	"careerhub/internal/httpserver"
	"careerhub/internal/mqhandler"
	"careerhub/internal/realtime"
	"careerhub/internal/repository"
	"careerhub/internal/repository/memory"
	"careerhub/internal/service/auth"
	"careerhub/internal/service/contract"
	"careerhub/internal/service/escrow"
	"careerhub/internal/service/job"
	"careerhub/internal/service/notification"
	"careerhub/internal/service/proposal"
	"careerhub/internal/service/settings"
	"careerhub/migrations"
	"careerhub/pkg/db"
	"careerhub/pkg/mq"
	"careerhub/pkg/outbox"
	redisclient "careerhub/pkg/redis"
	"careerhub/pkg/util"
)

// FanoutQueue 通知扇出消费队列
const FanoutQueue = "notifications.fanout.q"

const (
	notifyDedupTTL = 24 * time.Hour
	payoutLockTTL  = time.Minute
	retryCountTTL  = 24 * time.Hour
)

type publisher interface {
	outbox.Publisher
	IsConnected() bool
}

type App struct {
	Config     *config.Config
	Store      *repository.Store
	Router     *gin.Engine
	Dispatcher *outbox.Dispatcher
	Replay     *outbox.ReplayService
	Settings   *settings.Service

	logger    *zap.Logger
	redis     *redis.Client
	publisher publisher
	consumer  *mq.Consumer
	closers   []func()
}

// New 装配全部依赖；失败时释放已打开的连接
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, logger: logger}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	a.Store = store

	if cfg.Redis.Enabled {
		rdb, err := redisclient.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		a.redis = rdb
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		a.logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	}

	mailer, err := email.NewMailer(email.NewTransport(cfg.SMTP, a.logger), a.logger)
	if err != nil {
		return fmt.Errorf("failed to init mailer: %w", err)
	}

	hub := realtime.NewHub(a.logger)
	notifications := notification.NewService(store.Notifications, hub, a.logger)
	hub.SetController(notifications)

	fanout := mqhandler.NewLifecycleFanoutHandler(
		store.Users,
		store.Contracts,
		notifications,
		mailer,
		util.NewDeduperWithLogger(a.redis, notifyDedupTTL, a.logger),
		cfg.Server.PublicURL,
		a.logger,
	)
	if err := a.openBus(fanout.Handle); err != nil {
		return err
	}

	a.Dispatcher = outbox.NewDispatcher(store.Outbox, a.publisher, a.logger).
		WithInterval(cfg.Outbox.Interval).
		WithBatchSize(cfg.Outbox.BatchSize).
		WithMaxRetries(cfg.Outbox.MaxRetries)
	a.Replay = outbox.NewReplayService(store.Outbox, a.publisher, a.logger)

	authService := auth.NewService(store.Users, cfg.JWT.Secret, cfg.JWT.TTL, a.logger)
	a.Settings = settings.NewService(store.Settings, a.logger)
	escrowService := escrow.NewService(
		escrow.Config{PublicURL: cfg.Server.PublicURL},
		store,
		a.gateways(),
		util.NewDeduperWithLogger(a.redis, payoutLockTTL, a.logger),
		a.logger,
	)

	h := httpserver.Handlers{
		Auth:          handler.NewAuthHandler(authService, a.logger),
		Jobs:          handler.NewJobHandler(job.NewService(store.Jobs, a.logger), a.logger),
		Proposals:     handler.NewProposalHandler(proposal.NewService(store.Jobs, store.Proposals, a.logger), a.logger),
		Contracts:     handler.NewContractHandler(contract.NewService(store.Contracts, a.logger), a.logger),
		Payments:      handler.NewPaymentHandler(escrowService, a.logger),
		Notifications: handler.NewNotificationHandler(notifications, authService, hub, a.logger),
		Admin:         handler.NewAdminHandler(a.Settings, a.Replay, a.logger),
	}
	a.Router = httpserver.NewRouter(h, httpserver.Options{
		AuthService:     authService,
		TierGates:       cfg.Tiers.Gates,
		ProposalLimiter: httpserver.NewRateLimiter(a.redis, cfg.RateLimit.ProposalsPerWindow, cfg.RateLimit.Window, a.logger),
		Readiness:       a.readiness(),
		Logger:          a.logger,
	})
	return nil
}

func (a *App) openStore(ctx context.Context) (*repository.Store, error) {
	if a.Config.Storage.Driver == config.StorageMemory {
		a.logger.Warn("Using in-memory storage, data is lost on restart")
		return memory.NewStore(), nil
	}

	pool, err := db.NewConnection(a.Config.DB, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init db: %w", err)
	}
	a.closers = append(a.closers, pool.Close)

	if a.Config.DB.AutoMigrate {
		applied, err := db.Migrate(ctx, pool, migrations.FS, a.logger)
		if err != nil {
			return nil, err
		}
		a.logger.Info("Migrations applied", zap.Int("count", applied))
	}
	return repository.NewPostgresStore(pool, a.logger), nil
}

// openBus mq.enabled 时走 RabbitMQ，否则进程内分发
func (a *App) openBus(handle mq.MessageHandler) error {
	cfg := a.Config.MQ
	if !cfg.Enabled {
		bus := mq.NewLocalBus(a.logger)
		bus.Subscribe(mqcontracts.FanoutBindings, handle)
		a.publisher = bus
		return nil
	}

	pub, err := mq.NewPublisher(cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to init publisher: %w", err)
	}
	a.publisher = pub
	a.closers = append(a.closers, pub.Close)

	consumer, err := mq.NewConsumer(cfg.URL, FanoutQueue, mqcontracts.FanoutBindings, a.logger)
	if err != nil {
		return fmt.Errorf("failed to init consumer: %w", err)
	}
	consumer.SetHandler(handle)
	if a.redis != nil {
		consumer.WithRetryTracker(util.NewRetryCounter(a.redis, retryCountTTL), cfg.MaxRetries)
	}
	a.consumer = consumer
	a.closers = append(a.closers, consumer.Close)
	return nil
}

func (a *App) gateways() *gateway.Registry {
	p := a.Config.Payments
	if p.Fake {
		a.logger.Warn("Using fake payment gateways")
		stripe := gatewaytest.New("stripe", p.Stripe.Currencies...)
		if len(p.Stripe.Currencies) == 0 {
			stripe = gatewaytest.New("stripe", "USD", "EUR", "GBP", "ZAR")
		}
		stripe.PayoutsEnabled = true
		yoco := gatewaytest.New("yoco", "ZAR")
		yoco.PayoutsEnabled = true
		return gateway.NewRegistry(stripe, yoco)
	}

	stripe := gateway.NewStripe(gateway.StripeConfig{
		WebhookSecret: p.Stripe.WebhookSecret,
		Currencies:    p.Stripe.Currencies,
		APIURL:        p.Stripe.APIURL,
	})
	yoco := gateway.NewYoco(gateway.YocoConfig{
		BaseURL:       p.Yoco.BaseURL,
		WebhookSecret: p.Yoco.WebhookSecret,
	}, &http.Client{Timeout: p.GatewayTimeout})
	return gateway.NewRegistry(
		gateway.Instrument(stripe, p.GatewayTimeout, a.logger),
		gateway.Instrument(yoco, p.GatewayTimeout, a.logger),
	)
}

func (a *App) readiness() map[string]httpserver.ReadinessCheck {
	checks := map[string]httpserver.ReadinessCheck{
		"db": a.Store.Ping,
		"mq": func(context.Context) error {
			if !a.publisher.IsConnected() {
				return errors.New("publisher disconnected")
			}
			return nil
		},
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		}
	}
	return checks
}

// Run 启动 HTTP、outbox 分发与消费者，ctx 取消后优雅退出
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.Server.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.Dispatcher.Start(gctx)
	})
	if a.consumer != nil {
		g.Go(a.consumer.StartConsuming)
	}
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down")
		if a.consumer != nil {
			a.consumer.Stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close 逆序释放资源
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
