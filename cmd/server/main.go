package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/little-lemon/internal/adapter/handler"
	"github.com/rl1809/little-lemon/internal/adapter/messaging"
	"github.com/rl1809/little-lemon/internal/adapter/storage"
	"github.com/rl1809/little-lemon/internal/config"
	"github.com/rl1809/little-lemon/internal/core/domain"
	"github.com/rl1809/little-lemon/internal/core/service"
	"github.com/rl1809/little-lemon/internal/port"
	"github.com/rl1809/little-lemon/internal/telemetry"
)

const (
	publishTimeout      = 5 * time.Second
	healthCheckInterval = 10 * time.Second
)

type migrator interface {
	Migrate(ctx context.Context) ([]string, error)
}

func main() {
	issueFor := flag.String("issue-token", "", "issue an API token for `username` and exit")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	tel, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTLPEndpoint, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup telemetry: %v\n", err)
		os.Exit(1)
	}
	defer tel.Shutdown(context.Background())
	log := tel.Logger

	db, closeDB, err := openStore(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal("failed to open store", zap.String("driver", cfg.DB.Driver), zap.Error(err))
	}

	if m, ok := db.(migrator); ok && cfg.DB.AutoMigrate {
		applied, err := m.Migrate(ctx)
		if err != nil {
			log.Fatal("failed to migrate", zap.Error(err))
		}
		log.Info("schema migrated", zap.Strings("files", applied))
	}

	groupService := service.NewGroupService(db, log)
	if err := groupService.Bootstrap(ctx); err != nil {
		log.Fatal("failed to bootstrap groups", zap.Error(err))
	}

	tokens, cache, closeCache, err := openCache(ctx, cfg.Redis, db, log)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}

	authService := service.NewAuthService(tokens, db)
	if *issueFor != "" {
		err := issueToken(ctx, cfg.DB.Driver, db, authService, *issueFor)
		closeCache()
		closeDB()
		if err != nil {
			log.Fatal("failed to issue token", zap.String("username", *issueFor), zap.Error(err))
		}
		return
	}

	if mem, ok := db.(*storage.MemoryAdapter); ok && len(cfg.DB.SeedUsers) > 0 {
		if _, err := seedUsers(ctx, mem, authService, cfg.DB.SeedUsers, log); err != nil {
			log.Fatal("failed to seed users", zap.Error(err))
		}
	}

	metrics := telemetry.MustNewMetrics(tel.Meter)
	orderService := service.NewOrderService(db, cache, service.OrderServiceConfig{
		CrewAssignedOnly: cfg.Orders.CrewAssignedOnly,
		CheckoutLockTTL:  cfg.Orders.CheckoutLockTTL,
		EventQueueSize:   cfg.Orders.EventQueueSize,
	}, tel, metrics)

	publisher := newPublisher(ctx, cfg, tel)

	// Start worker pool
	var wg sync.WaitGroup
	for i := 0; i < cfg.Orders.EventWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			workerLoop(id, orderService.GetEventQueue(), publisher, metrics, log)
		}(i)
	}
	log.Info("started event workers", zap.Int("count", cfg.Orders.EventWorkers))

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	grpcHandler := handler.NewGRPCHandler(db, cfg.ServiceName, log)
	grpcHandler.Register(grpcServer)
	go grpcHandler.Watch(ctx, healthCheckInterval)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal("failed to listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}

	go func() {
		log.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(handler.Services{
		Auth:   authService,
		Menu:   service.NewMenuService(db),
		Cart:   service.NewCartService(db, metrics, log),
		Orders: orderService,
		Groups: groupService,
	}, db, log)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown", zap.Error(err))
	}
	log.Info("HTTP server stopped")

	cancel()
	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")

	// Close event queue and wait for workers to flush it
	orderService.Close()
	wg.Wait()
	if err := publisher.Close(); err != nil {
		log.Warn("close publisher", zap.Error(err))
	}
	log.Info("workers stopped")

	closeCache()
	closeDB()
	log.Info("connections closed")
}

func openStore(ctx context.Context, cfg config.DBConfig, log *zap.Logger) (port.DatabaseRepository, func(), error) {
	switch cfg.Driver {
	case config.DriverMySQL:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, nil, err
		}
		db.SetMaxOpenConns(cfg.MaxOpen)
		db.SetMaxIdleConns(cfg.MaxIdle)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info("connected to mysql")
		return storage.NewMySQLAdapter(db), func() { db.Close() }, nil

	case config.DriverPostgres:
		poolCfg, err := pgxpool.ParseConfig(cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		poolCfg.MaxConns = int32(cfg.MaxOpen)
		poolCfg.MaxConnLifetime = 5 * time.Minute

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Info("connected to postgres")
		return storage.NewPostgresAdapter(pool), pool.Close, nil

	default:
		log.Warn("using in-memory store; data is lost on restart")
		return storage.NewMemoryAdapter(), func() {}, nil
	}
}

// openCache connects Redis when configured. Tokens go to Redis alongside
// the cache, otherwise to the database store so they outlive the process.
func openCache(ctx context.Context, cfg config.RedisConfig, db port.TokenStore, log *zap.Logger) (port.TokenStore, port.CacheRepository, func(), error) {
	if cfg.Addr == "" {
		log.Warn("REDIS_ADDR not set; idempotency keys and locks are process local")
		return db, storage.NewMemoryCache(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		PoolSize: cfg.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, nil, err
	}
	log.Info("connected to redis", zap.String("addr", cfg.Addr))
	rc := storage.NewRedisAdapter(rdb)
	return rc, rc, func() { rdb.Close() }, nil
}

func newPublisher(ctx context.Context, cfg *config.Config, tel *telemetry.Provider) port.EventPublisher {
	if len(cfg.Kafka.Brokers) == 0 {
		return messaging.NewLogPublisher(tel.Logger)
	}

	if err := messaging.EnsureTopic(ctx, cfg.Kafka.Brokers[0], cfg.Kafka.Topic, cfg.Kafka.Partitions, 1); err != nil {
		tel.Logger.Warn("failed to ensure kafka topic", zap.String("topic", cfg.Kafka.Topic), zap.Error(err))
	}
	tel.Logger.Info("publishing order events to kafka",
		zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	return messaging.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, tel.Tracer)
}

func issueToken(ctx context.Context, driver string, users port.UserRepository, auth *service.AuthService, username string) error {
	if driver == config.DriverMemory {
		return errors.New("the memory store does not outlive this process; use SEED_USERS instead")
	}
	user, err := users.GetUserByUsername(ctx, username)
	if err != nil {
		return err
	}
	token, err := auth.IssueToken(ctx, user.ID)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func workerLoop(id int, queue <-chan domain.OrderEvent, publisher port.EventPublisher, metrics *telemetry.Metrics, log *zap.Logger) {
	for event := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)

		if err := publisher.Publish(ctx, event); err != nil {
			log.Error("failed to publish order event",
				zap.Int("worker", id),
				zap.String("event_id", event.ID),
				zap.Int64("order_id", event.OrderID),
				zap.Error(err),
			)
		} else {
			metrics.EventsPublished.Add(ctx, 1)
		}

		cancel()
	}
}
