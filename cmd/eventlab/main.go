package main

import (
	"context"
	"database/sql"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	aggApp "github.com/davicafu/eventlab/internal/aggregate/application"
	aggDomain "github.com/davicafu/eventlab/internal/aggregate/domain"
	snapshotSQLite "github.com/davicafu/eventlab/internal/aggregate/infra/outbound/snapshot/db/sqlite"
	config "github.com/davicafu/eventlab/internal/config"
	"github.com/davicafu/eventlab/internal/eventstore/infra/outbound/analytics/clickhouse"
	esSQLite "github.com/davicafu/eventlab/internal/eventstore/infra/outbound/db/sqlite"
	orderApp "github.com/davicafu/eventlab/internal/order/application"
	orderDomain "github.com/davicafu/eventlab/internal/order/domain"
	orderHttp "github.com/davicafu/eventlab/internal/order/infra/inbound/http"
	outboxApp "github.com/davicafu/eventlab/internal/outbox/application"
	outboxDomain "github.com/davicafu/eventlab/internal/outbox/domain"
	outboxSQLite "github.com/davicafu/eventlab/internal/outbox/infra/outbound/db/sqlite"
	"github.com/davicafu/eventlab/internal/outbox/infra/publisher"
	"github.com/davicafu/eventlab/internal/outbox/relayer"
	sharedCache "github.com/davicafu/eventlab/internal/shared/infra/platform/cache"

	"github.com/davicafu/eventlab/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// ---------------- Main ----------------
func main() {
	logger.Init()          // inicializa zap
	log := logger.Logger() // obtiene logger estructurado
	defer log.Sync()       // flush buffers al salir

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()

	// ---------------- DB ----------------
	db, err := sql.Open("sqlite", cfg.SQLitePath)
	if err != nil {
		log.Fatal("failed to open SQLite", zap.Error(err))
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		log.Fatal("failed to ping SQLite", zap.Error(err))
	}

	if err := esSQLite.InitSQLite(db); err != nil {
		log.Fatal("failed to initialize event store schema", zap.Error(err))
	}
	if err := snapshotSQLite.InitSQLite(db); err != nil {
		log.Fatal("failed to initialize snapshot schema", zap.Error(err))
	}
	if err := outboxSQLite.InitSQLite(db); err != nil {
		log.Fatal("failed to initialize outbox schema", zap.Error(err))
	}

	eventStore := esSQLite.NewEventStoreSQLite(db, log)
	snapshotStore := snapshotSQLite.NewSnapshotStoreSQLite(db)
	outboxStore := outboxSQLite.NewOutboxStoreSQLite(db, cfg.MaxRetries, cfg.LockTimeout)

	// ------------- Analítica ---------------
	// El archivo ClickHouse es opcional: si está configurado, se suscribe al
	// event store y recibe cada evento confirmado.
	if cfg.ClickHouseAddr != "" {
		archive, err := clickhouse.NewEventArchive(cfg.ClickHouseAddr, cfg.ClickHouseDB)
		if err != nil {
			log.Warn("⚠️ ClickHouse no disponible, archivo analítico desactivado", zap.Error(err))
		} else {
			eventStore.Subscribe(archive.Handler())
			log.Info("✅ ClickHouse conectado, archivo analítico habilitado")
		}
	}

	// ---------------- Cache ----------------
	var cacheInstance sharedCache.Cache
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("⚠️ Redis no disponible, cache en memoria:", zap.Error(err))
		cacheInstance = sharedCache.NewInMemoryCache(cfg.CacheTTL, 3*cfg.CacheTTL)
	} else {
		cacheInstance = sharedCache.NewRedisCache(rdb, cfg.CacheTTL)
		log.Info("✅ Redis conectado, cache habilitado")
	}

	// -------------- Repositorio ------------
	orderRepo := aggApp.NewEventSourcedRepository(
		eventStore,
		snapshotStore,
		cacheInstance,
		func(id string) aggDomain.Root { return orderDomain.NewOrder(id) },
		orderDomain.OrderAggregateType,
		cfg.SnapshotFrequency,
		cfg.CacheTTL,
		log,
	)
	// Concurrencia optimista + reintentos ante fallos transitorios de storage.
	repo := aggApp.NewRetryRepository(
		aggApp.NewOptimisticRepository(orderRepo, eventStore),
		3, 50*time.Millisecond,
	)

	// --------------- Servicio --------------
	orderService := orderApp.NewOrderService(repo, outboxStore, log)

	// -------------- Publisher --------------
	var sink outboxDomain.Publisher
	if cfg.UseKafka {
		log.Info("🚀 Usando Kafka como canal de salida del outbox")

		// El writer es genérico: el topic de cada mensaje lo decide el
		// registro de eventos, no la configuración del writer.
		writer := kafka.NewWriter(kafka.WriterConfig{
			Brokers: cfg.KafkaBrokers,
		})
		defer writer.Close()

		sink = publisher.NewKafkaPublisher(writer, orderDomain.NewEventRegistry(), cfg.KafkaTopic, log)
	} else {
		log.Info("⚡️Usando publisher HTTP", zap.String("endpoint", cfg.PublishEndpoint))
		sink = publisher.NewHTTPPublisher(cfg.PublishEndpoint, 10*time.Second, log)
	}

	// Cadena de decoradores: dedupe → reintentos → canal real.
	resilient := outboxApp.NewResilientPublisher(sink, 3, 100*time.Millisecond)
	idempotent := outboxApp.NewIdempotentPublisher(resilient, 10*time.Minute, time.Minute)
	defer idempotent.Stop()

	// ------------ Outbox Worker ------------
	processor := relayer.NewProcessor(outboxStore, idempotent, cfg.PollInterval, cfg.BatchSize, cfg.RetentionPeriod, log)
	processor.Start(ctx)
	defer processor.Stop()

	// ---------------- HTTP ----------------
	orderHandler := orderHttp.NewOrderHandler(orderService, outboxStore)
	router := gin.Default()
	orderHttp.RegisterOrderRoutes(router, orderHandler)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: router}
	go func() {
		log.Info("🚀 Server running",
			zap.String("url", "http://localhost:"+cfg.HTTPPort),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("🛑 Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
}
