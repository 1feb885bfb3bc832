package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	alarmapp "vessel-monitor/internal/alarms/application"
	alarmrepo "vessel-monitor/internal/alarms/infrastructure/postgres"
	"vessel-monitor/internal/config"
	equipmentapp "vessel-monitor/internal/equipment/application"
	equipmentrepo "vessel-monitor/internal/equipment/infrastructure/postgres"
	"vessel-monitor/internal/logging"
	"vessel-monitor/internal/monitoring/application"
	monitoring "vessel-monitor/internal/monitoring/domain"
	monitoringrepo "vessel-monitor/internal/monitoring/infrastructure/postgres"
	monitoringhttp "vessel-monitor/internal/monitoring/interfaces/http"
	"vessel-monitor/internal/observability/metrics"
	"vessel-monitor/internal/realtime"
	streamhttp "vessel-monitor/internal/realtime/interfaces/http"

	"github.com/go-redis/redis/v8"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat, "vessel-monitor")
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal("db ping failed", zap.Error(err))
	}

	metrics.Init(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ranges := monitoring.NewRangeTable()
	if cfg.RangesPath != "" {
		if err := config.LoadRanges(cfg.RangesPath, ranges); err != nil {
			logger.Fatal("range file load failed", zap.String("path", cfg.RangesPath), zap.Error(err))
		}
		if err := config.WatchRanges(ctx, cfg.RangesPath, ranges, logger); err != nil {
			logger.Fatal("range file watch failed", zap.String("path", cfg.RangesPath), zap.Error(err))
		}
		logger.Info("metric ranges loaded", zap.String("path", cfg.RangesPath))
	}

	equipmentRepo := equipmentrepo.NewEquipmentRepository(db)
	pointRepo := equipmentrepo.NewPointRepository(db)
	readingRepo := monitoringrepo.NewReadingRepository(db)
	ruleRepo := alarmrepo.NewRuleRepository(db)
	alarmStore := alarmrepo.NewAlarmRepository(db)

	resolver, err := equipmentapp.NewResolver(pointRepo)
	if err != nil {
		logger.Fatal("resolver error", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// Realtime delivery is best effort; ingestion keeps working
		// while redis is down.
		logger.Warn("redis unreachable, realtime pub/sub degraded", zap.Error(err))
	}

	codeCache, err := realtime.NewCodeCache(equipmentRepo, realtime.WithTTL(cfg.CacheTTL))
	if err != nil {
		logger.Fatal("code cache error", zap.Error(err))
	}
	redisSender, err := realtime.NewRedisSender(redisClient)
	if err != nil {
		logger.Fatal("redis sender error", zap.Error(err))
	}
	broker := realtime.NewSSEBroker()
	publisher, err := realtime.NewPublisher(codeCache, realtime.NewMultiSender(redisSender, broker), logger,
		realtime.WithChunkSize(cfg.ChunkSize),
		realtime.WithChunkDelay(cfg.ChunkDelay))
	if err != nil {
		logger.Fatal("publisher error", zap.Error(err))
	}

	evaluator, err := alarmapp.NewEvaluator(ruleRepo, alarmStore, logger)
	if err != nil {
		logger.Fatal("alarm evaluator error", zap.Error(err))
	}

	ingestService, err := application.NewService(equipmentRepo, resolver, readingRepo, ranges, logger,
		application.WithEvaluator(evaluator),
		application.WithPublisher(publisher))
	if err != nil {
		logger.Fatal("ingest service error", zap.Error(err))
	}

	ingestHandler, err := monitoringhttp.NewHandler(ingestService, logger)
	if err != nil {
		logger.Fatal("ingest handler error", zap.Error(err))
	}
	streamHandler, err := streamhttp.NewStreamHandler(broker)
	if err != nil {
		logger.Fatal("stream handler error", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/readings", ingestHandler)
	mux.Handle("/api/v1/readings/batch", ingestHandler)
	mux.Handle("/api/v1/stream/", streamHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(mux, logger)}
	logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
	logger.Fatal("http server exited", zap.Error(server.ListenAndServe()))
}

func loggingMiddleware(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", resp.status),
			zap.Duration("duration", time.Since(start)))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps SSE streaming working through the wrapper.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
