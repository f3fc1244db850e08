package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/recordbase/recordbase/handlers"
	"github.com/recordbase/recordbase/internal/backup"
	"github.com/recordbase/recordbase/internal/config"
	"github.com/recordbase/recordbase/internal/storage"
	"github.com/recordbase/recordbase/pkg/logger"
	"github.com/recordbase/recordbase/pkg/metrics"
	"github.com/recordbase/recordbase/pkg/middleware"
)

func main() {
	// logging first (LOG_LEVEL: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: environment=%s storage_type=%q mongo=%v redis=%v",
		cfg.Server.Environment, cfg.Storage.Type, cfg.Storage.MongoURI != "", cfg.Redis.Host != "")

	r := gin.New()

	// Lightweight CORS middleware for dev/test: set common headers and
	// respond to OPTIONS. Production should sit behind a stricter policy.
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})
	r.Use(gin.Logger(), gin.Recovery())

	// connect Redis early so the rate limiter can use it when configured
	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Host + ":" + cfg.Redis.Port, Password: cfg.Redis.Password})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			rdb = nil
		} else {
			logger.Infof("connected to Redis at %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimit(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	// pick and verify a storage backend; all candidates failing is fatal
	provider := storage.NewProvider()
	store, err := provider.Initialize(storage.Options{
		EnvType:       cfg.Storage.Type,
		Environment:   cfg.Server.Environment,
		DevOverride:   cfg.Storage.DevType,
		FilePath:      cfg.Storage.FilePath,
		MongoURI:      cfg.Storage.MongoURI,
		MongoDatabase: cfg.Storage.MongoDatabase,
		MongoTimeout:  cfg.Storage.MongoTimeout,
	})
	if err != nil {
		logger.Fatalf("storage unavailable: %v", err)
	}
	if ms, ok := store.(*storage.MongoStore); ok {
		defer func() { _ = ms.Close(context.Background()) }()
	}

	uploader, err := backup.NewUploader(cfg.Backup)
	if err != nil {
		logger.Warnf("backup uploads disabled: %v", err)
	}

	handlers.NewRecordsHandler(store).Register(r.Group("/api"))
	handlers.NewSystemHandler(store, uploader, provider.Resolved(), cfg.IsProduction()).Register(r.Group("/"))

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("starting record service on %s (storage=%s)", addr, store.Type())
	if err := r.Run(addr); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
