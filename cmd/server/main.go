package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"stockledger/internal/auth"
	"stockledger/internal/config"
	"stockledger/internal/handler"
	"stockledger/internal/infrastructure/cache"
	"stockledger/internal/infrastructure/database"
	"stockledger/internal/infrastructure/lock"
	"stockledger/internal/infrastructure/metrics"
	"stockledger/internal/infrastructure/mq"
	"stockledger/internal/job"
	"stockledger/internal/repository"
	"stockledger/internal/service"
	"stockledger/pkg/idgen"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg := config.LoadConfig(*configPath)
	log := newLogger(cfg.Log)
	gin.SetMode(cfg.Server.Mode)

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ids, err := idgen.NewSnowflake(cfg.Server.WorkerID)
	if err != nil {
		log.Fatalf("初始化 ID 生成器失败: %v", err)
	}
	m := metrics.New()

	var (
		store     repository.Store
		catalog   service.Catalog
		outbox    repository.OutboxQueue
		publisher job.Publisher
		locker    service.MemberLocker
		rdb       *redis.Client
	)

	switch cfg.Storage.Driver {
	case "memory":
		mem := repository.NewMemoryStore()
		mem.AddMembers(cfg.Storage.Seed.Members...)
		mem.AddItems(cfg.Storage.Seed.Items...)
		for member, points := range cfg.Storage.Seed.Points {
			memberID, _ := strconv.ParseInt(member, 10, 64)
			mem.SeedBalance(memberID, points)
		}
		store, catalog, outbox = mem, mem, mem
		publisher = job.LogPublisher{Log: log.WithField("component", "outbox")}
		log.Warn("使用内存存储，重启后数据丢失")

	default:
		db, err := database.InitMySQL(cfg.MySQL)
		if err != nil {
			log.Fatal(err)
		}
		log.Info("MySQL 连接成功")

		rdb, err = cache.InitRedis(ctx, cfg.Redis)
		if err != nil {
			log.Fatal(err)
		}
		defer rdb.Close()
		log.Info("Redis 连接成功")

		producer, err := mq.InitKafka(cfg.Kafka)
		if err != nil {
			log.Fatal(err)
		}
		defer producer.Close()
		log.Info("Kafka 生产者创建成功")

		gs := repository.NewGormStore(db)
		store, outbox, publisher = gs, gs.Outbox(), producer
		catalog = cache.NewCatalogCache(rdb, repository.NewItemRepository(db), cfg.Catalog.CacheTTL, log.WithField("component", "catalog"))
	}

	switch cfg.Trade.LockBackend {
	case "redis":
		locker = lock.NewRedisMemberLocker(rdb, cfg.Trade.LockTTL, cfg.Trade.LockRetryInterval, cfg.Trade.LockMaxRetries)
	default:
		locker = lock.NewLocalMemberLocker()
	}

	tradeService := service.NewTradeService(store, catalog, locker, ids, m, log.WithField("component", "trade"), service.TradeOptions{
		CommitTimeout: cfg.Trade.CommitTimeout,
		EventTopic:    cfg.Kafka.Topic.TradeExecuted,
	})
	portfolioService := service.NewPortfolioService(store)

	// 启动后台任务
	var jobs sync.WaitGroup
	outboxSender := job.NewOutboxSender(outbox, publisher, m, log, job.OutboxSenderOptions{
		Interval:      cfg.Outbox.PollInterval,
		BatchSize:     cfg.Outbox.BatchSize,
		MaxRetryCount: cfg.Outbox.MaxRetryCount,
	})
	cleanupJob := job.NewOutboxCleanupJob(outbox, log, cfg.Outbox.CleanupInterval, cfg.Outbox.Retention, cfg.Outbox.BatchSize)
	for _, start := range []func(context.Context){outboxSender.Start, cleanupJob.Start} {
		jobs.Add(1)
		go func(start func(context.Context)) {
			defer jobs.Done()
			start(ctx)
		}(start)
	}

	// 设置路由
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	h := handler.NewHandler(tradeService, portfolioService, log)
	router := handler.SetupRouter(h, tokens, m, log)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Infof("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("正在关闭服务...")

	// 先停止接收请求，再停止后台任务
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("服务关闭异常")
	}

	cancel()
	jobs.Wait()

	log.Info("服务已关闭")
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()
	if strings.EqualFold(cfg.Format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}
