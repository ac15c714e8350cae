// cmd/coupon-service/main.go
package main

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"flashmart/internal/pkg/bootstrap"
	"flashmart/internal/pkg/config"
	"flashmart/internal/pkg/lock"
	"flashmart/internal/pkg/logger"
	"flashmart/internal/pkg/mq"
	"flashmart/internal/pkg/redis"
	"flashmart/internal/service/cache"
	couponapp "flashmart/internal/service/coupon/application"
	"flashmart/internal/service/coupon/infrastructure"
	couponadapter "flashmart/internal/service/coupon/infrastructure/adapter"
	"flashmart/internal/service/coupon/infrastructure/rule"
	couponiface "flashmart/internal/service/coupon/interfaces"
	couponsched "flashmart/internal/service/coupon/scheduler"
	rankingapp "flashmart/internal/service/ranking/application"
	rankingadapter "flashmart/internal/service/ranking/infrastructure/adapter"
	rankingiface "flashmart/internal/service/ranking/interfaces"
	rankingsched "flashmart/internal/service/ranking/scheduler"
)

const serviceName = "coupon-service"

// main 是应用的组装根 (Composition Root)：
// 创建并组装所有依赖项，然后交给 bootstrap 启动。
func main() {
	bootstrap.Init(serviceName)
	cfg := config.GetCurrentConfig()
	tracer := otel.Tracer(serviceName)

	// 1. 共享原子存储
	redisClient, err := redis.NewClient(redis.Options{
		Addr:     cfg.Infra.Redis.Addr,
		Password: cfg.Infra.Redis.Password,
		DB:       cfg.Infra.Redis.DB,
	})
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer redisClient.Close()

	// 2. 锁管理器（默认 Redis，可切换 ZooKeeper 后端）
	locker := newLocker(cfg, redisClient)

	// 3. 发放引擎的存储与队列
	issuanceStore, err := couponadapter.NewIssuanceRedisAdapter(redisClient)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to create issuance adapter")
	}
	waitingQueue := couponadapter.NewQueueRedisAdapter(redisClient)

	// 4. 通知生产者
	notifyWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, couponadapter.NotificationTopic)
	notifier := couponadapter.NewNotificationKafkaAdapter(notifyWriter)
	defer notifier.Close()

	// 5. 模板仓储与资格规则引擎
	db, err := infrastructure.NewMysqlDB(cfg.Infra.Mysql.DSN)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to connect mysql")
	}
	templateRepo := infrastructure.NewGormTemplateRepository(db)
	ruleEngine, err := rule.NewCelRuleEngineAdapter()
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to create rule engine")
	}

	couponService := couponapp.NewCouponService(
		issuanceStore, waitingQueue, notifier, templateRepo, ruleEngine, locker, tracer,
	)
	drainScheduler := couponsched.NewDrainScheduler(
		couponService, cfg.Coupon.DrainInterval, cfg.Coupon.DrainBatchSize,
	)

	// 6. 榜单与缓存守卫
	rankingStore := rankingadapter.NewRankingRedisAdapter(redisClient)
	rankingService := rankingapp.NewRankingService(rankingStore, tracer)
	windowScheduler := rankingsched.NewWindowScheduler(rankingService)

	orderReader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, rankingadapter.OrderCompletedTopic, serviceName+"-ranking")
	orderConsumer := rankingadapter.NewOrderEventConsumer(orderReader, rankingService)

	guard := cache.NewGuard(redisClient, locker, cache.Options{
		WaitInterval:       cfg.Cache.LockWaitInterval,
		LockTTL:            cfg.Cache.LockTTL,
		RefreshThreshold:   cfg.Cache.RefreshThreshold,
		RefreshProbability: cfg.Cache.RefreshProbability,
	})

	couponHandler := couponiface.NewCouponHandler(couponService)
	rankingHandler := rankingiface.NewRankingHandler(rankingService, guard)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8084,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
			couponHandler.RegisterRoutes(appCtx.Mux)
			rankingHandler.RegisterRoutes(appCtx.Mux)
		},
		BackgroundTasks: []func(ctx context.Context){
			drainScheduler.StartPolling,
			windowScheduler.Start,
			orderConsumer.Start,
		},
	})
}

func newLocker(cfg *config.Config, redisClient *redis.Client) lock.Locker {
	switch cfg.Lock.Backend {
	case "zookeeper":
		locker, err := lock.NewZkLocker(cfg.Infra.Zookeeper.Servers, cfg.Lock.LeaseTTL)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to connect zookeeper")
		}
		return locker
	default:
		locker, err := lock.NewRedisLocker(redisClient, cfg.Lock.LeaseTTL, cfg.Lock.RetryBackoff)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to create redis locker")
		}
		return locker
	}
}
