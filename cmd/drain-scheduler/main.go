// cmd/drain-scheduler/main.go
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
	couponapp "flashmart/internal/service/coupon/application"
	"flashmart/internal/service/coupon/infrastructure"
	couponadapter "flashmart/internal/service/coupon/infrastructure/adapter"
	"flashmart/internal/service/coupon/infrastructure/rule"
	couponsched "flashmart/internal/service/coupon/scheduler"
)

const serviceName = "drain-scheduler"

// main 启动独立的排水 worker：不对外提供业务接口，
// 只轮询活跃等待队列，把补货后的库存按入队顺序发放出去。
// coupon-service 内嵌了同样的调度器，两者可同时运行，
// 发放脚本的原子性保证不会重复扣减。
func main() {
	bootstrap.Init(serviceName)
	cfg := config.GetCurrentConfig()
	tracer := otel.Tracer(serviceName)

	redisClient, err := redis.NewClient(redis.Options{
		Addr:     cfg.Infra.Redis.Addr,
		Password: cfg.Infra.Redis.Password,
		DB:       cfg.Infra.Redis.DB,
	})
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer redisClient.Close()

	locker, err := lock.NewRedisLocker(redisClient, cfg.Lock.LeaseTTL, cfg.Lock.RetryBackoff)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to create redis locker")
	}

	issuanceStore, err := couponadapter.NewIssuanceRedisAdapter(redisClient)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to create issuance adapter")
	}
	waitingQueue := couponadapter.NewQueueRedisAdapter(redisClient)

	notifyWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, couponadapter.NotificationTopic)
	notifier := couponadapter.NewNotificationKafkaAdapter(notifyWriter)
	defer notifier.Close()

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

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8085,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
		},
		BackgroundTasks: []func(ctx context.Context){
			drainScheduler.StartPolling,
		},
	})
}
