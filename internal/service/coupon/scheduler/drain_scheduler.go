// internal/service/coupon/scheduler/drain_scheduler.go
package scheduler

import (
	"context"
	"time"

	"flashmart/internal/pkg/logger"
	"flashmart/internal/service/coupon/application"
)

// DrainScheduler 以固定间隔驱动排队放行。
// 放行操作本身由原子/幂等原语组成，多实例并发执行同一轮
// drain 只会做冗余的空操作，所以这里不需要任何选主逻辑。
type DrainScheduler struct {
	service   *application.CouponService
	interval  time.Duration
	batchSize int64
}

// NewDrainScheduler 创建放行调度器。
func NewDrainScheduler(service *application.CouponService, interval time.Duration, batchSize int64) *DrainScheduler {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &DrainScheduler{service: service, interval: interval, batchSize: batchSize}
}

// StartPolling 启动定时轮询，阻塞直到 ctx 取消。
func (s *DrainScheduler) StartPolling(ctx context.Context) {
	logger.Ctx(ctx).Info().
		Dur("interval", s.interval).
		Int64("batch_size", s.batchSize).
		Msg("✅ waiting-queue drain scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.service.DrainAll(ctx, s.batchSize)
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("🛑 drain scheduler shutting down")
			return
		}
	}
}
