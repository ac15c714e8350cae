// internal/service/ranking/scheduler/window_scheduler.go
package scheduler

import (
	"context"
	"time"

	"flashmart/internal/pkg/logger"
	"flashmart/internal/service/ranking/application"
)

// WindowScheduler 在每个零点触发榜单窗口滚动。
// RefreshWindowExpiry 是幂等的，多实例同时触发只会做冗余工作。
type WindowScheduler struct {
	service *application.RankingService
}

// NewWindowScheduler 创建窗口滚动调度器。
func NewWindowScheduler(service *application.RankingService) *WindowScheduler {
	return &WindowScheduler{service: service}
}

// Start 启动调度，阻塞直到 ctx 取消。
// 启动时先执行一次，之后在每个零点边界触发。
func (s *WindowScheduler) Start(ctx context.Context) {
	logger.Ctx(ctx).Info().Msg("✅ ranking window scheduler started")

	if err := s.service.InitializeWindow(ctx); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("initial window refresh failed")
	}

	for {
		next := nextMidnight(time.Now())
		select {
		case <-time.After(time.Until(next)):
			if err := s.service.InitializeWindow(ctx); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("window rollover refresh failed")
			}
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("🛑 ranking window scheduler shutting down")
			return
		}
	}
}

func nextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).Add(24 * time.Hour)
}
