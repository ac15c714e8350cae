// internal/service/ranking/application/service.go
package application

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"flashmart/internal/pkg/logger"
	"flashmart/internal/service/ranking/domain"
	"flashmart/internal/service/ranking/domain/port"
)

// RankingService 聚合商品热度榜单的业务用例。
type RankingService struct {
	store  port.ScoreStore
	tracer trace.Tracer
	now    func() time.Time
}

// NewRankingService 创建榜单服务实例。
func NewRankingService(store port.ScoreStore, tracer trace.Tracer) *RankingService {
	return &RankingService{store: store, tracer: tracer, now: time.Now}
}

// IncrementScore 累加商品热度，amount 通常是订单里的件数。
func (s *RankingService) IncrementScore(ctx context.Context, productID string, amount float64) error {
	ctx, span := s.tracer.Start(ctx, "ranking.IncrementScore")
	defer span.End()
	span.SetAttributes(
		attribute.String("product.id", productID),
		attribute.Float64("amount", amount),
	)

	if amount <= 0 {
		amount = 1
	}
	return s.store.IncrementScore(ctx, productID, amount, s.now())
}

// TopN 返回指定窗口的热度榜。
func (s *RankingService) TopN(ctx context.Context, window domain.Window, limit int64) ([]domain.ProductScore, error) {
	ctx, span := s.tracer.Start(ctx, "ranking.TopN")
	defer span.End()

	return s.store.TopN(ctx, window, limit, s.now())
}

// RankOf 返回商品的 1-based 名次，未上榜时 ok 为 false。
func (s *RankingService) RankOf(ctx context.Context, window domain.Window, productID string) (int64, bool, error) {
	return s.store.RankOf(ctx, window, productID, s.now())
}

// InitializeWindow 在窗口滚动（例如每天零点）时被外部定时器调用，
// 刷新当前窗口的保留期。历史窗口靠自身过期自然老化，不做重置。
func (s *RankingService) InitializeWindow(ctx context.Context) error {
	if err := s.store.RefreshWindowExpiry(ctx, s.now()); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("failed to refresh ranking window expiry")
		return err
	}
	return nil
}
