// internal/service/ranking/domain/port/ports.go
package port

import (
	"context"
	"time"

	"flashmart/internal/service/ranking/domain"
)

// ScoreStore 是榜单分数的存储依赖。
// 每个时间窗口一个有序结构，窗口首次被写入时设置保留期，到期自然淘汰。
type ScoreStore interface {
	// IncrementScore 同时累加当前日榜与周榜的分数。
	IncrementScore(ctx context.Context, productID string, amount float64, now time.Time) error

	// TopN 返回按分数降序的前 limit 个商品。
	TopN(ctx context.Context, window domain.Window, limit int64, now time.Time) ([]domain.ProductScore, error)

	// RankOf 返回 1-based 名次；商品未上榜时 ok 为 false。
	RankOf(ctx context.Context, window domain.Window, productID string, now time.Time) (rank int64, ok bool, err error)

	// RefreshWindowExpiry 在窗口滚动时刷新/延长当前窗口的保留期。
	// 历史窗口不受影响，靠各自的过期时间自然老化。
	RefreshWindowExpiry(ctx context.Context, now time.Time) error
}
