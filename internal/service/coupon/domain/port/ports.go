// internal/service/coupon/domain/port/ports.go
package port

import (
	"context"
	"time"

	"flashmart/internal/service/coupon/domain"
)

// IssuanceStore 是发放引擎对共享原子存储的依赖。
// 实现必须保证 TryIssue 的判重、扣减、记名对外表现为一个原子操作。
type IssuanceStore interface {
	// Initialize 设置库存与元信息，过期时间与券有效期对齐。
	// 对已激活的券重复调用会重置库存，调用方自行防护。
	Initialize(ctx context.Context, code string, quantity int64, validFrom, validUntil time.Time) error

	// TryIssue 原子地完成「判重 -> 扣库存 -> 记录领取人」。
	TryIssue(ctx context.Context, code, userID string) (domain.IssueResult, error)

	// Rollback 是补偿路径：把 userID 从已领取集合中移除并归还一个库存。
	// 用户本就不在集合中时是 no-op。
	Rollback(ctx context.Context, code, userID string) error

	HasIssued(ctx context.Context, code, userID string) (bool, error)
	Status(ctx context.Context, code string) (*domain.CouponStatus, error)
	IssuedCount(ctx context.Context, code string) (int64, error)

	// AddStock 直接增加剩余库存（运营补货），不做上限校验，
	// 调用方需要在锁内完成「读状态 -> 决定补多少 -> 写入」。
	AddStock(ctx context.Context, code string, delta int64) error

	// Teardown 删除券的全部运行期状态（库存、领取集合、元信息）。
	Teardown(ctx context.Context, code string) error
}

// WaitingQueue 是库存耗尽后承接溢出需求的有序队列。
type WaitingQueue interface {
	// Enqueue 按当前时间入队并返回 1-based 排名；重复入队返回已有排名。
	Enqueue(ctx context.Context, code, userID string) (int64, error)

	// Peek 按排队顺序返回最早的至多 n 个用户，不出队。
	Peek(ctx context.Context, code string, n int64) ([]string, error)

	Remove(ctx context.Context, code, userID string) error
	Rank(ctx context.Context, code, userID string) (int64, error)
	Len(ctx context.Context, code string) (int64, error)

	// ActiveCodes 枚举当前有排队用户的券码，作为 drain 的工作清单。
	ActiveCodes(ctx context.Context) ([]string, error)
}

// NotificationProducer 是发放成功后的通知副作用，fire-and-forget。
type NotificationProducer interface {
	NotifyIssued(ctx context.Context, issuance domain.Issuance) error
}

// TemplateRepository 是券模板的关系库存取。
type TemplateRepository interface {
	FindByCode(ctx context.Context, code string) (*domain.CouponTemplate, error)
	Save(ctx context.Context, tpl *domain.CouponTemplate) error
	MarkActive(ctx context.Context, code string, active bool) error
}

// RuleEngine 对模板上的资格规则求值。
type RuleEngine interface {
	Evaluate(rule string, fact domain.EligibilityFact) (bool, error)
}
