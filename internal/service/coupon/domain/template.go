// internal/service/coupon/domain/template.go
package domain

import "time"

// CouponTemplate 是运营侧定义的券模板，持久化在关系库里。
// Redis 中的库存计数在 InitializeCoupon 时从模板播种。
type CouponTemplate struct {
	ID            int64
	Code          string
	Name          string
	TotalQuantity int64
	ValidFrom     time.Time
	ValidUntil    time.Time

	// EligibilityRule 是一条 CEL 表达式，对 EligibilityFact 求值，
	// 为空表示所有用户可领。
	// 例如: `tier == "VIP" || issued_total < 100`
	EligibilityRule string

	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EligibilityFact 是规则求值时可见的事实集合。
type EligibilityFact struct {
	UserID      string `json:"user_id"`
	Tier        string `json:"tier"`
	IssuedTotal int64  `json:"issued_total"`
}
