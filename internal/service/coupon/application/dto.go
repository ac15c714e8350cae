// internal/service/coupon/application/dto.go
package application

import "time"

// InitializeCouponRequest 是初始化（或重置）一个券码的入参。
type InitializeCouponRequest struct {
	Code            string    `json:"code"`
	Name            string    `json:"name"`
	Quantity        int64     `json:"quantity"`
	ValidFrom       time.Time `json:"valid_from"`
	ValidUntil      time.Time `json:"valid_until"`
	EligibilityRule string    `json:"eligibility_rule"`
	// Force 为 false 时拒绝对已初始化的券码重复播种，
	// 防止误操作把正在发放的库存重置回满量。
	Force bool `json:"force"`
}

// IssueRequest 是一次领取请求。
type IssueRequest struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
	// Tier 由上游用户服务提供，参与资格规则求值。
	Tier string `json:"tier"`
}

// IssueResponse 对上层只暴露三种结果之一。
type IssueResponse struct {
	Status     string `json:"status"` // ISSUED / ALREADY_ISSUED / OUT_OF_STOCK
	IssuanceID string `json:"issuance_id,omitempty"`
}

const (
	StatusIssued        = "ISSUED"
	StatusAlreadyIssued = "ALREADY_ISSUED"
	StatusOutOfStock    = "OUT_OF_STOCK"
)

// EnqueueResponse 返回排队名次。
type EnqueueResponse struct {
	Rank int64 `json:"rank"`
}

// CouponStatusResponse 是状态查询的出参。
type CouponStatusResponse struct {
	Code          string `json:"code"`
	Remaining     int64  `json:"remaining"`
	TotalQuantity int64  `json:"total_quantity"`
	Available     bool   `json:"available"`
}
