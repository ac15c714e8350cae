// internal/service/coupon/domain/coupon.go
package domain

import (
	"errors"
	"time"
)

// IssueResult 是发放脚本返回的业务状态码。
type IssueResult int

const (
	IssueSoldOut       IssueResult = 0 // 已发完
	IssueSuccess       IssueResult = 1 // 发放成功
	IssueAlreadyIssued IssueResult = 2 // 该用户已领取过
)

// 领域错误。OUT_OF_STOCK 和 ALREADY_ISSUED 是正常的业务结果，
// 用 IssueResult 表达；这里只定义真正的异常路径。
var (
	ErrCouponNotFound     = errors.New("coupon not found")
	ErrCouponNotActive    = errors.New("coupon is outside its validity window")
	ErrNotEligible        = errors.New("user does not satisfy the eligibility rule")
	ErrAlreadyInitialized = errors.New("coupon is already initialized; pass force to reset")
	ErrStoreUnavailable   = errors.New("coupon store unavailable")
)

// CouponStatus 描述某个券码当前的库存与有效期状态。
type CouponStatus struct {
	Code          string
	Remaining     int64
	TotalQuantity int64
	ValidFrom     time.Time
	ValidUntil    time.Time
}

// Available 表示当前是否还能发放：有剩余且在有效期内。
func (s *CouponStatus) Available(now time.Time) bool {
	return s.Remaining > 0 && s.WithinValidity(now)
}

// WithinValidity 判断 now 是否落在有效期窗口内。
// ValidFrom/ValidUntil 为零值时视为不设界。
func (s *CouponStatus) WithinValidity(now time.Time) bool {
	if !s.ValidFrom.IsZero() && now.Before(s.ValidFrom) {
		return false
	}
	if !s.ValidUntil.IsZero() && now.After(s.ValidUntil) {
		return false
	}
	return true
}

// Issuance 是一次成功发放的记录，作为通知事件的载荷。
type Issuance struct {
	ID       string
	Code     string
	UserID   string
	IssuedAt time.Time
}
