// internal/service/ranking/domain/ranking.go
package domain

import "errors"

// Window 是榜单的统计窗口。
type Window string

const (
	WindowDaily  Window = "daily"
	WindowWeekly Window = "weekly"
)

// ErrUnknownWindow 表示请求了不存在的窗口类型。
var ErrUnknownWindow = errors.New("unknown ranking window")

// ParseWindow 解析窗口参数。
func ParseWindow(s string) (Window, error) {
	switch Window(s) {
	case WindowDaily, WindowWeekly:
		return Window(s), nil
	default:
		return "", ErrUnknownWindow
	}
}

// ProductScore 是榜单中的一项。
type ProductScore struct {
	ProductID string  `json:"product_id"`
	Score     float64 `json:"score"`
}
