// internal/service/coupon/infrastructure/gorm_model.go
package infrastructure

import "time"

// CouponTemplateModel 是券模板的数据库映射。
type CouponTemplateModel struct {
	ID              int64     `gorm:"primaryKey;autoIncrement"`
	Code            string    `gorm:"column:code;uniqueIndex;size:64"`
	Name            string    `gorm:"column:name;size:128"`
	TotalQuantity   int64     `gorm:"column:total_quantity"`
	ValidFrom       time.Time `gorm:"column:valid_from"`
	ValidUntil      time.Time `gorm:"column:valid_until"`
	EligibilityRule string    `gorm:"column:eligibility_rule;type:text"`
	Active          bool      `gorm:"column:active"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName 指定表名。
func (CouponTemplateModel) TableName() string {
	return "coupon_templates"
}
