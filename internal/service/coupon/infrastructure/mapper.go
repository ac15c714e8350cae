// internal/service/coupon/infrastructure/mapper.go
package infrastructure

import "flashmart/internal/service/coupon/domain"

// ToDomainTemplate 将数据库模型转换为领域模型。
// 领域对象通过普通构造直接接收全部字段，包括生成的 ID 与时间戳。
func ToDomainTemplate(m *CouponTemplateModel) *domain.CouponTemplate {
	return &domain.CouponTemplate{
		ID:              m.ID,
		Code:            m.Code,
		Name:            m.Name,
		TotalQuantity:   m.TotalQuantity,
		ValidFrom:       m.ValidFrom,
		ValidUntil:      m.ValidUntil,
		EligibilityRule: m.EligibilityRule,
		Active:          m.Active,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// ToTemplateModel 将领域模型转换为数据库模型。
func ToTemplateModel(t *domain.CouponTemplate) *CouponTemplateModel {
	return &CouponTemplateModel{
		ID:              t.ID,
		Code:            t.Code,
		Name:            t.Name,
		TotalQuantity:   t.TotalQuantity,
		ValidFrom:       t.ValidFrom,
		ValidUntil:      t.ValidUntil,
		EligibilityRule: t.EligibilityRule,
		Active:          t.Active,
	}
}
