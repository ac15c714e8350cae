// internal/service/coupon/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"errors"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"flashmart/internal/service/coupon/domain"
)

// GormTemplateRepository 是 port.TemplateRepository 的 GORM 实现。
type GormTemplateRepository struct {
	db *gorm.DB
}

// NewMysqlDB 打开 MySQL 连接并迁移模板表。
func NewMysqlDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&CouponTemplateModel{}); err != nil {
		return nil, err
	}
	return db, nil
}

// NewGormTemplateRepository 创建模板仓储实例。
func NewGormTemplateRepository(db *gorm.DB) *GormTemplateRepository {
	return &GormTemplateRepository{db: db}
}

// FindByCode 按券码查找模板。
func (r *GormTemplateRepository) FindByCode(ctx context.Context, code string) (*domain.CouponTemplate, error) {
	var model CouponTemplateModel
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCouponNotFound
		}
		return nil, err
	}
	return ToDomainTemplate(&model), nil
}

// Save 新建或更新模板（按 code 幂等）。
func (r *GormTemplateRepository) Save(ctx context.Context, tpl *domain.CouponTemplate) error {
	model := ToTemplateModel(tpl)
	if model.ID == 0 {
		var existing CouponTemplateModel
		err := r.db.WithContext(ctx).Where("code = ?", model.Code).First(&existing).Error
		if err == nil {
			model.ID = existing.ID
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}
	return r.db.WithContext(ctx).Save(model).Error
}

// MarkActive 只更新激活标记。
func (r *GormTemplateRepository) MarkActive(ctx context.Context, code string, active bool) error {
	return r.db.WithContext(ctx).
		Model(&CouponTemplateModel{}).
		Where("code = ?", code).
		Updates(map[string]interface{}{"active": active}).Error
}
