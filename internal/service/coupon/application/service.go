// internal/service/coupon/application/service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"flashmart/internal/pkg/lock"
	"flashmart/internal/pkg/logger"
	"flashmart/internal/service/coupon/domain"
	"flashmart/internal/service/coupon/domain/port"
)

const (
	// 运营补货这类「读-改-写」序列无法用单条原子命令表达，走锁
	stockLockTimeout = 3 * time.Second
	// 补偿失败会泄漏一个已扣减未发放的库存，这里允许有限次就地重试
	rollbackMaxAttempts = 3
	rollbackRetryDelay  = 100 * time.Millisecond
)

// CouponService 聚合限量券发放的所有业务用例。
type CouponService struct {
	store     port.IssuanceStore
	queue     port.WaitingQueue
	notifier  port.NotificationProducer
	templates port.TemplateRepository
	rules     port.RuleEngine
	locker    lock.Locker
	tracer    trace.Tracer
	now       func() time.Time
}

// NewCouponService 创建发放服务实例。
func NewCouponService(
	store port.IssuanceStore,
	queue port.WaitingQueue,
	notifier port.NotificationProducer,
	templates port.TemplateRepository,
	rules port.RuleEngine,
	locker lock.Locker,
	tracer trace.Tracer,
) *CouponService {
	return &CouponService{
		store:     store,
		queue:     queue,
		notifier:  notifier,
		templates: templates,
		rules:     rules,
		locker:    locker,
		tracer:    tracer,
		now:       time.Now,
	}
}

// InitializeCoupon 从模板播种 Redis 库存并激活券码。
// 已初始化的券码必须显式 Force 才会被重置。
func (s *CouponService) InitializeCoupon(ctx context.Context, req *InitializeCouponRequest) error {
	ctx, span := s.tracer.Start(ctx, "coupon.Initialize")
	defer span.End()
	span.SetAttributes(attribute.String("coupon.code", req.Code))

	if _, err := s.store.Status(ctx, req.Code); err == nil && !req.Force {
		return domain.ErrAlreadyInitialized
	} else if err != nil && !errors.Is(err, domain.ErrCouponNotFound) {
		return err
	}

	tpl := &domain.CouponTemplate{
		Code:            req.Code,
		Name:            req.Name,
		TotalQuantity:   req.Quantity,
		ValidFrom:       req.ValidFrom,
		ValidUntil:      req.ValidUntil,
		EligibilityRule: req.EligibilityRule,
		Active:          true,
	}
	if err := s.templates.Save(ctx, tpl); err != nil {
		return fmt.Errorf("failed to save coupon template: %w", err)
	}

	if err := s.store.Initialize(ctx, req.Code, req.Quantity, req.ValidFrom, req.ValidUntil); err != nil {
		return err
	}

	logger.Ctx(ctx).Info().
		Str("code", req.Code).
		Int64("quantity", req.Quantity).
		Msg("coupon initialized")
	return nil
}

// TryIssue 处理一次领取请求。
// OUT_OF_STOCK 与 ALREADY_ISSUED 是正常业务结果，通过响应体表达；
// 只有有效期、资格与存储异常才走 error。
func (s *CouponService) TryIssue(ctx context.Context, req *IssueRequest) (*IssueResponse, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.TryIssue")
	defer span.End()
	span.SetAttributes(
		attribute.String("coupon.code", req.Code),
		attribute.String("user.id", req.UserID),
	)

	// 1. 有效期校验
	status, err := s.store.Status(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	if !status.WithinValidity(s.now()) {
		return nil, domain.ErrCouponNotActive
	}

	// 2. 资格规则校验（模板缺失时视为无规则，纯 Redis 初始化的券也能发）
	if err := s.checkEligibility(ctx, req); err != nil {
		return nil, err
	}

	// 3. 原子发放
	result, err := s.store.TryIssue(ctx, req.Code, req.UserID)
	if err != nil {
		issuanceResults.WithLabelValues("store_error").Inc()
		return nil, err
	}

	switch result {
	case domain.IssueSuccess:
		issuanceResults.WithLabelValues("issued").Inc()
		issuanceID := uuid.NewString()
		span.SetAttributes(attribute.String("issuance.id", issuanceID))
		return &IssueResponse{Status: StatusIssued, IssuanceID: issuanceID}, nil
	case domain.IssueAlreadyIssued:
		issuanceResults.WithLabelValues("already_issued").Inc()
		return &IssueResponse{Status: StatusAlreadyIssued}, nil
	default:
		issuanceResults.WithLabelValues("out_of_stock").Inc()
		return &IssueResponse{Status: StatusOutOfStock}, nil
	}
}

func (s *CouponService) checkEligibility(ctx context.Context, req *IssueRequest) error {
	tpl, err := s.templates.FindByCode(ctx, req.Code)
	if errors.Is(err, domain.ErrCouponNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load coupon template: %w", err)
	}
	if tpl.EligibilityRule == "" {
		return nil
	}

	issuedTotal, err := s.store.IssuedCount(ctx, req.Code)
	if err != nil {
		return err
	}
	ok, err := s.rules.Evaluate(tpl.EligibilityRule, domain.EligibilityFact{
		UserID:      req.UserID,
		Tier:        req.Tier,
		IssuedTotal: issuedTotal,
	})
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotEligible
	}
	return nil
}

// Enqueue 把库存耗尽时到达的用户放入排队队列，返回 1-based 名次。
func (s *CouponService) Enqueue(ctx context.Context, userID, code string) (*EnqueueResponse, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.Enqueue")
	defer span.End()

	rank, err := s.queue.Enqueue(ctx, code, userID)
	if err != nil {
		return nil, err
	}
	enqueueTotal.Inc()
	return &EnqueueResponse{Rank: rank}, nil
}

// GetStatus 返回券码的库存状态。
func (s *CouponService) GetStatus(ctx context.Context, code string) (*CouponStatusResponse, error) {
	status, err := s.store.Status(ctx, code)
	if err != nil {
		return nil, err
	}
	return &CouponStatusResponse{
		Code:          code,
		Remaining:     status.Remaining,
		TotalQuantity: status.TotalQuantity,
		Available:     status.Available(s.now()),
	}, nil
}

// HasIssued 暴露给客户端的领取前置查询。
func (s *CouponService) HasIssued(ctx context.Context, code, userID string) (bool, error) {
	return s.store.HasIssued(ctx, code, userID)
}

// IsAvailable 返回券码当前是否可发放。
func (s *CouponService) IsAvailable(ctx context.Context, code string) (bool, error) {
	status, err := s.store.Status(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrCouponNotFound) {
			return false, nil
		}
		return false, err
	}
	return status.Available(s.now()), nil
}

// TopUpStock 运营补货。读取现状和写入不是一条原子命令，
// 用锁管理器把整个读-改-写序列圈起来。
func (s *CouponService) TopUpStock(ctx context.Context, code string, delta int64) error {
	if delta <= 0 {
		return fmt.Errorf("top-up delta must be positive, got %d", delta)
	}
	return s.locker.ExecuteWithLock(ctx, "coupon:stock:"+code, stockLockTimeout, func(ctx context.Context) error {
		if _, err := s.store.Status(ctx, code); err != nil {
			return err
		}
		return s.store.AddStock(ctx, code, delta)
	})
}

// RevokeIssuance 撤销一次发放（下游订单失败等场景的补偿入口）。
// 补偿半途失败会泄漏一个已扣减未发放的名额，所以这里带有限次重试。
func (s *CouponService) RevokeIssuance(ctx context.Context, code, userID string) error {
	var lastErr error
	for attempt := 0; attempt < rollbackMaxAttempts; attempt++ {
		if lastErr = s.store.Rollback(ctx, code, userID); lastErr == nil {
			return nil
		}
		logger.Ctx(ctx).Warn().Err(lastErr).
			Str("code", code).Str("user_id", userID).Int("attempt", attempt+1).
			Msg("rollback attempt failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rollbackRetryDelay):
		}
	}
	return fmt.Errorf("rollback failed after %d attempts: %w", rollbackMaxAttempts, lastErr)
}

// Drain 为单个券码执行一轮排队放行。
// 按排队顺序逐个尝试发放；发完即停，把剩余名单原序留给下一轮。
// 返回本轮成功发放的数量。
func (s *CouponService) Drain(ctx context.Context, code string, batchSize int64) (int, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.Drain")
	defer span.End()
	span.SetAttributes(attribute.String("coupon.code", code))
	drainCycles.Inc()

	status, err := s.store.Status(ctx, code)
	if err != nil {
		return 0, err
	}
	if !status.Available(s.now()) {
		return 0, nil
	}

	users, err := s.queue.Peek(ctx, code, batchSize)
	if err != nil {
		return 0, err
	}

	issued := 0
	for _, userID := range users {
		result, err := s.store.TryIssue(ctx, code, userID)
		if err != nil {
			// 单个条目的失败不阻塞后续条目，留在队列里下一轮重试
			logger.Ctx(ctx).Error().Err(err).
				Str("code", code).Str("user_id", userID).
				Msg("drain: issue attempt failed, entry stays queued")
			continue
		}

		switch result {
		case domain.IssueSuccess:
			issuance := domain.Issuance{
				ID:       uuid.NewString(),
				Code:     code,
				UserID:   userID,
				IssuedAt: s.now(),
			}
			if err := s.queue.Remove(ctx, code, userID); err != nil {
				logger.Ctx(ctx).Error().Err(err).Str("user_id", userID).Msg("drain: failed to dequeue issued user")
			}
			// 通知是 fire-and-forget 副作用，失败只记日志
			if err := s.notifier.NotifyIssued(ctx, issuance); err != nil {
				logger.Ctx(ctx).Error().Err(err).Str("user_id", userID).Msg("drain: failed to notify issued user")
			}
			drainIssued.Inc()
			issued++
		case domain.IssueAlreadyIssued:
			// 排队期间已经通过直接请求领到了，移出队列即可
			if err := s.queue.Remove(ctx, code, userID); err != nil {
				logger.Ctx(ctx).Error().Err(err).Str("user_id", userID).Msg("drain: failed to remove already-issued user")
			}
		case domain.IssueSoldOut:
			// 库存耗尽，本轮到此为止，剩余条目保持原有顺序
			return issued, nil
		}
	}
	return issued, nil
}

// DrainAll 遍历所有有排队用户的券码，逐个执行 Drain。
// 单个券码的失败只记日志，不影响其他券码。
func (s *CouponService) DrainAll(ctx context.Context, batchSize int64) {
	codes, err := s.queue.ActiveCodes(ctx)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("drain: failed to list active queues")
		return
	}

	for _, code := range codes {
		if _, err := s.Drain(ctx, code, batchSize); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("code", code).Msg("drain: cycle failed for coupon")
		}
	}
}

// Teardown 下线一个券码：清除运行期状态并把模板置为未激活。
func (s *CouponService) Teardown(ctx context.Context, code string) error {
	if err := s.store.Teardown(ctx, code); err != nil {
		return err
	}
	if err := s.templates.MarkActive(ctx, code, false); err != nil && !errors.Is(err, domain.ErrCouponNotFound) {
		return err
	}
	return nil
}
