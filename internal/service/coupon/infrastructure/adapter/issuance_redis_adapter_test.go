package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"flashmart/internal/pkg/redis"
	"flashmart/internal/service/coupon/domain"
)

func newIssuanceStore(t *testing.T) (*IssuanceRedisAdapter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redis.NewClient(redis.Options{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("new redis client: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	store, err := NewIssuanceRedisAdapter(client)
	if err != nil {
		t.Fatalf("new issuance adapter: %v", err)
	}
	return store, mr
}

func TestConcurrentIssuanceNeverOversells(t *testing.T) {
	store, _ := newIssuanceStore(t)
	ctx := context.Background()

	if err := store.Initialize(ctx, "FLASH50", 3, time.Time{}, time.Time{}); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	const users = 10
	results := make([]domain.IssueResult, users)
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := store.TryIssue(ctx, "FLASH50", fmt.Sprintf("user-%d", i))
			if err != nil {
				t.Errorf("issue user-%d: %v", i, err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	var success, soldOut int
	for _, res := range results {
		switch res {
		case domain.IssueSuccess:
			success++
		case domain.IssueSoldOut:
			soldOut++
		}
	}
	if success != 3 || soldOut != 7 {
		t.Fatalf("expected 3 issued / 7 sold out, got %d / %d", success, soldOut)
	}

	status, err := store.Status(ctx, "FLASH50")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Remaining != 0 {
		t.Fatalf("expected 0 remaining, got %d", status.Remaining)
	}
	count, err := store.IssuedCount(ctx, "FLASH50")
	if err != nil {
		t.Fatalf("issued count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 issued users, got %d", count)
	}
}

func TestIssueIsIdempotentPerUser(t *testing.T) {
	store, _ := newIssuanceStore(t)
	ctx := context.Background()

	if err := store.Initialize(ctx, "WELCOME", 5, time.Time{}, time.Time{}); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	res, err := store.TryIssue(ctx, "WELCOME", "alice")
	if err != nil || res != domain.IssueSuccess {
		t.Fatalf("first issue: res=%v err=%v", res, err)
	}
	res, err = store.TryIssue(ctx, "WELCOME", "alice")
	if err != nil || res != domain.IssueAlreadyIssued {
		t.Fatalf("second issue: res=%v err=%v", res, err)
	}

	status, err := store.Status(ctx, "WELCOME")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Remaining != 4 {
		t.Fatalf("duplicate claim must not consume stock, remaining=%d", status.Remaining)
	}
}

func TestIssueWhenSoldOut(t *testing.T) {
	store, _ := newIssuanceStore(t)
	ctx := context.Background()

	if err := store.Initialize(ctx, "ONE", 1, time.Time{}, time.Time{}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if res, _ := store.TryIssue(ctx, "ONE", "alice"); res != domain.IssueSuccess {
		t.Fatalf("expected success, got %v", res)
	}
	if res, _ := store.TryIssue(ctx, "ONE", "bob"); res != domain.IssueSoldOut {
		t.Fatalf("expected sold out, got %v", res)
	}
	// 已领取的用户在售罄后仍然拿到幂等结果，而不是 OUT_OF_STOCK
	if res, _ := store.TryIssue(ctx, "ONE", "alice"); res != domain.IssueAlreadyIssued {
		t.Fatalf("expected already issued, got %v", res)
	}
}

func TestRollbackRestoresStockOnce(t *testing.T) {
	store, _ := newIssuanceStore(t)
	ctx := context.Background()

	if err := store.Initialize(ctx, "C", 2, time.Time{}, time.Time{}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if res, _ := store.TryIssue(ctx, "C", "alice"); res != domain.IssueSuccess {
		t.Fatalf("expected success, got %v", res)
	}

	if err := store.Rollback(ctx, "C", "alice"); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	status, _ := store.Status(ctx, "C")
	if status.Remaining != 2 {
		t.Fatalf("expected stock restored to 2, got %d", status.Remaining)
	}

	// 重复补偿是 no-op，不能重复归还库存
	if err := store.Rollback(ctx, "C", "alice"); err != nil {
		t.Fatalf("second rollback: %v", err)
	}
	status, _ = store.Status(ctx, "C")
	if status.Remaining != 2 {
		t.Fatalf("duplicate rollback must not inflate stock, got %d", status.Remaining)
	}

	// 补偿后用户可以重新领取
	if res, _ := store.TryIssue(ctx, "C", "alice"); res != domain.IssueSuccess {
		t.Fatalf("expected re-issue after rollback, got %v", res)
	}
}

func TestStatusUnknownCoupon(t *testing.T) {
	store, _ := newIssuanceStore(t)

	_, err := store.Status(context.Background(), "NOPE")
	if !errors.Is(err, domain.ErrCouponNotFound) {
		t.Fatalf("expected ErrCouponNotFound, got %v", err)
	}
}

func TestInitializeAlignsExpiryWithValidity(t *testing.T) {
	store, mr := newIssuanceStore(t)
	ctx := context.Background()

	until := time.Now().Add(time.Hour)
	if err := store.Initialize(ctx, "TTL", 10, time.Time{}, until); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if mr.TTL(stockKey("TTL")) <= 0 {
		t.Fatal("stock key should expire with the validity window")
	}
	if mr.TTL(issuedKey("TTL")) <= mr.TTL(stockKey("TTL")) {
		t.Fatal("issued set should outlive the stock key for auditing")
	}

	status, err := store.Status(ctx, "TTL")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.ValidUntil.Equal(until.Truncate(time.Millisecond)) {
		t.Fatalf("valid_until mismatch: got %v want %v", status.ValidUntil, until)
	}
}

func TestAddStockKeepsAccounting(t *testing.T) {
	store, _ := newIssuanceStore(t)
	ctx := context.Background()

	if err := store.Initialize(ctx, "TOPUP", 1, time.Time{}, time.Time{}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if res, _ := store.TryIssue(ctx, "TOPUP", "alice"); res != domain.IssueSuccess {
		t.Fatalf("expected success, got %v", res)
	}

	if err := store.AddStock(ctx, "TOPUP", 5); err != nil {
		t.Fatalf("add stock: %v", err)
	}
	status, err := store.Status(ctx, "TOPUP")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Remaining != 5 || status.TotalQuantity != 6 {
		t.Fatalf("expected remaining=5 total=6, got %d / %d", status.Remaining, status.TotalQuantity)
	}
}

func TestTeardownRemovesAllState(t *testing.T) {
	store, _ := newIssuanceStore(t)
	ctx := context.Background()

	if err := store.Initialize(ctx, "GONE", 1, time.Time{}, time.Time{}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := store.Teardown(ctx, "GONE"); err != nil {
		t.Fatalf("teardown: %v", err)
	}
	if _, err := store.Status(ctx, "GONE"); !errors.Is(err, domain.ErrCouponNotFound) {
		t.Fatalf("expected ErrCouponNotFound after teardown, got %v", err)
	}
}
