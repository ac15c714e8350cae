package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"flashmart/internal/pkg/lock"
	"flashmart/internal/pkg/redis"
)

func newGuard(t *testing.T, opts Options) (*Guard, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redis.NewClient(redis.Options{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("new redis client: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	locker, err := lock.NewRedisLocker(client, 3*time.Second, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("new locker: %v", err)
	}

	g := NewGuard(client, locker, opts)
	// 测试默认关闭概率性刷新，需要时单独打开
	g.randFloat = func() float64 { return 1 }
	return g, mr
}

func TestGetOrLoadPopulatesCache(t *testing.T) {
	g, mr := newGuard(t, Options{})
	ctx := context.Background()

	var calls int32
	loader := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "v1", nil
	}

	val, err := g.GetOrLoad(ctx, "products", "42", time.Minute, loader)
	if err != nil || val != "v1" {
		t.Fatalf("first load: val=%q err=%v", val, err)
	}
	if cached, _ := mr.Get("cache:products:42"); cached != "v1" {
		t.Fatalf("value should be cached, got %q", cached)
	}

	// 命中路径不再回源
	val, err = g.GetOrLoad(ctx, "products", "42", time.Minute, loader)
	if err != nil || val != "v1" {
		t.Fatalf("cached read: val=%q err=%v", val, err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected 1 loader call, got %d", calls)
	}
}

func TestConcurrentMissesCollapseToOneLoad(t *testing.T) {
	g, _ := newGuard(t, Options{})
	ctx := context.Background()

	var calls int32
	loader := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(50 * time.Millisecond)
		return "hot", nil
	}

	const readers = 20
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			val, err := g.GetOrLoad(ctx, "ranking", "daily:10", time.Minute, loader)
			if err != nil || val != "hot" {
				t.Errorf("read: val=%q err=%v", val, err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("stampede not suppressed: %d loader calls", got)
	}
}

func TestFailedLoadIsNotCached(t *testing.T) {
	g, mr := newGuard(t, Options{})
	ctx := context.Background()

	boom := errors.New("upstream down")
	_, err := g.GetOrLoad(ctx, "products", "42", time.Minute, func(ctx context.Context) (string, error) {
		return "", boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}
	if mr.Exists("cache:products:42") {
		t.Fatal("failed load must not populate the cache")
	}

	// 上游恢复后立即可用，没有负缓存挡路
	val, err := g.GetOrLoad(ctx, "products", "42", time.Minute, func(ctx context.Context) (string, error) {
		return "recovered", nil
	})
	if err != nil || val != "recovered" {
		t.Fatalf("recovery load: val=%q err=%v", val, err)
	}
}

func TestLoserFallsBackToDirectLoad(t *testing.T) {
	g, mr := newGuard(t, Options{WaitInterval: 20 * time.Millisecond})
	ctx := context.Background()

	// 用另一个实例的锁占住回源锁，模拟回源者卡死
	holderClient, err := redis.NewClient(redis.Options{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("new redis client: %v", err)
	}
	defer holderClient.Close()
	holder, err := lock.NewRedisLocker(holderClient, 3*time.Second, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("new locker: %v", err)
	}
	ok, err := holder.TryLock(ctx, "cache:products:42:load", time.Minute)
	if err != nil || !ok {
		t.Fatalf("pre-acquire load lock: ok=%v err=%v", ok, err)
	}

	var calls int32
	val, err := g.GetOrLoad(ctx, "products", "42", time.Minute, func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "direct", nil
	})
	if err != nil || val != "direct" {
		t.Fatalf("fallback load: val=%q err=%v", val, err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly one fallback loader call, got %d", calls)
	}
	// 兜底回源不写缓存，填充权留给锁的持有者
	if mr.Exists("cache:products:42") {
		t.Fatal("fallback load must not populate the cache")
	}
}

func TestEarlyRefreshRepopulatesBeforeExpiry(t *testing.T) {
	g, mr := newGuard(t, Options{
		RefreshThreshold:   0.5,
		RefreshProbability: 1,
	})
	g.randFloat = func() float64 { return 0 }
	ctx := context.Background()

	if _, err := g.GetOrLoad(ctx, "products", "42", time.Second, func(ctx context.Context) (string, error) {
		return "v1", nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// 剩余 TTL 掉进阈值区间
	mr.FastForward(600 * time.Millisecond)

	val, err := g.GetOrLoad(ctx, "products", "42", time.Second, func(ctx context.Context) (string, error) {
		return "v2", nil
	})
	if err != nil || val != "v1" {
		t.Fatalf("hit should serve the current value: val=%q err=%v", val, err)
	}

	// 刷新是异步的，轮询等待新值落地
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cached, _ := mr.Get("cache:products:42"); cached == "v2" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("early refresh did not repopulate the cache")
}

func TestEarlyRefreshSkippedWhenTTLHealthy(t *testing.T) {
	g, mr := newGuard(t, Options{
		RefreshThreshold:   0.1,
		RefreshProbability: 1,
	})
	g.randFloat = func() float64 { return 0 }
	ctx := context.Background()

	if _, err := g.GetOrLoad(ctx, "products", "42", time.Minute, func(ctx context.Context) (string, error) {
		return "v1", nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := g.GetOrLoad(ctx, "products", "42", time.Minute, func(ctx context.Context) (string, error) {
		return "v2", nil
	}); err != nil {
		t.Fatalf("hit: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if cached, _ := mr.Get("cache:products:42"); cached != "v1" {
		t.Fatalf("healthy entry must not be refreshed, got %q", cached)
	}
}

func TestInvalidate(t *testing.T) {
	g, mr := newGuard(t, Options{})
	ctx := context.Background()

	if _, err := g.GetOrLoad(ctx, "products", "42", time.Minute, func(ctx context.Context) (string, error) {
		return "v1", nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := g.Invalidate(ctx, "products", "42"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if mr.Exists("cache:products:42") {
		t.Fatal("entry should be gone after invalidate")
	}
}
