package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"flashmart/internal/pkg/redis"
	"flashmart/internal/service/ranking/domain"
)

func newRankingStore(t *testing.T) (*RankingRedisAdapter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redis.NewClient(redis.Options{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("new redis client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewRankingRedisAdapter(client), mr
}

func TestIncrementAndTopN(t *testing.T) {
	store, _ := newRankingStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := store.IncrementScore(ctx, "p1", 1, now); err != nil {
			t.Fatalf("increment p1: %v", err)
		}
	}
	if err := store.IncrementScore(ctx, "p2", 5, now); err != nil {
		t.Fatalf("increment p2: %v", err)
	}
	if err := store.IncrementScore(ctx, "p3", 1, now); err != nil {
		t.Fatalf("increment p3: %v", err)
	}

	top, err := store.TopN(ctx, domain.WindowDaily, 2, now)
	if err != nil {
		t.Fatalf("topn: %v", err)
	}
	if len(top) != 2 || top[0].ProductID != "p2" || top[1].ProductID != "p1" {
		t.Fatalf("unexpected top-2: %+v", top)
	}
	if top[0].Score != 5 || top[1].Score != 3 {
		t.Fatalf("unexpected scores: %+v", top)
	}

	// 同一笔写入也进入周榜
	top, err = store.TopN(ctx, domain.WindowWeekly, 3, now)
	if err != nil {
		t.Fatalf("weekly topn: %v", err)
	}
	if len(top) != 3 || top[0].ProductID != "p2" {
		t.Fatalf("unexpected weekly top: %+v", top)
	}
}

func TestRankOf(t *testing.T) {
	store, _ := newRankingStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	if err := store.IncrementScore(ctx, "p1", 10, now); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := store.IncrementScore(ctx, "p2", 20, now); err != nil {
		t.Fatalf("increment: %v", err)
	}

	rank, ok, err := store.RankOf(ctx, domain.WindowDaily, "p1", now)
	if err != nil || !ok || rank != 2 {
		t.Fatalf("p1: rank=%d ok=%v err=%v", rank, ok, err)
	}
	rank, ok, err = store.RankOf(ctx, domain.WindowDaily, "ghost", now)
	if err != nil {
		t.Fatalf("ghost: %v", err)
	}
	if ok || rank != 0 {
		t.Fatalf("unranked product should report ok=false, got rank=%d ok=%v", rank, ok)
	}
}

func TestWindowsAreSegregatedByDate(t *testing.T) {
	store, _ := newRankingStore(t)
	ctx := context.Background()

	monday := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	tuesday := monday.Add(24 * time.Hour)

	if err := store.IncrementScore(ctx, "p1", 1, monday); err != nil {
		t.Fatalf("increment: %v", err)
	}

	// 第二天的日榜是空的，周榜还能看到昨天的分
	top, err := store.TopN(ctx, domain.WindowDaily, 10, tuesday)
	if err != nil {
		t.Fatalf("daily topn: %v", err)
	}
	if len(top) != 0 {
		t.Fatalf("tuesday daily board should be empty, got %+v", top)
	}
	top, err = store.TopN(ctx, domain.WindowWeekly, 10, tuesday)
	if err != nil {
		t.Fatalf("weekly topn: %v", err)
	}
	if len(top) != 1 || top[0].ProductID != "p1" {
		t.Fatalf("weekly board should carry monday's score, got %+v", top)
	}
}

func TestWindowKeysExpire(t *testing.T) {
	store, mr := newRankingStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	if err := store.IncrementScore(ctx, "p1", 1, now); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if mr.TTL(dailyKey(now)) <= 0 {
		t.Fatal("daily window should carry a retention TTL")
	}
	if mr.TTL(weeklyKey(now)) <= mr.TTL(dailyKey(now)) {
		t.Fatal("weekly window should outlive the daily window")
	}

	mr.FastForward(dailyRetention + time.Minute)
	top, err := store.TopN(ctx, domain.WindowDaily, 10, now)
	if err != nil {
		t.Fatalf("topn after expiry: %v", err)
	}
	if len(top) != 0 {
		t.Fatalf("expired window should be empty, got %+v", top)
	}
}

func TestIncrementDoesNotExtendRetention(t *testing.T) {
	store, mr := newRankingStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	if err := store.IncrementScore(ctx, "p1", 1, now); err != nil {
		t.Fatalf("increment: %v", err)
	}
	mr.FastForward(time.Hour)
	if err := store.IncrementScore(ctx, "p2", 1, now); err != nil {
		t.Fatalf("increment: %v", err)
	}

	if ttl := mr.TTL(dailyKey(now)); ttl > dailyRetention-time.Hour {
		t.Fatalf("later writes must not refresh the window TTL, got %v", ttl)
	}
}

func TestRefreshWindowExpiry(t *testing.T) {
	store, mr := newRankingStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	if err := store.IncrementScore(ctx, "p1", 1, now); err != nil {
		t.Fatalf("increment: %v", err)
	}
	mr.FastForward(2 * time.Hour)

	if err := store.RefreshWindowExpiry(ctx, now); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if ttl := mr.TTL(dailyKey(now)); ttl != dailyRetention {
		t.Fatalf("expected retention reset to %v, got %v", dailyRetention, ttl)
	}
}
