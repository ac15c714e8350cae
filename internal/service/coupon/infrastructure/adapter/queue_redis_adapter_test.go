package adapter

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"flashmart/internal/pkg/redis"
)

func newQueue(t *testing.T) *QueueRedisAdapter {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redis.NewClient(redis.Options{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("new redis client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewQueueRedisAdapter(client)
}

func TestEnqueueOrdersByArrival(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	base := time.Now()
	clock := base
	q.now = func() time.Time { return clock }

	for i, user := range []string{"alice", "bob", "carol"} {
		clock = base.Add(time.Duration(i) * time.Millisecond)
		rank, err := q.Enqueue(ctx, "FLASH", user)
		if err != nil {
			t.Fatalf("enqueue %s: %v", user, err)
		}
		if rank != int64(i+1) {
			t.Fatalf("expected rank %d for %s, got %d", i+1, user, rank)
		}
	}

	users, err := q.Peek(ctx, "FLASH", 10)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if !reflect.DeepEqual(users, []string{"alice", "bob", "carol"}) {
		t.Fatalf("unexpected order: %v", users)
	}
}

func TestEnqueueDuplicateKeepsOriginalSlot(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	base := time.Now()
	clock := base
	q.now = func() time.Time { return clock }

	if _, err := q.Enqueue(ctx, "FLASH", "alice"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	clock = base.Add(time.Millisecond)
	if _, err := q.Enqueue(ctx, "FLASH", "bob"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// alice 重复入队，不能刷新排队时间挤到 bob 后面
	clock = base.Add(2 * time.Millisecond)
	rank, err := q.Enqueue(ctx, "FLASH", "alice")
	if err != nil {
		t.Fatalf("re-enqueue: %v", err)
	}
	if rank != 1 {
		t.Fatalf("duplicate enqueue should return the original rank 1, got %d", rank)
	}
}

func TestRankAndLen(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, "FLASH", "alice"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	rank, err := q.Rank(ctx, "FLASH", "alice")
	if err != nil || rank != 1 {
		t.Fatalf("rank: got %d err=%v", rank, err)
	}
	rank, err = q.Rank(ctx, "FLASH", "ghost")
	if err != nil || rank != 0 {
		t.Fatalf("absent user should rank 0, got %d err=%v", rank, err)
	}

	n, err := q.Len(ctx, "FLASH")
	if err != nil || n != 1 {
		t.Fatalf("len: got %d err=%v", n, err)
	}
}

func TestActiveCodesTracksNonEmptyQueues(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, "A", "alice"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Enqueue(ctx, "B", "bob"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	codes, err := q.ActiveCodes(ctx)
	if err != nil {
		t.Fatalf("active codes: %v", err)
	}
	if len(codes) != 2 {
		t.Fatalf("expected 2 active codes, got %v", codes)
	}

	if err := q.Remove(ctx, "A", "alice"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	codes, err = q.ActiveCodes(ctx)
	if err != nil {
		t.Fatalf("active codes: %v", err)
	}
	if len(codes) != 1 || codes[0] != "B" {
		t.Fatalf("drained queue should drop out of the index, got %v", codes)
	}
}

func TestActiveCodesEmpty(t *testing.T) {
	q := newQueue(t)

	codes, err := q.ActiveCodes(context.Background())
	if err != nil {
		t.Fatalf("active codes: %v", err)
	}
	if len(codes) != 0 {
		t.Fatalf("expected no active codes, got %v", codes)
	}
}
