package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, policy Policy) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return New(rdb, policy), mr
}

func TestCheckAllowsFreshPair(t *testing.T) {
	l, _ := newTestLimiter(t, Policy{MaxAttempts: 5})
	ctx := context.Background()

	verdict, err := l.Check(ctx, "1.2.3.4", "user@example.com")
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)
	assert.Equal(t, 5, verdict.Limit)
	assert.Equal(t, 5, verdict.Remaining)
}

func TestRemainingDecreasesWithFailures(t *testing.T) {
	l, _ := newTestLimiter(t, Policy{MaxAttempts: 5})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, l.RecordFailure(ctx, "1.2.3.4", "user@example.com"))
		verdict, err := l.Check(ctx, "1.2.3.4", "user@example.com")
		require.NoError(t, err)
		assert.True(t, verdict.Allowed)
		assert.Equal(t, 5-i, verdict.Remaining)
	}
}

func TestBlocksAfterMaxAttempts(t *testing.T) {
	l, _ := newTestLimiter(t, Policy{MaxAttempts: 3, Window: 15 * time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.RecordFailure(ctx, "1.2.3.4", "user@example.com"))
	}

	verdict, err := l.Check(ctx, "1.2.3.4", "user@example.com")
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, 0, verdict.Remaining)
	assert.Greater(t, verdict.RetryAfter, time.Duration(0))
	assert.False(t, verdict.StrictBlocked)
}

func TestAxesAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, Policy{MaxAttempts: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.RecordFailure(ctx, "1.2.3.4", "victim@example.com"))
	}

	// Тот же email с другого IP остается заблокированным
	verdict, err := l.Check(ctx, "5.6.7.8", "victim@example.com")
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)

	// Тот же IP с другим email тоже: счетчик IP исчерпан
	verdict, err = l.Check(ctx, "1.2.3.4", "other@example.com")
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)

	// Чужая пара не затронута
	verdict, err = l.Check(ctx, "5.6.7.8", "other@example.com")
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)
}

func TestWindowExpiryUnblocks(t *testing.T) {
	l, mr := newTestLimiter(t, Policy{MaxAttempts: 3, Window: 15 * time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.RecordFailure(ctx, "1.2.3.4", "user@example.com"))
	}
	verdict, err := l.Check(ctx, "1.2.3.4", "user@example.com")
	require.NoError(t, err)
	require.False(t, verdict.Allowed)

	mr.FastForward(16 * time.Minute)

	verdict, err = l.Check(ctx, "1.2.3.4", "user@example.com")
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)
	assert.Equal(t, 3, verdict.Remaining)
}

func TestStrictBlockAfterRepeatedViolations(t *testing.T) {
	l, mr := newTestLimiter(t, Policy{MaxAttempts: 3, Window: 15 * time.Minute, StrictThreshold: 3, StrictBlock: 24 * time.Hour})
	ctx := context.Background()

	// Исчерпываем окно, затем продолжаем долбить: каждая попытка сверх
	// лимита - нарушение
	for i := 0; i < 3+3; i++ {
		require.NoError(t, l.RecordFailure(ctx, "1.2.3.4", "user@example.com"))
	}

	verdict, err := l.Check(ctx, "1.2.3.4", "user@example.com")
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)
	assert.True(t, verdict.StrictBlocked)

	// Строгая блокировка переживает окно обычного счетчика
	mr.FastForward(time.Hour)
	verdict, err = l.Check(ctx, "1.2.3.4", "user@example.com")
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)
	assert.True(t, verdict.StrictBlocked)

	// И истекает по своему TTL
	mr.FastForward(24 * time.Hour)
	verdict, err = l.Check(ctx, "1.2.3.4", "user@example.com")
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)
}

func TestResetClearsCountersButNotStrictBlock(t *testing.T) {
	l, _ := newTestLimiter(t, Policy{MaxAttempts: 3, StrictThreshold: 2})
	ctx := context.Background()

	require.NoError(t, l.RecordFailure(ctx, "1.2.3.4", "user@example.com"))
	require.NoError(t, l.RecordFailure(ctx, "1.2.3.4", "user@example.com"))
	require.NoError(t, l.Reset(ctx, "1.2.3.4", "user@example.com"))

	verdict, err := l.Check(ctx, "1.2.3.4", "user@example.com")
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)
	assert.Equal(t, 3, verdict.Remaining)

	// Доводим до строгой блокировки: Reset ее не снимает
	for i := 0; i < 3+2; i++ {
		require.NoError(t, l.RecordFailure(ctx, "1.2.3.4", "user@example.com"))
	}
	verdict, err = l.Check(ctx, "1.2.3.4", "user@example.com")
	require.NoError(t, err)
	require.True(t, verdict.StrictBlocked)

	require.NoError(t, l.Reset(ctx, "1.2.3.4", "user@example.com"))
	verdict, err = l.Check(ctx, "1.2.3.4", "user@example.com")
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)
	assert.True(t, verdict.StrictBlocked)
}

func TestFailsClosedWhenStoreDown(t *testing.T) {
	l, mr := newTestLimiter(t, Policy{MaxAttempts: 3, StoreTimeout: 200 * time.Millisecond})
	mr.Close()

	_, err := l.Check(context.Background(), "1.2.3.4", "user@example.com")
	assert.Error(t, err)
	assert.Error(t, l.RecordFailure(context.Background(), "1.2.3.4", "user@example.com"))
}

func TestEmailKeysAreCaseInsensitive(t *testing.T) {
	l, _ := newTestLimiter(t, Policy{MaxAttempts: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.RecordFailure(ctx, "1.2.3.4", "User@Example.com"))
	}

	verdict, err := l.Check(ctx, "5.6.7.8", "user@example.com")
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)
}
