package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ключи в Redis:
//
//	lr:ip:<ip> / lr:email:<email>   - счетчики попыток в окне
//	lrv:ip:<ip> / lrv:email:<email> - счетчики нарушений
//	lrb:ip:<ip> / lrb:email:<email> - флаги строгой блокировки
const (
	attemptPrefix   = "lr"
	violationPrefix = "lrv"
	blockPrefix     = "lrb"
)

// Policy - параметры лимитера. Нулевые поля заполняются в New.
type Policy struct {
	MaxAttempts     int           // попыток в окне до блокировки
	Window          time.Duration // ширина окна счетчика
	StrictThreshold int           // нарушений до строгой блокировки
	StrictBlock     time.Duration // длительность строгой блокировки
	StoreTimeout    time.Duration // бюджет на каждую операцию с Redis
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     10,
		Window:          15 * time.Minute,
		StrictThreshold: 3,
		StrictBlock:     24 * time.Hour,
		StoreTimeout:    500 * time.Millisecond,
	}
}

// Result - решение лимитера по одной паре (ip, email).
type Result struct {
	Allowed       bool
	Limit         int
	Remaining     int
	ResetAt       time.Time
	RetryAfter    time.Duration
	StrictBlocked bool
}

// Limiter считает неудачные попытки входа по IP и по email независимо:
// превышение любого из двух счетчиков блокирует запрос. Повторные
// попытки во время блокировки копят нарушения, а достигнув порога
// включают строгую блокировку на сутки.
type Limiter struct {
	rdb    *redis.Client
	policy Policy
}

func New(rdb *redis.Client, policy Policy) *Limiter {
	def := DefaultPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.Window <= 0 {
		policy.Window = def.Window
	}
	if policy.StrictThreshold <= 0 {
		policy.StrictThreshold = def.StrictThreshold
	}
	if policy.StrictBlock <= 0 {
		policy.StrictBlock = def.StrictBlock
	}
	if policy.StoreTimeout <= 0 {
		policy.StoreTimeout = def.StoreTimeout
	}
	return &Limiter{rdb: rdb, policy: policy}
}

func key(prefix, kind, value string) string {
	return fmt.Sprintf("%s:%s:%s", prefix, kind, strings.ToLower(value))
}

// Check проверяет обе оси до обращения к учетным данным. При недоступном
// Redis возвращает ошибку: лимитер отказывает закрыто, вход без учета
// попыток невозможен.
func (l *Limiter) Check(ctx context.Context, ip, email string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, l.policy.StoreTimeout)
	defer cancel()

	ipRes, err := l.checkAxis(ctx, "ip", ip)
	if err != nil {
		return nil, fmt.Errorf("rate limit check (ip): %w", err)
	}
	emailRes, err := l.checkAxis(ctx, "email", email)
	if err != nil {
		return nil, fmt.Errorf("rate limit check (email): %w", err)
	}

	// Отдаем более строгий из двух вердиктов
	if !ipRes.Allowed && !emailRes.Allowed {
		if ipRes.RetryAfter >= emailRes.RetryAfter {
			return ipRes, nil
		}
		return emailRes, nil
	}
	if !ipRes.Allowed {
		return ipRes, nil
	}
	if !emailRes.Allowed {
		return emailRes, nil
	}
	if ipRes.Remaining <= emailRes.Remaining {
		return ipRes, nil
	}
	return emailRes, nil
}

func (l *Limiter) checkAxis(ctx context.Context, kind, value string) (*Result, error) {
	res := &Result{Allowed: true, Limit: l.policy.MaxAttempts, Remaining: l.policy.MaxAttempts}

	blockTTL, err := l.rdb.TTL(ctx, key(blockPrefix, kind, value)).Result()
	if err != nil {
		return nil, err
	}
	if blockTTL > 0 {
		res.Allowed = false
		res.StrictBlocked = true
		res.Remaining = 0
		res.RetryAfter = blockTTL
		res.ResetAt = time.Now().Add(blockTTL)
		return res, nil
	}

	count, err := l.rdb.Get(ctx, key(attemptPrefix, kind, value)).Int()
	if err == redis.Nil {
		res.ResetAt = time.Now().Add(l.policy.Window)
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	ttl, err := l.rdb.TTL(ctx, key(attemptPrefix, kind, value)).Result()
	if err != nil {
		return nil, err
	}
	if ttl < 0 {
		ttl = l.policy.Window
	}
	res.ResetAt = time.Now().Add(ttl)
	res.Remaining = l.policy.MaxAttempts - count
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if count >= l.policy.MaxAttempts {
		res.Allowed = false
		res.RetryAfter = ttl
	}
	return res, nil
}

// RecordFailure учитывает неудачную попытку входа по обеим осям.
// Попытка поверх уже исчерпанного лимита считается нарушением;
// StrictThreshold нарушений включают строгую блокировку.
func (l *Limiter) RecordFailure(ctx context.Context, ip, email string) error {
	ctx, cancel := context.WithTimeout(ctx, l.policy.StoreTimeout)
	defer cancel()

	if err := l.recordAxis(ctx, "ip", ip); err != nil {
		return fmt.Errorf("rate limit record (ip): %w", err)
	}
	if err := l.recordAxis(ctx, "email", email); err != nil {
		return fmt.Errorf("rate limit record (email): %w", err)
	}
	return nil
}

func (l *Limiter) recordAxis(ctx context.Context, kind, value string) error {
	attemptKey := key(attemptPrefix, kind, value)

	count, err := l.rdb.Incr(ctx, attemptKey).Result()
	if err != nil {
		return err
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, attemptKey, l.policy.Window).Err(); err != nil {
			return err
		}
	}

	if count <= int64(l.policy.MaxAttempts) {
		return nil
	}

	// Попытка сверх лимита - нарушение
	violationKey := key(violationPrefix, kind, value)
	violations, err := l.rdb.Incr(ctx, violationKey).Result()
	if err != nil {
		return err
	}
	if violations == 1 {
		if err := l.rdb.Expire(ctx, violationKey, l.policy.StrictBlock).Err(); err != nil {
			return err
		}
	}

	if violations >= int64(l.policy.StrictThreshold) {
		if err := l.rdb.Set(ctx, key(blockPrefix, kind, value), 1, l.policy.StrictBlock).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Reset сбрасывает счетчики после успешного входа. Строгая блокировка
// не снимается: она истекает только по TTL.
func (l *Limiter) Reset(ctx context.Context, ip, email string) error {
	ctx, cancel := context.WithTimeout(ctx, l.policy.StoreTimeout)
	defer cancel()

	keys := []string{
		key(attemptPrefix, "ip", ip),
		key(attemptPrefix, "email", email),
		key(violationPrefix, "ip", ip),
		key(violationPrefix, "email", email),
	}
	if err := l.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("rate limit reset: %w", err)
	}
	return nil
}
