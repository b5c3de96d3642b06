package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig — параметры выпуска кодов.
type RedisConfig struct {
	Prefix         string
	Length         int
	TTL            time.Duration
	MaxAttempts    int
	ResendCooldown time.Duration
}

// RedisProvider хранит SHA-256 кода в Redis с TTL.
//
// Ключи:
//
//	<prefix>code:<mobile>      — хеш кода, живёт TTL;
//	<prefix>attempts:<mobile>  — счётчик неверных попыток;
//	<prefix>cooldown:<mobile>  — пауза между повторными выпусками.
//
// Верный код удаляется через DEL; успешна только та проверка, чей DEL удалил ключ.
type RedisProvider struct {
	rdb    redis.UniversalClient
	sender Sender
	cfg    RedisConfig
	rand   io.Reader
	now    func() time.Time
}

// NewRedis создаёт провайдер поверх готового клиента Redis.
func NewRedis(rdb redis.UniversalClient, sender Sender, cfg RedisConfig) *RedisProvider {
	if cfg.Length <= 0 {
		cfg.Length = 6
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}

	return &RedisProvider{
		rdb:    rdb,
		sender: sender,
		cfg:    cfg,
		rand:   rand.Reader,
		now:    time.Now,
	}
}

func (p *RedisProvider) codeKey(mobile string) string     { return p.cfg.Prefix + "code:" + mobile }
func (p *RedisProvider) attemptsKey(mobile string) string { return p.cfg.Prefix + "attempts:" + mobile }
func (p *RedisProvider) cooldownKey(mobile string) string { return p.cfg.Prefix + "cooldown:" + mobile }

// Issue выпускает новый код, заменяя предыдущий, и передаёт его Sender.
func (p *RedisProvider) Issue(ctx context.Context, mobile string) (time.Time, error) {
	const op = "otp.RedisProvider.Issue"

	if p.cfg.ResendCooldown > 0 {
		ok, err := p.rdb.SetNX(ctx, p.cooldownKey(mobile), 1, p.cfg.ResendCooldown).Result()
		if err != nil {
			return time.Time{}, fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
		}
		if !ok {
			return time.Time{}, fmt.Errorf("%s: %w", op, ErrCooldown)
		}
	}

	code, err := generateCode(p.rand, p.cfg.Length)
	if err != nil {
		p.rollback(ctx, mobile)
		return time.Time{}, fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}

	_, err = p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, p.codeKey(mobile), hashCode(code), p.cfg.TTL)
		pipe.Del(ctx, p.attemptsKey(mobile))
		return nil
	})
	if err != nil {
		p.rollback(ctx, mobile)
		return time.Time{}, fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}

	if err := p.sender.Send(ctx, mobile, code); err != nil {
		p.rollback(ctx, mobile)
		return time.Time{}, fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}

	return p.now().UTC().Add(p.cfg.TTL), nil
}

// rollback снимает паузу и код, если выпуск не завершился доставкой.
func (p *RedisProvider) rollback(ctx context.Context, mobile string) {
	_ = p.rdb.Del(context.WithoutCancel(ctx), p.codeKey(mobile), p.cooldownKey(mobile)).Err()
}

// Verify проверяет код. После MaxAttempts неверных попыток код сжигается.
func (p *RedisProvider) Verify(ctx context.Context, mobile, code string) (bool, error) {
	const op = "otp.RedisProvider.Verify"

	if code == "" {
		return false, nil
	}

	stored, err := p.rdb.Get(ctx, p.codeKey(mobile)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(hashCode(code))) == 1 {
		n, err := p.rdb.Del(ctx, p.codeKey(mobile)).Result()
		if err != nil {
			return false, fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
		}
		_ = p.rdb.Del(ctx, p.attemptsKey(mobile)).Err()

		return n == 1, nil
	}

	attempts, err := p.rdb.Incr(ctx, p.attemptsKey(mobile)).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	if attempts == 1 {
		_ = p.rdb.Expire(ctx, p.attemptsKey(mobile), p.cfg.TTL).Err()
	}

	if attempts >= int64(p.cfg.MaxAttempts) {
		if err := p.rdb.Del(ctx, p.codeKey(mobile), p.attemptsKey(mobile)).Err(); err != nil {
			return false, fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
		}
	}

	return false, nil
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
