package utils

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/betareaderbr/betareader/config"
)

var (
	ErrRegisterBanned     = errors.New("muitas tentativas de cadastro, tente novamente mais tarde")
	ErrRegisterCooldown   = errors.New("aguarde alguns segundos antes de tentar novamente")
	ErrRegisterDailyLimit = errors.New("limite diário de cadastros atingido para este endereço")
)

func regKey(parts ...string) string {
	return "reg:" + strings.Join(parts, ":")
}

// CheckRegistration runs the per-IP ban, cooldown and daily limit checks.
// Without Redis every check passes.
func CheckRegistration(ctx context.Context, ip string) error {
	rc := GetRedis()
	if rc == nil {
		return nil
	}
	cfg := config.Get()
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	if n, err := rc.Exists(ctx, regKey("ban", ip)).Result(); err == nil && n > 0 {
		return ErrRegisterBanned
	}
	if sec := cfg.RegisterAttemptCooldownSec; sec > 0 {
		ok, err := rc.SetNX(ctx, regKey("cooldown", ip), "1", time.Duration(sec)*time.Second).Result()
		if err == nil && !ok {
			return ErrRegisterCooldown
		}
	}
	if limit := cfg.RegisterMaxPerIPPerDay; limit > 0 {
		n, err := rc.Get(ctx, regKey("succday", ip, time.Now().Format("20060102"))).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil
		}
		if n >= limit {
			return ErrRegisterDailyLimit
		}
	}
	return nil
}

// RecordRegistrationSuccess counts a successful registration for today.
func RecordRegistrationSuccess(ctx context.Context, ip string) {
	rc := GetRedis()
	if rc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	key := regKey("succday", ip, time.Now().Format("20060102"))
	if err := rc.Incr(ctx, key).Err(); err == nil {
		_ = rc.Expire(ctx, key, 24*time.Hour).Err()
	}
}

// RecordRegistrationFailure counts a failed attempt and bans the IP once the
// hourly limit is exceeded.
func RecordRegistrationFailure(ctx context.Context, ip string) {
	rc := GetRedis()
	if rc == nil {
		return
	}
	cfg := config.Get()
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	key := regKey("failhour", ip, time.Now().Format("2006010215"))
	n, err := rc.Incr(ctx, key).Result()
	if err != nil {
		return
	}
	_ = rc.Expire(ctx, key, time.Hour).Err()
	if max := cfg.RegisterFailedMaxPerIPPerHour; max > 0 && int(n) > max {
		minutes := cfg.RegisterTempBanMinutes
		if minutes <= 0 {
			minutes = 60
		}
		_ = rc.Set(ctx, regKey("ban", ip), "1", time.Duration(minutes)*time.Minute).Err()
		Sugar.Warnf("registration temporarily banned ip=%s failures=%d", ip, n)
	}
}
