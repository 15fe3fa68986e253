package redisx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// extendScript resets the lease only if the lock still holds our token.
var extendScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

type lockClient interface {
	goredis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *goredis.BoolCmd
}

// Locker is a per-session mutex shared by every replica, built on
// SET NX PX. The holder extends the lease every TTL/3 until it unlocks, so
// long evaluator calls keep the lock; a holder that crashes releases it when
// TTL expires.
type Locker struct {
	rdb    lockClient
	prefix string
	TTL    time.Duration
	Retry  time.Duration
}

// NewLocker returns a Locker with a 30s lease polled every 25ms.
func NewLocker(rdb lockClient, prefix string) *Locker {
	return &Locker{rdb: rdb, prefix: prefix, TTL: 30 * time.Second, Retry: 25 * time.Millisecond}
}

// Lock blocks until the session lock is acquired or ctx ends.
func (l *Locker) Lock(ctx context.Context, sessionID string) (func(), error) {
	key := l.prefix + "lock:session:" + sessionID
	token := uuid.NewString()

	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
		ok, err := l.rdb.SetNX(ctx, key, token, l.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", sessionID, err)
		}
		if ok {
			stop, done := make(chan struct{}), make(chan struct{})
			go l.renew(key, token, stop, done)
			var once sync.Once
			return func() {
				once.Do(func() {
					close(stop)
					<-done
					l.release(key, token)
				})
			}, nil
		}
		t.Reset(l.Retry)
	}
}

func (l *Locker) renew(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	every := l.TTL / 3
	if every <= 0 {
		every = time.Millisecond
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), every)
		n, err := extendScript.Run(ctx, l.rdb, []string{key}, token, l.TTL.Milliseconds()).Int64()
		cancel()
		switch {
		case err != nil:
			log.Warn().Err(err).Str("key", key).Msg("redis lock renew failed")
		case n == 0:
			log.Warn().Str("key", key).Msg("redis lock lost before release")
			return
		}
	}
}

func (l *Locker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil && err != goredis.Nil {
		log.Warn().Err(err).Str("key", key).Msg("redis lock release failed")
	}
}
