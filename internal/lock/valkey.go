package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"
)

const (
	DefaultLockTTL   = 30 * time.Second
	defaultRetryWait = 100 * time.Millisecond
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by another process is never released by us.
var releaseScript = valkey.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ValkeyLocker is a Locker shared by every process pointing at the same
// valkey instance.
type ValkeyLocker struct {
	client    valkey.Client
	prefix    string
	ttl       time.Duration
	retryWait time.Duration
}

func NewValkeyLocker(client valkey.Client, prefix string, ttl time.Duration) *ValkeyLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &ValkeyLocker{
		client:    client,
		prefix:    prefix,
		ttl:       ttl,
		retryWait: defaultRetryWait,
	}
}

// NewValkeyClient dials uri (valkey:// or redis://) and pings it.
func NewValkeyClient(ctx context.Context, uri string) (valkey.Client, error) {
	opts, err := valkey.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid valkey uri: %w", err)
	}

	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping valkey: %w", err)
	}
	return client, nil
}

func (l *ValkeyLocker) Lock(ctx context.Context, key string) (func(), error) {
	fullKey := l.prefix + key
	token := uuid.NewString()

	for {
		cmd := l.client.B().Set().Key(fullKey).Value(token).Nx().Px(l.ttl).Build()
		err := l.client.Do(ctx, cmd).Error()
		if err == nil {
			break
		}
		if !valkey.IsValkeyNil(err) {
			slog.Info(err.Error())
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryWait):
		}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Exec(ctx, l.client, []string{fullKey}, []string{token}).Error(); err != nil {
			slog.Info(err.Error())
		}
	}, nil
}
