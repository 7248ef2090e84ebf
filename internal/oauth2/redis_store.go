package oauth2

import (
	"context"
	stderrors "errors"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"restify/internal/common/errors"
	"restify/internal/crypto"
)

// RedisKeyPrefix namespaces authorization state keys.
const RedisKeyPrefix = "restify:oauth2:state:"

// RedisStore shares the State of a context between processes through Redis.
// Values are sealed. Keys expire one day after the access token does, capped
// at the default TTL.
type RedisStore struct {
	client goredis.Cmdable
	sealer *crypto.Sealer
	key    string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore creates a store keeping the State of context name under RedisKeyPrefix+name.
func NewRedisStore(client goredis.Cmdable, name string, sealer *crypto.Sealer) (*RedisStore, error) {
	if client == nil {
		return nil, errors.ValidationError("redis client is required")
	}
	if sealer == nil {
		return nil, errors.ValidationError("sealer is required")
	}
	if name == "" {
		return nil, errors.ValidationError("context name is required")
	}

	return &RedisStore{
		client: client,
		sealer: sealer,
		key:    RedisKeyPrefix + name,
		ttl:    30 * 24 * time.Hour,
		now:    time.Now,
	}, nil
}

// Key returns the redis key the State is kept under.
func (r *RedisStore) Key() string {
	return r.key
}

func (r *RedisStore) TryRestore(ctx context.Context) (*State, bool, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if stderrors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, errors.ConnectionError("failed to load authorization state", err)
	}

	var state State
	if err := r.sealer.OpenJSON(data, &state); err != nil {
		return nil, false, errors.InternalError("failed to open authorization state", err)
	}
	if state.Scopes == nil {
		state.Scopes = []string{}
	}

	return &state, true, nil
}

func (r *RedisStore) Store(ctx context.Context, state *State) error {
	if state == nil {
		return errors.ValidationError("state cannot be nil")
	}

	data, err := r.sealer.SealJSON(state)
	if err != nil {
		return errors.InternalError("failed to seal authorization state", err)
	}

	if err := r.client.Set(ctx, r.key, data, r.expiration(state)).Err(); err != nil {
		return errors.ConnectionError("failed to store authorization state", err)
	}
	return nil
}

// expiration keeps a refresh token around for a day after the access token expires.
func (r *RedisStore) expiration(state *State) time.Duration {
	ttl := r.ttl
	if !state.ExpiresAt.IsZero() {
		stateTTL := state.ExpiresAt.Sub(r.now()) + 24*time.Hour
		if stateTTL > 0 && stateTTL < ttl {
			ttl = stateTTL
		}
	}
	return ttl
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return errors.ConnectionError("failed to clear authorization state", err)
	}
	return nil
}
