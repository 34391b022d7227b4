package credstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jrsteele09/betul-abla-portal/identity"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

const slotExpiry = "expiry"

type redisBackend struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// NewRedisStore keeps one session's slots in a single Redis hash. A zero ttl
// leaves the hash without expiry.
func NewRedisStore(client redis.Cmdable, namespace string, ttl time.Duration) (Store, error) {
	if namespace == "" {
		return nil, fmt.Errorf("[credstore NewRedisStore] namespace is required")
	}
	return newDocStore(&redisBackend{
		client: client,
		key:    fmt.Sprintf("portal:credentials:%s", namespace),
		ttl:    ttl,
	}), nil
}

func (r *redisBackend) read(ctx context.Context) (*document, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}

	doc := &document{}
	if access, refresh := fields[SlotAccessToken], fields[SlotRefreshToken]; access != "" || refresh != "" {
		tok := &oauth2.Token{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer"}
		if exp := fields[slotExpiry]; exp != "" {
			if t, err := time.Parse(time.RFC3339, exp); err == nil {
				tok.Expiry = t
			}
		}
		doc.Token = tok
	}
	if blob := fields[SlotCachedIdentity]; blob != "" {
		id := &identity.Identity{}
		if err := json.Unmarshal([]byte(blob), id); err != nil {
			return nil, fmt.Errorf("decode cached identity: %w", err)
		}
		doc.Identity = id
	}
	return doc, nil
}

// write replaces the whole hash inside MULTI/EXEC.
func (r *redisBackend) write(ctx context.Context, doc *document) error {
	values := map[string]any{}
	if doc.Token != nil {
		values[SlotAccessToken] = doc.Token.AccessToken
		values[SlotRefreshToken] = doc.Token.RefreshToken
		if !doc.Token.Expiry.IsZero() {
			values[slotExpiry] = doc.Token.Expiry.UTC().Format(time.RFC3339)
		}
	}
	if doc.Identity != nil {
		blob, err := json.Marshal(doc.Identity)
		if err != nil {
			return err
		}
		values[SlotCachedIdentity] = string(blob)
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		if len(values) == 0 {
			return nil
		}
		pipe.HSet(ctx, r.key, values)
		if r.ttl > 0 {
			pipe.Expire(ctx, r.key, r.ttl)
		}
		return nil
	})
	return err
}

func (r *redisBackend) clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}
