package kiosk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"checkin/internal/store"
)

const maxTxAttempts = 5

// RedisStore keeps sessions as JSON values under kiosk:session:<token>, with a
// kiosk:device:<kioskID> pointer to the kiosk's latest token. Each mutation runs in a
// WATCH/MULTI transaction on the keys it reads.
//
// Keys outlive ExpiresAt by the retention window so that a late read still reports the
// session as expired instead of unknown.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedisStore creates a store; retention is how long terminal sessions stay readable.
func NewRedisStore(client *redis.Client, retention time.Duration) *RedisStore {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &RedisStore{client: client, prefix: "kiosk:", retention: retention}
}

func (r *RedisStore) sessionKey(token string) string { return r.prefix + "session:" + token }
func (r *RedisStore) deviceKey(kioskID string) string { return r.prefix + "device:" + kioskID }

func (r *RedisStore) keyTTL(sess Session, now time.Time) time.Duration {
	ttl := sess.ExpiresAt.Add(r.retention).Sub(now)
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func (r *RedisStore) Save(ctx context.Context, sess Session) error {
	now := sess.CreatedAt
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	keys := []string{r.sessionKey(sess.Token)}
	if sess.KioskID != "" {
		keys = append(keys, r.deviceKey(sess.KioskID))
	}

	return r.transact(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, r.sessionKey(sess.Token)).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return errTokenCollision
		}

		var prev *Session
		if sess.KioskID != "" {
			prevToken, err := tx.Get(ctx, r.deviceKey(sess.KioskID)).Result()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				if err := tx.Watch(ctx, r.sessionKey(prevToken)).Err(); err != nil {
					return err
				}
				p, err := r.read(ctx, tx, prevToken)
				if err != nil && !errors.Is(err, ErrSessionNotFound) {
					return err
				}
				if err == nil {
					if next, changed := p.end(now); changed {
						prev = &next
					}
				}
			}
		}

		var prevData []byte
		if prev != nil {
			if prevData, err = json.Marshal(prev); err != nil {
				return err
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.sessionKey(sess.Token), data, r.keyTTL(sess, now))
			if prev != nil {
				pipe.Set(ctx, r.sessionKey(prev.Token), prevData, r.keyTTL(*prev, now))
			}
			if sess.KioskID != "" {
				pipe.Set(ctx, r.deviceKey(sess.KioskID), sess.Token, r.keyTTL(sess, now))
			}
			return nil
		})
		return err
	}, keys...)
}

func (r *RedisStore) Load(ctx context.Context, token string, now time.Time) (Session, error) {
	return r.update(ctx, token, now, Session.observe)
}

func (r *RedisStore) End(ctx context.Context, token string, now time.Time) (Session, error) {
	return r.update(ctx, token, now, Session.end)
}

// update reads the session, applies transition and writes it back only when it changed.
func (r *RedisStore) update(ctx context.Context, token string, now time.Time, transition func(Session, time.Time) (Session, bool)) (Session, error) {
	var out Session
	key := r.sessionKey(token)
	err := r.transact(ctx, func(tx *redis.Tx) error {
		sess, err := r.read(ctx, tx, token)
		if err != nil {
			return err
		}
		next, changed := transition(sess, now)
		out = next
		if !changed {
			return nil
		}
		data, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.keyTTL(next, now))
			return nil
		})
		return err
	}, key)
	if err != nil {
		return Session{}, err
	}
	return out, nil
}

func (r *RedisStore) read(ctx context.Context, tx *redis.Tx, token string) (Session, error) {
	raw, err := tx.Get(ctx, r.sessionKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, err
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return sess, nil
}

// transact runs fn under WATCH on keys, retrying when a concurrent writer touched them.
func (r *RedisStore) transact(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := r.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return store.Transient(errors.New("kiosk session contended"))
}
