// Package conversationvalkey stores conversation sessions in valkey.
// Records carry a native key TTL matching the session's sliding expiry;
// lookups additionally apply the lazy-expiry rule so a record whose
// expiresAt has passed is never returned even if the key still exists.
package conversationvalkey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/requestline/intake-bot/internal/conversation"
	"github.com/requestline/intake-bot/internal/serviceerr"
)

const objectTypeSession = "session"
const objectTypeSender = "sender"

type Repository struct {
	store *store
}

var _ conversation.Repository = (*Repository)(nil)

func NewRepository(valkeyClient valkey.Client, prefix string) *Repository {
	return &Repository{
		store: newStore(valkeyClient, prefix),
	}
}

func (r *Repository) LoadSession(ctx context.Context, sessionID string) (conversation.Session, error) {
	var sess conversation.Session
	if err := r.store.Get(ctx, objectTypeSession, sessionID, &sess); err != nil {
		if errors.Is(err, serviceerr.ErrNotFound) {
			return conversation.Session{}, serviceerr.ErrNotFound
		}

		return conversation.Session{}, fmt.Errorf("getting session from store: %w", err)
	}

	if sess.Expired(time.Now()) {
		_ = r.store.Destroy(ctx, objectTypeSession, sessionID)
		_ = r.store.Destroy(ctx, objectTypeSender, sess.SenderHash)

		return conversation.Session{}, serviceerr.ErrNotFound
	}

	return sess, nil
}

func (r *Repository) LoadBySender(ctx context.Context, senderHash string) (conversation.Session, error) {
	var sessionID string
	if err := r.store.Get(ctx, objectTypeSender, senderHash, &sessionID); err != nil {
		if errors.Is(err, serviceerr.ErrNotFound) {
			return conversation.Session{}, serviceerr.ErrNotFound
		}

		return conversation.Session{}, fmt.Errorf("getting sender index from store: %w", err)
	}

	sess, err := r.LoadSession(ctx, sessionID)
	if errors.Is(err, serviceerr.ErrNotFound) {
		// The index outlived its session; drop it.
		_ = r.store.Destroy(ctx, objectTypeSender, senderHash)
	}

	return sess, err
}

func (r *Repository) CreateSession(ctx context.Context, sess conversation.Session) error {
	if _, err := r.LoadBySender(ctx, sess.SenderHash); err == nil {
		return serviceerr.ErrConflict
	} else if !errors.Is(err, serviceerr.ErrNotFound) {
		return err
	}

	return r.write(ctx, sess)
}

func (r *Repository) StoreSession(ctx context.Context, sess conversation.Session) error {
	return r.write(ctx, sess)
}

func (r *Repository) write(ctx context.Context, sess conversation.Session) error {
	ttl := ttlSeconds(sess.ExpiresAt)
	if err := r.store.Set(ctx, objectTypeSession, sess.ID, sess, ttl); err != nil {
		return fmt.Errorf("setting session into storage: %w", err)
	}

	if err := r.store.Set(ctx, objectTypeSender, sess.SenderHash, sess.ID, ttl); err != nil {
		return fmt.Errorf("setting sender index into storage: %w", err)
	}

	return nil
}

func (r *Repository) DeleteSession(ctx context.Context, sessionID string) error {
	var sess conversation.Session
	if err := r.store.Get(ctx, objectTypeSession, sessionID, &sess); err != nil {
		if errors.Is(err, serviceerr.ErrNotFound) {
			return serviceerr.ErrNotFound
		}

		return fmt.Errorf("getting session from store: %w", err)
	}

	if err := r.store.Destroy(ctx, objectTypeSession, sessionID); err != nil {
		return fmt.Errorf("deleting session from store: %w", err)
	}

	if err := r.store.Destroy(ctx, objectTypeSender, sess.SenderHash); err != nil {
		return fmt.Errorf("deleting sender index from store: %w", err)
	}

	return nil
}

// SweepExpired removes sessions whose expiresAt has passed but whose keys
// still exist, e.g. records written without a native TTL by older versions.
func (r *Repository) SweepExpired(ctx context.Context) (int, error) {
	var sessions []conversation.Session
	if err := getStoreObjects(ctx, r.store, objectTypeSession, "*", &sessions); err != nil {
		return 0, fmt.Errorf("getting sessions from store: %w", err)
	}

	now := time.Now()
	count := 0
	for _, sess := range sessions {
		if !sess.Expired(now) {
			continue
		}

		if err := r.DeleteSession(ctx, sess.ID); err != nil {
			if errors.Is(err, serviceerr.ErrNotFound) {
				continue
			}

			return count, fmt.Errorf("deleting expired session: %w", err)
		}
		count++
	}

	return count, nil
}

func ttlSeconds(expiresAt time.Time) int64 {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return 1
	}

	return int64(ttl/time.Second) + 1
}
