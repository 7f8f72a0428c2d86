package conversationmock

import (
	"context"
	"sync"
	"time"

	"github.com/requestline/intake-bot/internal/conversation"
	"github.com/requestline/intake-bot/internal/serviceerr"
)

type RepositoryOption func(*Repository)

// Repository is an in-memory session store used by unit tests. It applies
// the same lazy-expiry rule as the real store: expired sessions are never
// returned by a lookup.
type Repository struct {
	mu       sync.Mutex
	sessions map[string]conversation.Session
	bySender map[string]string

	now func() time.Time

	loadErr, createErr, storeErr, deleteErr, sweepErr error
}

func WithSession(sess conversation.Session) RepositoryOption {
	return func(r *Repository) {
		r.sessions[sess.ID] = sess
		r.bySender[sess.SenderHash] = sess.ID
	}
}

func WithNow(now func() time.Time) RepositoryOption {
	return func(r *Repository) { r.now = now }
}

func WithLoadError(err error) RepositoryOption {
	return func(r *Repository) { r.loadErr = err }
}

func WithCreateError(err error) RepositoryOption {
	return func(r *Repository) { r.createErr = err }
}

func WithStoreError(err error) RepositoryOption {
	return func(r *Repository) { r.storeErr = err }
}

func WithDeleteError(err error) RepositoryOption {
	return func(r *Repository) { r.deleteErr = err }
}

func WithSweepError(err error) RepositoryOption {
	return func(r *Repository) { r.sweepErr = err }
}

var _ = conversation.Repository(&Repository{})

func NewInMemRepository(opts ...RepositoryOption) *Repository {
	r := &Repository{
		sessions: make(map[string]conversation.Session),
		bySender: make(map[string]string),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

func (r *Repository) LoadBySender(_ context.Context, senderHash string) (conversation.Session, error) {
	if r.loadErr != nil {
		return conversation.Session{}, r.loadErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.bySender[senderHash]
	if !ok {
		return conversation.Session{}, serviceerr.ErrNotFound
	}

	sess, ok := r.sessions[id]
	if !ok || sess.Expired(r.now()) {
		return conversation.Session{}, serviceerr.ErrNotFound
	}

	return sess, nil
}

func (r *Repository) LoadSession(_ context.Context, sessionID string) (conversation.Session, error) {
	if r.loadErr != nil {
		return conversation.Session{}, r.loadErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[sessionID]
	if !ok || sess.Expired(r.now()) {
		return conversation.Session{}, serviceerr.ErrNotFound
	}

	return sess, nil
}

func (r *Repository) CreateSession(_ context.Context, sess conversation.Session) error {
	if r.createErr != nil {
		return r.createErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[sess.ID]; ok && !existing.Expired(r.now()) {
		return serviceerr.ErrConflict
	}
	if id, ok := r.bySender[sess.SenderHash]; ok {
		if existing, ok := r.sessions[id]; ok && !existing.Expired(r.now()) {
			return serviceerr.ErrConflict
		}
	}

	r.sessions[sess.ID] = sess
	r.bySender[sess.SenderHash] = sess.ID

	return nil
}

func (r *Repository) StoreSession(_ context.Context, sess conversation.Session) error {
	if r.storeErr != nil {
		return r.storeErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[sess.ID]; !ok {
		return serviceerr.ErrNotFound
	}

	r.sessions[sess.ID] = sess
	r.bySender[sess.SenderHash] = sess.ID

	return nil
}

func (r *Repository) DeleteSession(_ context.Context, sessionID string) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[sessionID]
	if !ok {
		return serviceerr.ErrNotFound
	}

	delete(r.sessions, sessionID)
	delete(r.bySender, sess.SenderHash)

	return nil
}

func (r *Repository) SweepExpired(_ context.Context) (int, error) {
	if r.sweepErr != nil {
		return 0, r.sweepErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	count := 0
	for id, sess := range r.sessions {
		if !sess.Expired(now) {
			continue
		}

		delete(r.sessions, id)
		delete(r.bySender, sess.SenderHash)
		count++
	}

	return count, nil
}
