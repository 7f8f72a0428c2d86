package conversation

import "context"

// Repository is the session store collaborator. Implementations must never
// return an expired session from either lookup and must provide
// read-your-writes consistency per session id.
type Repository interface {
	LoadBySender(ctx context.Context, senderHash string) (Session, error)
	LoadSession(ctx context.Context, sessionID string) (Session, error)
	CreateSession(ctx context.Context, session Session) error
	StoreSession(ctx context.Context, session Session) error
	DeleteSession(ctx context.Context, sessionID string) error
	SweepExpired(ctx context.Context) (int, error)
}
