package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/tasker-auth/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a unique constraint rejects an insert
	ErrDuplicate = errors.New("duplicate record")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// UserRepository handles identity records
type UserRepository interface {
	// Create inserts a new user; returns ErrDuplicate when the email is taken
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByEmail retrieves a user by normalized email
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// SetRefreshToken replaces the stored refresh token; nil clears it
	SetRefreshToken(ctx context.Context, id uuid.UUID, token *string) error

	// ClearRefreshToken clears the field on whichever user holds token; no match is not an error
	ClearRefreshToken(ctx context.Context, token string) error

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) UserRepository
}

// RevocationStore keeps access tokens that were invalidated before their expiry.
// An entry whose ExpiresAt is not after now must be reported as absent.
type RevocationStore interface {
	// Add inserts an entry; adding the same token twice is not an error
	Add(ctx context.Context, entry *models.RevokedToken) error

	// Contains reports whether token has a live revocation entry
	Contains(ctx context.Context, token string) (bool, error)
}

// RevocationSweeper is implemented by stores that cannot expire entries on their own
type RevocationSweeper interface {
	// DeleteExpired removes entries that expired at or before the given time
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// AuthEventRepository persists the authentication audit trail
type AuthEventRepository interface {
	// Insert appends one event
	Insert(ctx context.Context, event *models.AuthEvent) error
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Users       UserRepository
	Revocations RevocationStore
	AuthEvents  AuthEventRepository
}
