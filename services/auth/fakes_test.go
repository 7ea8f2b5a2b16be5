package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/upb/tasker-auth/models"
	"github.com/upb/tasker-auth/repositories"
)

// memoryUsers is an in-memory UserRepository
type memoryUsers struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byID: make(map[uuid.UUID]*models.User)}
}

func (m *memoryUsers) Create(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == user.Email {
			return repositories.ErrDuplicate
		}
	}
	clone := *user
	m.byID[user.ID] = &clone
	return nil
}

func (m *memoryUsers) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (m *memoryUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *memoryUsers) SetRefreshToken(ctx context.Context, id uuid.UUID, token *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		if token == nil {
			return nil
		}
		return repositories.ErrNotFound
	}
	u.RefreshToken = token
	return nil
}

func (m *memoryUsers) ClearRefreshToken(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.RefreshToken != nil && *u.RefreshToken == token {
			u.RefreshToken = nil
		}
	}
	return nil
}

func (m *memoryUsers) WithTx(tx repositories.Transaction) repositories.UserRepository {
	return m
}

func (m *memoryUsers) storedRefresh(id uuid.UUID) *string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id].RefreshToken
}

// memoryRevocations is an in-memory RevocationStore reading time from now
type memoryRevocations struct {
	mu      sync.Mutex
	entries map[string]*models.RevokedToken
	now     func() time.Time
}

func newMemoryRevocations(now func() time.Time) *memoryRevocations {
	return &memoryRevocations{entries: make(map[string]*models.RevokedToken), now: now}
}

func (m *memoryRevocations) Add(ctx context.Context, entry *models.RevokedToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Token] = entry
	return nil
}

func (m *memoryRevocations) Contains(ctx context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[token]
	return ok && entry.ActiveAt(m.now()), nil
}

// MockRevocationStore is a testify mock of RevocationStore
type MockRevocationStore struct {
	mock.Mock
}

func (m *MockRevocationStore) Add(ctx context.Context, entry *models.RevokedToken) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockRevocationStore) Contains(ctx context.Context, token string) (bool, error) {
	args := m.Called(ctx, token)
	return args.Bool(0), args.Error(1)
}

// MockUserRepository is a testify mock of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) SetRefreshToken(ctx context.Context, id uuid.UUID, token *string) error {
	args := m.Called(ctx, id, token)
	return args.Error(0)
}

func (m *MockUserRepository) ClearRefreshToken(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockUserRepository) WithTx(tx repositories.Transaction) repositories.UserRepository {
	args := m.Called(tx)
	return args.Get(0).(repositories.UserRepository)
}

// fakeTxManager hands out no-op transactions
type fakeTxManager struct {
	mu        sync.Mutex
	commits   int
	rollbacks int
}

func (m *fakeTxManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	return &fakeTx{mgr: m, ctx: ctx}, nil
}

func (m *fakeTxManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, _ := m.Begin(ctx)
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type fakeTx struct {
	mgr *fakeTxManager
	ctx context.Context
}

func (t *fakeTx) Commit() error {
	t.mgr.mu.Lock()
	defer t.mgr.mu.Unlock()
	t.mgr.commits++
	return nil
}

func (t *fakeTx) Rollback() error {
	t.mgr.mu.Lock()
	defer t.mgr.mu.Unlock()
	t.mgr.rollbacks++
	return nil
}

func (t *fakeTx) Context() context.Context { return t.ctx }

// eventLog collects recorded audit events
type eventLog struct {
	mu     sync.Mutex
	events []*models.AuthEvent
}

func (l *eventLog) Record(ctx context.Context, event *models.AuthEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) actions() []models.AuthAction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.AuthAction, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Action)
	}
	return out
}
