package service

import (
	"context"
	"sync"
	"time"

	"github.com/Rrens/event-chat/internal/domain"
	"github.com/Rrens/event-chat/internal/worker"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockRegistrationRepository mocks the RegistrationRepository interface
type MockRegistrationRepository struct {
	mock.Mock
}

func (m *MockRegistrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Registration, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Registration), args.Error(1)
}

func (m *MockRegistrationRepository) GetByEmail(ctx context.Context, email string) (*domain.Registration, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Registration), args.Error(1)
}

func (m *MockRegistrationRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Registration, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]domain.Registration), args.Error(1)
}

func (m *MockRegistrationRepository) Search(ctx context.Context, query string, excludeID uuid.UUID, limit int) ([]domain.Registration, error) {
	args := m.Called(ctx, query, excludeID, limit)
	return args.Get(0).([]domain.Registration), args.Error(1)
}

// MockSessionRepository mocks the SessionRepository interface
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) GetValidByToken(ctx context.Context, token string, now time.Time) (*domain.Session, *domain.Registration, error) {
	args := m.Called(ctx, token, now)
	var session *domain.Session
	var reg *domain.Registration
	if v := args.Get(0); v != nil {
		session = v.(*domain.Session)
	}
	if v := args.Get(1); v != nil {
		reg = v.(*domain.Registration)
	}
	return session, reg, args.Error(2)
}

func (m *MockSessionRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockSessionRepository) DeleteByToken(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockSessionRepository) DeleteByRegistration(ctx context.Context, registrationID uuid.UUID, keepID *uuid.UUID) error {
	args := m.Called(ctx, registrationID, keepID)
	return args.Error(0)
}

func (m *MockSessionRepository) ActiveSince(ctx context.Context, ids []uuid.UUID, since time.Time) (map[uuid.UUID]bool, error) {
	args := m.Called(ctx, ids, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]bool), args.Error(1)
}

// MockCredentialRepository mocks the CredentialRepository interface
type MockCredentialRepository struct {
	mock.Mock
}

func (m *MockCredentialRepository) Get(ctx context.Context, registrationID uuid.UUID) (*domain.Credential, error) {
	args := m.Called(ctx, registrationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Credential), args.Error(1)
}

func (m *MockCredentialRepository) SetPassword(ctx context.Context, registrationID uuid.UUID, hash string, at time.Time) error {
	args := m.Called(ctx, registrationID, hash, at)
	return args.Error(0)
}

func (m *MockCredentialRepository) SetResetToken(ctx context.Context, registrationID uuid.UUID, token string, expiresAt, at time.Time) error {
	args := m.Called(ctx, registrationID, token, expiresAt, at)
	return args.Error(0)
}

func (m *MockCredentialRepository) CompleteReset(ctx context.Context, token string, hash string, now time.Time) (uuid.UUID, bool, error) {
	args := m.Called(ctx, token, hash, now)
	return args.Get(0).(uuid.UUID), args.Bool(1), args.Error(2)
}

// MockMessageRepository mocks the MessageRepository interface
type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) Create(ctx context.Context, message *domain.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockMessageRepository) ListBetween(ctx context.Context, a, b uuid.UUID, before *time.Time, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, a, b, before, limit)
	return args.Get(0).([]domain.Message), args.Error(1)
}

func (m *MockMessageRepository) MarkRead(ctx context.Context, senderID, receiverID uuid.UUID, at time.Time) (int64, error) {
	args := m.Called(ctx, senderID, receiverID, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMessageRepository) LatestPerPartner(ctx context.Context, userID uuid.UUID) ([]domain.Message, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.Message), args.Error(1)
}

func (m *MockMessageRepository) UnreadCounts(ctx context.Context, receiverID uuid.UUID, senders []uuid.UUID) (map[uuid.UUID]int, error) {
	args := m.Called(ctx, receiverID, senders)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]int), args.Error(1)
}

func (m *MockMessageRepository) ListSince(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, userID, since, limit)
	return args.Get(0).([]domain.Message), args.Error(1)
}

// MockMailer mocks mailer.Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendPasswordReset(ctx context.Context, to, name, link string) error {
	args := m.Called(ctx, to, name, link)
	return args.Error(0)
}

// inlineRunner runs detached tasks synchronously and records their names
type inlineRunner struct {
	mu    sync.Mutex
	names []string
	errs  []error
}

func (r *inlineRunner) Go(name string, task worker.Task) bool {
	err := task(context.Background())
	r.mu.Lock()
	r.names = append(r.names, name)
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	return true
}

// dropRunner accepts nothing, like a saturated runner
type dropRunner struct{}

func (dropRunner) Go(string, worker.Task) bool { return false }

var fixedNow = time.Date(2026, 5, 14, 10, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }
