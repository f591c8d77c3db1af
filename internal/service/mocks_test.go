package service

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"

	"github.com/tempuro/auth-service/internal/domain"
	"github.com/tempuro/auth-service/internal/repository"
)

// --- Mock Account Repository ---

type mockAccountRepository struct {
	mock.Mock
}

func (m *mockAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *mockAccountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *mockAccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *mockAccountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *mockAccountRepository) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

// --- Mock Role Repository ---

type mockRoleRepository struct {
	mock.Mock
}

func (m *mockRoleRepository) GetByID(ctx context.Context, id int64) (*domain.Role, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Role), args.Error(1)
}

// --- Mock Refresh Token Repository ---

type mockRefreshTokenRepository struct {
	mock.Mock
}

func (m *mockRefreshTokenRepository) Save(ctx context.Context, token *domain.RefreshToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *mockRefreshTokenRepository) FindByValue(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RefreshToken), args.Error(1)
}

func (m *mockRefreshTokenRepository) FindAllActiveForAccount(ctx context.Context, accountID int64) ([]domain.RefreshToken, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RefreshToken), args.Error(1)
}

func (m *mockRefreshTokenRepository) RevokeAll(ctx context.Context, accountID int64) (int64, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRefreshTokenRepository) FindExpiredBefore(ctx context.Context, cutoff time.Time) ([]domain.RefreshToken, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RefreshToken), args.Error(1)
}

func (m *mockRefreshTokenRepository) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

// --- Mock Token Issuer ---

type mockTokenIssuer struct {
	mock.Mock
}

func (m *mockTokenIssuer) IssueAccessToken(subject string) (string, error) {
	args := m.Called(subject)
	return args.String(0), args.Error(1)
}

func (m *mockTokenIssuer) IssueRefreshToken(subject string) (string, error) {
	args := m.Called(subject)
	return args.String(0), args.Error(1)
}

// --- Mock Event Publisher ---

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishAccountRegistered(ctx context.Context, account *domain.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *mockPublisher) PublishSessionStarted(ctx context.Context, token *domain.RefreshToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

// --- Recording Tracker ---

type recordingTracker struct {
	locked   map[string]bool
	failures map[string]int
	resets   map[string]int
}

func newRecordingTracker() *recordingTracker {
	return &recordingTracker{locked: map[string]bool{}, failures: map[string]int{}, resets: map[string]int{}}
}

func (r *recordingTracker) IsLocked(_ context.Context, email string) bool { return r.locked[email] }
func (r *recordingTracker) RecordFailure(_ context.Context, email string) { r.failures[email]++ }
func (r *recordingTracker) Reset(_ context.Context, email string)         { r.resets[email]++ }

// --- Fake Transactor ---

// fakeTransactor hands the same repositories to every flow and records how
// many units of work committed or rolled back.
type fakeTransactor struct {
	repos     repository.Repositories
	commits   int
	rollbacks int
}

func (f *fakeTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	if err := fn(ctx, f.repos); err != nil {
		f.rollbacks++
		return err
	}
	f.commits++
	return nil
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func hashForTest(password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(hash)
}

type testDeps struct {
	accounts  *mockAccountRepository
	roles     *mockRoleRepository
	tokens    *mockRefreshTokenRepository
	issuer    *mockTokenIssuer
	publisher *mockPublisher
	tracker   *recordingTracker
	tx        *fakeTransactor
}

var fixedNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func newTestService() (*SessionService, *testDeps) {
	d := &testDeps{
		accounts:  new(mockAccountRepository),
		roles:     new(mockRoleRepository),
		tokens:    new(mockRefreshTokenRepository),
		issuer:    new(mockTokenIssuer),
		publisher: new(mockPublisher),
		tracker:   newRecordingTracker(),
	}
	d.tx = &fakeTransactor{repos: repository.Repositories{
		Accounts:      d.accounts,
		Roles:         d.roles,
		RefreshTokens: d.tokens,
	}}

	verifier, err := NewCredentialVerifier(d.tracker, bcrypt.MinCost)
	if err != nil {
		panic(err)
	}

	svc := NewSessionService(d.tx, verifier, NewAccountDirectory(domain.RoleClientID),
		d.issuer, d.publisher, nil, newTestLogger(), bcrypt.MinCost)
	svc.now = func() time.Time { return fixedNow }
	return svc, d
}

func (d *testDeps) assertExpectations(t mock.TestingT) {
	d.accounts.AssertExpectations(t)
	d.roles.AssertExpectations(t)
	d.tokens.AssertExpectations(t)
	d.issuer.AssertExpectations(t)
	d.publisher.AssertExpectations(t)
}

func sampleAccount() *domain.Account {
	return &domain.Account{
		ID:           7,
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: hashForTest("pw1-correct"),
		Enabled:      true,
		CreatedAt:    fixedNow.Add(-24 * time.Hour),
		UpdatedAt:    fixedNow.Add(-24 * time.Hour),
		Roles:        []domain.Role{{ID: domain.RoleClientID, Name: "ROLE_CLIENT"}},
	}
}
