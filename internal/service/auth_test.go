package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/icar/swc-backend/internal/apperror"
	"github.com/icar/swc-backend/internal/auth"
	"github.com/icar/swc-backend/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserRepo is an in-memory implementation of repository.UserRepository.
// A hand-written fake (not a mock framework) keeps the tests readable —
// you can see exactly what the store does, including the UNIQUE-username
// behavior the services rely on.
type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]*model.User // keyed by username
	nextID int

	// set to simulate a store failure
	createErr error
	findErr   error

	// missNextFind makes the next FindByUsername report not-found even
	// when the row exists — used to reproduce the lookup/create race.
	missNextFind bool
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User), nextID: 1}
}

func (f *fakeUserRepo) Create(ctx context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, exists := f.users[user.Username]; exists {
		// Same behavior as the UNIQUE constraint in sqlite
		return apperror.Conflict("user", user.Username)
	}
	user.ID = "user-" + string(rune('0'+f.nextID))
	f.nextID++
	user.CreatedAt = time.Now()
	copied := *user
	f.users[user.Username] = &copied
	return nil
}

func (f *fakeUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	if f.missNextFind {
		f.missNextFind = false
		return nil, apperror.NotFound("user", username)
	}
	u, ok := f.users[username]
	if !ok {
		return nil, apperror.NotFound("user", username)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

// fakeRecorder counts metric events without Prometheus.
type fakeRecorder struct {
	mu              sync.Mutex
	registrations   int
	logins          map[string]int
	federatedLogins int
	engineCalls     map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{logins: map[string]int{}, engineCalls: map[string]int{}}
}

func (f *fakeRecorder) RecordRegistration() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registrations++
}

func (f *fakeRecorder) RecordLogin(outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins[outcome]++
}

func (f *fakeRecorder) RecordFederatedLogin() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.federatedLogins++
}

func (f *fakeRecorder) RecordEngineCall(outcome string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.engineCalls[outcome]++
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestAuthService returns an AuthService wired with fake dependencies.
// bcrypt runs at minimum cost — the hashing logic is the same, just fast.
func newTestAuthService(t *testing.T, repo *fakeUserRepo) *AuthService {
	t.Helper()
	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", 24*time.Hour)
	require.NoError(t, err)
	passwords := auth.NewPasswordServiceForTest(bcrypt.MinCost)
	return NewAuthService(repo, tokens, passwords, newFakeRecorder(), testLogger())
}

// =========================================================================
// REGISTER TESTS
// =========================================================================

func TestRegister_Success(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	err := svc.Register(context.Background(), "alice", "secret")
	require.NoError(t, err)

	stored, err := repo.FindByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, model.ProviderLocal, stored.Provider)
	assert.Equal(t, model.RoleUser, stored.Role)
	// The hash must not be the plaintext, and must verify against it
	assert.NotEqual(t, "secret", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secret")))
}

func TestRegister_DuplicateUsername(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	require.NoError(t, svc.Register(context.Background(), "alice", "secret"))

	// Second registration fails regardless of password
	err := svc.Register(context.Background(), "alice", "different")
	assert.ErrorIs(t, err, apperror.ErrConflict)
	assert.Equal(t, 1, repo.count())
}

func TestRegister_EmptyFields(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())

	assert.ErrorIs(t, svc.Register(context.Background(), "", "secret"), apperror.ErrValidation)
	assert.ErrorIs(t, svc.Register(context.Background(), "alice", ""), apperror.ErrValidation)
}

// =========================================================================
// LOGIN TESTS
// =========================================================================

func TestLogin_RoundTrip(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	require.NoError(t, svc.Register(context.Background(), "bob", "secret"))

	result, err := svc.Login(context.Background(), "bob", "secret")
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)
	assert.Equal(t, "bob", result.User.Username)

	// The issued token's subject is the username
	subject, err := svc.tokens.Validate(result.Token)
	require.NoError(t, err)
	assert.Equal(t, "bob", subject)
}

func TestLogin_WrongPasswordAndUnknownUserCollapse(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	require.NoError(t, svc.Register(context.Background(), "bob", "secret"))

	_, errWrong := svc.Login(context.Background(), "bob", "wrong")
	_, errUnknown := svc.Login(context.Background(), "nobody", "whatever")

	// Both fail with the SAME error kind and the SAME message — a caller
	// cannot tell whether the username exists.
	require.ErrorIs(t, errWrong, apperror.ErrUnauthorized)
	require.ErrorIs(t, errUnknown, apperror.ErrUnauthorized)
	assert.Equal(t, errWrong.Error(), errUnknown.Error())
}

func TestLogin_FederatedAccountHasNoPassword(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	// A Google account exists for this email with no password hash
	require.NoError(t, repo.Create(context.Background(), &model.User{
		Username: "alice@example.com",
		Provider: model.ProviderGoogle,
		Role:     model.RoleUser,
	}))

	_, err := svc.Login(context.Background(), "alice@example.com", "")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	_, err = svc.Login(context.Background(), "alice@example.com", "anything")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestLogin_StoreError(t *testing.T) {
	repo := newFakeUserRepo()
	repo.findErr = errors.New("disk on fire")
	svc := newTestAuthService(t, repo)

	_, err := svc.Login(context.Background(), "bob", "secret")
	require.Error(t, err)
	// Infrastructure failures are NOT collapsed into bad-credentials
	assert.NotErrorIs(t, err, apperror.ErrUnauthorized)
}

// =========================================================================
// FEDERATED LOGIN TESTS
// =========================================================================

func TestLoginOrRegisterGoogle_CreatesUserLazily(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	gUser := &auth.GoogleUser{Sub: "g-123", Email: "alice@example.com"}

	result, err := svc.LoginOrRegisterGoogle(context.Background(), gUser)
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)
	assert.Equal(t, "alice@example.com", result.User.Username)
	assert.Equal(t, model.ProviderGoogle, result.User.Provider)
	assert.Empty(t, result.User.PasswordHash)
	assert.Equal(t, 1, repo.count())
}

func TestLoginOrRegisterGoogle_SecondLoginReusesRecord(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	gUser := &auth.GoogleUser{Sub: "g-123", Email: "alice@example.com"}

	first, err := svc.LoginOrRegisterGoogle(context.Background(), gUser)
	require.NoError(t, err)

	second, err := svc.LoginOrRegisterGoogle(context.Background(), gUser)
	require.NoError(t, err)

	// Row count unchanged, same account, fresh valid token
	assert.Equal(t, 1, repo.count())
	assert.Equal(t, first.User.ID, second.User.ID)
	subject, err := svc.tokens.Validate(second.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", subject)
}

func TestLoginOrRegisterGoogle_LostCreationRace(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	// Simulate the race: another request created the account between our
	// not-found lookup and our insert. The row exists, but the next
	// lookup misses — so the service goes down the create path, hits the
	// conflict, and must recover by re-reading the winner's row.
	require.NoError(t, repo.Create(context.Background(), &model.User{
		Username: "alice@example.com",
		Provider: model.ProviderGoogle,
		Role:     model.RoleUser,
	}))
	repo.missNextFind = true

	result, err := svc.LoginOrRegisterGoogle(context.Background(),
		&auth.GoogleUser{Sub: "g-123", Email: "alice@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.count())
	assert.Equal(t, "alice@example.com", result.User.Username)
}

func TestLoginOrRegisterGoogle_FallsBackToSub(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	// No email claim — the provider subject id becomes the username
	result, err := svc.LoginOrRegisterGoogle(context.Background(), &auth.GoogleUser{Sub: "g-456"})
	require.NoError(t, err)
	assert.Equal(t, "g-456", result.User.Username)
}

func TestLoginOrRegisterGoogle_NilUser(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())

	_, err := svc.LoginOrRegisterGoogle(context.Background(), nil)
	require.Error(t, err)
}

// =========================================================================
// SCENARIO TEST
// =========================================================================

func TestScenario_RegisterLoginVerify(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)
	ctx := context.Background()

	// register("bob","secret") succeeds
	require.NoError(t, svc.Register(ctx, "bob", "secret"))

	// login("bob","wrong") fails
	_, err := svc.Login(ctx, "bob", "wrong")
	require.ErrorIs(t, err, apperror.ErrUnauthorized)

	// login("bob","secret") returns token T; T validates; subject is bob
	result, err := svc.Login(ctx, "bob", "secret")
	require.NoError(t, err)
	subject, err := svc.tokens.Validate(result.Token)
	require.NoError(t, err)
	assert.Equal(t, "bob", subject)
}
