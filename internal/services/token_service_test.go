package services

import (
	"context"
	"testing"
	"time"

	"courierdesk_backend/internal/models"
	"courierdesk_backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUser(t *testing.T, repo *testutil.MemUserRepo) *models.User {
	t.Helper()
	user := &models.User{
		Email:           "user@example.com",
		Name:            "Test User",
		PasswordHash:    "irrelevant",
		Role:            models.UserRoleNormal,
		IsEmailVerified: true,
		IsActive:        true,
	}
	require.NoError(t, repo.Create(context.Background(), user))
	return user
}

func TestTokenIssueAndVerify(t *testing.T) {
	repo := testutil.NewMemUserRepo()
	user := newTestUser(t, repo)
	ts := NewTokenService("test-secret", time.Hour, repo)

	token, err := ts.Issue(user)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, claims, err := ts.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, user.SessionVersion, claims.SessionVersion)
}

func TestTokenVerifyEmpty(t *testing.T) {
	ts := NewTokenService("test-secret", time.Hour, testutil.NewMemUserRepo())

	_, _, err := ts.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestTokenVerifyGarbage(t *testing.T) {
	ts := NewTokenService("test-secret", time.Hour, testutil.NewMemUserRepo())

	_, _, err := ts.Verify(context.Background(), "not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenVerifyWrongSecret(t *testing.T) {
	repo := testutil.NewMemUserRepo()
	user := newTestUser(t, repo)

	token, err := NewTokenService("secret-a", time.Hour, repo).Issue(user)
	require.NoError(t, err)

	_, _, err = NewTokenService("secret-b", time.Hour, repo).Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenVerifyExpired(t *testing.T) {
	repo := testutil.NewMemUserRepo()
	user := newTestUser(t, repo)
	ts := NewTokenService("test-secret", time.Hour, repo)

	// Конструктор нормализует неположительный TTL, поэтому просроченный
	// токен выпускаем напрямую через Impl
	impl := &TokenServiceImpl{secret: []byte("test-secret"), ttl: -time.Minute, userRepo: repo}
	token, err := impl.Issue(user)
	require.NoError(t, err)

	_, _, err = ts.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenVerifyDeletedUser(t *testing.T) {
	repo := testutil.NewMemUserRepo()
	user := newTestUser(t, repo)
	ts := NewTokenService("test-secret", time.Hour, repo)

	token, err := ts.Issue(user)
	require.NoError(t, err)

	repo.DeleteUser(user.ID)

	_, _, err = ts.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrUserAccountNotFound)
}

// stuckUserRepo имитирует хранилище, которое висит, а не отвечает
// ошибкой: FindByID возвращается только по отмене контекста.
type stuckUserRepo struct {
	*testutil.MemUserRepo
}

func (r *stuckUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestTokenVerifyBoundsUserLoad(t *testing.T) {
	repo := testutil.NewMemUserRepo()
	user := newTestUser(t, repo)

	token, err := NewTokenService("test-secret", time.Hour, repo).Issue(user)
	require.NoError(t, err)

	stuck := &TokenServiceImpl{
		secret:       []byte("test-secret"),
		ttl:          time.Hour,
		userRepo:     &stuckUserRepo{repo},
		storeTimeout: 20 * time.Millisecond,
	}

	start := time.Now()
	_, _, err = stuck.Verify(context.Background(), token)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidToken)
	assert.Less(t, time.Since(start), time.Second)
}

func TestTokenVerifySessionInvalidated(t *testing.T) {
	repo := testutil.NewMemUserRepo()
	user := newTestUser(t, repo)
	ts := NewTokenService("test-secret", time.Hour, repo)

	token, err := ts.Issue(user)
	require.NoError(t, err)

	_, err = repo.BumpSessionVersion(context.Background(), user.ID)
	require.NoError(t, err)

	_, _, err = ts.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrSessionInvalidated)
}

func TestTokenVerifyStalePassword(t *testing.T) {
	repo := testutil.NewMemUserRepo()
	user := newTestUser(t, repo)
	ts := NewTokenService("test-secret", time.Hour, repo)

	token, err := ts.Issue(user)
	require.NoError(t, err)

	// Смена пароля двигает и password_changed_at, и session_version;
	// для проверки именно возраста токена выравниваем версию
	repo.SetPasswordChangedAt(user.ID, time.Now().Add(time.Minute))

	_, _, err = ts.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrStalePassword)
}
