package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/artisan-market-backend/internal/models"
	"github.com/ignatzorin/artisan-market-backend/internal/pkg/apperror"
)

// memoryAuthRepo — in-memory реализация AuthRepository для тестов.
type memoryAuthRepo struct {
	usersByEmail map[string]*models.User
	usersByID    map[uuid.UUID]*models.User
	sessions     map[string]*models.Session
}

func newMemoryAuthRepo() *memoryAuthRepo {
	return &memoryAuthRepo{
		usersByEmail: make(map[string]*models.User),
		usersByID:    make(map[uuid.UUID]*models.User),
		sessions:     make(map[string]*models.Session),
	}
}

func (r *memoryAuthRepo) Create(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.IsActive = true
	r.usersByEmail[user.Email] = user
	r.usersByID[user.ID] = user
	return nil
}

func (r *memoryAuthRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := r.usersByEmail[email]
	if !ok {
		return nil, apperror.ErrUserNotFound
	}
	return user, nil
}

func (r *memoryAuthRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, ok := r.usersByID[id]
	if !ok {
		return nil, apperror.ErrUserNotFound
	}
	return user, nil
}

func (r *memoryAuthRepo) UpdateLastLoginAt(ctx context.Context, userID uuid.UUID) error {
	if user, ok := r.usersByID[userID]; ok {
		now := time.Now()
		user.LastLoginAt = &now
	}
	return nil
}

func (r *memoryAuthRepo) CreateSession(ctx context.Context, session *models.Session) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	r.sessions[session.RefreshToken] = session
	return nil
}

func (r *memoryAuthRepo) GetSession(ctx context.Context, refreshToken string) (*models.Session, error) {
	session, ok := r.sessions[refreshToken]
	if !ok {
		return nil, apperror.ErrUnauthorized
	}
	return session, nil
}

func (r *memoryAuthRepo) DeleteSession(ctx context.Context, refreshToken string) error {
	delete(r.sessions, refreshToken)
	return nil
}

func newTestTokenManager() *TokenManager {
	return NewTokenManager(
		"test-access-secret-0123456789abcdef",
		"test-refresh-secret-0123456789abcdef",
		15*time.Minute,
		24*time.Hour,
	)
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	repo := newMemoryAuthRepo()
	svc := NewAuthService(repo, newTestTokenManager())
	ctx := context.Background()

	result, err := svc.Register(ctx, RegisterInput{
		Email:    "Masha@Example.com",
		Password: "StrongPass1!",
		Role:     models.RoleSeller,
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, "masha@example.com", result.User.Email)
	assert.Equal(t, "masha", result.User.Username)
	assert.Equal(t, models.RoleSeller, result.User.Role)
	assert.NotEmpty(t, result.TokenPair.AccessToken)
	assert.NotEmpty(t, result.TokenPair.RefreshToken)

	// Пароль хранится только хешем.
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(result.User.PasswordHash), []byte("StrongPass1!")))

	login, err := svc.Login(ctx, LoginInput{
		Email:    "masha@example.com",
		Password: "StrongPass1!",
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, result.User.ID, login.User.ID)
	assert.NotNil(t, login.User.LastLoginAt)
}

func TestAuthService_RegisterDuplicateEmail(t *testing.T) {
	repo := newMemoryAuthRepo()
	svc := NewAuthService(repo, newTestTokenManager())
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Email: "user@example.com", Password: "StrongPass1!"}, nil)
	assert.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Email: "user@example.com", Password: "StrongPass1!"}, nil)
	assert.Error(t, err)
}

func TestAuthService_RegisterRejectsUnknownRole(t *testing.T) {
	svc := NewAuthService(newMemoryAuthRepo(), newTestTokenManager())

	_, err := svc.Register(context.Background(), RegisterInput{
		Email:    "user@example.com",
		Password: "StrongPass1!",
		Role:     "admin",
	}, nil)
	assert.Error(t, err)
}

func TestAuthService_LoginWrongPassword(t *testing.T) {
	repo := newMemoryAuthRepo()
	svc := NewAuthService(repo, newTestTokenManager())
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Email: "user@example.com", Password: "StrongPass1!"}, nil)
	assert.NoError(t, err)

	_, err = svc.Login(ctx, LoginInput{Email: "user@example.com", Password: "wrong"}, nil)
	var appErr *apperror.AppError
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.ErrCodeUnauthorized, appErr.Code)
}

func TestAuthService_LoginInactiveAccount(t *testing.T) {
	repo := newMemoryAuthRepo()
	svc := NewAuthService(repo, newTestTokenManager())
	ctx := context.Background()

	result, err := svc.Register(ctx, RegisterInput{Email: "user@example.com", Password: "StrongPass1!"}, nil)
	assert.NoError(t, err)
	result.User.IsActive = false

	_, err = svc.Login(ctx, LoginInput{Email: "user@example.com", Password: "StrongPass1!"}, nil)
	assert.ErrorIs(t, err, apperror.ErrAccountInactive)
}

func TestAuthService_RefreshRotatesSession(t *testing.T) {
	repo := newMemoryAuthRepo()
	svc := NewAuthService(repo, newTestTokenManager())
	ctx := context.Background()

	result, err := svc.Register(ctx, RegisterInput{Email: "user@example.com", Password: "StrongPass1!"}, nil)
	assert.NoError(t, err)
	oldRefresh := result.TokenPair.RefreshToken

	refreshed, err := svc.Refresh(ctx, oldRefresh, nil)
	assert.NoError(t, err)
	assert.NotEqual(t, oldRefresh, refreshed.TokenPair.RefreshToken)

	// Старый refresh токен инвалидирован.
	_, err = svc.Refresh(ctx, oldRefresh, nil)
	assert.Error(t, err)
}

func TestAuthService_Logout(t *testing.T) {
	repo := newMemoryAuthRepo()
	svc := NewAuthService(repo, newTestTokenManager())
	ctx := context.Background()

	result, err := svc.Register(ctx, RegisterInput{Email: "user@example.com", Password: "StrongPass1!"}, nil)
	assert.NoError(t, err)

	assert.NoError(t, svc.Logout(ctx, result.TokenPair.RefreshToken))
	_, err = svc.Refresh(ctx, result.TokenPair.RefreshToken, nil)
	assert.Error(t, err)
}
