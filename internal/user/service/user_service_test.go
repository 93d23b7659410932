package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ridloal/retail-analytics-engine/internal/platform/auth"
	"github.com/ridloal/retail-analytics-engine/internal/platform/metrics"
	"github.com/ridloal/retail-analytics-engine/internal/user/domain"
	"github.com/ridloal/retail-analytics-engine/internal/user/repository"
	"github.com/ridloal/retail-analytics-engine/internal/user/repository/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(repo repository.UserRepository) (*userService, *auth.TokenManager, *metrics.Registry) {
	tm := auth.NewTokenManager([]byte("test-secret"), 30*time.Minute, 7*24*time.Hour)
	m := metrics.NewRegistry()
	s := newUserService(repo, tm, m)
	s.now = func() time.Time { return fixedNow }
	s.sendVerification = func(string) {}
	return s, tm, m
}

func hashed(t *testing.T, plain string) string {
	t.Helper()
	h, err := auth.HashPassword(plain)
	require.NoError(t, err)
	return h
}

func TestUserService_Register(t *testing.T) {
	mockRepo := new(mocks.MockUserRepository)
	svc, tm, _ := newTestService(mockRepo)

	ctx := context.TODO()
	fullName := "<b>Test</b> User"
	registerReq := domain.RegisterRequest{
		Email:    "Test@Example.com",
		Username: "Tester",
		Password: "TestPassword123",
		FullName: &fullName,
	}

	t.Run("Successful registration", func(t *testing.T) {
		mockRepo.On("CreateUser", ctx, mock.MatchedBy(func(u *domain.User) bool {
			return u.Email == "test@example.com" &&
				u.Username == "tester" &&
				u.Role == domain.RoleUser &&
				u.IsActive &&
				u.FullName != nil && *u.FullName == "bTest/b User" &&
				auth.VerifyPassword("TestPassword123", u.PasswordHash)
		})).Return(nil).Once()

		pair, err := svc.Register(ctx, registerReq, domain.ClientInfo{IP: "127.0.0.1"})

		require.NoError(t, err)
		assert.Equal(t, auth.TokenTypeBearer, pair.TokenType)
		claims, err := tm.VerifyType(pair.AccessToken, auth.TokenTypeAccess)
		require.NoError(t, err)
		assert.Equal(t, "test@example.com", claims.Subject)
		assert.Equal(t, "user", claims.Role)
		mockRepo.AssertExpectations(t)
	})

	t.Run("User already exists", func(t *testing.T) {
		mockRepo.On("CreateUser", ctx, mock.AnythingOfType("*domain.User")).Return(repository.ErrUserConflict).Once()

		pair, err := svc.Register(ctx, registerReq, domain.ClientInfo{})

		assert.Nil(t, pair)
		assert.ErrorIs(t, err, ErrUserAlreadyExists)
		mockRepo.AssertExpectations(t)
	})

	t.Run("Repository error on CreateUser", func(t *testing.T) {
		mockRepo.On("CreateUser", ctx, mock.AnythingOfType("*domain.User")).Return(errors.New("database error")).Once()

		pair, err := svc.Register(ctx, registerReq, domain.ClientInfo{})

		assert.Nil(t, pair)
		assert.Contains(t, err.Error(), "could not save user")
		mockRepo.AssertExpectations(t)
	})

	t.Run("Weak password and bad username", func(t *testing.T) {
		req := registerReq
		req.Password = "weak"
		req.Username = "x!"

		pair, err := svc.Register(ctx, req, domain.ClientInfo{})

		assert.Nil(t, pair)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Len(t, verr.Details, 4)
		mockRepo.AssertNotCalled(t, "CreateUser", ctx, mock.MatchedBy(func(u *domain.User) bool { return u.Username == "x!" }))
	})

	t.Run("Password longer than 72 bytes", func(t *testing.T) {
		req := registerReq
		req.Username = "longpass"
		req.Password = "Aa1" + strings.Repeat("x", 70)

		pair, err := svc.Register(ctx, req, domain.ClientInfo{})

		assert.Nil(t, pair)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{"Password must be at most 72 bytes"}, verr.Details)
		mockRepo.AssertNotCalled(t, "CreateUser", ctx, mock.MatchedBy(func(u *domain.User) bool { return u.Username == "longpass" }))
	})
}

func TestUserService_Login(t *testing.T) {
	ctx := context.TODO()
	loginReq := domain.LoginRequest{Email: "test@example.com", Password: "TestPassword123"}
	passwordHash := hashed(t, "TestPassword123")

	activeUser := func() *domain.User {
		return &domain.User{
			ID:           "user-123",
			Email:        "test@example.com",
			Username:     "tester",
			PasswordHash: passwordHash,
			Role:         domain.RoleAnalyst,
			IsActive:     true,
		}
	}

	t.Run("Successful login", func(t *testing.T) {
		mockRepo := new(mocks.MockUserRepository)
		svc, tm, m := newTestService(mockRepo)
		mockRepo.On("GetUserByEmail", ctx, "test@example.com").Return(activeUser(), nil).Once()
		mockRepo.On("RecordLoginSuccess", ctx, "user-123", fixedNow).Return(nil).Once()

		pair, err := svc.Login(ctx, loginReq, domain.ClientInfo{})

		require.NoError(t, err)
		claims, err := tm.Verify(pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "analyst", claims.Role)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.AuthAttempts.WithLabelValues("success")))
		mockRepo.AssertExpectations(t)
	})

	t.Run("User not found", func(t *testing.T) {
		mockRepo := new(mocks.MockUserRepository)
		svc, _, m := newTestService(mockRepo)
		mockRepo.On("GetUserByEmail", ctx, "test@example.com").Return(nil, repository.ErrUserNotFound).Once()

		pair, err := svc.Login(ctx, loginReq, domain.ClientInfo{})

		assert.Nil(t, pair)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.FailedLogins.WithLabelValues("user_not_found")))
		mockRepo.AssertExpectations(t)
	})

	t.Run("Incorrect password increments attempts", func(t *testing.T) {
		mockRepo := new(mocks.MockUserRepository)
		svc, _, m := newTestService(mockRepo)
		u := activeUser()
		u.LoginAttempts = 1
		mockRepo.On("GetUserByEmail", ctx, "test@example.com").Return(u, nil).Once()
		mockRepo.On("RecordLoginFailure", ctx, "user-123", 2, (*time.Time)(nil)).Return(nil).Once()

		pair, err := svc.Login(ctx, domain.LoginRequest{Email: "test@example.com", Password: "wrongpassword"}, domain.ClientInfo{})

		assert.Nil(t, pair)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.FailedLogins.WithLabelValues("wrong_password")))
		mockRepo.AssertExpectations(t)
	})

	t.Run("Fifth failure locks the account", func(t *testing.T) {
		mockRepo := new(mocks.MockUserRepository)
		svc, _, _ := newTestService(mockRepo)
		u := activeUser()
		u.LoginAttempts = MaxLoginAttempts - 1
		mockRepo.On("GetUserByEmail", ctx, "test@example.com").Return(u, nil).Once()
		mockRepo.On("RecordLoginFailure", ctx, "user-123", MaxLoginAttempts, mock.MatchedBy(func(until *time.Time) bool {
			return until != nil && until.Equal(fixedNow.Add(LockoutDuration))
		})).Return(nil).Once()

		_, err := svc.Login(ctx, domain.LoginRequest{Email: "test@example.com", Password: "wrongpassword"}, domain.ClientInfo{})

		assert.ErrorIs(t, err, ErrInvalidCredentials)
		mockRepo.AssertExpectations(t)
	})

	t.Run("Locked account", func(t *testing.T) {
		mockRepo := new(mocks.MockUserRepository)
		svc, _, m := newTestService(mockRepo)
		u := activeUser()
		until := fixedNow.Add(10 * time.Minute)
		u.LockedUntil = &until
		mockRepo.On("GetUserByEmail", ctx, "test@example.com").Return(u, nil).Once()

		_, err := svc.Login(ctx, loginReq, domain.ClientInfo{})

		assert.ErrorIs(t, err, ErrAccountLocked)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.FailedLogins.WithLabelValues("account_locked")))
		mockRepo.AssertExpectations(t)
	})

	t.Run("Expired lock allows login", func(t *testing.T) {
		mockRepo := new(mocks.MockUserRepository)
		svc, _, _ := newTestService(mockRepo)
		u := activeUser()
		until := fixedNow.Add(-time.Minute)
		u.LockedUntil = &until
		mockRepo.On("GetUserByEmail", ctx, "test@example.com").Return(u, nil).Once()
		mockRepo.On("RecordLoginSuccess", ctx, "user-123", fixedNow).Return(nil).Once()

		_, err := svc.Login(ctx, loginReq, domain.ClientInfo{})

		assert.NoError(t, err)
		mockRepo.AssertExpectations(t)
	})

	t.Run("Inactive user", func(t *testing.T) {
		mockRepo := new(mocks.MockUserRepository)
		svc, _, _ := newTestService(mockRepo)
		u := activeUser()
		u.IsActive = false
		mockRepo.On("GetUserByEmail", ctx, "test@example.com").Return(u, nil).Once()

		_, err := svc.Login(ctx, loginReq, domain.ClientInfo{})

		assert.ErrorIs(t, err, ErrInactiveUser)
		mockRepo.AssertExpectations(t)
	})

	t.Run("Repository error on GetUserByEmail", func(t *testing.T) {
		mockRepo := new(mocks.MockUserRepository)
		svc, _, _ := newTestService(mockRepo)
		mockRepo.On("GetUserByEmail", ctx, "test@example.com").Return(nil, errors.New("some db error")).Once()

		_, err := svc.Login(ctx, loginReq, domain.ClientInfo{})

		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidCredentials)
		mockRepo.AssertExpectations(t)
	})
}

func TestUserService_Refresh(t *testing.T) {
	ctx := context.TODO()
	mockRepo := new(mocks.MockUserRepository)
	svc, tm, _ := newTestService(mockRepo)
	user := &domain.User{ID: "user-123", Email: "test@example.com", Role: domain.RoleAdmin, IsActive: true}

	refresh, err := tm.IssueRefresh("test@example.com", "admin")
	require.NoError(t, err)
	access, err := tm.IssueAccess("test@example.com", "admin")
	require.NoError(t, err)

	mockRepo.On("GetUserByEmail", ctx, "test@example.com").Return(user, nil).Once()
	pair, err := svc.Refresh(ctx, refresh)
	require.NoError(t, err)
	claims, err := tm.VerifyType(pair.AccessToken, auth.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Role)

	_, err = svc.Refresh(ctx, access)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Refresh(ctx, "invalid.token.here")
	assert.ErrorIs(t, err, ErrInvalidToken)

	mockRepo.On("GetUserByEmail", ctx, "test@example.com").Return(nil, repository.ErrUserNotFound).Once()
	_, err = svc.Refresh(ctx, refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
	mockRepo.AssertExpectations(t)
}

func TestUserService_UpdateProfile(t *testing.T) {
	ctx := context.TODO()
	current := func() *domain.User {
		return &domain.User{ID: "user-123", Email: "test@example.com", Username: "tester", IsActive: true}
	}

	t.Run("Username taken by another user", func(t *testing.T) {
		mockRepo := new(mocks.MockUserRepository)
		svc, _, _ := newTestService(mockRepo)
		mockRepo.On("GetUserByEmail", ctx, "test@example.com").Return(current(), nil).Once()
		mockRepo.On("GetUserByUsername", ctx, "taken").Return(&domain.User{ID: "other"}, nil).Once()

		name := "Taken"
		_, err := svc.UpdateProfile(ctx, "test@example.com", domain.UpdateProfileRequest{Username: &name})

		assert.ErrorIs(t, err, ErrUsernameTaken)
		mockRepo.AssertExpectations(t)
	})

	t.Run("Updates username and full name", func(t *testing.T) {
		mockRepo := new(mocks.MockUserRepository)
		svc, _, _ := newTestService(mockRepo)
		mockRepo.On("GetUserByEmail", ctx, "test@example.com").Return(current(), nil).Once()
		mockRepo.On("GetUserByUsername", ctx, "fresh").Return(nil, repository.ErrUserNotFound).Once()
		mockRepo.On("UpdateUser", ctx, mock.MatchedBy(func(u *domain.User) bool {
			return u.Username == "fresh" && u.FullName != nil && *u.FullName == "New Name"
		})).Return(nil).Once()

		name, full := "fresh", " New Name "
		user, err := svc.UpdateProfile(ctx, "test@example.com", domain.UpdateProfileRequest{Username: &name, FullName: &full})

		require.NoError(t, err)
		assert.Equal(t, "fresh", user.Username)
		mockRepo.AssertExpectations(t)
	})

	t.Run("Inactive user", func(t *testing.T) {
		mockRepo := new(mocks.MockUserRepository)
		svc, _, _ := newTestService(mockRepo)
		u := current()
		u.IsActive = false
		mockRepo.On("GetUserByEmail", ctx, "test@example.com").Return(u, nil).Once()

		_, err := svc.UpdateProfile(ctx, "test@example.com", domain.UpdateProfileRequest{})
		assert.ErrorIs(t, err, ErrInactiveUser)
	})
}

func TestUserService_Admin(t *testing.T) {
	ctx := context.TODO()

	t.Run("List limits are clamped", func(t *testing.T) {
		mockRepo := new(mocks.MockUserRepository)
		svc, _, _ := newTestService(mockRepo)
		mockRepo.On("ListUsers", ctx, 0, DefaultListLimit).Return([]domain.User{}, nil).Once()
		mockRepo.On("ListUsers", ctx, 5, MaxListLimit).Return([]domain.User{{ID: "a"}}, nil).Once()

		_, err := svc.ListUsers(ctx, -1, 0)
		require.NoError(t, err)
		users, err := svc.ListUsers(ctx, 5, 5000)
		require.NoError(t, err)
		assert.Len(t, users, 1)
		mockRepo.AssertExpectations(t)
	})

	t.Run("Update role", func(t *testing.T) {
		mockRepo := new(mocks.MockUserRepository)
		svc, _, _ := newTestService(mockRepo)

		_, err := svc.UpdateRole(ctx, "user-123", "superuser")
		assert.ErrorIs(t, err, ErrInvalidRole)

		mockRepo.On("GetUserByID", ctx, "missing").Return(nil, repository.ErrUserNotFound).Once()
		_, err = svc.UpdateRole(ctx, "missing", domain.RoleAdmin)
		assert.ErrorIs(t, err, ErrUserNotFound)

		mockRepo.On("GetUserByID", ctx, "user-123").Return(&domain.User{ID: "user-123", Role: domain.RoleUser}, nil).Once()
		mockRepo.On("UpdateUser", ctx, mock.MatchedBy(func(u *domain.User) bool { return u.Role == domain.RoleAnalyst })).Return(nil).Once()
		user, err := svc.UpdateRole(ctx, "user-123", domain.RoleAnalyst)
		require.NoError(t, err)
		assert.Equal(t, domain.RoleAnalyst, user.Role)
		mockRepo.AssertExpectations(t)
	})
}

func TestLockoutSweep(t *testing.T) {
	defer goleak.VerifyNone(t)

	mockRepo := new(mocks.MockUserRepository)
	svc, _, _ := newTestService(mockRepo)
	mockRepo.On("ClearExpiredLocks", mock.Anything, fixedNow).Return(int64(2), nil).Once()

	n, err := svc.SweepLockouts(context.TODO())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = StartLockoutSweep(svc, "not a cron spec")
	assert.Error(t, err)

	scheduler, err := StartLockoutSweep(svc, "@every 1h")
	require.NoError(t, err)
	<-scheduler.Stop().Done()
	mockRepo.AssertExpectations(t)
}
