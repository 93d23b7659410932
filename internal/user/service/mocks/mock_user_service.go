package mocks

import (
	"context"

	"github.com/ridloal/retail-analytics-engine/internal/platform/auth"
	"github.com/ridloal/retail-analytics-engine/internal/user/domain"
	"github.com/stretchr/testify/mock"
)

type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) pair(args mock.Arguments) (*auth.TokenPair, error) {
	if p := args.Get(0); p != nil {
		return p.(*auth.TokenPair), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserService) user(args mock.Arguments) (*domain.User, error) {
	if u := args.Get(0); u != nil {
		return u.(*domain.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserService) Register(ctx context.Context, req domain.RegisterRequest, client domain.ClientInfo) (*auth.TokenPair, error) {
	return m.pair(m.Called(ctx, req, client))
}

func (m *MockUserService) Login(ctx context.Context, req domain.LoginRequest, client domain.ClientInfo) (*auth.TokenPair, error) {
	return m.pair(m.Called(ctx, req, client))
}

func (m *MockUserService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	return m.pair(m.Called(ctx, refreshToken))
}

func (m *MockUserService) Me(ctx context.Context, email string) (*domain.User, error) {
	return m.user(m.Called(ctx, email))
}

func (m *MockUserService) UpdateProfile(ctx context.Context, email string, req domain.UpdateProfileRequest) (*domain.User, error) {
	return m.user(m.Called(ctx, email, req))
}

func (m *MockUserService) ListUsers(ctx context.Context, skip, limit int) ([]domain.User, error) {
	args := m.Called(ctx, skip, limit)
	if u := args.Get(0); u != nil {
		return u.([]domain.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserService) UpdateRole(ctx context.Context, id string, role domain.Role) (*domain.User, error) {
	return m.user(m.Called(ctx, id, role))
}

func (m *MockUserService) SweepLockouts(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}
