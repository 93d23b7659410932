package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ridloal/retail-analytics-engine/internal/platform/auth"
	"github.com/ridloal/retail-analytics-engine/internal/platform/logger"
	"github.com/ridloal/retail-analytics-engine/internal/platform/metrics"
	"github.com/ridloal/retail-analytics-engine/internal/platform/security"
	"github.com/ridloal/retail-analytics-engine/internal/user/domain"
	"github.com/ridloal/retail-analytics-engine/internal/user/repository"
	"github.com/robfig/cron/v3"
)

const (
	MaxLoginAttempts = 5
	LockoutDuration  = 30 * time.Minute

	DefaultListLimit = 100
	MaxListLimit     = 1000
)

var (
	ErrInvalidCredentials = errors.New("Incorrect email or password")
	ErrAccountLocked      = errors.New("Account is temporarily locked due to too many failed login attempts")
	ErrInactiveUser       = errors.New("Inactive user")
	ErrUserAlreadyExists  = errors.New("User with this email or username already exists")
	ErrUsernameTaken      = errors.New("Username already taken")
	ErrInvalidRole        = errors.New("Invalid role")
	ErrUserNotFound       = errors.New("User not found")
	ErrInvalidToken       = errors.New("Could not validate credentials")
)

// ValidationError carries the individual rule failures of a rejected request.
type ValidationError struct {
	Message string
	Details []string
}

func (e *ValidationError) Error() string {
	return e.Message + ": " + strings.Join(e.Details, "; ")
}

type UserService interface {
	Register(ctx context.Context, req domain.RegisterRequest, client domain.ClientInfo) (*auth.TokenPair, error)
	Login(ctx context.Context, req domain.LoginRequest, client domain.ClientInfo) (*auth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	Me(ctx context.Context, email string) (*domain.User, error)
	UpdateProfile(ctx context.Context, email string, req domain.UpdateProfileRequest) (*domain.User, error)
	ListUsers(ctx context.Context, skip, limit int) ([]domain.User, error)
	UpdateRole(ctx context.Context, id string, role domain.Role) (*domain.User, error)
	SweepLockouts(ctx context.Context) (int64, error)
}

type userService struct {
	repo    repository.UserRepository
	tokens  *auth.TokenManager
	metrics *metrics.Registry
	now     func() time.Time

	// sendVerification runs after a successful registration, off the request path.
	sendVerification func(email string)
}

func NewUserService(repo repository.UserRepository, tokens *auth.TokenManager, m *metrics.Registry) UserService {
	return newUserService(repo, tokens, m)
}

func newUserService(repo repository.UserRepository, tokens *auth.TokenManager, m *metrics.Registry) *userService {
	return &userService{
		repo:    repo,
		tokens:  tokens,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
		sendVerification: func(email string) {
			logger.Info("Verification email queued for %s", email)
		},
	}
}

func (s *userService) Register(ctx context.Context, req domain.RegisterRequest, client domain.ClientInfo) (*auth.TokenPair, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))

	var problems []string
	username, err := auth.NormalizeUsername(req.Username)
	if err != nil {
		problems = append(problems, err.Error())
	}
	problems = append(problems, auth.ValidatePasswordStrength(req.Password)...)
	if len(problems) > 0 {
		return nil, &ValidationError{Message: "Invalid registration data", Details: problems}
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.Error("Register: failed to hash password", err)
		return nil, fmt.Errorf("could not process registration: %w", err)
	}

	var fullName *string
	if req.FullName != nil {
		clean := strings.TrimSpace(security.SanitizeInput(*req.FullName))
		if clean != "" {
			fullName = &clean
		}
	}

	user := &domain.User{
		Email:        email,
		Username:     username,
		PasswordHash: hashedPassword,
		FullName:     fullName,
		Role:         domain.RoleUser,
		IsActive:     true,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserConflict) {
			logger.AuthEvent("registration", email, false, client.IP, client.UserAgent)
			return nil, ErrUserAlreadyExists
		}
		logger.Error("Register: failed to create user in repo", err)
		return nil, fmt.Errorf("could not save user: %w", err)
	}

	pair, err := s.tokens.IssuePair(user.Email, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("could not generate token: %w", err)
	}

	logger.AuthEvent("registration", user.Email, true, client.IP, client.UserAgent)
	go s.sendVerification(user.Email)
	return pair, nil
}

func (s *userService) Login(ctx context.Context, req domain.LoginRequest, client domain.ClientInfo) (*auth.TokenPair, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.loginFailed(email, "user_not_found", client)
			return nil, ErrInvalidCredentials
		}
		logger.Error("Login: failed to get user by email", err)
		return nil, fmt.Errorf("could not load user: %w", err)
	}

	now := s.now()
	if user.IsLocked(now) {
		s.loginFailed(email, "account_locked", client)
		return nil, ErrAccountLocked
	}

	if !auth.VerifyPassword(req.Password, user.PasswordHash) {
		attempts := user.LoginAttempts + 1
		var lockedUntil *time.Time
		if attempts >= MaxLoginAttempts {
			until := now.Add(LockoutDuration)
			lockedUntil = &until
			logger.SecurityEvent("account_locked", "high", map[string]interface{}{
				"email": email, "attempts": attempts,
			}, client.IP)
		}
		if err := s.repo.RecordLoginFailure(ctx, user.ID, attempts, lockedUntil); err != nil {
			logger.Error("Login: failed to record failed attempt", err)
		}
		s.loginFailed(email, "wrong_password", client)
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		s.loginFailed(email, "inactive_user", client)
		return nil, ErrInactiveUser
	}

	if err := s.repo.RecordLoginSuccess(ctx, user.ID, now); err != nil {
		logger.Error("Login: failed to record login", err)
	}

	pair, err := s.tokens.IssuePair(user.Email, string(user.Role))
	if err != nil {
		logger.Error("Login: failed to sign token", err)
		return nil, fmt.Errorf("could not generate token: %w", err)
	}

	s.countAuth("success")
	logger.AuthEvent("login", user.Email, true, client.IP, client.UserAgent)
	return pair, nil
}

func (s *userService) loginFailed(email, reason string, client domain.ClientInfo) {
	s.countAuth("failure")
	if s.metrics != nil {
		s.metrics.FailedLogins.WithLabelValues(reason).Inc()
	}
	logger.AuthEvent("login", email, false, client.IP, client.UserAgent)
}

func (s *userService) countAuth(result string) {
	if s.metrics != nil {
		s.metrics.AuthAttempts.WithLabelValues(result).Inc()
	}
}

func (s *userService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	claims, err := s.tokens.VerifyType(refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.repo.GetUserByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("could not load user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	pair, err := s.tokens.IssuePair(claims.Subject, claims.Role)
	if err != nil {
		return nil, fmt.Errorf("could not generate token: %w", err)
	}
	return pair, nil
}

// Me resolves the authenticated subject to an active user.
func (s *userService) Me(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("could not load user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	return user, nil
}

func (s *userService) UpdateProfile(ctx context.Context, email string, req domain.UpdateProfileRequest) (*domain.User, error) {
	user, err := s.Me(ctx, email)
	if err != nil {
		return nil, err
	}

	if req.Username != nil {
		username, err := auth.NormalizeUsername(*req.Username)
		if err != nil {
			return nil, &ValidationError{Message: "Invalid profile data", Details: []string{err.Error()}}
		}
		if username != user.Username {
			existing, err := s.repo.GetUserByUsername(ctx, username)
			switch {
			case err == nil && existing.ID != user.ID:
				return nil, ErrUsernameTaken
			case err != nil && !errors.Is(err, repository.ErrUserNotFound):
				return nil, fmt.Errorf("could not check username: %w", err)
			}
			user.Username = username
		}
	}
	if req.FullName != nil {
		clean := strings.TrimSpace(security.SanitizeInput(*req.FullName))
		user.FullName = &clean
	}

	if err := s.repo.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserConflict) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("could not update user: %w", err)
	}
	return user, nil
}

func (s *userService) ListUsers(ctx context.Context, skip, limit int) ([]domain.User, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	users, err := s.repo.ListUsers(ctx, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("could not list users: %w", err)
	}
	return users, nil
}

func (s *userService) UpdateRole(ctx context.Context, id string, role domain.Role) (*domain.User, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("could not load user: %w", err)
	}
	user.Role = role
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("could not update user: %w", err)
	}
	logger.Info("Role of user %s changed to %s", user.ID, role)
	return user, nil
}

func (s *userService) SweepLockouts(ctx context.Context) (int64, error) {
	n, err := s.repo.ClearExpiredLocks(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("could not clear expired lockouts: %w", err)
	}
	if n > 0 {
		logger.Info("Cleared %d expired account lockouts", n)
	}
	return n, nil
}

// StartLockoutSweep schedules SweepLockouts on spec. The caller stops the
// returned scheduler on shutdown.
func StartLockoutSweep(svc UserService, spec string) (*cron.Cron, error) {
	scheduler := cron.New()
	_, err := scheduler.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := svc.SweepLockouts(ctx); err != nil {
			logger.Error("Scheduler: lockout sweep failed", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid lockout sweep spec %q: %w", spec, err)
	}
	scheduler.Start()
	logger.Info("Lockout sweep scheduler initialized with spec '%s'", spec)
	return scheduler, nil
}
