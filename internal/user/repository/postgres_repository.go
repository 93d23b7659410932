package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ridloal/retail-analytics-engine/internal/platform/database"
	"github.com/ridloal/retail-analytics-engine/internal/platform/logger"
	"github.com/ridloal/retail-analytics-engine/internal/user/domain"
)

var ErrUserNotFound = errors.New("user not found")
var ErrUserConflict = errors.New("user with this email or username already exists")

// Schema creates the users table. It runs unchanged on PostgreSQL and SQLite.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(36) PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		username VARCHAR(50) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		full_name VARCHAR(255),
		role VARCHAR(20) NOT NULL DEFAULT 'user',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_verified BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		last_login TIMESTAMP,
		login_attempts INTEGER NOT NULL DEFAULT 0,
		locked_until TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_locked_until ON users (locked_until)`,
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	UpdateUser(ctx context.Context, user *domain.User) error
	ListUsers(ctx context.Context, skip, limit int) ([]domain.User, error)
	RecordLoginFailure(ctx context.Context, id string, attempts int, lockedUntil *time.Time) error
	RecordLoginSuccess(ctx context.Context, id string, at time.Time) error
	ClearExpiredLocks(ctx context.Context, now time.Time) (int64, error)
}

type postgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) UserRepository {
	return &postgresUserRepository{db: db}
}

const userColumns = `id, email, username, password_hash, full_name, role, is_active, is_verified,
	created_at, updated_at, last_login, login_attempts, locked_until`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	user := &domain.User{}
	var (
		fullName    sql.NullString
		role        string
		lastLogin   sql.NullTime
		lockedUntil sql.NullTime
	)
	err := row.Scan(
		&user.ID, &user.Email, &user.Username, &user.PasswordHash, &fullName, &role,
		&user.IsActive, &user.IsVerified, &user.CreatedAt, &user.UpdatedAt,
		&lastLogin, &user.LoginAttempts, &lockedUntil,
	)
	if err != nil {
		return nil, err
	}
	user.Role = domain.Role(role)
	if fullName.Valid {
		user.FullName = &fullName.String
	}
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		user.LastLogin = &t
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time.UTC()
		user.LockedUntil = &t
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func (r *postgresUserRepository) CreateUser(ctx context.Context, user *domain.User) error {
	query := `INSERT INTO users (id, email, username, password_hash, full_name, role, is_active, is_verified,
              created_at, updated_at, login_attempts)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0)`

	now := time.Now().UTC()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = domain.RoleUser
	}

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Username, user.PasswordHash, nullString(user.FullName),
		string(user.Role), user.IsActive, user.IsVerified, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			logger.Warn("CreateUser: unique violation for %s", user.Email)
			return ErrUserConflict
		}
		logger.Error("CreateUser: failed to insert user", err)
		return err
	}
	return nil
}

func (r *postgresUserRepository) getUserBy(ctx context.Context, field, value string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + field + ` = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		logger.Error("GetUserBy"+field+": query failed", err)
		return nil, err
	}
	return user, nil
}

func (r *postgresUserRepository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getUserBy(ctx, "id", id)
}

func (r *postgresUserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getUserBy(ctx, "email", email)
}

func (r *postgresUserRepository) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getUserBy(ctx, "username", username)
}

// UpdateUser persists the mutable profile fields: username, full name, role and flags.
func (r *postgresUserRepository) UpdateUser(ctx context.Context, user *domain.User) error {
	query := `UPDATE users SET username = $1, full_name = $2, role = $3, is_active = $4, is_verified = $5, updated_at = $6
              WHERE id = $7`

	user.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, query,
		user.Username, nullString(user.FullName), string(user.Role), user.IsActive, user.IsVerified,
		user.UpdatedAt, user.ID,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrUserConflict
		}
		logger.Error("UpdateUser: failed to update user", err)
		return err
	}
	return expectOneRow(res)
}

func (r *postgresUserRepository) ListUsers(ctx context.Context, skip, limit int) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at, id LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, limit, skip)
	if err != nil {
		logger.Error("ListUsers: query failed", err)
		return nil, err
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (r *postgresUserRepository) RecordLoginFailure(ctx context.Context, id string, attempts int, lockedUntil *time.Time) error {
	query := `UPDATE users SET login_attempts = $1, locked_until = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, attempts, nullTime(lockedUntil), id)
	if err != nil {
		logger.Error("RecordLoginFailure: update failed", err)
		return err
	}
	return expectOneRow(res)
}

func (r *postgresUserRepository) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE users SET login_attempts = 0, locked_until = NULL, last_login = $1 WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, at.UTC(), id)
	if err != nil {
		logger.Error("RecordLoginSuccess: update failed", err)
		return err
	}
	return expectOneRow(res)
}

// ClearExpiredLocks resets attempts for every account whose lockout ended before now.
func (r *postgresUserRepository) ClearExpiredLocks(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE users SET login_attempts = 0, locked_until = NULL
              WHERE locked_until IS NOT NULL AND locked_until <= $1`
	res, err := r.db.ExecContext(ctx, query, now.UTC())
	if err != nil {
		logger.Error("ClearExpiredLocks: update failed", err)
		return 0, err
	}
	return res.RowsAffected()
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}
