package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skingford/sso-web/internal/models"
)

// pgUniqueViolation is SQLSTATE 23505.
const pgUniqueViolation = "23505"

// PoolGetter is a function that returns the current database connection pool.
type PoolGetter func() *pgxpool.Pool

// PostgresUserRepository implements UserRepository for PostgreSQL database.
type PostgresUserRepository struct {
	getPool PoolGetter
	schema  string
}

// NewPostgresUserRepository creates a new PostgreSQL user repository.
// The poolGetter function allows the repository to always use the current
// active connection pool, supporting automatic reconnection.
func NewPostgresUserRepository(poolGetter PoolGetter, schema string) *PostgresUserRepository {
	if schema == "" {
		schema = "public"
	}
	return &PostgresUserRepository{
		getPool: poolGetter,
		schema:  schema,
	}
}

func (r *PostgresUserRepository) table() string {
	return pgx.Identifier{r.schema, "users"}.Sanitize()
}

func (r *PostgresUserRepository) selectColumns() string {
	return `SELECT user_id, username, email, full_name, picture, roles, password_hash,
		       is_active, created_at, updated_at
		FROM ` + r.table()
}

// CreateUser creates a new user in the database.
func (r *PostgresUserRepository) CreateUser(ctx context.Context, user *models.UserWithPassword) error {
	pool := r.getPool()
	if pool == nil {
		return errDBUnavailable
	}

	query := `
		INSERT INTO ` + r.table() + `
		(user_id, username, email, full_name, picture, roles, password_hash, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := pool.Exec(ctx, query,
		user.ID,
		user.Username,
		nullable(user.Email),
		nullable(user.FullName),
		nullable(user.Picture),
		user.Roles,
		user.PasswordHash,
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by ID.
func (r *PostgresUserRepository) GetUserByID(ctx context.Context, userID string) (*models.UserWithPassword, error) {
	return r.scanUser(ctx, r.selectColumns()+` WHERE user_id = $1`, userID)
}

// GetUserByUsername retrieves a user by username.
func (r *PostgresUserRepository) GetUserByUsername(
	ctx context.Context,
	username string,
) (*models.UserWithPassword, error) {
	return r.scanUser(ctx, r.selectColumns()+` WHERE lower(username) = lower($1)`, username)
}

// ListUsers returns all active users ordered by username.
func (r *PostgresUserRepository) ListUsers(ctx context.Context) ([]*models.User, error) {
	pool := r.getPool()
	if pool == nil {
		return nil, errDBUnavailable
	}

	rows, err := pool.Query(ctx, r.selectColumns()+` WHERE is_active = true ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, scanErr := scanUserRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		users = append(users, &user.User)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}

	return users, nil
}

// scanUser is a helper method to scan user data from database rows.
func (r *PostgresUserRepository) scanUser(
	ctx context.Context,
	query string,
	args ...interface{},
) (*models.UserWithPassword, error) {
	pool := r.getPool()
	if pool == nil {
		return nil, errDBUnavailable
	}

	user, err := scanUserRow(pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func scanUserRow(row pgx.Row) (*models.UserWithPassword, error) {
	var user models.UserWithPassword
	var email, fullName, picture *string

	err := row.Scan(
		&user.ID,
		&user.Username,
		&email,
		&fullName,
		&picture,
		&user.Roles,
		&user.PasswordHash,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	// Handle nullable fields
	if email != nil {
		user.Email = *email
	}
	if fullName != nil {
		user.FullName = *fullName
	}
	if picture != nil {
		user.Picture = *picture
	}

	return &user, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
