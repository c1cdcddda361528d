package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/skingford/sso-web/internal/models"
)

var (
	// ErrUserNotFound is returned when a user does not exist in the directory.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when creating a user whose ID or username is taken.
	ErrUserExists = errors.New("user already exists")
)

// UserRepository is the user directory: the source of identity claims and
// resource-owner credentials.
type UserRepository interface {
	// CreateUser adds a user. The password must already be hashed.
	CreateUser(ctx context.Context, user *models.UserWithPassword) error

	// GetUserByID retrieves a user by ID, or ErrUserNotFound.
	GetUserByID(ctx context.Context, userID string) (*models.UserWithPassword, error)

	// GetUserByUsername retrieves a user by username (case-insensitive), or ErrUserNotFound.
	GetUserByUsername(ctx context.Context, username string) (*models.UserWithPassword, error)

	// ListUsers returns all active users without password hashes.
	ListUsers(ctx context.Context) ([]*models.User, error)
}

// MemoryUserRepository keeps users in process memory, filled from the seed
// file when no PostgreSQL database is configured.
type MemoryUserRepository struct {
	mu         sync.RWMutex
	byID       map[string]*models.UserWithPassword
	byUsername map[string]string
}

// NewMemoryUserRepository creates an empty in-memory user directory.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:       make(map[string]*models.UserWithPassword),
		byUsername: make(map[string]string),
	}
}

// CreateUser stores a copy of user.
func (r *MemoryUserRepository) CreateUser(_ context.Context, user *models.UserWithPassword) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	username := strings.ToLower(user.Username)
	if _, ok := r.byID[user.ID]; ok {
		return ErrUserExists
	}
	if _, ok := r.byUsername[username]; ok {
		return ErrUserExists
	}

	stored := *user
	stored.Roles = append([]string(nil), user.Roles...)
	r.byID[user.ID] = &stored
	r.byUsername[username] = user.ID
	return nil
}

// GetUserByID returns a copy of the user with the given ID.
func (r *MemoryUserRepository) GetUserByID(_ context.Context, userID string) (*models.UserWithPassword, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *user
	return &out, nil
}

// GetUserByUsername returns a copy of the user with the given username.
func (r *MemoryUserRepository) GetUserByUsername(ctx context.Context, username string) (*models.UserWithPassword, error) {
	r.mu.RLock()
	id, ok := r.byUsername[strings.ToLower(username)]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrUserNotFound
	}
	return r.GetUserByID(ctx, id)
}

// ListUsers returns the active users ordered by username.
func (r *MemoryUserRepository) ListUsers(_ context.Context) ([]*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]*models.User, 0, len(r.byID))
	for _, u := range r.byID {
		if u.IsActive {
			user := u.User
			users = append(users, &user)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}
