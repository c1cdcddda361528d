// Package startup provides service initialization helpers: loading the
// development seed files for OAuth2 clients and users.
package startup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/skingford/sso-web/internal/auth"
	"github.com/skingford/sso-web/internal/config"
	"github.com/skingford/sso-web/internal/models"
	"github.com/skingford/sso-web/internal/repository"
)

// ClientSeed is one client entry in the clients seed file. ClientSecret may be
// plaintext or an existing bcrypt hash.
type ClientSeed struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Name         string   `json:"name"`
	RedirectURIs []string `json:"redirect_uris"`
	Scopes       []string `json:"scopes"`
	GrantTypes   []string `json:"grant_types"`
	Inactive     bool     `json:"inactive,omitempty"`
}

// UserSeed is one user entry in the users seed file. Password may be
// plaintext or an existing bcrypt hash.
type UserSeed struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email,omitempty"`
	FullName string   `json:"full_name,omitempty"`
	Picture  string   `json:"picture,omitempty"`
	Password string   `json:"password"`
	Roles    []string `json:"roles,omitempty"`
	Inactive bool     `json:"inactive,omitempty"`
}

// ClientSeedFile is the clients seed file layout.
type ClientSeedFile struct {
	Clients []ClientSeed `json:"clients"`
}

// UserSeedFile is the users seed file layout.
type UserSeedFile struct {
	Users []UserSeed `json:"users"`
}

// SeedResult counts what a seed run created and skipped.
type SeedResult struct {
	ClientsCreated int
	ClientsSkipped int
	UsersCreated   int
	UsersSkipped   int
}

// Seeder loads the seed files into the client and user repositories.
// Entries whose ID already exists are left untouched.
type Seeder struct {
	config   config.SeedConfig
	clients  repository.ClientRepository
	users    repository.UserRepository
	logger   *logrus.Logger
	hashCost int
}

// NewSeeder creates a seeder. A zero hashCost uses the default bcrypt cost.
func NewSeeder(
	cfg config.SeedConfig,
	clients repository.ClientRepository,
	users repository.UserRepository,
	hashCost int,
	logger *logrus.Logger,
) *Seeder {
	return &Seeder{
		config:   cfg,
		clients:  clients,
		users:    users,
		logger:   logger,
		hashCost: hashCost,
	}
}

// Seed loads both files. A missing file is skipped with a warning.
func (s *Seeder) Seed(ctx context.Context) (*SeedResult, error) {
	result := &SeedResult{}
	if !s.config.Enabled {
		s.logger.Debug("Seeding disabled")
		return result, nil
	}

	if err := s.seedClients(ctx, result); err != nil {
		return result, err
	}
	if err := s.seedUsers(ctx, result); err != nil {
		return result, err
	}

	s.logger.WithFields(logrus.Fields{
		"clients_created": result.ClientsCreated,
		"clients_skipped": result.ClientsSkipped,
		"users_created":   result.UsersCreated,
		"users_skipped":   result.UsersSkipped,
	}).Info("Seed data loaded")
	return result, nil
}

func (s *Seeder) seedClients(ctx context.Context, result *SeedResult) error {
	var file ClientSeedFile
	found, err := readSeedFile(s.config.ClientsPath, &file)
	if err != nil {
		return fmt.Errorf("failed to load client seed file: %w", err)
	}
	if !found {
		s.logger.WithField("config_path", s.config.ClientsPath).Warn("Client seed file not found, skipping")
		return nil
	}

	now := time.Now().UTC()
	for i, seed := range file.Clients {
		if seed.ClientID == "" || seed.ClientSecret == "" {
			return fmt.Errorf("client seed %d: client_id and client_secret are required", i)
		}
		hash, hashErr := s.hash(seed.ClientSecret)
		if hashErr != nil {
			return fmt.Errorf("client seed %s: %w", seed.ClientID, hashErr)
		}

		client := &models.Client{
			ID:           seed.ClientID,
			SecretHash:   hash,
			Name:         seed.Name,
			RedirectURIs: seed.RedirectURIs,
			Scopes:       seed.Scopes,
			GrantTypes:   seed.GrantTypes,
			IsActive:     !seed.Inactive,
			CreatedAt:    now,
			UpdatedAt:    now,
			Metadata:     map[string]interface{}{"created_by": "seed"},
		}
		if err = s.clients.CreateClient(ctx, client); err != nil {
			if errors.Is(err, repository.ErrClientExists) {
				result.ClientsSkipped++
				continue
			}
			return fmt.Errorf("failed to seed client %s: %w", seed.ClientID, err)
		}
		result.ClientsCreated++

		s.logger.WithFields(logrus.Fields{
			"client_id":   client.ID,
			"client_name": client.Name,
		}).Debug("Client seeded")
	}
	return nil
}

func (s *Seeder) seedUsers(ctx context.Context, result *SeedResult) error {
	var file UserSeedFile
	found, err := readSeedFile(s.config.UsersPath, &file)
	if err != nil {
		return fmt.Errorf("failed to load user seed file: %w", err)
	}
	if !found {
		s.logger.WithField("config_path", s.config.UsersPath).Warn("User seed file not found, skipping")
		return nil
	}

	now := time.Now().UTC()
	for i, seed := range file.Users {
		if seed.ID == "" || seed.Username == "" || seed.Password == "" {
			return fmt.Errorf("user seed %d: id, username and password are required", i)
		}
		hash, hashErr := s.hash(seed.Password)
		if hashErr != nil {
			return fmt.Errorf("user seed %s: %w", seed.ID, hashErr)
		}

		user := &models.UserWithPassword{
			User: models.User{
				ID:        seed.ID,
				Username:  strings.ToLower(seed.Username),
				Email:     seed.Email,
				FullName:  seed.FullName,
				Picture:   seed.Picture,
				Roles:     seed.Roles,
				IsActive:  !seed.Inactive,
				CreatedAt: now,
				UpdatedAt: now,
			},
			PasswordHash: hash,
		}
		if err = s.users.CreateUser(ctx, user); err != nil {
			if errors.Is(err, repository.ErrUserExists) {
				result.UsersSkipped++
				continue
			}
			return fmt.Errorf("failed to seed user %s: %w", seed.ID, err)
		}
		result.UsersCreated++
	}
	return nil
}

// hash bcrypt-hashes plaintext and passes existing hashes through.
func (s *Seeder) hash(secret string) (string, error) {
	if IsBcryptHash(secret) {
		return secret, nil
	}
	if s.hashCost > 0 {
		return auth.HashSecretWithCost(secret, s.hashCost)
	}
	return auth.HashSecret(secret)
}

// IsBcryptHash reports whether s looks like a bcrypt hash.
func IsBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}

func readSeedFile(path string, v interface{}) (bool, error) {
	if err := validateConfigPath(path); err != nil {
		return false, fmt.Errorf("invalid config path: %w", err)
	}

	// #nosec G304 - path is validated above
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err = json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return true, nil
}

// validateConfigPath validates the config path to prevent directory traversal attacks.
func validateConfigPath(configPath string) error {
	cleanPath := filepath.Clean(configPath)

	if strings.Contains(cleanPath, "..") {
		return errors.New("directory traversal not allowed in config path")
	}
	if filepath.IsAbs(cleanPath) {
		if err := validateAbsolutePath(cleanPath); err != nil {
			return err
		}
	}
	if !strings.HasSuffix(strings.ToLower(cleanPath), ".json") {
		return errors.New("config file must be a JSON file")
	}
	return nil
}

// validateAbsolutePath checks if absolute path is in allowed directories.
func validateAbsolutePath(cleanPath string) error {
	allowedPrefixes := []string{
		"/app/configs/",
		"/etc/sso/",
		os.TempDir() + string(filepath.Separator),
	}
	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(cleanPath, prefix) {
			return nil
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		if strings.HasPrefix(cleanPath, filepath.Join(cwd, "configs")+string(filepath.Separator)) {
			return nil
		}
	}

	return errors.New("absolute paths not allowed outside of permitted directories")
}
