package models

import (
	"errors"
	"strings"
	"time"
)

// User is a resource owner as seen by the authorization server. The user
// directory is an external collaborator; this is the projection needed for
// login and identity claims.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	FullName  string    `json:"full_name,omitempty"`
	Picture   string    `json:"picture,omitempty"`
	Roles     []string  `json:"roles,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserWithPassword carries the password hash next to the user. It never
// leaves the service.
type UserWithPassword struct {
	User

	PasswordHash string `json:"-"`
}

// UserInfo projects the user onto OpenID Connect claims, filtered by the
// granted scopes: profile adds name, preferred_username and picture; email
// adds email.
func (u *User) UserInfo(scopes []string) *UserInfo {
	info := &UserInfo{Subject: u.ID, UpdatedAt: u.UpdatedAt.Unix()}
	for _, s := range scopes {
		switch s {
		case "profile":
			info.Name = u.FullName
			info.PreferredUsername = u.Username
			info.Picture = u.Picture
		case "email":
			info.Email = u.Email
			info.EmailVerified = u.Email != ""
		}
	}
	return info
}

// LoginRequest authenticates a resource owner and opens a session.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate normalizes and checks the login request.
func (req *LoginRequest) Validate() error {
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	if req.Username == "" {
		return errors.New("username is required")
	}
	if req.Password == "" {
		return errors.New("password cannot be empty")
	}
	return nil
}

// LoginResponse is returned after a successful login.
type LoginResponse struct {
	User      User      `json:"user"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LogoutResponse is returned after a logout.
type LogoutResponse struct {
	Message            string `json:"message"`
	SessionInvalidated bool   `json:"session_invalidated"`
}
