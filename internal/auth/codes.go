package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/skingford/sso-web/internal/constants"
	"github.com/skingford/sso-web/internal/models"
	"github.com/skingford/sso-web/internal/redis"
)

const (
	// AuthorizationCodeTTL is how long an issued code may be redeemed.
	AuthorizationCodeTTL = 10 * time.Minute

	// codeStoreGrace keeps the record in the backend past its expiry so that
	// an expired code is reported as expired rather than unknown.
	codeStoreGrace = time.Minute
)

var (
	// ErrCodeNotFound means the code was never issued or was already redeemed.
	ErrCodeNotFound = errors.New("authorization code not found")
	// ErrCodeExpired means the code outlived its lifetime.
	ErrCodeExpired = errors.New("authorization code expired")
)

// IssueInput is the data bound to a new authorization code.
type IssueInput struct {
	ClientID            string
	RedirectURI         string
	ResourceOwnerID     string
	Scopes              []string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// CodeStore issues and redeems single-use authorization codes.
type CodeStore struct {
	store  redis.Store
	ttl    time.Duration
	logger *logrus.Logger
	opts   options
}

// NewCodeStore creates a CodeStore. A zero ttl uses AuthorizationCodeTTL.
func NewCodeStore(store redis.Store, ttl time.Duration, logger *logrus.Logger, opts ...Option) *CodeStore {
	if ttl <= 0 {
		ttl = AuthorizationCodeTTL
	}
	return &CodeStore{store: store, ttl: ttl, logger: logger, opts: newOptions(opts)}
}

func codeKey(code string) string {
	return constants.KeyPrefixAuthCode + code
}

// Issue mints a fresh code and stores its grant.
func (s *CodeStore) Issue(ctx context.Context, in IssueInput) (*models.AuthorizationGrant, error) {
	code, err := RandomHex(s.opts.random, AuthorizationCodeBytes)
	if err != nil {
		return nil, err
	}

	now := s.opts.now()
	grant := &models.AuthorizationGrant{
		Code:                code,
		ClientID:            in.ClientID,
		RedirectURI:         in.RedirectURI,
		ResourceOwnerID:     in.ResourceOwnerID,
		Scopes:              in.Scopes,
		Nonce:               in.Nonce,
		CodeChallenge:       in.CodeChallenge,
		CodeChallengeMethod: in.CodeChallengeMethod,
		IssuedAt:            now,
		ExpiresAt:           now.Add(s.ttl),
	}

	if err = redis.PutJSON(ctx, s.store, codeKey(code), grant, s.ttl+codeStoreGrace); err != nil {
		return nil, fmt.Errorf("failed to store authorization code: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"client_id": in.ClientID,
		"code":      redis.MaskToken(code),
	}).Debug("Authorization code stored")

	return grant, nil
}

// Redeem consumes the code. Exactly one concurrent caller wins; the rest see
// ErrCodeNotFound.
func (s *CodeStore) Redeem(ctx context.Context, code string) (*models.AuthorizationGrant, error) {
	if code == "" {
		return nil, ErrCodeNotFound
	}

	var grant models.AuthorizationGrant
	raw, err := redis.GetJSON(ctx, s.store, codeKey(code), &grant)
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to load authorization code: %w", err)
	}

	deleted, err := s.store.CompareAndDelete(ctx, codeKey(code), raw)
	if err != nil {
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}
	if !deleted {
		return nil, ErrCodeNotFound
	}

	if grant.IsExpiredAt(s.opts.now()) {
		return nil, ErrCodeExpired
	}

	return &grant, nil
}

// Sweep removes expired grants and returns how many were deleted.
func (s *CodeStore) Sweep(ctx context.Context) (int, error) {
	keys, err := s.store.Scan(ctx, constants.KeyPrefixAuthCode)
	if err != nil {
		return 0, fmt.Errorf("failed to scan authorization codes: %w", err)
	}

	now := s.opts.now()
	removed := 0
	for _, key := range keys {
		var grant models.AuthorizationGrant
		raw, getErr := redis.GetJSON(ctx, s.store, key, &grant)
		if getErr != nil {
			continue
		}
		if !grant.IsExpiredAt(now) {
			continue
		}
		if ok, delErr := s.store.CompareAndDelete(ctx, key, raw); delErr == nil && ok {
			removed++
		}
	}
	return removed, nil
}
