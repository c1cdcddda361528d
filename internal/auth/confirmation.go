package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/skingford/sso-web/internal/audit"
	"github.com/skingford/sso-web/internal/constants"
	"github.com/skingford/sso-web/internal/models"
	"github.com/skingford/sso-web/internal/redis"
)

// DefaultConfirmationCodeTTL is the lifetime of a confirmation code.
const DefaultConfirmationCodeTTL = 5 * time.Minute

var (
	ErrConfirmationNotFound  = errors.New("confirmation code not found")
	ErrConfirmationExpired   = errors.New("confirmation code expired")
	ErrConfirmationForbidden = errors.New("confirmation code belongs to another user")
	ErrConfirmationMismatch  = errors.New("confirmation code mismatch")
)

// ConfirmationCodes issues short numeric codes that gate sensitive admin
// operations. A code is bound to the subject that requested it and is
// consumed by the first successful verification.
type ConfirmationCodes struct {
	store  redis.Store
	ttl    time.Duration
	sink   audit.Sink
	logger *logrus.Logger
	opts   options
}

// NewConfirmationCodes creates a ConfirmationCodes service. A zero ttl uses
// DefaultConfirmationCodeTTL.
func NewConfirmationCodes(store redis.Store, ttl time.Duration, sink audit.Sink, logger *logrus.Logger, opts ...Option) *ConfirmationCodes {
	if ttl <= 0 {
		ttl = DefaultConfirmationCodeTTL
	}
	return &ConfirmationCodes{store: store, ttl: ttl, sink: sink, logger: logger, opts: newOptions(opts)}
}

func confirmationKey(id string) string {
	return constants.KeyPrefixConfirmationCode + id
}

// TTL returns the code lifetime.
func (c *ConfirmationCodes) TTL() time.Duration {
	return c.ttl
}

// Generate issues a code for userID.
func (c *ConfirmationCodes) Generate(
	ctx context.Context,
	userID string,
	req *models.GenerateConfirmationCodeRequest,
) (*models.ConfirmationCode, error) {
	var errs models.ValidationErrors
	if req.Operation == "" {
		errs.Add("operation", "is required")
	}
	if req.AppID == "" {
		errs.Add("app_id", "is required")
	}
	if errs.HasErrors() {
		return nil, errs
	}

	digits, err := RandomDigits(c.opts.random, ConfirmationCodeDigits)
	if err != nil {
		return nil, err
	}

	now := c.opts.now()
	code := &models.ConfirmationCode{
		ID:        uuid.NewString(),
		Code:      digits,
		UserID:    userID,
		AppID:     req.AppID,
		Operation: req.Operation,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}
	if err = redis.PutJSON(ctx, c.store, confirmationKey(code.ID), code, c.ttl+codeStoreGrace); err != nil {
		return nil, fmt.Errorf("failed to store confirmation code: %w", err)
	}

	event := audit.NewEvent(models.AuditConfirmationIssued, true)
	event.Actor = userID
	event.Details = map[string]interface{}{"app_id": req.AppID, "operation": req.Operation}
	c.sink.Record(ctx, event)

	return code, nil
}

// Verify checks a code for userID and consumes it on success.
func (c *ConfirmationCodes) Verify(
	ctx context.Context,
	userID string,
	req *models.VerifyConfirmationCodeRequest,
) (*models.ConfirmationCode, error) {
	if req.CodeID == "" || req.ConfirmationCode == "" {
		return nil, models.ValidationErrors{{Field: "code_id", Message: "code_id and confirmation_code are required"}}
	}

	var stored models.ConfirmationCode
	raw, err := redis.GetJSON(ctx, c.store, confirmationKey(req.CodeID), &stored)
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return nil, ErrConfirmationNotFound
		}
		return nil, fmt.Errorf("failed to load confirmation code: %w", err)
	}

	if c.opts.now().After(stored.ExpiresAt) {
		_, _ = c.store.CompareAndDelete(ctx, confirmationKey(req.CodeID), raw)
		c.verified(ctx, userID, &stored, false)
		return nil, ErrConfirmationExpired
	}
	if stored.UserID != userID {
		c.verified(ctx, userID, &stored, false)
		return nil, ErrConfirmationForbidden
	}
	if subtle.ConstantTimeCompare([]byte(stored.Code), []byte(req.ConfirmationCode)) != 1 {
		c.verified(ctx, userID, &stored, false)
		return nil, ErrConfirmationMismatch
	}

	consumed, err := c.store.CompareAndDelete(ctx, confirmationKey(req.CodeID), raw)
	if err != nil {
		return nil, fmt.Errorf("failed to consume confirmation code: %w", err)
	}
	if !consumed {
		return nil, ErrConfirmationNotFound
	}

	c.verified(ctx, userID, &stored, true)
	return &stored, nil
}

func (c *ConfirmationCodes) verified(ctx context.Context, userID string, code *models.ConfirmationCode, success bool) {
	event := audit.NewEvent(models.AuditConfirmationChecked, success)
	event.Actor = userID
	event.Details = map[string]interface{}{"app_id": code.AppID, "operation": code.Operation}
	c.sink.Record(ctx, event)
}

// Sweep removes expired codes.
func (c *ConfirmationCodes) Sweep(ctx context.Context) (int, error) {
	keys, err := c.store.Scan(ctx, constants.KeyPrefixConfirmationCode)
	if err != nil {
		return 0, fmt.Errorf("failed to scan confirmation codes: %w", err)
	}

	now := c.opts.now()
	removed := 0
	for _, key := range keys {
		var code models.ConfirmationCode
		raw, getErr := redis.GetJSON(ctx, c.store, key, &code)
		if getErr != nil || !now.After(code.ExpiresAt) {
			continue
		}
		if ok, delErr := c.store.CompareAndDelete(ctx, key, raw); delErr == nil && ok {
			removed++
		}
	}
	return removed, nil
}
