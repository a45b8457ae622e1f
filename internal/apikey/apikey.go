// Package apikey issues and authenticates programmatic API keys.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradedesk/internal/model"
)

const (
	keyPrefix     = "pk_"
	keyBytes      = 32
	displayPrefix = 10
	maxNameLen    = 100
	maxExpiryDays = 365
)

// Service manages API keys.
type Service struct {
	keys  model.APIKeyStore
	users model.UserStore
	now   func() time.Time
}

// NewService creates a Service.
func NewService(keys model.APIKeyStore, users model.UserStore) *Service {
	return &Service{keys: keys, users: users, now: time.Now}
}

// CreateInput is the create form.
type CreateInput struct {
	Name          string   `json:"name"`
	Scopes        []string `json:"scopes"`
	ExpiresInDays *int     `json:"expires_in_days"`
}

// UpdateInput changes name and/or scopes.
type UpdateInput struct {
	Name   *string   `json:"name"`
	Scopes *[]string `json:"scopes"`
}

// Created is a new key with its one-time plaintext value.
type Created struct {
	model.APIKey
	Key string `json:"key"`
}

// Hash returns the stored digest of a key value.
func Hash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func generate() (string, error) {
	b := make([]byte, keyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("apikey: generate: %w", err)
	}
	return keyPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

func validName(name string) error {
	n := strings.TrimSpace(name)
	if n == "" || len(n) > maxNameLen {
		return model.Invalid("name must be 1-100 characters")
	}
	return nil
}

// Create issues a key for userID. The plaintext value is returned only here.
func (s *Service) Create(ctx context.Context, userID int64, in CreateInput) (*Created, error) {
	var errs []string
	if err := validName(in.Name); err != nil {
		errs = append(errs, err.Error())
	}
	if in.ExpiresInDays != nil && (*in.ExpiresInDays <= 0 || *in.ExpiresInDays > maxExpiryDays) {
		errs = append(errs, "expires_in_days must be between 1 and 365")
	}
	if len(errs) > 0 {
		return nil, model.Invalid(errs...)
	}

	value, err := generate()
	if err != nil {
		return nil, err
	}
	k := model.APIKey{
		UserID:   userID,
		Name:     strings.TrimSpace(in.Name),
		KeyHash:  Hash(value),
		Prefix:   value[:displayPrefix],
		Scopes:   in.Scopes,
		IsActive: true,
	}
	if in.ExpiresInDays != nil {
		exp := s.now().UTC().Add(time.Duration(*in.ExpiresInDays) * 24 * time.Hour)
		k.ExpiresAt = &exp
	}
	if err := s.keys.CreateAPIKey(ctx, &k); err != nil {
		return nil, err
	}
	return &Created{APIKey: k, Key: value}, nil
}

// List returns the user's keys.
func (s *Service) List(ctx context.Context, userID int64) ([]model.APIKey, error) {
	return s.keys.ListAPIKeys(ctx, userID)
}

// Get returns a key owned by userID.
func (s *Service) Get(ctx context.Context, userID, id int64) (*model.APIKey, error) {
	k, err := s.keys.APIKey(ctx, id)
	if err != nil {
		return nil, err
	}
	if k.UserID != userID {
		return nil, model.E(model.ErrNotFound, "API key not found")
	}
	return k, nil
}

// Update changes name and/or scopes.
func (s *Service) Update(ctx context.Context, userID, id int64, in UpdateInput) (*model.APIKey, error) {
	if in.Name != nil {
		if err := validName(*in.Name); err != nil {
			return nil, err
		}
	}
	k, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		k.Name = strings.TrimSpace(*in.Name)
	}
	if in.Scopes != nil {
		k.Scopes = *in.Scopes
	}
	if err := s.keys.UpdateAPIKey(ctx, k); err != nil {
		return nil, err
	}
	return k, nil
}

// Revoke deactivates a key.
func (s *Service) Revoke(ctx context.Context, userID, id int64) (*model.APIKey, error) {
	k, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !k.IsActive {
		return nil, model.E(model.ErrInvalid, "API key is already revoked")
	}
	now := s.now().UTC()
	k.IsActive = false
	k.RevokedAt = &now
	if err := s.keys.UpdateAPIKey(ctx, k); err != nil {
		return nil, err
	}
	return k, nil
}

// Delete removes a key.
func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	return s.keys.DeleteAPIKey(ctx, id)
}

var errInvalidKey = model.E(model.ErrUnauthorized, "Invalid API key")

// Authenticate resolves a key value to its active owner and stamps last use.
func (s *Service) Authenticate(ctx context.Context, value string) (*model.User, *model.APIKey, error) {
	if !strings.HasPrefix(value, keyPrefix) {
		return nil, nil, errInvalidKey
	}
	k, err := s.keys.APIKeyByHash(ctx, Hash(value))
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil, errInvalidKey
	}
	if err != nil {
		return nil, nil, err
	}
	now := s.now().UTC()
	if !k.IsActive || k.Expired(now) {
		return nil, nil, errInvalidKey
	}
	u, err := s.users.UserByID(ctx, k.UserID)
	if err != nil {
		return nil, nil, errInvalidKey
	}
	if !u.IsActive {
		return nil, nil, model.E(model.ErrForbidden, "Inactive user")
	}
	k.LastUsedAt = &now
	if err := s.keys.UpdateAPIKey(ctx, k); err != nil {
		return nil, nil, err
	}
	return u, k, nil
}

// HasScope reports whether k grants scope. A key without scopes grants all.
func HasScope(k *model.APIKey, scope string) bool {
	if k == nil || len(k.Scopes) == 0 {
		return true
	}
	for _, s := range k.Scopes {
		if s == scope || s == "*" {
			return true
		}
	}
	return false
}
