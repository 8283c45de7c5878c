// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/errs"
	"golang.org/x/crypto/bcrypt"
)

// ErrNoAPIKey is returned when a key id does not exist.
var ErrNoAPIKey = errs.Class("api key not found")

// apiKeySecretBytes is the entropy of the secret part of a key.
const apiKeySecretBytes = 32

// APIKey is the stored form of a user-minted key. Only the salted hash of
// the secret is persisted; the plaintext is shown once at issue time.
type APIKey struct {
	ID         string
	UserID     string
	Name       string
	SaltedHash []byte
	CreatedAt  time.Time
	ExpiresAt  *time.Time
}

// APIKeys is the repository for user-minted keys.
type APIKeys interface {
	Create(ctx context.Context, key APIKey) error
	Get(ctx context.Context, id string) (*APIKey, error)
	ListByUser(ctx context.Context, userID string) ([]APIKey, error)
	Delete(ctx context.Context, userID, id string) error
}

// IssuedKey is returned once when a key is created.
type IssuedKey struct {
	ID        string
	Plaintext string
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// IssueAPIKey mints a new key for the user and stores its hash.
func (service *Service) IssueAPIKey(ctx context.Context, userID, name string, expiresAt *time.Time) (_ *IssuedKey, err error) {
	defer mon.Task()(&ctx)(&err)

	secret := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return nil, Error.Wrap(err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(secret)
	id := uuid.NewString()

	hash, err := bcrypt.GenerateFromPassword([]byte(encoded), service.passwordCost)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	key := APIKey{
		ID:         id,
		UserID:     userID,
		Name:       name,
		SaltedHash: hash,
		CreatedAt:  time.Now().UTC(),
		ExpiresAt:  expiresAt,
	}
	if err := service.keys.Create(ctx, key); err != nil {
		return nil, Error.Wrap(err)
	}

	return &IssuedKey{
		ID:        id,
		Plaintext: id + "." + encoded,
		CreatedAt: key.CreatedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// VerifyAPIKey checks a presented plaintext key and returns its owner.
// bcrypt's comparison is constant time over the hashed secret.
func (service *Service) VerifyAPIKey(ctx context.Context, plaintext string) (_ Principal, err error) {
	defer mon.Task()(&ctx)(&err)

	id, secret, found := strings.Cut(plaintext, ".")
	if !found {
		return Principal{}, ErrUnauthorized.New("malformed api key")
	}

	key, err := service.keys.Get(ctx, id)
	if err != nil {
		return Principal{}, ErrUnauthorized.New("unknown api key")
	}
	if key.ExpiresAt != nil && key.ExpiresAt.Before(time.Now()) {
		return Principal{}, ErrUnauthorized.New("api key expired")
	}
	if err := bcrypt.CompareHashAndPassword(key.SaltedHash, []byte(secret)); err != nil {
		return Principal{}, ErrUnauthorized.New("api key mismatch")
	}
	return Principal{UserID: key.UserID}, nil
}

// ListAPIKeys returns the caller's keys without hashes.
func (service *Service) ListAPIKeys(ctx context.Context, userID string) (_ []APIKey, err error) {
	defer mon.Task()(&ctx)(&err)

	keys, err := service.keys.ListByUser(ctx, userID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	for i := range keys {
		keys[i].SaltedHash = nil
	}
	return keys, nil
}

// RevokeAPIKey deletes the key when it belongs to the user.
func (service *Service) RevokeAPIKey(ctx context.Context, userID, id string) (err error) {
	defer mon.Task()(&ctx)(&err)
	return service.keys.Delete(ctx, userID, id)
}
