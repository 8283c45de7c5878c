// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package auth_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"submitter.io/submitter/submitter/auth"
)

// memKeys is an in-memory auth.APIKeys.
type memKeys struct {
	mu   sync.Mutex
	keys map[string]auth.APIKey
}

func newMemKeys() *memKeys { return &memKeys{keys: map[string]auth.APIKey{}} }

func (m *memKeys) Create(ctx context.Context, key auth.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key.ID] = key
	return nil
}

func (m *memKeys) Get(ctx context.Context, id string) (*auth.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[id]
	if !ok {
		return nil, auth.ErrNoAPIKey.New("%s", id)
	}
	return &key, nil
}

func (m *memKeys) ListByUser(ctx context.Context, userID string) (keys []auth.APIKey, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range m.keys {
		if key.UserID == userID {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (m *memKeys) Delete(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[id]
	if !ok || key.UserID != userID {
		return auth.ErrNoAPIKey.New("%s", id)
	}
	delete(m.keys, id)
	return nil
}

func newTestService(t *testing.T, config auth.Config) *auth.Service {
	if config.JWTSecret == "" {
		config.JWTSecret = "test-secret"
	}
	if config.Issuer == "" {
		config.Issuer = "http://localhost:8080"
	}
	service, err := auth.NewService(zaptest.NewLogger(t), config, newMemKeys())
	require.NoError(t, err)
	service.TestSetPasswordCost(bcrypt.MinCost)
	return service
}

func TestSessionTokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t, auth.Config{TokenLifetime: time.Minute})

	token, expiresAt, err := service.MintSessionToken(ctx, "user-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expiresAt, 10*time.Second)

	principal, err := service.VerifySessionToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", principal.UserID)

	_, err = service.VerifySessionToken(ctx, token+"tampered")
	require.True(t, auth.ErrUnauthorized.Has(err))

	_, err = service.VerifySessionToken(ctx, "not-a-token")
	require.True(t, auth.ErrUnauthorized.Has(err))
}

func TestSessionTokenIssuer(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t, auth.Config{Issuer: "http://a.example"})
	other := newTestService(t, auth.Config{Issuer: "http://b.example"})

	token, _, err := service.MintSessionToken(ctx, "user-1")
	require.NoError(t, err)

	_, err = other.VerifySessionToken(ctx, token)
	require.True(t, auth.ErrUnauthorized.Has(err))
}

func TestTokenLifetimeClamped(t *testing.T) {
	service := newTestService(t, auth.Config{TokenLifetime: 48 * time.Hour})
	assert.Equal(t, time.Hour, service.Config().TokenLifetime)

	_, err := auth.NewService(zaptest.NewLogger(t), auth.Config{}, newMemKeys())
	require.Error(t, err)
}

func TestAPIKeyRoundTrip(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t, auth.Config{})

	issued, err := service.IssueAPIKey(ctx, "user-1", "ci", nil)
	require.NoError(t, err)
	require.NotEmpty(t, issued.Plaintext)

	principal, err := service.VerifyAPIKey(ctx, issued.Plaintext)
	require.NoError(t, err)
	assert.Equal(t, "user-1", principal.UserID)

	_, err = service.VerifyAPIKey(ctx, issued.ID+".wrong-secret")
	require.True(t, auth.ErrUnauthorized.Has(err))

	_, err = service.VerifyAPIKey(ctx, "malformed")
	require.True(t, auth.ErrUnauthorized.Has(err))

	keys, err := service.ListAPIKeys(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "ci", keys[0].Name)
	// hashes never leave the service
	assert.Nil(t, keys[0].SaltedHash)

	require.NoError(t, service.RevokeAPIKey(ctx, "user-1", issued.ID))
	_, err = service.VerifyAPIKey(ctx, issued.Plaintext)
	require.True(t, auth.ErrUnauthorized.Has(err))
}

func TestAPIKeyExpiry(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t, auth.Config{})

	past := time.Now().Add(-time.Hour)
	issued, err := service.IssueAPIKey(ctx, "user-1", "expired", &past)
	require.NoError(t, err)

	_, err = service.VerifyAPIKey(ctx, issued.Plaintext)
	require.True(t, auth.ErrUnauthorized.Has(err))
}

func TestAPIKeyRevokeOtherUser(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t, auth.Config{})

	issued, err := service.IssueAPIKey(ctx, "user-1", "mine", nil)
	require.NoError(t, err)

	// another user cannot revoke it
	err = service.RevokeAPIKey(ctx, "user-2", issued.ID)
	require.Error(t, err)

	_, err = service.VerifyAPIKey(ctx, issued.Plaintext)
	require.NoError(t, err)
}

func TestDeriveUserID(t *testing.T) {
	first := auth.DeriveUserID("https://issuer.example", "subject-1")
	assert.Len(t, first, 32)
	assert.Equal(t, first, auth.DeriveUserID("https://issuer.example", "subject-1"))
	assert.NotEqual(t, first, auth.DeriveUserID("https://other.example", "subject-1"))
	assert.NotEqual(t, first, auth.DeriveUserID("https://issuer.example", "subject-2"))
}

// signProof builds a DPoP proof JWT bound to the given key.
func signProof(t *testing.T, key *ecdsa.PrivateKey, claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["typ"] = "dpop+jwt"
	token.Header["jwk"] = map[string]any{
		"kty": "EC",
		"crv": "P-256",
		"x":   base64.RawURLEncoding.EncodeToString(key.X.FillBytes(make([]byte, 32))),
		"y":   base64.RawURLEncoding.EncodeToString(key.Y.FillBytes(make([]byte, 32))),
	}
	proof, err := token.SignedString(key)
	require.NoError(t, err)
	return proof
}

func TestVerifyDPoP(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t, auth.Config{
		DPoP: auth.DPoPConfig{Enabled: true, ReplayCacheSize: 16, ProofLifetime: time.Minute},
	})

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	const target = "https://api.example/v1/aai"
	proof := signProof(t, key, jwt.MapClaims{
		"htm": "POST",
		"htu": target,
		"iat": time.Now().Unix(),
		"jti": "proof-1",
	})

	require.NoError(t, service.VerifyDPoP(ctx, proof, "POST", target))

	// htu comparison ignores the query string
	fresh := signProof(t, key, jwt.MapClaims{
		"htm": "POST",
		"htu": target,
		"iat": time.Now().Unix(),
		"jti": "proof-2",
	})
	require.NoError(t, service.VerifyDPoP(ctx, fresh, "POST", target+"?state=abc"))

	// replaying a jti is rejected
	err = service.VerifyDPoP(ctx, proof, "POST", target)
	require.True(t, auth.ErrUnauthorized.Has(err))
}

func TestVerifyDPoPRejections(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t, auth.Config{
		DPoP: auth.DPoPConfig{Enabled: true, ProofLifetime: time.Minute},
	})

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	const target = "https://api.example/v1/aai"

	mismatchedMethod := signProof(t, key, jwt.MapClaims{
		"htm": "GET", "htu": target, "iat": time.Now().Unix(), "jti": "r-1",
	})
	err = service.VerifyDPoP(ctx, mismatchedMethod, "POST", target)
	require.True(t, auth.ErrUnauthorized.Has(err))

	mismatchedURL := signProof(t, key, jwt.MapClaims{
		"htm": "POST", "htu": "https://elsewhere.example/v1/aai", "iat": time.Now().Unix(), "jti": "r-2",
	})
	err = service.VerifyDPoP(ctx, mismatchedURL, "POST", target)
	require.True(t, auth.ErrUnauthorized.Has(err))

	stale := signProof(t, key, jwt.MapClaims{
		"htm": "POST", "htu": target, "iat": time.Now().Add(-time.Hour).Unix(), "jti": "r-3",
	})
	err = service.VerifyDPoP(ctx, stale, "POST", target)
	require.True(t, auth.ErrUnauthorized.Has(err))

	missingJTI := signProof(t, key, jwt.MapClaims{
		"htm": "POST", "htu": target, "iat": time.Now().Unix(),
	})
	err = service.VerifyDPoP(ctx, missingJTI, "POST", target)
	require.True(t, auth.ErrUnauthorized.Has(err))

	// a proof missing the dpop+jwt typ is rejected outright
	plain := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"htm": "POST", "htu": target, "iat": time.Now().Unix(), "jti": "r-4",
	})
	signed, err := plain.SignedString(key)
	require.NoError(t, err)
	err = service.VerifyDPoP(ctx, signed, "POST", target)
	require.True(t, auth.ErrUnauthorized.Has(err))
}
