// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DPoPConfig controls RFC 9449 proof-of-possession checks.
type DPoPConfig struct {
	// Enabled requires a DPoP proof on the OIDC login round trip.
	Enabled bool
	// ReplayCacheSize bounds the jti replay cache; sized by expected traffic.
	ReplayCacheSize int
	// ProofLifetime is the accepted iat window.
	ProofLifetime time.Duration
}

const defaultProofLifetime = 5 * time.Minute

// replayCache tracks seen proof jti values until their window lapses.
type replayCache struct {
	seen *lru.Cache[string, time.Time]
}

func newReplayCache(size int) *replayCache {
	if size <= 0 {
		size = 4096
	}
	cache, _ := lru.New[string, time.Time](size)
	return &replayCache{seen: cache}
}

// remember records the jti and reports whether it was already present.
func (cache *replayCache) remember(jti string, exp time.Time) (replayed bool) {
	if expiry, ok := cache.seen.Get(jti); ok && time.Now().Before(expiry) {
		return true
	}
	cache.seen.Add(jti, exp)
	return false
}

type dpopClaims struct {
	Method string `json:"htm"`
	URL    string `json:"htu"`
	jwt.RegisteredClaims
}

type jwk struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// VerifyDPoP validates a DPoP proof JWT for the given request method and URL.
// The proof signature is checked against the JWK embedded in its header and
// the jti is rejected on re-use within the proof window.
func (service *Service) VerifyDPoP(ctx context.Context, proof, method, requestURL string) (err error) {
	defer mon.Task()(&ctx)(&err)

	lifetime := service.config.DPoP.ProofLifetime
	if lifetime <= 0 {
		lifetime = defaultProofLifetime
	}

	var claims dpopClaims
	token, err := jwt.ParseWithClaims(proof, &claims, func(token *jwt.Token) (interface{}, error) {
		if typ, _ := token.Header["typ"].(string); typ != "dpop+jwt" {
			return nil, ErrUnauthorized.New("proof typ is not dpop+jwt")
		}
		rawKey, ok := token.Header["jwk"]
		if !ok {
			return nil, ErrUnauthorized.New("proof has no embedded key")
		}
		return publicKeyFromJWK(rawKey)
	}, jwt.WithValidMethods([]string{"ES256", "ES384", "RS256"}))
	if err != nil {
		return ErrUnauthorized.Wrap(err)
	}
	if !token.Valid {
		return ErrUnauthorized.New("invalid proof")
	}

	if !strings.EqualFold(claims.Method, method) {
		return ErrUnauthorized.New("proof htm mismatch")
	}
	if !sameURI(claims.URL, requestURL) {
		return ErrUnauthorized.New("proof htu mismatch")
	}
	if claims.IssuedAt == nil {
		return ErrUnauthorized.New("proof has no iat")
	}
	age := time.Since(claims.IssuedAt.Time)
	if age < -lifetime || age > lifetime {
		return ErrUnauthorized.New("proof outside the accepted window")
	}
	if claims.ID == "" {
		return ErrUnauthorized.New("proof has no jti")
	}
	if service.replay.remember(claims.ID, claims.IssuedAt.Time.Add(lifetime)) {
		return ErrUnauthorized.New("proof jti replayed")
	}
	return nil
}

// sameURI compares htu values ignoring query and fragment, per RFC 9449.
func sameURI(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	return strings.EqualFold(ua.Scheme, ub.Scheme) &&
		strings.EqualFold(ua.Host, ub.Host) &&
		ua.Path == ub.Path
}

func publicKeyFromJWK(raw interface{}) (interface{}, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, ErrUnauthorized.Wrap(err)
	}
	var key jwk
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, ErrUnauthorized.Wrap(err)
	}

	switch key.Kty {
	case "EC":
		var curve elliptic.Curve
		switch key.Crv {
		case "P-256":
			curve = elliptic.P256()
		case "P-384":
			curve = elliptic.P384()
		default:
			return nil, ErrUnauthorized.New("unsupported curve %q", key.Crv)
		}
		x, err := base64.RawURLEncoding.DecodeString(key.X)
		if err != nil {
			return nil, ErrUnauthorized.Wrap(err)
		}
		y, err := base64.RawURLEncoding.DecodeString(key.Y)
		if err != nil {
			return nil, ErrUnauthorized.Wrap(err)
		}
		return &ecdsa.PublicKey{
			Curve: curve,
			X:     new(big.Int).SetBytes(x),
			Y:     new(big.Int).SetBytes(y),
		}, nil

	case "RSA":
		n, err := base64.RawURLEncoding.DecodeString(key.N)
		if err != nil {
			return nil, ErrUnauthorized.Wrap(err)
		}
		e, err := base64.RawURLEncoding.DecodeString(key.E)
		if err != nil {
			return nil, ErrUnauthorized.Wrap(err)
		}
		return &rsa.PublicKey{
			N: new(big.Int).SetBytes(n),
			E: int(new(big.Int).SetBytes(e).Int64()),
		}, nil
	}
	return nil, ErrUnauthorized.New("unsupported key type %q", key.Kty)
}
