// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Config holds auth related configuration.
type Config struct {
	// JWTSecret signs session tokens. Required.
	JWTSecret string
	// Issuer is placed in the iss claim, usually the public base URL.
	Issuer string
	// TokenLifetime caps the session token validity; never above one hour.
	TokenLifetime time.Duration
	// SecureCookie marks the session cookie Secure.
	SecureCookie bool

	OIDC OIDCConfig
	DPoP DPoPConfig
}

// maxTokenLifetime is the hard ceiling on session token validity.
const maxTokenLifetime = time.Hour

// Service issues and verifies session tokens and API keys.
type Service struct {
	log    *zap.Logger
	config Config
	keys   APIKeys

	secret       []byte
	passwordCost int
	replay       *replayCache
}

// NewService creates the auth service.
func NewService(log *zap.Logger, config Config, keys APIKeys) (*Service, error) {
	if config.JWTSecret == "" {
		return nil, Error.New("JWT secret is not set")
	}
	if config.TokenLifetime <= 0 || config.TokenLifetime > maxTokenLifetime {
		config.TokenLifetime = maxTokenLifetime
	}
	return &Service{
		log:          log,
		config:       config,
		keys:         keys,
		secret:       []byte(config.JWTSecret),
		passwordCost: bcrypt.DefaultCost,
		replay:       newReplayCache(config.DPoP.ReplayCacheSize),
	}, nil
}

// TestSetPasswordCost lowers the bcrypt cost; only for tests.
func (service *Service) TestSetPasswordCost(cost int) { service.passwordCost = cost }

// Config returns the service configuration.
func (service *Service) Config() Config { return service.config }

// sessionClaims is the session token payload.
type sessionClaims struct {
	jwt.RegisteredClaims
}

// MintSessionToken issues a short-lived signed session token for the user.
func (service *Service) MintSessionToken(ctx context.Context, userID string) (_ string, expiresAt time.Time, err error) {
	defer mon.Task()(&ctx)(&err)

	now := time.Now().UTC()
	expiresAt = now.Add(service.config.TokenLifetime)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    service.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(service.secret)
	if err != nil {
		return "", time.Time{}, Error.Wrap(err)
	}
	return signed, expiresAt, nil
}

// VerifySessionToken checks a session token and returns its principal.
func (service *Service) VerifySessionToken(ctx context.Context, tokenString string) (_ Principal, err error) {
	defer mon.Task()(&ctx)(&err)

	var claims sessionClaims
	_, err = jwt.ParseWithClaims(tokenString, &claims,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrUnauthorized.New("unexpected signing method %q", token.Method.Alg())
			}
			return service.secret, nil
		},
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(service.config.Issuer),
	)
	if err != nil {
		return Principal{}, ErrUnauthorized.Wrap(err)
	}
	if claims.Subject == "" {
		return Principal{}, ErrUnauthorized.New("token has no subject")
	}
	return Principal{UserID: claims.Subject}, nil
}
