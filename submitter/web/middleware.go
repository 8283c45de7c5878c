// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package web

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"submitter.io/submitter/submitter/auth"
)

type requestIDKey struct{}

// requestIDFrom returns the correlation id attached by the middleware.
func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return "unknown"
}

// withRequestID attaches a correlation id to every request and echoes it in
// the response.
func (server *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			var buf [8]byte
			_, _ = rand.Read(buf[:])
			id = hex.EncodeToString(buf[:])
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// withBackpressure answers 503 instead of queueing behind a saturated
// database pool.
func (server *Server) withBackpressure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if server.saturated != nil && server.saturated() {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "server is busy", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withBodyLimit caps request bodies.
func (server *Server) withBodyLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, server.config.MaxBodySize)
		next.ServeHTTP(w, r)
	})
}

// withAuth authenticates the request from either the session cookie or a
// bearer api key and attaches the principal to the context. Failures are
// 401, never 500.
func (server *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		principal, err := server.authenticate(ctx, r)
		if err != nil {
			server.serveProblem(w, r, auth.ErrUnauthorized.Wrap(err))
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(ctx, principal)))
	})
}

func (server *Server) authenticate(ctx context.Context, r *http.Request) (auth.Principal, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			return auth.Principal{}, auth.ErrUnauthorized.New("unsupported authorization scheme")
		}
		return server.auth.VerifyAPIKey(ctx, token)
	}

	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return auth.Principal{}, auth.ErrUnauthorized.New("no credentials")
	}
	return server.auth.VerifySessionToken(ctx, cookie.Value)
}

// withAdminToken guards archive-facing endpoints with the shared admin
// bearer carried in X-Authorization.
func (server *Server) withAdminToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if server.config.AdminToken == "" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		header := r.Header.Get("X-Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || subtle.ConstantTimeCompare([]byte(token), []byte(server.config.AdminToken)) != 1 {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}
