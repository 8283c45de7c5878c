// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package web

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"submitter.io/submitter/submitter/auth"
	"submitter.io/submitter/submitter/projects"
)

const (
	sessionCookieName = "submitter_session"
	loginCookieName   = "submitter_login"
)

// requireDPoP enforces the proof-of-possession header on the login round
// trip when the deployment enables DPoP.
func (server *Server) requireDPoP(r *http.Request) error {
	if !server.auth.Config().DPoP.Enabled {
		return nil
	}
	proof := r.Header.Get("DPoP")
	if proof == "" {
		return auth.ErrUnauthorized.New("dpop proof required")
	}
	return server.auth.VerifyDPoP(r.Context(), proof, r.Method, server.config.ExternalURL+r.URL.Path)
}

// handleLogin starts the OIDC authorization-code flow. The transient state
// and PKCE verifier travel to the callback in a short-lived cookie.
func (server *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := server.requireDPoP(r); err != nil {
		server.serveProblem(w, r, err)
		return
	}

	redirectURL, request, err := server.oidc.BeginLogin()
	if err != nil {
		server.serveProblem(w, r, err)
		return
	}

	encoded, err := json.Marshal(request)
	if err != nil {
		server.serveProblem(w, r, Error.Wrap(err))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     loginCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(encoded),
		Path:     "/v1/callback",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   server.auth.Config().SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// handleCallback finishes the login and issues the session cookie.
func (server *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := server.requireDPoP(r); err != nil {
		server.serveProblem(w, r, err)
		return
	}

	cookie, err := r.Cookie(loginCookieName)
	if err != nil {
		server.serveProblem(w, r, auth.ErrUnauthorized.New("login flow not started"))
		return
	}
	decoded, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		server.serveProblem(w, r, auth.ErrUnauthorized.New("malformed login cookie"))
		return
	}
	var request auth.LoginRequest
	if err := json.Unmarshal(decoded, &request); err != nil {
		server.serveProblem(w, r, auth.ErrUnauthorized.New("malformed login cookie"))
		return
	}

	query := r.URL.Query()
	info, err := server.oidc.CompleteLogin(ctx, request, query.Get("state"), query.Get("code"))
	if err != nil {
		server.serveProblem(w, r, err)
		return
	}

	userID := auth.DeriveUserID(server.oidc.Issuer(), info.Subject)
	token, expiresAt, err := server.auth.MintSessionToken(ctx, userID)
	if err != nil {
		server.serveProblem(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     loginCookieName,
		Path:     "/v1/callback",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   server.auth.Config().SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, server.config.ExternalURL, http.StatusFound)
}

// handleLogout clears the session cookie.
func (server *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   server.auth.Config().SecureCookie,
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleCurrentUser returns the principal and its project scope.
func (server *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, err := auth.GetPrincipal(ctx)
	if err != nil {
		server.serveProblem(w, r, err)
		return
	}
	memberships, err := server.projects.ProjectsFor(ctx, principal.UserID)
	if err != nil {
		server.serveProblem(w, r, projects.Error.Wrap(err))
		return
	}

	server.serveJSON(w, http.StatusOK, map[string]any{
		"userId":   principal.UserID,
		"projects": memberships,
	})
}

// handleIssueKey mints a new api key; the plaintext is returned exactly once.
func (server *Server) handleIssueKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, err := auth.GetPrincipal(ctx)
	if err != nil {
		server.serveProblem(w, r, err)
		return
	}

	var body struct {
		Name      string     `json:"name"`
		ExpiresAt *time.Time `json:"expiresAt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		server.serveProblem(w, r, auth.Error.Wrap(err))
		return
	}

	issued, err := server.auth.IssueAPIKey(ctx, principal.UserID, body.Name, body.ExpiresAt)
	if err != nil {
		server.serveProblem(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusCreated, map[string]any{
		"keyId":     issued.ID,
		"plaintext": issued.Plaintext,
		"createdAt": issued.CreatedAt,
		"expiresAt": issued.ExpiresAt,
	})
}

// handleListKeys lists the caller's api keys without secrets.
func (server *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, err := auth.GetPrincipal(ctx)
	if err != nil {
		server.serveProblem(w, r, err)
		return
	}
	keys, err := server.auth.ListAPIKeys(ctx, principal.UserID)
	if err != nil {
		server.serveProblem(w, r, err)
		return
	}

	type keyInfo struct {
		KeyID     string     `json:"keyId"`
		Name      string     `json:"name"`
		CreatedAt time.Time  `json:"createdAt"`
		ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	}
	infos := make([]keyInfo, 0, len(keys))
	for _, key := range keys {
		infos = append(infos, keyInfo{
			KeyID:     key.ID,
			Name:      key.Name,
			CreatedAt: key.CreatedAt,
			ExpiresAt: key.ExpiresAt,
		})
	}
	server.serveJSON(w, http.StatusOK, infos)
}

// handleRevokeKey deletes one of the caller's api keys.
func (server *Server) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, err := auth.GetPrincipal(ctx)
	if err != nil {
		server.serveProblem(w, r, err)
		return
	}
	if err := server.auth.RevokeAPIKey(ctx, principal.UserID, pathVar(r, "id")); err != nil {
		server.serveProblem(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
