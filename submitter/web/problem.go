// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package web

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"submitter.io/submitter/submitter/auth"
	"submitter.io/submitter/submitter/clients"
	"submitter.io/submitter/submitter/projects"
	"submitter.io/submitter/submitter/submission"
)

// problem is an RFC 7807 response, extended with a top-level errors list
// carrying per-field detail.
type problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Errors []any `json:"errors,omitempty"`
}

// statusOf maps a domain error to its HTTP status.
func statusOf(err error) int {
	switch {
	case auth.ErrUnauthorized.Has(err), auth.ErrNoAPIKey.Has(err):
		return http.StatusUnauthorized
	case projects.ErrForbidden.Has(err):
		return http.StatusForbidden
	case submission.ErrFrozen.Has(err):
		return http.StatusMethodNotAllowed
	case submission.ErrNotFound.Has(err):
		return http.StatusNotFound
	case submission.ErrNameTaken.Has(err), submission.ErrNotReady.Has(err):
		return http.StatusConflict
	case submission.ErrValidation.Has(err):
		return http.StatusBadRequest
	case clients.ErrPermanent.Has(err):
		return http.StatusConflict
	case clients.ErrTransient.Has(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// serveProblem writes the error as application/problem+json. Internal errors
// hide their detail behind the request correlation id.
func (server *Server) serveProblem(w http.ResponseWriter, r *http.Request, err error, details ...any) {
	status := statusOf(err)

	body := problem{
		Type:     "about:blank",
		Title:    http.StatusText(status),
		Status:   status,
		Instance: r.URL.Path,
		Errors:   details,
	}
	switch {
	case status >= http.StatusInternalServerError:
		requestID := requestIDFrom(r.Context())
		body.Detail = "internal error, correlation id " + requestID
		server.log.Error("request failed",
			zap.String("request_id", requestID),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	case status == http.StatusUnauthorized:
		body.Detail = "authentication required"
	default:
		body.Detail = err.Error()
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if encodeErr := json.NewEncoder(w).Encode(body); encodeErr != nil {
		server.log.Error("failed to write problem response", zap.Error(encodeErr))
	}
}

// serveJSON writes a JSON success response.
func (server *Server) serveJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		server.log.Error("failed to write json response", zap.Error(err))
	}
}
