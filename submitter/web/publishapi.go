// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package web

import (
	"net/http"

	"submitter.io/submitter/submitter/publish"
)

// handlePublish runs the publish pipeline. The step report is returned on
// failure too so callers can see which steps committed before the error.
func (server *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	report, err := server.publisher.Publish(ctx, pathVar(r, "id"))
	if err != nil {
		if len(report) == 0 {
			server.serveProblem(w, r, err)
			return
		}
		server.serveJSON(w, statusOf(err), map[string]any{
			"steps":  report,
			"detail": err.Error(),
		})
		return
	}
	server.serveJSON(w, http.StatusOK, map[string][]publish.StepResult{"steps": report})
}

// handleAnnounce releases the published dataset.
func (server *Server) handleAnnounce(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := server.publisher.Announce(ctx, pathVar(r, "id")); err != nil {
		server.serveProblem(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
