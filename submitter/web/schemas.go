// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package web

import (
	"net/http"

	"submitter.io/submitter/submitter/submission"
)

// handleListSchemas lists the schema catalog.
func (server *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	server.serveJSON(w, http.StatusOK, server.catalog.Schemas())
}

// handleGetSchema returns one JSON Schema by name.
func (server *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	name := pathVar(r, "name")

	schemaAST, err := server.catalog.SchemaFor(name)
	if err != nil {
		server.serveProblem(w, r, submission.ErrNotFound.New("schema %s", name))
		return
	}
	server.serveJSON(w, http.StatusOK, schemaAST)
}
