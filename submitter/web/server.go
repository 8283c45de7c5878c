// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

// Package web exposes the submission system over HTTP. Handlers are a thin
// translation layer: they decode requests, call the domain services and map
// domain errors onto RFC 7807 problem responses.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"submitter.io/submitter/submitter/auth"
	"submitter.io/submitter/submitter/clients"
	"submitter.io/submitter/submitter/projects"
	"submitter.io/submitter/submitter/publish"
	"submitter.io/submitter/submitter/schema"
	"submitter.io/submitter/submitter/submission"
	"submitter.io/submitter/submitter/xmlproc"
)

var (
	// Error is the default error class for the web package.
	Error = errs.Class("web")

	mon = monkit.Package()
)

// Config holds the HTTP server configuration.
type Config struct {
	Address         string        `help:"server address of the api gateway" default:":8080"`
	ExternalURL     string        `help:"external base url of the service" default:"http://localhost:8080"`
	MaxBodySize     int64         `help:"maximum accepted request body size" default:"33554432"`
	AdminToken      string        `help:"shared bearer accepted on archive-facing endpoints"`
	ShutdownTimeout time.Duration `help:"how long to drain requests on shutdown" default:"10s"`
}

// Server implements the HTTP API.
//
// architecture: Endpoint
type Server struct {
	log    *zap.Logger
	config Config

	listener net.Listener
	server   http.Server

	auth        *auth.Service
	oidc        *auth.OIDC
	projects    projects.Provider
	submissions *submission.Service
	processor   *xmlproc.Processor
	publisher   *publish.Orchestrator
	catalog     *schema.Catalog
	pingers     []clients.Pinger
	saturated   func() bool
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(log *zap.Logger, config Config, listener net.Listener,
	authService *auth.Service, oidc *auth.OIDC, provider projects.Provider,
	submissions *submission.Service, processor *xmlproc.Processor,
	publisher *publish.Orchestrator, catalog *schema.Catalog,
	pingers []clients.Pinger, saturated func() bool) *Server {

	server := &Server{
		log:         log,
		config:      config,
		listener:    listener,
		auth:        authService,
		oidc:        oidc,
		projects:    provider,
		submissions: submissions,
		processor:   processor,
		publisher:   publisher,
		catalog:     catalog,
		pingers:     pingers,
		saturated:   saturated,
	}

	router := mux.NewRouter()
	router.Use(server.withRequestID)

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/aai", server.handleLogin).Methods(http.MethodGet)
	v1.HandleFunc("/callback", server.handleCallback).Methods(http.MethodGet)
	v1.HandleFunc("/logout", server.handleLogout).Methods(http.MethodGet)
	v1.HandleFunc("/health", server.handleHealth).Methods(http.MethodGet)

	api := v1.NewRoute().Subrouter()
	api.Use(server.withBackpressure, server.withBodyLimit, server.withAuth)

	api.HandleFunc("/users/current", server.handleCurrentUser).Methods(http.MethodGet)
	api.HandleFunc("/users/current/keys", server.handleIssueKey).Methods(http.MethodPost)
	api.HandleFunc("/users/current/keys", server.handleListKeys).Methods(http.MethodGet)
	api.HandleFunc("/users/current/keys/{id}", server.handleRevokeKey).Methods(http.MethodDelete)

	api.HandleFunc("/workflows/{workflow}/projects/{project}/submissions", server.handleCreateSubmission).Methods(http.MethodPost)
	api.HandleFunc("/submissions", server.handleListSubmissions).Methods(http.MethodGet)
	api.HandleFunc("/submissions/{id}", server.handleGetSubmission).Methods(http.MethodGet)
	api.HandleFunc("/submissions/{id}", server.handlePatchSubmission).Methods(http.MethodPatch)
	api.HandleFunc("/submissions/{id}", server.handleDeleteSubmission).Methods(http.MethodDelete)
	api.HandleFunc("/submissions/{id}/objects", server.handleListSubmissionObjects).Methods(http.MethodGet)
	api.HandleFunc("/submissions/{id}/objects/docs", server.handleListSubmissionObjects).Methods(http.MethodGet)
	api.HandleFunc("/submissions/{id}/files", server.handleListSubmissionFiles).Methods(http.MethodGet)
	api.HandleFunc("/submissions/{id}/files", server.handlePatchSubmissionFiles).Methods(http.MethodPatch)
	api.HandleFunc("/submissions/{id}/registrations", server.handleListRegistrations).Methods(http.MethodGet)
	api.HandleFunc("/submissions/{id}/ingest", server.withAdminToken(server.handleIngest)).Methods(http.MethodPost)

	api.HandleFunc("/objects/{schema}", server.handlePostObjects).Methods(http.MethodPost)
	api.HandleFunc("/objects/{schema}/{id}", server.handleGetObject).Methods(http.MethodGet)
	api.HandleFunc("/objects/{schema}/{id}", server.handleReplaceObject).Methods(http.MethodPut)
	api.HandleFunc("/objects/{schema}/{id}", server.handleDeleteObject).Methods(http.MethodDelete)

	api.HandleFunc("/files", server.handleRegisterFiles).Methods(http.MethodPost)
	api.HandleFunc("/files", server.handleListFiles).Methods(http.MethodGet)

	api.HandleFunc("/publish/{id}", server.handlePublish).Methods(http.MethodPost)
	api.HandleFunc("/announce/{id}", server.handleAnnounce).Methods(http.MethodPatch)

	api.HandleFunc("/schemas", server.handleListSchemas).Methods(http.MethodGet)
	api.HandleFunc("/schemas/{name}", server.handleGetSchema).Methods(http.MethodGet)

	server.server = http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server
}

// Run starts serving until the context is canceled, then drains in-flight
// requests.
func (server *Server) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	ctx, cancel := context.WithCancel(ctx)
	var group errgroup.Group
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), server.config.ShutdownTimeout)
		defer shutdownCancel()
		return server.server.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		defer cancel()
		err := server.server.Serve(server.listener)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return Error.Wrap(err)
	})
	return group.Wait()
}

// Close shuts the server down immediately.
func (server *Server) Close() error {
	return Error.Wrap(server.server.Close())
}
