// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

// Package submitter assembles the metadata submission system: the domain
// services, the external service clients, the background poller and the
// HTTP API, wired once at start-up and run until shutdown.
package submitter

import (
	"context"
	"net"
	"strings"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"submitter.io/submitter/submitter/auth"
	"submitter.io/submitter/submitter/clients"
	"submitter.io/submitter/submitter/ingestion"
	"submitter.io/submitter/submitter/projects"
	"submitter.io/submitter/submitter/publish"
	"submitter.io/submitter/submitter/schema"
	"submitter.io/submitter/submitter/submission"
	"submitter.io/submitter/submitter/web"
	"submitter.io/submitter/submitter/xmlproc"
)

// Error is the default error class for the submitter peer.
var Error = errs.Class("submitter")

// DB is the master database of the submitter.
//
// architecture: Master Database
type DB interface {
	submission.Store

	// APIKeys returns the repository of user-minted keys.
	APIKeys() auth.APIKeys

	// MigrateToLatest applies all pending schema migrations.
	MigrateToLatest(ctx context.Context) error
	// Saturated reports that the pool has no capacity left.
	Saturated() bool
	// Ping checks the connection.
	Ping(ctx context.Context) error
	// Name identifies the database in health reports.
	Name() string
	// Close releases the pool.
	Close() error
}

// Config is the complete configuration of a submitter peer.
type Config struct {
	Deployment  string `help:"project membership source, csc or nbis" default:"nbis"`
	DOIProvider string `help:"doi registrar, datacite or pid" default:"datacite"`

	Web        web.Config
	Auth       auth.Config
	Submission submission.Config
	Publish    publish.Config
	Ingestion  ingestion.Config

	LDAP     projects.LDAPConfig
	DataCite clients.DataCiteConfig
	PID      clients.PIDConfig
	Metax    clients.MetaxConfig
	REMS     clients.REMSConfig
	Admin    clients.AdminConfig
	S3       clients.S3Config
	Keystone clients.KeystoneConfig
}

// Peer is the assembled submitter process.
//
// architecture: Peer
type Peer struct {
	Log *zap.Logger
	DB  DB

	Catalog  *schema.Catalog
	Projects projects.Provider

	Auth struct {
		Service *auth.Service
		OIDC    *auth.OIDC
	}

	Clients struct {
		DOI         publish.DOI
		Catalog     *clients.Metax
		REMS        *clients.REMS
		Admin       *clients.Admin
		ObjectStore *clients.ObjectStore
		Keystone    *clients.Keystone
	}

	Submissions *submission.Service
	Processor   *xmlproc.Processor
	Publisher   *publish.Orchestrator
	Ingestion   *ingestion.Chore

	Web struct {
		Listener net.Listener
		Server   *web.Server
	}
}

// New wires the peer from its configuration.
func New(log *zap.Logger, db DB, config Config) (*Peer, error) {
	peer := &Peer{Log: log, DB: db}

	{ // schema catalog
		catalog, err := schema.LoadDefault()
		if err != nil {
			return nil, Error.Wrap(err)
		}
		peer.Catalog = catalog
	}

	{ // project membership
		switch strings.ToLower(config.Deployment) {
		case "csc":
			peer.Projects = projects.NewLDAPProvider(log.Named("ldap"), config.LDAP)
		case "nbis":
			peer.Projects = projects.SelfProvider{}
		default:
			return nil, Error.New("unknown deployment %q", config.Deployment)
		}
	}

	{ // auth
		service, err := auth.NewService(log.Named("auth"), config.Auth, db.APIKeys())
		if err != nil {
			return nil, Error.Wrap(err)
		}
		peer.Auth.Service = service
		peer.Auth.OIDC = auth.NewOIDC(config.Auth.OIDC)
	}

	{ // external clients
		switch strings.ToLower(config.DOIProvider) {
		case "datacite":
			peer.Clients.DOI = clients.NewDataCite(log.Named("datacite"), config.DataCite)
		case "pid":
			peer.Clients.DOI = clients.NewPID(log.Named("pid"), config.PID)
		default:
			return nil, Error.New("unknown doi provider %q", config.DOIProvider)
		}
		peer.Clients.Catalog = clients.NewMetax(log.Named("metax"), config.Metax)
		peer.Clients.REMS = clients.NewREMS(log.Named("rems"), config.REMS)
		peer.Clients.Admin = clients.NewAdmin(log.Named("admin"), config.Admin)
		peer.Clients.Keystone = clients.NewKeystone(log.Named("keystone"), config.Keystone)

		if config.S3.Endpoint != "" {
			store, err := clients.NewObjectStore(log, config.S3)
			if err != nil {
				return nil, Error.Wrap(err)
			}
			peer.Clients.ObjectStore = store
		}
	}

	{ // domain services
		peer.Submissions = submission.NewService(log.Named("submission"),
			config.Submission, db, peer.Catalog, peer.Projects, peer.Clients.Admin)
		peer.Processor = xmlproc.NewProcessor(log.Named("xmlproc"),
			peer.Catalog, config.Submission.BPCenterID)
		peer.Publisher = publish.NewOrchestrator(log.Named("publish"),
			config.Publish, db, peer.Projects,
			peer.Clients.DOI, peer.Clients.Catalog, peer.Clients.REMS, peer.Clients.Admin)
	}

	{ // ingest poller
		peer.Ingestion = ingestion.NewChore(log.Named("ingestion"),
			config.Ingestion, db, peer.Clients.Admin)
	}

	{ // http api
		listener, err := net.Listen("tcp", config.Web.Address)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		peer.Web.Listener = listener
		peer.Web.Server = web.NewServer(log.Named("web"), config.Web, listener,
			peer.Auth.Service, peer.Auth.OIDC, peer.Projects,
			peer.Submissions, peer.Processor, peer.Publisher, peer.Catalog,
			peer.healthPingers(), db.Saturated)
	}

	return peer, nil
}

// healthPingers lists the collaborators the health endpoint probes.
func (peer *Peer) healthPingers() []clients.Pinger {
	pingers := []clients.Pinger{peer.DB}
	if doi, ok := peer.Clients.DOI.(clients.Pinger); ok {
		pingers = append(pingers, doi)
	}
	pingers = append(pingers, peer.Clients.Catalog, peer.Clients.REMS, peer.Clients.Admin, peer.Clients.Keystone)
	if peer.Clients.ObjectStore != nil {
		pingers = append(pingers, peer.Clients.ObjectStore)
	}
	return pingers
}

// Run starts the HTTP server and the poller and blocks until a fatal error
// or context cancellation.
func (peer *Peer) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return peer.Ingestion.Run(ctx)
	})
	group.Go(func() error {
		return peer.Web.Server.Run(ctx)
	})
	return group.Wait()
}

// Close releases all resources.
func (peer *Peer) Close() error {
	var group errs.Group
	if peer.Web.Server != nil {
		group.Add(peer.Web.Server.Close())
	}
	if peer.Ingestion != nil {
		group.Add(peer.Ingestion.Close())
	}
	return group.Err()
}
