// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package submitter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"submitter.io/submitter/submitter/auth"
	"submitter.io/submitter/submitter/clients"
	"submitter.io/submitter/submitter/submission/submissiontest"
)

type testDB struct {
	*submissiontest.Store
}

func (testDB) APIKeys() auth.APIKeys { return nil }

func (testDB) MigrateToLatest(ctx context.Context) error { return nil }

func (testDB) Saturated() bool { return false }

func (testDB) Ping(ctx context.Context) error { return nil }

func (testDB) Name() string { return "database" }

func (testDB) Close() error { return nil }

func TestHealthPingers(t *testing.T) {
	log := zaptest.NewLogger(t)

	peer := &Peer{DB: testDB{submissiontest.NewStore()}}
	peer.Clients.DOI = clients.NewDataCite(log, clients.DataCiteConfig{})
	peer.Clients.Catalog = clients.NewMetax(log, clients.MetaxConfig{})
	peer.Clients.REMS = clients.NewREMS(log, clients.REMSConfig{})
	peer.Clients.Admin = clients.NewAdmin(log, clients.AdminConfig{})
	peer.Clients.Keystone = clients.NewKeystone(log, clients.KeystoneConfig{})

	names := func() (names []string) {
		for _, pinger := range peer.healthPingers() {
			names = append(names, pinger.Name())
		}
		return names
	}
	require.Equal(t, []string{"database", "datacite", "metax", "rems", "admin", "keystone"}, names())

	// the object store joins the probe set only when configured
	store, err := clients.NewObjectStore(log, clients.S3Config{Endpoint: "localhost:9000"})
	require.NoError(t, err)
	peer.Clients.ObjectStore = store
	require.Contains(t, names(), "s3")
}
