// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

// Package submitterdb implements the domain repositories on PostgreSQL.
package submitterdb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx driver
	"github.com/pressly/goose/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"submitter.io/submitter/submitter/auth"
	"submitter.io/submitter/submitter/submission"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Error is the default error class for the submitterdb package.
var Error = errs.Class("submitterdb")

// Config holds the database connection configuration.
type Config struct {
	URL             string        `help:"postgres connection string" default:"postgres://submitter@localhost/submitter?sslmode=disable"`
	MaxOpenConns    int           `help:"maximum open connections" default:"25"`
	MaxIdleConns    int           `help:"maximum idle connections" default:"10"`
	ConnMaxLifetime time.Duration `help:"maximum connection lifetime" default:"30m"`
}

// DB provides the submission store and api key repository on top of one
// PostgreSQL connection pool.
//
// architecture: Master Database
type DB struct {
	log *zap.Logger
	db  *sql.DB

	maxOpenConns int
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, log *zap.Logger, config Config) (*DB, error) {
	db, err := sql.Open("pgx", config.URL)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		return nil, errs.Combine(Error.Wrap(err), db.Close())
	}
	return &DB{log: log, db: db, maxOpenConns: config.MaxOpenConns}, nil
}

// MigrateToLatest applies all pending migrations.
func (db *DB) MigrateToLatest(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return Error.Wrap(err)
	}
	if err := goose.UpContext(ctx, db.db, "migrations"); err != nil {
		return Error.Wrap(err)
	}
	db.log.Info("database migrated")
	return nil
}

// Close releases the connection pool.
func (db *DB) Close() error {
	return Error.Wrap(db.db.Close())
}

// Saturated reports whether the pool has no capacity left; the API answers
// 503 instead of queueing behind a full pool.
func (db *DB) Saturated() bool {
	stats := db.db.Stats()
	return db.maxOpenConns > 0 && stats.InUse >= db.maxOpenConns && stats.WaitCount > 0
}

// Ping implements the health check.
func (db *DB) Ping(ctx context.Context) error {
	return Error.Wrap(db.db.PingContext(ctx))
}

// Name implements the health check.
func (db *DB) Name() string { return "database" }

// Submissions returns the submissions repository.
func (db *DB) Submissions() submission.Submissions { return &submissionsRepo{q: db.db} }

// Objects returns the metadata objects repository.
func (db *DB) Objects() submission.Objects { return &objectsRepo{q: db.db} }

// Files returns the file references repository.
func (db *DB) Files() submission.Files { return &filesRepo{q: db.db} }

// Registrations returns the registrations repository.
func (db *DB) Registrations() submission.Registrations { return &registrationsRepo{q: db.db} }

// APIKeys returns the api key repository.
func (db *DB) APIKeys() auth.APIKeys { return &apiKeysRepo{q: db.db} }

// BeginTx opens a transaction exposing the same repositories.
func (db *DB) BeginTx(ctx context.Context) (submission.Tx, error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &dbTx{tx: tx}, nil
}

// querier abstracts over the pool and an open transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type dbTx struct {
	tx *sql.Tx
}

func (tx *dbTx) Submissions() submission.Submissions     { return &submissionsRepo{q: tx.tx} }
func (tx *dbTx) Objects() submission.Objects             { return &objectsRepo{q: tx.tx} }
func (tx *dbTx) Files() submission.Files                 { return &filesRepo{q: tx.tx} }
func (tx *dbTx) Registrations() submission.Registrations { return &registrationsRepo{q: tx.tx} }

func (tx *dbTx) Commit() error   { return Error.Wrap(tx.tx.Commit()) }
func (tx *dbTx) Rollback() error { return Error.Wrap(tx.tx.Rollback()) }

// isUniqueViolation reports a unique constraint failure.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isLockNotAvailable reports a NOWAIT lock denial.
func isLockNotAvailable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "55P03"
}
