// Copyright (C) 2024 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"submitter.io/submitter/submitter"
	"submitter.io/submitter/submitter/submitterdb"
)

func main() {
	root := &cobra.Command{
		Use:   "submitter",
		Short: "Metadata submission and publishing service",
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the submitter service",
			RunE: func(cmd *cobra.Command, args []string) error {
				return cmdRun(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending database migrations and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return cmdMigrate(cmd.Context())
			},
		},
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errs.New("invalid LOG_LEVEL %q: %v", level, err)
	}
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(parsed)
	return config.Build()
}

func cmdRun(ctx context.Context) (err error) {
	config, err := loadSettings()
	if err != nil {
		return err
	}
	log, err := newLogger(config.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := submitterdb.Open(ctx, log.Named("db"), config.Database)
	if err != nil {
		return errs.New("error connecting to the database: %v", err)
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	if err := db.MigrateToLatest(ctx); err != nil {
		return errs.New("error migrating the database: %v", err)
	}

	peer, err := submitter.New(log, db, config.Peer)
	if err != nil {
		return err
	}

	runErr := peer.Run(ctx)
	closeErr := peer.Close()
	if runErr != nil && ctx.Err() != nil {
		// shutdown on signal is a clean exit
		runErr = nil
	}
	return errs.Combine(runErr, closeErr)
}

func cmdMigrate(ctx context.Context) (err error) {
	config, err := loadSettings()
	if err != nil {
		return err
	}
	log, err := newLogger(config.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := submitterdb.Open(ctx, log.Named("db"), config.Database)
	if err != nil {
		return errs.New("error connecting to the database: %v", err)
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	return db.MigrateToLatest(ctx)
}
