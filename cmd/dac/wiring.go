package main

import (
	"context"
	"fmt"

	"github.com/koustreak/dac/internal/backup"
	"github.com/koustreak/dac/internal/config"
	"github.com/koustreak/dac/internal/database"
	"github.com/koustreak/dac/internal/database/mysql"
	"github.com/koustreak/dac/internal/database/postgres"
	"github.com/koustreak/dac/internal/dbstatus"
	"github.com/koustreak/dac/internal/errs"
	"github.com/koustreak/dac/internal/filestore/minio"
)

// openDatabase builds a pool with the driver named in cfg. With ping the
// driver verifies the server is reachable; without it connections are made
// on first use.
func openDatabase(ctx context.Context, cfg *database.Config, ping bool) (database.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case database.DriverPostgres:
		return openPostgres(ctx, cfg, ping)
	case database.DriverMySQL:
		return openMySQL(ctx, cfg, ping)
	}
	return nil, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unsupported database driver %q", cfg.Driver))
}

func openPostgres(ctx context.Context, cfg *database.Config, ping bool) (database.DB, error) {
	var (
		d   *postgres.Driver
		err error
	)
	if ping {
		d, err = postgres.New(ctx, cfg)
	} else {
		d, err = postgres.Open(ctx, cfg)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func openMySQL(ctx context.Context, cfg *database.Config, ping bool) (database.DB, error) {
	var (
		d   *mysql.Driver
		err error
	)
	if ping {
		d, err = mysql.New(ctx, cfg)
	} else {
		d, err = mysql.Open(cfg)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// newAggregator builds the status aggregator. Without ping the pool connects
// lazily and every Status call dials as needed, so a catalog that is down now
// is picked up once it returns. The returned DB must be closed by the caller.
func newAggregator(ctx context.Context, cfg config.DatabaseConfig, ping bool) (*dbstatus.Aggregator, database.DB, error) {
	dbCfg := cfg.DatabaseConfig()
	queries, err := dbstatus.QueriesFor(dbCfg.Driver, cfg.Schema)
	if err != nil {
		return nil, nil, err
	}
	db, err := openDatabase(ctx, dbCfg, ping)
	if err != nil {
		return nil, nil, err
	}
	return dbstatus.New(db, queries), db, nil
}

// newBackupLister connects to object storage for the backup inventory.
func newBackupLister(ctx context.Context, cfg config.StorageConfig) (*backup.Lister, error) {
	store, err := minio.New(ctx, cfg.FilestoreConfig())
	if err != nil {
		return nil, err
	}
	return backup.NewLister(store, cfg.Bucket, cfg.Prefix, cfg.PresignTTL), nil
}
