// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/blinklabs-io/lyrebird/database/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// Database is the SQLite-backed store for ledger state: provenance records,
// royalty configurations, assets, market state, and role grants. The core
// components keep their working state in memory and write through to this
// store; it also seeds them at startup.
type Database struct {
	db      *gorm.DB
	logger  *slog.Logger
	dataDir string
}

// New creates a store. Uses an in-memory database if dataDir is empty.
func New(
	dataDir string,
	logger *slog.Logger,
) (*Database, error) {
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	var gormDb *gorm.DB
	var err error
	if dataDir == "" {
		// In-memory database when no data directory is specified, useful for testing
		// cache=shared allows multiple connections to share the same in-memory database
		gormDb, err = gorm.Open(
			sqlite.Open("file::memory:?cache=shared"),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
		if err != nil {
			return nil, err
		}
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(dataDir, fs.ModePerm); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		dbPath := filepath.Join(dataDir, "ledger.sqlite")
		// WAL journal mode, disable sync on write
		connOpts := "_pragma=journal_mode(WAL)&_pragma=sync(OFF)"
		gormDb, err = gorm.Open(
			sqlite.Open(fmt.Sprintf("file:%s?%s", dbPath, connOpts)),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
		if err != nil {
			return nil, err
		}
	}
	if err := gormDb.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("failed to configure tracing plugin: %w", err)
	}
	d := &Database{
		db:      gormDb,
		dataDir: dataDir,
		logger:  logger,
	}
	// Create table schemas
	for _, model := range models.MigrateModels {
		d.logger.Debug(fmt.Sprintf("creating table: %#v", model))
		if err := d.db.AutoMigrate(model); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// DB returns the underlying gorm handle
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Transaction executes the given function inside a database transaction. Any
// error rolls the whole transaction back, giving callers the all-or-nothing
// boundary for multi-row writes.
func (d *Database) Transaction(fn func(txn *gorm.DB) error) error {
	return d.db.Transaction(fn)
}

// Close closes the underlying database connection
func (d *Database) Close() error {
	sqlDb, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDb.Close()
}
