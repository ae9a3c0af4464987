// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

// Package statedb is boothline's durable local state: the telemetry
// buffer contents and the fleet collector credentials, in a single
// SQLite file. Telemetry must survive a process crash (an entry about
// the crash is exactly the entry worth keeping), and the collector
// credentials must survive restarts so the credential gate can
// activate without waiting for reconfiguration.
//
// Session state deliberately does NOT live here. A bearer token is
// ephemeral per-session data and is held in memory by session.Store.
package statedb

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/boothline/boothline/lib/schema"
	"github.com/boothline/boothline/lib/sqlitepool"
)

const dbSchema = `
CREATE TABLE IF NOT EXISTS telemetry_entries (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL,
	timestamp   INTEGER NOT NULL,
	level       TEXT NOT NULL,
	component   TEXT NOT NULL,
	message     TEXT NOT NULL,
	stack       TEXT NOT NULL DEFAULT '',
	app_version TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS device_settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Setting keys in device_settings.
const (
	settingCollectorEndpoint = "collector_endpoint"
	settingDeviceKey         = "device_key"
	settingInstallID         = "install_id"
)

// Credential is the fleet collector endpoint and device key pair. The
// credential gate stays dormant until both fields are non-empty.
type Credential struct {
	Endpoint  string
	DeviceKey string
}

// Complete reports whether both halves of the credential are present.
func (c Credential) Complete() bool {
	return c.Endpoint != "" && c.DeviceKey != ""
}

// Config holds the parameters for opening the state database.
type Config struct {
	// Path is the SQLite database file. Required.
	Path string

	// Logger receives operational messages. If nil, slog.Default().
	Logger *slog.Logger
}

// DB is the booth's durable state store. Safe for concurrent use.
type DB struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// Open opens the state database, creating the schema and a persistent
// install ID on first run.
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("statedb: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   cfg.Path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, dbSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("statedb: %w", err)
	}

	db := &DB{pool: pool, logger: logger}
	if err := db.ensureInstallID(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.pool.Close()
}

// LoadTelemetry returns every buffered entry in arrival order. Called
// once at startup to rehydrate the in-memory buffer.
func (db *DB) LoadTelemetry(ctx context.Context) ([]schema.TelemetryEntry, error) {
	conn, err := db.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("statedb: load telemetry: %w", err)
	}
	defer db.pool.Put(conn)

	var entries []schema.TelemetryEntry
	err = sqlitex.Execute(conn, `
		SELECT id, timestamp, level, component, message, stack, app_version
		FROM telemetry_entries ORDER BY seq`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			entries = append(entries, schema.TelemetryEntry{
				ID:         stmt.ColumnText(0),
				Timestamp:  stmt.ColumnInt64(1),
				Level:      schema.Level(stmt.ColumnText(2)),
				Component:  stmt.ColumnText(3),
				Message:    stmt.ColumnText(4),
				Stack:      stmt.ColumnText(5),
				AppVersion: stmt.ColumnText(6),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("statedb: load telemetry: %w", err)
	}
	return entries, nil
}

// ReplaceTelemetry overwrites the persisted buffer with the given
// entries, in order, in a single transaction. The in-memory buffer is
// the source of truth; every mutation writes its full state through
// here so a crash at any point restores a consistent buffer.
func (db *DB) ReplaceTelemetry(ctx context.Context, entries []schema.TelemetryEntry) (err error) {
	conn, err := db.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("statedb: replace telemetry: %w", err)
	}
	defer db.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("statedb: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	if err := sqlitex.Execute(conn, `DELETE FROM telemetry_entries`, nil); err != nil {
		return fmt.Errorf("statedb: clearing telemetry: %w", err)
	}
	for i := range entries {
		entry := &entries[i]
		err := sqlitex.Execute(conn, `
			INSERT INTO telemetry_entries
				(id, timestamp, level, component, message, stack, app_version)
			VALUES (?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
			Args: []any{
				entry.ID, entry.Timestamp, string(entry.Level),
				entry.Component, entry.Message, entry.Stack, entry.AppVersion,
			},
		})
		if err != nil {
			return fmt.Errorf("statedb: inserting telemetry entry: %w", err)
		}
	}
	return nil
}

// Credential returns the stored collector credential. Missing fields
// come back empty; callers check Complete.
func (db *DB) Credential(ctx context.Context) (Credential, error) {
	conn, err := db.pool.Take(ctx)
	if err != nil {
		return Credential{}, fmt.Errorf("statedb: read credential: %w", err)
	}
	defer db.pool.Put(conn)

	endpoint, err := readSetting(conn, settingCollectorEndpoint)
	if err != nil {
		return Credential{}, err
	}
	key, err := readSetting(conn, settingDeviceKey)
	if err != nil {
		return Credential{}, err
	}
	return Credential{Endpoint: endpoint, DeviceKey: key}, nil
}

// SetCredential stores the collector endpoint and device key,
// replacing any prior values.
func (db *DB) SetCredential(ctx context.Context, credential Credential) (err error) {
	conn, err := db.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("statedb: set credential: %w", err)
	}
	defer db.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("statedb: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	if err := writeSetting(conn, settingCollectorEndpoint, credential.Endpoint); err != nil {
		return err
	}
	if err := writeSetting(conn, settingDeviceKey, credential.DeviceKey); err != nil {
		return err
	}
	db.logger.Info("collector credential updated", "endpoint", credential.Endpoint)
	return nil
}

// InstallID returns the stable per-installation identifier, generated
// once on first open.
func (db *DB) InstallID(ctx context.Context) (string, error) {
	conn, err := db.pool.Take(ctx)
	if err != nil {
		return "", fmt.Errorf("statedb: read install id: %w", err)
	}
	defer db.pool.Put(conn)
	return readSetting(conn, settingInstallID)
}

func (db *DB) ensureInstallID(ctx context.Context) error {
	conn, err := db.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("statedb: ensure install id: %w", err)
	}
	defer db.pool.Put(conn)

	existing, err := readSetting(conn, settingInstallID)
	if err != nil {
		return err
	}
	if existing != "" {
		return nil
	}

	id := uuid.NewString()
	if err := writeSetting(conn, settingInstallID, id); err != nil {
		return err
	}
	db.logger.Info("install id generated", "install_id", id)
	return nil
}

func readSetting(conn *sqlite.Conn, key string) (string, error) {
	var value string
	err := sqlitex.Execute(conn, `SELECT value FROM device_settings WHERE key = ?`,
		&sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				value = stmt.ColumnText(0)
				return nil
			},
		})
	if err != nil {
		return "", fmt.Errorf("statedb: reading setting %s: %w", key, err)
	}
	return value, nil
}

func writeSetting(conn *sqlite.Conn, key, value string) error {
	err := sqlitex.Execute(conn, `
		INSERT INTO device_settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		&sqlitex.ExecOptions{Args: []any{key, value}})
	if err != nil {
		return fmt.Errorf("statedb: writing setting %s: %w", key, err)
	}
	return nil
}
