// Package auditlog records which updates the runtime has processed and
// when, for the admin surface's /audit endpoint. This is write-once
// observability data: the runtime never reads it back to decide behavior,
// so it does not reintroduce persistence-across-restarts (an explicit
// Non-goal — see spec.md §1).
package auditlog

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/hrygo/tgrunner/chatid"
)

// Store records processed updates and answers recent-history queries.
type Store interface {
	RecordProcessed(ctx context.Context, updateID int, chatID chatid.ChatId, at time.Time) error
	RecentUpdateIDs(ctx context.Context, limit int) ([]int, error)
	Close() error
}

// sqlStore is a database/sql-backed Store; the schema and queries are
// identical across sqlite/postgres, only the driver name and DSN differ, as
// in the teacher's store/db sqlite/postgres split.
type sqlStore struct {
	db     *sql.DB
	driver string
}

// Open selects a Store by driver name ("sqlite" or "postgres") and DSN,
// creating the backing table if it does not already exist.
func Open(driver, dsn string) (Store, error) {
	var driverName string
	switch driver {
	case "sqlite":
		driverName = "sqlite"
	case "postgres":
		driverName = "postgres"
	default:
		return nil, errors.Errorf("auditlog: unsupported driver %q", driver)
	}

	if dsn == "" {
		return nil, errors.New("auditlog: dsn required")
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "auditlog: open db with dsn %s", dsn)
	}

	if err := createSchema(db, driver); err != nil {
		db.Close()
		return nil, err
	}

	return &sqlStore{db: db, driver: driver}, nil
}

func createSchema(db *sql.DB, driver string) error {
	stmt := `CREATE TABLE IF NOT EXISTS processed_updates (
		update_id  BIGINT NOT NULL,
		chat_id    TEXT NOT NULL,
		processed_at TIMESTAMP NOT NULL
	)`
	if _, err := db.Exec(stmt); err != nil {
		return errors.Wrapf(err, "auditlog: create schema (driver=%s)", driver)
	}
	return nil
}

func (s *sqlStore) RecordProcessed(ctx context.Context, updateID int, chatID chatid.ChatId, at time.Time) error {
	query := "INSERT INTO processed_updates (update_id, chat_id, processed_at) VALUES (?, ?, ?)"
	if s.driver == "postgres" {
		query = "INSERT INTO processed_updates (update_id, chat_id, processed_at) VALUES ($1, $2, $3)"
	}
	_, err := s.db.ExecContext(ctx, query, updateID, chatID.String(), at)
	if err != nil {
		return errors.Wrap(err, "auditlog: record processed update")
	}
	return nil
}

func (s *sqlStore) RecentUpdateIDs(ctx context.Context, limit int) ([]int, error) {
	query := "SELECT update_id FROM processed_updates ORDER BY processed_at DESC LIMIT ?"
	if s.driver == "postgres" {
		query = "SELECT update_id FROM processed_updates ORDER BY processed_at DESC LIMIT $1"
	}
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "auditlog: query recent update ids")
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "auditlog: scan update id")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *sqlStore) Close() error { return s.db.Close() }
