package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"

	"github.com/suhana-ai/appsecurity"
)

const (
	defaultLoadRingQuery   = "SELECT key_record FROM encryption_key_ring WHERE ring_id = ? ORDER BY position ASC"
	defaultDeleteRingQuery = "DELETE FROM encryption_key_ring WHERE ring_id = ?"
	defaultInsertKeyQuery  = "INSERT INTO encryption_key_ring (ring_id, position, key_record) VALUES (?, ?, ?)"
	defaultSQLKeyStoreRing = "default"
)

var (
	// Verify SQLKeyStore implements the KeyStore interface.
	_ appsecurity.KeyStore = (*SQLKeyStore)(nil)

	loadSQLTimer  = metrics.GetOrRegisterTimer(fmt.Sprintf("%s.keystore.sql.load", appsecurity.MetricsPrefix), nil)
	storeSQLTimer = metrics.GetOrRegisterTimer(fmt.Sprintf("%s.keystore.sql.store", appsecurity.MetricsPrefix), nil)
)

// SQLKeyStoreDBType identifies a specific database/sql driver.
type SQLKeyStoreDBType string

const (
	Postgres SQLKeyStoreDBType = "postgres"
	Oracle   SQLKeyStoreDBType = "oracle"
	MySQL    SQLKeyStoreDBType = "mysql"

	DefaultDBType = MySQL
)

var qrx = regexp.MustCompile(`\?`)

// q converts "?" characters to $1, $2, $n on postgres, :1, :2, :n on Oracle.
//
// This function is based on a function of the same name found in the Go
// sql test project: https://github.com/bradfitz/go-sql-test.
func (t SQLKeyStoreDBType) q(sql string) string {
	var pref string

	//nolint:exhaustive
	switch t {
	case Postgres:
		pref = "$"
	case Oracle:
		pref = ":"
	default:
		return sql
	}
	n := 0
	return qrx.ReplaceAllStringFunc(sql, func(string) string {
		n++
		return pref + strconv.Itoa(n)
	})
}

// SQLKeyStoreOption is used to configure additional options in a SQLKeyStore.
type SQLKeyStoreOption func(*SQLKeyStore)

// WithSQLKeyStoreDBType configures the SQLKeyStore for use with the specified
// family of database/sql drivers such as Postgres, Oracle, or MySQL (default).
func WithSQLKeyStoreDBType(t SQLKeyStoreDBType) SQLKeyStoreOption {
	return func(s *SQLKeyStore) {
		s.dbType = t
		s.loadRingQuery = t.q(s.loadRingQuery)
		s.deleteRingQuery = t.q(s.deleteRingQuery)
		s.insertKeyQuery = t.q(s.insertKeyQuery)
	}
}

// WithSQLKeyStoreRingID scopes the store to a named ring, allowing multiple
// managers to share one table.
func WithSQLKeyStoreRingID(id string) SQLKeyStoreOption {
	return func(s *SQLKeyStore) {
		s.ringID = id
	}
}

// SQLKeyStore implements the KeyStore interface for a RDBMS-backed store.
// Each ring key is stored as one row holding its serialized record; Store
// replaces the full ring in a single transaction.
//
// Required table structure:
//
//	CREATE TABLE encryption_key_ring (
//	    ring_id    VARCHAR(255) NOT NULL,
//	    position   INT          NOT NULL,
//	    key_record TEXT         NOT NULL,
//	    PRIMARY KEY (ring_id, position)
//	);
type SQLKeyStore struct {
	db *sql.DB

	dbType          SQLKeyStoreDBType
	ringID          string
	loadRingQuery   string
	deleteRingQuery string
	insertKeyQuery  string
}

// NewSQLKeyStore returns a new SQLKeyStore using the provided sql connection.
func NewSQLKeyStore(dbHandle *sql.DB, opts ...SQLKeyStoreOption) *SQLKeyStore {
	store := &SQLKeyStore{
		db: dbHandle,

		dbType:          DefaultDBType,
		ringID:          defaultSQLKeyStoreRing,
		loadRingQuery:   defaultLoadRingQuery,
		deleteRingQuery: defaultDeleteRingQuery,
		insertKeyQuery:  defaultInsertKeyQuery,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Load retrieves the full ring, newest first.
func (s *SQLKeyStore) Load(ctx context.Context) ([]appsecurity.StoredKey, error) {
	defer loadSQLTimer.UpdateSince(time.Now())

	rows, err := s.db.QueryContext(ctx, s.loadRingQuery, s.ringID)
	if err != nil {
		return nil, errors.Wrap(err, "error querying key ring")
	}

	defer rows.Close()

	var keys []appsecurity.StoredKey

	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, errors.Wrap(err, "error scanning key record")
		}

		var key appsecurity.StoredKey
		if err := json.Unmarshal([]byte(record), &key); err != nil {
			return nil, errors.Wrap(err, "error parsing key record")
		}

		keys = append(keys, key)
	}

	return keys, errors.Wrap(rows.Err(), "error iterating key records")
}

// Store replaces the full ring in a single transaction.
func (s *SQLKeyStore) Store(ctx context.Context, keys []appsecurity.StoredKey) error {
	defer storeSQLTimer.UpdateSince(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "error beginning key ring transaction")
	}

	if err := s.storeTx(ctx, tx, keys); err != nil {
		_ = tx.Rollback()
		return err
	}

	return errors.Wrap(tx.Commit(), "error committing key ring")
}

func (s *SQLKeyStore) storeTx(ctx context.Context, tx *sql.Tx, keys []appsecurity.StoredKey) error {
	if _, err := tx.ExecContext(ctx, s.deleteRingQuery, s.ringID); err != nil {
		return errors.Wrap(err, "error clearing key ring")
	}

	for i, key := range keys {
		record, err := json.Marshal(key)
		if err != nil {
			return errors.Wrap(err, "error serializing key record")
		}

		if _, err := tx.ExecContext(ctx, s.insertKeyQuery, s.ringID, i, string(record)); err != nil {
			return errors.Wrap(err, "error inserting key record")
		}
	}

	return nil
}
