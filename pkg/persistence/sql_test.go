package persistence

import (
	"database/sql"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestDB returns a lazily connected handle; no database is contacted
// unless a query runs.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("mysql", "user:password@tcp(localhost:3306)/appsec")
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestSQLKeyStoreDBType_Q(t *testing.T) {
	query := "SELECT key_record FROM encryption_key_ring WHERE ring_id = ? AND position = ?"

	assert.Equal(t,
		"SELECT key_record FROM encryption_key_ring WHERE ring_id = $1 AND position = $2",
		Postgres.q(query))

	assert.Equal(t,
		"SELECT key_record FROM encryption_key_ring WHERE ring_id = :1 AND position = :2",
		Oracle.q(query))

	assert.Equal(t, query, MySQL.q(query))
}

func TestNewSQLKeyStore_Defaults(t *testing.T) {
	store := NewSQLKeyStore(openTestDB(t))

	assert.Equal(t, DefaultDBType, store.dbType)
	assert.Equal(t, defaultSQLKeyStoreRing, store.ringID)
	assert.Equal(t, defaultLoadRingQuery, store.loadRingQuery)
}

func TestNewSQLKeyStore_WithOptions(t *testing.T) {
	store := NewSQLKeyStore(openTestDB(t),
		WithSQLKeyStoreDBType(Postgres),
		WithSQLKeyStoreRingID("tenant-42"),
	)

	assert.Equal(t, Postgres, store.dbType)
	assert.Equal(t, "tenant-42", store.ringID)
	assert.Contains(t, store.loadRingQuery, "$1")
	assert.Contains(t, store.deleteRingQuery, "$1")
	assert.Contains(t, store.insertKeyQuery, "$3")
}
