package db

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestMigrateSQLiteCreatesSchema(t *testing.T) {
	conn, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, MigrateSQLite(conn))

	for _, table := range []string{"products", "services", "users", "checkout_orders", "checkout_order_items"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestPgxURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@db:5432/shop?sslmode=disable", pgxURL("postgres://u:p@db:5432/shop?sslmode=disable"))
	require.Equal(t, "pgx5://db/shop", pgxURL("postgresql://db/shop"))
	require.Equal(t, "pgx5://db/shop", pgxURL("pgx5://db/shop"))
}
