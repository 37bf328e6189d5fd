package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/nftstore/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://explicit", DSN(ClientConfig{DSN: "postgres://explicit", Host: "ignored"}))
	assert.Equal(t,
		"postgres://u:p@db:5432/nft?sslmode=disable",
		DSN(ClientConfig{Host: "db", Database: "nft", User: "u", Password: "p"}),
	)
	assert.Equal(t,
		"postgres://u:p@db:6543/nft?sslmode=require",
		DSN(ClientConfig{Host: "db", Port: 6543, Database: "nft", User: "u", Password: "p", SSLMode: "require"}),
	)
}

func TestMigrationFilesOrdered(t *testing.T) {
	names, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_events.sql", names[0])
	assert.IsNonDecreasing(t, names)
}

func TestListQuery(t *testing.T) {
	since := time.Unix(100, 0)
	query, args := newListQuery(`SELECT payload FROM store_events WHERE collection = $1`, "0xabc").
		apply(domain.ListOpts{Since: &since, Limit: 10, Offset: 20})

	assert.Equal(t,
		`SELECT payload FROM store_events WHERE collection = $1 AND created_at >= $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		query,
	)
	assert.Equal(t, []any{"0xabc", since, 10, 20}, args)
}

func TestListQueryNoOpts(t *testing.T) {
	query, args := newListQuery(`SELECT 1 WHERE 1=1`).apply(domain.ListOpts{})
	assert.Equal(t, `SELECT 1 WHERE 1=1 ORDER BY created_at DESC`, query)
	assert.Empty(t, args)
}
