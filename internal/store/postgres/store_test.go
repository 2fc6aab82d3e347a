package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/trades?sslmode=disable",
		DSN(ClientConfig{Host: "db", User: "u", Password: "p", Database: "trades"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}

func TestMigrationFilesOrdered(t *testing.T) {
	names, err := migrationFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_ledger.sql", "002_audit.sql"}, names)
}

func TestAuditQuery(t *testing.T) {
	q, args := auditQuery(domain.ListOpts{})
	assert.Equal(t, "SELECT id, event, detail, created_at FROM audit_log ORDER BY created_at DESC, id DESC", q)
	assert.Empty(t, args)

	since := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	q, args = auditQuery(domain.ListOpts{Since: &since, Limit: 10, Offset: 20})
	assert.Equal(t, "SELECT id, event, detail, created_at FROM audit_log WHERE created_at >= $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3", q)
	assert.Equal(t, []any{since, 10, 20}, args)
}

func TestLedgerArgsDefaults(t *testing.T) {
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	args := ledgerArgs("algo", date, 3, domain.Order{ID: "o1", Asset: domain.Asset{Symbol: "ACME"}, Side: domain.OrderSideBuy})
	require.Len(t, args, 18)
	assert.Equal(t, 3, args[2])
	assert.Equal(t, "spot", args[5])
	assert.Equal(t, "market", args[7])
}
