package database

import (
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSNEnablesFoundRows(t *testing.T) {
	dsn := DSN("app", "secret", "db", "3306", "tickets")
	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.True(t, cfg.ClientFoundRows)
	assert.True(t, cfg.ParseTime)
	assert.Equal(t, "db:3306", cfg.Addr)
	assert.Equal(t, "tickets", cfg.DBName)
	assert.Equal(t, "secret", cfg.Passwd)
}

func TestSchemaStatements(t *testing.T) {
	stmts := Statements()
	require.Len(t, stmts, 6)
	for _, s := range stmts {
		assert.True(t, strings.HasPrefix(s, "CREATE TABLE IF NOT EXISTS"), s)
	}
}
