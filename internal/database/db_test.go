package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported database driver")
}

func TestOpenAndMigrateSQLiteInMemory(t *testing.T) {
	db, err := OpenAndMigrate(Config{Driver: "sqlite", DSN: "file:dbtest?mode=memory&cache=shared"})
	require.NoError(t, err)
	require.True(t, db.Migrator().HasTable("notification_logs"))
	require.True(t, db.Migrator().HasTable("notification_settings"))
	require.True(t, db.Migrator().HasTable("credentials"))
	require.NoError(t, Close(db))
}

func TestBuildPostgresDSN(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{User: "console", Name: "agentconsole", Password: "pw"})
	require.NoError(t, err)
	require.Contains(t, dsn, "host=localhost")
	require.Contains(t, dsn, "port=5432")
	require.Contains(t, dsn, "dbname=agentconsole")
	require.Contains(t, dsn, "password=pw")
	require.Contains(t, dsn, "sslmode=disable")
}

func TestBuildPostgresDSNRequiresUserAndName(t *testing.T) {
	_, err := buildPostgresDSN(Config{})
	require.Error(t, err)
}

func TestBuildPostgresDSNPrefersOverride(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{DSN: "host=db user=x dbname=y"})
	require.NoError(t, err)
	require.Equal(t, "host=db user=x dbname=y", dsn)
}

func TestBuildMySQLDSN(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{User: "console", Password: "pw", Name: "agentconsole"})
	require.NoError(t, err)
	require.Equal(t, "console:pw@tcp(127.0.0.1:3306)/agentconsole?charset=utf8mb4&parseTime=True&loc=Local", dsn)
}

func TestBuildMySQLDSNRequiresUserAndName(t *testing.T) {
	_, err := buildMySQLDSN(Config{User: "console"})
	require.Error(t, err)
}
