package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"testing/fstest"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func migrationFS() fstest.MapFS {
	return fstest.MapFS{
		"0002_add_flags.up.sql":      {Data: []byte("ALTER TABLE users ADD COLUMN locked BOOLEAN;")},
		"0001_create_users.up.sql":   {Data: []byte("CREATE TABLE users (id UUID PRIMARY KEY);")},
		"0001_create_users.down.sql": {Data: []byte("DROP TABLE users;")},
		"README.md":                  {Data: []byte("notes")},
	}
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func expectTrackingTable(mock pgxmock.PgxPoolIface) {
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
}

func TestPendingFiles_OnlyUpSortedLexically(t *testing.T) {
	names, err := pendingFiles(migrationFS())
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_create_users.up.sql", "0002_add_flags.up.sql"}, names)
}

func TestRunMigrations_AppliesPendingSkipsApplied(t *testing.T) {
	mock := newMock(t)

	expectTrackingTable(mock)
	mock.ExpectQuery("SELECT EXISTS").WithArgs("0001_create_users.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("0002_add_flags.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("ALTER TABLE users ADD COLUMN locked").WillReturnResult(pgxmock.NewResult("ALTER", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs("0002_add_flags.up.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, RunMigrations(context.Background(), mock, migrationFS(), discardLogger()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_SQLErrorRollsBackAndStops(t *testing.T) {
	mock := newMock(t)

	expectTrackingTable(mock)
	mock.ExpectQuery("SELECT EXISTS").WithArgs("0001_create_users.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE users").WillReturnError(errors.New("syntax error at or near \"UUID\""))
	mock.ExpectRollback()

	err := RunMigrations(context.Background(), mock, migrationFS(), discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execute migration 0001_create_users.up.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_TrackingTableFailure(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnError(errors.New("permission denied for schema public"))

	err := RunMigrations(context.Background(), mock, migrationFS(), discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create schema_migrations table")
}

func TestRunMigrations_ContextCanceledDuringRetry(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnError(errors.New("dial tcp 10.0.0.5:5432: connect: connection refused"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunMigrations(ctx, mock, migrationFS(), discardLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
