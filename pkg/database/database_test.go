package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"testing/fstest"
	"time"

	"github.com/alicebob/miniredis/v2"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPostgresConfig_DSN_EscapesCredentials(t *testing.T) {
	cfg := PostgresConfig{
		Host: "db", Port: 5432, User: "checkout", Password: "p@ss/word",
		DBName: "checkout", SSLMode: "disable",
	}
	assert.Equal(t, "postgres://checkout:p%40ss%2Fword@db:5432/checkout?sslmode=disable", cfg.DSN())
}

func TestRetryBackoff_WithinJitterBounds(t *testing.T) {
	for attempt, base := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		for i := 0; i < 50; i++ {
			d := retryBackoff(attempt)
			assert.GreaterOrEqual(t, d, time.Duration(float64(base)*0.75))
			assert.LessOrEqual(t, d, time.Duration(float64(base)*1.25))
		}
	}
}

var (
	createTracking = regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")
	checkApplied   = regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)")
	recordApplied  = regexp.QuoteMeta("INSERT INTO schema_migrations (version) VALUES ($1)")
)

func TestRunMigrations_AppliesPendingInOrder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	files := fstest.MapFS{
		"002_add_index.up.sql":      {Data: []byte("CREATE INDEX idx ON checkout_attempts (username)")},
		"001_create_table.up.sql":   {Data: []byte("CREATE TABLE checkout_attempts (id UUID)")},
		"001_create_table.down.sql": {Data: []byte("DROP TABLE checkout_attempts")},
		"embed.go":                  {Data: []byte("package migrations")},
	}

	mock.ExpectExec(createTracking).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	mock.ExpectQuery(checkApplied).WithArgs("001_create_table.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	mock.ExpectQuery(checkApplied).WithArgs("002_add_index.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE INDEX idx").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(recordApplied).WithArgs("002_add_index.up.sql").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, RunMigrations(context.Background(), mock, files, discardLogger()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_RollsBackOnFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	files := fstest.MapFS{
		"001_broken.up.sql": {Data: []byte("CREATE TABLE (")},
	}

	mock.ExpectExec(createTracking).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery(checkApplied).WithArgs("001_broken.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE (")).WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	err = RunMigrations(context.Background(), mock, files, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execute migration 001_broken.up.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	assert.True(t, mr.Exists("k"))
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(context.Background(), RedisConfig{Addr: addr})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping redis")
}
