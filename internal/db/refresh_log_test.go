package db

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func openMemory(t testing.TB) DB {
	t.Helper()
	db, err := OpenDB(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func exerciseRefreshLog(t *testing.T, db DB) {
	ctx := context.Background()
	refreshLog := NewRefreshLog(db)

	base := time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		failed := i == 3
		errText := ""
		if failed {
			errText = "api: status 502"
		}
		err := refreshLog.Record(ctx, Entry{
			StartedAt:     base.Add(time.Duration(i) * 5 * time.Minute),
			Duration:      time.Duration(i+1) * time.Second,
			Success:       !failed,
			Error:         errText,
			Letters:       10 + i,
			Unread:        i,
			Homework:      2,
			Exams:         1,
			ScraperFailed: i == 4,
		})
		require.NoError(t, err)
	}

	recent, err := refreshLog.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, 14, recent[0].Letters)
	require.True(t, recent[0].ScraperFailed)
	require.Equal(t, 5*time.Second, recent[0].Duration)
	require.True(t, recent[0].StartedAt.Equal(base.Add(20*time.Minute)))
	require.False(t, recent[1].Success)
	require.Equal(t, "api: status 502", recent[1].Error)

	deleted, err := refreshLog.Prune(ctx, 3)
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)

	all, err := refreshLog.Recent(ctx, 100)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, 12, all[2].Letters)
}

func TestRefreshLogSqlite(t *testing.T) {
	exerciseRefreshLog(t, openMemory(t))
}

func TestOpenSqliteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "refresh.db")
	db, err := OpenDB(context.Background(), path)
	require.NoError(t, err)
	defer db.Close()
	require.Equal(t, DialectSQLite, db.Dialect)

	require.NoError(t, db.Migrate(context.Background()))
	// migrating twice is harmless
	require.NoError(t, db.Migrate(context.Background()))
	exerciseRefreshLog(t, db)
}

func TestRefreshLogPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	// suppress logging
	testcontainers.Logger = log.New(io.Discard, "", 0)

	ctx := context.Background()
	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		Started: true,
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "schulmanager",
				"POSTGRES_PASSWORD": "schulmanager",
				"POSTGRES_DB":       "schulmanager",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
	})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, postgres.Terminate(ctx))
	}()

	host, err := postgres.Host(ctx)
	require.NoError(t, err)
	port, err := postgres.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	db, err := OpenDB(ctx, fmt.Sprintf(
		"postgres://schulmanager:schulmanager@%s:%s/schulmanager?sslmode=disable",
		host, port.Port(),
	))
	require.NoError(t, err)
	defer db.Close()
	require.Equal(t, DialectPostgres, db.Dialect)

	require.NoError(t, db.Migrate(ctx))
	exerciseRefreshLog(t, db)
}
