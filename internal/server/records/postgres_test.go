package records

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

var recordColumns = []string{
	"id", "original_name", "stored_name", "size", "mimetype",
	"checksum", "uploaded_at", "download_count",
}

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresStore(mock), mock
}

func TestPostgresStore_Put(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts record", func(t *testing.T) {
		store, mock := newMockStore(t)
		rec := newTestRecord("r1")

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO files")).
			WithArgs(rec.ID, rec.OriginalName, rec.StoredName, rec.Size, rec.MimeType,
				rec.Checksum, pgxmock.AnyArg(), rec.DownloadCount).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, store.Put(ctx, rec))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation maps to ErrDuplicate", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO files")).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: "23505"})

		err := store.Put(ctx, newTestRecord("r1"))
		require.ErrorIs(t, err, ErrDuplicate)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("scans row", func(t *testing.T) {
		store, mock := newMockStore(t)
		uploaded := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

		rows := pgxmock.NewRows(recordColumns).
			AddRow("r1", "a.txt", "r1.txt", int64(10), "text/plain", "abc", uploaded, int64(3))
		mock.ExpectQuery(regexp.QuoteMeta("FROM files WHERE id = $1")).
			WithArgs("r1").
			WillReturnRows(rows)

		rec, err := store.Get(ctx, "r1")
		require.NoError(t, err)
		require.Equal(t, "a.txt", rec.OriginalName)
		require.Equal(t, "r1.txt", rec.StoredName)
		require.Equal(t, int64(10), rec.Size)
		require.Equal(t, uploaded, rec.UploadedAt)
		require.Equal(t, int64(3), rec.DownloadCount)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no rows maps to ErrNotFound", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery(regexp.QuoteMeta("FROM files WHERE id = $1")).
			WithArgs("missing").
			WillReturnError(pgx.ErrNoRows)

		_, err := store.Get(ctx, "missing")
		require.ErrorIs(t, err, ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("other errors are wrapped", func(t *testing.T) {
		store, mock := newMockStore(t)
		boom := errors.New("connection reset")

		mock.ExpectQuery(regexp.QuoteMeta("FROM files WHERE id = $1")).
			WithArgs("r1").
			WillReturnError(boom)

		_, err := store.Get(ctx, "r1")
		require.ErrorIs(t, err, boom)
		require.NotErrorIs(t, err, ErrNotFound)
	})
}

func TestPostgresStore_IncrementDownloads(t *testing.T) {
	ctx := context.Background()

	t.Run("returns new count", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery(regexp.QuoteMeta("UPDATE files SET download_count = download_count + 1")).
			WithArgs("r1").
			WillReturnRows(pgxmock.NewRows([]string{"download_count"}).AddRow(int64(4)))

		n, err := store.IncrementDownloads(ctx, "r1")
		require.NoError(t, err)
		require.Equal(t, int64(4), n)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown id", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery(regexp.QuoteMeta("UPDATE files SET download_count")).
			WithArgs("missing").
			WillReturnError(pgx.ErrNoRows)

		_, err := store.IncrementDownloads(ctx, "missing")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestPostgresStore_Stats(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM files")).
		WillReturnRows(pgxmock.NewRows([]string{"count", "downloads", "size"}).
			AddRow(int64(2), int64(7), int64(2048)))

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, &Stats{TotalFiles: 2, TotalDownloads: 7, StorageUsed: 2048}, stats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RunMigrations(t *testing.T) {
	ctx := context.Background()

	t.Run("applies pending migration", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
			WillReturnResult(pgxmock.NewResult("CREATE", 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM schema_migrations")).
			WithArgs("000001_create_files").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS files")).
			WillReturnResult(pgxmock.NewResult("CREATE", 0))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations")).
			WithArgs("000001_create_files").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		require.NoError(t, store.RunMigrations(ctx))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("skips applied migration", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
			WillReturnResult(pgxmock.NewResult("CREATE", 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM schema_migrations")).
			WithArgs("000001_create_files").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		require.NoError(t, store.RunMigrations(ctx))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back failed migration", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
			WillReturnResult(pgxmock.NewResult("CREATE", 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM schema_migrations")).
			WithArgs("000001_create_files").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS files")).
			WillReturnError(errors.New("syntax error"))
		mock.ExpectRollback()

		require.Error(t, store.RunMigrations(ctx))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_HealthCheck(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mock.Close()
	store := NewPostgresStore(mock)

	mock.ExpectPing()

	require.NoError(t, store.HealthCheck(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
