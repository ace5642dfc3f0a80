package audit

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okpass/mobilecore/internal/cryptox"
	"github.com/okpass/mobilecore/internal/logging"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "activity.db")

	db, err := InitDatabase(ctx, dsn)
	require.NoError(t, err)

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	s := NewService(db, logger)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunMigrations_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := InitDatabase(ctx, filepath.Join(t.TempDir(), "activity.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RunMigrations(ctx, db))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM audit_log`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestService_LogAndQuery(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	s.Log(ctx, "file:///docs/A.kdbx", EventUnlock, "")
	s.Log(ctx, "file:///docs/A.kdbx", EventSave, "")
	s.Log(ctx, "file:///docs/B.kdbx", EventSaveError, "checksum mismatch")

	records, err := s.RecentActivity(ctx, "file:///docs/A.kdbx", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, EventSave, records[0].Event)
	assert.Equal(t, cryptox.DbKeyHash("file:///docs/A.kdbx"), records[0].DbKeyHash)

	all, err := s.AllRecentActivity(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestService_Trim(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	old := &Record{DbKeyHash: "h", Event: EventUnlock, CreatedAt: 100}
	require.NoError(t, s.repo.Insert(ctx, old))
	s.Log(ctx, "file:///docs/A.kdbx", EventSave, "")

	removed, err := s.Trim(ctx, time.Now().Unix()-3600)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	all, err := s.AllRecentActivity(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
