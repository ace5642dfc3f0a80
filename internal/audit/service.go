package audit

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/okpass/mobilecore/internal/audit/migrations"
	"github.com/okpass/mobilecore/internal/cryptox"
	"github.com/okpass/mobilecore/internal/dbx"
	"github.com/okpass/mobilecore/internal/logging"
)

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens (creating if needed) the activity log database and
// brings its schema up to date.
func InitDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Service is the best-effort logging facade used by the pipelines.
type Service struct {
	db     *sql.DB
	repo   Repository
	logger logging.Logger
}

func NewService(db *sql.DB, logger logging.Logger) *Service {
	return &Service{db: db, repo: NewSQLiteRepository(db), logger: logger}
}

// Log appends one activity record. Failures are logged and swallowed.
func (s *Service) Log(ctx context.Context, dbKey string, event Event, detail string) {
	rec := &Record{
		DbKeyHash: cryptox.DbKeyHash(dbKey),
		Event:     event,
		Detail:    detail,
	}
	if err := s.repo.Insert(ctx, rec); err != nil {
		s.logger.Warn(ctx, "cannot append audit record", "event", event, "error", err)
	}
}

// RecentActivity returns the newest records for dbKey, newest first.
func (s *Service) RecentActivity(ctx context.Context, dbKey string, limit int) ([]Record, error) {
	return s.repo.RecentByDb(ctx, cryptox.DbKeyHash(dbKey), limit)
}

// AllRecentActivity returns the newest records across databases.
func (s *Service) AllRecentActivity(ctx context.Context, limit int) ([]Record, error) {
	return s.repo.Recent(ctx, limit)
}

// Trim removes records older than cutoff inside one transaction.
func (s *Service) Trim(ctx context.Context, cutoff int64) (removed int64, err error) {
	err = dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		n, err := NewSQLiteRepository(tx).DeleteOlderThan(ctx, cutoff)
		removed = n
		return err
	})
	return removed, err
}

// Close releases the underlying database handle.
func (s *Service) Close() error {
	return s.db.Close()
}
