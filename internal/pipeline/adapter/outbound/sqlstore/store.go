// Package sqlstore persists analysis sessions in PostgreSQL or SQLite through GORM.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/config"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/domain"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/port"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store is a port.SessionStore on top of a GORM connection.
type Store struct {
	db    *gorm.DB
	table string
	now   func() time.Time
}

// Ensure Store implements port.SessionStore.
var _ port.SessionStore = (*Store)(nil)

// Option customizes the store.
type Option func(*Store)

// WithClock replaces time.Now for updated_at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open connects with the configured driver, sizes the pool and applies migrations.
func Open(cfg config.SessionsConfig, opts ...Option) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported session driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	table := cfg.Table
	if table == "" {
		table = "analysis_sessions"
	}
	if err := runMigrations(db, table); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{db: db, table: table, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	logger.Infow("Session store opened", "driver", cfg.Driver, "table", table, "max_conns", maxConns)
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) sessions(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.table)
}

func (s *Store) Create(ctx context.Context, session *domain.Session) error {
	rec := toRecord(session)
	if err := s.sessions(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", port.ErrSessionExists, session.SessionID)
		}
		return fmt.Errorf("insert session %s: %w", session.SessionID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	var rec sessionRecord
	err := s.sessions(ctx).Where("session_id = ?", sessionID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", port.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	return rec.toDomain(), nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]domain.Session, error) {
	var recs []sessionRecord
	err := s.sessions(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions for %s: %w", userID, err)
	}

	out := make([]domain.Session, 0, len(recs))
	for i := range recs {
		out = append(out, *recs[i].toDomain())
	}
	return out, nil
}

func (s *Store) Transition(ctx context.Context, sessionID string, from []domain.Status, to domain.Status, patch domain.SessionPatch) (bool, error) {
	if !domain.AllowTransition(from, to) {
		return false, fmt.Errorf("%w: %v to %s for %s", port.ErrInvalidTransition, from, to, sessionID)
	}
	updates := patchColumns(patch)
	updates["status"] = string(to)

	changed, err := s.update(ctx, sessionID, from, updates)
	if err != nil {
		return false, fmt.Errorf("transition session %s to %s: %w", sessionID, to, err)
	}
	return changed, nil
}

func (s *Store) Patch(ctx context.Context, sessionID string, from []domain.Status, patch domain.SessionPatch) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("%w: no source status for %s", port.ErrInvalidTransition, sessionID)
	}

	changed, err := s.update(ctx, sessionID, from, patchColumns(patch))
	if err != nil {
		return false, fmt.Errorf("patch session %s: %w", sessionID, err)
	}
	return changed, nil
}

// update writes updates to the row while its status is one of from.
func (s *Store) update(ctx context.Context, sessionID string, from []domain.Status, updates map[string]any) (bool, error) {
	updates["updated_at"] = s.now().UTC()
	res := s.sessions(ctx).
		Where("session_id = ? AND status IN ?", sessionID, statusStrings(from)).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkStale selects and updates the matching rows in one transaction. The update
// repeats the status predicate so rows that moved on in between are left alone.
func (s *Store) MarkStale(ctx context.Context, filter domain.StaleFilter, to domain.Status, reason string) ([]string, error) {
	if len(filter.Statuses) == 0 {
		return nil, nil
	}
	if !domain.AllowTransition(filter.Statuses, to) {
		return nil, fmt.Errorf("%w: %v to %s", port.ErrInvalidTransition, filter.Statuses, to)
	}
	statuses := statusStrings(filter.Statuses)

	var ids []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Table(s.table).
			Where("status IN ? AND created_at < ?", statuses, filter.CreatedBefore.UTC())
		if filter.UserID != "" {
			q = q.Where("user_id = ?", filter.UserID)
		}
		if err := q.Pluck("session_id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		updates := map[string]any{"status": string(to), "updated_at": s.now().UTC()}
		if reason != "" {
			updates["failure_reason"] = reason
		}
		return tx.Table(s.table).
			Where("session_id IN ? AND status IN ?", ids, statuses).
			Updates(updates).Error
	})
	if err != nil {
		return nil, fmt.Errorf("mark stale sessions %s: %w", to, err)
	}
	return ids, nil
}

func (s *Store) DeleteByStatus(ctx context.Context, userID string, statuses []domain.Status) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	res := s.sessions(ctx).
		Where("user_id = ? AND status IN ?", userID, statusStrings(statuses)).
		Delete(&sessionRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete sessions for %s: %w", userID, res.Error)
	}
	return int(res.RowsAffected), nil
}

func patchColumns(patch domain.SessionPatch) map[string]any {
	cols := make(map[string]any, 6)
	if patch.InputArchiveURL != "" {
		cols["input_archive_url"] = patch.InputArchiveURL
	}
	if patch.InputArchiveExpiresAt != nil {
		cols["input_archive_expires_at"] = patch.InputArchiveExpiresAt.UTC()
	}
	if patch.ResultArchiveURL != "" {
		cols["result_archive_url"] = patch.ResultArchiveURL
	}
	if patch.FailureReason != "" {
		cols["failure_reason"] = patch.FailureReason
	}
	return cols
}

func statusStrings(statuses []domain.Status) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}
