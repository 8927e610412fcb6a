package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Postgres stores the transcript in a single table through gorm.
type Postgres struct {
	db     *gorm.DB
	logger *zap.Logger
}

func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*Postgres, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: NewGormLogger(logger.Named("gorm"), DefaultSlowQuery),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	p := &Postgres{db: db, logger: logger}
	if err := p.db.WithContext(ctx).AutoMigrate(&Entry{}); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("migrate transcript: %w", classify(err))
	}
	logger.Info("transcript store ready", zap.String("table", Entry{}.TableName()))
	return p, nil
}

// NewPostgres wraps an already opened gorm handle. No migration is run.
func NewPostgres(db *gorm.DB, logger *zap.Logger) *Postgres {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Postgres{db: db, logger: logger}
}

func (p *Postgres) Append(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := p.db.WithContext(ctx).Create(&entries).Error; err != nil {
		return fmt.Errorf("append %d entries: %w", len(entries), classify(err))
	}
	return nil
}

func (p *Postgres) List(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	var out []Entry
	if err := p.listQuery(ctx, sessionID, limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list transcript: %w", classify(err))
	}
	// Newest-first from the query when limited; callers want reading order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (p *Postgres) listQuery(ctx context.Context, sessionID string, limit int) *gorm.DB {
	q := p.db.WithContext(ctx).Model(&Entry{})
	if sessionID != "" {
		q = q.Where("session_id = ?", sessionID)
	}
	q = q.Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return q
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		case "42P01":
			return fmt.Errorf("%w: %s", ErrNotMigrated, pgErr.Message)
		}
	}
	return err
}
