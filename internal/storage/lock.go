package storage

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/rezonia/stock-intake/internal/model"
)

// AdvisoryLocker is a ledger.Locker on Postgres session advisory locks.
// Every process connected to the same database waits on the same keys.
type AdvisoryLocker struct {
	db *gorm.DB
}

// NewAdvisoryLocker creates a locker on db
func NewAdvisoryLocker(db *gorm.DB) *AdvisoryLocker {
	return &AdvisoryLocker{db: db}
}

// Lock pins one pooled connection for as long as the lock is held. Closing
// that connection ends the session, which drops the lock with it.
func (l *AdvisoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	sqlDB, err := l.db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: lock %s: %w", model.ErrLedgerUnavailable, key, err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: lock %s: %w", model.ErrLedgerUnavailable, key, err)
	}
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock(hashtextextended($1, 0))", key); err != nil {
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: lock %s: %w", model.ErrLedgerUnavailable, key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock(hashtextextended($1, 0))", key)
			_ = conn.Close()
		})
	}, nil
}
