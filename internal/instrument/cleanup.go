package instrument

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"rulecompiler/internal/store"
)

// CleanupOldEvents deletes compile events older than retentionDays and
// returns the number of rows removed.
func CleanupOldEvents(ctx context.Context, db *sql.DB, dialect store.Dialect, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	sqlStr := "DELETE FROM _compile_events WHERE " + dialect.RetentionExpr("created_at", retentionDays)
	n, err := store.Exec(ctx, db, sqlStr)
	if err != nil {
		return 0, fmt.Errorf("event cleanup: %w", err)
	}
	return n, nil
}

// RunCleanup prunes old events every interval until ctx is cancelled.
func RunCleanup(ctx context.Context, db *sql.DB, dialect store.Dialect, retentionDays int, interval time.Duration, logger *zap.Logger) {
	if retentionDays <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := CleanupOldEvents(ctx, db, dialect, retentionDays)
			if err != nil {
				logger.Error("compile event cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("pruned compile events", zap.Int64("deleted", n))
			}
		}
	}
}
