package instrument

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"rulecompiler/internal/store"
)

// CompileEvent records one pass through the compile endpoint.
type CompileEvent struct {
	TemplateID string
	Text       string
	Shape      string
	Enabled    bool
	Cached     bool
	UserID     string
	DurationMs float64
}

// Sink accepts compile events. Implementations must not block the caller.
type Sink interface {
	Enqueue(event CompileEvent)
}

const (
	defaultFlushInterval = 2 * time.Second
	maxBatchRows         = 200
)

var eventColumns = []string{"template_id", "text", "shape", "enabled", "cached", "user_id", "duration_ms"}

// EventBuffer collects events in memory and periodically flushes them
// to the _compile_events table in batch inserts.
type EventBuffer struct {
	mu       sync.Mutex
	events   []CompileEvent
	db       *sql.DB
	dialect  store.Dialect
	maxSize  int
	ticker   *time.Ticker
	done     chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

// NewEventBuffer creates a buffer that flushes on a timer or when full.
func NewEventBuffer(db *sql.DB, dialect store.Dialect, maxSize int, flushInterval time.Duration, logger *zap.Logger) *EventBuffer {
	if maxSize <= 0 {
		maxSize = maxBatchRows
	}
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	eb := &EventBuffer{
		db:      db,
		dialect: dialect,
		maxSize: maxSize,
		done:    make(chan struct{}),
		logger:  logger,
	}
	eb.ticker = time.NewTicker(flushInterval)
	go eb.run()
	return eb
}

func (eb *EventBuffer) run() {
	for {
		select {
		case <-eb.done:
			return
		case <-eb.ticker.C:
			eb.Flush()
		}
	}
}

// Enqueue adds an event to the buffer. A full buffer triggers an
// asynchronous flush.
func (eb *EventBuffer) Enqueue(event CompileEvent) {
	eb.mu.Lock()
	eb.events = append(eb.events, event)
	shouldFlush := len(eb.events) >= eb.maxSize
	eb.mu.Unlock()
	if shouldFlush {
		go eb.Flush()
	}
}

// Pending returns the number of buffered events not yet written.
func (eb *EventBuffer) Pending() int {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return len(eb.events)
}

// Flush writes all buffered events to the database. Failed batches are
// logged and dropped.
func (eb *EventBuffer) Flush() {
	eb.mu.Lock()
	if len(eb.events) == 0 {
		eb.mu.Unlock()
		return
	}
	batch := eb.events
	eb.events = nil
	eb.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for start := 0; start < len(batch); start += maxBatchRows {
		end := min(start+maxBatchRows, len(batch))
		if err := eb.insert(ctx, batch[start:end]); err != nil {
			eb.logger.Error("compile event flush failed",
				zap.Int("events", end-start),
				zap.Error(err))
		}
	}
}

func (eb *EventBuffer) insert(ctx context.Context, batch []CompileEvent) error {
	pb := eb.dialect.NewParamBuilder()
	rows := make([]string, 0, len(batch))
	for _, e := range batch {
		var userID any
		if e.UserID != "" {
			userID = e.UserID
		}
		ph := []string{
			pb.Add(e.TemplateID),
			pb.Add(e.Text),
			pb.Add(e.Shape),
			pb.Add(e.Enabled),
			pb.Add(e.Cached),
			pb.Add(userID),
			pb.Add(e.DurationMs),
		}
		rows = append(rows, "("+strings.Join(ph, ",")+")")
	}

	sqlStr := fmt.Sprintf("INSERT INTO _compile_events (%s) VALUES %s",
		strings.Join(eventColumns, ","), strings.Join(rows, ","))

	return store.WithTx(ctx, eb.db, func(tx *sql.Tx) error {
		if stmt := eb.dialect.SyncCommitOff(); stmt != "" {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("set sync commit: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, sqlStr, pb.Params()...); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		return nil
	})
}

// Stop halts the background ticker and flushes remaining events. It is
// safe to call more than once.
func (eb *EventBuffer) Stop() {
	eb.stopOnce.Do(func() {
		eb.ticker.Stop()
		close(eb.done)
		eb.Flush()
	})
}
