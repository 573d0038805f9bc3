package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Dialect hides the SQL differences between the two backends that can hold
// the template catalogue (_templates) and the compile event log
// (_compile_events).
type Dialect interface {
	// Name is the configured driver, "postgres" or "sqlite".
	Name() string

	// DriverName is what sql.Open expects: "pgx" or "sqlite".
	DriverName() string

	// Placeholder formats the bind marker for the 1-based argument index,
	// used by the single-argument template lookups.
	Placeholder(index int) string

	// NewParamBuilder numbers placeholders for queries assembled piece by
	// piece, such as the event log filters and batch inserts.
	NewParamBuilder() ParamBuilder

	// NowExpr stamps updated_at on template writes.
	NowExpr() string

	// RetentionExpr selects event rows whose column is older than days.
	RetentionExpr(column string, days int) string

	// FilterCountExpr counts the rows matching condition, for the failed
	// and cached totals of the event stats.
	FilterCountExpr(condition string) string

	// SyncCommitOff relaxes durability for an event batch transaction.
	// It is "" when the backend has no such setting.
	SyncCommitOff() string

	// SystemTablesSQL creates _templates and _compile_events if missing.
	SystemTablesSQL() string

	// TableExists reports whether Bootstrap has created tableName.
	TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error)

	// MapError wraps a duplicate template id as ErrUniqueViolation and
	// returns other errors unchanged.
	MapError(err error) error
}

// ParamBuilder collects bind values while a query is assembled and hands
// back the marker to splice into the SQL text.
type ParamBuilder interface {
	Add(v any) string
	Params() []any
	Count() int
}

// NewDialect maps the configured driver to a Dialect. Anything other than
// "sqlite" is treated as postgres.
func NewDialect(driver string) Dialect {
	switch driver {
	case "sqlite":
		return &SQLiteDialect{}
	default:
		return &PostgresDialect{}
	}
}

// paramBuilder numbers markers as $n for postgres or ?n for sqlite.
type paramBuilder struct {
	marker byte
	params []any
}

func (p *paramBuilder) Add(v any) string {
	p.params = append(p.params, v)
	return fmt.Sprintf("%c%d", p.marker, len(p.params))
}

func (p *paramBuilder) Params() []any { return p.params }
func (p *paramBuilder) Count() int    { return len(p.params) }
