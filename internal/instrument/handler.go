package instrument

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"rulecompiler/internal/store"
)

// EventHandler exposes read-only endpoints over the compile event log.
type EventHandler struct {
	db      *sql.DB
	dialect store.Dialect
}

// NewEventHandler creates an EventHandler backed by the given db and dialect.
func NewEventHandler(db *sql.DB, dialect store.Dialect) *EventHandler {
	return &EventHandler{db: db, dialect: dialect}
}

// RegisterEventRoutes mounts the event endpoints under /api/_admin/compile-events.
func RegisterEventRoutes(app *fiber.App, h *EventHandler, middleware ...fiber.Handler) {
	g := app.Group("/api/_admin/compile-events", middleware...)
	g.Get("/", h.List)
	g.Get("/stats", h.Stats)
}

type eventRecord struct {
	ID         int64     `json:"id"`
	TemplateID string    `json:"template_id"`
	Text       string    `json:"text"`
	Shape      string    `json:"shape"`
	Enabled    bool      `json:"enabled"`
	Cached     bool      `json:"cached"`
	UserID     any       `json:"user_id"`
	DurationMs float64   `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

func recordFromRow(row map[string]any) eventRecord {
	rec := eventRecord{
		ID:         int64(toInt(row["id"])),
		Enabled:    toBool(row["enabled"]),
		Cached:     toBool(row["cached"]),
		UserID:     row["user_id"],
		DurationMs: toFloat(row["duration_ms"]),
	}
	rec.TemplateID, _ = row["template_id"].(string)
	rec.Text, _ = row["text"].(string)
	rec.Shape, _ = row["shape"].(string)
	rec.CreatedAt, _ = row["created_at"].(time.Time)
	return rec
}

// filters builds the WHERE clause shared by List and Stats.
func (h *EventHandler) filters(c *fiber.Ctx, pb store.ParamBuilder) (string, error) {
	var conditions []string

	if v := c.Query("template_id"); v != "" {
		conditions = append(conditions, "template_id = "+pb.Add(v))
	}
	if v := c.Query("shape"); v != "" {
		conditions = append(conditions, "shape = "+pb.Add(v))
	}
	if v := c.Query("user_id"); v != "" {
		conditions = append(conditions, "user_id = "+pb.Add(v))
	}
	if v := c.Query("failed"); v != "" {
		failed, err := strconv.ParseBool(v)
		if err != nil {
			return "", errors.New("failed must be true or false")
		}
		if failed {
			conditions = append(conditions, "NOT enabled")
		} else {
			conditions = append(conditions, "enabled")
		}
	}
	if v := c.Query("from"); v != "" {
		conditions = append(conditions, "created_at >= "+pb.Add(v))
	}
	if v := c.Query("to"); v != "" {
		conditions = append(conditions, "created_at <= "+pb.Add(v))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), nil
}

func badFilter(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": fiber.Map{"code": "INVALID_FILTER", "message": err.Error()},
	})
}

// List handles GET /api/_admin/compile-events
func (h *EventHandler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()

	pb := h.dialect.NewParamBuilder()
	where, err := h.filters(c, pb)
	if err != nil {
		return badFilter(c, err)
	}

	page := max(c.QueryInt("page", 1), 1)
	perPage := c.QueryInt("per_page", 50)
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}

	orderBy := "created_at DESC, id DESC"
	if c.Query("sort") == "created_at" {
		orderBy = "created_at ASC, id ASC"
	}

	countRow, err := store.QueryRow(ctx, h.db, "SELECT COUNT(*) AS count FROM _compile_events"+where, pb.Params()...)
	if err != nil {
		return fmt.Errorf("count compile events: %w", err)
	}
	total := toInt(countRow["count"])

	limit := pb.Add(perPage)
	offset := pb.Add((page - 1) * perPage)
	dataSQL := fmt.Sprintf(
		"SELECT id, template_id, text, shape, enabled, cached, user_id, duration_ms, created_at FROM _compile_events%s ORDER BY %s LIMIT %s OFFSET %s",
		where, orderBy, limit, offset,
	)
	rows, err := store.QueryRows(ctx, h.db, dataSQL, pb.Params()...)
	if err != nil {
		return fmt.Errorf("list compile events: %w", err)
	}

	records := make([]eventRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, recordFromRow(row))
	}

	return c.JSON(fiber.Map{
		"data": records,
		"pagination": fiber.Map{
			"page":     page,
			"per_page": perPage,
			"total":    total,
		},
	})
}

// Stats handles GET /api/_admin/compile-events/stats
func (h *EventHandler) Stats(c *fiber.Ctx) error {
	ctx := c.UserContext()

	pb := h.dialect.NewParamBuilder()
	where, err := h.filters(c, pb)
	if err != nil {
		return badFilter(c, err)
	}

	failedExpr := h.dialect.FilterCountExpr("NOT enabled")
	cachedExpr := h.dialect.FilterCountExpr("cached")

	totalSQL := fmt.Sprintf(
		"SELECT COUNT(*) AS total, %s AS failed, %s AS cached, AVG(duration_ms) AS avg_duration_ms FROM _compile_events%s",
		failedExpr, cachedExpr, where,
	)
	totalRow, err := store.QueryRow(ctx, h.db, totalSQL, pb.Params()...)
	if err != nil {
		return fmt.Errorf("compile event totals: %w", err)
	}

	shapeSQL := fmt.Sprintf(
		"SELECT shape, COUNT(*) AS count, AVG(duration_ms) AS avg_duration_ms FROM _compile_events%s GROUP BY shape ORDER BY count DESC, shape",
		where,
	)
	shapeRows, err := store.QueryRows(ctx, h.db, shapeSQL, pb.Params()...)
	if err != nil {
		return fmt.Errorf("compile event shapes: %w", err)
	}

	total := toInt(totalRow["total"])
	failed := toInt(totalRow["failed"])
	failureRate := 0.0
	if total > 0 {
		failureRate = math.Round(float64(failed)/float64(total)*10000) / 10000
	}

	byShape := make([]fiber.Map, 0, len(shapeRows))
	for _, row := range shapeRows {
		shape, _ := row["shape"].(string)
		if shape == "" {
			shape = "none"
		}
		byShape = append(byShape, fiber.Map{
			"shape":           shape,
			"count":           toInt(row["count"]),
			"avg_duration_ms": toFloat(row["avg_duration_ms"]),
		})
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"total":           total,
			"failed":          failed,
			"cached":          toInt(totalRow["cached"]),
			"failure_rate":    failureRate,
			"avg_duration_ms": toFloat(totalRow["avg_duration_ms"]),
			"by_shape":        byShape,
		},
	})
}

// toInt safely converts various numeric types to int.
func toInt(v any) int {
	switch val := v.(type) {
	case int:
		return val
	case int32:
		return int(val)
	case int64:
		return int(val)
	case float64:
		return int(val)
	case string:
		n, _ := strconv.Atoi(val)
		return n
	default:
		return 0
	}
}

// toFloat safely converts various numeric types to float64.
func toFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	default:
		return 0
	}
}

// toBool reads boolean columns, which SQLite returns as integers.
func toBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case int64:
		return val != 0
	case int:
		return val != 0
	case string:
		b, _ := strconv.ParseBool(val)
		return b
	default:
		return false
	}
}
