package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"rulecompiler/internal/engine"
	"rulecompiler/internal/metadata"
	"rulecompiler/internal/store"
)

// Purger drops derived state that depends on the template registry.
type Purger interface {
	Purge()
}

type Handler struct {
	store    *store.Store
	registry *metadata.Registry
	cache    Purger
	logger   *zap.Logger
}

func NewHandler(s *store.Store, reg *metadata.Registry, cache Purger, logger *zap.Logger) *Handler {
	return &Handler{store: s, registry: reg, cache: cache, logger: logger}
}

func RegisterAdminRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	admin := app.Group("/api/_admin", middleware...)

	admin.Get("/templates", h.ListTemplates)
	admin.Get("/templates/:id", h.GetTemplate)
	admin.Post("/templates", h.CreateTemplate)
	admin.Put("/templates/:id", h.UpdateTemplate)
	admin.Delete("/templates/:id", h.DeleteTemplate)
}

type templateRecord struct {
	*metadata.Template
	CreatedAt any `json:"created_at,omitempty"`
	UpdatedAt any `json:"updated_at,omitempty"`
}

const selectTemplates = "SELECT id, module, name, definition, created_at, updated_at FROM _templates"

func (h *Handler) ListTemplates(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.store.DB, selectTemplates+" ORDER BY id")
	if err != nil {
		return fmt.Errorf("list templates: %w", err)
	}

	records := make([]templateRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := recordFromRow(row)
		if err != nil {
			h.logger.Warn("skipping template with invalid definition", zap.Any("id", row["id"]), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	return c.JSON(fiber.Map{"data": records})
}

func (h *Handler) GetTemplate(c *fiber.Ctx) error {
	id := c.Params("id")
	row, err := store.QueryRow(c.Context(), h.store.DB,
		selectTemplates+" WHERE id = "+h.store.Dialect.Placeholder(1), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.NotFoundError("template", id)
		}
		return fmt.Errorf("get template %s: %w", id, err)
	}

	rec, err := recordFromRow(row)
	if err != nil {
		return fmt.Errorf("decode template %s: %w", id, err)
	}
	return c.JSON(fiber.Map{"data": rec})
}

func (h *Handler) CreateTemplate(c *fiber.Ctx) error {
	var tpl metadata.Template
	if err := c.BodyParser(&tpl); err != nil {
		return engine.InvalidPayloadError()
	}
	if strings.TrimSpace(tpl.ID) == "" {
		tpl.ID = uuid.NewString()
	}
	if details := validateTemplate(&tpl); len(details) > 0 {
		return engine.ValidationError(details)
	}

	defJSON, err := json.Marshal(tpl)
	if err != nil {
		return fmt.Errorf("marshal template: %w", err)
	}

	pb := h.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf("INSERT INTO _templates (id, module, name, definition) VALUES (%s, %s, %s, %s)",
		pb.Add(tpl.ID), pb.Add(tpl.Module), pb.Add(tpl.Name), pb.Add(string(defJSON)))
	if _, err := store.Exec(c.Context(), h.store.DB, query, pb.Params()...); err != nil {
		if errors.Is(store.MapError(h.store.Dialect, err), store.ErrUniqueViolation) {
			return engine.ConflictError("Template already exists: " + tpl.ID)
		}
		return fmt.Errorf("insert template: %w", err)
	}

	if err := h.reload(c); err != nil {
		return err
	}
	return c.Status(201).JSON(fiber.Map{"data": tpl})
}

func (h *Handler) UpdateTemplate(c *fiber.Ctx) error {
	id := c.Params("id")

	var tpl metadata.Template
	if err := c.BodyParser(&tpl); err != nil {
		return engine.InvalidPayloadError()
	}
	tpl.ID = id // ensure id matches URL

	if details := validateTemplate(&tpl); len(details) > 0 {
		return engine.ValidationError(details)
	}

	defJSON, err := json.Marshal(tpl)
	if err != nil {
		return fmt.Errorf("marshal template: %w", err)
	}

	pb := h.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf("UPDATE _templates SET module = %s, name = %s, definition = %s, updated_at = %s WHERE id = %s",
		pb.Add(tpl.Module), pb.Add(tpl.Name), pb.Add(string(defJSON)), h.store.Dialect.NowExpr(), pb.Add(id))
	n, err := store.Exec(c.Context(), h.store.DB, query, pb.Params()...)
	if err != nil {
		return fmt.Errorf("update template %s: %w", id, err)
	}
	if n == 0 {
		return engine.NotFoundError("template", id)
	}

	if err := h.reload(c); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": tpl})
}

func (h *Handler) DeleteTemplate(c *fiber.Ctx) error {
	id := c.Params("id")
	n, err := store.Exec(c.Context(), h.store.DB,
		"DELETE FROM _templates WHERE id = "+h.store.Dialect.Placeholder(1), id)
	if err != nil {
		return fmt.Errorf("delete template %s: %w", id, err)
	}
	if n == 0 {
		return engine.NotFoundError("template", id)
	}

	if err := h.reload(c); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "deleted": true}})
}

// reload refreshes the registry and drops compile results built on the old one.
func (h *Handler) reload(c *fiber.Ctx) error {
	if err := metadata.Reload(c.Context(), h.store.DB, h.registry, h.logger); err != nil {
		return fmt.Errorf("reload registry: %w", err)
	}
	if h.cache != nil {
		h.cache.Purge()
	}
	return nil
}

func validateTemplate(tpl *metadata.Template) []engine.ErrorDetail {
	var details []engine.ErrorDetail
	if strings.TrimSpace(tpl.Name) == "" {
		details = append(details, engine.ErrorDetail{Field: "name", Rule: "required", Message: "Template name is required"})
	}

	seen := make(map[string]bool)
	for _, f := range tpl.AllFields() {
		id := strings.TrimSpace(f.ID)
		if id == "" {
			continue
		}
		if seen[id] {
			details = append(details, engine.ErrorDetail{
				Field:   "sections",
				Rule:    "unique",
				Message: fmt.Sprintf("Duplicate field id: %s", id),
			})
		}
		seen[id] = true
	}
	return details
}

func recordFromRow(row map[string]any) (templateRecord, error) {
	var tpl metadata.Template
	if err := json.Unmarshal([]byte(asString(row["definition"])), &tpl); err != nil {
		return templateRecord{}, err
	}
	tpl.ID = asString(row["id"])
	tpl.Module = asString(row["module"])
	tpl.Name = asString(row["name"])
	return templateRecord{Template: &tpl, CreatedAt: row["created_at"], UpdatedAt: row["updated_at"]}, nil
}

func asString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
