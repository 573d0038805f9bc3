package metadata

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"rulecompiler/internal/store"
)

// LoadAll reads all templates from the database and populates the registry.
func LoadAll(ctx context.Context, q store.Querier, reg *Registry, logger *zap.Logger) error {
	templates, err := loadTemplates(ctx, q, logger)
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	reg.Load(templates)

	logger.Info("templates loaded into registry", zap.Int("templates", len(templates)))
	return nil
}

// Reload is an alias for LoadAll, called after admin mutations.
func Reload(ctx context.Context, q store.Querier, reg *Registry, logger *zap.Logger) error {
	return LoadAll(ctx, q, reg, logger)
}

func loadTemplates(ctx context.Context, q store.Querier, logger *zap.Logger) ([]*Template, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, module, name, definition FROM _templates ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []*Template
	for rows.Next() {
		var id, module, name string
		var defJSON []byte
		if err := rows.Scan(&id, &module, &name, &defJSON); err != nil {
			return nil, fmt.Errorf("scan template row: %w", err)
		}

		var tpl Template
		if err := json.Unmarshal(defJSON, &tpl); err != nil {
			logger.Warn("skipping template with invalid definition", zap.String("id", id), zap.Error(err))
			continue
		}
		// Columns are authoritative over whatever the definition body carries.
		tpl.ID = id
		tpl.Module = module
		tpl.Name = name
		templates = append(templates, &tpl)
	}
	return templates, rows.Err()
}
