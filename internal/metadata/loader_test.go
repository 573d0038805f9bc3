package metadata

import (
	"context"
	"testing"

	"go.uber.org/zap/zaptest"

	"rulecompiler/internal/config"
	"rulecompiler/internal/store"
)

func TestLoadAll_FromSQLite(t *testing.T) {
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "loader_test"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	insert := "INSERT INTO _templates (id, module, name, definition) VALUES (?1, ?2, ?3, ?4)"
	rows := [][]any{
		{"stay", "um", "Inpatient Stay", `{"id":"ignored","name":"ignored","sections":[{"fields":[{"id":"numberOfDays","label":"Number of Days"}]}]}`},
		{"broken", "um", "Broken", `{not json`},
	}
	for _, r := range rows {
		if _, err := store.Exec(ctx, s.DB, insert, r...); err != nil {
			t.Fatalf("insert %v: %v", r[0], err)
		}
	}

	reg := NewRegistry()
	if err := LoadAll(ctx, s.DB, reg, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("load: %v", err)
	}

	tpl := reg.GetTemplate("stay")
	if tpl == nil {
		t.Fatal("expected template stay")
	}
	if tpl.Name != "Inpatient Stay" || tpl.Module != "um" {
		t.Fatalf("columns should override the definition body, got %+v", tpl)
	}
	if tpl.GetField("numberOfDays") == nil {
		t.Fatal("expected numberOfDays field")
	}
	if reg.GetTemplate("broken") != nil {
		t.Fatal("invalid definition should be skipped")
	}
}
