package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rulecompiler/internal/config"
	"rulecompiler/internal/engine"
	"rulecompiler/internal/metadata"
	"rulecompiler/internal/nlrule"
	"rulecompiler/internal/store"
)

type countingPurger struct{ n int }

func (p *countingPurger) Purge() { p.n++ }

type fixture struct {
	app    *fiber.App
	reg    *metadata.Registry
	purger *countingPurger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "admin_test"})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Bootstrap(ctx))

	f := &fixture{reg: metadata.NewRegistry(), purger: &countingPurger{}}
	f.app = fiber.New(fiber.Config{ErrorHandler: engine.NewErrorHandler(zap.NewNop())})
	RegisterAdminRoutes(f.app, NewHandler(s, f.reg, f.purger, zap.NewNop()))
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

const stayBody = `{
	"id": "inpatient-stay",
	"module": "um",
	"name": "Inpatient Stay",
	"sections": [{"name": "Stay", "fields": [
		{"id": "numberOfDays", "label": "Number of Days"},
		{"id": "admissionType", "label": "Admission Type"}
	]}]
}`

func TestTemplateLifecycle(t *testing.T) {
	f := newFixture(t)

	status, _ := f.do(t, "POST", "/api/_admin/templates", stayBody)
	require.Equal(t, 201, status)
	require.NotNil(t, f.reg.GetTemplate("inpatient-stay"))
	assert.Equal(t, 1, f.purger.n)

	status, body := f.do(t, "GET", "/api/_admin/templates/inpatient-stay", "")
	require.Equal(t, 200, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, "Inpatient Stay", data["name"])
	assert.Equal(t, "um", data["module"])
	assert.Len(t, data["sections"], 1)
	assert.NotNil(t, data["created_at"])

	status, _ = f.do(t, "PUT", "/api/_admin/templates/inpatient-stay",
		`{"name": "Inpatient Stay v2", "sections": [{"fields": [{"id": "numberOfDays", "label": "Length of Stay"}]}]}`)
	require.Equal(t, 200, status)
	tpl := f.reg.GetTemplate("inpatient-stay")
	require.NotNil(t, tpl)
	assert.Equal(t, "Inpatient Stay v2", tpl.Name)
	assert.Equal(t, "Length of Stay", tpl.GetField("numberOfDays").Label)
	assert.Equal(t, 2, f.purger.n)

	status, body = f.do(t, "GET", "/api/_admin/templates", "")
	require.Equal(t, 200, status)
	assert.Len(t, body["data"], 1)

	status, _ = f.do(t, "DELETE", "/api/_admin/templates/inpatient-stay", "")
	require.Equal(t, 200, status)
	assert.Nil(t, f.reg.GetTemplate("inpatient-stay"))
	assert.Equal(t, 3, f.purger.n)
}

func TestCreateTemplate_GeneratesID(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, "POST", "/api/_admin/templates", `{"name": "Outpatient", "sections": []}`)
	require.Equal(t, 201, status)

	id, _ := body["data"].(map[string]any)["id"].(string)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.NotNil(t, f.reg.GetTemplate(id))
}

func TestTemplateErrors(t *testing.T) {
	f := newFixture(t)
	status, _ := f.do(t, "POST", "/api/_admin/templates", stayBody)
	require.Equal(t, 201, status)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"duplicate id", "POST", "/api/_admin/templates", stayBody, 409, "CONFLICT"},
		{"missing name", "POST", "/api/_admin/templates", `{"id": "x", "sections": []}`, 422, "VALIDATION_FAILED"},
		{"duplicate field", "POST", "/api/_admin/templates",
			`{"name": "Dup", "sections": [{"fields": [{"id": "a", "label": "A"}, {"id": "a", "label": "B"}]}]}`, 422, "VALIDATION_FAILED"},
		{"bad json", "POST", "/api/_admin/templates", `{"name":`, 400, "INVALID_PAYLOAD"},
		{"get missing", "GET", "/api/_admin/templates/missing", "", 404, "NOT_FOUND"},
		{"update missing", "PUT", "/api/_admin/templates/missing", `{"name": "M"}`, 404, "NOT_FOUND"},
		{"delete missing", "DELETE", "/api/_admin/templates/missing", "", 404, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, status)
			errObj, _ := body["error"].(map[string]any)
			assert.Equal(t, tt.code, errObj["code"])
		})
	}
	assert.Equal(t, 1, f.purger.n, "failed mutations leave the cache alone")
}

func TestTemplateUpdate_InvalidatesCompiledRules(t *testing.T) {
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "compile_test"})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Bootstrap(ctx))

	reg := metadata.NewRegistry()
	cache, err := engine.NewCompileCache(32)
	require.NoError(t, err)

	app := fiber.New(fiber.Config{ErrorHandler: engine.NewErrorHandler(zap.NewNop())})
	RegisterAdminRoutes(app, NewHandler(s, reg, cache, zap.NewNop()))
	engine.RegisterRuleRoutes(app, engine.NewHandler(nlrule.New(), reg, cache, nil, 0, zap.NewNop()))
	f := &fixture{app: app, reg: reg, purger: &countingPurger{}}

	status, _ := f.do(t, "POST", "/api/_admin/templates", stayBody)
	require.Equal(t, 201, status)

	compile := `{"template_id": "inpatient-stay", "text": "Length of Stay cannot exceed 30"}`
	_, body := f.do(t, "POST", "/api/_rules/compile", compile)
	assert.Equal(t, false, body["data"].(map[string]any)["enabled"])
	assert.Equal(t, 1, cache.Len())

	status, _ = f.do(t, "PUT", "/api/_admin/templates/inpatient-stay",
		`{"name": "Inpatient Stay", "sections": [{"fields": [{"id": "numberOfDays", "label": "Length of Stay"}]}]}`)
	require.Equal(t, 200, status)
	assert.Zero(t, cache.Len())

	_, body = f.do(t, "POST", "/api/_rules/compile", compile)
	rule := body["data"].(map[string]any)
	assert.Equal(t, true, rule["enabled"])
	assert.Equal(t, "numberOfDays <= 30", rule["expression"])
}
