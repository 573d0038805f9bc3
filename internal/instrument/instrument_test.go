package instrument

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"rulecompiler/internal/config"
	"rulecompiler/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		Path:   t.TempDir(),
		Name:   "events_test",
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Bootstrap(ctx))
	return s
}

func countEvents(t *testing.T, s *store.Store) int {
	t.Helper()
	row, err := store.QueryRow(context.Background(), s.DB, "SELECT COUNT(*) AS n FROM _compile_events")
	require.NoError(t, err)
	return toInt(row["n"])
}

func seed(t *testing.T, s *store.Store, events ...CompileEvent) {
	t.Helper()
	eb := NewEventBuffer(s.DB, s.Dialect, 100, time.Hour, zaptest.NewLogger(t))
	for _, e := range events {
		eb.Enqueue(e)
	}
	eb.Stop()
}

func TestEventBuffer_FlushWritesBatch(t *testing.T) {
	s := testStore(t)
	eb := NewEventBuffer(s.DB, s.Dialect, 100, time.Hour, zaptest.NewLogger(t))
	defer eb.Stop()

	eb.Enqueue(CompileEvent{TemplateID: "admission", Text: "a must be before b", Shape: "comparison", Enabled: true, DurationMs: 0.4})
	eb.Enqueue(CompileEvent{TemplateID: "admission", Text: "gibberish", UserID: "u1"})
	assert.Equal(t, 2, eb.Pending())

	eb.Flush()
	assert.Equal(t, 0, eb.Pending())
	assert.Equal(t, 2, countEvents(t, s))

	row, err := store.QueryRow(context.Background(), s.DB,
		"SELECT shape, enabled, user_id FROM _compile_events WHERE text = ?1", "gibberish")
	require.NoError(t, err)
	assert.Equal(t, "", row["shape"])
	assert.False(t, toBool(row["enabled"]))
	assert.Equal(t, "u1", row["user_id"])
}

func TestEventBuffer_FlushesWhenFull(t *testing.T) {
	s := testStore(t)
	eb := NewEventBuffer(s.DB, s.Dialect, 2, time.Hour, zaptest.NewLogger(t))
	defer eb.Stop()

	eb.Enqueue(CompileEvent{TemplateID: "t", Text: "one"})
	eb.Enqueue(CompileEvent{TemplateID: "t", Text: "two"})

	assert.Eventually(t, func() bool { return countEvents(t, s) == 2 }, 2*time.Second, 20*time.Millisecond)
}

func TestEventBuffer_StopFlushesAndIsIdempotent(t *testing.T) {
	s := testStore(t)
	eb := NewEventBuffer(s.DB, s.Dialect, 100, time.Hour, zaptest.NewLogger(t))
	eb.Enqueue(CompileEvent{TemplateID: "t", Text: "pending"})

	eb.Stop()
	eb.Stop()
	assert.Equal(t, 1, countEvents(t, s))
}

func TestNoopSink(t *testing.T) {
	var sink Sink = NoopSink{}
	assert.NotPanics(t, func() { sink.Enqueue(CompileEvent{Text: "ignored"}) })
}

func TestCleanupOldEvents(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seed(t, s, CompileEvent{TemplateID: "t", Text: "fresh"})
	_, err := store.Exec(ctx, s.DB,
		"INSERT INTO _compile_events (template_id, text, created_at) VALUES ('t', 'stale', datetime('now', '-10 days'))")
	require.NoError(t, err)

	n, err := CleanupOldEvents(ctx, s.DB, s.Dialect, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, countEvents(t, s))

	n, err = CleanupOldEvents(ctx, s.DB, s.Dialect, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunCleanup_StopsOnCancel(t *testing.T) {
	s := testStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunCleanup(ctx, s.DB, s.Dialect, 7, 10*time.Millisecond, zaptest.NewLogger(t))
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup loop did not stop")
	}
}

func eventsApp(s *store.Store) *fiber.App {
	app := fiber.New()
	RegisterEventRoutes(app, NewEventHandler(s.DB, s.Dialect))
	return app
}

func getJSON(t *testing.T, app *fiber.App, url string) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", url, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	return resp.StatusCode, body
}

func seedMixed(t *testing.T, s *store.Store) {
	seed(t, s,
		CompileEvent{TemplateID: "admission", Text: "a", Shape: "comparison", Enabled: true, DurationMs: 1},
		CompileEvent{TemplateID: "admission", Text: "b", Shape: "comparison", Enabled: true, Cached: true, DurationMs: 3},
		CompileEvent{TemplateID: "admission", Text: "c", Shape: "", Enabled: false, DurationMs: 2},
		CompileEvent{TemplateID: "discharge", Text: "d", Shape: "range", Enabled: true, DurationMs: 2},
	)
}

func TestList_FiltersAndPaginates(t *testing.T) {
	s := testStore(t)
	seedMixed(t, s)
	app := eventsApp(s)

	status, body := getJSON(t, app, "/api/_admin/compile-events?template_id=admission")
	assert.Equal(t, 200, status)
	assert.Len(t, body["data"], 3)
	assert.EqualValues(t, 3, body["pagination"].(map[string]any)["total"])

	_, body = getJSON(t, app, "/api/_admin/compile-events?failed=true")
	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "c", data[0].(map[string]any)["text"])
	assert.Equal(t, false, data[0].(map[string]any)["enabled"])

	_, body = getJSON(t, app, "/api/_admin/compile-events?per_page=2&page=2&sort=created_at")
	data = body["data"].([]any)
	require.Len(t, data, 2)
	assert.Equal(t, "c", data[0].(map[string]any)["text"])
	assert.EqualValues(t, 4, body["pagination"].(map[string]any)["total"])
}

func TestList_RejectsBadFailedFilter(t *testing.T) {
	s := testStore(t)
	status, body := getJSON(t, eventsApp(s), "/api/_admin/compile-events?failed=maybe")
	assert.Equal(t, 400, status)
	assert.Equal(t, "INVALID_FILTER", body["error"].(map[string]any)["code"])
}

func TestStats(t *testing.T) {
	s := testStore(t)
	seedMixed(t, s)

	status, body := getJSON(t, eventsApp(s), "/api/_admin/compile-events/stats")
	assert.Equal(t, 200, status)
	data := body["data"].(map[string]any)
	assert.EqualValues(t, 4, data["total"])
	assert.EqualValues(t, 1, data["failed"])
	assert.EqualValues(t, 1, data["cached"])
	assert.InDelta(t, 0.25, data["failure_rate"], 1e-9)
	assert.InDelta(t, 2.0, data["avg_duration_ms"], 1e-9)

	byShape := data["by_shape"].([]any)
	require.Len(t, byShape, 3)
	first := byShape[0].(map[string]any)
	assert.Equal(t, "comparison", first["shape"])
	assert.EqualValues(t, 2, first["count"])

	_, body = getJSON(t, eventsApp(s), "/api/_admin/compile-events/stats?template_id=discharge")
	data = body["data"].(map[string]any)
	assert.EqualValues(t, 1, data["total"])
	assert.EqualValues(t, 0, data["failed"])
}
