package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Conductor/internal/catalog"
	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/orchestrator"
	"github.com/shaiso/Conductor/internal/repo"
	"github.com/shaiso/Conductor/internal/telemetry"
)

type startCall struct {
	name  string
	steps []string
}

type fakePipelines struct {
	startID  string
	startErr error
	started  []startCall

	completeErr error
	completed   []domain.StepCompletedEvent
	sources     []domain.EventSource
}

func (f *fakePipelines) StartPipeline(_ context.Context, name string, steps []string) (string, error) {
	f.started = append(f.started, startCall{name: name, steps: steps})
	return f.startID, f.startErr
}

func (f *fakePipelines) OnStepCompleted(_ context.Context, ev domain.StepCompletedEvent, source domain.EventSource) error {
	f.completed = append(f.completed, ev)
	f.sources = append(f.sources, source)
	return f.completeErr
}

type fakeReader struct {
	pipelines map[string]*domain.Pipeline
	err       error
}

func (f *fakeReader) Get(_ context.Context, id string) (*domain.Pipeline, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.pipelines[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return p, nil
}

type fakeHistory struct {
	events []domain.PipelineEvent
}

func (f *fakeHistory) ListByPipeline(_ context.Context, id string) ([]domain.PipelineEvent, error) {
	var out []domain.PipelineEvent
	for _, e := range f.events {
		if e.PipelineID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

type testServer struct {
	srv       *httptest.Server
	pipelines *fakePipelines
	reader    *fakeReader
	metrics   *telemetry.Metrics
}

func newTestServer(t *testing.T, opts ...func(*Config)) *testServer {
	t.Helper()

	ts := &testServer{
		pipelines: &fakePipelines{startID: "p-1"},
		reader:    &fakeReader{pipelines: map[string]*domain.Pipeline{}},
		metrics:   telemetry.NewNopMetrics(),
	}

	cfg := Config{
		Pipelines: ts.pipelines,
		Store:     ts.reader,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:   ts.metrics,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ts.srv = httptest.NewServer(NewHandler(cfg).Router())
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, ts.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func errorCode(t *testing.T, body []byte) ErrorCode {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Error.Code
}

// --- Execute ---

func TestExecute(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodPost, "/pipeline/execute", `{"name":"demo","steps":["A","B"]}`)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"pipelineId":"p-1"}`, string(body))

	require.Len(t, ts.pipelines.started, 1)
	assert.Equal(t, startCall{name: "demo", steps: []string{"A", "B"}}, ts.pipelines.started[0])
}

func TestExecute_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing name", `{"steps":["A"]}`},
		{"missing steps", `{"name":"demo"}`},
		{"null steps", `{"name":"demo","steps":null}`},
		{"steps not array", `{"name":"demo","steps":"A"}`},
		{"steps of numbers", `{"name":"demo","steps":[1,2]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)

			status, body := ts.do(t, http.MethodPost, "/pipeline/execute", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, ErrCodeBadRequest, errorCode(t, body))
			assert.Empty(t, ts.pipelines.started)
		})
	}
}

func TestExecute_InvalidPipeline(t *testing.T) {
	ts := newTestServer(t)
	ts.pipelines.startID = ""
	ts.pipelines.startErr = orchestrator.ErrInvalidPipeline

	status, body := ts.do(t, http.MethodPost, "/pipeline/execute", `{"name":"demo","steps":[]}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, ErrCodeBadRequest, errorCode(t, body))
}

func TestExecute_PublishFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.pipelines.startErr = orchestrator.ErrPublish

	status, body := ts.do(t, http.MethodPost, "/pipeline/execute", `{"name":"demo","steps":["A"]}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, ErrCodeInternalError, errorCode(t, body))
}

// --- Status ---

func TestStatus(t *testing.T) {
	ts := newTestServer(t)
	created := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ts.reader.pipelines["p-1"] = &domain.Pipeline{
		ID:     "p-1",
		Name:   "demo",
		Status: domain.PipelineStatusRunning,
		Steps: []domain.Step{
			{Name: "A", Status: domain.StepStatusSuccess},
			{Name: "B", Status: domain.StepStatusRunning},
		},
		CurrentStep: 1,
		CreatedAt:   created,
		UpdatedAt:   created,
	}

	status, body := ts.do(t, http.MethodGet, "/pipeline/status/p-1", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{
		"id": "p-1",
		"name": "demo",
		"status": "RUNNING",
		"steps": [
			{"name": "A", "status": "SUCCESS"},
			{"name": "B", "status": "RUNNING"}
		],
		"currentStep": 1,
		"createdAt": "2024-01-01T12:00:00Z",
		"updatedAt": "2024-01-01T12:00:00Z"
	}`, string(body))
}

func TestStatus_NotFound(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodGet, "/pipeline/status/missing", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, ErrCodeNotFound, errorCode(t, body))
}

func TestStatus_StoreError(t *testing.T) {
	ts := newTestServer(t)
	ts.reader.err = repo.ErrCorrupted

	status, _ := ts.do(t, http.MethodGet, "/pipeline/status/p-1", "")
	assert.Equal(t, http.StatusInternalServerError, status)
}

// --- StepUpdate ---

func TestStepUpdate(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodPost, "/pipeline/step/update",
		`{"pipelineId":"p-1","stepName":"A","status":"SUCCESS"}`)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"message":"step updated successfully"}`, string(body))

	require.Len(t, ts.pipelines.completed, 1)
	assert.Equal(t, domain.StepCompletedEvent{
		PipelineID: "p-1",
		Step:       "A",
		Status:     domain.CompletionSuccess,
	}, ts.pipelines.completed[0])
	assert.Equal(t, []domain.EventSource{domain.SourceAPI}, ts.pipelines.sources)
}

func TestStepUpdate_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `not json`},
		{"missing pipeline id", `{"stepName":"A","status":"SUCCESS"}`},
		{"missing step name", `{"pipelineId":"p-1","status":"SUCCESS"}`},
		{"missing status", `{"pipelineId":"p-1","stepName":"A"}`},
		{"unknown status", `{"pipelineId":"p-1","stepName":"A","status":"DONE"}`},
		{"lowercase status", `{"pipelineId":"p-1","stepName":"A","status":"success"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)

			status, body := ts.do(t, http.MethodPost, "/pipeline/step/update", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, ErrCodeBadRequest, errorCode(t, body))
			assert.Empty(t, ts.pipelines.completed)
		})
	}
}

func TestStepUpdate_Failure(t *testing.T) {
	ts := newTestServer(t)
	ts.pipelines.completeErr = assert.AnError

	status, body := ts.do(t, http.MethodPost, "/pipeline/step/update",
		`{"pipelineId":"p-1","stepName":"A","status":"FAILED"}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, ErrCodeInternalError, errorCode(t, body))
}

func TestStepUpdate_AppliedButNotPublished(t *testing.T) {
	ts := newTestServer(t)
	ts.pipelines.completeErr = fmt.Errorf("%w: B: broker down", orchestrator.ErrPublish)

	status, body := ts.do(t, http.MethodPost, "/pipeline/step/update",
		`{"pipelineId":"p-1","stepName":"A","status":"SUCCESS"}`)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"message":"step updated, next step start not published"}`, string(body))
	assert.Len(t, ts.pipelines.completed, 1)
}

// --- History / Steps ---

func TestHistory(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	history := &fakeHistory{events: []domain.PipelineEvent{
		{ID: 1, PipelineID: "p-1", Type: domain.EventPipelineCreated, CreatedAt: at},
		{ID: 2, PipelineID: "p-1", Type: domain.EventStepStarted, Step: "A", CreatedAt: at},
		{ID: 3, PipelineID: "p-2", Type: domain.EventPipelineCreated, CreatedAt: at},
	}}
	ts := newTestServer(t, func(c *Config) { c.History = history })

	status, body := ts.do(t, http.MethodGet, "/pipeline/history/p-1", "")
	require.Equal(t, http.StatusOK, status)

	var resp struct {
		Data  []domain.PipelineEvent `json:"data"`
		Total int                    `json:"total"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, domain.EventStepStarted, resp.Data[1].Type)
	assert.Equal(t, "A", resp.Data[1].Step)

	status, body = ts.do(t, http.MethodGet, "/pipeline/history/unknown", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"data":[],"total":0}`, string(body))
}

func TestHistory_Disabled(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodGet, "/pipeline/history/p-1", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, ErrCodeNotFound, errorCode(t, body))
}

func TestSteps(t *testing.T) {
	cat := &catalog.Catalog{
		Steps:  []catalog.Entry{{Name: "trainer", Description: "trains"}},
		Strict: true,
	}
	ts := newTestServer(t, func(c *Config) { c.Catalog = cat })

	status, body := ts.do(t, http.MethodGet, "/pipeline/steps", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"steps":[{"name":"trainer","description":"trains"}],"strict":true}`, string(body))
}

// --- Middleware ---

func TestMetricsMiddleware(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, http.MethodGet, "/pipeline/status/missing", "")
	ts.do(t, http.MethodGet, "/pipeline/status/other", "")

	assert.Equal(t, 2.0, testutil.ToFloat64(
		ts.metrics.HTTPRequests.WithLabelValues("GET", "/pipeline/status/{id}", "404")))
}

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ErrCodeInternalError, errorCode(t, rec.Body.Bytes()))
}
