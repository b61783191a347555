package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/mq"
	"github.com/shaiso/Conductor/internal/telemetry"
)

// --- HTTPExecutor Tests ---

func TestHTTPExecutor_Success(t *testing.T) {
	var received Task
	var receivedContentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		receivedContentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	executor := &HTTPExecutor{Endpoints: map[string]string{"trainer": server.URL}}
	task := &Task{PipelineID: "p-1", Step: "trainer"}

	result, err := executor.Execute(context.Background(), task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Error != "" {
		t.Fatalf("unexpected execution error: %s", result.Error)
	}

	if received != *task {
		t.Errorf("expected body %+v, got %+v", *task, received)
	}
	if receivedContentType != "application/json" {
		t.Errorf("expected application/json, got %s", receivedContentType)
	}
	if result.Outputs["status_code"] != http.StatusAccepted {
		t.Errorf("expected status 202, got %v", result.Outputs["status_code"])
	}
}

func TestHTTPExecutor_ClientError_NoRetry(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad dataset"))
	}))
	defer server.Close()

	executor := &HTTPExecutor{
		Endpoints:  map[string]string{"trainer": server.URL},
		Attempts:   3,
		RetryDelay: time.Millisecond,
	}

	result, err := executor.Execute(context.Background(), &Task{PipelineID: "p-1", Step: "trainer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Error != "HTTP 400: bad dataset" {
		t.Errorf("unexpected execution error: %q", result.Error)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 call, got %d", n)
	}
}

func TestHTTPExecutor_ServerError_Retries(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	executor := &HTTPExecutor{
		Endpoints:  map[string]string{"trainer": server.URL},
		Attempts:   3,
		RetryDelay: time.Millisecond,
	}

	result, err := executor.Execute(context.Background(), &Task{PipelineID: "p-1", Step: "trainer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Error != "" {
		t.Errorf("expected success after retries, got %q", result.Error)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("expected 3 calls, got %d", n)
	}
}

func TestHTTPExecutor_ServerError_Exhausted(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	executor := &HTTPExecutor{
		Endpoints:  map[string]string{"trainer": server.URL},
		Attempts:   2,
		RetryDelay: time.Millisecond,
	}

	result, err := executor.Execute(context.Background(), &Task{PipelineID: "p-1", Step: "trainer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Error == "" {
		t.Fatal("expected execution error")
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("expected 2 calls, got %d", n)
	}
}

func TestHTTPExecutor_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	executor := &HTTPExecutor{
		Endpoints:  map[string]string{"trainer": server.URL},
		Timeout:    20 * time.Millisecond,
		Attempts:   1,
		RetryDelay: time.Millisecond,
	}

	result, err := executor.Execute(context.Background(), &Task{PipelineID: "p-1", Step: "trainer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Error == "" {
		t.Fatal("expected timeout to fail the step")
	}
}

func TestHTTPExecutor_NoEndpoint(t *testing.T) {
	executor := &HTTPExecutor{Endpoints: map[string]string{}}

	result, err := executor.Execute(context.Background(), &Task{PipelineID: "p-1", Step: "trainer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Error == "" {
		t.Fatal("expected execution error for missing endpoint")
	}
}

func TestHTTPExecutor_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	executor := &HTTPExecutor{Endpoints: map[string]string{"trainer": "http://127.0.0.1:1"}}

	_, err := executor.Execute(ctx, &Task{PipelineID: "p-1", Step: "trainer"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// --- DelayExecutor Tests ---

func TestTruncate(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc..."},
		// "ж" занимает два байта, граница приходится на его середину
		{"abжcd", 3, "ab..."},
		{"жжж", 4, "жж..."},
		{"€uro", 2, "..."},
	}

	for _, tt := range tests {
		got := truncate(tt.in, tt.maxLen)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8 %q", tt.in, tt.maxLen, got)
		}
	}
}

func TestDelayExecutor_Success(t *testing.T) {
	executor := &DelayExecutor{Duration: 10 * time.Millisecond}

	start := time.Now()
	result, err := executor.Execute(context.Background(), &Task{PipelineID: "p-1", Step: "A"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Error != "" {
		t.Fatalf("unexpected execution error: %s", result.Error)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("expected at least 10ms delay, got %v", elapsed)
	}
}

func TestDelayExecutor_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	executor := &DelayExecutor{Duration: time.Minute}

	_, err := executor.Execute(ctx, &Task{PipelineID: "p-1", Step: "A"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}

// --- Registry Tests ---

func TestRegistry(t *testing.T) {
	fallback := &DelayExecutor{}
	custom := &HTTPExecutor{}

	r := NewRegistry(fallback)
	r.Register("trainer", custom)

	if e, _ := r.Get("trainer"); e != custom {
		t.Error("expected registered executor for trainer")
	}
	if e, _ := r.Get("evaluator"); e != fallback {
		t.Error("expected fallback executor for evaluator")
	}
}

func TestRegistry_UnknownStep(t *testing.T) {
	r := NewRegistry(nil)

	_, err := r.Get("trainer")
	if !errors.Is(err, ErrUnknownStep) {
		t.Errorf("expected ErrUnknownStep, got %v", err)
	}
}

// --- Worker Tests ---

type fakeDonePublisher struct {
	mu   sync.Mutex
	msgs []mq.StepDonePayload
	err  error
}

func (p *fakeDonePublisher) PublishStepDone(_ context.Context, payload mq.StepDonePayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, payload)
	return nil
}

type funcExecutor func(ctx context.Context, task *Task) (*ExecutionResult, error)

func (f funcExecutor) Execute(ctx context.Context, task *Task) (*ExecutionResult, error) {
	return f(ctx, task)
}

func newTestWorker(executor Executor) (*Worker, *fakeDonePublisher, *telemetry.WorkerMetrics) {
	pub := &fakeDonePublisher{}
	metrics := telemetry.NewNopWorkerMetrics()
	w := New(Config{
		Publisher: pub,
		Registry:  NewRegistry(executor),
		Steps:     []string{"trainer"},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:   metrics,
	})
	return w, pub, metrics
}

func startDelivery(body string) *mq.Delivery {
	return &mq.Delivery{RoutingKey: "pipeline.trainer.start", Body: []byte(body)}
}

func TestWorker_HandleStepStart_Success(t *testing.T) {
	w, pub, metrics := newTestWorker(&DelayExecutor{Duration: time.Millisecond})

	err := w.handleStepStart(context.Background(), "trainer", startDelivery(`{"pipelineId":"p-1","step":"trainer"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pub.msgs) != 1 {
		t.Fatalf("expected 1 done message, got %d", len(pub.msgs))
	}
	want := mq.StepDonePayload{PipelineID: "p-1", Step: "trainer", Status: domain.CompletionSuccess}
	if pub.msgs[0] != want {
		t.Errorf("expected %+v, got %+v", want, pub.msgs[0])
	}
	if v := testutil.ToFloat64(metrics.StepExecutions.WithLabelValues("trainer", "SUCCESS")); v != 1 {
		t.Errorf("expected 1 success execution, got %v", v)
	}
}

func TestWorker_HandleStepStart_Failure(t *testing.T) {
	w, pub, _ := newTestWorker(funcExecutor(func(context.Context, *Task) (*ExecutionResult, error) {
		return &ExecutionResult{Error: "HTTP 400"}, nil
	}))

	err := w.handleStepStart(context.Background(), "trainer", startDelivery(`{"pipelineId":"p-1","step":"trainer"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pub.msgs) != 1 || pub.msgs[0].Status != domain.CompletionFailed {
		t.Fatalf("expected one FAILED message, got %+v", pub.msgs)
	}
}

func TestWorker_HandleStepStart_UsesQueueStep(t *testing.T) {
	var got string
	w, pub, _ := newTestWorker(funcExecutor(func(_ context.Context, task *Task) (*ExecutionResult, error) {
		got = task.Step
		return &ExecutionResult{}, nil
	}))

	err := w.handleStepStart(context.Background(), "trainer", startDelivery(`{"pipelineId":"p-1","step":"evaluator"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "trainer" {
		t.Errorf("expected executor to run trainer, got %s", got)
	}
	if pub.msgs[0].Step != "trainer" {
		t.Errorf("expected done for trainer, got %s", pub.msgs[0].Step)
	}
}

func TestWorker_HandleStepStart_Malformed(t *testing.T) {
	w, pub, _ := newTestWorker(&DelayExecutor{})

	err := w.handleStepStart(context.Background(), "trainer", startDelivery(`{`))
	if !errors.Is(err, mq.ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
	if len(pub.msgs) != 0 {
		t.Errorf("expected no done messages, got %d", len(pub.msgs))
	}
}

func TestWorker_HandleStepStart_MissingPipelineID(t *testing.T) {
	w, pub, _ := newTestWorker(&DelayExecutor{})

	if err := w.handleStepStart(context.Background(), "trainer", startDelivery(`{"step":"trainer"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.msgs) != 0 {
		t.Errorf("expected no done messages, got %d", len(pub.msgs))
	}
}

func TestWorker_HandleStepStart_Interrupted(t *testing.T) {
	w, pub, _ := newTestWorker(&DelayExecutor{Duration: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := w.handleStepStart(ctx, "trainer", startDelivery(`{"pipelineId":"p-1","step":"trainer"}`))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
	if len(pub.msgs) != 0 {
		t.Errorf("interrupted step must not publish, got %d", len(pub.msgs))
	}
}

func TestWorker_HandleStepStart_PublishError(t *testing.T) {
	w, pub, _ := newTestWorker(&DelayExecutor{Duration: time.Millisecond})
	pub.err = errors.New("broker down")

	err := w.handleStepStart(context.Background(), "trainer", startDelivery(`{"pipelineId":"p-1","step":"trainer"}`))
	if err == nil {
		t.Fatal("expected publish error")
	}
}

func TestWorker_NoExecutor(t *testing.T) {
	pub := &fakeDonePublisher{}
	w := New(Config{
		Publisher: pub,
		Registry:  NewRegistry(nil),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	if err := w.process(context.Background(), &Task{PipelineID: "p-1", Step: "trainer"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.msgs) != 1 || pub.msgs[0].Status != domain.CompletionFailed {
		t.Fatalf("expected one FAILED message, got %+v", pub.msgs)
	}
}

func TestWorker_StartWithoutSteps(t *testing.T) {
	w := New(Config{Registry: NewRegistry(&DelayExecutor{})})

	if err := w.Start(context.Background()); err == nil {
		t.Fatal("expected error for worker without steps")
	}
}

func TestNew_Defaults(t *testing.T) {
	w := New(Config{Registry: NewRegistry(nil)})

	if w.prefetch != defaultPrefetch {
		t.Errorf("expected prefetch %d, got %d", defaultPrefetch, w.prefetch)
	}
	if w.logger == nil {
		t.Error("expected default logger")
	}
	if w.metrics == nil {
		t.Error("expected default metrics")
	}
}
