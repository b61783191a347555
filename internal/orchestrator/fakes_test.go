package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/repo"
	"github.com/shaiso/Conductor/internal/telemetry"
)

// memStore — хранилище в памяти, сериализующее записи как Redis.
type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	saves   int
	getLag  time.Duration
	saveErr error
	getErr  error
	// ctxAware — отменённый ctx ломает запросы, как у go-redis.
	ctxAware bool
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (s *memStore) Save(ctx context.Context, p *domain.Pipeline) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctxAware && ctx.Err() != nil {
		return ctx.Err()
	}

	if s.saveErr != nil {
		return s.saveErr
	}
	p.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	s.data[p.ID] = data
	s.saves++
	return nil
}

func (s *memStore) Get(ctx context.Context, id string) (*domain.Pipeline, error) {
	if s.ctxAware && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	s.mu.Lock()
	lag := s.getLag
	getErr := s.getErr
	data, ok := s.data[id]
	s.mu.Unlock()

	// Задержка после чтения расширяет окно гонки read-modify-write.
	if lag > 0 {
		time.Sleep(lag)
	}
	if getErr != nil {
		return nil, getErr
	}
	if !ok {
		return nil, repo.ErrNotFound
	}

	var p domain.Pipeline
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// published — одно уведомление о старте шага.
type published struct {
	PipelineID string
	Step       string
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) PublishStepStart(_ context.Context, pipelineID, step string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{PipelineID: pipelineID, Step: step})
	return nil
}

func (p *fakePublisher) steps() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, len(p.msgs))
	for i, m := range p.msgs {
		out[i] = m.Step
	}
	return out
}

type fakeJournal struct {
	mu     sync.Mutex
	events []domain.PipelineEvent
	err    error
}

func (j *fakeJournal) Append(_ context.Context, ev *domain.PipelineEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.err != nil {
		return j.err
	}
	ev.ID = int64(len(j.events) + 1)
	j.events = append(j.events, *ev)
	return nil
}

var errBoom = errors.New("boom")

type testEnv struct {
	orch      *Orchestrator
	store     *memStore
	publisher *fakePublisher
	journal   *fakeJournal
	metrics   *telemetry.Metrics
}

func newTestEnv(opts ...func(*Config)) *testEnv {
	env := &testEnv{
		store:     newMemStore(),
		publisher: &fakePublisher{},
		journal:   &fakeJournal{},
		metrics:   telemetry.NewNopMetrics(),
	}

	cfg := Config{
		Store:     env.store,
		Publisher: env.publisher,
		Journal:   env.journal,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:   env.metrics,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	env.orch = New(cfg)
	return env
}

func stepStatuses(p *domain.Pipeline) []domain.StepStatus {
	out := make([]domain.StepStatus, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Status
	}
	return out
}
