package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shaiso/Conductor/internal/domain"
)

// keyPrefix — префикс ключей pipeline в Redis.
const keyPrefix = "pipeline:"

// PipelineKey возвращает ключ записи pipeline.
func PipelineKey(id string) string {
	return keyPrefix + id
}

// PipelineStore хранит записи pipeline в Redis.
//
// Запись — непрозрачный JSON, который всегда перезаписывается целиком.
// Хранилище не кэширует и не повторяет запросы: ошибки Redis
// возвращаются вызывающему.
type PipelineStore struct {
	client redis.Cmdable
	now    func() time.Time
}

// NewPipelineStore создаёт новый PipelineStore.
func NewPipelineStore(client redis.Cmdable) *PipelineStore {
	return &PipelineStore{
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Save проставляет UpdatedAt и перезаписывает запись целиком.
func (s *PipelineStore) Save(ctx context.Context, p *domain.Pipeline) error {
	p.UpdatedAt = s.now()

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pipeline: %w", err)
	}

	// TTL 0 — запись не истекает, удержанием занимается сам Redis.
	if err := s.client.Set(ctx, PipelineKey(p.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("save pipeline %s: %w", p.ID, err)
	}
	return nil
}

// Get возвращает pipeline по ID или ErrNotFound.
func (s *PipelineStore) Get(ctx context.Context, id string) (*domain.Pipeline, error) {
	data, err := s.client.Get(ctx, PipelineKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pipeline %s: %w", id, err)
	}

	var p domain.Pipeline
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: pipeline %s: %v", ErrCorrupted, id, err)
	}
	return &p, nil
}
