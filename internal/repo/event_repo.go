package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Conductor/internal/domain"
)

// EventRepo — журнал переходов pipeline в PostgreSQL.
//
// Журнал только дополняется. Авторитетное состояние остаётся в PipelineStore.
type EventRepo struct {
	pool *pgxpool.Pool
}

// NewEventRepo создаёт новый EventRepo.
func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// Migrate создаёт таблицу журнала, если её нет.
func (r *EventRepo) Migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS pipeline_events (
			id          BIGSERIAL PRIMARY KEY,
			pipeline_id TEXT        NOT NULL,
			type        TEXT        NOT NULL,
			step        TEXT,
			step_index  INT         NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS pipeline_events_pipeline_id_idx
			ON pipeline_events (pipeline_id, id);
	`
	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("migrate pipeline_events: %w", err)
	}
	return nil
}

// Append добавляет событие в журнал.
func (r *EventRepo) Append(ctx context.Context, ev *domain.PipelineEvent) error {
	query := `
		INSERT INTO pipeline_events (pipeline_id, type, step, step_index, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.pool.QueryRow(ctx, query,
		ev.PipelineID,
		string(ev.Type),
		nullString(ev.Step),
		ev.StepIndex,
		ev.CreatedAt,
	).Scan(&ev.ID)
	if err != nil {
		return fmt.Errorf("insert pipeline event: %w", err)
	}
	return nil
}

// ListByPipeline возвращает события pipeline в порядке записи.
func (r *EventRepo) ListByPipeline(ctx context.Context, pipelineID string) ([]domain.PipelineEvent, error) {
	query := `
		SELECT id, pipeline_id, type, step, step_index, created_at
		FROM pipeline_events
		WHERE pipeline_id = $1
		ORDER BY id ASC
	`
	rows, err := r.pool.Query(ctx, query, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("list pipeline events: %w", err)
	}
	defer rows.Close()

	var events []domain.PipelineEvent
	for rows.Next() {
		var ev domain.PipelineEvent
		var evType string
		var step *string

		if err := rows.Scan(&ev.ID, &ev.PipelineID, &evType, &step, &ev.StepIndex, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pipeline event: %w", err)
		}
		ev.Type = domain.EventType(evType)
		if step != nil {
			ev.Step = *step
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
