package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/franz/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

const sqlCreateTurns = `
    CREATE TABLE IF NOT EXISTS franz_turns (
        run_id       TEXT        NOT NULL,
        turn         INTEGER     NOT NULL,
        observation  TEXT        NOT NULL DEFAULT '',
        bboxes       JSONB       NOT NULL DEFAULT '[]',
        actions      JSONB       NOT NULL DEFAULT '[]',
        raw_response TEXT,
        captured_at  TIMESTAMPTZ,
        annotated_at TIMESTAMPTZ,
        inferred_at  TIMESTAMPTZ,
        PRIMARY KEY (run_id, turn)
    );
`

const sqlUpsertCaptured = `
    INSERT INTO franz_turns (run_id, turn, observation, bboxes, actions, captured_at)
    VALUES ($1, $2, $3, $4, $5, $6)
    ON CONFLICT (run_id, turn) DO UPDATE SET
        observation = EXCLUDED.observation,
        bboxes = EXCLUDED.bboxes,
        actions = EXCLUDED.actions,
        captured_at = EXCLUDED.captured_at;
`

const sqlMarkAnnotated = `
    UPDATE franz_turns SET annotated_at = $3
    WHERE run_id = $1 AND turn = $2;
`

const sqlMarkInferred = `
    UPDATE franz_turns SET raw_response = $3, inferred_at = $4
    WHERE run_id = $1 AND turn = $2;
`

// PostgresRecorder keeps a ledger of turns in the franz_turns table.
type PostgresRecorder struct {
	pool  DBPool
	runID string
	log   *zap.Logger
}

var _ schemas.TurnRecorder = (*PostgresRecorder)(nil)

// NewPostgresRecorder verifies the connection and creates the table if needed.
func NewPostgresRecorder(ctx context.Context, pool DBPool, runID string, logger *zap.Logger) (*PostgresRecorder, error) {
	if pool == nil {
		return nil, errors.New("pool cannot be nil")
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlCreateTurns); err != nil {
		return nil, fmt.Errorf("failed to create franz_turns: %w", err)
	}
	return &PostgresRecorder{
		pool:  pool,
		runID: runID,
		log:   logger.Named("store.postgres").With(zap.String("run_id", runID)),
	}, nil
}

// Record writes the parts of a turn carried by the event.
func (s *PostgresRecorder) Record(ctx context.Context, ev schemas.TurnEvent) error {
	at := ev.Timestamp.UTC()

	switch ev.Type {
	case schemas.EventTurnCaptured:
		bboxes, err := jsonOrEmpty(ev.BBoxes)
		if err != nil {
			return err
		}
		actions, err := jsonOrEmpty(ev.Actions)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, sqlUpsertCaptured, s.runID, ev.Turn, ev.Observation, bboxes, actions, at); err != nil {
			return fmt.Errorf("failed to record captured turn %d: %w", ev.Turn, err)
		}
	case schemas.EventTurnAnnotated:
		if _, err := s.pool.Exec(ctx, sqlMarkAnnotated, s.runID, ev.Turn, at); err != nil {
			return fmt.Errorf("failed to record annotation for turn %d: %w", ev.Turn, err)
		}
	case schemas.EventTurnInferred:
		if _, err := s.pool.Exec(ctx, sqlMarkInferred, s.runID, ev.Turn, ev.RawText, at); err != nil {
			return fmt.Errorf("failed to record inference for turn %d: %w", ev.Turn, err)
		}
	default:
		return nil
	}

	s.log.Debug("Turn event recorded.", zap.String("type", string(ev.Type)), zap.Int("turn", ev.Turn))
	return nil
}

// Close releases the pool.
func (s *PostgresRecorder) Close() error {
	s.pool.Close()
	return nil
}

// jsonOrEmpty never produces a JSON null; the columns default to arrays.
func jsonOrEmpty[T any](items []T) (json.RawMessage, error) {
	if len(items) == 0 {
		return json.RawMessage("[]"), nil
	}
	b, err := jsonAPI.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON column: %w", err)
	}
	return b, nil
}
