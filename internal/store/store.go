// Package store records turn artifacts. Recording never feeds back into the
// turn loop; callers log failures and move on.
package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/xkilldash9x/franz/api/schemas"
	"github.com/xkilldash9x/franz/internal/config"
)

// NopRecorder discards every event.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, schemas.TurnEvent) error { return nil }
func (NopRecorder) Close() error                                    { return nil }

// NewRecorder builds the recorder selected by store.type.
func NewRecorder(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (schemas.TurnRecorder, error) {
	switch cfg.Type {
	case "fs":
		return NewFileRecorder(afero.NewOsFs(), cfg.RunsDir, logger)
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		rec, err := NewPostgresRecorder(ctx, pool, uuid.NewString(), logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return rec, nil
	case "none", "":
		return NopRecorder{}, nil
	default:
		return nil, fmt.Errorf("unsupported store type %q", cfg.Type)
	}
}
