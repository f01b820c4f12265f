package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rpggio/fundinghub/internal/domain/chain"
)

// MetaRepository stores the chain head
type MetaRepository struct {
	db Querier
}

// NewMetaRepository creates a new MetaRepository
func NewMetaRepository(db Querier) *MetaRepository {
	return &MetaRepository{db: db}
}

// Init creates the head row if missing and returns the stored head. The
// network id of an existing chain is not changed.
func (r *MetaRepository) Init(ctx context.Context, networkID uint64) (*chain.Head, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chain_meta (id, network_id) VALUES (1, ?) ON CONFLICT (id) DO NOTHING`,
		networkID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to init chain meta: %w", err)
	}
	return r.Head(ctx)
}

// Head returns the current chain tip
func (r *MetaRepository) Head(ctx context.Context) (*chain.Head, error) {
	var head chain.Head
	err := r.db.QueryRowContext(ctx,
		`SELECT network_id, height, block_time FROM chain_meta WHERE id = 1`,
	).Scan(&head.NetworkID, &head.Height, &head.BlockTime)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chain meta not initialized")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chain head: %w", err)
	}
	return &head, nil
}

// Advance moves the tip to a new block
func (r *MetaRepository) Advance(ctx context.Context, height, blockTime int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chain_meta SET height = ?, block_time = ? WHERE id = 1`,
		height, blockTime,
	)
	if err != nil {
		return fmt.Errorf("failed to advance chain head: %w", err)
	}
	return nil
}
