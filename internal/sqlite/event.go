package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rpggio/fundinghub/internal/domain/chain"
)

// EventRepository indexes receipt logs
type EventRepository struct {
	db Querier
}

// NewEventRepository creates a new EventRepository
func NewEventRepository(db Querier) *EventRepository {
	return &EventRepository{db: db}
}

// Append stores logs for an included transaction
func (r *EventRepository) Append(ctx context.Context, logs []chain.Log) error {
	query := `
		INSERT INTO events (
			tx_id, log_index, contract, name, topic, account, amount, block_height, block_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, l := range logs {
		var amount sql.NullString
		if l.Amount != nil {
			amount = sql.NullString{String: l.Amount.String(), Valid: true}
		}
		_, err := r.db.ExecContext(ctx, query,
			l.TxID,
			l.Index,
			encodeAddress(l.Contract),
			l.Name,
			l.Topic,
			encodeAddress(l.Account),
			amount,
			l.BlockHeight,
			l.BlockTime,
		)
		if err != nil {
			return fmt.Errorf("failed to append event: %w", err)
		}
	}
	return nil
}

// ListByTx returns the logs of one transaction in emission order
func (r *EventRepository) ListByTx(ctx context.Context, txID string) ([]chain.Log, error) {
	query := `
		SELECT tx_id, log_index, contract, name, topic, account, amount, block_height, block_time
		FROM events
		WHERE tx_id = ?
		ORDER BY log_index ASC
	`
	return r.query(ctx, query, txID)
}

// ListEventsOptions filters Recent.
type ListEventsOptions struct {
	Topic string
	Limit int
}

// Recent returns the newest logs first, optionally filtered by topic
func (r *EventRepository) Recent(ctx context.Context, opts ListEventsOptions) ([]chain.Log, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT tx_id, log_index, contract, name, topic, account, amount, block_height, block_time
		FROM events
	`
	args := []any{}
	if opts.Topic != "" {
		query += ` WHERE topic = ?`
		args = append(args, opts.Topic)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	return r.query(ctx, query, args...)
}

func (r *EventRepository) query(ctx context.Context, query string, args ...any) ([]chain.Log, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	logs := []chain.Log{}
	for rows.Next() {
		var (
			l        chain.Log
			contract string
			account  string
			amount   sql.NullString
		)
		if err := rows.Scan(&l.TxID, &l.Index, &contract, &l.Name, &l.Topic, &account, &amount, &l.BlockHeight, &l.BlockTime); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		l.Contract = decodeAddress(contract)
		l.Account = decodeAddress(account)
		if l.Amount, err = decodeNullAmount(amount); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return logs, nil
}
