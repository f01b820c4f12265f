package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rpggio/fundinghub/internal/domain/chain"
	"github.com/rpggio/fundinghub/internal/repository"
)

// TransactionRepository stores submitted calls and their outcomes
type TransactionRepository struct {
	db Querier
}

// NewTransactionRepository creates a new TransactionRepository
func NewTransactionRepository(db Querier) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const txColumns = `
	id, seq, from_address, to_address, function, args, value, gas,
	status, reason, error_kind, gas_used, block_height, block_time, submitted_at
`

// Create persists a pending transaction and assigns its Seq
func (r *TransactionRepository) Create(ctx context.Context, tx *chain.Transaction) error {
	var seq int64
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq) + 1, 1) FROM transactions`).Scan(&seq); err != nil {
		return fmt.Errorf("failed to allocate tx seq: %w", err)
	}

	submittedAt := tx.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now().UTC()
	}
	args := tx.Args
	if len(args) == 0 {
		args = json.RawMessage("[]")
	}

	query := `
		INSERT INTO transactions (id, seq, from_address, to_address, function, args, value, gas, status, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		tx.ID,
		seq,
		encodeAddress(tx.From),
		encodeAddress(tx.To),
		tx.Function,
		string(args),
		encodeAmount(tx.Value),
		tx.Gas,
		string(chain.TxPending),
		submittedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	tx.Seq = seq
	tx.Status = chain.TxPending
	tx.SubmittedAt = submittedAt
	return nil
}

// Get retrieves a transaction by id
func (r *TransactionRepository) Get(ctx context.Context, id string) (*chain.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE id = ?`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

// Finish records the execution outcome of a transaction
func (r *TransactionRepository) Finish(ctx context.Context, tx *chain.Transaction) error {
	query := `
		UPDATE transactions
		SET status = ?, reason = ?, error_kind = ?, gas_used = ?, block_height = ?, block_time = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		string(tx.Status),
		nullString(tx.Reason),
		nullString(tx.ErrorKind),
		tx.GasUsed,
		tx.BlockHeight,
		tx.BlockTime,
		tx.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish transaction: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListPending returns pending transactions in submission order
func (r *TransactionRepository) ListPending(ctx context.Context) ([]chain.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE status = ? ORDER BY seq ASC`
	return r.query(ctx, query, string(chain.TxPending))
}

// Recent returns the most recent transactions, newest first
func (r *TransactionRepository) Recent(ctx context.Context, limit int) ([]chain.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + txColumns + ` FROM transactions ORDER BY seq DESC LIMIT ?`
	return r.query(ctx, query, limit)
}

func (r *TransactionRepository) query(ctx context.Context, query string, args ...any) ([]chain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	list := []chain.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		list = append(list, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return list, nil
}

func scanTransaction(row rowScanner) (*chain.Transaction, error) {
	var (
		tx          chain.Transaction
		from, to    string
		args        string
		value       string
		status      string
		reason      sql.NullString
		errorKind   sql.NullString
		blockHeight sql.NullInt64
		blockTime   sql.NullInt64
	)

	err := row.Scan(
		&tx.ID,
		&tx.Seq,
		&from,
		&to,
		&tx.Function,
		&args,
		&value,
		&tx.Gas,
		&status,
		&reason,
		&errorKind,
		&tx.GasUsed,
		&blockHeight,
		&blockTime,
		&tx.SubmittedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.From = decodeAddress(from)
	tx.To = decodeAddress(to)
	tx.Args = json.RawMessage(args)
	tx.Status = chain.TxStatus(status)
	tx.Reason = reason.String
	tx.ErrorKind = errorKind.String
	tx.BlockHeight = blockHeight.Int64
	tx.BlockTime = blockTime.Int64
	if tx.Value, err = decodeAmount(value); err != nil {
		return nil, err
	}
	return &tx, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
