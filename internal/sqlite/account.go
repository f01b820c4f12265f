package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rpggio/fundinghub/internal/domain/chain"
	"github.com/rpggio/fundinghub/internal/repository"
)

// AccountRepository stores ledger balances
type AccountRepository struct {
	db Querier
}

// NewAccountRepository creates a new AccountRepository
func NewAccountRepository(db Querier) *AccountRepository {
	return &AccountRepository{db: db}
}

// Get retrieves an account. Unknown addresses return a zero-balance account.
func (r *AccountRepository) Get(ctx context.Context, addr common.Address) (*chain.Account, error) {
	query := `
		SELECT address, balance, nonce, rejects_value, contract
		FROM accounts
		WHERE address = ?
	`

	var (
		acct     chain.Account
		address  string
		balance  string
		rejects  int
		contract sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, encodeAddress(addr)).Scan(&address, &balance, &acct.Nonce, &rejects, &contract)
	if err == sql.ErrNoRows {
		return &chain.Account{Address: addr, Balance: new(big.Int)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	acct.Address = decodeAddress(address)
	acct.RejectsValue = rejects != 0
	acct.Contract = contract.String
	if acct.Balance, err = decodeAmount(balance); err != nil {
		return nil, err
	}
	return &acct, nil
}

// Ensure creates the account row if missing
func (r *AccountRepository) Ensure(ctx context.Context, addr common.Address) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (address) VALUES (?) ON CONFLICT (address) DO NOTHING`,
		encodeAddress(addr),
	)
	if err != nil {
		return fmt.Errorf("failed to ensure account: %w", err)
	}
	return nil
}

// SetBalance overwrites an account balance
func (r *AccountRepository) SetBalance(ctx context.Context, addr common.Address, balance *big.Int) error {
	if err := r.Ensure(ctx, addr); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET balance = ? WHERE address = ?`,
		encodeAmount(balance), encodeAddress(addr),
	)
	if err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	return nil
}

// Add adjusts a balance by delta, which may be negative. A result below zero
// returns chain.ErrInsufficientFunds and leaves the balance untouched.
func (r *AccountRepository) Add(ctx context.Context, addr common.Address, delta *big.Int) error {
	acct, err := r.Get(ctx, addr)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(acct.Balance, delta)
	if next.Sign() < 0 {
		return chain.ErrInsufficientFunds
	}
	return r.SetBalance(ctx, addr, next)
}

// IncrementNonce bumps the sender's call counter
func (r *AccountRepository) IncrementNonce(ctx context.Context, addr common.Address) error {
	if err := r.Ensure(ctx, addr); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `UPDATE accounts SET nonce = nonce + 1 WHERE address = ?`, encodeAddress(addr))
	if err != nil {
		return fmt.Errorf("failed to increment nonce: %w", err)
	}
	return nil
}

// SetRejectsValue marks an account as refusing incoming transfers
func (r *AccountRepository) SetRejectsValue(ctx context.Context, addr common.Address, rejects bool) error {
	if err := r.Ensure(ctx, addr); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET rejects_value = ? WHERE address = ?`,
		boolToInt(rejects), encodeAddress(addr),
	)
	if err != nil {
		return fmt.Errorf("failed to set rejects_value: %w", err)
	}
	return nil
}

// SetContract records the contract deployed at an address
func (r *AccountRepository) SetContract(ctx context.Context, addr common.Address, contract string) error {
	if err := r.Ensure(ctx, addr); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET contract = ? WHERE address = ?`,
		contract, encodeAddress(addr),
	)
	if err != nil {
		return fmt.Errorf("failed to set contract: %w", err)
	}
	return nil
}

// Contracts returns every address with deployed code
func (r *AccountRepository) Contracts(ctx context.Context) (map[common.Address]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT address, contract FROM accounts WHERE contract IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	out := map[common.Address]string{}
	for rows.Next() {
		var addr, name string
		if err := rows.Scan(&addr, &name); err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		out[decodeAddress(addr)] = name
	}
	return out, rows.Err()
}

// ResolveAPIKey returns the account bound to an API key hash
func (r *AccountRepository) ResolveAPIKey(ctx context.Context, keyHash string) (common.Address, error) {
	var account string
	err := r.db.QueryRowContext(ctx, `SELECT account FROM api_keys WHERE key_hash = ?`, keyHash).Scan(&account)
	if err == sql.ErrNoRows {
		return common.Address{}, repository.ErrNotFound
	}
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to resolve api key: %w", err)
	}
	_, _ = r.db.ExecContext(ctx, `UPDATE api_keys SET last_used = CURRENT_TIMESTAMP WHERE key_hash = ?`, keyHash)
	return decodeAddress(account), nil
}

// CreateAPIKey binds a key hash to an account
func (r *AccountRepository) CreateAPIKey(ctx context.Context, keyHash string, account common.Address, description string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO api_keys (key_hash, account, description) VALUES (?, ?, ?)`,
		keyHash, encodeAddress(account), description,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}
