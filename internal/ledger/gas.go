package ledger

import (
	"context"
	"database/sql"
	"strings"

	"github.com/ethereum/go-ethereum/params"
	"github.com/rpggio/fundinghub/internal/domain/chain"
	"github.com/rpggio/fundinghub/internal/sqlite"
)

// Gas schedule. Storage and transfer costs follow the Ethereum schedule.
const (
	GasIntrinsic = params.TxGas
	GasTransfer  = params.CallValueTransferGas
	GasLog       = params.LogGas
	GasStoreNew  = params.SstoreSetGas
	GasStore     = params.SstoreResetGas
	GasLoad      = uint64(800)
)

// GasMeter tracks consumption against a per-call budget.
type GasMeter struct {
	limit     uint64
	used      uint64
	exhausted bool
}

// NewGasMeter creates a meter with the given budget.
func NewGasMeter(limit uint64) *GasMeter {
	return &GasMeter{limit: limit}
}

// Charge consumes n units, failing once the budget is exceeded. An exhausted
// meter stays exhausted and pins used to the limit.
func (g *GasMeter) Charge(n uint64) error {
	if g.exhausted {
		return chain.ErrOutOfGas
	}
	if g.limit-g.used < n {
		g.used = g.limit
		g.exhausted = true
		return chain.ErrOutOfGas
	}
	g.used += n
	return nil
}

// Used returns the gas consumed so far.
func (g *GasMeter) Used() uint64 { return g.used }

// Limit returns the budget.
func (g *GasMeter) Limit() uint64 { return g.limit }

// Exhausted reports whether a charge has failed.
func (g *GasMeter) Exhausted() bool { return g.exhausted }

// meteredQuerier charges gas for every statement a contract runs against
// its storage.
type meteredQuerier struct {
	q   sqlite.Querier
	gas *GasMeter
}

var _ sqlite.Querier = (*meteredQuerier)(nil)

func (m *meteredQuerier) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	cost := GasStore
	if strings.HasPrefix(strings.TrimSpace(strings.ToUpper(query)), "INSERT") {
		cost = GasStoreNew
	}
	if err := m.gas.Charge(cost); err != nil {
		return nil, err
	}
	return m.q.ExecContext(ctx, query, args...)
}

func (m *meteredQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if err := m.gas.Charge(GasLoad); err != nil {
		return nil, err
	}
	return m.q.QueryContext(ctx, query, args...)
}

// QueryRowContext cannot surface a charge failure through *sql.Row; the
// executor checks Exhausted after the call instead.
func (m *meteredQuerier) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	_ = m.gas.Charge(GasLoad)
	return m.q.QueryRowContext(ctx, query, args...)
}
