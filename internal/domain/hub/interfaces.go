package hub

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ProjectRepository provides persistence for the project registry.
type ProjectRepository interface {
	Create(ctx context.Context, proj *Project) error
	Get(ctx context.Context, name string) (*Project, error)
	Update(ctx context.Context, proj *Project) error
	List(ctx context.Context) ([]Project, error)
	NameAt(ctx context.Context, index int64) (string, error)
}

// ContributionRepository provides persistence for contributor positions.
type ContributionRepository interface {
	Get(ctx context.Context, project string, contributor common.Address) (*Contribution, error)
	Put(ctx context.Context, c *Contribution) error
	List(ctx context.Context, project string) ([]Contribution, error)
	// ListUnresolved returns unresolved contributions with Seq > afterSeq in
	// insertion order. A negative limit returns all of them.
	ListUnresolved(ctx context.Context, project string, afterSeq int64, limit int) ([]Contribution, error)
}

// Bank moves value out of the hub's escrow account.
type Bank interface {
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
}

// EventSink records hub events on the current call's receipt.
type EventSink interface {
	Emit(ctx context.Context, ev Event) error
}
