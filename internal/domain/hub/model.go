package hub

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Status is the settlement state of a project. The numeric values are part of
// the read interface: 0=Open, 1=Funded, 2=Refunded.
type Status uint8

const (
	StatusOpen     Status = 0
	StatusFunded   Status = 1
	StatusRefunded Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusFunded:
		return "funded"
	case StatusRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}

// Project is a single crowdfunding campaign registered in the hub.
type Project struct {
	Name         string         `json:"name"`
	Seq          int64          `json:"seq"`
	Owner        common.Address `json:"owner"`
	AmountNeeded *big.Int       `json:"amount_needed"`
	Deadline     int64          `json:"deadline"`
	Raised       *big.Int       `json:"raised"`
	Status       Status         `json:"status"`
	// PaidOut is set once the owner payout transfer has gone through.
	PaidOut          bool      `json:"paid_out"`
	ContributorCount int64     `json:"contributor_count"`
	RefundCursor     int64     `json:"refund_cursor"`
	Outstanding      int64     `json:"outstanding"`
	CreatedAt        time.Time `json:"created_at"`
}

// GoalReached reports whether raised has met the funding goal.
func (p *Project) GoalReached() bool {
	return amountOrZero(p.Raised).Cmp(amountOrZero(p.AmountNeeded)) >= 0
}

// Expired reports whether the deadline has passed at the given block time.
func (p *Project) Expired(now int64) bool {
	return now >= p.Deadline
}

// EffectiveStatus derives the status the project would have if it were
// settled at now. Stored status lags until some call touches the project.
func EffectiveStatus(p *Project, now int64) Status {
	if p.Status != StatusOpen {
		return p.Status
	}
	if p.GoalReached() {
		return StatusFunded
	}
	if p.Expired(now) {
		return StatusRefunded
	}
	return StatusOpen
}

// SettlementDue reports whether a settle call would make progress.
func SettlementDue(p *Project, now int64) bool {
	switch p.Status {
	case StatusOpen:
		return p.GoalReached() || p.Expired(now)
	case StatusFunded:
		return !p.PaidOut
	case StatusRefunded:
		return p.Outstanding > 0
	}
	return false
}

// Contribution is one contributor's position in a project.
type Contribution struct {
	Project     string         `json:"project"`
	Contributor common.Address `json:"contributor"`
	Seq         int64          `json:"seq"`
	// Amount is the live balance owed back on refund; zero once resolved.
	Amount *big.Int `json:"amount"`
	// Contributed is the cumulative amount ever sent by the contributor.
	Contributed *big.Int `json:"contributed"`
	Resolved    bool     `json:"resolved"`
}

// ProjectView is a read model combining stored and derived state.
type ProjectView struct {
	Project
	EffectiveStatus Status `json:"effective_status"`
	SettlementDue   bool   `json:"settlement_due"`
}

// EventName identifies a log entry emitted by the hub.
type EventName string

const (
	EventProjectCreated       EventName = "ProjectCreated"
	EventContributed          EventName = "Contributed"
	EventContributionReturned EventName = "ContributionReturned"
	EventProjectFunded        EventName = "ProjectFunded"
	EventProjectRefunded      EventName = "ProjectRefunded"
	EventPayoutSent           EventName = "PayoutSent"
	EventPayoutFailed         EventName = "PayoutFailed"
	EventRefundSent           EventName = "RefundSent"
	EventRefundFailed         EventName = "RefundFailed"
)

// Event is a log entry recorded on the receipt of the call that produced it.
type Event struct {
	Name    EventName      `json:"name"`
	Project string         `json:"project"`
	Account common.Address `json:"account"`
	Amount  *big.Int       `json:"amount,omitempty"`
}

// Env carries the execution context of a single ledger call.
type Env struct {
	Sender common.Address
	Value  *big.Int
	// Now is the block timestamp in unix seconds.
	Now  int64
	Self common.Address
}

func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
