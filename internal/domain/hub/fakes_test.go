package hub_test

import (
	"context"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rpggio/fundinghub/internal/domain/hub"
	"github.com/rpggio/fundinghub/internal/repository"
)

type memProjects struct {
	byName map[string]hub.Project
	order  []string
}

func newMemProjects() *memProjects {
	return &memProjects{byName: map[string]hub.Project{}}
}

func (m *memProjects) Create(_ context.Context, proj *hub.Project) error {
	if _, ok := m.byName[proj.Name]; ok {
		return repository.ErrConflict
	}
	proj.Seq = int64(len(m.order))
	m.order = append(m.order, proj.Name)
	m.byName[proj.Name] = copyProject(*proj)
	return nil
}

func (m *memProjects) Get(_ context.Context, name string) (*hub.Project, error) {
	p, ok := m.byName[name]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := copyProject(p)
	return &cp, nil
}

func (m *memProjects) Update(_ context.Context, proj *hub.Project) error {
	if _, ok := m.byName[proj.Name]; !ok {
		return repository.ErrNotFound
	}
	m.byName[proj.Name] = copyProject(*proj)
	return nil
}

func (m *memProjects) List(_ context.Context) ([]hub.Project, error) {
	out := make([]hub.Project, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, copyProject(m.byName[name]))
	}
	return out, nil
}

func (m *memProjects) NameAt(_ context.Context, index int64) (string, error) {
	if index < 0 || index >= int64(len(m.order)) {
		return "", repository.ErrNotFound
	}
	return m.order[index], nil
}

type contribKey struct {
	project string
	addr    common.Address
}

type memContributions struct {
	rows map[contribKey]hub.Contribution
}

func newMemContributions() *memContributions {
	return &memContributions{rows: map[contribKey]hub.Contribution{}}
}

func (m *memContributions) Get(_ context.Context, project string, contributor common.Address) (*hub.Contribution, error) {
	c, ok := m.rows[contribKey{project, contributor}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := copyContribution(c)
	return &cp, nil
}

func (m *memContributions) Put(_ context.Context, c *hub.Contribution) error {
	m.rows[contribKey{c.Project, c.Contributor}] = copyContribution(*c)
	return nil
}

func (m *memContributions) List(_ context.Context, project string) ([]hub.Contribution, error) {
	var out []hub.Contribution
	for k, c := range m.rows {
		if k.project == project {
			out = append(out, copyContribution(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *memContributions) ListUnresolved(ctx context.Context, project string, afterSeq int64, limit int) ([]hub.Contribution, error) {
	all, _ := m.List(ctx, project)
	var out []hub.Contribution
	for _, c := range all {
		if c.Resolved || c.Seq <= afterSeq {
			continue
		}
		if limit >= 0 && len(out) == limit {
			break
		}
		out = append(out, c)
	}
	return out, nil
}

// fakeBank tracks balances paid out of escrow. Addresses in reject refuse
// value, and onTransfer runs before the balance moves.
type fakeBank struct {
	paid       map[common.Address]*big.Int
	reject     map[common.Address]bool
	onTransfer func(ctx context.Context, to common.Address)
}

func newFakeBank() *fakeBank {
	return &fakeBank{paid: map[common.Address]*big.Int{}, reject: map[common.Address]bool{}}
}

func (b *fakeBank) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	if b.onTransfer != nil {
		b.onTransfer(ctx, to)
	}
	if b.reject[to] {
		return hub.ErrTransferRejected
	}
	cur, ok := b.paid[to]
	if !ok {
		cur = new(big.Int)
	}
	b.paid[to] = new(big.Int).Add(cur, amount)
	return nil
}

func (b *fakeBank) paidTo(addr common.Address) *big.Int {
	if v, ok := b.paid[addr]; ok {
		return v
	}
	return new(big.Int)
}

type memEvents struct {
	events []hub.Event
}

func (m *memEvents) Emit(_ context.Context, ev hub.Event) error {
	m.events = append(m.events, ev)
	return nil
}

func (m *memEvents) names() []hub.EventName {
	out := make([]hub.EventName, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.Name)
	}
	return out
}

func copyProject(p hub.Project) hub.Project {
	if p.AmountNeeded != nil {
		p.AmountNeeded = new(big.Int).Set(p.AmountNeeded)
	}
	if p.Raised != nil {
		p.Raised = new(big.Int).Set(p.Raised)
	}
	return p
}

func copyContribution(c hub.Contribution) hub.Contribution {
	if c.Amount != nil {
		c.Amount = new(big.Int).Set(c.Amount)
	}
	if c.Contributed != nil {
		c.Contributed = new(big.Int).Set(c.Contributed)
	}
	return c
}
