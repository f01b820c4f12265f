package mocks

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rpggio/fundinghub/internal/domain/hub"
	"github.com/stretchr/testify/mock"
)

// ProjectRepository is a mock for hub.ProjectRepository.
type ProjectRepository struct {
	mock.Mock
}

func (m *ProjectRepository) Create(ctx context.Context, proj *hub.Project) error {
	args := m.Called(ctx, proj)
	return args.Error(0)
}

func (m *ProjectRepository) Get(ctx context.Context, name string) (*hub.Project, error) {
	args := m.Called(ctx, name)
	if proj, ok := args.Get(0).(*hub.Project); ok {
		return proj, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ProjectRepository) Update(ctx context.Context, proj *hub.Project) error {
	args := m.Called(ctx, proj)
	return args.Error(0)
}

func (m *ProjectRepository) List(ctx context.Context) ([]hub.Project, error) {
	args := m.Called(ctx)
	if list, ok := args.Get(0).([]hub.Project); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ProjectRepository) NameAt(ctx context.Context, index int64) (string, error) {
	args := m.Called(ctx, index)
	return args.String(0), args.Error(1)
}

// ContributionRepository is a mock for hub.ContributionRepository.
type ContributionRepository struct {
	mock.Mock
}

func (m *ContributionRepository) Get(ctx context.Context, project string, contributor common.Address) (*hub.Contribution, error) {
	args := m.Called(ctx, project, contributor)
	if c, ok := args.Get(0).(*hub.Contribution); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ContributionRepository) Put(ctx context.Context, c *hub.Contribution) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *ContributionRepository) List(ctx context.Context, project string) ([]hub.Contribution, error) {
	args := m.Called(ctx, project)
	if list, ok := args.Get(0).([]hub.Contribution); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ContributionRepository) ListUnresolved(ctx context.Context, project string, afterSeq int64, limit int) ([]hub.Contribution, error) {
	args := m.Called(ctx, project, afterSeq, limit)
	if list, ok := args.Get(0).([]hub.Contribution); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// Bank is a mock for hub.Bank.
type Bank struct {
	mock.Mock
}

func (m *Bank) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	args := m.Called(ctx, to, amount)
	return args.Error(0)
}

// EventSink is a mock for hub.EventSink.
type EventSink struct {
	mock.Mock
}

func (m *EventSink) Emit(ctx context.Context, ev hub.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}
