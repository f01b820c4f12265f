package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rpggio/fundinghub/internal/repository"
)

// DefaultSettleBatchSize bounds the number of refunds attempted per call.
const DefaultSettleBatchSize = 50

// Options tunes hub behaviour.
type Options struct {
	SettleBatchSize int
}

// Service implements the funding hub state machine. It is constructed per
// ledger call over repositories bound to that call's transaction.
type Service struct {
	projects      ProjectRepository
	contributions ContributionRepository
	bank          Bank
	events        EventSink
	batchSize     int
	logger        *slog.Logger
}

// NewService creates a new hub service.
func NewService(
	projects ProjectRepository,
	contributions ContributionRepository,
	bank Bank,
	events EventSink,
	opts Options,
	logger *slog.Logger,
) *Service {
	batch := opts.SettleBatchSize
	if batch <= 0 {
		batch = DefaultSettleBatchSize
	}
	return &Service{
		projects:      projects,
		contributions: contributions,
		bank:          bank,
		events:        events,
		batchSize:     batch,
		logger:        logger,
	}
}

// CreateRequest describes a project creation request.
type CreateRequest struct {
	Name         string
	AmountNeeded *big.Int
	Deadline     int64
}

// CreateProject registers a new open project owned by the sender.
func (s *Service) CreateProject(ctx context.Context, env Env, req CreateRequest) (*Project, error) {
	if hasValue(env.Value) {
		return nil, ErrValueNotAccepted
	}
	if err := ValidateCreateInput(req, env.Now); err != nil {
		return nil, err
	}

	if _, err := s.projects.Get(ctx, req.Name); err == nil {
		return nil, ErrProjectExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("checking project: %w", err)
	}

	proj := &Project{
		Name:         req.Name,
		Owner:        env.Sender,
		AmountNeeded: new(big.Int).Set(req.AmountNeeded),
		Deadline:     req.Deadline,
		Raised:       new(big.Int),
		Status:       StatusOpen,
		CreatedAt:    time.Unix(env.Now, 0).UTC(),
	}
	if err := s.projects.Create(ctx, proj); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrProjectExists
		}
		return nil, fmt.Errorf("creating project: %w", err)
	}

	if err := s.emit(ctx, EventProjectCreated, proj.Name, proj.Owner, proj.AmountNeeded); err != nil {
		return nil, err
	}
	s.log(ctx, "project created", "project", proj.Name, "owner", proj.Owner.Hex(), "deadline", proj.Deadline)
	return proj, nil
}

// Contribute credits the attached value to the named project and evaluates
// its transition rule. A contribution arriving after an unmet deadline is
// sent back to the sender and the project is resolved to refunded.
func (s *Service) Contribute(ctx context.Context, env Env, name string) error {
	if !hasValue(env.Value) {
		return ErrZeroValue
	}
	proj, err := s.getProject(ctx, name)
	if err != nil {
		return err
	}
	if proj.Status != StatusOpen {
		return ErrProjectClosed
	}

	if proj.Expired(env.Now) && !proj.GoalReached() {
		if err := s.bank.Transfer(ctx, env.Sender, env.Value); err != nil {
			return fmt.Errorf("returning late contribution: %w", err)
		}
		if err := s.emit(ctx, EventContributionReturned, proj.Name, env.Sender, env.Value); err != nil {
			return err
		}
		return s.evaluate(ctx, env, proj)
	}

	contrib, err := s.contributions.Get(ctx, proj.Name, env.Sender)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		proj.ContributorCount++
		contrib = &Contribution{
			Project:     proj.Name,
			Contributor: env.Sender,
			Seq:         proj.ContributorCount,
			Amount:      new(big.Int),
			Contributed: new(big.Int),
		}
	case err != nil:
		return fmt.Errorf("loading contribution: %w", err)
	}

	contrib.Amount = new(big.Int).Add(amountOrZero(contrib.Amount), env.Value)
	contrib.Contributed = new(big.Int).Add(amountOrZero(contrib.Contributed), env.Value)
	proj.Raised = new(big.Int).Add(amountOrZero(proj.Raised), env.Value)

	if err := s.contributions.Put(ctx, contrib); err != nil {
		return fmt.Errorf("saving contribution: %w", err)
	}
	if err := s.projects.Update(ctx, proj); err != nil {
		return fmt.Errorf("updating project: %w", err)
	}
	if err := s.emit(ctx, EventContributed, proj.Name, env.Sender, env.Value); err != nil {
		return err
	}

	return s.evaluate(ctx, env, proj)
}

// Settle advances settlement of a project: it resolves a due open project,
// retries an unpaid owner payout, or processes the next refund batch.
func (s *Service) Settle(ctx context.Context, env Env, name string) error {
	if hasValue(env.Value) {
		return ErrValueNotAccepted
	}
	proj, err := s.getProject(ctx, name)
	if err != nil {
		return err
	}

	switch proj.Status {
	case StatusOpen:
		if !proj.GoalReached() && !proj.Expired(env.Now) {
			return ErrNotDue
		}
		return s.evaluate(ctx, env, proj)
	case StatusFunded:
		if proj.PaidOut {
			return ErrSettled
		}
		_, err := s.payout(ctx, proj)
		return err
	case StatusRefunded:
		if proj.Outstanding == 0 {
			return ErrSettled
		}
		return s.refundBatch(ctx, proj)
	default:
		return fmt.Errorf("unexpected project status %d", proj.Status)
	}
}

// ClaimRefund pays the sender's outstanding refund on a refunded project.
// An open project past its unmet deadline is resolved first.
func (s *Service) ClaimRefund(ctx context.Context, env Env, name string) error {
	if hasValue(env.Value) {
		return ErrValueNotAccepted
	}
	proj, err := s.getProject(ctx, name)
	if err != nil {
		return err
	}

	if proj.Status == StatusOpen {
		if proj.GoalReached() || !proj.Expired(env.Now) {
			return ErrNothingToClaim
		}
		if err := s.markRefunded(ctx, proj); err != nil {
			return err
		}
	}
	if proj.Status != StatusRefunded {
		return ErrNothingToClaim
	}

	contrib, err := s.contributions.Get(ctx, proj.Name, env.Sender)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNothingToClaim
	}
	if err != nil {
		return fmt.Errorf("loading contribution: %w", err)
	}
	if contrib.Resolved || amountOrZero(contrib.Amount).Sign() == 0 {
		return ErrNothingToClaim
	}

	paid, err := s.refundOne(ctx, proj, contrib)
	if err != nil {
		return err
	}
	if !paid {
		return fmt.Errorf("refunding %s: %w", env.Sender.Hex(), ErrTransferFailed)
	}
	return nil
}

// WithdrawPayout lets the owner retry a payout that a previous call could not
// deliver.
func (s *Service) WithdrawPayout(ctx context.Context, env Env, name string) error {
	if hasValue(env.Value) {
		return ErrValueNotAccepted
	}
	proj, err := s.getProject(ctx, name)
	if err != nil {
		return err
	}
	if proj.Owner != env.Sender {
		return ErrNotOwner
	}
	if proj.Status == StatusOpen && proj.GoalReached() {
		return s.evaluate(ctx, env, proj)
	}
	if proj.Status != StatusFunded || proj.PaidOut {
		return ErrNothingToClaim
	}

	paid, err := s.payout(ctx, proj)
	if err != nil {
		return err
	}
	if !paid {
		return fmt.Errorf("paying %s: %w", proj.Owner.Hex(), ErrTransferFailed)
	}
	return nil
}

// ActiveProjects returns the names of projects still effectively open at now,
// in registry order, joined by NameSeparator.
func (s *Service) ActiveProjects(ctx context.Context, now int64) (string, error) {
	projects, err := s.projects.List(ctx)
	if err != nil {
		return "", fmt.Errorf("listing projects: %w", err)
	}
	names := make([]string, 0, len(projects))
	for i := range projects {
		if EffectiveStatus(&projects[i], now) == StatusOpen {
			names = append(names, projects[i].Name)
		}
	}
	return strings.Join(names, NameSeparator), nil
}

// ProjectList returns every registered project name in registry order.
func (s *Service) ProjectList(ctx context.Context) (string, error) {
	projects, err := s.projects.List(ctx)
	if err != nil {
		return "", fmt.Errorf("listing projects: %w", err)
	}
	names := make([]string, 0, len(projects))
	for _, proj := range projects {
		names = append(names, proj.Name)
	}
	return strings.Join(names, NameSeparator), nil
}

// ProjectNameAt returns the name registered at index.
func (s *Service) ProjectNameAt(ctx context.Context, index int64) (string, error) {
	if index < 0 {
		return "", ErrIndexOutOfRange
	}
	name, err := s.projects.NameAt(ctx, index)
	if errors.Is(err, repository.ErrNotFound) {
		return "", ErrIndexOutOfRange
	}
	if err != nil {
		return "", fmt.Errorf("reading project index: %w", err)
	}
	return name, nil
}

// Status returns the stored status of a project.
func (s *Service) Status(ctx context.Context, name string) (Status, error) {
	proj, err := s.getProject(ctx, name)
	if err != nil {
		return 0, err
	}
	return proj.Status, nil
}

// View returns a project together with its derived settlement state.
func (s *Service) View(ctx context.Context, name string, now int64) (*ProjectView, error) {
	proj, err := s.getProject(ctx, name)
	if err != nil {
		return nil, err
	}
	return &ProjectView{
		Project:         *proj,
		EffectiveStatus: EffectiveStatus(proj, now),
		SettlementDue:   SettlementDue(proj, now),
	}, nil
}

// Views returns every project with derived state, in registry order.
func (s *Service) Views(ctx context.Context, now int64) ([]ProjectView, error) {
	projects, err := s.projects.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	views := make([]ProjectView, 0, len(projects))
	for i := range projects {
		views = append(views, ProjectView{
			Project:         projects[i],
			EffectiveStatus: EffectiveStatus(&projects[i], now),
			SettlementDue:   SettlementDue(&projects[i], now),
		})
	}
	return views, nil
}

// ContributionOf returns the contributor's position in a project.
func (s *Service) ContributionOf(ctx context.Context, name string, contributor common.Address) (*Contribution, error) {
	if _, err := s.getProject(ctx, name); err != nil {
		return nil, err
	}
	contrib, err := s.contributions.Get(ctx, name, contributor)
	if errors.Is(err, repository.ErrNotFound) {
		return &Contribution{
			Project:     name,
			Contributor: contributor,
			Amount:      new(big.Int),
			Contributed: new(big.Int),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading contribution: %w", err)
	}
	return contrib, nil
}

// Contributors lists a project's contributors in insertion order.
func (s *Service) Contributors(ctx context.Context, name string) ([]Contribution, error) {
	if _, err := s.getProject(ctx, name); err != nil {
		return nil, err
	}
	return s.contributions.List(ctx, name)
}

func (s *Service) getProject(ctx context.Context, name string) (*Project, error) {
	proj, err := s.projects.Get(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("getting project: %w", err)
	}
	return proj, nil
}

func (s *Service) emit(ctx context.Context, name EventName, project string, account common.Address, amount *big.Int) error {
	if s.events == nil {
		return nil
	}
	ev := Event{Name: name, Project: project, Account: account}
	if amount != nil {
		ev.Amount = new(big.Int).Set(amount)
	}
	if err := s.events.Emit(ctx, ev); err != nil {
		return fmt.Errorf("emitting %s: %w", name, err)
	}
	return nil
}

func (s *Service) log(ctx context.Context, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.DebugContext(ctx, msg, args...)
}
