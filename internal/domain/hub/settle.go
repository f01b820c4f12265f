package hub

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

// evaluate applies the transition rule to an open project. Payout and refund
// failures are recorded as events and left for a later call to retry.
func (s *Service) evaluate(ctx context.Context, env Env, proj *Project) error {
	if proj.Status != StatusOpen {
		return nil
	}

	switch {
	case proj.GoalReached():
		proj.Status = StatusFunded
		if err := s.projects.Update(ctx, proj); err != nil {
			return fmt.Errorf("updating project: %w", err)
		}
		if err := s.emit(ctx, EventProjectFunded, proj.Name, proj.Owner, proj.Raised); err != nil {
			return err
		}
		s.log(ctx, "project funded", "project", proj.Name, "raised", proj.Raised.String())
		_, err := s.payout(ctx, proj)
		return err
	case proj.Expired(env.Now):
		if err := s.markRefunded(ctx, proj); err != nil {
			return err
		}
		return s.refundBatch(ctx, proj)
	default:
		return nil
	}
}

// markRefunded resolves an expired project to refunded without moving value.
func (s *Service) markRefunded(ctx context.Context, proj *Project) error {
	unresolved, err := s.contributions.ListUnresolved(ctx, proj.Name, 0, -1)
	if err != nil {
		return fmt.Errorf("counting contributions: %w", err)
	}
	proj.Status = StatusRefunded
	proj.RefundCursor = 0
	proj.Outstanding = int64(len(unresolved))
	if err := s.projects.Update(ctx, proj); err != nil {
		return fmt.Errorf("updating project: %w", err)
	}
	if err := s.emit(ctx, EventProjectRefunded, proj.Name, proj.Owner, proj.Raised); err != nil {
		return err
	}
	s.log(ctx, "project refunded", "project", proj.Name, "raised", amountOrZero(proj.Raised).String(), "outstanding", proj.Outstanding)
	return nil
}

// payout sends the escrowed balance to the owner. The project is marked paid
// before the transfer and restored if the owner rejects it.
func (s *Service) payout(ctx context.Context, proj *Project) (bool, error) {
	amount := new(big.Int).Set(amountOrZero(proj.Raised))
	proj.Raised = new(big.Int)
	proj.PaidOut = true
	if err := s.projects.Update(ctx, proj); err != nil {
		return false, fmt.Errorf("updating project: %w", err)
	}

	err := s.bank.Transfer(ctx, proj.Owner, amount)
	if rerr := s.reload(ctx, proj); rerr != nil {
		return false, rerr
	}
	if err == nil {
		if err := s.emit(ctx, EventPayoutSent, proj.Name, proj.Owner, amount); err != nil {
			return false, err
		}
		s.log(ctx, "payout sent", "project", proj.Name, "owner", proj.Owner.Hex(), "amount", amount.String())
		return true, nil
	}
	if !errors.Is(err, ErrTransferRejected) {
		return false, fmt.Errorf("paying owner: %w", err)
	}

	proj.Raised = amount
	proj.PaidOut = false
	if err := s.projects.Update(ctx, proj); err != nil {
		return false, fmt.Errorf("restoring project: %w", err)
	}
	if err := s.emit(ctx, EventPayoutFailed, proj.Name, proj.Owner, amount); err != nil {
		return false, err
	}
	s.logWarn(ctx, "payout rejected", "project", proj.Name, "owner", proj.Owner.Hex())
	return false, nil
}

// refundBatch attempts up to batchSize refunds starting after the cursor.
// Once the cursor reaches the end it wraps so earlier failures are retried.
func (s *Service) refundBatch(ctx context.Context, proj *Project) error {
	if proj.Outstanding == 0 {
		return nil
	}

	batch, err := s.contributions.ListUnresolved(ctx, proj.Name, proj.RefundCursor, s.batchSize)
	if err != nil {
		return fmt.Errorf("listing contributions: %w", err)
	}
	if len(batch) == 0 && proj.RefundCursor > 0 {
		proj.RefundCursor = 0
		batch, err = s.contributions.ListUnresolved(ctx, proj.Name, 0, s.batchSize)
		if err != nil {
			return fmt.Errorf("listing contributions: %w", err)
		}
	}

	for i := range batch {
		contrib := batch[i]
		if _, err := s.refundOne(ctx, proj, &contrib); err != nil {
			return err
		}
		proj.RefundCursor = contrib.Seq
	}
	if err := s.projects.Update(ctx, proj); err != nil {
		return fmt.Errorf("updating project: %w", err)
	}
	return nil
}

// refundOne zeroes the contributor's entry, then transfers. A rejected
// transfer restores the entry and reports false.
func (s *Service) refundOne(ctx context.Context, proj *Project, contrib *Contribution) (bool, error) {
	amount := new(big.Int).Set(amountOrZero(contrib.Amount))
	contrib.Amount = new(big.Int)
	contrib.Resolved = true
	if err := s.contributions.Put(ctx, contrib); err != nil {
		return false, fmt.Errorf("saving contribution: %w", err)
	}
	proj.Raised = new(big.Int).Sub(amountOrZero(proj.Raised), amount)
	proj.Outstanding--
	if err := s.projects.Update(ctx, proj); err != nil {
		return false, fmt.Errorf("updating project: %w", err)
	}

	err := s.bank.Transfer(ctx, contrib.Contributor, amount)
	if rerr := s.reload(ctx, proj); rerr != nil {
		return false, rerr
	}
	if err == nil {
		if err := s.emit(ctx, EventRefundSent, proj.Name, contrib.Contributor, amount); err != nil {
			return false, err
		}
		return true, nil
	}
	if !errors.Is(err, ErrTransferRejected) {
		return false, fmt.Errorf("refunding contributor: %w", err)
	}

	contrib.Amount = amount
	contrib.Resolved = false
	if err := s.contributions.Put(ctx, contrib); err != nil {
		return false, fmt.Errorf("restoring contribution: %w", err)
	}
	proj.Raised = new(big.Int).Add(amountOrZero(proj.Raised), amount)
	proj.Outstanding++
	if err := s.projects.Update(ctx, proj); err != nil {
		return false, fmt.Errorf("restoring project: %w", err)
	}
	if err := s.emit(ctx, EventRefundFailed, proj.Name, contrib.Contributor, amount); err != nil {
		return false, err
	}
	s.logWarn(ctx, "refund rejected", "project", proj.Name, "contributor", contrib.Contributor.Hex())
	return false, nil
}

// reload refreshes proj after an outbound transfer, which may have re-entered
// the hub.
func (s *Service) reload(ctx context.Context, proj *Project) error {
	fresh, err := s.projects.Get(ctx, proj.Name)
	if err != nil {
		return fmt.Errorf("reloading project: %w", err)
	}
	*proj = *fresh
	return nil
}

func (s *Service) logWarn(ctx context.Context, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.WarnContext(ctx, msg, args...)
}
