package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rpggio/fundinghub/internal/domain/hub"
	"github.com/rpggio/fundinghub/internal/repository"
)

// ContributionRepository implements hub.ContributionRepository for SQLite
type ContributionRepository struct {
	db Querier
}

// NewContributionRepository creates a new ContributionRepository
func NewContributionRepository(db Querier) *ContributionRepository {
	return &ContributionRepository{db: db}
}

const contributionColumns = `project, contributor, seq, amount, contributed, resolved`

// Get retrieves one contributor's position in a project
func (r *ContributionRepository) Get(ctx context.Context, project string, contributor common.Address) (*hub.Contribution, error) {
	query := `SELECT ` + contributionColumns + ` FROM contributions WHERE project = ? AND contributor = ?`

	c, err := scanContribution(r.db.QueryRowContext(ctx, query, project, encodeAddress(contributor)))
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contribution: %w", err)
	}
	return c, nil
}

// Put inserts or replaces a contributor's position. Seq is fixed on insert.
func (r *ContributionRepository) Put(ctx context.Context, c *hub.Contribution) error {
	query := `
		INSERT INTO contributions (` + contributionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (project, contributor) DO UPDATE SET
			amount = excluded.amount,
			contributed = excluded.contributed,
			resolved = excluded.resolved
	`

	_, err := r.db.ExecContext(ctx, query,
		c.Project,
		encodeAddress(c.Contributor),
		c.Seq,
		encodeAmount(c.Amount),
		encodeAmount(c.Contributed),
		boolToInt(c.Resolved),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return repository.ErrNotFound
		}
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to save contribution: %w", err)
	}
	return nil
}

// List returns all contributions for a project in insertion order
func (r *ContributionRepository) List(ctx context.Context, project string) ([]hub.Contribution, error) {
	query := `SELECT ` + contributionColumns + ` FROM contributions WHERE project = ? ORDER BY seq ASC`
	return r.query(ctx, query, project)
}

// ListUnresolved returns unresolved contributions after afterSeq, in order
func (r *ContributionRepository) ListUnresolved(ctx context.Context, project string, afterSeq int64, limit int) ([]hub.Contribution, error) {
	query := `
		SELECT ` + contributionColumns + `
		FROM contributions
		WHERE project = ? AND resolved = 0 AND seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`
	return r.query(ctx, query, project, afterSeq, limit)
}

func (r *ContributionRepository) query(ctx context.Context, query string, args ...any) ([]hub.Contribution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}
	defer rows.Close()

	list := []hub.Contribution{}
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contribution: %w", err)
		}
		list = append(list, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contributions: %w", err)
	}

	return list, nil
}

func scanContribution(row rowScanner) (*hub.Contribution, error) {
	var (
		c           hub.Contribution
		contributor string
		amount      string
		contributed string
		resolved    int
	)

	if err := row.Scan(&c.Project, &contributor, &c.Seq, &amount, &contributed, &resolved); err != nil {
		return nil, err
	}

	var err error
	c.Contributor = decodeAddress(contributor)
	c.Resolved = resolved != 0
	if c.Amount, err = decodeAmount(amount); err != nil {
		return nil, err
	}
	if c.Contributed, err = decodeAmount(contributed); err != nil {
		return nil, err
	}
	return &c, nil
}
