package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rpggio/fundinghub/internal/domain/hub"
	"github.com/rpggio/fundinghub/internal/repository"
)

// ProjectRepository implements hub.ProjectRepository for SQLite
type ProjectRepository struct {
	db Querier
}

// NewProjectRepository creates a new ProjectRepository
func NewProjectRepository(db Querier) *ProjectRepository {
	return &ProjectRepository{db: db}
}

const projectColumns = `
	name, seq, owner, amount_needed, deadline, raised, status,
	paid_out, contributor_count, refund_cursor, outstanding, created_at
`

// Create inserts a project at the end of the registry and sets its Seq.
func (r *ProjectRepository) Create(ctx context.Context, proj *hub.Project) error {
	var seq int64
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq) + 1, 0) FROM projects`).Scan(&seq); err != nil {
		return fmt.Errorf("failed to allocate project seq: %w", err)
	}

	createdAt := proj.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO projects (` + projectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		proj.Name,
		seq,
		encodeAddress(proj.Owner),
		encodeAmount(proj.AmountNeeded),
		proj.Deadline,
		encodeAmount(proj.Raised),
		int(proj.Status),
		boolToInt(proj.PaidOut),
		proj.ContributorCount,
		proj.RefundCursor,
		proj.Outstanding,
		createdAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create project: %w", err)
	}

	proj.Seq = seq
	proj.CreatedAt = createdAt
	return nil
}

// Get retrieves a project by name
func (r *ProjectRepository) Get(ctx context.Context, name string) (*hub.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE name = ?`

	proj, err := scanProject(r.db.QueryRowContext(ctx, query, name))
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return proj, nil
}

// Update persists the mutable fields of a project
func (r *ProjectRepository) Update(ctx context.Context, proj *hub.Project) error {
	query := `
		UPDATE projects
		SET raised = ?, status = ?, paid_out = ?, contributor_count = ?,
			refund_cursor = ?, outstanding = ?
		WHERE name = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		encodeAmount(proj.Raised),
		int(proj.Status),
		boolToInt(proj.PaidOut),
		proj.ContributorCount,
		proj.RefundCursor,
		proj.Outstanding,
		proj.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
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

// List returns all projects in registry order
func (r *ProjectRepository) List(ctx context.Context) ([]hub.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects ORDER BY seq ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := []hub.Project{}
	for rows.Next() {
		proj, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *proj)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}

	return projects, nil
}

// NameAt returns the name registered at the given registry index
func (r *ProjectRepository) NameAt(ctx context.Context, index int64) (string, error) {
	var name string
	err := r.db.QueryRowContext(ctx, `SELECT name FROM projects WHERE seq = ?`, index).Scan(&name)
	if err == sql.ErrNoRows {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get project name: %w", err)
	}
	return name, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*hub.Project, error) {
	var (
		proj         hub.Project
		owner        string
		amountNeeded string
		raised       string
		status       int
		paidOut      int
	)

	err := row.Scan(
		&proj.Name,
		&proj.Seq,
		&owner,
		&amountNeeded,
		&proj.Deadline,
		&raised,
		&status,
		&paidOut,
		&proj.ContributorCount,
		&proj.RefundCursor,
		&proj.Outstanding,
		&proj.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	proj.Owner = decodeAddress(owner)
	proj.Status = hub.Status(status)
	proj.PaidOut = paidOut != 0
	if proj.AmountNeeded, err = decodeAmount(amountNeeded); err != nil {
		return nil, err
	}
	if proj.Raised, err = decodeAmount(raised); err != nil {
		return nil, err
	}

	return &proj, nil
}
