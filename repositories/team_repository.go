package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/koc-community/tournament-system/models"
	"github.com/lib/pq"
)

var (
	ErrTeamNotFound     = errors.New("team not found")
	ErrTeamNameConflict = errors.New("team with this name already exists")
)

type TeamRepository interface {
	Create(ctx context.Context, exec SQLExecutor, team *models.Team) error
	GetByID(ctx context.Context, id int) (*models.Team, error)
	// GetByName is case-insensitive, matching the unique index on lower(name).
	GetByName(ctx context.Context, name string) (*models.Team, error)
	Delete(ctx context.Context, exec SQLExecutor, id int) error
	// BumpRecord adds the deltas to the team's win/loss counters.
	BumpRecord(ctx context.Context, exec SQLExecutor, id, winsDelta, lossesDelta int) error
	SetLogoKey(ctx context.Context, id int, logoKey string) error
}

type postgresTeamRepository struct {
	db *sql.DB
}

func NewPostgresTeamRepository(db *sql.DB) TeamRepository {
	return &postgresTeamRepository{db: db}
}

func (r *postgresTeamRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresTeamRepository) Create(ctx context.Context, exec SQLExecutor, team *models.Team) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO teams (name, owner_id)
		VALUES ($1, $2)
		RETURNING id, wins, losses, created_at`

	err := executor.QueryRowContext(ctx, query, team.Name, team.OwnerID).
		Scan(&team.ID, &team.Wins, &team.Losses, &team.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23505": // unique_violation на lower(name)
				return ErrTeamNameConflict
			case "23503": // foreign_key_violation
				return ErrBrawlerNotFound
			}
		}
		return fmt.Errorf("failed to create team: %w", err)
	}
	return nil
}

func (r *postgresTeamRepository) GetByID(ctx context.Context, id int) (*models.Team, error) {
	query := `SELECT id, name, owner_id, wins, losses, logo_key, created_at FROM teams WHERE id = $1`
	return r.findOne(ctx, query, id)
}

func (r *postgresTeamRepository) GetByName(ctx context.Context, name string) (*models.Team, error) {
	query := `SELECT id, name, owner_id, wins, losses, logo_key, created_at FROM teams WHERE lower(name) = lower($1)`
	return r.findOne(ctx, query, name)
}

func (r *postgresTeamRepository) findOne(ctx context.Context, query string, args ...interface{}) (*models.Team, error) {
	team := &models.Team{}
	var logoKey sql.NullString
	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&team.ID, &team.Name, &team.OwnerID, &team.Wins, &team.Losses, &logoKey, &team.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to find team: %w", err)
	}
	if logoKey.Valid {
		team.LogoKey = &logoKey.String
	}
	return team, nil
}

func (r *postgresTeamRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `DELETE FROM teams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete team %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTeamNotFound)
}

func (r *postgresTeamRepository) BumpRecord(ctx context.Context, exec SQLExecutor, id, winsDelta, lossesDelta int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE teams SET wins = wins + $1, losses = losses + $2 WHERE id = $3`
	result, err := executor.ExecContext(ctx, query, winsDelta, lossesDelta, id)
	if err != nil {
		return fmt.Errorf("failed to bump record for team %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTeamNotFound)
}

func (r *postgresTeamRepository) SetLogoKey(ctx context.Context, id int, logoKey string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE teams SET logo_key = $1 WHERE id = $2`, logoKey, id)
	if err != nil {
		return fmt.Errorf("failed to set logo for team %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTeamNotFound)
}
