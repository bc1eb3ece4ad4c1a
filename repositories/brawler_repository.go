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
	ErrBrawlerNotFound        = errors.New("brawler not found")
	ErrBrawlerDiscordConflict = errors.New("brawler with this discord id already exists")
	ErrBrawlerAlreadyInTeam   = errors.New("brawler already belongs to a team")
)

type BrawlerRepository interface {
	Create(ctx context.Context, b *models.Brawler) error
	GetByID(ctx context.Context, id int) (*models.Brawler, error)
	GetByDiscordID(ctx context.Context, discordID string) (*models.Brawler, error)
	ListByTeam(ctx context.Context, teamID int) ([]models.Brawler, error)
	// AssignTeam is a conditional update: it only succeeds while the brawler
	// has no team, closing the join/join race at the database level.
	AssignTeam(ctx context.Context, exec SQLExecutor, brawlerID, teamID int) error
	ClearTeam(ctx context.Context, exec SQLExecutor, brawlerID int) error
	ClearTeamForAll(ctx context.Context, exec SQLExecutor, teamID int) error
}

type postgresBrawlerRepository struct {
	db *sql.DB
}

func NewPostgresBrawlerRepository(db *sql.DB) BrawlerRepository {
	return &postgresBrawlerRepository{db: db}
}

func (r *postgresBrawlerRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresBrawlerRepository) Create(ctx context.Context, b *models.Brawler) error {
	query := `
		INSERT INTO brawlers (discord_id, username, team_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, b.DiscordID, b.Username, b.TeamID).
		Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrBrawlerDiscordConflict
		}
		return fmt.Errorf("failed to create brawler: %w", err)
	}
	return nil
}

func (r *postgresBrawlerRepository) GetByID(ctx context.Context, id int) (*models.Brawler, error) {
	query := `SELECT id, discord_id, username, team_id, created_at FROM brawlers WHERE id = $1`
	return r.findOne(ctx, query, id)
}

func (r *postgresBrawlerRepository) GetByDiscordID(ctx context.Context, discordID string) (*models.Brawler, error) {
	query := `SELECT id, discord_id, username, team_id, created_at FROM brawlers WHERE discord_id = $1`
	return r.findOne(ctx, query, discordID)
}

func (r *postgresBrawlerRepository) findOne(ctx context.Context, query string, args ...interface{}) (*models.Brawler, error) {
	b := &models.Brawler{}
	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&b.ID, &b.DiscordID, &b.Username, &b.TeamID, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBrawlerNotFound
		}
		return nil, fmt.Errorf("failed to find brawler: %w", err)
	}
	return b, nil
}

func (r *postgresBrawlerRepository) ListByTeam(ctx context.Context, teamID int) ([]models.Brawler, error) {
	query := `
		SELECT id, discord_id, username, team_id, created_at
		FROM brawlers
		WHERE team_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list brawlers by team: %w", err)
	}
	defer rows.Close()

	brawlers := make([]models.Brawler, 0)
	for rows.Next() {
		var b models.Brawler
		if err := rows.Scan(&b.ID, &b.DiscordID, &b.Username, &b.TeamID, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan brawler row: %w", err)
		}
		brawlers = append(brawlers, b)
	}
	return brawlers, rows.Err()
}

func (r *postgresBrawlerRepository) AssignTeam(ctx context.Context, exec SQLExecutor, brawlerID, teamID int) error {
	executor := r.getExecutor(exec)
	// team_id IS NULL в WHERE делает проверку "уже в команде" атомарной.
	query := `UPDATE brawlers SET team_id = $1 WHERE id = $2 AND team_id IS NULL`
	result, err := executor.ExecContext(ctx, query, teamID, brawlerID)
	if err != nil {
		return fmt.Errorf("failed to assign brawler %d to team %d: %w", brawlerID, teamID, err)
	}
	return checkAffectedRows(result, ErrBrawlerAlreadyInTeam)
}

func (r *postgresBrawlerRepository) ClearTeam(ctx context.Context, exec SQLExecutor, brawlerID int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE brawlers SET team_id = NULL WHERE id = $1`
	result, err := executor.ExecContext(ctx, query, brawlerID)
	if err != nil {
		return fmt.Errorf("failed to clear team for brawler %d: %w", brawlerID, err)
	}
	return checkAffectedRows(result, ErrBrawlerNotFound)
}

func (r *postgresBrawlerRepository) ClearTeamForAll(ctx context.Context, exec SQLExecutor, teamID int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE brawlers SET team_id = NULL WHERE team_id = $1`
	if _, err := executor.ExecContext(ctx, query, teamID); err != nil {
		return fmt.Errorf("failed to clear team %d members: %w", teamID, err)
	}
	return nil
}
