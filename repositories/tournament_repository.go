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
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrStatusConflict     = errors.New("tournament status changed concurrently")
)

type TournamentRepository interface {
	Create(ctx context.Context, t *models.Tournament) error
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	ListByStatus(ctx context.Context, statuses ...models.TournamentStatus) ([]models.Tournament, error)
	// UpdateStatusFrom is a compare-and-set: the row is only updated while it
	// still holds the expected status. ErrStatusConflict on a lost race.
	UpdateStatusFrom(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentStatus) error
	SetStageID(ctx context.Context, exec SQLExecutor, id, stageID int) error
	SetOrganizerMessageID(ctx context.Context, id int, messageID *string) error
	SetSignupMessageID(ctx context.Context, id int, messageID *string) error
	// Archive forces FINISHED and clears both board message references.
	Archive(ctx context.Context, id int) error
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresTournamentRepository) Create(ctx context.Context, t *models.Tournament) error {
	query := `
		INSERT INTO tournaments (title, description, team_size, server_id, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, t.Title, t.Description, t.TeamSize, t.ServerID, t.Status).
		Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tournament: %w", err)
	}
	return nil
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	query := `
		SELECT id, title, description, team_size, server_id, status,
		       organizer_message_id, signup_message_id, stage_id, created_at
		FROM tournaments WHERE id = $1`

	t := &models.Tournament{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.Title, &t.Description, &t.TeamSize, &t.ServerID, &t.Status,
		&t.OrganizerMessageID, &t.SignupMessageID, &t.StageID, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to find tournament %d: %w", id, err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) ListByStatus(ctx context.Context, statuses ...models.TournamentStatus) ([]models.Tournament, error) {
	query := `
		SELECT id, title, description, team_size, server_id, status,
		       organizer_message_id, signup_message_id, stage_id, created_at
		FROM tournaments
		WHERE status = ANY($1)
		ORDER BY created_at DESC`

	raw := make([]string, len(statuses))
	for i, s := range statuses {
		raw[i] = string(s)
	}

	rows, err := r.db.QueryContext(ctx, query, pq.Array(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	defer rows.Close()

	tournaments := make([]models.Tournament, 0)
	for rows.Next() {
		var t models.Tournament
		if err := rows.Scan(
			&t.ID, &t.Title, &t.Description, &t.TeamSize, &t.ServerID, &t.Status,
			&t.OrganizerMessageID, &t.SignupMessageID, &t.StageID, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan tournament row: %w", err)
		}
		tournaments = append(tournaments, t)
	}
	return tournaments, rows.Err()
}

func (r *postgresTournamentRepository) UpdateStatusFrom(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentStatus) error {
	executor := r.getExecutor(exec)
	// CAS по статусу: проигравший гонку апдейт не затронет ни одной строки.
	query := `UPDATE tournaments SET status = $1 WHERE id = $2 AND status = $3`
	result, err := executor.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to update status of tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrStatusConflict)
}

func (r *postgresTournamentRepository) SetStageID(ctx context.Context, exec SQLExecutor, id, stageID int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `UPDATE tournaments SET stage_id = $1 WHERE id = $2`, stageID, id)
	if err != nil {
		return fmt.Errorf("failed to set stage for tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) SetOrganizerMessageID(ctx context.Context, id int, messageID *string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE tournaments SET organizer_message_id = $1 WHERE id = $2`, messageID, id)
	if err != nil {
		return fmt.Errorf("failed to set organizer message for tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) SetSignupMessageID(ctx context.Context, id int, messageID *string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE tournaments SET signup_message_id = $1 WHERE id = $2`, messageID, id)
	if err != nil {
		return fmt.Errorf("failed to set signup message for tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) Archive(ctx context.Context, id int) error {
	// Архив безусловный: статус принудительно FINISHED вне зависимости от
	// текущего, ссылки на сообщения досок обнуляются.
	query := `
		UPDATE tournaments
		SET status = $1, organizer_message_id = NULL, signup_message_id = NULL
		WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, models.TournamentFinished, id)
	if err != nil {
		return fmt.Errorf("failed to archive tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}
