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
	ErrParticipantNotFound = errors.New("participant not found")
	ErrParticipantConflict = errors.New("participant already signed up for this tournament")
)

type ParticipantRepository interface {
	// Create relies on the partial unique indexes on (tournament_id, brawler_id)
	// and (tournament_id, team_id) to reject duplicate signups atomically.
	Create(ctx context.Context, p *models.Participant) error
	Delete(ctx context.Context, id int) error
	GetByBrawler(ctx context.Context, tournamentID, brawlerID int) (*models.Participant, error)
	GetByTeam(ctx context.Context, tournamentID, teamID int) (*models.Participant, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]models.Participant, error)
	// ListActiveTournamentIDsForBrawler returns ids of unfinished tournaments
	// the brawler is signed up for, directly or through their team.
	ListActiveTournamentIDsForBrawler(ctx context.Context, brawlerID int) ([]int, error)
	ListActiveTournamentIDsForTeam(ctx context.Context, teamID int) ([]int, error)
}

type postgresParticipantRepository struct {
	db *sql.DB
}

func NewPostgresParticipantRepository(db *sql.DB) ParticipantRepository {
	return &postgresParticipantRepository{db: db}
}

func (r *postgresParticipantRepository) Create(ctx context.Context, p *models.Participant) error {
	query := `
		INSERT INTO participants (tournament_id, brawler_id, team_id, roster_brawler_ids)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, p.TournamentID, p.BrawlerID, p.TeamID, pq.Array(p.RosterIDs)).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23505":
				return ErrParticipantConflict
			case "23503":
				return ErrTournamentNotFound
			}
		}
		return fmt.Errorf("failed to create participant: %w", err)
	}
	return nil
}

func (r *postgresParticipantRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM participants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete participant %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) GetByBrawler(ctx context.Context, tournamentID, brawlerID int) (*models.Participant, error) {
	query := `
		SELECT id, tournament_id, brawler_id, team_id, roster_brawler_ids, created_at
		FROM participants WHERE tournament_id = $1 AND brawler_id = $2`
	return r.findOne(ctx, query, tournamentID, brawlerID)
}

func (r *postgresParticipantRepository) GetByTeam(ctx context.Context, tournamentID, teamID int) (*models.Participant, error) {
	query := `
		SELECT id, tournament_id, brawler_id, team_id, roster_brawler_ids, created_at
		FROM participants WHERE tournament_id = $1 AND team_id = $2`
	return r.findOne(ctx, query, tournamentID, teamID)
}

func (r *postgresParticipantRepository) findOne(ctx context.Context, query string, args ...interface{}) (*models.Participant, error) {
	p := &models.Participant{}
	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&p.ID, &p.TournamentID, &p.BrawlerID, &p.TeamID, pq.Array(&p.RosterIDs), &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to find participant: %w", err)
	}
	return p, nil
}

// ListByTournament возвращает участников в порядке регистрации, с
// подгруженными бравлером и командой. Порядок важен: он используется как
// сеяние при генерации сетки.
func (r *postgresParticipantRepository) ListByTournament(ctx context.Context, tournamentID int) ([]models.Participant, error) {
	query := `
		SELECT p.id, p.tournament_id, p.brawler_id, p.team_id, p.roster_brawler_ids, p.created_at,
		       b.id, b.discord_id, b.username, b.team_id, b.created_at,
		       t.id, t.name, t.owner_id, t.wins, t.losses, t.created_at
		FROM participants p
		LEFT JOIN brawlers b ON b.id = p.brawler_id
		LEFT JOIN teams t ON t.id = p.team_id
		WHERE p.tournament_id = $1
		ORDER BY p.id ASC`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	participants := make([]models.Participant, 0)
	for rows.Next() {
		var p models.Participant
		var (
			bID        sql.NullInt64
			bDiscordID sql.NullString
			bUsername  sql.NullString
			bTeamID    sql.NullInt64
			bCreatedAt sql.NullTime

			tID        sql.NullInt64
			tName      sql.NullString
			tOwnerID   sql.NullInt64
			tWins      sql.NullInt64
			tLosses    sql.NullInt64
			tCreatedAt sql.NullTime
		)

		if err := rows.Scan(
			&p.ID, &p.TournamentID, &p.BrawlerID, &p.TeamID, pq.Array(&p.RosterIDs), &p.CreatedAt,
			&bID, &bDiscordID, &bUsername, &bTeamID, &bCreatedAt,
			&tID, &tName, &tOwnerID, &tWins, &tLosses, &tCreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", err)
		}

		if bID.Valid {
			p.Brawler = &models.Brawler{
				ID:        int(bID.Int64),
				DiscordID: bDiscordID.String,
				Username:  bUsername.String,
				CreatedAt: bCreatedAt.Time,
			}
			if bTeamID.Valid {
				teamID := int(bTeamID.Int64)
				p.Brawler.TeamID = &teamID
			}
		}
		if tID.Valid {
			p.Team = &models.Team{
				ID:        int(tID.Int64),
				Name:      tName.String,
				OwnerID:   int(tOwnerID.Int64),
				Wins:      int(tWins.Int64),
				Losses:    int(tLosses.Int64),
				CreatedAt: tCreatedAt.Time,
			}
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (r *postgresParticipantRepository) ListActiveTournamentIDsForBrawler(ctx context.Context, brawlerID int) ([]int, error) {
	// Личные заявки плюс заявки команды, в которой бравлер состоит.
	query := `
		SELECT DISTINCT p.tournament_id
		FROM participants p
		JOIN tournaments t ON t.id = p.tournament_id
		WHERE t.status <> $1
		  AND (p.brawler_id = $2
		       OR p.team_id = (SELECT team_id FROM brawlers WHERE id = $2))
		ORDER BY p.tournament_id`
	return r.listIDs(ctx, query, models.TournamentFinished, brawlerID)
}

func (r *postgresParticipantRepository) ListActiveTournamentIDsForTeam(ctx context.Context, teamID int) ([]int, error) {
	query := `
		SELECT DISTINCT p.tournament_id
		FROM participants p
		JOIN tournaments t ON t.id = p.tournament_id
		WHERE t.status <> $1 AND p.team_id = $2
		ORDER BY p.tournament_id`
	return r.listIDs(ctx, query, models.TournamentFinished, teamID)
}

func (r *postgresParticipantRepository) listIDs(ctx context.Context, query string, args ...interface{}) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournament ids: %w", err)
	}
	defer rows.Close()

	ids := make([]int, 0)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tournament id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
