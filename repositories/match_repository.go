package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/koc-community/tournament-system/models"
)

var (
	ErrMatchNotFound     = errors.New("match not found")
	ErrMatchGameNotFound = errors.New("match game not found")
)

type MatchRepository interface {
	// UpdateState persists the mutable part of a match: status, slot
	// participant ids, scores and results.
	UpdateState(ctx context.Context, exec SQLExecutor, match *models.Match) error
	UpdateGameState(ctx context.Context, exec SQLExecutor, game *models.MatchGame) error
	// CreateGame inserts an extra game appended after generation, e.g. a
	// sudden-death game for a tied match.
	CreateGame(ctx context.Context, exec SQLExecutor, game *models.MatchGame) error
	SetMessageID(ctx context.Context, matchID int, messageID *string) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresMatchRepository) UpdateState(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	executor := r.getExecutor(exec)

	opp1 := flattenOpponent(match.Opponent1)
	opp2 := flattenOpponent(match.Opponent2)

	result, err := executor.ExecContext(ctx, `
		UPDATE matches SET
			status = $1, child_count = $2,
			opp1_participant_id = $3, opp1_score = $4, opp1_result = $5,
			opp2_participant_id = $6, opp2_score = $7, opp2_result = $8
		WHERE id = $9`,
		match.Status, match.ChildCount,
		opp1.participantID, opp1.score, opp1.result,
		opp2.participantID, opp2.score, opp2.result,
		match.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update match %d: %w", match.ID, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) UpdateGameState(ctx context.Context, exec SQLExecutor, game *models.MatchGame) error {
	executor := r.getExecutor(exec)

	result, err := executor.ExecContext(ctx, `
		UPDATE match_games SET
			status = $1,
			opp1_participant_id = $2, opp1_score = $3, opp1_result = $4,
			opp2_participant_id = $5, opp2_score = $6, opp2_result = $7
		WHERE id = $8`,
		game.Status,
		nullableInt(game.Opponent1.ParticipantID), nullableInt(game.Opponent1.Score), nullableResult(game.Opponent1.Result),
		nullableInt(game.Opponent2.ParticipantID), nullableInt(game.Opponent2.Score), nullableResult(game.Opponent2.Result),
		game.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update game %d: %w", game.ID, err)
	}
	return checkAffectedRows(result, ErrMatchGameNotFound)
}

func (r *postgresMatchRepository) CreateGame(ctx context.Context, exec SQLExecutor, game *models.MatchGame) error {
	return insertGame(ctx, r.getExecutor(exec), game)
}

func (r *postgresMatchRepository) SetMessageID(ctx context.Context, matchID int, messageID *string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE matches SET message_id = $1 WHERE id = $2`, messageID, matchID)
	if err != nil {
		return fmt.Errorf("failed to set message for match %d: %w", matchID, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func insertGame(ctx context.Context, executor SQLExecutor, game *models.MatchGame) error {
	err := executor.QueryRowContext(ctx, `
		INSERT INTO match_games (
			match_id, number, status,
			opp1_participant_id, opp1_score, opp1_result,
			opp2_participant_id, opp2_score, opp2_result
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		game.MatchID, game.Number, game.Status,
		nullableInt(game.Opponent1.ParticipantID), nullableInt(game.Opponent1.Score), nullableResult(game.Opponent1.Result),
		nullableInt(game.Opponent2.ParticipantID), nullableInt(game.Opponent2.Score), nullableResult(game.Opponent2.Result),
	).Scan(&game.ID, &game.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create game %d of match %d: %w", game.Number, game.MatchID, err)
	}
	return nil
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullableResult(v *models.OpponentResult) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*v), Valid: true}
}
