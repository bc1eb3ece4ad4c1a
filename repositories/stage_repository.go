package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/koc-community/tournament-system/models"
)

var ErrStageNotFound = errors.New("stage not found")

type StageRepository interface {
	// CreateTree inserts the stage with all its rounds, matches and games in
	// one go, writing the generated ids back into the tree. Callers run it
	// inside a transaction so a failed insert never leaves a partial bracket.
	CreateTree(ctx context.Context, exec SQLExecutor, stage *models.Stage) error
	// GetTree loads the stage with rounds, matches and games fully populated.
	GetTree(ctx context.Context, stageID int) (*models.Stage, error)
}

type postgresStageRepository struct {
	db *sql.DB
}

func NewPostgresStageRepository(db *sql.DB) StageRepository {
	return &postgresStageRepository{db: db}
}

func (r *postgresStageRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresStageRepository) CreateTree(ctx context.Context, exec SQLExecutor, stage *models.Stage) error {
	executor := r.getExecutor(exec)

	settings, err := json.Marshal(stage.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal stage settings: %w", err)
	}

	err = executor.QueryRowContext(ctx, `
		INSERT INTO stages (tournament_id, name, type, settings)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		stage.TournamentID, stage.Name, stage.Type, settings,
	).Scan(&stage.ID, &stage.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create stage: %w", err)
	}

	for i := range stage.Rounds {
		round := &stage.Rounds[i]
		round.StageID = stage.ID
		err = executor.QueryRowContext(ctx, `
			INSERT INTO rounds (stage_id, number)
			VALUES ($1, $2)
			RETURNING id`,
			stage.ID, round.Number,
		).Scan(&round.ID)
		if err != nil {
			return fmt.Errorf("failed to create round %d: %w", round.Number, err)
		}

		for j := range round.Matches {
			if err := r.insertMatch(ctx, executor, stage.ID, round.ID, &round.Matches[j]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *postgresStageRepository) insertMatch(ctx context.Context, executor SQLExecutor, stageID, roundID int, match *models.Match) error {
	match.StageID = stageID
	match.RoundID = roundID

	opp1 := flattenOpponent(match.Opponent1)
	opp2 := flattenOpponent(match.Opponent2)

	err := executor.QueryRowContext(ctx, `
		INSERT INTO matches (
			stage_id, round_id, number, child_count, status,
			opp1_present, opp1_participant_id, opp1_score, opp1_result,
			opp2_present, opp2_participant_id, opp2_score, opp2_result
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at`,
		stageID, roundID, match.Number, match.ChildCount, match.Status,
		opp1.present, opp1.participantID, opp1.score, opp1.result,
		opp2.present, opp2.participantID, opp2.score, opp2.result,
	).Scan(&match.ID, &match.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create match %d: %w", match.Number, err)
	}

	for k := range match.Games {
		game := &match.Games[k]
		game.MatchID = match.ID
		if err := insertGame(ctx, executor, game); err != nil {
			return err
		}
	}
	return nil
}

func (r *postgresStageRepository) GetTree(ctx context.Context, stageID int) (*models.Stage, error) {
	stage := &models.Stage{}
	var settings []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tournament_id, name, type, settings, created_at
		FROM stages WHERE id = $1`, stageID,
	).Scan(&stage.ID, &stage.TournamentID, &stage.Name, &stage.Type, &settings, &stage.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStageNotFound
		}
		return nil, fmt.Errorf("failed to find stage %d: %w", stageID, err)
	}
	if err := json.Unmarshal(settings, &stage.Settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stage settings: %w", err)
	}

	if err := r.loadRounds(ctx, stage); err != nil {
		return nil, err
	}
	if err := r.loadMatches(ctx, stage); err != nil {
		return nil, err
	}
	if err := r.loadGames(ctx, stage); err != nil {
		return nil, err
	}
	return stage, nil
}

func (r *postgresStageRepository) loadRounds(ctx context.Context, stage *models.Stage) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, stage_id, number FROM rounds
		WHERE stage_id = $1 ORDER BY number ASC`, stage.ID)
	if err != nil {
		return fmt.Errorf("failed to load rounds: %w", err)
	}
	defer rows.Close()

	stage.Rounds = stage.Rounds[:0]
	for rows.Next() {
		var round models.Round
		if err := rows.Scan(&round.ID, &round.StageID, &round.Number); err != nil {
			return fmt.Errorf("failed to scan round row: %w", err)
		}
		stage.Rounds = append(stage.Rounds, round)
	}
	return rows.Err()
}

func (r *postgresStageRepository) loadMatches(ctx context.Context, stage *models.Stage) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, stage_id, round_id, number, child_count, status, message_id,
		       opp1_present, opp1_participant_id, opp1_score, opp1_result,
		       opp2_present, opp2_participant_id, opp2_score, opp2_result,
		       created_at
		FROM matches
		WHERE stage_id = $1 ORDER BY number ASC`, stage.ID)
	if err != nil {
		return fmt.Errorf("failed to load matches: %w", err)
	}
	defer rows.Close()

	byRound := make(map[int]*models.Round, len(stage.Rounds))
	for i := range stage.Rounds {
		byRound[stage.Rounds[i].ID] = &stage.Rounds[i]
	}

	for rows.Next() {
		var match models.Match
		var raw1, raw2 flatOpponent
		if err := rows.Scan(
			&match.ID, &match.StageID, &match.RoundID, &match.Number,
			&match.ChildCount, &match.Status, &match.MessageID,
			&raw1.present, &raw1.participantID, &raw1.score, &raw1.result,
			&raw2.present, &raw2.participantID, &raw2.score, &raw2.result,
			&match.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to scan match row: %w", err)
		}
		match.Opponent1 = raw1.toOpponent()
		match.Opponent2 = raw2.toOpponent()

		round, ok := byRound[match.RoundID]
		if !ok {
			return fmt.Errorf("match %d references unknown round %d", match.ID, match.RoundID)
		}
		round.Matches = append(round.Matches, match)
	}
	return rows.Err()
}

func (r *postgresStageRepository) loadGames(ctx context.Context, stage *models.Stage) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT g.id, g.match_id, g.number, g.status,
		       g.opp1_participant_id, g.opp1_score, g.opp1_result,
		       g.opp2_participant_id, g.opp2_score, g.opp2_result,
		       g.created_at
		FROM match_games g
		JOIN matches m ON m.id = g.match_id
		WHERE m.stage_id = $1
		ORDER BY g.match_id ASC, g.number ASC`, stage.ID)
	if err != nil {
		return fmt.Errorf("failed to load games: %w", err)
	}
	defer rows.Close()

	byMatch := make(map[int]*models.Match)
	for r := range stage.Rounds {
		for m := range stage.Rounds[r].Matches {
			match := &stage.Rounds[r].Matches[m]
			byMatch[match.ID] = match
		}
	}

	for rows.Next() {
		var game models.MatchGame
		var raw1, raw2 flatOpponent
		if err := rows.Scan(
			&game.ID, &game.MatchID, &game.Number, &game.Status,
			&raw1.participantID, &raw1.score, &raw1.result,
			&raw2.participantID, &raw2.score, &raw2.result,
			&game.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to scan game row: %w", err)
		}
		if op := raw1.toOpponent(); op != nil {
			game.Opponent1 = *op
		}
		if op := raw2.toOpponent(); op != nil {
			game.Opponent2 = *op
		}

		match, ok := byMatch[game.MatchID]
		if !ok {
			return fmt.Errorf("game %d references unknown match %d", game.ID, game.MatchID)
		}
		match.Games = append(match.Games, game)
	}
	return rows.Err()
}

// flatOpponent - промежуточное представление слота для скана/вставки.
type flatOpponent struct {
	present       bool
	participantID sql.NullInt64
	score         sql.NullInt64
	result        sql.NullString
}

func flattenOpponent(op *models.Opponent) flatOpponent {
	flat := flatOpponent{}
	if op == nil {
		return flat
	}
	flat.present = true
	if op.ParticipantID != nil {
		flat.participantID = sql.NullInt64{Int64: int64(*op.ParticipantID), Valid: true}
	}
	if op.Score != nil {
		flat.score = sql.NullInt64{Int64: int64(*op.Score), Valid: true}
	}
	if op.Result != nil {
		flat.result = sql.NullString{String: string(*op.Result), Valid: true}
	}
	return flat
}

func (f flatOpponent) toOpponent() *models.Opponent {
	// Для игр present не хранится: отсутствие значений даёт пустой слот.
	if !f.present && !f.participantID.Valid && !f.score.Valid && !f.result.Valid {
		return nil
	}
	op := &models.Opponent{}
	if f.participantID.Valid {
		id := int(f.participantID.Int64)
		op.ParticipantID = &id
	}
	if f.score.Valid {
		score := int(f.score.Int64)
		op.Score = &score
	}
	if f.result.Valid {
		result := models.OpponentResult(f.result.String)
		op.Result = &result
	}
	return op
}
