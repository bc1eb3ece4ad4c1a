package services

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strconv"

	"github.com/koc-community/tournament-system/brackets"
	"github.com/koc-community/tournament-system/models"
	"github.com/koc-community/tournament-system/repositories"
)

type MatchService struct {
	runTx           txRunner
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	stageRepo       repositories.StageRepository
	matchRepo       repositories.MatchRepository
	teams           *TeamService
	hub             *brackets.Hub
	logger          *slog.Logger
}

func NewMatchService(
	db *sql.DB,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	stageRepo repositories.StageRepository,
	matchRepo repositories.MatchRepository,
	teams *TeamService,
	hub *brackets.Hub,
	logger *slog.Logger,
) *MatchService {
	return &MatchService{
		runTx:           runInTx(db),
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		stageRepo:       stageRepo,
		matchRepo:       matchRepo,
		teams:           teams,
		hub:             hub,
		logger:          logger,
	}
}

// NextMatch возвращает матч с наименьшим номером, готовый к игре, или
// record-not-found, если играть пока нечего.
func (s *MatchService) NextMatch(ctx context.Context, tournamentID int) (*models.Match, error) {
	stage, err := s.loadStage(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	match := brackets.NextMatch(stage)
	if match == nil {
		return nil, NewFailure(KindRecordNotFound, "No matches are ready to play right now.")
	}
	return match, nil
}

// NextGame возвращает открытую (ready или running) игру матча с наименьшим
// номером.
func (s *MatchService) NextGame(ctx context.Context, tournamentID, matchID int) (*models.MatchGame, error) {
	stage, err := s.loadStage(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	match, ok := brackets.FindMatch(stage, matchID)
	if !ok {
		return nil, NewFailure(KindRecordNotFound, "Match not found.")
	}
	game := brackets.NextGame(match)
	if game == nil {
		return nil, NewFailure(KindRecordNotFound, "The match has no open game.")
	}
	return game, nil
}

// GetMatch возвращает матч из дерева этапа.
func (s *MatchService) GetMatch(ctx context.Context, tournamentID, matchID int) (*models.Match, error) {
	stage, err := s.loadStage(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	match, ok := brackets.FindMatch(stage, matchID)
	if !ok {
		return nil, NewFailure(KindRecordNotFound, "Match not found.")
	}
	return match, nil
}

// RecordGameScore вносит счёт одной стороны в текущую игру матча. Счёт
// второй стороны не трогается; игра закрывается отдельным вызовом
// FinishGame.
func (s *MatchService) RecordGameScore(ctx context.Context, tournamentID, matchID, slot, score int) (*models.MatchGame, error) {
	stage, err := s.loadStage(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	match, ok := brackets.FindMatch(stage, matchID)
	if !ok {
		return nil, NewFailure(KindRecordNotFound, "Match not found.")
	}
	game := brackets.NextGame(match)
	if game == nil {
		return nil, NewFailure(KindRecordNotFound, "The match has no open game.")
	}

	if err := brackets.ApplyGameScore(match, game, slot, score, nil); err != nil {
		return nil, mapBracketError(err)
	}

	err = s.runTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.matchRepo.UpdateGameState(ctx, exec, game); err != nil {
			return Internal(err)
		}
		if err := s.matchRepo.UpdateState(ctx, exec, match); err != nil {
			return Internal(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.hub.BroadcastToRoom(strconv.Itoa(tournamentID), brackets.EventMatchUpdated, match)
	return game, nil
}

// FinishGame сверяет счёт текущей игры и двигает турнир дальше: закрывает
// игру, при большинстве побед закрывает матч, проводит победителя в
// следующий раунд, обновляет счётчики команд и при сыгранном финале
// завершает турнир. Всё в одной транзакции.
func (s *MatchService) FinishGame(ctx context.Context, tournamentID, matchID int) (*models.Match, error) {
	t, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, NewFailure(KindRecordNotFound, "Tournament not found.")
		}
		return nil, Internal(err)
	}
	if t.StageID == nil {
		return nil, NewFailure(KindRecordNotFound, "The tournament has no bracket yet.")
	}
	stage, err := s.stageRepo.GetTree(ctx, *t.StageID)
	if err != nil {
		return nil, Internal(err)
	}
	match, ok := brackets.FindMatch(stage, matchID)
	if !ok {
		return nil, NewFailure(KindRecordNotFound, "Match not found.")
	}

	game, err := brackets.ReconcileGame(match)
	if err != nil {
		return nil, mapBracketError(err)
	}

	err = s.runTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.matchRepo.UpdateGameState(ctx, exec, game); err != nil {
			return Internal(err)
		}
		// Сверка могла открыть следующую игру или добавить новую при ничьей.
		for i := range match.Games {
			g := &match.Games[i]
			if g.ID == 0 {
				if err := s.matchRepo.CreateGame(ctx, exec, g); err != nil {
					return Internal(err)
				}
				continue
			}
			if g.ID != game.ID && g.Status == models.MatchReady {
				if err := s.matchRepo.UpdateGameState(ctx, exec, g); err != nil {
					return Internal(err)
				}
			}
		}
		if err := s.matchRepo.UpdateState(ctx, exec, match); err != nil {
			return Internal(err)
		}

		if match.Status == models.MatchCompleted {
			if err := s.completeMatch(ctx, exec, t, stage, match); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.hub.BroadcastToRoom(strconv.Itoa(tournamentID), brackets.EventMatchUpdated, match)
	if match.Status == models.MatchCompleted {
		s.hub.BroadcastToRoom(strconv.Itoa(tournamentID), brackets.EventBracketUpdated, stage)
	}
	return match, nil
}

// completeMatch выполняет побочные эффекты завершённого матча внутри
// транзакции вызывающего.
func (s *MatchService) completeMatch(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, stage *models.Stage, match *models.Match) error {
	// Продвижение может каскадом закрыть матчи с bye-слотами выше по
	// сетке, все затронутые матчи сохраняются.
	updated, err := brackets.AdvanceWinner(stage, match)
	if err != nil {
		return Internal(err)
	}
	for _, target := range updated {
		if err := s.matchRepo.UpdateState(ctx, exec, target); err != nil {
			return Internal(err)
		}
		// Открытие матча делает готовой и его первую игру.
		for i := range target.Games {
			g := &target.Games[i]
			if g.Status == models.MatchReady {
				if err := s.matchRepo.UpdateGameState(ctx, exec, g); err != nil {
					return Internal(err)
				}
			}
		}
	}

	if !t.Solo() {
		if err := s.recordTeamOutcome(ctx, exec, t.ID, match); err != nil {
			return err
		}
	}

	s.logger.Info("match completed",
		slog.Int("tournament_id", t.ID),
		slog.Int("match_number", match.Number),
	)

	if winner := brackets.StageWinner(stage); winner != nil {
		if err := s.tournamentRepo.UpdateStatusFrom(ctx, exec, t.ID, models.TournamentInProgress, models.TournamentFinished); err != nil {
			if errors.Is(err, repositories.ErrStatusConflict) {
				// Турнир уже закрыт параллельно, победителя это не меняет.
				return nil
			}
			return Internal(err)
		}
		s.logger.Info("tournament finished",
			slog.Int("tournament_id", t.ID),
			slog.Int("winner_participant_id", *winner),
		)
	}
	return nil
}

func (s *MatchService) recordTeamOutcome(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, match *models.Match) error {
	winnerID := match.WinnerParticipantID()
	loserID := match.LoserParticipantID()
	if winnerID == nil || loserID == nil {
		return nil // матч с bye не даёт поражения
	}

	participants, err := s.participantRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		return Internal(err)
	}
	teamByParticipant := make(map[int]int, len(participants))
	for i := range participants {
		if participants[i].TeamID != nil {
			teamByParticipant[participants[i].ID] = *participants[i].TeamID
		}
	}

	winnerTeam, okW := teamByParticipant[*winnerID]
	loserTeam, okL := teamByParticipant[*loserID]
	if !okW || !okL {
		return nil
	}
	if err := s.teams.RecordMatchOutcome(ctx, exec, winnerTeam, loserTeam); err != nil {
		return Internal(err)
	}
	return nil
}

// SetMessageID привязывает сообщение-карточку матча.
func (s *MatchService) SetMessageID(ctx context.Context, matchID int, messageID *string) error {
	if err := s.matchRepo.SetMessageID(ctx, matchID, messageID); err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return NewFailure(KindRecordNotFound, "Match not found.")
		}
		return Internal(err)
	}
	return nil
}

func (s *MatchService) loadStage(ctx context.Context, tournamentID int) (*models.Stage, error) {
	t, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, NewFailure(KindRecordNotFound, "Tournament not found.")
		}
		return nil, Internal(err)
	}
	if t.StageID == nil {
		return nil, NewFailure(KindRecordNotFound, "The tournament has no bracket yet.")
	}
	stage, err := s.stageRepo.GetTree(ctx, *t.StageID)
	if err != nil {
		return nil, Internal(err)
	}
	return stage, nil
}

// mapBracketError переводит ошибки движка сетки в доменные.
func mapBracketError(err error) error {
	switch {
	case errors.Is(err, brackets.ErrGameNotOpen):
		return NewFailure(KindRecordNotFound, "The match has no open game.")
	case errors.Is(err, brackets.ErrScoresIncomplete):
		return NewFailure(KindScoresIncomplete, "Both scores must be entered before finishing the game.")
	case errors.Is(err, brackets.ErrMatchNotPlayable):
		return NewFailure(KindRecordNotFound, "The match is not ready to play.")
	case errors.Is(err, brackets.ErrGameAlreadyClosed):
		return NewFailure(KindRecordNotFound, "The game is already finished.")
	case errors.Is(err, brackets.ErrOpponentSlot):
		return NewFailure(KindInternal, "Opponent slot must be 1 or 2.")
	default:
		return Internal(err)
	}
}
