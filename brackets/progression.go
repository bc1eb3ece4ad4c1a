package brackets

import (
	"errors"
	"fmt"

	"github.com/koc-community/tournament-system/models"
)

var (
	ErrMatchNotInStage   = errors.New("match does not belong to the stage")
	ErrGameNotOpen       = errors.New("match has no open game")
	ErrScoresIncomplete  = errors.New("not all scores are filled out")
	ErrOpponentSlot      = errors.New("opponent slot must be 1 or 2")
	ErrMatchNotPlayable  = errors.New("match is not ready or running")
	ErrGameAlreadyClosed = errors.New("game is already completed")
)

// NextMatch returns the lowest-numbered match that is currently playable
// (status ready), or nil when nothing is ready - e.g. the stage is still
// waiting on a previous round.
func NextMatch(stage *models.Stage) *models.Match {
	var next *models.Match
	for r := range stage.Rounds {
		for m := range stage.Rounds[r].Matches {
			match := &stage.Rounds[r].Matches[m]
			if match.Status != models.MatchReady {
				continue
			}
			if next == nil || match.Number < next.Number {
				next = match
			}
		}
	}
	return next
}

// NextGame returns the open (ready or running) game with the lowest number,
// or nil if the match has no open games.
func NextGame(match *models.Match) *models.MatchGame {
	var next *models.MatchGame
	for i := range match.Games {
		game := &match.Games[i]
		if game.Status != models.MatchReady && game.Status != models.MatchRunning {
			continue
		}
		if next == nil || game.Number < next.Number {
			next = game
		}
	}
	return next
}

// FindMatch locates a match in the stage tree by id.
func FindMatch(stage *models.Stage, matchID int) (*models.Match, bool) {
	for r := range stage.Rounds {
		for m := range stage.Rounds[r].Matches {
			if stage.Rounds[r].Matches[m].ID == matchID {
				return &stage.Rounds[r].Matches[m], true
			}
		}
	}
	return nil, false
}

// ApplyGameScore records a score (and optionally a result) for exactly one
// opponent slot of a game. The other slot is left untouched. Entering a
// score moves a ready game and its match to running.
func ApplyGameScore(match *models.Match, game *models.MatchGame, slot int, score int, result *models.OpponentResult) error {
	if match.Status != models.MatchReady && match.Status != models.MatchRunning {
		return ErrMatchNotPlayable
	}
	if game.Status == models.MatchCompleted {
		return ErrGameAlreadyClosed
	}

	var opponent *models.Opponent
	switch slot {
	case 1:
		opponent = &game.Opponent1
	case 2:
		opponent = &game.Opponent2
	default:
		return ErrOpponentSlot
	}

	opponent.Score = &score
	opponent.Result = result

	if game.Status == models.MatchReady {
		game.Status = models.MatchRunning
	}
	if match.Status == models.MatchReady {
		match.Status = models.MatchRunning
	}
	return nil
}

// ReconcileGame закрывает текущую игру матча: оба счёта должны быть
// заполнены. Единственное правило - прямое сравнение счёта: равенство
// является ничьёй, иначе большее побеждает.
func ReconcileGame(match *models.Match) (*models.MatchGame, error) {
	game := NextGame(match)
	if game == nil {
		return nil, ErrGameNotOpen
	}
	if game.Opponent1.Score == nil || game.Opponent2.Score == nil {
		return nil, ErrScoresIncomplete
	}

	score1, score2 := *game.Opponent1.Score, *game.Opponent2.Score
	isDraw := score1 == score2
	opponent1Won := score1 > score2

	tag := func(slot int, result models.OpponentResult) error {
		score := score1
		if slot == 2 {
			score = score2
		}
		res := result
		return ApplyGameScore(match, game, slot, score, &res)
	}

	var err error
	switch {
	case isDraw:
		err = errors.Join(tag(1, models.ResultDraw), tag(2, models.ResultDraw))
	case opponent1Won:
		err = errors.Join(tag(1, models.ResultWin), tag(2, models.ResultLoss))
	default:
		err = errors.Join(tag(1, models.ResultLoss), tag(2, models.ResultWin))
	}
	if err != nil {
		return nil, err
	}

	game.Status = models.MatchCompleted

	if !tryCompleteMatch(match) {
		openNextGame(match)
	}
	return game, nil
}

// GamesWon counts completed games won per opponent slot. Draws count for
// neither side.
func GamesWon(match *models.Match) (int, int) {
	won1, won2 := 0, 0
	for i := range match.Games {
		game := &match.Games[i]
		if game.Status != models.MatchCompleted {
			continue
		}
		if game.Opponent1.Result != nil && *game.Opponent1.Result == models.ResultWin {
			won1++
		}
		if game.Opponent2.Result != nil && *game.Opponent2.Result == models.ResultWin {
			won2++
		}
	}
	return won1, won2
}

// tryCompleteMatch completes the match once a side holds the games-won
// majority, or once a sudden-death game ends with a winner. Returns true
// when the match is now completed.
func tryCompleteMatch(match *models.Match) bool {
	needed := match.ChildCount/2 + 1
	won1, won2 := GamesWon(match)
	if won1 < needed && won2 < needed && !suddenDeathDecided(match) {
		return false
	}

	// Решённый матч всегда имеет перевес хотя бы в одну победу: либо
	// большинство, либо единственная победа в sudden death поверх ничьих.
	win, loss := models.ResultWin, models.ResultLoss
	match.Opponent1.Score = &won1
	match.Opponent2.Score = &won2
	if won1 > won2 {
		match.Opponent1.Result = &win
		match.Opponent2.Result = &loss
	} else {
		match.Opponent1.Result = &loss
		match.Opponent2.Result = &win
	}
	match.Status = models.MatchCompleted
	return true
}

// suddenDeathDecided reports whether a game appended beyond the scheduled
// child_count has been completed with a winner. Such a game decides the
// match immediately: the games-won majority is unreachable once draws have
// eaten the scheduled games.
func suddenDeathDecided(match *models.Match) bool {
	for i := range match.Games {
		game := &match.Games[i]
		if game.Number <= match.ChildCount || game.Status != models.MatchCompleted {
			continue
		}
		if game.Opponent1.Result != nil && *game.Opponent1.Result != models.ResultDraw {
			return true
		}
	}
	return false
}

// openNextGame marks the lowest pending game ready. When every configured
// game has been played without a games-won majority (draws eat games), a
// sudden-death game is appended so the match can still be decided.
func openNextGame(match *models.Match) {
	for i := range match.Games {
		if match.Games[i].Status == models.MatchPending {
			match.Games[i].Status = models.MatchReady
			return
		}
	}
	match.Games = append(match.Games, models.MatchGame{
		MatchID: match.ID,
		Number:  len(match.Games) + 1,
		Status:  models.MatchReady,
	})
}

// AdvanceWinner propagates a completed match's winner into the slot of the
// match it feeds. Returns every match whose state changed: normally just the
// fed match, but when the fed match has a bye slot the winner passes through
// it automatically and the cascade continues upward. Returns nil when the
// completed match was the final. A fed match becomes ready (first game
// ready) once both of its opponents are known.
func AdvanceWinner(stage *models.Stage, match *models.Match) ([]*models.Match, error) {
	if match.Status != models.MatchCompleted {
		return nil, fmt.Errorf("cannot advance from match %d: not completed", match.Number)
	}

	roundIdx, matchIdx := -1, -1
	for r := range stage.Rounds {
		for m := range stage.Rounds[r].Matches {
			if stage.Rounds[r].Matches[m].Number == match.Number {
				roundIdx, matchIdx = r, m
			}
		}
	}
	if roundIdx == -1 {
		return nil, ErrMatchNotInStage
	}
	if roundIdx == len(stage.Rounds)-1 {
		return nil, nil // final: nothing to feed
	}

	winnerID := match.WinnerParticipantID()
	if winnerID == nil {
		return nil, fmt.Errorf("completed match %d has no winner", match.Number)
	}

	target := &stage.Rounds[roundIdx+1].Matches[matchIdx/2]
	slot := target.Opponent1
	if matchIdx%2 == 1 {
		slot = target.Opponent2
	}
	if slot == nil {
		return nil, fmt.Errorf("match %d feeds a bye slot of match %d", match.Number, target.Number)
	}

	id := *winnerID
	slot.ParticipantID = &id

	updated := []*models.Match{target}
	switch {
	case target.IsBye():
		// Вторая сторона - bye: автопобеда и каскад дальше наверх.
		win := models.ResultWin
		slot.Result = &win
		target.Status = models.MatchCompleted
		more, err := AdvanceWinner(stage, target)
		if err != nil {
			return nil, err
		}
		updated = append(updated, more...)

	case target.Status == models.MatchPending && bothKnown(target):
		setMatchReady(target)
	}
	return updated, nil
}

// StageWinner returns the participant id that won the stage, or nil while
// the final is still open.
func StageWinner(stage *models.Stage) *int {
	if len(stage.Rounds) == 0 {
		return nil
	}
	final := stage.Rounds[len(stage.Rounds)-1]
	if len(final.Matches) != 1 {
		return nil
	}
	if final.Matches[0].Status != models.MatchCompleted {
		return nil
	}
	return final.Matches[0].WinnerParticipantID()
}
