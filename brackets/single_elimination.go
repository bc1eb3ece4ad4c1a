package brackets

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/koc-community/tournament-system/models"
)

var (
	ErrNotEnoughEntrants = errors.New("not enough entrants to generate a single elimination bracket (minimum 2)")
	ErrSeedingNotPadded  = errors.New("seeding length must be a power of two")
)

// NextPowerOfTwo returns the smallest power of two >= n.
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << uint(math.Ceil(math.Log2(float64(n))))
}

// PadSeeding appends BYE slots to the seeding until its length is the next
// power of two. Participant order is preserved.
func PadSeeding(participantIDs []int) Seeding {
	seeding := make(Seeding, 0, NextPowerOfTwo(len(participantIDs)))
	for i := range participantIDs {
		id := participantIDs[i]
		seeding = append(seeding, &id)
	}
	for len(seeding) < NextPowerOfTwo(len(participantIDs)) {
		seeding = append(seeding, nil)
	}
	return seeding
}

type SingleEliminationGenerator struct{}

func NewSingleEliminationGenerator() Generator {
	return &SingleEliminationGenerator{}
}

func (g *SingleEliminationGenerator) Name() string {
	return "SingleElimination"
}

// Generate builds the full padded tree: every slot of every round is
// materialized as a match, bye matches included. Byes are pre-resolved
// (the present opponent auto-wins and is already advanced into the next
// round), so the returned stage can be played immediately. Match numbers
// are assigned from a single counter across rounds, ascending.
func (g *SingleEliminationGenerator) Generate(ctx context.Context, params GenerateParams) (*models.Stage, error) {
	seeding := params.Seeding
	if params.Settings.BalanceByes {
		seeding = balanceByes(seeding)
	}

	n := entrantCount(seeding)
	if n < 2 {
		return nil, ErrNotEnoughEntrants
	}
	if len(seeding)&(len(seeding)-1) != 0 {
		return nil, ErrSeedingNotPadded
	}

	numRounds := int(math.Log2(float64(len(seeding))))
	stage := &models.Stage{
		TournamentID: params.Tournament.ID,
		Name:         params.Tournament.Title,
		Type:         models.StageTypeSingleElimination,
		Settings:     params.Settings,
		Rounds:       make([]models.Round, 0, numRounds),
	}

	// Слоты текущего раунда: nil - bye, ParticipantID == nil - победитель
	// ещё не определён.
	slots := make([]*models.Opponent, len(seeding))
	for i, id := range seeding {
		if id == nil {
			continue
		}
		pid := *id
		slots[i] = &models.Opponent{ParticipantID: &pid}
	}

	matchNumber := 0
	for r := 1; r <= numRounds; r++ {
		round := models.Round{Number: r}
		nextSlots := make([]*models.Opponent, 0, len(slots)/2)

		for i := 0; i < len(slots); i += 2 {
			matchNumber++
			match := models.Match{
				Number:     matchNumber,
				ChildCount: params.Settings.MatchChildCount,
				Status:     models.MatchPending,
				Opponent1:  slots[i],
				Opponent2:  slots[i+1],
			}

			switch {
			case match.Opponent1 == nil && match.Opponent2 == nil:
				// Double bye: the slot it feeds is a bye as well.
				match.Status = models.MatchCompleted
				nextSlots = append(nextSlots, nil)

			case match.IsBye():
				// Единственный участник проходит дальше без игры.
				present := match.Opponent1
				if present == nil {
					present = match.Opponent2
				}
				if present.ParticipantID != nil {
					win := models.ResultWin
					present.Result = &win
					match.Status = models.MatchCompleted
					advanced := *present.ParticipantID
					nextSlots = append(nextSlots, &models.Opponent{ParticipantID: &advanced})
				} else {
					// Сторона ещё не известна: матч закроется автопобедой,
					// когда снизу придёт победитель.
					nextSlots = append(nextSlots, &models.Opponent{})
				}

			default:
				match.Games = newGames(params.Settings.MatchChildCount)
				if bothKnown(&match) {
					setMatchReady(&match)
				}
				nextSlots = append(nextSlots, &models.Opponent{})
			}

			round.Matches = append(round.Matches, match)
		}

		stage.Rounds = append(stage.Rounds, round)
		slots = nextSlots
	}

	if len(slots) != 1 {
		return nil, fmt.Errorf("internal error: expected a single winner slot, got %d", len(slots))
	}
	return stage, nil
}

// balanceByes redistributes trailing BYE slots so that no first-round pair
// holds two of them: the first k pairs each get one bye, remaining entrants
// fill the rest in seeding order.
func balanceByes(seeding Seeding) Seeding {
	entrants := make([]*int, 0, len(seeding))
	byes := 0
	for _, s := range seeding {
		if s == nil {
			byes++
		} else {
			entrants = append(entrants, s)
		}
	}
	if byes == 0 || byes > len(seeding)/2 {
		return seeding
	}

	balanced := make(Seeding, 0, len(seeding))
	next := 0
	for pair := 0; pair < len(seeding)/2; pair++ {
		balanced = append(balanced, entrants[next])
		next++
		if pair < byes {
			balanced = append(balanced, nil)
		} else {
			balanced = append(balanced, entrants[next])
			next++
		}
	}
	return balanced
}

func entrantCount(seeding Seeding) int {
	n := 0
	for _, s := range seeding {
		if s != nil {
			n++
		}
	}
	return n
}

func bothKnown(m *models.Match) bool {
	return m.Opponent1 != nil && m.Opponent1.ParticipantID != nil &&
		m.Opponent2 != nil && m.Opponent2.ParticipantID != nil
}

func newGames(count int) []models.MatchGame {
	games := make([]models.MatchGame, count)
	for i := range games {
		games[i] = models.MatchGame{
			Number: i + 1,
			Status: models.MatchPending,
		}
	}
	return games
}

func setMatchReady(m *models.Match) {
	m.Status = models.MatchReady
	if len(m.Games) > 0 {
		m.Games[0].Status = models.MatchReady
	}
}

// OverrideFinalChildCount forces every match of the highest-numbered round
// to best-of-count, extending its games. Applied after generation so earlier
// rounds keep the stage default.
func OverrideFinalChildCount(stage *models.Stage, count int) {
	if len(stage.Rounds) == 0 {
		return
	}
	final := &stage.Rounds[len(stage.Rounds)-1]
	for i := range final.Matches {
		match := &final.Matches[i]
		match.ChildCount = count
		if match.IsBye() {
			continue
		}
		for len(match.Games) < count {
			match.Games = append(match.Games, models.MatchGame{
				Number: len(match.Games) + 1,
				Status: models.MatchPending,
			})
		}
		if match.Status == models.MatchReady && len(match.Games) > 0 &&
			match.Games[0].Status == models.MatchPending {
			match.Games[0].Status = models.MatchReady
		}
	}
}
