package brackets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koc-community/tournament-system/models"
)

func intPtr(v int) *int { return &v }

func testTournament() *models.Tournament {
	return &models.Tournament{ID: 1, Title: "Weekly Cup", TeamSize: 1}
}

func generate(t *testing.T, participantIDs []int, settings models.StageSettings) *models.Stage {
	t.Helper()
	gen := NewSingleEliminationGenerator()
	stage, err := gen.Generate(context.Background(), GenerateParams{
		Tournament: testTournament(),
		Seeding:    PadSeeding(participantIDs),
		Settings:   settings,
	})
	require.NoError(t, err)
	return stage
}

func seq(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i + 100
	}
	return ids
}

func TestNextPowerOfTwo(t *testing.T) {
	cases := map[int]int{1: 1, 2: 2, 3: 4, 4: 4, 5: 8, 7: 8, 8: 8, 9: 16, 16: 16, 17: 32}
	for n, want := range cases {
		assert.Equal(t, want, NextPowerOfTwo(n), "n=%d", n)
	}
}

func TestPadSeedingAddsByes(t *testing.T) {
	seeding := PadSeeding([]int{1, 2, 3, 4, 5, 6})

	require.Len(t, seeding, 8)
	byes := 0
	for _, s := range seeding {
		if s == nil {
			byes++
		}
	}
	assert.Equal(t, 2, byes)
	// Порядок заявок сохраняется.
	assert.Equal(t, 1, *seeding[0])
	assert.Equal(t, 6, *seeding[5])
}

func TestGenerateRejectsTooFewEntrants(t *testing.T) {
	gen := NewSingleEliminationGenerator()
	_, err := gen.Generate(context.Background(), GenerateParams{
		Tournament: testTournament(),
		Seeding:    PadSeeding([]int{42}),
		Settings:   models.StageSettings{MatchChildCount: 3},
	})
	assert.ErrorIs(t, err, ErrNotEnoughEntrants)
}

func TestGenerateFullBracketShape(t *testing.T) {
	stage := generate(t, seq(8), models.StageSettings{MatchChildCount: 3})

	require.Len(t, stage.Rounds, 3)
	assert.Len(t, stage.Rounds[0].Matches, 4)
	assert.Len(t, stage.Rounds[1].Matches, 2)
	assert.Len(t, stage.Rounds[2].Matches, 1)

	// Номера матчей сквозные и строго возрастают по раундам.
	number := 0
	for _, round := range stage.Rounds {
		for _, match := range round.Matches {
			number++
			assert.Equal(t, number, match.Number)
		}
	}

	// Первый раунд полностью укомплектован и готов к игре.
	for _, match := range stage.Rounds[0].Matches {
		assert.Equal(t, models.MatchReady, match.Status)
		require.Len(t, match.Games, 3)
		assert.Equal(t, models.MatchReady, match.Games[0].Status)
		assert.Equal(t, models.MatchPending, match.Games[1].Status)
	}
	// Последующие раунды ждут победителей.
	for _, match := range stage.Rounds[1].Matches {
		assert.Equal(t, models.MatchPending, match.Status)
	}
}

func TestGenerateResolvesByes(t *testing.T) {
	// 7 участников -> 8 слотов, 1 bye в хвосте сеяния.
	stage := generate(t, seq(7), models.StageSettings{MatchChildCount: 3})

	firstRound := stage.Rounds[0].Matches
	require.Len(t, firstRound, 4)

	byeMatch := firstRound[3]
	require.True(t, byeMatch.IsBye())
	assert.Equal(t, models.MatchCompleted, byeMatch.Status)
	require.NotNil(t, byeMatch.WinnerParticipantID())
	assert.Empty(t, byeMatch.Games, "bye match needs no games")
	assert.Nil(t, byeMatch.LoserParticipantID())

	// Победитель bye уже проведён во второй раунд.
	fed := stage.Rounds[1].Matches[1]
	require.NotNil(t, fed.Opponent2)
	require.NotNil(t, fed.Opponent2.ParticipantID)
	assert.Equal(t, *byeMatch.WinnerParticipantID(), *fed.Opponent2.ParticipantID)
}

func TestGenerateUnbalancedDoubleBye(t *testing.T) {
	// 6 участников без балансировки: последняя пара сеяния - два bye,
	// победителя у неё нет, наверх уходит пустой слот.
	stage := generate(t, seq(6), models.StageSettings{MatchChildCount: 3})

	doubleBye := stage.Rounds[0].Matches[3]
	assert.Nil(t, doubleBye.Opponent1)
	assert.Nil(t, doubleBye.Opponent2)
	assert.Equal(t, models.MatchCompleted, doubleBye.Status)
	assert.Nil(t, doubleBye.WinnerParticipantID())

	// Матч второго раунда над двойным bye ждёт одного победителя снизу,
	// его вторая сторона - bye.
	fed := stage.Rounds[1].Matches[1]
	require.NotNil(t, fed.Opponent1)
	assert.Nil(t, fed.Opponent1.ParticipantID)
	assert.Nil(t, fed.Opponent2)
	assert.Equal(t, models.MatchPending, fed.Status)
}

func TestGenerateBalancedByes(t *testing.T) {
	stage := generate(t, seq(6), models.StageSettings{MatchChildCount: 3, BalanceByes: true})

	// При балансировке каждый bye уходит в свою пару: два матча первого
	// раунда закрыты автопобедой, двойного bye нет.
	byeMatches := 0
	for _, match := range stage.Rounds[0].Matches {
		if match.IsBye() {
			byeMatches++
			assert.Equal(t, models.MatchCompleted, match.Status)
			require.NotNil(t, match.WinnerParticipantID())
		}
	}
	assert.Equal(t, 2, byeMatches)
}

func TestGenerateDoubleByeFeedsEmptySlot(t *testing.T) {
	// 5 участников -> 3 bye: одна пара состоит из двух bye.
	stage := generate(t, seq(5), models.StageSettings{MatchChildCount: 3})

	var doubleBye *models.Match
	for i := range stage.Rounds[0].Matches {
		match := &stage.Rounds[0].Matches[i]
		if match.Opponent1 == nil && match.Opponent2 == nil {
			doubleBye = match
		}
	}
	require.NotNil(t, doubleBye)
	assert.Equal(t, models.MatchCompleted, doubleBye.Status)
	assert.Nil(t, doubleBye.WinnerParticipantID())

	// Матч из двух bye передаёт наверх пустой слот.
	idx := -1
	for i := range stage.Rounds[0].Matches {
		if stage.Rounds[0].Matches[i].Number == doubleBye.Number {
			idx = i
		}
	}
	target := stage.Rounds[1].Matches[idx/2]
	if idx%2 == 0 {
		assert.Nil(t, target.Opponent1)
	} else {
		assert.Nil(t, target.Opponent2)
	}
}

func TestOverrideFinalChildCount(t *testing.T) {
	stage := generate(t, seq(8), models.StageSettings{MatchChildCount: 3})
	OverrideFinalChildCount(stage, 5)

	final := stage.Rounds[len(stage.Rounds)-1].Matches[0]
	assert.Equal(t, 5, final.ChildCount)
	require.Len(t, final.Games, 5)
	for _, round := range stage.Rounds[:len(stage.Rounds)-1] {
		for _, match := range round.Matches {
			if !match.IsBye() {
				assert.Equal(t, 3, match.ChildCount)
			}
		}
	}
}
