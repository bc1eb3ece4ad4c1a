package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koc-community/tournament-system/brackets"
	"github.com/koc-community/tournament-system/identity"
	"github.com/koc-community/tournament-system/models"
	"github.com/koc-community/tournament-system/repositories"
)

type matchFixture struct {
	svc          *MatchService
	tournaments  *fakeTournamentRepo
	participants *fakeParticipantRepo
	stages       *fakeStageRepo
	matches      *fakeMatchRepo
	teams        *fakeTeamRepo
	brawlers     *fakeBrawlerRepo
}

func newMatchFixture() *matchFixture {
	tournamentRepo := newFakeTournamentRepo()
	participantRepo := newFakeParticipantRepo()
	stageRepo := newFakeStageRepo()
	matchRepo := newFakeMatchRepo(stageRepo)
	teamRepo := newFakeTeamRepo()
	brawlerRepo := newFakeBrawlerRepo()
	resolver := &fakeResolver{profiles: map[string]*identity.Profile{}}

	brawlerService := NewBrawlerService(brawlerRepo, resolver, testLogger())
	teamService := NewTeamService(
		nil, teamRepo, brawlerRepo, newFakeInviteRepo(), participantRepo,
		brawlerService, nil, testLogger(),
	)
	svc := NewMatchService(
		nil, tournamentRepo, participantRepo, stageRepo, matchRepo,
		teamService, brackets.NewHub(testLogger()), testLogger(),
	)
	// Транзакционные пути исполняются без базы.
	svc.runTx = func(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
		return fn(nil)
	}

	return &matchFixture{
		svc:          svc,
		tournaments:  tournamentRepo,
		participants: participantRepo,
		stages:       stageRepo,
		matches:      matchRepo,
		teams:        teamRepo,
		brawlers:     brawlerRepo,
	}
}

// startedSoloTournament готовит идущий турнир на два участника с уже
// построенной сеткой из одного матча best-of-3.
func (f *matchFixture) startedSoloTournament(t *testing.T) (*models.Tournament, *models.Stage) {
	t.Helper()

	tournament := f.tournaments.add(models.Tournament{
		Title:    "cup",
		TeamSize: 1,
		ServerID: "guild-1",
		Status:   models.TournamentInProgress,
	})

	var seedIDs []int
	for _, name := range []string{"one", "two"} {
		b := f.brawlers.add(models.Brawler{DiscordID: "d-" + name, Username: name})
		p := &models.Participant{TournamentID: tournament.ID, BrawlerID: &b.ID}
		require.NoError(t, f.participants.Create(context.Background(), p))
		seedIDs = append(seedIDs, p.ID)
	}

	stage, err := brackets.NewSingleEliminationGenerator().Generate(context.Background(), brackets.GenerateParams{
		Tournament: tournament,
		Seeding:    brackets.PadSeeding(seedIDs),
		Settings:   models.StageSettings{MatchChildCount: 3, BalanceByes: true},
	})
	require.NoError(t, err)
	require.NoError(t, f.stages.CreateTree(context.Background(), nil, stage))
	require.NoError(t, f.tournaments.SetStageID(context.Background(), nil, tournament.ID, stage.ID))

	return tournament, stage
}

func (f *matchFixture) playGame(t *testing.T, tournamentID, matchID, score1, score2 int) *models.Match {
	t.Helper()
	_, err := f.svc.RecordGameScore(context.Background(), tournamentID, matchID, 1, score1)
	require.NoError(t, err)
	_, err = f.svc.RecordGameScore(context.Background(), tournamentID, matchID, 2, score2)
	require.NoError(t, err)
	match, err := f.svc.FinishGame(context.Background(), tournamentID, matchID)
	require.NoError(t, err)
	return match
}

func TestNextMatchAndGameOnFreshBracket(t *testing.T) {
	f := newMatchFixture()
	tournament, stage := f.startedSoloTournament(t)

	match, err := f.svc.NextMatch(context.Background(), tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, stage.Rounds[0].Matches[0].ID, match.ID)

	game, err := f.svc.NextGame(context.Background(), tournament.ID, match.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, game.Number)
}

func TestFinishGameClosesGameAndOpensNext(t *testing.T) {
	f := newMatchFixture()
	tournament, stage := f.startedSoloTournament(t)
	matchID := stage.Rounds[0].Matches[0].ID

	match := f.playGame(t, tournament.ID, matchID, 3, 1)
	assert.Equal(t, models.MatchRunning, match.Status)
	assert.Equal(t, models.MatchCompleted, match.Games[0].Status)
	assert.Equal(t, models.MatchReady, match.Games[1].Status)
}

func TestFinishGameCompletesMatchAndTournament(t *testing.T) {
	f := newMatchFixture()
	tournament, stage := f.startedSoloTournament(t)
	matchID := stage.Rounds[0].Matches[0].ID
	firstSeed := *stage.Rounds[0].Matches[0].Opponent1.ParticipantID

	f.playGame(t, tournament.ID, matchID, 3, 1)
	match := f.playGame(t, tournament.ID, matchID, 2, 0)

	assert.Equal(t, models.MatchCompleted, match.Status)
	require.NotNil(t, match.WinnerParticipantID())
	assert.Equal(t, firstSeed, *match.WinnerParticipantID())

	finished, err := f.tournaments.GetByID(context.Background(), tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TournamentFinished, finished.Status)
}

func TestFinishGameWithoutScores(t *testing.T) {
	f := newMatchFixture()
	tournament, stage := f.startedSoloTournament(t)
	matchID := stage.Rounds[0].Matches[0].ID

	_, err := f.svc.FinishGame(context.Background(), tournament.ID, matchID)
	assert.True(t, IsKind(err, KindScoresIncomplete))
}

func TestRecordScoreUnknownMatch(t *testing.T) {
	f := newMatchFixture()
	tournament, _ := f.startedSoloTournament(t)

	_, err := f.svc.RecordGameScore(context.Background(), tournament.ID, 999, 1, 2)
	assert.True(t, IsKind(err, KindRecordNotFound))
}
