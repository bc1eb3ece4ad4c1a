package services

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/koc-community/tournament-system/identity"
	"github.com/koc-community/tournament-system/models"
	"github.com/koc-community/tournament-system/repositories"
	"github.com/koc-community/tournament-system/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeResolver - подменный сервис сообщества.
type fakeResolver struct {
	profiles map[string]*identity.Profile
}

func (f *fakeResolver) ResolveProfile(_ context.Context, discordID string) (*identity.Profile, error) {
	p, ok := f.profiles[discordID]
	if !ok {
		return nil, identity.ErrProfileNotFound
	}
	return p, nil
}

type fakeBrawlerRepo struct {
	nextID   int
	brawlers map[int]*models.Brawler
}

func newFakeBrawlerRepo() *fakeBrawlerRepo {
	return &fakeBrawlerRepo{brawlers: map[int]*models.Brawler{}}
}

func (f *fakeBrawlerRepo) add(b models.Brawler) *models.Brawler {
	f.nextID++
	b.ID = f.nextID
	b.CreatedAt = time.Now()
	f.brawlers[b.ID] = &b
	return &b
}

func (f *fakeBrawlerRepo) Create(_ context.Context, b *models.Brawler) error {
	for _, existing := range f.brawlers {
		if existing.DiscordID == b.DiscordID {
			return repositories.ErrBrawlerDiscordConflict
		}
	}
	created := f.add(*b)
	*b = *created
	return nil
}

func (f *fakeBrawlerRepo) GetByID(_ context.Context, id int) (*models.Brawler, error) {
	b, ok := f.brawlers[id]
	if !ok {
		return nil, repositories.ErrBrawlerNotFound
	}
	copy := *b
	return &copy, nil
}

func (f *fakeBrawlerRepo) GetByDiscordID(_ context.Context, discordID string) (*models.Brawler, error) {
	for _, b := range f.brawlers {
		if b.DiscordID == discordID {
			copy := *b
			return &copy, nil
		}
	}
	return nil, repositories.ErrBrawlerNotFound
}

func (f *fakeBrawlerRepo) ListByTeam(_ context.Context, teamID int) ([]models.Brawler, error) {
	var members []models.Brawler
	for _, b := range f.brawlers {
		if b.TeamID != nil && *b.TeamID == teamID {
			members = append(members, *b)
		}
	}
	return members, nil
}

func (f *fakeBrawlerRepo) AssignTeam(_ context.Context, _ repositories.SQLExecutor, brawlerID, teamID int) error {
	b, ok := f.brawlers[brawlerID]
	if !ok || b.TeamID != nil {
		return repositories.ErrBrawlerAlreadyInTeam
	}
	id := teamID
	b.TeamID = &id
	return nil
}

func (f *fakeBrawlerRepo) ClearTeam(_ context.Context, _ repositories.SQLExecutor, brawlerID int) error {
	b, ok := f.brawlers[brawlerID]
	if !ok {
		return repositories.ErrBrawlerNotFound
	}
	b.TeamID = nil
	return nil
}

func (f *fakeBrawlerRepo) ClearTeamForAll(_ context.Context, _ repositories.SQLExecutor, teamID int) error {
	for _, b := range f.brawlers {
		if b.TeamID != nil && *b.TeamID == teamID {
			b.TeamID = nil
		}
	}
	return nil
}

type fakeTeamRepo struct {
	nextID int
	teams  map[int]*models.Team
}

func newFakeTeamRepo() *fakeTeamRepo {
	return &fakeTeamRepo{teams: map[int]*models.Team{}}
}

func (f *fakeTeamRepo) add(t models.Team) *models.Team {
	f.nextID++
	t.ID = f.nextID
	t.CreatedAt = time.Now()
	f.teams[t.ID] = &t
	return &t
}

func (f *fakeTeamRepo) Create(_ context.Context, _ repositories.SQLExecutor, team *models.Team) error {
	for _, existing := range f.teams {
		if strings.EqualFold(existing.Name, team.Name) {
			return repositories.ErrTeamNameConflict
		}
	}
	created := f.add(*team)
	*team = *created
	return nil
}

func (f *fakeTeamRepo) GetByID(_ context.Context, id int) (*models.Team, error) {
	t, ok := f.teams[id]
	if !ok {
		return nil, repositories.ErrTeamNotFound
	}
	copy := *t
	return &copy, nil
}

func (f *fakeTeamRepo) GetByName(_ context.Context, name string) (*models.Team, error) {
	for _, t := range f.teams {
		if strings.EqualFold(t.Name, name) {
			copy := *t
			return &copy, nil
		}
	}
	return nil, repositories.ErrTeamNotFound
}

func (f *fakeTeamRepo) Delete(_ context.Context, _ repositories.SQLExecutor, id int) error {
	if _, ok := f.teams[id]; !ok {
		return repositories.ErrTeamNotFound
	}
	delete(f.teams, id)
	return nil
}

func (f *fakeTeamRepo) BumpRecord(_ context.Context, _ repositories.SQLExecutor, id, winsDelta, lossesDelta int) error {
	t, ok := f.teams[id]
	if !ok {
		return repositories.ErrTeamNotFound
	}
	t.Wins += winsDelta
	t.Losses += lossesDelta
	return nil
}

func (f *fakeTeamRepo) SetLogoKey(_ context.Context, id int, logoKey string) error {
	t, ok := f.teams[id]
	if !ok {
		return repositories.ErrTeamNotFound
	}
	key := logoKey
	t.LogoKey = &key
	return nil
}

type fakeInviteRepo struct {
	nextID  int
	invites map[string]*models.TeamInvite
}

func newFakeInviteRepo() *fakeInviteRepo {
	return &fakeInviteRepo{invites: map[string]*models.TeamInvite{}}
}

func (f *fakeInviteRepo) Create(_ context.Context, invite *models.TeamInvite) error {
	if _, ok := f.invites[invite.Token]; ok {
		return repositories.ErrInviteTokenConflict
	}
	f.nextID++
	invite.ID = f.nextID
	invite.CreatedAt = time.Now()
	copy := *invite
	f.invites[invite.Token] = &copy
	return nil
}

func (f *fakeInviteRepo) GetByToken(_ context.Context, token string) (*models.TeamInvite, error) {
	invite, ok := f.invites[token]
	if !ok {
		return nil, repositories.ErrInviteNotFound
	}
	copy := *invite
	return &copy, nil
}

func (f *fakeInviteRepo) Delete(_ context.Context, id int) error {
	for token, invite := range f.invites {
		if invite.ID == id {
			delete(f.invites, token)
			return nil
		}
	}
	return repositories.ErrInviteNotFound
}

func (f *fakeInviteRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var removed int64
	for token, invite := range f.invites {
		if now.After(invite.ExpiresAt) {
			delete(f.invites, token)
			removed++
		}
	}
	return removed, nil
}

// fakeUploader хранит объекты в памяти и запоминает удалённые ключи.
type fakeUploader struct {
	objects map[string]string
	deleted []string
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{objects: map[string]string{}}
}

func (f *fakeUploader) Upload(_ context.Context, key, _ string, reader io.Reader) (*storage.UploadResult, error) {
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	f.objects[key] = string(body)
	return &storage.UploadResult{Key: key, Location: f.GetPublicURL(key)}, nil
}

func (f *fakeUploader) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeUploader) GetPublicURL(key string) string {
	return "https://cdn.test/" + key
}

type fakeParticipantRepo struct {
	nextID       int
	participants map[int]*models.Participant
	// активные турниры отдаются из этих срезов как есть
	activeForTeam    map[int][]int
	activeForBrawler map[int][]int
	// teamOf отражает членство бравлера для запроса "личные заявки плюс
	// заявки команды"
	teamOf map[int]int
}

func newFakeParticipantRepo() *fakeParticipantRepo {
	return &fakeParticipantRepo{
		participants:     map[int]*models.Participant{},
		activeForTeam:    map[int][]int{},
		activeForBrawler: map[int][]int{},
		teamOf:           map[int]int{},
	}
}

func (f *fakeParticipantRepo) Create(_ context.Context, p *models.Participant) error {
	for _, existing := range f.participants {
		if existing.TournamentID != p.TournamentID {
			continue
		}
		if p.BrawlerID != nil && existing.BrawlerID != nil && *existing.BrawlerID == *p.BrawlerID {
			return repositories.ErrParticipantConflict
		}
		if p.TeamID != nil && existing.TeamID != nil && *existing.TeamID == *p.TeamID {
			return repositories.ErrParticipantConflict
		}
	}
	f.nextID++
	p.ID = f.nextID
	p.CreatedAt = time.Now()
	copy := *p
	f.participants[p.ID] = &copy
	return nil
}

func (f *fakeParticipantRepo) Delete(_ context.Context, id int) error {
	if _, ok := f.participants[id]; !ok {
		return repositories.ErrParticipantNotFound
	}
	delete(f.participants, id)
	return nil
}

func (f *fakeParticipantRepo) GetByBrawler(_ context.Context, tournamentID, brawlerID int) (*models.Participant, error) {
	for _, p := range f.participants {
		if p.TournamentID == tournamentID && p.BrawlerID != nil && *p.BrawlerID == brawlerID {
			copy := *p
			return &copy, nil
		}
	}
	return nil, repositories.ErrParticipantNotFound
}

func (f *fakeParticipantRepo) GetByTeam(_ context.Context, tournamentID, teamID int) (*models.Participant, error) {
	for _, p := range f.participants {
		if p.TournamentID == tournamentID && p.TeamID != nil && *p.TeamID == teamID {
			copy := *p
			return &copy, nil
		}
	}
	return nil, repositories.ErrParticipantNotFound
}

func (f *fakeParticipantRepo) ListByTournament(_ context.Context, tournamentID int) ([]models.Participant, error) {
	var list []models.Participant
	for id := 1; id <= f.nextID; id++ {
		if p, ok := f.participants[id]; ok && p.TournamentID == tournamentID {
			list = append(list, *p)
		}
	}
	return list, nil
}

func (f *fakeParticipantRepo) ListActiveTournamentIDsForBrawler(_ context.Context, brawlerID int) ([]int, error) {
	ids := append([]int{}, f.activeForBrawler[brawlerID]...)
	if teamID, ok := f.teamOf[brawlerID]; ok {
		ids = append(ids, f.activeForTeam[teamID]...)
	}
	return ids, nil
}

func (f *fakeParticipantRepo) ListActiveTournamentIDsForTeam(_ context.Context, teamID int) ([]int, error) {
	return f.activeForTeam[teamID], nil
}

// fakeStageRepo раздаёт id по дереву так же, как это делает вставка в
// Postgres: стадия, затем раунды, матчи и игры по порядку.
type fakeStageRepo struct {
	nextStageID int
	nextID      int
	stages      map[int]*models.Stage
}

func newFakeStageRepo() *fakeStageRepo {
	return &fakeStageRepo{stages: map[int]*models.Stage{}}
}

func (f *fakeStageRepo) CreateTree(_ context.Context, _ repositories.SQLExecutor, stage *models.Stage) error {
	f.nextStageID++
	stage.ID = f.nextStageID
	for r := range stage.Rounds {
		round := &stage.Rounds[r]
		f.nextID++
		round.ID = f.nextID
		round.StageID = stage.ID
		for m := range round.Matches {
			match := &round.Matches[m]
			f.nextID++
			match.ID = f.nextID
			match.StageID = stage.ID
			match.RoundID = round.ID
			for g := range match.Games {
				game := &match.Games[g]
				f.nextID++
				game.ID = f.nextID
				game.MatchID = match.ID
			}
		}
	}
	f.stages[stage.ID] = stage
	return nil
}

func (f *fakeStageRepo) GetTree(_ context.Context, stageID int) (*models.Stage, error) {
	stage, ok := f.stages[stageID]
	if !ok {
		return nil, repositories.ErrStageNotFound
	}
	return stage, nil
}

// fakeMatchRepo не хранит собственного состояния матчей: дерево живёт в
// fakeStageRepo, апдейты видны через него. Счётчик id продолжает нумерацию
// стадии для игр, добавленных после генерации.
type fakeMatchRepo struct {
	stages   *fakeStageRepo
	messages map[int]*string
}

func newFakeMatchRepo(stages *fakeStageRepo) *fakeMatchRepo {
	return &fakeMatchRepo{stages: stages, messages: map[int]*string{}}
}

func (f *fakeMatchRepo) UpdateState(_ context.Context, _ repositories.SQLExecutor, _ *models.Match) error {
	return nil
}

func (f *fakeMatchRepo) UpdateGameState(_ context.Context, _ repositories.SQLExecutor, _ *models.MatchGame) error {
	return nil
}

func (f *fakeMatchRepo) CreateGame(_ context.Context, _ repositories.SQLExecutor, game *models.MatchGame) error {
	f.stages.nextID++
	game.ID = f.stages.nextID
	return nil
}

func (f *fakeMatchRepo) SetMessageID(_ context.Context, matchID int, messageID *string) error {
	f.messages[matchID] = messageID
	return nil
}

type fakeTournamentRepo struct {
	nextID      int
	tournaments map[int]*models.Tournament
}

func newFakeTournamentRepo() *fakeTournamentRepo {
	return &fakeTournamentRepo{tournaments: map[int]*models.Tournament{}}
}

func (f *fakeTournamentRepo) add(t models.Tournament) *models.Tournament {
	f.nextID++
	t.ID = f.nextID
	t.CreatedAt = time.Now()
	f.tournaments[t.ID] = &t
	return &t
}

func (f *fakeTournamentRepo) Create(_ context.Context, t *models.Tournament) error {
	created := f.add(*t)
	*t = *created
	return nil
}

func (f *fakeTournamentRepo) GetByID(_ context.Context, id int) (*models.Tournament, error) {
	t, ok := f.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	copy := *t
	return &copy, nil
}

func (f *fakeTournamentRepo) ListByStatus(_ context.Context, statuses ...models.TournamentStatus) ([]models.Tournament, error) {
	var list []models.Tournament
	for id := 1; id <= f.nextID; id++ {
		t, ok := f.tournaments[id]
		if !ok {
			continue
		}
		for _, s := range statuses {
			if t.Status == s {
				list = append(list, *t)
				break
			}
		}
	}
	return list, nil
}

func (f *fakeTournamentRepo) UpdateStatusFrom(_ context.Context, _ repositories.SQLExecutor, id int, from, to models.TournamentStatus) error {
	t, ok := f.tournaments[id]
	if !ok || t.Status != from {
		return repositories.ErrStatusConflict
	}
	t.Status = to
	return nil
}

func (f *fakeTournamentRepo) SetStageID(_ context.Context, _ repositories.SQLExecutor, id, stageID int) error {
	t, ok := f.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	sid := stageID
	t.StageID = &sid
	return nil
}

func (f *fakeTournamentRepo) SetOrganizerMessageID(_ context.Context, id int, messageID *string) error {
	t, ok := f.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.OrganizerMessageID = messageID
	return nil
}

func (f *fakeTournamentRepo) SetSignupMessageID(_ context.Context, id int, messageID *string) error {
	t, ok := f.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.SignupMessageID = messageID
	return nil
}

func (f *fakeTournamentRepo) Archive(_ context.Context, id int) error {
	t, ok := f.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Status = models.TournamentFinished
	t.OrganizerMessageID = nil
	t.SignupMessageID = nil
	return nil
}
