package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koc-community/tournament-system/identity"
	"github.com/koc-community/tournament-system/models"
	"github.com/koc-community/tournament-system/repositories"
	"github.com/koc-community/tournament-system/storage"
)

type teamFixture struct {
	svc          *TeamService
	teams        *fakeTeamRepo
	brawlers     *fakeBrawlerRepo
	invites      *fakeInviteRepo
	participants *fakeParticipantRepo
	resolver     *fakeResolver
	uploader     *fakeUploader
}

func newTeamFixture() *teamFixture {
	teamRepo := newFakeTeamRepo()
	brawlerRepo := newFakeBrawlerRepo()
	inviteRepo := newFakeInviteRepo()
	participantRepo := newFakeParticipantRepo()
	resolver := &fakeResolver{profiles: map[string]*identity.Profile{}}
	uploader := newFakeUploader()

	brawlerService := NewBrawlerService(brawlerRepo, resolver, testLogger())
	svc := NewTeamService(
		nil, teamRepo, brawlerRepo, inviteRepo, participantRepo,
		brawlerService, uploader, testLogger(),
	)
	// Транзакционные пути исполняются без базы.
	svc.runTx = func(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
		return fn(nil)
	}

	return &teamFixture{
		svc:          svc,
		teams:        teamRepo,
		brawlers:     brawlerRepo,
		invites:      inviteRepo,
		participants: participantRepo,
		resolver:     resolver,
		uploader:     uploader,
	}
}

func (f *teamFixture) linkedUser(discordID, username string) {
	f.resolver.profiles[discordID] = &identity.Profile{
		DiscordID: discordID,
		Username:  username,
		Linked:    true,
	}
}

// teamWithOwner заводит команду с владельцем в обход сервиса, чтобы не
// ходить через транзакционный CreateTeam.
func (f *teamFixture) teamWithOwner(name, ownerDiscordID string) (*models.Team, *models.Brawler) {
	owner := f.brawlers.add(models.Brawler{DiscordID: ownerDiscordID, Username: ownerDiscordID})
	team := f.teams.add(models.Team{Name: name, OwnerID: owner.ID})
	f.brawlers.AssignTeam(context.Background(), nil, owner.ID, team.ID)
	owner.TeamID = &team.ID
	return team, owner
}

func (f *teamFixture) member(team *models.Team, discordID string) *models.Brawler {
	b := f.brawlers.add(models.Brawler{DiscordID: discordID, Username: discordID})
	f.brawlers.AssignTeam(context.Background(), nil, b.ID, team.ID)
	b.TeamID = &team.ID
	return b
}

func TestCreateTeamAssignsOwner(t *testing.T) {
	f := newTeamFixture()
	f.linkedUser("d-owner", "boss")

	team, err := f.svc.CreateTeam(context.Background(), "d-owner", "Alpha")
	require.NoError(t, err)
	require.NotNil(t, team.Owner)
	assert.Equal(t, team.OwnerID, team.Owner.ID)

	owner, err := f.brawlers.GetByDiscordID(context.Background(), "d-owner")
	require.NoError(t, err)
	require.NotNil(t, owner.TeamID)
	assert.Equal(t, team.ID, *owner.TeamID)
}

func TestCreateTeamDuplicateName(t *testing.T) {
	f := newTeamFixture()
	f.linkedUser("d-a", "first")
	f.linkedUser("d-b", "second")

	_, err := f.svc.CreateTeam(context.Background(), "d-a", "Alpha")
	require.NoError(t, err)

	_, err = f.svc.CreateTeam(context.Background(), "d-b", "alpha")
	assert.True(t, IsKind(err, KindTeamNameExists))
}

func TestDisbandTeamFreesMembers(t *testing.T) {
	f := newTeamFixture()
	team, _ := f.teamWithOwner("Alpha", "d-owner")
	member := f.member(team, "d-member")

	require.NoError(t, f.svc.DisbandTeam(context.Background(), "d-owner"))

	_, err := f.teams.GetByID(context.Background(), team.ID)
	assert.Error(t, err)
	freed, err := f.brawlers.GetByID(context.Background(), member.ID)
	require.NoError(t, err)
	assert.Nil(t, freed.TeamID)
}

func TestCreateTeamRejectsExistingMembership(t *testing.T) {
	f := newTeamFixture()
	f.linkedUser("d-owner", "boss")
	f.teamWithOwner("Alpha", "d-owner")

	_, err := f.svc.CreateTeam(context.Background(), "d-owner", "Bravo")
	assert.True(t, IsKind(err, KindAlreadyInATeam))
}

func TestCreateTeamRequiresLinkedAccount(t *testing.T) {
	f := newTeamFixture()
	_, err := f.svc.CreateTeam(context.Background(), "d-unknown", "Alpha")
	assert.True(t, IsKind(err, KindNoLinkedAccount))
}

func TestGetTeamForUserAttachesMembers(t *testing.T) {
	f := newTeamFixture()
	team, owner := f.teamWithOwner("Alpha", "d-owner")
	f.member(team, "d-member")

	loaded, err := f.svc.GetTeamForUser(context.Background(), "d-member")
	require.NoError(t, err)
	assert.Equal(t, team.ID, loaded.ID)
	assert.Len(t, loaded.Members, 2)
	require.NotNil(t, loaded.Owner)
	assert.Equal(t, owner.ID, loaded.Owner.ID)
}

func TestGetTeamForUserWithoutTeam(t *testing.T) {
	f := newTeamFixture()
	f.brawlers.add(models.Brawler{DiscordID: "d-solo", Username: "loner"})

	_, err := f.svc.GetTeamForUser(context.Background(), "d-solo")
	assert.True(t, IsKind(err, KindNotInATeam))
}

func TestGetTeamByNameIgnoresCase(t *testing.T) {
	f := newTeamFixture()
	f.teamWithOwner("Night Owls", "d-owner")

	loaded, err := f.svc.GetTeamByName(context.Background(), "night owls")
	require.NoError(t, err)
	assert.Equal(t, "Night Owls", loaded.Name)

	_, err = f.svc.GetTeamByName(context.Background(), "ghosts")
	assert.True(t, IsKind(err, KindRecordNotFound))
}

func TestCreateInviteOwnerOnly(t *testing.T) {
	f := newTeamFixture()
	team, _ := f.teamWithOwner("Alpha", "d-owner")
	f.member(team, "d-member")

	_, err := f.svc.CreateInvite(context.Background(), "d-member")
	assert.True(t, IsKind(err, KindNotTeamOwner))

	invite, err := f.svc.CreateInvite(context.Background(), "d-owner")
	require.NoError(t, err)
	assert.Equal(t, team.ID, invite.TeamID)
	assert.Len(t, invite.Token, 32)
	assert.WithinDuration(t, time.Now().Add(inviteTTL), invite.ExpiresAt, time.Minute)
}

func TestAcceptInviteJoinsTeam(t *testing.T) {
	f := newTeamFixture()
	f.linkedUser("d-new", "rookie")
	team, _ := f.teamWithOwner("Alpha", "d-owner")

	invite, err := f.svc.CreateInvite(context.Background(), "d-owner")
	require.NoError(t, err)

	joined, err := f.svc.AcceptInvite(context.Background(), "d-new", invite.Token)
	require.NoError(t, err)
	assert.Equal(t, team.ID, joined.ID)
	assert.Len(t, joined.Members, 2)
}

func TestAcceptInviteUnknownToken(t *testing.T) {
	f := newTeamFixture()
	f.linkedUser("d-new", "rookie")

	_, err := f.svc.AcceptInvite(context.Background(), "d-new", "deadbeef")
	assert.True(t, IsKind(err, KindRecordNotFound))
}

func TestAcceptInviteExpiredIsRemoved(t *testing.T) {
	f := newTeamFixture()
	f.linkedUser("d-new", "rookie")
	team, _ := f.teamWithOwner("Alpha", "d-owner")

	invite := &models.TeamInvite{
		TeamID:    team.ID,
		Token:     "expired-token",
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, f.invites.Create(context.Background(), invite))

	_, err := f.svc.AcceptInvite(context.Background(), "d-new", invite.Token)
	assert.True(t, IsKind(err, KindInviteExpired))

	// Просроченный токен сгорает при первой попытке.
	_, err = f.svc.AcceptInvite(context.Background(), "d-new", invite.Token)
	assert.True(t, IsKind(err, KindRecordNotFound))
}

func TestAcceptInviteWhileInTeam(t *testing.T) {
	f := newTeamFixture()
	team, _ := f.teamWithOwner("Alpha", "d-owner")
	f.teamWithOwner("Bravo", "d-other")
	f.member(team, "d-member")

	invite, err := f.svc.CreateInvite(context.Background(), "d-other")
	require.NoError(t, err)

	_, err = f.svc.AcceptInvite(context.Background(), "d-member", invite.Token)
	assert.True(t, IsKind(err, KindAlreadyInATeam))
}

func TestLeaveTeamMember(t *testing.T) {
	f := newTeamFixture()
	team, _ := f.teamWithOwner("Alpha", "d-owner")
	member := f.member(team, "d-member")

	require.NoError(t, f.svc.LeaveTeam(context.Background(), "d-member"))

	b, err := f.brawlers.GetByID(context.Background(), member.ID)
	require.NoError(t, err)
	assert.Nil(t, b.TeamID)
}

func TestLeaveTeamOwnerMustDisband(t *testing.T) {
	f := newTeamFixture()
	f.teamWithOwner("Alpha", "d-owner")

	err := f.svc.LeaveTeam(context.Background(), "d-owner")
	assert.True(t, IsKind(err, KindIsTeamOwner))
}

func TestLeaveTeamBlockedByTeamSignups(t *testing.T) {
	f := newTeamFixture()
	team, _ := f.teamWithOwner("Alpha", "d-owner")
	member := f.member(team, "d-member")
	f.participants.teamOf[member.ID] = team.ID
	f.participants.activeForTeam[team.ID] = []int{7}

	err := f.svc.LeaveTeam(context.Background(), "d-member")
	assert.True(t, IsKind(err, KindActiveSignups))
}

func TestLeaveTeamBlockedByOwnSoloSignups(t *testing.T) {
	f := newTeamFixture()
	team, _ := f.teamWithOwner("Alpha", "d-owner")
	member := f.member(team, "d-member")
	// Личная заявка игрока держит его в команде, даже когда сама команда
	// никуда не заявлена.
	f.participants.activeForBrawler[member.ID] = []int{5}

	err := f.svc.LeaveTeam(context.Background(), "d-member")
	assert.True(t, IsKind(err, KindActiveSignups))
}

func TestLeaveTeamWithoutTeam(t *testing.T) {
	f := newTeamFixture()
	f.brawlers.add(models.Brawler{DiscordID: "d-solo", Username: "loner"})

	err := f.svc.LeaveTeam(context.Background(), "d-solo")
	assert.True(t, IsKind(err, KindNotInATeam))
}

func TestDisbandTeamBlockedByActiveSignups(t *testing.T) {
	f := newTeamFixture()
	team, _ := f.teamWithOwner("Alpha", "d-owner")
	f.participants.activeForTeam[team.ID] = []int{3}

	err := f.svc.DisbandTeam(context.Background(), "d-owner")
	assert.True(t, IsKind(err, KindActiveSignups))
}

func TestUploadLogoOwnerOnly(t *testing.T) {
	f := newTeamFixture()
	team, _ := f.teamWithOwner("Alpha", "d-owner")
	f.member(team, "d-member")

	_, err := f.svc.UploadLogo(context.Background(), "d-member", "image/png", ".png", strings.NewReader("png"))
	assert.True(t, IsKind(err, KindNotTeamOwner))
}

func TestUploadLogoReplacesPreviousObject(t *testing.T) {
	f := newTeamFixture()
	team, _ := f.teamWithOwner("Alpha", "d-owner")

	location, err := f.svc.UploadLogo(context.Background(), "d-owner", "image/png", ".png", strings.NewReader("v1"))
	require.NoError(t, err)
	assert.Contains(t, location, ".png")
	assert.Empty(t, f.uploader.deleted)

	// Перезаливка с другим расширением должна удалить старый объект.
	_, err = f.svc.UploadLogo(context.Background(), "d-owner", "image/jpeg", ".jpg", strings.NewReader("v2"))
	require.NoError(t, err)
	assert.Equal(t, []string{storage.TeamLogoKey(team.ID, ".png")}, f.uploader.deleted)

	updated, err := f.teams.GetByID(context.Background(), team.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.LogoKey)
	assert.Equal(t, storage.TeamLogoKey(team.ID, ".jpg"), *updated.LogoKey)
}

func TestUploadLogoSameKeyIsNotDeleted(t *testing.T) {
	f := newTeamFixture()
	f.teamWithOwner("Alpha", "d-owner")

	_, err := f.svc.UploadLogo(context.Background(), "d-owner", "image/png", ".png", strings.NewReader("v1"))
	require.NoError(t, err)
	_, err = f.svc.UploadLogo(context.Background(), "d-owner", "image/png", ".png", strings.NewReader("v2"))
	require.NoError(t, err)

	assert.Empty(t, f.uploader.deleted)
}

func TestRecordMatchOutcome(t *testing.T) {
	f := newTeamFixture()
	winner, _ := f.teamWithOwner("Alpha", "d-a")
	loser, _ := f.teamWithOwner("Bravo", "d-b")

	require.NoError(t, f.svc.RecordMatchOutcome(context.Background(), nil, winner.ID, loser.ID))
	require.NoError(t, f.svc.RecordMatchOutcome(context.Background(), nil, winner.ID, loser.ID))

	w, err := f.teams.GetByID(context.Background(), winner.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, w.Wins)
	assert.Equal(t, 0, w.Losses)

	l, err := f.teams.GetByID(context.Background(), loser.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, l.Wins)
	assert.Equal(t, 2, l.Losses)
}

func TestSweepExpiredInvites(t *testing.T) {
	f := newTeamFixture()
	team, _ := f.teamWithOwner("Alpha", "d-owner")

	fresh := &models.TeamInvite{TeamID: team.ID, Token: "fresh", ExpiresAt: time.Now().Add(time.Hour)}
	stale := &models.TeamInvite{TeamID: team.ID, Token: "stale", ExpiresAt: time.Now().Add(-time.Hour)}
	require.NoError(t, f.invites.Create(context.Background(), fresh))
	require.NoError(t, f.invites.Create(context.Background(), stale))

	f.svc.SweepExpiredInvites(context.Background())

	_, err := f.invites.GetByToken(context.Background(), "fresh")
	assert.NoError(t, err)
	_, err = f.invites.GetByToken(context.Background(), "stale")
	assert.Error(t, err)
}
