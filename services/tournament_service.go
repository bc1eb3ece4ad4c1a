package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/koc-community/tournament-system/brackets"
	"github.com/koc-community/tournament-system/models"
	"github.com/koc-community/tournament-system/repositories"
)

const (
	defaultMatchChildCount = 3
	finalMatchChildCount   = 5
	minParticipants        = 2
)

// validTransitions - единственный источник правды о жизненном цикле
// турнира. Всё, чего здесь нет, отклоняется как invalid transition,
// включая повтор текущего статуса.
var validTransitions = map[models.TournamentStatus][]models.TournamentStatus{
	models.TournamentCreated:      {models.TournamentSignupOpen},
	models.TournamentSignupOpen:   {models.TournamentSignupClosed, models.TournamentInProgress},
	models.TournamentSignupClosed: {models.TournamentSignupOpen, models.TournamentInProgress},
	models.TournamentInProgress:   {models.TournamentFinished},
	models.TournamentFinished:     {},
}

func transitionAllowed(from, to models.TournamentStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

type TournamentService struct {
	runTx           txRunner
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	brawlerRepo     repositories.BrawlerRepository
	teamRepo        repositories.TeamRepository
	stageRepo       repositories.StageRepository
	brawlers        *BrawlerService
	generator       brackets.Generator
	hub             *brackets.Hub
	logger          *slog.Logger
}

func NewTournamentService(
	db *sql.DB,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	brawlerRepo repositories.BrawlerRepository,
	teamRepo repositories.TeamRepository,
	stageRepo repositories.StageRepository,
	brawlers *BrawlerService,
	generator brackets.Generator,
	hub *brackets.Hub,
	logger *slog.Logger,
) *TournamentService {
	return &TournamentService{
		runTx:           runInTx(db),
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		brawlerRepo:     brawlerRepo,
		teamRepo:        teamRepo,
		stageRepo:       stageRepo,
		brawlers:        brawlers,
		generator:       generator,
		hub:             hub,
		logger:          logger,
	}
}

// CreateTournament создаёт турнир в статусе CREATED. team_size = 1 делает
// турнир одиночным.
func (s *TournamentService) CreateTournament(ctx context.Context, title, description string, teamSize int, serverID string) (*models.Tournament, error) {
	if teamSize < 1 {
		return nil, NewFailure(KindInternal, "team size must be at least 1")
	}

	t := &models.Tournament{
		Title:       title,
		Description: description,
		TeamSize:    teamSize,
		ServerID:    serverID,
		Status:      models.TournamentCreated,
	}
	if err := s.tournamentRepo.Create(ctx, t); err != nil {
		return nil, Internal(err)
	}

	s.logger.Info("tournament created",
		slog.Int("tournament_id", t.ID),
		slog.String("title", t.Title),
		slog.Int("team_size", t.TeamSize),
	)
	return t, nil
}

// GetTournament возвращает турнир с участниками в порядке регистрации.
func (s *TournamentService) GetTournament(ctx context.Context, id int) (*models.Tournament, error) {
	t, err := s.tournamentRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, NewFailure(KindRecordNotFound, "Tournament not found.")
		}
		return nil, Internal(err)
	}

	participants, err := s.participantRepo.ListByTournament(ctx, id)
	if err != nil {
		return nil, Internal(err)
	}
	t.Participants = participants
	return t, nil
}

// ListTournaments возвращает турниры в заданных статусах, по умолчанию все
// незавершённые.
func (s *TournamentService) ListTournaments(ctx context.Context, statuses ...models.TournamentStatus) ([]models.Tournament, error) {
	if len(statuses) == 0 {
		statuses = []models.TournamentStatus{
			models.TournamentCreated,
			models.TournamentSignupOpen,
			models.TournamentSignupClosed,
			models.TournamentInProgress,
		}
	}
	tournaments, err := s.tournamentRepo.ListByStatus(ctx, statuses...)
	if err != nil {
		return nil, Internal(err)
	}
	return tournaments, nil
}

// ChangeStatus переводит турнир по таблице переходов. Сам апдейт условный
// по исходному статусу, так что проигравший гонку переход отклоняется.
func (s *TournamentService) ChangeStatus(ctx context.Context, id int, to models.TournamentStatus) (*models.Tournament, error) {
	t, err := s.tournamentRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, NewFailure(KindRecordNotFound, "Tournament not found.")
		}
		return nil, Internal(err)
	}

	if !transitionAllowed(t.Status, to) {
		return nil, NewFailure(KindInvalidTransition,
			fmt.Sprintf("Cannot move the tournament from %s to %s.", t.Status, to))
	}

	if err := s.tournamentRepo.UpdateStatusFrom(ctx, nil, id, t.Status, to); err != nil {
		if errors.Is(err, repositories.ErrStatusConflict) {
			return nil, NewFailure(KindInvalidTransition, "The tournament status just changed. Check the board and try again.")
		}
		return nil, Internal(err)
	}

	s.logger.Info("tournament status changed",
		slog.Int("tournament_id", id),
		slog.String("from", string(t.Status)),
		slog.String("to", string(to)),
	)
	t.Status = to
	return t, nil
}

// Archive принудительно завершает турнир и очищает ссылки на сообщения
// досок. Работает из любого статуса.
func (s *TournamentService) Archive(ctx context.Context, id int) error {
	if err := s.tournamentRepo.Archive(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return NewFailure(KindRecordNotFound, "Tournament not found.")
		}
		return Internal(err)
	}
	s.logger.Info("tournament archived", slog.Int("tournament_id", id))
	return nil
}

// SignUp записывает пользователя (или его команду) на турнир. Заявки
// принимаются только в статусе SIGNUP_OPEN. В командном формате
// memberDiscordIDs - выбранный владельцем состав на этот турнир; пустой
// список снапшотит весь текущий состав команды.
func (s *TournamentService) SignUp(ctx context.Context, tournamentID int, discordID string, memberDiscordIDs []string) (*models.Participant, error) {
	t, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, NewFailure(KindRecordNotFound, "Tournament not found.")
		}
		return nil, Internal(err)
	}
	if t.Status != models.TournamentSignupOpen {
		return nil, NewFailure(KindSignupsClosed, "Signups for this tournament are closed.")
	}

	brawler, err := s.brawlers.ResolveOrCreate(ctx, discordID)
	if err != nil {
		return nil, err
	}

	participant := &models.Participant{TournamentID: tournamentID}
	if t.Solo() {
		participant.BrawlerID = &brawler.ID
	} else {
		team, err := s.resolveSignupTeam(ctx, t, brawler)
		if err != nil {
			return nil, err
		}
		roster, err := s.resolveRoster(ctx, team, memberDiscordIDs)
		if err != nil {
			return nil, err
		}
		participant.TeamID = &team.ID
		participant.RosterIDs = roster
	}

	// Уникальный индекс закрывает гонку двойной заявки: дубликат всплывёт
	// как конфликт, а не пройдёт мимо проверки.
	if err := s.participantRepo.Create(ctx, participant); err != nil {
		switch {
		case errors.Is(err, repositories.ErrParticipantConflict):
			return nil, NewFailure(KindAlreadySignedUp, "Already signed up for this tournament.")
		case errors.Is(err, repositories.ErrTournamentNotFound):
			return nil, NewFailure(KindRecordNotFound, "Tournament not found.")
		default:
			return nil, Internal(err)
		}
	}

	s.logger.Info("tournament signup",
		slog.Int("tournament_id", tournamentID),
		slog.String("discord_id", discordID),
		slog.Bool("solo", t.Solo()),
	)
	return participant, nil
}

func (s *TournamentService) resolveSignupTeam(ctx context.Context, t *models.Tournament, brawler *models.Brawler) (*models.Team, error) {
	if !brawler.InTeam() {
		return nil, NewFailure(KindNotInATeam, "You need a team to sign up for this tournament.")
	}
	team, err := s.teamRepo.GetByID(ctx, *brawler.TeamID)
	if err != nil {
		return nil, Internal(err)
	}
	if team.OwnerID != brawler.ID {
		return nil, NewFailure(KindNotTeamOwner, "Only the team owner can sign the team up.")
	}

	members, err := s.brawlerRepo.ListByTeam(ctx, team.ID)
	if err != nil {
		return nil, Internal(err)
	}
	if len(members) < t.TeamSize {
		return nil, NewFailure(KindNotEnoughMembers,
			fmt.Sprintf("The team needs at least %d members for this tournament.", t.TeamSize))
	}
	return team, nil
}

// resolveRoster фиксирует состав заявки: каждый выбранный участник
// резолвится в бравлера и должен состоять в команде. Без явного выбора
// снапшотится весь текущий состав.
func (s *TournamentService) resolveRoster(ctx context.Context, team *models.Team, memberDiscordIDs []string) ([]int64, error) {
	if len(memberDiscordIDs) == 0 {
		members, err := s.brawlerRepo.ListByTeam(ctx, team.ID)
		if err != nil {
			return nil, Internal(err)
		}
		ids := make([]int64, 0, len(members))
		for i := range members {
			ids = append(ids, int64(members[i].ID))
		}
		return ids, nil
	}

	seen := make(map[int]bool, len(memberDiscordIDs))
	ids := make([]int64, 0, len(memberDiscordIDs))
	for _, memberDiscordID := range memberDiscordIDs {
		member, err := s.brawlers.ResolveOrCreate(ctx, memberDiscordID)
		if err != nil {
			return nil, err
		}
		if member.TeamID == nil || *member.TeamID != team.ID {
			return nil, NewFailure(KindNotInATeam,
				fmt.Sprintf("%s is not a member of your team.", member.Username))
		}
		if seen[member.ID] {
			continue
		}
		seen[member.ID] = true
		ids = append(ids, int64(member.ID))
	}
	return ids, nil
}

// Withdraw снимает заявку. Как и запись, снятие возможно только пока
// заявки открыты.
func (s *TournamentService) Withdraw(ctx context.Context, tournamentID int, discordID string) error {
	t, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return NewFailure(KindRecordNotFound, "Tournament not found.")
		}
		return Internal(err)
	}
	if t.Status != models.TournamentSignupOpen {
		return NewFailure(KindSignupsClosed, "Signups for this tournament are closed.")
	}

	brawler, err := s.brawlers.GetByDiscordID(ctx, discordID)
	if err != nil {
		if IsKind(err, KindRecordNotFound) {
			return NewFailure(KindNotSignedUp, "You are not signed up for this tournament.")
		}
		return err
	}

	var participant *models.Participant
	if t.Solo() {
		participant, err = s.participantRepo.GetByBrawler(ctx, tournamentID, brawler.ID)
	} else {
		if !brawler.InTeam() {
			return NewFailure(KindNotSignedUp, "You are not signed up for this tournament.")
		}
		team, teamErr := s.teamRepo.GetByID(ctx, *brawler.TeamID)
		if teamErr != nil {
			return Internal(teamErr)
		}
		if team.OwnerID != brawler.ID {
			return NewFailure(KindNotTeamOwner, "Only the team owner can withdraw the team.")
		}
		participant, err = s.participantRepo.GetByTeam(ctx, tournamentID, team.ID)
	}
	if err != nil {
		if errors.Is(err, repositories.ErrParticipantNotFound) {
			return NewFailure(KindNotSignedUp, "You are not signed up for this tournament.")
		}
		return Internal(err)
	}

	if err := s.participantRepo.Delete(ctx, participant.ID); err != nil {
		if errors.Is(err, repositories.ErrParticipantNotFound) {
			return NewFailure(KindNotSignedUp, "You are not signed up for this tournament.")
		}
		return Internal(err)
	}

	s.logger.Info("tournament withdrawal",
		slog.Int("tournament_id", tournamentID),
		slog.String("discord_id", discordID),
	)
	return nil
}

// ListActiveSignups возвращает id незавершённых турниров, где пользователь
// заявлен лично или своей командой.
func (s *TournamentService) ListActiveSignups(ctx context.Context, discordID string) ([]int, error) {
	brawler, err := s.brawlers.GetByDiscordID(ctx, discordID)
	if err != nil {
		if IsKind(err, KindRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	ids, err := s.participantRepo.ListActiveTournamentIDsForBrawler(ctx, brawler.ID)
	if err != nil {
		return nil, Internal(err)
	}
	return ids, nil
}

// Start закрывает регистрацию и строит сетку single elimination. Сеяние -
// порядок подачи заявок, недостающие места до степени двойки добиваются
// bye. Финал играется до трёх побед, остальные матчи до двух.
func (s *TournamentService) Start(ctx context.Context, id int) (*models.Stage, error) {
	t, err := s.tournamentRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, NewFailure(KindRecordNotFound, "Tournament not found.")
		}
		return nil, Internal(err)
	}
	if t.Status != models.TournamentSignupOpen && t.Status != models.TournamentSignupClosed {
		return nil, NewFailure(KindInvalidTransition,
			fmt.Sprintf("Cannot start a tournament in status %s.", t.Status))
	}

	participants, err := s.participantRepo.ListByTournament(ctx, id)
	if err != nil {
		return nil, Internal(err)
	}
	if len(participants) < minParticipants {
		return nil, NewFailure(KindNotEnoughParticipants,
			fmt.Sprintf("At least %d participants are needed to start.", minParticipants))
	}

	seedIDs := make([]int, len(participants))
	for i := range participants {
		seedIDs[i] = participants[i].ID
	}

	stage, err := s.generator.Generate(ctx, brackets.GenerateParams{
		Tournament: t,
		Seeding:    brackets.PadSeeding(seedIDs),
		Settings: models.StageSettings{
			MatchChildCount: defaultMatchChildCount,
			BalanceByes:     true,
		},
	})
	if err != nil {
		return nil, Internal(err)
	}
	brackets.OverrideFinalChildCount(stage, finalMatchChildCount)

	err = s.runTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.stageRepo.CreateTree(ctx, exec, stage); err != nil {
			return Internal(err)
		}
		if err := s.tournamentRepo.SetStageID(ctx, exec, id, stage.ID); err != nil {
			return Internal(err)
		}
		if err := s.tournamentRepo.UpdateStatusFrom(ctx, exec, id, t.Status, models.TournamentInProgress); err != nil {
			if errors.Is(err, repositories.ErrStatusConflict) {
				return NewFailure(KindInvalidTransition, "The tournament status just changed. Check the board and try again.")
			}
			return Internal(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("tournament started",
		slog.Int("tournament_id", id),
		slog.Int("stage_id", stage.ID),
		slog.Int("participants", len(participants)),
	)
	s.hub.BroadcastToRoom(strconv.Itoa(id), brackets.EventBracketUpdated, stage)
	return stage, nil
}

// GetBracket возвращает полное дерево этапа турнира.
func (s *TournamentService) GetBracket(ctx context.Context, tournamentID int) (*models.Stage, error) {
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

// SetOrganizerMessageID запоминает сообщение-доску организатора.
func (s *TournamentService) SetOrganizerMessageID(ctx context.Context, id int, messageID *string) error {
	if err := s.tournamentRepo.SetOrganizerMessageID(ctx, id, messageID); err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return NewFailure(KindRecordNotFound, "Tournament not found.")
		}
		return Internal(err)
	}
	return nil
}

// SetSignupMessageID запоминает сообщение-доску записи.
func (s *TournamentService) SetSignupMessageID(ctx context.Context, id int, messageID *string) error {
	if err := s.tournamentRepo.SetSignupMessageID(ctx, id, messageID); err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return NewFailure(KindRecordNotFound, "Tournament not found.")
		}
		return Internal(err)
	}
	return nil
}
