package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/koc-community/tournament-system/models"
	"github.com/koc-community/tournament-system/repositories"
	"github.com/koc-community/tournament-system/storage"
)

const inviteTTL = 7 * 24 * time.Hour

type TeamService struct {
	runTx           txRunner
	teamRepo        repositories.TeamRepository
	brawlerRepo     repositories.BrawlerRepository
	inviteRepo      repositories.InviteRepository
	participantRepo repositories.ParticipantRepository
	brawlers        *BrawlerService
	uploader        storage.FileUploader
	logger          *slog.Logger
}

func NewTeamService(
	db *sql.DB,
	teamRepo repositories.TeamRepository,
	brawlerRepo repositories.BrawlerRepository,
	inviteRepo repositories.InviteRepository,
	participantRepo repositories.ParticipantRepository,
	brawlers *BrawlerService,
	uploader storage.FileUploader,
	logger *slog.Logger,
) *TeamService {
	return &TeamService{
		runTx:           runInTx(db),
		teamRepo:        teamRepo,
		brawlerRepo:     brawlerRepo,
		inviteRepo:      inviteRepo,
		participantRepo: participantRepo,
		brawlers:        brawlers,
		uploader:        uploader,
		logger:          logger,
	}
}

// CreateTeam создаёт команду и делает создателя её владельцем и первым
// участником. Имя уникально без учёта регистра.
func (s *TeamService) CreateTeam(ctx context.Context, discordID, name string) (*models.Team, error) {
	brawler, err := s.brawlers.ResolveOrCreate(ctx, discordID)
	if err != nil {
		return nil, err
	}
	if brawler.InTeam() {
		return nil, NewFailure(KindAlreadyInATeam, "You are already in a team. Leave it before creating a new one.")
	}

	team := &models.Team{Name: name, OwnerID: brawler.ID}

	err = s.runTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.teamRepo.Create(ctx, exec, team); err != nil {
			if errors.Is(err, repositories.ErrTeamNameConflict) {
				return NewFailure(KindTeamNameExists, fmt.Sprintf("A team named %q already exists.", name))
			}
			return Internal(err)
		}
		if err := s.brawlerRepo.AssignTeam(ctx, exec, brawler.ID, team.ID); err != nil {
			if errors.Is(err, repositories.ErrBrawlerAlreadyInTeam) {
				return NewFailure(KindAlreadyInATeam, "You are already in a team. Leave it before creating a new one.")
			}
			return Internal(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("team created",
		slog.Int("team_id", team.ID),
		slog.String("name", team.Name),
		slog.String("owner_discord_id", discordID),
	)
	team.Owner = brawler
	return team, nil
}

// GetTeamForUser возвращает команду бравлера вместе с составом.
func (s *TeamService) GetTeamForUser(ctx context.Context, discordID string) (*models.Team, error) {
	brawler, err := s.brawlers.GetByDiscordID(ctx, discordID)
	if err != nil {
		if IsKind(err, KindRecordNotFound) {
			return nil, NewFailure(KindNotInATeam, "You are not in a team.")
		}
		return nil, err
	}
	if !brawler.InTeam() {
		return nil, NewFailure(KindNotInATeam, "You are not in a team.")
	}
	return s.loadTeam(ctx, *brawler.TeamID)
}

// GetTeamByName ищет команду по имени без учёта регистра.
func (s *TeamService) GetTeamByName(ctx context.Context, name string) (*models.Team, error) {
	team, err := s.teamRepo.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, NewFailure(KindRecordNotFound, fmt.Sprintf("Team %q not found.", name))
		}
		return nil, Internal(err)
	}
	return s.attachMembers(ctx, team)
}

// CreateInvite генерирует одноразовую ссылку-приглашение в команду.
// Только владелец может приглашать.
func (s *TeamService) CreateInvite(ctx context.Context, discordID string) (*models.TeamInvite, error) {
	team, err := s.assertIsTeamOwner(ctx, discordID)
	if err != nil {
		return nil, err
	}

	token, err := newInviteToken()
	if err != nil {
		return nil, Internal(err)
	}

	invite := &models.TeamInvite{
		TeamID:    team.ID,
		Token:     token,
		ExpiresAt: time.Now().Add(inviteTTL),
	}
	if err := s.inviteRepo.Create(ctx, invite); err != nil {
		return nil, Internal(err)
	}

	s.logger.Info("team invite created", slog.Int("team_id", team.ID))
	return invite, nil
}

// AcceptInvite вступает в команду по токену приглашения. Просроченное
// приглашение удаляется при первой попытке использования.
func (s *TeamService) AcceptInvite(ctx context.Context, discordID, token string) (*models.Team, error) {
	brawler, err := s.brawlers.ResolveOrCreate(ctx, discordID)
	if err != nil {
		return nil, err
	}
	if brawler.InTeam() {
		return nil, NewFailure(KindAlreadyInATeam, "You are already in a team. Leave it before joining another.")
	}

	invite, err := s.inviteRepo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repositories.ErrInviteNotFound) {
			return nil, NewFailure(KindRecordNotFound, "This invite doesn't exist.")
		}
		return nil, Internal(err)
	}
	if time.Now().After(invite.ExpiresAt) {
		if err := s.inviteRepo.Delete(ctx, invite.ID); err != nil && !errors.Is(err, repositories.ErrInviteNotFound) {
			return nil, Internal(err)
		}
		return nil, NewFailure(KindInviteExpired, "This invite has expired. Ask the team owner for a new one.")
	}

	if err := s.brawlerRepo.AssignTeam(ctx, nil, brawler.ID, invite.TeamID); err != nil {
		if errors.Is(err, repositories.ErrBrawlerAlreadyInTeam) {
			return nil, NewFailure(KindAlreadyInATeam, "You are already in a team. Leave it before joining another.")
		}
		return nil, Internal(err)
	}

	s.logger.Info("brawler joined team",
		slog.Int("team_id", invite.TeamID),
		slog.String("discord_id", discordID),
	)
	return s.loadTeam(ctx, invite.TeamID)
}

// LeaveTeam выводит бравлера из команды. Владелец не может выйти, только
// распустить. Выход запрещён, пока команда заявлена в активных турнирах.
func (s *TeamService) LeaveTeam(ctx context.Context, discordID string) error {
	brawler, err := s.brawlers.GetByDiscordID(ctx, discordID)
	if err != nil {
		if IsKind(err, KindRecordNotFound) {
			return NewFailure(KindNotInATeam, "You are not in a team.")
		}
		return err
	}
	if !brawler.InTeam() {
		return NewFailure(KindNotInATeam, "You are not in a team.")
	}

	team, err := s.teamRepo.GetByID(ctx, *brawler.TeamID)
	if err != nil {
		return Internal(err)
	}
	if team.OwnerID == brawler.ID {
		return NewFailure(KindIsTeamOwner, "You own this team. Disband it instead of leaving.")
	}

	// Проверяются заявки самого игрока: личные и через его команду.
	ids, err := s.participantRepo.ListActiveTournamentIDsForBrawler(ctx, brawler.ID)
	if err != nil {
		return Internal(err)
	}
	if len(ids) > 0 {
		return NewFailure(KindActiveSignups, "You are signed up for active tournaments. Withdraw from them first.")
	}

	if err := s.brawlerRepo.ClearTeam(ctx, nil, brawler.ID); err != nil {
		return Internal(err)
	}

	s.logger.Info("brawler left team",
		slog.Int("team_id", team.ID),
		slog.String("discord_id", discordID),
	)
	return nil
}

// DisbandTeam распускает команду владельца: участники освобождаются,
// команда удаляется. Запрещено при активных заявках.
func (s *TeamService) DisbandTeam(ctx context.Context, discordID string) error {
	team, err := s.assertIsTeamOwner(ctx, discordID)
	if err != nil {
		return err
	}

	if err := s.assertNoActiveSignups(ctx, team.ID); err != nil {
		return err
	}

	if err := s.runTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.brawlerRepo.ClearTeamForAll(ctx, exec, team.ID); err != nil {
			return Internal(err)
		}
		if err := s.teamRepo.Delete(ctx, exec, team.ID); err != nil {
			return Internal(err)
		}
		return nil
	}); err != nil {
		return err
	}

	s.logger.Info("team disbanded",
		slog.Int("team_id", team.ID),
		slog.String("name", team.Name),
	)
	return nil
}

// UploadLogo загружает логотип команды во внешнее хранилище. Доступно
// только владельцу.
func (s *TeamService) UploadLogo(ctx context.Context, discordID, contentType, ext string, file io.Reader) (string, error) {
	if s.uploader == nil {
		return "", NewFailure(KindInternal, "logo storage is not configured")
	}

	team, err := s.assertIsTeamOwner(ctx, discordID)
	if err != nil {
		return "", err
	}

	oldKey := team.LogoKey

	key := storage.TeamLogoKey(team.ID, ext)
	result, err := s.uploader.Upload(ctx, key, contentType, file)
	if err != nil {
		return "", Internal(err)
	}
	if err := s.teamRepo.SetLogoKey(ctx, team.ID, result.Key); err != nil {
		return "", Internal(err)
	}

	// Логотип с другим расширением оставил бы осиротевший объект в бакете.
	if oldKey != nil && *oldKey != result.Key {
		if err := s.uploader.Delete(ctx, *oldKey); err != nil {
			s.logger.Warn("failed to delete previous team logo",
				slog.Int("team_id", team.ID),
				slog.String("key", *oldKey),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("team logo uploaded",
		slog.Int("team_id", team.ID),
		slog.String("key", result.Key),
	)
	return result.Location, nil
}

// RecordMatchOutcome обновляет счётчики побед и поражений двух команд
// после завершённого матча. Вызывается внутри транзакции матча.
func (s *TeamService) RecordMatchOutcome(ctx context.Context, exec repositories.SQLExecutor, winnerTeamID, loserTeamID int) error {
	if err := s.teamRepo.BumpRecord(ctx, exec, winnerTeamID, 1, 0); err != nil {
		return fmt.Errorf("failed to record win: %w", err)
	}
	if err := s.teamRepo.BumpRecord(ctx, exec, loserTeamID, 0, 1); err != nil {
		return fmt.Errorf("failed to record loss: %w", err)
	}
	return nil
}

// SweepExpiredInvites удаляет просроченные приглашения. Запускается
// планировщиком.
func (s *TeamService) SweepExpiredInvites(ctx context.Context) {
	n, err := s.inviteRepo.DeleteExpired(ctx, time.Now())
	if err != nil {
		s.logger.Error("invite sweep failed", slog.Any("error", err))
		return
	}
	if n > 0 {
		s.logger.Info("expired invites removed", slog.Int64("count", n))
	}
}

// assertIsTeamOwner возвращает команду, если бравлер - её владелец.
func (s *TeamService) assertIsTeamOwner(ctx context.Context, discordID string) (*models.Team, error) {
	brawler, err := s.brawlers.GetByDiscordID(ctx, discordID)
	if err != nil {
		if IsKind(err, KindRecordNotFound) {
			return nil, NewFailure(KindNotInATeam, "You are not in a team.")
		}
		return nil, err
	}
	if !brawler.InTeam() {
		return nil, NewFailure(KindNotInATeam, "You are not in a team.")
	}

	team, err := s.teamRepo.GetByID(ctx, *brawler.TeamID)
	if err != nil {
		return nil, Internal(err)
	}
	if team.OwnerID != brawler.ID {
		return nil, NewFailure(KindNotTeamOwner, "Only the team owner can do that.")
	}
	return team, nil
}

func (s *TeamService) assertNoActiveSignups(ctx context.Context, teamID int) error {
	ids, err := s.participantRepo.ListActiveTournamentIDsForTeam(ctx, teamID)
	if err != nil {
		return Internal(err)
	}
	if len(ids) > 0 {
		return NewFailure(KindActiveSignups, "The team is signed up for active tournaments. Withdraw from them first.")
	}
	return nil
}

func (s *TeamService) loadTeam(ctx context.Context, teamID int) (*models.Team, error) {
	team, err := s.teamRepo.GetByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, NewFailure(KindRecordNotFound, "Team not found.")
		}
		return nil, Internal(err)
	}
	return s.attachMembers(ctx, team)
}

func (s *TeamService) attachMembers(ctx context.Context, team *models.Team) (*models.Team, error) {
	members, err := s.brawlerRepo.ListByTeam(ctx, team.ID)
	if err != nil {
		return nil, Internal(err)
	}
	team.Members = members
	for i := range members {
		if members[i].ID == team.OwnerID {
			team.Owner = &members[i]
			break
		}
	}
	if s.uploader != nil && team.LogoKey != nil {
		url := s.uploader.GetPublicURL(*team.LogoKey)
		team.LogoURL = &url
	}
	return team, nil
}

func newInviteToken() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate invite token: %w", err)
	}
	return hex.EncodeToString(raw), nil
}
