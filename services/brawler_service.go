package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/koc-community/tournament-system/identity"
	"github.com/koc-community/tournament-system/models"
	"github.com/koc-community/tournament-system/repositories"
)

// ProfileResolver отдаёт профиль сообщества по discord id.
type ProfileResolver interface {
	ResolveProfile(ctx context.Context, discordID string) (*identity.Profile, error)
}

type BrawlerService struct {
	brawlerRepo repositories.BrawlerRepository
	identity    ProfileResolver
	logger      *slog.Logger
}

func NewBrawlerService(
	brawlerRepo repositories.BrawlerRepository,
	resolver ProfileResolver,
	logger *slog.Logger,
) *BrawlerService {
	return &BrawlerService{
		brawlerRepo: brawlerRepo,
		identity:    resolver,
		logger:      logger,
	}
}

// ResolveOrCreate возвращает бравлера по discord id, создавая запись при
// первом обращении. Имя берётся из сервиса сообщества; непривязанный
// аккаунт - доменная ошибка, а не internal.
func (s *BrawlerService) ResolveOrCreate(ctx context.Context, discordID string) (*models.Brawler, error) {
	brawler, err := s.brawlerRepo.GetByDiscordID(ctx, discordID)
	if err == nil {
		return brawler, nil
	}
	if !errors.Is(err, repositories.ErrBrawlerNotFound) {
		return nil, Internal(err)
	}

	profile, err := s.identity.ResolveProfile(ctx, discordID)
	if err != nil {
		if errors.Is(err, identity.ErrProfileNotFound) {
			return nil, NewFailure(KindNoLinkedAccount, "You don't have a linked game account. Link it first, then try again.")
		}
		return nil, Internal(err)
	}

	brawler = &models.Brawler{
		DiscordID: discordID,
		Username:  profile.Username,
	}
	if err := s.brawlerRepo.Create(ctx, brawler); err != nil {
		// Параллельное создание: запись уже появилась, перечитываем.
		if errors.Is(err, repositories.ErrBrawlerDiscordConflict) {
			return s.getByDiscordID(ctx, discordID)
		}
		return nil, Internal(err)
	}

	s.logger.Info("brawler registered",
		slog.String("discord_id", discordID),
		slog.String("username", profile.Username),
	)
	return brawler, nil
}

// GetByDiscordID возвращает бравлера без создания.
func (s *BrawlerService) GetByDiscordID(ctx context.Context, discordID string) (*models.Brawler, error) {
	return s.getByDiscordID(ctx, discordID)
}

func (s *BrawlerService) getByDiscordID(ctx context.Context, discordID string) (*models.Brawler, error) {
	brawler, err := s.brawlerRepo.GetByDiscordID(ctx, discordID)
	if err != nil {
		if errors.Is(err, repositories.ErrBrawlerNotFound) {
			return nil, NewFailure(KindRecordNotFound, "Player not found.")
		}
		return nil, Internal(err)
	}
	return brawler, nil
}
