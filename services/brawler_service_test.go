package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koc-community/tournament-system/identity"
	"github.com/koc-community/tournament-system/models"
)

func TestResolveOrCreateReturnsExisting(t *testing.T) {
	repo := newFakeBrawlerRepo()
	resolver := &fakeResolver{profiles: map[string]*identity.Profile{}}
	svc := NewBrawlerService(repo, resolver, testLogger())

	existing := repo.add(models.Brawler{DiscordID: "d-1", Username: "veteran"})

	// Профиль сообщества не нужен, если бравлер уже известен.
	brawler, err := svc.ResolveOrCreate(context.Background(), "d-1")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, brawler.ID)
	assert.Equal(t, "veteran", brawler.Username)
}

func TestResolveOrCreateRequiresLinkedAccount(t *testing.T) {
	repo := newFakeBrawlerRepo()
	resolver := &fakeResolver{profiles: map[string]*identity.Profile{}}
	svc := NewBrawlerService(repo, resolver, testLogger())

	_, err := svc.ResolveOrCreate(context.Background(), "d-unknown")
	assert.True(t, IsKind(err, KindNoLinkedAccount))
}

func TestResolveOrCreateCreatesFromProfile(t *testing.T) {
	repo := newFakeBrawlerRepo()
	resolver := &fakeResolver{profiles: map[string]*identity.Profile{
		"d-new": {DiscordID: "d-new", Username: "rookie", Linked: true},
	}}
	svc := NewBrawlerService(repo, resolver, testLogger())

	brawler, err := svc.ResolveOrCreate(context.Background(), "d-new")
	require.NoError(t, err)
	assert.NotZero(t, brawler.ID)
	assert.Equal(t, "rookie", brawler.Username)

	stored, err := repo.GetByDiscordID(context.Background(), "d-new")
	require.NoError(t, err)
	assert.Equal(t, brawler.ID, stored.ID)
}

func TestGetByDiscordIDNotFound(t *testing.T) {
	repo := newFakeBrawlerRepo()
	svc := NewBrawlerService(repo, &fakeResolver{}, testLogger())

	_, err := svc.GetByDiscordID(context.Background(), "d-ghost")
	assert.True(t, IsKind(err, KindRecordNotFound))
}
