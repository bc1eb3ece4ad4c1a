package models

import "time"

// Brawler - игрок сообщества. Запись создаётся при первом обращении к
// системе, имя приходит из сервиса сообщества.
type Brawler struct {
	ID        int       `json:"id"`
	DiscordID string    `json:"discord_id"`
	Username  string    `json:"username"`
	TeamID    *int      `json:"team_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	Team *Team `json:"team,omitempty"`
}

func (b *Brawler) InTeam() bool {
	return b.TeamID != nil
}
