package models

import "time"

// Participant - единица записи на турнир: либо один Brawler (соло),
// либо снапшот команды с выбранным составом (командный формат).
type Participant struct {
	ID           int  `json:"id" db:"id"`
	TournamentID int  `json:"tournament_id" db:"tournament_id"`
	BrawlerID    *int `json:"brawler_id,omitempty" db:"brawler_id"`
	TeamID       *int `json:"team_id,omitempty" db:"team_id"`
	// RosterIDs - снапшот состава на момент заявки (командный формат):
	// id бравлеров, выбранных владельцем для этого турнира.
	RosterIDs []int64   `json:"roster_brawler_ids,omitempty" db:"roster_brawler_ids"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	Brawler *Brawler `json:"brawler,omitempty" db:"-"`
	Team    *Team    `json:"team,omitempty" db:"-"`
}
