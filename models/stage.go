package models

import "time"

const StageTypeSingleElimination = "single_elimination"

// StageSettings - настройки, с которыми была сгенерирована сетка.
// Хранятся рядом со стадией как JSON.
type StageSettings struct {
	// MatchChildCount is the default number of games per match (best-of-N).
	MatchChildCount int `json:"match_child_count"`
	// BalanceByes spreads bye slots across the first round instead of
	// stacking them at the bottom of the seeding.
	BalanceByes bool `json:"balance_byes"`
}

type Stage struct {
	ID           int           `json:"id" db:"id"`
	TournamentID int           `json:"tournament_id" db:"tournament_id"`
	Name         string        `json:"name" db:"name"`
	Type         string        `json:"type" db:"type"`
	Settings     StageSettings `json:"settings" db:"settings"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`

	Rounds []Round `json:"rounds,omitempty" db:"-"`
}

type Round struct {
	ID      int `json:"id" db:"id"`
	StageID int `json:"stage_id" db:"stage_id"`
	Number  int `json:"number" db:"number"`

	Matches []Match `json:"matches,omitempty" db:"-"`
}
