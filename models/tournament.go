package models

import "time"

// TournamentStatus представляет статусы турнира, соответствующие ENUM в БД.
type TournamentStatus string

const (
	TournamentCreated      TournamentStatus = "CREATED"
	TournamentSignupOpen   TournamentStatus = "SIGNUP_OPEN"
	TournamentSignupClosed TournamentStatus = "SIGNUP_CLOSED"
	TournamentInProgress   TournamentStatus = "IN_PROGRESS"
	TournamentFinished     TournamentStatus = "FINISHED"
)

// Tournament - корневой агрегат жизненного цикла.
// TeamSize == 1 означает соло формат, больше - командный.
type Tournament struct {
	ID          int              `json:"id" db:"id"`
	Title       string           `json:"title" db:"title"`
	Description string           `json:"description" db:"description"`
	TeamSize    int              `json:"team_size" db:"team_size"`
	ServerID    string           `json:"server_id" db:"server_id"`
	Status      TournamentStatus `json:"status" db:"status"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`

	// Managed Discord board surfaces; cleared on archive.
	OrganizerMessageID *string `json:"organizer_message_id,omitempty" db:"organizer_message_id"`
	SignupMessageID    *string `json:"signup_message_id,omitempty" db:"signup_message_id"`

	// Set once the bracket has been generated.
	StageID *int `json:"stage_id,omitempty" db:"stage_id"`

	Participants []Participant `json:"participants,omitempty" db:"-"`
	Stage        *Stage        `json:"stage,omitempty" db:"-"`
}

func (t *Tournament) Solo() bool {
	return t.TeamSize == 1
}
