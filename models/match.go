package models

import "time"

// MatchStatus describes the progression of a match or a single game.
// Transitions are linear: pending → ready → running → completed.
type MatchStatus string

const (
	MatchPending   MatchStatus = "pending"
	MatchReady     MatchStatus = "ready"
	MatchRunning   MatchStatus = "running"
	MatchCompleted MatchStatus = "completed"
)

// OpponentResult - исход для одной стороны матча или игры.
type OpponentResult string

const (
	ResultWin  OpponentResult = "win"
	ResultLoss OpponentResult = "loss"
	ResultDraw OpponentResult = "draw"
)

// Opponent is one side of a match or game. A nil *Opponent on a match is a
// BYE slot; a non-nil opponent with a nil ParticipantID is a "winner of a
// previous match" placeholder that has not been decided yet.
type Opponent struct {
	ParticipantID *int            `json:"participant_id,omitempty" db:"participant_id"`
	Score         *int            `json:"score,omitempty" db:"score"`
	Result        *OpponentResult `json:"result,omitempty" db:"result"`
}

// Match - узел сетки single elimination. Number сквозной в пределах
// стадии и возрастает по раундам, поэтому "матч с наименьшим номером"
// однозначен для всей сетки.
type Match struct {
	ID         int         `json:"id" db:"id"`
	StageID    int         `json:"stage_id" db:"stage_id"`
	RoundID    int         `json:"round_id" db:"round_id"`
	Number     int         `json:"number" db:"number"`
	ChildCount int         `json:"child_count" db:"child_count"`
	Status     MatchStatus `json:"status" db:"status"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`

	Opponent1 *Opponent `json:"opponent1" db:"-"`
	Opponent2 *Opponent `json:"opponent2" db:"-"`

	// Discord message currently rendering this match, if any.
	MessageID *string `json:"message_id,omitempty" db:"message_id"`

	Games []MatchGame `json:"games,omitempty" db:"-"`
}

// WinnerParticipantID returns the id of the winning participant once the
// match has completed, or nil.
func (m *Match) WinnerParticipantID() *int {
	for _, o := range []*Opponent{m.Opponent1, m.Opponent2} {
		if o != nil && o.Result != nil && *o.Result == ResultWin {
			return o.ParticipantID
		}
	}
	return nil
}

// LoserParticipantID returns the id of the eliminated participant once the
// match has completed, or nil. Bye matches have no loser.
func (m *Match) LoserParticipantID() *int {
	for _, o := range []*Opponent{m.Opponent1, m.Opponent2} {
		if o != nil && o.Result != nil && *o.Result == ResultLoss {
			return o.ParticipantID
		}
	}
	return nil
}

// IsBye reports whether the match has an empty slot and resolves without
// being played.
func (m *Match) IsBye() bool {
	return m.Opponent1 == nil || m.Opponent2 == nil
}

// MatchGame - одна игра внутри матча (best-of-N).
type MatchGame struct {
	ID        int         `json:"id" db:"id"`
	MatchID   int         `json:"match_id" db:"match_id"`
	Number    int         `json:"number" db:"number"`
	Status    MatchStatus `json:"status" db:"status"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`

	Opponent1 Opponent `json:"opponent1" db:"-"`
	Opponent2 Opponent `json:"opponent2" db:"-"`
}
