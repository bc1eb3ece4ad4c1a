package services

import (
	"errors"
	"fmt"
	"log/slog"
)

// FailureKind - машиночитаемый вид доменной ошибки. Шлюз показывает
// Message как есть для любых видов, кроме internal.
type FailureKind string

const (
	KindInternal FailureKind = "internal"

	KindRecordNotFound FailureKind = "record-not-found"

	// Team service
	KindAlreadyInATeam    FailureKind = "already-in-a-team"
	KindTeamNameExists    FailureKind = "team-name-already-exists"
	KindNotInATeam        FailureKind = "not-in-a-team"
	KindIsTeamOwner       FailureKind = "is-team-owner"
	KindNotTeamOwner      FailureKind = "not-team-owner"
	KindActiveSignups     FailureKind = "signed-up-for-active-tournaments"
	KindInviteExpired     FailureKind = "invite-expired"
	KindNoLinkedAccount   FailureKind = "no-linked-account"

	// Tournament lifecycle
	KindSignupsClosed         FailureKind = "signups-closed"
	KindAlreadySignedUp       FailureKind = "already-signed-up"
	KindNotSignedUp           FailureKind = "not-signed-up"
	KindNotEnoughMembers      FailureKind = "not-enough-members"
	KindNotEnoughParticipants FailureKind = "not-enough-participants"
	KindInvalidTransition     FailureKind = "invalid-transition"

	// Match flow
	KindScoresIncomplete FailureKind = "scores-incomplete"
)

// Failure - типизированная доменная ошибка: вид + сообщение для человека.
// Доменные ошибки - ожидаемый control flow и не логируются; internal
// логируется в момент создания.
type Failure struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// NewFailure создаёт доменную ошибку.
func NewFailure(kind FailureKind, message string) *Failure {
	return &Failure{Kind: kind, Message: message}
}

// Internal wraps an unexpected error. Logged at creation time, per the
// "expected vs. internal" split: callers never log these again.
func Internal(err error) *Failure {
	slog.Error("internal failure", slog.Any("error", err))
	return &Failure{Kind: KindInternal, Message: "something went wrong on our side", Err: err}
}

// KindOf returns the failure kind carried by err, or KindInternal for
// non-domain errors.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given failure kind.
func IsKind(err error, kind FailureKind) bool {
	return KindOf(err) == kind
}

// UserMessage maps an error to the text shown to the triggering user:
// domain failures carry their message verbatim, everything else gets a
// generic apology.
func UserMessage(err error) string {
	var f *Failure
	if errors.As(err, &f) && f.Kind != KindInternal {
		return f.Message
	}
	return "Something went wrong. Please try again later."
}
