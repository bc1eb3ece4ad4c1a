// Package collectors хранит короткоживущие интерактивные сессии,
// привязанные к сообщениям-карточкам: пока организатор вводит счёт или
// листает доску, состояние диалога живёт здесь, а не в Discord.
package collectors

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultTTL = 15 * time.Minute

// Session - одна интерактивная сессия на сообщение.
type Session struct {
	// ID - корреляционный идентификатор, попадает в custom_id компонентов
	// и в логи.
	ID        string
	MessageID string
	// Kind различает сценарии: score-entry, signup-board, status-board.
	Kind      string
	State     map[string]string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Registry - потокобезопасный реестр сессий по id сообщения. Одно
// сообщение держит не больше одной сессии: новая вытесняет старую.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	logger   *slog.Logger
}

func NewRegistry(ttl time.Duration, logger *slog.Logger) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		logger:   logger,
	}
}

// Open создаёт сессию для сообщения, заменяя существующую.
func (r *Registry) Open(messageID, kind string) *Session {
	now := time.Now()
	session := &Session{
		ID:        uuid.NewString(),
		MessageID: messageID,
		Kind:      kind,
		State:     make(map[string]string),
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}

	r.mu.Lock()
	r.sessions[messageID] = session
	r.mu.Unlock()

	r.logger.Debug("collector session opened",
		slog.String("session_id", session.ID),
		slog.String("message_id", messageID),
		slog.String("kind", kind),
	)
	return session
}

// Get возвращает живую сессию сообщения. Просроченная сессия удаляется и
// не возвращается.
func (r *Registry) Get(messageID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[messageID]
	if !ok {
		return nil, false
	}
	if session.Expired(time.Now()) {
		delete(r.sessions, messageID)
		return nil, false
	}
	return session, true
}

// Touch продлевает сессию на полный TTL.
func (r *Registry) Touch(messageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[messageID]
	if !ok || session.Expired(time.Now()) {
		delete(r.sessions, messageID)
		return false
	}
	session.ExpiresAt = time.Now().Add(r.ttl)
	return true
}

// Close снимает сессию с сообщения.
func (r *Registry) Close(messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, messageID)
}

// Len возвращает число живых сессий.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep удаляет просроченные сессии, возвращает число удалённых.
// Запускается планировщиком.
func (r *Registry) Sweep() int {
	now := time.Now()

	r.mu.Lock()
	removed := 0
	for messageID, session := range r.sessions {
		if session.Expired(now) {
			delete(r.sessions, messageID)
			removed++
		}
	}
	r.mu.Unlock()

	if removed > 0 {
		r.logger.Debug("collector sessions swept", slog.Int("removed", removed))
	}
	return removed
}
