// Package statusboard следит за внешним миром сообщества: игровыми
// серверами и стримами. Снимки уходят подписчикам шлюза через hub.
package statusboard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/koc-community/tournament-system/brackets"
	"github.com/koc-community/tournament-system/identity"
)

// StatusBoardRoom - комната hub, куда уходят снимки статусных досок.
const StatusBoardRoom = "status-board"

// ServerSnapshot - снимок состояния игровых серверов на момент опроса.
type ServerSnapshot struct {
	Servers   []identity.GameServer `json:"servers"`
	FetchedAt time.Time             `json:"fetched_at"`
}

type serverLister interface {
	ListGameServers(ctx context.Context) ([]identity.GameServer, error)
}

// ServerStatusPoller периодически опрашивает игровые серверы и рассылает
// снимок. Последний удачный снимок доступен между опросами.
type ServerStatusPoller struct {
	lister   serverLister
	hub      *brackets.Hub
	interval time.Duration
	logger   *slog.Logger

	mu   sync.RWMutex
	last *ServerSnapshot
}

func NewServerStatusPoller(lister serverLister, hub *brackets.Hub, interval time.Duration, logger *slog.Logger) *ServerStatusPoller {
	return &ServerStatusPoller{
		lister:   lister,
		hub:      hub,
		interval: interval,
		logger:   logger,
	}
}

// Run блокируется до отмены контекста. Первый опрос выполняется сразу.
func (p *ServerStatusPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// Last возвращает последний удачный снимок, nil до первого опроса.
func (p *ServerStatusPoller) Last() *ServerSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

func (p *ServerStatusPoller) poll(ctx context.Context) {
	servers, err := p.lister.ListGameServers(ctx)
	if err != nil {
		// Сетевые сбои опроса не роняют процесс, доска просто устареет.
		p.logger.Warn("server status poll failed", slog.Any("error", err))
		return
	}

	snapshot := &ServerSnapshot{Servers: servers, FetchedAt: time.Now()}
	p.mu.Lock()
	p.last = snapshot
	p.mu.Unlock()

	p.hub.BroadcastToRoom(StatusBoardRoom, brackets.EventServerStatus, snapshot)
}
