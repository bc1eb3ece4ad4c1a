package statusboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/twitch"
	"golang.org/x/sync/errgroup"

	"github.com/koc-community/tournament-system/brackets"
)

const helixStreamsURL = "https://api.twitch.tv/helix/streams"

// Stream - активный стрим отслеживаемого канала.
type Stream struct {
	Login       string    `json:"login"`
	Title       string    `json:"title"`
	GameName    string    `json:"game_name"`
	ViewerCount int       `json:"viewer_count"`
	StartedAt   time.Time `json:"started_at"`
}

type StreamTrackerConfig struct {
	ClientID     string
	ClientSecret string
	// Logins - отслеживаемые каналы сообщества.
	Logins   []string
	Interval time.Duration
}

// StreamTracker опрашивает Twitch Helix и рассылает событие, когда канал
// из списка выходит в эфир. Токен приложения обновляется автоматически
// через client credentials flow.
type StreamTracker struct {
	cfg        StreamTrackerConfig
	httpClient *http.Client
	hub        *brackets.Hub
	logger     *slog.Logger

	mu   sync.Mutex
	live map[string]bool // login -> был ли в эфире на прошлом опросе
}

func NewStreamTracker(ctx context.Context, cfg StreamTrackerConfig, hub *brackets.Hub, logger *slog.Logger) *StreamTracker {
	oauthCfg := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     twitch.Endpoint.TokenURL,
	}
	return &StreamTracker{
		cfg:        cfg,
		httpClient: oauthCfg.Client(ctx),
		hub:        hub,
		logger:     logger,
		live:       make(map[string]bool),
	}
}

// Run блокируется до отмены контекста.
func (t *StreamTracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	t.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.poll(ctx)
		}
	}
}

func (t *StreamTracker) poll(ctx context.Context) {
	// Helix принимает до 100 логинов на запрос, каналов у сообщества
	// меньше, но чанки дешёвые. Чанки опрашиваются параллельно.
	const chunkSize = 100

	var (
		mu      sync.Mutex
		streams []Stream
	)

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(t.cfg.Logins); start += chunkSize {
		end := start + chunkSize
		if end > len(t.cfg.Logins) {
			end = len(t.cfg.Logins)
		}
		chunk := t.cfg.Logins[start:end]

		g.Go(func() error {
			part, err := t.fetchStreams(gctx, chunk)
			if err != nil {
				return err
			}
			mu.Lock()
			streams = append(streams, part...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.logger.Warn("stream poll failed", slog.Any("error", err))
		return
	}

	t.announce(streams)
}

// announce рассылает STREAM_LIVE только при переходе оффлайн -> эфир.
func (t *StreamTracker) announce(streams []Stream) {
	nowLive := make(map[string]bool, len(streams))
	for _, s := range streams {
		nowLive[s.Login] = true
	}

	t.mu.Lock()
	var started []Stream
	for _, s := range streams {
		if !t.live[s.Login] {
			started = append(started, s)
		}
	}
	t.live = nowLive
	t.mu.Unlock()

	for _, s := range started {
		t.logger.Info("stream went live",
			slog.String("login", s.Login),
			slog.String("game", s.GameName),
		)
		t.hub.BroadcastToRoom(StatusBoardRoom, brackets.EventStreamLive, s)
	}
}

func (t *StreamTracker) fetchStreams(ctx context.Context, logins []string) ([]Stream, error) {
	query := url.Values{}
	for _, login := range logins {
		query.Add("user_login", login)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, helixStreamsURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build helix request: %w", err)
	}
	req.Header.Set("Client-Id", t.cfg.ClientID)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("helix request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("helix returned status %d", resp.StatusCode)
	}

	var payload struct {
		Data []struct {
			UserLogin   string    `json:"user_login"`
			Title       string    `json:"title"`
			GameName    string    `json:"game_name"`
			ViewerCount int       `json:"viewer_count"`
			StartedAt   time.Time `json:"started_at"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode helix response: %w", err)
	}

	streams := make([]Stream, 0, len(payload.Data))
	for _, d := range payload.Data {
		streams = append(streams, Stream{
			Login:       d.UserLogin,
			Title:       d.Title,
			GameName:    d.GameName,
			ViewerCount: d.ViewerCount,
			StartedAt:   d.StartedAt,
		})
	}
	return streams, nil
}
