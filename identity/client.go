package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

var (
	ErrProfileNotFound = errors.New("identity: profile not found")
	ErrUnavailable     = errors.New("identity: service unavailable")
)

// Profile - запись о пользователе в сервисе сообщества.
type Profile struct {
	DiscordID string `json:"discord_id"`
	Username  string `json:"username"`
	Linked    bool   `json:"linked"`
}

// GameServer is one of the community's game servers shown on the status
// board.
type GameServer struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Online  bool   `json:"online"`
	Players int    `json:"players"`
}

// Client talks to the community identity service over HTTP. The service
// owns the discord-to-game-account link; the tournament system never
// stores credentials itself.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

func NewClient(baseURL, apiToken string) *Client {
	return &Client{
		baseURL:  baseURL,
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ResolveProfile возвращает профиль по discord id. ErrProfileNotFound
// означает, что аккаунт не привязан.
func (c *Client) ResolveProfile(ctx context.Context, discordID string) (*Profile, error) {
	endpoint := fmt.Sprintf("%s/v1/profiles/%s", c.baseURL, url.PathEscape(discordID))

	var profile Profile
	if err := c.getJSON(ctx, endpoint, &profile); err != nil {
		return nil, err
	}
	if !profile.Linked {
		return nil, ErrProfileNotFound
	}
	return &profile, nil
}

// ListGameServers returns the community's game servers with live player
// counts.
func (c *Client) ListGameServers(ctx context.Context) ([]GameServer, error) {
	endpoint := fmt.Sprintf("%s/v1/servers", c.baseURL)

	var servers []GameServer
	if err := c.getJSON(ctx, endpoint, &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("identity: failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrProfileNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("identity: unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("identity: failed to decode response: %w", err)
	}
	return nil
}
