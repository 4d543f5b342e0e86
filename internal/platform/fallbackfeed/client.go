// Package fallbackfeed is the REST client for the external player feed used
// to fill in metadata the chain does not carry.
package fallbackfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/sportfun/internal/domain"
)

// Client fetches the player list for one sport.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a feed client.
//
// baseURL is the feed root; the sport is passed as the "sport" query
// parameter, e.g. "https://feed.example.com/players?sport=nfl".
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// apiPlayer tolerates numbers or strings for the id and supply fields.
type apiPlayer struct {
	TokenID     json.Number `json:"tokenId"`
	Name        string      `json:"name"`
	Position    string      `json:"position"`
	Team        string      `json:"team"`
	Supply      json.Number `json:"supply"`
	Image       string      `json:"image"`
	IsTradeable *bool       `json:"isTradeable"`
}

type apiResponse struct {
	Source     string      `json:"source"`
	AgeSeconds int64       `json:"ageSeconds"`
	Players    []apiPlayer `json:"players"`
}

// Players returns the feed for sport.
func (c *Client) Players(ctx context.Context, sport domain.Sport) (*domain.FallbackFeed, error) {
	params := url.Values{}
	params.Set("sport", string(sport))

	body, err := c.doGet(ctx, "?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("fallbackfeed: players %s: %w", sport, err)
	}

	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.UseNumber()
	var resp apiResponse
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("fallbackfeed: decode players: %w", err)
	}

	feed := &domain.FallbackFeed{
		Source:     resp.Source,
		AgeSeconds: resp.AgeSeconds,
		Players:    make([]domain.FallbackPlayer, 0, len(resp.Players)),
	}
	if feed.Source == "" {
		feed.Source = "fallback"
	}
	for _, p := range resp.Players {
		id := p.TokenID.String()
		if id == "" || id == "0" {
			continue
		}
		feed.Players = append(feed.Players, domain.FallbackPlayer{
			TokenID:     id,
			Name:        strings.TrimSpace(p.Name),
			Position:    strings.TrimSpace(p.Position),
			Team:        strings.TrimSpace(p.Team),
			Supply:      p.Supply.String(),
			Image:       p.Image,
			IsTradeable: p.IsTradeable,
		})
	}
	return feed, nil
}

// doGet sends an unauthenticated GET request to the feed.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
