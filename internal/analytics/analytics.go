// Package analytics provides social media statistics sources.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Source is one social media channel with post statistics.
type Source interface {
	Name() string
	// NewPostsCount returns the number of posts published in [since, until).
	NewPostsCount(ctx context.Context, since, until time.Time) (int, error)
	// WeeklyTotalReachOfNewPosts returns the total reach of posts published in the week ending at endWeek.
	WeeklyTotalReachOfNewPosts(ctx context.Context, endWeek time.Time) (int, error)
}

// GatewayClient talks to the analytics HTTP gateway.
type GatewayClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewGatewayClient creates a gateway client. token is sent as a bearer token when set.
func NewGatewayClient(baseURL, token string, hc *http.Client) *GatewayClient {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &GatewayClient{baseURL: strings.TrimRight(baseURL, "/"), token: token, http: hc}
}

// Sources returns one Source per name, all served by this gateway.
func (g *GatewayClient) Sources(names []string) []Source {
	sources := make([]Source, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			sources = append(sources, &gatewaySource{gateway: g, name: n})
		}
	}
	return sources
}

type gatewaySource struct {
	gateway *GatewayClient
	name    string
}

func (s *gatewaySource) Name() string { return s.name }

func (s *gatewaySource) NewPostsCount(ctx context.Context, since, until time.Time) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	params := url.Values{
		"source": {s.name},
		"since":  {since.Format(time.RFC3339)},
		"until":  {until.Format(time.RFC3339)},
	}
	if err := s.gateway.get(ctx, "/posts/count", params, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (s *gatewaySource) WeeklyTotalReachOfNewPosts(ctx context.Context, endWeek time.Time) (int, error) {
	var out struct {
		Reach int `json:"reach"`
	}
	params := url.Values{"source": {s.name}, "week_end": {endWeek.Format(time.RFC3339)}}
	if err := s.gateway.get(ctx, "/posts/reach", params, &out); err != nil {
		return 0, err
	}
	return out.Reach, nil
}

func (g *GatewayClient) get(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("analytics: build request: %w", err)
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("analytics: GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("analytics: GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("analytics: decode %s: %w", path, err)
	}
	return nil
}
