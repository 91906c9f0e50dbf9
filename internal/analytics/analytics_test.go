package analytics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGatewaySources(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, "no", http.StatusUnauthorized)
			return
		}
		q := r.URL.Query()
		switch r.URL.Path {
		case "/posts/count":
			if _, err := time.Parse(time.RFC3339, q.Get("since")); err != nil {
				http.Error(w, "bad since", http.StatusBadRequest)
				return
			}
			if q.Get("source") == "vk" {
				w.Write([]byte(`{"count":4}`))
				return
			}
			w.Write([]byte(`{"count":2}`))
		case "/posts/reach":
			w.Write([]byte(`{"reach":1500}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	sources := NewGatewayClient(srv.URL, "secret", nil).Sources([]string{"vk", " ", "telegram"})
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}

	now := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	count, err := sources[0].NewPostsCount(context.Background(), now.AddDate(0, 0, -7), now)
	if err != nil {
		t.Fatalf("NewPostsCount returned error: %v", err)
	}
	if count != 4 {
		t.Errorf("expected 4 posts for vk, got %d", count)
	}

	reach, err := sources[1].WeeklyTotalReachOfNewPosts(context.Background(), now)
	if err != nil {
		t.Fatalf("WeeklyTotalReachOfNewPosts returned error: %v", err)
	}
	if reach != 1500 || sources[1].Name() != "telegram" {
		t.Errorf("unexpected reach %d for %s", reach, sources[1].Name())
	}
}

func TestGatewayErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	src := NewGatewayClient(srv.URL, "", nil).Sources([]string{"vk"})[0]
	if _, err := src.NewPostsCount(context.Background(), time.Now(), time.Now()); err == nil {
		t.Error("expected error on 502")
	}
}
