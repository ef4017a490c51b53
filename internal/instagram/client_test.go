package instagram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fpang/reel-scheduler/internal/jobutil"
)

// newTestClient creates a Client pointing at a test HTTP server.
func newTestClient(server *httptest.Server) *Client {
	return &Client{
		httpClient:  server.Client(),
		accessToken: "test-token",
		userID:      "12345",
		baseURL:     server.URL,
	}
}

func TestPublishReelFullSequence(t *testing.T) {
	var gotContainer, gotPublish bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/12345/media"):
			r.ParseForm()
			if r.Form.Get("media_type") != "REELS" {
				t.Errorf("media_type = %s, want REELS", r.Form.Get("media_type"))
			}
			if r.Form.Get("video_url") != "https://cdn.example.com/reel.mp4" {
				t.Errorf("unexpected video_url: %s", r.Form.Get("video_url"))
			}
			if r.Form.Get("cover_url") != "https://cdn.example.com/cover.jpg" {
				t.Errorf("unexpected cover_url: %s", r.Form.Get("cover_url"))
			}
			if r.Form.Get("idempotency_key") == "" {
				t.Error("idempotency_key missing from container create")
			}
			if r.Form.Get("share_to_feed") != "true" {
				t.Errorf("share_to_feed = %s, want true", r.Form.Get("share_to_feed"))
			}
			gotContainer = true
			json.NewEncoder(w).Encode(apiResponse{ID: "container-001"})

		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "container-001"):
			json.NewEncoder(w).Encode(containerStatusResponse{ID: "container-001", StatusCode: "FINISHED"})

		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/12345/media_publish"):
			r.ParseForm()
			if r.Form.Get("creation_id") != "container-001" {
				t.Errorf("creation_id = %s", r.Form.Get("creation_id"))
			}
			if r.Form.Get("idempotency_key") != "idem-abc" {
				t.Errorf("idempotency_key = %s", r.Form.Get("idempotency_key"))
			}
			gotPublish = true
			json.NewEncoder(w).Encode(apiResponse{ID: "media-777"})

		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "media-777"):
			json.NewEncoder(w).Encode(permalinkResponse{ID: "media-777", Permalink: "https://www.instagram.com/reel/xyz/"})

		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(server)
	result, err := client.PublishReel(context.Background(), PublishRequest{
		VideoURL:       "https://cdn.example.com/reel.mp4",
		CoverURL:       "https://cdn.example.com/cover.jpg",
		Caption:        "test caption #reels",
		IdempotencyKey: "idem-abc",
		ShareToFeed:    true,
	})
	if err != nil {
		t.Fatalf("PublishReel: %v", err)
	}
	if result.MediaID != "media-777" {
		t.Errorf("MediaID = %s", result.MediaID)
	}
	if result.Permalink != "https://www.instagram.com/reel/xyz/" {
		t.Errorf("Permalink = %s", result.Permalink)
	}
	if !gotContainer || !gotPublish {
		t.Errorf("sequence incomplete: container=%t publish=%t", gotContainer, gotPublish)
	}
}

func TestPublishReelContainerProcessingError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(apiResponse{ID: "container-001"})
			return
		}
		json.NewEncoder(w).Encode(containerStatusResponse{ID: "container-001", StatusCode: "ERROR"})
	}))
	defer server.Close()

	client := newTestClient(server)
	_, err := client.PublishReel(context.Background(), PublishRequest{VideoURL: "https://x/v.mp4"})
	if err == nil {
		t.Fatal("expected error for container processing failure")
	}
	if jobutil.KindOf(err) != jobutil.KindValidation {
		t.Errorf("kind = %s, want validation", jobutil.KindOf(err))
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		apiError   *apiErr
		want       jobutil.Kind
	}{
		{"expired token code 190", http.StatusBadRequest, &apiErr{Message: "token expired", Code: 190}, jobutil.KindAuth},
		{"http 401", http.StatusUnauthorized, &apiErr{Message: "unauthorized", Code: 0}, jobutil.KindAuth},
		{"app rate limit code 4", http.StatusBadRequest, &apiErr{Message: "too many calls", Code: 4}, jobutil.KindRateLimited},
		{"http 429", http.StatusTooManyRequests, &apiErr{Message: "slow down", Code: 0}, jobutil.KindRateLimited},
		{"bad media", http.StatusBadRequest, &apiErr{Message: "unsupported video format", Code: 352}, jobutil.KindValidation},
		{"server error", http.StatusInternalServerError, &apiErr{Message: "unknown", Code: 1}, jobutil.KindTransientNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				json.NewEncoder(w).Encode(apiResponse{Error: tt.apiError})
			}))
			defer server.Close()

			client := newTestClient(server)
			_, err := client.createReelContainer(context.Background(), PublishRequest{VideoURL: "https://x/v.mp4"})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := jobutil.KindOf(err); got != tt.want {
				t.Errorf("kind = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTransportErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	client := newTestClient(server)
	client.httpClient = &http.Client{Timeout: time.Second}
	_, err := client.createReelContainer(context.Background(), PublishRequest{VideoURL: "https://x/v.mp4"})
	if err == nil {
		t.Fatal("expected transport error")
	}
	if jobutil.KindOf(err) != jobutil.KindTransientNetwork {
		t.Errorf("kind = %s, want transient_network", jobutil.KindOf(err))
	}
}

func TestLookupPublished(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/12345/media") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("idempotency_key") != "idem-abc" {
			t.Errorf("idempotency_key = %s", r.URL.Query().Get("idempotency_key"))
		}
		json.NewEncoder(w).Encode(mediaListResponse{Data: []struct {
			ID        string `json:"id"`
			Permalink string `json:"permalink"`
		}{{ID: "media-777", Permalink: "https://www.instagram.com/reel/xyz/"}}})
	}))
	defer server.Close()

	client := newTestClient(server)
	result, found, err := client.LookupPublished(context.Background(), "idem-abc")
	if err != nil {
		t.Fatalf("LookupPublished: %v", err)
	}
	if !found {
		t.Fatal("expected a match")
	}
	if result.MediaID != "media-777" {
		t.Errorf("MediaID = %s", result.MediaID)
	}
}

func TestLookupPublishedNoMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(mediaListResponse{})
	}))
	defer server.Close()

	client := newTestClient(server)
	_, found, err := client.LookupPublished(context.Background(), "idem-missing")
	if err != nil {
		t.Fatalf("LookupPublished: %v", err)
	}
	if found {
		t.Error("expected no match")
	}
}

func TestRefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "refresh_access_token") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("grant_type") != "ig_refresh_token" {
			t.Errorf("grant_type = %s", r.URL.Query().Get("grant_type"))
		}
		json.NewEncoder(w).Encode(refreshResponse{AccessToken: "new-token", ExpiresIn: 5184000})
	}))
	defer server.Close()

	client := newTestClient(server)
	info, err := client.RefreshToken(context.Background())
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	if info.AccessToken != "new-token" {
		t.Errorf("AccessToken = %s", info.AccessToken)
	}
	if client.accessToken != "new-token" {
		t.Error("client did not adopt the refreshed token")
	}

	// Fresh tokens are left alone.
	refreshed, err := client.RefreshIfNeeded(context.Background(), time.Now().Add(30*24*time.Hour))
	if err != nil {
		t.Fatalf("RefreshIfNeeded: %v", err)
	}
	if refreshed != nil {
		t.Error("RefreshIfNeeded refreshed a fresh token")
	}
}
