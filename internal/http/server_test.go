package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"soundfetch/internal/core"
)

type fakeResolver struct {
	track      *core.TrackMetadata
	collection *core.CollectionMetadata
	err        error

	lastURL string
}

func (f *fakeResolver) ResolveTrack(_ context.Context, rawURL string) (*core.TrackMetadata, error) {
	f.lastURL = rawURL
	return f.track, f.err
}

func (f *fakeResolver) ResolveAlbum(_ context.Context, rawURL string) (*core.CollectionMetadata, error) {
	f.lastURL = rawURL
	return f.collection, f.err
}

func (f *fakeResolver) ResolvePlaylist(_ context.Context, rawURL string) (*core.CollectionMetadata, error) {
	f.lastURL = rawURL
	return f.collection, f.err
}

type fakeSearcher struct {
	candidate *core.SearchCandidate
	err       error
}

func (f *fakeSearcher) FindBestMatch(context.Context, string, string) (*core.SearchCandidate, error) {
	return f.candidate, f.err
}

type fakeStreamer struct {
	payload []byte
	// failAfter aborts the stream after writing this many bytes of payload;
	// negative means no failure.
	failAfter int
}

func (f *fakeStreamer) Stream(_ context.Context, _ string, w io.Writer) error {
	if f.failAfter == 0 {
		return errors.New("exit status 1")
	}
	if f.failAfter > 0 && f.failAfter < len(f.payload) {
		_, _ = w.Write(f.payload[:f.failAfter])
		return errors.New("exit status 1")
	}
	_, err := w.Write(f.payload)
	return err
}

type serverFixture struct {
	resolver *fakeResolver
	searcher *fakeSearcher
	streamer *fakeStreamer
	flood    *core.FloodConfig
}

func newTestServer(t *testing.T, fix serverFixture) *Server {
	t.Helper()

	if fix.resolver == nil {
		fix.resolver = &fakeResolver{}
	}
	if fix.searcher == nil {
		fix.searcher = &fakeSearcher{candidate: &core.SearchCandidate{Locator: "https://youtube.com/watch?v=abc"}}
	}
	if fix.streamer == nil {
		fix.streamer = &fakeStreamer{payload: []byte("mp3 bytes"), failAfter: -1}
	}
	if fix.flood == nil {
		fix.flood = &core.FloodConfig{
			RequestsPerMinute:      1000,
			TrackRequestsPerMinute: 1000,
			DownloadsPerHour:       1000,
		}
	}

	s := NewServer(
		&core.ServerConfig{Host: "127.0.0.1", Port: 0, ReadTimeout: 10 * time.Second},
		fix.flood,
		fix.resolver,
		fix.searcher,
		fix.streamer,
		NewMetrics(prometheus.NewRegistry()),
		zap.NewNop(),
	)
	t.Cleanup(s.stopGates)
	return s
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "10.0.0.1:54321"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_TestRoute(t *testing.T) {
	s := newTestServer(t, serverFixture{})

	rec := doRequest(s, http.MethodGet, "/api/test", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["message"] != "Backend is connected!" {
		t.Errorf("message = %q", body["message"])
	}
}

func TestServer_TrackMetadata(t *testing.T) {
	resolver := &fakeResolver{track: &core.TrackMetadata{
		Title:     "Song X",
		Artist:    "Artist Y",
		SpotifyID: "6rqhFgbbKwnb9MLmUQDhG6",
	}}
	s := newTestServer(t, serverFixture{resolver: resolver})

	url := "https://open.spotify.com/track/6rqhFgbbKwnb9MLmUQDhG6"
	rec := doRequest(s, http.MethodPost, "/api/spotify/metadata", fmt.Sprintf(`{"url":%q}`, url))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	if resolver.lastURL != url {
		t.Errorf("resolver received %q, want %q", resolver.lastURL, url)
	}

	var track core.TrackMetadata
	if err := json.Unmarshal(rec.Body.Bytes(), &track); err != nil {
		t.Fatal(err)
	}
	if track.Title != "Song X" || track.Artist != "Artist Y" {
		t.Errorf("track = %+v", track)
	}
}

func TestServer_TrackMetadata_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid url", fmt.Errorf("parse: %w", core.ErrInvalidURL), http.StatusBadRequest},
		{"not found", fmt.Errorf("track: %w", core.ErrNotFound), http.StatusNotFound},
		{"auth failure", fmt.Errorf("token: %w", core.ErrUpstreamAuth), http.StatusInternalServerError},
		{"upstream unavailable", fmt.Errorf("fetch: %w", core.ErrUpstreamUnavailable), http.StatusInternalServerError},
		{"internal", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, serverFixture{resolver: &fakeResolver{err: tt.err}})

			rec := doRequest(s, http.MethodPost, "/api/spotify/metadata",
				`{"url":"https://open.spotify.com/track/abc123"}`)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
}

func TestServer_TrackMetadata_RejectsMalformedBody(t *testing.T) {
	s := newTestServer(t, serverFixture{})

	rec := doRequest(s, http.MethodPost, "/api/spotify/metadata", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestServer_CollectionMetadata(t *testing.T) {
	collection := &core.CollectionMetadata{
		Title:      "Album Z",
		Owner:      "Artist Y",
		TrackCount: 2,
		Tracks: []core.TrackSummary{
			{Title: "One", Duration: 200},
			{Title: "Two", Duration: 180},
		},
	}

	for _, path := range []string{"/api/spotify/album", "/api/spotify/playlist"} {
		t.Run(path, func(t *testing.T) {
			s := newTestServer(t, serverFixture{resolver: &fakeResolver{collection: collection}})

			rec := doRequest(s, http.MethodPost, path,
				`{"url":"https://open.spotify.com/album/abc123"}`)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}

			var got core.CollectionMetadata
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatal(err)
			}
			if got.Title != "Album Z" || got.TrackCount != 2 {
				t.Errorf("collection = %+v", got)
			}
		})
	}
}

func TestServer_Download(t *testing.T) {
	s := newTestServer(t, serverFixture{
		streamer: &fakeStreamer{payload: []byte("mp3 bytes"), failAfter: -1},
	})

	rec := doRequest(s, http.MethodPost, "/api/spotify/download",
		`{"title":"Song X","artist":"Artist Y","spotifyId":"abc123"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("Content-Type = %q, want audio/mpeg", ct)
	}
	wantDisposition := "attachment; filename*=UTF-8''Song%20X%20-%20Artist%20Y.mp3"
	if cd := rec.Header().Get("Content-Disposition"); cd != wantDisposition {
		t.Errorf("Content-Disposition = %q, want %q", cd, wantDisposition)
	}
	if rec.Body.String() != "mp3 bytes" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestServer_Download_NoMatch(t *testing.T) {
	s := newTestServer(t, serverFixture{
		searcher: &fakeSearcher{err: core.ErrNoMatch},
	})

	rec := doRequest(s, http.MethodPost, "/api/spotify/download",
		`{"title":"Song X","artist":"Artist Y"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["message"] != "Could not find a matching video for download" {
		t.Errorf("message = %q", body["message"])
	}
}

func TestServer_Download_FailureBeforeBytesIsJSONError(t *testing.T) {
	s := newTestServer(t, serverFixture{
		streamer: &fakeStreamer{failAfter: 0},
	})

	rec := doRequest(s, http.MethodPost, "/api/spotify/download",
		`{"title":"Song X","artist":"Artist Y"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != "" {
		t.Errorf("Content-Disposition = %q, want cleared", cd)
	}
}

func TestServer_Download_MidStreamFailureSeversConnection(t *testing.T) {
	s := newTestServer(t, serverFixture{
		streamer: &fakeStreamer{payload: []byte("full payload bytes"), failAfter: 4},
	})

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/spotify/download", "application/json",
		strings.NewReader(`{"title":"Song X","artist":"Artist Y"}`))
	if err != nil {
		t.Fatalf("request failed before any response: %v", err)
	}
	defer resp.Body.Close()

	// Headers were already flushed with the first bytes.
	if ct := resp.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("Content-Type = %q, want audio/mpeg", ct)
	}

	// The truncation must surface as a failed read, never as a cleanly
	// completed body.
	body, err := io.ReadAll(resp.Body)
	if err == nil {
		t.Fatalf("body read completed cleanly with %q, want a severed connection", body)
	}
}

func TestServer_Download_MissingFieldsRejected(t *testing.T) {
	s := newTestServer(t, serverFixture{})

	rec := doRequest(s, http.MethodPost, "/api/spotify/download", `{"title":"Song X"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestServer_APIGateLimitsClients(t *testing.T) {
	s := newTestServer(t, serverFixture{
		flood: &core.FloodConfig{
			RequestsPerMinute:      2,
			TrackRequestsPerMinute: 1000,
			DownloadsPerHour:       1000,
		},
	})

	for i := 0; i < 2; i++ {
		if rec := doRequest(s, http.MethodGet, "/api/test", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rec.Code)
		}
	}
	if rec := doRequest(s, http.MethodGet, "/api/test", ""); rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
}

func TestServer_TrackGateKeysOnTrackID(t *testing.T) {
	resolver := &fakeResolver{track: &core.TrackMetadata{Title: "Song X"}}
	s := newTestServer(t, serverFixture{
		resolver: resolver,
		flood: &core.FloodConfig{
			RequestsPerMinute:      1000,
			TrackRequestsPerMinute: 1,
			DownloadsPerHour:       1000,
		},
	})

	first := `{"url":"https://open.spotify.com/track/aaaa11"}`
	if rec := doRequest(s, http.MethodPost, "/api/spotify/metadata", first); rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}
	if rec := doRequest(s, http.MethodPost, "/api/spotify/metadata", first); rec.Code != http.StatusTooManyRequests {
		t.Errorf("repeat for same track status = %d, want 429", rec.Code)
	}

	// A different track is a different key.
	other := `{"url":"https://open.spotify.com/track/bbbb22"}`
	if rec := doRequest(s, http.MethodPost, "/api/spotify/metadata", other); rec.Code != http.StatusOK {
		t.Errorf("different track status = %d, want 200", rec.Code)
	}
}

func TestServer_HealthEndpoints(t *testing.T) {
	s := newTestServer(t, serverFixture{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doRequest(s, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rec.Code)
		}
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{"remote addr only", "10.0.0.1:54321", "", "10.0.0.1"},
		{"forwarded single", "10.0.0.1:54321", "203.0.113.7", "203.0.113.7"},
		{"forwarded chain keeps first", "10.0.0.1:54321", "203.0.113.7, 10.0.0.2", "203.0.113.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
