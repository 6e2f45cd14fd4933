// Package http exposes the catalog resolution and acquisition API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"soundfetch/internal/acquire"
	"soundfetch/internal/core"
	"soundfetch/internal/flood"
	"soundfetch/pkg/cataloglink"
)

// noMatchMessage is the exact body clients key on when no candidate clears
// the acceptance threshold.
const noMatchMessage = "Could not find a matching video for download"

// Resolver turns catalog URLs into metadata records.
type Resolver interface {
	ResolveTrack(ctx context.Context, rawURL string) (*core.TrackMetadata, error)
	ResolveAlbum(ctx context.Context, rawURL string) (*core.CollectionMetadata, error)
	ResolvePlaylist(ctx context.Context, rawURL string) (*core.CollectionMetadata, error)
}

// Searcher picks the best external candidate for a track.
type Searcher interface {
	FindBestMatch(ctx context.Context, title, artist string) (*core.SearchCandidate, error)
}

// Streamer pipes transcoded audio for a candidate locator to w.
type Streamer interface {
	Stream(ctx context.Context, locator string, w io.Writer) error
}

type Server struct {
	config   *core.ServerConfig
	logger   *zap.Logger
	server   *http.Server
	metrics  *Metrics
	resolver Resolver
	searcher Searcher
	streamer Streamer

	apiGate      *flood.Gate
	trackGate    *flood.Gate
	downloadGate *flood.Gate
}

type Metrics struct {
	RequestsTotal        *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
	ResolutionsTotal     *prometheus.CounterVec
	SearchesTotal        *prometheus.CounterVec
	AcquisitionsTotal    *prometheus.CounterVec
	FloodRejectionsTotal *prometheus.CounterVec
	ActiveAcquisitions   prometheus.Gauge
	StreamedBytesTotal   prometheus.Counter
}

// NewMetrics builds and registers the server metrics on reg. Tests pass a
// private registry to avoid collisions on the global one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soundfetch_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "soundfetch_request_duration_seconds",
				Help:    "Time spent serving API requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soundfetch_resolutions_total",
				Help: "Total number of catalog resolutions",
			},
			[]string{"kind", "status"},
		),
		SearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soundfetch_searches_total",
				Help: "Total number of candidate searches",
			},
			[]string{"status"},
		),
		AcquisitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soundfetch_acquisitions_total",
				Help: "Total number of audio acquisitions",
			},
			[]string{"status"},
		),
		FloodRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soundfetch_flood_rejections_total",
				Help: "Total number of rate-limited requests",
			},
			[]string{"gate"},
		),
		ActiveAcquisitions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "soundfetch_active_acquisitions",
				Help: "Number of in-flight audio acquisitions",
			},
		),
		StreamedBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "soundfetch_streamed_bytes_total",
				Help: "Total audio bytes streamed to clients",
			},
		),
	}

	reg.MustRegister(
		metrics.RequestsTotal,
		metrics.RequestDuration,
		metrics.ResolutionsTotal,
		metrics.SearchesTotal,
		metrics.AcquisitionsTotal,
		metrics.FloodRejectionsTotal,
		metrics.ActiveAcquisitions,
		metrics.StreamedBytesTotal,
	)

	return metrics
}

func NewServer(
	config *core.ServerConfig,
	floodConfig *core.FloodConfig,
	resolver Resolver,
	searcher Searcher,
	streamer Streamer,
	metrics *Metrics,
	logger *zap.Logger,
) *Server {
	s := &Server{
		config:       config,
		logger:       logger,
		metrics:      metrics,
		resolver:     resolver,
		searcher:     searcher,
		streamer:     streamer,
		apiGate:      flood.NewGate(floodConfig.RequestsPerMinute, time.Minute),
		trackGate:    flood.NewGate(floodConfig.TrackRequestsPerMinute, time.Minute),
		downloadGate: flood.NewGate(floodConfig.DownloadsPerHour, time.Hour),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/test", s.instrument("test", s.handleTest))
	mux.HandleFunc("POST /api/spotify/metadata", s.instrument("metadata", s.handleTrackMetadata))
	mux.HandleFunc("POST /api/spotify/album", s.instrument("album", s.handleAlbumMetadata))
	mux.HandleFunc("POST /api/spotify/playlist", s.instrument("playlist", s.handlePlaylistMetadata))
	mux.HandleFunc("POST /api/spotify/download", s.instrument("download", s.handleDownload))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"soundfetch"}`))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready","service":"soundfetch"}`))
	})

	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:     mux,
		ReadTimeout: config.ReadTimeout,
		// WriteTimeout stays unset so direct-stream downloads are bounded
		// by the acquisition timeout, not the server.
	}

	return s
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	err := s.server.ListenAndServe()
	s.stopGates()
	if err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Handler exposes the routing table for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) stopGates() {
	s.apiGate.Stop()
	s.trackGate.Stop()
	s.downloadGate.Stop()
}

// instrument wraps an API handler with request logging, metrics and the
// global per-client gate.
func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		logger := s.logger.With(
			zap.String("request_id", requestID),
			zap.String("route", route),
			zap.String("client", clientIP(r)),
		)

		if !s.apiGate.Allow(clientIP(r)) {
			s.metrics.FloodRejectionsTotal.WithLabelValues("api").Inc()
			s.metrics.RequestsTotal.WithLabelValues(route, "429").Inc()
			logger.Warn("Request rate limited")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"message": "Too many requests",
			})
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		s.metrics.RequestsTotal.WithLabelValues(route, fmt.Sprintf("%d", rec.status)).Inc()
		s.metrics.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		logger.Info("Request served",
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	}
}

func (s *Server) handleTest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Backend is connected!"})
}

type urlRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleTrackMetadata(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
		return
	}

	// The per-track gate keys on the track identifier so one hot track
	// cannot be hammered from many addresses.
	if !s.trackGate.Allow(trackGateKey(req.URL, r)) {
		s.metrics.FloodRejectionsTotal.WithLabelValues("track").Inc()
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"message": "Too many requests for this track",
		})
		return
	}

	track, err := s.resolver.ResolveTrack(r.Context(), req.URL)
	if err != nil {
		s.metrics.ResolutionsTotal.WithLabelValues("track", "error").Inc()
		s.writeResolutionError(w, err, "Error fetching metadata")
		return
	}

	s.metrics.ResolutionsTotal.WithLabelValues("track", "ok").Inc()
	writeJSON(w, http.StatusOK, track)
}

func (s *Server) handleAlbumMetadata(w http.ResponseWriter, r *http.Request) {
	s.handleCollectionMetadata(w, r, "album", s.resolver.ResolveAlbum)
}

func (s *Server) handlePlaylistMetadata(w http.ResponseWriter, r *http.Request) {
	s.handleCollectionMetadata(w, r, "playlist", s.resolver.ResolvePlaylist)
}

func (s *Server) handleCollectionMetadata(
	w http.ResponseWriter,
	r *http.Request,
	kind string,
	resolve func(context.Context, string) (*core.CollectionMetadata, error),
) {
	var req urlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
		return
	}

	collection, err := resolve(r.Context(), req.URL)
	if err != nil {
		s.metrics.ResolutionsTotal.WithLabelValues(kind, "error").Inc()
		s.writeResolutionError(w, err, fmt.Sprintf("Error fetching %s metadata", kind))
		return
	}

	s.metrics.ResolutionsTotal.WithLabelValues(kind, "ok").Inc()
	writeJSON(w, http.StatusOK, collection)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req core.AcquisitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
		return
	}
	if req.Title == "" || req.Artist == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "title and artist are required"})
		return
	}

	if !s.downloadGate.Allow(clientIP(r)) {
		s.metrics.FloodRejectionsTotal.WithLabelValues("download").Inc()
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"message": "Download limit reached, try again later",
		})
		return
	}

	logger := s.logger.With(
		zap.String("title", req.Title),
		zap.String("artist", req.Artist),
		zap.String("spotify_id", req.SpotifyID),
	)

	candidate, err := s.searcher.FindBestMatch(r.Context(), req.Title, req.Artist)
	if err != nil {
		if errors.Is(err, core.ErrNoMatch) {
			s.metrics.SearchesTotal.WithLabelValues("no_match").Inc()
			logger.Info("No acceptable candidate found")
			writeJSON(w, http.StatusNotFound, map[string]string{"message": noMatchMessage})
			return
		}
		s.metrics.SearchesTotal.WithLabelValues("error").Inc()
		logger.Error("Candidate search failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Download failed"})
		return
	}
	s.metrics.SearchesTotal.WithLabelValues("ok").Inc()
	logger.Info("Candidate selected",
		zap.String("locator", candidate.Locator),
		zap.Float64("score", candidate.MatchScore))

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", acquire.ContentDisposition(req.Title, req.Artist))

	s.metrics.ActiveAcquisitions.Inc()
	defer s.metrics.ActiveAcquisitions.Dec()

	sw := newStreamWriter(w)
	if err := s.streamer.Stream(r.Context(), candidate.Locator, sw); err != nil {
		s.metrics.AcquisitionsTotal.WithLabelValues("error").Inc()
		s.metrics.StreamedBytesTotal.Add(float64(sw.written))
		if sw.written == 0 {
			// Nothing sent yet; recover into a proper error response.
			w.Header().Del("Content-Type")
			w.Header().Del("Content-Disposition")
			logger.Error("Acquisition failed before any output", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Download failed"})
			return
		}
		// Headers and bytes are gone; sever the connection so the client
		// sees a failed read instead of a cleanly terminated truncation.
		logger.Error("Acquisition aborted mid-stream",
			zap.Int64("bytes_written", sw.written),
			zap.Error(err))
		panic(http.ErrAbortHandler)
	}

	s.metrics.AcquisitionsTotal.WithLabelValues("ok").Inc()
	s.metrics.StreamedBytesTotal.Add(float64(sw.written))
	logger.Info("Download completed", zap.Int64("bytes_written", sw.written))
}

func (s *Server) writeResolutionError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, core.ErrInvalidURL):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"message": message,
			"error":   err.Error(),
		})
	case errors.Is(err, core.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"message": message,
			"error":   err.Error(),
		})
	case errors.Is(err, core.ErrUpstreamAuth), errors.Is(err, core.ErrUpstreamUnavailable):
		s.logger.Error("Upstream catalog failure", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": message})
	default:
		s.logger.Error("Resolution failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": message})
	}
}

// trackGateKey extracts the track identifier from the request URL, falling
// back to the client address when the URL does not parse.
func trackGateKey(rawURL string, r *http.Request) string {
	ref, err := cataloglink.ParseTyped(rawURL, cataloglink.TypeTrack)
	if err != nil {
		return clientIP(r)
	}
	return ref.ID
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusRecorder captures the response status for logging and metrics while
// forwarding Flush to the underlying writer so streams stay unbuffered.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// streamWriter counts bytes and flushes after every write so audio reaches
// the client as it is transcoded.
type streamWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	written int64
}

func newStreamWriter(w http.ResponseWriter) *streamWriter {
	sw := &streamWriter{w: w}
	if f, ok := w.(http.Flusher); ok {
		sw.flusher = f
	}
	return sw
}

func (sw *streamWriter) Write(p []byte) (int, error) {
	n, err := sw.w.Write(p)
	sw.written += int64(n)
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
	return n, err
}
