package core

import (
	"time"
)

type Config struct {
	Spotify  SpotifyConfig
	Server   ServerConfig
	Store    StoreConfig
	Resolver ResolverConfig
	Search   SearchConfig
	Acquire  AcquireConfig
	Flood    FloodConfig
	Log      LogConfig
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	// TokenURL overrides the Spotify accounts token endpoint, used in tests.
	TokenURL       string
	RequestTimeout time.Duration
}

type ServerConfig struct {
	Host        string
	Port        int
	ReadTimeout time.Duration
	// WriteTimeout bounds non-streaming responses. Direct-stream downloads
	// are bounded by AcquireConfig.Timeout instead.
	WriteTimeout time.Duration
}

type StoreConfig struct {
	Path string
	// CacheSize is the capacity of the in-memory record cache.
	CacheSize int
	// BloomFalsePositiveRate tunes the known-identifier membership filter.
	BloomFalsePositiveRate float64
}

type ResolverConfig struct {
	// CacheTTL is the maximum age before stored metadata is considered
	// stale. It applies uniformly to tracks and collections.
	CacheTTL time.Duration
}

// SearchConfig holds the candidate search heuristics. The weights and bounds
// are tuning knobs, not derived values.
type SearchConfig struct {
	BackendPath string
	MaxResults  int
	// Backend-side duration filter (strict bounds, seconds).
	BackendMinDuration int
	BackendMaxDuration int
	// Engine-side acceptance filter (inclusive bounds, seconds).
	MinDuration int
	MaxDuration int
	// MinScore is the acceptance threshold; candidates must score above it.
	MinScore      float64
	OfficialBonus float64
	AudioBonus    float64
	LyricsBonus   float64
	Timeout       time.Duration
}

type AcquireConfig struct {
	BackendPath string
	DownloadDir string
	// Timeout bounds a single acquisition end to end.
	Timeout time.Duration
}

type FloodConfig struct {
	// RequestsPerMinute limits all API calls per client address.
	RequestsPerMinute int
	// TrackRequestsPerMinute limits metadata resolutions per track ID.
	TrackRequestsPerMinute int
	// DownloadsPerHour limits acquisitions per client address.
	DownloadsPerHour int
}

type LogConfig struct {
	Level  string
	Format string
}

func DefaultConfig() *Config {
	return &Config{
		Spotify: SpotifyConfig{
			RequestTimeout: 15 * time.Second,
		},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        5000,
			ReadTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Path:                   "./soundfetch.db",
			CacheSize:              4096,
			BloomFalsePositiveRate: 0.001,
		},
		Resolver: ResolverConfig{
			CacheTTL: time.Hour,
		},
		Search: SearchConfig{
			BackendPath:        "yt-dlp",
			MaxResults:         10,
			BackendMinDuration: 60,
			BackendMaxDuration: 600,
			MinDuration:        120,
			MaxDuration:        480,
			MinScore:           1,
			OfficialBonus:      2,
			AudioBonus:         1,
			LyricsBonus:        0.5,
			Timeout:            30 * time.Second,
		},
		Acquire: AcquireConfig{
			BackendPath: "yt-dlp",
			DownloadDir: "./downloads",
			Timeout:     10 * time.Minute,
		},
		Flood: FloodConfig{
			RequestsPerMinute:      100,
			TrackRequestsPerMinute: 5,
			DownloadsPerHour:       10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
