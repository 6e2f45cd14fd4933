package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"soundfetch/internal/core"
)

// stderrExcerptLimit bounds how much backend diagnostic output is kept.
const stderrExcerptLimit = 2048

// YTDLPBackend runs yt-dlp's ytsearch mode as the video-search backend.
// Each stdout line is an independent JSON record.
type YTDLPBackend struct {
	path    string
	timeout time.Duration
	logger  *zap.Logger
}

func NewYTDLPBackend(config *core.SearchConfig, logger *zap.Logger) *YTDLPBackend {
	return &YTDLPBackend{
		path:    config.BackendPath,
		timeout: config.Timeout,
		logger:  logger,
	}
}

// ytSearchResult is the subset of yt-dlp's -j output the engine needs.
type ytSearchResult struct {
	Title      string  `json:"title"`
	Duration   float64 `json:"duration"`
	WebpageURL string  `json:"webpage_url"`
}

func (b *YTDLPBackend) Search(ctx context.Context, query string, maxResults, minDuration, maxDuration int) ([]core.SearchCandidate, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	args := []string{
		fmt.Sprintf("ytsearch%d:%s", maxResults, query),
		"-j",
		"--no-playlist",
		"--match-filter", fmt.Sprintf("duration < %d & duration > %d", maxDuration, minDuration),
	}

	cmd := exec.CommandContext(ctx, b.path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	b.logger.Debug("Invoking search backend",
		zap.String("path", b.path),
		zap.Strings("args", args))

	if err := cmd.Run(); err != nil {
		diag := excerpt(stderr.String())
		b.logger.Error("Search backend failed",
			zap.Error(err),
			zap.String("stderr", diag))
		return nil, &core.SearchError{Output: diag, Err: err}
	}

	candidates, err := parseSearchOutput(stdout.Bytes())
	if err != nil {
		b.logger.Error("Malformed search backend output", zap.Error(err))
		return nil, &core.SearchError{Output: excerpt(stdout.String()), Err: err}
	}
	return candidates, nil
}

func parseSearchOutput(out []byte) ([]core.SearchCandidate, error) {
	var candidates []core.SearchCandidate

	for _, line := range bytes.Split(bytes.TrimSpace(out), []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var result ytSearchResult
		if err := json.Unmarshal(line, &result); err != nil {
			return nil, fmt.Errorf("parse result line: %w", err)
		}
		candidates = append(candidates, core.SearchCandidate{
			Locator:      result.WebpageURL,
			DisplayTitle: result.Title,
			Duration:     int(result.Duration),
		})
	}
	return candidates, nil
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrExcerptLimit {
		return s[len(s)-stderrExcerptLimit:]
	}
	return s
}
