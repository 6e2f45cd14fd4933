// Package acquire streams transcoded audio for a chosen candidate, either
// directly to a sink or into a tagged file on disk.
package acquire

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"soundfetch/internal/core"
)

// Backend is the media-acquisition capability. Stream writes the transcoded
// audio to w as it is produced; Download materializes a file at the given
// output template. Both kill their subprocess when ctx is cancelled.
type Backend interface {
	Stream(ctx context.Context, locator string, w io.Writer) error
	Download(ctx context.Context, locator, outputTemplate string) error
}

// Pipeline drives the acquisition backend and owns filename derivation.
type Pipeline struct {
	backend Backend
	config  *core.AcquireConfig
	logger  *zap.Logger
}

func NewPipeline(backend Backend, config *core.AcquireConfig, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		backend: backend,
		config:  config,
		logger:  logger,
	}
}

// Stream pipes the candidate's transcoded audio to w without touching disk.
// A failure after bytes have been written cannot be unsent; the caller must
// treat a returned error after partial output as an aborted stream.
func (p *Pipeline) Stream(ctx context.Context, locator string, w io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	if err := p.backend.Stream(ctx, locator, w); err != nil {
		return err
	}

	p.logger.Info("Acquisition stream completed", zap.String("locator", locator))
	return nil
}

// DownloadFile materializes the candidate as a tagged mp3 named after the
// sanitized title/artist and returns its path. Disposal of the file is the
// caller's concern; see Cleanup.
func (p *Pipeline) DownloadFile(ctx context.Context, locator, title, artist string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	if err := os.MkdirAll(p.config.DownloadDir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	name := DeriveFilename(title, artist)
	template := filepath.Join(p.config.DownloadDir, name+".%(ext)s")

	if err := p.backend.Download(ctx, locator, template); err != nil {
		return "", err
	}

	path := filepath.Join(p.config.DownloadDir, name+".mp3")
	if err := tagFile(path, title, artist); err != nil {
		// The audio itself is intact; tagging is best effort.
		p.logger.Warn("Failed to tag downloaded file",
			zap.String("path", path),
			zap.Error(err))
	}

	p.logger.Info("Acquisition download completed",
		zap.String("locator", locator),
		zap.String("path", path))
	return path, nil
}

// Cleanup deletes the file at path if it exists. Missing files are not an
// error: acquisition cleanup is fire-and-forget.
func Cleanup(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cleanup %s: %w", path, err)
	}
	return nil
}
