package acquire

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"soundfetch/internal/core"
)

const stderrExcerptLimit = 2048

// YTDLPBackend shells out to yt-dlp for audio extraction and transcoding.
// Diagnostic output goes to the log; only audio bytes reach the sink.
type YTDLPBackend struct {
	path   string
	logger *zap.Logger
}

func NewYTDLPBackend(config *core.AcquireConfig, logger *zap.Logger) *YTDLPBackend {
	return &YTDLPBackend{
		path:   config.BackendPath,
		logger: logger,
	}
}

// Stream extracts audio to stdout and pipes it straight to w. The subprocess
// dies with the context, so a disconnected consumer stops the producer.
func (b *YTDLPBackend) Stream(ctx context.Context, locator string, w io.Writer) error {
	args := []string{
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", "0",
		"--prefer-ffmpeg",
		"-o", "-",
		locator,
	}
	return b.run(ctx, args, w)
}

// Download materializes a tagged file at the output template.
func (b *YTDLPBackend) Download(ctx context.Context, locator, outputTemplate string) error {
	args := []string{
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", "0",
		"--embed-thumbnail",
		"--add-metadata",
		"--prefer-ffmpeg",
		"--output", outputTemplate,
		locator,
	}
	return b.run(ctx, args, nil)
}

func (b *YTDLPBackend) run(ctx context.Context, args []string, stdout io.Writer) error {
	cmd := exec.CommandContext(ctx, b.path, args...)

	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	b.logger.Debug("Invoking acquisition backend",
		zap.String("path", b.path),
		zap.Strings("args", args))

	err := cmd.Run()

	if diag := strings.TrimSpace(stderr.String()); diag != "" {
		b.logger.Debug("Acquisition backend diagnostics",
			zap.String("stderr", excerpt(diag)))
	}

	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		diag := excerpt(stderr.String())
		b.logger.Error("Acquisition backend failed",
			zap.Int("exit_code", exitCode),
			zap.String("stderr", diag),
			zap.Error(err))
		return &core.AcquisitionError{ExitCode: exitCode, Stderr: diag, Err: err}
	}
	return nil
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrExcerptLimit {
		return s[len(s)-stderrExcerptLimit:]
	}
	return s
}
