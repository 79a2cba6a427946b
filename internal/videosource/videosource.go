// Package videosource turns a video URL into a local decodable file.
// The actual download is delegated to the yt-dlp binary; this package
// only validates the URL and manages the scratch location.
package videosource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrInvalidURL means the input failed URL-syntax validation. It is
	// returned before any network activity.
	ErrInvalidURL = errors.New("invalid video URL")

	// ErrNoStreamAvailable means no stream matching the requested
	// container format exists for the URL.
	ErrNoStreamAvailable = errors.New("no stream available for requested format")
)

// Resolver downloads videos into a scratch directory.
type Resolver struct {
	scratchDir string
	extension  string
	targetPath string
	logger     *slog.Logger

	// runner is swapped in tests to avoid invoking yt-dlp.
	runner func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithScratchDir pins the directory downloads are written into. Without
// it every Resolve call creates a fresh temporary directory.
func WithScratchDir(dir string) Option {
	return func(r *Resolver) { r.scratchDir = dir }
}

// WithTargetPath pins the exact output path instead of generating a new
// one per call.
func WithTargetPath(path string) Option {
	return func(r *Resolver) { r.targetPath = path }
}

// WithRunner overrides the command runner.
func WithRunner(run func(ctx context.Context, name string, args ...string) ([]byte, error)) Option {
	return func(r *Resolver) { r.runner = run }
}

// NewResolver creates a Resolver downloading streams in the given
// container format (e.g. "mp4").
func NewResolver(extension string, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		extension: extension,
		logger:    logger,
		runner: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ValidateURL checks that raw is an absolute http(s) URL. It performs
// syntax validation only; reachability is not checked.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidURL, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q: scheme must be http or https", ErrInvalidURL, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: %q: missing host", ErrInvalidURL, raw)
	}
	return nil
}

// Resolve validates the URL and downloads the matching stream, returning
// the local file path. Each call produces a new target path unless one
// was pinned with WithTargetPath.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	if err := ValidateURL(rawURL); err != nil {
		return "", err
	}

	target := r.targetPath
	if target == "" {
		dir := r.scratchDir
		if dir == "" {
			tmp, err := os.MkdirTemp("", "framelens-")
			if err != nil {
				return "", fmt.Errorf("create scratch directory: %w", err)
			}
			dir = tmp
		} else if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("create scratch directory %q: %w", dir, err)
		}
		target = filepath.Join(dir, fmt.Sprintf("%s.%s", uuid.NewString(), r.extension))
	}

	r.logger.Info("downloading video", "url", rawURL, "target", target)

	output, err := r.runner(ctx, "yt-dlp",
		"-f", fmt.Sprintf("best[ext=%s]", r.extension),
		"-o", target,
		"--no-playlist",
		rawURL,
	)
	if err != nil {
		if noStream(output) {
			return "", fmt.Errorf("%w: url %q, format %q", ErrNoStreamAvailable, rawURL, r.extension)
		}
		return "", fmt.Errorf("yt-dlp failed for %q: %v\noutput: %s", rawURL, err, trimOutput(output))
	}

	if _, err := os.Stat(target); err != nil {
		return "", fmt.Errorf("%w: url %q, format %q", ErrNoStreamAvailable, rawURL, r.extension)
	}

	return target, nil
}

func noStream(output []byte) bool {
	lowered := bytes.ToLower(output)
	return bytes.Contains(lowered, []byte("requested format is not available")) ||
		bytes.Contains(lowered, []byte("no video formats found"))
}

func trimOutput(output []byte) string {
	s := strings.TrimSpace(string(output))
	if len(s) > 512 {
		s = s[len(s)-512:]
	}
	return s
}
