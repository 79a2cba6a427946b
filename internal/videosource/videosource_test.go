package videosource

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid https", "https://youtu.be/MNn9qKG2UFI", false},
		{"valid http", "http://example.com/video.mp4", false},
		{"plain text", "not-a-url", true},
		{"empty", "", true},
		{"missing scheme", "youtu.be/MNn9qKG2UFI", true},
		{"unsupported scheme", "ftp://example.com/video.mp4", true},
		{"scheme only", "https://", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if tt.wantErr && !errors.Is(err, ErrInvalidURL) {
				t.Fatalf("ValidateURL(%q) error = %v, want ErrInvalidURL", tt.url, err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("ValidateURL(%q) error = %v, want nil", tt.url, err)
			}
		})
	}
}

// An invalid URL must fail before the downloader is ever invoked.
func TestResolve_InvalidURLBeforeDownload(t *testing.T) {
	invoked := false
	r := NewResolver("mp4", discardLogger(),
		WithRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
			invoked = true
			return nil, nil
		}))

	_, err := r.Resolve(context.Background(), "not-a-url")
	if !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("Resolve() error = %v, want ErrInvalidURL", err)
	}
	if invoked {
		t.Fatal("downloader was invoked for an invalid URL")
	}
}

func TestResolve_Success(t *testing.T) {
	dir := t.TempDir()

	r := NewResolver("mp4", discardLogger(),
		WithScratchDir(dir),
		WithRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
			if name != "yt-dlp" {
				t.Errorf("runner invoked %q, want yt-dlp", name)
			}
			// The runner writes the file the way yt-dlp would.
			for i, arg := range args {
				if arg == "-o" && i+1 < len(args) {
					return nil, os.WriteFile(args[i+1], []byte("video"), 0644)
				}
			}
			t.Fatal("no -o argument passed to downloader")
			return nil, nil
		}))

	path, err := r.Resolve(context.Background(), "https://youtu.be/MNn9qKG2UFI")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("path %q not inside scratch dir %q", path, dir)
	}
	if !strings.HasSuffix(path, ".mp4") {
		t.Errorf("path %q missing requested extension", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("resolved file missing: %v", err)
	}
}

func TestResolve_NewTargetPerCall(t *testing.T) {
	dir := t.TempDir()
	writeTarget := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		for i, arg := range args {
			if arg == "-o" && i+1 < len(args) {
				return nil, os.WriteFile(args[i+1], []byte("video"), 0644)
			}
		}
		return nil, nil
	}

	r := NewResolver("mp4", discardLogger(), WithScratchDir(dir), WithRunner(writeTarget))

	first, err := r.Resolve(context.Background(), "https://example.com/a")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	second, err := r.Resolve(context.Background(), "https://example.com/a")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if first == second {
		t.Fatalf("successive downloads share the target path %q", first)
	}
}

func TestResolve_PinnedTarget(t *testing.T) {
	target := filepath.Join(t.TempDir(), "pinned.mp4")

	r := NewResolver("mp4", discardLogger(),
		WithTargetPath(target),
		WithRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return nil, os.WriteFile(target, []byte("video"), 0644)
		}))

	path, err := r.Resolve(context.Background(), "https://example.com/a")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if path != target {
		t.Fatalf("path = %q, want pinned %q", path, target)
	}
}

func TestResolve_NoStreamAvailable(t *testing.T) {
	r := NewResolver("mp4", discardLogger(),
		WithScratchDir(t.TempDir()),
		WithRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return []byte("ERROR: Requested format is not available"), errors.New("exit status 1")
		}))

	_, err := r.Resolve(context.Background(), "https://youtu.be/MNn9qKG2UFI")
	if !errors.Is(err, ErrNoStreamAvailable) {
		t.Fatalf("Resolve() error = %v, want ErrNoStreamAvailable", err)
	}
}

func TestResolve_DownloaderProducedNothing(t *testing.T) {
	r := NewResolver("mp4", discardLogger(),
		WithScratchDir(t.TempDir()),
		WithRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
			// Exit zero without writing the target.
			return nil, nil
		}))

	_, err := r.Resolve(context.Background(), "https://youtu.be/MNn9qKG2UFI")
	if !errors.Is(err, ErrNoStreamAvailable) {
		t.Fatalf("Resolve() error = %v, want ErrNoStreamAvailable", err)
	}
}
