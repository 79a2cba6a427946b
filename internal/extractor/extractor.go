// Package extractor reads frames out of a local video file using ffmpeg.
package extractor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/framelens/framelens/internal/models"
)

var (
	// ErrFileNotFound means the video file path does not exist.
	ErrFileNotFound = errors.New("video file not found")

	// ErrDecodeError means no frames could be read from the file.
	ErrDecodeError = errors.New("could not decode any frames")
)

// Extractor decodes video frames into memory as JPEG images.
type Extractor struct {
	logger *slog.Logger

	// ffmpegPath and ffprobePath are swapped in tests.
	ffmpegPath  string
	ffprobePath string
}

// New returns an Extractor using the ffmpeg/ffprobe binaries on PATH.
func New(logger *slog.Logger) *Extractor {
	return &Extractor{
		logger:      logger,
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
	}
}

// Extract reads frames sequentially from videoPath, stopping at
// end-of-stream or maxFrames, whichever comes first. Frame indices are
// contiguous starting at 0. The returned slice is consumed once by the
// orchestrator; frames are not written to disk.
func (e *Extractor) Extract(ctx context.Context, videoPath string, maxFrames int) ([]models.Frame, error) {
	if _, err := os.Stat(videoPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %q", ErrFileNotFound, videoPath)
	}
	if maxFrames <= 0 {
		return nil, fmt.Errorf("%w: frame cap must be positive, got %d", ErrDecodeError, maxFrames)
	}

	// Frames come back as a single MJPEG stream on stdout; individual
	// JPEGs are split on their SOI/EOI markers.
	cmd := exec.CommandContext(ctx, e.ffmpegPath,
		"-i", videoPath,
		"-frames:v", strconv.Itoa(maxFrames),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "2",
		"-",
	)
	cmd.Stderr = io.Discard

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	frames, splitErr := splitJPEGStream(bufio.NewReaderSize(stdout, 1<<20), maxFrames)

	// Once the cap is reached the stream is abandoned mid-flight, so a
	// non-zero ffmpeg exit is only meaningful when nothing was decoded.
	waitErr := cmd.Wait()

	if splitErr != nil && len(frames) == 0 {
		return nil, fmt.Errorf("%w: %q: %v", ErrDecodeError, videoPath, splitErr)
	}
	if len(frames) == 0 {
		if waitErr != nil {
			return nil, fmt.Errorf("%w: %q: ffmpeg: %v", ErrDecodeError, videoPath, waitErr)
		}
		return nil, fmt.Errorf("%w: %q", ErrDecodeError, videoPath)
	}

	e.logger.Info("frames extracted", "path", videoPath, "count", len(frames), "cap", maxFrames)

	return frames, nil
}

// Probe returns metadata about the video using ffprobe.
func (e *Extractor) Probe(ctx context.Context, videoPath string) (*models.VideoMeta, error) {
	if _, err := os.Stat(videoPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %q", ErrFileNotFound, videoPath)
	}

	cmd := exec.CommandContext(ctx, e.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,nb_frames",
		"-of", "default=noprint_wrappers=1",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %q: %w", videoPath, err)
	}

	return parseProbeOutput(string(output)), nil
}

func parseProbeOutput(output string) *models.VideoMeta {
	meta := &models.VideoMeta{}
	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "width":
			meta.Width, _ = strconv.Atoi(value)
		case "height":
			meta.Height, _ = strconv.Atoi(value)
		case "nb_frames":
			meta.FrameCount, _ = strconv.Atoi(value)
		case "r_frame_rate":
			// Reported as a rational, e.g. "30000/1001".
			if num, den, ok := strings.Cut(value, "/"); ok {
				n, err1 := strconv.ParseFloat(num, 64)
				d, err2 := strconv.ParseFloat(den, 64)
				if err1 == nil && err2 == nil && d != 0 {
					meta.FPS = n / d
				}
			}
		}
	}
	return meta
}

// splitJPEGStream reads at most maxFrames JPEG images from an MJPEG
// byte stream. Frames are delimited by the JPEG SOI (0xFFD8) and EOI
// (0xFFD9) markers.
func splitJPEGStream(r *bufio.Reader, maxFrames int) ([]models.Frame, error) {
	var frames []models.Frame
	var current []byte
	inFrame := false

	prev, err := r.ReadByte()
	if err != nil {
		if err == io.EOF {
			return frames, nil
		}
		return frames, err
	}

	for len(frames) < maxFrames {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return frames, nil
			}
			return frames, err
		}

		switch {
		case !inFrame && prev == 0xFF && b == 0xD8:
			inFrame = true
			current = []byte{0xFF, 0xD8}
		case inFrame:
			current = append(current, b)
			if prev == 0xFF && b == 0xD9 {
				frames = append(frames, models.Frame{Index: len(frames), Data: current})
				inFrame = false
				current = nil
			}
		}
		prev = b
	}

	return frames, nil
}
