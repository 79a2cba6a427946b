package extractor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// jpegStream builds a synthetic MJPEG byte stream of n frames with
// distinguishable payloads.
func jpegStream(n int) []byte {
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		buf.Write([]byte{0xFF, 0xD8})
		buf.Write([]byte{byte(i), 0x10, 0x20, byte(i)})
		buf.Write([]byte{0xFF, 0xD9})
	}
	return buf.Bytes()
}

func TestExtract_MissingFile(t *testing.T) {
	e := New(discardLogger())

	_, err := e.Extract(context.Background(), "/nonexistent/video.mp4", 10)
	if !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("Extract() error = %v, want ErrFileNotFound", err)
	}
}

func TestSplitJPEGStream(t *testing.T) {
	frames, err := splitJPEGStream(bufio.NewReader(bytes.NewReader(jpegStream(5))), 100)
	if err != nil {
		t.Fatalf("splitJPEGStream() error = %v", err)
	}
	if len(frames) != 5 {
		t.Fatalf("got %d frames, want 5", len(frames))
	}
	for i, frame := range frames {
		if frame.Index != i {
			t.Errorf("frame %d has index %d, indices must be contiguous from 0", i, frame.Index)
		}
		if !bytes.HasPrefix(frame.Data, []byte{0xFF, 0xD8}) {
			t.Errorf("frame %d missing SOI marker", i)
		}
		if !bytes.HasSuffix(frame.Data, []byte{0xFF, 0xD9}) {
			t.Errorf("frame %d missing EOI marker", i)
		}
		if frame.Data[2] != byte(i) {
			t.Errorf("frame %d carries payload of frame %d", i, frame.Data[2])
		}
	}
}

func TestSplitJPEGStream_CapRespected(t *testing.T) {
	frames, err := splitJPEGStream(bufio.NewReader(bytes.NewReader(jpegStream(20))), 7)
	if err != nil {
		t.Fatalf("splitJPEGStream() error = %v", err)
	}
	if len(frames) != 7 {
		t.Fatalf("got %d frames, want cap of 7", len(frames))
	}
}

func TestSplitJPEGStream_TruncatedTail(t *testing.T) {
	stream := jpegStream(3)
	// Drop the final EOI marker; the incomplete frame must be discarded.
	stream = stream[:len(stream)-2]

	frames, err := splitJPEGStream(bufio.NewReader(bytes.NewReader(stream)), 100)
	if err != nil {
		t.Fatalf("splitJPEGStream() error = %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2 complete ones", len(frames))
	}
}

func TestSplitJPEGStream_Empty(t *testing.T) {
	frames, err := splitJPEGStream(bufio.NewReader(bytes.NewReader(nil)), 100)
	if err != nil {
		t.Fatalf("splitJPEGStream() error = %v", err)
	}
	if len(frames) != 0 {
		t.Fatalf("got %d frames from empty stream, want 0", len(frames))
	}
}

func TestParseProbeOutput(t *testing.T) {
	output := "width=1920\nheight=1080\nr_frame_rate=30000/1001\nnb_frames=431\n"

	meta := parseProbeOutput(output)
	if meta.Width != 1920 {
		t.Errorf("Width = %d, want 1920", meta.Width)
	}
	if meta.Height != 1080 {
		t.Errorf("Height = %d, want 1080", meta.Height)
	}
	if meta.FrameCount != 431 {
		t.Errorf("FrameCount = %d, want 431", meta.FrameCount)
	}
	if math.Abs(meta.FPS-29.97) > 0.01 {
		t.Errorf("FPS = %v, want ~29.97", meta.FPS)
	}
}

func TestParseProbeOutput_Malformed(t *testing.T) {
	meta := parseProbeOutput("r_frame_rate=0/0\ngarbage line\nwidth=abc\n")
	if meta.Width != 0 || meta.FPS != 0 {
		t.Fatalf("malformed probe output should leave zero values, got %+v", meta)
	}
}
