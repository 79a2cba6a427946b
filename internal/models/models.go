package models

// Frame is a single decoded video frame. Data holds the encoded JPEG bytes
// produced by the extractor; Index is the zero-based position in the video.
type Frame struct {
	Index int
	Data  []byte
}

// Outcome is the result of running the detection model over one frame.
type Outcome struct {
	// Annotated is the frame with detection boxes drawn on it (JPEG bytes).
	Annotated []byte

	// ClassCounts maps a detected class name to its occurrence count,
	// already filtered down to the requested target classes.
	ClassCounts map[string]int
}

// FrameResult pairs a frame index with its detection outcome.
type FrameResult struct {
	Index   int
	Outcome Outcome
}

// Summary is the terminal object returned to the caller: the per-class
// detection counts summed across every analyzed frame.
type Summary struct {
	VideoURL    string         `json:"video_url"`
	TargetItem  string         `json:"target_item"`
	ClassCounts map[string]int `json:"results"`
}

// VideoMeta carries probe metadata for a local video file.
type VideoMeta struct {
	Width      int
	Height     int
	FPS        float64
	FrameCount int
}
