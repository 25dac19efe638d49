// Package media holds the shared video data model and the thin wrappers
// around ffmpeg/ffprobe that the extraction stages build on.
package media

import (
	"errors"
	"fmt"
	"time"
)

// ErrMediaUnreadable is returned when a video or its audio track cannot be
// decoded. It is fatal for that video only.
var ErrMediaUnreadable = errors.New("media unreadable")

// Unreadable wraps cause as an ErrMediaUnreadable for fileRef.
func Unreadable(fileRef string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrMediaUnreadable, fileRef, cause)
}

// VideoAsset identifies one processed source video. Immutable once built.
type VideoAsset struct {
	ContentHash     string    `json:"content_hash"`
	FileRef         string    `json:"file_ref"`
	DurationSeconds float64   `json:"duration_seconds"`
	ProcessedAt     time.Time `json:"processed_at"`
}

// Keyframe is one sampled instant of the video. Text and Confidence are
// filled in by OCR; an empty Text means the frame carries no usable text.
type Keyframe struct {
	Timestamp  float64 `json:"timestamp"`
	FrameRef   string  `json:"frame_ref"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// TranscriptSegment is one spoken span over the half-open interval
// [Start, End).
type TranscriptSegment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Duration returns End - Start.
func (s TranscriptSegment) Duration() float64 {
	return s.End - s.Start
}

// ClampConfidence bounds c into [0,1].
func ClampConfidence(c float64) float64 {
	switch {
	case c != c: // NaN
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
