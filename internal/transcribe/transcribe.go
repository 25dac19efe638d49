// Package transcribe produces a time-segmented transcript of a video's
// audio track.
package transcribe

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/abhisek/vidtutor/internal/logger"
	"github.com/abhisek/vidtutor/internal/media"
)

// Engine transcribes the audio of a video. Implementations may return
// segments with gaps or overlaps; Normalize repairs them.
type Engine interface {
	Transcribe(ctx context.Context, asset media.VideoAsset) ([]media.TranscriptSegment, error)
}

// Config controls transcription.
type Config struct {
	Engine       string  `json:"engine"` // whisper, subtitle or auto
	Model        string  `json:"model"`
	Language     string  `json:"language"`
	ChunkSeconds float64 `json:"chunk_seconds"`
	MaxAttempts  int     `json:"-"`
	Workers      int     `json:"-"`
	WorkDir      string  `json:"-"`
}

// DefaultConfig returns the default transcription configuration.
func DefaultConfig() Config {
	return Config{
		Engine:       "auto",
		Model:        "whisper-1",
		ChunkSeconds: 600,
		MaxAttempts:  3,
		Workers:      3,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Engine {
	case "whisper", "subtitle", "auto":
	default:
		return fmt.Errorf("unknown transcription engine %q", c.Engine)
	}
	if c.ChunkSeconds <= 0 {
		return fmt.Errorf("chunk seconds must be positive, got %v", c.ChunkSeconds)
	}
	return nil
}

// snap absorbs float noise between adjacent segment boundaries.
const snap = 1e-6

// Normalize returns segments that are sorted, non-overlapping and
// contiguous over [0, duration]. Out-of-range times are clamped, overlaps
// are trimmed from the later segment, and gaps (including leading and
// trailing silence) become empty-text segments.
func Normalize(segments []media.TranscriptSegment, duration float64) []media.TranscriptSegment {
	if duration <= 0 || math.IsNaN(duration) {
		return nil
	}

	in := make([]media.TranscriptSegment, 0, len(segments))
	for _, s := range segments {
		s.Start = math.Max(0, math.Min(s.Start, duration))
		s.End = math.Max(0, math.Min(s.End, duration))
		if s.Duration() <= snap {
			continue
		}
		s.Text = strings.Join(strings.Fields(s.Text), " ")
		s.Confidence = media.ClampConfidence(s.Confidence)
		in = append(in, s)
	}
	sort.SliceStable(in, func(i, j int) bool {
		if in[i].Start != in[j].Start {
			return in[i].Start < in[j].Start
		}
		return in[i].End < in[j].End
	})

	out := make([]media.TranscriptSegment, 0, len(in)+2)
	cursor := 0.0
	for _, s := range in {
		if s.Start < cursor+snap {
			s.Start = cursor
		}
		if s.Duration() <= snap {
			continue
		}
		if s.Start > cursor {
			out = append(out, media.TranscriptSegment{Start: cursor, End: s.Start})
		}
		out = append(out, s)
		cursor = s.End
	}
	if duration-cursor > snap {
		out = append(out, media.TranscriptSegment{Start: cursor, End: duration})
	} else if len(out) > 0 {
		out[len(out)-1].End = duration
	}
	return out
}

// Normalizing wraps an Engine so every result passes through Normalize.
type Normalizing struct {
	Engine Engine
}

func (n Normalizing) Transcribe(ctx context.Context, asset media.VideoAsset) ([]media.TranscriptSegment, error) {
	sc := logger.StartSpan(ctx, "transcribe.run")
	defer sc.End()

	segs, err := n.Engine.Transcribe(sc.Context(), asset)
	if err != nil {
		sc.RecordError(err)
		return nil, err
	}
	return Normalize(segs, asset.DurationSeconds), nil
}
