// Package contextindex builds, validates and persists the time-ordered
// record of what was shown and said in a lecture video.
package contextindex

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/abhisek/vidtutor/internal/media"
)

// ErrIndexIncomplete is returned when an index fails its coverage or ordering
// invariants. An incomplete index is never served; it is rebuilt or rejected.
var ErrIndexIncomplete = errors.New("context index incomplete")

// ErrIndexNotFound is returned by Get when no index exists for an item.
var ErrIndexNotFound = errors.New("context index not found")

// tolerance absorbs float drift at segment boundaries.
const tolerance = 1e-6

// Source identifies where an entry's text came from.
type Source string

const (
	SourceVisual Source = "visual"
	SourceSpoken Source = "spoken"
)

// ContextIndex is the immutable per-item store of keyframes and transcript
// segments. Once built it is only ever replaced, never patched.
type ContextIndex struct {
	LearningItemID string
	Video          media.VideoAsset
	ConfigHash     string
	Keyframes      []media.Keyframe
	Segments       []media.TranscriptSegment
	BuiltAt        time.Time
}

// Entry is one time-ordered record of the merged index.
type Entry struct {
	Timestamp  float64
	End        float64 // spoken entries only
	Source     Source
	Text       string
	Confidence float64
	FrameRef   string // visual entries only
}

// Build assembles an index from one asset's extraction results. Both
// sequences are sorted before validation; inputs are not modified.
func Build(itemID string, asset media.VideoAsset, keyframes []media.Keyframe, segments []media.TranscriptSegment) (*ContextIndex, error) {
	kfs := append([]media.Keyframe(nil), keyframes...)
	sort.SliceStable(kfs, func(i, j int) bool { return kfs[i].Timestamp < kfs[j].Timestamp })

	segs := append([]media.TranscriptSegment(nil), segments...)
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })

	idx := &ContextIndex{
		LearningItemID: itemID,
		Video:          asset,
		Keyframes:      kfs,
		Segments:       segs,
		BuiltAt:        time.Now().UTC(),
	}
	if err := idx.Validate(); err != nil {
		return nil, err
	}
	return idx, nil
}

// Validate checks that the transcript covers [0, duration] contiguously,
// that keyframes are monotonic and inside the video, and that the index
// derives from exactly one identified asset.
func (idx *ContextIndex) Validate() error {
	if idx.LearningItemID == "" {
		return fmt.Errorf("%w: missing learning item id", ErrIndexIncomplete)
	}
	if idx.Video.ContentHash == "" {
		return fmt.Errorf("%w: missing video content hash", ErrIndexIncomplete)
	}
	d := idx.Video.DurationSeconds
	if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return fmt.Errorf("%w: invalid duration %v", ErrIndexIncomplete, d)
	}

	prev := 0.0
	for i, kf := range idx.Keyframes {
		if kf.Timestamp < -tolerance || kf.Timestamp > d+tolerance {
			return fmt.Errorf("%w: keyframe %d at %.3fs outside [0, %.3f]", ErrIndexIncomplete, i, kf.Timestamp, d)
		}
		if kf.Timestamp < prev {
			return fmt.Errorf("%w: keyframe %d out of order", ErrIndexIncomplete, i)
		}
		prev = kf.Timestamp
	}

	if len(idx.Segments) == 0 {
		return fmt.Errorf("%w: no transcript segments", ErrIndexIncomplete)
	}
	cursor := 0.0
	for i, s := range idx.Segments {
		if math.Abs(s.Start-cursor) > tolerance {
			if s.Start > cursor {
				return fmt.Errorf("%w: gap [%.3f, %.3f) before segment %d", ErrIndexIncomplete, cursor, s.Start, i)
			}
			return fmt.Errorf("%w: segment %d overlaps its predecessor", ErrIndexIncomplete, i)
		}
		if s.Duration() <= 0 {
			return fmt.Errorf("%w: segment %d is empty", ErrIndexIncomplete, i)
		}
		cursor = s.End
	}
	if math.Abs(cursor-d) > tolerance {
		return fmt.Errorf("%w: transcript ends at %.3f, video at %.3f", ErrIndexIncomplete, cursor, d)
	}
	return nil
}

// Entries merges keyframes and segments into one time-ordered list. At equal
// timestamps visual entries come first.
func (idx *ContextIndex) Entries() []Entry {
	out := make([]Entry, 0, len(idx.Keyframes)+len(idx.Segments))
	i, j := 0, 0
	for i < len(idx.Keyframes) || j < len(idx.Segments) {
		if j >= len(idx.Segments) || (i < len(idx.Keyframes) && idx.Keyframes[i].Timestamp <= idx.Segments[j].Start) {
			kf := idx.Keyframes[i]
			out = append(out, Entry{
				Timestamp:  kf.Timestamp,
				Source:     SourceVisual,
				Text:       kf.Text,
				Confidence: kf.Confidence,
				FrameRef:   kf.FrameRef,
			})
			i++
			continue
		}
		s := idx.Segments[j]
		out = append(out, Entry{
			Timestamp:  s.Start,
			End:        s.End,
			Source:     SourceSpoken,
			Text:       s.Text,
			Confidence: s.Confidence,
		})
		j++
	}
	return out
}
