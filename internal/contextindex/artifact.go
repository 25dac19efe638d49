package contextindex

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/mod/semver"

	"github.com/abhisek/vidtutor/internal/media"
)

// FormatVersion is the version of the persisted artifact layout. Readers
// accept any artifact with the same major version.
const FormatVersion = "v1.0.0"

// ErrIncompatibleFormat is returned when a stored artifact was written by an
// incompatible version.
var ErrIncompatibleFormat = errors.New("incompatible context index format")

type artifact struct {
	FormatVersion  string           `json:"format_version"`
	LearningItemID string           `json:"learning_item_id"`
	ConfigHash     string           `json:"config_hash"`
	BuiltAt        time.Time        `json:"built_at"`
	Video          media.VideoAsset `json:"video"`
	Records        []record         `json:"records"`
}

type record struct {
	Timestamp  float64  `json:"timestamp"`
	End        *float64 `json:"end,omitempty"`
	Source     Source   `json:"source"`
	Text       string   `json:"text"`
	Confidence float64  `json:"confidence"`
	FrameRef   string   `json:"frame_ref,omitempty"`
}

// Marshal encodes the index as its persisted JSON artifact.
func Marshal(idx *ContextIndex) ([]byte, error) {
	entries := idx.Entries()
	a := artifact{
		FormatVersion:  FormatVersion,
		LearningItemID: idx.LearningItemID,
		ConfigHash:     idx.ConfigHash,
		BuiltAt:        idx.BuiltAt.UTC(),
		Video:          idx.Video,
		Records:        make([]record, 0, len(entries)),
	}
	for _, e := range entries {
		r := record{
			Timestamp:  e.Timestamp,
			Source:     e.Source,
			Text:       e.Text,
			Confidence: e.Confidence,
			FrameRef:   e.FrameRef,
		}
		if e.Source == SourceSpoken {
			end := e.End
			r.End = &end
		}
		a.Records = append(a.Records, r)
	}
	return json.Marshal(a)
}

// Unmarshal decodes and revalidates a persisted artifact.
func Unmarshal(data []byte) (*ContextIndex, error) {
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode context index: %w", err)
	}
	if !semver.IsValid(a.FormatVersion) || semver.Major(a.FormatVersion) != semver.Major(FormatVersion) {
		return nil, fmt.Errorf("%w: %q (want %s)", ErrIncompatibleFormat, a.FormatVersion, semver.Major(FormatVersion))
	}

	idx := &ContextIndex{
		LearningItemID: a.LearningItemID,
		Video:          a.Video,
		ConfigHash:     a.ConfigHash,
		BuiltAt:        a.BuiltAt,
	}
	for i, r := range a.Records {
		switch r.Source {
		case SourceVisual:
			idx.Keyframes = append(idx.Keyframes, media.Keyframe{
				Timestamp:  r.Timestamp,
				FrameRef:   r.FrameRef,
				Text:       r.Text,
				Confidence: r.Confidence,
			})
		case SourceSpoken:
			if r.End == nil {
				return nil, fmt.Errorf("%w: spoken record %d has no end", ErrIndexIncomplete, i)
			}
			idx.Segments = append(idx.Segments, media.TranscriptSegment{
				Start:      r.Timestamp,
				End:        *r.End,
				Text:       r.Text,
				Confidence: r.Confidence,
			})
		default:
			return nil, fmt.Errorf("decode context index: record %d has unknown source %q", i, r.Source)
		}
	}
	if err := idx.Validate(); err != nil {
		return nil, err
	}
	return idx, nil
}

// Fingerprint hashes the JSON encoding of the extraction settings that
// shaped an index. Fields tagged `json:"-"` do not contribute.
func Fingerprint(settings any) (string, error) {
	b, err := json.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("fingerprint config: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8]), nil
}
