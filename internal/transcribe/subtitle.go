package transcribe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/abhisek/vidtutor/internal/media"
)

// ErrNoSidecar is returned when a video has no subtitle file next to it.
var ErrNoSidecar = errors.New("no subtitle sidecar")

// SubtitleEngine reads an .srt or .vtt file stored next to the video
// (lecture.mp4 -> lecture.srt / lecture.vtt).
type SubtitleEngine struct{}

// Sidecar returns the subtitle path for fileRef, or "" if none exists.
func Sidecar(fileRef string) string {
	base := strings.TrimSuffix(fileRef, filepath.Ext(fileRef))
	for _, ext := range []string{".srt", ".vtt"} {
		if st, err := os.Stat(base + ext); err == nil && !st.IsDir() {
			return base + ext
		}
	}
	return ""
}

func (SubtitleEngine) Transcribe(ctx context.Context, asset media.VideoAsset) ([]media.TranscriptSegment, error) {
	path := Sidecar(asset.FileRef)
	if path == "" {
		return nil, fmt.Errorf("%w for %s", ErrNoSidecar, asset.FileRef)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, media.Unreadable(path, err)
	}
	defer f.Close()

	segs, err := parseCues(bufio.NewScanner(f))
	if err != nil {
		return nil, media.Unreadable(path, err)
	}
	return segs, nil
}

var (
	cueTiming = regexp.MustCompile(`^\s*([0-9:.,]+)\s*-->\s*([0-9:.,]+)`)
	markupTag = regexp.MustCompile(`<[^>]*>`)
)

// parseCues reads SRT and WebVTT cue blocks. Cue numbers, headers and NOTE
// blocks are ignored.
func parseCues(sc *bufio.Scanner) ([]media.TranscriptSegment, error) {
	var (
		out  []media.TranscriptSegment
		cur  *media.TranscriptSegment
		text []string
	)
	flush := func() {
		if cur != nil {
			cur.Text = strings.Join(text, " ")
			out = append(out, *cur)
		}
		cur, text = nil, nil
	}

	for sc.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff"))
		if line == "" {
			flush()
			continue
		}
		if m := cueTiming.FindStringSubmatch(line); m != nil {
			flush()
			start, err := parseCueTime(m[1])
			if err != nil {
				return nil, err
			}
			end, err := parseCueTime(m[2])
			if err != nil {
				return nil, err
			}
			cur = &media.TranscriptSegment{Start: start, End: end, Confidence: 1}
			continue
		}
		if cur != nil {
			if t := strings.TrimSpace(markupTag.ReplaceAllString(line, "")); t != "" {
				text = append(text, t)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()
	return out, nil
}

// parseCueTime parses hh:mm:ss,mmm, hh:mm:ss.mmm or mm:ss.mmm.
func parseCueTime(s string) (float64, error) {
	s = strings.Replace(s, ",", ".", 1)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid cue time %q", s)
	}
	var total float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid cue time %q", s)
		}
		if i < len(parts)-1 {
			total = (total + v) * 60
		} else {
			total += v
		}
	}
	return total, nil
}
