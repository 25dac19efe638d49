package keyframe

import (
	"bufio"
	"bytes"
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

// Frame is one decoded frame on disk.
type Frame struct {
	Timestamp float64
	Ref       string
}

// FrameSource samples candidate frames from a video. Frames may come back
// in any order.
type FrameSource interface {
	Frames(ctx context.Context, asset media.VideoAsset) ([]Frame, error)
}

// FrameReleaser is implemented by sources whose frames are temporary files.
// Release deletes the storage behind refs; refs it did not create are ignored.
type FrameReleaser interface {
	Release(refs []string) error
}

// FFmpegSource samples frames with ffmpeg's select filter, combining a
// fixed interval with scene-change detection, and writes them as PNGs.
//
// Every Frames call writes into a fresh directory under Config.WorkDir (the
// system temp dir when empty), so builds of the same video never share
// files. The caller owns that directory and hands it back with Release.
type FFmpegSource struct {
	Binary string
	Runner media.Runner
	Config Config
}

// NewFFmpegSource returns a source using the ffmpeg on PATH.
func NewFFmpegSource(cfg Config) *FFmpegSource {
	return &FFmpegSource{Binary: "ffmpeg", Runner: media.ExecRunner{}, Config: cfg}
}

// showinfo lines look like:
// [Parsed_showinfo_1 @ 0x5581] n:   3 pts: 540540 pts_time:18.018  duration:...
var showinfoRe = regexp.MustCompile(`\bn:\s*(\d+)\s+pts:\s*-?\d+\s+pts_time:\s*(-?[0-9.]+)`)

func (s *FFmpegSource) Frames(ctx context.Context, asset media.VideoAsset) ([]Frame, error) {
	dir, err := s.frameDir(asset)
	if err != nil {
		return nil, fmt.Errorf("prepare frame dir: %w", err)
	}

	out, err := s.Runner.Run(ctx, s.Binary, s.args(asset.FileRef, dir)...)
	if err != nil {
		_ = os.RemoveAll(dir)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, media.Unreadable(asset.FileRef, err)
	}

	frames := parseShowinfo(out.Stderr, dir)
	if len(frames) == 0 {
		_ = os.RemoveAll(dir)
	}
	return frames, nil
}

func (s *FFmpegSource) args(fileRef, dir string) []string {
	filter := fmt.Sprintf(
		"select='isnan(prev_selected_t)+gte(t-prev_selected_t,%s)+gt(scene,%s)',showinfo",
		strconv.FormatFloat(s.Config.SampleIntervalSeconds, 'f', -1, 64),
		strconv.FormatFloat(s.Config.SceneChangeThreshold, 'f', -1, 64),
	)
	return []string{
		"-hide_banner", "-nostdin",
		"-i", fileRef,
		"-vf", filter,
		"-fps_mode", "vfr",
		"-f", "image2",
		filepath.Join(dir, "frame_%06d.png"),
	}
}

const framePrefix = "vidtutor-frames-"

func (s *FFmpegSource) root() string {
	if s.Config.WorkDir == "" {
		return os.TempDir()
	}
	return s.Config.WorkDir
}

// frameDir creates a directory private to one Frames call. The content hash
// prefix only makes it recognizable.
func (s *FFmpegSource) frameDir(asset media.VideoAsset) (string, error) {
	name := asset.ContentHash
	if len(name) > 16 {
		name = name[:16]
	}
	if name == "" {
		name = "unhashed"
	}
	if err := os.MkdirAll(s.root(), 0o755); err != nil {
		return "", err
	}
	return os.MkdirTemp(s.root(), framePrefix+name+"-*")
}

// owns reports whether dir is a frame directory this source created.
func (s *FFmpegSource) owns(dir string) bool {
	return filepath.Dir(dir) == filepath.Clean(s.root()) &&
		strings.HasPrefix(filepath.Base(dir), framePrefix)
}

// Release removes the frame directories behind refs.
func (s *FFmpegSource) Release(refs []string) error {
	seen := make(map[string]bool)
	var errs []error
	for _, ref := range refs {
		dir := filepath.Dir(ref)
		if seen[dir] || !s.owns(dir) {
			continue
		}
		seen[dir] = true
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// parseShowinfo maps showinfo's frame counter to the image2 output names,
// which are numbered from 1.
func parseShowinfo(stderr []byte, dir string) []Frame {
	var frames []Frame
	sc := bufio.NewScanner(bytes.NewReader(stderr))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		m := showinfoRe.FindSubmatch(sc.Bytes())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(string(m[1]))
		if err != nil {
			continue
		}
		ts, err := strconv.ParseFloat(string(m[2]), 64)
		if err != nil {
			continue
		}
		frames = append(frames, Frame{
			Timestamp: ts,
			Ref:       filepath.Join(dir, fmt.Sprintf("frame_%06d.png", n+1)),
		})
	}
	return frames
}
