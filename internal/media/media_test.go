package media

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	out  []byte
	err  error
	args []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (Output, error) {
	f.args = append([]string{name}, args...)
	return Output{Stdout: f.out}, f.err
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0:00"},
		{18, "0:18"},
		{18.9, "0:18"},
		{240, "4:00"},
		{599.99, "9:59"},
		{3725, "1:02:05"},
		{-3, "0:00"},
		{math.NaN(), "0:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTimestamp(tt.in), "FormatTimestamp(%v)", tt.in)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"0:18", 18, false},
		{"4:00", 240, false},
		{"1:02:05", 3725, false},
		{" 12:30 ", 750, false},
		{"18", 0, true},
		{"0:8", 0, true},
		{"0:60", 0, true},
		{"a:10", 0, true},
		{"1:2:3:4", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	for _, sec := range []int64{0, 7, 59, 60, 61, 3599, 3600, 7322} {
		got, err := ParseTimestamp(FormatTimestamp(float64(sec)))
		require.NoError(t, err)
		assert.Equal(t, sec, got)
	}
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, ClampConfidence(-0.2))
	assert.Equal(t, 1.0, ClampConfidence(1.7))
	assert.Equal(t, 0.4, ClampConfidence(0.4))
	assert.Equal(t, 0.0, ClampConfidence(math.NaN()))
}

func TestTranscriptSegmentDuration(t *testing.T) {
	assert.Equal(t, 20.0, TranscriptSegment{Start: 240, End: 260}.Duration())
}

func TestFFProbeDuration(t *testing.T) {
	r := &fakeRunner{out: []byte(`{"format":{"duration":"300.040000"}}`)}
	p := &FFProbe{Binary: "ffprobe", Runner: r}

	d, err := p.Duration(context.Background(), "lecture.mp4")
	require.NoError(t, err)
	assert.InDelta(t, 300.04, d, 1e-9)
	assert.Equal(t, "lecture.mp4", r.args[len(r.args)-1])
}

func TestFFProbeDuration_Unreadable(t *testing.T) {
	tests := []struct {
		name string
		r    *fakeRunner
	}{
		{"tool fails", &fakeRunner{err: errors.New("exit status 1")}},
		{"garbage output", &fakeRunner{out: []byte("not json")}},
		{"missing duration", &fakeRunner{out: []byte(`{"format":{}}`)}},
		{"zero duration", &fakeRunner{out: []byte(`{"format":{"duration":"0"}}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &FFProbe{Binary: "ffprobe", Runner: tt.r}
			_, err := p.Duration(context.Background(), "broken.mp4")
			require.ErrorIs(t, err, ErrMediaUnreadable)
		})
	}
}

type fixedProber float64

func (f fixedProber) Duration(context.Context, string) (float64, error) { return float64(f), nil }

func TestInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("not really a video"), 0o644))

	a, err := Inspect(context.Background(), fixedProber(300), path)
	require.NoError(t, err)
	assert.Equal(t, 300.0, a.DurationSeconds)
	assert.Len(t, a.ContentHash, 64)
	assert.False(t, a.ProcessedAt.IsZero())

	again, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, a.ContentHash, again)
}

func TestInspect_MissingFile(t *testing.T) {
	_, err := Inspect(context.Background(), fixedProber(300), filepath.Join(t.TempDir(), "missing.mp4"))
	require.ErrorIs(t, err, ErrMediaUnreadable)
}
