package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/vidtutor/internal/llm"
	"github.com/abhisek/vidtutor/internal/media"
)

// scriptedEngine returns queued results per frame; an exhausted queue
// repeats the last entry.
type scriptedEngine struct {
	mu      sync.Mutex
	scripts map[string][]scripted
	calls   map[string]int
}

type scripted struct {
	res Result
	err error
}

func newScripted(scripts map[string][]scripted) *scriptedEngine {
	return &scriptedEngine{scripts: scripts, calls: map[string]int{}}
}

func (s *scriptedEngine) Recognize(ctx context.Context, ref string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.calls[ref]
	s.calls[ref]++
	q := s.scripts[ref]
	if len(q) == 0 {
		return Result{}, errors.New("unknown frame")
	}
	if n >= len(q) {
		n = len(q) - 1
	}
	return q[n].res, q[n].err
}

func frames(refs ...string) []media.Keyframe {
	out := make([]media.Keyframe, len(refs))
	for i, r := range refs {
		out[i] = media.Keyframe{Timestamp: float64(i * 10), FrameRef: r}
	}
	return out
}

func TestAnnotate(t *testing.T) {
	engine := newScripted(map[string][]scripted{
		"title":    {{res: Result{Text: "  quicksort   pivot selection \n\n", Confidence: 0.93}}},
		"blurry":   {{res: Result{Text: "qu1cks0rt", Confidence: 0.2}}},
		"flaky":    {{err: errors.New("engine crashed")}, {res: Result{Text: "base case", Confidence: 0.8}}},
		"broken":   {{err: errors.New("engine crashed")}},
		"overconf": {{res: Result{Text: "return", Confidence: 7}}},
	})
	in := frames("title", "blurry", "flaky", "broken", "overconf")

	out, err := NewExtractor(engine, DefaultConfig(), nil).Annotate(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 5)

	assert.Equal(t, "quicksort pivot selection", out[0].Text)
	assert.InDelta(t, 0.93, out[0].Confidence, 1e-9)

	assert.Empty(t, out[1].Text, "below floor is blanked")
	assert.InDelta(t, 0.2, out[1].Confidence, 1e-9)
	assert.Equal(t, 10.0, out[1].Timestamp, "keyframe kept")

	assert.Equal(t, "base case", out[2].Text, "retried")

	assert.Empty(t, out[3].Text)
	assert.Zero(t, out[3].Confidence)
	assert.Equal(t, 2, engine.calls["broken"])

	assert.Equal(t, 1.0, out[4].Confidence)

	assert.Empty(t, in[0].Text, "input not mutated")
}

func TestAnnotate_Cancelled(t *testing.T) {
	engine := newScripted(map[string][]scripted{"a": {{res: Result{Text: "x", Confidence: 1}}}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExtractor(engine, DefaultConfig(), nil).Annotate(ctx, frames("a"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestAnnotate_Empty(t *testing.T) {
	out, err := NewExtractor(newScripted(nil), DefaultConfig(), nil).Annotate(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Engine = "paddle"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MinConfidence = 2
	assert.Error(t, cfg.Validate())
}

func TestVisionEngine(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{
		Content: json.RawMessage(`{"text":"def quicksort(arr):\n    pivot = arr[0]","confidence":0.88}`),
	})
	v := NewVisionEngine(mock)
	v.readFile = func(string) ([]byte, error) { return []byte("jpegbytes"), nil }

	res, err := v.Recognize(context.Background(), "/frames/frame_000002.jpg")
	require.NoError(t, err)
	assert.Contains(t, res.Text, "pivot = arr[0]")
	assert.InDelta(t, 0.88, res.Confidence, 1e-9)

	call := mock.LastCall()
	require.Len(t, call.Images, 1)
	assert.Equal(t, "image/jpeg", call.Images[0].MIMEType)
	assert.Equal(t, "frame-text", call.Schema.Name)
}

func TestVisionEngine_ReadError(t *testing.T) {
	v := NewVisionEngine(llm.NewMockProvider())
	v.readFile = func(string) ([]byte, error) { return nil, errors.New("gone") }

	_, err := v.Recognize(context.Background(), "missing.png")
	require.Error(t, err)
}
