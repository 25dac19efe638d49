package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/vidtutor/internal/logger"
	"github.com/abhisek/vidtutor/internal/media"
)

// WhisperEngine extracts the audio track in chunks with ffmpeg and
// transcribes each chunk with the OpenAI transcription API.
type WhisperEngine struct {
	client *openai.Client
	runner media.Runner
	ffmpeg string
	config Config
	logger *slog.Logger
}

// NewWhisperEngine creates a WhisperEngine. baseURL may be empty.
func NewWhisperEngine(apiKey, baseURL string, cfg Config, log *slog.Logger) (*WhisperEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required for whisper transcription")
	}
	oc := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		oc.BaseURL = baseURL
	}
	return &WhisperEngine{
		client: openai.NewClientWithConfig(oc),
		runner: media.ExecRunner{},
		ffmpeg: "ffmpeg",
		config: cfg,
		logger: logger.OrDefault(log),
	}, nil
}

type chunk struct {
	index  int
	start  float64
	length float64
	path   string
}

func (w *WhisperEngine) Transcribe(ctx context.Context, asset media.VideoAsset) ([]media.TranscriptSegment, error) {
	if asset.DurationSeconds <= 0 {
		return nil, media.Unreadable(asset.FileRef, errors.New("unknown duration"))
	}

	dir, err := os.MkdirTemp(w.config.WorkDir, "vidtutor-audio-*")
	if err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	defer os.RemoveAll(dir)

	chunks := planChunks(asset.DurationSeconds, w.config.ChunkSeconds, dir)
	results := make([][]media.TranscriptSegment, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(w.config.Workers, 1))
	for _, c := range chunks {
		g.Go(func() error {
			if err := w.extractAudio(gctx, asset.FileRef, c); err != nil {
				return err
			}
			segs, err := w.transcribeChunk(gctx, asset.FileRef, c)
			if err != nil {
				return err
			}
			results[c.index] = segs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []media.TranscriptSegment
	for _, r := range results {
		out = append(out, r...)
	}
	w.logger.InfoContext(ctx, "transcription complete",
		"file", asset.FileRef,
		"chunks", len(chunks),
		"segments", len(out))
	return out, nil
}

// planChunks splits [0,duration) into consecutive chunks of at most size
// seconds.
func planChunks(duration, size float64, dir string) []chunk {
	if size <= 0 {
		size = duration
	}
	n := int(math.Ceil(duration / size))
	chunks := make([]chunk, 0, n)
	for i := range n {
		start := float64(i) * size
		chunks = append(chunks, chunk{
			index:  i,
			start:  start,
			length: math.Min(size, duration-start),
			path:   filepath.Join(dir, fmt.Sprintf("chunk_%04d.mp3", i)),
		})
	}
	return chunks
}

func (w *WhisperEngine) extractAudio(ctx context.Context, fileRef string, c chunk) error {
	_, err := w.runner.Run(ctx, w.ffmpeg,
		"-hide_banner", "-nostdin", "-y",
		"-ss", strconv.FormatFloat(c.start, 'f', 3, 64),
		"-t", strconv.FormatFloat(c.length, 'f', 3, 64),
		"-i", fileRef,
		"-vn", "-ac", "1", "-ar", "16000", "-b:a", "64k",
		c.path,
	)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return media.Unreadable(fileRef, fmt.Errorf("extract audio chunk %d: %w", c.index, err))
	}
	return nil
}

func (w *WhisperEngine) transcribeChunk(ctx context.Context, fileRef string, c chunk) ([]media.TranscriptSegment, error) {
	req := openai.AudioRequest{
		Model:    w.config.Model,
		FilePath: c.path,
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: w.config.Language,
	}
	if req.Model == "" {
		req.Model = openai.Whisper1
	}

	attempts := max(w.config.MaxAttempts, 1)
	var resp openai.AudioResponse
	var err error
	for attempt := range attempts {
		resp, err = w.client.CreateTranscription(ctx, req)
		if err == nil {
			break
		}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusBadRequest {
			return nil, media.Unreadable(fileRef, fmt.Errorf("transcribe chunk %d: %w", c.index, err))
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(1<<attempt) * 500 * time.Millisecond):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("transcribe chunk %d: %w", c.index, err)
	}

	segs := make([]media.TranscriptSegment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segs = append(segs, media.TranscriptSegment{
			Start:      c.start + s.Start,
			End:        c.start + s.End,
			Text:       s.Text,
			Confidence: segmentConfidence(s.AvgLogprob, s.NoSpeechProb),
		})
	}
	return segs, nil
}

// segmentConfidence turns whisper's mean token log-probability and
// no-speech probability into a [0,1] score.
func segmentConfidence(avgLogprob, noSpeechProb float64) float64 {
	return media.ClampConfidence(math.Exp(avgLogprob) * (1 - noSpeechProb))
}

// NewEngine builds the configured engine, wrapped in Normalizing. With
// "auto", a subtitle sidecar wins over whisper when one exists.
func NewEngine(cfg Config, openaiKey, openaiBaseURL string, log *slog.Logger) (Engine, error) {
	switch cfg.Engine {
	case "subtitle":
		return Normalizing{Engine: SubtitleEngine{}}, nil
	case "whisper":
		w, err := NewWhisperEngine(openaiKey, openaiBaseURL, cfg, log)
		if err != nil {
			return nil, err
		}
		return Normalizing{Engine: w}, nil
	case "auto":
		var fallback Engine
		if openaiKey != "" {
			w, err := NewWhisperEngine(openaiKey, openaiBaseURL, cfg, log)
			if err != nil {
				return nil, err
			}
			fallback = w
		}
		return Normalizing{Engine: autoEngine{fallback: fallback, logger: logger.OrDefault(log)}}, nil
	default:
		return nil, fmt.Errorf("unknown transcription engine %q", cfg.Engine)
	}
}

// autoEngine prefers a subtitle sidecar and falls back to speech
// recognition. With neither available the transcript is all silence.
type autoEngine struct {
	fallback Engine
	logger   *slog.Logger
}

func (a autoEngine) Transcribe(ctx context.Context, asset media.VideoAsset) ([]media.TranscriptSegment, error) {
	if Sidecar(asset.FileRef) != "" {
		return SubtitleEngine{}.Transcribe(ctx, asset)
	}
	if a.fallback == nil {
		a.logger.WarnContext(ctx, "no subtitle sidecar and no speech engine configured, transcript left empty",
			"file", asset.FileRef)
		return nil, nil
	}
	return a.fallback.Transcribe(ctx, asset)
}
