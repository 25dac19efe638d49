package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/abhisek/vidtutor/internal/llm"
)

const visionSystemPrompt = `You transcribe the text visible in a single frame of a programming lecture.
Copy code, slide titles and bullet points exactly as shown, one line per visual line.
Do not describe images and do not add text that is not visible.
Report your confidence in the transcription between 0 and 1. If no text is visible, return an empty string with confidence 0.`

// visionSchema is the structured output expected from a vision model.
var visionSchema = &llm.Schema{
	Name:        "frame-text",
	Description: "Text visible in a video frame",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text":       map[string]any{"type": "string"},
			"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		},
		"required":             []any{"text", "confidence"},
		"additionalProperties": false,
	},
}

// VisionEngine recognizes text with a multimodal LLM.
type VisionEngine struct {
	provider  llm.Provider
	readFile  func(string) ([]byte, error)
	maxTokens int
}

// NewVisionEngine creates a VisionEngine. Callers wrap provider with
// llm.WithRetry for transient failures.
func NewVisionEngine(provider llm.Provider) *VisionEngine {
	return &VisionEngine{provider: provider, readFile: os.ReadFile, maxTokens: 1024}
}

func (v *VisionEngine) Recognize(ctx context.Context, frameRef string) (Result, error) {
	data, err := v.readFile(frameRef)
	if err != nil {
		return Result{}, fmt.Errorf("read frame: %w", err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(frameRef))
	if mimeType == "" {
		mimeType = "image/png"
	}

	resp, err := v.provider.Generate(llm.WithPurpose(ctx, llm.PurposeOCR), llm.Request{
		System: visionSystemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "Transcribe the visible text in this frame."},
		},
		Images:      []llm.Image{{MIMEType: mimeType, Data: data}},
		Schema:      visionSchema,
		MaxTokens:   v.maxTokens,
		Temperature: 0,
	})
	if err != nil {
		return Result{}, err
	}

	var res Result
	if err := json.Unmarshal(resp.Content, &res); err != nil {
		return Result{}, fmt.Errorf("parse vision output: %w", err)
	}
	return res, nil
}
