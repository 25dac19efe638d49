package ocr

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/abhisek/vidtutor/internal/media"
)

// TesseractEngine runs the tesseract CLI and reads its TSV output.
type TesseractEngine struct {
	Binary   string
	Language string
	Runner   media.Runner
}

// NewTesseractEngine returns an engine using the tesseract on PATH.
func NewTesseractEngine(language string) *TesseractEngine {
	if language == "" {
		language = "eng"
	}
	return &TesseractEngine{Binary: "tesseract", Language: language, Runner: media.ExecRunner{}}
}

func (t *TesseractEngine) Recognize(ctx context.Context, frameRef string) (Result, error) {
	out, err := t.Runner.Run(ctx, t.Binary, frameRef, "stdout", "-l", t.Language, "--psm", "11", "tsv")
	if err != nil {
		return Result{}, fmt.Errorf("tesseract %s: %w", frameRef, err)
	}
	return parseTSV(out.Stdout)
}

// parseTSV joins word-level rows (level 5) into lines and averages their
// confidences. Tesseract reports conf in 0-100 and -1 for non-word rows.
func parseTSV(data []byte) (Result, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		lines   []string
		current []string
		lineKey string
		confSum float64
		words   int
		sawHead bool
	)
	flush := func() {
		if len(current) > 0 {
			lines = append(lines, strings.Join(current, " "))
			current = nil
		}
	}

	for sc.Scan() {
		cols := strings.Split(sc.Text(), "\t")
		if !sawHead {
			sawHead = true
			if len(cols) > 0 && cols[0] == "level" {
				continue
			}
		}
		if len(cols) < 12 || cols[0] != "5" {
			continue
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil || conf < 0 {
			continue
		}
		word := strings.TrimSpace(cols[11])
		if word == "" {
			continue
		}
		key := strings.Join(cols[1:5], ".")
		if key != lineKey {
			flush()
			lineKey = key
		}
		current = append(current, word)
		confSum += conf
		words++
	}
	if err := sc.Err(); err != nil {
		return Result{}, fmt.Errorf("read tesseract output: %w", err)
	}
	flush()

	if words == 0 {
		return Result{}, nil
	}
	return Result{
		Text:       strings.Join(lines, "\n"),
		Confidence: confSum / float64(words) / 100,
	}, nil
}
