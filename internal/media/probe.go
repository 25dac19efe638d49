package media

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"
)

// Output is what an external tool wrote.
type Output struct {
	Stdout []byte
	Stderr []byte
}

// Runner executes an external tool.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Output, error)
}

// ExecRunner runs binaries with os/exec. On failure the tail of stderr is
// folded into the error.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		msg := bytes.TrimSpace(out.Stderr)
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		return out, fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	return out, nil
}

// Prober reports the duration of a media file in seconds.
type Prober interface {
	Duration(ctx context.Context, fileRef string) (float64, error)
}

// FFProbe implements Prober with ffprobe.
type FFProbe struct {
	Binary string
	Runner Runner
}

// NewFFProbe returns an FFProbe using the ffprobe on PATH.
func NewFFProbe() *FFProbe {
	return &FFProbe{Binary: "ffprobe", Runner: ExecRunner{}}
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (p *FFProbe) Duration(ctx context.Context, fileRef string) (float64, error) {
	out, err := p.Runner.Run(ctx, p.Binary,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		fileRef,
	)
	if err != nil {
		return 0, Unreadable(fileRef, err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(out.Stdout, &parsed); err != nil {
		return 0, Unreadable(fileRef, fmt.Errorf("parse ffprobe output: %w", err))
	}
	d, err := strconv.ParseFloat(parsed.Format.Duration, 64)
	if err != nil || d <= 0 {
		return 0, Unreadable(fileRef, fmt.Errorf("no usable duration %q", parsed.Format.Duration))
	}
	return d, nil
}

// HashFile returns the hex sha256 of the file's bytes.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Inspect hashes and probes fileRef into a VideoAsset.
func Inspect(ctx context.Context, prober Prober, fileRef string) (VideoAsset, error) {
	hash, err := HashFile(fileRef)
	if err != nil {
		return VideoAsset{}, Unreadable(fileRef, err)
	}
	duration, err := prober.Duration(ctx, fileRef)
	if err != nil {
		return VideoAsset{}, err
	}
	return VideoAsset{
		ContentHash:     hash,
		FileRef:         fileRef,
		DurationSeconds: duration,
		ProcessedAt:     time.Now().UTC(),
	}, nil
}
