package keyframe

import "fmt"

// Config controls frame sampling. Fields tagged json:"-" do not change the
// extracted frames and are left out of index fingerprints.
type Config struct {
	// SampleIntervalSeconds is the longest gap between two sampled frames.
	SampleIntervalSeconds float64 `json:"sample_interval_seconds"`

	// SceneChangeThreshold is ffmpeg's scene score (0-1) above which a
	// frame is sampled regardless of the interval.
	SceneChangeThreshold float64 `json:"scene_change_threshold"`

	// DuplicateThreshold is the mean pixel difference (0-1) from the
	// previous retained frame below which a frame is dropped.
	DuplicateThreshold float64 `json:"duplicate_threshold"`

	// MaxFrames caps the retained frames. 0 means unlimited.
	MaxFrames int `json:"max_frames"`

	Workers int    `json:"-"`
	WorkDir string `json:"-"`

	// KeepFrames leaves sampled images on disk after indexing.
	KeepFrames bool `json:"-"`
}

// DefaultConfig returns sensible defaults for lecture-style video.
func DefaultConfig() Config {
	return Config{
		SampleIntervalSeconds: 5,
		SceneChangeThreshold:  0.3,
		DuplicateThreshold:    0.02,
		MaxFrames:             720,
		Workers:               4,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.SampleIntervalSeconds <= 0 {
		return fmt.Errorf("sample interval must be positive, got %v", c.SampleIntervalSeconds)
	}
	if c.SceneChangeThreshold < 0 || c.SceneChangeThreshold > 1 {
		return fmt.Errorf("scene change threshold must be in [0,1], got %v", c.SceneChangeThreshold)
	}
	if c.DuplicateThreshold < 0 || c.DuplicateThreshold > 1 {
		return fmt.Errorf("duplicate threshold must be in [0,1], got %v", c.DuplicateThreshold)
	}
	if c.MaxFrames < 0 {
		return fmt.Errorf("max frames must not be negative, got %d", c.MaxFrames)
	}
	return nil
}
