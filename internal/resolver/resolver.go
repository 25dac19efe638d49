// Package resolver maps an error signature onto the moments of a lecture
// video that explain it.
//
// Scoring is pluggable. Ranking, tie-breaking, separation and the relevance
// floor are fixed: higher score first, earlier timestamp on ties, no two
// matches closer than MinGapSeconds, nothing below Floor. Returning no
// match is always preferred over returning a weak one.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/abhisek/vidtutor/internal/contextindex"
	"github.com/abhisek/vidtutor/internal/logger"
	"github.com/abhisek/vidtutor/internal/media"
)

// Config controls ranking and filtering.
type Config struct {
	// K is the maximum number of matches returned.
	K int

	// MinGapSeconds is the minimum distance between any two matches.
	MinGapSeconds float64

	// Floor is the minimum relevance a candidate needs to be cited.
	Floor float64

	// MarkerWeight weights structural-marker terms relative to tokens.
	MarkerWeight float64

	// NearZero is the best lexical score under which the embedding
	// fallback is consulted.
	NearZero float64

	// Embeddings enables the embedding fallback when an embedder is
	// available.
	Embeddings bool

	// EmbeddingBaseline is the cosine similarity treated as unrelated.
	EmbeddingBaseline float64

	// SnippetLength caps the supporting snippet in runes.
	SnippetLength int
}

// DefaultConfig returns the recommended resolver settings.
func DefaultConfig() Config {
	return Config{
		K:                 3,
		MinGapSeconds:     30,
		Floor:             0.2,
		MarkerWeight:      2,
		NearZero:          0.05,
		Embeddings:        false,
		EmbeddingBaseline: 0.3,
		SnippetLength:     200,
	}
}

func (c Config) Validate() error {
	if c.K < 1 {
		return fmt.Errorf("resolver top k must be at least 1, got %d", c.K)
	}
	if c.MinGapSeconds < 0 {
		return fmt.Errorf("resolver min gap must not be negative, got %v", c.MinGapSeconds)
	}
	if c.Floor < 0 || c.Floor > 1 || math.IsNaN(c.Floor) {
		return fmt.Errorf("resolver floor must be in [0,1], got %v", c.Floor)
	}
	if c.MarkerWeight < 0 {
		return fmt.Errorf("resolver marker weight must not be negative, got %v", c.MarkerWeight)
	}
	return nil
}

// Candidate is one piece of indexed text that may be cited.
type Candidate struct {
	Timestamp  float64
	End        float64
	Source     contextindex.Source
	Text       string
	Confidence float64
}

// Match is one cited moment of the video.
type Match struct {
	Timestamp float64             `json:"timestamp"`
	End       float64             `json:"end,omitempty"`
	Source    contextindex.Source `json:"source"`
	Snippet   string              `json:"snippet"`
	Score     float64             `json:"score"`
}

// Label renders the match timestamp as it is cited in feedback.
func (m Match) Label() string {
	return media.FormatTimestamp(m.Timestamp)
}

// Matches is a ranked match list. An empty list means no grounding is
// available; it is a valid result, not an error.
type Matches []Match

// Grounded reports whether there is anything to cite.
func (m Matches) Grounded() bool {
	return len(m) > 0
}

// Labels returns the distinct cited timestamp labels in rank order.
func (m Matches) Labels() []string {
	seen := make(map[string]bool, len(m))
	var out []string
	for _, match := range m {
		l := match.Label()
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}

// Resolver ranks index content against error signatures. It holds no
// per-request state and is safe for concurrent use.
type Resolver struct {
	scorer Scorer
	config Config
	logger *slog.Logger
}

// New creates a Resolver. A nil scorer uses LexicalScorer.
func New(scorer Scorer, cfg Config, log *slog.Logger) *Resolver {
	if scorer == nil {
		scorer = LexicalScorer{MarkerWeight: cfg.MarkerWeight}
	}
	return &Resolver{scorer: scorer, config: cfg, logger: logger.OrDefault(log)}
}

// Candidates lists every keyframe and transcript segment of idx that has
// text, in time order.
func Candidates(idx *contextindex.ContextIndex) []Candidate {
	var out []Candidate
	for _, e := range idx.Entries() {
		if strings.TrimSpace(e.Text) == "" {
			continue
		}
		out = append(out, Candidate{
			Timestamp:  e.Timestamp,
			End:        e.End,
			Source:     e.Source,
			Text:       e.Text,
			Confidence: e.Confidence,
		})
	}
	return out
}

// Resolve returns up to K matches for sig in idx, ranked by descending
// score.
func (r *Resolver) Resolve(ctx context.Context, sig ErrorSignature, idx *contextindex.ContextIndex) (Matches, error) {
	sc := logger.StartSpan(ctx, "resolver.resolve")
	defer sc.End()
	ctx = logger.WithLogFields(sc.Context(), logger.LogFields{Component: "resolver"})

	candidates := Candidates(idx)
	if len(candidates) == 0 || sig.Empty() {
		r.logger.DebugContext(ctx, "no grounding available", "candidates", len(candidates))
		return Matches{}, nil
	}

	scores, err := r.scorer.Score(ctx, sig, candidates)
	if err != nil {
		sc.RecordError(err)
		return nil, fmt.Errorf("score candidates: %w", err)
	}
	if len(scores) != len(candidates) {
		return nil, fmt.Errorf("score candidates: got %d scores for %d candidates", len(scores), len(candidates))
	}

	matches := r.rank(candidates, scores)
	r.logger.DebugContext(ctx, "signature resolved",
		"candidates", len(candidates),
		"matches", len(matches))
	return matches, nil
}

func (r *Resolver) rank(candidates []Candidate, scores []float64) Matches {
	type scored struct {
		Candidate
		score float64
	}
	var pool []scored
	for i, c := range candidates {
		s := scores[i]
		if math.IsNaN(s) || s < r.config.Floor || s <= 0 {
			continue
		}
		pool = append(pool, scored{Candidate: c, score: min(s, 1)})
	}
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].score != pool[j].score {
			return pool[i].score > pool[j].score
		}
		return pool[i].Timestamp < pool[j].Timestamp
	})

	out := Matches{}
	for _, p := range pool {
		if len(out) >= r.config.K {
			break
		}
		tooClose := false
		for _, m := range out {
			if math.Abs(p.Timestamp-m.Timestamp) < r.config.MinGapSeconds {
				tooClose = true
				break
			}
		}
		if tooClose {
			continue
		}
		out = append(out, Match{
			Timestamp: p.Timestamp,
			End:       p.End,
			Source:    p.Source,
			Snippet:   snippet(p.Text, r.config.SnippetLength),
			Score:     p.score,
		})
	}
	return out
}

func snippet(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}
