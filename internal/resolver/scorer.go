package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/abhisek/vidtutor/internal/llm"
	"github.com/abhisek/vidtutor/internal/logger"
	"github.com/abhisek/vidtutor/internal/media"
)

// Scorer assigns each candidate a relevance in [0, 1] for a signature.
// Implementations return one score per candidate, in candidate order.
type Scorer interface {
	Score(ctx context.Context, sig ErrorSignature, candidates []Candidate) ([]float64, error)
}

// LexicalScorer scores by IDF-weighted overlap between the signature's
// terms and a candidate's tokens, scaled by extraction confidence. IDF is
// computed over the candidate set, so terms that appear everywhere in a
// lecture count for little.
type LexicalScorer struct {
	// MarkerWeight multiplies the weight of terms taken from markers.
	MarkerWeight float64
}

func (s LexicalScorer) Score(_ context.Context, sig ErrorSignature, candidates []Candidate) ([]float64, error) {
	scores := make([]float64, len(candidates))

	weights := make(map[string]float64)
	for _, t := range sig.Tokens {
		for _, tok := range tokenize(t) {
			weights[tok] = max(weights[tok], 1)
		}
	}
	for _, m := range sig.Markers {
		for _, tok := range tokenize(m) {
			weights[tok] = max(weights[tok], s.MarkerWeight)
		}
	}
	if len(weights) == 0 || len(candidates) == 0 {
		return scores, nil
	}

	sets := make([]map[string]struct{}, len(candidates))
	df := make(map[string]int, len(weights))
	for i, c := range candidates {
		set := make(map[string]struct{})
		for _, tok := range tokenize(c.Text) {
			set[tok] = struct{}{}
		}
		sets[i] = set
		for tok := range weights {
			if _, ok := set[tok]; ok {
				df[tok]++
			}
		}
	}

	n := float64(len(candidates))
	idf := make(map[string]float64, len(weights))
	var total float64
	for tok, w := range weights {
		idf[tok] = math.Log((n + 1) / (float64(df[tok]) + 0.5))
		total += w * idf[tok]
	}
	if total <= 0 {
		return scores, nil
	}

	for i, c := range candidates {
		var hit float64
		for tok, w := range weights {
			if _, ok := sets[i][tok]; ok {
				hit += w * idf[tok]
			}
		}
		scores[i] = hit / total * media.ClampConfidence(c.Confidence)
	}
	return scores, nil
}

// EmbeddingScorer scores by cosine similarity between the signature text
// and each candidate's text, scaled by extraction confidence. Similarities
// at or below baseline map to zero; the rest are stretched onto [0, 1].
type EmbeddingScorer struct {
	embedder llm.Embedder
	baseline float64
}

// NewEmbeddingScorer creates a scorer backed by embedder. baseline is the
// similarity unrelated texts typically reach with this embedder.
func NewEmbeddingScorer(embedder llm.Embedder, baseline float64) *EmbeddingScorer {
	return &EmbeddingScorer{embedder: embedder, baseline: min(max(baseline, 0), 0.99)}
}

func (s *EmbeddingScorer) Score(ctx context.Context, sig ErrorSignature, candidates []Candidate) ([]float64, error) {
	scores := make([]float64, len(candidates))
	if len(candidates) == 0 {
		return scores, nil
	}

	texts := make([]string, 0, len(candidates)+1)
	texts = append(texts, sig.Text())
	for _, c := range candidates {
		texts = append(texts, c.Text)
	}
	vecs, err := s.embedder.Embed(llm.WithPurpose(ctx, llm.PurposeEmbed), texts)
	if err != nil {
		return nil, fmt.Errorf("embed candidates: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embed candidates: got %d vectors for %d texts", len(vecs), len(texts))
	}

	for i, c := range candidates {
		sim := (cosine(vecs[0], vecs[i+1]) - s.baseline) / (1 - s.baseline)
		scores[i] = max(sim, 0) * media.ClampConfidence(c.Confidence)
	}
	return scores, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// FallbackScorer consults Secondary only when Primary finds nothing: its
// best score is below NearZero. A Secondary failure degrades to the
// Primary's scores.
type FallbackScorer struct {
	Primary   Scorer
	Secondary Scorer
	NearZero  float64
	Logger    *slog.Logger
}

func (s FallbackScorer) Score(ctx context.Context, sig ErrorSignature, candidates []Candidate) ([]float64, error) {
	scores, err := s.Primary.Score(ctx, sig, candidates)
	if err != nil {
		return nil, err
	}
	if s.Secondary == nil || len(candidates) == 0 {
		return scores, nil
	}

	best := 0.0
	for _, sc := range scores {
		best = max(best, sc)
	}
	if best >= s.NearZero {
		return scores, nil
	}

	fallback, err := s.Secondary.Score(ctx, sig, candidates)
	if err != nil {
		logger.OrDefault(s.Logger).WarnContext(ctx, "fallback scorer failed; keeping primary scores", "error", err)
		return scores, nil
	}
	return fallback, nil
}
