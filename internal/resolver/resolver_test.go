package resolver

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/vidtutor/internal/contextindex"
	"github.com/abhisek/vidtutor/internal/llm"
	"github.com/abhisek/vidtutor/internal/media"
)

// quicksortIndex is a five minute lecture: the pivot slide at 0:18 and a
// spoken remark about base cases at 4:00.
func quicksortIndex(t *testing.T) *contextindex.ContextIndex {
	t.Helper()
	idx, err := contextindex.Build("quicksort-101",
		media.VideoAsset{ContentHash: "h", FileRef: "quicksort.mp4", DurationSeconds: 300},
		[]media.Keyframe{
			{Timestamp: 0, Text: ""},
			{Timestamp: 18, Text: "quicksort pivot selection", Confidence: 0.93},
			{Timestamp: 95, Text: "def partition(arr, lo, hi):", Confidence: 0.88},
		},
		[]media.TranscriptSegment{
			{Start: 0, End: 240, Text: "welcome back, today we look at divide and conquer", Confidence: 0.9},
			{Start: 240, End: 260, Text: "the base case terminates recursion", Confidence: 0.9},
			{Start: 260, End: 300},
		})
	require.NoError(t, err)
	return idx
}

func TestResolve_PivotSlideOutranksUnrelatedSegment(t *testing.T) {
	r := New(nil, DefaultConfig(), nil)

	matches, err := r.Resolve(context.Background(), ErrorSignature{Tokens: []string{"pivot", "quicksort"}}, quicksortIndex(t))
	require.NoError(t, err)
	require.True(t, matches.Grounded())

	assert.Equal(t, 18.0, matches[0].Timestamp)
	assert.Equal(t, "0:18", matches[0].Label())
	assert.Equal(t, contextindex.SourceVisual, matches[0].Source)
	assert.Equal(t, "quicksort pivot selection", matches[0].Snippet)
	assert.InDelta(t, 0.93, matches[0].Score, 1e-9)

	for _, m := range matches[1:] {
		assert.NotEqual(t, 240.0, m.Timestamp, "4:00 segment must not outrank the pivot slide")
		assert.Less(t, m.Score, matches[0].Score)
	}
}

func TestResolve_UnrelatedSignatureIsUngrounded(t *testing.T) {
	r := New(nil, DefaultConfig(), nil)

	matches, err := r.Resolve(context.Background(), ErrorSignature{Tokens: []string{"unrelated_topic"}}, quicksortIndex(t))
	require.NoError(t, err)
	assert.False(t, matches.Grounded())
	assert.NotNil(t, matches)
	assert.Empty(t, matches.Labels())
}

func TestResolve_NoTextCandidates(t *testing.T) {
	idx, err := contextindex.Build("silent",
		media.VideoAsset{ContentHash: "h", DurationSeconds: 60},
		[]media.Keyframe{{Timestamp: 5}, {Timestamp: 30, Text: "   "}},
		[]media.TranscriptSegment{{Start: 0, End: 60}})
	require.NoError(t, err)

	matches, err := New(nil, DefaultConfig(), nil).Resolve(context.Background(), ErrorSignature{Tokens: []string{"pivot"}}, idx)
	require.NoError(t, err)
	assert.False(t, matches.Grounded())
}

func TestResolve_EmptySignature(t *testing.T) {
	matches, err := New(nil, DefaultConfig(), nil).Resolve(context.Background(), ErrorSignature{Tokens: []string{" ", "!!"}}, quicksortIndex(t))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

// fixedScorer returns preset scores keyed by candidate timestamp.
type fixedScorer map[float64]float64

func (f fixedScorer) Score(_ context.Context, _ ErrorSignature, cands []Candidate) ([]float64, error) {
	out := make([]float64, len(cands))
	for i, c := range cands {
		out[i] = f[c.Timestamp]
	}
	return out, nil
}

func textIndex(t *testing.T, duration float64, stamps ...float64) *contextindex.ContextIndex {
	t.Helper()
	var kfs []media.Keyframe
	for _, ts := range stamps {
		kfs = append(kfs, media.Keyframe{Timestamp: ts, Text: "slide", Confidence: 1})
	}
	idx, err := contextindex.Build("item", media.VideoAsset{ContentHash: "h", DurationSeconds: duration}, kfs,
		[]media.TranscriptSegment{{Start: 0, End: duration}})
	require.NoError(t, err)
	return idx
}

func TestResolve_Ranking(t *testing.T) {
	idx := textIndex(t, 600, 10, 100, 200, 300, 400)
	sig := ErrorSignature{Tokens: []string{"x"}}

	tests := []struct {
		name   string
		scores fixedScorer
		cfg    func(*Config)
		want   []float64
	}{
		{
			name:   "descending score",
			scores: fixedScorer{10: 0.3, 100: 0.9, 200: 0.6},
			want:   []float64{100, 200, 10},
		},
		{
			name:   "ties prefer earlier timestamp",
			scores: fixedScorer{10: 0.5, 100: 0.5, 200: 0.5, 300: 0.5},
			want:   []float64{10, 100, 200},
		},
		{
			name:   "floor drops weak candidates",
			scores: fixedScorer{10: 0.19, 100: 0.21},
			want:   []float64{100},
		},
		{
			name:   "top k",
			scores: fixedScorer{10: 0.9, 100: 0.8, 200: 0.7, 300: 0.6, 400: 0.5},
			cfg:    func(c *Config) { c.K = 2 },
			want:   []float64{10, 100},
		},
		{
			name:   "min gap rejects nearby lower-ranked candidate",
			scores: fixedScorer{10: 0.9, 100: 0.8, 200: 0.7},
			cfg:    func(c *Config) { c.MinGapSeconds = 120 },
			want:   []float64{10, 200},
		},
		{
			name:   "gap filter lets later candidates fill k",
			scores: fixedScorer{100: 0.9, 10: 0.85, 200: 0.8, 400: 0.4},
			cfg:    func(c *Config) { c.MinGapSeconds = 150 },
			want:   []float64{100, 400},
		},
		{
			name:   "nothing above floor",
			scores: fixedScorer{10: 0.1},
			want:   nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			matches, err := New(tt.scores, cfg, nil).Resolve(context.Background(), sig, idx)
			require.NoError(t, err)

			var got []float64
			for _, m := range matches {
				got = append(got, m.Timestamp)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_ScorerFailure(t *testing.T) {
	failing := scorerFunc(func(context.Context, ErrorSignature, []Candidate) ([]float64, error) {
		return nil, errors.New("boom")
	})
	_, err := New(failing, DefaultConfig(), nil).Resolve(context.Background(), ErrorSignature{Tokens: []string{"pivot"}}, quicksortIndex(t))
	assert.ErrorContains(t, err, "boom")
}

type scorerFunc func(context.Context, ErrorSignature, []Candidate) ([]float64, error)

func (f scorerFunc) Score(ctx context.Context, sig ErrorSignature, c []Candidate) ([]float64, error) {
	return f(ctx, sig, c)
}

// Random scores must always yield a ranked, separated, floored, bounded list.
func TestResolve_Properties(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for iter := range 200 {
		n := 1 + rng.IntN(40)
		stamps := make([]float64, n)
		scores := fixedScorer{}
		for i := range stamps {
			stamps[i] = float64(rng.IntN(600))
			scores[stamps[i]] = math.Round(rng.Float64()*10) / 10
		}
		idx := textIndex(t, 600, stamps...)

		cfg := DefaultConfig()
		cfg.K = 1 + rng.IntN(5)
		cfg.MinGapSeconds = float64(rng.IntN(90))
		matches, err := New(scores, cfg, nil).Resolve(context.Background(), ErrorSignature{Tokens: []string{"x"}}, idx)
		require.NoError(t, err)

		require.LessOrEqual(t, len(matches), cfg.K, "iter %d", iter)
		for i, m := range matches {
			assert.GreaterOrEqual(t, m.Score, cfg.Floor, "iter %d", iter)
			if i > 0 {
				prev := matches[i-1]
				assert.True(t, prev.Score > m.Score || (prev.Score == m.Score && prev.Timestamp <= m.Timestamp),
					"iter %d: not ranked at %d", iter, i)
			}
			for _, other := range matches[:i] {
				assert.GreaterOrEqual(t, math.Abs(other.Timestamp-m.Timestamp), cfg.MinGapSeconds, "iter %d", iter)
			}
		}
	}
}

func TestLexicalScorer(t *testing.T) {
	s := LexicalScorer{MarkerWeight: 2}
	cands := []Candidate{
		{Text: "QuickSort picks a PIVOT", Confidence: 1},
		{Text: "quicksort pivot", Confidence: 0.5},
		{Text: "merge sort", Confidence: 1},
		{Text: "the base case", Confidence: 1},
	}

	scores, err := s.Score(context.Background(), ErrorSignature{Tokens: []string{"pivot", "quicksort"}}, cands)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, scores[0], 1e-9)
	assert.InDelta(t, 0.5, scores[1], 1e-9)
	assert.Zero(t, scores[2])
	assert.Zero(t, scores[3])

	// A matching marker outweighs a matching token.
	scores, err = s.Score(context.Background(), ErrorSignature{
		Tokens:  []string{"merge"},
		Markers: []string{"missing base case"},
	}, cands)
	require.NoError(t, err)
	assert.Greater(t, scores[3], scores[2])
}

func TestLexicalScorer_RareTermsWeighMore(t *testing.T) {
	cands := []Candidate{
		{Text: "recursion recursion everywhere", Confidence: 1},
		{Text: "recursion", Confidence: 1},
		{Text: "recursion and memoization", Confidence: 1},
		{Text: "memoization", Confidence: 1},
	}
	scores, err := LexicalScorer{}.Score(context.Background(), ErrorSignature{Tokens: []string{"recursion", "memoization"}}, cands)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, scores[2], 1e-9)
	assert.Equal(t, scores[0], scores[1])
	assert.Greater(t, scores[3], scores[1], "memoization is rarer than recursion")
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"quicksort", "pivot"}, tokenize("QuickSort: PIVOT!"))
	assert.Equal(t, []string{"find", "max"}, tokenize("ﬁnd max"))
	assert.Equal(t, []string{"unrelated_topic"}, tokenize("unrelated_topic"))
	assert.Equal(t, []string{"strasse"}, tokenize("STRASSE"))
}

// vecEmbedder maps known texts to fixed vectors.
type vecEmbedder map[string][]float32

func (v vecEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, ok := v[t]
		if !ok {
			vec = []float32{0, 0, 1}
		}
		out[i] = vec
	}
	return out, nil
}

func TestEmbeddingScorer(t *testing.T) {
	emb := vecEmbedder{
		"recursion depth":    {1, 0, 0},
		"call stack grows":   {0.9, 0.1, 0},
		"list comprehension": {0, 1, 0},
	}
	s := NewEmbeddingScorer(emb, 0.3)

	scores, err := s.Score(context.Background(), ErrorSignature{Tokens: []string{"recursion", "depth"}}, []Candidate{
		{Text: "call stack grows", Confidence: 1},
		{Text: "list comprehension", Confidence: 1},
	})
	require.NoError(t, err)
	assert.Greater(t, scores[0], 0.8)
	assert.Zero(t, scores[1])
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, &llm.ErrProviderUnavailable{Err: errors.New("down")}
}

func TestFallbackScorer(t *testing.T) {
	cands := []Candidate{
		{Timestamp: 0, Text: "call stack grows", Confidence: 1},
		{Timestamp: 50, Text: "list comprehension", Confidence: 1},
	}
	emb := vecEmbedder{
		"recursion depth":  {1, 0, 0},
		"call stack grows": {0.9, 0.1, 0},
	}
	sig := ErrorSignature{Tokens: []string{"recursion", "depth"}}

	t.Run("secondary used when primary finds nothing", func(t *testing.T) {
		s := FallbackScorer{Primary: LexicalScorer{}, Secondary: NewEmbeddingScorer(emb, 0.3), NearZero: 0.05}
		scores, err := s.Score(context.Background(), sig, cands)
		require.NoError(t, err)
		assert.Greater(t, scores[0], 0.8)
	})

	t.Run("secondary skipped when primary matches", func(t *testing.T) {
		calls := 0
		secondary := scorerFunc(func(context.Context, ErrorSignature, []Candidate) ([]float64, error) {
			calls++
			return []float64{1, 1}, nil
		})
		s := FallbackScorer{Primary: LexicalScorer{}, Secondary: secondary, NearZero: 0.05}
		scores, err := s.Score(context.Background(), ErrorSignature{Tokens: []string{"stack"}}, cands)
		require.NoError(t, err)
		assert.Zero(t, calls)
		assert.Zero(t, scores[1])
	})

	t.Run("secondary failure degrades to primary", func(t *testing.T) {
		s := FallbackScorer{Primary: LexicalScorer{}, Secondary: NewEmbeddingScorer(failingEmbedder{}, 0.3), NearZero: 0.05}
		scores, err := s.Score(context.Background(), sig, cands)
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 0}, scores)
	})
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", snippet("  a\n b\t c ", 10))
	long := strings.Repeat("é", 20)
	assert.Equal(t, strings.Repeat("é", 5)+"…", snippet(long, 5))
}

func TestParseSignature(t *testing.T) {
	sig, err := ParseSignature([]byte(`{"tokens":["pivot"],"markers":["wrong algorithm class"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"pivot"}, sig.Tokens)
	assert.Equal(t, "pivot wrong algorithm class", sig.Text())

	_, err = ParseSignature([]byte(`{"tokens":[]}`))
	assert.Error(t, err)
	_, err = ParseSignature([]byte(`not json`))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.K = 0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.Floor = 1.5
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.MinGapSeconds = -1
	assert.Error(t, bad.Validate())
}
