package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/vidtutor/internal/contextindex"
	"github.com/abhisek/vidtutor/internal/feedback"
	"github.com/abhisek/vidtutor/internal/llm"
	"github.com/abhisek/vidtutor/internal/media"
	"github.com/abhisek/vidtutor/internal/resolver"
)

type fakeIndexes struct {
	idx       *contextindex.ContextIndex
	getErr    error
	ensureErr error
	ensured   []string
}

func (f *fakeIndexes) Ensure(_ context.Context, itemID, fileRef string) (*contextindex.ContextIndex, error) {
	f.ensured = append(f.ensured, itemID+"@"+fileRef)
	if f.ensureErr != nil {
		return nil, f.ensureErr
	}
	return f.idx, nil
}

func (f *fakeIndexes) Get(context.Context, string) (*contextindex.ContextIndex, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.idx, nil
}

type memRecords struct {
	mu   sync.Mutex
	recs []*feedback.Record
}

func (m *memRecords) Save(_ context.Context, rec *feedback.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memRecords) Get(_ context.Context, id string) (*feedback.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

func (m *memRecords) List(context.Context, string, int) ([]feedback.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]feedback.Record, len(m.recs))
	for i, r := range m.recs {
		out[i] = *r
	}
	return out, nil
}

func lectureIndex(t *testing.T) *contextindex.ContextIndex {
	t.Helper()
	idx, err := contextindex.Build("quicksort-101",
		media.VideoAsset{ContentHash: "h", FileRef: "quicksort.mp4", DurationSeconds: 300},
		[]media.Keyframe{{Timestamp: 18, Text: "quicksort pivot selection", Confidence: 0.93}},
		[]media.TranscriptSegment{
			{Start: 0, End: 240},
			{Start: 240, End: 260, Text: "the base case terminates recursion", Confidence: 0.9},
			{Start: 260, End: 300},
		})
	require.NoError(t, err)
	return idx
}

func composerConfig() feedback.Config {
	cfg := feedback.DefaultConfig()
	cfg.Dimensions = []feedback.DimensionSpec{{Name: "correctness", Description: "Does it work?"}}
	cfg.Timeout = 5 * time.Second
	cfg.Retry = llm.RetryConfig{MaxAttempts: 1, InitialWait: time.Millisecond, MaxWait: time.Millisecond, Multiplier: 1}
	return cfg
}

func answer(t *testing.T, comment string) llm.MockResponse {
	t.Helper()
	b, err := json.Marshal(map[string]feedback.Dimension{
		"correctness": {Score: 2, Comment: comment, EvidenceLines: []int{1}},
	})
	require.NoError(t, err)
	return llm.MockResponse{Content: b}
}

func submission(tokens ...string) Submission {
	return Submission{
		ID:             "sub-1",
		LearningItemID: "quicksort-101",
		Code:           "pivot = arr[0]\n",
		Signature:      resolver.ErrorSignature{Tokens: tokens},
	}
}

func newService(t *testing.T, idx *fakeIndexes, mock *llm.MockProvider, records feedback.Repository) *Service {
	t.Helper()
	return NewService(idx,
		resolver.New(nil, resolver.DefaultConfig(), nil),
		feedback.NewComposer(mock, composerConfig(), nil),
		records, nil)
}

func TestReview_Grounded(t *testing.T) {
	mock := llm.NewMockProvider(answer(t, "Your pivot handling drops duplicates; see 0:18."))
	records := &memRecords{}
	svc := newService(t, &fakeIndexes{idx: lectureIndex(t)}, mock, records)

	rec, err := svc.Review(context.Background(), submission("pivot", "quicksort"))
	require.NoError(t, err)

	assert.True(t, rec.Grounded)
	require.Len(t, rec.Citations, 1)
	assert.Equal(t, "0:18", rec.Citations[0].Label())
	assert.Contains(t, rec.Dimensions["correctness"].Comment, "0:18")
	require.Len(t, records.recs, 1)
	assert.Equal(t, rec.ID, records.recs[0].ID)

	prompt := mock.LastCall().Messages[0].Content
	assert.Contains(t, prompt, "0:18")
	assert.NotContains(t, prompt, "4:00")
}

func TestReview_UnrelatedSignatureIsCitationFree(t *testing.T) {
	mock := llm.NewMockProvider(answer(t, "The partition step is wrong."))
	svc := newService(t, &fakeIndexes{idx: lectureIndex(t)}, mock, &memRecords{})

	rec, err := svc.Review(context.Background(), submission("unrelated_topic"))
	require.NoError(t, err)
	assert.False(t, rec.Grounded)
	assert.Empty(t, rec.Citations)
	assert.Contains(t, mock.LastCall().System, "Do not mention any video timestamp")
}

func TestReview_MissingIndexDegrades(t *testing.T) {
	mock := llm.NewMockProvider(answer(t, "The partition step is wrong."))
	indexes := &fakeIndexes{getErr: fmt.Errorf("%w: quicksort-101", contextindex.ErrIndexNotFound)}
	svc := newService(t, indexes, mock, &memRecords{})

	rec, err := svc.Review(context.Background(), submission("pivot"))
	require.NoError(t, err)
	assert.False(t, rec.Grounded)
}

func TestReview_StoreFailureIsReturned(t *testing.T) {
	mock := llm.NewMockProvider(answer(t, "x"))
	svc := newService(t, &fakeIndexes{getErr: errors.New("disk I/O error")}, mock, &memRecords{})

	_, err := svc.Review(context.Background(), submission("pivot"))
	assert.ErrorContains(t, err, "disk I/O error")
	assert.Zero(t, mock.CallCount())
}

type failingResolver struct{}

func (failingResolver) Resolve(context.Context, resolver.ErrorSignature, *contextindex.ContextIndex) (resolver.Matches, error) {
	return nil, errors.New("embedding backend down")
}

func TestReview_ResolverFailureDegrades(t *testing.T) {
	mock := llm.NewMockProvider(answer(t, "The partition step is wrong."))
	svc := NewService(&fakeIndexes{idx: lectureIndex(t)}, failingResolver{},
		feedback.NewComposer(mock, composerConfig(), nil), &memRecords{}, nil)

	rec, err := svc.Review(context.Background(), submission("pivot"))
	require.NoError(t, err)
	assert.False(t, rec.Grounded)
}

func TestReview_ComposerFailureNotSaved(t *testing.T) {
	bad := answer(t, "see 9:99")
	mock := llm.NewMockProvider(bad, bad, bad)
	records := &memRecords{}
	svc := newService(t, &fakeIndexes{idx: lectureIndex(t)}, mock, records)

	_, err := svc.Review(context.Background(), submission("pivot", "quicksort"))
	assert.ErrorIs(t, err, feedback.ErrFeedbackGenerationFailed)
	assert.Empty(t, records.recs)
}

func TestReview_EnsuresIndexWhenVideoGiven(t *testing.T) {
	indexes := &fakeIndexes{ensureErr: media.Unreadable("broken.mp4", errors.New("no streams"))}
	svc := newService(t, indexes, llm.NewMockProvider(), &memRecords{})

	sub := submission("pivot")
	sub.VideoRef = "broken.mp4"
	_, err := svc.Review(context.Background(), sub)
	assert.ErrorIs(t, err, media.ErrMediaUnreadable)
	assert.Equal(t, []string{"quicksort-101@broken.mp4"}, indexes.ensured)
}

func TestReview_ConcurrentSubmissions(t *testing.T) {
	const n = 10
	mock := llm.NewMockProvider()
	for range n {
		mock.AddResponse(answer(t, "Rewatch 0:18."))
	}
	records := &memRecords{}
	svc := newService(t, &fakeIndexes{idx: lectureIndex(t)}, mock, records)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := submission("pivot", "quicksort")
			sub.ID = fmt.Sprintf("sub-%d", i)
			_, errs[i] = svc.Review(context.Background(), sub)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	ids := map[string]bool{}
	for _, r := range records.recs {
		ids[r.ID] = true
	}
	assert.Len(t, ids, n)
}

func TestReview_RequiresIDs(t *testing.T) {
	svc := newService(t, &fakeIndexes{}, llm.NewMockProvider(), nil)
	_, err := svc.Review(context.Background(), Submission{})
	assert.Error(t, err)
}
