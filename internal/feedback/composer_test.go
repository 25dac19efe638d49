package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/vidtutor/internal/contextindex"
	"github.com/abhisek/vidtutor/internal/llm"
	"github.com/abhisek/vidtutor/internal/resolver"
	"github.com/abhisek/vidtutor/internal/store"
)

const quicksortCode = `def quicksort(arr):
    if len(arr) <= 1:
        return arr
    pivot = arr[0]
    left = [x for x in arr if x < pivot]
    right = [x for x in arr if x > pivot]
    return quicksort(left) + [pivot] + quicksort(right)
`

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Dimensions = []DimensionSpec{
		{Name: "correctness", Description: "Does it work?"},
		{Name: "approach", Description: "Is the algorithm right?"},
	}
	cfg.Timeout = 5 * time.Second
	cfg.Retry = llm.RetryConfig{
		MaxAttempts: 2,
		InitialWait: time.Millisecond,
		MaxWait:     2 * time.Millisecond,
		Multiplier:  2,
	}
	return cfg
}

func pivotMatch() resolver.Matches {
	return resolver.Matches{{
		Timestamp: 18,
		Source:    contextindex.SourceVisual,
		Snippet:   "quicksort pivot selection",
		Score:     0.93,
	}}
}

func groundedInput() Input {
	return Input{
		SubmissionID:   "sub-1",
		LearningItemID: "quicksort-101",
		Code:           quicksortCode,
		Signature:      resolver.ErrorSignature{Tokens: []string{"pivot", "quicksort"}},
		Matches:        pivotMatch(),
	}
}

func respond(t *testing.T, dims map[string]Dimension) llm.MockResponse {
	t.Helper()
	b, err := json.Marshal(dims)
	require.NoError(t, err)
	return llm.MockResponse{Content: b}
}

func goodGrounded() map[string]Dimension {
	return map[string]Dimension{
		"correctness": {Score: 2, Comment: "Duplicates of the pivot are dropped. Rewatch 0:18 on pivot selection.", EvidenceLines: []int{5, 6}},
		"approach":    {Score: 4, Comment: "Divide and conquer is the right idea.", EvidenceLines: []int{7}},
	}
}

func goodUngrounded() map[string]Dimension {
	return map[string]Dimension{
		"correctness": {Score: 2, Comment: "Elements equal to the pivot are lost.", EvidenceLines: []int{5, 6}},
		"approach":    {Score: 4, Comment: "Recursion structure is fine.", EvidenceLines: []int{}},
	}
}

func TestCompose_GroundedCitesOnlyVerifiedMoment(t *testing.T) {
	mock := llm.NewMockProvider(respond(t, goodGrounded()))
	c := NewComposer(mock, testConfig(), nil)

	rec, err := c.Compose(context.Background(), groundedInput())
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "sub-1", rec.SubmissionID)
	assert.Equal(t, 1, rec.Attempts)
	assert.True(t, rec.Grounded)
	assert.Equal(t, "mock", rec.Model)
	require.Len(t, rec.Citations, 1)
	assert.Equal(t, "0:18", rec.Citations[0].Label())

	comment := rec.Dimensions["correctness"].Comment
	assert.Contains(t, comment, "0:18")
	assert.Equal(t, []string{"0:18"}, citedTimestamps(comment))

	req := mock.LastCall()
	require.Len(t, req.Messages, 1)
	assert.Contains(t, req.Messages[0].Content, `0:18 (visual): "quicksort pivot selection"`)
	assert.Contains(t, req.System, "0:18")
	assert.Equal(t, "code-feedback", req.Schema.Name)
}

func TestCompose_UngroundedInstructsNoTimestamps(t *testing.T) {
	mock := llm.NewMockProvider(respond(t, goodUngrounded()))
	c := NewComposer(mock, testConfig(), nil)

	in := groundedInput()
	in.Matches = resolver.Matches{}
	in.Signature = resolver.ErrorSignature{Tokens: []string{"unrelated_topic"}}

	rec, err := c.Compose(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, rec.Grounded)
	assert.Empty(t, rec.Citations)
	for _, d := range rec.Dimensions {
		assert.Empty(t, citedTimestamps(d.Comment))
	}

	req := mock.LastCall()
	assert.Contains(t, req.System, "Do not mention any video timestamp")
	assert.Contains(t, req.Messages[0].Content, "None. Do not cite any timestamps.")
}

func TestCompose_RepairsFabricatedTimestamp(t *testing.T) {
	bad := goodGrounded()
	bad["approach"] = Dimension{Score: 4, Comment: "See 4:00 for the base case.", EvidenceLines: []int{2}}

	mock := llm.NewMockProvider(respond(t, bad), respond(t, goodGrounded()))
	c := NewComposer(mock, testConfig(), nil)

	rec, err := c.Compose(context.Background(), groundedInput())
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Attempts)

	req := mock.LastCall()
	require.Len(t, req.Messages, 3)
	assert.Equal(t, llm.RoleAssistant, req.Messages[1].Role)
	assert.Contains(t, req.Messages[1].Content, "4:00")
	assert.Contains(t, req.Messages[2].Content, "4:00, which is not one of the verified moments (0:18)")
}

func TestCompose_UngroundedRejectsAnyTimestamp(t *testing.T) {
	bad := goodUngrounded()
	bad["correctness"] = Dimension{Score: 2, Comment: "Rewatch 1:23.", EvidenceLines: []int{1}}

	mock := llm.NewMockProvider(respond(t, bad), respond(t, goodUngrounded()))
	c := NewComposer(mock, testConfig(), nil)

	in := groundedInput()
	in.Matches = nil
	rec, err := c.Compose(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Attempts)
	assert.Contains(t, mock.LastCall().Messages[2].Content, "no video moment is relevant")
}

func TestCompose_RepairChain(t *testing.T) {
	outOfRange := goodGrounded()
	outOfRange["correctness"] = Dimension{Score: 9, Comment: "See 0:18.", EvidenceLines: []int{1}}

	badLines := goodGrounded()
	badLines["approach"] = Dimension{Score: 3, Comment: "ok", EvidenceLines: []int{42}}

	uncited := goodUngrounded()

	missing := map[string]Dimension{"correctness": goodGrounded()["correctness"]}

	tests := []struct {
		name    string
		bad     map[string]Dimension
		message string
	}{
		{"score out of range", outOfRange, "rejected"},
		{"evidence past end of code", badLines, "cites line 42 but the submission has 7 lines"},
		{"grounded but uncited", uncited, "cite one of 0:18"},
		{"missing dimension", missing, "rejected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := llm.NewMockProvider(respond(t, tt.bad), respond(t, goodGrounded()))
			c := NewComposer(mock, testConfig(), nil)

			rec, err := c.Compose(context.Background(), groundedInput())
			require.NoError(t, err)
			assert.Equal(t, 2, rec.Attempts)
			assert.Equal(t, 2, mock.CallCount())
			assert.Contains(t, mock.LastCall().Messages[2].Content, tt.message)
		})
	}
}

func TestCompose_ExhaustedAttempts(t *testing.T) {
	bad := goodGrounded()
	bad["approach"] = Dimension{Score: 4, Comment: "See 2:30.", EvidenceLines: []int{}}

	mock := llm.NewMockProvider(respond(t, bad), respond(t, bad), respond(t, bad))
	c := NewComposer(mock, testConfig(), nil)

	_, err := c.Compose(context.Background(), groundedInput())
	require.ErrorIs(t, err, ErrFeedbackGenerationFailed)
	assert.Equal(t, 3, mock.CallCount())

	// Later repairs restate the rules.
	assert.Contains(t, mock.LastCall().Messages[4].Content, "The only timestamps you may write are: 0:18")
}

func TestCompose_ProviderSchemaRejectionIsRepaired(t *testing.T) {
	mock := llm.NewMockProvider(
		llm.MockResponse{Err: &llm.ErrInvalidResponse{Content: json.RawMessage(`{"correctness":{}}`), Err: errors.New("missing properties")}},
		respond(t, goodGrounded()),
	)
	c := NewComposer(mock, testConfig(), nil)

	rec, err := c.Compose(context.Background(), groundedInput())
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Attempts)
	assert.Contains(t, mock.LastCall().Messages[2].Content, "missing properties")
}

func TestCompose_TransientFailures(t *testing.T) {
	t.Run("retried then succeeds", func(t *testing.T) {
		mock := llm.NewMockProvider(
			llm.MockResponse{Err: &llm.ErrRateLimit{RetryAfter: time.Millisecond}},
			respond(t, goodGrounded()),
		)
		rec, err := NewComposer(mock, testConfig(), nil).Compose(context.Background(), groundedInput())
		require.NoError(t, err)
		assert.Equal(t, 1, rec.Attempts)
		assert.Equal(t, 2, mock.CallCount())
	})

	t.Run("exhausted", func(t *testing.T) {
		mock := llm.NewMockProvider(
			llm.MockResponse{Err: &llm.ErrProviderUnavailable{Err: errors.New("503")}},
			llm.MockResponse{Err: &llm.ErrProviderUnavailable{Err: errors.New("503")}},
		)
		_, err := NewComposer(mock, testConfig(), nil).Compose(context.Background(), groundedInput())
		require.ErrorIs(t, err, ErrBackendUnavailable)
		assert.NotErrorIs(t, err, ErrFeedbackGenerationFailed)
		assert.Equal(t, 2, mock.CallCount())
	})
}

type blockingProvider struct{}

func (blockingProvider) Generate(ctx context.Context, _ llm.Request) (*llm.Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingProvider) ModelID() string { return "blocking" }

func TestCompose_Timeout(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 20 * time.Millisecond

	_, err := NewComposer(blockingProvider{}, cfg, nil).Compose(context.Background(), groundedInput())
	assert.ErrorIs(t, err, ErrFeedbackGenerationFailed)
}

func TestCompose_CallerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewComposer(blockingProvider{}, testConfig(), nil).Compose(ctx, groundedInput())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRepairMessage_Escalates(t *testing.T) {
	cfg := testConfig()
	in := groundedInput()
	verr := &ValidationError{Validator: "citation", Message: "cites 4:00"}

	first := repairMessage(1, verr, in, cfg)
	second := repairMessage(2, verr, in, cfg)
	third := repairMessage(3, verr, in, cfg)

	assert.Contains(t, first, "cites 4:00")
	assert.NotContains(t, first, "Requirements")
	assert.Contains(t, second, "Include exactly these keys: correctness, approach")
	assert.Contains(t, second, "integers from 1 to 7")
	assert.NotContains(t, second, "shaped exactly like")
	assert.Contains(t, third, `"approach": {"score": 1`)

	in.Matches = nil
	assert.Contains(t, repairMessage(2, verr, in, cfg), "Do not write any timestamp")
}

func TestBuildSchema(t *testing.T) {
	s := BuildSchema(testConfig())
	assert.Equal(t, []any{"correctness", "approach"}, s.Definition["required"])

	ok, err := json.Marshal(goodGrounded())
	require.NoError(t, err)
	assert.NoError(t, llm.ValidateContent(s, ok))

	assert.Error(t, llm.ValidateContent(s, json.RawMessage(`{"correctness":{"score":2,"comment":"x","evidence_lines":[]}}`)))
	assert.Error(t, llm.ValidateContent(s, json.RawMessage(`{"correctness":{"score":0,"comment":"x","evidence_lines":[]},"approach":{"score":2,"comment":"x","evidence_lines":[]}}`)))
}

func TestCountAndNumberLines(t *testing.T) {
	assert.Equal(t, 7, countLines(quicksortCode))
	assert.Equal(t, 0, countLines(""))
	assert.Equal(t, 1, countLines("x = 1"))
	assert.Equal(t, "1 | a\n2 | b", numberLines("a\nb\n"))
	assert.True(t, strings.HasPrefix(numberLines(strings.Repeat("x\n", 12)), " 1 | x"))
	assert.Equal(t, "(empty)", numberLines(""))
}

func TestCitedTimestamps(t *testing.T) {
	assert.Equal(t, []string{"0:18", "1:02:05"}, citedTimestamps("see 0:18 and 1:02:05"))
	assert.Empty(t, citedTimestamps("arr[1:3] and ratio 3:1"))
	assert.Equal(t, []string{"12:30"}, citedTimestamps("at 12:30."))
	assert.Equal(t, []string{"4m00s", "18 seconds", "2 min"}, citedTimestamps("compare 4m00s, 18 seconds in and the 2 min mark"))
	assert.Empty(t, citedTimestamps("O(n) steps, 3 passes, sort in 2 lists"))
}

func TestTimestampSeconds(t *testing.T) {
	tests := []struct {
		ref  string
		want int64
		ok   bool
	}{
		{"0:18", 18, true},
		{"00:18", 18, true},
		{"0:18.5", 18, true},
		{"1:02:05", 3725, true},
		{"4m00s", 240, true},
		{"4m 30s", 270, true},
		{"18s", 18, true},
		{"18 sec", 18, true},
		{"18 Seconds", 18, true},
		{"2 min", 120, true},
		{"1.5 minutes", 90, true},
		{"9:99", 0, false},
		{"4m75s", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, ok := timestampSeconds(tt.ref)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCitationValidator_TimestampForms(t *testing.T) {
	tests := []struct {
		name    string
		comment string
		matches resolver.Matches
		message string
	}{
		{"seconds with nothing relevant", "See 18 seconds into the video.", resolver.Matches{}, "no video moment is relevant"},
		{"compact with nothing relevant", "Rewatch 4m00s.", nil, "no video moment is relevant"},
		{"short seconds with nothing relevant", "Around 18s the pivot is chosen.", nil, "no video moment is relevant"},
		{"padded clock with nothing relevant", "See 00:18.", nil, "no video moment is relevant"},
		{"minutes off the list", "Go back 2 min in the lecture.", pivotMatch(), "2 min, which is not one of the verified moments (0:18)"},
		{"compact off the list", "Rewatch 4m00s.", pivotMatch(), "4m00s, which is not one of the verified moments"},
		{"fractional clock off the list", "See 0:19.5.", pivotMatch(), "0:19.5, which is not one of the verified moments"},
		{"invalid clock", "See 9:99.", pivotMatch(), "9:99, which is not one of the verified moments"},
		{"padded clock on the list", "See 00:18 on pivots.", pivotMatch(), ""},
		{"seconds on the list", "See 18 seconds in for pivots.", pivotMatch(), ""},
		{"fraction on the list", "See 0:18.9 for pivots.", pivotMatch(), ""},
		{"plain prose", "Partition twice, then recurse on 2 halves.", nil, ""},
	}
	cfg := testConfig()
	cfg.Dimensions = []DimensionSpec{{Name: "correctness"}}
	cfg.RequireCitation = false
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dims := map[string]Dimension{"correctness": {Score: 2, Comment: tt.comment}}
			verr := (&CitationValidator{}).Validate(dims, Input{Matches: tt.matches}, cfg)
			if tt.message == "" {
				assert.Nil(t, verr)
				return
			}
			require.NotNil(t, verr)
			assert.Contains(t, verr.Message, tt.message)
		})
	}
}

func TestCitedMatches_NormalizesForms(t *testing.T) {
	matches := append(pivotMatch(), resolver.Match{Timestamp: 240.4, Source: contextindex.SourceSpoken, Snippet: "base case"})
	dims := map[string]Dimension{
		"correctness": {Comment: "See 00:18 for pivots."},
		"approach":    {Comment: "The base case is at 4m00s."},
	}
	got := citedMatches(dims, matches)
	require.Len(t, got, 2)
	assert.Equal(t, "0:18", got[0].Label())
	assert.Equal(t, "4:00", got[1].Label())

	assert.Empty(t, citedMatches(map[string]Dimension{"correctness": {Comment: "no references"}}, matches))
}

func TestStoreRepository(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()
	repo := NewStoreRepository(s.FeedbackRepo())

	mock := llm.NewMockProvider(respond(t, goodGrounded()), respond(t, goodGrounded()))
	c := NewComposer(mock, testConfig(), nil)

	first, err := c.Compose(ctx, groundedInput())
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, first))

	// A resubmission is a new record.
	in := groundedInput()
	in.SubmissionID = "sub-2"
	second, err := c.Compose(ctx, in)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, second))
	assert.Error(t, repo.Save(ctx, second), "records are append-only")

	got, err := repo.Get(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.Dimensions, got.Dimensions)
	assert.Equal(t, "0:18", got.Citations[0].Label())

	list, err := repo.List(ctx, "quicksort-101", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "sub-2", list[0].SubmissionID)

	missing, err := repo.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
