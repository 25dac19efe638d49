package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestGeminiModelMapping(t *testing.T) {
	assert.Equal(t, "gemini-2.0-flash", resolveModel("gemini-flash", geminiModels))
	assert.Equal(t, "gemini-2.0-pro", resolveModel("gemini-pro", geminiModels))
	assert.Equal(t, "gemini-2.5-flash", resolveModel("gemini-2.5-flash", geminiModels))
}

func TestBuildGeminiSchema_FeedbackShape(t *testing.T) {
	schema := buildGeminiSchema(feedbackTestSchema("correctness", "efficiency").Definition)

	assert.Equal(t, genai.TypeObject, schema.Type)
	require.Len(t, schema.Properties, 2)
	dim := schema.Properties["correctness"]
	require.NotNil(t, dim)
	assert.Equal(t, genai.TypeObject, dim.Type)
	assert.Equal(t, genai.TypeInteger, dim.Properties["score"].Type)
	assert.Equal(t, genai.TypeString, dim.Properties["comment"].Type)
	assert.Equal(t, genai.TypeArray, dim.Properties["evidence_lines"].Type)
	assert.Equal(t, genai.TypeInteger, dim.Properties["evidence_lines"].Items.Type)
	assert.ElementsMatch(t, []string{"score", "comment", "evidence_lines"}, dim.Required)
}

func TestBuildGeminiSchema_NumericBounds(t *testing.T) {
	schema := buildGeminiSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"score":      map[string]any{"type": "integer", "minimum": 1, "maximum": 5},
			"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			"text":       map[string]any{"type": "string"},
		},
	})

	score := schema.Properties["score"]
	require.NotNil(t, score.Minimum)
	require.NotNil(t, score.Maximum)
	assert.Equal(t, 1.0, *score.Minimum)
	assert.Equal(t, 5.0, *score.Maximum)
	assert.Equal(t, 1.0, *schema.Properties["confidence"].Maximum)
	assert.Nil(t, schema.Properties["text"].Minimum)
}

func TestBuildGeminiContents_AttachesImagesToLastUserTurn(t *testing.T) {
	contents := buildGeminiContents([]Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "reply"},
		{Role: RoleUser, Content: "again"},
	}, []Image{{MIMEType: "image/png", Data: []byte("png")}})

	require.Len(t, contents, 3)
	assert.Len(t, contents[0].Parts, 1)
	assert.Equal(t, "model", contents[1].Role)
	require.Len(t, contents[2].Parts, 2)
	require.NotNil(t, contents[2].Parts[0].InlineData)
	assert.Equal(t, "image/png", contents[2].Parts[0].InlineData.MIMEType)
	assert.Equal(t, "again", contents[2].Parts[1].Text)
}
