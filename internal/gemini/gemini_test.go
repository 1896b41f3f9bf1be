package gemini

import (
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newsbrief/internal/backend"
)

func TestClassify_Quota(t *testing.T) {
	err := classify(errors.New("googleapi: Error 429: Resource has been exhausted (e.g. check quota)."))
	require.Equal(t, backend.Quota, backend.KindOf(err))
}

func TestClassify_Unavailable(t *testing.T) {
	err := classify(errors.New("rpc error: code = Unavailable desc = connection refused"))
	require.Equal(t, backend.Unavailable, backend.KindOf(err))
}

func TestClassify_Blocked(t *testing.T) {
	err := classify(&genai.BlockedError{})
	require.Equal(t, backend.InvalidResponse, backend.KindOf(err))
}

func TestResponseText_JoinsTextParts(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{genai.Text("Good morning, "), genai.Text("here is the news.")}},
	}}}
	got, err := responseText(resp)
	require.NoError(t, err)
	require.Equal(t, "Good morning, here is the news.", got)
}

func TestResponseText_EmptyIsInvalid(t *testing.T) {
	_, err := responseText(&genai.GenerateContentResponse{})
	require.Equal(t, backend.InvalidResponse, backend.KindOf(err))

	_, err = responseText(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{genai.Text("  ")}},
	}}})
	require.Equal(t, backend.InvalidResponse, backend.KindOf(err))
}
