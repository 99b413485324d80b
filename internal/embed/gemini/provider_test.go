package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	gotModel    string
	gotContents []*genai.Content
	gotConfig   *genai.EmbedContentConfig
	resp        *genai.EmbedContentResponse
	err         error
}

func (f *fakeModels) EmbedContent(_ context.Context, model string, contents []*genai.Content, cfg *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.gotModel = model
	f.gotContents = contents
	f.gotConfig = cfg
	return f.resp, f.err
}

func TestEmbedBatchSendsOneRequest(t *testing.T) {
	t.Parallel()

	models := &fakeModels{resp: &genai.EmbedContentResponse{Embeddings: []*genai.ContentEmbedding{
		{Values: []float32{0.1, 0.2}},
		{Values: []float32{0.3, 0.4}},
	}}}
	p := NewWithModels(models, Config{Model: "gemini-embedding-001", Dimension: 2}, nil)

	vectors, err := p.EmbedBatch(context.Background(), []string{"Section: A\n\nalpha", "Section: B\n\nbeta"})
	require.NoError(t, err)
	require.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, vectors)

	require.Equal(t, "gemini-embedding-001", models.gotModel)
	require.Len(t, models.gotContents, 2)
	require.Equal(t, "Section: B\n\nbeta", models.gotContents[1].Parts[0].Text)
	require.NotNil(t, models.gotConfig.OutputDimensionality)
	require.EqualValues(t, 2, *models.gotConfig.OutputDimensionality)
	require.Equal(t, "RETRIEVAL_DOCUMENT", models.gotConfig.TaskType)
}

func TestEmbedBatchErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		models *fakeModels
		want   string
	}{
		{"api error", &fakeModels{err: errors.New("quota exceeded")}, "quota exceeded"},
		{"nil response", &fakeModels{}, "no embedding returned"},
		{"empty vector", &fakeModels{resp: &genai.EmbedContentResponse{Embeddings: []*genai.ContentEmbedding{{}}}}, "empty embedding at index 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := NewWithModels(tt.models, Config{Model: "m", Dimension: 2}, nil)
			_, err := p.EmbedBatch(context.Background(), []string{"x"})
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Model: "m"}, nil)
	require.Error(t, err)
}
