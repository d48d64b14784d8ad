package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, dimension int) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "vectors.db"), dimension)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// fakeEmbeddingServer returns a fixed-dimension embedding for every input,
// varying slightly by input length so distinct texts produce distinct
// vectors.
func fakeEmbeddingServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := embeddingResponse{}
		for i, text := range req.Input {
			vec := make([]float32, dim)
			for j := range vec {
				vec[j] = float32((len(text) + j) % 7)
			}
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: vec, Index: i})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestAddAndVectorSearch(t *testing.T) {
	const dim = 4
	srv := fakeEmbeddingServer(t, dim)
	defer srv.Close()

	s := newTestStore(t, dim)
	embedder := NewEmbedder(srv.URL, "", "test-model", dim)

	n, err := s.Add(context.Background(), "chat-1", []Document{
		{Text: "The coral reefs are dying due to rising ocean temperatures.", Metadata: map[string]any{"url": "https://example.com/a"}},
	}, embedder, 1000, 0)
	require.NoError(t, err)
	require.Greater(t, n, 0)

	queryVec, err := embedder.Embed(context.Background(), []string{"coral reefs dying"})
	require.NoError(t, err)

	results, err := s.Search(context.Background(), SearchOptions{Vector: queryVec[0], TopK: 5, GroupID: "chat-1"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Contains(t, results[0].TextContent, "coral reefs")
}

func TestAddSkipsDimensionMismatch(t *testing.T) {
	const dim = 4
	srv := fakeEmbeddingServer(t, dim+1) // wrong dimension
	defer srv.Close()

	s := newTestStore(t, dim)
	embedder := NewEmbedder(srv.URL, "", "test-model", dim)

	n, err := s.Add(context.Background(), "chat-1", []Document{
		{Text: "mismatched dimension text", Metadata: nil},
	}, embedder, 1000, 0)
	require.NoError(t, err)
	require.Equal(t, 0, n, "expected dimension-mismatched chunk to be skipped")
}

func TestDeleteByGroup(t *testing.T) {
	const dim = 4
	srv := fakeEmbeddingServer(t, dim)
	defer srv.Close()

	s := newTestStore(t, dim)
	embedder := NewEmbedder(srv.URL, "", "test-model", dim)

	_, err := s.Add(context.Background(), "chat-a", []Document{{Text: "some content about whales"}}, embedder, 1000, 0)
	require.NoError(t, err)

	require.NoError(t, s.DeleteByGroup(context.Background(), "chat-a"))

	queryVec, err := embedder.Embed(context.Background(), []string{"whales"})
	require.NoError(t, err)
	results, err := s.Search(context.Background(), SearchOptions{Vector: queryVec[0], TopK: 5, GroupID: "chat-a"})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestFTSSearch(t *testing.T) {
	const dim = 4
	srv := fakeEmbeddingServer(t, dim)
	defer srv.Close()

	s := newTestStore(t, dim)
	embedder := NewEmbedder(srv.URL, "", "test-model", dim)

	_, err := s.Add(context.Background(), "chat-1", []Document{
		{Text: "Quantum computing promises exponential speedups for certain algorithms."},
	}, embedder, 1000, 0)
	require.NoError(t, err)

	results, err := s.Search(context.Background(), SearchOptions{FTSQuery: "quantum computing", TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestBuildWhereClauseDropsUnsupportedTypes(t *testing.T) {
	where, args := buildWhereClause("chat-1", map[string]any{
		"title":     "hello",
		"enabled":   true,
		"unsupport": []string{"a", "b"},
	})
	require.Contains(t, where, "chat_id = ?")
	require.Contains(t, where, "json_extract(source, '$.title')")
	require.Contains(t, where, "json_extract(source, '$.enabled')")
	require.NotContains(t, where, "unsupport")
	require.Len(t, args, 3)
}
