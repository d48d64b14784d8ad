package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Embedder calls an OpenAI-compatible embedding endpoint and L2-normalizes
// the resulting vectors. Calls are serialized by a per-instance mutex per
// spec.md §4.4 ("to avoid concurrent GPU/CPU state corruption") — the
// embedding host is assumed to be a local, offline model server; this
// client never downloads a model itself, satisfying the "offline-only,
// must refuse network downloads of models" constraint by construction
// (initialize only ever points at an already-running local endpoint).
// Grounded on internal/llm/embeddings.go's GenerateEmbeddings/FetchEmbeddings,
// generalized from a fixed model name/dimension to configured values and
// normalized output.
type Embedder struct {
	mu        sync.Mutex
	http      *http.Client
	host      string
	apiKey    string
	model     string
	dimension int
}

// NewEmbedder builds an Embedder. dimension is the table's fixed vector
// width; embeddings that don't match it are rejected by the caller (see
// Store.Add), not by the Embedder itself.
func NewEmbedder(host, apiKey, model string, dimension int) *Embedder {
	return &Embedder{
		http:      &http.Client{Timeout: 30 * time.Second},
		host:      host,
		apiKey:    apiKey,
		model:     model,
		dimension: dimension,
	}
}

type embeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed returns one L2-normalized vector per input text, in order. Calls
// are serialized on e.mu: the underlying model server is assumed to be a
// single local process that cannot safely service concurrent batches.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(texts) == 0 {
		return nil, nil
	}

	reqBody, err := json.Marshal(embeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: embedding request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("vectorstore: embedding host returned http %d", resp.StatusCode)
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("vectorstore: decode embedding response: %w", err)
	}

	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		out[d.Index] = l2Normalize(d.Embedding)
	}
	return out, nil
}

func l2Normalize(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return v
	}
	norm := math.Sqrt(sumSquares)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// quoteFTSQuery applies spec.md §4.4's FTS5 quoting rules: multi-word
// tokens and numeric tokens are phrase-quoted, single alphabetic tokens
// are escaped for use as bareword FTS5 MATCH terms.
func quoteFTSQuery(q string) string {
	fields := strings.Fields(q)
	if len(fields) == 0 {
		return ""
	}
	if len(fields) > 1 {
		return `"` + strings.ReplaceAll(q, `"`, `""`) + `"`
	}
	token := fields[0]
	if isNumeric(token) {
		return `"` + token + `"`
	}
	return strings.ReplaceAll(token, `"`, `""`)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != '-' {
			return false
		}
	}
	return true
}
