package graph

import (
	"github.com/livesearch/orchestrator/internal/config"
	"github.com/livesearch/orchestrator/internal/llmadapter"
	"github.com/livesearch/orchestrator/internal/scrape"
	"github.com/livesearch/orchestrator/internal/search"
	"github.com/livesearch/orchestrator/internal/vectorstore"
)

// Services bundles the process-scoped collaborators every stage calls
// into: the LLM reasoning adapter (C5), the search fan-out registry and
// scraper (C3), and the vector store (C4). One Services value is built at
// startup and shared by every task's graph instance.
type Services struct {
	LLM      *llmadapter.Adapter
	Search   *search.Registry
	Scrape   *scrape.Subprocess
	Vector   *vectorstore.Store
	Embedder *vectorstore.Embedder
	Config   config.Config
}

// CredentialsFor resolves the llmadapter.Credentials for a model provider
// tag, per spec.md §4.5 point 1's per-provider routing.
func (s *Services) CredentialsFor(provider string) llmadapter.Credentials {
	switch provider {
	case "xai":
		return llmadapter.Credentials{APIKey: s.Config.LLM.XAI.APIKey, BaseURL: s.Config.LLM.XAI.BaseURL}
	case "local":
		return llmadapter.Credentials{BaseURL: s.Config.LLM.Local.BaseURL + s.Config.LLM.Local.Path}
	default:
		return llmadapter.Credentials{APIKey: s.Config.LLM.Google.APIKey, BaseURL: s.Config.LLM.Google.BaseURL}
	}
}
