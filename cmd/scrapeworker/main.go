// Command scrapeworker is the isolated subprocess target for the
// Search/Scrape Subsystem (spec.md §4.3.2): invoked as
// `scrapeworker <url>`, it fetches and extracts exactly one page and
// writes a single JSON object to stdout. Running page fetch in its own
// process insulates the parent server from a misbehaving page (hangs,
// runaway memory, crashes in third-party HTML/readability code).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/livesearch/orchestrator/internal/scrape"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: scrapeworker <url>")
		os.Exit(2)
	}
	url := os.Args[1]

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Second)
	defer cancel()

	result, err := scrape.FetchAndExtract(ctx, url)
	payload := struct {
		URL      string         `json:"url"`
		Content  string         `json:"content"`
		Links    []scrape.Link  `json:"links"`
		Title    string         `json:"title"`
		Metadata map[string]any `json:"metadata"`
		Error    string         `json:"error,omitempty"`
	}{URL: url}

	if err != nil {
		payload.Error = err.Error()
	} else if result != nil {
		payload.Content = result.Content
		payload.Links = result.Links
		payload.Title = result.Title
		payload.Metadata = result.SourceInfo
	}

	enc := json.NewEncoder(os.Stdout)
	if encErr := enc.Encode(payload); encErr != nil {
		fmt.Fprintln(os.Stderr, "scrapeworker: failed to encode output:", encErr)
		os.Exit(1)
	}
	if payload.Error != "" {
		os.Exit(0) // parent reads the JSON error field; non-zero exit is reserved for crashes
	}
}
