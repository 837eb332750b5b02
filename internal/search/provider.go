// Package search queries a web search/answer service for recent news used to
// ground script generation.
package search

import (
	"context"
	"fmt"
	"strings"
)

// Provider defines the interface for web search providers.
type Provider interface {
	Search(ctx context.Context, query string, opts SearchOptions) (*Response, error)
}

// Response is an aggregated answer plus the raw snippets behind it.
type Response struct {
	Answer  string
	Results []Result
}

// HasAnswer reports whether the provider returned a usable aggregated answer.
func (r *Response) HasAnswer() bool {
	return r != nil && strings.TrimSpace(r.Answer) != ""
}

// Result represents a single search result.
type Result struct {
	Title   string
	URL     string
	Content string
	Score   float64
}

// SearchOptions controls search behavior across providers.
type SearchOptions struct {
	Limit             int
	SearchDepth       string
	IncludeDomains    []string
	TimeRange         string
	IncludeAnswer     bool
	IncludeRawContent bool
}

// Config holds search provider configuration.
type Config struct {
	Provider string
	APIKey   string
	APIURL   string
}

const providerTavily = "tavily"

// NewProvider creates a search provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case providerTavily, "":
		return NewTavilyProvider(cfg.APIKey, cfg.APIURL)
	default:
		return nil, fmt.Errorf("unsupported search provider: %s", cfg.Provider)
	}
}
