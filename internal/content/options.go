package content

import "github.com/jonathan/newscaster/internal/llm"

// Options controls search grounding and the size of generated text.
type Options struct {
	Query             string
	SearchDepth       string
	MaxResults        int
	IncludeRawContent bool
	Domains           []string
	TimeRange         string

	// DedupWindow is how many recent published scripts are shown to the model.
	DedupWindow int

	Temperature float64
	Persona     string
	Topic       string
	MaxWords    int
	MaxChars    int
}

// DefaultOptions returns the generation settings used in production.
func DefaultOptions() Options {
	return Options{
		Query:             "Sui blockchain news",
		SearchDepth:       "advanced",
		MaxResults:        5,
		IncludeRawContent: true,
		Domains: []string{
			"twitter.com",
			"github.com",
			"sui.io",
			"crypto.news",
			"coindesk.com",
		},
		TimeRange:   "day",
		DedupWindow: 10,
		Temperature: llm.DefaultTemperature,
		Persona:     "NeoNet",
		Topic:       "Sui blockchain",
		MaxWords:    80,
		MaxChars:    140,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Query == "" {
		o.Query = d.Query
	}
	if o.SearchDepth == "" {
		o.SearchDepth = d.SearchDepth
	}
	if o.MaxResults <= 0 {
		o.MaxResults = d.MaxResults
	}
	if o.Domains == nil {
		o.Domains = d.Domains
	}
	if o.TimeRange == "" {
		o.TimeRange = d.TimeRange
	}
	if o.DedupWindow <= 0 {
		o.DedupWindow = d.DedupWindow
	}
	if o.Temperature == 0 {
		o.Temperature = d.Temperature
	}
	if o.Persona == "" {
		o.Persona = d.Persona
	}
	if o.Topic == "" {
		o.Topic = d.Topic
	}
	if o.MaxWords <= 0 {
		o.MaxWords = d.MaxWords
	}
	if o.MaxChars <= 0 {
		o.MaxChars = d.MaxChars
	}
	return o
}
