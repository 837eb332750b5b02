// Package content produces the spoken script and the companion announcement
// text for one pipeline run.
package content

import (
	"context"
	"strconv"
	"strings"

	"github.com/jonathan/newscaster/internal/llm"
	"github.com/jonathan/newscaster/internal/logging"
	"github.com/jonathan/newscaster/internal/prompts"
	"github.com/jonathan/newscaster/internal/search"
	"github.com/sirupsen/logrus"
)

// Content is the output of one generation.
type Content struct {
	Script           string
	AnnouncementText string
	// NewsContext is the search answer the script was grounded in; nil when
	// the ungrounded path ran.
	NewsContext *string
}

// Grounded reports whether the script was written from a news summary.
func (c *Content) Grounded() bool {
	return c != nil && c.NewsContext != nil
}

// ScriptHistory supplies the most recent published scripts, newest first.
type ScriptHistory interface {
	RecentPublishedScripts(ctx context.Context, limit int) ([]string, error)
}

// Generator writes scripts and announcements with an LLM, optionally grounded
// in search results.
type Generator struct {
	client   llm.Client
	searcher search.Provider
	history  ScriptHistory
	opts     Options
	logger   *logrus.Logger
}

// NewGenerator wires a Generator. searcher and history may be nil, in which
// case every generation is ungrounded.
func NewGenerator(client llm.Client, searcher search.Provider, history ScriptHistory, opts Options, logger *logrus.Logger) *Generator {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Generator{
		client:   client,
		searcher: searcher,
		history:  history,
		opts:     opts.withDefaults(),
		logger:   logger,
	}
}

// Generate produces a script and announcement. With grounded set, recent news
// is searched first; an empty answer falls back to the ungrounded path.
func (g *Generator) Generate(ctx context.Context, grounded bool) (*Content, error) {
	var (
		script      string
		newsContext *string
		err         error
	)

	answer := ""
	if grounded && g.searcher != nil {
		answer, err = g.searchNews(ctx)
		if err != nil {
			return nil, err
		}
	}

	if answer != "" {
		script, err = g.groundedScript(ctx, answer)
		newsContext = &answer
	} else {
		g.logger.WithField("grounding_requested", grounded).Info("generating ungrounded script")
		script, err = g.ungroundedScript(ctx)
	}
	if err != nil {
		return nil, err
	}

	announcement, err := g.announcement(ctx, script)
	if err != nil {
		return nil, err
	}

	return &Content{
		Script:           script,
		AnnouncementText: announcement,
		NewsContext:      newsContext,
	}, nil
}

func (g *Generator) searchNews(ctx context.Context) (string, error) {
	resp, err := g.searcher.Search(ctx, g.opts.Query, search.SearchOptions{
		Limit:             g.opts.MaxResults,
		SearchDepth:       g.opts.SearchDepth,
		IncludeDomains:    g.opts.Domains,
		TimeRange:         g.opts.TimeRange,
		IncludeAnswer:     true,
		IncludeRawContent: g.opts.IncludeRawContent,
	})
	if err != nil {
		return "", &GenerationError{Message: "news search failed", Cause: err}
	}
	if !resp.HasAnswer() {
		g.logger.WithField("results", len(resp.Results)).Warn("news search returned no answer")
		return "", nil
	}
	g.logger.WithField("results", len(resp.Results)).Debug("news search answered")
	return resp.Answer, nil
}

func (g *Generator) groundedScript(ctx context.Context, answer string) (string, error) {
	prior, err := g.priorPosts(ctx)
	if err != nil {
		return "", err
	}

	system, err := prompts.Render(prompts.GenerationFile, "script-grounded-system", g.templateData(nil))
	if err != nil {
		return "", &GenerationError{Message: "load prompt", Cause: err}
	}
	user, err := prompts.Render(prompts.GenerationFile, "script-grounded-user", g.templateData(map[string]string{
		"PriorPosts":  prior,
		"NewsSummary": answer,
	}))
	if err != nil {
		return "", &GenerationError{Message: "load prompt", Cause: err}
	}

	return g.complete(ctx, "script", llm.TierScript, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	})
}

func (g *Generator) ungroundedScript(ctx context.Context) (string, error) {
	system, err := prompts.Render(prompts.GenerationFile, "script-ungrounded", g.templateData(nil))
	if err != nil {
		return "", &GenerationError{Message: "load prompt", Cause: err}
	}
	return g.complete(ctx, "script", llm.TierScript, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
	})
}

func (g *Generator) announcement(ctx context.Context, script string) (string, error) {
	data := g.templateData(map[string]string{"Script": script})
	system, err := prompts.Render(prompts.GenerationFile, "announcement-system", data)
	if err != nil {
		return "", &GenerationError{Message: "load prompt", Cause: err}
	}
	user, err := prompts.Render(prompts.GenerationFile, "announcement-user", data)
	if err != nil {
		return "", &GenerationError{Message: "load prompt", Cause: err}
	}

	text, err := g.complete(ctx, "announcement", llm.TierAnnouncement, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	})
	if err != nil {
		return "", err
	}
	return llm.TruncateOnWord(text, g.opts.MaxChars), nil
}

// priorPosts renders the dedup context, one "Previous post:" line per script.
func (g *Generator) priorPosts(ctx context.Context) (string, error) {
	if g.history == nil {
		return "None.", nil
	}
	scripts, err := g.history.RecentPublishedScripts(ctx, g.opts.DedupWindow)
	if err != nil {
		return "", &GenerationError{Message: "load recent posts", Cause: err}
	}
	if len(scripts) == 0 {
		return "None.", nil
	}
	lines := make([]string, 0, len(scripts))
	for _, s := range scripts {
		lines = append(lines, "Previous post: "+s)
	}
	return strings.Join(lines, "\n"), nil
}

func (g *Generator) complete(ctx context.Context, what string, tier llm.ModelTier, messages []llm.Message) (string, error) {
	raw, err := g.client.Complete(ctx, llm.Request{
		Messages:    messages,
		Tier:        tier,
		Temperature: g.opts.Temperature,
	})
	if err != nil {
		return "", &GenerationError{Message: what + " completion failed", Cause: err}
	}
	text := llm.CleanCompletion(raw)
	if text == "" {
		return "", &GenerationError{Message: what + " completion was empty"}
	}
	return text, nil
}

func (g *Generator) templateData(extra map[string]string) map[string]string {
	persona := prompts.Format(prompts.MustGet(prompts.GenerationFile, "persona"), map[string]string{
		"Persona": g.opts.Persona,
	})
	data := map[string]string{
		"Persona":     g.opts.Persona,
		"PersonaLine": persona,
		"Topic":       g.opts.Topic,
		"MaxWords":    strconv.Itoa(g.opts.MaxWords),
		"MaxChars":    strconv.Itoa(g.opts.MaxChars),
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}
