// Package observability provides pipeline metrics and formatted output for
// verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonathan/newscaster/internal/db"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// StageTiming is the duration of one completed stage.
type StageTiming struct {
	Stage    string
	Duration time.Duration
}

// RunSummary is what the verbose printer shows after a run.
type RunSummary struct {
	RunID            string
	Grounded         bool
	Script           string
	AnnouncementText string
	ImageURL         string
	MediaURL         string
	ArchiveURL       string
	ExternalPostID   string
	PostID           string
	Stages           []StageTiming
}

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, clip(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// clip shortens s to n runes, marking the cut with "...".
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-3]) + "..."
}

// wrap breaks text into lines of at most width runes on word boundaries.
func wrap(text string, width int) []string {
	var lines []string
	var line strings.Builder
	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && utf8.RuneCountInString(line.String())+1+utf8.RuneCountInString(word) > width {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteString(" ")
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return lines
}

// PrintRunSummary outputs the generated text, media locations and stage timings.
func (p *Printer) PrintRunSummary(s RunSummary) {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Run:      %s\n", s.RunID))
	mode := "ungrounded"
	if s.Grounded {
		mode = "grounded in news"
	}
	sb.WriteString(fmt.Sprintf("Mode:     %s\n", mode))
	if s.ExternalPostID != "" {
		sb.WriteString(fmt.Sprintf("Post:     %s\n", s.ExternalPostID))
	}
	if s.PostID != "" {
		sb.WriteString(fmt.Sprintf("Record:   %s\n", s.PostID))
	}
	sb.WriteString("\n")

	if s.Script != "" {
		sb.WriteString("Script:\n")
		for _, line := range wrap(s.Script, boxWidth-6) {
			sb.WriteString("  " + line + "\n")
		}
		sb.WriteString("\n")
	}
	if s.AnnouncementText != "" {
		sb.WriteString("Announcement:\n")
		for _, line := range wrap(s.AnnouncementText, boxWidth-6) {
			sb.WriteString("  " + line + "\n")
		}
		sb.WriteString("\n")
	}

	for _, loc := range []struct{ label, value string }{
		{"Image", s.ImageURL},
		{"Video", s.MediaURL},
		{"Archive", s.ArchiveURL},
	} {
		if loc.value != "" {
			sb.WriteString(fmt.Sprintf("%-9s %s\n", loc.label+":", loc.value))
		}
	}

	if len(s.Stages) > 0 {
		sb.WriteString("\nStages:\n")
		var total time.Duration
		for _, st := range s.Stages {
			sb.WriteString(fmt.Sprintf("  %-16s %8s\n", st.Stage, st.Duration.Round(time.Millisecond)))
			total += st.Duration
		}
		sb.WriteString(fmt.Sprintf("  %-16s %8s\n", "total", total.Round(time.Millisecond)))
	}

	p.printBox("RUN SUMMARY", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintPosts outputs a short listing of stored posts, newest first.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintPosts(posts []db.Post) {
	if len(posts) == 0 {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "NO POSTS YET")
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	for i, post := range posts {
		state := "draft"
		if post.IsPublished && post.ExternalPostID != nil {
			state = "published " + *post.ExternalPostID
		}
		sb.WriteString(fmt.Sprintf("%s  %s\n", post.CreatedAt.Format("2006-01-02 15:04"), state))
		sb.WriteString(fmt.Sprintf("  id: %s\n", post.ID))
		sb.WriteString(fmt.Sprintf("  %s\n", post.AnnouncementText))
		if post.NewsContext != nil {
			sb.WriteString("  [grounded]\n")
		}
		if i < len(posts)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox(fmt.Sprintf("POSTS (%d)", len(posts)), strings.TrimSuffix(sb.String(), "\n"))
}

// PrintDedupContext outputs the prior scripts a grounded run was told to avoid.
func (p *Printer) PrintDedupContext(scripts []string) {
	if len(scripts) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Avoiding %d earlier topics:\n\n", len(scripts)))
	count := min(len(scripts), maxItemsToShow)
	for i := 0; i < count; i++ {
		sb.WriteString(fmt.Sprintf("• %s\n", scripts[i]))
	}
	if len(scripts) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("... and %d more", len(scripts)-maxItemsToShow))
	}

	p.printBox("DEDUP CONTEXT", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintAvatars outputs the avatar images, marking the fallback.
func (p *Printer) PrintAvatars(images []db.AvatarImage, fallbackTitle string) {
	if len(images) == 0 {
		p.printBox("AVATARS (0)", "No images. Add one with: newscaster avatars add")
		return
	}

	var sb strings.Builder
	for _, img := range images {
		mark := " "
		if img.Title == fallbackTitle {
			mark = "*"
		}
		sb.WriteString(fmt.Sprintf("%s %d %s\n", mark, img.ID, img.Title))
		sb.WriteString(fmt.Sprintf("    %s\n", img.URL))
	}
	sb.WriteString("\n* fallback")
	p.printBox(fmt.Sprintf("AVATARS (%d)", len(images)), sb.String())
}
