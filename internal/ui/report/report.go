// Package report renders indexes, matches and feedback for the terminal.
package report

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/vidtutor/internal/contextindex"
	"github.com/abhisek/vidtutor/internal/feedback"
	"github.com/abhisek/vidtutor/internal/media"
	"github.com/abhisek/vidtutor/internal/resolver"
	"github.com/abhisek/vidtutor/internal/store"
	"github.com/abhisek/vidtutor/internal/ui/components"
	"github.com/abhisek/vidtutor/internal/ui/theme"
)

const DefaultWidth = 80

// Feedback renders rec with its dimensions in cfg order.
func Feedback(rec *feedback.Record, cfg feedback.Config, width int) string {
	if width <= 0 {
		width = DefaultWidth
	}
	var b strings.Builder

	b.WriteString(theme.Title.Render("Feedback"))
	b.WriteString("  ")
	b.WriteString(theme.Subtitle.Render(fmt.Sprintf("%s · submission %s", rec.LearningItemID, rec.SubmissionID)))
	b.WriteString("\n")
	if rec.Grounded {
		b.WriteString(theme.Grounded.Render("grounded in lecture"))
	} else {
		b.WriteString(theme.Ungrounded.Render("no relevant lecture moment"))
	}
	b.WriteString(theme.Hint.Render(fmt.Sprintf("  %s · %d attempt(s) · %s", rec.Model, rec.Attempts, rec.CreatedAt.Local().Format("2006-01-02 15:04"))))
	b.WriteString("\n\n")

	for _, spec := range cfg.Dimensions {
		dim, ok := rec.Dimensions[spec.Name]
		if !ok {
			continue
		}
		b.WriteString(dimension(spec.Name, dim, cfg, width))
		b.WriteString("\n")
	}

	if len(rec.Citations) > 0 {
		b.WriteString(theme.Label.Render("Rewatch"))
		b.WriteString("\n")
		b.WriteString(Matches(rec.Citations))
	}
	return b.String()
}

func dimension(name string, dim feedback.Dimension, cfg feedback.Config, width int) string {
	score := theme.ScoreColor(dim.Score, cfg.MinScore, cfg.MaxScore).
		Render(fmt.Sprintf("%d/%d", dim.Score, cfg.MaxScore))
	bar := components.NewScoreBar(name, dim.Score, cfg.MinScore, cfg.MaxScore, width/2).View()

	lines := []string{bar + "  " + score, highlight(dim.Comment)}
	if len(dim.EvidenceLines) > 0 {
		refs := make([]string, len(dim.EvidenceLines))
		for i, n := range dim.EvidenceLines {
			refs[i] = fmt.Sprint(n)
		}
		lines = append(lines, theme.Hint.Render("lines "+strings.Join(refs, ", ")))
	}
	return theme.Card.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// highlight styles every timestamp written in s.
func highlight(s string) string {
	var b strings.Builder
	last := 0
	for _, loc := range feedback.TimestampSpans(s) {
		b.WriteString(theme.Body.Render(s[last:loc[0]]))
		b.WriteString(theme.Timestamp.Render(s[loc[0]:loc[1]]))
		last = loc[1]
	}
	b.WriteString(theme.Body.Render(s[last:]))
	return b.String()
}

// Matches renders one line per match.
func Matches(matches resolver.Matches) string {
	if len(matches) == 0 {
		return theme.Hint.Render("No relevant moments.") + "\n"
	}
	var b strings.Builder
	for _, m := range matches {
		fmt.Fprintf(&b, "  %s  %s  %s  %s\n",
			theme.Timestamp.Render(fmt.Sprintf("%7s", m.Label())),
			theme.Subtitle.Render(fmt.Sprintf("%-6s", m.Source)),
			theme.Hint.Render(fmt.Sprintf("%.2f", m.Score)),
			theme.Body.Render(m.Snippet))
	}
	return b.String()
}

// Index renders a summary of idx followed by its entries in time order.
func Index(idx *contextindex.ContextIndex) string {
	var b strings.Builder
	b.WriteString(theme.Title.Render(idx.LearningItemID))
	b.WriteString("  ")
	b.WriteString(theme.Subtitle.Render(fmt.Sprintf("%s · %s · %d keyframes · %d segments",
		idx.Video.FileRef,
		media.FormatTimestamp(idx.Video.DurationSeconds),
		len(idx.Keyframes),
		len(idx.Segments))))
	b.WriteString("\n")
	b.WriteString(theme.Hint.Render(fmt.Sprintf("content %s · config %s · built %s",
		short(idx.Video.ContentHash), idx.ConfigHash, idx.BuiltAt.Local().Format("2006-01-02 15:04"))))
	b.WriteString("\n\n")

	for _, e := range idx.Entries() {
		text := e.Text
		if strings.TrimSpace(text) == "" {
			text = theme.Hint.Render("(silence)")
		} else {
			text = theme.Body.Render(strings.Join(strings.Fields(text), " "))
		}
		fmt.Fprintf(&b, "  %s  %s  %s  %s\n",
			theme.Timestamp.Render(fmt.Sprintf("%7s", media.FormatTimestamp(e.Timestamp))),
			theme.Subtitle.Render(fmt.Sprintf("%-6s", e.Source)),
			theme.Hint.Render(fmt.Sprintf("%.2f", e.Confidence)),
			text)
	}
	return b.String()
}

// IndexList renders one line per stored index.
func IndexList(recs []store.IndexRecord) string {
	if len(recs) == 0 {
		return theme.Hint.Render("No indexes built yet.") + "\n"
	}
	var b strings.Builder
	for _, r := range recs {
		fmt.Fprintf(&b, "  %-24s  %s  %s  %s\n",
			theme.Label.Render(r.LearningItemID),
			theme.Subtitle.Render(r.UpdatedAt.Local().Format("2006-01-02 15:04")),
			theme.Hint.Render("content "+short(r.ContentHash)),
			theme.Hint.Render("config "+r.ConfigHash+" · "+r.FormatVersion))
	}
	return b.String()
}

// History renders one line per feedback record.
func History(recs []feedback.Record) string {
	if len(recs) == 0 {
		return theme.Hint.Render("No feedback recorded yet.") + "\n"
	}
	var b strings.Builder
	for _, r := range recs {
		status := theme.Ungrounded.Render("ungrounded")
		if r.Grounded {
			status = theme.Grounded.Render("grounded  ")
		}
		labels := r.Citations.Labels()
		fmt.Fprintf(&b, "  %s  %s  %-12s  %s  %s\n",
			theme.Subtitle.Render(r.CreatedAt.Local().Format("2006-01-02 15:04")),
			theme.Hint.Render(short(r.ID)),
			r.SubmissionID,
			status,
			theme.Timestamp.Render(strings.Join(labels, " ")))
	}
	return b.String()
}

func short(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}
