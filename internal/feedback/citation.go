package feedback

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/abhisek/vidtutor/internal/media"
	"github.com/abhisek/vidtutor/internal/resolver"
)

// timestampRe finds anything a learner would read as a moment in the video:
// clock forms (0:18, 1:02:05, 00:18.5), compact forms (4m00s) and spelled
// out offsets (18 seconds, 18s, 2 min).
var timestampRe = regexp.MustCompile(`(?i)` +
	`\b(?:\d+:)?\d+:\d{2}(?:\.\d+)?\b` +
	`|\b\d+m\s*\d+s\b` +
	`|\b\d+(?:\.\d+)?\s*(?:seconds?|secs?|s|minutes?|mins?)\b`)

var (
	compactRe = regexp.MustCompile(`(?i)^(\d+)m\s*(\d+)s$`)
	spelledRe = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)\s*([a-z]+)$`)
)

// TimestampSpans returns the byte ranges of every video moment mentioned in
// text, as regexp.FindAllStringIndex does.
func TimestampSpans(text string) [][]int {
	return timestampRe.FindAllStringIndex(text, -1)
}

// CitationValidator rejects any timestamp that is not one of the verified
// matches, and any timestamp at all when there are none. With
// RequireCitation, a grounded response must cite at least one match.
//
// References are compared in whole seconds, so "00:18" and "18 seconds" both
// cite a match labelled 0:18.
type CitationValidator struct{}

func (v *CitationValidator) Name() string { return "citation" }

func (v *CitationValidator) Validate(dims map[string]Dimension, in Input, cfg Config) *ValidationError {
	allowed := matchSeconds(in.Matches)

	cited := 0
	for _, spec := range cfg.Dimensions {
		for _, ts := range citedTimestamps(dims[spec.Name].Comment) {
			if len(allowed) == 0 {
				return &ValidationError{
					Validator: v.Name(),
					Message:   fmt.Sprintf("%s mentions timestamp %s but no video moment is relevant", spec.Name, ts),
				}
			}
			if sec, ok := timestampSeconds(ts); !ok || !allowed[sec] {
				return &ValidationError{
					Validator: v.Name(),
					Message: fmt.Sprintf("%s cites %s, which is not one of the verified moments (%s)",
						spec.Name, ts, strings.Join(in.Matches.Labels(), ", ")),
				}
			}
			cited++
		}
	}
	if cfg.RequireCitation && len(allowed) > 0 && cited == 0 {
		return &ValidationError{
			Validator: v.Name(),
			Message:   fmt.Sprintf("no comment points the learner to the lecture; cite one of %s", strings.Join(in.Matches.Labels(), ", ")),
		}
	}
	return nil
}

func citedTimestamps(text string) []string {
	return timestampRe.FindAllString(text, -1)
}

// timestampSeconds converts a reference found by timestampRe to whole
// seconds. Fractions are dropped the way match labels drop them.
func timestampSeconds(ref string) (int64, bool) {
	ref = strings.TrimSpace(ref)
	if strings.Contains(ref, ":") {
		clock, _, _ := strings.Cut(ref, ".")
		sec, err := media.ParseTimestamp(clock)
		return sec, err == nil
	}
	if m := compactRe.FindStringSubmatch(ref); m != nil {
		mins, err1 := strconv.ParseInt(m[1], 10, 64)
		sec, err2 := strconv.ParseInt(m[2], 10, 64)
		if err1 != nil || err2 != nil || sec >= 60 {
			return 0, false
		}
		return mins*60 + sec, true
	}
	if m := spelledRe.FindStringSubmatch(ref); m != nil {
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		if strings.HasPrefix(strings.ToLower(m[2]), "m") {
			n *= 60
		}
		return int64(math.Floor(n)), true
	}
	return 0, false
}

// matchSeconds indexes matches by the whole second their label shows.
func matchSeconds(matches resolver.Matches) map[int64]bool {
	out := make(map[int64]bool, len(matches))
	for _, l := range matches.Labels() {
		if sec, err := media.ParseTimestamp(l); err == nil {
			out[sec] = true
		}
	}
	return out
}

// citedMatches returns the matches referenced by any comment, in rank order.
func citedMatches(dims map[string]Dimension, matches resolver.Matches) resolver.Matches {
	seen := make(map[int64]bool)
	for _, d := range dims {
		for _, ts := range citedTimestamps(d.Comment) {
			if sec, ok := timestampSeconds(ts); ok {
				seen[sec] = true
			}
		}
	}
	out := resolver.Matches{}
	for _, m := range matches {
		if sec, err := media.ParseTimestamp(m.Label()); err == nil && seen[sec] {
			out = append(out, m)
		}
	}
	return out
}
