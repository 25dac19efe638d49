package feedback

import (
	"fmt"
	"strings"
	"text/template"
)

const systemPrompt = `You are a programming tutor reviewing a learner's incorrect code submission for a lecture video.

Rules:
- Score every dimension from {{.MinScore}} to {{.MaxScore}} and explain the score in the comment.
- Evidence lines are 1-based line numbers of the submission. Only use lines that exist.
{{- if .Grounded}}
- You may point the learner to the lecture, but only at the timestamps listed under "Video moments", written exactly as listed (for example {{index .Labels 0}}).
- Never mention any other timestamp, and never invent one.
{{- else}}
- No lecture moment is relevant to this mistake. Do not mention any video timestamp.
{{- end}}
- Write for the learner. Be specific and encouraging.`

const userPrompt = `Dimensions:
{{- range .Dimensions}}
- {{.Name}}: {{.Description}}
{{- end}}

What the evaluator found wrong:
{{- range .Tokens}}
- {{.}}
{{- end}}
{{- range .Markers}}
- {{.}} (structural)
{{- end}}

Video moments:
{{- if .Grounded}}
{{- range .Moments}}
- {{.Label}} ({{.Source}}): "{{.Snippet}}"
{{- end}}
{{- else}}
None. Do not cite any timestamps.
{{- end}}

Submission ({{.LineCount}} lines):
{{.NumberedCode}}`

var (
	systemTmpl = template.Must(template.New("system").Parse(systemPrompt))
	userTmpl   = template.Must(template.New("user").Parse(userPrompt))
)

type moment struct {
	Label   string
	Source  string
	Snippet string
}

type promptData struct {
	MinScore     int
	MaxScore     int
	Grounded     bool
	Labels       []string
	Dimensions   []DimensionSpec
	Tokens       []string
	Markers      []string
	Moments      []moment
	LineCount    int
	NumberedCode string
}

func newPromptData(in Input, cfg Config) promptData {
	d := promptData{
		MinScore:     cfg.MinScore,
		MaxScore:     cfg.MaxScore,
		Grounded:     in.Matches.Grounded(),
		Labels:       in.Matches.Labels(),
		Dimensions:   cfg.Dimensions,
		Tokens:       in.Signature.Tokens,
		Markers:      in.Signature.Markers,
		LineCount:    countLines(in.Code),
		NumberedCode: numberLines(in.Code),
	}
	for _, m := range in.Matches {
		d.Moments = append(d.Moments, moment{
			Label:   m.Label(),
			Source:  string(m.Source),
			Snippet: strings.ReplaceAll(m.Snippet, `"`, `'`),
		})
	}
	return d
}

// buildPrompts renders the system and user messages. Only timestamps and
// snippets from in.Matches reach the backend.
func buildPrompts(in Input, cfg Config) (string, string, error) {
	data := newPromptData(in, cfg)
	var sys, user strings.Builder
	if err := systemTmpl.Execute(&sys, data); err != nil {
		return "", "", fmt.Errorf("render system prompt: %w", err)
	}
	if err := userTmpl.Execute(&user, data); err != nil {
		return "", "", fmt.Errorf("render user prompt: %w", err)
	}
	return sys.String(), user.String(), nil
}

// repairMessage asks for a corrected response. Each attempt restates more
// of the rules.
func repairMessage(attempt int, verr *ValidationError, in Input, cfg Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your previous response was rejected: %s.\n", verr.Message)
	b.WriteString("Return a corrected JSON object.")
	if attempt < 2 {
		return b.String()
	}

	b.WriteString("\n\nRequirements:\n")
	names := make([]string, len(cfg.Dimensions))
	for i, d := range cfg.Dimensions {
		names[i] = d.Name
	}
	fmt.Fprintf(&b, "- Include exactly these keys: %s.\n", strings.Join(names, ", "))
	fmt.Fprintf(&b, "- Every score is an integer from %d to %d.\n", cfg.MinScore, cfg.MaxScore)
	if n := countLines(in.Code); n > 0 {
		fmt.Fprintf(&b, "- Evidence lines are integers from 1 to %d.\n", n)
	} else {
		b.WriteString("- Evidence lines must be empty arrays.\n")
	}
	if labels := in.Matches.Labels(); len(labels) > 0 {
		fmt.Fprintf(&b, "- The only timestamps you may write are: %s.\n", strings.Join(labels, ", "))
	} else {
		b.WriteString("- Do not write any timestamp such as 1:23 anywhere.\n")
	}
	if attempt < 3 {
		return b.String()
	}

	b.WriteString("\nRespond with JSON only, shaped exactly like:\n{")
	for i, name := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, `"%s": {"score": %d, "comment": "...", "evidence_lines": []}`, name, cfg.MinScore)
	}
	b.WriteString("}")
	return b.String()
}

func countLines(code string) int {
	code = strings.TrimRight(code, "\n")
	if code == "" {
		return 0
	}
	return strings.Count(code, "\n") + 1
}

func numberLines(code string) string {
	code = strings.TrimRight(code, "\n")
	if code == "" {
		return "(empty)"
	}
	lines := strings.Split(code, "\n")
	width := len(fmt.Sprint(len(lines)))
	var b strings.Builder
	for i, l := range lines {
		fmt.Fprintf(&b, "%*d | %s\n", width, i+1, l)
	}
	return strings.TrimRight(b.String(), "\n")
}
