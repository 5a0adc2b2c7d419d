package catalog

import (
	"sort"
	"strconv"
	"strings"

	"github.com/simehr/simehr/sim"
)

// TemplateNames returns the note template names, sorted.
func (b *Bundle) TemplateNames() []string {
	names := make([]string, 0, len(b.NoteTemplates))
	for n := range b.NoteTemplates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RenderTemplate fills a note template's patient placeholders: [name], [mrn],
// [dob], [age], [sex], [chief], [complaint], [problems]. Other bracketed
// prompts are left for the author.
func (b *Bundle) RenderTemplate(name string, p *sim.Patient) (string, bool) {
	tmpl, ok := b.NoteTemplates[name]
	if !ok {
		return "", false
	}
	r := strings.NewReplacer(
		"[name]", p.Name,
		"[mrn]", p.MRN,
		"[dob]", p.DOB,
		"[age]", strconv.Itoa(p.Age),
		"[sex]", p.Sex,
		"[chief]", p.ChiefComplaint,
		"[complaint]", p.ChiefComplaint,
		"[problems]", strings.Join(p.Problems, ", "),
	)
	return r.Replace(tmpl), true
}

// ExpandPhrases replaces every whitespace-delimited smart-phrase token
// (".nad", ".rrr", ...) with its text. Unknown tokens are kept.
func (b *Bundle) ExpandPhrases(text string) string {
	if len(b.SmartPhrases) == 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		words := strings.Split(line, " ")
		for j, w := range words {
			if phrase, ok := b.SmartPhrases[w]; ok {
				words[j] = phrase
			}
		}
		lines[i] = strings.Join(words, " ")
	}
	return strings.Join(lines, "\n")
}
