package detector

import (
	"regexp"
	"strings"
	"unicode"
)

// Markers maps keywords in the raw model text to a verdict. A slouch marker
// preceded by one of Negations ("not slouching") counts as an OK marker.
// Uncertain lists the non-answers the prompt allows; text matching neither
// OK nor Slouch is uncertain whether or not it contains one of them.
type Markers struct {
	OK        []string
	Slouch    []string
	Uncertain []string
	Negations []string
}

// DefaultMarkers match the default prompt, which asks for Yes / No / Error.
func DefaultMarkers() Markers {
	return Markers{
		OK:        []string{"no", "upright", "good posture", "straight", "neutral spine"},
		Slouch:    []string{"yes", "slouch", "slouched", "slouching", "hunched", "hunching", "rounded shoulders", "forward head"},
		Uncertain: []string{"error", "cannot determine", "unclear", "not visible"},
		Negations: []string{"not", "no", "never", "without", "nor", "isn't", "aren't", "don't", "doesn't"},
	}
}

type markerPattern struct {
	status Status
	re     *regexp.Regexp
}

// negationWindow is how many words before a slouch marker are searched for a
// negation. The search stops at the start of the clause.
const negationWindow = 3

var wordRe = regexp.MustCompile(`[\p{L}\p{N}_']+`)

// Classifier applies Markers to raw text. An unnegated slouch marker yields
// slouching, otherwise an OK marker (or a negated slouch marker) yields ok.
// Uncertain markers and text without any marker yield uncertain.
type Classifier struct {
	patterns  []markerPattern
	negations map[string]bool
}

// NewClassifier compiles markers. Blank markers are ignored.
func NewClassifier(m Markers) *Classifier {
	c := &Classifier{negations: make(map[string]bool)}
	c.add(StatusSlouching, m.Slouch)
	c.add(StatusOK, m.OK)
	for _, n := range m.Negations {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			c.negations[n] = true
		}
	}
	return c
}

func (c *Classifier) add(status Status, markers []string) {
	for _, m := range markers {
		m = strings.ToLower(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		c.patterns = append(c.patterns, markerPattern{status: status, re: markerRegexp(m)})
	}
}

func markerRegexp(marker string) *regexp.Regexp {
	expr := strings.Join(strings.Fields(regexp.QuoteMeta(marker)), `\s+`)
	runes := []rune(marker)
	if isWordRune(runes[0]) {
		expr = `\b` + expr
	}
	if isWordRune(runes[len(runes)-1]) {
		expr += `\b`
	}
	return regexp.MustCompile(expr)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Status classifies raw model output.
func (c *Classifier) Status(raw string) Status {
	text := strings.ToLower(raw)

	var slouch, ok bool
	for _, p := range c.patterns {
		switch p.status {
		case StatusSlouching:
			for _, loc := range p.re.FindAllStringIndex(text, -1) {
				if c.negated(text[:loc[0]]) {
					ok = true
				} else {
					slouch = true
				}
			}
		case StatusOK:
			if p.re.MatchString(text) {
				ok = true
			}
		}
	}

	switch {
	case slouch:
		return StatusSlouching
	case ok:
		return StatusOK
	default:
		return StatusUncertain
	}
}

// negated reports whether one of the last few words of prefix, within the
// same clause, is a negation.
func (c *Classifier) negated(prefix string) bool {
	if i := strings.LastIndexAny(prefix, ",.;:!?\n"); i >= 0 {
		prefix = prefix[i+1:]
	}
	words := wordRe.FindAllString(prefix, -1)
	if len(words) > negationWindow {
		words = words[len(words)-negationWindow:]
	}
	for _, w := range words {
		if c.negations[w] {
			return true
		}
	}
	return false
}

// Classify is the pure classification rule: raw text + markers -> status.
func Classify(raw string, m Markers) Status {
	return NewClassifier(m).Status(raw)
}

// Message returns the user-facing feedback text for a verdict.
func Message(status Status, raw string) string {
	msg := strings.Join(strings.Fields(raw), " ")
	if msg != "" {
		return msg
	}
	switch status {
	case StatusOK:
		return "Posture OK"
	case StatusSlouching:
		return "You are slouching! Sit up straight!"
	default:
		return "Could not determine posture"
	}
}
