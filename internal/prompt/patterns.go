// Package prompt recognises the lines an appliance shell prints while it
// waits for input: operational and configuration prompts, the pager, and
// login/password challenges.
package prompt

import (
	"regexp"
	"strings"
)

// Kind classifies a detected prompt.
type Kind string

const (
	KindOperational Kind = "operational"
	KindConfig      Kind = "config"
	KindPager       Kind = "pager"
	KindLogin       Kind = "login"
	KindPassword    Kind = "password"
	KindUnknown     Kind = "unknown"
)

// DefaultTerminators are the trailing characters of an appliance prompt.
const DefaultTerminators = "#>"

// DefaultConfigMarker is embedded in the prompt while in configuration mode.
const DefaultConfigMarker = "(config)"

// Pattern represents a prompt detection pattern.
type Pattern struct {
	Name              string
	Regex             *regexp.Regexp
	Kind              Kind
	MaskInput         bool
	SuggestedResponse string
}

// DefaultPatterns returns the built-in appliance patterns. Order matters:
// the configuration prompt is checked before the operational one because it
// is a more specific shape of the same line.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:              "more_pager",
			Regex:             regexp.MustCompile(`(?i)-+\s*more\s*-+\s*$`),
			Kind:              KindPager,
			SuggestedResponse: " ",
		},
		{
			Name:      "password",
			Regex:     regexp.MustCompile(`(?i)password:\s*$`),
			Kind:      KindPassword,
			MaskInput: true,
		},
		{
			Name:  "login",
			Regex: regexp.MustCompile(`(?i)(login|username|user name):\s*$`),
			Kind:  KindLogin,
		},
		{
			Name:  "config_prompt",
			Regex: regexp.MustCompile(`[\w.\-@:/]+\(config[\w\-]*\)[#>]\s*$`),
			Kind:  KindConfig,
		},
		{
			Name:  "operational_prompt",
			Regex: regexp.MustCompile(`[\w.\-@:/]+[#>]\s*$`),
			Kind:  KindOperational,
		},
	}
}

// TerminatorClass returns a regex character class matching any of terms,
// e.g. `[#>]` for "#>".
func TerminatorClass(terms string) string {
	if terms == "" {
		terms = DefaultTerminators
	}
	var b strings.Builder
	b.WriteByte('[')
	for _, r := range terms {
		switch r {
		case '\\', ']', '[', '^', '-':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte(']')
	return b.String()
}

// ShapePattern matches a buffer whose tail looks like a prompt ending in one
// of terms. It is the default bound for prompt reads.
func ShapePattern(terms string) string {
	return TerminatorClass(terms) + `\s*$`
}

// LinePromptPattern is ShapePattern anchored behind a line break, so a
// terminator left over from an earlier partial read cannot satisfy it. It
// bounds reads that follow a written line, whose echo supplies the break.
func LinePromptPattern(terms string) string {
	return `[\r\n][^\r\n]*` + ShapePattern(terms)
}

// BasePromptPattern matches the base prompt followed by anything on the same
// line up to a terminator, which covers both "AP#" and "AP(config)#".
func BasePromptPattern(base, terms string) string {
	return regexp.QuoteMeta(base) + `[^\r\n]*?` + TerminatorClass(terms)
}
