// Package recovery turns appliance CLI rejections and session failures into
// hints an operator or agent can act on.
package recovery

import (
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/acolita/appliance-shell/internal/channel"
	"github.com/acolita/appliance-shell/internal/driver"
)

// Suggestion is one hint for a failed command or session.
type Suggestion struct {
	Problem     string   `json:"problem"`
	Category    string   `json:"category"` // syntax, mode, network, auth, prompt
	Commands    []string `json:"commands,omitempty"`
	Explanation string   `json:"explanation"`
	Confidence  float64  `json:"confidence"`
	Risky       bool     `json:"risky,omitempty"`
}

// Analyzer matches CLI output against known rejection messages.
type Analyzer struct {
	rules []rule
}

type rule struct {
	name    string
	pattern *regexp.Regexp
	suggest func(command string, matches []string) *Suggestion
}

// NewAnalyzer returns an analyzer with the built-in appliance rules.
func NewAnalyzer() *Analyzer {
	return &Analyzer{rules: outputRules()}
}

// Analyze returns hints for command output, highest confidence first. Output
// without an error marker yields nil.
func (a *Analyzer) Analyze(command, output string) []*Suggestion {
	if !hasErrorMarker(output) {
		return nil
	}

	var out []*Suggestion
	for _, r := range a.rules {
		if m := r.pattern.FindStringSubmatch(output); m != nil {
			if s := r.suggest(strings.TrimSpace(command), m); s != nil {
				out = append(out, s)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// AnalyzeError returns a hint for a session level failure, or nil when the
// error is not one it recognises.
func AnalyzeError(err error) *Suggestion {
	if err == nil {
		return nil
	}

	var pnr *driver.PromptNotRecognizedError
	switch {
	case errors.As(err, &pnr):
		return &Suggestion{
			Problem:     "Prompt not recognized: " + strings.TrimSpace(pnr.Raw),
			Category:    "prompt",
			Explanation: "The last line read does not end in a configured terminator. Add the terminator to session.terminators or a pattern under prompt_detection.",
			Confidence:  0.8,
		}
	case errors.Is(err, driver.ErrModeTransitionFailed):
		return &Suggestion{
			Problem:     "Configuration mode transition was not confirmed",
			Category:    "mode",
			Commands:    []string{"show users", "end"},
			Explanation: "Another administrator may hold the configuration lock, or the config marker does not match this firmware. Check session.config_marker.",
			Confidence:  0.7,
		}
	case errors.Is(err, channel.ErrTimeout):
		return &Suggestion{
			Problem:     "Timed out waiting for the appliance",
			Category:    "prompt",
			Explanation: "The expected pattern never arrived. Raise session.read_timeout or delay_factor, or check that paging is disabled.",
			Confidence:  0.6,
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"):
		return &Suggestion{
			Problem:     "Connection refused",
			Category:    "network",
			Explanation: "The appliance is not accepting connections on that port. Confirm SSH is enabled on the management interface.",
			Confidence:  0.7,
		}
	case strings.Contains(msg, "unable to authenticate"), strings.Contains(msg, "login rejected"):
		return &Suggestion{
			Problem:     "Authentication failed",
			Category:    "auth",
			Commands:    []string{"appliance-shell keyring set <appliance>"},
			Explanation: "The stored or supplied password was rejected. Repeated failures lock the appliance out locally for a while.",
			Confidence:  0.8,
		}
	case strings.Contains(msg, "host key") || strings.Contains(msg, "knownhosts"):
		return &Suggestion{
			Problem:     "Host key mismatch",
			Category:    "auth",
			Commands:    []string{"ssh-keygen -R <host>"},
			Explanation: "The appliance presented a different host key. Replaced hardware does this, so does interception. Verify before removing the old key.",
			Confidence:  0.8,
			Risky:       true,
		}
	}
	return nil
}

func hasErrorMarker(output string) bool {
	lowered := strings.ToLower(output)
	for _, m := range []string{
		"% ", "invalid", "incomplete", "ambiguous", "unrecognized",
		"error", "not allowed", "failed", "unknown",
	} {
		if strings.Contains(lowered, m) {
			return true
		}
	}
	return false
}

func outputRules() []rule {
	return []rule{
		{
			name:    "invalid_input",
			pattern: regexp.MustCompile(`(?i)%?\s*(invalid input|unrecognized command|unknown command)`),
			suggest: func(cmd string, _ []string) *Suggestion {
				return &Suggestion{
					Problem:     "Command not recognized: " + cmd,
					Category:    "syntax",
					Commands:    []string{helpFor(cmd)},
					Explanation: "The CLI does not know this keyword at the current level. Some commands exist only in configuration mode.",
					Confidence:  0.8,
				}
			},
		},
		{
			name:    "incomplete",
			pattern: regexp.MustCompile(`(?i)incomplete command`),
			suggest: func(cmd string, _ []string) *Suggestion {
				return &Suggestion{
					Problem:     "Incomplete command: " + cmd,
					Category:    "syntax",
					Commands:    []string{cmd + " ?"},
					Explanation: "The command needs more arguments. List them with a trailing question mark.",
					Confidence:  0.9,
				}
			},
		},
		{
			name:    "ambiguous",
			pattern: regexp.MustCompile(`(?i)ambiguous command`),
			suggest: func(cmd string, _ []string) *Suggestion {
				return &Suggestion{
					Problem:     "Ambiguous abbreviation: " + cmd,
					Category:    "syntax",
					Commands:    []string{helpFor(cmd)},
					Explanation: "The abbreviation matches more than one keyword. Spell it out.",
					Confidence:  0.9,
				}
			},
		},
		{
			name:    "config_only",
			pattern: regexp.MustCompile(`(?i)((valid )?only (available |allowed |valid )?in config(uration)? mode|not allowed in this mode)`),
			suggest: func(cmd string, _ []string) *Suggestion {
				return &Suggestion{
					Problem:     "Command requires configuration mode",
					Category:    "mode",
					Commands:    []string{"configure", cmd, "end"},
					Explanation: "Send it as a configuration line instead.",
					Confidence:  0.85,
				}
			},
		},
		{
			name:    "config_locked",
			pattern: regexp.MustCompile(`(?i)(configuration is locked|another (user|session) is (in|configuring))`),
			suggest: func(_ string, _ []string) *Suggestion {
				return &Suggestion{
					Problem:     "Configuration is locked by another session",
					Category:    "mode",
					Commands:    []string{"show users"},
					Explanation: "Only one session may configure at a time. Wait for the other session or ask its owner to exit.",
					Confidence:  0.85,
				}
			},
		},
		{
			name:    "save_failed",
			pattern: regexp.MustCompile(`(?i)(save|write) (failed|error)`),
			suggest: func(_ string, _ []string) *Suggestion {
				return &Suggestion{
					Problem:     "Saving the configuration failed",
					Category:    "mode",
					Commands:    []string{"show flash", "save"},
					Explanation: "Flash may be full or busy. Retry after checking free space.",
					Confidence:  0.6,
					Risky:       true,
				}
			},
		},
	}
}

// helpFor builds the context-help request for the first keyword of cmd.
func helpFor(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) <= 1 {
		return "?"
	}
	return strings.Join(fields[:len(fields)-1], " ") + " ?"
}
