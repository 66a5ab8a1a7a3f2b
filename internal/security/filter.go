package security

import (
	"fmt"
	"regexp"
)

// CommandFilter decides which commands the agent-facing tools may send.
type CommandFilter struct {
	blocklist []*regexp.Regexp
	allowlist []*regexp.Regexp
}

// NewCommandFilter compiles blocklist and allowlist patterns.
func NewCommandFilter(blocklist, allowlist []string) (*CommandFilter, error) {
	cf := &CommandFilter{}

	for _, pattern := range blocklist {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid blocklist pattern %q: %w", pattern, err)
		}
		cf.blocklist = append(cf.blocklist, re)
	}
	for _, pattern := range allowlist {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid allowlist pattern %q: %w", pattern, err)
		}
		cf.allowlist = append(cf.allowlist, re)
	}
	return cf, nil
}

// IsAllowed checks a command against the blocklist, then the allowlist.
// Returns (allowed, reason).
func (cf *CommandFilter) IsAllowed(command string) (bool, string) {
	for _, re := range cf.blocklist {
		if re.MatchString(command) {
			return false, fmt.Sprintf("command blocked by pattern: %s", re.String())
		}
	}

	if len(cf.allowlist) == 0 {
		return true, ""
	}
	for _, re := range cf.allowlist {
		if re.MatchString(command) {
			return true, ""
		}
	}
	return false, "command not in allowlist"
}

// DefaultBlocklist returns commands that take an appliance out of service.
func DefaultBlocklist() []string {
	return []string{
		`^\s*reboot\b`,
		`^\s*reload\b`,
		`^\s*(factory|reset)\b`,
		`^\s*(erase|format)\b`,
		`^\s*boot-env\b`,
	}
}
