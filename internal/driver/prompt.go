package driver

import (
	"context"
	"strings"
	"unicode/utf8"
)

// DiscoverPrompt sends one empty line, reads until a prompt and returns the
// last non-empty line minus its terminator. Before PrepareSession completes
// the result is stored as the base prompt. Afterwards the base prompt is
// sealed and the result is only returned.
func (d *Driver) DiscoverPrompt(ctx context.Context) (string, error) {
	return d.discoverPrompt(ctx, false)
}

func (d *Driver) discoverPrompt(ctx context.Context, preparing bool) (string, error) {
	if err := d.ch.WriteChannel(ctx, d.ch.NormalizeCmd("")); err != nil {
		return "", err
	}
	out, err := d.ch.ReadUntilPrompt(ctx)
	if err != nil {
		return "", err
	}

	line := lastLine(d.ch.StripAnsiEscapeCodes(out))
	base, ok := splitTerminator(line, d.opts.Terminators)
	if !ok {
		return "", &PromptNotRecognizedError{Raw: line}
	}

	d.mu.Lock()
	store := preparing || (!d.prepared && !d.preparing)
	if store {
		d.basePrompt = base
	}
	d.mu.Unlock()

	if store {
		d.emit(Event{Kind: EventPromptDiscovered, Data: base})
	}
	return base, nil
}

// lastLine returns the last line of s that is not blank, trimmed.
func lastLine(s string) string {
	lines := strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' })
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

// splitTerminator strips the final rune of line when it is one of terms.
func splitTerminator(line, terms string) (string, bool) {
	r, size := utf8.DecodeLastRuneInString(line)
	if size == 0 || r == utf8.RuneError || !strings.ContainsRune(terms, r) {
		return "", false
	}
	return line[:len(line)-size], true
}
