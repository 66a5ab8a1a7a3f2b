package driver

import (
	"context"
	"strings"
)

// IsInConfigMode discards unread output, sends an empty line, reads until
// pattern and reports whether marker appears in the response. An empty
// pattern reads until the base prompt, or until a prompt-shaped line before
// the base prompt is known. The probe consumes output; it is never answered
// from cache.
func (d *Driver) IsInConfigMode(ctx context.Context, marker, pattern string) (bool, error) {
	if marker == "" {
		return false, ErrInvalidProbeArguments
	}
	if pattern == "" {
		pattern = d.quiescencePattern()
	}

	d.ch.ClearBuffer()
	if err := d.ch.WriteChannel(ctx, d.ch.NormalizeCmd("")); err != nil {
		return false, err
	}
	out, err := d.ch.ReadUntilPattern(ctx, pattern)
	if err != nil {
		return false, err
	}

	in := strings.Contains(out, marker)
	d.emit(Event{Kind: EventConfigProbe, Data: out, Pattern: pattern, InConfig: in})
	return in, nil
}

func (d *Driver) inConfig(ctx context.Context) (bool, error) {
	return d.IsInConfigMode(ctx, d.opts.ConfigMarker, "")
}

// EnterConfigMode moves the session into configuration mode. Empty command
// and pattern select the configured defaults; pattern is a regular
// expression. When the session is already in configuration mode nothing is
// written and the output is empty.
func (d *Driver) EnterConfigMode(ctx context.Context, command, pattern string) (string, error) {
	if command == "" {
		command = d.opts.ConfigCommand
	}
	if pattern == "" {
		pattern = d.opts.ConfigPattern
	}
	return d.transition(ctx, DirectionEnter, true, command, pattern)
}

// ExitConfigMode returns the session to operational mode. An empty pattern
// reads until the base prompt.
func (d *Driver) ExitConfigMode(ctx context.Context, command, pattern string) (string, error) {
	if command == "" {
		command = d.opts.ExitConfigCommand
	}
	if pattern == "" {
		pattern = d.opts.ExitConfigPattern
	}
	if pattern == "" {
		pattern = d.quiescencePattern()
	}
	return d.transition(ctx, DirectionExit, false, command, pattern)
}

// transition probes, writes command if the session is not already where it
// should be, and confirms with a second probe.
func (d *Driver) transition(ctx context.Context, direction string, wantConfig bool, command, pattern string) (string, error) {
	in, err := d.inConfig(ctx)
	if err != nil {
		return "", err
	}
	if in == wantConfig {
		d.emit(Event{Kind: EventConfigUnchanged, Direction: direction, InConfig: in})
		return "", nil
	}

	if err := d.ch.WriteChannel(ctx, d.ch.NormalizeCmd(command)); err != nil {
		return "", err
	}
	out, err := d.ch.ReadUntilPattern(ctx, pattern)
	if err != nil {
		return out, err
	}

	in, err = d.inConfig(ctx)
	if err != nil {
		return out, err
	}
	if in != wantConfig {
		return out, &ModeTransitionError{Direction: direction, Output: out}
	}

	d.emit(Event{Kind: EventConfigTransition, Data: out, Pattern: pattern, Direction: direction, InConfig: in})
	return out, nil
}
