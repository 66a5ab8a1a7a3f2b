package driver

import (
	"context"
	"log/slog"
	"time"
)

// EventKind identifies a driver event.
type EventKind string

const (
	EventPagingDisabled   EventKind = "paging_disabled"
	EventPromptDiscovered EventKind = "prompt_discovered"
	EventConfigProbe      EventKind = "config_probe"
	EventConfigTransition EventKind = "config_transition"
	EventConfigUnchanged  EventKind = "config_unchanged"
	EventCommandSent      EventKind = "command_sent"
)

// Event is a diagnostic record emitted by the driver. Data holds the raw
// appliance text relevant to the event.
type Event struct {
	Kind      EventKind
	Time      time.Time
	Data      string
	Pattern   string
	InConfig  bool
	Direction string
}

// EventSink receives driver events. It must not call back into the driver.
type EventSink func(Event)

// slogEvents is the sink used when Options.Events is nil. It logs to the
// default slog logger at debug level.
func slogEvents(ev Event) {
	ctx := context.Background()
	if !slog.Default().Enabled(ctx, slog.LevelDebug) {
		return
	}
	slog.LogAttrs(ctx, slog.LevelDebug, "driver event",
		slog.String("event", string(ev.Kind)),
		slog.Time("at", ev.Time),
		slog.String("pattern", ev.Pattern),
		slog.String("direction", ev.Direction),
		slog.Bool("in_config", ev.InConfig),
		slog.Int("data_bytes", len(ev.Data)),
	)
}
