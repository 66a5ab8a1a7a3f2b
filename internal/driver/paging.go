package driver

import (
	"context"
	"time"
)

// DisablePaging turns off the appliance pager. Xirrus-class shells only accept
// the paging command in configuration mode, so the sequence is configure,
// paging command, end, each followed by a read to the prompt. The returned
// transcript is the concatenation of those three reads.
func (d *Driver) DisablePaging(ctx context.Context) (string, error) {
	df := d.ch.SelectDelayFactor(*d.opts.DelayFactor)
	d.clock.Sleep(time.Duration(df * float64(settleUnit)))
	d.ch.ClearBuffer()

	var out string
	for _, cmd := range []string{
		d.opts.ConfigCommand,
		d.opts.PagingCommand,
		d.opts.ExitConfigCommand,
	} {
		if err := d.ch.WriteChannel(ctx, d.ch.NormalizeCmd(cmd)); err != nil {
			return out, err
		}
		resp, err := d.ch.ReadUntilPrompt(ctx)
		out += resp
		if err != nil {
			return out, err
		}
	}

	out = d.ch.StripAnsiEscapeCodes(out)
	d.emit(Event{Kind: EventPagingDisabled, Data: out})
	return out, nil
}
