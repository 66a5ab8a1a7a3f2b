package channel

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acolita/appliance-shell/internal/testing/fakes/fakepty"
	"github.com/acolita/appliance-shell/internal/testing/simappliance"
)

func newApplianceChannel(t *testing.T, app *simappliance.Appliance, opts Options) (*Channel, *fakepty.PTY) {
	t.Helper()
	p := fakepty.New().SetResponder(app.Handle)
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 2 * time.Second
	}
	ch, err := New(p, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })
	return ch, p
}

func TestNew_RequiresStream(t *testing.T) {
	_, err := New(nil, Options{})
	require.Error(t, err)
}

func TestNew_InvalidPromptPattern(t *testing.T) {
	_, err := New(fakepty.New(), Options{PromptPattern: "("})
	require.Error(t, err)
}

func TestReadUntilPrompt(t *testing.T) {
	app := simappliance.New(simappliance.Options{})
	ch, _ := newApplianceChannel(t, app, Options{})
	ctx := context.Background()

	require.NoError(t, ch.WriteChannel(ctx, ch.NormalizeCmd("show version")))
	out, err := ch.ReadUntilPrompt(ctx)
	require.NoError(t, err)

	assert.Contains(t, out, "Model XR-620")
	assert.True(t, strings.HasSuffix(out, "AP# "), "output %q", out)
}

func TestReadUntilPattern_KeepsRemainder(t *testing.T) {
	p := fakepty.New()
	ch, err := New(p, Options{ReadTimeout: time.Second})
	require.NoError(t, err)
	defer ch.Close()

	p.Feed("line one\r\nAP(config)# trailing")
	ctx := context.Background()

	out, err := ch.ReadUntilPattern(ctx, `\(config\)`)
	require.NoError(t, err)
	assert.Equal(t, "line one\r\nAP(config)", out)

	out, err = ch.ReadUntilPattern(ctx, `trailing`)
	require.NoError(t, err)
	assert.Equal(t, "# trailing", out)
}

func TestReadUntilPattern_InvalidRegex(t *testing.T) {
	ch, err := New(fakepty.New(), Options{})
	require.NoError(t, err)
	defer ch.Close()

	_, err = ch.ReadUntilPattern(context.Background(), "[")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestReadUntilPattern_Timeout(t *testing.T) {
	p := fakepty.New()
	ch, err := New(p, Options{ReadTimeout: 100 * time.Millisecond})
	require.NoError(t, err)
	defer ch.Close()

	p.Feed("partial output")
	_, err = ch.ReadUntilPattern(context.Background(), `never`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "partial output", te.Buffered)
	assert.Equal(t, "never", te.Pattern)
}

func TestReadUntilPattern_ContextCanceled(t *testing.T) {
	ch, err := New(fakepty.New(), Options{ReadTimeout: time.Minute})
	require.NoError(t, err)
	defer ch.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ch.ReadUntilPattern(ctx, `x`)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadUntilPattern_StreamClosed(t *testing.T) {
	p := fakepty.New()
	ch, err := New(p, Options{ReadTimeout: time.Minute})
	require.NoError(t, err)
	defer ch.Close()

	p.Close()
	_, err = ch.ReadUntilPrompt(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWriteChannel_Error(t *testing.T) {
	p := fakepty.New().SetWriteError(errors.New("broken pipe"))
	ch, err := New(p, Options{})
	require.NoError(t, err)
	defer ch.Close()

	err = ch.WriteChannel(context.Background(), "x\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
}

func TestClearBuffer(t *testing.T) {
	p := fakepty.New()
	ch, err := New(p, Options{ReadTimeout: time.Second})
	require.NoError(t, err)
	defer ch.Close()

	p.Feed("stale banner AP# ")
	// Let the reader consume the stale bytes into the buffer.
	_, err = ch.ReadUntilPattern(context.Background(), `stale`)
	require.NoError(t, err)

	ch.ClearBuffer()
	p.Feed("fresh AP# ")
	out, err := ch.ReadUntilPrompt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh AP# ", out)
}

func TestSelectDelayFactor(t *testing.T) {
	tests := []struct {
		name      string
		global    float64
		fast      bool
		requested float64
		want      float64
	}{
		{"slow picks larger", 1, false, 0.5, 1},
		{"slow keeps larger request", 1, false, 4, 4},
		{"fast picks smaller", 1, true, 0.5, 0.5},
		{"fast caps request", 1, true, 4, 1},
		{"zero request slow", 2, false, 0, 2},
		{"zero request fast", 2, true, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, err := New(fakepty.New(), Options{GlobalDelayFactor: tt.global, FastCLI: tt.fast})
			require.NoError(t, err)
			defer ch.Close()
			assert.Equal(t, tt.want, ch.SelectDelayFactor(tt.requested))
		})
	}
}

func TestNormalizeCmd(t *testing.T) {
	ch, err := New(fakepty.New(), Options{})
	require.NoError(t, err)
	defer ch.Close()

	assert.Equal(t, "\n", ch.NormalizeCmd(""))
	assert.Equal(t, "show version\n", ch.NormalizeCmd("show version"))
	assert.Equal(t, "end\n", ch.NormalizeCmd("end\r\n"))
	assert.Equal(t, "  no more\n", ch.NormalizeCmd("  no more\n\n"))

	crlf, err := New(fakepty.New(), Options{LineEnding: "\r\n"})
	require.NoError(t, err)
	defer crlf.Close()
	assert.Equal(t, "end\r\n", crlf.NormalizeCmd("end"))
}

func TestStripAnsiEscapeCodes(t *testing.T) {
	colored := "\x1b[1;32mAP#\x1b[0m "

	off, err := New(fakepty.New(), Options{})
	require.NoError(t, err)
	defer off.Close()
	assert.Equal(t, colored, off.StripAnsiEscapeCodes(colored))

	on, err := New(fakepty.New(), Options{AnsiEscapeCodes: true})
	require.NoError(t, err)
	defer on.Close()
	assert.Equal(t, "AP# ", on.StripAnsiEscapeCodes(colored))
}

func TestAnsiModeStripsIncoming(t *testing.T) {
	app := simappliance.New(simappliance.Options{ANSI: true})
	ch, _ := newApplianceChannel(t, app, Options{AnsiEscapeCodes: true})
	ctx := context.Background()

	require.NoError(t, ch.WriteChannel(ctx, "\n"))
	out, err := ch.ReadUntilPrompt(ctx)
	require.NoError(t, err)
	assert.NotContains(t, out, "\x1b")
	assert.True(t, strings.HasSuffix(out, "AP# "))
}

type memRecorder struct {
	mu      sync.Mutex
	inputs  []string
	outputs strings.Builder
}

func (r *memRecorder) RecordInput(data string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs = append(r.inputs, data)
	return nil
}

func (r *memRecorder) RecordOutput(data string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs.WriteString(data)
	return nil
}

func TestRecorder(t *testing.T) {
	rec := &memRecorder{}
	app := simappliance.New(simappliance.Options{})
	ch, _ := newApplianceChannel(t, app, Options{Recorder: rec})
	ctx := context.Background()

	require.NoError(t, ch.WriteChannel(ctx, "configure\n"))
	_, err := ch.ReadUntilPrompt(ctx)
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"configure\n"}, rec.inputs)
	assert.Contains(t, rec.outputs.String(), "AP(config)# ")
}

func (r *memRecorder) RecordMaskedInput(length int) error {
	return r.RecordInput(strings.Repeat("*", length))
}

func TestWriteSecret_Masked(t *testing.T) {
	rec := &memRecorder{}
	p := fakepty.New()
	ch, err := New(p, Options{Recorder: rec})
	require.NoError(t, err)
	defer ch.Close()

	require.NoError(t, ch.WriteSecret(context.Background(), "hunter2\n"))
	assert.Equal(t, "hunter2\n", p.Written())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"********"}, rec.inputs)
}

func TestClose_Idempotent(t *testing.T) {
	p := fakepty.New()
	ch, err := New(p, Options{})
	require.NoError(t, err)

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	assert.True(t, p.IsClosed())
}
