package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/acolita/appliance-shell/internal/channel"
	"github.com/acolita/appliance-shell/internal/config"
	"github.com/acolita/appliance-shell/internal/pty"
	"github.com/acolita/appliance-shell/internal/security"
	"github.com/acolita/appliance-shell/internal/testing/fakes/fakeclock"
	"github.com/acolita/appliance-shell/internal/testing/fakes/fakefs"
	"github.com/acolita/appliance-shell/internal/testing/fakes/fakepty"
	"github.com/acolita/appliance-shell/internal/testing/mockssh"
	"github.com/acolita/appliance-shell/internal/testing/simappliance"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func envPassword(pw string) *security.Resolver {
	return &security.Resolver{Env: func(key string) string {
		if key == "AP_PASSWORD" {
			return pw
		}
		return ""
	}}
}

// console is a scripted telnet-style console: optional username and
// password challenges, then a simulated appliance.
type console struct {
	app      *simappliance.Appliance
	user     string
	password string
	started  []pty.Options
	ptys     []*fakepty.PTY
}

func (c *console) start(opts pty.Options) (channel.Stream, error) {
	c.started = append(c.started, opts)
	p := fakepty.New()
	c.ptys = append(c.ptys, p)

	if c.user == "" {
		p.Feed(c.app.Banner())
		p.SetResponder(func(line string) string { return c.app.Handle(line) })
		return p, nil
	}

	stage := 0
	var gotUser string
	p.Feed("\r\nXR console\r\nUsername: ")
	p.SetResponder(func(line string) string {
		line = strings.TrimRight(line, "\r")
		switch stage {
		case 0:
			gotUser = line
			stage = 1
			return line + "\r\nPassword: "
		case 1:
			if gotUser == c.user && line == c.password {
				stage = 2
				return "\r\n" + c.app.Banner()
			}
			stage = 0
			return "\r\n% Login incorrect\r\nUsername: "
		}
		return c.app.Handle(line)
	})
	return p, nil
}

func ptyAppliance(name string) config.ApplianceConfig {
	return config.ApplianceConfig{
		Name:      name,
		User:      "admin",
		Transport: config.TransportPTY,
		Command:   []string{"telnet", "10.0.0.5"},
		Auth:      config.AuthConfig{PasswordEnv: "AP_PASSWORD"},
	}
}

func newTestManager(t *testing.T, cfg *config.Config, opts ...ManagerOption) *Manager {
	t.Helper()
	require.NoError(t, cfg.Validate())
	base := []ManagerOption{
		WithManagerClock(fakeclock.New(t0)),
		WithManagerFileSystem(fakefs.New()),
		WithManagerLogger(quietLogger()),
	}
	mgr, err := NewManager(cfg, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(mgr.CloseAll)
	return mgr
}

func TestManager_ConnectOverSSH(t *testing.T) {
	server, err := mockssh.New(mockssh.WithAppliance(simappliance.Options{Hostname: "lobby-ap"}))
	require.NoError(t, err)
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.Appliances = []config.ApplianceConfig{{
		Name: "lobby",
		Host: server.Host(),
		Port: server.Port(),
		User: "admin",
		Auth: config.AuthConfig{Type: "password", PasswordEnv: "AP_PASSWORD", KnownHosts: "insecure"},
	}}
	mgr := newTestManager(t, cfg, WithManagerCredentials(envPassword("admin")))
	ctx := testContext(t)

	sess, err := mgr.Connect(ctx, "lobby")
	require.NoError(t, err)
	assert.Equal(t, "lobby-ap", sess.BasePrompt())
	assert.True(t, strings.HasPrefix(sess.ID, "sess_"))

	apps := server.Appliances()
	require.Len(t, apps, 1)
	assert.False(t, apps[0].PagingEnabled(), "paging should be disabled by prepare")
	assert.False(t, apps[0].InConfig())

	out, err := sess.Send(ctx, "show interfaces")
	require.NoError(t, err)
	assert.Contains(t, out, "iap30")
	assert.NotContains(t, out, "--More--")

	_, err = sess.EnterConfigMode(ctx)
	require.NoError(t, err)
	in, err := sess.IsInConfigMode(ctx)
	require.NoError(t, err)
	assert.True(t, in)
	assert.True(t, apps[0].InConfig())

	_, err = sess.ExitConfigMode(ctx)
	require.NoError(t, err)
	assert.False(t, apps[0].InConfig())

	info := sess.Info()
	assert.Equal(t, "lobby", info.Appliance)
	assert.Equal(t, cfg.Appliances[0].Address(), info.Address)
	assert.Equal(t, "lobby-ap", info.BasePrompt)
}

func TestManager_SSHPasswordRejected(t *testing.T) {
	server, err := mockssh.New()
	require.NoError(t, err)
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.Security.MaxAuthFailures = 1
	cfg.Appliances = []config.ApplianceConfig{{
		Name: "ap",
		Host: server.Host(),
		Port: server.Port(),
		User: "admin",
		Auth: config.AuthConfig{PasswordEnv: "AP_PASSWORD", KnownHosts: "insecure"},
	}}
	mgr := newTestManager(t, cfg, WithManagerCredentials(envPassword("wrong")))
	ctx := testContext(t)

	_, err = mgr.Connect(ctx, "ap")
	require.Error(t, err)

	_, err = mgr.Connect(ctx, "ap")
	assert.ErrorIs(t, err, ErrLockedOut)
}

func TestManager_ConnectOverConsoleWithLogin(t *testing.T) {
	con := &console{app: simappliance.New(simappliance.Options{Hostname: "XR-4"}), user: "admin", password: "s3cret"}
	cfg := config.DefaultConfig()
	cfg.Appliances = []config.ApplianceConfig{ptyAppliance("xr4")}
	mgr := newTestManager(t, cfg,
		WithManagerConsole(con.start),
		WithManagerCredentials(envPassword("s3cret")),
	)

	sess, err := mgr.Connect(testContext(t), "xr4")
	require.NoError(t, err)
	assert.Equal(t, "XR-4", sess.BasePrompt())
	require.Len(t, con.started, 1)
	assert.Equal(t, []string{"telnet", "10.0.0.5"}, con.started[0].Command)
	assert.False(t, con.app.PagingEnabled())

	lines := con.app.Lines()
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Equal(t, []string{"configure", "no more", "end"}, lines[:3])
}

func TestManager_ConsoleLoginRejected(t *testing.T) {
	con := &console{app: simappliance.New(simappliance.Options{}), user: "admin", password: "right"}
	cfg := config.DefaultConfig()
	cfg.Security.MaxAuthFailures = 1
	cfg.Appliances = []config.ApplianceConfig{ptyAppliance("ap")}
	mgr := newTestManager(t, cfg,
		WithManagerConsole(con.start),
		WithManagerCredentials(envPassword("wrong")),
	)
	ctx := testContext(t)

	_, err := mgr.Connect(ctx, "ap")
	assert.ErrorIs(t, err, ErrLoginRejected)
	assert.True(t, con.ptys[0].IsClosed(), "failed session should close its stream")

	_, err = mgr.Connect(ctx, "ap")
	assert.ErrorIs(t, err, ErrLockedOut)
	assert.Len(t, con.started, 1)
	assert.Zero(t, mgr.SessionCount())
}

func TestManager_ConsoleWithoutPassword(t *testing.T) {
	con := &console{app: simappliance.New(simappliance.Options{}), user: "admin", password: "x"}
	cfg := config.DefaultConfig()
	cfg.Appliances = []config.ApplianceConfig{ptyAppliance("ap")}
	mgr := newTestManager(t, cfg, WithManagerConsole(con.start))

	_, err := mgr.Connect(testContext(t), "ap")
	assert.ErrorIs(t, err, security.ErrNoPassword)
}

func TestManager_UnknownAppliance(t *testing.T) {
	mgr := newTestManager(t, config.DefaultConfig())
	_, err := mgr.Connect(testContext(t), "nope")
	assert.ErrorIs(t, err, ErrUnknownAppliance)
}

func TestManager_MaxSessions(t *testing.T) {
	con := &console{app: simappliance.New(simappliance.Options{})}
	cfg := config.DefaultConfig()
	cfg.Security.MaxSessions = 1
	cfg.Appliances = []config.ApplianceConfig{ptyAppliance("ap")}
	mgr := newTestManager(t, cfg, WithManagerConsole(con.start))
	ctx := testContext(t)

	sess, err := mgr.Connect(ctx, "ap")
	require.NoError(t, err)

	_, err = mgr.Connect(ctx, "ap")
	assert.ErrorIs(t, err, ErrTooManySessions)

	require.NoError(t, mgr.Close(sess.ID))
	_, err = mgr.Get(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, mgr.Close(sess.ID), ErrSessionNotFound)

	_, err = mgr.Connect(ctx, "ap")
	assert.NoError(t, err)
}

func TestManager_ListAndCloseAll(t *testing.T) {
	con := &console{app: simappliance.New(simappliance.Options{})}
	cfg := config.DefaultConfig()
	cfg.Appliances = []config.ApplianceConfig{ptyAppliance("a"), ptyAppliance("b")}
	mgr := newTestManager(t, cfg, WithManagerConsole(con.start))
	ctx := testContext(t)

	first, err := mgr.Connect(ctx, "a")
	require.NoError(t, err)
	second, err := mgr.Connect(ctx, "b")
	require.NoError(t, err)

	got, err := mgr.Get(first.ID)
	require.NoError(t, err)
	assert.Same(t, first, got)

	infos := mgr.List()
	require.Len(t, infos, 2)
	assert.Equal(t, first.ID, infos[0].ID)
	assert.Equal(t, second.ID, infos[1].ID)
	assert.Equal(t, config.TransportPTY, infos[0].Transport)
	assert.Empty(t, infos[0].Address)

	mgr.CloseAll()
	assert.Zero(t, mgr.SessionCount())
	for _, p := range con.ptys {
		assert.True(t, p.IsClosed())
	}

	_, err = first.Send(ctx, "show version")
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSession_CommandFilter(t *testing.T) {
	con := &console{app: simappliance.New(simappliance.Options{})}
	cfg := config.DefaultConfig()
	cfg.Appliances = []config.ApplianceConfig{ptyAppliance("ap")}
	mgr := newTestManager(t, cfg, WithManagerConsole(con.start))
	ctx := testContext(t)

	sess, err := mgr.Connect(ctx, "ap")
	require.NoError(t, err)
	before := len(con.app.Lines())

	_, err = sess.Send(ctx, "reboot")
	assert.ErrorIs(t, err, ErrCommandBlocked)

	_, err = sess.SendConfig(ctx, []string{"ssid lobby", "factory reset"})
	assert.ErrorIs(t, err, ErrCommandBlocked)
	assert.Len(t, con.app.Lines(), before, "blocked lines must not reach the appliance")

	out, err := sess.SendConfig(ctx, []string{"ssid lobby"})
	require.NoError(t, err)
	assert.Contains(t, out, "ssid lobby")
	assert.False(t, con.app.InConfig())
}

func TestSession_PrivilegeSurfaceIsNoop(t *testing.T) {
	con := &console{app: simappliance.New(simappliance.Options{})}
	cfg := config.DefaultConfig()
	cfg.Appliances = []config.ApplianceConfig{ptyAppliance("ap")}
	mgr := newTestManager(t, cfg, WithManagerConsole(con.start))

	sess, err := mgr.Connect(testContext(t), "ap")
	require.NoError(t, err)
	before := len(con.app.Lines())

	drv := sess.Driver()
	assert.False(t, drv.CheckEnableMode())
	assert.NoError(t, drv.Enable())
	assert.NoError(t, drv.ExitEnableMode())
	assert.Len(t, con.app.Lines(), before)
}

func TestManager_Recording(t *testing.T) {
	con := &console{app: simappliance.New(simappliance.Options{})}
	fsys := fakefs.New()
	cfg := config.DefaultConfig()
	cfg.Recording = config.RecordingConfig{Enabled: true, Path: "/var/rec"}
	cfg.Appliances = []config.ApplianceConfig{ptyAppliance("ap")}
	mgr := newTestManager(t, cfg, WithManagerConsole(con.start), WithManagerFileSystem(fsys))

	sess, err := mgr.Connect(testContext(t), "ap")
	require.NoError(t, err)

	path := sess.Info().Recording
	require.NotEmpty(t, path)
	require.NoError(t, sess.Close())

	data, err := fsys.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version":2`)
	assert.Contains(t, string(data), "no more")
}

func TestManager_SessionIDs(t *testing.T) {
	seq := make([]byte, 32)
	for i := range seq {
		seq[i] = byte(i)
	}
	mgr := newTestManager(t, config.DefaultConfig(), WithManagerEntropy(bytes.NewReader(seq)))

	want := "sess_" + ulid.MustNew(ulid.Timestamp(t0), bytes.NewReader(seq)).String()
	assert.Equal(t, want, mgr.newID())
	assert.NotEqual(t, want, mgr.newID())
}

func TestManager_SetConfig(t *testing.T) {
	mgr := newTestManager(t, config.DefaultConfig())
	next := config.DefaultConfig()
	next.Appliances = []config.ApplianceConfig{ptyAppliance("new")}
	mgr.SetConfig(next)

	_, ok := mgr.Config().Find("new")
	assert.True(t, ok)
}

func TestNewManager_InvalidPatterns(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Security.CommandBlocklist = []string{"("}
	_, err := NewManager(cfg)
	assert.Error(t, err)

	cfg = config.DefaultConfig()
	cfg.PromptDetection.CustomPatterns = []config.PatternConfig{{Name: "bad", Regex: "["}}
	_, err = NewManager(cfg)
	assert.Error(t, err)
}

func TestManager_ConcurrentSSHSessions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping concurrent sessions in short mode")
	}

	server, err := mockssh.New(mockssh.WithAppliance(simappliance.Options{Hostname: "floor-ap"}))
	require.NoError(t, err)
	defer server.Close()

	const n = 8
	cfg := config.DefaultConfig()
	for i := 0; i < n; i++ {
		cfg.Appliances = append(cfg.Appliances, config.ApplianceConfig{
			Name: fmt.Sprintf("floor%d", i),
			Host: server.Host(),
			Port: server.Port(),
			User: "admin",
			Auth: config.AuthConfig{Type: "password", PasswordEnv: "AP_PASSWORD", KnownHosts: "insecure"},
		})
	}
	mgr := newTestManager(t, cfg, WithManagerCredentials(envPassword("admin")))
	ctx := testContext(t)

	ids := make([]string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			sess, err := mgr.Connect(ctx, fmt.Sprintf("floor%d", i))
			if err != nil {
				return err
			}
			ids[i] = sess.ID
			if _, err := sess.EnterConfigMode(ctx); err != nil {
				return err
			}
			_, err = sess.ExitConfigMode(ctx)
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, n, mgr.SessionCount())
	seen := map[string]bool{}
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate session id %s", id)
		seen[id] = true
	}
	for _, app := range server.Appliances() {
		assert.False(t, app.PagingEnabled())
		assert.False(t, app.InConfig())
	}
}
