package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/acolita/appliance-shell/internal/adapters/realclock"
	"github.com/acolita/appliance-shell/internal/adapters/realfs"
	"github.com/acolita/appliance-shell/internal/adapters/realsshdialer"
	"github.com/acolita/appliance-shell/internal/channel"
	"github.com/acolita/appliance-shell/internal/config"
	"github.com/acolita/appliance-shell/internal/driver"
	"github.com/acolita/appliance-shell/internal/logging"
	"github.com/acolita/appliance-shell/internal/ports"
	"github.com/acolita/appliance-shell/internal/prompt"
	"github.com/acolita/appliance-shell/internal/recording"
	"github.com/acolita/appliance-shell/internal/security"
)

// Manager creates and tracks appliance sessions.
type Manager struct {
	sessions map[string]*Session
	pending  int
	mu       sync.RWMutex
	config   *config.Config

	clock        ports.Clock
	fs           ports.FileSystem
	dialer       ports.SSHDialer
	startConsole ConsoleStarter
	creds        *security.Resolver
	limiter      *security.AuthRateLimiter
	filter       *security.CommandFilter
	recordings   *recording.Manager
	detector     *prompt.Detector
	logger       *slog.Logger

	idMu    sync.Mutex
	entropy io.Reader
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerClock sets the clock used for settle delays, timestamps and IDs.
func WithManagerClock(c ports.Clock) ManagerOption {
	return func(m *Manager) { m.clock = c }
}

// WithManagerFileSystem sets the filesystem used for keys and recordings.
func WithManagerFileSystem(fs ports.FileSystem) ManagerOption {
	return func(m *Manager) { m.fs = fs }
}

// WithManagerDialer sets the SSH dialer.
func WithManagerDialer(d ports.SSHDialer) ManagerOption {
	return func(m *Manager) { m.dialer = d }
}

// WithManagerConsole sets how pty transports are spawned.
func WithManagerConsole(start ConsoleStarter) ManagerOption {
	return func(m *Manager) { m.startConsole = start }
}

// WithManagerCredentials sets the password resolver.
func WithManagerCredentials(r *security.Resolver) ManagerOption {
	return func(m *Manager) { m.creds = r }
}

// WithManagerLogger sets the logger that also receives driver events.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithManagerEntropy sets the randomness behind session IDs.
func WithManagerEntropy(r io.Reader) ManagerOption {
	return func(m *Manager) { m.entropy = r }
}

// NewManager creates a session manager for the appliances in cfg.
func NewManager(cfg *config.Config, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		sessions:     make(map[string]*Session),
		config:       cfg,
		clock:        realclock.New(),
		fs:           realfs.New(),
		dialer:       realsshdialer.New(),
		startConsole: StartConsole,
		detector:     prompt.NewDetector(),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.entropy == nil {
		m.entropy = ulid.Monotonic(rand.Reader, 0)
	}

	blocklist := cfg.Security.CommandBlocklist
	if blocklist == nil {
		blocklist = security.DefaultBlocklist()
	}
	filter, err := security.NewCommandFilter(blocklist, cfg.Security.CommandAllowlist)
	if err != nil {
		return nil, fmt.Errorf("command filter: %w", err)
	}
	m.filter = filter

	for _, p := range cfg.PromptDetection.CustomPatterns {
		if err := m.detector.AddPatternFromConfig(p.Name, p.Regex, p.Type, p.MaskInput); err != nil {
			return nil, fmt.Errorf("prompt pattern %q: %w", p.Name, err)
		}
	}

	m.limiter = security.NewAuthRateLimiter(cfg.Security.MaxAuthFailures, cfg.Security.AuthLockoutDuration, m.clock)
	m.recordings = recording.NewManager(cfg.Recording.Path, cfg.Recording.Enabled, m.fs, m.clock)
	return m, nil
}

// Connect opens, logs into and prepares the named appliance.
func (m *Manager) Connect(ctx context.Context, name string) (*Session, error) {
	cfg := m.Config()
	a, ok := cfg.Find(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAppliance, name)
	}
	if locked, remaining := m.limiter.IsLocked(a.Host, a.User); locked {
		return nil, fmt.Errorf("%w: %s, retry in %s", ErrLockedOut, a.Name, remaining.Round(time.Second))
	}
	if err := m.reserve(); err != nil {
		return nil, err
	}
	defer m.release()

	sess, err := m.open(ctx, cfg, a)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	m.logger.Info("appliance session ready",
		slog.String("session_id", sess.ID),
		slog.String("appliance", a.Name),
		slog.String("base_prompt", sess.BasePrompt()),
	)
	return sess, nil
}

func (m *Manager) reserve() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit := m.config.Security.MaxSessions
	if limit > 0 && len(m.sessions)+m.pending >= limit {
		return fmt.Errorf("%w (%d)", ErrTooManySessions, limit)
	}
	m.pending++
	return nil
}

func (m *Manager) release() {
	m.mu.Lock()
	m.pending--
	m.mu.Unlock()
}

func (m *Manager) open(ctx context.Context, cfg *config.Config, a config.ApplianceConfig) (*Session, error) {
	sc := cfg.SessionFor(a)
	id := m.newID()

	stream, err := m.openStream(a, sc)
	if err != nil {
		return nil, err
	}

	rec, err := m.recordings.StartRecording(id, a.Name)
	if err != nil {
		m.logger.Warn("recording unavailable", slog.String("appliance", a.Name), slog.String("error", err.Error()))
	}
	chOpts := channel.Options{
		ReadTimeout:       sc.ReadTimeout,
		GlobalDelayFactor: sc.GlobalDelayFactor,
		FastCLI:           *sc.FastCLI,
		AnsiEscapeCodes:   *sc.AnsiEscapeCodes,
		LineEnding:        sc.LineEnding,
		Terminators:       sc.Terminators,
		Clock:             m.clock,
	}
	if rec != nil {
		chOpts.Recorder = rec
	}

	ch, err := channel.New(stream, chOpts)
	if err != nil {
		stream.Close()
		m.recordings.StopRecording(id)
		return nil, err
	}
	fail := func(err error) (*Session, error) {
		ch.Close()
		m.recordings.StopRecording(id)
		return nil, err
	}

	loginCtx, cancel := context.WithTimeout(ctx, sc.LoginTimeout)
	err = m.login(loginCtx, ch, a, sc.Terminators)
	cancel()
	if err != nil {
		return fail(fmt.Errorf("login to %s: %w", a.Name, err))
	}

	drv := driver.New(ch, driver.Options{
		Terminators:       sc.Terminators,
		PagingCommand:     sc.PagingCommand,
		ConfigCommand:     sc.ConfigCommand,
		ExitConfigCommand: sc.ExitConfigCommand,
		ConfigMarker:      sc.ConfigMarker,
		DelayFactor:       driver.DelayFactor(sc.DelayFactor),
		Clock:             m.clock,
		Events:            logging.EventLogger(m.logger, a.Name),
	})
	if _, err := drv.PrepareSession(ctx); err != nil {
		return fail(fmt.Errorf("prepare %s: %w", a.Name, err))
	}

	now := m.clock.Now()
	sess := &Session{
		ID:        id,
		Appliance: a,
		CreatedAt: now,
		driver:    drv,
		ch:        ch,
		filter:    m.filter,
		clock:     m.clock,
		marker:    sc.ConfigMarker,
		lastUsed:  now,
		onClose: func() {
			m.recordings.StopRecording(id)
		},
	}
	if rec != nil {
		sess.recording = rec.Path()
	}
	return sess, nil
}

// newID returns a sortable session ID.
func (m *Manager) newID() string {
	m.idMu.Lock()
	defer m.idMu.Unlock()
	return "sess_" + ulid.MustNew(ulid.Timestamp(m.clock.Now()), m.entropy).String()
}

// Get retrieves a session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// Close closes and removes a session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess.Close()
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for id, sess := range sessions {
		if err := sess.Close(); err != nil {
			m.logger.Warn("close session", slog.String("session_id", id), slog.String("error", err.Error()))
		}
	}
	m.recordings.CloseAll()
}

// List returns a snapshot of every session, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	infos := make([]Info, 0, len(m.sessions))
	for _, sess := range m.sessions {
		infos = append(infos, sess.Info())
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// SessionCount returns the number of active sessions.
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Config returns the inventory the manager connects from.
func (m *Manager) Config() *config.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig swaps the inventory, e.g. after a hot reload. Live sessions keep
// the settings they were opened with.
func (m *Manager) SetConfig(cfg *config.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = cfg
}
