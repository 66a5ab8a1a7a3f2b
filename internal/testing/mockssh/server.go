// Package mockssh provides an in-process SSH server whose shell is a
// simulated appliance, for exercising the SSH transport end to end.
package mockssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/acolita/appliance-shell/internal/testing/simappliance"
)

// Server is a mock SSH server for testing.
type Server struct {
	listener net.Listener
	config   *ssh.ServerConfig
	addr     string
	users    map[string]string // username -> password
	appOpts  simappliance.Options
	inBand   *credentials
	mu       sync.RWMutex
	done     chan struct{}
	wg       sync.WaitGroup

	appsMu     sync.Mutex
	appliances []*simappliance.Appliance
	channels   []ssh.Channel
	ptyTerms   []string
}

type credentials struct {
	user     string
	password string
}

// Option configures the mock SSH server.
type Option func(*Server)

// WithUser adds a user/password pair for SSH authentication.
func WithUser(username, password string) Option {
	return func(s *Server) {
		s.users[username] = password
	}
}

// WithAppliance sets the options of the appliance behind every shell.
func WithAppliance(opts simappliance.Options) Option {
	return func(s *Server) {
		s.appOpts = opts
	}
}

// WithInBandLogin makes the shell ask for a username and password before
// the banner, like appliances that authenticate on the console.
func WithInBandLogin(user, password string) Option {
	return func(s *Server) {
		s.inBand = &credentials{user: user, password: password}
	}
}

// New creates and starts a mock SSH server on a random local port.
func New(opts ...Option) (*Server, error) {
	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate host key: %w", err)
	}
	signer, err := ssh.NewSignerFromKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}

	s := &Server{
		users: map[string]string{
			"admin": "admin",
		},
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			s.mu.RLock()
			expected, ok := s.users[c.User()]
			s.mu.RUnlock()

			if ok && string(password) == expected {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
	}
	config.AddHostKey(signer)
	s.config = config

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.addr = listener.Addr().String()

	s.wg.Add(1)
	go s.acceptLoop()

	slog.Debug("mock SSH server started", slog.String("addr", s.addr))
	return s, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	return s.addr
}

// Host returns the host part of the address.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.addr)
	return host
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Appliances returns the simulated appliance of every shell opened so far.
func (s *Server) Appliances() []*simappliance.Appliance {
	s.appsMu.Lock()
	defer s.appsMu.Unlock()
	return append([]*simappliance.Appliance(nil), s.appliances...)
}

// PTYTerms returns the terminal type of every PTY request received.
func (s *Server) PTYTerms() []string {
	s.appsMu.Lock()
	defer s.appsMu.Unlock()
	return append([]string(nil), s.ptyTerms...)
}

// Close shuts down the server and every open shell.
func (s *Server) Close() error {
	close(s.done)
	err := s.listener.Close()

	s.appsMu.Lock()
	for _, ch := range s.channels {
		ch.Close()
	}
	s.channels = nil
	s.appsMu.Unlock()

	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				slog.Debug("accept error", slog.String("error", err.Error()))
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(netConn net.Conn) {
	defer s.wg.Done()
	defer netConn.Close()

	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, s.config)
	if err != nil {
		slog.Debug("SSH handshake failed", slog.String("error", err.Error()))
		return
	}
	defer sshConn.Close()

	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}

		channel, requests, err := newChannel.Accept()
		if err != nil {
			slog.Debug("channel accept failed", slog.String("error", err.Error()))
			continue
		}

		s.appsMu.Lock()
		s.channels = append(s.channels, channel)
		s.appsMu.Unlock()

		s.wg.Add(1)
		go s.handleChannel(channel, requests)
	}
}

func (s *Server) handleChannel(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer s.wg.Done()
	defer channel.Close()

	hasPTY := false
	for req := range requests {
		switch req.Type {
		case "pty-req":
			hasPTY = true
			s.appsMu.Lock()
			s.ptyTerms = append(s.ptyTerms, parsePtyTerm(req.Payload))
			s.appsMu.Unlock()
			if req.WantReply {
				req.Reply(true, nil)
			}

		case "shell":
			if req.WantReply {
				req.Reply(hasPTY, nil)
			}
			if hasPTY {
				s.wg.Add(1)
				go s.serveShell(channel)
			}

		case "window-change", "env":
			if req.WantReply {
				req.Reply(true, nil)
			}

		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

// serveShell runs one simulated appliance over the channel until the client
// hangs up.
func (s *Server) serveShell(channel ssh.Channel) {
	defer s.wg.Done()

	app := simappliance.New(s.appOpts)
	s.appsMu.Lock()
	s.appliances = append(s.appliances, app)
	s.appsMu.Unlock()

	lines := make(chan string)
	go readLines(channel, lines)

	if s.inBand != nil {
		if !s.login(channel, lines) {
			channel.Close()
			return
		}
	}

	if _, err := channel.Write([]byte(app.Banner())); err != nil {
		return
	}
	for line := range lines {
		if _, err := channel.Write([]byte(app.Handle(line))); err != nil {
			return
		}
	}
}

func (s *Server) login(channel ssh.Channel, lines <-chan string) bool {
	for attempt := 0; attempt < 3; attempt++ {
		channel.Write([]byte("\r\nUsername: "))
		user, ok := <-lines
		if !ok {
			return false
		}
		channel.Write([]byte(user + "\r\nPassword: "))
		pw, ok := <-lines
		if !ok {
			return false
		}
		if user == s.inBand.user && pw == s.inBand.password {
			return true
		}
		channel.Write([]byte("\r\n% Login incorrect\r\n"))
	}
	return false
}

// readLines splits channel input on CR or LF, treating CRLF as one break.
func readLines(channel ssh.Channel, out chan<- string) {
	defer close(out)

	var line strings.Builder
	buf := make([]byte, 1024)
	lastCR := false
	for {
		n, err := channel.Read(buf)
		for _, b := range buf[:n] {
			switch {
			case b == '\n' && lastCR:
				lastCR = false
			case b == '\r' || b == '\n':
				out <- line.String()
				line.Reset()
				lastCR = b == '\r'
			default:
				line.WriteByte(b)
				lastCR = false
			}
		}
		if err != nil {
			return
		}
	}
}

func parsePtyTerm(payload []byte) string {
	if len(payload) < 4 {
		return ""
	}
	termLen := int(payload[0])<<24 | int(payload[1])<<16 | int(payload[2])<<8 | int(payload[3])
	if len(payload) < 4+termLen {
		return ""
	}
	return string(payload[4 : 4+termLen])
}
