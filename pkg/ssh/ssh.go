package ssh

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

const (
	DefaultSSHPort    = 22
	DefaultSSHVersion = "SSH-2.0-EntropyStats"
	DefaultTimeout    = 20 * time.Second
)

// SSH is a struct that enables using SSH for remote agent-less entropy scanning.
type SSH struct {
	host       string
	user       string
	ver        string
	port       int
	tout       time.Duration
	auth       []ssh.AuthMethod
	hostKey    ssh.HostKeyCallback
	hostKeyErr error
	client     *ssh.Client
	agentConn  net.Conn
	closed     *atomic.Bool
	verbose    int
	log        zerolog.Logger
	errs       []error
}

func (s *SSH) String() string {
	closed := ""
	if s.closed.Load() {
		closed = " (closed)"
	}

	prefix := ""
	suffix := ""

	if s.client != nil {
		seshID := s.client.SessionID()
		seshIDTrunc := fmt.Sprintf("%x%x", seshID[:4], seshID[len(seshID)-4:])
		prefix = fmt.Sprintf("%s -> ", s.client.LocalAddr())
		suffix = fmt.Sprintf(" (srv: %s) [%s]", s.client.ServerVersion(), seshIDTrunc)
	}

	return fmt.Sprintf("%s%s@%s:%d%s%s",
		prefix, s.user, s.host, s.port, closed, suffix,
	)
}

// NewSSH substantiates a new [SSH] struct and returns a pointer to it.
func NewSSH(host string, user string) *SSH {
	s := &SSH{
		host:   host,
		port:   DefaultSSHPort,
		ver:    DefaultSSHVersion,
		user:   user,
		tout:   DefaultTimeout,
		auth:   make([]ssh.AuthMethod, 0),
		closed: new(atomic.Bool),
		log:    zerolog.Nop(),
	}
	s.closed.Store(false)
	return s
}

// WithVerbose increases the verbosity of SSH operations.
func (s *SSH) WithVerbose(i int) *SSH {
	s.verbose = i
	return s
}

// WithLogger sets the logger used for verbose and trace output.
func (s *SSH) WithLogger(l zerolog.Logger) *SSH {
	s.log = l.With().Str("component", "ssh").Str("host", s.host).Logger()
	return s
}

// WithPort sets the port for the SSH connection.
func (s *SSH) WithPort(port int) *SSH {
	if port > 0 {
		s.port = port
	}
	return s
}

// WithTimeout sets the timeout for the SSH connection.
func (s *SSH) WithTimeout(tout time.Duration) *SSH {
	if tout > 0 {
		s.tout = tout
	}
	return s
}

// WithVersion sets the client version string sent to the server.
func (s *SSH) WithVersion(ver string) *SSH {
	s.ver = ver
	return s
}

func (s *SSH) traceLn(format string, args ...any) {
	if s.verbose < 2 {
		return
	}
	s.log.Trace().Msgf(s.String()+"> "+format, args...)
}

func (s *SSH) verbLn(format string, args ...any) {
	if s.verbose < 1 {
		return
	}
	s.log.Debug().Msgf(s.String()+"> "+format, args...)
}

// Close closes the SSH connection.
func (s *SSH) Close() error {
	s.traceLn("[close] closing SSH connection")
	s.closed.Store(true)
	if s.agentConn != nil {
		_ = s.agentConn.Close()
		s.agentConn = nil
	}
	if s.client == nil {
		s.traceLn("[close] SSH client is nil")
		return nil
	}
	err := s.client.Close()
	if err != nil {
		s.verbLn("[close] error closing SSH connection: %v", err)
	}
	return err
}

// Connect establishes an SSH connection. Errors from building authentication methods
// (unreadable key files, unreachable agents) are reported here.
func (s *SSH) Connect() error {
	if s.client != nil && !s.closed.Load() {
		return nil
	}

	if s.hostKeyErr != nil {
		return s.hostKeyErr
	}

	if len(s.auth) == 0 {
		return fmt.Errorf("%w: %w", ErrNoAuth, joinErrs(s.errs))
	}

	hostKey := s.hostKey
	if hostKey == nil {
		s.log.Warn().Msg("host key verification disabled, use a known_hosts file to enable it")
		hostKey = ssh.InsecureIgnoreHostKey()
	}

	config := &ssh.ClientConfig{
		User:            s.user,
		Auth:            s.auth,
		Timeout:         s.tout,
		HostKeyCallback: hostKey,
		BannerCallback:  ssh.BannerDisplayStderr(),
	}

	if strings.HasPrefix(s.ver, "SSH-2.0-") {
		config.ClientVersion = s.ver
	}

	config.SetDefaults()

	s.verbLn("[connect] connecting...")

	var err error
	if s.client, err = ssh.Dial("tcp", net.JoinHostPort(s.host, strconv.Itoa(s.port)), config); err != nil {
		s.verbLn("[connect] error connecting: %v", err)
		return err
	}

	s.closed.Store(false)

	s.verbLn("[connect] connected!")

	return nil
}

// Closed returns true if the SSH connection is closed.
func (s *SSH) Closed() bool {
	return s.closed.Load() || s.client == nil
}
