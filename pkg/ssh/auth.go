package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

var (
	// ErrNoAuth is returned by [SSH.Connect] when no usable authentication method was configured.
	ErrNoAuth = errors.New("no usable SSH authentication method")
	// ErrHostKey is returned by [SSH.Connect] when host key verification was requested
	// but the known_hosts files could not be loaded.
	ErrHostKey = errors.New("host key verification unavailable")
)

func joinErrs(errs []error) error {
	if len(errs) == 0 {
		return errors.New("none configured")
	}
	return errors.Join(errs...)
}

func (s *SSH) addErr(err error) *SSH {
	s.errs = append(s.errs, err)
	s.verbLn("[auth] %v", err)
	return s
}

// WithAuth adds authentication methods to the [SSH] struct.
func (s *SSH) WithAuth(auth ...ssh.AuthMethod) *SSH {
	s.auth = append(s.auth, auth...)
	return s
}

// WithPassword adds a password callback to the SSH struct for authentication.
func (s *SSH) WithPassword(password string) *SSH {
	s.auth = append(s.auth, ssh.Password(password))
	return s
}

// WithKey parses data from an SSH key to extract signers for authentication.
func (s *SSH) WithKey(key []byte) *SSH {
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return s.addErr(fmt.Errorf("parse private key: %w", err))
	}
	s.auth = append(s.auth, ssh.PublicKeys(signer))
	return s
}

// WithKeyFile reads an SSH private key to be processed by [SSH.WithKey].
func (s *SSH) WithKeyFile(path string) *SSH {
	dat, err := os.ReadFile(path)
	if err != nil {
		return s.addErr(fmt.Errorf("read key file: %w", err))
	}
	return s.WithKey(dat)
}

// WithEncryptedKeyFile reads a passphrase protected SSH private key.
func (s *SSH) WithEncryptedKeyFile(path string, passphrase string) *SSH {
	dat, err := os.ReadFile(path)
	if err != nil {
		return s.addErr(fmt.Errorf("read key file: %w", err))
	}
	signer, err := ssh.ParsePrivateKeyWithPassphrase(dat, []byte(passphrase))
	if err != nil {
		return s.addErr(fmt.Errorf("parse encrypted private key: %w", err))
	}
	s.auth = append(s.auth, ssh.PublicKeys(signer))
	return s
}

// WithAgent adds all available signers from an SSH agent to the [SSH] struct for authentication. (*nix)
func (s *SSH) WithAgent() *SSH {
	agentURI := os.Getenv("SSH_AUTH_SOCK")
	if agentURI == "" {
		return s.addErr(errors.New("SSH_AUTH_SOCK is not set"))
	}
	conn, err := net.Dial("unix", agentURI)
	if err != nil {
		return s.addErr(fmt.Errorf("dial agent: %w", err))
	}
	sshAgent := agent.NewClient(conn)
	signers, serr := sshAgent.Signers()
	if serr != nil {
		_ = conn.Close()
		return s.addErr(fmt.Errorf("agent signers: %w", serr))
	}

	// the agent performs the signing, so its connection stays open until Close
	s.agentConn = conn
	s.auth = append(s.auth, ssh.PublicKeys(signers...))

	return s
}

// WithKnownHosts verifies the server's host key against one or more known_hosts files.
func (s *SSH) WithKnownHosts(files ...string) *SSH {
	cb, err := knownhosts.New(files...)
	if err != nil {
		s.hostKeyErr = fmt.Errorf("%w: %w", ErrHostKey, err)
		s.verbLn("[auth] %v", s.hostKeyErr)
		return s
	}
	s.hostKey = cb
	s.hostKeyErr = nil
	return s
}

// WithHostKeyCallback sets a custom host key verification callback.
func (s *SSH) WithHostKeyCallback(cb ssh.HostKeyCallback) *SSH {
	s.hostKey = cb
	s.hostKeyErr = nil
	return s
}
