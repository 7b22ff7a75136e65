package ssh

import (
	"context"
	"io"

	"golang.org/x/crypto/ssh"
)

// NewSession opens a fresh session. A session runs exactly one command, so every
// remote operation gets its own.
func (s *SSH) NewSession() (*ssh.Session, error) {
	s.traceLn("[session] getting session...")
	if s.Closed() {
		s.traceLn("[session] parent is closed")
		return nil, io.ErrClosedPipe
	}
	sesh, err := s.client.NewSession()
	if err != nil {
		s.verbLn("[session] error creating session: %v", err)
		return nil, err
	}
	s.traceLn("[session] session created")
	return sesh, nil
}

// output runs cmd and returns its stdout. The session is torn down if ctx is cancelled.
func (s *SSH) output(ctx context.Context, cmd string) ([]byte, error) {
	sesh, err := s.NewSession()
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = sesh.Close()
	}()

	stop := context.AfterFunc(ctx, func() {
		_ = sesh.Close()
	})
	defer stop()

	s.traceLn("[exec] %s", cmd)

	out, err := sesh.Output(cmd)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, ctxErr
	}

	return out, err
}
