package transport

import (
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

var _ Transport = &SSH{}

// SSH is the SshChildProcess transport (§9): it shells out to the local
// `ssh` binary and treats the child's stdin/stdout as the duplex stream.
// Spawning SSH subprocesses is explicitly out of scope for deep design
// per the spec, which assumes "a factory that returns a duplex byte
// stream" — os/exec is the natural, stdlib way to build that factory;
// no SSH client library appears anywhere in the retrieved example pack
// to ground an alternative that speaks the protocol itself.
type SSH struct {
	// Binary is the ssh executable to invoke. Empty means "ssh" from PATH.
	Binary string

	// RemoteCommand, given the remote path half of an addr, returns the
	// command line to run on the far end (typically "syncr serve <path>").
	RemoteCommand func(remotePath string) []string
}

// Addr format for SSH.Dial is "user@host:remotePath" (the "host:path"
// spec syntax from §6, with an optional user@ prefix).
func splitSSHAddr(addr string) (host, path string, err error) {
	idx := strings.Index(addr, ":")
	if idx < 0 {
		return "", "", errors.Errorf("transport: %q is not a host:path SSH address", addr)
	}
	return addr[:idx], addr[idx+1:], nil
}

// Dial runs `ssh <host> <remote command>`, wiring the child's stdin and
// stdout together as a Stream.
func (s *SSH) Dial(ctx context.Context, addr string) (Stream, error) {
	host, path, err := splitSSHAddr(addr)
	if err != nil {
		return nil, err
	}

	remote := s.RemoteCommand
	if remote == nil {
		remote = func(p string) []string { return []string{"syncr", "serve", p} }
	}

	binary := s.Binary
	if binary == "" {
		binary = "ssh"
	}

	args := append([]string{host}, remote(path)...)
	cmd := exec.CommandContext(ctx, binary, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "opening ssh stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "opening ssh stdout")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "starting %s", binary)
	}

	return &pipeStream{
		Reader: stdout,
		Writer: stdin,
		closeFn: func() error {
			stdin.Close()
			return cmd.Wait()
		},
	}, nil
}
