// Package transport implements the dispatcher that turns a
// location string into a duplex byte channel to a peer process, via a
// local fork/exec, a remote shell, or a raw TCP connection.
package transport

import (
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/nicolagi/gitcore/internal/pktline"
)

// DefaultPort is the TCP port used by the "tcp"/"git" scheme when the
// location does not name one.
const DefaultPort = 9418

// DefaultShellRunner is the program used to reach a remote-shell peer
// when the caller does not override it with WithShellRunner, the same
// default GIT_SSH falls back to in connect.c's git_connect.
const DefaultShellRunner = "ssh"

// ObjectDirEnv is the environment variable a local or remote-shell
// peer reads to override its default object directory, propagated to
// the spawned process when a Dialer carries one.
const ObjectDirEnv = "GITCORE_OBJECT_DIRECTORY"

// Conn is a duplex byte channel to a peer, plus a way to learn how the
// peer side terminated. All three schemes Dial supports produce one of
// these.
type Conn struct {
	io.Reader
	io.Writer
	closer io.Closer
	wait   func() error
}

// Close releases the underlying transport: the pipes of a local or
// remote-shell peer, or the socket of a tcp connection.
func (c *Conn) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// Wait blocks until the peer side has terminated. For a direct tcp
// connection (no proxy), which spawns no child process, it always
// returns nil immediately.
func (c *Conn) Wait() error {
	if c.wait == nil {
		return nil
	}
	return c.wait()
}

// Option configures a Dialer.
type Option func(*Dialer)

// WithShellRunner overrides the remote-shell program (default "ssh").
func WithShellRunner(prog string) Option {
	return func(d *Dialer) { d.shellRunner = prog }
}

// WithProxy names a filter program that the tcp scheme spawns with
// "host port" as arguments instead of dialing the socket directly,
// inheriting the connected pipes.
func WithProxy(prog string) Option {
	return func(d *Dialer) { d.proxy = prog }
}

// WithObjectDir propagates dir to a local or remote-shell peer via
// ObjectDirEnv, letting it serve out of a non-default object
// directory without a path argument naming one.
func WithObjectDir(dir string) Option {
	return func(d *Dialer) { d.objectDir = dir }
}

// Dialer establishes connections to a peer program given a location
// string.
type Dialer struct {
	shellRunner string
	proxy       string
	objectDir   string
}

// New returns a Dialer with ssh as its default remote-shell runner and
// no proxy, as overridden by opts.
func New(opts ...Option) *Dialer {
	d := &Dialer{shellRunner: DefaultShellRunner}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var schemeRE = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9+.-]*)://([^/]+)(/.*)$`)
var hostPathRE = regexp.MustCompile(`^([^/:]+):(.+)$`)

// Dial parses location and establishes a duplex channel running prog
// at the resolved path on the peer: a local fork/exec for a bare path,
// a remote shell for "host:path" or an ssh-family scheme, or a raw TCP
// connection for "tcp://" / "git://".
func (d *Dialer) Dial(location, prog string) (*Conn, error) {
	if m := schemeRE.FindStringSubmatch(location); m != nil {
		scheme, host, path := m[1], m[2], m[3]
		switch strings.ToLower(scheme) {
		case "tcp", "git":
			return d.dialTCP(host, path, prog)
		case "ssh", "git+ssh", "ssh+git":
			return d.dialShell(host, path, prog)
		default:
			return nil, fmt.Errorf("transport: unsupported scheme %q", scheme)
		}
	}
	if m := hostPathRE.FindStringSubmatch(location); m != nil {
		return d.dialShell(m[1], m[2], prog)
	}
	return d.dialLocal(location, prog)
}

// dialLocal forks/execs prog with path as its only argument,
// communicating over two pipes.
func (d *Dialer) dialLocal(path, prog string) (*Conn, error) {
	cmd := exec.Command(prog, path)
	d.propagateObjectDir(cmd)
	return startPiped(cmd)
}

// dialShell forks/execs the shell runner with host and a single
// argument combining prog and the shell-quoted path, the shape
// connect.c's git_connect uses for the PROTO_SSH case.
func (d *Dialer) dialShell(host, path, prog string) (*Conn, error) {
	arg := prog + " " + Quote(path)
	cmd := exec.Command(d.shellRunner, host, arg)
	d.propagateObjectDir(cmd)
	return startPiped(cmd)
}

// propagateObjectDir sets cmd's environment to the current process's
// plus ObjectDirEnv, when the dialer was configured with one. Remote
// shell peers only receive this when the shell itself forwards the
// environment; local peers always do, since they inherit it directly.
func (d *Dialer) propagateObjectDir(cmd *exec.Cmd) {
	if d.objectDir == "" {
		return
	}
	cmd.Env = append(os.Environ(), ObjectDirEnv+"="+d.objectDir)
}

func startPiped(cmd *exec.Cmd) (*Conn, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &Conn{
		Reader: stdout,
		Writer: stdin,
		closer: pipePair{stdin, stdout},
		wait:   cmd.Wait,
	}, nil
}

type pipePair struct {
	in  io.Closer
	out io.Closer
}

func (p pipePair) Close() error {
	err := p.in.Close()
	if outErr := p.out.Close(); err == nil {
		err = outErr
	}
	return err
}

// dialTCP opens a stream socket to host:port (default 9418) and
// writes one framed greeting "<prog> <path>\n", or, when a proxy is
// configured, spawns it with "host port" as arguments and speaks the
// same greeting over its pipes instead of dialing directly.
func (d *Dialer) dialTCP(host, path, prog string) (*Conn, error) {
	hostPart, port := splitHostPort(host)
	if port == "" {
		port = strconv.Itoa(DefaultPort)
	}
	if d.proxy != "" {
		cmd := exec.Command(d.proxy, hostPart, port)
		conn, err := startPiped(cmd)
		if err != nil {
			return nil, err
		}
		if err := pktline.Writef(conn, "%s %s\n", prog, path); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	}
	c, err := net.Dial("tcp", net.JoinHostPort(hostPart, port))
	if err != nil {
		return nil, err
	}
	if err := pktline.Writef(c, "%s %s\n", prog, path); err != nil {
		c.Close()
		return nil, err
	}
	return &Conn{Reader: c, Writer: c, closer: c}, nil
}

// splitHostPort separates an optional trailing ":port", tolerating a
// bracketed IPv6 literal the way connect.c's git_tcp_connect does.
func splitHostPort(host string) (hostPart, port string) {
	if strings.HasPrefix(host, "[") {
		if end := strings.Index(host, "]"); end >= 0 {
			hostPart = host[1:end]
			rest := host[end+1:]
			if strings.HasPrefix(rest, ":") {
				port = rest[1:]
			}
			return hostPart, port
		}
	}
	if idx := strings.LastIndexByte(host, ':'); idx >= 0 {
		return host[:idx], host[idx+1:]
	}
	return host, ""
}

// Quote wraps s in single quotes for safe inclusion in a remote shell
// command line, escaping embedded single quotes and exclamation
// points, the way quote.c's sq_quote does:
//
//	name  -> 'name'
//	a'b   -> 'a'\''b'
//	a!b   -> 'a'\!'b'
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\'' || c == '!' {
			b.WriteString(`'\`)
			b.WriteByte(c)
			b.WriteByte('\'')
			continue
		}
		b.WriteByte(c)
	}
	b.WriteByte('\'')
	return b.String()
}
