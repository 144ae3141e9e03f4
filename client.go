package ftpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/gonzalop/ftpclient/internal/metrics"
	"github.com/gonzalop/ftpclient/internal/ratelimit"
)

// State is the lifecycle state of a Client.
type State int

const (
	// StateDisconnected means there is no control connection.
	StateDisconnected State = iota
	// StateConnected means the server greeted us but login is not done.
	StateConnected
	// StateAuthenticated means the session is ready for commands.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "disconnected"
	}
}

// discardLogger is used when neither a logger nor verbose mode is set.
var discardLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))

// Client represents an FTP client.
//
// A Client is not safe for concurrent use. An operation started while
// another one is running on the same Client fails with ErrBusy instead of
// interleaving on the control connection.
type Client struct {
	// busy is held for the duration of every operation
	busy sync.Mutex

	// mu protects the fields below
	mu sync.Mutex

	// cfg is the connection configuration
	cfg Config

	// progress is called after every chunk of a transfer
	progress ProgressFunc

	// session is the live control connection, nil when disconnected
	session *controlConn

	state   State
	lastErr string

	// logger is the caller's logger; nil means Config.Verbose decides
	logger        *slog.Logger
	verboseLogger *slog.Logger

	dialer    Dialer
	fs        afero.Fs
	tlsConfig *tls.Config
	metrics   *metrics.Metrics

	// optErr is the first error returned by an Option
	optErr error
}

// New creates a Client with DefaultConfig. It does not connect.
//
// Example:
//
//	client := ftpclient.New()
//	if err := client.SetHost("ftp.example.com", 21); err != nil {
//	    log.Fatal(err)
//	}
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
func New(opts ...Option) *Client {
	c := &Client{
		cfg:    DefaultConfig(),
		dialer: &net.Dialer{},
		fs:     afero.NewOsFs(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil && c.optErr == nil {
			c.optErr = err
		}
	}
	return c
}

// SetHost sets the server host and port for the next Connect.
func (c *Client) SetHost(host string, port int) error {
	if host == "" {
		return c.invalid("set host", errors.New("host must not be empty"))
	}
	if port < 1 || port > 65535 {
		return c.invalid("set host", errors.New("port out of range"))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Host = host
	c.cfg.Port = port
	return nil
}

// SetCredentials sets the user name and password for the next Connect.
func (c *Client) SetCredentials(username, password string) error {
	if username == "" {
		return c.invalid("set credentials", errors.New("username must not be empty"))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Username = username
	c.cfg.Password = password
	return nil
}

// SetMode selects active or passive data connections.
func (c *Client) SetMode(mode Mode) error {
	if mode != ModePassive && mode != ModeActive {
		return c.invalid("set mode", errors.New("unknown mode"))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Mode = mode
	return nil
}

// SetTLS sets the TLS mode and certificate verification for the next
// Connect.
func (c *Client) SetTLS(mode TLSMode, verifyCert bool) error {
	if mode < TLSNone || mode > TLSFull {
		return c.invalid("set tls", errors.New("unknown TLS mode"))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.TLS = mode
	c.cfg.VerifyCert = verifyCert
	return nil
}

// SetTimeout sets the operation and connect timeouts. Non-positive values
// leave the current setting unchanged.
func (c *Client) SetTimeout(op, connect time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if op > 0 {
		c.cfg.Timeout = op
	}
	if connect > 0 {
		c.cfg.ConnectTimeout = connect
	}
}

// SetVerbose turns protocol logging on or off.
func (c *Client) SetVerbose(verbose bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Verbose = verbose
}

// SetProgress sets the progress callback. nil disables it.
func (c *Client) SetProgress(fn ProgressFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress = fn
}

// ApplyConfig validates cfg and replaces the whole configuration.
func (c *Client) ApplyConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return c.invalid("apply config", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
	return nil
}

// Config returns a copy of the current configuration.
func (c *Client) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// State returns the lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the message of the most recent failure, or "" if the
// most recent operation succeeded.
func (c *Client) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Close sends QUIT and releases the connection. It is safe to call on a
// Client that never connected and to call more than once.
func (c *Client) Close() error {
	c.busy.Lock()
	defer c.busy.Unlock()

	c.mu.Lock()
	cc := c.session
	c.session = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if cc == nil {
		return nil
	}
	cc.logger.Debug("closing ftp session")
	if err := cc.close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return &Error{Op: "close", Kind: KindConnection, Err: err}
	}
	return nil
}

func (c *Client) invalid(op string, err error) error {
	e := &Error{Op: op, Kind: KindInvalidParameter, Err: err}
	c.mu.Lock()
	c.lastErr = e.Error()
	c.mu.Unlock()
	return e
}

// loggerFor picks the logger for an operation.
func (c *Client) loggerFor(cfg Config) *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	if cfg.Verbose {
		if c.verboseLogger == nil {
			c.verboseLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		}
		return c.verboseLogger
	}
	return discardLogger
}

// operation is the per-call state shared by every public operation.
type operation struct {
	name string
	path string

	ctx    context.Context
	cancel context.CancelFunc
	w      *watchdog

	cfg      Config
	progress ProgressFunc
	logger   *slog.Logger
	cc       *controlConn
}

// begin starts an operation. It claims the client, snapshots the
// configuration, and puts the control connection under the operation's
// deadline. If needSession is set and there is no session, begin fails.
func (c *Client) begin(ctx context.Context, name, path string, needSession bool) (*operation, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !c.busy.TryLock() {
		return nil, c.record(&Error{Op: name, Kind: KindInvalidParameter, Path: path, Err: ErrBusy})
	}

	c.mu.Lock()
	op := &operation{
		name:     name,
		path:     path,
		cfg:      c.cfg,
		progress: c.progress,
		cc:       c.session,
	}
	op.logger = c.loggerFor(op.cfg)
	c.mu.Unlock()

	if needSession && op.cc == nil {
		c.busy.Unlock()
		return nil, c.record(&Error{Op: name, Kind: KindConnection, Path: path, Err: ErrNotConnected})
	}

	if op.cfg.Timeout > 0 {
		op.ctx, op.cancel = context.WithTimeout(ctx, op.cfg.Timeout)
	} else {
		op.ctx, op.cancel = context.WithCancel(ctx)
	}
	op.w = newWatchdog(op.ctx)

	if op.cc != nil {
		op.cc.logger = op.logger
		op.w.watch(op.cc.conn)
	}
	return op, nil
}

// finish ends an operation, releasing a broken session and recording the
// outcome. It returns err converted to *Error.
func (c *Client) finish(op *operation, err error, fallback Kind) error {
	op.w.release()
	defer op.cancel()
	defer c.busy.Unlock()

	if op.cc != nil && op.cc.broken {
		op.logger.Debug("releasing broken ftp session")
		_ = op.cc.close()
		c.mu.Lock()
		if c.session == op.cc {
			c.session = nil
			c.state = StateDisconnected
		}
		c.mu.Unlock()
	}

	if err == nil {
		c.mu.Lock()
		c.lastErr = ""
		c.mu.Unlock()
		return nil
	}

	var e *Error
	if !errors.As(err, &e) {
		kind := classify(op.ctx, err, fallback)
		if cerr := op.ctx.Err(); cerr != nil && !errors.Is(err, cerr) {
			err = fmt.Errorf("%w (%w)", err, cerr)
		}
		e = &Error{Op: op.name, Kind: kind, Path: op.path, Err: err}
	}
	return c.record(e)
}

func (c *Client) record(e *Error) *Error {
	c.mu.Lock()
	c.lastErr = e.Error()
	c.mu.Unlock()
	return e
}

// transferOptions snapshots the per-operation transfer settings.
func (op *operation) transferOptions() transferOptions {
	bufSize := op.cfg.BufferSize
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}
	return transferOptions{
		mode:       op.cfg.Mode,
		activeAddr: op.cfg.ActiveAddr,
		bufSize:    bufSize,
		progress:   op.progress,
		limiter:    ratelimit.New(op.cfg.BandwidthLimit),
	}
}
