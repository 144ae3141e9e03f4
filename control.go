package ftpclient

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/gonzalop/ftpclient/internal/metrics"
)

// quitTimeout bounds the best-effort QUIT sent when closing.
const quitTimeout = 5 * time.Second

// controlConn is the control channel of an established session. It
// enforces strict command/reply ordering: a command is only written once
// every earlier reply has been consumed.
type controlConn struct {
	// conn is the underlying network connection, TLS-wrapped once secured
	conn net.Conn

	// reader is a buffered reader for the control channel
	reader *bufio.Reader

	// host is the server host used for passive data connections
	host string

	// dialer opens passive data connections
	dialer Dialer

	logger  *slog.Logger
	metrics *metrics.Metrics

	// tlsConfig is set once the control channel is secured
	tlsConfig *tls.Config

	// protectData is set after PROT P; data connections are then TLS-wrapped
	protectData bool

	// owed counts final replies left unread by aborted transfers
	owed int

	// broken is set after a network or framing failure; the session can
	// no longer be trusted and must be released
	broken bool

	// disableEPSV is set by config or after the server answered EPSV with 502
	disableEPSV bool

	// currentType tracks the transfer type to avoid redundant TYPE commands
	currentType string
}

func newControlConn(conn net.Conn, host string, dialer Dialer, logger *slog.Logger, m *metrics.Metrics) *controlConn {
	return &controlConn{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		host:    host,
		dialer:  dialer,
		logger:  logger,
		metrics: m,
	}
}

// secure swaps the connection for its TLS-wrapped version.
func (cc *controlConn) secure(conn *tls.Conn, cfg *tls.Config) {
	cc.conn = conn
	cc.reader = bufio.NewReader(conn)
	cc.tlsConfig = cfg
}

// command sends an FTP command and returns the reply.
func (cc *controlConn) command(verb string, args ...string) (*Reply, error) {
	if err := cc.drain(); err != nil {
		return nil, err
	}

	line := verb
	if len(args) > 0 {
		line = verb + " " + strings.Join(args, " ")
	}
	if strings.ContainsAny(line, "\r\n") {
		return nil, fmt.Errorf("command contains line break: %q", verb)
	}

	if strings.EqualFold(verb, "PASS") {
		cc.logger.Debug("ftp command", "cmd", "PASS ****")
	} else {
		cc.logger.Debug("ftp command", "cmd", line)
	}

	start := time.Now()
	if _, err := fmt.Fprintf(cc.conn, "%s\r\n", line); err != nil {
		cc.broken = true
		cc.metrics.ObserveCommand(verb, 0, time.Since(start))
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	resp, err := cc.readReply()
	if err != nil {
		cc.metrics.ObserveCommand(verb, 0, time.Since(start))
		return nil, err
	}
	cc.metrics.ObserveCommand(verb, resp.Code, time.Since(start))
	return resp, nil
}

// readReply reads the next reply from the server.
func (cc *controlConn) readReply() (*Reply, error) {
	resp, err := readReply(cc.reader)
	if err != nil {
		cc.broken = true
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	cc.logger.Debug("ftp response", "code", resp.Code, "message", resp.Message)
	return resp, nil
}

// drain consumes replies owed by aborted transfers.
func (cc *controlConn) drain() error {
	for cc.owed > 0 {
		resp, err := cc.readReply()
		if err != nil {
			return fmt.Errorf("failed to read pending reply: %w", err)
		}
		cc.owed--
		cc.logger.Debug("discarded reply of aborted transfer", "code", resp.Code)
	}
	return nil
}

// expectCode sends a command and verifies the reply code is one of codes.
func (cc *controlConn) expectCode(codes []int, verb string, args ...string) (*Reply, error) {
	resp, err := cc.command(verb, args...)
	if err != nil {
		return nil, err
	}
	for _, code := range codes {
		if resp.Code == code {
			return resp, nil
		}
	}
	return resp, replyError(verb, resp)
}

// expect2xx sends a command and verifies the reply is in the 2xx range.
func (cc *controlConn) expect2xx(verb string, args ...string) (*Reply, error) {
	resp, err := cc.command(verb, args...)
	if err != nil {
		return nil, err
	}
	if !resp.Is2xx() {
		return resp, replyError(verb, resp)
	}
	return resp, nil
}

// setType sets the transfer type ("A" or "I") unless it is already active.
func (cc *controlConn) setType(t string) error {
	if cc.currentType == t {
		return nil
	}
	if _, err := cc.expect2xx("TYPE", t); err != nil {
		return fmt.Errorf("failed to set transfer type %s: %w", t, err)
	}
	cc.currentType = t
	return nil
}

// close sends QUIT unless the session is broken, then closes the socket.
// It is safe to call more than once.
func (cc *controlConn) close() error {
	if cc.conn == nil {
		return nil
	}
	if !cc.broken {
		_ = cc.conn.SetDeadline(time.Now().Add(quitTimeout))
		_, _ = cc.command("QUIT")
	}
	err := cc.conn.Close()
	cc.conn = nil
	return err
}
