package ftpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
)

// Connect opens the control connection, secures it according to the TLS
// mode, and logs in. An existing session is closed first.
//
// Init must have been called, otherwise Connect fails with
// KindInitialization.
func (c *Client) Connect(ctx context.Context) error {
	op, err := c.begin(ctx, "connect", "", false)
	if err != nil {
		return err
	}

	c.mu.Lock()
	old := c.session
	c.session = nil
	c.state = StateDisconnected
	optErr := c.optErr
	c.mu.Unlock()
	if old != nil {
		_ = old.close()
	}

	cc, err := c.connect(op, optErr)
	if err == nil {
		c.mu.Lock()
		c.session = cc
		c.state = StateAuthenticated
		c.mu.Unlock()
	}
	return c.finish(op, err, KindConnection)
}

func (c *Client) connect(op *operation, optErr error) (*controlConn, error) {
	if optErr != nil {
		return nil, withKind(KindInvalidParameter, optErr)
	}
	if err := op.cfg.Validate(); err != nil {
		return nil, withKind(KindInvalidParameter, err)
	}
	cache, ok := sharedSessionCache()
	if !ok {
		return nil, withKind(KindInitialization, ErrNotInitialized)
	}

	cfg := op.cfg
	cc, err := c.establish(op, cache)
	if err != nil {
		return nil, err
	}
	c.setState(StateConnected)

	op.w.watch(cc.conn)
	if err := login(cc, cfg.Username, cfg.Password); err != nil {
		_ = cc.close()
		c.setState(StateDisconnected)
		return nil, err
	}

	if cc.tlsConfig != nil {
		if err := protectData(cc, cfg.TLS); err != nil {
			_ = cc.close()
			c.setState(StateDisconnected)
			return nil, err
		}
	}

	cc.disableEPSV = cfg.DisableEPSV
	cc.logger.Debug("ftp session ready", "host", cfg.Host, "tls", cc.tlsConfig != nil, "protected_data", cc.protectData)
	return cc, nil
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// establish runs the connect stage (dial, greeting, TLS negotiation) under
// ConnectTimeout.
func (c *Client) establish(op *operation, cache tls.ClientSessionCache) (*controlConn, error) {
	cfg := op.cfg
	ctx := op.ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	w := newWatchdog(ctx)
	defer w.release()

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	op.logger.Debug("connecting to ftp server", "addr", addr, "tls_mode", cfg.TLS, "implicit", cfg.ImplicitTLS)

	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, classifyConnect(ctx, fmt.Errorf("failed to connect: %w", err))
	}
	w.watch(conn)

	cc := newControlConn(conn, cfg.Host, c.dialer, op.logger, c.metrics)
	tlsConfig := c.buildTLSConfig(cfg, cache)

	if cfg.ImplicitTLS {
		cc.logger.Debug("starting TLS handshake", "mode", "implicit")
		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, classifyConnect(ctx, fmt.Errorf("TLS handshake failed: %w", err))
		}
		cc.secure(tlsConn, tlsConfig)
	}

	if err := readGreeting(cc); err != nil {
		conn.Close()
		return nil, classifyConnect(ctx, err)
	}

	if cfg.TLS != TLSNone && !cfg.ImplicitTLS {
		if err := upgradeToTLS(ctx, cc, tlsConfig, cfg.TLS); err != nil {
			conn.Close()
			return nil, classifyConnect(ctx, err)
		}
	}

	return cc, nil
}

// classifyConnect tags a connect-stage failure with KindConnection unless
// it is a timeout or a protocol violation.
func classifyConnect(ctx context.Context, err error) error {
	switch classify(ctx, err, 0) {
	case KindTimeout, KindProtocol, KindConnection:
		return err
	}
	return withKind(KindConnection, err)
}

// buildTLSConfig derives the session's TLS configuration from the base
// configuration set with WithTLSConfig.
func (c *Client) buildTLSConfig(cfg Config, cache tls.ClientSessionCache) *tls.Config {
	var tc *tls.Config
	if c.tlsConfig != nil {
		tc = c.tlsConfig.Clone()
	} else {
		tc = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if tc.ServerName == "" {
		tc.ServerName = cfg.Host
	}
	if !cfg.VerifyCert {
		tc.InsecureSkipVerify = true
	}
	if tc.ClientSessionCache == nil {
		tc.ClientSessionCache = cache
	}
	return tc
}

// readGreeting reads the server greeting. A 120 reply ("service ready in
// nnn minutes") is followed by the real 220.
func readGreeting(cc *controlConn) error {
	resp, err := cc.readReply()
	if err != nil {
		return fmt.Errorf("failed to read greeting: %w", err)
	}
	if resp.Code == 120 {
		cc.logger.Debug("server not ready yet", "message", resp.Message)
		if resp, err = cc.readReply(); err != nil {
			return fmt.Errorf("failed to read greeting: %w", err)
		}
	}
	if resp.Code != 220 {
		return withKind(KindConnection, replyError("CONNECT", resp))
	}
	return nil
}

// upgradeToTLS secures the control connection with AUTH TLS, falling back
// to AUTH SSL. A refusal is fatal unless mode is TLSOpportunistic.
func upgradeToTLS(ctx context.Context, cc *controlConn, tlsConfig *tls.Config, mode TLSMode) error {
	var refusal error
	accepted := false
	for _, mech := range []string{"TLS", "SSL"} {
		resp, err := cc.command("AUTH", mech)
		if err != nil {
			return fmt.Errorf("AUTH %s failed: %w", mech, err)
		}
		if resp.Code == 234 || resp.Code == 334 {
			accepted = true
			break
		}
		refusal = replyError("AUTH "+mech, resp)
	}

	if !accepted {
		if mode == TLSOpportunistic {
			cc.logger.Debug("server refused TLS, continuing in clear", "error", refusal)
			return nil
		}
		return withKind(KindConnection, refusal)
	}

	cc.logger.Debug("starting TLS handshake", "mode", "explicit")
	tlsConn := tls.Client(cc.conn, tlsConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return fmt.Errorf("TLS handshake failed: %w", err)
	}
	cc.logger.Debug("TLS handshake complete", "mode", "explicit", "version", tls.VersionName(tlsConn.ConnectionState().Version))
	cc.secure(tlsConn, tlsConfig)
	return nil
}

// login authenticates with USER and, when asked for, PASS.
func login(cc *controlConn, username, password string) error {
	resp, err := cc.command("USER", username)
	if err != nil {
		return err
	}

	// 230: logged in without a password
	if resp.Code == 230 {
		return nil
	}
	if resp.Code != 331 {
		return withKind(KindAuthentication, replyError("USER", resp))
	}

	resp, err = cc.command("PASS", password)
	if err != nil {
		return err
	}
	if resp.Code != 230 && resp.Code != 202 {
		return withKind(KindAuthentication, replyError("PASS", resp))
	}
	return nil
}

// protectData sends PBSZ 0 and selects the data channel protection level.
func protectData(cc *controlConn, mode TLSMode) error {
	if _, err := cc.expect2xx("PBSZ", "0"); err != nil {
		return withKind(KindConnection, fmt.Errorf("PBSZ failed: %w", err))
	}

	if mode == TLSControl {
		if _, err := cc.expect2xx("PROT", "C"); err != nil {
			var pe *ProtocolError
			if !errors.As(err, &pe) {
				return err
			}
			cc.logger.Debug("PROT C refused, data stays in clear", "code", pe.Code)
		}
		return nil
	}

	if _, err := cc.expect2xx("PROT", "P"); err != nil {
		var pe *ProtocolError
		if mode == TLSOpportunistic && errors.As(err, &pe) {
			cc.logger.Debug("PROT P refused, data stays in clear", "code", pe.Code)
			return nil
		}
		return withKind(KindConnection, fmt.Errorf("PROT failed: %w", err))
	}
	cc.protectData = true
	return nil
}
