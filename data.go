package ftpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"regexp"
	"strconv"
)

var (
	// pasvTuple finds h1,h2,h3,h4,p1,p2 anywhere in a 227 reply; some
	// servers leave out the parentheses.
	pasvTuple = regexp.MustCompile(`(\d+),(\d+),(\d+),(\d+),(\d+),(\d+)`)

	// epsvTuple matches (<d><d><d>port<d>) where all four <d> are the same
	// printable delimiter, normally '|'.
	epsvTuple = regexp.MustCompile(`\(([!-~])([!-~])([!-~])(\d+)([!-~])\)`)
)

// parsePASV extracts the data address from a 227 reply text such as
// "Entering Passive Mode (192,168,1,1,195,149)", giving "192.168.1.1:50069".
func parsePASV(msg string) (string, error) {
	m := pasvTuple.FindStringSubmatch(msg)
	if m == nil {
		return "", fmt.Errorf("%w: no address in PASV reply %q", ErrMalformedReply, msg)
	}

	var b [6]byte
	for i, field := range m[1:] {
		n, err := strconv.ParseUint(field, 10, 8)
		if err != nil {
			return "", fmt.Errorf("%w: PASV field %q out of range", ErrMalformedReply, field)
		}
		b[i] = byte(n)
	}

	port := uint16(b[4])<<8 | uint16(b[5])
	if port == 0 {
		return "", fmt.Errorf("%w: PASV port is zero", ErrMalformedReply)
	}
	return netip.AddrPortFrom(netip.AddrFrom4([4]byte(b[:4])), port).String(), nil
}

// parseEPSV extracts the port from a 229 reply text such as
// "Entering Extended Passive Mode (|||6446|)".
func parseEPSV(msg string) (string, error) {
	m := epsvTuple.FindStringSubmatch(msg)
	if m == nil || m[1] != m[2] || m[2] != m[3] || m[3] != m[5] {
		return "", fmt.Errorf("%w: no port in EPSV reply %q", ErrMalformedReply, msg)
	}

	port, err := strconv.Atoi(m[4])
	if err != nil || port < 1 || port > 65535 {
		return "", fmt.Errorf("%w: EPSV port %q out of range", ErrMalformedReply, m[4])
	}
	return strconv.Itoa(port), nil
}

// formatPORT renders an IPv4 host:port as the PORT argument, e.g.
// "192.168.1.100:50000" becomes "192,168,1,100,195,80".
func formatPORT(addr string) (string, error) {
	ap, err := netip.ParseAddrPort(addr)
	if err != nil {
		return "", err
	}
	ip := ap.Addr().Unmap()
	if !ip.Is4() {
		return "", fmt.Errorf("PORT needs an IPv4 address, got %s", ip)
	}
	if ap.Port() == 0 {
		return "", fmt.Errorf("PORT needs a non-zero port")
	}

	b, p := ip.As4(), ap.Port()
	return fmt.Sprintf("%d,%d,%d,%d,%d,%d", b[0], b[1], b[2], b[3], p>>8, p&0xff), nil
}

// formatEPRT renders host:port as the EPRT argument |proto|addr|port|,
// with proto 1 for IPv4 and 2 for IPv6.
func formatEPRT(addr string) (string, error) {
	ap, err := netip.ParseAddrPort(addr)
	if err != nil {
		return "", err
	}
	ip := ap.Addr().Unmap().WithZone("")
	proto := 2
	if ip.Is4() {
		proto = 1
	}
	return fmt.Sprintf("|%d|%s|%d|", proto, ip, ap.Port()), nil
}

// resolveDataAddr swaps an unspecified PASV address (0.0.0.0) for the
// control connection's host.
func resolveDataAddr(addr, controlHost string) string {
	ap, err := netip.ParseAddrPort(addr)
	if err != nil || !ap.Addr().IsUnspecified() {
		return addr
	}
	return net.JoinHostPort(controlHost, strconv.Itoa(int(ap.Port())))
}

// dataChannel is the data connection of a single transfer. It is never
// reused.
type dataChannel struct {
	// conn is nil in active mode until the server has connected
	conn net.Conn

	// listener is set in active mode
	listener net.Listener

	// tlsConfig is set when the channel must be protected (PROT P)
	tlsConfig *tls.Config

	w *watchdog
}

// openDataChannel negotiates a data connection. In passive mode the
// connection is dialled right away; in active mode a listener is set up
// and announced. Either way the transfer command has not been sent yet.
func (cc *controlConn) openDataChannel(ctx context.Context, w *watchdog, mode Mode, activeAddr string) (*dataChannel, error) {
	dc := &dataChannel{w: w}
	if cc.protectData {
		dc.tlsConfig = cc.tlsConfig
	}

	if mode == ModeActive {
		l, err := cc.announceListener(ctx, activeAddr)
		if err != nil {
			return nil, err
		}
		dc.listener = l
		return dc, nil
	}

	addr, err := cc.passiveAddr()
	if err != nil {
		return nil, err
	}

	cc.logger.Debug("opening passive data connection", "addr", addr)
	conn, err := cc.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to open data connection to %s: %w", addr, err)
	}
	w.watch(conn)
	dc.conn = conn
	return dc, nil
}

// passiveAddr asks the server for a passive data address, trying EPSV
// before PASV.
func (cc *controlConn) passiveAddr() (string, error) {
	if !cc.disableEPSV {
		resp, err := cc.command("EPSV")
		if err != nil {
			return "", fmt.Errorf("EPSV failed: %w", err)
		}
		if resp.Is2xx() {
			port, err := parseEPSV(resp.Message)
			if err != nil {
				return "", err
			}
			return net.JoinHostPort(cc.host, port), nil
		}
		if resp.Code == 502 {
			cc.disableEPSV = true
		}
		cc.logger.Debug("EPSV refused, falling back to PASV", "code", resp.Code)
	}

	resp, err := cc.command("PASV")
	if err != nil {
		return "", fmt.Errorf("PASV failed: %w", err)
	}
	if !resp.Is2xx() {
		return "", replyError("PASV", resp)
	}

	addr, err := parsePASV(resp.Message)
	if err != nil {
		return "", err
	}
	return resolveDataAddr(addr, cc.host), nil
}

// announceListener listens for the server's data connection and sends
// PORT (IPv4) or EPRT (IPv6).
func (cc *controlConn) announceListener(ctx context.Context, bindAddr string) (net.Listener, error) {
	if bindAddr == "" {
		host, _, err := net.SplitHostPort(cc.conn.LocalAddr().String())
		if err != nil {
			return nil, fmt.Errorf("failed to determine local address: %w", err)
		}
		bindAddr = net.JoinHostPort(host, "0")
	}

	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", bindAddr, err)
	}

	addr := l.Addr().String()

	verb, formatter := "PORT", formatPORT
	if ap, err := netip.ParseAddrPort(addr); err == nil && !ap.Addr().Unmap().Is4() {
		verb, formatter = "EPRT", formatEPRT
	}

	arg, err := formatter(addr)
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to format %s command: %w", verb, err)
	}

	resp, err := cc.command(verb, arg)
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("%s failed: %w", verb, err)
	}
	if !resp.Is2xx() {
		l.Close()
		return nil, replyError(verb, resp)
	}

	cc.logger.Debug("listening for active data connection", "addr", addr)
	return l, nil
}

// establish completes the data connection after the server accepted the
// transfer command: it accepts the inbound connection in active mode and
// runs the TLS handshake when the channel is protected.
func (dc *dataChannel) establish(ctx context.Context) error {
	if dc.conn == nil {
		if dl, ok := dc.listener.(deadliner); ok {
			dc.w.watch(dl)
		}
		conn, err := dc.listener.Accept()
		if err != nil {
			return fmt.Errorf("failed to accept data connection: %w", err)
		}
		_ = dc.listener.Close()
		dc.listener = nil
		dc.w.watch(conn)
		dc.conn = conn
	}

	if dc.tlsConfig != nil {
		tlsConn := tls.Client(dc.conn, dc.tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return fmt.Errorf("data connection TLS handshake failed: %w", err)
		}
		dc.conn = tlsConn
	}
	return nil
}

// Close closes the connection and the listener. It is safe to call more
// than once.
func (dc *dataChannel) Close() error {
	var errs []error
	if dc.conn != nil {
		errs = append(errs, dc.conn.Close())
		dc.conn = nil
	}
	if dc.listener != nil {
		errs = append(errs, dc.listener.Close())
		dc.listener = nil
	}
	return errors.Join(errs...)
}
