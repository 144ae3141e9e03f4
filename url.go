package ftpclient

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// BuildURL returns the ftp:// URL of path on host:port. A missing leading
// slash is added, so "a/b.txt" and "/a/b.txt" yield the same URL.
//
//	BuildURL("ftp.example.com", 21, "a/b.txt") == "ftp://ftp.example.com:21/a/b.txt"
func BuildURL(host string, port int, path string) string {
	return fmt.Sprintf("ftp://%s%s", net.JoinHostPort(host, strconv.Itoa(port)), absPath(path))
}

// ParseURL parses ftp://, ftps:// (implicit TLS) and ftp+explicit://
// (AUTH TLS) URLs of the form scheme://[user[:password]@]host[:port][/path].
// It returns a configuration derived from DefaultConfig and the path part.
func ParseURL(raw string) (Config, string, error) {
	cfg := DefaultConfig()

	u, err := url.Parse(raw)
	if err != nil {
		return cfg, "", fmt.Errorf("invalid URL: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "ftp":
	case "ftps":
		cfg.Port = 990
		cfg.TLS = TLSFull
		cfg.ImplicitTLS = true
	case "ftp+explicit", "ftpes":
		cfg.TLS = TLSFull
	default:
		return cfg, "", fmt.Errorf("unsupported scheme: %q", u.Scheme)
	}

	cfg.Host = u.Hostname()
	if cfg.Host == "" {
		return cfg, "", fmt.Errorf("missing host in %q", raw)
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return cfg, "", fmt.Errorf("invalid port %q", p)
		}
		cfg.Port = port
	}

	if u.User != nil {
		if name := u.User.Username(); name != "" {
			cfg.Username = name
			cfg.Password, _ = u.User.Password()
		}
	}

	return cfg, u.Path, nil
}

// absPath ensures p starts with a slash.
func absPath(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}

// dirPath is absPath with a trailing slash, marking p as a directory.
func dirPath(p string) string {
	p = absPath(p)
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}
