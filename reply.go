package ftpclient

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Reply represents an FTP server reply.
type Reply struct {
	// Code is the three-digit reply code (e.g., 220, 550)
	Code int

	// Message is the reply text with the code prefixes removed. Lines of
	// a multi-line reply are joined with "\n".
	Message string

	// Lines contains the raw lines of the reply, CRLF removed
	Lines []string
}

// Is1xx returns true for a positive preliminary reply.
func (r *Reply) Is1xx() bool { return r.Code >= 100 && r.Code < 200 }

// Is2xx returns true for a positive completion reply.
func (r *Reply) Is2xx() bool { return r.Code >= 200 && r.Code < 300 }

// Is3xx returns true for a positive intermediate reply.
func (r *Reply) Is3xx() bool { return r.Code >= 300 && r.Code < 400 }

// Is4xx returns true for a transient negative reply.
func (r *Reply) Is4xx() bool { return r.Code >= 400 && r.Code < 500 }

// Is5xx returns true for a permanent negative reply.
func (r *Reply) Is5xx() bool { return r.Code >= 500 && r.Code < 600 }

// String returns the reply as it was received.
func (r *Reply) String() string {
	return strings.Join(r.Lines, "\n")
}

// readReply reads one complete FTP reply.
//
// Single-line format: "220 Welcome\r\n"
// Multi-line format:
//
//	"211-Features:\r\n"
//	" PASV\r\n"
//	"211 End\r\n"
//
// The reply is complete when a line starts with the code followed by a space.
// Nothing is returned unless the whole reply was read.
func readReply(r *bufio.Reader) (*Reply, error) {
	line, err := readLine(r, true)
	if err != nil {
		return nil, err
	}

	code, err := replyCode(line)
	if err != nil {
		return nil, err
	}

	if len(line) == 3 || line[3] == ' ' {
		return &Reply{
			Code:    code,
			Message: strings.TrimSpace(line[min(len(line), 4):]),
			Lines:   []string{line},
		}, nil
	}

	if line[3] != '-' {
		return nil, fmt.Errorf("%w: %q", ErrMalformedReply, line)
	}

	lines := []string{line}
	parts := []string{line[4:]}
	prefix := line[:3]

	for {
		line, err = readLine(r, false)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)

		if strings.HasPrefix(line, prefix) && len(line) >= 4 && line[3] == ' ' {
			parts = append(parts, line[4:])
			break
		}
		if len(line) == 3 && line == prefix {
			break
		}
		if strings.HasPrefix(line, prefix+"-") {
			parts = append(parts, line[4:])
			continue
		}
		parts = append(parts, line)
	}

	return &Reply{
		Code:    code,
		Message: strings.TrimSpace(strings.Join(parts, "\n")),
		Lines:   lines,
	}, nil
}

// readLine reads a single line and strips the line terminator. EOF in the
// middle of a reply is a protocol violation; EOF before the first byte of
// a reply is reported as io.EOF wrapped the same way.
func readLine(r *bufio.Reader, first bool) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			if first && line == "" {
				return "", fmt.Errorf("%w: connection closed", ErrMalformedReply)
			}
			return "", fmt.Errorf("%w: %w", ErrMalformedReply, io.ErrUnexpectedEOF)
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func replyCode(line string) (int, error) {
	if len(line) < 3 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedReply, line)
	}
	code := 0
	for i := range 3 {
		ch := line[i]
		if ch < '0' || ch > '9' {
			return 0, fmt.Errorf("%w: invalid reply code %q", ErrMalformedReply, line[:3])
		}
		code = code*10 + int(ch-'0')
	}
	if code < 100 {
		return 0, fmt.Errorf("%w: invalid reply code %q", ErrMalformedReply, line[:3])
	}
	return code, nil
}
